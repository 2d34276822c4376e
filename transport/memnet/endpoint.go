/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package memnet

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	libatm "github.com/nabbar/nocrt/atomic"
	liberr "github.com/nabbar/nocrt/errors"
	"github.com/nabbar/nocrt/transport"
)

type endpoint struct {
	fabric *Fabric
	path   string
	dir    transport.Direction
	link   *link

	mu        sync.Mutex
	closed    bool
	matchSet  bool
	matchMask uint64
	rxPaths   []string

	volume  libatm.Value[uint64]
	latency libatm.Value[uint64]
}

func (e *endpoint) addStats(n int, d time.Duration) {
	e.volume.Store(e.volume.Load() + uint64(n))
	e.latency.Store(e.latency.Load() + uint64(d))
}

func (e *endpoint) Close() liberr.Error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return liberr.Errno(transport.MinPkg, liberr.EINVAL, "memnet: endpoint %s already closed", e.path)
	}

	e.closed = true
	return nil
}

func (e *endpoint) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *endpoint) recvOne(ctx context.Context) ([]byte, liberr.Error) {
	start := time.Now()

	select {
	case data, ok := <-e.link.ch:
		if !ok {
			return nil, liberr.Errno(transport.MinPkg, liberr.EFAULT, "memnet: link %s closed", e.path)
		}

		e.addStats(len(data), time.Since(start))
		return data, nil
	case <-ctx.Done():
		return nil, liberr.Errno(transport.MinPkg, liberr.EAGAIN, "memnet: read on %s canceled: %s", e.path, ctx.Err())
	}
}

func (e *endpoint) Read(ctx context.Context, buf []byte) (int, liberr.Error) {
	if e.dir != transport.DirRead {
		return 0, liberr.Errno(transport.MinPkg, liberr.EINVAL, "memnet: %s is not a read endpoint", e.path)
	}

	if e.isClosed() {
		return 0, liberr.Errno(transport.MinPkg, liberr.EINVAL, "memnet: %s is closed", e.path)
	}

	e.mu.Lock()
	matchSet, mask := e.matchSet, e.matchMask
	e.mu.Unlock()

	if !matchSet {
		data, err := e.recvOne(ctx)
		if err != nil {
			return 0, err
		}

		return copy(buf, data), nil
	}

	var acc uint64
	for acc&mask != mask {
		data, err := e.recvOne(ctx)
		if err != nil {
			return 0, err
		}

		if len(data) < 8 {
			return 0, liberr.Errno(transport.MinPkg, liberr.EINVAL, "memnet: %s received short sync word", e.path)
		}

		acc |= binary.LittleEndian.Uint64(data)
	}

	binary.LittleEndian.PutUint64(buf, acc)
	return 8, nil
}

func (e *endpoint) sendTo(ctx context.Context, path string, data []byte) liberr.Error {
	l := e.link
	if path != e.path {
		l = e.fabric.linkFor(path)
	}

	select {
	case l.ch <- data:
		return nil
	case <-ctx.Done():
		return liberr.Errno(transport.MinPkg, liberr.EAGAIN, "memnet: write to %s canceled: %s", path, ctx.Err())
	}
}

func (e *endpoint) Write(ctx context.Context, buf []byte) (int, liberr.Error) {
	if e.dir != transport.DirWrite {
		return 0, liberr.Errno(transport.MinPkg, liberr.EINVAL, "memnet: %s is not a write endpoint", e.path)
	}

	if e.isClosed() {
		return 0, liberr.Errno(transport.MinPkg, liberr.EINVAL, "memnet: %s is closed", e.path)
	}

	data := make([]byte, len(buf))
	copy(data, buf)

	e.mu.Lock()
	targets := e.rxPaths
	e.mu.Unlock()

	if len(targets) == 0 {
		targets = []string{e.path}
	}

	start := time.Now()
	for _, p := range targets {
		if err := e.sendTo(ctx, p, data); err != nil {
			return 0, err
		}
	}
	e.addStats(len(buf)*len(targets), time.Since(start))

	return len(buf), nil
}

func (e *endpoint) IoctlSetMatch(mask uint64) liberr.Error {
	if e.dir != transport.DirRead {
		return liberr.Errno(transport.MinPkg, liberr.EINVAL, "memnet: match mask requires a read endpoint")
	}

	e.mu.Lock()
	e.matchSet = true
	e.matchMask = mask
	e.mu.Unlock()

	return nil
}

func (e *endpoint) IoctlSetRxRanks(paths []string) liberr.Error {
	if e.dir != transport.DirWrite {
		return liberr.Errno(transport.MinPkg, liberr.EINVAL, "memnet: rx ranks require a write endpoint")
	}

	cp := make([]string, len(paths))
	copy(cp, paths)

	e.mu.Lock()
	e.rxPaths = cp
	e.mu.Unlock()

	return nil
}

type aiocb struct {
	done chan struct{}
	n    int
	err  liberr.Error
}

func (a *aiocb) Wait(ctx context.Context) (int, liberr.Error) {
	select {
	case <-a.done:
		return a.n, a.err
	case <-ctx.Done():
		return 0, liberr.Errno(transport.MinPkg, liberr.EAGAIN, "memnet: async wait canceled: %s", ctx.Err())
	}
}

// AsyncReadBegin starts a goroutine collecting trigger deliveries into buf
// and returns immediately; Wait blocks on its completion.
func (e *endpoint) AsyncReadBegin(ctx context.Context, buf []byte, trigger int) (transport.AIOCB, liberr.Error) {
	if e.dir != transport.DirRead {
		return nil, liberr.Errno(transport.MinPkg, liberr.EINVAL, "memnet: async read requires a read endpoint")
	}

	if trigger <= 0 {
		return nil, liberr.Errno(transport.MinPkg, liberr.EINVAL, "memnet: async read trigger must be positive")
	}

	a := &aiocb{done: make(chan struct{})}

	go func() {
		defer close(a.done)

		offset := 0
		for i := 0; i < trigger; i++ {
			data, err := e.recvOne(ctx)
			if err != nil {
				a.err = err
				return
			}

			if offset < len(buf) {
				offset += copy(buf[offset:], data)
			}
		}

		a.n = offset
	}()

	return a, nil
}

func (e *endpoint) Stats(kind transport.StatKind) uint64 {
	if kind == transport.StatLatency {
		return e.latency.Load()
	}

	return e.volume.Load()
}
