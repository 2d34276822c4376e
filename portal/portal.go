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

// Package portal implements the bulk-transfer IPC connector (spec §4.4): an
// input portal only accepts writes from remotes its owner has explicitly
// allowed, and a write blocks until the matching allow has been issued.
package portal

import (
	"context"
	"fmt"
	"sync"

	libatm "github.com/nabbar/nocrt/atomic"
	liberr "github.com/nabbar/nocrt/errors"
	"github.com/nabbar/nocrt/noc"
	"github.com/nabbar/nocrt/pool"
	"github.com/nabbar/nocrt/transport"
)

type descriptor struct {
	ep     transport.Endpoint
	dir    transport.Direction
	owner  int
	path   string // for write descriptors: the target (remote) portal path
	remote noc.NodeId

	allow libatm.Map[noc.NodeId] // populated only on read (input) descriptors

	mu      sync.Mutex
	written bool // one-shot write already consumed
}

// Portal is the per-node portal table.
type Portal struct {
	self noc.NodeId
	topo *noc.Topology
	tr   transport.Transport

	pl *pool.Pool

	mu    sync.RWMutex
	descs map[int]*descriptor
}

// New returns a Portal table of size descriptors for node self.
func New(self noc.NodeId, topo *noc.Topology, tr transport.Transport, size int) *Portal {
	return &Portal{
		self:  self,
		topo:  topo,
		tr:    tr,
		pl:    pool.New(size),
		descs: make(map[int]*descriptor),
	}
}

func handshakePath(recvPath string, remote noc.NodeId) string {
	return fmt.Sprintf("%s/allow/%d", recvPath, int(remote))
}

// Create allocates an input portal bound to the calling node.
func (p *Portal) Create(owner int) (int, liberr.Error) {
	idx, err := p.pl.Alloc()
	if err != nil {
		return 0, liberr.ErrnoWrap(liberr.MinPkgPortal, liberr.EAGAIN, err, "portal: descriptor pool exhausted")
	}

	path := noc.Path(p.self, p.topo.TagPortal(p.self))
	ep, eerr := p.tr.Open(path, transport.DirRead)
	if eerr != nil {
		_ = p.pl.Release(idx)
		return 0, liberr.ErrnoWrap(liberr.MinPkgPortal, liberr.EAGAIN, eerr, "portal: transport open failed")
	}

	_ = p.pl.SetReadOnly(idx)

	p.mu.Lock()
	p.descs[idx] = &descriptor{ep: ep, dir: transport.DirRead, owner: owner, path: path, allow: libatm.NewMapAny[noc.NodeId]()}
	p.mu.Unlock()

	return idx, nil
}

// Allow adds remote to prtid's allow-list and releases any Write blocked
// waiting for this remote's handshake.
func (p *Portal) Allow(owner, prtid int, remote noc.NodeId) liberr.Error {
	d, err := p.get(prtid)
	if err != nil {
		return err
	}

	if d.dir != transport.DirRead || d.owner != owner {
		return liberr.Errno(liberr.MinPkgPortal, liberr.EPERM, "portal: %d cannot allow on descriptor %d", owner, prtid)
	}

	d.allow.Store(remote, true)

	hp := handshakePath(d.path, remote)
	tx, terr := p.tr.Open(hp, transport.DirWrite)
	if terr != nil {
		return liberr.ErrnoWrap(liberr.MinPkgPortal, liberr.EAGAIN, terr, "portal: allow handshake open failed")
	}
	defer func() { _ = tx.Close() }()

	_, werr := tx.Write(context.Background(), []byte{1})
	return werr
}

// Open allocates an output portal to remote.
func (p *Portal) Open(owner int, remote noc.NodeId) (int, liberr.Error) {
	idx, err := p.pl.Alloc()
	if err != nil {
		return 0, liberr.ErrnoWrap(liberr.MinPkgPortal, liberr.EAGAIN, err, "portal: descriptor pool exhausted")
	}

	path := noc.Path(remote, p.topo.TagPortal(remote))
	ep, eerr := p.tr.Open(path, transport.DirWrite)
	if eerr != nil {
		_ = p.pl.Release(idx)
		return 0, liberr.ErrnoWrap(liberr.MinPkgPortal, liberr.EAGAIN, eerr, "portal: transport open failed")
	}

	_ = p.pl.SetWriteOnly(idx)

	p.mu.Lock()
	p.descs[idx] = &descriptor{ep: ep, dir: transport.DirWrite, owner: owner, path: path, remote: remote}
	p.mu.Unlock()

	return idx, nil
}

func (p *Portal) get(prtid int) (*descriptor, liberr.Error) {
	p.mu.RLock()
	d, ok := p.descs[prtid]
	p.mu.RUnlock()

	if !ok || !p.pl.Test(prtid, pool.FlagUsed) {
		return nil, liberr.Errno(liberr.MinPkgPortal, liberr.EINVAL, "portal: descriptor %d is not in use", prtid)
	}

	return d, nil
}

// Read blocks until n bytes arrive on prtid.
func (p *Portal) Read(ctx context.Context, owner, prtid int, buf []byte) (int, liberr.Error) {
	d, err := p.get(prtid)
	if err != nil {
		return 0, err
	}

	if d.dir != transport.DirRead {
		return 0, liberr.Errno(liberr.MinPkgPortal, liberr.ENOTSUP, "portal: descriptor %d is not an input portal", prtid)
	}

	if d.owner != owner {
		return 0, liberr.Errno(liberr.MinPkgPortal, liberr.EPERM, "portal: %d cannot read descriptor %d", owner, prtid)
	}

	return d.ep.Read(ctx, buf)
}

// Write blocks for the peer's Allow handshake on first call, then sends
// buf. Every subsequent call on the same descriptor fails with ENOTSUP
// (one-shot write, §9 Open Question resolution).
func (p *Portal) Write(ctx context.Context, owner, prtid int, buf []byte) (int, liberr.Error) {
	d, err := p.get(prtid)
	if err != nil {
		return 0, err
	}

	if d.dir != transport.DirWrite {
		return 0, liberr.Errno(liberr.MinPkgPortal, liberr.ENOTSUP, "portal: descriptor %d is not an output portal", prtid)
	}

	if d.owner != owner {
		return 0, liberr.Errno(liberr.MinPkgPortal, liberr.EPERM, "portal: %d cannot write descriptor %d", owner, prtid)
	}

	d.mu.Lock()
	if d.written {
		d.mu.Unlock()
		return 0, liberr.Errno(liberr.MinPkgPortal, liberr.ENOTSUP, "portal: descriptor %d already written", prtid)
	}
	d.mu.Unlock()

	hp := handshakePath(d.path, p.self)
	rx, herr := p.tr.Open(hp, transport.DirRead)
	if herr != nil {
		return 0, liberr.ErrnoWrap(liberr.MinPkgPortal, liberr.EAGAIN, herr, "portal: handshake open failed")
	}

	if _, werr := rx.Read(ctx, make([]byte, 1)); werr != nil {
		_ = rx.Close()
		return 0, werr
	}
	_ = rx.Close()

	n, werr := d.ep.Write(ctx, buf)
	if werr == nil {
		d.mu.Lock()
		d.written = true
		d.mu.Unlock()
	}

	return n, werr
}

// Close releases prtid.
func (p *Portal) Close(owner, prtid int) liberr.Error {
	d, err := p.get(prtid)
	if err != nil {
		return err
	}

	if d.owner != owner {
		return liberr.Errno(liberr.MinPkgPortal, liberr.EPERM, "portal: %d cannot close descriptor %d", owner, prtid)
	}

	return p.release(prtid, d)
}

// Unlink releases an input portal owned by owner.
func (p *Portal) Unlink(owner, prtid int) liberr.Error {
	d, err := p.get(prtid)
	if err != nil {
		return err
	}

	if d.dir != transport.DirRead || d.owner != owner {
		return liberr.Errno(liberr.MinPkgPortal, liberr.EPERM, "portal: %d cannot unlink descriptor %d", owner, prtid)
	}

	return p.release(prtid, d)
}

func (p *Portal) release(prtid int, d *descriptor) liberr.Error {
	_ = d.ep.Close()

	p.mu.Lock()
	delete(p.descs, prtid)
	p.mu.Unlock()

	return p.pl.Release(prtid)
}
