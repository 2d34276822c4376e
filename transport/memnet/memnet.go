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

// Package memnet is an in-process simulated fabric implementing
// transport.Transport over Go channels, keyed by the (node, tag) path every
// connector opens. It exists so the connector stack and its tests never
// need real NoC hardware underneath.
package memnet

import (
	"sync"

	libatm "github.com/nabbar/nocrt/atomic"
	liberr "github.com/nabbar/nocrt/errors"
	"github.com/nabbar/nocrt/transport"
)

// link is the shared channel two opposite-direction Opens on the same path
// rendezvous on.
type link struct {
	ch chan []byte
}

// Fabric is a transport.Transport backed by in-process channels. One Fabric
// models one NoC instance; every node and tag used by the connector layer
// must route through the same Fabric to see each other.
type Fabric struct {
	mu    sync.Mutex
	links map[string]*link
}

// New returns an empty Fabric.
func New() *Fabric {
	return &Fabric{links: make(map[string]*link)}
}

func (f *Fabric) linkFor(path string) *link {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.links[path]
	if !ok {
		l = &link{ch: make(chan []byte)}
		f.links[path] = l
	}

	return l
}

// Open implements transport.Transport.
func (f *Fabric) Open(path string, dir transport.Direction) (transport.Endpoint, liberr.Error) {
	if path == "" {
		return nil, liberr.Errno(transport.MinPkg, liberr.EINVAL, "memnet: empty path")
	}

	e := &endpoint{
		fabric: f,
		path:   path,
		dir:    dir,
		link:   f.linkFor(path),
	}
	e.volume = libatm.NewValue[uint64]()
	e.latency = libatm.NewValue[uint64]()

	return e, nil
}
