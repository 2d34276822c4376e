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

// Package mailbox implements the fixed-size, rendezvous-free IPC connector
// (spec §4.3): one input (read-only) or output (write-only) descriptor per
// transport endpoint, every message exactly MsgSize bytes.
package mailbox

import (
	"context"
	"sync"

	liberr "github.com/nabbar/nocrt/errors"
	"github.com/nabbar/nocrt/nameclient"
	"github.com/nabbar/nocrt/noc"
	"github.com/nabbar/nocrt/pool"
	"github.com/nabbar/nocrt/transport"
)

// MsgSize is the fixed message size every mailbox read/write must match,
// sized to hold the name-server and RMEM control messages (spec §6) as well
// as plain application payloads.
const MsgSize = 128

type descriptor struct {
	ep    transport.Endpoint
	dir   transport.Direction
	owner int
	name  string
}

// Mailbox is the per-node mailbox table: one pool of descriptors bound to
// one Transport, with named input mailboxes resolved through a name client.
type Mailbox struct {
	self  noc.NodeId
	topo  *noc.Topology
	tr    transport.Transport
	names nameclient.Client

	pl *pool.Pool

	mu    sync.RWMutex
	descs map[int]*descriptor
}

// New returns a Mailbox table of size descriptors for node self.
func New(self noc.NodeId, topo *noc.Topology, tr transport.Transport, names nameclient.Client, size int) *Mailbox {
	return &Mailbox{
		self:  self,
		topo:  topo,
		tr:    tr,
		names: names,
		pl:    pool.New(size),
		descs: make(map[int]*descriptor),
	}
}

// Create allocates an input mailbox owned by owner; when name is non-empty
// it is bound through the name client.
func (m *Mailbox) Create(owner int, name string) (int, liberr.Error) {
	if len(name) >= noc.NameMax {
		return 0, liberr.Errno(liberr.MinPkgMailbox, liberr.EINVAL, "mailbox: name %q exceeds NameMax", name)
	}

	idx, err := m.pl.Alloc()
	if err != nil {
		return 0, liberr.ErrnoWrap(liberr.MinPkgMailbox, liberr.EAGAIN, err, "mailbox: descriptor pool exhausted")
	}

	path := noc.Path(m.self, m.topo.TagMailbox(m.self))
	ep, eerr := m.tr.Open(path, transport.DirRead)
	if eerr != nil {
		_ = m.pl.Release(idx)
		return 0, liberr.ErrnoWrap(liberr.MinPkgMailbox, liberr.EAGAIN, eerr, "mailbox: transport open failed")
	}

	if name != "" {
		if lerr := m.names.Link(m.self, name); lerr != nil {
			_ = ep.Close()
			_ = m.pl.Release(idx)
			return 0, lerr
		}
	}

	_ = m.pl.SetReadOnly(idx)

	m.mu.Lock()
	m.descs[idx] = &descriptor{ep: ep, dir: transport.DirRead, owner: owner, name: name}
	m.mu.Unlock()

	return idx, nil
}

// Open resolves name through the name client and allocates an output
// mailbox to the node it is bound to.
func (m *Mailbox) Open(owner int, name string) (int, liberr.Error) {
	node, nerr := m.names.Lookup(name)
	if nerr != nil {
		return 0, nerr
	}

	idx, err := m.pl.Alloc()
	if err != nil {
		return 0, liberr.ErrnoWrap(liberr.MinPkgMailbox, liberr.EAGAIN, err, "mailbox: descriptor pool exhausted")
	}

	path := noc.Path(node, m.topo.TagMailbox(node))
	ep, eerr := m.tr.Open(path, transport.DirWrite)
	if eerr != nil {
		_ = m.pl.Release(idx)
		return 0, liberr.ErrnoWrap(liberr.MinPkgMailbox, liberr.EAGAIN, eerr, "mailbox: transport open failed")
	}

	_ = m.pl.SetWriteOnly(idx)

	m.mu.Lock()
	m.descs[idx] = &descriptor{ep: ep, dir: transport.DirWrite, owner: owner, name: name}
	m.mu.Unlock()

	return idx, nil
}

func (m *Mailbox) get(mbxid int) (*descriptor, liberr.Error) {
	m.mu.RLock()
	d, ok := m.descs[mbxid]
	m.mu.RUnlock()

	if !ok || !m.pl.Test(mbxid, pool.FlagUsed) {
		return nil, liberr.Errno(liberr.MinPkgMailbox, liberr.EINVAL, "mailbox: descriptor %d is not in use", mbxid)
	}

	return d, nil
}

// Read performs a blocking read of exactly MsgSize bytes from mbxid, which
// must be an input mailbox owned by owner.
func (m *Mailbox) Read(ctx context.Context, owner, mbxid int, buf []byte) liberr.Error {
	d, err := m.get(mbxid)
	if err != nil {
		return err
	}

	if d.dir != transport.DirRead {
		return liberr.Errno(liberr.MinPkgMailbox, liberr.ENOTSUP, "mailbox: descriptor %d is not read-only", mbxid)
	}

	if d.owner != owner {
		return liberr.Errno(liberr.MinPkgMailbox, liberr.EPERM, "mailbox: %d does not own descriptor %d", owner, mbxid)
	}

	if len(buf) != MsgSize {
		return liberr.Errno(liberr.MinPkgMailbox, liberr.EINVAL, "mailbox: read buffer must be MsgSize bytes")
	}

	n, rerr := d.ep.Read(ctx, buf)
	if rerr != nil {
		return rerr
	}

	if n != MsgSize {
		return liberr.Errno(liberr.MinPkgMailbox, liberr.EINVAL, "mailbox: short read (%d of %d bytes)", n, MsgSize)
	}

	return nil
}

// Write performs a blocking write of exactly MsgSize bytes to mbxid, which
// must be an output mailbox owned by owner.
func (m *Mailbox) Write(ctx context.Context, owner, mbxid int, buf []byte) liberr.Error {
	d, err := m.get(mbxid)
	if err != nil {
		return err
	}

	if d.dir != transport.DirWrite {
		return liberr.Errno(liberr.MinPkgMailbox, liberr.ENOTSUP, "mailbox: descriptor %d is not write-only", mbxid)
	}

	if d.owner != owner {
		return liberr.Errno(liberr.MinPkgMailbox, liberr.EPERM, "mailbox: %d does not own descriptor %d", owner, mbxid)
	}

	if len(buf) != MsgSize {
		return liberr.Errno(liberr.MinPkgMailbox, liberr.EINVAL, "mailbox: write buffer must be MsgSize bytes")
	}

	n, werr := d.ep.Write(ctx, buf)
	if werr != nil {
		return werr
	}

	if n != MsgSize {
		return liberr.Errno(liberr.MinPkgMailbox, liberr.EINVAL, "mailbox: short write (%d of %d bytes)", n, MsgSize)
	}

	return nil
}

// Close releases an output mailbox owned by owner.
func (m *Mailbox) Close(owner, mbxid int) liberr.Error {
	d, err := m.get(mbxid)
	if err != nil {
		return err
	}

	if d.dir != transport.DirWrite || d.owner != owner {
		return liberr.Errno(liberr.MinPkgMailbox, liberr.EPERM, "mailbox: %d cannot close descriptor %d", owner, mbxid)
	}

	return m.release(mbxid, d)
}

// Unlink releases an input mailbox owned by owner, removing its name
// binding first.
func (m *Mailbox) Unlink(owner, mbxid int) liberr.Error {
	d, err := m.get(mbxid)
	if err != nil {
		return err
	}

	if d.dir != transport.DirRead || d.owner != owner {
		return liberr.Errno(liberr.MinPkgMailbox, liberr.EPERM, "mailbox: %d cannot unlink descriptor %d", owner, mbxid)
	}

	if d.name != "" {
		if uerr := m.names.Unlink(d.name); uerr != nil {
			return uerr
		}
	}

	return m.release(mbxid, d)
}

func (m *Mailbox) release(mbxid int, d *descriptor) liberr.Error {
	_ = d.ep.Close()

	m.mu.Lock()
	delete(m.descs, mbxid)
	m.mu.Unlock()

	return m.pl.Release(mbxid)
}
