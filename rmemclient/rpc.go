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

package rmemclient

import (
	"context"

	liberr "github.com/nabbar/nocrt/errors"
	"github.com/nabbar/nocrt/mailbox"
	"github.com/nabbar/nocrt/noc"
	"github.com/nabbar/nocrt/portal"
	"github.com/nabbar/nocrt/transport"
)

// rpc is the per-server connection state: one node to talk to, and the
// portal table used for the bulk phase of READ/WRITE.
type rpc struct {
	self   noc.NodeId
	server noc.NodeId
	topo   *noc.Topology
	tr     transport.Transport
	prt    *portal.Portal
	pid    int
}

func (r *rpc) send(ctx context.Context, req message) liberr.Error {
	req.Source = r.self

	path := noc.Path(r.server, r.topo.TagMailbox(r.server))
	ep, err := r.tr.Open(path, transport.DirWrite)
	if err != nil {
		return liberr.ErrnoWrap(liberr.MinPkgRmemClient, liberr.EAGAIN, err, "rmemclient: request open failed")
	}
	defer func() { _ = ep.Close() }()

	_, werr := ep.Write(ctx, encode(req))
	return werr
}

func (r *rpc) recv(ctx context.Context) (message, liberr.Error) {
	path := noc.Path(r.self, r.topo.TagMailbox(r.self))
	ep, err := r.tr.Open(path, transport.DirRead)
	if err != nil {
		return message{}, liberr.ErrnoWrap(liberr.MinPkgRmemClient, liberr.EAGAIN, err, "rmemclient: reply open failed")
	}
	defer func() { _ = ep.Close() }()

	buf := make([]byte, mailbox.MsgSize)
	if _, rerr := ep.Read(ctx, buf); rerr != nil {
		return message{}, rerr
	}

	return decode(buf), nil
}

func (r *rpc) alloc(ctx context.Context) (uint64, liberr.Error) {
	if err := r.send(ctx, message{Op: opAlloc}); err != nil {
		return 0, err
	}

	resp, err := r.recv(ctx)
	if err != nil {
		return 0, err
	}
	if resp.Op != opSuccess {
		return 0, liberr.Errno(liberr.MinPkgRmemClient, liberr.ENOMEM, "rmemclient: alloc on node %d failed", r.server)
	}

	return resp.Blknum, nil
}

func (r *rpc) free(ctx context.Context, blknum uint64) liberr.Error {
	if err := r.send(ctx, message{Op: opFree, Blknum: blknum}); err != nil {
		return err
	}

	resp, err := r.recv(ctx)
	if err != nil {
		return err
	}
	if resp.Op != opSuccess {
		return liberr.Errno(liberr.MinPkgRmemClient, liberr.EINVAL, "rmemclient: free block %d on node %d failed", blknum, r.server)
	}

	return nil
}

func (r *rpc) read(ctx context.Context, blknum uint64, size int) ([]byte, liberr.Error) {
	if err := r.send(ctx, message{Op: opRead, Blknum: blknum, Size: uint32(size)}); err != nil {
		return nil, err
	}

	ack, err := r.recv(ctx)
	if err != nil {
		return nil, err
	}
	if ack.Op != opAck {
		return nil, liberr.Errno(liberr.MinPkgRmemClient, liberr.EINVAL, "rmemclient: read block %d on node %d rejected", blknum, r.server)
	}

	prtid, perr := r.prt.Create(r.pid)
	if perr != nil {
		return nil, perr
	}
	defer func() { _ = r.prt.Unlink(r.pid, prtid) }()

	if aerr := r.prt.Allow(r.pid, prtid, r.server); aerr != nil {
		return nil, aerr
	}

	buf := make([]byte, size)
	if _, rerr := r.prt.Read(ctx, r.pid, prtid, buf); rerr != nil {
		return nil, rerr
	}

	status, serr := r.recv(ctx)
	if serr != nil {
		return nil, serr
	}
	if status.Op != opSuccess {
		return nil, liberr.Errno(liberr.MinPkgRmemClient, liberr.EFAULT, "rmemclient: read block %d on node %d failed in transfer", blknum, r.server)
	}

	return buf, nil
}

func (r *rpc) write(ctx context.Context, blknum uint64, payload []byte) liberr.Error {
	if err := r.send(ctx, message{Op: opWrite, Blknum: blknum, Size: uint32(len(payload))}); err != nil {
		return err
	}

	ack, err := r.recv(ctx)
	if err != nil {
		return err
	}
	if ack.Op != opAck {
		return liberr.Errno(liberr.MinPkgRmemClient, liberr.EINVAL, "rmemclient: write block %d on node %d rejected", blknum, r.server)
	}

	prtid, perr := r.prt.Open(r.pid, r.server)
	if perr != nil {
		return perr
	}
	defer func() { _ = r.prt.Close(r.pid, prtid) }()

	if _, werr := r.prt.Write(ctx, r.pid, prtid, payload); werr != nil {
		return werr
	}

	status, serr := r.recv(ctx)
	if serr != nil {
		return serr
	}
	if status.Op != opSuccess {
		return liberr.Errno(liberr.MinPkgRmemClient, liberr.EFAULT, "rmemclient: write block %d on node %d failed in transfer", blknum, r.server)
	}

	return nil
}
