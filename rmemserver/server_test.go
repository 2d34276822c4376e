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

package rmemserver

import (
	"context"
	"sync"
	"time"

	liberr "github.com/nabbar/nocrt/errors"
	"github.com/nabbar/nocrt/mailbox"
	"github.com/nabbar/nocrt/noc"
	"github.com/nabbar/nocrt/portal"
	"github.com/nabbar/nocrt/transport"
	"github.com/nabbar/nocrt/transport/memnet"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeNames struct {
	mu    sync.Mutex
	table map[string]noc.NodeId
}

func newFakeNames() *fakeNames {
	return &fakeNames{table: make(map[string]noc.NodeId)}
}

func (f *fakeNames) Lookup(name string) (noc.NodeId, liberr.Error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.table[name]
	if !ok {
		return 0, liberr.Errno(liberr.MinPkgNameServer, liberr.ENOENT, "fakeNames: %q not bound", name)
	}

	return n, nil
}

func (f *fakeNames) Link(node noc.NodeId, name string) liberr.Error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.table[name] = node
	return nil
}

func (f *fakeNames) Unlink(name string) liberr.Error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.table, name)
	return nil
}

// rawClient drives the wire protocol directly, so the server is exercised
// without the rmemclient package.
type rawClient struct {
	self, server noc.NodeId
	topo         *noc.Topology
	tr           transport.Transport
	prt          *portal.Portal
	pid          int
}

func (c *rawClient) send(ctx context.Context, req message) liberr.Error {
	req.Source = c.self

	path := noc.Path(c.server, c.topo.TagMailbox(c.server))
	ep, err := c.tr.Open(path, transport.DirWrite)
	if err != nil {
		return liberr.ErrnoWrap(liberr.MinPkgRmemClient, liberr.EAGAIN, err, "rawClient: request open failed")
	}
	defer func() { _ = ep.Close() }()

	_, werr := ep.Write(ctx, encode(req))
	return werr
}

func (c *rawClient) recv(ctx context.Context) (message, liberr.Error) {
	path := noc.Path(c.self, c.topo.TagMailbox(c.self))
	ep, err := c.tr.Open(path, transport.DirRead)
	if err != nil {
		return message{}, liberr.ErrnoWrap(liberr.MinPkgRmemClient, liberr.EAGAIN, err, "rawClient: reply open failed")
	}
	defer func() { _ = ep.Close() }()

	buf := make([]byte, mailbox.MsgSize)
	if _, rerr := ep.Read(ctx, buf); rerr != nil {
		return message{}, rerr
	}

	return decode(buf), nil
}

func (c *rawClient) alloc(ctx context.Context) (message, liberr.Error) {
	if err := c.send(ctx, message{Op: opAlloc}); err != nil {
		return message{}, err
	}
	return c.recv(ctx)
}

func (c *rawClient) free(ctx context.Context, blknum uint64) (message, liberr.Error) {
	if err := c.send(ctx, message{Op: opFree, Blknum: blknum}); err != nil {
		return message{}, err
	}
	return c.recv(ctx)
}

func (c *rawClient) write(ctx context.Context, blknum uint64, payload []byte) (message, liberr.Error) {
	if err := c.send(ctx, message{Op: opWrite, Blknum: blknum, Size: uint32(len(payload))}); err != nil {
		return message{}, err
	}

	ack, err := c.recv(ctx)
	if err != nil || ack.Op != opAck {
		return ack, err
	}

	prtid, perr := c.prt.Open(c.pid, c.server)
	if perr != nil {
		return message{}, perr
	}
	defer func() { _ = c.prt.Close(c.pid, prtid) }()

	if _, werr := c.prt.Write(ctx, c.pid, prtid, payload); werr != nil {
		return message{}, werr
	}

	return c.recv(ctx)
}

func (c *rawClient) read(ctx context.Context, blknum uint64, size int) ([]byte, message, liberr.Error) {
	if err := c.send(ctx, message{Op: opRead, Blknum: blknum, Size: uint32(size)}); err != nil {
		return nil, message{}, err
	}

	ack, err := c.recv(ctx)
	if err != nil || ack.Op != opAck {
		return nil, ack, err
	}

	prtid, perr := c.prt.Create(c.pid)
	if perr != nil {
		return nil, message{}, perr
	}
	defer func() { _ = c.prt.Unlink(c.pid, prtid) }()

	if aerr := c.prt.Allow(c.pid, prtid, c.server); aerr != nil {
		return nil, message{}, aerr
	}

	buf := make([]byte, size)
	if _, rerr := c.prt.Read(ctx, c.pid, prtid, buf); rerr != nil {
		return nil, message{}, rerr
	}

	status, serr := c.recv(ctx)
	return buf, status, serr
}

var _ = Describe("Server", func() {
	It("runs ALLOC, WRITE, READ, FREE end to end with ack/bulk/status ordering", func() {
		fab := memnet.New()
		topo := noc.NewTopology(4, 0)
		names := newFakeNames()

		srvMbx := mailbox.New(0, topo, fab, names, 4)
		srvPrt := portal.New(0, topo, fab, 4)
		srv, err := NewServer(10, 0, topo, srvMbx, srvPrt, fab, nil, 2, 0, 1)
		Expect(err).To(BeNil())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan liberr.Error, 1)
		go func() { done <- srv.Serve(ctx) }()

		cli := &rawClient{self: 1, server: 0, topo: topo, tr: fab, prt: portal.New(1, topo, fab, 4), pid: 20}

		allocResp, aerr := cli.alloc(context.Background())
		Expect(aerr).To(BeNil())
		Expect(allocResp.Op).To(Equal(opSuccess))
		blknum := allocResp.Blknum

		payload := make([]byte, BlockSize)
		for i := range payload {
			payload[i] = byte((i * 7) % 256)
		}

		wstatus, werr := cli.write(context.Background(), blknum, payload)
		Expect(werr).To(BeNil())
		Expect(wstatus.Op).To(Equal(opSuccess))

		got, rstatus, rerr := cli.read(context.Background(), blknum, BlockSize)
		Expect(rerr).To(BeNil())
		Expect(rstatus.Op).To(Equal(opSuccess))
		Expect(got).To(Equal(payload))

		freeResp, ferr := cli.free(context.Background(), blknum)
		Expect(ferr).To(BeNil())
		Expect(freeResp.Op).To(Equal(opSuccess))

		cancel()
		Eventually(done, time.Second).Should(Receive())
	})

	It("exhausts the block bitmap after N_BLOCKS allocations", func() {
		fab := memnet.New()
		topo := noc.NewTopology(4, 0)
		names := newFakeNames()

		srvMbx := mailbox.New(0, topo, fab, names, 8)
		srvPrt := portal.New(0, topo, fab, 8)
		srv, err := NewServer(10, 0, topo, srvMbx, srvPrt, fab, nil, 2, 0, 1)
		Expect(err).To(BeNil())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan liberr.Error, 1)
		go func() { done <- srv.Serve(ctx) }()

		cli := &rawClient{self: 1, server: 0, topo: topo, tr: fab, prt: portal.New(1, topo, fab, 4), pid: 20}

		ok := 0
		for i := 0; i < 3; i++ {
			resp, aerr := cli.alloc(context.Background())
			Expect(aerr).To(BeNil())
			if resp.Op == opSuccess {
				ok++
			}
		}
		Expect(ok).To(Equal(2))

		cancel()
		Eventually(done, time.Second).Should(Receive())
	})

	It("fails a READ against an unallocated block without opening a portal", func() {
		fab := memnet.New()
		topo := noc.NewTopology(4, 0)
		names := newFakeNames()

		srvMbx := mailbox.New(0, topo, fab, names, 4)
		srvPrt := portal.New(0, topo, fab, 4)
		srv, err := NewServer(10, 0, topo, srvMbx, srvPrt, fab, nil, 2, 0, 1)
		Expect(err).To(BeNil())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan liberr.Error, 1)
		go func() { done <- srv.Serve(ctx) }()

		cli := &rawClient{self: 1, server: 0, topo: topo, tr: fab, prt: portal.New(1, topo, fab, 4), pid: 20}

		rctx, rcancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer rcancel()

		if err := cli.send(rctx, message{Op: opRead, Blknum: 0, Size: BlockSize}); err == nil {
			resp, rerr := cli.recv(rctx)
			Expect(rerr).To(BeNil())
			Expect(resp.Op).To(Equal(opFail))
		}

		cancel()
		Eventually(done, time.Second).Should(Receive())
	})
})
