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
	"sync"

	liberr "github.com/nabbar/nocrt/errors"
	"github.com/nabbar/nocrt/noc"
	"github.com/nabbar/nocrt/portal"
	"github.com/nabbar/nocrt/transport"
)

// Client is one process's RMEM handle: a remote-address table spanning one
// or more servers, and a page cache fronting every read/write.
type Client struct {
	self    noc.NodeId
	topo    *noc.Topology
	tr      transport.Transport
	prt     *portal.Portal
	pid     int
	servers []noc.NodeId

	mu    sync.Mutex
	rrIdx int

	tbl *table
	pc  *cache
}

// NewClient returns a Client for node self issuing requests as pid, spread
// round-robin across servers, with a page cache of cacheCapacity slots.
func NewClient(self noc.NodeId, topo *noc.Topology, tr transport.Transport, prt *portal.Portal, pid int, servers []noc.NodeId, cacheCapacity int) *Client {
	c := &Client{
		self:    self,
		topo:    topo,
		tr:      tr,
		prt:     prt,
		pid:     pid,
		servers: servers,
		tbl:     newTable(),
	}
	c.pc = newCache(cacheCapacity, c.dial)

	return c
}

func (c *Client) dial(server noc.NodeId) *rpc {
	return &rpc{self: c.self, server: server, topo: c.topo, tr: c.tr, prt: c.prt, pid: c.pid}
}

func (c *Client) nextServer() noc.NodeId {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.servers[c.rrIdx%len(c.servers)]
	c.rrIdx++

	return s
}

// Ralloc reserves n consecutive blocks, spread round-robin across the
// known servers, and returns a pointer to the first byte of the run.
func (c *Client) Ralloc(ctx context.Context, n int) (RPtr, liberr.Error) {
	return c.tbl.reserve(ctx, n,
		func(ctx context.Context) (remoteBlock, liberr.Error) {
			server := c.nextServer()

			blknum, err := c.dial(server).alloc(ctx)
			if err != nil {
				return remoteBlock{}, err
			}

			return remoteBlock{server: server, blknum: blknum}, nil
		},
		func(ctx context.Context, b remoteBlock) liberr.Error {
			return c.dial(b.server).free(ctx, b.blknum)
		},
	)
}

// Rfree frees every block from ptr's entry through the high-water mark.
func (c *Client) Rfree(ctx context.Context, ptr RPtr) liberr.Error {
	return c.tbl.release(ctx, ptr, func(ctx context.Context, b remoteBlock) liberr.Error {
		err := c.dial(b.server).free(ctx, b.blknum)
		c.pc.drop(b)
		return err
	})
}

func boundsCheck(offset uint32, n int) liberr.Error {
	if n < 0 || offset+uint32(n) > BlockSize {
		return liberr.Errno(liberr.MinPkgRmemClient, liberr.EINVAL, "rmemclient: access of %d bytes at offset %d crosses a block boundary", n, offset)
	}
	return nil
}

// Rread copies len(buf) bytes starting at ptr's block offset into buf via
// the page cache. offset+len(buf) must not exceed BlockSize.
func (c *Client) Rread(ctx context.Context, ptr RPtr, buf []byte) liberr.Error {
	b, offset, err := c.tbl.resolve(ptr)
	if err != nil {
		return err
	}

	if err := boundsCheck(offset, len(buf)); err != nil {
		return err
	}

	line, err := c.pc.fetch(ctx, b)
	if err != nil {
		return err
	}

	line.mu.Lock()
	defer line.mu.Unlock()
	copy(buf, line.data[offset:offset+uint32(len(buf))])

	return nil
}

// Rwrite copies buf into the cached copy of ptr's block, marking it dirty;
// the change reaches the server only when the line is evicted. Rfree
// discards dirty data of the freed blocks.
func (c *Client) Rwrite(ctx context.Context, ptr RPtr, buf []byte) liberr.Error {
	b, offset, err := c.tbl.resolve(ptr)
	if err != nil {
		return err
	}

	if err := boundsCheck(offset, len(buf)); err != nil {
		return err
	}

	line, err := c.pc.fetch(ctx, b)
	if err != nil {
		return err
	}

	line.mu.Lock()
	defer line.mu.Unlock()
	copy(line.data[offset:offset+uint32(len(buf))], buf)
	line.dirty = true

	return nil
}

// Rfault resolves ptr's block, ensures the page cache holds it (evicting
// and writing back a prior occupant of the same slot if needed), and
// returns the local buffer a caller's page-fault handler would map in.
func (c *Client) Rfault(ctx context.Context, ptr RPtr) ([]byte, liberr.Error) {
	b, _, err := c.tbl.resolve(ptr)
	if err != nil {
		return nil, err
	}

	line, err := c.pc.fetch(ctx, b)
	if err != nil {
		return nil, err
	}

	line.mu.Lock()
	defer line.mu.Unlock()

	return line.data, nil
}
