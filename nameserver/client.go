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

package nameserver

import (
	"context"
	"sync"
	"time"

	"github.com/nabbar/nocrt/mailbox"
	"github.com/nabbar/nocrt/noc"
	"github.com/nabbar/nocrt/transport"

	liberr "github.com/nabbar/nocrt/errors"
)

// Client resolves and maintains name bindings against a single well-known
// server node, implementing nameclient.Client over raw mailbox traffic
// (every call is one request/response round-trip, never holding a pool
// descriptor across calls). The client's own mutex is held across each
// round-trip, so concurrent calls never interleave their replies.
type Client struct {
	self   noc.NodeId
	server noc.NodeId
	topo   *noc.Topology
	tr     transport.Transport
	rpcTO  time.Duration

	callMu sync.Mutex // held for one whole request/response pair

	mu  sync.Mutex
	seq uint32
}

// NewClient returns a Client for node self, talking to the name server at
// node server.
func NewClient(self, server noc.NodeId, topo *noc.Topology, tr transport.Transport) *Client {
	return &Client{self: self, server: server, topo: topo, tr: tr, rpcTO: 5 * time.Second}
}

func (c *Client) nextSeq() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

func (c *Client) call(ctx context.Context, req message) (message, liberr.Error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	req.Source = c.self
	req.Seq = c.nextSeq()

	ctx, cancel := context.WithTimeout(ctx, c.rpcTO)
	defer cancel()

	reqPath := noc.Path(c.server, c.topo.TagMailbox(c.server))
	tx, err := c.tr.Open(reqPath, transport.DirWrite)
	if err != nil {
		return message{}, liberr.ErrnoWrap(liberr.MinPkgNameServer, liberr.EAGAIN, err, "nameserver client: request open failed")
	}

	if _, werr := tx.Write(ctx, encode(req)); werr != nil {
		_ = tx.Close()
		return message{}, werr
	}
	_ = tx.Close()

	if req.Op == opExit {
		return message{}, nil
	}

	rxPath := noc.Path(c.self, c.topo.TagMailbox(c.self))
	rx, rerr := c.tr.Open(rxPath, transport.DirRead)
	if rerr != nil {
		return message{}, liberr.ErrnoWrap(liberr.MinPkgNameServer, liberr.EAGAIN, rerr, "nameserver client: reply open failed")
	}
	defer func() { _ = rx.Close() }()

	buf := make([]byte, mailbox.MsgSize)
	if _, rerr := rx.Read(ctx, buf); rerr != nil {
		return message{}, rerr
	}

	return decode(buf), nil
}

// Lookup implements nameclient.Client.
func (c *Client) Lookup(name string) (noc.NodeId, liberr.Error) {
	resp, err := c.call(context.Background(), message{Op: opLookup, Name: name})
	if err != nil {
		return 0, err
	}

	if resp.Op != opSuccess {
		return 0, liberr.Errno(liberr.MinPkgNameServer, liberr.ENOENT, "nameserver: %q not bound", name)
	}

	return resp.Node, nil
}

// Link implements nameclient.Client.
func (c *Client) Link(node noc.NodeId, name string) liberr.Error {
	resp, err := c.call(context.Background(), message{Op: opLink, Node: node, Name: name})
	if err != nil {
		return err
	}

	if resp.Op != opSuccess {
		return liberr.Errno(liberr.MinPkgNameServer, liberr.EINVAL, "nameserver: link %q failed", name)
	}

	return nil
}

// Unlink implements nameclient.Client.
func (c *Client) Unlink(name string) liberr.Error {
	resp, err := c.call(context.Background(), message{Op: opUnlink, Name: name})
	if err != nil {
		return err
	}

	if resp.Op != opSuccess {
		return liberr.Errno(liberr.MinPkgNameServer, liberr.ENOENT, "nameserver: unlink %q failed", name)
	}

	return nil
}

// Exit sends a fire-and-forget EXIT request, telling the server to stop
// its Serve loop.
func (c *Client) Exit() liberr.Error {
	_, err := c.call(context.Background(), message{Op: opExit})
	return err
}
