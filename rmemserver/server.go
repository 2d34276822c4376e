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
	"fmt"

	"github.com/hashicorp/go-hclog"

	liberr "github.com/nabbar/nocrt/errors"
	"github.com/nabbar/nocrt/mailbox"
	"github.com/nabbar/nocrt/noc"
	"github.com/nabbar/nocrt/portal"
	"github.com/nabbar/nocrt/transport"
)

// Server answers ALLOC/FREE/READ/WRITE requests for one partition of the
// block space.
type Server struct {
	self noc.NodeId
	pid  int
	topo *noc.Topology

	mbx *mailbox.Mailbox
	prt *portal.Portal
	tr  transport.Transport
	log hclog.Logger

	ctlMbxID int
	store    *store

	serverID, nServers int
}

// NewServer allocates the control mailbox and the block store for a
// partition of nBlocks blocks. serverID and nServers only choose the control
// mailbox name: "/rmem" when nServers <= 1, "/rmem<serverID>" otherwise.
// Block numbers index this server's own store and are not checked against
// blknum % nServers.
func NewServer(pid int, self noc.NodeId, topo *noc.Topology, mbx *mailbox.Mailbox, prt *portal.Portal, tr transport.Transport, log hclog.Logger, nBlocks, serverID, nServers int) (*Server, liberr.Error) {
	if log == nil {
		log = hclog.Default()
	}
	log = log.Named("rmem-server")

	name := fmt.Sprintf("/rmem%d", serverID)
	if nServers <= 1 {
		name = "/rmem"
	}

	mbxid, err := mbx.Create(pid, name)
	if err != nil {
		return nil, err
	}

	return &Server{
		self:      self,
		pid:       pid,
		topo:      topo,
		mbx:       mbx,
		prt:       prt,
		tr:        tr,
		log:       log,
		ctlMbxID:  mbxid,
		store:     newStore(nBlocks),
		serverID:  serverID,
		nServers:  nServers,
	}, nil
}

// Serve reads one control-mailbox request at a time and replies, until ctx
// is canceled or an EXIT request is received.
func (s *Server) Serve(ctx context.Context) liberr.Error {
	buf := make([]byte, mailbox.MsgSize)

	for {
		if err := s.mbx.Read(ctx, s.pid, s.ctlMbxID, buf); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		req := decode(buf)
		s.log.Debug("request", "op", req.Op, "source", req.Source, "blknum", req.Blknum, "size", req.Size)

		if req.Op == opExit {
			return nil
		}

		s.dispatch(ctx, req)
	}
}

func (s *Server) dispatch(ctx context.Context, req message) {
	switch req.Op {
	case opAlloc:
		s.handleAlloc(ctx, req)
	case opFree:
		s.handleFree(ctx, req)
	case opRead:
		s.handleRead(ctx, req)
	case opWrite:
		s.handleWrite(ctx, req)
	default:
		s.reply(ctx, req, message{Source: s.self, Op: opFail, Errcode: int32(liberr.EINVAL)})
	}
}

func (s *Server) handleAlloc(ctx context.Context, req message) {
	blknum, err := s.store.alloc()
	if err != nil {
		s.log.Warn("alloc failed", "source", req.Source)
		s.reply(ctx, req, message{Source: s.self, Op: opFail, Errcode: int32(liberr.KindOf(err))})
		return
	}

	s.reply(ctx, req, message{Source: s.self, Op: opSuccess, Blknum: blknum})
}

func (s *Server) handleFree(ctx context.Context, req message) {
	if err := s.store.free(req.Blknum); err != nil {
		s.log.Warn("free failed", "blknum", req.Blknum)
		s.reply(ctx, req, message{Source: s.self, Op: opFail, Errcode: int32(liberr.KindOf(err))})
		return
	}

	s.reply(ctx, req, message{Source: s.self, Op: opSuccess, Blknum: req.Blknum})
}

// handleRead implements the ack-on-mailbox -> bulk-on-portal ->
// status-on-mailbox ordering (spec §4.8, §5): the client only opens its
// allow/read side after observing the ACK, and only issues its next
// request after observing the final status.
func (s *Server) handleRead(ctx context.Context, req message) {
	if err := s.store.checkAllocated(req.Blknum, req.Size); err != nil {
		s.reply(ctx, req, message{Source: s.self, Op: opFail, Blknum: req.Blknum, Errcode: int32(liberr.KindOf(err))})
		return
	}

	s.reply(ctx, req, message{Source: s.self, Op: opAck, Blknum: req.Blknum, Size: req.Size})

	payload := make([]byte, req.Size)
	if err := s.store.read(req.Blknum, payload); err != nil {
		s.reply(ctx, req, message{Source: s.self, Op: opFail, Blknum: req.Blknum, Errcode: int32(liberr.KindOf(err))})
		return
	}

	prtid, perr := s.prt.Open(s.pid, req.Source)
	if perr != nil {
		s.log.Warn("read: output portal open failed", "source", req.Source)
		s.reply(ctx, req, message{Source: s.self, Op: opFail, Blknum: req.Blknum, Errcode: int32(liberr.KindOf(perr))})
		return
	}
	defer func() { _ = s.prt.Close(s.pid, prtid) }()

	if _, werr := s.prt.Write(ctx, s.pid, prtid, payload); werr != nil {
		s.log.Warn("read: bulk transfer failed", "source", req.Source)
		s.reply(ctx, req, message{Source: s.self, Op: opFail, Blknum: req.Blknum, Errcode: int32(liberr.KindOf(werr))})
		return
	}

	s.reply(ctx, req, message{Source: s.self, Op: opSuccess, Blknum: req.Blknum, Size: req.Size})
}

func (s *Server) handleWrite(ctx context.Context, req message) {
	if err := s.store.checkAllocated(req.Blknum, req.Size); err != nil {
		s.reply(ctx, req, message{Source: s.self, Op: opFail, Blknum: req.Blknum, Errcode: int32(liberr.KindOf(err))})
		return
	}

	s.reply(ctx, req, message{Source: s.self, Op: opAck, Blknum: req.Blknum, Size: req.Size})

	prtid, perr := s.prt.Create(s.pid)
	if perr != nil {
		s.log.Warn("write: input portal create failed", "source", req.Source)
		s.reply(ctx, req, message{Source: s.self, Op: opFail, Blknum: req.Blknum, Errcode: int32(liberr.KindOf(perr))})
		return
	}
	defer func() { _ = s.prt.Unlink(s.pid, prtid) }()

	if aerr := s.prt.Allow(s.pid, prtid, req.Source); aerr != nil {
		s.log.Warn("write: allow failed", "source", req.Source)
		s.reply(ctx, req, message{Source: s.self, Op: opFail, Blknum: req.Blknum, Errcode: int32(liberr.KindOf(aerr))})
		return
	}

	payload := make([]byte, req.Size)
	if _, rerr := s.prt.Read(ctx, s.pid, prtid, payload); rerr != nil {
		s.log.Warn("write: bulk transfer failed", "source", req.Source)
		s.reply(ctx, req, message{Source: s.self, Op: opFail, Blknum: req.Blknum, Errcode: int32(liberr.KindOf(rerr))})
		return
	}

	if werr := s.store.write(req.Blknum, payload); werr != nil {
		s.reply(ctx, req, message{Source: s.self, Op: opFail, Blknum: req.Blknum, Errcode: int32(liberr.KindOf(werr))})
		return
	}

	s.reply(ctx, req, message{Source: s.self, Op: opSuccess, Blknum: req.Blknum, Size: req.Size})
}

func (s *Server) reply(ctx context.Context, req, resp message) {
	path := noc.Path(req.Source, s.topo.TagMailbox(req.Source))

	ep, err := s.tr.Open(path, transport.DirWrite)
	if err != nil {
		s.log.Warn("reply open failed", "source", req.Source, "error", err.Error())
		return
	}
	defer func() { _ = ep.Close() }()

	if _, werr := ep.Write(ctx, encode(resp)); werr != nil {
		s.log.Warn("reply write failed", "source", req.Source, "error", werr.Error())
	}
}
