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

	"github.com/hashicorp/go-hclog"
	liberr "github.com/nabbar/nocrt/errors"
	"github.com/nabbar/nocrt/mailbox"
	"github.com/nabbar/nocrt/noc"
	"github.com/nabbar/nocrt/transport"
)

// ReservedName is installed for the name server's own node at boot.
const ReservedName = "/io0"

type row struct {
	node noc.NodeId
	name string
	used bool
}

// Server holds the (node, name) table and serves LOOKUP/LINK/UNLINK
// requests off its control mailbox.
type Server struct {
	self noc.NodeId
	pid  int
	topo *noc.Topology
	mbx  *mailbox.Mailbox
	tr   transport.Transport
	log  hclog.Logger

	ctlMbxID int

	mu          sync.Mutex
	rows        []row
	nregistered int
}

// NewServer allocates the control mailbox and seeds the reserved "/io0"
// entry for self (spec §3, installed at boot).
func NewServer(pid int, self noc.NodeId, topo *noc.Topology, mbx *mailbox.Mailbox, tr transport.Transport, log hclog.Logger) (*Server, liberr.Error) {
	if log == nil {
		log = hclog.Default()
	}
	log = log.Named("nameserver")

	mbxid, err := mbx.Create(pid, "")
	if err != nil {
		return nil, err
	}

	s := &Server{
		self: self,
		pid:  pid,
		topo: topo,
		mbx:  mbx,
		tr:   tr,
		log:  log,
		rows: make([]row, topo.NumNodes()),

		ctlMbxID: mbxid,
	}

	s.rows[int(self)] = row{node: self, name: ReservedName, used: true}
	s.nregistered = 1

	return s, nil
}

func (s *Server) lookup(name string) (noc.NodeId, liberr.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rows {
		if r.used && r.name == name {
			return r.node, nil
		}
	}

	return 0, liberr.Errno(liberr.MinPkgNameServer, liberr.ENOENT, "nameserver: %q not bound", name)
}

func (s *Server) link(node noc.NodeId, name string) liberr.Error {
	if !s.topo.Valid(node) {
		return liberr.Errno(liberr.MinPkgNameServer, liberr.EINVAL, "nameserver: node %d out of range", node)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rows {
		if r.used && r.name == name {
			return liberr.Errno(liberr.MinPkgNameServer, liberr.EINVAL, "nameserver: %q already bound", name)
		}
	}

	idx := int(node)
	if s.rows[idx].used {
		return liberr.Errno(liberr.MinPkgNameServer, liberr.ENOENT, "nameserver: node %d has no free row", node)
	}

	s.rows[idx] = row{node: node, name: name, used: true}
	s.nregistered++

	return nil
}

func (s *Server) unlink(name string) liberr.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.rows {
		if r.used && r.name == name {
			s.rows[i] = row{}
			s.nregistered--
			return nil
		}
	}

	return liberr.Errno(liberr.MinPkgNameServer, liberr.ENOENT, "nameserver: %q not bound", name)
}

// Registered reports the current row count (testable property: LINK/UNLINK
// keep this in sync with the set of used rows).
func (s *Server) Registered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nregistered
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
		s.log.Debug("request", "op", req.Op, "source", req.Source, "name", req.Name)

		if req.Op == opExit {
			return nil
		}

		resp := s.handle(req)
		s.reply(ctx, req, resp)
	}
}

func (s *Server) handle(req message) message {
	resp := message{Source: s.self, Port: req.Port, Seq: req.Seq}

	switch req.Op {
	case opLookup:
		node, err := s.lookup(req.Name)
		if err != nil {
			resp.Op = opFail
			s.log.Warn("lookup failed", "name", req.Name)
			return resp
		}
		resp.Op = opSuccess
		resp.Node = node

	case opLink:
		if err := s.link(req.Node, req.Name); err != nil {
			resp.Op = opFail
			s.log.Warn("link failed", "node", req.Node, "name", req.Name)
			return resp
		}
		resp.Op = opSuccess

	case opUnlink:
		if err := s.unlink(req.Name); err != nil {
			resp.Op = opFail
			s.log.Warn("unlink failed", "name", req.Name)
			return resp
		}
		resp.Op = opSuccess

	default:
		resp.Op = opFail
	}

	return resp
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
