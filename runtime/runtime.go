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

// Package runtime is the per-process named-connector glue (spec §4.6): one
// default input mailbox, one default input portal, and OpenMailbox/OpenPortal
// helpers that resolve by name instead of raw node id.
package runtime

import (
	"context"
	"fmt"
	"sync"

	libctx "github.com/nabbar/nocrt/context"
	liberr "github.com/nabbar/nocrt/errors"
	"github.com/nabbar/nocrt/mailbox"
	"github.com/nabbar/nocrt/nameclient"
	"github.com/nabbar/nocrt/noc"
	"github.com/nabbar/nocrt/portal"
)

const (
	keyDefaultMailbox = -1
	keyDefaultPortal  = -2
)

type descRecord struct {
	kind string
	id   int
}

// Runtime is the process-wide descriptor table, carried as a
// context.Config[int] rather than file-scope globals.
type Runtime struct {
	self  noc.NodeId
	pid   int
	mbx   *mailbox.Mailbox
	prt   *portal.Portal
	names nameclient.Client

	cfg libctx.Config[int]

	mu   sync.Mutex
	next int
}

// Setup creates the process's default mailbox and portal, named after pid,
// and returns a Runtime whose descriptor table is bound to ctx.
func Setup(ctx context.Context, pid int, self noc.NodeId, mbx *mailbox.Mailbox, prt *portal.Portal, names nameclient.Client) (*Runtime, liberr.Error) {
	cfg := libctx.New[int](ctx)
	name := fmt.Sprintf("/proc%d", pid)

	mbxid, err := mbx.Create(pid, name)
	if err != nil {
		return nil, err
	}

	prtid, err := prt.Create(pid)
	if err != nil {
		_ = mbx.Unlink(pid, mbxid)
		return nil, err
	}

	cfg.Store(keyDefaultMailbox, mbxid)
	cfg.Store(keyDefaultPortal, prtid)

	return &Runtime{self: self, pid: pid, mbx: mbx, prt: prt, names: names, cfg: cfg}, nil
}

// DefaultMailbox returns this process's default input mailbox descriptor.
func (r *Runtime) DefaultMailbox() int {
	v, _ := r.cfg.Load(keyDefaultMailbox)
	id, _ := v.(int)
	return id
}

// DefaultPortal returns this process's default input portal descriptor.
func (r *Runtime) DefaultPortal() int {
	v, _ := r.cfg.Load(keyDefaultPortal)
	id, _ := v.(int)
	return id
}

// OpenMailbox resolves name through the name client and opens an output
// mailbox to it, tracking the descriptor for Cleanup.
func (r *Runtime) OpenMailbox(name string) (int, liberr.Error) {
	id, err := r.mbx.Open(r.pid, name)
	if err != nil {
		return 0, err
	}

	r.track("mailbox", id)
	return id, nil
}

// OpenPortal resolves name through the name client and opens an output
// portal to it, tracking the descriptor for Cleanup.
func (r *Runtime) OpenPortal(name string) (int, liberr.Error) {
	node, err := r.names.Lookup(name)
	if err != nil {
		return 0, err
	}

	id, err := r.prt.Open(r.pid, node)
	if err != nil {
		return 0, err
	}

	r.track("portal", id)
	return id, nil
}

func (r *Runtime) track(kind string, id int) {
	r.mu.Lock()
	r.next++
	key := 100 + r.next
	r.mu.Unlock()

	r.cfg.Store(key, descRecord{kind: kind, id: id})
}

// Cleanup closes every descriptor this Runtime opened, unlinks the default
// mailbox and portal, and empties the descriptor table.
func (r *Runtime) Cleanup(ctx context.Context) liberr.Error {
	var first liberr.Error

	r.cfg.Walk(func(key int, val interface{}) bool {
		rec, ok := val.(descRecord)
		if !ok {
			return true
		}

		var err liberr.Error
		switch rec.kind {
		case "mailbox":
			err = r.mbx.Close(r.pid, rec.id)
		case "portal":
			err = r.prt.Close(r.pid, rec.id)
		}

		if err != nil && first == nil {
			first = err
		}

		return true
	})

	if err := r.mbx.Unlink(r.pid, r.DefaultMailbox()); err != nil && first == nil {
		first = err
	}

	if err := r.prt.Unlink(r.pid, r.DefaultPortal()); err != nil && first == nil {
		first = err
	}

	r.cfg.Clean()

	return first
}
