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

// Package syncconn implements the N-to-1/1-to-N rendezvous connector (spec
// §4.5). It is named syncconn, not sync, only to stay clear of the standard
// library package of that name.
package syncconn

import (
	"context"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bitset"
	liberr "github.com/nabbar/nocrt/errors"
	"github.com/nabbar/nocrt/noc"
	"golang.org/x/sync/semaphore"
)

// Mode selects which end of the group signals and which waits.
type Mode uint8

const (
	// OneToAll: nodes[0] signals once; every other participant waits.
	OneToAll Mode = iota
	// AllToOne: every participant but nodes[0] signals; nodes[0] waits.
	AllToOne
)

type role uint8

const (
	roleLeader role = iota
	roleFollower
)

type group struct {
	mode       Mode
	nFollowers int

	mu   sync.Mutex
	seen *bitset.BitSet // which followers have already signaled/waited once
	sem  *semaphore.Weighted
}

func newGroup(mode Mode, nFollowers int) *group {
	sem := semaphore.NewWeighted(int64(nFollowers))
	// Start the semaphore fully consumed so Release (signal) is what makes
	// units available, rather than Acquire (wait) draining a full pool.
	_ = sem.Acquire(context.Background(), int64(nFollowers))

	return &group{
		mode:       mode,
		nFollowers: nFollowers,
		seen:       bitset.New(uint(nFollowers)),
		sem:        sem,
	}
}

// Registry is the shared table Create/Open rendezvous through: two calls
// describing the same (nodes, mode) resolve to the same group.
type Registry struct {
	mu     sync.Mutex
	groups map[string]*group
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{groups: make(map[string]*group)}
}

func keyFor(nodes []noc.NodeId, mode Mode) string {
	return fmt.Sprintf("%d:%v", mode, nodes)
}

func (r *Registry) groupFor(nodes []noc.NodeId, mode Mode) *group {
	k := keyFor(nodes, mode)

	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[k]
	if !ok {
		g = newGroup(mode, len(nodes)-1)
		r.groups[k] = g
	}

	return g
}

// Conn is one participant's handle into a rendezvous group.
type Conn struct {
	grp      *group
	role     role
	followerIdx int
}

func validate(nodes []noc.NodeId, self noc.NodeId, topo *noc.Topology, wantLeader bool) (int, liberr.Error) {
	if len(nodes) < 2 {
		return 0, liberr.Errno(liberr.MinPkgSync, liberr.EINVAL, "syncconn: group needs at least 2 nodes, got %d", len(nodes))
	}

	seen := make(map[noc.NodeId]bool, len(nodes))
	selfIdx := -1

	for i, n := range nodes {
		if !topo.Valid(n) {
			return 0, liberr.Errno(liberr.MinPkgSync, liberr.EINVAL, "syncconn: node %d out of range", n)
		}

		if seen[n] {
			return 0, liberr.Errno(liberr.MinPkgSync, liberr.EINVAL, "syncconn: duplicate node %d in group", n)
		}

		seen[n] = true

		if n == self {
			selfIdx = i
		}
	}

	if selfIdx < 0 {
		return 0, liberr.Errno(liberr.MinPkgSync, liberr.EINVAL, "syncconn: caller %d is not in the group", self)
	}

	isLeader := selfIdx == 0
	if isLeader != wantLeader {
		return 0, liberr.Errno(liberr.MinPkgSync, liberr.EINVAL, "syncconn: caller %d does not match the requested role", self)
	}

	return selfIdx, nil
}

// Create binds the distinguished role: the signaller in OneToAll, the
// waiter in AllToOne. self must be nodes[0].
func Create(r *Registry, nodes []noc.NodeId, mode Mode, self noc.NodeId, topo *noc.Topology) (*Conn, liberr.Error) {
	if _, err := validate(nodes, self, topo, true); err != nil {
		return nil, err
	}

	return &Conn{grp: r.groupFor(nodes, mode), role: roleLeader}, nil
}

// Open binds a follower role: a waiter in OneToAll, a signaller in AllToOne.
// self must be one of nodes[1:].
func Open(r *Registry, nodes []noc.NodeId, mode Mode, self noc.NodeId, topo *noc.Topology) (*Conn, liberr.Error) {
	idx, err := validate(nodes, self, topo, false)
	if err != nil {
		return nil, err
	}

	return &Conn{grp: r.groupFor(nodes, mode), role: roleFollower, followerIdx: idx - 1}, nil
}

// Signal releases the rendezvous. Only the role assigned by the connector's
// mode may call it; the other role gets ENOTSUP.
func (c *Conn) Signal(ctx context.Context) liberr.Error {
	g := c.grp

	switch {
	case g.mode == OneToAll && c.role == roleLeader:
		g.sem.Release(int64(g.nFollowers))
		return nil

	case g.mode == AllToOne && c.role == roleFollower:
		g.mu.Lock()
		if g.seen.Test(uint(c.followerIdx)) {
			g.mu.Unlock()
			return liberr.Errno(liberr.MinPkgSync, liberr.EINVAL, "syncconn: follower %d already signaled", c.followerIdx)
		}
		g.seen.Set(uint(c.followerIdx))
		g.mu.Unlock()

		g.sem.Release(1)
		return nil

	default:
		return liberr.Errno(liberr.MinPkgSync, liberr.ENOTSUP, "syncconn: this role does not signal in this mode")
	}
}

// Wait blocks until the rendezvous completes for this connector's role.
func (c *Conn) Wait(ctx context.Context) liberr.Error {
	g := c.grp

	switch {
	case g.mode == AllToOne && c.role == roleLeader:
		if err := g.sem.Acquire(ctx, int64(g.nFollowers)); err != nil {
			return liberr.ErrnoWrap(liberr.MinPkgSync, liberr.EAGAIN, err, "syncconn: wait canceled")
		}
		return nil

	case g.mode == OneToAll && c.role == roleFollower:
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return liberr.ErrnoWrap(liberr.MinPkgSync, liberr.EAGAIN, err, "syncconn: wait canceled")
		}
		return nil

	default:
		return liberr.Errno(liberr.MinPkgSync, liberr.ENOTSUP, "syncconn: this role does not wait in this mode")
	}
}
