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

	libatm "github.com/nabbar/nocrt/atomic"
	liberr "github.com/nabbar/nocrt/errors"
	"github.com/nabbar/nocrt/noc"
)

// cacheLine is one slot's bookkeeping: which remote block it currently
// mirrors, its local copy, and whether that copy has unwritten changes.
type cacheLine struct {
	mu     sync.Mutex
	valid  bool
	dirty  bool
	server noc.NodeId
	blknum uint64
	data   []byte
}

// cache is a direct-mapped page cache over the process's rpc connections:
// slot = blknum mod capacity. Concurrent fetches for different blocks that
// happen to land on the same slot serialize on that slot's line, never on
// the whole cache.
type cache struct {
	capacity int
	lines    libatm.MapTyped[int, *cacheLine]
	dial     func(noc.NodeId) *rpc
}

func newCache(capacity int, dial func(noc.NodeId) *rpc) *cache {
	c := &cache{
		capacity: capacity,
		lines:    libatm.NewMapTyped[int, *cacheLine](),
		dial:     dial,
	}

	for i := 0; i < capacity; i++ {
		c.lines.Store(i, &cacheLine{})
	}

	return c
}

func (c *cache) slotFor(blknum uint64) int {
	return int(blknum % uint64(c.capacity))
}

// fetch returns the line mirroring b, loading it from the server if the
// slot is empty or currently mirrors a different block (writing back the
// evicted block first if it was dirty).
func (c *cache) fetch(ctx context.Context, b remoteBlock) (*cacheLine, liberr.Error) {
	line, _ := c.lines.Load(c.slotFor(b.blknum))

	line.mu.Lock()
	defer line.mu.Unlock()

	if line.valid && line.server == b.server && line.blknum == b.blknum {
		return line, nil
	}

	if line.valid && line.dirty {
		if err := c.dial(line.server).write(ctx, line.blknum, line.data); err != nil {
			return nil, err
		}
	}

	data, err := c.dial(b.server).read(ctx, b.blknum, BlockSize)
	if err != nil {
		return nil, err
	}

	line.server = b.server
	line.blknum = b.blknum
	line.data = data
	line.dirty = false
	line.valid = true

	return line, nil
}

// drop invalidates the line holding b, if any, without writing it back;
// used when a block is explicitly freed so a stale writeback never lands on
// a block the server has reassigned.
func (c *cache) drop(b remoteBlock) {
	line, ok := c.lines.Load(c.slotFor(b.blknum))
	if !ok {
		return
	}

	line.mu.Lock()
	defer line.mu.Unlock()

	if line.valid && line.server == b.server && line.blknum == b.blknum {
		line.valid = false
		line.dirty = false
	}
}
