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
	"github.com/nabbar/nocrt/rmemserver"
)

// BlockSize is the unit of remote storage, matching rmemserver's.
const BlockSize = rmemserver.BlockSize

// RPtr is a remote virtual address: a block-granular offset into the
// process's remote address space, plus a byte offset within that block.
type RPtr uint64

type remoteBlock struct {
	server noc.NodeId
	blknum uint64
}

// entry is one ralloc() reservation: a run of consecutive virtual block
// numbers starting at base, each backed by a remote block possibly on a
// different server (spec §4.8 multi-server partitioning).
type entry struct {
	base   uint64
	blocks []remoteBlock
}

// table is the process-local remote-address allocator (spec §4.9): ralloc
// reserves the next run of virtual block numbers and allocates matching
// remote blocks; rfree unwinds the table back to an entry's base, freeing
// everything allocated since, mirroring a high-water-mark allocator.
type table struct {
	mu      sync.Mutex
	entries []*entry
	highVB  uint64
}

func newTable() *table {
	return &table{}
}

// reserve appends a new entry of n blocks obtained via alloc, returning the
// RPtr at its first byte. On a mid-allocation failure, blocks already
// obtained are released via free before the error is returned.
func (t *table) reserve(ctx context.Context, n int, alloc func(context.Context) (remoteBlock, liberr.Error), free func(context.Context, remoteBlock) liberr.Error) (RPtr, liberr.Error) {
	if n <= 0 {
		return 0, liberr.Errno(liberr.MinPkgRmemClient, liberr.EINVAL, "rmemclient: ralloc count must be positive")
	}

	blocks := make([]remoteBlock, 0, n)
	for i := 0; i < n; i++ {
		b, err := alloc(ctx)
		if err != nil {
			for _, prior := range blocks {
				_ = free(ctx, prior)
			}
			return 0, err
		}
		blocks = append(blocks, b)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	base := t.highVB
	t.entries = append(t.entries, &entry{base: base, blocks: blocks})
	t.highVB += uint64(n)

	return RPtr(base * BlockSize), nil
}

// release unwinds the table back to the entry whose base matches ptr,
// freeing every remote block from that entry through the current
// high-water mark.
func (t *table) release(ctx context.Context, ptr RPtr, free func(context.Context, remoteBlock) liberr.Error) liberr.Error {
	base := uint64(ptr) / BlockSize

	t.mu.Lock()
	defer t.mu.Unlock()

	idx := -1
	for i, e := range t.entries {
		if e.base == base {
			idx = i
			break
		}
	}
	if idx == -1 {
		return liberr.Errno(liberr.MinPkgRmemClient, liberr.EINVAL, "rmemclient: rfree on unknown pointer")
	}

	var firstErr liberr.Error
	for i := len(t.entries) - 1; i >= idx; i-- {
		for _, b := range t.entries[i].blocks {
			if err := free(ctx, b); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	t.entries = t.entries[:idx]
	t.highVB = base

	return firstErr
}

// resolve decomposes ptr into the remote block backing it and the byte
// offset within that block.
func (t *table) resolve(ptr RPtr) (remoteBlock, uint32, liberr.Error) {
	vblock := uint64(ptr) / BlockSize
	offset := uint32(uint64(ptr) % BlockSize)

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.entries {
		if vblock >= e.base && vblock < e.base+uint64(len(e.blocks)) {
			return e.blocks[vblock-e.base], offset, nil
		}
	}

	return remoteBlock{}, 0, liberr.Errno(liberr.MinPkgRmemClient, liberr.EINVAL, "rmemclient: pointer out of range")
}
