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

// Package pool implements the fixed-size resource-descriptor table shared
// by every connector family: a slot carries used/busy/readable/writable/async
// flags, backed one bitset per flag, and a first-fit allocator scans the
// used-set for the first clear bit.
package pool

import (
	"sync"

	"github.com/bits-and-blooms/bitset"

	liberr "github.com/nabbar/nocrt/errors"
)

// Flag is one bit of a descriptor's state.
type Flag uint8

const (
	FlagUsed Flag = iota
	FlagBusy
	FlagReadable
	FlagWritable
	FlagAsync

	nFlags = int(FlagAsync) + 1
)

// Pool is a fixed-size table of descriptor slots. Every method takes the
// pool's own mutex, so allocation, flag transitions and release are
// serialized and a Pool is safe for concurrent use.
type Pool struct {
	mu    sync.Mutex
	size  int
	flags [nFlags]*bitset.BitSet
}

// New returns a Pool with size descriptor slots, all initially unused.
func New(size int) *Pool {
	p := &Pool{size: size}

	for i := 0; i < nFlags; i++ {
		p.flags[i] = bitset.New(uint(size))
	}

	return p
}

// Size returns the number of descriptor slots in the pool.
func (p *Pool) Size() int {
	return p.size
}

// Alloc finds the first unused slot, marks it used and returns its index.
// Returns ENOENT if the pool is full.
func (p *Pool) Alloc() (int, liberr.Error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	used := p.flags[FlagUsed]

	idx, ok := used.NextClear(0)
	if !ok || int(idx) >= p.size {
		return -1, liberr.Errno(liberr.MinPkgPool, liberr.ENOENT, "resource pool exhausted")
	}

	used.Set(idx)

	return int(idx), nil
}

// Release clears every flag on the slot at index, returning it to the pool.
func (p *Pool) Release(index int) liberr.Error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if index < 0 || index >= p.size {
		return liberr.Errno(liberr.MinPkgPool, liberr.EINVAL, "index %d out of range", index)
	}

	for i := 0; i < nFlags; i++ {
		p.flags[i].Clear(uint(index))
	}

	return nil
}

// Set raises flag f on the slot at index. Setting an already-set flag is a
// no-op (bitset.Set is naturally idempotent), which is how this
// implementation honors the "non-blocking flag written twice" open question
// from the source material without any special-casing.
func (p *Pool) Set(index int, f Flag) liberr.Error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if index < 0 || index >= p.size {
		return liberr.Errno(liberr.MinPkgPool, liberr.EINVAL, "index %d out of range", index)
	}

	p.flags[f].Set(uint(index))

	return nil
}

// Clear lowers flag f on the slot at index.
func (p *Pool) Clear(index int, f Flag) liberr.Error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if index < 0 || index >= p.size {
		return liberr.Errno(liberr.MinPkgPool, liberr.EINVAL, "index %d out of range", index)
	}

	p.flags[f].Clear(uint(index))

	return nil
}

// Test reports whether flag f is set on the slot at index.
func (p *Pool) Test(index int, f Flag) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if index < 0 || index >= p.size {
		return false
	}

	return p.flags[f].Test(uint(index))
}

// SetReadOnly marks a slot readable and clears writable, mirroring the
// source's resource_set_rdonly.
func (p *Pool) SetReadOnly(index int) liberr.Error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if index < 0 || index >= p.size {
		return liberr.Errno(liberr.MinPkgPool, liberr.EINVAL, "index %d out of range", index)
	}

	p.flags[FlagReadable].Set(uint(index))
	p.flags[FlagWritable].Clear(uint(index))

	return nil
}

// SetWriteOnly marks a slot writable and clears readable, mirroring the
// source's resource_set_wronly.
func (p *Pool) SetWriteOnly(index int) liberr.Error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if index < 0 || index >= p.size {
		return liberr.Errno(liberr.MinPkgPool, liberr.EINVAL, "index %d out of range", index)
	}

	p.flags[FlagWritable].Set(uint(index))
	p.flags[FlagReadable].Clear(uint(index))

	return nil
}

// Count returns the number of slots currently marked used.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return int(p.flags[FlagUsed].Count())
}
