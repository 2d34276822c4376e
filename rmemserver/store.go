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
	"sync"

	"github.com/bits-and-blooms/bitset"

	liberr "github.com/nabbar/nocrt/errors"
)

// BlockSize is the fixed unit of RMEM storage and transfer.
const BlockSize = 4096

// store is the block allocator and backing byte array. The bitmap's mutex
// is distinct from the data mutex so a READ/WRITE of one block never
// serializes against an ALLOC/FREE of another.
type store struct {
	nBlocks int

	bmu    sync.Mutex
	bitmap *bitset.BitSet

	dmu  sync.RWMutex
	data []byte
}

func newStore(nBlocks int) *store {
	return &store{
		nBlocks: nBlocks,
		bitmap:  bitset.New(uint(nBlocks)),
		data:    make([]byte, nBlocks*BlockSize),
	}
}

func (s *store) alloc() (uint64, liberr.Error) {
	s.bmu.Lock()
	defer s.bmu.Unlock()

	idx, ok := s.bitmap.NextClear(0)
	if !ok || int(idx) >= s.nBlocks {
		return 0, liberr.Errno(liberr.MinPkgRmemServer, liberr.ENOMEM, "rmem: block bitmap full")
	}

	s.bitmap.Set(idx)

	return uint64(idx), nil
}

func (s *store) free(blknum uint64) liberr.Error {
	s.bmu.Lock()
	defer s.bmu.Unlock()

	if blknum >= uint64(s.nBlocks) {
		return liberr.Errno(liberr.MinPkgRmemServer, liberr.EINVAL, "rmem: block %d out of range", blknum)
	}

	if !s.bitmap.Test(uint(blknum)) {
		return liberr.Errno(liberr.MinPkgRmemServer, liberr.EINVAL, "rmem: block %d already free", blknum)
	}

	s.bitmap.Clear(uint(blknum))

	return nil
}

func (s *store) checkAllocated(blknum uint64, size uint32) liberr.Error {
	if blknum >= uint64(s.nBlocks) {
		return liberr.Errno(liberr.MinPkgRmemServer, liberr.EINVAL, "rmem: block %d out of range", blknum)
	}

	if size == 0 || size%BlockSize != 0 || int(size) > (s.nBlocks-int(blknum))*BlockSize {
		return liberr.Errno(liberr.MinPkgRmemServer, liberr.EINVAL, "rmem: size %d is not a valid multiple of BlockSize for block %d", size, blknum)
	}

	s.bmu.Lock()
	allocated := s.bitmap.Test(uint(blknum))
	s.bmu.Unlock()

	if !allocated {
		return liberr.Errno(liberr.MinPkgRmemServer, liberr.EINVAL, "rmem: block %d not allocated", blknum)
	}

	return nil
}

func (s *store) read(blknum uint64, buf []byte) liberr.Error {
	if err := s.checkAllocated(blknum, uint32(len(buf))); err != nil {
		return err
	}

	s.dmu.RLock()
	defer s.dmu.RUnlock()

	off := blknum * BlockSize
	copy(buf, s.data[off:off+uint64(len(buf))])

	return nil
}

func (s *store) write(blknum uint64, buf []byte) liberr.Error {
	if err := s.checkAllocated(blknum, uint32(len(buf))); err != nil {
		return err
	}

	s.dmu.Lock()
	defer s.dmu.Unlock()

	off := blknum * BlockSize
	copy(s.data[off:off+uint64(len(buf))], buf)

	return nil
}
