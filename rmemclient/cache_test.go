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

	libatm "github.com/nabbar/nocrt/atomic"
	"github.com/nabbar/nocrt/noc"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func newTestCache(capacity int) *cache {
	c := &cache{
		capacity: capacity,
		lines:    libatm.NewMapTyped[int, *cacheLine](),
		dial:     func(noc.NodeId) *rpc { return nil },
	}

	for i := 0; i < capacity; i++ {
		c.lines.Store(i, &cacheLine{})
	}

	return c
}

var _ = Describe("cache", func() {
	It("serves a fetch for an already-resident block without dialing out", func() {
		c := newTestCache(2)

		line, _ := c.lines.Load(0)
		line.valid = true
		line.server = 0
		line.blknum = 0
		line.data = make([]byte, BlockSize)

		got, err := c.fetch(context.Background(), remoteBlock{server: 0, blknum: 0})
		Expect(err).To(BeNil())
		Expect(got).To(BeIdenticalTo(line))
	})

	It("drop invalidates a line only when it still mirrors the given block", func() {
		c := newTestCache(1)

		line, _ := c.lines.Load(0)
		line.valid = true
		line.server = 0
		line.blknum = 7
		line.data = make([]byte, BlockSize)

		c.drop(remoteBlock{server: 0, blknum: 8})
		Expect(line.valid).To(BeTrue())

		c.drop(remoteBlock{server: 0, blknum: 7})
		Expect(line.valid).To(BeFalse())
	})

	It("maps blocks to slots by blknum modulo capacity", func() {
		c := newTestCache(4)
		Expect(c.slotFor(0)).To(Equal(0))
		Expect(c.slotFor(4)).To(Equal(0))
		Expect(c.slotFor(5)).To(Equal(1))
	})
})
