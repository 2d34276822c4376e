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

package nameserver_test

import (
	"context"
	"time"

	liberr "github.com/nabbar/nocrt/errors"
	"github.com/nabbar/nocrt/mailbox"
	"github.com/nabbar/nocrt/nameserver"
	"github.com/nabbar/nocrt/noc"
	"github.com/nabbar/nocrt/transport/memnet"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Client/Server round-trip", func() {
	It("resolves the reserved /io0 name and links/unlinks client-issued names", func() {
		fab := memnet.New()
		topo := noc.NewTopology(4, 1)

		srvMbx := mailbox.New(0, topo, fab, nil, 4)
		srv, err := nameserver.NewServer(0, 0, topo, srvMbx, fab, nil)
		Expect(err).To(BeNil())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan liberr.Error, 1)
		go func() { done <- srv.Serve(ctx) }()

		cli := nameserver.NewClient(2, 0, topo, fab)

		node, lerr := cli.Lookup(nameserver.ReservedName)
		Expect(lerr).To(BeNil())
		Expect(node).To(Equal(noc.NodeId(0)))

		Expect(cli.Link(2, "/proc2")).To(BeNil())

		resolved, lerr := cli.Lookup("/proc2")
		Expect(lerr).To(BeNil())
		Expect(resolved).To(Equal(noc.NodeId(2)))

		Expect(cli.Unlink("/proc2")).To(BeNil())

		_, lerr = cli.Lookup("/proc2")
		Expect(lerr).ToNot(BeNil())
		Expect(liberr.IsKind(lerr, liberr.ENOENT)).To(BeTrue())

		cancel()
		Eventually(done, time.Second).Should(Receive())
	})

	It("stops Serve on an EXIT request", func() {
		fab := memnet.New()
		topo := noc.NewTopology(4, 1)

		srvMbx := mailbox.New(0, topo, fab, nil, 4)
		srv, err := nameserver.NewServer(0, 0, topo, srvMbx, fab, nil)
		Expect(err).To(BeNil())

		done := make(chan liberr.Error, 1)
		go func() { done <- srv.Serve(context.Background()) }()

		cli := nameserver.NewClient(3, 0, topo, fab)
		Expect(cli.Exit()).To(BeNil())

		Eventually(done, time.Second).Should(Receive(BeNil()))
	})
})
