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

// Package nameclient is the narrow interface mailbox and portal bind named
// descriptors through, kept free of the nameserver package's own mailbox
// traffic so the dependency runs one way: nameserver depends on mailbox,
// never the reverse.
package nameclient

import (
	liberr "github.com/nabbar/nocrt/errors"
	"github.com/nabbar/nocrt/noc"
)

// Client resolves and maintains the process-visible name table (spec §4.7).
type Client interface {
	// Lookup resolves name to the node it is currently bound to, or
	// ENOENT if no such binding exists.
	Lookup(name string) (noc.NodeId, liberr.Error)

	// Link binds name to node. Fails with EINVAL if the binding is refused:
	// name already exists anywhere in the table, or node has no free row.
	Link(node noc.NodeId, name string) liberr.Error

	// Unlink removes name's binding. Fails with ENOENT if name is not bound.
	Unlink(name string) liberr.Error
}
