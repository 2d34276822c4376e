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

// Package noc maps logical node numbers to transport tags and partitions
// the tag space by connector family, so mailbox, portal and sync traffic to
// the same node never alias onto the same transport path.
package noc

import "fmt"

// NodeId identifies one processing element in the NoC, stable for a run.
type NodeId int

// Kind classifies a node as compute or I/O.
type Kind uint8

const (
	KindCompute Kind = iota
	KindIO
)

// NameMax is the maximum length, including the terminating byte, of a name
// bound via the name server (spec §3, NAME_MAX).
const NameMax = 64

// Reserved tags 0-1 belong to the transport itself.
const (
	tagReserved = 2

	// TagMailbox is the mailbox family's tag offset.
	TagMailbox = tagReserved
)

// Topology computes per-family tag offsets and node types for a fixed-size
// NoC of n nodes, the first ioNodes of which are I/O nodes.
type Topology struct {
	nNodes  int
	ioNodes int
}

// NewTopology returns a Topology of nNodes total nodes, the first ioNodes of
// which are I/O nodes (the rest are compute nodes).
func NewTopology(nNodes, ioNodes int) *Topology {
	return &Topology{nNodes: nNodes, ioNodes: ioNodes}
}

// NumNodes returns the total node count.
func (t *Topology) NumNodes() int {
	return t.nNodes
}

// KindOf returns whether node is a compute or I/O node.
func (t *Topology) KindOf(node NodeId) Kind {
	if int(node) < t.ioNodes {
		return KindIO
	}

	return KindCompute
}

// Valid reports whether node lies in [0, NumNodes).
func (t *Topology) Valid(node NodeId) bool {
	return node >= 0 && int(node) < t.nNodes
}

// TagMailbox returns the mailbox-family tag for node.
func (t *Topology) TagMailbox(node NodeId) int {
	return TagMailbox + int(node)%t.nNodes
}

// TagPortal returns the portal-family tag for node (spec §6, T_P = T_M + N_NODES).
func (t *Topology) TagPortal(node NodeId) int {
	return TagMailbox + t.nNodes + int(node)%t.nNodes
}

// TagSync returns the sync-family tag for node (spec §6, T_S = T_P + N_NODES).
func (t *Topology) TagSync(node NodeId) int {
	return TagMailbox + 2*t.nNodes + int(node)%t.nNodes
}

// Path formats the transport path "node:tag" a Transport implementation
// opens an endpoint on.
func Path(node NodeId, tag int) string {
	return fmt.Sprintf("%d:%d", int(node), tag)
}
