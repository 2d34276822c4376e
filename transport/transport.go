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

// Package transport is the abstract contract every connector family
// (mailbox, portal, sync) is built on. A Transport opens Endpoints on a
// path that encodes (node, tag); anything that implements it, including an
// in-process simulated fabric, can back the connector layer above.
package transport

import (
	"context"

	liberr "github.com/nabbar/nocrt/errors"
)

// MinPkg is the transport abstraction's error code range (C1).
const MinPkg = liberr.MinPkgTransport

// Direction fixes an endpoint to one side of a connection, mirroring the
// read-only/write-only split every connector imposes on its descriptors.
type Direction uint8

const (
	DirRead Direction = iota
	DirWrite
)

func (d Direction) String() string {
	if d == DirWrite {
		return "write"
	}

	return "read"
}

// StatKind selects which counter Endpoint.Stats reports.
type StatKind uint8

const (
	StatVolume StatKind = iota
	StatLatency
)

// AIOCB is a handle on an asynchronous gather-read begun by
// Endpoint.AsyncReadBegin; Wait blocks until the configured trigger count of
// producers has delivered into the read buffer.
type AIOCB interface {
	Wait(ctx context.Context) (int, liberr.Error)
}

// Endpoint is one opened side of a transport path.
type Endpoint interface {
	// Close releases the endpoint. Further use returns EINVAL.
	Close() liberr.Error

	// Read blocks until one message is available and copies it into buf,
	// returning the number of bytes copied.
	Read(ctx context.Context, buf []byte) (int, liberr.Error)

	// Write blocks until the message can be delivered, returning the
	// number of bytes accepted.
	Write(ctx context.Context, buf []byte) (int, liberr.Error)

	// IoctlSetMatch configures an N-to-1 rendezvous target: Read on this
	// endpoint only completes once the accumulated set of received
	// sender bits equals mask.
	IoctlSetMatch(mask uint64) liberr.Error

	// IoctlSetRxRanks configures a 1-to-N fan-out: Write on this endpoint
	// delivers to every path listed instead of its own single peer.
	IoctlSetRxRanks(paths []string) liberr.Error

	// AsyncReadBegin starts a gather-read that completes once trigger
	// deliveries have arrived in buf. Deliveries are counted, not senders:
	// two deliveries from the same producer count twice.
	AsyncReadBegin(ctx context.Context, buf []byte, trigger int) (AIOCB, liberr.Error)

	// Stats reports a cumulative counter for this endpoint.
	Stats(kind StatKind) uint64
}

// Transport opens Endpoints on a path. path encodes (node, tag); two Opens
// on the same path from opposite Directions are peers of the same link.
type Transport interface {
	Open(path string, dir Direction) (Endpoint, liberr.Error)
}
