/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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

package errors

// Per-subsystem code ranges, mirroring how a monolithic runtime partitions
// its error-code space so two subsystems never emit colliding codes.
const (
	MinPkgPool       = 100  // resource pool / descriptor allocation (C2)
	MinPkgTransport  = 200  // transport abstraction (C1)
	MinPkgNoC        = 300  // node/tag naming (C3)
	MinPkgMailbox    = 400  // mailbox connector (C4)
	MinPkgPortal     = 500  // portal connector (C5)
	MinPkgSync       = 600  // sync connector (C6)
	MinPkgRuntime    = 700  // named-connector runtime (C7)
	MinPkgNameServer = 800  // name server (C8)
	MinPkgRmemServer = 900  // RMEM server (C9)
	MinPkgRmemClient = 1000 // RMEM client / page cache (C10)
	MinPkgConfig     = 1100 // server/node configuration loading

	MinAvailable = 2000
)
