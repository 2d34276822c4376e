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

import "fmt"

// Kind is the small, closed set of POSIX-style error classes every
// connector, server and client in the runtime can raise (spec §7). It is
// added to a subsystem's MinPkgXxx value (modules.go) to produce a unique
// registered CodeError.
type Kind uint16

const (
	// EINVAL - malformed argument: bad id, null pointer, size out of range, bad name.
	EINVAL Kind = 1
	// ENOENT - no such name / no free descriptor.
	ENOENT Kind = 2
	// EAGAIN - transient resource shortage or transport failure; retryable.
	EAGAIN Kind = 3
	// ENOMEM - remote block allocator exhausted.
	ENOMEM Kind = 4
	// EPERM - operation attempted by a non-owner.
	EPERM Kind = 5
	// ENOTSUP - operation inconsistent with descriptor mode.
	ENOTSUP Kind = 6
	// EFAULT - bad remote address or uncached page lookup failure.
	EFAULT Kind = 7
)

// kindSpan must stay larger than the highest Kind value so two subsystems'
// ranges (modules.go) never overlap.
const kindSpan = 100

func (k Kind) String() string {
	switch k {
	case EINVAL:
		return "EINVAL"
	case ENOENT:
		return "ENOENT"
	case EAGAIN:
		return "EAGAIN"
	case ENOMEM:
		return "ENOMEM"
	case EPERM:
		return "EPERM"
	case ENOTSUP:
		return "ENOTSUP"
	case EFAULT:
		return "EFAULT"
	default:
		return "EUNKNOWN"
	}
}

// code composes a subsystem's code range with a Kind into one CodeError.
func code(min CodeError, k Kind) CodeError {
	return min + CodeError(k)
}

// KindOf recovers the Kind carried by an Error produced via Errno, or 0 if
// e does not originate from this package's registered ranges.
func KindOf(e error) Kind {
	err := Get(e)
	if err == nil {
		return 0
	}

	return Kind(err.GetCode().Uint16() % kindSpan)
}

// Errno builds an Error scoped to one subsystem's code range, carrying the
// given Kind and a formatted message, with no parent error.
func Errno(min CodeError, k Kind, format string, args ...interface{}) Error {
	return New(code(min, k).Uint16(), fmt.Sprintf(format, args...))
}

// ErrnoWrap is Errno plus explicit parent errors, used when a connector
// needs to chain a lower-level transport failure under a POSIX kind.
func ErrnoWrap(min CodeError, k Kind, parent error, format string, args ...interface{}) Error {
	return New(code(min, k).Uint16(), fmt.Sprintf(format, args...), parent)
}

// IsKind reports whether e carries the given Kind, regardless of subsystem.
func IsKind(e error, k Kind) bool {
	return KindOf(e) == k
}

func init() {
	RegisterIdFctMessage(0, func(c CodeError) string {
		return Kind(c.Uint16() % kindSpan).String()
	})
}
