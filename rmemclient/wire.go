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

// Package rmemclient is the caller side of the RMEM protocol (spec §4.9):
// a remote-address table handing out virtual pointers backed by blocks
// allocated on one or more rmemserver processes, and a direct-mapped page
// cache fronting rread/rwrite/rfault.
package rmemclient

import (
	"encoding/binary"

	"github.com/nabbar/nocrt/mailbox"
	"github.com/nabbar/nocrt/noc"
)

// The wire layout mirrors rmemserver's control message exactly (spec §6);
// the two packages are independent callers/servers of the same protocol,
// so each carries its own copy of the codec rather than sharing
// unexported types across a package boundary.
type opcode uint8

const (
	opExit    opcode = 0
	opRead    opcode = 1
	opWrite   opcode = 2
	opAlloc   opcode = 3
	opFree    opcode = 4
	opAck     opcode = 5
	opSuccess opcode = 10
	opFail    opcode = 11
)

type message struct {
	Source  noc.NodeId
	Op      opcode
	Blknum  uint64
	Size    uint32
	Errcode int32
}

const (
	offOp      = 0
	offSrc     = 1
	offMbxPort = 5
	offPrtPort = 9
	offBlknum  = 13
	offSize    = 21
	offErrcode = 25
)

func encode(m message) []byte {
	buf := make([]byte, mailbox.MsgSize)

	buf[offOp] = byte(m.Op)
	binary.LittleEndian.PutUint32(buf[offSrc:], uint32(m.Source))
	binary.LittleEndian.PutUint64(buf[offBlknum:], m.Blknum)
	binary.LittleEndian.PutUint32(buf[offSize:], m.Size)
	binary.LittleEndian.PutUint32(buf[offErrcode:], uint32(m.Errcode))

	return buf
}

func decode(buf []byte) message {
	var m message

	m.Op = opcode(buf[offOp])
	m.Source = noc.NodeId(int32(binary.LittleEndian.Uint32(buf[offSrc:])))
	m.Blknum = binary.LittleEndian.Uint64(buf[offBlknum:])
	m.Size = binary.LittleEndian.Uint32(buf[offSize:])
	m.Errcode = int32(binary.LittleEndian.Uint32(buf[offErrcode:]))

	return m
}
