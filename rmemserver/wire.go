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

// Package rmemserver serves a block-addressed remote store (spec §4.8):
// ALLOC/FREE pick and release blocks in a bitmap, READ/WRITE move bulk data
// over a portal after an ACK on the control mailbox.
package rmemserver

import (
	"encoding/binary"

	"github.com/nabbar/nocrt/mailbox"
	"github.com/nabbar/nocrt/noc"
)

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

// message is the RMEM control message: header {source, opcode, mailbox
// port, portal port} plus body {blknum, size, errcode} (spec §6).
type message struct {
	Source      noc.NodeId
	Op          opcode
	MailboxPort int32
	PortalPort  int32
	Blknum      uint64
	Size        uint32
	Errcode     int32
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
	binary.LittleEndian.PutUint32(buf[offMbxPort:], uint32(m.MailboxPort))
	binary.LittleEndian.PutUint32(buf[offPrtPort:], uint32(m.PortalPort))
	binary.LittleEndian.PutUint64(buf[offBlknum:], m.Blknum)
	binary.LittleEndian.PutUint32(buf[offSize:], m.Size)
	binary.LittleEndian.PutUint32(buf[offErrcode:], uint32(m.Errcode))

	return buf
}

func decode(buf []byte) message {
	var m message

	m.Op = opcode(buf[offOp])
	m.Source = noc.NodeId(int32(binary.LittleEndian.Uint32(buf[offSrc:])))
	m.MailboxPort = int32(binary.LittleEndian.Uint32(buf[offMbxPort:]))
	m.PortalPort = int32(binary.LittleEndian.Uint32(buf[offPrtPort:]))
	m.Blknum = binary.LittleEndian.Uint64(buf[offBlknum:])
	m.Size = binary.LittleEndian.Uint32(buf[offSize:])
	m.Errcode = int32(binary.LittleEndian.Uint32(buf[offErrcode:]))

	return m
}
