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

// Package nameserver resolves string names to node numbers (spec §4.7): a
// request/response protocol over mailbox, and a server holding the
// (node, name) table.
package nameserver

import (
	"encoding/binary"

	"github.com/nabbar/nocrt/mailbox"
	"github.com/nabbar/nocrt/noc"
)

type opcode uint8

const (
	opExit    opcode = 0
	opLookup  opcode = 1
	opLink    opcode = 2
	opUnlink  opcode = 3
	opSuccess opcode = 10
	opFail    opcode = 11
)

// message is the name-server control message: header {source, opcode, port,
// seq} plus body {node, name} (spec §6).
type message struct {
	Source noc.NodeId
	Op     opcode
	Port   int32
	Seq    uint32
	Node   noc.NodeId
	Name   string
}

const (
	offOp    = 0
	offSrc   = 1
	offPort  = 5
	offSeq   = 9
	offNode  = 13
	offName  = 17
)

func encode(m message) []byte {
	buf := make([]byte, mailbox.MsgSize)

	buf[offOp] = byte(m.Op)
	binary.LittleEndian.PutUint32(buf[offSrc:], uint32(m.Source))
	binary.LittleEndian.PutUint32(buf[offPort:], uint32(m.Port))
	binary.LittleEndian.PutUint32(buf[offSeq:], m.Seq)
	binary.LittleEndian.PutUint32(buf[offNode:], uint32(m.Node))

	name := []byte(m.Name)
	if len(name) > noc.NameMax-1 {
		name = name[:noc.NameMax-1]
	}
	copy(buf[offName:], name)

	return buf
}

func decode(buf []byte) message {
	var m message

	m.Op = opcode(buf[offOp])
	m.Source = noc.NodeId(int32(binary.LittleEndian.Uint32(buf[offSrc:])))
	m.Port = int32(binary.LittleEndian.Uint32(buf[offPort:]))
	m.Seq = binary.LittleEndian.Uint32(buf[offSeq:])
	m.Node = noc.NodeId(int32(binary.LittleEndian.Uint32(buf[offNode:])))

	field := buf[offName:]
	end := len(field)
	for i, c := range field {
		if c == 0 {
			end = i
			break
		}
	}
	m.Name = string(field[:end])

	return m
}
