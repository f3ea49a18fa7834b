// Licensed to LinDB under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. LinDB licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

// wire.go hand-rolls the minimal RFC 1035 subset the resolver needs:
// header, one question, and A/AAAA/CNAME answer records. No DNS
// library appears anywhere in the retrieved example corpus, so this is
// grounded directly on the wire semantics pinned down by
// original_source/core/src/clients/dns/net_resolver_test.cpp rather
// than on a teacher file (see DESIGN.md).
package dnsresolver

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strings"
)

type rrType uint16

const (
	typeA     rrType = 1
	typeCNAME rrType = 5
	typeAAAA  rrType = 28
)

const classIN = 1

// rcode mirrors the subset of RFC 1035 response codes this resolver
// distinguishes.
type rcode uint8

const (
	rcodeNoError  rcode = 0
	rcodeServFail rcode = 2
)

type question struct {
	name  string
	qtype rrType
}

type answer struct {
	name  string
	rtype rrType
	ttl   uint32
	// exactly one of addr/cname is set, depending on rtype.
	addr  net.IP
	cname string
}

type message struct {
	id       uint16
	rcode    rcode
	question question
	answers  []answer
}

func encodeQuery(id uint16, name string, qtype rrType) ([]byte, error) {
	buf := make([]byte, 0, 64)
	var hdr [12]byte
	binary.BigEndian.PutUint16(hdr[0:2], id)
	binary.BigEndian.PutUint16(hdr[2:4], 0x0100) // RD=1, standard query
	binary.BigEndian.PutUint16(hdr[4:6], 1)      // QDCOUNT
	buf = append(buf, hdr[:]...)

	encoded, err := encodeName(name)
	if err != nil {
		return nil, err
	}
	buf = append(buf, encoded...)
	var tail [4]byte
	binary.BigEndian.PutUint16(tail[0:2], uint16(qtype))
	binary.BigEndian.PutUint16(tail[2:4], classIN)
	buf = append(buf, tail[:]...)
	return buf, nil
}

func encodeName(name string) ([]byte, error) {
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		return []byte{0}, nil
	}
	var buf []byte
	for _, label := range strings.Split(name, ".") {
		if len(label) == 0 || len(label) > 63 {
			return nil, fmt.Errorf("dns: invalid label %q in name %q", label, name)
		}
		buf = append(buf, byte(len(label)))
		buf = append(buf, label...)
	}
	buf = append(buf, 0)
	return buf, nil
}

var errTruncated = errors.New("dns: truncated message")

func decodeMessage(buf []byte) (*message, error) {
	if len(buf) < 12 {
		return nil, errTruncated
	}
	id := binary.BigEndian.Uint16(buf[0:2])
	flags := binary.BigEndian.Uint16(buf[2:4])
	rc := rcode(flags & 0x0F)
	qdCount := binary.BigEndian.Uint16(buf[4:6])
	anCount := binary.BigEndian.Uint16(buf[6:8])

	off := 12
	var q question
	for i := 0; i < int(qdCount); i++ {
		name, next, err := decodeName(buf, off)
		if err != nil {
			return nil, err
		}
		if next+4 > len(buf) {
			return nil, errTruncated
		}
		qtype := rrType(binary.BigEndian.Uint16(buf[next : next+2]))
		off = next + 4
		if i == 0 {
			q = question{name: name, qtype: qtype}
		}
	}

	msg := &message{id: id, rcode: rc, question: q}
	for i := 0; i < int(anCount); i++ {
		name, next, err := decodeName(buf, off)
		if err != nil {
			return nil, err
		}
		if next+10 > len(buf) {
			return nil, errTruncated
		}
		rtype := rrType(binary.BigEndian.Uint16(buf[next : next+2]))
		ttl := binary.BigEndian.Uint32(buf[next+4 : next+8])
		rdlen := int(binary.BigEndian.Uint16(buf[next+8 : next+10]))
		rdStart := next + 10
		if rdStart+rdlen > len(buf) {
			return nil, errTruncated
		}
		rdata := buf[rdStart : rdStart+rdlen]
		off = rdStart + rdlen

		a := answer{name: name, rtype: rtype, ttl: ttl}
		switch rtype {
		case typeA:
			if len(rdata) != 4 {
				return nil, fmt.Errorf("dns: bad A rdata length %d", len(rdata))
			}
			a.addr = net.IP(append([]byte{}, rdata...)).To4()
		case typeAAAA:
			if len(rdata) != 16 {
				return nil, fmt.Errorf("dns: bad AAAA rdata length %d", len(rdata))
			}
			a.addr = net.IP(append([]byte{}, rdata...))
		case typeCNAME:
			cname, _, err := decodeName(buf, rdStart)
			if err != nil {
				return nil, err
			}
			a.cname = cname
		default:
			// unknown record types are skipped, not fatal.
			continue
		}
		msg.answers = append(msg.answers, a)
	}
	return msg, nil
}

// decodeName decodes a (possibly compressed) name starting at off,
// returning the name and the offset immediately after it in the
// ORIGINAL message (pointer targets do not advance that cursor).
func decodeName(buf []byte, off int) (string, int, error) {
	var labels []string
	cursor := off
	jumped := false
	end := off
	guard := 0
	for {
		guard++
		if guard > 128 {
			return "", 0, fmt.Errorf("dns: name decompression loop")
		}
		if cursor >= len(buf) {
			return "", 0, errTruncated
		}
		b := buf[cursor]
		if b == 0 {
			cursor++
			if !jumped {
				end = cursor
			}
			break
		}
		if b&0xC0 == 0xC0 {
			if cursor+1 >= len(buf) {
				return "", 0, errTruncated
			}
			ptr := int(binary.BigEndian.Uint16(buf[cursor:cursor+2]) & 0x3FFF)
			if !jumped {
				end = cursor + 2
			}
			jumped = true
			cursor = ptr
			continue
		}
		length := int(b)
		cursor++
		if cursor+length > len(buf) {
			return "", 0, errTruncated
		}
		labels = append(labels, string(buf[cursor:cursor+length]))
		cursor += length
	}
	return strings.Join(labels, "."), end, nil
}
