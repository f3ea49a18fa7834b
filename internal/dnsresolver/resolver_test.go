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

package dnsresolver

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/lindb/corerun/internal/coro"
	"github.com/lindb/corerun/internal/metrics"
	"github.com/lindb/corerun/internal/reactor"
	"github.com/lindb/corerun/internal/xtask"
)

// mockAnswer is one fabricated answer record for the mock server to
// emit.
type mockAnswer struct {
	rtype rrType
	addr  net.IP
	cname string
	ttl   uint32
}

// mockDNSServer reproduces the fixture shape of
// original_source/core/src/clients/dns/net_resolver_test.cpp's
// DnsServerMock: a single callback decides the answer (or failure) for
// every incoming query.
type mockDNSServer struct {
	conn    *net.UDPConn
	handler func(name string, qtype rrType) ([]mockAnswer, bool) // ok=false -> SERVFAIL
	done    chan struct{}
}

func newMockDNSServer(t *testing.T, handler func(name string, qtype rrType) ([]mockAnswer, bool)) *mockDNSServer {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	s := &mockDNSServer{conn: conn, handler: handler, done: make(chan struct{})}
	go s.serve()
	t.Cleanup(func() {
		close(s.done)
		conn.Close()
	})
	return s
}

func (s *mockDNSServer) addr() string { return s.conn.LocalAddr().String() }

func (s *mockDNSServer) serve() {
	buf := make([]byte, 512)
	for {
		n, peer, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				continue
			}
		}
		msg, err := decodeMessage(buf[:n])
		if err != nil {
			continue
		}
		answers, ok := s.handler(msg.question.name, msg.question.qtype)
		resp := s.encodeResponse(msg.id, msg.question, answers, ok)
		_, _ = s.conn.WriteToUDP(resp, peer)
	}
}

func (s *mockDNSServer) encodeResponse(id uint16, q question, answers []mockAnswer, ok bool) []byte {
	rc := rcodeNoError
	if !ok {
		rc = rcodeServFail
	}
	buf := make([]byte, 0, 128)
	var hdr [12]byte
	hdr[0], hdr[1] = byte(id>>8), byte(id)
	hdr[2] = 0x81 // QR=1, RD=1
	hdr[3] = byte(rc)
	hdr[4], hdr[5] = 0, 1 // QDCOUNT
	ancount := uint16(len(answers))
	hdr[6], hdr[7] = byte(ancount>>8), byte(ancount)
	buf = append(buf, hdr[:]...)

	qname, _ := encodeName(q.name)
	buf = append(buf, qname...)
	buf = append(buf, byte(q.qtype>>8), byte(q.qtype), 0, byte(classIN))

	for _, a := range answers {
		aname, _ := encodeName(q.name)
		buf = append(buf, aname...)
		buf = append(buf, byte(a.rtype>>8), byte(a.rtype))
		buf = append(buf, 0, byte(classIN))
		buf = append(buf, byte(a.ttl>>24), byte(a.ttl>>16), byte(a.ttl>>8), byte(a.ttl))
		switch a.rtype {
		case typeA:
			ip4 := a.addr.To4()
			buf = append(buf, 0, 4)
			buf = append(buf, ip4...)
		case typeAAAA:
			ip6 := a.addr.To16()
			buf = append(buf, 0, 16)
			buf = append(buf, ip6...)
		case typeCNAME:
			cn, _ := encodeName(a.cname)
			buf = append(buf, byte(len(cn)>>8), byte(len(cn)))
			buf = append(buf, cn...)
		}
	}
	return buf
}

func newTestResolver(t *testing.T, server *mockDNSServer) *Resolver {
	t.Helper()
	pool := coro.New("dns-test-coros", 32, 8, nil)
	proc := xtask.New("dns-test-processor", 4, pool, false, nil)
	t.Cleanup(func() { proc.Stop(time.Second) })
	react := reactor.New("dns-test-reactor")
	t.Cleanup(react.Close)

	cfg := DefaultConfig(server.addr())
	cfg.BackoffBase = time.Millisecond
	cfg.QueryTimeout = time.Second

	r, err := New(cfg, proc, react, metrics.NewResolver(prometheus.NewRegistry()))
	require.NoError(t, err)
	return r
}

var v4addr1 = net.IPv4(77, 88, 55, 55)
var v4addr2 = net.IPv4(77, 88, 55, 60)
var v6addr = net.ParseIP("2a02:6b8:a::a")

func TestResolver_Smoke(t *testing.T) {
	server := newMockDNSServer(t, func(name string, qtype rrType) ([]mockAnswer, bool) {
		switch {
		case qtype == typeA && (name == "yandex.ru" || name == "v4.yandex.ru"):
			return []mockAnswer{{rtype: typeA, addr: v4addr1, ttl: 13}, {rtype: typeA, addr: v4addr2, ttl: 42}}, true
		case qtype == typeAAAA && (name == "yandex.ru" || name == "v6.yandex.ru"):
			return []mockAnswer{{rtype: typeAAAA, addr: v6addr, ttl: 1337}}, true
		case qtype == typeAAAA && name == "v4.yandex.ru", qtype == typeA && name == "v6.yandex.ru":
			return nil, true
		default:
			return nil, false
		}
	})
	r := newTestResolver(t, server)

	res, err := r.Resolve(context.Background(), "yandex.ru")
	require.NoError(t, err)
	require.Len(t, res.Addrs, 3)
	require.True(t, res.Addrs[0].Equal(v6addr), "AAAA must be ordered first")
	require.Equal(t, 13*time.Second, res.TTL)

	res, err = r.Resolve(context.Background(), "v4.yandex.ru")
	require.NoError(t, err)
	require.Len(t, res.Addrs, 2)
	require.Equal(t, 13*time.Second, res.TTL)

	res, err = r.Resolve(context.Background(), "v6.yandex.ru")
	require.NoError(t, err)
	require.Len(t, res.Addrs, 1)
	require.Equal(t, 1337*time.Second, res.TTL)
}

func TestResolver_EmptyResponseIsNotAnError(t *testing.T) {
	server := newMockDNSServer(t, func(name string, qtype rrType) ([]mockAnswer, bool) {
		return nil, true
	})
	r := newTestResolver(t, server)

	res, err := r.Resolve(context.Background(), "test")
	require.NoError(t, err)
	require.Empty(t, res.Addrs)
}

func TestResolver_CnameChainIsFollowed(t *testing.T) {
	server := newMockDNSServer(t, func(name string, qtype rrType) ([]mockAnswer, bool) {
		switch {
		case name == "test" && qtype == typeA:
			return []mockAnswer{{rtype: typeCNAME, cname: "yandex.ru"}}, true
		case name == "test" && qtype == typeAAAA:
			return []mockAnswer{{rtype: typeCNAME, cname: "yandex.ru"}}, true
		case name == "yandex.ru" && qtype == typeA:
			return []mockAnswer{{rtype: typeA, addr: v4addr1, ttl: 9}, {rtype: typeA, addr: v4addr2, ttl: 8}}, true
		case name == "yandex.ru" && qtype == typeAAAA:
			return []mockAnswer{{rtype: typeAAAA, addr: v6addr, ttl: 7}}, true
		default:
			return nil, false
		}
	})
	r := newTestResolver(t, server)

	res, err := r.Resolve(context.Background(), "test")
	require.NoError(t, err)
	require.Len(t, res.Addrs, 3)
	require.True(t, res.Addrs[0].Equal(v6addr))
	// ttl is the min across contributing families: min(min(9,8), 7) == 7.
	require.Equal(t, 7*time.Second, res.TTL)
}

func TestResolver_TotalFailureIsNotResolved(t *testing.T) {
	server := newMockDNSServer(t, func(name string, qtype rrType) ([]mockAnswer, bool) {
		return nil, false
	})
	r := newTestResolver(t, server)

	_, err := r.Resolve(context.Background(), "test")
	require.Error(t, err)
}

func TestResolver_PartialFailureReturnsSurvivingFamily(t *testing.T) {
	var servfails int64
	server := newMockDNSServer(t, func(name string, qtype rrType) ([]mockAnswer, bool) {
		if name == "test" && qtype == typeAAAA {
			return []mockAnswer{{rtype: typeAAAA, addr: v6addr, ttl: 300}}, true
		}
		atomic.AddInt64(&servfails, 1)
		return nil, false
	})
	r := newTestResolver(t, server)

	res, err := r.Resolve(context.Background(), "test")
	require.NoError(t, err)
	require.GreaterOrEqual(t, atomic.LoadInt64(&servfails), int64(1))
	require.Len(t, res.Addrs, 1)
	require.True(t, res.Addrs[0].Equal(v6addr))
	require.Equal(t, 300*time.Second, res.TTL)
}
