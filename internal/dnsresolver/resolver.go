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

// Package dnsresolver implements the DNS resolver exemplar (spec.md
// §4.8): TTL-aware asynchronous name resolution over UDP, with
// parallel A/AAAA dispatch, CNAME indirection, SERVFAIL retry and
// partial-failure tolerance.
//
// It exists specifically to exercise internal/xtask and
// internal/reactor end to end (spec.md §1: "the canonical small
// example of the runtime's contracts"); its exact behavioral contract
// is pinned down scenario-by-scenario by
// original_source/core/src/clients/dns/net_resolver_test.cpp, kept in
// the workspace as the oracle for dnsresolver/resolver_test.go.
package dnsresolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/lindb/corerun/internal/errs"
	"github.com/lindb/corerun/internal/metrics"
	"github.com/lindb/corerun/internal/reactor"
	"github.com/lindb/corerun/internal/xtask"
	"github.com/lindb/corerun/pkg/logger"
)

// Config configures a Resolver.
type Config struct {
	// Servers are "host:port" UDP name server addresses. Only the
	// first one is queried; the others are not used.
	Servers []string
	// MaxAttempts bounds SERVFAIL retries per query (spec.md §4.8:
	// "retried up to max_attempts times with exponential backoff").
	MaxAttempts int
	// BackoffBase is the first retry delay; doubled each attempt.
	BackoffBase time.Duration
	// MaxChainLength bounds CNAME indirection depth.
	MaxChainLength int
	// QueryTimeout bounds a single query attempt's round trip.
	QueryTimeout time.Duration
	// NegativeTTL is the floor TTL used for empty (NODATA) answers.
	NegativeTTL time.Duration
	// CacheSize bounds the number of cached names.
	CacheSize int
}

// DefaultConfig returns reasonable defaults.
func DefaultConfig(servers ...string) Config {
	return Config{
		Servers:        servers,
		MaxAttempts:    3,
		BackoffBase:    50 * time.Millisecond,
		MaxChainLength: 8,
		QueryTimeout:   2 * time.Second,
		NegativeTTL:    5 * time.Second,
		CacheSize:      4096,
	}
}

// Result is a completed resolution (spec.md §3 DNS cache entry, minus
// the cache-internal source tag).
type Result struct {
	Addrs      []net.IP
	TTL        time.Duration
	ReceivedAt time.Time
}

// Resolver resolves hostnames using the configured name servers, all
// I/O dispatched as tasks on proc and suspended on react (spec.md
// §4.8: "the resolver never blocks a worker thread").
type Resolver struct {
	cfg     Config
	proc    *xtask.Processor
	react   *reactor.Reactor
	cache   *cache
	metrics *metrics.Resolver
	log     *zap.Logger
}

// New constructs a resolver. proc is the task processor queries run
// on; react drives retry backoff timers.
func New(cfg Config, proc *xtask.Processor, react *reactor.Reactor, m *metrics.Resolver) (*Resolver, error) {
	if len(cfg.Servers) == 0 {
		return nil, errs.New(errs.KindInvariant, "dnsresolver: at least one server is required")
	}
	c, err := newCache(cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{
		cfg:     cfg,
		proc:    proc,
		react:   react,
		cache:   c,
		metrics: m,
		log:     logger.GetLogger("DnsResolver", "default"),
	}, nil
}

// Resolve resolves name, preferring a live cache entry, otherwise
// dispatching concurrent A/AAAA queries (spec.md §4.8 algorithm).
func (r *Resolver) Resolve(ctx context.Context, name string) (Result, error) {
	now := time.Now()
	if e, ok := r.cache.get(name, now); ok {
		r.metrics.CacheHits.Inc()
		return Result{Addrs: e.addrs, TTL: e.ttl, ReceivedAt: e.receivedAt}, nil
	}
	r.metrics.CacheMisses.Inc()

	taskA := xtask.Spawn(ctx, r.proc, func(c context.Context, _ *xtask.Task[chainResult]) (chainResult, error) {
		return r.queryChain(c, name, typeA)
	})
	taskAAAA := xtask.Spawn(ctx, r.proc, func(c context.Context, _ *xtask.Task[chainResult]) (chainResult, error) {
		return r.queryChain(c, name, typeAAAA)
	})

	resAAAA, errAAAA := taskAAAA.Await(ctx)
	resA, errA := taskA.Await(ctx)

	if errA != nil && errAAAA != nil {
		r.metrics.NotResolved.Inc()
		return Result{}, errs.Wrap(errs.KindNotResolved, fmt.Errorf("A: %v, AAAA: %v", errA, errAAAA))
	}

	var addrs []net.IP
	var ttls []time.Duration
	if errAAAA == nil && len(resAAAA.addrs) > 0 {
		addrs = append(addrs, resAAAA.addrs...)
		ttls = append(ttls, resAAAA.ttl)
	}
	if errA == nil && len(resA.addrs) > 0 {
		addrs = append(addrs, resA.addrs...)
		ttls = append(ttls, resA.ttl)
	}

	receivedAt := time.Now()
	ttl := r.cfg.NegativeTTL
	src := sourceNetwork
	if len(ttls) > 0 {
		sort.Slice(ttls, func(i, j int) bool { return ttls[i] < ttls[j] })
		ttl = ttls[0]
	}

	result := Result{Addrs: addrs, TTL: ttl, ReceivedAt: receivedAt}
	r.cache.put(cacheEntry{name: name, addrs: addrs, receivedAt: receivedAt, ttl: ttl, source: src})
	return result, nil
}

type chainResult struct {
	addrs []net.IP
	ttl   time.Duration
}

// queryChain follows CNAME indirection for one record type, retrying
// SERVFAIL answers with backoff at each hop (spec.md §4.8 steps 3-4).
func (r *Resolver) queryChain(ctx context.Context, name string, qtype rrType) (chainResult, error) {
	visited := map[string]bool{}
	cur := name
	for i := 0; i < r.cfg.MaxChainLength; i++ {
		if visited[cur] {
			return chainResult{}, errs.New(errs.KindInvariant, "dns: CNAME loop detected resolving %q", name)
		}
		visited[cur] = true

		msg, err := r.queryWithRetry(ctx, cur, qtype)
		if err != nil {
			return chainResult{}, err
		}

		var addrs []net.IP
		var cname string
		var ttlMin uint32 = ^uint32(0)
		for _, a := range msg.answers {
			switch a.rtype {
			case qtype:
				addrs = append(addrs, a.addr)
				if a.ttl < ttlMin {
					ttlMin = a.ttl
				}
			case typeCNAME:
				cname = a.cname
			}
		}
		if len(addrs) > 0 {
			return chainResult{addrs: addrs, ttl: time.Duration(ttlMin) * time.Second}, nil
		}
		if cname == "" {
			// NODATA: a well-formed, empty answer for this name/type.
			return chainResult{}, nil
		}
		cur = cname
	}
	return chainResult{}, errs.New(errs.KindInvariant, "dns: CNAME chain for %q exceeds %d hops", name, r.cfg.MaxChainLength)
}

// queryWithRetry sends one query, retrying SERVFAIL answers up to
// MaxAttempts with exponential backoff; any other error is fatal for
// this query immediately (spec.md §4.8 step 3).
func (r *Resolver) queryWithRetry(ctx context.Context, name string, qtype rrType) (*message, error) {
	delay := r.cfg.BackoffBase
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := r.react.SleepUntil(ctx, time.Now().Add(delay)); err != nil {
				return nil, err
			}
			delay *= 2
		}
		msg, err := r.queryOnce(ctx, name, qtype)
		if err != nil {
			return nil, errs.Wrap(errs.KindNetworkFailure, err)
		}
		if msg.rcode == rcodeNoError {
			return msg, nil
		}
		if msg.rcode != rcodeServFail {
			return nil, errs.New(errs.KindServerFailure, "dns: rcode %d resolving %q", msg.rcode, name)
		}
		r.metrics.ServfailTotal.Inc()
		lastErr = errs.New(errs.KindServerFailure, "dns: SERVFAIL resolving %q", name)
	}
	return nil, lastErr
}

// queryOnce performs a single UDP round trip against the first
// configured server, suspended on the reactor rather than blocking a
// worker (spec.md §4.8 step 2).
func (r *Resolver) queryOnce(ctx context.Context, name string, qtype rrType) (*message, error) {
	server := r.cfg.Servers[0]
	id := uint16(time.Now().UnixNano())
	queryBytes, err := encodeQuery(id, name, qtype)
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
	defer cancel()

	return reactor.Await(queryCtx, func() (*message, error) {
		conn, err := net.Dial("udp", server)
		if err != nil {
			return nil, err
		}
		defer conn.Close()

		if deadline, ok := queryCtx.Deadline(); ok {
			_ = conn.SetDeadline(deadline)
		}
		if _, err := conn.Write(queryBytes); err != nil {
			return nil, err
		}
		buf := make([]byte, 512)
		n, err := conn.Read(buf)
		if err != nil {
			return nil, err
		}
		msg, err := decodeMessage(buf[:n])
		if err != nil {
			return nil, err
		}
		if msg.id != id {
			return nil, errors.New("dns: response id mismatch")
		}
		return msg, nil
	})
}
