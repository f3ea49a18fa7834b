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

// Package coro implements the coroutine pool (spec.md §4.2): a bounded
// supply of "stack permits" handed out to the task processor so that a
// runaway number of concurrently-running tasks cannot unbound the
// number of OS threads backing them.
//
// A coroutine in this port is a goroutine: Go cannot detach a stack
// from its goroutine and reattach it to another, so unlike the C++
// fiber pool this is grounded on, Pool does not recycle literal stack
// memory. It recycles the *permit* to run one — the same bounded-
// concurrency contract, generalized the way internal/xtask.Processor
// needs it. See DESIGN.md.
package coro

import (
	"context"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lindb/corerun/internal/errs"
	"github.com/lindb/corerun/internal/metrics"
	"github.com/lindb/corerun/pkg/logger"
)

// Coro is a handle to an acquired permit. It must be released exactly
// once.
type Coro struct {
	pool *Pool
}

// Pool hands out up to maxCoros concurrent permits, and tracks how
// many are idle so that idle ones beyond idleLimit are dropped instead
// of retained, mirroring the teacher's idle-timeout worker recycling.
type Pool struct {
	name      string
	maxCoros  int
	idleLimit int

	sem   chan struct{} // size maxCoros; held while a coro is "live"
	idle  chan struct{} // size idleLimit; buffers permits returned promptly
	alive atomic.Int64
	log   *zap.Logger

	stats *metrics.Concurrent // nil when the caller doesn't wire metrics (e.g. tests)
}

// New creates a coroutine pool. maxCoros bounds total concurrently
// acquired permits; idleLimit bounds how many released permits are
// kept warm (immediately reusable without waiting on sem) versus
// dropped back to the shared semaphore. stats may be nil, in which case
// the pool's coro_alive gauge is simply never updated.
func New(name string, maxCoros, idleLimit int, stats *metrics.Concurrent) *Pool {
	if maxCoros < 1 {
		maxCoros = 1
	}
	if idleLimit < 0 || idleLimit > maxCoros {
		idleLimit = maxCoros
	}
	return &Pool{
		name:      name,
		maxCoros:  maxCoros,
		idleLimit: idleLimit,
		sem:       make(chan struct{}, maxCoros),
		idle:      make(chan struct{}, idleLimit),
		log:       logger.GetLogger("CoroPool", name),
		stats:     stats,
	}
}

func (p *Pool) reportAlive() {
	if p.stats != nil {
		p.stats.CoroAlive.WithLabelValues(p.name).Set(float64(p.alive.Load()))
	}
}

// Acquire returns a Coro permit, blocking until one is available or
// ctx is done. If ctx has no deadline and the pool is at max_coros
// with none idle, Acquire blocks until Release frees one (the pool
// never fails open).
func (p *Pool) Acquire(ctx context.Context) (*Coro, error) {
	select {
	case <-p.idle:
		p.alive.Inc()
		p.reportAlive()
		return &Coro{pool: p}, nil
	default:
	}
	select {
	case p.sem <- struct{}{}:
		p.alive.Inc()
		p.reportAlive()
		return &Coro{pool: p}, nil
	case <-ctx.Done():
		return nil, errs.Wrap(errs.KindResourceExhausted, ctx.Err())
	}
}

// TryAcquire is the non-blocking form, returning ResourceExhausted
// immediately instead of waiting.
func (p *Pool) TryAcquire() (*Coro, error) {
	select {
	case <-p.idle:
		p.alive.Inc()
		p.reportAlive()
		return &Coro{pool: p}, nil
	default:
	}
	select {
	case p.sem <- struct{}{}:
		p.alive.Inc()
		p.reportAlive()
		return &Coro{pool: p}, nil
	default:
		return nil, errs.New(errs.KindResourceExhausted, "coro pool %q exhausted (max=%d)", p.name, p.maxCoros)
	}
}

// Release returns coro to the pool. Safe to call exactly once per
// acquired Coro; a second call is a programmer error and is logged
// rather than panicking, since it runs on a hot path.
func (p *Pool) Release(c *Coro) {
	if c == nil || c.pool != p {
		p.log.Error("release of foreign or nil coro")
		return
	}
	c.pool = nil // a second Release of c is then logged above
	p.alive.Dec()
	p.reportAlive()
	select {
	case p.idle <- struct{}{}:
		// kept warm, no semaphore slot freed: the permit stays
		// reserved so the next Acquire skips the channel send.
	default:
		<-p.sem
	}
}

// Alive reports the number of currently acquired permits.
func (p *Pool) Alive() int64 { return p.alive.Load() }

// IdleTimeoutReaper starts a goroutine that, on every tick of ttl,
// moves at most one warm idle permit back to the shared semaphore, so
// a burst of short-lived tasks doesn't permanently pin idleLimit
// permits. Permit age is not tracked. Nothing in this module starts it;
// the caller does, and receives a stop function.
func (p *Pool) IdleTimeoutReaper(ttl time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(ttl)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				select {
				case <-p.idle:
					<-p.sem
				default:
				}
			}
		}
	}()
	return func() { close(done) }
}
