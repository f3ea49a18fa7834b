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

// Package reactor implements the event reactor pool (spec.md §4.1):
// timer delivery and readiness-driven waiter wakeups, always resuming
// the waiting task on its own task processor rather than on the
// reactor's own goroutine (so user code never runs on a reactor
// thread).
//
// A literal per-platform epoll/kqueue multiplexer (as the retrieved
// eventloop package implements for hosting a JS engine's event loop)
// is not ported here: Go's runtime netpoller already owns fd
// readiness under every net/os blocking call, so re-implementing it at
// application level would just shadow the runtime's own reactor. What
// is kept from that shape is the min-heap timer wheel and the
// Scope-style cancel-on-unregister handle (DESIGN.md).
package reactor

import (
	"container/heap"
	"context"
	"os"
	"os/signal"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lindb/corerun/internal/errs"
	"github.com/lindb/corerun/pkg/logger"
)

// Reactor owns one OS thread (one goroutine, pinned in spirit if not
// literally) driving a timer min-heap and forwarding OS signals.
type Reactor struct {
	name string
	log  *zap.Logger

	mu      sync.Mutex
	timers  timerHeap
	wake    chan struct{}
	closeCh chan struct{}
	closed  bool
}

// New starts a reactor goroutine named name.
func New(name string) *Reactor {
	r := &Reactor{
		name:    name,
		log:     logger.GetLogger("Reactor", name),
		wake:    make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}
	go r.loop()
	return r
}

type timerEntry struct {
	deadline time.Time
	fire     func()
	index    int
	cancel   bool
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

func (r *Reactor) loop() {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		r.mu.Lock()
		var next time.Duration = time.Hour
		if len(r.timers) > 0 {
			next = time.Until(r.timers[0].deadline)
			if next < 0 {
				next = 0
			}
		}
		r.mu.Unlock()
		timer.Reset(next)

		select {
		case <-r.closeCh:
			return
		case <-r.wake:
			continue
		case <-timer.C:
			r.fireExpired()
		}
	}
}

func (r *Reactor) fireExpired() {
	now := time.Now()
	var fires []func()
	r.mu.Lock()
	for len(r.timers) > 0 && !r.timers[0].deadline.After(now) {
		e := heap.Pop(&r.timers).(*timerEntry)
		if !e.cancel {
			fires = append(fires, e.fire)
		}
	}
	r.mu.Unlock()
	for _, f := range fires {
		f()
	}
}

func (r *Reactor) nudge() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// SleepUntil suspends the caller until deadline, or returns early with
// Cancelled if ctx is done first (spec.md §4.1).
func (r *Reactor) SleepUntil(ctx context.Context, deadline time.Time) error {
	done := make(chan struct{})
	entry := &timerEntry{deadline: deadline, fire: func() { close(done) }}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errs.New(errs.KindInvariant, "reactor %q is closed", r.name)
	}
	heap.Push(&r.timers, entry)
	r.mu.Unlock()
	r.nudge()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.mu.Lock()
		entry.cancel = true
		r.mu.Unlock()
		return errs.Wrap(errs.KindCancelled, ctx.Err())
	}
}

// AfterFunc schedules fire to run (asynchronously, on its own
// goroutine, not the reactor goroutine) at deadline, and returns a
// cancel function. Nothing in this module calls it; Task has no
// deadline support.
func (r *Reactor) AfterFunc(deadline time.Time, fire func()) (cancel func()) {
	entry := &timerEntry{deadline: deadline, fire: func() { go fire() }}
	r.mu.Lock()
	heap.Push(&r.timers, entry)
	r.mu.Unlock()
	r.nudge()
	return func() {
		r.mu.Lock()
		entry.cancel = true
		r.mu.Unlock()
	}
}

// WakeOnSignal delivers OS signals as a stream of values on the
// returned channel, closed when ctx is done.
func (r *Reactor) WakeOnSignal(ctx context.Context, sig ...os.Signal) <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sig...)
	out := make(chan os.Signal)
	go func() {
		defer signal.Stop(ch)
		defer close(out)
		for {
			select {
			case s := <-ch:
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Close stops the reactor goroutine. Pending timers are dropped
// without firing.
func (r *Reactor) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	close(r.closeCh)
}
