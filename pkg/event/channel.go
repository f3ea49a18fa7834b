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

// Package event implements the async event channel (spec.md §4.6): a
// typed broadcast to named subscribers, each invoked on its own task
// processor rather than synchronously from the publisher.
package event

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/lindb/corerun/internal/errs"
	"github.com/lindb/corerun/internal/xtask"
	"github.com/lindb/corerun/pkg/logger"
	"github.com/lindb/corerun/pkg/rcu"
)

// Scope unsubscribes its subscriber when Close is called. There is no
// Go finalizer-based "on drop" — Close must be called explicitly,
// mirroring how ReadPtr.Close stands in for RAII elsewhere in this
// module.
type Scope struct {
	close func()
	once  sync.Once
}

// Close unsubscribes. Idempotent.
func (s *Scope) Close() {
	s.once.Do(func() {
		if s.close != nil {
			s.close()
		}
	})
}

type subscriber[E any] struct {
	name  string
	proc  *xtask.Processor
	fn    func(E)
}

// Channel is a typed broadcast channel. Subscriber names are unique;
// publish delivers to each subscriber currently attached at most once
// per event (spec.md §3/§8).
type Channel[E any] struct {
	log *zap.Logger

	mu   sync.RWMutex
	subs map[string]*subscriber[E]
	// order preserves insertion order for deterministic iteration in
	// tests, independent of Go map iteration order.
	order []string
}

// New creates an empty channel.
func New[E any](name string) *Channel[E] {
	return &Channel[E]{
		log:  logger.GetLogger("Channel", name),
		subs: make(map[string]*subscriber[E]),
	}
}

// Subscribe registers a named callback, invoked on owner whenever
// Publish is called while this subscription is live. name must be
// unique among currently-attached subscribers.
func (c *Channel[E]) Subscribe(name string, owner *xtask.Processor, callback func(E)) (*Scope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.subs[name]; exists {
		return nil, errs.New(errs.KindInvariant, "event: subscriber %q already registered", name)
	}
	c.subs[name] = &subscriber[E]{name: name, proc: owner, fn: callback}
	c.order = append(c.order, name)
	return &Scope{close: func() { c.unsubscribe(name) }}, nil
}

// UpdateAndListen subscribes and synchronously invokes initialFn with
// a snapshot taken from snap, guaranteeing the subscriber observes
// either that snapshot or every subsequent Publish with no gap: the
// subscription is registered before the snapshot is taken, so any
// commit racing with this call is either reflected in the snapshot
// already or arrives as a later Publish (spec.md §4.6).
func UpdateAndListen[T any, E any](
	c *Channel[E],
	name string,
	owner *xtask.Processor,
	snap *rcu.Variable[T],
	callback func(E),
	initialFn func(T),
) (*Scope, error) {
	scope, err := c.Subscribe(name, owner, callback)
	if err != nil {
		return nil, err
	}
	r, err := snap.Read()
	if err != nil {
		scope.Close()
		return nil, err
	}
	defer r.Close()
	initialFn(*r.Get())
	return scope, nil
}

func (c *Channel[E]) unsubscribe(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[name]; !ok {
		return
	}
	delete(c.subs, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Publish invokes every current subscriber's callback on the
// subscriber's owning processor, handing subscribers their jobs one
// after another in subscription order. Callback panics are logged and
// do not abort the channel (spec.md §4.6 Failure). Slow subscribers
// are not isolated: when a subscriber's processor queue is full,
// Publish waits for room before reaching the subscribers after it.
func (c *Channel[E]) Publish(e E) {
	c.mu.RLock()
	targets := make([]*subscriber[E], 0, len(c.order))
	for _, name := range c.order {
		targets = append(targets, c.subs[name])
	}
	c.mu.RUnlock()

	for _, s := range targets {
		s := s
		xtask.SpawnDetached(context.Background(), s.proc, func(_ context.Context) {
			defer func() {
				if r := recover(); r != nil {
					c.log.Error("subscriber callback panicked",
						zap.String("subscriber", s.name), zap.Any("recover", r))
				}
			}()
			s.fn(e)
		})
	}
}

// Len returns the current subscriber count.
func (c *Channel[E]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}
