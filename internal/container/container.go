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

// Package container implements the component container (spec.md
// §3/§4.7): a dependency-resolved, topologically ordered graph of
// long-lived singletons, built by recursively constructing whatever a
// component's factory asks for via FindComponent, with cycle detection
// based on each component's Constructing phase mark and the build's
// stack of names under construction.
//
// Grounded on the overall construct-then-run-then-reverse-teardown
// shape of the teacher's app/storage and app/broker runtimes,
// generalized into an explicit, generic dependency-injected graph
// (no single teacher file implements the graph mechanism generically).
package container

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lindb/corerun/internal/errs"
	"github.com/lindb/corerun/pkg/logger"
)

// Phase is a component's lifecycle phase (spec.md §3).
type Phase int32

const (
	PhaseUnresolved Phase = iota
	PhaseConstructing
	PhaseReady
	PhaseStopping
	PhaseDestroyed
)

// Factory builds a component's instance given a *Container to resolve
// its own dependencies through.
type Factory func(c *Container) (any, error)

//go:generate mockgen -source ./container.go -destination=./container_mock.go -package container

// PreShutdown is implemented optionally by a component instance that
// needs a best-effort drain signal before the reverse-order Shutdown
// pass touches it (SPEC_FULL.md §9.1, supplemented from
// components::Manager::OnAllComponentsAreStopping).
type PreShutdown interface {
	PreShutdown() error
}

// Closer is implemented optionally by a component instance needing
// teardown logic.
type Closer interface {
	Close() error
}

type componentEntry struct {
	name        string
	factory     Factory
	monitorable bool

	mu       sync.Mutex
	phase    Phase
	instance any
	err      error
}

// Container is an ordered, acyclic graph of named components.
type Container struct {
	log *zap.Logger

	mu            sync.RWMutex
	entries       map[string]*componentEntry
	constructed   []string // construction order, reverse of shutdown order
	readOnlyPhase bool

	// constructing is not read or written anywhere: cycle detection
	// lives in resolve(), which checks each entry's PhaseConstructing
	// mark and the buildTrace stack.
	constructing sync.Map
}

// New creates an empty container.
func New(name string) *Container {
	return &Container{
		log:     logger.GetLogger("Container", name),
		entries: make(map[string]*componentEntry),
	}
}

// Register adds a component definition. Must be called before Build;
// registering after the container has entered its read-only phase
// panics, since that would be a programming error in startup code, not
// a recoverable runtime condition.
func (c *Container) Register(name string, factory Factory, monitorable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readOnlyPhase {
		panic(fmt.Sprintf("container: Register(%q) called after Build", name))
	}
	c.entries[name] = &componentEntry{name: name, factory: factory, monitorable: monitorable}
}

// buildTrace is the stack of component names under construction for
// one top-level Build or FindComponent call, plus an ID for logging.
// It stands in for the source's per-thread construction stack: this
// container's own recursive FindComponent calls happen synchronously
// on one call stack, so a slice threaded through the recursion serves
// the same purpose without real thread-local storage.
type buildTrace struct {
	stack []string
	id    string
}

// Build constructs every registered component in the order discovered
// by following FindComponent calls made during each factory's
// execution, then freezes the container (spec.md §4.7).
func (c *Container) Build() error {
	c.mu.RLock()
	names := make([]string, 0, len(c.entries))
	for n := range c.entries {
		names = append(names, n)
	}
	c.mu.RUnlock()

	trace := &buildTrace{id: uuid.NewString()}
	for _, n := range names {
		if _, err := c.resolve(n, trace); err != nil {
			c.log.Error("component construction failed", zap.String("component", n),
				zap.String("trace_id", trace.id), zap.Error(err))
			_ = c.shutdownConstructed()
			return err
		}
	}

	c.mu.Lock()
	c.readOnlyPhase = true
	c.mu.Unlock()
	return nil
}

func (c *Container) resolve(name string, trace *buildTrace) (any, error) {
	c.mu.RLock()
	e, ok := c.entries[name]
	c.mu.RUnlock()
	if !ok {
		return nil, errs.New(errs.KindDependencyMissing, "component %q is not registered", name)
	}

	e.mu.Lock()
	switch e.phase {
	case PhaseReady:
		e.mu.Unlock()
		return e.instance, nil
	case PhaseConstructing:
		e.mu.Unlock()
		return nil, errs.New(errs.KindDependencyCycle, "dependency cycle detected at %q (path: %v)", name, append(append([]string{}, trace.stack...), name))
	}
	for _, s := range trace.stack {
		if s == name {
			e.mu.Unlock()
			return nil, errs.New(errs.KindDependencyCycle, "dependency cycle detected at %q (path: %v)", name, append(append([]string{}, trace.stack...), name))
		}
	}
	e.phase = PhaseConstructing
	e.mu.Unlock()

	trace.stack = append(trace.stack, name)
	instance, err := e.factory(c)
	trace.stack = trace.stack[:len(trace.stack)-1]

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.phase = PhaseUnresolved
		e.err = err
		return nil, err
	}
	e.instance = instance
	e.phase = PhaseReady
	c.constructed = append(c.constructed, name)
	return instance, nil
}

// FindComponent resolves name, recursively constructing it if it
// hasn't been built yet. Intended to be called from within a
// component's Factory with the *Container it was given.
func FindComponent[T any](c *Container, name string) (T, error) {
	var zero T
	c.mu.RLock()
	ro := c.readOnlyPhase
	c.mu.RUnlock()

	if ro {
		c.mu.RLock()
		e, ok := c.entries[name]
		c.mu.RUnlock()
		if !ok {
			return zero, errs.New(errs.KindDependencyMissing, "component %q is not registered", name)
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.phase != PhaseReady {
			return zero, errs.New(errs.KindInvariant, "component %q accessed before Ready", name)
		}
		v, ok := e.instance.(T)
		if !ok {
			return zero, errs.New(errs.KindInvariant, "component %q is not of the requested type", name)
		}
		return v, nil
	}

	// During construction, route through a fresh trace per top-level
	// FindComponent call: correctness only requires that re-entrant
	// calls within the SAME construction chain detect the cycle, which
	// resolve() already does against c.entries' PhaseConstructing mark
	// independent of which trace object made the call.
	trace := &buildTrace{id: uuid.NewString()}
	instance, err := c.resolve(name, trace)
	if err != nil {
		return zero, err
	}
	v, ok := instance.(T)
	if !ok {
		return zero, errs.New(errs.KindInvariant, "component %q is not of the requested type", name)
	}
	return v, nil
}

// Monitorable returns a snapshot of {name -> instance} for every
// component registered with monitorable=true, taken under a read lock
// (spec.md §4.7 Monitoring).
func (c *Container) Monitorable() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any)
	for name, e := range c.entries {
		if !e.monitorable {
			continue
		}
		e.mu.Lock()
		if e.phase == PhaseReady {
			out[name] = e.instance
		}
		e.mu.Unlock()
	}
	return out
}

func (c *Container) shutdownConstructed() error {
	return c.shutdown(c.constructed)
}

// Shutdown tears down every constructed component in reverse
// construction order. A component's Close must not (and, given
// reverse order, cannot legitimately need to) access components later
// in the order, since those are already destroyed (spec.md §4.7).
func (c *Container) Shutdown() error {
	c.mu.RLock()
	order := append([]string{}, c.constructed...)
	c.mu.RUnlock()
	return c.shutdown(order)
}

func (c *Container) shutdown(order []string) error {
	var firstErr error
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		c.mu.RLock()
		e := c.entries[name]
		c.mu.RUnlock()
		if e == nil {
			continue
		}
		e.mu.Lock()
		inst := e.instance
		e.phase = PhaseStopping
		e.mu.Unlock()

		if pre, ok := inst.(PreShutdown); ok {
			if err := pre.PreShutdown(); err != nil {
				c.log.Error("component pre-shutdown failed", zap.String("component", name), zap.Error(err))
			}
		}
		if closer, ok := inst.(Closer); ok {
			if err := closer.Close(); err != nil {
				c.log.Error("component shutdown failed", zap.String("component", name), zap.Error(err))
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		e.mu.Lock()
		e.phase = PhaseDestroyed
		e.mu.Unlock()
	}
	return firstErr
}
