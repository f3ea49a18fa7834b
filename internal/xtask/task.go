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

package xtask

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/lindb/corerun/internal/errs"
)

// State is one of the task lifecycle states (spec.md §3).
type State int32

const (
	StateNew State = iota
	StateQueued
	StateRunning
	StateSuspended
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// result is the exactly-once-writable result slot.
type result[T any] struct {
	value T
	err   error
}

// Task is a handle to an independently scheduled computation (spec.md
// §3/§4.4). The zero value is not usable; construct via a Processor's
// Spawn.
type Task[T any] struct {
	proc  *Processor
	state atomic.Int32

	cancelled atomic.Bool
	done      chan struct{}
	once      sync.Once // guards result slot write
	joined    atomic.Bool

	mu  sync.Mutex
	res result[T]
}

func newTask[T any](proc *Processor) *Task[T] {
	return &Task[T]{proc: proc, done: make(chan struct{})}
}

// State returns the task's current lifecycle state.
func (t *Task[T]) State() State { return State(t.state.Load()) }

func (t *Task[T]) setState(s State) { t.state.Store(int32(s)) }

// Cancel marks the task's cancellation token. Cancellation is
// cooperative and edge-triggered: once set it stays set (spec.md §5).
func (t *Task[T]) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called. Suspension points
// inside the task body should poll this and return errs.Cancelled
// promptly.
func (t *Task[T]) Cancelled() bool { return t.cancelled.Load() }

// IsReady reports whether the result slot has been filled.
func (t *Task[T]) IsReady() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// complete fills the result slot exactly once and flips to a terminal
// state. Called by the processor's worker loop.
func (t *Task[T]) complete(value T, err error) {
	t.once.Do(func() {
		t.mu.Lock()
		t.res = result[T]{value: value, err: err}
		t.mu.Unlock()
		if err != nil && errors.Is(err, errs.Cancelled) {
			t.setState(StateCancelled)
		} else {
			t.setState(StateCompleted)
		}
		close(t.done)
	})
}

// Await suspends the calling goroutine until the task completes (or
// ctx is done), returning its result. Double-await is rejected: only
// one joiner is permitted (spec.md §4.4).
func (t *Task[T]) Await(ctx context.Context) (T, error) {
	if !t.joined.CompareAndSwap(false, true) {
		var zero T
		return zero, errs.New(errs.KindInvariant, "task already has a joiner")
	}
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.res.value, t.res.err
	case <-ctx.Done():
		// The task didn't actually complete for this joiner, so release
		// the slot: a caller whose wait timed out may legitimately
		// retry Await with a fresh context later.
		t.joined.Store(false)
		var zero T
		return zero, errs.Wrap(errs.KindCancelled, ctx.Err())
	}
}

// Detach releases the joiner obligation: the task runs to completion
// (or cancellation) but nothing observes its result. Dropping a
// non-detached Task without awaiting it does not cancel it: nothing
// detects that a Task[T] has become unreachable, so the task runs to
// completion either way. SpawnDetached is the path for fire-and-forget
// work.
func (t *Task[T]) Detach() {
	t.joined.Store(true)
}
