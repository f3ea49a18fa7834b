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

// Package rcu implements the read-mostly concurrent value (spec.md
// §3/§4.5): readers obtain a snapshot that stays alive for its scope
// regardless of concurrent writers; writers mutate a private copy and
// commit atomically.
//
// Grounded on kv/version's refcounted Version (Retain/Release, exactly
// one Close per acquired reference): that is this port's rendition of
// hazard-pointer reclamation. Go's garbage collector removes the
// original use-after-free motivation for a literal hazard-pointer
// cache, but the liveness contract it existed to enforce — a reader
// handle must not outlive the Variable it was obtained from — is kept
// as an explicit, checked invariant via Reader/Variable.Close (see
// rcu_test.go for the §8 scenario 6 regression).
package rcu

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/lindb/corerun/internal/errs"
)

type entry[T any] struct {
	value T
	refs  atomic.Int64
}

// Variable is a read-mostly concurrent value of type T.
type Variable[T any] struct {
	current atomic.Pointer[entry[T]]

	mu     sync.Mutex // serializes writers, per spec.md §5
	closed atomic.Bool
}

// New constructs a Variable holding an initial value.
func New[T any](initial T) *Variable[T] {
	v := &Variable[T]{}
	v.current.Store(&entry[T]{value: initial})
	return v
}

// Reader stands in for the per-thread hazard-pointer cache: a handle
// bound to one Variable, used to obtain successive ReadPtr snapshots
// without re-deriving the binding each time. It becomes unusable once
// the Variable it was obtained from is closed (spec.md §4.5 invariant).
type Reader[T any] struct {
	v *Variable[T]
}

// Reader returns a new reader bound to v.
func (v *Variable[T]) Reader() *Reader[T] { return &Reader[T]{v: v} }

// ReadPtr is an owning read-side snapshot: while held, the value it
// references will not be reclaimed even if writers commit past it.
type ReadPtr[T any] struct {
	e      *entry[T]
	closed bool
}

// Get returns the snapshotted value. Safe to call any number of times
// before Close.
func (r *ReadPtr[T]) Get() *T {
	if r.e == nil {
		return nil
	}
	return &r.e.value
}

// Close releases the snapshot. Must be called exactly once; calling it
// twice is a no-op (mirrors the teacher's idempotent snapshot.Close).
func (r *ReadPtr[T]) Close() {
	if r.closed || r.e == nil {
		return
	}
	r.closed = true
	r.e.refs.Dec()
}

// Read acquires a snapshot of the reader's bound Variable. Reading
// does not suspend (spec.md §4.5).
func (r *Reader[T]) Read() (*ReadPtr[T], error) {
	if r.v.closed.Load() {
		return nil, errs.New(errs.KindInvariant, "rcu: reader used after its variable was closed")
	}
	e := r.v.current.Load()
	e.refs.Inc()
	return &ReadPtr[T]{e: e}, nil
}

// Read is shorthand for v.Reader().Read() for one-off reads that don't
// need a standing reader handle.
func (v *Variable[T]) Read() (*ReadPtr[T], error) {
	return v.Reader().Read()
}

// ReadCopy returns a fresh, independently owned copy of the current
// value.
func (v *Variable[T]) ReadCopy() (T, error) {
	r, err := v.Read()
	if err != nil {
		var zero T
		return zero, err
	}
	defer r.Close()
	return *r.Get(), nil
}

// WritePtr holds a private copy of T, invisible until Commit.
type WritePtr[T any] struct {
	v        *Variable[T]
	value    T
	released bool
}

// Get returns a pointer to the writer's private copy for in-place
// mutation.
func (w *WritePtr[T]) Get() *T { return &w.value }

// StartWrite makes a copy of the current value for mutation. Requires
// T to be meaningfully copyable by Go's assignment semantics (a
// value-type copy); use Assign for types that should not be copied.
func (v *Variable[T]) StartWrite() (*WritePtr[T], error) {
	if v.closed.Load() {
		return nil, errs.New(errs.KindInvariant, "rcu: write on closed variable")
	}
	v.mu.Lock() // released only by Commit or Abandon
	cur := v.current.Load()
	return &WritePtr[T]{v: v, value: cur.value}, nil
}

// Commit atomically swaps the current pointer and retires the
// previous value; it is freed once its last reader closes its
// ReadPtr. An uncommitted WritePtr has no observable effect on the
// value (spec.md §4.5 invariant); a write that is not committed must
// end in Abandon to release the writer lock.
func (w *WritePtr[T]) Commit() {
	if w.released {
		return
	}
	w.released = true
	defer w.v.mu.Unlock()
	w.v.current.Store(&entry[T]{value: w.value})
	// The old entry is retired implicitly: it is only reachable
	// through ReadPtrs already handed out, and is collected by the Go
	// garbage collector once its last ReadPtr.Close drops the final
	// reference recorded in refs (refs itself is bookkeeping for
	// tests/metrics, not what keeps the value alive — the ReadPtr's
	// own pointer does).
}

// Abandon discards the write without committing, releasing the writer
// lock. Dropping w without Commit or Abandon leaves the lock held, and
// every later StartWrite or Assign on the Variable blocks.
func (w *WritePtr[T]) Abandon() {
	if w.released {
		return
	}
	w.released = true
	w.v.mu.Unlock()
}

// Assign is shorthand for StartWrite + replace + Commit, usable on
// non-copyable T (the caller provides the full new value directly
// instead of mutating a copy in place).
func (v *Variable[T]) Assign(value T) error {
	if v.closed.Load() {
		return errs.New(errs.KindInvariant, "rcu: assign on closed variable")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current.Store(&entry[T]{value: value})
	return nil
}

// Close marks the Variable as destroyed. Readers obtained from it
// (via Reader()) become permanently unusable; outstanding ReadPtrs
// already acquired remain valid until their own Close (they hold their
// own *entry[T], independent of the Variable). This is the reset of
// the invariant in spec.md §4.5: "a hazard-pointer cache must not
// outlive the variable it references".
func (v *Variable[T]) Close() {
	v.closed.Store(true)
}
