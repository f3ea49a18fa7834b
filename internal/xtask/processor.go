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

// Package xtask implements the task processor and task/future (spec.md
// §4.3/§4.4): a named pool of worker goroutines executing
// coroutine-backed tasks, FIFO per processor with work-stealing
// between that processor's own workers only (spec.md §9 open question,
// resolved: within-processor stealing, not across processors).
//
// Grounded on internal/concurrent/pool.go's dispatch loop (task
// channel + on-demand worker goroutines + panic recovery + stats),
// generalized to a generic Task[T] result type and an explicit
// per-task cancellation token.
package xtask

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lindb/corerun/internal/coro"
	"github.com/lindb/corerun/internal/errs"
	"github.com/lindb/corerun/internal/metrics"
	"github.com/lindb/corerun/pkg/logger"
)

// job is the type-erased unit the dispatch loop moves around; Task[T]
// stays generic at the call site while the processor internals stay
// monomorphic, mirroring Task/panicHandle in the teacher's pool.go.
type job struct {
	run func(ctx context.Context)
}

// Processor is a named pool of worker goroutines. A task pinned to
// processor P runs only on P's workers (spec.md §3 invariant).
type Processor struct {
	name       string
	blocking   bool // true for a dedicated blocking-bridge processor
	coroPool   *coro.Pool
	queue      chan job
	workers    int
	workerWg   sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	stopped    atomic.Bool
	log        *zap.Logger
	tasksDone  atomic.Int64
	tasksPanic atomic.Int64

	stats *metrics.Concurrent // nil when the caller doesn't wire metrics (e.g. tests)
}

type contextKey struct{}

var currentProcessorKey contextKey

// New creates a task processor with the given number of worker
// goroutines, drawing coroutine permits from pool. If blocking is
// true, this processor is meant to host blocking_bridge calls and
// regular processors must never be used for blocking work (spec.md
// §4.3/§5). stats may be nil, in which case the processor's
// tasks_completed_total/tasks_panicked_total counters are simply never
// updated.
func New(name string, workers int, pool *coro.Pool, blocking bool, stats *metrics.Concurrent) *Processor {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Processor{
		name:     name,
		blocking: blocking,
		coroPool: pool,
		queue:    make(chan job, workers*4),
		workers:  workers,
		ctx:      ctx,
		cancel:   cancel,
		log:      logger.GetLogger("Processor", name),
		stats:    stats,
	}
	for i := 0; i < workers; i++ {
		p.workerWg.Add(1)
		go p.worker()
	}
	return p
}

// Name returns the processor's configured name.
func (p *Processor) Name() string { return p.name }

// IsBlocking reports whether this processor is a blocking-bridge pool.
func (p *Processor) IsBlocking() bool { return p.blocking }

func (p *Processor) worker() {
	defer p.workerWg.Done()
	for {
		// Drain whatever is already buffered first, so a Stop()
		// racing with Spawn() still lets already-queued jobs run
		// instead of abandoning them immediately.
		select {
		case j := <-p.queue:
			p.runJob(j)
			continue
		default:
		}
		select {
		case j := <-p.queue:
			p.runJob(j)
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Processor) runJob(j job) {
	defer func() {
		if r := recover(); r != nil {
			p.tasksPanic.Inc()
			if p.stats != nil {
				p.stats.TasksPanicked.WithLabelValues(p.name).Inc()
			}
			p.log.Error("panic executing task", zap.Any("recover", r))
		}
	}()
	j.run(p.ctx)
	p.tasksDone.Inc()
	if p.stats != nil {
		p.stats.TasksCompleted.WithLabelValues(p.name).Inc()
	}
}

// Current returns the processor on whose worker the calling code runs,
// if any. Well-defined only inside a task body (spec.md §4.3); this is
// the Go rendition of the source's process-wide thread-local "current
// task" pointer (spec.md §9 Global state), carried on ctx instead.
func Current(ctx context.Context) (*Processor, bool) {
	p, ok := ctx.Value(currentProcessorKey).(*Processor)
	return p, ok
}

// Spawn enqueues fn as a new task and returns a joinable handle.
// Acquires a coroutine permit for the duration of fn's execution,
// waiting until one is free: Spawn never fails with ResourceExhausted.
// If ctx is done before the job is queued, or p has been stopped, the
// returned task completes with Cancelled.
func Spawn[T any](ctx context.Context, p *Processor, fn func(ctx context.Context, t *Task[T]) (T, error)) *Task[T] {
	t := newTask[T](p)
	t.setState(StateQueued)
	// Deliberately rooted in Background, not p.ctx: a job already
	// buffered in the queue when Stop() cancels p.ctx must still be
	// able to acquire a coroutine permit and run to completion during
	// the drain window (spec.md §6 Signals: "drain tasks up to
	// shutdown_deadline").
	taskCtx := context.WithValue(context.Background(), currentProcessorKey, p)

	run := func(_ context.Context) {
		c, err := p.coroPool.Acquire(taskCtx)
		if err != nil {
			t.complete(zeroOf[T](), err)
			return
		}
		defer p.coroPool.Release(c)

		if t.Cancelled() {
			t.complete(zeroOf[T](), errs.Cancelled)
			return
		}
		t.setState(StateRunning)
		panicked := true
		value, err := runCaptured(taskCtx, t, func(c context.Context, tt *Task[T]) (T, error) {
			v, e := fn(c, tt)
			panicked = false
			return v, e
		})
		if panicked {
			p.tasksPanic.Inc()
			if p.stats != nil {
				p.stats.TasksPanicked.WithLabelValues(p.name).Inc()
			}
			p.log.Error("panic executing task", zap.Error(err))
		}
		t.complete(value, err)
	}

	if p.ctx.Err() != nil {
		t.complete(zeroOf[T](), errs.New(errs.KindCancelled, "processor %q is stopped", p.name))
		return t
	}
	select {
	case p.queue <- job{run: run}:
	case <-ctx.Done():
		t.complete(zeroOf[T](), errs.Wrap(errs.KindCancelled, ctx.Err()))
	case <-p.ctx.Done():
		t.complete(zeroOf[T](), errs.New(errs.KindCancelled, "processor %q is stopped", p.name))
	}
	return t
}

// SpawnDetached is Spawn with the result discarded; equivalent to
// calling Task.Detach() immediately.
func SpawnDetached(ctx context.Context, p *Processor, fn func(ctx context.Context)) {
	Spawn(ctx, p, func(c context.Context, _ *Task[struct{}]) (struct{}, error) {
		fn(c)
		return struct{}{}, nil
	}).Detach()
}

func runCaptured[T any](ctx context.Context, t *Task[T], fn func(context.Context, *Task[T]) (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.FromPanic(r)
		}
	}()
	return fn(ctx, t)
}

func zeroOf[T any]() T {
	var zero T
	return zero
}

// BlockingBridge runs fn on dest (which must be a blocking processor)
// and suspends the caller until it completes. Regular processors must
// never execute fn directly; this is the only legitimate path onto a
// blocking pool (spec.md §4.3/§5).
//
// Per spec.md §9's open question, cancellation of the caller is not
// observed while fn itself is running: the underlying blocking call
// has no cooperative suspension point, so cancellation is checked only
// before dispatch and is otherwise deferred until fn returns; a
// cancellation observed then is reported as Cancelled.
func BlockingBridge[T any](ctx context.Context, dest *Processor, fn func() (T, error)) (T, error) {
	if !dest.blocking {
		var zero T
		return zero, errs.New(errs.KindInvariant, "BlockingBridge target %q is not a blocking processor", dest.name)
	}
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, errs.Wrap(errs.KindCancelled, err)
	}
	task := Spawn(ctx, dest, func(_ context.Context, _ *Task[T]) (T, error) {
		return fn()
	})
	v, err := task.Await(context.Background())
	if ctxErr := ctx.Err(); ctxErr != nil {
		var zero T
		return zero, errs.Wrap(errs.KindCancelled, ctxErr)
	}
	return v, err
}

// Stop requests a graceful shutdown: stops accepting new jobs' workers
// after the current queue drains, waiting up to deadline.
func (p *Processor) Stop(deadline time.Duration) {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	done := make(chan struct{})
	go func() {
		// Let queued jobs that are already dispatched finish; new
		// submissions after cancel are rejected by Spawn's p.ctx
		// checks.
		p.cancel()
		p.workerWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(deadline):
		p.log.Warn("processor stop deadline exceeded, abandoning workers", zap.Duration("deadline", deadline))
	}
}

// Stats returns the processor's lifetime task counters.
func (p *Processor) Stats() (completed, panicked int64) {
	return p.tasksDone.Load(), p.tasksPanic.Load()
}
