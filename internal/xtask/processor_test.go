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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lindb/corerun/internal/coro"
	"github.com/lindb/corerun/internal/errs"
)

func newTestProcessor(t *testing.T, workers int) *Processor {
	t.Helper()
	pool := coro.New(t.Name(), 8, 8, nil)
	p := New(t.Name(), workers, pool, false, nil)
	t.Cleanup(func() { p.Stop(time.Second) })
	return p
}

func TestSpawn_ReturnsValueOnSuccess(t *testing.T) {
	p := newTestProcessor(t, 2)

	task := Spawn(context.Background(), p, func(_ context.Context, _ *Task[int]) (int, error) {
		return 7, nil
	})

	v, err := task.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, v)

	completed, panicked := p.Stats()
	require.EqualValues(t, 1, completed)
	require.EqualValues(t, 0, panicked)
}

func TestSpawn_PanicIsCapturedAsError(t *testing.T) {
	p := newTestProcessor(t, 2)

	task := Spawn(context.Background(), p, func(_ context.Context, _ *Task[int]) (int, error) {
		panic("boom")
	})

	_, err := task.Await(context.Background())
	require.Error(t, err)

	_, panicked := p.Stats()
	require.EqualValues(t, 1, panicked)
}

func TestSpawn_FnSeesItselfAsCurrentProcessor(t *testing.T) {
	p := newTestProcessor(t, 1)

	task := Spawn(context.Background(), p, func(ctx context.Context, _ *Task[bool]) (bool, error) {
		current, ok := Current(ctx)
		return ok && current == p, nil
	})

	v, err := task.Await(context.Background())
	require.NoError(t, err)
	require.True(t, v)
}

func TestSpawnDetached_RunsWithoutAJoiner(t *testing.T) {
	p := newTestProcessor(t, 1)
	done := make(chan struct{})

	SpawnDetached(context.Background(), p, func(_ context.Context) {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("detached task never ran")
	}
}

func TestProcessor_StopDrainsQueuedJobs(t *testing.T) {
	pool := coro.New(t.Name(), 4, 4, nil)
	p := New(t.Name(), 1, pool, false, nil)

	results := make(chan int, 3)
	for i := 0; i < 3; i++ {
		i := i
		Spawn(context.Background(), p, func(_ context.Context, _ *Task[struct{}]) (struct{}, error) {
			results <- i
			return struct{}{}, nil
		})
	}

	p.Stop(time.Second)

	require.Len(t, results, 3, "jobs queued before Stop must still complete during the drain")
}

func TestBlockingBridge_RejectsNonBlockingDestination(t *testing.T) {
	p := newTestProcessor(t, 1)

	_, err := BlockingBridge(context.Background(), p, func() (int, error) {
		return 1, nil
	})
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errs.KindInvariant, kind)
}

func TestBlockingBridge_RunsOnBlockingProcessor(t *testing.T) {
	pool := coro.New(t.Name(), 2, 2, nil)
	dest := New(t.Name()+"-blocking", 1, pool, true, nil)
	t.Cleanup(func() { dest.Stop(time.Second) })

	v, err := BlockingBridge(context.Background(), dest, func() (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", v)
}

func TestBlockingBridge_RejectsAlreadyCancelledContext(t *testing.T) {
	pool := coro.New(t.Name(), 2, 2, nil)
	dest := New(t.Name()+"-blocking", 1, pool, true, nil)
	t.Cleanup(func() { dest.Stop(time.Second) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := BlockingBridge(ctx, dest, func() (int, error) {
		return 1, nil
	})
	require.Error(t, err)
}

func TestCurrent_ReturnsFalseOutsideATask(t *testing.T) {
	_, ok := Current(context.Background())
	require.False(t, ok)
}
