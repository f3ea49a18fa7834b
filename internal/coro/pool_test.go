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

package coro

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPool_AcquireRelease(t *testing.T) {
	p := New("test", 2, 1, nil)
	require.EqualValues(t, 0, p.Alive())

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, p.Alive())

	c2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, p.Alive())

	p.Release(c1)
	p.Release(c2)
	require.EqualValues(t, 0, p.Alive())
}

func TestPool_TryAcquireFailsFastAtCapacity(t *testing.T) {
	p := New("test", 1, 0, nil)
	c1, err := p.TryAcquire()
	require.NoError(t, err)

	_, err = p.TryAcquire()
	require.Error(t, err)

	p.Release(c1)
	c2, err := p.TryAcquire()
	require.NoError(t, err)
	p.Release(c2)
}

func TestPool_AcquireBlocksUntilRelease(t *testing.T) {
	p := New("test", 1, 0, nil)
	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		c2, err := p.Acquire(context.Background())
		require.NoError(t, err)
		close(acquired)
		p.Release(c2)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire must block while the pool is at capacity")
	case <-time.After(50 * time.Millisecond):
	}

	p.Release(c1)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire did not unblock after release")
	}
}

func TestPool_AcquireRespectsContextCancellation(t *testing.T) {
	p := New("test", 1, 0, nil)
	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(c1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = p.Acquire(ctx)
	require.Error(t, err)
}

func TestPool_ReleaseOfForeignCoroDoesNotPanic(t *testing.T) {
	p1 := New("p1", 1, 0, nil)
	p2 := New("p2", 1, 0, nil)
	c, err := p2.Acquire(context.Background())
	require.NoError(t, err)

	require.NotPanics(t, func() { p1.Release(c) })
	require.EqualValues(t, 1, p2.Alive(), "foreign release must not affect the wrong pool's count")
}
