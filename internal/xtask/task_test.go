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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lindb/corerun/internal/errs"
)

func TestTask_CompleteIsExactlyOnce(t *testing.T) {
	task := newTask[int](nil)
	task.complete(1, nil)
	task.complete(2, errors.New("should be ignored"))

	v, err := task.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, v)
	require.Equal(t, StateCompleted, task.State())
}

func TestTask_CompleteWithCancelledSetsCancelledState(t *testing.T) {
	task := newTask[int](nil)
	task.complete(0, errs.Cancelled)
	require.Equal(t, StateCancelled, task.State())
}

func TestTask_DoubleAwaitIsRejected(t *testing.T) {
	task := newTask[int](nil)
	go task.complete(42, nil)

	_, err := task.Await(context.Background())
	require.NoError(t, err)

	_, err = task.Await(context.Background())
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errs.KindInvariant, kind)
}

func TestTask_AwaitRespectsContextCancellation(t *testing.T) {
	task := newTask[int](nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := task.Await(ctx)
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errs.KindCancelled, kind)
}

func TestTask_IsReady(t *testing.T) {
	task := newTask[int](nil)
	require.False(t, task.IsReady())
	task.complete(1, nil)
	require.True(t, task.IsReady())
}

func TestTask_Detach(t *testing.T) {
	task := newTask[int](nil)
	task.Detach()
	_, err := task.Await(context.Background())
	require.Error(t, err, "awaiting a detached task must reject the second joiner")
}
