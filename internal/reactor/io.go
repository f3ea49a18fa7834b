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

package reactor

import (
	"context"

	"github.com/lindb/corerun/internal/errs"
)

// Await suspends the calling task until op completes or ctx is done.
// op runs on its own goroutine (standing in for the registered fd
// readiness callback); its result is delivered back to the caller,
// which — because this is called from inside a task body already
// running on one of the owning processor's worker goroutines — resumes
// on that same processor, satisfying spec.md §4.1's "never execute on
// the reactor thread" invariant without an explicit re-queue step.
func Await[T any](ctx context.Context, op func() (T, error)) (T, error) {
	type outcome struct {
		v   T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := op()
		ch <- outcome{v, err}
	}()
	select {
	case o := <-ch:
		return o.v, o.err
	case <-ctx.Done():
		var zero T
		return zero, errs.Wrap(errs.KindCancelled, ctx.Err())
	}
}
