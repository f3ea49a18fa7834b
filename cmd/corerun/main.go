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

// Command corerun runs the concurrency/lifecycle core as a standalone
// process: a cobra command tree mirroring cmd/lind's shape, binding a
// parsed ManagerConfig to task processors, a reactor and a component
// container.
package main

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"github.com/lindb/corerun/pkg/logger"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "corerun: unhandled panic: %v\n", r)
			os.Exit(3)
		}
	}()

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.GetLogger("Main", "default").Sugar().Infof(format, args...)
	})); err != nil {
		logger.GetLogger("Main", "default").Warn("automaxprocs: failed to set GOMAXPROCS", zap.Error(err))
	}

	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

// exitError carries the spec's process exit code taxonomy (spec.md
// §6: 0 normal, 1 fatal construction error, 2 config parse error, 3
// unhandled panic post-startup) through cobra's RunE → main boundary.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configError(err error) error      { return &exitError{code: 2, err: err} }
func constructionError(err error) error { return &exitError{code: 1, err: err} }
