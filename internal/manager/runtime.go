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

package manager

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lindb/corerun/pkg/logger"
)

const defaultShutdownDeadline = 5 * time.Second

func msToDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

// NewCtxWithSignals returns a context cancelled on SIGINT/SIGTERM, and
// the stop func that releases the underlying signal.Notify
// registration — the way cmd/lind's newCtxWithSignals feeds
// serveStorage/serveStandalone (spec.md §6 Signals). SIGUSR1 is
// handled separately by WatchLogRotation, since a log reopen must not
// cancel the run context.
func NewCtxWithSignals() (context.Context, func()) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// WatchLogRotation starts a goroutine that calls logger.Rotate() on
// every SIGUSR1 until ctx is done (spec.md §6 Signals: "SIGUSR1 → log
// rotation: every logging sink reopens its file").
func WatchLogRotation(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1)
	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigCh:
				if err := logger.Rotate(); err != nil {
					logger.GetLogger("Manager", "default").Error("log rotation failed", zap.Error(err))
				}
			}
		}
	}()
}

// Run builds the manager's component container, blocks until ctx is
// cancelled (SIGINT/SIGTERM), then shuts down (spec.md §4.9 "run":
// "loops until shutdown").
func Run(ctx context.Context, m *Manager) error {
	WatchLogRotation(ctx)
	if err := m.Build(); err != nil {
		return err
	}
	<-ctx.Done()
	return m.Shutdown(m.cfg.ComponentsManager.ShutdownDeadlineMillis)
}

// RunOnce builds the container, then immediately tears it down —
// spec.md §4.9 "run_once": "constructs, quiesces, tears down — for
// tests".
func RunOnce(m *Manager) error {
	if err := m.Build(); err != nil {
		return err
	}
	return m.Shutdown(m.cfg.ComponentsManager.ShutdownDeadlineMillis)
}
