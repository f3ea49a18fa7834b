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

// Package manager binds a parsed ManagerConfig to a running set of
// task processors, a reactor and a component container (spec.md
// §4.9): the collaborator the run loop in cmd/corerun drives.
//
// Grounded on the shape implied by cmd/lind/storage.go's
// serveStorage/run(ctx, runtime, reloadFn): a runtime object built
// from config, handed to a generic run helper that blocks until a
// termination signal, then tears down in reverse order.
package manager

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lindb/corerun/config"
	"github.com/lindb/corerun/internal/container"
	"github.com/lindb/corerun/internal/coro"
	"github.com/lindb/corerun/internal/metrics"
	"github.com/lindb/corerun/internal/reactor"
	"github.com/lindb/corerun/internal/xtask"
	"github.com/lindb/corerun/pkg/logger"
)

// Manager owns the task processors, reactor and component container
// built from a ManagerConfig (spec.md §4.9).
type Manager struct {
	cfg        *config.ManagerConfig
	processors map[string]*xtask.Processor
	defaultTP  *xtask.Processor
	react      *reactor.Reactor
	container  *container.Container
	log        *zap.Logger
}

// New constructs task processors and a reactor from cfg, but does not
// build the component container yet — callers register component
// factories against Container() before calling Build. reg is the
// prometheus registry the scheduler metrics (spec.md §1.1: tasks
// consumed, panics, coroutines alive) are registered against; pass nil
// to skip metrics entirely (e.g. from tests).
func New(cfg *config.ManagerConfig, reg prometheus.Registerer) (*Manager, error) {
	var stats *metrics.Concurrent
	if reg != nil {
		stats = metrics.NewConcurrent(reg)
	}

	m := &Manager{
		cfg:        cfg,
		processors: make(map[string]*xtask.Processor),
		react:      reactor.New("main"),
		container:  container.New("corerun"),
		log:        logger.GetLogger("Manager", "default"),
	}

	for _, tpCfg := range cfg.ComponentsManager.TaskProcessors {
		pool := coro.New(tpCfg.Name+"-coros", tpCfg.MaxCoros, tpCfg.IdleCoros, stats)
		proc := xtask.New(tpCfg.Name, tpCfg.WorkerThreads, pool, tpCfg.Blocking, stats)
		m.processors[tpCfg.Name] = proc
	}

	defaultTP, ok := m.processors[cfg.ComponentsManager.DefaultTaskProcessor]
	if !ok {
		return nil, fmt.Errorf("manager: default task processor %q is not in task-processors",
			cfg.ComponentsManager.DefaultTaskProcessor)
	}
	m.defaultTP = defaultTP
	return m, nil
}

// Processor returns the named task processor, or the default one if
// name is empty.
func (m *Manager) Processor(name string) (*xtask.Processor, bool) {
	if name == "" {
		return m.defaultTP, true
	}
	p, ok := m.processors[name]
	return p, ok
}

// Default returns the configured default task processor.
func (m *Manager) Default() *xtask.Processor { return m.defaultTP }

// Reactor returns the manager's single reactor.
func (m *Manager) Reactor() *reactor.Reactor { return m.react }

// Container returns the component container, for Register calls made
// before Build.
func (m *Manager) Container() *container.Container { return m.container }

// Config returns the bound ManagerConfig.
func (m *Manager) Config() *config.ManagerConfig { return m.cfg }

// Build constructs every registered component in dependency order
// (spec.md §4.9 / §2.7). Fatal on error — construction errors are
// process exit code 1 (spec.md §6).
func (m *Manager) Build() error {
	return m.container.Build()
}

// Shutdown drains task processors up to their configured deadline and
// tears down the container in reverse construction order (spec.md §6
// Signals: "drain tasks up to shutdown_deadline, then abort
// outstanding").
func (m *Manager) Shutdown(deadlineMillis int) error {
	shutdownErr := m.container.Shutdown()

	deadline := defaultShutdownDeadline
	if deadlineMillis > 0 {
		deadline = msToDuration(deadlineMillis)
	}
	for name, proc := range m.processors {
		m.log.Info("stopping task processor", zap.String("processor", name))
		proc.Stop(deadline)
	}
	m.react.Close()
	return shutdownErr
}
