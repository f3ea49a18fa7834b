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

// Package config parses the components_manager configuration tree
// (spec.md §6) that binds task processors, the event thread pool and
// per-component subtrees to the manager.
//
// Grounded on config/storage.go's TOML()-self-documenting-default-dump
// convention and its env:"..." toml:"..." dual-tag structs; the
// caarlos0/env override pass mirrors how the teacher layers
// environment variables on top of a parsed TOML document.
package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	env "github.com/caarlos0/env/v7"

	"github.com/lindb/corerun/pkg/logger"
)

// TaskProcessorConfig describes one named worker pool (spec.md §2.3).
type TaskProcessorConfig struct {
	Name          string `env:"NAME" toml:"name"`
	WorkerThreads int    `env:"WORKER_THREADS" toml:"worker-threads"`
	Blocking      bool   `env:"BLOCKING" toml:"blocking"`
	MaxCoros      int    `env:"MAX_COROS" toml:"max-coros"`
	IdleCoros     int    `env:"IDLE_COROS" toml:"idle-coros"`
}

// EventThreadPool configures the reactor pool (spec.md §2.1).
type EventThreadPool struct {
	Threads int `env:"THREADS" toml:"threads"`
}

// ComponentsManager is the components_manager tree (spec.md §6).
type ComponentsManager struct {
	TaskProcessors        []TaskProcessorConfig    `toml:"task-processors"`
	DefaultTaskProcessor  string                   `env:"DEFAULT_TASK_PROCESSOR" toml:"default-task-processor"`
	EventThreadPool       EventThreadPool          `envPrefix:"EVENT_THREAD_POOL_" toml:"event-thread-pool"`
	Components            map[string]toml.Primitive `toml:"components"`
	ShutdownDeadlineMillis int                      `env:"SHUTDOWN_DEADLINE_MILLIS" toml:"shutdown-deadline-millis"`
}

// ManagerConfig is the document's root.
type ManagerConfig struct {
	ComponentsManager ComponentsManager `envPrefix:"LINDB_COMPONENTS_MANAGER_" toml:"components_manager"`
	Logging           logger.Setting    `envPrefix:"LINDB_LOGGING_" toml:"logging"`

	meta toml.MetaData // retained so component subtrees can be decoded later
}

// DecodeComponent decodes the named component's subtree into dst,
// the way each component receives its own ComponentConfig (spec.md
// §6).
func (m *ManagerConfig) DecodeComponent(name string, dst any) error {
	prim, ok := m.ComponentsManager.Components[name]
	if !ok {
		return fmt.Errorf("config: no subtree for component %q", name)
	}
	return m.meta.PrimitiveDecode(prim, dst)
}

// Source distinguishes a config file path from in-memory config text,
// per spec.md §6's "alternate entry point accepts in-memory config
// text, distinguished from a file path by a tagged wrapper".
type Source struct {
	path   string
	text   []byte
	inline bool
}

// FromFile builds a Source reading from the given file path.
func FromFile(path string) Source { return Source{path: path} }

// FromText builds a Source parsing text directly, without touching
// the filesystem. The corerun commands load from files only.
func FromText(text []byte) Source { return Source{text: text, inline: true} }

// Load parses src into dst and applies environment variable overrides
// on top.
func Load(src Source, dst *ManagerConfig) error {
	var data []byte
	if src.inline {
		data = src.text
	} else {
		b, err := os.ReadFile(src.path)
		if err != nil {
			return fmt.Errorf("config: read %q: %w", src.path, err)
		}
		data = b
	}

	meta, err := toml.NewDecoder(bytes.NewReader(data)).Decode(dst)
	if err != nil {
		return fmt.Errorf("config: parse: %w", err)
	}
	dst.meta = meta

	if err := env.Parse(dst); err != nil {
		return fmt.Errorf("config: env override: %w", err)
	}
	return nil
}

// NewDefaultManagerConfig returns a minimally viable default
// configuration: one default task processor, one blocking-bridge
// processor, a single-threaded event pool.
func NewDefaultManagerConfig() *ManagerConfig {
	return &ManagerConfig{
		ComponentsManager: ComponentsManager{
			TaskProcessors: []TaskProcessorConfig{
				{Name: "main-task-processor", WorkerThreads: 4, MaxCoros: 512, IdleCoros: 64},
				{Name: "fs-task-processor", WorkerThreads: 2, Blocking: true, MaxCoros: 64, IdleCoros: 16},
			},
			DefaultTaskProcessor:   "main-task-processor",
			EventThreadPool:        EventThreadPool{Threads: 1},
			Components:             map[string]toml.Primitive{},
			ShutdownDeadlineMillis: 5000,
		},
		Logging: *logger.NewDefaultSetting(),
	}
}

// TOML renders the self-documenting default configuration dump, the
// way config/storage.go's NewDefaultStorageTOML does.
func TOML(cfg *ManagerConfig) string {
	return fmt.Sprintf(`## corerun components_manager configuration.
[components_manager]
## Env: LINDB_COMPONENTS_MANAGER_DEFAULT_TASK_PROCESSOR
default-task-processor = %q
## Env: LINDB_COMPONENTS_MANAGER_SHUTDOWN_DEADLINE_MILLIS
shutdown-deadline-millis = %d

[components_manager.event-thread-pool]
## Env: LINDB_COMPONENTS_MANAGER_EVENT_THREAD_POOL_THREADS
threads = %d
%s`,
		cfg.ComponentsManager.DefaultTaskProcessor,
		cfg.ComponentsManager.ShutdownDeadlineMillis,
		cfg.ComponentsManager.EventThreadPool.Threads,
		cfg.Logging.TOML("LINDB"),
	)
}
