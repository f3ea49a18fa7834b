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

// Package secdist loads the credentials document (spec.md §6.1):
// a JSON file merged with an optional environment-variable overlay,
// published as an RCU snapshot and re-broadcast on reload.
//
// Grounded on storages/secdist/secdist.hpp (SecdistConfig's per-type
// Register/Get slots, Secdist's GetSnapshot/UpdateAndListen, file +
// "environment_secrets_key" merge rule) — the type-indexed slot table
// is rendered here with reflect.Type map keys and Go generics rather
// than the original's per-template static index_, since Go has no
// per-instantiation static storage to exploit the same way.
package secdist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/google/uuid"

	"github.com/lindb/corerun/internal/errs"
	"github.com/lindb/corerun/internal/reactor"
	"github.com/lindb/corerun/internal/xtask"
	"github.com/lindb/corerun/pkg/event"
	"github.com/lindb/corerun/pkg/logger"
	"github.com/lindb/corerun/pkg/rcu"
)

// Document is the parsed credentials tree: a flat map of top-level
// section name to that section's raw JSON, the way the original keys
// modules by the JSON object's top-level fields (e.g.
// "user-passwords").
type Document struct {
	sections map[string]json.RawMessage
}

// ParseDocument parses a JSON object into a Document. The document
// root must be a JSON object; nothing deeper is interpreted until a
// module's factory is invoked against its own section.
func ParseDocument(data []byte) (Document, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("secdist: parse: %w", err)
	}
	return Document{sections: raw}, nil
}

// mergeDocuments merges override into base: object-typed sections
// present in both are merged key-by-key, with override's keys
// winning; any other duplicate section is replaced outright by
// override (storages/secdist/secdist.hpp: "json objects will be
// merged, duplicate fields of other types will be overridden").
func mergeDocuments(base, override Document) Document {
	merged := make(map[string]json.RawMessage, len(base.sections)+len(override.sections))
	for k, v := range base.sections {
		merged[k] = v
	}
	for k, overrideVal := range override.sections {
		baseVal, exists := merged[k]
		if exists && isJSONObject(baseVal) && isJSONObject(overrideVal) {
			merged[k] = mergeObjects(baseVal, overrideVal)
			continue
		}
		merged[k] = overrideVal
	}
	return Document{sections: merged}
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func mergeObjects(base, override json.RawMessage) json.RawMessage {
	var baseMap, overrideMap map[string]json.RawMessage
	if err := json.Unmarshal(base, &baseMap); err != nil {
		return override
	}
	if err := json.Unmarshal(override, &overrideMap); err != nil {
		return override
	}
	for k, v := range overrideMap {
		baseMap[k] = v
	}
	out, err := json.Marshal(baseMap)
	if err != nil {
		return override
	}
	return out
}

// moduleEntry is one registered section factory.
type moduleEntry struct {
	section string
	decode  func(data json.RawMessage) (any, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[reflect.Type]moduleEntry{}
)

// Register binds type T to the named top-level section: Get[T] will
// look up that section and run factory against its raw JSON. Intended
// to be called from package init, mirroring the original's
// Register<T> static-initialization slot assignment.
func Register[T any](section string, factory func(data json.RawMessage) (T, error)) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t] = moduleEntry{
		section: section,
		decode: func(data json.RawMessage) (any, error) {
			return factory(data)
		},
	}
}

// Get decodes the section registered for T out of doc.
func Get[T any](doc Document) (T, error) {
	var zero T
	t := reflect.TypeOf((*T)(nil)).Elem()
	registryMu.RLock()
	entry, ok := registry[t]
	registryMu.RUnlock()
	if !ok {
		return zero, errs.New(errs.KindDependencyMissing, "secdist: no module registered for %s", t)
	}
	raw, ok := doc.sections[entry.section]
	if !ok {
		return zero, errs.New(errs.KindDependencyMissing, "secdist: document has no %q section", entry.section)
	}
	v, err := entry.decode(raw)
	if err != nil {
		return zero, fmt.Errorf("secdist: decode %q: %w", entry.section, err)
	}
	decoded, ok := v.(T)
	if !ok {
		return zero, errs.New(errs.KindInvariant, "secdist: factory for %s returned unexpected type", t)
	}
	return decoded, nil
}

// Settings configures a Secdist instance (spec.md §6.1).
type Settings struct {
	ConfigPath            string `env:"CONFIG_PATH" toml:"config-path"`
	MissingOK             bool   `env:"MISSING_OK" toml:"missing-ok"`
	EnvironmentSecretsKey string `env:"ENVIRONMENT_SECRETS_KEY" toml:"environment-secrets-key"`
	UpdatePeriod          time.Duration `env:"UPDATE_PERIOD" toml:"update-period"`
}

// Secdist owns the live credentials snapshot and its reload broadcast.
type Secdist struct {
	settings Settings
	variable *rcu.Variable[Document]
	channel  *event.Channel[Document]
	proc     *xtask.Processor
	react    *reactor.Reactor
	log      *zap.Logger
	cancel   func()
}

// New loads the initial document from settings and constructs a
// Secdist. If UpdatePeriod is positive, a periodic reload loop is
// started on proc, driven by react's timers.
func New(settings Settings, proc *xtask.Processor, react *reactor.Reactor) (*Secdist, error) {
	doc, err := load(settings)
	if err != nil {
		return nil, err
	}
	s := &Secdist{
		settings: settings,
		variable: rcu.New(doc),
		channel:  event.New[Document]("secdist"),
		proc:     proc,
		react:    react,
		log:      logger.GetLogger("Secdist", "default"),
	}
	if settings.UpdatePeriod > 0 {
		s.startPeriodicUpdate()
	}
	return s, nil
}

func load(settings Settings) (Document, error) {
	fileDoc := Document{sections: map[string]json.RawMessage{}}
	if settings.ConfigPath != "" {
		data, err := os.ReadFile(settings.ConfigPath)
		switch {
		case err == nil:
			fileDoc, err = ParseDocument(data)
			if err != nil {
				return Document{}, err
			}
		case errors.Is(err, os.ErrNotExist) && settings.MissingOK:
			// no file: treated as an empty document, per Settings.MissingOK.
		default:
			return Document{}, fmt.Errorf("secdist: read %q: %w", settings.ConfigPath, err)
		}
	}

	envDoc := Document{sections: map[string]json.RawMessage{}}
	if settings.EnvironmentSecretsKey != "" {
		if raw := os.Getenv(settings.EnvironmentSecretsKey); raw != "" {
			d, err := ParseDocument([]byte(raw))
			if err != nil {
				return Document{}, fmt.Errorf("secdist: env %s: %w", settings.EnvironmentSecretsKey, err)
			}
			envDoc = d
		}
	}

	return mergeDocuments(fileDoc, envDoc), nil
}

// Get returns the document loaded at construction time (or the most
// recent reload), without taking an RCU snapshot — use GetSnapshot for
// a handle stable across concurrent reloads.
func (s *Secdist) Get() (Document, error) {
	return s.variable.ReadCopy()
}

// GetSnapshot returns a live RCU snapshot reader. The caller must
// Close it.
func (s *Secdist) GetSnapshot() (*rcu.ReadPtr[Document], error) {
	return s.variable.Read()
}

// UpdateAndListen subscribes callback to reloads on owner, invoking it
// once immediately with the current document and again on every
// subsequent successful reload (spec.md §6.1, mirroring
// Secdist::UpdateAndListen).
func (s *Secdist) UpdateAndListen(name string, owner *xtask.Processor, callback func(Document)) (*event.Scope, error) {
	return event.UpdateAndListen(s.channel, name, owner, s.variable, callback, callback)
}

// Reload re-reads the configured sources and, on success, commits the
// new document and broadcasts it to subscribers. A parse failure is
// logged and otherwise ignored — a bad reload must never crash the
// process (spec.md §6.1).
func (s *Secdist) Reload() {
	auditID := uuid.NewString()
	doc, err := load(s.settings)
	if err != nil {
		s.log.Error("secdist reload failed, keeping previous document",
			zap.String("audit_id", auditID), zap.Error(err))
		return
	}
	if err := s.variable.Assign(doc); err != nil {
		s.log.Error("secdist commit failed", zap.String("audit_id", auditID), zap.Error(err))
		return
	}
	s.log.Info("secdist reloaded", zap.String("audit_id", auditID))
	s.channel.Publish(doc)
}

func (s *Secdist) startPeriodicUpdate() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	xtask.SpawnDetached(ctx, s.proc, func(taskCtx context.Context) {
		for {
			if err := s.react.SleepUntil(taskCtx, time.Now().Add(s.settings.UpdatePeriod)); err != nil {
				return
			}
			s.Reload()
		}
	})
}

// Close stops the periodic reload loop, if any, and closes the
// underlying RCU variable.
func (s *Secdist) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.variable.Close()
	return nil
}
