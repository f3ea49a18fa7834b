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

// Package logger provides the per-component structured loggers used
// throughout corerun, and the SIGUSR1-triggered reopen every sink
// supports.
package logger

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setting configures the logging sinks. Mirrors the teacher's
// env+toml dual-tagged config sections.
type Setting struct {
	Level string `env:"LEVEL" toml:"level"`
	Dir   string `env:"DIR" toml:"dir"`
}

// NewDefaultSetting returns the default logging configuration.
func NewDefaultSetting() *Setting {
	return &Setting{Level: "info", Dir: ""}
}

// TOML renders the [logging] section with its env var documented,
// matching the teacher's self-documenting default dump convention.
func (s *Setting) TOML(envPrefix string) string {
	return fmt.Sprintf(`
## Logging related configuration.
[logging]
## minimum level emitted
## Default: %s
## Env: %s_LOGGING_LEVEL
level = "%s"
## directory log files are written under; empty means stderr only
## Default: %q
## Env: %s_LOGGING_DIR
dir = %q`, s.Level, envPrefix, s.Level, s.Dir, envPrefix, s.Dir)
}

var (
	mu      sync.RWMutex
	base    *zap.Logger = zap.NewExample()
	atomLvl             = zap.NewAtomicLevel()
	sinks   []*lumberjack.Logger
)

// InitLogger (re)configures the process-wide base logger from Setting.
// fileName is used to derive one log file per logging sink the way the
// teacher's manager binds "lind-storage.log" / "lind-broker.log". A
// configured Dir backs the sink with lumberjack so Rotate can actually
// reopen the file instead of only flushing it.
func InitLogger(s Setting, fileName string) error {
	level := zapcore.InfoLevel
	if s.Level != "" {
		if err := level.Set(s.Level); err != nil {
			return fmt.Errorf("init logger: bad level %q: %w", s.Level, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	atomLvl.SetLevel(level)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	var core zapcore.Core
	if s.Dir != "" {
		lj := &lumberjack.Logger{Filename: s.Dir + "/" + fileName}
		core = zapcore.NewCore(encoder, zapcore.AddSync(lj), atomLvl)
		sinks = []*lumberjack.Logger{lj}
	} else {
		core = zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stderr)), atomLvl)
		sinks = nil
	}

	base = zap.New(core)
	return nil
}

// GetLogger returns a named logger scoped to module/component, e.g.
// logger.GetLogger("Pool", "storage-blocking").
func GetLogger(module, component string) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.Named(module + "." + component)
}

// Rotate closes and reopens every configured file sink at its
// configured path, so writes after an external logrotate-style rename
// land in a fresh file instead of the renamed-away inode. Bound to
// SIGUSR1 by the run loop (spec.md §6 Signals).
func Rotate() error {
	mu.RLock()
	s := sinks
	mu.RUnlock()

	var firstErr error
	for _, lj := range s {
		if err := lj.Rotate(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Sync flushes the base logger.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	return base.Sync()
}
