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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lindb/corerun/config"
	"github.com/lindb/corerun/internal/container"
	"github.com/lindb/corerun/internal/dnsresolver"
	"github.com/lindb/corerun/internal/manager"
	"github.com/lindb/corerun/internal/metrics"
	"github.com/lindb/corerun/pkg/logger"
	"github.com/lindb/corerun/pkg/secdist"
)

// metricsRegistry is this process's prometheus registry. The core
// never serves it itself (spec.md §1 Non-goals: serving HTTP); an
// external collector scrapes whatever the embedding binary wires it
// into.
var metricsRegistry = prometheus.NewRegistry()

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "start the core and run until SIGINT/SIGTERM",
	RunE:  serve,
}

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "construct every component, quiesce, and tear down immediately (for tests)",
	RunE:  serveOnce,
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "write a new default config file",
	RunE: func(_ *cobra.Command, _ []string) error {
		path := cfgPath
		if path == "" {
			path = defaultCfgFile
		}
		if err := checkExistenceOf(path); err != nil {
			return err
		}
		return os.WriteFile(path, []byte(config.TOML(config.NewDefaultManagerConfig())), 0o644)
	},
}

func loadManagerConfig() (*config.ManagerConfig, error) {
	path := cfgPath
	if path == "" {
		path = defaultCfgFile
	}
	cfg := config.NewDefaultManagerConfig()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := config.Load(config.FromFile(path), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildManager loads config, initializes logging and constructs a
// manager.Manager with this binary's example component set wired in
// (the DNS resolver and the secdist credential loader), the way
// cmd/lind's serveStorage wires app/storage's component set into its
// own runtime.
func buildManager() (*manager.Manager, error) {
	cfg, err := loadManagerConfig()
	if err != nil {
		return nil, configError(err)
	}
	if err := logger.InitLogger(cfg.Logging, logFileName); err != nil {
		return nil, configError(fmt.Errorf("init logger: %w", err))
	}

	m, err := manager.New(cfg, metricsRegistry)
	if err != nil {
		return nil, constructionError(err)
	}

	registerComponents(m)
	return m, nil
}

// registerComponents registers this binary's component factories
// against the container, resolved in whatever order their
// FindComponent dependencies require (spec.md §2.7/§4.9).
func registerComponents(m *manager.Manager) {
	c := m.Container()

	c.Register("secdist", func(_ *container.Container) (any, error) {
		var settings secdist.Settings
		if err := m.Config().DecodeComponent("secdist", &settings); err != nil {
			settings = secdist.Settings{MissingOK: true}
		}
		return secdist.New(settings, m.Default(), m.Reactor())
	}, true)

	c.Register("dns-resolver", func(cc *container.Container) (any, error) {
		if _, err := container.FindComponent[*secdist.Secdist](cc, "secdist"); err != nil {
			return nil, err
		}
		dnsCfg := dnsresolver.DefaultConfig("127.0.0.1:53")
		proc, _ := m.Processor("")
		return dnsresolver.New(dnsCfg, proc, m.Reactor(), metrics.NewResolver(metricsRegistry))
	}, true)
}

func serve(_ *cobra.Command, _ []string) error {
	m, err := buildManager()
	if err != nil {
		return err
	}
	ctx, stop := manager.NewCtxWithSignals()
	defer stop()
	if err := manager.Run(ctx, m); err != nil {
		return constructionError(err)
	}
	return nil
}

func serveOnce(_ *cobra.Command, _ []string) error {
	m, err := buildManager()
	if err != nil {
		return err
	}
	if err := manager.RunOnce(m); err != nil {
		return constructionError(err)
	}
	return nil
}
