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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lindb/corerun/config"
	"github.com/lindb/corerun/internal/container"
)

func TestNew_RejectsUnknownDefaultTaskProcessor(t *testing.T) {
	cfg := config.NewDefaultManagerConfig()
	cfg.ComponentsManager.DefaultTaskProcessor = "does-not-exist"

	_, err := New(cfg, nil)
	require.Error(t, err)
}

func TestNew_ExposesConfiguredProcessors(t *testing.T) {
	cfg := config.NewDefaultManagerConfig()
	m, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(100) })

	require.NotNil(t, m.Default())

	p, ok := m.Processor("fs-task-processor")
	require.True(t, ok)
	require.True(t, p.IsBlocking())

	_, ok = m.Processor("missing")
	require.False(t, ok)
}

func TestManager_BuildAndShutdownRoundTrip(t *testing.T) {
	cfg := config.NewDefaultManagerConfig()
	m, err := New(cfg, nil)
	require.NoError(t, err)

	var built, closed bool
	m.Container().Register("widget", func(_ *container.Container) (any, error) {
		built = true
		return &recordingCloser{closed: &closed}, nil
	}, true)

	require.NoError(t, m.Build())
	require.True(t, built)

	_, ok := m.Container().Monitorable()["widget"]
	require.True(t, ok)

	require.NoError(t, m.Shutdown(100))
	require.True(t, closed)
}

type recordingCloser struct {
	closed *bool
}

func (r *recordingCloser) Close() error {
	*r.closed = true
	return nil
}
