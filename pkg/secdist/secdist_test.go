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

package secdist

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// userPasswords mirrors the original's "Secdist Usage Sample -
// UserPasswords" snippet: a named section decoded into a concrete Go
// type via the registry.
type userPasswords struct {
	ByUser map[string]string
}

func init() {
	Register[userPasswords]("user-passwords", func(data json.RawMessage) (userPasswords, error) {
		var m map[string]string
		if err := json.Unmarshal(data, &m); err != nil {
			return userPasswords{}, err
		}
		return userPasswords{ByUser: m}, nil
	})
}

func writeTempDoc(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "secdist.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestSecdist_LoadsFromFileAndDecodesModule(t *testing.T) {
	path := writeTempDoc(t, `{"user-passwords":{"alice":"s3cr3t"}}`)
	s, err := New(Settings{ConfigPath: path}, nil, nil)
	require.NoError(t, err)

	doc, err := s.Get()
	require.NoError(t, err)
	up, err := Get[userPasswords](doc)
	require.NoError(t, err)
	require.Equal(t, "s3cr3t", up.ByUser["alice"])
}

func TestSecdist_MissingFileErrorsUnlessMissingOK(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")

	_, err := New(Settings{ConfigPath: path}, nil, nil)
	require.Error(t, err)

	s, err := New(Settings{ConfigPath: path, MissingOK: true}, nil, nil)
	require.NoError(t, err)
	doc, err := s.Get()
	require.NoError(t, err)
	_, err = Get[userPasswords](doc)
	require.Error(t, err, "an empty document has no user-passwords section")
}

func TestSecdist_EnvironmentOverlayMergesObjectFields(t *testing.T) {
	path := writeTempDoc(t, `{"user-passwords":{"alice":"file-secret","bob":"file-secret-2"}}`)
	key := "COREDIST_SECRETS_TEST"
	t.Setenv(key, `{"user-passwords":{"alice":"env-secret"}}`)

	s, err := New(Settings{ConfigPath: path, EnvironmentSecretsKey: key}, nil, nil)
	require.NoError(t, err)

	doc, err := s.Get()
	require.NoError(t, err)
	up, err := Get[userPasswords](doc)
	require.NoError(t, err)
	require.Equal(t, "env-secret", up.ByUser["alice"], "env overlay wins per-field")
	require.Equal(t, "file-secret-2", up.ByUser["bob"], "untouched fields survive the merge")
}

func TestSecdist_ReloadIgnoresBadDocumentAndKeepsPrevious(t *testing.T) {
	path := writeTempDoc(t, `{"user-passwords":{"alice":"v1"}}`)
	s, err := New(Settings{ConfigPath: path}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o600))
	s.Reload()

	doc, err := s.Get()
	require.NoError(t, err)
	up, err := Get[userPasswords](doc)
	require.NoError(t, err)
	require.Equal(t, "v1", up.ByUser["alice"], "a reload that fails to parse must not clobber the live document")
}

func TestSecdist_GetSnapshotIsIndependentOfLaterReload(t *testing.T) {
	path := writeTempDoc(t, `{"user-passwords":{"alice":"v1"}}`)
	s, err := New(Settings{ConfigPath: path}, nil, nil)
	require.NoError(t, err)

	snap, err := s.GetSnapshot()
	require.NoError(t, err)
	defer snap.Close()

	require.NoError(t, os.WriteFile(path, []byte(`{"user-passwords":{"alice":"v2"}}`), 0o600))
	s.Reload()

	frozen, err := Get[userPasswords](*snap.Get())
	require.NoError(t, err)
	require.Equal(t, "v1", frozen.ByUser["alice"], "a snapshot taken before a reload must not observe it")

	fresh, err := s.Get()
	require.NoError(t, err)
	up, err := Get[userPasswords](fresh)
	require.NoError(t, err)
	require.Equal(t, "v2", up.ByUser["alice"])
}

func TestSecdist_Get_UnregisteredTypeErrors(t *testing.T) {
	type unregistered struct{}
	path := writeTempDoc(t, `{}`)
	s, err := New(Settings{ConfigPath: path}, nil, nil)
	require.NoError(t, err)

	doc, err := s.Get()
	require.NoError(t, err)
	_, err = Get[unregistered](doc)
	require.Error(t, err)
}
