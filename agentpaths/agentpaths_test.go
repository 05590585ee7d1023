// Copyright (C) 2025 vagent-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package agentpaths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDirs(t *testing.T) Dirs {
	t.Helper()
	root := t.TempDir()
	t.Setenv("HOME", root)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(root, "cache"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "data"))
	t.Setenv("XDG_RUNTIME_DIR", filepath.Join(root, "runtime"))

	dirs, err := Resolve()
	require.NoError(t, err)
	return dirs
}

func TestResolveAndMakeAll(t *testing.T) {
	dirs := testDirs(t)
	require.NoError(t, dirs.MakeAll())

	for _, dir := range []string{dirs.Config, dirs.Cache, dirs.Data, dirs.Runtime} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	info, err := os.Stat(dirs.Runtime)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestDBFileEncodesServer(t *testing.T) {
	dirs := testDirs(t)
	path := dirs.DBFile("https://vault.example.com", "user@example.com")
	assert.Contains(t, path, "https%3A%2F%2Fvault.example.com")
	assert.Contains(t, path, "user@example.com.json")
}

func TestDeviceIDIsStablePersisted(t *testing.T) {
	dirs := testDirs(t)
	require.NoError(t, dirs.MakeAll())

	id1, err := dirs.DeviceID()
	require.NoError(t, err)
	assert.NotEmpty(t, id1)

	id2, err := dirs.DeviceID()
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestLocalSecretFileEncodesProfile(t *testing.T) {
	dirs := testDirs(t)
	path := dirs.LocalSecretFile("default profile")
	assert.Contains(t, path, "local_secret")
	assert.Contains(t, path, "default+profile")
}
