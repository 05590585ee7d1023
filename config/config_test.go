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

package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vagent-project/vagent/agentpaths"
	"github.com/vagent-project/vagent/vaultmodel"
)

func testDirs(t *testing.T) agentpaths.Dirs {
	t.Helper()
	root := t.TempDir()
	return agentpaths.Dirs{
		Config:  filepath.Join(root, "config"),
		Cache:   filepath.Join(root, "cache"),
		Data:    filepath.Join(root, "data"),
		Runtime: filepath.Join(root, "runtime"),
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dirs := testDirs(t)
	cfg := &vaultmodel.Config{Email: "user@example.com", BaseURL: "https://vault.example.com"}
	require.NoError(t, Save(dirs, cfg))

	loaded, err := Load(dirs, LoaderOptions{SkipValidation: true})
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", loaded.Email)
	assert.Equal(t, uint32(vaultmodel.DefaultLockTimeoutSecs), loaded.LockTimeoutSecs)
}

func TestLoadMissingFileReturnsDefaultedEmptyConfig(t *testing.T) {
	dirs := testDirs(t)
	cfg, err := Load(dirs, LoaderOptions{SkipValidation: true})
	require.NoError(t, err)
	assert.Equal(t, uint32(vaultmodel.DefaultLockTimeoutSecs), cfg.LockTimeoutSecs)
}

func TestValidateRequiresEmail(t *testing.T) {
	err := Validate(&vaultmodel.Config{})
	require.Error(t, err)
}

func TestBaseURLAndIdentityURLDefaults(t *testing.T) {
	cfg := &vaultmodel.Config{}
	assert.Equal(t, defaultBaseURL, BaseURL(cfg))
	assert.Equal(t, defaultIdentityURL, IdentityURL(cfg))

	cfg.BaseURL = "https://vault.example.com/"
	assert.Equal(t, "https://vault.example.com/api", BaseURL(cfg))
	assert.Equal(t, "https://vault.example.com/identity", IdentityURL(cfg))
}

func TestLoadSaveDbRoundTrips(t *testing.T) {
	dirs := testDirs(t)
	require.NoError(t, dirs.MakeAll())
	cfg := &vaultmodel.Config{Email: "user@example.com", BaseURL: "https://vault.example.com"}

	db, err := LoadDb(dirs, cfg)
	require.NoError(t, err)
	assert.Empty(t, db.AccessToken)

	db.AccessToken = "tok"
	require.NoError(t, SaveDb(dirs, cfg, db))

	reloaded, err := LoadDb(dirs, cfg)
	require.NoError(t, err)
	assert.Equal(t, "tok", reloaded.AccessToken)
}
