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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDotEnvMissingFileIsNotAnError(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "nonexistent.env")))
}

func TestLoadDotEnvSetsVariables(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("VAGENT_LOG_LEVEL=debug\n"), 0o600))
	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "debug", LogLevel())
}

func TestEditorCommandFallsBackToVi(t *testing.T) {
	t.Setenv("VISUAL", "")
	t.Setenv("EDITOR", "")
	assert.Equal(t, "vi", EditorCommand())

	t.Setenv("EDITOR", "nano")
	assert.Equal(t, "nano", EditorCommand())

	t.Setenv("VISUAL", "emacs")
	assert.Equal(t, "emacs", EditorCommand())
}

func TestAgentBinaryOverride(t *testing.T) {
	t.Setenv("VAGENT_AGENT", "")
	_, ok := AgentBinaryOverride()
	assert.False(t, ok)

	t.Setenv("VAGENT_AGENT", "/usr/local/bin/vagent-agent")
	path, ok := AgentBinaryOverride()
	assert.True(t, ok)
	assert.Equal(t, "/usr/local/bin/vagent-agent", path)
}
