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

	"github.com/vagent-project/vagent/errkind"
)

func TestLoadAppliesDotEnvBeforeValidation(t *testing.T) {
	dirs := testDirs(t)
	envPath := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("VAGENT_LOG_LEVEL=debug\n"), 0o600))

	_, err := Load(dirs, LoaderOptions{DotEnvPath: envPath, SkipValidation: true})
	require.NoError(t, err)
	assert.Equal(t, "debug", LogLevel())
}

func TestLoadFailsValidationWithoutEmail(t *testing.T) {
	dirs := testDirs(t)
	_, err := Load(dirs, LoaderOptions{})
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.KindConfigMissingEmail))
}
