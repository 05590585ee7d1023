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

package pinentry

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vagent-project/vagent/errkind"
)

// fakePinentry writes a minimal shell script that mimics the Assuan
// exchange this package speaks: one "OK" per SETTITLE/SETPROMPT/SETDESC,
// then a "D <secret>" line in response to GETPIN.
func fakePinentry(t *testing.T, secret string) string {
	t.Helper()
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("requires a POSIX shell")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "pinentry")
	script := "#!/bin/sh\n" +
		"while IFS= read -r line; do\n" +
		"  case \"$line\" in\n" +
		"    SETTITLE*) echo OK ;;\n" +
		"    SETPROMPT*) echo OK ;;\n" +
		"    SETDESC*) echo OK ;;\n" +
		"    GETPIN*) echo 'D " + secret + "'; echo OK ;;\n" +
		"  esac\n" +
		"done\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestExecRunnerPromptReturnsSecret(t *testing.T) {
	runner := ExecRunner{Path: fakePinentry(t, "hunter2")}
	secret, err := runner.Prompt(context.Background(), "vagent", "Master password", "Unlock the vault", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", secret)
}

func TestExecRunnerPromptFailsOnMissingBinary(t *testing.T) {
	runner := ExecRunner{Path: "/nonexistent/pinentry-binary"}
	_, err := runner.Prompt(context.Background(), "vagent", "Master password", "Unlock the vault", "", nil)
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.KindPinentryError))
}
