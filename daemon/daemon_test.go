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

package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain re-execs this test binary as the daemon child when
// VAGENT_DAEMON_CHILD is set, the same "helper process" pattern the
// standard library's os/exec tests use to exercise real process spawning
// without a separate fixture binary.
func TestMain(m *testing.M) {
	if IsChild() {
		runHelperChild()
		return
	}
	os.Exit(m.Run())
}

func runHelperChild() {
	switch {
	case os.Getenv("VAGENT_DAEMON_TEST_FAIL") == "1":
		Notify(assert.AnError)
		os.Exit(1)
	case os.Getenv("VAGENT_DAEMON_TEST_ALREADY_RUNNING") == "1":
		Notify(ErrAlreadyRunning)
		os.Exit(AlreadyRunningExitCode)
	}
	Notify(nil)
	time.Sleep(50 * time.Millisecond)
	os.Exit(0)
}

func TestPidLockExcludesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pidfile")

	lock, err := AcquirePidLock(path)
	require.NoError(t, err)
	defer lock.Release()

	_, err = AcquirePidLock(path)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	pid, err := ReadPid(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPidLockReleaseAllowsReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pidfile")

	lock, err := AcquirePidLock(path)
	require.NoError(t, err)
	require.NoError(t, lock.Release())

	lock2, err := AcquirePidLock(path)
	require.NoError(t, err)
	defer lock2.Release()
}

func TestSpawnWaitsForChildAck(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := Spawn(ctx, filepath.Join(dir, "out.log"), filepath.Join(dir, "err.log"))
	assert.NoError(t, err)
}

func TestSpawnSurfacesChildFailure(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VAGENT_DAEMON_TEST_FAIL", "1")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := Spawn(ctx, filepath.Join(dir, "out.log"), filepath.Join(dir, "err.log"))
	assert.Error(t, err)
}

func TestSpawnSurfacesAlreadyRunning(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VAGENT_DAEMON_TEST_ALREADY_RUNNING", "1")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := Spawn(ctx, filepath.Join(dir, "out.log"), filepath.Join(dir, "err.log"))
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}
