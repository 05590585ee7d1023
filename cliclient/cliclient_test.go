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

package cliclient

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vagent-project/vagent/ipc"
)

func serveVersion(t *testing.T, sockPath string, version uint32) *ipc.Server {
	t.Helper()
	srv, err := ipc.Listen(sockPath, func(ctx context.Context, req ipc.Request) ipc.Response {
		switch req.Action.Type {
		case ipc.ActionVersion:
			return ipc.Response{Type: ipc.ResponseVersion, Version: version}
		case ipc.ActionQuit:
			return ipc.Ack()
		default:
			return ipc.Ack()
		}
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Serve(ctx)
	return srv
}

func TestVersionRoundTrip(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "agent.sock")
	srv := serveVersion(t, sockPath, ipc.ProtocolVersion())
	defer srv.Close()

	c := New(sockPath)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	v, err := c.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, ipc.ProtocolVersion(), v)
}

func TestEnsureCompatibleSkipsRestartOnMatch(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "agent.sock")
	srv := serveVersion(t, sockPath, ipc.ProtocolVersion())
	defer srv.Close()

	c := New(sockPath)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	restarted := false
	err := c.EnsureCompatible(ctx, func(ctx context.Context) error {
		restarted = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, restarted)
}

func TestEnsureCompatibleRestartsOnMismatchThenSucceeds(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "agent.sock")
	srv := serveVersion(t, sockPath, ipc.ProtocolVersion()+1)

	c := New(sockPath)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.EnsureCompatible(ctx, func(ctx context.Context) error {
		// Simulate the agent restarting with the matching version: tear
		// down the stale server and bring up a new one on the same socket.
		srv.Close()
		srv = serveVersion(t, sockPath, ipc.ProtocolVersion())
		return nil
	})
	require.NoError(t, err)
	srv.Close()
}

func TestEnsureCompatibleFatalOnSecondMismatch(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "agent.sock")
	srv := serveVersion(t, sockPath, ipc.ProtocolVersion()+1)
	defer srv.Close()

	c := New(sockPath)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.EnsureCompatible(ctx, func(ctx context.Context) error {
		return nil // "restarts" but the fake agent still reports the old version
	})
	assert.Error(t, err)
}
