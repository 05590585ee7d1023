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

package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, path string) net.Conn {
	t.Helper()
	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("unix", path)
		if err == nil {
			return conn
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	return conn
}

func roundTrip(t *testing.T, conn net.Conn, req Request) Response {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	data = append(data, '\n')
	_, err = conn.Write(data)
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(line, &resp))
	return resp
}

func TestServeRoundTrip(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "agent.sock")

	handler := func(ctx context.Context, req Request) Response {
		if req.Action.Type == ActionVersion {
			return Response{Type: ResponseVersion, Version: ProtocolVersion()}
		}
		return Ack()
	}

	srv, err := Listen(sockPath, handler, nil)
	require.NoError(t, err)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	conn := dial(t, sockPath)
	defer conn.Close()

	resp := roundTrip(t, conn, Request{Action: Action{Type: ActionVersion}})
	assert.Equal(t, ResponseVersion, resp.Type)
	assert.Equal(t, ProtocolVersion(), resp.Version)
}

func TestServeMalformedRequestGetsErrorResponse(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "agent.sock")

	srv, err := Listen(sockPath, func(ctx context.Context, req Request) Response {
		return Ack()
	}, nil)
	require.NoError(t, err)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go srv.Serve(ctx)

	conn := dial(t, sockPath)
	defer conn.Close()

	_, err = conn.Write([]byte("not json\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(line, &resp))
	assert.Equal(t, ResponseError, resp.Type)
	assert.NotEmpty(t, resp.Error)
}

func TestServeOneRequestPerConnection(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "agent.sock")

	srv, err := Listen(sockPath, func(ctx context.Context, req Request) Response {
		return Ack()
	}, nil)
	require.NoError(t, err)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go srv.Serve(ctx)

	conn := dial(t, sockPath)
	defer conn.Close()

	resp := roundTrip(t, conn, Request{Action: Action{Type: ActionCheckLock}})
	assert.Equal(t, ResponseAck, resp.Type)

	// The server closes the connection after one request/response pair.
	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err = conn.Read(buf)
	assert.Error(t, err)
}

func TestFilterRestrictsToAllowList(t *testing.T) {
	raw := map[string]string{
		"TERM":    "xterm-256color",
		"SECRET":  "leak-me-not",
		"DISPLAY": "",
	}
	filtered := Filter(raw)
	assert.Equal(t, map[string]string{"TERM": "xterm-256color"}, filtered)
}
