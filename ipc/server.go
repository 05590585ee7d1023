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
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/vagent-project/vagent/internal/logger"
	"github.com/vagent-project/vagent/internal/metrics"
)

// Handler processes one Request and produces the Response to write back.
type Handler func(ctx context.Context, req Request) Response

// Server listens on a Unix-domain socket and serves one request/response
// pair per accepted connection.
type Server struct {
	listener net.Listener
	handler  Handler
	log      logger.Logger
}

// Listen creates (unlinking any stale socket first) and binds a Unix socket
// at path, then sets the socket file's own mode to 0o700 (section 6); the
// parent directory is not touched.
func Listen(path string, handler Handler, log logger.Logger) (*Server, error) {
	_ = os.Remove(path)

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o700); err != nil {
		listener.Close()
		return nil, err
	}

	return &Server{listener: listener, handler: handler, log: log}, nil
}

// Addr returns the socket's filesystem path.
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Close stops accepting new connections.
func (s *Server) Close() error { return s.listener.Close() }

// Serve accepts connections until ctx is cancelled or the listener closes.
// Each connection is handled in its own goroutine, supervised by an
// errgroup so a panic in one connection doesn't silently vanish; this
// implements the "per-connection task spawn" dictated by section 4.7.
func (s *Server) Serve(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		<-gctx.Done()
		return s.listener.Close()
	})

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-gctx.Done():
				return nil
			default:
				return err
			}
		}
		group.Go(func() error {
			s.handleConn(gctx, conn)
			return nil
		})
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	metrics.IPCQueueDepth.Inc()
	defer metrics.IPCQueueDepth.Dec()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return
	}

	var req Request
	resp := func() Response {
		if err := json.Unmarshal(line, &req); err != nil {
			return ErrorResponse("malformed request")
		}
		return s.handler(ctx, req)
	}()

	action := string(req.Action.Type)
	if action == "" {
		action = "unknown"
	}
	status := "ack"
	if resp.Type == ResponseError {
		status = "error"
	}
	metrics.IPCRequestsTotal.WithLabelValues(action, status).Inc()

	out, err := json.Marshal(resp)
	if err != nil {
		if s.log != nil {
			s.log.Error("failed to marshal response", logger.Error(err))
		}
		return
	}
	out = append(out, '\n')
	if _, err := conn.Write(out); err != nil && s.log != nil {
		s.log.Error("failed to write response", logger.Error(err))
	}
}
