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

package sshagent

import (
	"context"
	"errors"
	"io"
	"net"
	"os"

	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/sync/errgroup"

	"github.com/vagent-project/vagent/internal/logger"
)

// Listener wraps the second filesystem socket section 4.10/6 assigns the
// SSH adapter, separate from the CLI-facing socket ipc.Server binds.
type Listener struct {
	listener net.Listener
	server   *Server
	log      logger.Logger
}

// Listen creates (unlinking any stale socket first) and binds a Unix socket
// at path with mode 0o700, the same policy ipc.Listen applies to the
// CLI-facing socket.
func Listen(path string, server *Server, log logger.Logger) (*Listener, error) {
	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o700); err != nil {
		ln.Close()
		return nil, err
	}

	return &Listener{listener: ln, server: server, log: log}, nil
}

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.listener.Close() }

// Serve accepts connections until ctx is cancelled, handing each one to
// agent.ServeAgent in its own goroutine so a slow or hung SSH client never
// blocks other connections. A per-connection failure is logged and the
// connection is dropped; the listener keeps accepting.
func (l *Listener) Serve(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		<-gctx.Done()
		return l.listener.Close()
	})

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-gctx.Done():
				return nil
			default:
				return err
			}
		}
		group.Go(func() error {
			defer conn.Close()
			if err := agent.ServeAgent(l.server, conn); err != nil && !errors.Is(err, io.EOF) && l.log != nil {
				l.log.Warn("ssh-agent connection ended", logger.Error(err))
			}
			return nil
		})
	}
}
