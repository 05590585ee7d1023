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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/vagent-project/vagent/agentpaths"
	"github.com/vagent-project/vagent/cliclient"
	"github.com/vagent-project/vagent/config"
	"github.com/vagent-project/vagent/daemon"
	"github.com/vagent-project/vagent/ipc"
)

// errAlreadyRunning is how exitCodeFor recognizes the one case that exits
// 23 instead of 1 (section 6): the launched agent exited 23 because another
// instance holds the pidfile lock, and no agent answered on the socket
// before the timeout. An agent that exits 23 while another one answers is
// treated as success.
var errAlreadyRunning = errors.New("vagent: agent already running")

// agentSpawnTimeout bounds how long the CLI waits for a freshly spawned
// agent to bind its socket.
const agentSpawnTimeout = 10 * time.Second

func exitCodeFor(err error) int {
	if errors.Is(err, errAlreadyRunning) {
		return daemon.AlreadyRunningExitCode
	}
	return 1
}

// connect returns a cliclient.Client for a running agent, starting one (and
// checking protocol compatibility) if it isn't reachable yet.
func connect(ctx context.Context) (*cliclient.Client, error) {
	dirs, err := agentpaths.Resolve()
	if err != nil {
		return nil, fmt.Errorf("resolve directories: %w", err)
	}

	client := cliclient.New(dirs.SocketFile())

	if err := client.EnsureCompatible(ctx, func(ctx context.Context) error {
		return spawnAgent(ctx, dirs)
	}); err != nil {
		return nil, err
	}

	return client, nil
}

// spawnAgent launches the agent binary (VAGENT_AGENT override, else
// "vagent-agent" on $PATH) and waits for its socket to come up. The agent
// daemonizes itself; this process only waits for the launched process
// (the foreground parent of that daemonization) to exit.
func spawnAgent(ctx context.Context, dirs agentpaths.Dirs) error {
	bin := "vagent-agent"
	if override, ok := config.AgentBinaryOverride(); ok {
		bin = override
	}

	cmd := exec.Command(bin)
	cmd.Stdin = nil
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	runErr := make(chan error, 1)
	go func() { runErr <- cmd.Run() }()

	alreadyRunning := false
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-runErr:
		if err != nil {
			exitErr, ok := err.(*exec.ExitError)
			if !ok || exitErr.ExitCode() != daemon.AlreadyRunningExitCode {
				return fmt.Errorf("start agent: %w", err)
			}
			alreadyRunning = true
		}
	}

	deadline := time.Now().Add(agentSpawnTimeout)
	client := cliclient.New(dirs.SocketFile())
	for time.Now().Before(deadline) {
		if _, err := client.Version(ctx); err == nil {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	if alreadyRunning {
		return errAlreadyRunning
	}
	return fmt.Errorf("agent did not become reachable at %s", dirs.SocketFile())
}

// environment builds the ipc.Environment a subcommand sends: the
// controlling terminal (if any) plus the filtered pinentry-relevant
// variables from the CLI's own environment.
func environment() ipc.Environment {
	tty, _ := os.LookupEnv("GPG_TTY")
	if tty == "" {
		tty = ttyName()
	}

	vars := map[string]string{}
	for _, k := range ipc.EnvironmentVariables {
		if v := os.Getenv(k); v != "" {
			vars[k] = v
		}
	}

	return ipc.Environment{Tty: tty, EnvVars: vars}
}

// ttyName best-effort identifies the controlling terminal of stderr, the
// way pinentry needs it to pop its prompt on the right display.
func ttyName() string {
	if fi, err := os.Stderr.Stat(); err == nil && (fi.Mode()&os.ModeCharDevice) != 0 {
		return "/dev/tty"
	}
	return ""
}
