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

// Command vagent-agent is the background process: it binds the CLI-facing
// and SSH-agent sockets, owns the KeyStore, and runs until told to Quit,
// until it receives SIGINT or SIGTERM, or until one of its listeners fails.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vagent-project/vagent/agentpaths"
	"github.com/vagent-project/vagent/config"
	"github.com/vagent-project/vagent/daemon"
	"github.com/vagent-project/vagent/dispatcher"
	"github.com/vagent-project/vagent/internal/logger"
	"github.com/vagent-project/vagent/internal/metrics"
	"github.com/vagent-project/vagent/ipc"
	"github.com/vagent-project/vagent/keystore"
	"github.com/vagent-project/vagent/pinentry"
	"github.com/vagent-project/vagent/scheduler"
	"github.com/vagent-project/vagent/sshagent"
	"github.com/vagent-project/vagent/vaultclient"
)

// daemonAckTimeout bounds how long a foreground parent waits for the
// backgrounded child to bind its sockets before giving up.
const daemonAckTimeout = 10 * time.Second

// defaultMetricsAddr is loopback-only per section 6's observability note;
// VAGENT_METRICS_ADDR overrides it for development.
const defaultMetricsAddr = "127.0.0.1:7299"

func main() {
	foreground := flag.Bool("foreground", false, "run in the foreground instead of daemonizing")
	flag.Parse()

	if !*foreground && !daemon.IsChild() {
		ctx, cancel := daemon.WithTimeout(daemonAckTimeout)
		defer cancel()

		dirs, err := agentpaths.Resolve()
		if err != nil {
			fmt.Fprintf(os.Stderr, "vagent-agent: %v\n", err)
			os.Exit(1)
		}
		if err := dirs.MakeAll(); err != nil {
			fmt.Fprintf(os.Stderr, "vagent-agent: %v\n", err)
			os.Exit(1)
		}

		if err := daemon.Spawn(ctx, dirs.AgentStdoutFile(), dirs.AgentStderrFile()); err != nil {
			if err == daemon.ErrAlreadyRunning {
				os.Exit(daemon.AlreadyRunningExitCode)
			}
			fmt.Fprintf(os.Stderr, "vagent-agent: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "vagent-agent:", err)
		daemon.Notify(err)
		os.Exit(1)
	}
}

func run() error {
	log := logger.NewDefaultLogger()

	dirs, err := agentpaths.Resolve()
	if err != nil {
		return fmt.Errorf("resolve directories: %w", err)
	}
	if err := dirs.MakeAll(); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	pidLock, err := daemon.AcquirePidLock(dirs.PidFile())
	if err != nil {
		if err == daemon.ErrAlreadyRunning {
			daemon.Notify(daemon.ErrAlreadyRunning)
			os.Exit(daemon.AlreadyRunningExitCode)
		}
		return fmt.Errorf("acquire pidfile lock: %w", err)
	}
	defer pidLock.Release()

	cfg, err := config.Load(dirs, config.LoaderOptions{DotEnvPath: ".env", SkipValidation: true})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	deviceID, err := dirs.DeviceID()
	if err != nil {
		return fmt.Errorf("resolve device id: %w", err)
	}

	client := vaultclient.New(
		config.BaseURL(cfg),
		config.IdentityURL(cfg),
		cfg.NotificationsURL,
		deviceID,
		30*time.Second,
	)

	store := keystore.New()
	prompt := pinentry.ExecRunner{Path: cfg.Pinentry}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	quit := make(chan struct{})

	var disp *dispatcher.Dispatcher
	sched := scheduler.Start(ctx, func() {
		disp.LockOnTimeout()
	}, func() {
		disp.SyncOnTimeout(ctx)
	})
	defer sched.Stop()

	disp = dispatcher.New(dirs, client, store, sched, prompt, nil, log, cfg)
	disp.PinSecret = localSecret(dirs)

	// The sync timer, unlike inactivity, is armed once up front from the
	// loaded config rather than waiting for a first explicit Sync.
	if cfg.SyncIntervalSecs > 0 {
		sched.ArmSync(time.Duration(cfg.SyncIntervalSecs) * time.Second)
	}

	metrics.SetSnapshotter(func() metrics.KeystoreSnapshot {
		return metrics.KeystoreSnapshot{
			Locked:          store.NeedsUnlock(),
			OrgIDs:          store.OrgIDs(),
			RepromptSetSize: store.RepromptSetSize(),
		}
	})

	metricsAddr := os.Getenv("VAGENT_METRICS_ADDR")
	if metricsAddr == "" {
		metricsAddr = defaultMetricsAddr
	}

	ipcServer, err := ipc.Listen(dirs.SocketFile(), wrapHandler(disp, quit), log)
	if err != nil {
		return fmt.Errorf("bind ipc socket: %w", err)
	}
	defer ipcServer.Close()

	sshServer := sshagent.New(disp, log)
	sshListener, err := sshagent.Listen(dirs.SSHAgentSocketFile(), sshServer, log)
	if err != nil {
		return fmt.Errorf("bind ssh-agent socket: %w", err)
	}
	defer sshListener.Close()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return ipcServer.Serve(gctx) })
	group.Go(func() error { return sshListener.Serve(gctx) })
	group.Go(func() error {
		if err := metrics.Serve(gctx, metricsAddr); err != nil {
			log.Warn("metrics server stopped", logger.Error(err))
		}
		return nil
	})

	daemon.Notify(nil)
	log.Info("agent ready", logger.String("socket", dirs.SocketFile()), logger.String("ssh_socket", dirs.SSHAgentSocketFile()))

	select {
	case <-gctx.Done():
	case <-quit:
		stop()
	}

	return nil
}

// wrapHandler adapts the Dispatcher into an ipc.Handler, closing quit once
// a Quit action's Ack has been handed back to the server to flush to the
// client; only then is the process allowed to exit.
func wrapHandler(disp *dispatcher.Dispatcher, quit chan struct{}) ipc.Handler {
	var closeOnce = make(chan struct{}, 1)
	closeOnce <- struct{}{}

	return func(ctx context.Context, req ipc.Request) ipc.Response {
		resp := disp.Handle(ctx, req)
		if req.Action.Type == ipc.ActionQuit {
			select {
			case <-closeOnce:
				go func() {
					time.Sleep(50 * time.Millisecond)
					close(quit)
				}()
			default:
			}
		}
		return resp
	}
}
