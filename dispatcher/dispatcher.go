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

// Package dispatcher turns an ipc.Action into its effect: it is the glue
// between the IPC server, the KeyStore, the vault-server client, the
// scheduler, and pinentry. One Dispatcher exists per agent process.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/vagent-project/vagent/agentpaths"
	"github.com/vagent-project/vagent/internal/logger"
	"github.com/vagent-project/vagent/internal/metrics"
	"github.com/vagent-project/vagent/ipc"
	"github.com/vagent-project/vagent/keystore"
	"github.com/vagent-project/vagent/pinentry"
	"github.com/vagent-project/vagent/scheduler"
	"github.com/vagent-project/vagent/vaultclient"
	"github.com/vagent-project/vagent/vaultmodel"
)

// maxAttempts is the three-attempt retry budget section 4.8 assigns to
// Register, Login, Unlock, and decrypt_cipher's inner reprompt-unlock.
const maxAttempts = 3

// VaultClient is the subset of *vaultclient.Client the dispatcher drives;
// narrowed to an interface so tests can substitute a fake server.
type VaultClient interface {
	Prelogin(ctx context.Context, email string) (vaultmodel.KdfDescriptor, error)
	LoginPassword(ctx context.Context, email, passwordHashB64, deviceName string, twoFactorToken *string, twoFactorProvider *vaultclient.TwoFactorProvider) (*vaultclient.LoginResult, error)
	LoginAPIKey(ctx context.Context, clientID, clientSecret, deviceName string) (*vaultclient.LoginResult, error)
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (string, string, error)
	Sync(ctx context.Context, accessToken string) (*vaultclient.SyncResult, error)
	WithRefresh(ctx context.Context, accessToken, refreshToken string, onNewAccessToken func(access, refresh string), call func(accessToken string) error) error
}

// Clipboard abstracts the system clipboard so ClipboardStore can be built
// without one on platforms/build tags that lack clipboard support.
type Clipboard interface {
	Store(text string) error
}

// Dispatcher holds every collaborator an action handler needs.
type Dispatcher struct {
	Dirs      agentpaths.Dirs
	Client    VaultClient
	Store     *keystore.KeyStore
	Scheduler *scheduler.Manager
	Prompt    pinentry.Runner
	Clipboard Clipboard // nil means no clipboard support
	Log       logger.Logger
	PinSecret LocalSecret // nil disables the PIN-wrap fast path entirely

	mu  sync.Mutex
	cfg *vaultmodel.Config
}

// New builds a Dispatcher. cfg is loaded once at startup and re-read from
// disk by Login/Register when they mutate it.
func New(dirs agentpaths.Dirs, client VaultClient, store *keystore.KeyStore, sched *scheduler.Manager, prompt pinentry.Runner, clipboard Clipboard, log logger.Logger, cfg *vaultmodel.Config) *Dispatcher {
	return &Dispatcher{
		Dirs:      dirs,
		Client:    client,
		Store:     store,
		Scheduler: sched,
		Prompt:    prompt,
		Clipboard: clipboard,
		Log:       log,
		cfg:       cfg,
	}
}

func (d *Dispatcher) config() *vaultmodel.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

func (d *Dispatcher) setConfig(cfg *vaultmodel.Config) {
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
}

// Handle implements ipc.Handler: it is the function wired into the IPC
// server's accept loop.
func (d *Dispatcher) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	d.Store.SetLastEnvironment(keystore.Environment{
		Tty:     req.Environment.Tty,
		EnvVars: req.Environment.EnvVars,
	})

	env := promptEnv(req.Environment)
	tty := req.Environment.Tty

	resp := d.dispatch(ctx, req.Action, tty, env)

	// Every action resets the inactivity timer (section 4.8/5), even a
	// failed one: a wrong-password Unlock attempt still counts as recent
	// activity, matching the original agent's behavior of arming the timer
	// unconditionally once an action has begun.
	if d.Scheduler != nil {
		d.Scheduler.ArmInactivity(lockTimeout(d.config()))
	}

	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, action ipc.Action, tty string, env map[string]string) ipc.Response {
	switch action.Type {
	case ipc.ActionRegister:
		return d.handleRegister(ctx, tty, env)
	case ipc.ActionLogin:
		return d.handleLogin(ctx, tty, env)
	case ipc.ActionUnlock:
		return d.handleUnlock(ctx, tty, env)
	case ipc.ActionCheckLock:
		return d.handleCheckLock()
	case ipc.ActionLock:
		return d.handleLock()
	case ipc.ActionSync:
		return d.handleSync(ctx)
	case ipc.ActionDecrypt:
		resp := d.handleDecrypt(ctx, action, tty, env)
		if resp.Type != ipc.ResponseError && d.Scheduler != nil {
			d.Scheduler.ArmInactivity(lockTimeout(d.config()))
		}
		return resp
	case ipc.ActionEncrypt:
		resp := d.handleEncrypt(action)
		if resp.Type != ipc.ResponseError && d.Scheduler != nil {
			d.Scheduler.ArmInactivity(lockTimeout(d.config()))
		}
		return resp
	case ipc.ActionClipboardStore:
		return d.handleClipboardStore(action)
	case ipc.ActionVersion:
		return ipc.Response{Type: ipc.ResponseVersion, Version: ipc.ProtocolVersion()}
	case ipc.ActionQuit:
		// The caller (cmd/vagent-agent's server loop) is responsible for
		// exiting the process once this Ack is flushed to the client.
		return ipc.Ack()
	default:
		return ipc.ErrorResponse("unknown action")
	}
}

func lockTimeout(cfg *vaultmodel.Config) time.Duration {
	if cfg == nil || cfg.LockTimeoutSecs == 0 {
		return time.Duration(vaultmodel.DefaultLockTimeoutSecs) * time.Second
	}
	return time.Duration(cfg.LockTimeoutSecs) * time.Second
}

func promptEnv(env ipc.Environment) map[string]string {
	if env.EnvVars == nil {
		return map[string]string{}
	}
	return ipc.Filter(env.EnvVars)
}

func (d *Dispatcher) handleCheckLock() ipc.Response {
	if d.Store.NeedsUnlock() {
		return ipc.ErrorResponse("agent is locked")
	}
	return ipc.Ack()
}

func (d *Dispatcher) handleLock() ipc.Response {
	d.lockWithPin(d.PinSecret)
	metrics.KeystoreLocked.Set(1)
	metrics.LockEvents.WithLabelValues("explicit").Inc()
	if d.Scheduler != nil {
		d.Scheduler.Inactivity.Clear()
	}
	return ipc.Ack()
}

// LockOnTimeout is the scheduler's inactivity-expiry callback (section 5):
// the same pin-wrap-or-clear behavior as an explicit Lock action, labeled
// distinctly in metrics so an operator can tell the two apart.
func (d *Dispatcher) LockOnTimeout() {
	d.lockWithPin(d.PinSecret)
	metrics.KeystoreLocked.Set(1)
	metrics.LockEvents.WithLabelValues("inactivity_timeout").Inc()
}

// SyncOnTimeout is the scheduler's periodic-resync callback. Failures are
// logged and otherwise swallowed: a background resync never had a caller
// waiting on an ipc.Response to report them to.
func (d *Dispatcher) SyncOnTimeout(ctx context.Context) {
	if resp := d.handleSync(ctx); resp.Type == ipc.ResponseError && d.Log != nil {
		d.Log.Warn("background sync failed", logger.String("error", resp.Error))
	}
}

func (d *Dispatcher) handleClipboardStore(action ipc.Action) ipc.Response {
	if d.Clipboard == nil {
		return ipc.ErrorResponse("clipboard support not compiled in")
	}
	if err := d.Clipboard.Store(action.Text); err != nil {
		return ipc.ErrorResponse(err.Error())
	}
	return ipc.Ack()
}

// asErrorResponse renders an error (ideally an *errkind.Error) as an IPC
// Error response.
func asErrorResponse(err error) ipc.Response {
	return ipc.ErrorResponse(err.Error())
}
