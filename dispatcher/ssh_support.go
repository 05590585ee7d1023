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

package dispatcher

import (
	"context"
	"errors"

	"github.com/vagent-project/vagent/config"
	"github.com/vagent-project/vagent/errkind"
	"github.com/vagent-project/vagent/ipc"
	"github.com/vagent-project/vagent/vaultmodel"
)

// EnsureUnlocked implements section 4.10's "ensure unlocked using the
// KeyStore's stored environment": the SSH adapter has no environment of
// its own, since an SSH client connects without a terminal, so it reuses
// whatever tty/env_vars the main socket last recorded. Returns an error if
// no prior environment was ever recorded and the store is still locked.
func (d *Dispatcher) EnsureUnlocked(ctx context.Context) error {
	if !d.Store.NeedsUnlock() {
		return nil
	}
	env := d.Store.LastEnvironment()
	if env.Tty == "" && len(env.EnvVars) == 0 {
		return errkind.New(errkind.KindPinentryError, "agent is locked and no pinentry environment has been recorded yet")
	}
	resp := d.handleUnlock(ctx, env.Tty, env.EnvVars)
	if resp.Type == ipc.ResponseError {
		return errors.New(resp.Error)
	}
	return nil
}

// Entries returns the current local vault entries, for the SSH adapter to
// enumerate SshKey-variant ones.
func (d *Dispatcher) Entries(ctx context.Context) ([]vaultmodel.Entry, error) {
	db, err := config.LoadDb(d.Dirs, d.config())
	if err != nil {
		return nil, err
	}
	return db.Entries, nil
}

// Decrypt is decryptCipherstring exported for the SSH adapter: the same
// decrypt primitive section 4.8's Decrypt action uses, without the
// reprompt gate (section 4.10 does not reprompt SSH-sign requests).
func (d *Dispatcher) Decrypt(cipherstringText string, entryKey, orgID *string) ([]byte, error) {
	if d.Store.NeedsUnlock() {
		return nil, errkind.New(errkind.KindIncorrectPassword, "agent is locked")
	}
	return d.decryptCipherstring(cipherstringText, entryKey, orgID)
}
