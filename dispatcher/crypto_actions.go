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
	"time"

	"github.com/vagent-project/vagent/cipherstring"
	"github.com/vagent-project/vagent/config"
	"github.com/vagent-project/vagent/errkind"
	"github.com/vagent-project/vagent/internal/logger"
	"github.com/vagent-project/vagent/internal/metrics"
	"github.com/vagent-project/vagent/ipc"
	"github.com/vagent-project/vagent/locked"
)

// handleDecrypt implements section 4.8's Decrypt: require unlocked, gate on
// the reprompt allow-list, optionally resolve a per-entry key, then decrypt.
func (d *Dispatcher) handleDecrypt(ctx context.Context, action ipc.Action, tty string, env map[string]string) ipc.Response {
	if d.Store.NeedsUnlock() {
		return asErrorResponse(errkind.New(errkind.KindIncorrectPassword, "agent is locked"))
	}

	if d.Store.RequiresReprompt(action.Cipherstring) {
		if err := d.reverifyMasterPassword(ctx, tty, env); err != nil {
			return asErrorResponse(err)
		}
	}

	start := time.Now()
	plaintext, err := d.decryptCipherstring(action.Cipherstring, action.EntryKey, action.OrgID)
	metrics.CipherOperationDuration.WithLabelValues("decrypt").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CipherOperations.WithLabelValues("decrypt", "failure").Inc()
		return asErrorResponse(err)
	}
	metrics.CipherOperations.WithLabelValues("decrypt", "success").Inc()

	return ipc.Response{Type: ipc.ResponseDecrypt, Plaintext: string(plaintext)}
}

// decryptCipherstring is also the primitive the SSH adapter uses to recover
// a vault entry's public/private key material (section 4.10).
func (d *Dispatcher) decryptCipherstring(text string, entryKey, orgID *string) ([]byte, error) {
	cs, err := cipherstring.Parse(text)
	if err != nil {
		return nil, err
	}

	key := d.Store.Key(orgID)
	if key == nil {
		return nil, errkind.New(errkind.KindDecrypt, "no key available for this entry's organization")
	}

	if entryKey != nil {
		entryCS, err := cipherstring.Parse(*entryKey)
		if err != nil {
			return nil, err
		}
		derivedBytes, err := entryCS.Decrypt(key)
		if err != nil {
			return nil, err
		}
		if len(derivedBytes) != locked.KeyPairSize {
			return nil, errkind.New(errkind.KindDecrypt, "unexpected entry key length")
		}
		derived := locked.NewKeyPair(derivedBytes)
		defer derived.Destroy()
		return cs.Decrypt(derived)
	}

	return cs.Decrypt(key)
}

// reverifyMasterPassword implements the reprompt gate's "interactive
// master-password re-verification" (section 4.4): prompt, re-derive the
// identity KeyPair, and re-decrypt the protected master key purely to
// confirm the password is still correct. It does not touch the KeyStore's
// already-unlocked org/user keys — this is a check, not a re-unlock.
func (d *Dispatcher) reverifyMasterPassword(ctx context.Context, tty string, env map[string]string) error {
	cfg := d.config()
	db, err := config.LoadDb(d.Dirs, cfg)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		passwordStr, promptErr := d.Prompt.Prompt(ctx, "vagent", "Master Password", "Re-enter the master password to reveal this field", tty, env)
		if promptErr != nil {
			return errkind.Wrap(errkind.KindPinentryError, promptErr, "failed to read master password")
		}
		password := locked.NewMasterPassword([]byte(passwordStr))

		id, err := identityDerive(cfg.Email, password, db)
		password.Destroy()
		if err != nil {
			return err
		}

		masterCS, err := cipherstring.Parse(db.ProtectedMasterKey)
		if err != nil {
			id.Destroy()
			return err
		}
		_, decErr := masterCS.Decrypt(id)
		id.Destroy()

		if decErr == nil {
			return nil
		}
		lastErr = decErr
		if !errkind.Is(decErr, errkind.KindInvalidMac) {
			return decErr
		}
		if d.Log != nil && attempt < maxAttempts {
			d.Log.Warn("reprompt re-verification failed", logger.Int("attempt", attempt))
		}
	}

	return errkind.New(errkind.KindIncorrectPassword, "master password re-verification failed").WithAttempt(maxAttempts, maxAttempts).
		WithField("last_error", errString(lastErr))
}

// handleEncrypt implements Encrypt: require unlocked, encrypt with the
// (org or user) KeyPair as a type-2 cipherstring.
func (d *Dispatcher) handleEncrypt(action ipc.Action) ipc.Response {
	if d.Store.NeedsUnlock() {
		return asErrorResponse(errkind.New(errkind.KindIncorrectPassword, "agent is locked"))
	}

	key := d.Store.Key(action.OrgID)
	if key == nil {
		return asErrorResponse(errkind.New(errkind.KindDecrypt, "no key available for this organization"))
	}

	start := time.Now()
	cs, err := cipherstring.Encrypt(key, []byte(action.Plaintext))
	metrics.CipherOperationDuration.WithLabelValues("encrypt").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CipherOperations.WithLabelValues("encrypt", "failure").Inc()
		return asErrorResponse(err)
	}
	metrics.CipherOperations.WithLabelValues("encrypt", "success").Inc()

	return ipc.Response{Type: ipc.ResponseEncrypt, Cipherstring: cs.String()}
}
