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
	"crypto/rsa"
	"crypto/x509"

	"github.com/vagent-project/vagent/cipherstring"
	"github.com/vagent-project/vagent/config"
	"github.com/vagent-project/vagent/errkind"
	"github.com/vagent-project/vagent/identity"
	"github.com/vagent-project/vagent/internal/logger"
	"github.com/vagent-project/vagent/internal/metrics"
	"github.com/vagent-project/vagent/ipc"
	"github.com/vagent-project/vagent/keystore"
	"github.com/vagent-project/vagent/locked"
	"github.com/vagent-project/vagent/vaultmodel"
)

// handleUnlock implements section 4.3/4.8: while keys are absent, prompt
// for the master password and run the unwrap chain, in a three-attempt
// retry loop.
func (d *Dispatcher) handleUnlock(ctx context.Context, tty string, env map[string]string) ipc.Response {
	if !d.Store.NeedsUnlock() {
		return ipc.Ack()
	}

	cfg := d.config()
	if err := config.Validate(cfg); err != nil {
		return asErrorResponse(err)
	}
	db, err := config.LoadDb(d.Dirs, cfg)
	if err != nil {
		return asErrorResponse(err)
	}

	if cfg.Pin != nil && cfg.Pin.Enabled && d.PinSecret != nil {
		if resp, handled := d.tryPinUnlock(ctx, db, tty, env); handled {
			return resp
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		passwordStr, promptErr := d.Prompt.Prompt(ctx, "vagent", "Master Password", "Enter the master password for "+cfg.Email, tty, env)
		if promptErr != nil {
			return asErrorResponse(errkind.Wrap(errkind.KindPinentryError, promptErr, "failed to read master password"))
		}
		password := locked.NewMasterPassword([]byte(passwordStr))

		user, orgs, unlockErr := unlock(cfg.Email, password, toIdentityKdf(db.Kdf), db.ProtectedMasterKey, db.ProtectedPrivateKey, db.ProtectedOrgKeys)
		password.Destroy()

		if unlockErr == nil {
			d.Store.Unlock(user, orgs)
			metrics.KeystoreLocked.Set(0)
			metrics.UnlockEvents.WithLabelValues("success").Inc()
			set := keystore.BuildRepromptSet(db.Entries)
			d.Store.SetReprompt(set)
			metrics.RepromptSetSize.Set(float64(set.Len()))
			return ipc.Ack()
		}

		lastErr = unlockErr
		metrics.UnlockEvents.WithLabelValues("failure").Inc()
		if !errkind.Is(unlockErr, errkind.KindIncorrectPassword) {
			return asErrorResponse(unlockErr)
		}
		if d.Log != nil && attempt < maxAttempts {
			d.Log.Warn("unlock attempt failed", logger.Int("attempt", attempt), logger.Error(unlockErr))
		}
	}

	return asErrorResponse(errkind.New(errkind.KindIncorrectPassword, "unlock failed").WithAttempt(maxAttempts, maxAttempts).
		WithField("last_error", errString(lastErr)))
}

// unlock implements section 4.3's five-step chain: derive the identity
// KeyPair, symmetric-decrypt the protected master key (a MAC failure here
// is IncorrectPassword, since a well-formed blob only fails MAC on a wrong
// key), symmetric-decrypt the protected private key, parse the resulting
// DER bytes as an RSA private key, then RSA-decrypt every org's protected
// key with it.
func unlock(email string, password *locked.MasterPassword, kdf identity.Kdf, protectedMasterKey, protectedPrivateKey string, protectedOrgKeys map[string]string) (*locked.KeyPair, map[string]*locked.KeyPair, error) {
	id, err := identity.Derive(email, password, kdf)
	if err != nil {
		return nil, nil, err
	}
	defer id.PasswordHash.Destroy()

	masterCS, err := cipherstring.Parse(protectedMasterKey)
	if err != nil {
		id.Keys.Destroy()
		return nil, nil, err
	}
	masterBytes, err := masterCS.Decrypt(id.Keys)
	id.Keys.Destroy()
	if err != nil {
		if errkind.Is(err, errkind.KindInvalidMac) {
			return nil, nil, errkind.New(errkind.KindIncorrectPassword, "incorrect master password")
		}
		return nil, nil, err
	}
	if len(masterBytes) != locked.KeyPairSize {
		return nil, nil, errkind.New(errkind.KindDecrypt, "unexpected master key length")
	}
	userKeys := locked.NewKeyPair(masterBytes)

	privCS, err := cipherstring.Parse(protectedPrivateKey)
	if err != nil {
		userKeys.Destroy()
		return nil, nil, err
	}
	privBytes, err := privCS.Decrypt(userKeys)
	if err != nil {
		userKeys.Destroy()
		return nil, nil, err
	}
	privateKey, err := parseRSAPrivateKey(privBytes)
	if err != nil {
		userKeys.Destroy()
		return nil, nil, err
	}

	orgs := make(map[string]*locked.KeyPair, len(protectedOrgKeys))
	for orgID, protected := range protectedOrgKeys {
		orgCS, err := cipherstring.Parse(protected)
		if err != nil {
			userKeys.Destroy()
			destroyAll(orgs)
			return nil, nil, err
		}
		orgBytes, err := orgCS.DecryptRSA(privateKey, userKeys.MacKey())
		if err != nil {
			userKeys.Destroy()
			destroyAll(orgs)
			return nil, nil, err
		}
		if len(orgBytes) != locked.KeyPairSize {
			userKeys.Destroy()
			destroyAll(orgs)
			return nil, nil, errkind.New(errkind.KindDecrypt, "unexpected org key length")
		}
		orgs[orgID] = locked.NewKeyPair(orgBytes)
	}

	return userKeys, orgs, nil
}

// parseRSAPrivateKey accepts either PKCS#1 or PKCS#8 DER encoding, the two
// shapes a vault server is observed to emit for Profile.PrivateKey.
func parseRSAPrivateKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, errkind.Wrap(errkind.KindRsa, err, "failed to parse rsa private key")
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errkind.New(errkind.KindRsa, "private key is not rsa")
	}
	return rsaKey, nil
}

func destroyAll(orgs map[string]*locked.KeyPair) {
	for _, kp := range orgs {
		kp.Destroy()
	}
}

// identityDerive runs section 4.2 against db's stored KDF descriptor and
// returns just the identity KeyPair, destroying the PasswordHash that
// callers outside full unlock/login never need.
func identityDerive(email string, password *locked.MasterPassword, db *vaultmodel.LocalDb) (*locked.KeyPair, error) {
	id, err := identity.Derive(email, password, toIdentityKdf(db.Kdf))
	if err != nil {
		return nil, err
	}
	id.PasswordHash.Destroy()
	return id.Keys, nil
}
