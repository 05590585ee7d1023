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
	"encoding/base64"

	"github.com/vagent-project/vagent/config"
	"github.com/vagent-project/vagent/errkind"
	"github.com/vagent-project/vagent/identity"
	"github.com/vagent-project/vagent/internal/logger"
	"github.com/vagent-project/vagent/ipc"
	"github.com/vagent-project/vagent/locked"
	"github.com/vagent-project/vagent/vaultclient"
	"github.com/vagent-project/vagent/vaultmodel"
)

// handleRegister implements section 4.8's Register action: API-key
// registration is the only grant the vault-server's register flow accepts,
// so it prompts for client-id/client-secret up to three times exactly the
// way Login prompts for a master password.
func (d *Dispatcher) handleRegister(ctx context.Context, tty string, env map[string]string) ipc.Response {
	cfg := d.config()

	db, err := config.LoadDb(d.Dirs, cfg)
	if err != nil {
		return asErrorResponse(err)
	}
	if db.AccessToken != "" {
		// Already registered; nothing to do.
		return ipc.Ack()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		clientID, err := d.Prompt.Prompt(ctx, "vagent", "Client ID", "Enter your vault API client ID", tty, env)
		if err != nil {
			return asErrorResponse(errkind.Wrap(errkind.KindPinentryError, err, "failed to read client id"))
		}
		clientSecret, err := d.Prompt.Prompt(ctx, "vagent", "Client Secret", "Enter your vault API client secret", tty, env)
		if err != nil {
			return asErrorResponse(errkind.Wrap(errkind.KindPinentryError, err, "failed to read client secret"))
		}

		result, loginErr := d.Client.LoginAPIKey(ctx, clientID, clientSecret, "vagent")
		if loginErr == nil {
			cfg.ClientID = &clientID
			cfg.ClientSecret = &clientSecret
			if err := config.Save(d.Dirs, cfg); err != nil {
				return asErrorResponse(err)
			}
			return d.loginSuccess(ctx, result)
		}

		lastErr = loginErr
		if !errkind.Is(loginErr, errkind.KindIncorrectApiKey) && !errkind.Is(loginErr, errkind.KindIncorrectPassword) {
			return asErrorResponse(loginErr)
		}
		if d.Log != nil && attempt < maxAttempts {
			d.Log.Warn("registration attempt failed", logger.Int("attempt", attempt), logger.Error(loginErr))
		}
	}

	return asErrorResponse(errkind.New(errkind.KindIncorrectApiKey, "registration failed").WithAttempt(maxAttempts, maxAttempts).
		WithField("last_error", errString(lastErr)))
}

// handleLogin implements Login: a single API-key grant attempt when
// client_id/client_secret are configured, else the password grant with an
// optional two-factor challenge, retried up to three times on a wrong
// password. On success it writes tokens/kdf/protected_key, runs Sync, and
// unlocks.
func (d *Dispatcher) handleLogin(ctx context.Context, tty string, env map[string]string) ipc.Response {
	cfg := d.config()
	if err := config.Validate(cfg); err != nil {
		return asErrorResponse(err)
	}

	if cfg.ClientID != nil && cfg.ClientSecret != nil {
		result, err := d.Client.LoginAPIKey(ctx, *cfg.ClientID, *cfg.ClientSecret, "vagent")
		if err != nil {
			return asErrorResponse(err)
		}
		return d.loginSuccess(ctx, result)
	}

	kdf, err := d.Client.Prelogin(ctx, cfg.Email)
	if err != nil {
		return asErrorResponse(err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		passwordStr, err := d.Prompt.Prompt(ctx, "vagent", "Master Password", "Enter the master password for "+cfg.Email, tty, env)
		if err != nil {
			return asErrorResponse(errkind.Wrap(errkind.KindPinentryError, err, "failed to read master password"))
		}
		password := locked.NewMasterPassword([]byte(passwordStr))

		id, err := identity.Derive(cfg.Email, password, toIdentityKdf(kdf))
		password.Destroy()
		if err != nil {
			return asErrorResponse(err)
		}
		passwordHashB64 := base64.StdEncoding.EncodeToString(id.PasswordHash.Data())
		id.PasswordHash.Destroy()

		result, loginErr := d.Client.LoginPassword(ctx, cfg.Email, passwordHashB64, "vagent", nil, nil)
		if loginErr == nil {
			id.Keys.Destroy()
			return d.loginSuccess(ctx, result)
		}

		var twoFactor *vaultclient.TwoFactorRequiredError
		if errAsTwoFactor(loginErr, &twoFactor) {
			result, tfErr := d.twoFactorLogin(ctx, cfg.Email, passwordHashB64, tty, env, twoFactor)
			id.Keys.Destroy()
			if tfErr != nil {
				return asErrorResponse(tfErr)
			}
			return d.loginSuccess(ctx, result)
		}
		id.Keys.Destroy()

		lastErr = loginErr
		if !errkind.Is(loginErr, errkind.KindIncorrectPassword) {
			return asErrorResponse(loginErr)
		}
		if d.Log != nil && attempt < maxAttempts {
			d.Log.Warn("login attempt failed", logger.Int("attempt", attempt), logger.Error(loginErr))
		}
	}

	return asErrorResponse(errkind.New(errkind.KindIncorrectPassword, "login failed").WithAttempt(maxAttempts, maxAttempts).
		WithField("last_error", errString(lastErr)))
}

// twoFactorLogin iterates the providers the server offered, prompting for
// each code through pinentry until one is accepted or every provider has
// been tried once: an exhaustive-but-single-pass policy rather than a
// further three-attempt loop per provider.
func (d *Dispatcher) twoFactorLogin(ctx context.Context, email, passwordHashB64, tty string, env map[string]string, challenge *vaultclient.TwoFactorRequiredError) (*vaultclient.LoginResult, error) {
	if len(challenge.Providers) == 0 {
		return nil, errkind.New(errkind.KindTwoFactorRequired, "two-factor required but no providers offered")
	}

	var lastErr error
	for _, provider := range challenge.Providers {
		desc, title := twoFactorPrompt(provider)
		code, err := d.Prompt.Prompt(ctx, title, "Two-Factor Code", desc, tty, env)
		if err != nil {
			lastErr = errkind.Wrap(errkind.KindPinentryError, err, "failed to read two-factor code")
			continue
		}

		providerCopy := provider
		result, loginErr := d.Client.LoginPassword(ctx, email, passwordHashB64, "vagent", &code, &providerCopy)
		if loginErr == nil {
			return result, nil
		}
		lastErr = loginErr
	}

	if lastErr == nil {
		lastErr = errkind.New(errkind.KindTwoFactorRequired, "two-factor verification failed")
	}
	return nil, lastErr
}

func twoFactorPrompt(provider vaultclient.TwoFactorProvider) (desc, title string) {
	switch provider {
	case vaultclient.TwoFactorAuthenticator:
		return "Enter the 6-digit code from your authenticator app", "Authenticator"
	case vaultclient.TwoFactorEmail:
		return "Enter the code emailed to you", "Email Code"
	case vaultclient.TwoFactorYubikey:
		return "Touch your Yubikey", "Yubikey"
	case vaultclient.TwoFactorDuo, vaultclient.TwoFactorOrganizationDuo:
		return "Approve the Duo push or enter a passcode", "Duo"
	case vaultclient.TwoFactorWebAuthn:
		return "Complete the WebAuthn challenge", "WebAuthn"
	default:
		return "Enter your two-factor code", "Two-Factor"
	}
}

// loginSuccess writes the tokens, the KDF parameters from a fresh Prelogin,
// and the protected key to the local DB, runs a sync, and unlocks in
// process, mirroring login_success in the original agent.
func (d *Dispatcher) loginSuccess(ctx context.Context, result *vaultclient.LoginResult) ipc.Response {
	cfg := d.config()

	kdf, err := d.Client.Prelogin(ctx, cfg.Email)
	if err != nil {
		return asErrorResponse(err)
	}
	db, err := config.LoadDb(d.Dirs, cfg)
	if err != nil {
		return asErrorResponse(err)
	}
	db.Kdf = kdf
	db.AccessToken = result.AccessToken
	db.RefreshToken = result.RefreshToken
	db.ProtectedMasterKey = result.ProtectedKey
	if err := config.SaveDb(d.Dirs, cfg, db); err != nil {
		return asErrorResponse(err)
	}

	if resp := d.handleSync(ctx); resp.Type == ipc.ResponseError {
		return resp
	}

	return d.handleUnlock(ctx, "", nil)
}

func toIdentityKdf(kdf vaultmodel.KdfDescriptor) identity.Kdf {
	algo := identity.Pbkdf2
	if kdf.Algorithm == "argon2id" {
		algo = identity.Argon2id
	}
	return identity.Kdf{
		Algorithm:   algo,
		Iterations:  kdf.Iterations,
		MemoryKiB:   kdf.MemoryKiB,
		Parallelism: kdf.Parallelism,
	}
}

func errAsTwoFactor(err error, target **vaultclient.TwoFactorRequiredError) bool {
	tf, ok := err.(*vaultclient.TwoFactorRequiredError)
	if !ok {
		return false
	}
	*target = tf
	return true
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
