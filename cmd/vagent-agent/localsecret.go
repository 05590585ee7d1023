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
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vagent-project/vagent/agentpaths"
	"github.com/vagent-project/vagent/dispatcher"
)

// localSecretSize is the device-local secret's length; it is never shown
// to the user and only ever combined with a PIN inside pinwrap.Wrap/Unwrap.
const localSecretSize = 32

// localSecret builds the dispatcher.LocalSecret this agent uses: a
// per-profile random value stored at dirs.LocalSecretFile, created on first
// use. No OS secret-service/keyring client is wired into this build, since
// none is available to this project's dependency set; a file under the
// user's data directory (mode 0o600, alongside the device ID file) is the
// closest equivalent a keyring-less host can offer.
func localSecret(dirs agentpaths.Dirs) dispatcher.LocalSecret {
	return func(profile string) ([]byte, error) {
		path := dirs.LocalSecretFile(profile)

		if data, err := os.ReadFile(path); err == nil {
			return data, nil
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read local secret: %w", err)
		}

		secret := make([]byte, localSecretSize)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate local secret: %w", err)
		}

		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create local secret directory: %w", err)
		}
		if err := os.WriteFile(path, secret, 0o600); err != nil {
			return nil, fmt.Errorf("persist local secret: %w", err)
		}
		return secret, nil
	}
}
