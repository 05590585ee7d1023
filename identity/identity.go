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

// Package identity derives a user's KeyPair and server-facing password hash
// from their email, master password, and KDF parameters.
package identity

import (
	"crypto/sha256"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"

	"github.com/vagent-project/vagent/errkind"
	"github.com/vagent-project/vagent/locked"
)

// Kdf describes which key-derivation function to stretch the password with.
type Kdf struct {
	Algorithm   Algorithm
	Iterations  uint32
	MemoryKiB   uint32 // Argon2id only
	Parallelism uint32 // Argon2id only
}

// Algorithm enumerates the supported KDFs.
type Algorithm int

const (
	Pbkdf2 Algorithm = iota
	Argon2id
)

// Identity is the result of deriving key material from a password.
type Identity struct {
	Email        string
	Keys         *locked.KeyPair
	PasswordHash *locked.PasswordHash
}

// Derive implements the algorithm in section 4.2: stretch the password into
// 32 bytes, split via HKDF-Expand into enc_key/mac_key, and compute the
// server-facing PasswordHash.
func Derive(email string, password *locked.MasterPassword, kdf Kdf) (*Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if kdf.Iterations == 0 {
		return nil, errkind.New(errkind.KindPbkdf2ZeroIterations, "kdf iterations must be nonzero")
	}

	stretch := make([]byte, 32)
	switch kdf.Algorithm {
	case Pbkdf2:
		derived := pbkdf2.Key(password.Data(), []byte(email), int(kdf.Iterations), 32, sha256.New)
		copy(stretch, derived)
	case Argon2id:
		saltHash := sha256.Sum256([]byte(email))
		derived := argon2.IDKey(password.Data(), saltHash[:], kdf.Iterations, kdf.MemoryKiB, uint8(kdf.Parallelism), 32)
		copy(stretch, derived)
	default:
		return nil, errkind.New(errkind.KindConfigInvalid, "unknown kdf algorithm")
	}

	passwordHash := pbkdf2.Key(stretch, password.Data(), 1, 32, sha256.New)

	encMac := make([]byte, 64)
	encReader := hkdf.Expand(sha256.New, stretch, []byte("enc"))
	if _, err := encReader.Read(encMac[0:32]); err != nil {
		return nil, errkind.Wrap(errkind.KindHkdfExpand, err, "hkdf expand failed")
	}
	macReader := hkdf.Expand(sha256.New, stretch, []byte("mac"))
	if _, err := macReader.Read(encMac[32:64]); err != nil {
		return nil, errkind.Wrap(errkind.KindHkdfExpand, err, "hkdf expand failed")
	}

	keys := locked.NewKeyPair(encMac)
	ph := locked.NewPasswordHash(passwordHash)

	return &Identity{Email: email, Keys: keys, PasswordHash: ph}, nil
}
