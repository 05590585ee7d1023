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

// Package pinwrap implements optional persistent unlock: wrapping the
// session DEK (enc_key || mac_key) at rest under a key derived from a PIN,
// so the agent can re-derive its keys after a lock without a full
// master-password unlock.
package pinwrap

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/vagent-project/vagent/errkind"
	"github.com/vagent-project/vagent/locked"
	"github.com/vagent-project/vagent/vaultmodel"
)

const (
	// AeadName is the only AEAD construction this version supports.
	AeadName = "xchacha20poly1305"
	// Version is the current WrappedMasterBlob format version.
	Version = 1
	// MaxFailCount is the fail_count threshold that destroys the blob.
	MaxFailCount = 3

	prehashContext = "vagent:kek:v1"

	defaultArgonMemoryKiB  = 64 * 1024
	defaultArgonIterations = 4
	defaultArgonParallel   = 2
	kekLen                 = 32
)

// Argon2Params are the KEK-derivation parameters; zero values are replaced
// with the section 4.5 defaults by DefaultArgon2Params.
type Argon2Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint32
}

// DefaultArgon2Params returns m=64MiB, t=4, p=2.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		MemoryKiB:   defaultArgonMemoryKiB,
		Iterations:  defaultArgonIterations,
		Parallelism: defaultArgonParallel,
	}
}

// FailTracker is the persisted keyring-adjacent metadata that is not itself
// part of the AEAD-protected blob: fail_count and last_seen_counter.
type FailTracker struct {
	FailCount       int
	LastSeenCounter uint64
}

// deriveKEK implements section 4.5 steps 3-4: prehash the PIN with the
// device-local secret, then stretch with Argon2id.
func deriveKEK(pin []byte, localSecret []byte, salt []byte, params Argon2Params) []byte {
	mac := hmac.New(sha256.New, localSecret)
	mac.Write([]byte(prehashContext))
	mac.Write(pin)
	prehash := mac.Sum(nil)

	return argon2.IDKey(prehash, salt, params.Iterations, params.MemoryKiB, uint8(params.Parallelism), kekLen)
}

// aadMetadata is the canonical JSON of every WrappedMasterBlob field except
// the ciphertext, used as the AEAD's additional authenticated data.
type aadMetadata struct {
	Version         int        `json:"version"`
	Aead            string     `json:"aead"`
	Profile         string     `json:"profile"`
	CreatedAt       time.Time  `json:"created_at"`
	Counter         uint64     `json:"counter"`
	Nonce           []byte     `json:"nonce"`
	Salt            []byte     `json:"salt"`
	ArgonMemoryKiB  uint32     `json:"argon_memory_kib"`
	ArgonIterations uint32     `json:"argon_iterations"`
	ArgonParallel   uint32     `json:"argon_parallelism"`
	ArgonOutLen     uint32     `json:"argon_out_len"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

func canonicalAAD(blob *vaultmodel.WrappedMasterBlob) ([]byte, error) {
	m := aadMetadata{
		Version: blob.Version, Aead: blob.Aead, Profile: blob.Profile,
		CreatedAt: blob.CreatedAt, Counter: blob.Counter, Nonce: blob.Nonce,
		Salt: blob.Salt, ArgonMemoryKiB: blob.ArgonMemoryKiB,
		ArgonIterations: blob.ArgonIterations, ArgonParallel: blob.ArgonParallel,
		ArgonOutLen: blob.ArgonOutLen, ExpiresAt: blob.ExpiresAt,
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, errkind.Wrap(errkind.KindSaveWrappedMaster, err, "failed to marshal aad metadata")
	}
	return b, nil
}

// Wrap implements section 4.5's wrap procedure and returns a fresh blob
// ready to be persisted atomically by the caller.
func Wrap(pin []byte, localSecret []byte, profile string, dek *locked.KeyPair, params Argon2Params, counter uint64, expiresAt *time.Time) (*vaultmodel.WrappedMasterBlob, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, errkind.Wrap(errkind.KindArgon2, err, "salt generation failed")
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, errkind.Wrap(errkind.KindArgon2, err, "nonce generation failed")
	}

	kek := deriveKEK(pin, localSecret, salt, params)

	blob := &vaultmodel.WrappedMasterBlob{
		Version: Version, Aead: AeadName, Profile: profile,
		CreatedAt: time.Now(), Counter: counter, Nonce: nonce, Salt: salt,
		ArgonMemoryKiB: params.MemoryKiB, ArgonIterations: params.Iterations,
		ArgonParallel: params.Parallelism, ArgonOutLen: kekLen, ExpiresAt: expiresAt,
	}

	aad, err := canonicalAAD(blob)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(kek)
	if err != nil {
		return nil, errkind.Wrap(errkind.KindArgon2, err, "cipher init failed")
	}

	dekBytes := make([]byte, 0, locked.KeyPairSize)
	dekBytes = append(dekBytes, dek.EncKey()...)
	dekBytes = append(dekBytes, dek.MacKey()...)

	blob.Ciphertext = aead.Seal(nil, nonce, dekBytes, aad)
	return blob, nil
}

// Unwrap implements section 4.5's unwrap procedure. On success it returns
// the reconstructed KeyPair and whether the blob should be re-wrapped in
// place (a replay of an older counter). On AEAD failure it returns the
// appropriate PinIncorrect / PinTooManyFailures error; the caller is
// responsible for persisting the updated FailTracker and, at the threshold,
// deleting the blob and keyring entries.
func Unwrap(pin []byte, localSecret []byte, blob *vaultmodel.WrappedMasterBlob, tracker *FailTracker) (*locked.KeyPair, bool, error) {
	if blob.Version != Version {
		return nil, false, errkind.New(errkind.KindConfigInvalid, "unsupported wrapped master blob version")
	}
	if blob.Aead != AeadName {
		return nil, false, errkind.New(errkind.KindConfigInvalid, "unsupported aead")
	}
	if blob.ExpiresAt != nil && time.Now().After(*blob.ExpiresAt) {
		return nil, false, errkind.New(errkind.KindPinExpired, "pin-wrapped blob has expired")
	}

	params := Argon2Params{MemoryKiB: blob.ArgonMemoryKiB, Iterations: blob.ArgonIterations, Parallelism: blob.ArgonParallel}
	kek := deriveKEK(pin, localSecret, blob.Salt, params)

	aad, err := canonicalAAD(blob)
	if err != nil {
		return nil, false, err
	}

	aead, err := chacha20poly1305.NewX(kek)
	if err != nil {
		return nil, false, errkind.Wrap(errkind.KindArgon2, err, "cipher init failed")
	}

	plaintext, err := aead.Open(nil, blob.Nonce, blob.Ciphertext, aad)
	if err != nil {
		tracker.FailCount++
		if tracker.FailCount >= MaxFailCount {
			return nil, false, errkind.New(errkind.KindPinTooManyFailures, "too many incorrect pin attempts")
		}
		return nil, false, errkind.New(errkind.KindPinIncorrect, "incorrect pin")
	}

	tracker.FailCount = 0
	shouldRewrap := blob.Counter < tracker.LastSeenCounter
	if blob.Counter > tracker.LastSeenCounter {
		tracker.LastSeenCounter = blob.Counter
	}

	return locked.NewKeyPair(plaintext), shouldRewrap, nil
}
