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

package locked

// MasterPassword, PasswordHash and PrivateKey are thin role wrappers over
// Bytes; they exist so the type system distinguishes "a password" from "an
// RSA private key blob" even though both are just locked byte arenas.

// MasterPassword wraps the raw UTF-8 bytes of a user's master password.
type MasterPassword struct{ *Bytes }

// NewMasterPassword copies p into a fresh locked arena.
func NewMasterPassword(p []byte) *MasterPassword {
	return &MasterPassword{FromBytes(p)}
}

// PasswordHash wraps the 32-byte PBKDF2 credential sent to the vault server.
type PasswordHash struct{ *Bytes }

// NewPasswordHash copies p into a fresh locked arena.
func NewPasswordHash(p []byte) *PasswordHash {
	return &PasswordHash{FromBytes(p)}
}

// PrivateKey wraps a PKCS#1/PKCS#8 DER-encoded RSA private key.
type PrivateKey struct{ *Bytes }

// NewPrivateKey copies p into a fresh locked arena.
func NewPrivateKey(p []byte) *PrivateKey {
	return &PrivateKey{FromBytes(p)}
}

// KeyPairSize is the combined length of enc_key and mac_key.
const KeyPairSize = 64

// KeyPair is a 64-byte locked arena partitioned into an AES-256 encryption
// key and an HMAC-SHA256 MAC key (section 3).
type KeyPair struct{ *Bytes }

// NewKeyPair builds a KeyPair from a 64-byte enc_key||mac_key buffer.
func NewKeyPair(encMac []byte) *KeyPair {
	if len(encMac) != KeyPairSize {
		panic("locked: keypair requires exactly 64 bytes")
	}
	return &KeyPair{FromBytes(encMac)}
}

// EncKey returns the 32-byte AES-256 encryption key.
func (k *KeyPair) EncKey() []byte {
	return k.Data()[0:32]
}

// MacKey returns the 32-byte HMAC-SHA256 MAC key.
func (k *KeyPair) MacKey() []byte {
	return k.Data()[32:64]
}
