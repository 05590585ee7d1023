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

// Package cipherstring implements the vault's tagged ciphertext envelope:
// parsing, formatting, and the symmetric/asymmetric encrypt-decrypt
// primitives that operate on it.
package cipherstring

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/vagent-project/vagent/errkind"
	"github.com/vagent-project/vagent/locked"
)

// Type identifies the cipherstring's algorithm tag.
type Type int

const (
	TypeAesCbc                    Type = 0
	TypeAesCbcHmac                Type = 1
	TypeAesCbc256HmacSha256       Type = 2
	TypeRsa2048OaepSha256         Type = 3
	TypeRsa2048OaepSha1           Type = 4
	TypeRsa2048OaepSha256HmacSha256 Type = 5
	TypeRsa2048OaepSha1HmacSha256   Type = 6
)

// CipherString is the parsed form of the wire syntax
// "<ty>.<b64 iv>|<b64 ct>[|<b64 mac>]". RSA forms omit the IV.
type CipherString struct {
	Type       Type
	IV         []byte
	Ciphertext []byte
	Mac        []byte // nil when absent
}

// Parse decodes the wire syntax into a CipherString.
func Parse(s string) (*CipherString, error) {
	tyPart, rest, ok := strings.Cut(s, ".")
	if !ok || len(tyPart) != 1 {
		return nil, errkind.New(errkind.KindInvalidCipherString, "invalid cipherstring")
	}
	tyDigit, err := strconv.Atoi(tyPart)
	if err != nil {
		return nil, errkind.New(errkind.KindInvalidCipherString, "invalid cipherstring")
	}
	ty := Type(tyDigit)

	fields := strings.Split(rest, "|")
	isSymmetric := ty == TypeAesCbc || ty == TypeAesCbcHmac || ty == TypeAesCbc256HmacSha256
	minFields, maxFields := 1, 2
	if isSymmetric {
		minFields, maxFields = 2, 3
	}
	if len(fields) < minFields || len(fields) > maxFields {
		return nil, errkind.New(errkind.KindInvalidCipherString, "invalid cipherstring")
	}

	cs := &CipherString{Type: ty}
	idx := 0
	if isSymmetric {
		iv, err := base64.StdEncoding.DecodeString(fields[idx])
		if err != nil {
			return nil, errkind.Wrap(errkind.KindInvalidBase64, err, "invalid base64")
		}
		cs.IV = iv
		idx++
	}
	ct, err := base64.StdEncoding.DecodeString(fields[idx])
	if err != nil {
		return nil, errkind.Wrap(errkind.KindInvalidBase64, err, "invalid base64")
	}
	cs.Ciphertext = ct
	idx++

	if idx < len(fields) {
		mac, err := base64.StdEncoding.DecodeString(fields[idx])
		if err != nil {
			return nil, errkind.Wrap(errkind.KindInvalidBase64, err, "invalid base64")
		}
		if len(mac) != 32 {
			return nil, errkind.New(errkind.KindInvalidCipherString, "invalid cipherstring")
		}
		cs.Mac = mac
	}

	if ty == TypeAesCbc || ty == TypeAesCbcHmac {
		return nil, errkind.New(errkind.KindTooOldCipherStringType, "cipherstring type too old")
	}

	return cs, nil
}

// String renders the wire syntax.
func (c *CipherString) String() string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(int(c.Type)))
	sb.WriteByte('.')
	if c.IV != nil {
		sb.WriteString(base64.StdEncoding.EncodeToString(c.IV))
		sb.WriteByte('|')
	}
	sb.WriteString(base64.StdEncoding.EncodeToString(c.Ciphertext))
	if c.Mac != nil {
		sb.WriteByte('|')
		sb.WriteString(base64.StdEncoding.EncodeToString(c.Mac))
	}
	return sb.String()
}

// Encrypt produces a type-2 (AES-256-CBC + HMAC-SHA256) CipherString.
func Encrypt(keys *locked.KeyPair, plaintext []byte) (*CipherString, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, errkind.Wrap(errkind.KindDecrypt, err, "iv generation failed")
	}

	block, err := aes.NewCipher(keys.EncKey())
	if err != nil {
		return nil, errkind.Wrap(errkind.KindDecrypt, err, "aes init failed")
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)

	mac := hmacSha256(keys.MacKey(), iv, ct)

	return &CipherString{Type: TypeAesCbc256HmacSha256, IV: iv, Ciphertext: ct, Mac: mac}, nil
}

// Decrypt verifies the MAC (for type 2) and AES-256-CBC-decrypts with
// PKCS#7 unpadding. MAC verification always happens before any decryption
// attempt, and in constant time.
func (c *CipherString) Decrypt(keys *locked.KeyPair) ([]byte, error) {
	switch c.Type {
	case TypeAesCbc256HmacSha256:
		return c.decryptSymmetric(keys)
	case TypeRsa2048OaepSha256, TypeRsa2048OaepSha1,
		TypeRsa2048OaepSha256HmacSha256, TypeRsa2048OaepSha1HmacSha256:
		return nil, errkind.New(errkind.KindDecrypt, "asymmetric cipherstring requires DecryptRSA")
	case TypeAesCbc, TypeAesCbcHmac:
		return nil, errkind.New(errkind.KindTooOldCipherStringType, "cipherstring type too old")
	default:
		return nil, errkind.New(errkind.KindInvalidCipherString, "unsupported cipherstring type")
	}
}

func (c *CipherString) decryptSymmetric(keys *locked.KeyPair) ([]byte, error) {
	if c.Mac == nil || len(c.Mac) != 32 {
		return nil, errkind.New(errkind.KindInvalidCipherString, "missing or malformed mac")
	}

	expected := hmacSha256(keys.MacKey(), c.IV, c.Ciphertext)
	if subtle.ConstantTimeCompare(expected, c.Mac) != 1 {
		return nil, errkind.New(errkind.KindInvalidMac, "invalid mac")
	}

	block, err := aes.NewCipher(keys.EncKey())
	if err != nil {
		return nil, errkind.Wrap(errkind.KindDecrypt, err, "aes init failed")
	}
	if len(c.Ciphertext)%aes.BlockSize != 0 || len(c.Ciphertext) == 0 {
		return nil, errkind.New(errkind.KindDecrypt, "ciphertext not block aligned")
	}
	plain := make([]byte, len(c.Ciphertext))
	cipher.NewCBCDecrypter(block, c.IV).CryptBlocks(plain, c.Ciphertext)

	return pkcs7Unpad(plain)
}

// DecryptRSA performs the RSA-OAEP variants (types 3-6). Types 5 and 6
// carry an additional HMAC over the ciphertext, verified before decrypting
// exactly as the symmetric path verifies before decrypting.
func (c *CipherString) DecryptRSA(priv *rsa.PrivateKey, macKey []byte) ([]byte, error) {
	var hashFn crypto.Hash
	switch c.Type {
	case TypeRsa2048OaepSha256, TypeRsa2048OaepSha256HmacSha256:
		hashFn = crypto.SHA256
	case TypeRsa2048OaepSha1, TypeRsa2048OaepSha1HmacSha256:
		hashFn = crypto.SHA1
	default:
		return nil, errkind.New(errkind.KindInvalidCipherString, "not an rsa cipherstring")
	}

	needsMac := c.Type == TypeRsa2048OaepSha256HmacSha256 || c.Type == TypeRsa2048OaepSha1HmacSha256
	if needsMac {
		if c.Mac == nil || len(c.Mac) != 32 {
			return nil, errkind.New(errkind.KindInvalidCipherString, "missing or malformed mac")
		}
		expected := hmacSha256(macKey, c.Ciphertext)
		if subtle.ConstantTimeCompare(expected, c.Mac) != 1 {
			return nil, errkind.New(errkind.KindInvalidMac, "invalid mac")
		}
	}

	var plain []byte
	var err error
	if hashFn == crypto.SHA1 {
		plain, err = rsa.DecryptOAEP(sha1.New(), rand.Reader, priv, c.Ciphertext, nil)
	} else {
		plain, err = rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, c.Ciphertext, nil)
	}
	if err != nil {
		return nil, errkind.Wrap(errkind.KindRsa, err, "rsa decrypt failed")
	}
	return plain, nil
}

func hmacSha256(key []byte, parts ...[]byte) []byte {
	m := hmac.New(sha256.New, key)
	for _, p := range parts {
		m.Write(p)
	}
	return m.Sum(nil)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errkind.New(errkind.KindDecrypt, "empty plaintext")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) || padLen > aes.BlockSize {
		return nil, errkind.New(errkind.KindDecrypt, "invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errkind.New(errkind.KindDecrypt, "invalid padding")
		}
	}
	return data[:len(data)-padLen], nil
}
