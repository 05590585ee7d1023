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

// Package vaultmodel holds the wire/storage data types shared between the
// vault-server client, the local cache, and the action dispatcher: entries,
// config, the local database, and the PIN-wrapped master blob.
package vaultmodel

import "time"

// FieldType tags a custom VaultEntry field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldHidden
	FieldBoolean
	FieldLinked
)

// Field is a single custom name/value pair on an entry.
type Field struct {
	Name  *string    `json:"name,omitempty"`
	Value *string    `json:"value,omitempty"`
	Type  *FieldType `json:"type,omitempty"`
}

// EntryVariant tags which data shape an Entry's Data carries.
type EntryVariant string

const (
	VariantLogin      EntryVariant = "login"
	VariantCard       EntryVariant = "card"
	VariantIdentity   EntryVariant = "identity"
	VariantSecureNote EntryVariant = "secure_note"
	VariantSshKey     EntryVariant = "ssh_key"
)

// LoginData holds the sensitive fields of a Login-variant entry.
type LoginData struct {
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
	Totp     *string `json:"totp,omitempty"`
}

// CardData holds the sensitive fields of a Card-variant entry.
type CardData struct {
	Number *string `json:"number,omitempty"`
	Code   *string `json:"code,omitempty"`
}

// IdentityData holds the sensitive fields of an Identity-variant entry.
type IdentityData struct {
	Ssn            *string `json:"ssn,omitempty"`
	PassportNumber *string `json:"passport_number,omitempty"`
}

// SshKeyData holds the sensitive fields of an SshKey-variant entry.
type SshKeyData struct {
	PublicKey  *string `json:"public_key,omitempty"`
	PrivateKey *string `json:"private_key,omitempty"`
	Fingerprint *string `json:"fingerprint,omitempty"`
}

// Entry is a single decrypted-at-rest (still cipherstring-encoded) vault
// item, with just the fields the core relies on.
type Entry struct {
	ID                    string        `json:"id"`
	OrgID                 *string       `json:"org_id,omitempty"`
	FolderID              *string       `json:"folder_id,omitempty"`
	Key                   *string       `json:"key,omitempty"` // cipherstring
	Name                  string        `json:"name"`          // cipherstring
	Variant               EntryVariant  `json:"variant"`
	Login                 *LoginData    `json:"login,omitempty"`
	Card                  *CardData     `json:"card,omitempty"`
	Identity              *IdentityData `json:"identity,omitempty"`
	SshKey                *SshKeyData   `json:"ssh_key,omitempty"`
	Fields                []Field       `json:"fields,omitempty"`
	Notes                 *string       `json:"notes,omitempty"`
	History               []HistoryItem `json:"history,omitempty"`
	MasterPasswordReprompt bool         `json:"master_password_reprompt"`
}

// HistoryItem is a single prior value of an entry's password field.
type HistoryItem struct {
	LastUsedDate time.Time `json:"last_used_date"`
	Password     string    `json:"password"` // cipherstring
}

// Folder is a named grouping of entries (supplemented feature: folder CRUD).
type Folder struct {
	ID   string `json:"id"`
	Name string `json:"name"` // cipherstring
}

// PinConfig is the optional PIN-unlock sub-configuration.
type PinConfig struct {
	Enabled bool   `json:"enabled"`
	Profile string `json:"profile,omitempty"`
}

// Config is the on-disk `<config>/config.json` record.
type Config struct {
	Email             string     `json:"email"`
	BaseURL           string     `json:"base_url"`
	IdentityURL       string     `json:"identity_url,omitempty"`
	NotificationsURL  string     `json:"notifications_url,omitempty"`
	UiURL             string     `json:"ui_url,omitempty"`
	Pinentry          string     `json:"pinentry,omitempty"`
	LockTimeoutSecs   uint32     `json:"lock_timeout"`
	SyncIntervalSecs  uint32     `json:"sync_interval"`
	ClientID          *string    `json:"client_id,omitempty"`
	ClientSecret      *string    `json:"client_secret,omitempty"`
	ClientCertPath    *string    `json:"client_cert_path,omitempty"`
	Pin               *PinConfig `json:"pin,omitempty"`
}

// DefaultLockTimeoutSecs is the coerced value when a config's lock_timeout
// is zero (spec section 8 edge case).
const DefaultLockTimeoutSecs = 3600

// Normalize applies the "0 is coerced to default" edge case to LockTimeoutSecs.
func (c *Config) Normalize() {
	if c.LockTimeoutSecs == 0 {
		c.LockTimeoutSecs = DefaultLockTimeoutSecs
	}
}

// KdfDescriptor mirrors identity.Kdf in the wire/storage shape.
type KdfDescriptor struct {
	Algorithm   string `json:"algorithm"` // "pbkdf2" or "argon2id"
	Iterations  uint32 `json:"iterations"`
	MemoryKiB   uint32 `json:"memory_kib,omitempty"`
	Parallelism uint32 `json:"parallelism,omitempty"`
}

// LocalDb is the cached `<cache>/<server>:<email>.json` record.
type LocalDb struct {
	AccessToken         string            `json:"access_token"`
	RefreshToken        string            `json:"refresh_token"`
	Kdf                 KdfDescriptor     `json:"kdf"`
	ProtectedMasterKey  string            `json:"protected_master_key"`   // cipherstring
	ProtectedPrivateKey string            `json:"protected_private_key"`  // cipherstring
	ProtectedOrgKeys    map[string]string `json:"protected_org_keys"`     // org_id -> cipherstring
	Entries             []Entry           `json:"entries"`
	Folders             []Folder          `json:"folders,omitempty"`
	TwoFactorRemember   *string           `json:"two_factor_remember,omitempty"`
}

// WrappedMasterBlob is the PIN-wrap persisted structure (section 4.5/3).
type WrappedMasterBlob struct {
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
	Ciphertext      []byte     `json:"ciphertext"`
}
