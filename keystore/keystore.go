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

// Package keystore holds the agent's per-session secret state: the user's
// KeyPair, the org-id to KeyPair map, and the reprompt allow-list. Exactly
// one KeyStore exists per agent process, guarded by a single mutex.
package keystore

import (
	"crypto/sha256"
	"sync"

	"github.com/vagent-project/vagent/locked"
	"github.com/vagent-project/vagent/vaultmodel"
)

// Environment is the last pinentry environment seen by the main agent,
// retained solely so the SSH adapter (which gets no environment of its own)
// can still prompt through pinentry.
type Environment struct {
	Tty     string
	EnvVars map[string]string
}

// RepromptSet is a by-value set of SHA-256 fingerprints of ciphertexts that
// require master-password re-verification before decrypting. It is always
// swapped as a whole, never edited incrementally, so a racing decrypt
// observes either the pre- or post-sync set and never a torn one.
type RepromptSet struct {
	digests map[[32]byte]struct{}
}

// Len reports the number of digests in the set, for metrics reporting.
func (r *RepromptSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.digests)
}

// Contains reports whether the cipherstring text's SHA-256 digest is in the set.
func (r *RepromptSet) Contains(cipherstringText string) bool {
	if r == nil {
		return false
	}
	h := sha256.Sum256([]byte(cipherstringText))
	_, ok := r.digests[h]
	return ok
}

// BuildRepromptSet rebuilds the allow-list from a freshly synced entry list,
// per the sensitivity mapping in section 4.4.
func BuildRepromptSet(entries []vaultmodel.Entry) *RepromptSet {
	set := &RepromptSet{digests: make(map[[32]byte]struct{})}
	insert := func(s *string) {
		if s == nil || *s == "" {
			return
		}
		set.digests[sha256.Sum256([]byte(*s))] = struct{}{}
	}

	for _, e := range entries {
		if !e.MasterPasswordReprompt {
			continue
		}
		switch e.Variant {
		case vaultmodel.VariantLogin:
			if e.Login != nil {
				insert(e.Login.Password)
				insert(e.Login.Totp)
			}
		case vaultmodel.VariantCard:
			if e.Card != nil {
				insert(e.Card.Number)
				insert(e.Card.Code)
			}
		case vaultmodel.VariantIdentity:
			if e.Identity != nil {
				insert(e.Identity.Ssn)
				insert(e.Identity.PassportNumber)
			}
		case vaultmodel.VariantSecureNote:
			// no sensitive fields
		case vaultmodel.VariantSshKey:
			if e.SshKey != nil {
				insert(e.SshKey.PrivateKey)
			}
		}
		for _, f := range e.Fields {
			if f.Type != nil && *f.Type == vaultmodel.FieldHidden {
				insert(f.Value)
			}
		}
	}
	return set
}

// KeyStore is the agent's in-memory secret holder.
type KeyStore struct {
	mu sync.Mutex

	user *locked.KeyPair
	orgs map[string]*locked.KeyPair

	reprompt            *RepromptSet
	repromptInitialized bool

	lastEnvironment Environment
}

// New returns an empty, locked KeyStore.
func New() *KeyStore {
	return &KeyStore{}
}

// Unlock populates the store with a freshly derived user key and org map.
// user and orgs are always populated together.
func (k *KeyStore) Unlock(user *locked.KeyPair, orgs map[string]*locked.KeyPair) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.user = user
	k.orgs = orgs
}

// NeedsUnlock reports whether the store has no populated key material.
func (k *KeyStore) NeedsUnlock() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.user == nil || k.orgs == nil
}

// Key returns the KeyPair to use for orgID (nil for the user's own key).
func (k *KeyStore) Key(orgID *string) *locked.KeyPair {
	k.mu.Lock()
	defer k.mu.Unlock()
	if orgID == nil {
		return k.user
	}
	if k.orgs == nil {
		return nil
	}
	return k.orgs[*orgID]
}

// OrgIDs returns the org IDs currently holding a key, for metrics
// introspection. Never carries key material itself.
func (k *KeyStore) OrgIDs() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	ids := make([]string, 0, len(k.orgs))
	for id := range k.orgs {
		ids = append(ids, id)
	}
	return ids
}

// Clear destroys every KeyPair owned by the store. Per the arena's drop
// contract, no LockedBytes instance the store owned remains readable after
// this call returns.
func (k *KeyStore) Clear() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.user != nil {
		k.user.Destroy()
		k.user = nil
	}
	for _, kp := range k.orgs {
		kp.Destroy()
	}
	k.orgs = nil
	k.reprompt = nil
	k.repromptInitialized = false
}

// SetReprompt swaps in a freshly built reprompt set as a whole.
func (k *KeyStore) SetReprompt(set *RepromptSet) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.reprompt = set
	k.repromptInitialized = true
}

// RequiresReprompt reports whether the given cipherstring text is in the
// current reprompt allow-list.
func (k *KeyStore) RequiresReprompt(cipherstringText string) bool {
	k.mu.Lock()
	set := k.reprompt
	k.mu.Unlock()
	return set.Contains(cipherstringText)
}

// RepromptSetSize reports the size of the current reprompt allow-list, for
// metrics introspection.
func (k *KeyStore) RepromptSetSize() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.reprompt.Len()
}

// RepromptInitialized reports whether at least one successful sync has run.
func (k *KeyStore) RepromptInitialized() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.repromptInitialized
}

// LastEnvironment returns the most recently recorded pinentry environment.
func (k *KeyStore) LastEnvironment() Environment {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.lastEnvironment
}

// SetLastEnvironment records the environment of the most recent request,
// for the SSH adapter's benefit.
func (k *KeyStore) SetLastEnvironment(env Environment) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.lastEnvironment = env
}
