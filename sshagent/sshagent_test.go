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

package sshagent

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/vagent-project/vagent/vaultmodel"
)

// fakeSource implements VaultSource over an in-memory map keyed by the
// "cipherstring" strings it was handed — a stand-in cipherstring.Decrypt
// would normally perform, but the identity function is enough to exercise
// Server's key-matching and signing logic in isolation.
type fakeSource struct {
	locked  bool
	entries []vaultmodel.Entry
	blobs   map[string][]byte
}

func (f *fakeSource) EnsureUnlocked(ctx context.Context) error {
	if f.locked {
		return assert.AnError
	}
	return nil
}

func (f *fakeSource) Entries(ctx context.Context) ([]vaultmodel.Entry, error) {
	return f.entries, nil
}

func (f *fakeSource) Decrypt(cipherstringText string, entryKey, orgID *string) ([]byte, error) {
	b, ok := f.blobs[cipherstringText]
	if !ok {
		return nil, assert.AnError
	}
	return b, nil
}

func strp(s string) *string { return &s }

func pemBlock(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

func buildEd25519Entry(t *testing.T, id string) (vaultmodel.Entry, map[string][]byte) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)

	pubMarker := id + "-pub"
	privMarker := id + "-priv"
	nameMarker := id + "-name"

	blobs := map[string][]byte{
		pubMarker:  sshPub.Marshal(),
		privMarker: []byte(priv),
		nameMarker: []byte("ed25519-" + id),
	}

	entry := vaultmodel.Entry{
		ID:      id,
		Name:    nameMarker,
		Variant: vaultmodel.VariantSshKey,
		SshKey: &vaultmodel.SshKeyData{
			PublicKey:  strp(pubMarker),
			PrivateKey: strp(privMarker),
		},
	}
	return entry, blobs
}

func buildRSAEntry(t *testing.T, id string) (vaultmodel.Entry, map[string][]byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(&key.PublicKey)
	require.NoError(t, err)

	pubMarker := id + "-pub"
	privMarker := id + "-priv"
	nameMarker := id + "-name"

	blobs := map[string][]byte{
		pubMarker:  sshPub.Marshal(),
		privMarker: pemBlock(x509.MarshalPKCS1PrivateKey(key)),
		nameMarker: []byte("rsa-" + id),
	}

	entry := vaultmodel.Entry{
		ID:      id,
		Name:    nameMarker,
		Variant: vaultmodel.VariantSshKey,
		SshKey: &vaultmodel.SshKeyData{
			PublicKey:  strp(pubMarker),
			PrivateKey: strp(privMarker),
		},
	}
	return entry, blobs
}

func mergeBlobs(maps ...map[string][]byte) map[string][]byte {
	out := map[string][]byte{}
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func TestListReturnsDecryptedPublicKeys(t *testing.T) {
	edEntry, edBlobs := buildEd25519Entry(t, "a")
	rsaEntry, rsaBlobs := buildRSAEntry(t, "b")
	src := &fakeSource{
		entries: []vaultmodel.Entry{edEntry, rsaEntry},
		blobs:   mergeBlobs(edBlobs, rsaBlobs),
	}
	srv := New(src, nil)

	keys, err := srv.List()
	require.NoError(t, err)
	require.Len(t, keys, 2)
	comments := []string{keys[0].Comment, keys[1].Comment}
	assert.Contains(t, comments, "ed25519-a")
	assert.Contains(t, comments, "rsa-b")
}

func TestListSkipsNonSshKeyAndUndecryptableEntries(t *testing.T) {
	okEntry, okBlobs := buildEd25519Entry(t, "ok")
	src := &fakeSource{
		entries: []vaultmodel.Entry{
			{ID: "login", Variant: vaultmodel.VariantLogin},
			{ID: "broken", Variant: vaultmodel.VariantSshKey, SshKey: &vaultmodel.SshKeyData{PublicKey: strp("missing")}},
			okEntry,
		},
		blobs: okBlobs,
	}
	srv := New(src, nil)

	keys, err := srv.List()
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "ed25519-ok", keys[0].Comment)
}

func TestSignWithEd25519Key(t *testing.T) {
	edEntry, edBlobs := buildEd25519Entry(t, "a")
	src := &fakeSource{entries: []vaultmodel.Entry{edEntry}, blobs: edBlobs}
	srv := New(src, nil)

	sshPub, err := ssh.ParsePublicKey(edBlobs["a-pub"])
	require.NoError(t, err)

	sig, err := srv.Sign(sshPub, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, ssh.KeyAlgoED25519, sig.Format)
	assert.NoError(t, sshPub.Verify([]byte("hello"), sig))
}

func TestSignWithFlagsSelectsRSAHashAlgorithm(t *testing.T) {
	rsaEntry, rsaBlobs := buildRSAEntry(t, "b")
	src := &fakeSource{entries: []vaultmodel.Entry{rsaEntry}, blobs: rsaBlobs}
	srv := New(src, nil)

	sshPub, err := ssh.ParsePublicKey(rsaBlobs["b-pub"])
	require.NoError(t, err)

	sig, err := srv.SignWithFlags(sshPub, []byte("data"), agent.SignatureFlagRsaSha512)
	require.NoError(t, err)
	assert.Equal(t, ssh.SigAlgoRSASHA2512, sig.Format)
	assert.NoError(t, sshPub.Verify([]byte("data"), sig))

	sig, err = srv.SignWithFlags(sshPub, []byte("data"), 0)
	require.NoError(t, err)
	assert.Equal(t, ssh.SigAlgoRSA, sig.Format)
}

func TestSignUnknownKeyFails(t *testing.T) {
	edEntry, edBlobs := buildEd25519Entry(t, "a")
	src := &fakeSource{entries: []vaultmodel.Entry{edEntry}, blobs: edBlobs}
	srv := New(src, nil)

	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	otherPub, err := ssh.NewPublicKey(otherPriv.Public())
	require.NoError(t, err)

	_, err = srv.Sign(otherPub, []byte("hello"))
	assert.Error(t, err)
}

func TestMutatingMethodsAreRefused(t *testing.T) {
	srv := New(&fakeSource{}, nil)
	assert.ErrorIs(t, srv.Add(agent.AddedKey{}), errNotSupported)
	assert.ErrorIs(t, srv.Remove(nil), errNotSupported)
	assert.ErrorIs(t, srv.RemoveAll(), errNotSupported)
	assert.ErrorIs(t, srv.Lock(nil), errNotSupported)
	assert.ErrorIs(t, srv.Unlock(nil), errNotSupported)
	_, err := srv.Signers()
	assert.ErrorIs(t, err, errNotSupported)
	_, err = srv.Extension("ext", nil)
	assert.ErrorIs(t, err, agent.ErrExtensionUnsupported)
}
