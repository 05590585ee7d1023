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

// Package sshagent serves the vault's SshKey entries over the standard
// ssh-agent wire protocol (section 4.10): RequestIdentities enumerates
// decrypted public keys, Sign locates the matching entry and signs with
// its decrypted private key.
package sshagent

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/vagent-project/vagent/internal/logger"
	"github.com/vagent-project/vagent/vaultmodel"
)

var errNotSupported = errors.New("sshagent: operation not supported by a vault-backed agent")

// VaultSource is the subset of *dispatcher.Dispatcher the adapter drives;
// narrowed to an interface so it can be tested without a real Dispatcher.
type VaultSource interface {
	EnsureUnlocked(ctx context.Context) error
	Entries(ctx context.Context) ([]vaultmodel.Entry, error)
	Decrypt(cipherstringText string, entryKey, orgID *string) ([]byte, error)
}

// Server implements golang.org/x/crypto/ssh/agent.ExtendedAgent over vault
// entries. It never mutates the vault: Add/Remove/Lock/Unlock are refused,
// since key material only ever enters through a sync.
type Server struct {
	Source VaultSource
	Log    logger.Logger
}

// New builds a Server.
func New(source VaultSource, log logger.Logger) *Server {
	return &Server{Source: source, Log: log}
}

// List implements agent.Agent: decrypt and return every SshKey entry's
// public key.
func (s *Server) List() ([]*agent.Key, error) {
	ctx := context.Background()
	if err := s.Source.EnsureUnlocked(ctx); err != nil {
		return nil, err
	}

	entries, err := s.Source.Entries(ctx)
	if err != nil {
		return nil, err
	}

	keys := make([]*agent.Key, 0, len(entries))
	for _, e := range entries {
		if e.Variant != vaultmodel.VariantSshKey || e.SshKey == nil || e.SshKey.PublicKey == nil {
			continue
		}
		pub, comment, err := s.decryptPublicKey(e)
		if err != nil {
			if s.Log != nil {
				s.Log.Warn("skipping ssh identity with undecryptable public key", logger.String("entry_id", e.ID), logger.Error(err))
			}
			continue
		}
		keys = append(keys, &agent.Key{
			Format:  pub.Type(),
			Blob:    pub.Marshal(),
			Comment: comment,
		})
	}
	return keys, nil
}

func (s *Server) decryptPublicKey(e vaultmodel.Entry) (ssh.PublicKey, string, error) {
	raw, err := s.Source.Decrypt(*e.SshKey.PublicKey, e.Key, e.OrgID)
	if err != nil {
		return nil, "", err
	}
	pub, err := ssh.ParsePublicKey(raw)
	if err != nil {
		return nil, "", err
	}
	comment := e.ID
	if e.Name != "" {
		if nameBytes, err := s.Source.Decrypt(e.Name, e.Key, e.OrgID); err == nil {
			comment = string(nameBytes)
		}
	}
	return pub, comment, nil
}

// Sign implements agent.Agent with no flags, matching the ssh-rsa/SHA-1
// default section 4.10 specifies for an unflagged request.
func (s *Server) Sign(key ssh.PublicKey, data []byte) (*ssh.Signature, error) {
	return s.SignWithFlags(key, data, 0)
}

// SignWithFlags implements agent.ExtendedAgent's flagged signing: find the
// entry whose decrypted public key matches key's wire encoding, decrypt its
// private key, and sign with Ed25519 or RSA-PKCS#1v1.5 depending on flags.
// A request for an unknown key or an unsupported key type fails only this
// request; the connection keeps serving subsequent ones.
func (s *Server) SignWithFlags(key ssh.PublicKey, data []byte, flags agent.SignatureFlags) (*ssh.Signature, error) {
	ctx := context.Background()
	if err := s.Source.EnsureUnlocked(ctx); err != nil {
		return nil, err
	}

	entries, err := s.Source.Entries(ctx)
	if err != nil {
		return nil, err
	}

	wanted := key.Marshal()
	for _, e := range entries {
		if e.Variant != vaultmodel.VariantSshKey || e.SshKey == nil || e.SshKey.PublicKey == nil || e.SshKey.PrivateKey == nil {
			continue
		}
		pub, _, err := s.decryptPublicKey(e)
		if err != nil || string(pub.Marshal()) != string(wanted) {
			continue
		}

		privBytes, err := s.Source.Decrypt(*e.SshKey.PrivateKey, e.Key, e.OrgID)
		if err != nil {
			return nil, err
		}
		return signWithFlags(privBytes, data, flags)
	}

	return nil, fmt.Errorf("sshagent: no matching identity for requested key")
}

// signWithFlags parses a PEM-encoded private key and signs data, honoring
// section 4.10's flag-to-hash mapping for RSA: 0x04 -> SHA-512
// (rsa-sha2-512), 0x02 -> SHA-256 (rsa-sha2-256), neither -> SHA-1
// (ssh-rsa). Ed25519 keys ignore flags entirely, as the protocol defines
// only one Ed25519 signature scheme.
func signWithFlags(privBytes, data []byte, flags agent.SignatureFlags) (*ssh.Signature, error) {
	key, err := parsePrivateKey(privBytes)
	if err != nil {
		return nil, err
	}

	switch k := key.(type) {
	case ed25519.PrivateKey:
		return &ssh.Signature{Format: ssh.KeyAlgoED25519, Blob: ed25519.Sign(k, data)}, nil
	case *rsa.PrivateKey:
		hashFn, digest, format := rsaHashFor(flags, data)
		sig, err := rsa.SignPKCS1v15(rand.Reader, k, hashFn, digest)
		if err != nil {
			return nil, err
		}
		return &ssh.Signature{Format: format, Blob: sig}, nil
	default:
		return nil, fmt.Errorf("sshagent: unsupported private key type %T", key)
	}
}

func rsaHashFor(flags agent.SignatureFlags, data []byte) (crypto.Hash, []byte, string) {
	switch {
	case flags&agent.SignatureFlagRsaSha512 != 0:
		sum := sha512.Sum512(data)
		return crypto.SHA512, sum[:], ssh.SigAlgoRSASHA2512
	case flags&agent.SignatureFlagRsaSha256 != 0:
		sum := sha256.Sum256(data)
		return crypto.SHA256, sum[:], ssh.SigAlgoRSASHA2256
	default:
		sum := sha1.Sum(data)
		return crypto.SHA1, sum[:], ssh.SigAlgoRSA
	}
}

// parsePrivateKey accepts a PEM block (the shape a vault entry's decrypted
// private_key takes) wrapping a PKCS#1, PKCS#8, or raw Ed25519 key.
func parsePrivateKey(raw []byte) (any, error) {
	block, _ := pem.Decode(raw)
	der := raw
	if block != nil {
		der = block.Bytes
	}

	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		switch k := key.(type) {
		case *rsa.PrivateKey:
			return k, nil
		case ed25519.PrivateKey:
			return k, nil
		}
	}
	if len(der) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(der), nil
	}
	return nil, fmt.Errorf("sshagent: unrecognized private key encoding")
}

// Add, Remove, RemoveAll, Lock, Unlock, Signers, and Extension are refused:
// a vault-backed agent's only source of identities is a synced entry list,
// never a runtime Add call, and Lock/Unlock here would shadow the main
// agent's own Lock/Unlock actions confusingly.
func (s *Server) Add(key agent.AddedKey) error { return errNotSupported }
func (s *Server) Remove(key ssh.PublicKey) error { return errNotSupported }
func (s *Server) RemoveAll() error               { return errNotSupported }
func (s *Server) Lock(passphrase []byte) error   { return errNotSupported }
func (s *Server) Unlock(passphrase []byte) error { return errNotSupported }

func (s *Server) Signers() ([]ssh.Signer, error) {
	return nil, errNotSupported
}

func (s *Server) Extension(extensionType string, contents []byte) ([]byte, error) {
	return nil, agent.ErrExtensionUnsupported
}
