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

// Package config loads and saves the agent's on-disk JSON records: the
// user-facing Config (section 3/6) and the per-(server, email) LocalDb
// cache, plus environment-variable overrides and optional .env loading for
// development.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/vagent-project/vagent/agentpaths"
	"github.com/vagent-project/vagent/vaultmodel"
)

const (
	defaultBaseURL     = "https://api.bitwarden.com"
	defaultIdentityURL = "https://identity.bitwarden.com"
)

// Config is the on-disk config.json record; alias kept distinct from
// vaultmodel.Config so callers of this package don't need to import
// vaultmodel directly for the common case.
type Config = vaultmodel.Config

// LocalDb is the cached per-(server, email) record.
type LocalDb = vaultmodel.LocalDb

// LoadFromFile reads and parses path as JSON, applying Normalize defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.Normalize()
	return cfg, nil
}

// SaveToFile writes cfg to path as indented JSON, mode 0o600 (it may carry
// a client secret).
func SaveToFile(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// BaseURL returns the effective vault API root: cfg.BaseURL + "/api" if
// set, else the public Bitwarden instance.
func BaseURL(cfg *Config) string {
	if cfg.BaseURL == "" {
		return defaultBaseURL
	}
	return strings.TrimSuffix(cfg.BaseURL, "/") + "/api"
}

// IdentityURL returns cfg.IdentityURL if set, else cfg.BaseURL + "/identity",
// else the public Bitwarden identity server.
func IdentityURL(cfg *Config) string {
	if cfg.IdentityURL != "" {
		return cfg.IdentityURL
	}
	if cfg.BaseURL == "" {
		return defaultIdentityURL
	}
	return strings.TrimSuffix(cfg.BaseURL, "/") + "/identity"
}

// ServerName is the raw configured base URL (or "default" when unset), used
// to key the local cache file and as the profile name for PIN-wrap's local
// secret.
func ServerName(cfg *Config) string {
	if cfg.BaseURL == "" {
		return "default"
	}
	return cfg.BaseURL
}

// LoadDb loads the LocalDb cached for cfg's server and email via dirs.
func LoadDb(dirs agentpaths.Dirs, cfg *Config) (*LocalDb, error) {
	data, err := os.ReadFile(dirs.DBFile(ServerName(cfg), cfg.Email))
	if err != nil {
		if os.IsNotExist(err) {
			return &LocalDb{ProtectedOrgKeys: map[string]string{}}, nil
		}
		return nil, fmt.Errorf("failed to read local db: %w", err)
	}
	db := &LocalDb{}
	if err := json.Unmarshal(data, db); err != nil {
		return nil, fmt.Errorf("failed to parse local db: %w", err)
	}
	if db.ProtectedOrgKeys == nil {
		db.ProtectedOrgKeys = map[string]string{}
	}
	return db, nil
}

// SaveDb persists db for cfg's server and email atomically: write to a
// sibling temp file then rename over the target, so a crash mid-write never
// leaves a half-written cache behind.
func SaveDb(dirs agentpaths.Dirs, cfg *Config, db *LocalDb) error {
	data, err := json.MarshalIndent(db, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal local db: %w", err)
	}

	path := dirs.DBFile(ServerName(cfg), cfg.Email)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write local db: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to install local db: %w", err)
	}
	return nil
}

