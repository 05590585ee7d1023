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

package config

import (
	"errors"
	"os"

	"github.com/vagent-project/vagent/agentpaths"
	"github.com/vagent-project/vagent/errkind"
)

// LoaderOptions configures Load.
type LoaderOptions struct {
	// DotEnvPath, if non-empty, is loaded before reading config.json so
	// development overrides of VAGENT_* variables take effect.
	DotEnvPath string
	// SkipValidation disables the "email is required" check Validate does.
	SkipValidation bool
}

// DefaultLoaderOptions returns the options Load uses when called with none.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{DotEnvPath: ".env"}
}

// Load reads <config>/config.json, falling back to an empty, defaulted
// Config if the file does not exist yet (the pre-register state).
func Load(dirs agentpaths.Dirs, opts ...LoaderOptions) (*Config, error) {
	options := DefaultLoaderOptions()
	if len(opts) > 0 {
		options = opts[0]
	}

	if options.DotEnvPath != "" {
		if err := LoadDotEnv(options.DotEnvPath); err != nil {
			return nil, errkind.Wrap(errkind.KindLoadConfig, err, "failed to load .env overrides")
		}
	}

	cfg, err := LoadFromFile(dirs.ConfigFile())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, errkind.Wrap(errkind.KindLoadConfig, err, "failed to load config")
		}
		cfg = &Config{}
		cfg.Normalize()
	}

	if !options.SkipValidation {
		if err := Validate(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate enforces the one config invariant the dispatcher depends on:
// an email address must be present before any action but Register/Login.
func Validate(cfg *Config) error {
	if cfg.Email == "" {
		return errkind.New(errkind.KindConfigMissingEmail, "failed to find email address in config")
	}
	return nil
}

// Save creates <config> (if needed) and writes cfg to config.json.
func Save(dirs agentpaths.Dirs, cfg *Config) error {
	if err := dirs.MakeAll(); err != nil {
		return errkind.Wrap(errkind.KindSaveConfig, err, "failed to create config directory")
	}
	if err := SaveToFile(cfg, dirs.ConfigFile()); err != nil {
		return errkind.Wrap(errkind.KindSaveConfig, err, "failed to save config")
	}
	return nil
}
