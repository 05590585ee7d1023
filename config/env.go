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
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads a development .env file into the process environment if
// one is present at path; a missing file is not an error. Intended for
// local development overrides of VAGENT_* variables, never for production
// deployment.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// AgentBinaryOverride returns VAGENT_AGENT if set, the CLI's path override
// for the agent binary it spawns (section 6).
func AgentBinaryOverride() (string, bool) {
	v := os.Getenv("VAGENT_AGENT")
	return v, v != ""
}

// EditorCommand returns VISUAL if set, else EDITOR, else "vi" as a last
// resort fallback for the edit/add helpers.
func EditorCommand() string {
	if v := os.Getenv("VISUAL"); v != "" {
		return v
	}
	if v := os.Getenv("EDITOR"); v != "" {
		return v
	}
	return "vi"
}

// LogLevel returns VAGENT_LOG_LEVEL, for anything that needs it outside
// internal/logger's own default construction.
func LogLevel() string {
	return os.Getenv("VAGENT_LOG_LEVEL")
}
