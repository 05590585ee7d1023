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

// Package agentpaths computes the per-user config/cache/data/runtime
// filesystem layout (section 6) and the stable per-install device ID.
package agentpaths

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const appName = "vagent"

// Dirs holds the four XDG-style roots this agent uses.
type Dirs struct {
	Config  string
	Cache   string
	Data    string
	Runtime string
}

// Resolve computes Dirs from the environment, the way os.UserConfigDir/
// os.UserCacheDir do, with an XDG_RUNTIME_DIR fallback to a per-uid temp
// directory when the session manager doesn't provide one.
func Resolve() (Dirs, error) {
	config, err := os.UserConfigDir()
	if err != nil {
		return Dirs{}, err
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		return Dirs{}, err
	}
	data := os.Getenv("XDG_DATA_HOME")
	if data == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Dirs{}, err
		}
		data = filepath.Join(home, ".local", "share")
	}

	runtime := os.Getenv("XDG_RUNTIME_DIR")
	if runtime == "" {
		runtime = filepath.Join(os.TempDir(), fmt.Sprintf("%s-%d", appName, os.Getuid()))
	}

	return Dirs{
		Config:  filepath.Join(config, appName),
		Cache:   filepath.Join(cache, appName),
		Data:    filepath.Join(data, appName),
		Runtime: filepath.Join(runtime, appName),
	}, nil
}

// MakeAll creates all four directories, runtime mode 0o700 per section 5's
// filesystem-socket policy.
func (d Dirs) MakeAll() error {
	for _, dir := range []string{d.Config, d.Cache, d.Data} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return os.MkdirAll(d.Runtime, 0o700)
}

// ConfigFile is <config>/config.json.
func (d Dirs) ConfigFile() string { return filepath.Join(d.Config, "config.json") }

// DBFile is <cache>/<url-encoded-server>:<email>.json.
func (d Dirs) DBFile(server, email string) string {
	return filepath.Join(d.Cache, fmt.Sprintf("%s:%s.json", url.QueryEscape(server), email))
}

// PidFile is <runtime>/pidfile.
func (d Dirs) PidFile() string { return filepath.Join(d.Runtime, "pidfile") }

// AgentStdoutFile is <data>/agent.out.
func (d Dirs) AgentStdoutFile() string { return filepath.Join(d.Data, "agent.out") }

// AgentStderrFile is <data>/agent.err.
func (d Dirs) AgentStderrFile() string { return filepath.Join(d.Data, "agent.err") }

// DeviceIDFile is <data>/device_id.
func (d Dirs) DeviceIDFile() string { return filepath.Join(d.Data, "device_id") }

// WrappedMasterFile is <data>/wrapped_master.json.
func (d Dirs) WrappedMasterFile() string { return filepath.Join(d.Data, "wrapped_master.json") }

// SocketFile is <runtime>/socket, the CLI-facing IPC socket.
func (d Dirs) SocketFile() string { return filepath.Join(d.Runtime, "socket") }

// SSHAgentSocketFile is <runtime>/ssh-agent.socket.
func (d Dirs) SSHAgentSocketFile() string { return filepath.Join(d.Runtime, "ssh-agent.socket") }

// LocalSecretFile is <data>/local_secret/<profile>, the per-profile
// device-local secret PIN-wrap combines with a PIN. Stored alongside
// DeviceIDFile rather than in an OS keyring, since this pack carries no
// keyring-service dependency to wire it to.
func (d Dirs) LocalSecretFile(profile string) string {
	return filepath.Join(d.Data, "local_secret", url.QueryEscape(profile))
}

// DeviceID returns the stable UUIDv4 stored at DeviceIDFile, generating and
// persisting one on first use.
func (d Dirs) DeviceID() (string, error) {
	path := d.DeviceIDFile()

	if data, err := os.ReadFile(path); err == nil {
		return string(data), nil
	} else if !os.IsNotExist(err) {
		return "", err
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(id), 0o600); err != nil {
		return "", err
	}
	return id, nil
}
