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

// Package ipc implements the local protocol between the CLI and the agent:
// one JSON object per newline-terminated line in each direction, over a
// Unix-domain socket, one request/response pair per connection.
package ipc

// EnvironmentVariables is the allow-list of variables forwarded from the
// CLI's environment to pinentry. Taken from the same gnupg session-env
// precedent the original agent cites.
var EnvironmentVariables = []string{
	"TERM",
	"DISPLAY",
	"XAUTHORITY",
	"XMODIFIERS",
	"WAYLAND_DISPLAY",
	"XDG_SESSION_TYPE",
	"QT_QPA_PLATFORM",
	"GTK_IM_MODULE",
	"DBUS_SESSION_BUS_ADDRESS",
	"QT_IM_MODULE",
	"PINENTRY_USER_DATA",
	"PINENTRY_GEOM_HINT",
}

// Environment carries the TTY and a filtered environment-variable map from
// the CLI to the agent, forwarded as-is to pinentry.
type Environment struct {
	Tty     string            `json:"tty,omitempty"`
	EnvVars map[string]string `json:"env_vars,omitempty"`
}

// Filter returns a copy of raw restricted to EnvironmentVariables.
func Filter(raw map[string]string) map[string]string {
	out := make(map[string]string, len(EnvironmentVariables))
	allowed := make(map[string]struct{}, len(EnvironmentVariables))
	for _, k := range EnvironmentVariables {
		allowed[k] = struct{}{}
	}
	for k, v := range raw {
		if _, ok := allowed[k]; ok && v != "" {
			out[k] = v
		}
	}
	return out
}

// ActionType tags the Action union.
type ActionType string

const (
	ActionRegister        ActionType = "Register"
	ActionLogin           ActionType = "Login"
	ActionUnlock          ActionType = "Unlock"
	ActionCheckLock        ActionType = "CheckLock"
	ActionLock            ActionType = "Lock"
	ActionSync            ActionType = "Sync"
	ActionDecrypt         ActionType = "Decrypt"
	ActionEncrypt         ActionType = "Encrypt"
	ActionClipboardStore  ActionType = "ClipboardStore"
	ActionQuit            ActionType = "Quit"
	ActionVersion         ActionType = "Version"
)

// Action is the tagged union of requestable operations.
type Action struct {
	Type ActionType `json:"type"`

	// Decrypt
	Cipherstring string  `json:"cipherstring,omitempty"`
	EntryKey     *string `json:"entry_key,omitempty"`
	OrgID        *string `json:"org_id,omitempty"`

	// Encrypt
	Plaintext string `json:"plaintext,omitempty"`

	// ClipboardStore
	Text string `json:"text,omitempty"`
}

// Request is a single request frame.
type Request struct {
	Environment Environment `json:"environment"`
	Action      Action      `json:"action"`
}

// ResponseType tags the Response union.
type ResponseType string

const (
	ResponseAck     ResponseType = "Ack"
	ResponseError   ResponseType = "Error"
	ResponseDecrypt ResponseType = "Decrypt"
	ResponseEncrypt ResponseType = "Encrypt"
	ResponseVersion ResponseType = "Version"
)

// Response is a single response frame. A reply is always produced so the
// CLI never blocks waiting on a closed connection.
type Response struct {
	Type         ResponseType `json:"type"`
	Error        string       `json:"error,omitempty"`
	Plaintext    string       `json:"plaintext,omitempty"`
	Cipherstring string       `json:"cipherstring,omitempty"`
	Version      uint32       `json:"version,omitempty"`
}

// Ack builds the bare success response.
func Ack() Response { return Response{Type: ResponseAck} }

// ErrorResponse builds an Error response from message.
func ErrorResponse(message string) Response {
	return Response{Type: ResponseError, Error: message}
}

const (
	versionMajor = 1
	versionMinor = 0
	versionPatch = 0
)

// ProtocolVersion computes major*1_000_000 + minor*1_000 + patch.
func ProtocolVersion() uint32 {
	return versionMajor*1_000_000 + versionMinor*1_000 + versionPatch
}
