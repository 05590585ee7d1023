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

// Package cliclient is the CLI's thin client for the agent's IPC socket
// (section 4.7): one connection per request, plus the version-handshake
// retry the CLI runs before trusting a running agent.
package cliclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/vagent-project/vagent/ipc"
)

// Client dials the agent's CLI-facing socket.
type Client struct {
	SocketPath string
}

// New builds a Client for socketPath.
func New(socketPath string) *Client {
	return &Client{SocketPath: socketPath}
}

// Call opens one connection, writes req as a single newline-terminated JSON
// line, reads exactly one response line back, and closes — mirroring
// ipc.Server's one-request-per-connection contract.
func (c *Client) Call(ctx context.Context, req ipc.Request) (ipc.Response, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", c.SocketPath)
	if err != nil {
		return ipc.Response{}, fmt.Errorf("cliclient: connect to agent: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	data, err := json.Marshal(req)
	if err != nil {
		return ipc.Response{}, fmt.Errorf("cliclient: encode request: %w", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return ipc.Response{}, fmt.Errorf("cliclient: write request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return ipc.Response{}, fmt.Errorf("cliclient: read response: %w", err)
	}

	var resp ipc.Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return ipc.Response{}, fmt.Errorf("cliclient: decode response: %w", err)
	}
	return resp, nil
}

// action sends an Action with no environment, for requests that never
// prompt pinentry (Version, Quit, CheckLock, ...).
func (c *Client) action(ctx context.Context, a ipc.Action) (ipc.Response, error) {
	return c.Call(ctx, ipc.Request{Action: a})
}

// actionWithEnv sends an Action together with the caller's tty/environment,
// for requests that may need to pop a pinentry prompt agent-side.
func (c *Client) actionWithEnv(ctx context.Context, a ipc.Action, env ipc.Environment) (ipc.Response, error) {
	return c.Call(ctx, ipc.Request{Action: a, Environment: env})
}

// Register asks the agent to run the Register flow, prompting for
// credentials itself via pinentry using env.
func (c *Client) Register(ctx context.Context, env ipc.Environment) error {
	resp, err := c.actionWithEnv(ctx, ipc.Action{Type: ipc.ActionRegister}, env)
	if err != nil {
		return err
	}
	if resp.Type == ipc.ResponseError {
		return fmt.Errorf("cliclient: agent returned error: %s", resp.Error)
	}
	return nil
}

// Login asks the agent to run the Login flow.
func (c *Client) Login(ctx context.Context, env ipc.Environment) error {
	resp, err := c.actionWithEnv(ctx, ipc.Action{Type: ipc.ActionLogin}, env)
	if err != nil {
		return err
	}
	if resp.Type == ipc.ResponseError {
		return fmt.Errorf("cliclient: agent returned error: %s", resp.Error)
	}
	return nil
}

// Unlock asks the agent to unlock the keystore, prompting for the master
// password via pinentry if it isn't already unlocked.
func (c *Client) Unlock(ctx context.Context, env ipc.Environment) error {
	resp, err := c.actionWithEnv(ctx, ipc.Action{Type: ipc.ActionUnlock}, env)
	if err != nil {
		return err
	}
	if resp.Type == ipc.ResponseError {
		return fmt.Errorf("cliclient: agent returned error: %s", resp.Error)
	}
	return nil
}

// CheckLock reports whether the agent's keystore is currently unlocked.
func (c *Client) CheckLock(ctx context.Context) (bool, error) {
	resp, err := c.action(ctx, ipc.Action{Type: ipc.ActionCheckLock})
	if err != nil {
		return false, err
	}
	return resp.Type != ipc.ResponseError, nil
}

// Lock asks the agent to lock its keystore immediately.
func (c *Client) Lock(ctx context.Context) error {
	resp, err := c.action(ctx, ipc.Action{Type: ipc.ActionLock})
	if err != nil {
		return err
	}
	if resp.Type == ipc.ResponseError {
		return fmt.Errorf("cliclient: agent returned error: %s", resp.Error)
	}
	return nil
}

// Sync asks the agent to refresh its cached vault from the server.
func (c *Client) Sync(ctx context.Context) error {
	resp, err := c.action(ctx, ipc.Action{Type: ipc.ActionSync})
	if err != nil {
		return err
	}
	if resp.Type == ipc.ResponseError {
		return fmt.Errorf("cliclient: agent returned error: %s", resp.Error)
	}
	return nil
}

// Decrypt asks the agent to decrypt a single cipherstring field, unlocking
// (and prompting via env if needed) first.
func (c *Client) Decrypt(ctx context.Context, cipherstring string, entryKey, orgID *string, env ipc.Environment) (string, error) {
	resp, err := c.actionWithEnv(ctx, ipc.Action{
		Type:         ipc.ActionDecrypt,
		Cipherstring: cipherstring,
		EntryKey:     entryKey,
		OrgID:        orgID,
	}, env)
	if err != nil {
		return "", err
	}
	if resp.Type == ipc.ResponseError {
		return "", fmt.Errorf("cliclient: agent returned error: %s", resp.Error)
	}
	return resp.Plaintext, nil
}

// Encrypt asks the agent to encrypt a plaintext field into a cipherstring.
func (c *Client) Encrypt(ctx context.Context, plaintext string, orgID *string) (string, error) {
	resp, err := c.action(ctx, ipc.Action{Type: ipc.ActionEncrypt, Plaintext: plaintext, OrgID: orgID})
	if err != nil {
		return "", err
	}
	if resp.Type == ipc.ResponseError {
		return "", fmt.Errorf("cliclient: agent returned error: %s", resp.Error)
	}
	return resp.Cipherstring, nil
}

// ClipboardStore asks the agent to place text on the clipboard (section
// 4.8). The agent starts no clear timer; it answers with an Error when it
// has no clipboard backend or the store fails.
func (c *Client) ClipboardStore(ctx context.Context, text string) error {
	resp, err := c.action(ctx, ipc.Action{Type: ipc.ActionClipboardStore, Text: text})
	if err != nil {
		return err
	}
	if resp.Type == ipc.ResponseError {
		return fmt.Errorf("cliclient: agent returned error: %s", resp.Error)
	}
	return nil
}

// Version queries the agent's protocol version.
func (c *Client) Version(ctx context.Context) (uint32, error) {
	resp, err := c.action(ctx, ipc.Action{Type: ipc.ActionVersion})
	if err != nil {
		return 0, err
	}
	if resp.Type == ipc.ResponseError {
		return 0, fmt.Errorf("cliclient: agent returned error: %s", resp.Error)
	}
	return resp.Version, nil
}

// Quit asks the agent to exit.
func (c *Client) Quit(ctx context.Context) error {
	resp, err := c.action(ctx, ipc.Action{Type: ipc.ActionQuit})
	if err != nil {
		return err
	}
	if resp.Type == ipc.ResponseError {
		return fmt.Errorf("cliclient: agent returned error: %s", resp.Error)
	}
	return nil
}

// EnsureCompatible implements section 4.7's version handshake: query
// Version; if it doesn't match this binary's ipc.ProtocolVersion(), ask the
// running agent to Quit and invoke restart to bring up a fresh one, then
// re-query exactly once more. A second mismatch (or a second failure to
// connect) is fatal — returned as an error for the caller to report and
// exit on, never retried further.
func (c *Client) EnsureCompatible(ctx context.Context, restart func(ctx context.Context) error) error {
	want := ipc.ProtocolVersion()

	got, err := c.Version(ctx)
	if err == nil && got == want {
		return nil
	}

	if err == nil {
		// Agent is reachable but speaks a different version: ask it to
		// step aside before restarting.
		_ = c.Quit(ctx)
	}

	if restartErr := restart(ctx); restartErr != nil {
		return fmt.Errorf("cliclient: restart agent: %w", restartErr)
	}

	got, err = c.Version(ctx)
	if err != nil {
		return fmt.Errorf("cliclient: agent unreachable after restart: %w", err)
	}
	if got != want {
		return fmt.Errorf("cliclient: agent protocol version %d still mismatched after restart (want %d)", got, want)
	}
	return nil
}
