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

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/vagent-project/vagent/agentpaths"
	"github.com/vagent-project/vagent/cliclient"
	"github.com/vagent-project/vagent/config"
)

// ipcTimeout bounds every request to the agent, generous enough to cover an
// interactive pinentry prompt popping on screen and being answered.
const ipcTimeout = 2 * time.Minute

// loadedConfig loads the on-disk config.json, resolving dirs first.
func loadedConfig() (agentpaths.Dirs, *config.Config, error) {
	dirs, err := agentpaths.Resolve()
	if err != nil {
		return agentpaths.Dirs{}, nil, fmt.Errorf("resolve directories: %w", err)
	}
	cfg, err := config.LoadFromFile(dirs.ConfigFile())
	if err != nil {
		return dirs, nil, fmt.Errorf("load config (run 'vagent config set' first?): %w", err)
	}
	return dirs, cfg, nil
}

// withAgent resolves dirs, connects to (spawning if needed) the agent, and
// runs fn with a bounded context.
func withAgent(fn func(ctx context.Context, client *cliclient.Client) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), ipcTimeout)
	defer cancel()

	client, err := connect(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, client)
}
