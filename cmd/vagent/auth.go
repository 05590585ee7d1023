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
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vagent-project/vagent/cliclient"
	"github.com/vagent-project/vagent/config"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register this device with the vault server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAgent(func(ctx context.Context, c *cliclient.Client) error {
			if err := c.Register(ctx, environment()); err != nil {
				return err
			}
			fmt.Println("registered")
			return nil
		})
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and cache credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAgent(func(ctx context.Context, c *cliclient.Client) error {
			if err := c.Login(ctx, environment()); err != nil {
				return err
			}
			fmt.Println("logged in")
			return nil
		})
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Unlock the vault, prompting for the master password if needed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAgent(func(ctx context.Context, c *cliclient.Client) error {
			if err := c.Unlock(ctx, environment()); err != nil {
				return err
			}
			fmt.Println("unlocked")
			return nil
		})
	},
}

var unlockedCmd = &cobra.Command{
	Use:   "unlocked",
	Short: "Exit 0 if the vault is unlocked, 1 otherwise",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAgent(func(ctx context.Context, c *cliclient.Client) error {
			ok, err := c.CheckLock(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("vault is locked")
			}
			fmt.Println("unlocked")
			return nil
		})
	},
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Lock the vault immediately",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAgent(func(ctx context.Context, c *cliclient.Client) error {
			if err := c.Lock(ctx); err != nil {
				return err
			}
			fmt.Println("locked")
			return nil
		})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh the locally cached vault from the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAgent(func(ctx context.Context, c *cliclient.Client) error {
			if err := c.Sync(ctx); err != nil {
				return err
			}
			fmt.Println("synced")
			return nil
		})
	},
}

var stopAgentCmd = &cobra.Command{
	Use:   "stop-agent",
	Short: "Ask the background agent to exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAgent(func(ctx context.Context, c *cliclient.Client) error {
			if err := c.Quit(ctx); err != nil {
				return err
			}
			fmt.Println("agent stopped")
			return nil
		})
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Lock the vault and delete the locally cached database",
	RunE: func(cmd *cobra.Command, args []string) error {
		dirs, cfg, err := loadedConfig()
		if err != nil {
			return err
		}
		if err := withAgent(func(ctx context.Context, c *cliclient.Client) error {
			return c.Lock(ctx)
		}); err != nil {
			return err
		}
		if err := removeIfExists(dirs.DBFile(config.ServerName(cfg), cfg.Email)); err != nil {
			return err
		}
		fmt.Println("purged")
		return nil
	},
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func init() {
	rootCmd.AddCommand(registerCmd, loginCmd, unlockCmd, unlockedCmd, lockCmd, syncCmd, stopAgentCmd, purgeCmd)
}
