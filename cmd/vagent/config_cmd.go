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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vagent-project/vagent/agentpaths"
	"github.com/vagent-project/vagent/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or change the local configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current configuration as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := loadedConfig()
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a single configuration field",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dirs, err := agentpaths.Resolve()
		if err != nil {
			return err
		}
		if err := dirs.MakeAll(); err != nil {
			return err
		}

		cfg, err := config.LoadFromFile(dirs.ConfigFile())
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return err
			}
			cfg = &config.Config{}
		}

		if err := setConfigField(cfg, args[0], args[1]); err != nil {
			return err
		}
		cfg.Normalize()
		return config.SaveToFile(cfg, dirs.ConfigFile())
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Clear a single configuration field back to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dirs, cfg, err := loadedConfig()
		if err != nil {
			return err
		}
		if err := setConfigField(cfg, args[0], ""); err != nil {
			return err
		}
		cfg.Normalize()
		return config.SaveToFile(cfg, dirs.ConfigFile())
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configSetCmd, configUnsetCmd)
}

// setConfigField assigns value to the named Config field.
func setConfigField(cfg *config.Config, key, value string) error {
	switch key {
	case "email":
		cfg.Email = value
	case "base_url":
		cfg.BaseURL = value
	case "identity_url":
		cfg.IdentityURL = value
	case "notifications_url":
		cfg.NotificationsURL = value
	case "ui_url":
		cfg.UiURL = value
	case "pinentry":
		cfg.Pinentry = value
	case "lock_timeout":
		if value == "" {
			cfg.LockTimeoutSecs = 0
			return nil
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("lock_timeout must be a number of seconds: %w", err)
		}
		cfg.LockTimeoutSecs = uint32(n)
	case "sync_interval":
		if value == "" {
			cfg.SyncIntervalSecs = 0
			return nil
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("sync_interval must be a number of seconds: %w", err)
		}
		cfg.SyncIntervalSecs = uint32(n)
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}
