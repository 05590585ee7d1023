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
	"fmt"

	"github.com/spf13/cobra"
)

// generateCmd and editCmd exist as command shapes for CLI-surface
// compatibility; the password-generator and the interactive $EDITOR flow
// behind them are out of scope for this agent.
var generateCmd = &cobra.Command{
	Use:   "generate <len> [name]",
	Short: "Generate a random password (not implemented)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("password generation is not implemented by this agent")
	},
}

var editCmd = &cobra.Command{
	Use:   "edit [needle] [user]",
	Short: "Edit an entry in $EDITOR (not implemented)",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("editor-based editing is not implemented by this agent")
	},
}

func init() {
	rootCmd.AddCommand(generateCmd, editCmd)
}
