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

	"github.com/spf13/cobra"

	"github.com/vagent-project/vagent/cliclient"
)

var (
	searchFolder string
	searchRaw    bool
)

var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search entry names for a substring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault()
		if err != nil {
			return err
		}

		return withAgent(func(ctx context.Context, c *cliclient.Client) error {
			entries, err := v.decryptEntries(ctx, c)
			if err != nil {
				return err
			}
			for _, de := range entries {
				if !de.matches(args[0], "", searchFolder) {
					continue
				}
				if searchRaw {
					fmt.Printf("%s\t%s\t%s\t%s\n", de.Entry.ID, de.Name, de.Username, de.FolderName)
				} else {
					fmt.Println(de.Name)
				}
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVar(&searchFolder, "folder", "", "restrict the search to this folder")
	searchCmd.Flags().BoolVar(&searchRaw, "raw", false, "print id, username, and folder alongside the name")
}
