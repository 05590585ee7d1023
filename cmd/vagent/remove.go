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
	"github.com/vagent-project/vagent/vaultmodel"
)

var (
	removeFolder      string
	removeInteractive bool
)

var removeCmd = &cobra.Command{
	Use:   "remove <needle> [user]",
	Short: "Remove an entry from the local vault cache",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		needle := args[0]
		user := ""
		if len(args) > 1 {
			user = args[1]
		}

		v, err := openVault()
		if err != nil {
			return err
		}

		return withAgent(func(ctx context.Context, c *cliclient.Client) error {
			entries, err := v.decryptEntries(ctx, c)
			if err != nil {
				return err
			}
			de, err := selectEntry(entries, needle, user, removeFolder, removeInteractive)
			if err != nil {
				return err
			}

			kept := make([]vaultmodel.Entry, 0, len(v.Db.Entries))
			for _, e := range v.Db.Entries {
				if e.ID != de.Entry.ID {
					kept = append(kept, e)
				}
			}
			v.Db.Entries = kept
			if err := v.save(); err != nil {
				return err
			}
			fmt.Println("removed", de.Name)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(removeCmd)
	removeCmd.Flags().StringVar(&removeFolder, "folder", "", "restrict the match to this folder")
	removeCmd.Flags().BoolVarP(&removeInteractive, "interactive", "i", false, "prompt to disambiguate multiple matches")
}
