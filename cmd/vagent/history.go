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
	historyFolder      string
	historyInteractive bool
)

var historyCmd = &cobra.Command{
	Use:   "history <needle> [user]",
	Short: "Print an entry's prior password values",
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
			de, err := selectEntry(entries, needle, user, historyFolder, historyInteractive)
			if err != nil {
				return err
			}

			if len(de.Entry.History) == 0 {
				fmt.Println("no history recorded")
				return nil
			}
			for _, h := range de.Entry.History {
				pw, err := c.Decrypt(ctx, h.Password, de.Entry.Key, de.Entry.OrgID, environment())
				if err != nil {
					return err
				}
				fmt.Printf("%s\t%s\n", h.LastUsedDate.Format("2006-01-02T15:04:05Z07:00"), pw)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&historyFolder, "folder", "", "restrict the match to this folder")
	historyCmd.Flags().BoolVarP(&historyInteractive, "interactive", "i", false, "prompt to disambiguate multiple matches")
}
