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
	"strings"

	"github.com/spf13/cobra"

	"github.com/vagent-project/vagent/cliclient"
)

var listFields string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every entry in the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		fields := strings.Split(listFields, ",")
		if listFields == "" {
			fields = []string{"name"}
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
			for _, de := range entries {
				fmt.Println(formatFields(de, fields))
			}
			return nil
		})
	},
}

func formatFields(de decryptedEntry, fields []string) string {
	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		switch strings.TrimSpace(f) {
		case "name":
			cols = append(cols, de.Name)
		case "id":
			cols = append(cols, de.Entry.ID)
		case "user", "username":
			cols = append(cols, de.Username)
		case "folder":
			cols = append(cols, de.FolderName)
		}
	}
	return strings.Join(cols, "\t")
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listFields, "fields", "", "comma-separated columns: name,id,user,folder")
}
