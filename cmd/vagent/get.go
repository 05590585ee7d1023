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
	getFolder      string
	getField       string
	getFull        bool
	getRaw         bool
	getClipboard   bool
	getInteractive bool
)

var getCmd = &cobra.Command{
	Use:   "get [needle] [user]",
	Short: "Print a single entry's password (or another field)",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var needle, user string
		if len(args) > 0 {
			needle = args[0]
		}
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
			de, err := selectEntry(entries, needle, user, getFolder, getInteractive)
			if err != nil {
				return err
			}

			if getFull {
				return printFullEntry(ctx, c, *de)
			}

			value, err := getFieldValue(ctx, c, *de, getField)
			if err != nil {
				return err
			}

			if getClipboard {
				return c.ClipboardStore(ctx, value)
			}
			if getRaw {
				fmt.Print(value)
			} else {
				fmt.Println(value)
			}
			return nil
		})
	},
}

// getFieldValue resolves field (default "password") for a Login-variant
// entry, decrypting it through the agent.
func getFieldValue(ctx context.Context, c *cliclient.Client, de decryptedEntry, field string) (string, error) {
	if field == "" {
		field = "password"
	}

	e := de.Entry
	switch field {
	case "password":
		if e.Login == nil || e.Login.Password == nil {
			return "", fmt.Errorf("entry %q has no password", de.Name)
		}
		return c.Decrypt(ctx, *e.Login.Password, e.Key, e.OrgID, environment())
	case "username":
		return de.Username, nil
	case "notes":
		if e.Notes == nil {
			return "", fmt.Errorf("entry %q has no notes", de.Name)
		}
		return c.Decrypt(ctx, *e.Notes, e.Key, e.OrgID, environment())
	case "totp":
		return currentTotp(ctx, c, e)
	default:
		for _, f := range e.Fields {
			if f.Name != nil && *f.Name == field {
				if f.Value == nil {
					return "", nil
				}
				return c.Decrypt(ctx, *f.Value, e.Key, e.OrgID, environment())
			}
		}
		return "", fmt.Errorf("entry %q has no field %q", de.Name, field)
	}
}

func printFullEntry(ctx context.Context, c *cliclient.Client, de decryptedEntry) error {
	fmt.Printf("name: %s\n", de.Name)
	if de.Username != "" {
		fmt.Printf("username: %s\n", de.Username)
	}
	if de.Entry.Login != nil && de.Entry.Login.Password != nil {
		pw, err := c.Decrypt(ctx, *de.Entry.Login.Password, de.Entry.Key, de.Entry.OrgID, environment())
		if err != nil {
			return err
		}
		fmt.Printf("password: %s\n", pw)
	}
	for _, f := range de.Entry.Fields {
		if f.Name == nil {
			continue
		}
		value := ""
		if f.Value != nil {
			v, err := c.Decrypt(ctx, *f.Value, de.Entry.Key, de.Entry.OrgID, environment())
			if err != nil {
				return err
			}
			value = v
		}
		fmt.Printf("%s: %s\n", *f.Name, value)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().StringVar(&getFolder, "folder", "", "restrict the match to this folder")
	getCmd.Flags().StringVar(&getField, "field", "", "field to print instead of the password")
	getCmd.Flags().BoolVar(&getFull, "full", false, "print every field on the entry")
	getCmd.Flags().BoolVar(&getRaw, "raw", false, "print without a trailing newline")
	getCmd.Flags().BoolVar(&getClipboard, "clipboard", false, "hand the value to the agent's clipboard instead of printing it")
	getCmd.Flags().BoolVarP(&getInteractive, "interactive", "i", false, "prompt to disambiguate multiple matches")
}
