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
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vagent-project/vagent/cliclient"
	"github.com/vagent-project/vagent/vaultmodel"
)

var addFolder string

var addCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a new login entry, prompting for username and password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		reader := bufio.NewReader(os.Stdin)
		fmt.Print("username: ")
		username, _ := reader.ReadString('\n')
		username = strings.TrimRight(username, "\r\n")

		fmt.Print("password: ")
		passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}

		v, err := openVault()
		if err != nil {
			return err
		}

		var folderID *string
		if addFolder != "" {
			id, err := v.resolveOrCreateFolder(addFolder)
			if err != nil {
				return err
			}
			folderID = &id
		}

		return withAgent(func(ctx context.Context, c *cliclient.Client) error {
			nameCS, err := c.Encrypt(ctx, name, nil)
			if err != nil {
				return err
			}
			var usernameCS *string
			if username != "" {
				cs, err := c.Encrypt(ctx, username, nil)
				if err != nil {
					return err
				}
				usernameCS = &cs
			}
			passwordCS, err := c.Encrypt(ctx, string(passwordBytes), nil)
			if err != nil {
				return err
			}

			entry := vaultmodel.Entry{
				ID:       uuid.NewString(),
				Name:     nameCS,
				Variant:  vaultmodel.VariantLogin,
				FolderID: folderID,
				Login: &vaultmodel.LoginData{
					Username: usernameCS,
					Password: &passwordCS,
				},
			}
			v.Db.Entries = append(v.Db.Entries, entry)
			if err := v.save(); err != nil {
				return err
			}
			fmt.Println("added", name)
			return nil
		})
	},
}

// resolveOrCreateFolder returns the ID of the folder in the local DB whose
// stored Name equals name. It does not create a folder: when none matches
// it returns an error, and the add command stops with that error.
func (v *vault) resolveOrCreateFolder(name string) (string, error) {
	for _, f := range v.Db.Folders {
		if f.Name == name {
			return f.ID, nil
		}
	}
	return "", fmt.Errorf("folder %q does not exist yet; create it with the vault's folder management before adding to it", name)
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringVar(&addFolder, "folder", "", "existing folder to file this entry under")
}
