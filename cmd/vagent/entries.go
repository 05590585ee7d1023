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
	"os"
	"strings"

	"github.com/vagent-project/vagent/agentpaths"
	"github.com/vagent-project/vagent/cliclient"
	"github.com/vagent-project/vagent/config"
	"github.com/vagent-project/vagent/vaultmodel"
)

// decryptedEntry pairs a vault entry with the fields the CLI commonly needs
// decrypted: its name, folder, and (for logins) username.
type decryptedEntry struct {
	Entry      vaultmodel.Entry
	Name       string
	Username   string
	FolderName string
}

// vault bundles what every entry-oriented command needs: the resolved
// directories, the loaded config, and the locally cached database.
type vault struct {
	Dirs agentpaths.Dirs
	Cfg  *config.Config
	Db   *config.LocalDb
}

func openVault() (*vault, error) {
	dirs, cfg, err := loadedConfig()
	if err != nil {
		return nil, err
	}
	db, err := config.LoadDb(dirs, cfg)
	if err != nil {
		return nil, err
	}
	return &vault{Dirs: dirs, Cfg: cfg, Db: db}, nil
}

func (v *vault) save() error {
	return config.SaveDb(v.Dirs, v.Cfg, v.Db)
}

func (v *vault) folderName(id *string) string {
	if id == nil {
		return ""
	}
	for _, f := range v.Db.Folders {
		if f.ID == *id {
			return f.Name
		}
	}
	return ""
}

// decryptEntries resolves every entry's name, folder name, and (for Login
// entries) username, via the agent. Cipherstrings that are empty are left
// as empty strings rather than round-tripped.
func (v *vault) decryptEntries(ctx context.Context, c *cliclient.Client) ([]decryptedEntry, error) {
	out := make([]decryptedEntry, 0, len(v.Db.Entries))
	for _, e := range v.Db.Entries {
		name, err := v.decryptField(ctx, c, e.Name, e.Key, e.OrgID)
		if err != nil {
			return nil, fmt.Errorf("decrypt entry %s: %w", e.ID, err)
		}

		folder := v.folderName(e.FolderID)
		if folder != "" {
			folder, err = v.decryptField(ctx, c, folder, nil, nil)
			if err != nil {
				return nil, fmt.Errorf("decrypt folder for entry %s: %w", e.ID, err)
			}
		}

		username := ""
		if e.Login != nil && e.Login.Username != nil {
			username, err = v.decryptField(ctx, c, *e.Login.Username, e.Key, e.OrgID)
			if err != nil {
				return nil, fmt.Errorf("decrypt username for entry %s: %w", e.ID, err)
			}
		}

		out = append(out, decryptedEntry{Entry: e, Name: name, Username: username, FolderName: folder})
	}
	return out, nil
}

func (v *vault) decryptField(ctx context.Context, c *cliclient.Client, cipherstring string, entryKey, orgID *string) (string, error) {
	if cipherstring == "" {
		return "", nil
	}
	return c.Decrypt(ctx, cipherstring, entryKey, orgID, environment())
}

// matches implements the needle/user/folder selection get/list/search share:
// needle matches a case-insensitive substring of the name, user (if given)
// must exactly match the decrypted username, folder (if given) must exactly
// match the decrypted folder name.
func (de decryptedEntry) matches(needle, user, folder string) bool {
	if needle != "" && !strings.Contains(strings.ToLower(de.Name), strings.ToLower(needle)) {
		return false
	}
	if user != "" && de.Username != user {
		return false
	}
	if folder != "" && de.FolderName != folder {
		return false
	}
	return true
}

// selectEntry narrows candidates to the ones a needle/user/folder query
// matches, failing when there's more than one unless interactive is set (in
// which case the caller prompts).
func selectEntry(candidates []decryptedEntry, needle, user, folder string, interactive bool) (*decryptedEntry, error) {
	var matched []decryptedEntry
	for _, de := range candidates {
		if de.matches(needle, user, folder) {
			matched = append(matched, de)
		}
	}

	switch len(matched) {
	case 0:
		return nil, fmt.Errorf("no entry matches %q", needle)
	case 1:
		return &matched[0], nil
	default:
		if !interactive {
			return nil, fmt.Errorf("multiple entries match %q; use -i to choose, or narrow with --folder/a username", needle)
		}
		return promptSelect(matched)
	}
}

// promptSelect prints a numbered list on stderr and reads a selection from
// stdin — the "-i" interactive-disambiguation path.
func promptSelect(candidates []decryptedEntry) (*decryptedEntry, error) {
	fmt.Fprintln(os.Stderr, "multiple matches:")
	for i, de := range candidates {
		label := de.Name
		if de.Username != "" {
			label = fmt.Sprintf("%s (%s)", de.Name, de.Username)
		}
		fmt.Fprintf(os.Stderr, "  %d) %s\n", i+1, label)
	}
	fmt.Fprint(os.Stderr, "select: ")

	var choice int
	if _, err := fmt.Fscan(os.Stdin, &choice); err != nil {
		return nil, fmt.Errorf("read selection: %w", err)
	}
	if choice < 1 || choice > len(candidates) {
		return nil, fmt.Errorf("selection out of range")
	}
	return &candidates[choice-1], nil
}
