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

package metrics

import (
	"sync"
	"time"
)

// KeystoreSnapshot is the shape reported by the /debug/keystore route. It
// never carries key material, only the facts a human debugging an agent
// needs: is it locked, which orgs does it hold keys for, how big is the
// reprompt set.
type KeystoreSnapshot struct {
	Locked          bool     `json:"locked"`
	OrgIDs          []string `json:"org_ids"`
	RepromptSetSize int      `json:"reprompt_set_size"`
	Uptime          string   `json:"uptime"`
}

// Snapshotter produces the current KeystoreSnapshot. cmd/vagent-agent wires
// the real keystore.KeyStore into this at startup.
type Snapshotter func() KeystoreSnapshot

var (
	snapshotMu  sync.RWMutex
	snapshotFn  Snapshotter
	startedAt   = time.Now()
)

// SetSnapshotter registers the function the /debug/keystore route calls.
func SetSnapshotter(fn Snapshotter) {
	snapshotMu.Lock()
	defer snapshotMu.Unlock()
	snapshotFn = fn
}

// Snapshot returns the current KeystoreSnapshot, or a locked/empty one if
// no snapshotter has been registered yet.
func Snapshot() KeystoreSnapshot {
	snapshotMu.RLock()
	fn := snapshotFn
	snapshotMu.RUnlock()

	if fn == nil {
		return KeystoreSnapshot{Locked: true, Uptime: time.Since(startedAt).String()}
	}

	snap := fn()
	snap.Uptime = time.Since(startedAt).String()
	return snap
}
