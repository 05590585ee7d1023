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

package scheduler

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Manager owns the agent's two scheduled behaviors: locking on inactivity
// and periodic resync. It supervises both timer goroutines through an
// errgroup so either's unexpected exit is observable by the caller.
type Manager struct {
	Inactivity *Timer
	Sync       *Timer

	group  *errgroup.Group
	cancel context.CancelFunc
}

// Start launches both timers and their supervising goroutines. onLock runs
// on inactivity expiry; onSync runs on sync expiry and is expected to
// re-arm the sync timer itself via (*Manager).Sync.Set.
func Start(ctx context.Context, onLock func(), onSync func()) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(ctx)

	inactivity, inactivityExpired := NewTimer(gctx, nil)
	syncTimer, syncExpired := NewTimer(gctx, nil)

	group.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-inactivityExpired:
				onLock()
			}
		}
	})
	group.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-syncExpired:
				onSync()
			}
		}
	})

	return &Manager{Inactivity: inactivity, Sync: syncTimer, group: group, cancel: cancel}
}

// Stop cancels both timer goroutines and waits for them to exit.
func (m *Manager) Stop() {
	m.cancel()
	_ = m.group.Wait()
}

// ArmInactivity resets the inactivity timer to dur, as every dispatched
// action does (section 4.8).
func (m *Manager) ArmInactivity(dur time.Duration) {
	m.Inactivity.Set(dur)
}

// ArmSync resets the sync timer to dur; a dur of zero disables syncing by
// clearing the timer instead.
func (m *Manager) ArmSync(dur time.Duration) {
	if dur <= 0 {
		m.Sync.Clear()
		return
	}
	m.Sync.Set(dur)
}
