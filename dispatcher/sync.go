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

package dispatcher

import (
	"context"
	"net/http"
	"time"

	"github.com/vagent-project/vagent/config"
	"github.com/vagent-project/vagent/errkind"
	"github.com/vagent-project/vagent/internal/logger"
	"github.com/vagent-project/vagent/internal/metrics"
	"github.com/vagent-project/vagent/ipc"
	"github.com/vagent-project/vagent/keystore"
	"github.com/vagent-project/vagent/vaultclient"
)

// handleSync implements section 4.8's Sync: a refresh-token-wrapped fetch
// of the full vault state, an atomic DB write, a reprompt-set rebuild, and
// a best-effort push-channel subscribe that never blocks the response.
func (d *Dispatcher) handleSync(ctx context.Context) ipc.Response {
	cfg := d.config()
	db, err := config.LoadDb(d.Dirs, cfg)
	if err != nil {
		return asErrorResponse(err)
	}
	if db.AccessToken == "" {
		return asErrorResponse(errkind.New(errkind.KindRegistrationRequired, "cannot sync before logging in"))
	}

	start := time.Now()
	var result *vaultclient.SyncResult
	syncErr := d.Client.WithRefresh(ctx, db.AccessToken, db.RefreshToken, func(access, refresh string) {
		db.AccessToken = access
		db.RefreshToken = refresh
	}, func(accessToken string) error {
		r, err := d.Client.Sync(ctx, accessToken)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	metrics.SyncDuration.Observe(time.Since(start).Seconds())

	if syncErr != nil {
		metrics.SyncsTotal.WithLabelValues("failure").Inc()
		return asErrorResponse(syncErr)
	}
	metrics.SyncsTotal.WithLabelValues("success").Inc()

	db.ProtectedMasterKey = result.ProtectedMasterKey
	db.ProtectedPrivateKey = result.ProtectedPrivateKey
	db.ProtectedOrgKeys = result.ProtectedOrgKeys
	db.Entries = result.Entries
	db.Folders = result.Folders

	if err := config.SaveDb(d.Dirs, cfg, db); err != nil {
		return asErrorResponse(err)
	}

	if !d.Store.NeedsUnlock() {
		set := keystore.BuildRepromptSet(db.Entries)
		d.Store.SetReprompt(set)
		metrics.RepromptSetSize.Set(float64(set.Len()))
	}

	if d.Scheduler != nil && cfg.SyncIntervalSecs > 0 {
		d.Scheduler.ArmSync(time.Duration(cfg.SyncIntervalSecs) * time.Second)
	}

	go d.subscribeToNotifications(cfg)

	return ipc.Ack()
}

// subscribeToNotifications is a fire-and-forget best-effort probe of the
// vault server's notification endpoint over the existing HTTP client; a
// failure here is logged and never surfaces to the Sync caller, matching
// the original agent's non-blocking subscribe task.
func (d *Dispatcher) subscribeToNotifications(cfg *config.Config) {
	if cfg.NotificationsURL == "" {
		return
	}
	resp, err := http.Get(cfg.NotificationsURL + "/hub/negotiate")
	if err != nil {
		if d.Log != nil {
			d.Log.Warn("notification subscribe failed", logger.Error(err))
		}
		return
	}
	resp.Body.Close()
}
