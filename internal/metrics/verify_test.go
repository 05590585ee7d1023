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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	assert.NotNil(t, SyncsTotal)
	assert.NotNil(t, SyncDuration)
	assert.NotNil(t, CipherOperations)
	assert.NotNil(t, CipherOperationDuration)
	assert.NotNil(t, PinUnwrapAttempts)
	assert.NotNil(t, KeystoreLocked)
	assert.NotNil(t, LockEvents)
	assert.NotNil(t, UnlockEvents)
	assert.NotNil(t, RepromptSetSize)
	assert.NotNil(t, IPCRequestsTotal)
	assert.NotNil(t, IPCQueueDepth)
}

func TestMetricsIncrement(t *testing.T) {
	SyncsTotal.WithLabelValues("success").Inc()
	SyncDuration.Observe(0.25)
	CipherOperations.WithLabelValues("decrypt", "success").Inc()
	CipherOperationDuration.WithLabelValues("decrypt").Observe(0.0001)
	PinUnwrapAttempts.WithLabelValues("success").Inc()
	LockEvents.WithLabelValues("inactivity_timeout").Inc()
	UnlockEvents.WithLabelValues("success").Inc()
	IPCRequestsTotal.WithLabelValues("Sync", "ack").Inc()

	assert.NotZero(t, testutil.CollectAndCount(SyncsTotal))
	assert.NotZero(t, testutil.CollectAndCount(CipherOperations))
	assert.NotZero(t, testutil.CollectAndCount(IPCRequestsTotal))
}

func TestSnapshotDefaultsWhenUnregistered(t *testing.T) {
	SetSnapshotter(nil)
	snap := Snapshot()
	assert.True(t, snap.Locked)
	assert.Empty(t, snap.OrgIDs)
}

func TestSnapshotUsesRegisteredFunc(t *testing.T) {
	SetSnapshotter(func() KeystoreSnapshot {
		return KeystoreSnapshot{Locked: false, OrgIDs: []string{"org-1"}, RepromptSetSize: 3}
	})
	defer SetSnapshotter(nil)

	snap := Snapshot()
	assert.False(t, snap.Locked)
	assert.Equal(t, []string{"org-1"}, snap.OrgIDs)
	assert.Equal(t, 3, snap.RepromptSetSize)
	assert.NotEmpty(t, snap.Uptime)
}

func TestDebugKeystoreHandlerServesSnapshot(t *testing.T) {
	SetSnapshotter(func() KeystoreSnapshot {
		return KeystoreSnapshot{Locked: true}
	})
	defer SetSnapshotter(nil)

	req := httptest.NewRequest(http.MethodGet, "/debug/keystore", nil)
	rec := httptest.NewRecorder()
	DebugKeystoreHandler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var snap KeystoreSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.True(t, snap.Locked)
}
