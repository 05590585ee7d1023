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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncsTotal tracks vault-server sync attempts.
	SyncsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "syncs_total",
			Help:      "Total number of sync operations against the vault server",
		},
		[]string{"status"}, // success, failure
	)

	// SyncDuration tracks sync round-trip duration.
	SyncDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "sync_duration_seconds",
			Help:      "Sync operation duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to 20s
		},
	)

	// CipherOperations tracks cipherstring encrypt/decrypt operations.
	CipherOperations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cipher",
			Name:      "operations_total",
			Help:      "Total number of cipherstring encrypt/decrypt operations",
		},
		[]string{"operation", "status"}, // encrypt/decrypt, success/failure
	)

	// CipherOperationDuration tracks cipherstring operation durations.
	CipherOperationDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cipher",
			Name:      "operation_duration_seconds",
			Help:      "Cipherstring operation duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 15), // 10µs to 163ms
		},
		[]string{"operation"}, // encrypt, decrypt
	)

	// PinUnwrapAttempts tracks PIN-unwrap attempts.
	PinUnwrapAttempts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pin",
			Name:      "unwrap_attempts_total",
			Help:      "Total number of PIN-unwrap attempts",
		},
		[]string{"status"}, // success, incorrect, locked_out
	)
)
