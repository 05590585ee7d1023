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
	// KeystoreLocked reports whether the in-memory key store is currently
	// locked (1) or unlocked (0).
	KeystoreLocked = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "keystore",
			Name:      "locked",
			Help:      "1 if the key store is locked, 0 if unlocked",
		},
	)

	// LockEvents tracks why the keystore transitioned to locked.
	LockEvents = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keystore",
			Name:      "lock_events_total",
			Help:      "Total number of times the key store was locked",
		},
		[]string{"reason"}, // inactivity_timeout (also a backward clock jump), explicit
	)

	// UnlockEvents tracks successful/failed unlock attempts.
	UnlockEvents = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keystore",
			Name:      "unlock_events_total",
			Help:      "Total number of unlock attempts",
		},
		[]string{"status"}, // success, failure
	)

	// RepromptSetSize reports the current size of the reprompt allow-list.
	RepromptSetSize = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "keystore",
			Name:      "reprompt_set_size",
			Help:      "Number of cipherstring digests currently in the reprompt allow-list",
		},
	)

	// IPCRequestsTotal tracks IPC requests served, by action type and
	// outcome.
	IPCRequestsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ipc",
			Name:      "requests_total",
			Help:      "Total number of IPC requests served by the agent",
		},
		[]string{"action", "status"}, // action type, ack/error
	)

	// IPCQueueDepth reports the number of connections currently accepted
	// but not yet fully handled.
	IPCQueueDepth = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ipc",
			Name:      "queue_depth",
			Help:      "Number of IPC connections currently being handled",
		},
	)
)
