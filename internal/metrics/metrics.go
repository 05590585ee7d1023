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

// Package metrics exposes the agent's Prometheus counters/gauges/histograms
// on a loopback-only HTTP endpoint, plus the /debug/keystore introspection
// route.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "vagent"

// Registry is the process-wide metrics registry every collector in this
// package registers against.
var Registry = prometheus.NewRegistry()
