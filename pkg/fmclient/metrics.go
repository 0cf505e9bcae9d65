// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package fmclient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kraklabs/fmmcp/pkg/apierror"
)

// Metrics holds Prometheus collectors for Data API traffic. A nil *Metrics
// records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fmmcp_dataapi_requests_total",
			Help: "Data API requests by HTTP method and outcome",
		}, []string{"method", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fmmcp_dataapi_errors_total",
			Help: "Data API failures by resolved error category",
		}, []string{"category"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fmmcp_dataapi_request_seconds",
			Help:    "Data API request latency",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method"}),
	}
	reg.MustRegister(m.requests, m.failures, m.duration)
	return m
}

func (m *Metrics) observe(method string, elapsed time.Duration, d *apierror.Descriptor) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
	if d == nil {
		m.requests.WithLabelValues(method, "success").Inc()
		return
	}
	m.requests.WithLabelValues(method, "error").Inc()
	m.failures.WithLabelValues(string(d.Category)).Inc()
}
