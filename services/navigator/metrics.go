// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package navigator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chatTurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "navigator",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Processed chat turns by final disposition.",
		},
		[]string{"disposition"},
	)

	httpErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "navigator",
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "Error responses by error code.",
		},
		[]string{"code"},
	)

	chatStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "navigator",
			Subsystem: "chat",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	websocketSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "navigator",
			Subsystem: "http",
			Name:      "websocket_sessions",
			Help:      "Currently open websocket sessions.",
		},
	)

	rateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "navigator",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-client rate limiter.",
		},
	)
)

// observeStage records one pipeline stage duration in seconds.
func observeStage(stage string, seconds float64) {
	chatStageDuration.WithLabelValues(stage).Observe(seconds)
}
