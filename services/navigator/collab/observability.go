// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package collab

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// modelTracerName is the shared OTel tracer name for model clients.
const modelTracerName = "navigator.collab"

// Package-level Prometheus metrics for model API calls.
// Auto-registered via promauto so no explicit registry wiring is needed.
var (
	// modelCallDuration measures the duration of model API calls.
	//
	// Labels:
	//   - provider: "anthropic" or "openai"
	//   - status: "success" or "error"
	modelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "navigator",
			Subsystem: "model",
			Name:      "call_duration_seconds",
			Help:      "Duration of model API calls in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "status"},
	)

	// modelCallsTotal counts the total number of model API calls.
	//
	// Labels:
	//   - provider: "anthropic" or "openai"
	//   - status: "success" or "error"
	modelCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "navigator",
			Subsystem: "model",
			Name:      "calls_total",
			Help:      "Total number of model API calls.",
		},
		[]string{"provider", "status"},
	)

	// modelErrorsTotal counts model call errors by type.
	//
	// Labels:
	//   - provider: "anthropic" or "openai"
	//   - error_type: "timeout", "auth", "rate_limit", "server", "unknown"
	modelErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "navigator",
			Subsystem: "model",
			Name:      "errors_total",
			Help:      "Total model call errors by type.",
		},
		[]string{"provider", "error_type"},
	)
)

// classifyModelError maps an error to a label-safe error type string.
//
// Description:
//
//	Inspects the error message to categorize it into one of the
//	predefined error types. Used for Prometheus labels to avoid high
//	cardinality.
//
// Inputs:
//
//	err - The error to classify. May be nil.
//
// Outputs:
//
//	string - One of: "timeout", "auth", "rate_limit", "server",
//	         "unknown". Returns empty string for nil error.
//
// Thread Safety: Safe for concurrent use.
func classifyModelError(err error) string {
	if err == nil {
		return ""
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "context canceled") ||
		strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "returned status 401") ||
		strings.Contains(msg, "returned status 403") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "authentication") ||
		strings.Contains(msg, "api key"):
		return "auth"
	case strings.Contains(msg, "returned status 429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests"):
		return "rate_limit"
	case strings.Contains(msg, "returned status 500") ||
		strings.Contains(msg, "returned status 502") ||
		strings.Contains(msg, "returned status 503") ||
		strings.Contains(msg, "server error") ||
		strings.Contains(msg, "internal error"):
		return "server"
	default:
		return "unknown"
	}
}

// recordModelMetrics records Prometheus metrics for a completed model call.
//
// Inputs:
//
//	provider - Provider name ("anthropic" or "openai").
//	duration - How long the call took.
//	err - The error, if any. Nil means success.
//
// Thread Safety: Safe for concurrent use.
func recordModelMetrics(provider string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		errType := classifyModelError(err)
		modelErrorsTotal.WithLabelValues(provider, errType).Inc()
	}

	modelCallDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
	modelCallsTotal.WithLabelValues(provider, status).Inc()
}
