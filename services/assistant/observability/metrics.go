// Copyright (C) 2025 Portfolio Assistant Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the ask pipeline.
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Metrics are exposed on /metrics; call sites nil-check DefaultMetrics so
// tests can run without registration.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "assistant"
const pipelineSubsystem = "pipeline"

// Outcome labels every terminal pipeline exit.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeFallback       Outcome = "fallback"
	OutcomeGuardBlocked   Outcome = "guard_blocked"
	OutcomeRateLimited    Outcome = "rate_limited"
	OutcomeBadRequest     Outcome = "bad_request"
	OutcomeRetrievalError Outcome = "retrieval_error"
	OutcomeOverloaded     Outcome = "overloaded"
	OutcomeTimeout        Outcome = "timeout"
	OutcomeStreamError    Outcome = "stream_error"
	OutcomeInternalError  Outcome = "internal_error"
)

// PipelineMetrics holds the Prometheus metrics for the ask pipeline.
type PipelineMetrics struct {
	// RequestsTotal counts requests by terminal outcome.
	RequestsTotal *prometheus.CounterVec

	// GuardBlocksTotal counts prompt-guard rejections by category.
	GuardBlocksTotal *prometheus.CounterVec

	// TokensStreamedTotal counts answer tokens relayed to clients.
	TokensStreamedTotal prometheus.Counter

	// TimeToFirstTokenSeconds measures latency to the first answer token.
	TimeToFirstTokenSeconds prometheus.Histogram

	// StreamDurationSeconds measures total time spent in a request.
	StreamDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks in-flight streaming responses.
	ActiveStreams prometheus.Gauge

	// ClientDisconnectsTotal counts clients that dropped mid-stream.
	ClientDisconnectsTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance, populated by InitMetrics.
var DefaultMetrics *PipelineMetrics

// InitMetrics creates and registers all pipeline metrics. Call once at
// startup; calling twice panics on duplicate registration.
func InitMetrics() *PipelineMetrics {
	DefaultMetrics = &PipelineMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "requests_total",
				Help:      "Total ask requests by terminal outcome",
			},
			[]string{"outcome"},
		),

		GuardBlocksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "guard_blocks_total",
				Help:      "Prompt-guard rejections by category",
			},
			[]string{"category"},
		),

		TokensStreamedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "tokens_streamed_total",
				Help:      "Total answer tokens relayed to clients",
			},
		),

		TimeToFirstTokenSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "time_to_first_token_seconds",
				Help:      "Time from request arrival to first answer token",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
		),

		StreamDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Total request duration by outcome",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),

		ActiveStreams: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "active_streams",
				Help:      "Number of in-flight streaming responses",
			},
		),

		ClientDisconnectsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Clients that disconnected mid-stream",
			},
		),
	}

	return DefaultMetrics
}

// RecordOutcome records a terminal pipeline exit with its duration.
func (m *PipelineMetrics) RecordOutcome(outcome Outcome, seconds float64) {
	m.RequestsTotal.WithLabelValues(string(outcome)).Inc()
	m.StreamDurationSeconds.WithLabelValues(string(outcome)).Observe(seconds)
}

// RecordGuardBlock records a prompt-guard rejection.
func (m *PipelineMetrics) RecordGuardBlock(category string) {
	m.GuardBlocksTotal.WithLabelValues(category).Inc()
}

// RecordToken counts one relayed answer token.
func (m *PipelineMetrics) RecordToken() {
	m.TokensStreamedTotal.Inc()
}

// RecordTimeToFirstToken records first-token latency.
func (m *PipelineMetrics) RecordTimeToFirstToken(seconds float64) {
	m.TimeToFirstTokenSeconds.Observe(seconds)
}

// StreamStarted and StreamEnded bracket an in-flight stream.
func (m *PipelineMetrics) StreamStarted() { m.ActiveStreams.Inc() }

// StreamEnded decrements the active stream gauge.
func (m *PipelineMetrics) StreamEnded() { m.ActiveStreams.Dec() }

// RecordClientDisconnect counts a client dropping mid-stream.
func (m *PipelineMetrics) RecordClientDisconnect() {
	m.ClientDisconnectsTotal.Inc()
}
