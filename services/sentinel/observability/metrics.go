// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for Sentinel.
//
// # Description
//
// This package implements Prometheus metrics for monitoring the RAG query
// pipeline and the autonomous agent. Metrics include:
//   - Query counters and latency histograms
//   - Inbound alert counters by issue type
//   - Autonomous action counters by issue type and outcome
//   - Scheduler pass counters and learned-pattern gauges
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "sentinel"

// SentinelMetrics holds all Prometheus metrics for the service.
//
// # Description
//
// Provides counters, histograms, and gauges for the query path and the
// monitoring agent. Initialize once at startup via InitMetrics().
//
// # Thread Safety
//
// All operations are thread-safe.
type SentinelMetrics struct {
	// QueriesTotal counts RAG queries by outcome.
	// Labels: status (success, fallback, not_found, error)
	QueriesTotal *prometheus.CounterVec

	// QueryDurationSeconds measures the full retrieve-and-generate
	// round-trip.
	QueryDurationSeconds prometheus.Histogram

	// GenerationRetriesTotal counts rate-limit retries of the LLM call.
	GenerationRetriesTotal prometheus.Counter

	// AlertsTotal counts inbound alerts by issue type.
	// Labels: issue_type
	AlertsTotal *prometheus.CounterVec

	// ActionsTotal counts autonomous actions by issue type and outcome.
	// Labels: issue_type, result (success, failure)
	ActionsTotal *prometheus.CounterVec

	// SchedulerPassesTotal counts monitoring passes by kind.
	// Labels: pass (health, analysis, learning)
	SchedulerPassesTotal *prometheus.CounterVec

	// LearnedPatterns tracks how many issue types have learned patterns.
	LearnedPatterns prometheus.Gauge

	// MonitoringActive is 1 while the scheduler loop runs.
	MonitoringActive prometheus.Gauge
}

// DefaultMetrics is the singleton instance of SentinelMetrics.
// Initialized by InitMetrics(). Instrumented code must nil-check it so
// tests can run without metric registration.
var DefaultMetrics *SentinelMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Should be called once at
// application startup.
//
// # Outputs
//
//   - *SentinelMetrics: The initialized metrics instance.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *SentinelMetrics {
	DefaultMetrics = &SentinelMetrics{
		QueriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "queries_total",
				Help:      "Total RAG queries by outcome",
			},
			[]string{"status"},
		),
		QueryDurationSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "query_duration_seconds",
				Help:      "Full RAG round-trip duration",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
		GenerationRetriesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "generation_retries_total",
				Help:      "Rate-limit retries of the generation call",
			},
		),
		AlertsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "alerts_total",
				Help:      "Inbound alerts by issue type",
			},
			[]string{"issue_type"},
		),
		ActionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "actions_total",
				Help:      "Autonomous actions by issue type and outcome",
			},
			[]string{"issue_type", "result"},
		),
		SchedulerPassesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "scheduler_passes_total",
				Help:      "Monitoring passes by kind",
			},
			[]string{"pass"},
		),
		LearnedPatterns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "learned_patterns",
				Help:      "Issue types with learned patterns",
			},
		),
		MonitoringActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "monitoring_active",
				Help:      "1 while the monitoring scheduler runs",
			},
		),
	}
	return DefaultMetrics
}

// RecordQuery increments the query counter if metrics are initialized.
func RecordQuery(status string) {
	if DefaultMetrics != nil {
		DefaultMetrics.QueriesTotal.WithLabelValues(status).Inc()
	}
}

// RecordAlert increments the inbound alert counter if metrics are
// initialized.
func RecordAlert(issueType string) {
	if DefaultMetrics != nil {
		DefaultMetrics.AlertsTotal.WithLabelValues(issueType).Inc()
	}
}

// RecordAction increments the action counter if metrics are initialized.
func RecordAction(issueType string, success bool) {
	if DefaultMetrics != nil {
		result := "failure"
		if success {
			result = "success"
		}
		DefaultMetrics.ActionsTotal.WithLabelValues(issueType, result).Inc()
	}
}

// ObserveQueryDuration records one RAG round-trip duration in seconds.
func ObserveQueryDuration(seconds float64) {
	if DefaultMetrics != nil {
		DefaultMetrics.QueryDurationSeconds.Observe(seconds)
	}
}

// RecordGenerationRetry counts one rate-limit retry of the LLM call.
func RecordGenerationRetry() {
	if DefaultMetrics != nil {
		DefaultMetrics.GenerationRetriesTotal.Inc()
	}
}

// RecordSchedulerPass counts one monitoring pass of the given kind.
func RecordSchedulerPass(pass string) {
	if DefaultMetrics != nil {
		DefaultMetrics.SchedulerPassesTotal.WithLabelValues(pass).Inc()
	}
}

// SetLearnedPatterns updates the learned-pattern gauge.
func SetLearnedPatterns(n int) {
	if DefaultMetrics != nil {
		DefaultMetrics.LearnedPatterns.Set(float64(n))
	}
}
