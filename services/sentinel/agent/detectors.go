// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Storm-detection and predictive-analysis windows.
const (
	stormWindowSize     = 5                // alerts considered
	stormWindowDuration = 5 * time.Minute  // they must all fall inside this span
	recurrenceWindow    = 10               // alerts considered for recurrence
	recurrenceThreshold = 3                // repeats of one type that count as a pattern
	healthProbeTimeout  = 5 * time.Second
)

// =============================================================================
// Issue contexts
// =============================================================================

// IssueContext carries the detector-specific evidence behind a detected
// issue. Implementations form a closed set; the dispatcher switches over
// them to build the notification message.
type IssueContext interface {
	// Describe renders the evidence as a human-readable fragment for
	// notification messages and the actions endpoint.
	Describe() string
}

// EmptyKnowledgeBase: the knowledgebase table has zero rows, so retrieval
// can never return anything.
type EmptyKnowledgeBase struct{}

func (EmptyKnowledgeBase) Describe() string {
	return "knowledge base contains zero chunks"
}

// ProbeFailure: a dependency probe errored outright (connection refused,
// timeout, DNS failure).
type ProbeFailure struct {
	Target string `json:"target"`
	Reason string `json:"reason"`
}

func (p ProbeFailure) Describe() string {
	return fmt.Sprintf("%s probe failed: %s", p.Target, p.Reason)
}

// DegradedHealth: the API health endpoint answered, but not with a healthy
// status.
type DegradedHealth struct {
	StatusCode int `json:"status_code"`
}

func (d DegradedHealth) Describe() string {
	return fmt.Sprintf("health endpoint returned HTTP %d", d.StatusCode)
}

// AlertStorm: too many alerts landed inside the storm window.
type AlertStorm struct {
	AlertCount     int     `json:"alert_count"`
	ElapsedMinutes float64 `json:"elapsed_minutes"`
}

func (a AlertStorm) Describe() string {
	return fmt.Sprintf("%d alerts within %.1f minutes", a.AlertCount, a.ElapsedMinutes)
}

// MonitorFailure: the monitoring loop itself raised an error or panicked.
type MonitorFailure struct {
	Reason string `json:"reason"`
}

func (m MonitorFailure) Describe() string {
	return fmt.Sprintf("monitoring cycle failed: %s", m.Reason)
}

// RecurringPattern: the predictive analyzer expects an issue type to recur.
type RecurringPattern struct {
	Pattern    string  `json:"pattern"`
	Count      int     `json:"count"`
	Confidence float64 `json:"confidence"`
}

func (r RecurringPattern) Describe() string {
	return fmt.Sprintf("%s (%d occurrences, confidence %.2f)", r.Pattern, r.Count, r.Confidence)
}

// InboundAlert: an alert posted by an external system (Grafana or the
// generic alert endpoint), normalized into agent terms.
type InboundAlert struct {
	IssueType string `json:"issue_type"`
	Service   string `json:"service"`
	Title     string `json:"title"`
	Question  string `json:"question"`
}

func (i InboundAlert) Describe() string {
	return fmt.Sprintf("inbound alert %q for service %q", i.Title, i.Service)
}

// Issue is one detected problem ready for dispatch.
type Issue struct {
	Type     string
	Service  string
	Severity Severity
	Context  IssueContext
}

// Prediction is the recurrence analyzer's output: an issue type expected
// to recur, with the observed repeat fraction as confidence. Predictions
// are advisory; they are notified but never dispatched as issues.
type Prediction struct {
	Pattern    string
	IssueType  string
	Count      int
	Confidence float64
}

// =============================================================================
// Health detection
// =============================================================================

// KnowledgeCounter is the slice of the knowledge store the health detector
// needs.
type KnowledgeCounter interface {
	Count(ctx context.Context) (int64, error)
}

// HealthProber checks the service's own API health endpoint.
type HealthProber interface {
	Probe(ctx context.Context) (statusCode int, err error)
}

// HTTPProber probes an HTTP health URL with a bounded timeout.
type HTTPProber struct {
	URL        string
	HTTPClient *http.Client
}

var _ HealthProber = (*HTTPProber)(nil)

// NewHTTPProber creates a prober for the given health URL.
func NewHTTPProber(url string) *HTTPProber {
	return &HTTPProber{
		URL:        url,
		HTTPClient: &http.Client{Timeout: healthProbeTimeout},
	}
}

// Probe issues a GET against the health URL and returns the status code.
func (p *HTTPProber) Probe(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build health probe request: %w", err)
	}
	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// DetectHealth runs the periodic health pass.
//
// # Description
//
// Probes the knowledge base row count and the API health endpoint, in that
// order, and returns every issue found (zero, one, or two). A zero row
// count is critical: the RAG pipeline cannot answer anything. A failed or
// non-200 health probe is reported as unreachable or degraded respectively.
// The probe timestamp is recorded on the state regardless of findings.
//
// # Inputs
//
//   - ctx: Context for cancellation; probes carry their own 5s timeouts.
//   - state: Agent state; receives the health-check timestamp.
//   - counter: Knowledge base row counter. May be nil if no store is wired.
//   - prober: API health prober. May be nil.
//
// # Outputs
//
//   - []Issue: Detected issues, possibly empty. Never nil errors inside;
//     probe errors become issues, not return errors.
func DetectHealth(ctx context.Context, state *State, counter KnowledgeCounter, prober HealthProber) []Issue {
	var issues []Issue
	now := time.Now()

	if counter != nil {
		count, err := counter.Count(ctx)
		switch {
		case err != nil:
			issues = append(issues, Issue{
				Type:     IssueExternalUnreachable,
				Service:  "knowledge-base",
				Severity: SeverityCritical,
				Context:  ProbeFailure{Target: "knowledge base", Reason: err.Error()},
			})
		case count == 0:
			issues = append(issues, Issue{
				Type:     IssueKnowledgeBaseEmpty,
				Service:  "knowledge-base",
				Severity: SeverityCritical,
				Context:  EmptyKnowledgeBase{},
			})
		}
	}

	if prober != nil {
		status, err := prober.Probe(ctx)
		switch {
		case err != nil:
			issues = append(issues, Issue{
				Type:     IssueExternalUnreachable,
				Service:  "sentinel-api",
				Severity: SeverityCritical,
				Context:  ProbeFailure{Target: "API health endpoint", Reason: err.Error()},
			})
		case status < 200 || status > 299:
			issues = append(issues, Issue{
				Type:     IssueAPIHealthDegraded,
				Service:  "sentinel-api",
				Severity: SeverityWarning,
				Context:  DegradedHealth{StatusCode: status},
			})
		}
	}

	state.MarkHealthCheck(now)
	if len(issues) > 0 {
		slog.Warn("Health detection found issues", "count", len(issues))
	}
	return issues
}

// =============================================================================
// Storm detection
// =============================================================================

// DetectStorm checks whether the most recent alerts arrived too fast.
//
// # Description
//
// Examines the last stormWindowSize alerts; if there are that many and the
// span from oldest to newest is under stormWindowDuration, the alert volume
// qualifies as a storm. The check is volume-based only: five occurrences of
// the same benign alert trip it just like five distinct ones.
//
// # Outputs
//
//   - *Issue: The storm issue, or nil when no storm is in progress.
func DetectStorm(state *State) *Issue {
	recent := state.RecentAlerts(stormWindowSize)
	if len(recent) < stormWindowSize {
		return nil
	}
	elapsed := recent[len(recent)-1].ObservedAt.Sub(recent[0].ObservedAt)
	if elapsed >= stormWindowDuration {
		return nil
	}
	return &Issue{
		Type:     IssueAlertStormDetected,
		Service:  "sentinel",
		Severity: SeverityWarning,
		Context: AlertStorm{
			AlertCount:     len(recent),
			ElapsedMinutes: elapsed.Minutes(),
		},
	}
}

// =============================================================================
// Predictive analysis
// =============================================================================

// DetectRecurring looks for an issue type dominating recent history.
//
// # Description
//
// Counts issue types over the last recurrenceWindow alerts. If the modal
// type appears recurrenceThreshold or more times it is predicted to recur,
// with confidence equal to its count over the full window size. Ties break
// toward the type whose latest occurrence is most recent.
//
// # Outputs
//
//   - *Prediction: The dominant pattern, or nil when nothing repeats enough.
func DetectRecurring(state *State) *Prediction {
	recent := state.RecentAlerts(recurrenceWindow)
	if len(recent) == 0 {
		return nil
	}

	counts := make(map[string]int, len(recent))
	lastSeen := make(map[string]int, len(recent))
	for i, a := range recent {
		counts[a.IssueType]++
		lastSeen[a.IssueType] = i
	}

	best := ""
	for t, n := range counts {
		if n < recurrenceThreshold {
			continue
		}
		if best == "" || n > counts[best] || (n == counts[best] && lastSeen[t] > lastSeen[best]) {
			best = t
		}
	}
	if best == "" {
		return nil
	}
	return &Prediction{
		Pattern:    fmt.Sprintf("Recurring %s alerts", best),
		IssueType:  best,
		Count:      counts[best],
		Confidence: float64(counts[best]) / float64(recurrenceWindow),
	}
}
