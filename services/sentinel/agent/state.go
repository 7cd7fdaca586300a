// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent implements Sentinel's autonomous monitoring-and-learning
// core: a scheduled background loop that probes system health, detects
// alert-frequency anomalies, accumulates a bounded alert history, derives
// confidence-scored response patterns from past outcomes, and dispatches
// operator notifications based on that accumulated knowledge.
//
// All agent state lives in a single State aggregate owned by the service
// process and handed explicitly to the scheduler and the HTTP handlers.
// Nothing is persisted: a restart loses history and learned patterns, which
// is an accepted limitation of the design, not a defect.
package agent

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// History capacities. Oldest entries are evicted first once a history is
// full; the caps bound the agent's memory footprint for the process lifetime.
const (
	AlertHistoryCap  = 50
	ActionHistoryCap = 100
)

// Severity grades an alert or issue.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Issue types the detectors and dispatcher traffic in. Inbound alerts carry
// their own type (e.g. a Grafana alertname) which is not in this set; the
// dispatcher's message table falls through to a generic message for those.
const (
	IssueKnowledgeBaseEmpty     = "knowledge_base_empty"
	IssueAlertStormDetected     = "alert_storm_detected"
	IssueAPIHealthDegraded      = "api_health_degraded"
	IssueExternalUnreachable    = "external_system_unreachable"
	IssueMonitoringSystemFailed = "monitoring_system_failed"
	IssuePredictiveWarning      = "predictive_warning"
)

// Capabilities describes what the autonomous agent can do. Returned on the
// control surface so UIs can render the feature set without hardcoding it.
var Capabilities = []string{
	"autonomous_monitoring",
	"alert_storm_detection",
	"predictive_analysis",
	"pattern_learning",
	"auto_response",
	"rag_resolution",
}

// =============================================================================
// Records
// =============================================================================

// AlertRecord is one observed alert. Records are immutable after creation
// and evicted oldest-first once the history holds AlertHistoryCap entries.
type AlertRecord struct {
	IssueType     string    `json:"issue_type"`
	Service       string    `json:"service"`
	Severity      Severity  `json:"severity"`
	ObservedAt    time.Time `json:"observed_at"`
	Resolved      bool      `json:"resolved"`
	SolutionFound bool      `json:"solution_found"`
}

// Outcome is the result of one autonomous action: either a success with a
// detail string (the response text that worked) or a failure with a reason.
// The zero value is a failure with no reason.
type Outcome struct {
	success bool
	detail  string
}

// Succeeded builds a success outcome carrying the action detail.
func Succeeded(detail string) Outcome {
	return Outcome{success: true, detail: detail}
}

// Failed builds a failure outcome carrying the reason.
func Failed(reason string) Outcome {
	return Outcome{success: false, detail: reason}
}

// Success reports whether the outcome is a success.
func (o Outcome) Success() bool { return o.success }

// Detail returns the success detail or failure reason.
func (o Outcome) Detail() string { return o.detail }

// MarshalJSON renders the outcome as {"status": ..., "detail": ...} for the
// actions endpoint.
func (o Outcome) MarshalJSON() ([]byte, error) {
	status := "failure"
	if o.success {
		status = "success"
	}
	return json.Marshal(struct {
		Status string `json:"status"`
		Detail string `json:"detail"`
	}{Status: status, Detail: o.detail})
}

// ActionRecord is one autonomous action the dispatcher took. Immutable;
// evicted oldest-first at ActionHistoryCap.
type ActionRecord struct {
	IssueType string       `json:"issue_type"`
	Context   IssueContext `json:"context"`
	TakenAt   time.Time    `json:"taken_at"`
	ActionID  string       `json:"action_id"`
	Result    Outcome      `json:"result"`
}

// LearnedPattern accumulates lifetime success statistics for one issue type.
// Counts only ever grow; the success rate is a lifetime figure, not a
// sliding window.
type LearnedPattern struct {
	SuccessCount  uint64 `json:"success_count"`
	TotalAttempts uint64 `json:"total_attempts"`
	BestAction    string `json:"best_action,omitempty"`
}

// =============================================================================
// State
// =============================================================================

// State is the process-wide aggregate root for the monitoring agent.
//
// # Description
//
// Owns the alert history, action history, learned patterns, the
// monitoring-active flag, and the last health-check timestamp. All
// mutation goes through methods holding the internal mutex; the scheduler
// loop and the request handlers share one State instance.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Read methods return copies, so
// callers can never observe a half-applied mutation.
type State struct {
	mu               sync.Mutex
	alerts           []AlertRecord
	actions          []ActionRecord
	patterns         map[string]*LearnedPattern
	monitoringActive bool
	lastHealthCheck  time.Time
	startedAt        time.Time
	lastActionNano   int64
}

// NewState creates an empty agent state with monitoring inactive.
func NewState() *State {
	return &State{
		alerts:    make([]AlertRecord, 0, AlertHistoryCap),
		actions:   make([]ActionRecord, 0, ActionHistoryCap),
		patterns:  make(map[string]*LearnedPattern),
		startedAt: time.Now(),
	}
}

// AppendAlert records an observed alert, evicting the oldest entry if the
// history is at capacity.
func (s *State) AppendAlert(a AlertRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	if len(s.alerts) > AlertHistoryCap {
		s.alerts = s.alerts[len(s.alerts)-AlertHistoryCap:]
	}
}

// AppendAction records an autonomous action, evicting oldest-first at
// capacity.
func (s *State) AppendAction(rec ActionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, rec)
	if len(s.actions) > ActionHistoryCap {
		s.actions = s.actions[len(s.actions)-ActionHistoryCap:]
	}
}

// NewActionID returns a unique action identifier derived from a monotonic
// clock reading. Uniqueness is guaranteed under the state lock even when
// two dispatches land in the same nanosecond tick.
func (s *State) NewActionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	nano := time.Now().UnixNano()
	if nano <= s.lastActionNano {
		nano = s.lastActionNano + 1
	}
	s.lastActionNano = nano
	return "act-" + strconv.FormatInt(nano, 10)
}

// RecentAlerts returns up to n most recent alerts, oldest first.
func (s *State) RecentAlerts(n int) []AlertRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := len(s.alerts) - n
	if start < 0 {
		start = 0
	}
	out := make([]AlertRecord, len(s.alerts)-start)
	copy(out, s.alerts[start:])
	return out
}

// RecentActions returns up to n most recent actions, oldest first.
func (s *State) RecentActions(n int) []ActionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := len(s.actions) - n
	if start < 0 {
		start = 0
	}
	out := make([]ActionRecord, len(s.actions)-start)
	copy(out, s.actions[start:])
	return out
}

// RecentSuccesses returns up to n most recent successful actions, oldest
// first. This is the learner's fold window.
func (s *State) RecentSuccesses(n int) []ActionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ActionRecord, 0, n)
	for i := len(s.actions) - 1; i >= 0 && len(out) < n; i-- {
		if s.actions[i].Result.Success() {
			out = append(out, s.actions[i])
		}
	}
	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// RecordPatternSuccess folds one successful action into the pattern for
// its issue type: both counters grow and the success detail becomes the
// new best action (last success wins).
func (s *State) RecordPatternSuccess(issueType, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patterns[issueType]
	if !ok {
		p = &LearnedPattern{}
		s.patterns[issueType] = p
	}
	p.SuccessCount++
	p.TotalAttempts++
	if detail != "" {
		p.BestAction = detail
	}
}

// SetPattern installs a learned pattern wholesale. Patterns with
// TotalAttempts < SuccessCount are rejected because they would make the
// confidence metric exceed 1.
func (s *State) SetPattern(issueType string, p LearnedPattern) error {
	if p.TotalAttempts < p.SuccessCount {
		return fmt.Errorf("invalid pattern for %s: attempts %d < successes %d",
			issueType, p.TotalAttempts, p.SuccessCount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns[issueType] = &p
	return nil
}

// Pattern returns a copy of the learned pattern for the issue type.
func (s *State) Pattern(issueType string) (LearnedPattern, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patterns[issueType]
	if !ok {
		return LearnedPattern{}, false
	}
	return *p, true
}

// Patterns returns a copy of all learned patterns.
func (s *State) Patterns() map[string]LearnedPattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]LearnedPattern, len(s.patterns))
	for k, v := range s.patterns {
		out[k] = *v
	}
	return out
}

// Confidence returns the lifetime success rate for the issue type in
// [0, 1], or 0 if the type has never been attempted.
func (s *State) Confidence(issueType string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patterns[issueType]
	if !ok || p.TotalAttempts == 0 {
		return 0
	}
	return float64(p.SuccessCount) / float64(p.TotalAttempts)
}

// SetMonitoring flips the monitoring-active flag.
func (s *State) SetMonitoring(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitoringActive = active
}

// MonitoringActive reports whether the scheduler should be running.
func (s *State) MonitoringActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitoringActive
}

// MarkHealthCheck records when the health probe last ran.
func (s *State) MarkHealthCheck(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHealthCheck = t
}

// LastHealthCheck returns the last probe time; ok is false if no probe has
// run yet this process lifetime.
func (s *State) LastHealthCheck() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHealthCheck, !s.lastHealthCheck.IsZero()
}

// =============================================================================
// Snapshots
// =============================================================================

// Snapshot is a point-in-time view of agent state for the status surface.
// It is advisory: the agent keeps mutating while callers render it.
type Snapshot struct {
	MonitoringActive  bool
	LastHealthCheck   time.Time
	TotalActions      int
	SuccessfulActions int
	PatternsLearned   int
	RecentAlerts      int
	Uptime            time.Duration
}

// Snapshot captures the counters the status endpoint reports.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	successes := 0
	for _, a := range s.actions {
		if a.Result.Success() {
			successes++
		}
	}
	return Snapshot{
		MonitoringActive:  s.monitoringActive,
		LastHealthCheck:   s.lastHealthCheck,
		TotalActions:      len(s.actions),
		SuccessfulActions: successes,
		PatternsLearned:   len(s.patterns),
		RecentAlerts:      len(s.alerts),
		Uptime:            time.Since(s.startedAt),
	}
}
