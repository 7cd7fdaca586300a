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
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/Sentinel/services/sentinel/observability"
)

// =============================================================================
// Monitoring Scheduler
// =============================================================================

// Intervals holds the three monitoring cadences.
//
// # Fields
//
//   - Health: How often the health probe detector runs. Default: 30 seconds.
//   - Analysis: How often storm detection and predictive analysis run.
//     Default: 5 minutes.
//   - Learning: How often the pattern learner folds recent successes.
//     Default: 15 minutes.
type Intervals struct {
	Health   time.Duration
	Analysis time.Duration
	Learning time.Duration
}

// DefaultIntervals returns the production monitoring cadences.
func DefaultIntervals() Intervals {
	return Intervals{
		Health:   30 * time.Second,
		Analysis: 5 * time.Minute,
		Learning: 15 * time.Minute,
	}
}

// Scheduler drives the autonomous monitoring loop.
//
// # Description
//
// One background goroutine owns three tickers (health, analysis, learning)
// and runs the corresponding pass when each fires. Passes execute
// sequentially within the loop; a slow pass delays the others rather than
// overlapping them. Uses the ticker + done channel pattern for graceful
// shutdown.
//
// Any panic or error inside a pass is recovered at the tick boundary,
// dispatched as a monitoring_system_failed issue, and never terminates
// the loop.
//
// # Thread Safety
//
// All public methods are thread-safe.
type Scheduler struct {
	state      *State
	dispatcher *Dispatcher
	counter    KnowledgeCounter
	prober     HealthProber
	intervals  Intervals

	mu      sync.Mutex
	done    chan struct{}
	running bool
	ticks   atomic.Int64
}

// NewScheduler creates a monitoring scheduler.
//
// # Inputs
//
//   - state: Shared agent state. Must be non-nil.
//   - dispatcher: Dispatcher for detected issues. Must be non-nil.
//   - counter: Knowledge-base row counter. May be nil.
//   - prober: API health prober. May be nil.
//   - intervals: Monitoring cadences; zero fields fall back to defaults.
//
// # Outputs
//
//   - *Scheduler: Ready to Start(). Never nil.
func NewScheduler(state *State, dispatcher *Dispatcher, counter KnowledgeCounter, prober HealthProber, intervals Intervals) *Scheduler {
	defaults := DefaultIntervals()
	if intervals.Health <= 0 {
		intervals.Health = defaults.Health
	}
	if intervals.Analysis <= 0 {
		intervals.Analysis = defaults.Analysis
	}
	if intervals.Learning <= 0 {
		intervals.Learning = defaults.Learning
	}
	return &Scheduler{
		state:      state,
		dispatcher: dispatcher,
		counter:    counter,
		prober:     prober,
		intervals:  intervals,
		done:       make(chan struct{}),
	}
}

// Start begins the background monitoring loop.
//
// # Description
//
// Starts the loop goroutine and flips the state's monitoring flag.
// Idempotent: calling Start while the loop is already running is a no-op
// that leaves exactly one active loop, so repeated start requests from the
// control surface never duplicate timers.
//
// # Inputs
//
//   - ctx: Context for cancellation. When cancelled, the loop stops.
//
// # Outputs
//
//   - error: Currently always nil.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		slog.Info("Monitoring scheduler already running, start ignored")
		return nil
	}
	s.running = true
	s.done = make(chan struct{}) // Reset done channel for restart after Stop
	s.mu.Unlock()

	s.state.SetMonitoring(true)
	slog.Info("Monitoring scheduler starting",
		"health_interval", s.intervals.Health.String(),
		"analysis_interval", s.intervals.Analysis.String(),
		"learning_interval", s.intervals.Learning.String(),
	)

	go s.runLoop(ctx)
	return nil
}

// Stop halts future monitoring ticks.
//
// # Description
//
// Closes the done channel and clears the monitoring flag. An in-flight
// pass finishes; only future ticks are cancelled. Safe to call multiple
// times.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	slog.Info("Monitoring scheduler stopping")
	close(s.done)
	s.running = false
	s.state.SetMonitoring(false)
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// TickCount returns how many passes have executed since construction.
// Grows linearly while one loop is active regardless of how many times
// Start was called.
func (s *Scheduler) TickCount() int64 {
	return s.ticks.Load()
}

// runLoop is the scheduler goroutine body.
func (s *Scheduler) runLoop(ctx context.Context) {
	healthTicker := time.NewTicker(s.intervals.Health)
	analysisTicker := time.NewTicker(s.intervals.Analysis)
	learningTicker := time.NewTicker(s.intervals.Learning)
	defer healthTicker.Stop()
	defer analysisTicker.Stop()
	defer learningTicker.Stop()

	done := s.done
	for {
		select {
		case <-ctx.Done():
			slog.Info("Monitoring scheduler context cancelled")
			s.Stop()
			return
		case <-done:
			return
		case <-healthTicker.C:
			s.safePass(ctx, "health", s.healthPass)
		case <-analysisTicker.C:
			s.safePass(ctx, "analysis", s.analysisPass)
		case <-learningTicker.C:
			s.safePass(ctx, "learning", s.learningPass)
		}
	}
}

// safePass runs one pass with the tick-boundary recovery contract: any
// panic becomes a monitoring_system_failed dispatch and the loop survives.
func (s *Scheduler) safePass(ctx context.Context, name string, pass func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Monitoring pass panicked",
				"pass", name,
				"panic", fmt.Sprint(r),
			)
			s.dispatcher.Dispatch(ctx, Issue{
				Type:     IssueMonitoringSystemFailed,
				Service:  "sentinel",
				Severity: SeverityCritical,
				Context:  MonitorFailure{Reason: fmt.Sprintf("%s pass panicked: %v", name, r)},
			})
		}
		s.ticks.Add(1)
		observability.RecordSchedulerPass(name)
	}()
	pass(ctx)
}

// healthPass probes dependencies and dispatches anything the detector finds.
func (s *Scheduler) healthPass(ctx context.Context) {
	for _, issue := range DetectHealth(ctx, s.state, s.counter, s.prober) {
		s.dispatcher.Dispatch(ctx, issue)
	}
}

// analysisPass runs storm detection then predictive analysis, in that
// fixed order; neither suppresses the other.
func (s *Scheduler) analysisPass(ctx context.Context) {
	if issue := DetectStorm(s.state); issue != nil {
		s.dispatcher.Dispatch(ctx, *issue)
	}
	if p := DetectRecurring(s.state); p != nil {
		s.dispatcher.NotifyPrediction(ctx, *p)
	}
}

// learningPass folds recent successes into the learned patterns.
func (s *Scheduler) learningPass(_ context.Context) {
	Learn(s.state)
	observability.SetLearnedPatterns(len(s.state.Patterns()))
}
