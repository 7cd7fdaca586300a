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
	"strings"
	"testing"
	"time"
)

func newTestScheduler(sink Sink, counter KnowledgeCounter, intervals Intervals) (*Scheduler, *State) {
	state := NewState()
	d := NewDispatcher(state, sink, nil)
	return NewScheduler(state, d, counter, nil, intervals), state
}

func TestScheduler_StartStop(t *testing.T) {
	sink := &fakeSink{}
	counter := &fakeCounter{countFunc: func(context.Context) (int64, error) { return 10, nil }}
	s, state := newTestScheduler(sink, counter, Intervals{Health: 10 * time.Millisecond})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !state.MonitoringActive() {
		t.Error("Expected monitoring flag set after Start")
	}

	time.Sleep(60 * time.Millisecond)
	s.Stop()
	if state.MonitoringActive() {
		t.Error("Expected monitoring flag cleared after Stop")
	}

	if s.TickCount() == 0 {
		t.Error("Expected at least one tick before Stop")
	}
	// No further ticks after Stop.
	settled := s.TickCount()
	time.Sleep(50 * time.Millisecond)
	if got := s.TickCount(); got != settled {
		t.Errorf("Ticks continued after Stop: %d -> %d", settled, got)
	}
}

func TestScheduler_StartIdempotent(t *testing.T) {
	sink := &fakeSink{}
	counter := &fakeCounter{countFunc: func(context.Context) (int64, error) { return 10, nil }}
	interval := 20 * time.Millisecond
	s, _ := newTestScheduler(sink, counter, Intervals{Health: interval})

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("First start failed: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Second start should be a no-op, got: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Third start should be a no-op, got: %v", err)
	}
	defer s.Stop()

	window := 300 * time.Millisecond
	time.Sleep(window)

	// With a single loop the tick count tracks window/interval. Duplicated
	// loops would roughly triple it; allow generous slack for CI jitter.
	expected := int64(window / interval)
	got := s.TickCount()
	if got < expected/2 {
		t.Errorf("Too few ticks, scheduler may not be running: got %d, expected ~%d", got, expected)
	}
	if got > expected*2 {
		t.Errorf("Tick count grew superlinearly, duplicated loops suspected: got %d, expected ~%d", got, expected)
	}
}

func TestScheduler_RestartAfterStop(t *testing.T) {
	sink := &fakeSink{}
	counter := &fakeCounter{countFunc: func(context.Context) (int64, error) { return 10, nil }}
	s, _ := newTestScheduler(sink, counter, Intervals{Health: 10 * time.Millisecond})

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	before := s.TickCount()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	defer s.Stop()
	time.Sleep(40 * time.Millisecond)
	if got := s.TickCount(); got <= before {
		t.Errorf("Expected ticks to resume after restart: %d -> %d", before, got)
	}
}

func TestScheduler_PanicRecoveredAndDispatched(t *testing.T) {
	sink := &fakeSink{}
	counter := &fakeCounter{countFunc: func(context.Context) (int64, error) {
		panic("detector exploded")
	}}
	s, state := newTestScheduler(sink, counter, Intervals{Health: 10 * time.Millisecond})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	time.Sleep(60 * time.Millisecond)

	if !s.Running() {
		t.Fatal("Scheduler must survive a panicking pass")
	}
	actions := state.RecentActions(ActionHistoryCap)
	if len(actions) == 0 {
		t.Fatal("Expected monitoring_system_failed actions recorded")
	}
	for _, rec := range actions {
		if rec.IssueType != IssueMonitoringSystemFailed {
			t.Errorf("Expected %s, got %s", IssueMonitoringSystemFailed, rec.IssueType)
		}
	}
	msgs := sink.messages()
	if len(msgs) == 0 || !strings.Contains(msgs[0], "monitoring system itself failed") {
		t.Errorf("Expected failure notification, got %v", msgs)
	}
}

func TestScheduler_ContextCancellationStopsLoop(t *testing.T) {
	sink := &fakeSink{}
	counter := &fakeCounter{countFunc: func(context.Context) (int64, error) { return 10, nil }}
	s, _ := newTestScheduler(sink, counter, Intervals{Health: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	cancel()
	time.Sleep(40 * time.Millisecond)
	if s.Running() {
		t.Error("Expected scheduler stopped after context cancellation")
	}
}

func TestScheduler_AnalysisPassDispatchesStorm(t *testing.T) {
	sink := &fakeSink{}
	state := NewState()
	d := NewDispatcher(state, sink, nil)
	s := NewScheduler(state, d, nil, nil, Intervals{
		Health:   time.Hour, // keep the health pass quiet
		Analysis: 15 * time.Millisecond,
	})

	base := time.Now()
	for i := 0; i < 5; i++ {
		state.AppendAlert(AlertRecord{IssueType: "x", ObservedAt: base.Add(time.Duration(i*10) * time.Second)})
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()
	time.Sleep(50 * time.Millisecond)

	found := false
	for _, msg := range sink.messages() {
		if strings.Contains(msg, "Alert storm detected") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected storm notification from analysis pass, got %v", sink.messages())
	}
}
