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
	"fmt"
	"testing"
	"time"
)

func TestAlertHistory_EvictionCap(t *testing.T) {
	s := NewState()
	for i := 0; i < AlertHistoryCap+70; i++ {
		s.AppendAlert(AlertRecord{
			IssueType:  fmt.Sprintf("type-%d", i),
			ObservedAt: time.Now(),
		})
		if got := len(s.RecentAlerts(AlertHistoryCap + 100)); got > AlertHistoryCap {
			t.Fatalf("Alert history exceeded cap after %d appends: %d", i+1, got)
		}
	}

	recent := s.RecentAlerts(AlertHistoryCap)
	if len(recent) != AlertHistoryCap {
		t.Fatalf("Expected full history of %d, got %d", AlertHistoryCap, len(recent))
	}
	// Oldest entries must be gone, newest retained.
	if recent[0].IssueType != "type-70" {
		t.Errorf("Expected oldest surviving entry type-70, got %s", recent[0].IssueType)
	}
	if recent[len(recent)-1].IssueType != fmt.Sprintf("type-%d", AlertHistoryCap+69) {
		t.Errorf("Newest entry missing, got %s", recent[len(recent)-1].IssueType)
	}
}

func TestActionHistory_EvictionCap(t *testing.T) {
	s := NewState()
	for i := 0; i < ActionHistoryCap+50; i++ {
		s.AppendAction(ActionRecord{
			IssueType: fmt.Sprintf("type-%d", i),
			ActionID:  s.NewActionID(),
			TakenAt:   time.Now(),
		})
	}
	actions := s.RecentActions(ActionHistoryCap + 100)
	if len(actions) != ActionHistoryCap {
		t.Fatalf("Expected action history at cap %d, got %d", ActionHistoryCap, len(actions))
	}
	if actions[0].IssueType != "type-50" {
		t.Errorf("Expected oldest surviving entry type-50, got %s", actions[0].IssueType)
	}
}

func TestNewActionID_Unique(t *testing.T) {
	s := NewState()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := s.NewActionID()
		if seen[id] {
			t.Fatalf("Duplicate action ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestPatternInvariant_AttemptsAtLeastSuccesses(t *testing.T) {
	s := NewState()
	for i := 0; i < 25; i++ {
		s.RecordPatternSuccess("disk_full", fmt.Sprintf("fix-%d", i))
	}
	for issueType, p := range s.Patterns() {
		if p.TotalAttempts < p.SuccessCount {
			t.Errorf("Pattern %s violates invariant: attempts=%d < successes=%d",
				issueType, p.TotalAttempts, p.SuccessCount)
		}
	}
}

func TestSetPattern_RejectsInvalid(t *testing.T) {
	s := NewState()
	err := s.SetPattern("x", LearnedPattern{SuccessCount: 5, TotalAttempts: 3})
	if err == nil {
		t.Error("Expected error for successes > attempts, got nil")
	}
}

func TestConfidence(t *testing.T) {
	s := NewState()
	if got := s.Confidence("never_seen"); got != 0 {
		t.Errorf("Expected 0 confidence for unknown type, got %f", got)
	}

	if err := s.SetPattern("disk_full", LearnedPattern{SuccessCount: 8, TotalAttempts: 10}); err != nil {
		t.Fatalf("SetPattern failed: %v", err)
	}
	if got := s.Confidence("disk_full"); got != 0.8 {
		t.Errorf("Expected confidence 0.8, got %f", got)
	}
}

func TestRecordPatternSuccess_BestActionLastWins(t *testing.T) {
	s := NewState()
	s.RecordPatternSuccess("disk_full", "clear /tmp")
	s.RecordPatternSuccess("disk_full", "rotate logs")
	p, ok := s.Pattern("disk_full")
	if !ok {
		t.Fatal("Expected pattern to exist")
	}
	if p.BestAction != "rotate logs" {
		t.Errorf("Expected last success to win, got %q", p.BestAction)
	}
	if p.SuccessCount != 2 || p.TotalAttempts != 2 {
		t.Errorf("Expected counters 2/2, got %d/%d", p.SuccessCount, p.TotalAttempts)
	}
}

func TestRecentSuccesses_SkipsFailures(t *testing.T) {
	s := NewState()
	for i := 0; i < 4; i++ {
		s.AppendAction(ActionRecord{IssueType: "ok", Result: Succeeded("did it")})
		s.AppendAction(ActionRecord{IssueType: "bad", Result: Failed("nope")})
	}
	successes := s.RecentSuccesses(10)
	if len(successes) != 4 {
		t.Fatalf("Expected 4 successes, got %d", len(successes))
	}
	for _, rec := range successes {
		if !rec.Result.Success() {
			t.Errorf("Failure record leaked into success window: %s", rec.IssueType)
		}
	}
}

func TestSnapshot_Counters(t *testing.T) {
	s := NewState()
	s.SetMonitoring(true)
	s.AppendAlert(AlertRecord{IssueType: "a"})
	s.AppendAction(ActionRecord{IssueType: "a", Result: Succeeded("x")})
	s.AppendAction(ActionRecord{IssueType: "b", Result: Failed("y")})
	s.RecordPatternSuccess("a", "x")

	snap := s.Snapshot()
	if !snap.MonitoringActive {
		t.Error("Expected monitoring active in snapshot")
	}
	if snap.TotalActions != 2 || snap.SuccessfulActions != 1 {
		t.Errorf("Expected 2 actions / 1 success, got %d/%d", snap.TotalActions, snap.SuccessfulActions)
	}
	if snap.PatternsLearned != 1 || snap.RecentAlerts != 1 {
		t.Errorf("Expected 1 pattern / 1 alert, got %d/%d", snap.PatternsLearned, snap.RecentAlerts)
	}
}

func TestOutcome_JSON(t *testing.T) {
	data, err := Succeeded("done").MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON failed: %v", err)
	}
	if string(data) != `{"status":"success","detail":"done"}` {
		t.Errorf("Unexpected outcome JSON: %s", data)
	}
}
