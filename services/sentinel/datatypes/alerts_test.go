// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"errors"
	"testing"
)

func TestParseInbound_DirectQuestion(t *testing.T) {
	in, err := ParseInbound([]byte(`{"question": "How do I fix disk full?"}`))
	if err != nil {
		t.Fatalf("ParseInbound failed: %v", err)
	}
	if in.Kind != KindQuestion {
		t.Errorf("Expected KindQuestion, got %v", in.Kind)
	}
	if in.Question != "How do I fix disk full?" {
		t.Errorf("Unexpected question: %q", in.Question)
	}
}

func TestParseInbound_GrafanaWebhook(t *testing.T) {
	body := []byte(`{
		"status": "firing",
		"alerts": [{
			"labels": {"alertname": "HighCPU", "service": "checkout", "instance": "web-1"},
			"annotations": {"summary": "CPU above 90% for 5m"}
		}]
	}`)

	in, err := ParseInbound(body)
	if err != nil {
		t.Fatalf("ParseInbound failed: %v", err)
	}
	if in.Kind != KindAlert {
		t.Fatalf("Expected KindAlert, got %v", in.Kind)
	}
	if in.Alert.IssueType != "HighCPU" || in.Alert.Service != "checkout" {
		t.Errorf("Unexpected alert fields: %+v", in.Alert)
	}
	want := "What are the steps to resolve the 'HighCPU' alert for 'checkout' on instance 'web-1'? Alert details: CPU above 90% for 5m"
	if in.Alert.Question != want {
		t.Errorf("Question transform mismatch:\n got %q\nwant %q", in.Alert.Question, want)
	}
}

func TestParseInbound_GrafanaMissingLabels(t *testing.T) {
	body := []byte(`{"status": "firing", "alerts": [{"labels": {}}]}`)
	in, err := ParseInbound(body)
	if err != nil {
		t.Fatalf("ParseInbound failed: %v", err)
	}
	if in.Alert.IssueType != "Unknown Alert" {
		t.Errorf("Expected fallback alert name, got %q", in.Alert.IssueType)
	}
	if in.Alert.Service != "an unknown service" {
		t.Errorf("Expected fallback service, got %q", in.Alert.Service)
	}
}

func TestParseInbound_GrafanaEmptyAlerts(t *testing.T) {
	_, err := ParseInbound([]byte(`{"status": "firing", "alerts": []}`))
	if !errors.Is(err, ErrMalformedAlert) {
		t.Errorf("Expected ErrMalformedAlert, got %v", err)
	}
}

func TestParseInbound_TitleMessage(t *testing.T) {
	in, err := ParseInbound([]byte(`{"title": "Database Down", "message": "Postgres is not accepting connections"}`))
	if err != nil {
		t.Fatalf("ParseInbound failed: %v", err)
	}
	if in.Kind != KindAlert {
		t.Fatalf("Expected KindAlert, got %v", in.Kind)
	}
	if in.Alert.IssueType != "Database Down" {
		t.Errorf("Expected title as issue type, got %q", in.Alert.IssueType)
	}
	if in.Alert.Question != "Postgres is not accepting connections" {
		t.Errorf("Expected message as question, got %q", in.Alert.Question)
	}
}

func TestParseInbound_Malformed(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json`},
		{"empty object", `{}`},
		{"resolved webhook", `{"status": "resolved", "alerts": [{"labels": {"alertname": "X"}}]}`},
		{"title without message", `{"title": "X"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseInbound([]byte(tc.body)); !errors.Is(err, ErrMalformedAlert) {
				t.Errorf("Expected ErrMalformedAlert, got %v", err)
			}
		})
	}
}
