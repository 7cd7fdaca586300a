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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AleutianAI/Sentinel/services/sentinel/agent"
)

// ErrMalformedAlert marks an inbound payload that matches none of the
// accepted shapes. Handlers map it to 400 and never record it in agent
// history.
var ErrMalformedAlert = errors.New("invalid input format: must be a direct question, a Grafana alert, or a title/message alert")

// InboundKind discriminates the accepted alert-endpoint payload shapes.
type InboundKind int

const (
	// KindQuestion is a direct operator question; answered synchronously,
	// not treated as an alert.
	KindQuestion InboundKind = iota
	// KindAlert is a firing alert (Grafana webhook or title/message form)
	// that flows through the agent's dispatcher.
	KindAlert
)

// Inbound is a parsed alert-endpoint payload.
type Inbound struct {
	Kind     InboundKind
	Question string
	Alert    agent.InboundAlert
}

// grafanaWebhook is the subset of Grafana's alerting webhook Sentinel
// reads. Only the first alert in the batch is considered.
type grafanaWebhook struct {
	Status string `json:"status"`
	Alerts []struct {
		Labels      map[string]string `json:"labels"`
		Annotations map[string]string `json:"annotations"`
	} `json:"alerts"`
}

// flexiblePayload covers the direct-question and title/message shapes.
type flexiblePayload struct {
	Question string `json:"question"`
	Title    string `json:"title"`
	Message  string `json:"message"`
}

// ParseInbound classifies and normalizes an alert-endpoint payload.
//
// # Description
//
// Accepts three shapes, checked in order:
//  1. `{"question": ...}`: a direct question, returned as KindQuestion.
//  2. A Grafana webhook with `status: "firing"` and a non-empty alerts
//     array: the first alert's labels and annotations are transformed
//     into a runbook question (the agent's reasoning step).
//  3. `{"title": ..., "message": ...}`: a plain alert whose message is
//     used as the question verbatim.
//
// Anything else fails with ErrMalformedAlert, including unparseable JSON.
//
// # Inputs
//
//   - raw: The request body.
//
// # Outputs
//
//   - Inbound: The normalized payload.
//   - error: ErrMalformedAlert (possibly wrapped) on any unaccepted shape.
func ParseInbound(raw []byte) (Inbound, error) {
	var flex flexiblePayload
	if err := json.Unmarshal(raw, &flex); err != nil {
		return Inbound{}, fmt.Errorf("%w: %s", ErrMalformedAlert, err)
	}

	if flex.Question != "" {
		return Inbound{Kind: KindQuestion, Question: flex.Question}, nil
	}

	var hook grafanaWebhook
	if err := json.Unmarshal(raw, &hook); err == nil && hook.Status == "firing" {
		if len(hook.Alerts) == 0 {
			return Inbound{}, fmt.Errorf("%w: firing webhook carries no alerts", ErrMalformedAlert)
		}
		first := hook.Alerts[0]
		alertName := labelOr(first.Labels, "alertname", "Unknown Alert")
		service := labelOr(first.Labels, "service", "an unknown service")
		instance := labelOr(first.Labels, "instance", "unknown instance")
		summary := labelOr(first.Annotations, "summary", "No summary available")

		return Inbound{
			Kind: KindAlert,
			Alert: agent.InboundAlert{
				IssueType: alertName,
				Service:   service,
				Title:     alertName,
				Question: fmt.Sprintf(
					"What are the steps to resolve the '%s' alert for '%s' on instance '%s'? Alert details: %s",
					alertName, service, instance, summary),
			},
		}, nil
	}

	if flex.Title != "" && flex.Message != "" {
		return Inbound{
			Kind: KindAlert,
			Alert: agent.InboundAlert{
				IssueType: flex.Title,
				Service:   "an unknown service",
				Title:     flex.Title,
				Question:  flex.Message,
			},
		}, nil
	}

	return Inbound{}, ErrMalformedAlert
}

// labelOr reads a label with a fallback for missing or empty values.
func labelOr(labels map[string]string, key, fallback string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return fallback
}
