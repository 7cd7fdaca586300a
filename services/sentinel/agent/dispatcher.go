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
	"time"
)

// ConfidenceGate is the learned-pattern success rate above which the
// dispatcher trusts the pattern's best action and skips the full RAG
// round-trip for an inbound alert.
const ConfidenceGate = 0.7

// Sink delivers a notification message. Implemented by notify.SlackWebhook.
type Sink interface {
	Send(ctx context.Context, message string) error
}

// Resolution is what the RAG query path returns for an alert question.
type Resolution struct {
	Answer  string
	Context string
	Found   bool
}

// AlertResolver answers an operational question from the knowledge base.
// Implemented by the query service.
type AlertResolver interface {
	Resolve(ctx context.Context, question string) (Resolution, error)
}

// Dispatcher turns detected issues into notifications and action records.
//
// # Description
//
// Every dispatch makes exactly one sink call and appends exactly one
// ActionRecord whose result reflects whether the sink call succeeded.
// Sink failures are recorded, never propagated: notification delivery is
// best-effort and the agent's history is the source of truth for what it
// tried to do.
//
// # Thread Safety
//
// Safe for concurrent use; all shared state lives in State.
type Dispatcher struct {
	state    *State
	sink     Sink
	resolver AlertResolver
}

// NewDispatcher wires a dispatcher over the shared state, a notification
// sink, and the RAG resolver. resolver may be nil; inbound alerts then
// always report a knowledge gap.
func NewDispatcher(state *State, sink Sink, resolver AlertResolver) *Dispatcher {
	return &Dispatcher{state: state, sink: sink, resolver: resolver}
}

// messageFor renders the notification for an issue. The table is
// exhaustive over the detector-produced types; anything else gets the
// generic fallthrough, never an error.
func messageFor(issue Issue) string {
	switch issue.Type {
	case IssueKnowledgeBaseEmpty:
		return "CRITICAL: The knowledge base is empty. I cannot provide solutions to any alerts until runbooks are ingested."
	case IssueAlertStormDetected:
		ctx, _ := issue.Context.(AlertStorm)
		return fmt.Sprintf("WARNING: Alert storm detected: %d alerts in %.1f minutes. The system may be experiencing instability.",
			ctx.AlertCount, ctx.ElapsedMinutes)
	case IssueAPIHealthDegraded:
		ctx, _ := issue.Context.(DegradedHealth)
		return fmt.Sprintf("WARNING: Service health degraded: the API returned status %d.", ctx.StatusCode)
	case IssueExternalUnreachable:
		return fmt.Sprintf("CRITICAL: External system unreachable (%s). Please escalate to the on-call engineer.",
			issue.Context.Describe())
	case IssueMonitoringSystemFailed:
		return fmt.Sprintf("CRITICAL: The monitoring system itself failed (%s). Manual intervention required.",
			issue.Context.Describe())
	default:
		return fmt.Sprintf("Handled %s", issue.Type)
	}
}

// Dispatch handles one detected issue.
//
// # Inputs
//
//   - ctx: Context for the sink call; delivery carries its own timeout.
//   - issue: The detected issue.
//
// # Outputs
//
//   - ActionRecord: The record appended to history, returned for callers
//     that want to inspect the outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, issue Issue) ActionRecord {
	return d.record(ctx, issue.Type, issue.Context, messageFor(issue))
}

// NotifyPrediction delivers an advisory prediction. Predictions are not
// issues: they are notified and recorded, but carry info severity and no
// escalation language.
func (d *Dispatcher) NotifyPrediction(ctx context.Context, p Prediction) ActionRecord {
	msg := fmt.Sprintf("Predictive analysis: %s (seen %d times recently, confidence %.0f%%). Consider reviewing the underlying service.",
		p.Pattern, p.Count, p.Confidence*100)
	return d.record(ctx, IssuePredictiveWarning, RecurringPattern{
		Pattern:    p.Pattern,
		Count:      p.Count,
		Confidence: p.Confidence,
	}, msg)
}

// ProcessAlert handles an inbound alert from Grafana or the generic alert
// endpoint.
//
// # Description
//
// Appends the alert to history, then resolves it one of two ways. If the
// learned pattern for the alert's own issue type clears the confidence
// gate, the stored best action is replayed as the response and the RAG
// round-trip is skipped entirely. Otherwise the resolver runs the full
// retrieve-and-generate path; when nothing relevant is retrievable the
// notification flags the knowledge gap so operators know a runbook is
// missing. Either way exactly one notification goes out and exactly one
// action is recorded under the alert's own issue type, which is what the
// learner later folds into the pattern the confidence gate keys on.
//
// # Inputs
//
//   - ctx: Context for the RAG round-trip and the sink call.
//   - alert: The normalized inbound alert.
//
// # Outputs
//
//   - ActionRecord: The appended record.
func (d *Dispatcher) ProcessAlert(ctx context.Context, alert InboundAlert) ActionRecord {
	solved := false
	var msg string

	if conf := d.state.Confidence(alert.IssueType); conf > ConfidenceGate {
		pattern, _ := d.state.Pattern(alert.IssueType)
		msg = fmt.Sprintf("Alert: %s\n\nI've handled this before (%.0f%% success rate). Recommended action:\n%s",
			alert.Title, conf*100, pattern.BestAction)
		solved = true
		slog.Info("Confidence gate hit, skipping RAG resolution",
			"issue_type", alert.IssueType,
			"confidence", conf,
		)
	} else {
		msg, solved = d.resolveAlert(ctx, alert)
	}

	d.state.AppendAlert(AlertRecord{
		IssueType:     alert.IssueType,
		Service:       alert.Service,
		Severity:      SeverityWarning,
		ObservedAt:    time.Now(),
		Resolved:      solved,
		SolutionFound: solved,
	})

	return d.record(ctx, alert.IssueType, alert, msg)
}

// resolveAlert runs the full RAG path for an alert and renders the
// notification. Returns the message and whether a solution was found.
func (d *Dispatcher) resolveAlert(ctx context.Context, alert InboundAlert) (string, bool) {
	if d.resolver == nil {
		return fmt.Sprintf("Alert: %s\n\nKnowledge gap: no resolver is configured, so no runbook guidance is available.",
			alert.Title), false
	}

	res, err := d.resolver.Resolve(ctx, alert.Question)
	if err != nil {
		return fmt.Sprintf("Alert: %s\n\nI tried to find a solution but resolution failed: %v", alert.Title, err), false
	}
	if !res.Found {
		return fmt.Sprintf("Alert: %s\n\nKnowledge gap: I found no relevant runbook for this alert. Consider adding one.",
			alert.Title), false
	}
	return fmt.Sprintf("Alert: %s\n\nSuggested resolution:\n%s", alert.Title, res.Answer), true
}

// record performs the one sink call and the one history append every
// dispatch is allowed.
func (d *Dispatcher) record(ctx context.Context, issueType string, issueCtx IssueContext, msg string) ActionRecord {
	var result Outcome
	if err := d.sink.Send(ctx, msg); err != nil {
		slog.Warn("Notification delivery failed",
			"issue_type", issueType,
			"error", err,
		)
		result = Failed(err.Error())
	} else {
		result = Succeeded(msg)
	}

	rec := ActionRecord{
		IssueType: issueType,
		Context:   issueCtx,
		TakenAt:   time.Now(),
		ActionID:  d.state.NewActionID(),
		Result:    result,
	}
	d.state.AppendAction(rec)
	return rec
}
