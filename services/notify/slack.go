// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package notify delivers operator notifications over a Slack incoming
// webhook. Delivery is best-effort: callers record failures and move on,
// they never retry into a storm of their own making.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// sendTimeout bounds a single webhook delivery, including any time spent
// waiting on the rate limiter.
const sendTimeout = 10 * time.Second

// payload is Slack's incoming-webhook message format.
type payload struct {
	Text string `json:"text"`
}

// SlackWebhook posts messages to a Slack incoming webhook URL.
//
// # Description
//
// Messages are prefixed with the Sentinel banner so operators can filter
// them in-channel. A token-bucket limiter (1 message/second, burst 5)
// protects the webhook from alert storms the agent itself detects; during
// a storm the oldest waiters drain first and the rest fail fast when the
// 10 second budget expires.
//
// # Thread Safety
//
// Safe for concurrent use.
type SlackWebhook struct {
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSlackWebhook creates a sink for the given webhook URL.
func NewSlackWebhook(url string) *SlackWebhook {
	return &SlackWebhook{
		url: url,
		httpClient: &http.Client{
			Timeout: sendTimeout,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// Send delivers one message to the webhook.
//
// # Description
//
// Blocks on the rate limiter, then posts the message. The whole call is
// bounded by sendTimeout regardless of how it fails.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - message: The notification text. Sent as-is under the banner prefix.
//
// # Outputs
//
//   - error: Non-nil if the webhook is unconfigured, unreachable, rate
//     budget is exhausted, or Slack returns a non-2xx status.
func (s *SlackWebhook) Send(ctx context.Context, message string) error {
	if s.url == "" {
		return fmt.Errorf("slack webhook URL is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notification rate budget exhausted: %w", err)
	}

	body, err := json.Marshal(payload{
		Text: fmt.Sprintf("🤖 Sentinel Alert:\n\n%s", message),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send slack notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack returned %d: %s", resp.StatusCode, string(respBody))
	}

	slog.Debug("Slack notification delivered", "length", len(message))
	return nil
}
