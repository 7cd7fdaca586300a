// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides generation backends for the Sentinel query path.
//
// Backends implement the LLMClient interface. Errors returned by Generate
// are classified so callers can distinguish transient rate limiting (worth
// retrying with backoff) from hard failures (fall back to raw context).
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// Model returns the backend model name, for reporting.
	Model() string
}

// =============================================================================
// Error Classification
// =============================================================================

// RateLimitError marks a generation failure as a transient quota/429 error.
//
// # Description
//
// Backends wrap provider errors in RateLimitError when the provider signals
// request throttling. The query service retries only this error kind; all
// other generation errors fall through to the context-only fallback.
type RateLimitError struct {
	Backend string
	Message string
}

// Error implements the error interface for RateLimitError.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited: %s", e.Backend, e.Message)
}

// IsRateLimited reports whether err is classified as a transient rate limit.
//
// # Description
//
// Matches *RateLimitError anywhere in the wrap chain, plus the provider
// error strings the backends cannot always type ("429", "quota",
// "RESOURCE_EXHAUSTED"). String matching mirrors what the providers
// actually emit today; typed errors are preferred where the SDK offers them.
//
// # Inputs
//
//   - err: The error to classify. May be nil.
//
// # Outputs
//
//   - bool: True if the error should be retried with backoff.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "rate limit")
}
