// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gin HTTP handlers for Sentinel's API
// surface. Handlers are factory functions taking their collaborators and
// returning a gin.HandlerFunc, so tests can wire fakes without a service
// container.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/Sentinel/services/llm"
)

// healthCacheTTL is how long a composite health result is served before
// re-probing. Probing the LLM on every scrape would burn quota.
const healthCacheTTL = 60 * time.Second

// DBPinger verifies database connectivity.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus is the composite health report.
type HealthStatus struct {
	Status    string    `json:"status"`   // healthy | degraded | unhealthy
	Database  string    `json:"database"` // connected | disconnected
	LLM       string    `json:"llm"`      // available | rate_limited | unavailable
	CheckedAt time.Time `json:"checked_at"`
}

// HealthChecker probes dependencies with a TTL cache.
//
// # Description
//
// The composite status follows the dependency hierarchy: a disconnected
// database makes the service unhealthy (nothing can be answered), while a
// failing LLM only degrades it (retrieval still works and queries fall
// back to raw context). A rate-limited LLM still counts as healthy since
// it recovers on its own.
//
// # Thread Safety
//
// Safe for concurrent use; concurrent expiries probe once.
type HealthChecker struct {
	db     DBPinger
	client llm.LLMClient

	mu      sync.Mutex
	cached  HealthStatus
	checked time.Time
}

// NewHealthChecker creates a checker. db and client may be nil; missing
// collaborators report as disconnected/unavailable.
func NewHealthChecker(db DBPinger, client llm.LLMClient) *HealthChecker {
	return &HealthChecker{db: db, client: client}
}

// Check returns the current composite status, probing only when the
// cached result has expired.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	if time.Since(h.checked) < healthCacheTTL {
		return h.cached
	}

	status := HealthStatus{
		Database: "disconnected",
		LLM:      "unavailable",
	}

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			slog.Warn("Health check database ping failed", "error", err)
		} else {
			status.Database = "connected"
		}
	}

	if h.client != nil {
		maxTokens := 8
		_, err := h.client.Generate(ctx, "Hello", llm.GenerationParams{MaxTokens: &maxTokens})
		switch {
		case err == nil:
			status.LLM = "available"
		case llm.IsRateLimited(err):
			status.LLM = "rate_limited"
			slog.Info("LLM rate limited during health check")
		default:
			status.LLM = "unavailable"
			slog.Warn("LLM probe failed during health check", "error", err)
		}
	}

	switch {
	case status.Database != "connected":
		status.Status = "unhealthy"
	case status.LLM == "available" || status.LLM == "rate_limited":
		status.Status = "healthy"
	default:
		status.Status = "degraded"
	}

	status.CheckedAt = time.Now()
	h.cached = status
	h.checked = status.CheckedAt
	return status
}

// HandleHealth serves the cached composite health report.
//
// GET /health
func HandleHealth(checker *HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := checker.Check(c.Request.Context())
		code := http.StatusOK
		if status.Status == "unhealthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	}
}
