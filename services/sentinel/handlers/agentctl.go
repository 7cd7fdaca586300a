// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/Sentinel/services/sentinel/agent"
	"github.com/AleutianAI/Sentinel/services/sentinel/datatypes"
	"github.com/AleutianAI/Sentinel/services/sentinel/observability"
)

// recentActionsShown is how many actions the actions endpoint returns.
const recentActionsShown = 10

// HandleAgentStart activates the autonomous monitoring loop.
//
// baseCtx must be a long-lived context owned by the service and
// cancelled only at shutdown. The request context will not do: net/http
// cancels it once the response is written, which would kill the loop
// moments after it started.
//
// POST /v1/agent/start
func HandleAgentStart(baseCtx context.Context, scheduler *agent.Scheduler) gin.HandlerFunc {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return func(c *gin.Context) {
		if err := scheduler.Start(baseCtx); err != nil {
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: err.Error()})
			return
		}
		if observability.DefaultMetrics != nil {
			observability.DefaultMetrics.MonitoringActive.Set(1)
		}
		c.JSON(http.StatusOK, datatypes.AgentStartResponse{
			Status:           "Autonomous monitoring started",
			Capabilities:     agent.Capabilities,
			MonitoringActive: true,
		})
	}
}

// HandleAgentStop halts the monitoring loop.
//
// POST /v1/agent/stop
func HandleAgentStop(scheduler *agent.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheduler.Stop()
		if observability.DefaultMetrics != nil {
			observability.DefaultMetrics.MonitoringActive.Set(0)
		}
		c.JSON(http.StatusOK, datatypes.AgentStopResponse{
			Status:           "Autonomous monitoring stopped",
			MonitoringActive: false,
		})
	}
}

// HandleAgentStatus reports the agent's current state. The snapshot is
// best-effort; the agent keeps working while it is rendered.
//
// GET /v1/agent/status
func HandleAgentStatus(state *agent.State) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := state.Snapshot()

		resp := datatypes.AgentStatusResponse{
			MonitoringActive:       snap.MonitoringActive,
			TotalAutonomousActions: snap.TotalActions,
			LearnedPatternsCount:   snap.PatternsLearned,
			RecentAlertsCount:      snap.RecentAlerts,
			Capabilities:           agent.Capabilities,
			AgentMemory: datatypes.AgentMemory{
				SuccessfulActions: snap.SuccessfulActions,
				PatternsLearned:   snap.PatternsLearned,
				Uptime:            snap.Uptime.Truncate(time.Second).String(),
			},
		}
		if !snap.LastHealthCheck.IsZero() {
			t := snap.LastHealthCheck
			resp.LastHealthCheck = &t
		}
		c.JSON(http.StatusOK, resp)
	}
}

// HandleAgentActions lists the most recent autonomous actions and the
// learned patterns behind them.
//
// GET /v1/agent/actions
func HandleAgentActions(state *agent.State) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := state.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"recent_actions":   state.RecentActions(recentActionsShown),
			"total_actions":    snap.TotalActions,
			"learned_patterns": state.Patterns(),
		})
	}
}
