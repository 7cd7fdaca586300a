// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/Sentinel/services/sentinel/agent"
	"github.com/AleutianAI/Sentinel/services/sentinel/handlers"
)

// Deps carries the wired collaborators the routes need.
type Deps struct {
	// BaseCtx is the service-lifetime context the monitoring loop runs
	// under. Nil falls back to context.Background().
	BaseCtx context.Context

	Health     *handlers.HealthChecker
	Querier    handlers.Querier
	Dispatcher *agent.Dispatcher
	Scheduler  *agent.Scheduler
	State      *agent.State
	Sink       agent.Sink
	Stats      handlers.KnowledgeStats

	EmbeddingModel  string
	GenerationModel string
}

// SetupRoutes registers the full API surface.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HandleHealth(deps.Health))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/query", handlers.HandleQuery(deps.Querier))
		v1.POST("/alerts", handlers.HandleAlerts(deps.Dispatcher, deps.Querier))
		v1.POST("/notify", handlers.HandleNotify(deps.Sink))
		v1.GET("/stats", handlers.HandleStats(deps.Stats, deps.EmbeddingModel, deps.GenerationModel))

		// Autonomous agent control surface
		agentGroup := v1.Group("/agent")
		{
			agentGroup.POST("/start", handlers.HandleAgentStart(deps.BaseCtx, deps.Scheduler))
			agentGroup.POST("/stop", handlers.HandleAgentStop(deps.Scheduler))
			agentGroup.GET("/status", handlers.HandleAgentStatus(deps.State))
			agentGroup.GET("/actions", handlers.HandleAgentActions(deps.State))
		}
	}
}
