// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the request and response shapes of Sentinel's
// HTTP surface, plus the parsing of inbound alert payloads.
package datatypes

import "time"

// QueryRequest asks a runbook question.
type QueryRequest struct {
	Question string `json:"question" binding:"required"`
}

// QueryResponse is a completed RAG answer.
type QueryResponse struct {
	Question      string `json:"question"`
	Answer        string `json:"answer"`
	SourceContext string `json:"source_context"`
	Success       bool   `json:"success"`
}

// NotifyRequest pushes a message straight to the notification sink.
type NotifyRequest struct {
	Message string `json:"message" binding:"required"`
}

// NotifyResponse acknowledges a delivery attempt.
type NotifyResponse struct {
	Status string `json:"status"`
}

// AgentStartResponse is returned by the agent start endpoint.
type AgentStartResponse struct {
	Status           string   `json:"status"`
	Capabilities     []string `json:"capabilities"`
	MonitoringActive bool     `json:"monitoring_active"`
}

// AgentStopResponse is returned by the agent stop endpoint.
type AgentStopResponse struct {
	Status           string `json:"status"`
	MonitoringActive bool   `json:"monitoring_active"`
}

// AgentMemory summarizes what the agent has accumulated this process
// lifetime.
type AgentMemory struct {
	SuccessfulActions int    `json:"successful_actions"`
	PatternsLearned   int    `json:"patterns_learned"`
	Uptime            string `json:"uptime"`
}

// AgentStatusResponse is the agent status surface.
type AgentStatusResponse struct {
	MonitoringActive       bool        `json:"monitoring_active"`
	LastHealthCheck        *time.Time  `json:"last_health_check,omitempty"`
	TotalAutonomousActions int         `json:"total_autonomous_actions"`
	LearnedPatternsCount   int         `json:"learned_patterns_count"`
	RecentAlertsCount      int         `json:"recent_alerts_count"`
	Capabilities           []string    `json:"capabilities"`
	AgentMemory            AgentMemory `json:"agent_memory"`
}

// StatsResponse reports knowledge-base and model statistics.
type StatsResponse struct {
	ChunkCount      int64  `json:"chunk_count"`
	DistinctSources int64  `json:"distinct_sources"`
	EmbeddingModel  string `json:"embedding_model"`
	GenerationModel string `json:"generation_model"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
