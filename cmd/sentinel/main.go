// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Sentinel service entrypoint.
//
// Reads configuration from the environment (a local .env is honored for
// development), builds the service, and runs the HTTP server until it
// exits.
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/AleutianAI/Sentinel/services/knowledge"
	"github.com/AleutianAI/Sentinel/services/sentinel"
	"github.com/AleutianAI/Sentinel/services/sentinel/agent"
)

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("Invalid integer environment variable, using fallback",
			"key", key, "value", value, "fallback", fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("Invalid duration environment variable, using fallback",
			"key", key, "value", value, "fallback", fallback)
		return fallback
	}
	return d
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on process environment")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := sentinel.Config{
		Port:                getEnvInt("SENTINEL_PORT", 8000),
		LLMBackend:          getEnv("LLM_BACKEND_TYPE", "gemini"),
		EmbeddingServiceURL: getEnv("EMBEDDING_SERVICE_URL", "http://sentinel-embedder:8100/embed"),
		Knowledge: knowledge.Config{
			Host:     os.Getenv("TIDB_HOST"),
			Port:     getEnvInt("TIDB_PORT", 4000),
			User:     getEnv("TIDB_USER", "root"),
			Password: os.Getenv("TIDB_PASSWORD"),
			Database: getEnv("TIDB_DATABASE", "devops_sentinel"),
			// Set to a TLS config registered with the mysql driver,
			// e.g. "tidb" for TiDB Cloud.
			TLSConfigName: os.Getenv("TIDB_TLS_CONFIG"),
		},
		SlackWebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
		HealthProbeURL:  os.Getenv("HEALTH_PROBE_URL"),
		Intervals: agent.Intervals{
			Health:   getEnvDuration("AGENT_HEALTH_INTERVAL", 0),
			Analysis: getEnvDuration("AGENT_ANALYSIS_INTERVAL", 0),
			Learning: getEnvDuration("AGENT_LEARNING_INTERVAL", 0),
		},
		AutoStartMonitoring: getEnv("AGENT_AUTOSTART", "false") == "true",
		OTelEndpoint:        getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "sentinel-otel-collector:4317"),
		GinMode:             os.Getenv("GIN_MODE"),
	}

	svc, err := sentinel.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize Sentinel: %v", err)
	}

	if err := svc.Run(); err != nil {
		log.Fatalf("Sentinel server exited: %v", err)
	}
}
