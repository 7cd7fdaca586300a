// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"google.golang.org/genai"
)

// GeminiClient talks to the Gemini API via google.golang.org/genai.
//
// This is the default backend: the knowledge-base answer path was tuned
// against gemini-2.5-flash, whose free tier is generous enough for the
// agent's probe and resolution traffic.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a Gemini backend from environment configuration.
//
// # Description
//
// Reads GOOGLE_API_KEY (falling back to the container secret file) and
// GEMINI_MODEL. The API key is required; the model defaults to
// gemini-2.5-flash.
//
// # Outputs
//
//   - *GeminiClient: Ready to Generate().
//   - error: Non-nil if no API key is available or client creation fails.
func NewGeminiClient() (*GeminiClient, error) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/google_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the Google API Key from container secrets")
		} else {
			slog.Error("GOOGLE_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("GOOGLE_API_KEY environment variable not set")
		}
	}

	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = "gemini-2.5-flash"
		slog.Warn("GEMINI_MODEL not set, defaulting to gemini-2.5-flash")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	slog.Info("Initializing Gemini client", "model", model)
	return &GeminiClient{client: client, model: model}, nil
}

// Model returns the configured Gemini model name.
func (g *GeminiClient) Model() string { return g.model }

// Generate implements the LLMClient interface
func (g *GeminiClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	slog.Debug("Generating text via Gemini", "model", g.model)

	config := &genai.GenerateContentConfig{}
	if params.Temperature != nil {
		config.Temperature = params.Temperature
	}
	if params.TopP != nil {
		config.TopP = params.TopP
	}
	if params.MaxTokens != nil {
		config.MaxOutputTokens = int32(*params.MaxTokens)
	}
	if len(params.Stop) > 0 {
		config.StopSequences = params.Stop
	}

	content := genai.NewContentFromText(prompt, genai.RoleUser)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{content}, config)
	if err != nil {
		if classified := classifyGeminiError(err); classified != nil {
			slog.Warn("Gemini rate limited", "error", err)
			return "", classified
		}
		slog.Error("Gemini API call failed", "error", err)
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		slog.Warn("Gemini returned no candidates")
		return "", fmt.Errorf("Gemini returned no candidates")
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			out.WriteString(part.Text)
		}
	}
	return out.String(), nil
}

// classifyGeminiError returns a *RateLimitError for 429/quota failures,
// nil for everything else.
func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests {
			return &RateLimitError{Backend: "gemini", Message: apiErr.Message}
		}
		return nil
	}
	// The SDK does not always surface a typed error; match the provider
	// strings the way the original quota handling did.
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "quota") || strings.Contains(msg, "resource_exhausted") {
		return &RateLimitError{Backend: "gemini", Message: err.Error()}
	}
	return nil
}
