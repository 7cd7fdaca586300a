// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embedding provides a thin HTTP client for the sentence-embedding
// sidecar. The sidecar wraps a sentence-transformers model (all-mpnet-base-v2,
// 768 dimensions) behind a single /embed endpoint; this package only moves
// bytes and never interprets the vector.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Dimensions is the vector width the knowledge base was ingested with.
// A mismatch here means the store and the embedder disagree about the model.
const Dimensions = 768

type Request struct {
	Text string `json:"text"`
}

type Response struct {
	Id        string    `json:"id"`
	Timestamp int       `json:"timestamp"`
	Text      string    `json:"text"`
	Vector    []float32 `json:"vector"`
	Dim       int       `json:"dim"`
}

// Client calls the embedding sidecar over HTTP.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates an embedding client for the given service URL.
//
// # Description
//
// The URL should point at the sidecar's /embed endpoint. The client uses a
// 30 second timeout; embedding a single question is normally well under a
// second, but cold model loads on the sidecar can be slow.
//
// # Inputs
//
//   - url: Full URL of the embed endpoint, e.g. "http://embedder:8100/embed".
//
// # Outputs
//
//   - *Client: Ready to Embed().
func NewClient(url string) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Embed returns the vector for the given text.
//
// # Description
//
// Posts the text to the sidecar and returns the raw vector. A dimension
// mismatch against Dimensions is treated as an error rather than passed
// through, because a wrong-width vector would silently break the cosine
// distance ordering in the knowledge store.
//
// # Inputs
//
//   - ctx: Context for cancellation and tracing.
//   - text: The text to embed. Must be non-empty.
//
// # Outputs
//
//   - []float32: The embedding vector, len == Dimensions.
//   - error: Non-nil if the sidecar is unreachable, returns non-200, or
//     returns a vector of unexpected width.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}

	reqBody, err := json.Marshal(Request{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding service: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var embResp Response
	if err := json.Unmarshal(bodyBytes, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}

	if len(embResp.Vector) != Dimensions {
		slog.Error("Embedding dimension mismatch",
			"got", len(embResp.Vector),
			"want", Dimensions,
		)
		return nil, fmt.Errorf("embedding service returned %d dimensions, want %d", len(embResp.Vector), Dimensions)
	}

	return embResp.Vector, nil
}
