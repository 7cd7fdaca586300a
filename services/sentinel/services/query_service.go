// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package services provides business logic services for Sentinel.
//
// This package contains service structs that encapsulate business logic,
// separating it from HTTP handlers and from the monitoring agent. Services
// are responsible for:
//   - Orchestrating calls to external collaborators (embedding service,
//     knowledge store, LLM backend)
//   - Applying retry and fallback policy
//   - Managing error handling at the collaborator boundary
//
// Services are designed to be:
//   - Testable: Dependencies are injected via constructors
//   - Composable: The agent's dispatcher consumes the same query service
//     the HTTP handlers do
//   - Traceable: All methods accept context for distributed tracing
package services

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/Sentinel/services/embedding"
	"github.com/AleutianAI/Sentinel/services/knowledge"
	"github.com/AleutianAI/Sentinel/services/llm"
	"github.com/AleutianAI/Sentinel/services/sentinel/agent"
	"github.com/AleutianAI/Sentinel/services/sentinel/observability"
)

// queryTracer is the OpenTelemetry tracer for QueryService operations.
var queryTracer = otel.Tracer("sentinel.services.query")

// Compile-time interface implementation check.
var _ agent.AlertResolver = (*QueryService)(nil)

// Retry policy for rate-limited generation calls. Attempt n (0-based)
// sleeps 1s·2^n plus up to 1s of jitter before the next try, so the worst
// case adds roughly 1+2 seconds plus jitter across the three attempts.
const (
	maxGenerateAttempts = 3
	backoffBase         = 1 * time.Second
	backoffJitterMax    = 1 * time.Second
)

// retrievalLimit is how many knowledge chunks back a generation.
const retrievalLimit = 3

// =============================================================================
// Interfaces
// =============================================================================

// Embedder turns text into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SearchStore performs vector-similarity search over the knowledge base.
type SearchStore interface {
	Search(ctx context.Context, vector []float32, limit int) ([]knowledge.Chunk, error)
}

// Compile-time checks that the real collaborators satisfy the interfaces.
var (
	_ Embedder    = (*embedding.Client)(nil)
	_ SearchStore = (*knowledge.Store)(nil)
)

// =============================================================================
// Query Service
// =============================================================================

// Retrieval is the raw output of the retrieve step.
type Retrieval struct {
	// BestChunk is the closest match, used for source attribution and the
	// generation fallback.
	BestChunk knowledge.Chunk
	// CombinedContext joins the retrieved chunks for the generation prompt.
	CombinedContext string
	// Found is false when the knowledge base returned nothing.
	Found bool
}

// Answer is a completed RAG round-trip.
type Answer struct {
	Question      string
	Text          string
	SourceContext string
	// Success is false when generation failed and Text carries the raw
	// retrieved context fallback, or when nothing was retrievable.
	Success bool
}

// QueryService runs the retrieve-then-generate pipeline.
//
// # Description
//
// Embeds the question, searches the knowledge store for the closest
// runbook chunks, and conditions an LLM generation on them. Generation is
// retried with exponential backoff on rate-limit errors only; when all
// attempts fail the service degrades to returning the raw retrieved
// context so callers always get the best available content.
//
// # Thread Safety
//
// Safe for concurrent use.
type QueryService struct {
	embedder Embedder
	store    SearchStore
	client   llm.LLMClient

	// sleep is swappable so tests can observe backoff without waiting.
	sleep func(time.Duration)
}

// NewQueryService creates a query service over the given collaborators.
//
// # Inputs
//
//   - embedder: Embedding client. Must be non-nil.
//   - store: Knowledge search store. Must be non-nil.
//   - client: LLM backend. Must be non-nil.
//
// # Outputs
//
//   - *QueryService: Ready for Query/Resolve. Never nil.
func NewQueryService(embedder Embedder, store SearchStore, client llm.LLMClient) *QueryService {
	return &QueryService{
		embedder: embedder,
		store:    store,
		client:   client,
		sleep:    time.Sleep,
	}
}

// Retrieve runs the embed-and-search half of the pipeline.
//
// # Inputs
//
//   - ctx: Context for cancellation and tracing.
//   - question: The operator's question. Must be non-empty.
//
// # Outputs
//
//   - Retrieval: Retrieved context; Found=false when the store is empty
//     or nothing matched.
//   - error: Non-nil when embedding or search fail outright.
func (q *QueryService) Retrieve(ctx context.Context, question string) (Retrieval, error) {
	ctx, span := queryTracer.Start(ctx, "QueryService.Retrieve")
	defer span.End()

	if strings.TrimSpace(question) == "" {
		return Retrieval{}, fmt.Errorf("question must not be empty")
	}

	vector, err := q.embedder.Embed(ctx, question)
	if err != nil {
		span.SetStatus(codes.Error, "embedding failed")
		return Retrieval{}, fmt.Errorf("failed to embed question: %w", err)
	}

	chunks, err := q.store.Search(ctx, vector, retrievalLimit)
	if err != nil {
		span.SetStatus(codes.Error, "search failed")
		return Retrieval{}, fmt.Errorf("knowledge search failed: %w", err)
	}
	span.SetAttributes(attribute.Int("retrieval.chunks", len(chunks)))

	if len(chunks) == 0 {
		return Retrieval{Found: false}, nil
	}

	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	return Retrieval{
		BestChunk:       chunks[0],
		CombinedContext: strings.Join(parts, "\n\n"),
		Found:           true,
	}, nil
}

// Query answers an operator question end to end.
//
// # Description
//
// Retrieves context and generates an answer. When nothing is retrievable
// the answer says so with Success=false. When generation fails after
// retries the answer degrades to the raw retrieved context, also with
// Success=false, so the caller still sees the runbook content.
func (q *QueryService) Query(ctx context.Context, question string) (Answer, error) {
	ctx, span := queryTracer.Start(ctx, "QueryService.Query")
	defer span.End()

	ret, err := q.Retrieve(ctx, question)
	if err != nil {
		return Answer{}, err
	}
	if !ret.Found {
		return Answer{
			Question:      question,
			Text:          "I couldn't find any relevant information in the knowledge base to answer your question.",
			SourceContext: "No relevant documents found",
			Success:       false,
		}, nil
	}

	prompt := questionPrompt(question, ret.CombinedContext)
	text, genErr := q.generateWithRetry(ctx, prompt)
	if genErr != nil {
		slog.Warn("Generation failed, falling back to retrieved context",
			"error", genErr,
		)
		return Answer{
			Question:      question,
			Text:          fmt.Sprintf("LLM service unavailable. Here's the relevant runbook information:\n\n%s", ret.BestChunk.Content),
			SourceContext: sourceContext(ret.BestChunk),
			Success:       false,
		}, nil
	}

	return Answer{
		Question:      question,
		Text:          text,
		SourceContext: sourceContext(ret.BestChunk),
		Success:       true,
	}, nil
}

// Resolve implements agent.AlertResolver over the same pipeline, shaped
// for the dispatcher's needs.
func (q *QueryService) Resolve(ctx context.Context, question string) (agent.Resolution, error) {
	ans, err := q.Query(ctx, question)
	if err != nil {
		return agent.Resolution{}, err
	}
	return agent.Resolution{
		Answer:  ans.Text,
		Context: ans.SourceContext,
		Found:   ans.Success || ans.SourceContext != "No relevant documents found",
	}, nil
}

// generateWithRetry calls the LLM with the rate-limit retry policy.
//
// # Description
//
// Makes up to maxGenerateAttempts calls. Only rate-limit-classified errors
// are retried; anything else fails immediately. Between attempts n and n+1
// it sleeps backoffBase·2^n plus random jitter in [0, backoffJitterMax).
func (q *QueryService) generateWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		text, err := q.client.Generate(ctx, prompt, llm.GenerationParams{})
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !llm.IsRateLimited(err) {
			return "", err
		}
		if attempt < maxGenerateAttempts-1 {
			observability.RecordGenerationRetry()
			wait := backoffBase*time.Duration(1<<attempt) + time.Duration(rand.Int63n(int64(backoffJitterMax)))
			slog.Info("Rate limited, backing off before retry",
				"attempt", attempt+1,
				"max_attempts", maxGenerateAttempts,
				"wait", wait.String(),
			)
			q.sleep(wait)
		}
	}
	return "", fmt.Errorf("generation rate limited after %d attempts: %w", maxGenerateAttempts, lastErr)
}

// questionPrompt builds the generation prompt for an operator question.
func questionPrompt(question, context string) string {
	return fmt.Sprintf(`You are a helpful and knowledgeable DevOps assistant. Based on the context provided below, answer the user's question in a clear, practical, and actionable way.

Context from knowledge base:
%s

User Question: %s

Instructions:
- Provide a direct, helpful answer based on the context
- Include specific steps or recommendations when applicable
- If the context doesn't fully answer the question, mention what information is available
- Keep the response practical and actionable for DevOps scenarios`, context, question)
}

// sourceContext renders the attribution block returned with answers.
func sourceContext(c knowledge.Chunk) string {
	return fmt.Sprintf("Source: %s\n\nContext: %s", c.Source, c.Content)
}
