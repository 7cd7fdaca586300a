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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/Sentinel/services/sentinel/datatypes"
)

// KnowledgeStats is the slice of the knowledge store the stats handler
// needs.
type KnowledgeStats interface {
	Count(ctx context.Context) (int64, error)
	DistinctSources(ctx context.Context) (int64, error)
}

// HandleStats reports knowledge-base and model statistics.
//
// GET /v1/stats
func HandleStats(store KnowledgeStats, embeddingModel, generationModel string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		count, err := store.Count(ctx)
		if err != nil {
			slog.Error("Failed to count knowledge base", "error", err)
			c.JSON(http.StatusBadGateway, datatypes.ErrorResponse{Error: "knowledge store unavailable"})
			return
		}
		sources, err := store.DistinctSources(ctx)
		if err != nil {
			slog.Error("Failed to count knowledge sources", "error", err)
			c.JSON(http.StatusBadGateway, datatypes.ErrorResponse{Error: "knowledge store unavailable"})
			return
		}

		c.JSON(http.StatusOK, datatypes.StatsResponse{
			ChunkCount:      count,
			DistinctSources: sources,
			EmbeddingModel:  embeddingModel,
			GenerationModel: generationModel,
		})
	}
}
