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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/Sentinel/services/sentinel/datatypes"
	"github.com/AleutianAI/Sentinel/services/sentinel/observability"
	qsvc "github.com/AleutianAI/Sentinel/services/sentinel/services"
)

// Querier is the slice of the query service the handler needs.
type Querier interface {
	Query(ctx context.Context, question string) (qsvc.Answer, error)
}

// HandleQuery answers a runbook question over the full RAG pipeline.
//
// POST /v1/query
func HandleQuery(querier Querier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "question is required"})
			return
		}

		sessionID := uuid.NewString()
		slog.Info("Processing query",
			"session_id", sessionID,
			"question_length", len(req.Question),
		)

		started := time.Now()
		ans, err := querier.Query(c.Request.Context(), req.Question)
		observability.ObserveQueryDuration(time.Since(started).Seconds())
		if err != nil {
			slog.Error("Query pipeline failed",
				"session_id", sessionID,
				"error", err,
			)
			observability.RecordQuery("error")
			c.JSON(http.StatusBadGateway, datatypes.ErrorResponse{Error: "query pipeline unavailable"})
			return
		}

		if ans.Success {
			observability.RecordQuery("success")
		} else {
			observability.RecordQuery("fallback")
		}

		c.JSON(http.StatusOK, datatypes.QueryResponse{
			Question:      ans.Question,
			Answer:        ans.Text,
			SourceContext: ans.SourceContext,
			Success:       ans.Success,
		})
	}
}
