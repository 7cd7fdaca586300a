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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/Sentinel/services/sentinel/agent"
	"github.com/AleutianAI/Sentinel/services/sentinel/datatypes"
)

// HandleNotify pushes a message straight to the notification sink,
// bypassing the agent. Used for smoke-testing the webhook wiring.
//
// POST /v1/notify
func HandleNotify(sink agent.Sink) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.NotifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "message is required"})
			return
		}

		if err := sink.Send(c.Request.Context(), req.Message); err != nil {
			slog.Error("Direct notification failed", "error", err)
			c.JSON(http.StatusBadGateway, datatypes.ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, datatypes.NotifyResponse{Status: "notification sent"})
	}
}
