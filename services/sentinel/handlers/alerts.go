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
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/Sentinel/services/sentinel/agent"
	"github.com/AleutianAI/Sentinel/services/sentinel/datatypes"
	"github.com/AleutianAI/Sentinel/services/sentinel/observability"
)

// maxAlertBody bounds inbound alert payloads. Grafana webhooks are small;
// anything bigger is garbage.
const maxAlertBody = 1 << 20

// AlertProcessor is the slice of the dispatcher the alerts handler needs.
type AlertProcessor interface {
	ProcessAlert(c *gin.Context, alert agent.InboundAlert) agent.ActionRecord
}

// dispatcherAdapter lets the handler depend on the concrete dispatcher
// without re-exporting its full surface.
type dispatcherAdapter struct {
	d *agent.Dispatcher
}

func (a dispatcherAdapter) ProcessAlert(c *gin.Context, alert agent.InboundAlert) agent.ActionRecord {
	return a.d.ProcessAlert(c.Request.Context(), alert)
}

// HandleAlerts ingests alerts from Grafana or any webhook-speaking system.
//
// # Description
//
// Accepts three payload shapes (direct question, Grafana firing webhook,
// title/message alert) via datatypes.ParseInbound. Direct questions are
// answered synchronously like /v1/query. Alerts flow through the agent's
// dispatcher: history append, confidence gate, RAG resolution, Slack
// notification, action record. Malformed payloads get a 400 and are never
// recorded in agent history.
//
// POST /v1/alerts
func HandleAlerts(dispatcher *agent.Dispatcher, querier Querier) gin.HandlerFunc {
	return handleAlerts(dispatcherAdapter{d: dispatcher}, querier)
}

func handleAlerts(processor AlertProcessor, querier Querier) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxAlertBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "failed to read request body"})
			return
		}

		inbound, err := datatypes.ParseInbound(body)
		if err != nil {
			slog.Warn("Rejected malformed alert payload", "error", err)
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		if inbound.Kind == datatypes.KindQuestion {
			ans, err := querier.Query(c.Request.Context(), inbound.Question)
			if err != nil {
				c.JSON(http.StatusBadGateway, datatypes.ErrorResponse{Error: "query pipeline unavailable"})
				return
			}
			c.JSON(http.StatusOK, datatypes.QueryResponse{
				Question:      ans.Question,
				Answer:        ans.Text,
				SourceContext: ans.SourceContext,
				Success:       ans.Success,
			})
			return
		}

		slog.Info("Processing inbound alert",
			"issue_type", inbound.Alert.IssueType,
			"service", inbound.Alert.Service,
		)
		observability.RecordAlert(inbound.Alert.IssueType)

		rec := processor.ProcessAlert(c, inbound.Alert)
		observability.RecordAction(rec.IssueType, rec.Result.Success())

		c.JSON(http.StatusOK, gin.H{
			"status":      "alert processed",
			"alert_title": inbound.Alert.Title,
			"action_id":   rec.ActionID,
			"success":     rec.Result.Success(),
		})
	}
}
