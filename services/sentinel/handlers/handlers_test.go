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
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/Sentinel/services/llm"
	"github.com/AleutianAI/Sentinel/services/sentinel/agent"
	qsvc "github.com/AleutianAI/Sentinel/services/sentinel/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// Fakes
// =============================================================================

type fakeQuerier struct {
	queryFunc func(ctx context.Context, question string) (qsvc.Answer, error)
}

func (f *fakeQuerier) Query(ctx context.Context, question string) (qsvc.Answer, error) {
	return f.queryFunc(ctx, question)
}

type fakeSink struct {
	sent    []string
	sendErr error
}

func (f *fakeSink) Send(_ context.Context, message string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, message)
	return nil
}

type fakeResolver struct {
	res agent.Resolution
	err error
}

func (f *fakeResolver) Resolve(context.Context, string) (agent.Resolution, error) {
	return f.res, f.err
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

type fakeLLMClient struct {
	generateFunc func() (string, error)
	calls        atomic.Int64
}

func (f *fakeLLMClient) Model() string { return "fake-model" }

func (f *fakeLLMClient) Generate(context.Context, string, llm.GenerationParams) (string, error) {
	f.calls.Add(1)
	return f.generateFunc()
}

func performJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// =============================================================================
// Health
// =============================================================================

func TestHandleHealth_Healthy(t *testing.T) {
	client := &fakeLLMClient{generateFunc: func() (string, error) { return "Hi", nil }}
	checker := NewHealthChecker(&fakePinger{}, client)

	r := gin.New()
	r.GET("/health", HandleHealth(checker))

	w := performJSON(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "connected", status.Database)
	assert.Equal(t, "available", status.LLM)
}

func TestHandleHealth_UnhealthyWithoutDatabase(t *testing.T) {
	client := &fakeLLMClient{generateFunc: func() (string, error) { return "Hi", nil }}
	checker := NewHealthChecker(&fakePinger{err: errors.New("refused")}, client)

	r := gin.New()
	r.GET("/health", HandleHealth(checker))

	w := performJSON(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "disconnected", status.Database)
}

func TestHandleHealth_RateLimitedLLMStillHealthy(t *testing.T) {
	client := &fakeLLMClient{generateFunc: func() (string, error) {
		return "", &llm.RateLimitError{Backend: "gemini", Message: "quota"}
	}}
	checker := NewHealthChecker(&fakePinger{}, client)

	r := gin.New()
	r.GET("/health", HandleHealth(checker))

	w := performJSON(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "rate_limited", status.LLM)
}

func TestHandleHealth_DegradedWhenLLMDown(t *testing.T) {
	client := &fakeLLMClient{generateFunc: func() (string, error) {
		return "", errors.New("backend exploded")
	}}
	checker := NewHealthChecker(&fakePinger{}, client)

	r := gin.New()
	r.GET("/health", HandleHealth(checker))

	w := performJSON(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "degraded", status.Status)
}

func TestHandleHealth_CachesProbes(t *testing.T) {
	client := &fakeLLMClient{generateFunc: func() (string, error) { return "Hi", nil }}
	checker := NewHealthChecker(&fakePinger{}, client)

	r := gin.New()
	r.GET("/health", HandleHealth(checker))

	for i := 0; i < 5; i++ {
		performJSON(r, http.MethodGet, "/health", "")
	}
	assert.Equal(t, int64(1), client.calls.Load(), "repeated scrapes within the TTL must reuse the cached probe")
}

// =============================================================================
// Query
// =============================================================================

func TestHandleQuery_Success(t *testing.T) {
	querier := &fakeQuerier{queryFunc: func(_ context.Context, q string) (qsvc.Answer, error) {
		return qsvc.Answer{Question: q, Text: "rotate logs", SourceContext: "Source: disk.md", Success: true}, nil
	}}

	r := gin.New()
	r.POST("/v1/query", HandleQuery(querier))

	w := performJSON(r, http.MethodPost, "/v1/query", `{"question": "disk full?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "rotate logs")
	assert.Contains(t, w.Body.String(), `"success":true`)
}

func TestHandleQuery_MissingQuestion(t *testing.T) {
	querier := &fakeQuerier{queryFunc: func(context.Context, string) (qsvc.Answer, error) {
		t.Fatal("querier must not be called for invalid payloads")
		return qsvc.Answer{}, nil
	}}

	r := gin.New()
	r.POST("/v1/query", HandleQuery(querier))

	w := performJSON(r, http.MethodPost, "/v1/query", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleQuery_PipelineError(t *testing.T) {
	querier := &fakeQuerier{queryFunc: func(context.Context, string) (qsvc.Answer, error) {
		return qsvc.Answer{}, errors.New("embedding service down")
	}}

	r := gin.New()
	r.POST("/v1/query", HandleQuery(querier))

	w := performJSON(r, http.MethodPost, "/v1/query", `{"question": "q"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

// =============================================================================
// Alerts
// =============================================================================

func newAlertRouter(sink *fakeSink, resolver agent.AlertResolver, querier Querier) (*gin.Engine, *agent.State) {
	state := agent.NewState()
	dispatcher := agent.NewDispatcher(state, sink, resolver)
	r := gin.New()
	r.POST("/v1/alerts", HandleAlerts(dispatcher, querier))
	return r, state
}

func TestHandleAlerts_GrafanaWebhook(t *testing.T) {
	sink := &fakeSink{}
	resolver := &fakeResolver{res: agent.Resolution{Answer: "restart the pod", Found: true}}
	r, state := newAlertRouter(sink, resolver, nil)

	body := `{
		"status": "firing",
		"alerts": [{
			"labels": {"alertname": "PodCrashLoop", "service": "checkout"},
			"annotations": {"summary": "pod restarting"}
		}]
	}`
	w := performJSON(r, http.MethodPost, "/v1/alerts", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "PodCrashLoop")

	require.Len(t, sink.sent, 1)
	assert.Contains(t, sink.sent[0], "restart the pod")
	assert.Len(t, state.RecentAlerts(10), 1)
	assert.Len(t, state.RecentActions(10), 1)
}

func TestHandleAlerts_DirectQuestionAnsweredInline(t *testing.T) {
	sink := &fakeSink{}
	querier := &fakeQuerier{queryFunc: func(_ context.Context, q string) (qsvc.Answer, error) {
		return qsvc.Answer{Question: q, Text: "an answer", Success: true}, nil
	}}
	r, state := newAlertRouter(sink, nil, querier)

	w := performJSON(r, http.MethodPost, "/v1/alerts", `{"question": "how do I scale?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "an answer")

	// Direct questions are not alerts: no history, no notification.
	assert.Empty(t, sink.sent)
	assert.Empty(t, state.RecentAlerts(10))
}

func TestHandleAlerts_MalformedNotRecorded(t *testing.T) {
	sink := &fakeSink{}
	r, state := newAlertRouter(sink, nil, nil)

	w := performJSON(r, http.MethodPost, "/v1/alerts", `{"unexpected": true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, state.RecentAlerts(10), "malformed input must not enter history")
	assert.Empty(t, state.RecentActions(10))
	assert.Empty(t, sink.sent)
}

func TestHandleAlerts_TitleMessageForm(t *testing.T) {
	sink := &fakeSink{}
	resolver := &fakeResolver{res: agent.Resolution{Found: false}}
	r, state := newAlertRouter(sink, resolver, nil)

	w := performJSON(r, http.MethodPost, "/v1/alerts", `{"title": "DB Down", "message": "postgres refusing connections"}`)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, sink.sent, 1)
	assert.Contains(t, sink.sent[0], "Knowledge gap")
	alerts := state.RecentAlerts(10)
	require.Len(t, alerts, 1)
	assert.Equal(t, "DB Down", alerts[0].IssueType)
}

// =============================================================================
// Agent control
// =============================================================================

func newControlRouter() (*gin.Engine, *agent.Scheduler, *agent.State) {
	state := agent.NewState()
	sink := &fakeSink{}
	dispatcher := agent.NewDispatcher(state, sink, nil)
	scheduler := agent.NewScheduler(state, dispatcher, nil, nil, agent.Intervals{})

	r := gin.New()
	r.POST("/v1/agent/start", HandleAgentStart(context.Background(), scheduler))
	r.POST("/v1/agent/stop", HandleAgentStop(scheduler))
	r.GET("/v1/agent/status", HandleAgentStatus(state))
	r.GET("/v1/agent/actions", HandleAgentActions(state))
	return r, scheduler, state
}

func TestAgentControl_StartStatusStop(t *testing.T) {
	r, scheduler, _ := newControlRouter()
	defer scheduler.Stop()

	w := performJSON(r, http.MethodPost, "/v1/agent/start", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"monitoring_active":true`)
	assert.Contains(t, w.Body.String(), "autonomous_monitoring")

	w = performJSON(r, http.MethodGet, "/v1/agent/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"monitoring_active":true`)

	w = performJSON(r, http.MethodPost, "/v1/agent/stop", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"monitoring_active":false`)
	assert.False(t, scheduler.Running())
}

func TestAgentControl_StartOutlivesRequest(t *testing.T) {
	r, scheduler, state := newControlRouter()
	defer scheduler.Stop()

	// A live server, not ServeHTTP: net/http cancels the request context
	// once the handler returns, and the monitoring loop must not be
	// riding on it.
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/agent/start", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	time.Sleep(300 * time.Millisecond)
	assert.True(t, scheduler.Running(), "monitoring loop must keep running after the start request completes")
	assert.True(t, state.MonitoringActive())
}

func TestAgentControl_StartTwiceIsIdempotent(t *testing.T) {
	r, scheduler, _ := newControlRouter()
	defer scheduler.Stop()

	w1 := performJSON(r, http.MethodPost, "/v1/agent/start", "")
	w2 := performJSON(r, http.MethodPost, "/v1/agent/start", "")
	assert.Equal(t, http.StatusOK, w1.Code)
	assert.Equal(t, http.StatusOK, w2.Code)
	assert.True(t, scheduler.Running())
}

func TestAgentActions_ReturnsRecent(t *testing.T) {
	r, _, state := newControlRouter()

	for i := 0; i < 15; i++ {
		state.AppendAction(agent.ActionRecord{
			IssueType: "knowledge_base_empty",
			ActionID:  state.NewActionID(),
			Result:    agent.Succeeded("notified"),
		})
	}

	w := performJSON(r, http.MethodGet, "/v1/agent/actions", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		RecentActions []json.RawMessage `json:"recent_actions"`
		TotalActions  int               `json:"total_actions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.RecentActions, 10)
	assert.Equal(t, 15, resp.TotalActions)
}

// =============================================================================
// Notify and stats
// =============================================================================

func TestHandleNotify(t *testing.T) {
	sink := &fakeSink{}
	r := gin.New()
	r.POST("/v1/notify", HandleNotify(sink))

	w := performJSON(r, http.MethodPost, "/v1/notify", `{"message": "deploy finished"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, sink.sent, 1)
	assert.Equal(t, "deploy finished", sink.sent[0])
}

func TestHandleNotify_SinkFailure(t *testing.T) {
	sink := &fakeSink{sendErr: errors.New("webhook down")}
	r := gin.New()
	r.POST("/v1/notify", HandleNotify(sink))

	w := performJSON(r, http.MethodPost, "/v1/notify", `{"message": "x"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

type fakeKnowledgeStats struct {
	count, sources int64
	err            error
}

func (f *fakeKnowledgeStats) Count(context.Context) (int64, error)           { return f.count, f.err }
func (f *fakeKnowledgeStats) DistinctSources(context.Context) (int64, error) { return f.sources, f.err }

func TestHandleStats(t *testing.T) {
	r := gin.New()
	r.GET("/v1/stats", HandleStats(&fakeKnowledgeStats{count: 128, sources: 7}, "all-mpnet-base-v2", "gemini-2.5-flash"))

	w := performJSON(r, http.MethodGet, "/v1/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"chunk_count":128`)
	assert.Contains(t, w.Body.String(), `"distinct_sources":7`)
	assert.Contains(t, w.Body.String(), "gemini-2.5-flash")
}

func TestHandleStats_StoreDown(t *testing.T) {
	r := gin.New()
	r.GET("/v1/stats", HandleStats(&fakeKnowledgeStats{err: errors.New("unreachable")}, "m", "g"))

	w := performJSON(r, http.MethodGet, "/v1/stats", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
