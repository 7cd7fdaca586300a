// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sentinel provides the core service container for Sentinel.
//
// This package contains the main Service type that coordinates all
// components: HTTP routing, the RAG query pipeline, the autonomous
// monitoring agent, the knowledge store, the notification sink, and the
// observability infrastructure.
//
// # Usage
//
//	cfg := sentinel.Config{Port: 8000}
//	svc, err := sentinel.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package sentinel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/Sentinel/services/embedding"
	"github.com/AleutianAI/Sentinel/services/knowledge"
	"github.com/AleutianAI/Sentinel/services/llm"
	"github.com/AleutianAI/Sentinel/services/notify"
	"github.com/AleutianAI/Sentinel/services/sentinel/agent"
	"github.com/AleutianAI/Sentinel/services/sentinel/handlers"
	"github.com/AleutianAI/Sentinel/services/sentinel/observability"
	"github.com/AleutianAI/Sentinel/services/sentinel/routes"
	qsvc "github.com/AleutianAI/Sentinel/services/sentinel/services"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the Sentinel service.
//
// # Description
//
// Service abstracts the lifecycle, enabling testing and alternative
// implementations. Run() blocks and should only be called once per
// instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine

	// State returns the shared agent state for inspection.
	State() *agent.State
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds Sentinel configuration options.
//
// # Description
//
// Centralizes all configuration for the service. Values can be populated
// from environment variables (see cmd/sentinel), config files, or
// programmatically for testing. All fields have defaults applied by New().
type Config struct {
	// Port is the HTTP server port. Default: 8000.
	Port int

	// LLMBackend specifies the LLM provider.
	// Valid values: "gemini", "openai". Default: "gemini".
	LLMBackend string

	// EmbeddingServiceURL is the HTTP embedding service endpoint.
	// Default: "http://sentinel-embedder:8100/embed".
	EmbeddingServiceURL string

	// Knowledge holds the TiDB knowledge store connection settings.
	// If Host is empty, the store is disabled and the service runs in
	// lightweight mode (queries fail, agent still monitors).
	Knowledge knowledge.Config

	// SlackWebhookURL is the notification sink endpoint. Empty disables
	// outbound notifications (sends fail and are recorded as failures).
	SlackWebhookURL string

	// HealthProbeURL is what the agent's health detector probes.
	// Default: "http://localhost:<Port>/health".
	HealthProbeURL string

	// Intervals are the monitoring cadences. Zero fields use the
	// production defaults (30s / 5m / 15m).
	Intervals agent.Intervals

	// AutoStartMonitoring starts the agent loop at boot instead of
	// waiting for POST /v1/agent/start. Default: false.
	AutoStartMonitoring bool

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "sentinel-otel-collector:4317".
	OTelEndpoint string

	// DisableMetrics skips Prometheus metric registration. Metrics are
	// on by default; promauto panics on duplicate registration, so a
	// process that constructs more than one service must disable them
	// for all but the first.
	DisableMetrics bool

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test". Default: GIN_MODE env.
	GinMode string

	// EmbeddingModelName is reported on the stats endpoint.
	// Default: "all-mpnet-base-v2".
	EmbeddingModelName string
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns; mutable runtime state lives in the agent State.
type service struct {
	config Config
	// baseCtx outlives any request and is what the monitoring loop runs
	// under; baseCancel fires in cleanup().
	baseCtx       context.Context
	baseCancel    context.CancelFunc
	router        *gin.Engine
	llmClient     llm.LLMClient
	store         *knowledge.Store
	sink          *notify.SlackWebhook
	state         *agent.State
	scheduler     *agent.Scheduler
	dispatcher    *agent.Dispatcher
	querySvc      *qsvc.QueryService
	tracerCleanup func(context.Context)
}

var _ Service = (*service)(nil)

// =============================================================================
// Constructor
// =============================================================================

// New creates a new Sentinel Service with the given configuration.
//
// # Description
//
// Initializes all components in dependency order:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing and Prometheus metrics
//  3. Opens the knowledge store (optional; lightweight mode without it)
//  4. Creates the LLM client for the configured backend
//  5. Wires the query service, notification sink, and agent core
//  6. Sets up HTTP routes
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run service.
//   - error: Non-nil if a required component fails to initialize.
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}
	s.baseCtx, s.baseCancel = context.WithCancel(context.Background())

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	if !s.config.DisableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics")
	}

	// Knowledge store is optional: without it the agent still monitors
	// and the health detector reports the store unreachable.
	if err := s.initKnowledge(); err != nil {
		slog.Warn("Knowledge store initialization failed, running in lightweight mode",
			"error", err)
	}

	if err := s.initLLMClient(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	s.initAgent()
	s.initRouter()

	if s.config.AutoStartMonitoring {
		if err := s.scheduler.Start(s.baseCtx); err != nil {
			s.cleanup()
			return nil, fmt.Errorf("failed to start monitoring: %w", err)
		}
		slog.Info("Autonomous monitoring started at boot")
	}

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting Sentinel server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// State returns the shared agent state.
func (s *service) State() *agent.State {
	return s.state
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "gemini"
	}
	if cfg.EmbeddingServiceURL == "" {
		cfg.EmbeddingServiceURL = "http://sentinel-embedder:8100/embed"
	}
	if cfg.HealthProbeURL == "" {
		cfg.HealthProbeURL = fmt.Sprintf("http://localhost:%d/health", cfg.Port)
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "sentinel-otel-collector:4317"
	}
	if cfg.EmbeddingModelName == "" {
		cfg.EmbeddingModelName = "all-mpnet-base-v2"
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Limitations
//
//   - Uses insecure gRPC connection (appropriate for internal networks)
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("sentinel-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initKnowledge opens the TiDB knowledge store if configured.
func (s *service) initKnowledge() error {
	if s.config.Knowledge.Host == "" {
		slog.Info("Knowledge store not configured, running in lightweight mode")
		return nil
	}

	store, err := knowledge.Open(s.config.Knowledge)
	if err != nil {
		return err
	}
	s.store = store
	return nil
}

// initLLMClient creates the LLM client for the configured backend.
func (s *service) initLLMClient() error {
	var err error

	switch s.config.LLMBackend {
	case "gemini":
		s.llmClient, err = llm.NewGeminiClient()
		slog.Info("Using Gemini LLM backend")
	case "openai":
		s.llmClient, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI LLM backend")
	default:
		slog.Warn("Unknown LLM backend, defaulting to gemini", "backend", s.config.LLMBackend)
		s.llmClient, err = llm.NewGeminiClient()
	}

	return err
}

// initAgent wires the agent core: state, dispatcher, scheduler, and the
// query service the dispatcher resolves alerts with.
func (s *service) initAgent() {
	s.sink = notify.NewSlackWebhook(s.config.SlackWebhookURL)
	s.state = agent.NewState()

	var resolver agent.AlertResolver
	if s.store != nil {
		embedder := embedding.NewClient(s.config.EmbeddingServiceURL)
		s.querySvc = qsvc.NewQueryService(embedder, s.store, s.llmClient)
		resolver = s.querySvc
	}

	s.dispatcher = agent.NewDispatcher(s.state, s.sink, resolver)

	var counter agent.KnowledgeCounter
	if s.store != nil {
		counter = s.store
	}
	prober := agent.NewHTTPProber(s.config.HealthProbeURL)
	s.scheduler = agent.NewScheduler(s.state, s.dispatcher, counter, prober, s.config.Intervals)
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("sentinel-service"))

	var stats handlers.KnowledgeStats
	var pinger handlers.DBPinger
	if s.store != nil {
		stats = s.store
		pinger = s.store
	}

	var querier handlers.Querier
	if s.querySvc != nil {
		querier = s.querySvc
	}

	routes.SetupRoutes(s.router, routes.Deps{
		BaseCtx:         s.baseCtx,
		Health:          handlers.NewHealthChecker(pinger, s.llmClient),
		Querier:         querier,
		Dispatcher:      s.dispatcher,
		Scheduler:       s.scheduler,
		State:           s.state,
		Sink:            s.sink,
		Stats:           stats,
		EmbeddingModel:  s.config.EmbeddingModelName,
		GenerationModel: s.llmClient.Model(),
	})
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.baseCancel != nil {
		s.baseCancel()
	}
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Warn("Knowledge store close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}
