// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api assembles the Spendo HTTP service: router, middleware,
// tracing, metrics and the background session cleanup.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
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

	"github.com/spendoapp/spendo/services/api/datatypes"
	"github.com/spendoapp/spendo/services/api/handlers"
	"github.com/spendoapp/spendo/services/api/middleware"
	"github.com/spendoapp/spendo/services/api/observability"
	"github.com/spendoapp/spendo/services/api/routes"
	"github.com/spendoapp/spendo/services/api/ttl"
	"github.com/spendoapp/spendo/services/store"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service is the runnable HTTP API.
type Service interface {
	// Run listens on the configured port and serves until ctx is
	// cancelled, then shuts down gracefully.
	Run(ctx context.Context) error

	// Serve is Run on an existing listener.
	Serve(ctx context.Context, ln net.Listener) error

	// Router exposes the gin engine for tests.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds service settings.
type Config struct {
	Host string
	Port int

	// GinMode is "debug", "release" or "test". Empty leaves gin's default.
	GinMode string

	// ServiceName labels traces. Default: "spendo-api".
	ServiceName string

	// OTelEndpoint is the OTLP gRPC collector. Empty disables tracing.
	OTelEndpoint string

	Session     handlers.SessionConfig
	KeepAlive   time.Duration
	FrontendDir string

	RateLimit middleware.RateLimitConfig

	TTLEnabled bool
	TTL        ttl.SchedulerConfig

	// ShutdownTimeout bounds graceful shutdown. Default: 10s.
	ShutdownTimeout time.Duration
}

// Dependencies are the collaborators built by the caller.
type Dependencies struct {
	Store    *store.Store
	Chat     handlers.ChatProcessor
	Sessions handlers.SessionCreator
}

// =============================================================================
// Implementation
// =============================================================================

type service struct {
	config        Config
	deps          Dependencies
	router        *gin.Engine
	metrics       *observability.Metrics
	limiter       *middleware.RateLimiter
	scheduler     *ttl.Scheduler
	tracerCleanup func(context.Context)
}

// New builds the service.
//
// # Inputs
//
//   - cfg: Zero fields take defaults.
//   - deps: Store is required. Chat and Sessions are optional.
//
// # Outputs
//
//   - Service: Ready to Run.
//   - error: Non-nil if the store is missing or tracing cannot be set up.
func New(cfg Config, deps Dependencies) (Service, error) {
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	s := &service{
		config:  applyConfigDefaults(cfg),
		deps:    deps,
		metrics: observability.NewMetrics(),
	}

	if s.config.OTelEndpoint != "" {
		cleanup, err := s.initTracer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	} else {
		slog.Info("OTel endpoint not configured, tracing disabled")
	}

	if s.config.RateLimit.RequestsPerSecond > 0 {
		s.limiter = middleware.NewRateLimiter(s.config.RateLimit)
		s.limiter.OnRejected(s.metrics.RecordRateLimited)
	}

	if s.config.TTLEnabled {
		s.scheduler = ttl.NewScheduler(deps.Store, s.metrics, s.config.TTL)
	}

	datatypes.RegisterValidators()
	s.initRouter()
	return s, nil
}

func (s *service) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.cleanup()
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *service) Serve(ctx context.Context, ln net.Listener) error {
	defer s.cleanup()

	if s.scheduler != nil {
		if err := s.scheduler.Start(ctx); err != nil {
			slog.Warn("session cleanup scheduler failed to start", "error", err)
		}
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting Spendo API server", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down Spendo API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Initialization Helpers
// =============================================================================

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "spendo-api"
	}
	if cfg.Session.TTL <= 0 {
		cfg.Session.TTL = handlers.DefaultSessionTTL
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = handlers.DefaultKeepAlive
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return cfg
}

func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(s.config.ServiceName)))
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

	slog.Info("OTLP tracing enabled", "endpoint", s.config.OTelEndpoint)

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceProvider.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown tracer provider", "error", err)
		}
		_ = conn.Close()
	}
	return cleanup, nil
}

func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.New()
	s.router.Use(gin.Recovery(), requestLogger(), s.metrics.Middleware())
	if s.tracerCleanup != nil {
		s.router.Use(otelgin.Middleware(s.config.ServiceName))
	}

	routes.SetupRoutes(s.router, routes.Deps{
		Store:       s.deps.Store,
		Chat:        s.deps.Chat,
		Sessions:    s.deps.Sessions,
		Metrics:     s.metrics,
		RateLimiter: s.limiter,
		Session:     s.config.Session,
		KeepAlive:   s.config.KeepAlive,
		FrontendDir: s.config.FrontendDir,
	})
}

func (s *service) cleanup() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// requestLogger logs one structured line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

// Compile-time interface check
var _ Service = (*service)(nil)
