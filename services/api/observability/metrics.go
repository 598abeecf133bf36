// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the Spendo API.
//
// # Metrics Exposed
//
//   - spendo_http_requests_total: Requests by route, method and status
//   - spendo_http_request_duration_seconds: Request latency histogram
//   - spendo_chat_requests_total: Chat protocol requests by type and outcome
//   - spendo_chat_stream_events_total: Streamed chat events by event type
//   - spendo_chat_active_streams: Currently open chat streams by transport
//   - spendo_chat_stream_duration_seconds: Chat stream duration histogram
//   - spendo_chat_client_disconnects_total: Streams abandoned by the client
//   - spendo_ratelimit_rejections_total: Requests refused by the rate limiter
//   - spendo_ttl_deleted_total: Rows removed by the TTL scheduler
//
// # Thread Safety
//
// All Prometheus metric types are thread-safe.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// =============================================================================
// Constants
// =============================================================================

const metricsNamespace = "spendo"

const (
	httpSubsystem = "http"
	chatSubsystem = "chat"
)

// Transport labels a chat stream's connection type.
type Transport string

const (
	TransportSSE       Transport = "sse"
	TransportWebSocket Transport = "websocket"
)

// Outcome labels the result of a chat request.
type Outcome string

const (
	OutcomeStream Outcome = "stream"
	OutcomeJSON   Outcome = "json"
	OutcomeError  Outcome = "error"
)

// =============================================================================
// Metrics
// =============================================================================

// Metrics holds every collector the API exports.
//
// # Description
//
// Collectors are registered on the Registerer passed to NewMetrics. The
// server uses its own registry so tests and multiple instances never
// collide on the global default registry.
type Metrics struct {
	registry *prometheus.Registry

	// RequestsTotal counts HTTP requests.
	// Labels: route, method, status
	RequestsTotal *prometheus.CounterVec

	// RequestDurationSeconds tracks HTTP latency.
	// Labels: route, method
	RequestDurationSeconds *prometheus.HistogramVec

	// ChatRequestsTotal counts chat protocol requests.
	// Labels: type, outcome
	ChatRequestsTotal *prometheus.CounterVec

	// ChatStreamEventsTotal counts streamed events.
	// Labels: event
	ChatStreamEventsTotal *prometheus.CounterVec

	// ChatActiveStreams tracks open streams.
	// Labels: transport
	ChatActiveStreams *prometheus.GaugeVec

	// ChatStreamDurationSeconds tracks stream duration.
	// Labels: transport
	ChatStreamDurationSeconds *prometheus.HistogramVec

	// ChatClientDisconnectsTotal counts streams the client abandoned.
	// Labels: transport
	ChatClientDisconnectsTotal *prometheus.CounterVec

	// RateLimitRejectionsTotal counts refused requests.
	// Labels: route
	RateLimitRejectionsTotal *prometheus.CounterVec

	// TTLDeletedTotal counts rows removed by the cleanup scheduler.
	// Labels: kind
	TTLDeletedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on a fresh registry,
// which also carries the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := newMetrics(reg)
	m.registry = reg
	return m
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "requests_total",
				Help:      "Total HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),

		RequestDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"route", "method"},
		),

		ChatRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "requests_total",
				Help:      "Chat protocol requests by type and outcome",
			},
			[]string{"type", "outcome"},
		),

		ChatStreamEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "stream_events_total",
				Help:      "Streamed chat events by event type",
			},
			[]string{"event"},
		),

		ChatActiveStreams: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "active_streams",
				Help:      "Number of currently open chat streams",
			},
			[]string{"transport"},
		),

		ChatStreamDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Chat stream duration in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"transport"},
		),

		ChatClientDisconnectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Chat streams abandoned by the client",
			},
			[]string{"transport"},
		),

		RateLimitRejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "ratelimit_rejections_total",
				Help:      "Requests refused by the rate limiter",
			},
			[]string{"route"},
		),

		TTLDeletedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "ttl_deleted_total",
				Help:      "Rows removed by the TTL cleanup scheduler",
			},
			[]string{"kind"},
		),
	}
}

// =============================================================================
// Recording Methods
// =============================================================================

func (m *Metrics) RecordChatRequest(requestType string, outcome Outcome) {
	m.ChatRequestsTotal.WithLabelValues(requestType, string(outcome)).Inc()
}

func (m *Metrics) RecordStreamEvent(event string) {
	m.ChatStreamEventsTotal.WithLabelValues(event).Inc()
}

// StreamStarted increments the active gauge and returns a func that
// decrements it and records the duration.
func (m *Metrics) StreamStarted(transport Transport) func() {
	start := time.Now()
	m.ChatActiveStreams.WithLabelValues(string(transport)).Inc()
	return func() {
		m.ChatActiveStreams.WithLabelValues(string(transport)).Dec()
		m.ChatStreamDurationSeconds.WithLabelValues(string(transport)).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) RecordClientDisconnect(transport Transport) {
	m.ChatClientDisconnectsTotal.WithLabelValues(string(transport)).Inc()
}

func (m *Metrics) RecordRateLimited(route string) {
	m.RateLimitRejectionsTotal.WithLabelValues(route).Inc()
}

func (m *Metrics) RecordTTLDeleted(kind string, n int) {
	if n <= 0 {
		return
	}
	m.TTLDeletedTotal.WithLabelValues(kind).Add(float64(n))
}

// =============================================================================
// HTTP Integration
// =============================================================================

// Middleware records request count and latency. Unmatched routes are
// labelled "unmatched" to keep cardinality bounded.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDurationSeconds.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
