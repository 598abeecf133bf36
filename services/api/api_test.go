// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendoapp/spendo/services/api/middleware"
	"github.com/spendoapp/spendo/services/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{
		Path:         filepath.Join(t.TempDir(), "spendo.db"),
		PasswordCost: 4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestApplyConfigDefaults_AllDefaults(t *testing.T) {
	result := applyConfigDefaults(Config{})

	assert.Equal(t, 8000, result.Port)
	assert.Equal(t, "spendo-api", result.ServiceName)
	assert.Equal(t, 10*time.Second, result.ShutdownTimeout)
	assert.Positive(t, result.Session.TTL)
	assert.Positive(t, result.KeepAlive)
	assert.Empty(t, result.OTelEndpoint, "tracing stays off unless configured")
}

func TestApplyConfigDefaults_PreservesCustomValues(t *testing.T) {
	cfg := Config{Port: 9090, ServiceName: "spendo-staging", ShutdownTimeout: time.Second}

	result := applyConfigDefaults(cfg)

	assert.Equal(t, 9090, result.Port)
	assert.Equal(t, "spendo-staging", result.ServiceName)
	assert.Equal(t, time.Second, result.ShutdownTimeout)
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(Config{}, Dependencies{})
	assert.Error(t, err)
}

func TestNew_RegistersRoutes(t *testing.T) {
	svc, err := New(Config{}, Dependencies{Store: newTestStore(t)})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	svc.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "spendo_http_requests_total")
}

func TestNew_RateLimitsChatRoutes(t *testing.T) {
	cfg := Config{RateLimit: middleware.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}}
	svc, err := New(cfg, Dependencies{Store: newTestStore(t)})
	require.NoError(t, err)

	send := func() int {
		w := httptest.NewRecorder()
		svc.Router().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/chatkit/session", nil))
		return w.Code
	}
	assert.Equal(t, http.StatusServiceUnavailable, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	svc, err := New(Config{TTLEnabled: true}, Dependencies{Store: newTestStore(t)})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx, ln) }()

	url := fmt.Sprintf("http://%s/health", ln.Addr().String())
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
}
