// Copyright (C) 2025 The Spendo Authors
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
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendoapp/spendo/pkg/extensions"
	"github.com/spendoapp/spendo/services/api/datatypes"
	"github.com/spendoapp/spendo/services/api/middleware"
	"github.com/spendoapp/spendo/services/store"
)

func authRouter(s *store.Store) *gin.Engine {
	return createTestRouter(s, func(api *gin.RouterGroup) {
		api.POST("/login", HandleLogin(s, SessionConfig{}))
		api.POST("/logout", HandleLogout(s, SessionConfig{}))
		api.GET("/user/me", middleware.RequireAuth(), HandleMe())
	})
}

func TestHandleLogin_Success(t *testing.T) {
	s := newTestStore(t)
	u := createUser(t, s, "ada")
	router := authRouter(s)

	w := performRequest(router, http.MethodPost, "/api/login",
		datatypes.LoginRequest{Username: "ada", Password: "password"}, "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody[datatypes.LoginResponse](t, w)
	assert.Equal(t, "Logged in", resp.Detail)
	assert.NotEmpty(t, resp.Token)

	cookie := w.Header().Get("Set-Cookie")
	assert.True(t, strings.HasPrefix(cookie, middleware.SessionCookieName+"="+resp.Token), cookie)
	assert.Contains(t, cookie, "HttpOnly")

	sessions, err := s.ListActiveChatKitSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, u.ID, sessions[0].UserID)
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	s := newTestStore(t)
	createUser(t, s, "ada")
	router := authRouter(s)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "ada", "nope"},
		{"unknown user", "grace", "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(router, http.MethodPost, "/api/login",
				datatypes.LoginRequest{Username: tt.username, Password: tt.password}, "")
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.JSONEq(t, `{"detail":"Invalid credentials"}`, w.Body.String())
		})
	}
}

func TestHandleLogin_MalformedBody(t *testing.T) {
	s := newTestStore(t)
	router := authRouter(s)

	w := performRequest(router, http.MethodPost, "/api/login", `{"username":"ada"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleMe(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	admin, err := s.CreateUser(ctx, store.NewUser{
		Username: "root", Email: "root@example.com", Password: "password", IsStaff: true,
	})
	require.NoError(t, err)
	plain := createUser(t, s, "ada")
	router := authRouter(s)

	w := performRequest(router, http.MethodGet, "/api/user/me", nil, loginToken(t, s, admin))
	require.Equal(t, http.StatusOK, w.Code)
	me := decodeBody[datatypes.MeResponse](t, w)
	assert.Equal(t, "root", me.Username)
	assert.True(t, me.IsStaff)
	assert.Equal(t, "admin", me.Role)

	w = performRequest(router, http.MethodGet, "/api/user/me", nil, loginToken(t, s, plain))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user", decodeBody[datatypes.MeResponse](t, w).Role)
}

func TestHandleMe_Anonymous(t *testing.T) {
	s := newTestStore(t)
	router := authRouter(s)

	w := performRequest(router, http.MethodGet, "/api/user/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleLogout_EndsSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "ada")
	router := authRouter(s)

	w := performRequest(router, http.MethodPost, "/api/login",
		datatypes.LoginRequest{Username: "ada", Password: "password"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	token := decodeBody[datatypes.LoginResponse](t, w).Token

	w = performRequest(router, http.MethodPost, "/api/logout", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"detail":"Logged out"}`, w.Body.String())

	_, err := s.LookupWebSession(ctx, token)
	assert.ErrorIs(t, err, store.ErrNotFound)

	sessions, err := s.ListActiveChatKitSessions(ctx)
	require.NoError(t, err)
	for _, sess := range sessions {
		assert.NotEqual(t, u.ID, sess.UserID)
	}

	w = performRequest(router, http.MethodGet, "/api/user/me", nil, token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleLogout_Anonymous(t *testing.T) {
	s := newTestStore(t)
	router := authRouter(s)

	w := performRequest(router, http.MethodPost, "/api/logout", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"detail":"Logged out"}`, w.Body.String())
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []extensions.AuditEvent
}

func (r *recordingAuditor) Log(_ context.Context, e extensions.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func TestAuth_RecordsAuditEvents(t *testing.T) {
	s := newTestStore(t)
	u := createUser(t, s, "ada")
	auditor := &recordingAuditor{}
	cfg := SessionConfig{Audit: auditor}
	router := createTestRouter(s, func(api *gin.RouterGroup) {
		api.POST("/login", HandleLogin(s, cfg))
		api.POST("/logout", HandleLogout(s, cfg))
	})

	w := performRequest(router, http.MethodPost, "/api/login",
		datatypes.LoginRequest{Username: "ada", Password: "nope"}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = performRequest(router, http.MethodPost, "/api/login",
		datatypes.LoginRequest{Username: "ada", Password: "password"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	token := decodeBody[datatypes.LoginResponse](t, w).Token

	w = performRequest(router, http.MethodPost, "/api/logout", nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, auditor.events, 3)
	assert.Equal(t, extensions.EventLoginFailed, auditor.events[0].EventType)
	assert.Equal(t, extensions.OutcomeFailure, auditor.events[0].Outcome)
	assert.Equal(t, "ada", auditor.events[0].Username)
	assert.Zero(t, auditor.events[0].UserID)

	assert.Equal(t, extensions.EventLogin, auditor.events[1].EventType)
	assert.Equal(t, u.ID, auditor.events[1].UserID)

	assert.Equal(t, extensions.EventLogout, auditor.events[2].EventType)
	assert.Equal(t, u.ID, auditor.events[2].UserID)
	for _, e := range auditor.events {
		assert.NotContains(t, e.Metadata, "password")
	}
}
