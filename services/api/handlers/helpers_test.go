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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spendoapp/spendo/services/api/datatypes"
	"github.com/spendoapp/spendo/services/api/middleware"
	"github.com/spendoapp/spendo/services/store"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	gin.SetMode(gin.TestMode)
	datatypes.RegisterValidators()
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{
		Path:         filepath.Join(t.TempDir(), "spendo.db"),
		PasswordCost: bcrypt.MinCost,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createUser(t *testing.T, s *store.Store, username string) *store.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), store.NewUser{
		Username: username,
		Email:    username + "@example.com",
		Password: "password",
	})
	require.NoError(t, err)
	return u
}

// loginToken opens a web session for u and returns its token.
func loginToken(t *testing.T, s *store.Store, u *store.User) string {
	t.Helper()
	sess, err := s.CreateWebSession(context.Background(), u.ID, DefaultSessionTTL)
	require.NoError(t, err)
	return sess.Token
}

// createTestRouter returns a router with session authentication and a
// hook to register the routes under test.
func createTestRouter(s *store.Store, register func(r *gin.RouterGroup)) *gin.Engine {
	router := gin.New()
	api := router.Group("/api", middleware.Authenticate(s))
	register(api)
	return router
}

func performRequest(router http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewBuffer(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
