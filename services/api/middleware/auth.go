// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the Spendo API.
//
// # Authentication Flow
//
//	Request → Authenticate → [RequireAuth] → [RateLimiter] → Handler
//	              ↓                ↓
//	        attach user      401 if anonymous
//
// Authenticate never rejects a request. It resolves the web session from
// the "sessionid" cookie or an "Authorization: Bearer <token>" header and
// attaches the user to the gin context. Routes that need a user add
// RequireAuth.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/spendoapp/spendo/services/store"
)

// SessionCookieName is the cookie carrying the web session token.
const SessionCookieName = "sessionid"

const (
	userKey  = "spendo_user"
	tokenKey = "spendo_session_token"
)

// SessionStore resolves session tokens to users.
type SessionStore interface {
	LookupWebSession(ctx context.Context, token string) (*store.WebSession, error)
	GetUserByID(ctx context.Context, id int64) (*store.User, error)
}

// =============================================================================
// Context Helpers
// =============================================================================

// SetUser stores the authenticated user in the gin context.
func SetUser(c *gin.Context, user *store.User) {
	c.Set(userKey, user)
}

// CurrentUser returns the authenticated user or nil.
func CurrentUser(c *gin.Context) *store.User {
	if v, exists := c.Get(userKey); exists {
		if user, ok := v.(*store.User); ok {
			return user
		}
	}
	return nil
}

// SessionToken returns the token that authenticated the request.
func SessionToken(c *gin.Context) string {
	return c.GetString(tokenKey)
}

// =============================================================================
// Middleware
// =============================================================================

// Authenticate attaches the session's user to the context.
//
// # Description
//
// Missing, unknown and expired tokens leave the request anonymous.
// Inactive users are treated as anonymous. Store failures other than
// "not found" are logged and also leave the request anonymous.
func Authenticate(sessions SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		sess, err := sessions.LookupWebSession(ctx, token)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				slog.Warn("session lookup failed", "error", err)
			}
			c.Next()
			return
		}

		user, err := sessions.GetUserByID(ctx, sess.UserID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				slog.Warn("session user lookup failed", "user_id", sess.UserID, "error", err)
			}
			c.Next()
			return
		}
		if !user.IsActive {
			c.Next()
			return
		}

		SetUser(c, user)
		c.Set(tokenKey, token)
		c.Next()
	}
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"detail": "Authentication credentials were not provided.",
			})
			return
		}
		c.Next()
	}
}

// extractToken prefers the bearer header over the cookie.
func extractToken(c *gin.Context) string {
	if token := extractBearerToken(c); token != "" {
		return token
	}
	cookie, err := c.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie)
}

func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	// Expected format: "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
