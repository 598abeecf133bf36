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
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/spendoapp/spendo/pkg/extensions"
	"github.com/spendoapp/spendo/services/api/datatypes"
	"github.com/spendoapp/spendo/services/api/middleware"
	"github.com/spendoapp/spendo/services/store"
)

// SessionConfig controls the web session cookie.
type SessionConfig struct {
	// TTL is how long a login stays valid.
	TTL time.Duration

	// SecureCookie sets the Secure attribute. Enable behind TLS.
	SecureCookie bool

	// Audit receives login and logout events. nil discards them.
	Audit extensions.AuditLogger
}

// audit records event and logs, but never surfaces, a sink failure.
func (cfg SessionConfig) audit(c *gin.Context, event extensions.AuditEvent) {
	if cfg.Audit == nil {
		return
	}
	event.ClientIP = c.ClientIP()
	if err := cfg.Audit.Log(c.Request.Context(), event); err != nil {
		slog.Warn("audit log failed", "event_type", event.EventType, "error", err)
	}
}

// DefaultSessionTTL matches a two-week browser session.
const DefaultSessionTTL = 14 * 24 * time.Hour

// HandleLogin checks credentials and opens a web session.
//
// # Description
//
// On success the session token is set as the "sessionid" cookie and also
// returned in the body for bearer clients. The user's chat session is
// touched so the chat widget can find the logged-in user.
//
// # Outputs
//
//   - 200 {"detail":"Logged in","token":...,"expires_at":...}
//   - 400 for a malformed body
//   - 401 {"detail":"Invalid credentials"}
func HandleLogin(s *store.Store, cfg SessionConfig) gin.HandlerFunc {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}
	return func(c *gin.Context) {
		var req datatypes.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		ctx := c.Request.Context()
		user, err := s.Authenticate(ctx, req.Username, req.Password)
		if err != nil {
			if errors.Is(err, store.ErrInvalidCredentials) {
				cfg.audit(c, extensions.AuditEvent{
					EventType: extensions.EventLoginFailed,
					Username:  req.Username,
					Outcome:   extensions.OutcomeFailure,
				})
				c.JSON(http.StatusUnauthorized, datatypes.DetailResponse{Detail: "Invalid credentials"})
				return
			}
			respondStoreError(c, err, "User")
			return
		}

		sess, err := s.CreateWebSession(ctx, user.ID, cfg.TTL)
		if err != nil {
			respondStoreError(c, err, "Session")
			return
		}
		if err := s.TouchChatKitUserSession(ctx, user.ID); err != nil {
			slog.Warn("touch chat session failed", "user_id", user.ID, "error", err)
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(middleware.SessionCookieName, sess.Token, int(cfg.TTL.Seconds()), "/", "", cfg.SecureCookie, true)

		slog.Info("user logged in", "user_id", user.ID)
		cfg.audit(c, extensions.AuditEvent{
			EventType: extensions.EventLogin,
			UserID:    user.ID,
			Username:  user.Username,
			Outcome:   extensions.OutcomeSuccess,
		})
		c.JSON(http.StatusOK, datatypes.LoginResponse{
			Detail:    "Logged in",
			Token:     sess.Token,
			ExpiresAt: sess.ExpiresAt,
		})
	}
}

// HandleLogout ends the web session and the user's chat session. It
// succeeds for anonymous callers too.
func HandleLogout(s *store.Store, cfg SessionConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if token := middleware.SessionToken(c); token != "" {
			if err := s.DeleteWebSession(ctx, token); err != nil && !errors.Is(err, store.ErrNotFound) {
				slog.Warn("delete web session failed", "error", err)
			}
		}
		if user := middleware.CurrentUser(c); user != nil {
			if err := s.DeleteChatKitUserSession(ctx, user.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
				slog.Warn("delete chat session failed", "user_id", user.ID, "error", err)
			}
			slog.Info("user logged out", "user_id", user.ID)
			cfg.audit(c, extensions.AuditEvent{
				EventType: extensions.EventLogout,
				UserID:    user.ID,
				Username:  user.Username,
				Outcome:   extensions.OutcomeSuccess,
			})
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(middleware.SessionCookieName, "", -1, "/", "", cfg.SecureCookie, true)
		c.JSON(http.StatusOK, datatypes.DetailResponse{Detail: "Logged out"})
	}
}

// HandleMe returns the authenticated user. Mount behind RequireAuth.
func HandleMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, datatypes.DetailResponse{Detail: "Authentication credentials were not provided."})
			return
		}
		c.JSON(http.StatusOK, datatypes.NewMeResponse(user))
	}
}
