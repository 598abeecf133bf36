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
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/spendoapp/spendo/services/api/datatypes"
	"github.com/spendoapp/spendo/services/api/middleware"
	"github.com/spendoapp/spendo/services/llm"
	"github.com/spendoapp/spendo/services/store"
)

// SessionCreator is satisfied by *llm.SessionClient.
type SessionCreator interface {
	CreateSession(ctx context.Context, user string) (string, error)
}

// UserLookup is satisfied by *store.Store.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*store.User, error)
}

// HandleChatKitSession mints a client secret for the chat widget.
//
// # Description
//
// The session user is chosen in order: the body's user_id (looked up to
// a username; an unknown id becomes "anonymous"), then the authenticated
// user, then "anonymous". An upstream rejection is relayed with its
// status as {"error": <upstream body>}.
//
// # Inputs
//
//   - sessions: Creates the upstream session. nil answers 503.
//   - users: Resolves body user ids.
func HandleChatKitSession(sessions SessionCreator, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sessions == nil {
			respondError(c, http.StatusServiceUnavailable, "Chat sessions are not configured")
			return
		}

		var req datatypes.ChatKitSessionRequest
		if err := bindOptionalJSON(c, &req); err != nil {
			respondBindError(c, err)
			return
		}

		ctx := c.Request.Context()
		user := sessionUser(ctx, c, req, users)

		secret, err := sessions.CreateSession(ctx, user)
		if err != nil {
			var apiErr *llm.APIError
			if errors.As(err, &apiErr) {
				slog.Warn("chat session rejected upstream", "status", apiErr.StatusCode)
				respondError(c, apiErr.StatusCode, apiErr.Body)
				return
			}
			slog.Error("chat session request failed", "error", err)
			respondError(c, http.StatusInternalServerError, err.Error())
			return
		}
		c.JSON(http.StatusOK, datatypes.ClientSecretResponse{ClientSecret: secret})
	}
}

func sessionUser(ctx context.Context, c *gin.Context, req datatypes.ChatKitSessionRequest, users UserLookup) string {
	if raw := strings.TrimSpace(req.UserID.String()); raw != "" {
		id, err := req.UserID.Int64()
		if err != nil {
			return llm.AnonymousUser
		}
		u, err := users.GetUserByID(ctx, id)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				slog.Warn("chat session user lookup failed", "user_id", id, "error", err)
			}
			return llm.AnonymousUser
		}
		return u.Username
	}
	if u := middleware.CurrentUser(c); u != nil {
		return u.Username
	}
	return llm.AnonymousUser
}

// bindOptionalJSON binds a body that may be absent.
func bindOptionalJSON(c *gin.Context, obj any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	err := c.ShouldBindJSON(obj)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
