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
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/spendoapp/spendo/services/api/datatypes"
	"github.com/spendoapp/spendo/services/api/middleware"
	"github.com/spendoapp/spendo/services/api/observability"
	"github.com/spendoapp/spendo/services/chatkit"
)

// DefaultKeepAlive is the idle interval between SSE keep-alive comments.
const DefaultKeepAlive = 15 * time.Second

// maxChatPayload bounds a single protocol request body.
const maxChatPayload = 1 << 20

// ChatProcessor is satisfied by *chatkit.Server.
type ChatProcessor interface {
	Process(ctx context.Context, payload []byte, caller chatkit.Caller) (*chatkit.Result, error)
}

// HandleChatKit serves the chat widget protocol on one URL.
//
// # Description
//
// GET answers {"status":"ok"} so the widget can probe the endpoint. POST
// carries one protocol request. Streaming results are written as
// Server-Sent Events until the stream ends or the client goes away;
// other results are written as JSON. Every other method is 405.
//
// # Outputs
//
//   - 400 {"error":"Empty payload"} for an empty body
//   - 400 {"error": ...} for malformed or unsupported requests
//   - 404 {"error": ...} for unknown threads and items
//   - 500 {"error": ...} for any other failure
func HandleChatKit(chat ChatProcessor, metrics *observability.Metrics, keepAlive time.Duration) gin.HandlerFunc {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet:
			c.JSON(http.StatusOK, datatypes.StatusResponse{Status: "ok"})
			return
		case http.MethodPost:
		default:
			respondError(c, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxChatPayload))
		if err != nil {
			respondError(c, http.StatusBadRequest, "Unable to read request body")
			return
		}
		reqType := requestType(payload)

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		result, err := chat.Process(ctx, payload, callerOf(c))
		if err != nil {
			metrics.RecordChatRequest(reqType, observability.OutcomeError)
			status, msg := chatErrorStatus(err)
			if status == http.StatusInternalServerError {
				slog.Error("chat request failed", "type", reqType, "error", err)
			}
			respondError(c, status, msg)
			return
		}

		if !result.Streaming() {
			metrics.RecordChatRequest(reqType, observability.OutcomeJSON)
			c.Data(http.StatusOK, "application/json", result.JSON())
			return
		}
		metrics.RecordChatRequest(reqType, observability.OutcomeStream)
		streamSSE(ctx, c, result.Events(), metrics, keepAlive)
	}
}

// streamSSE relays events to the client. Returning cancels ctx, which
// stops the producer.
func streamSSE(ctx context.Context, c *gin.Context, events <-chan chatkit.Event, metrics *observability.Metrics, keepAlive time.Duration) {
	SetSSEHeaders(c.Writer)
	c.Status(http.StatusOK)

	w, err := NewSSEWriter(c.Writer)
	if err != nil {
		slog.Error("streaming unsupported", "error", err)
		return
	}

	done := metrics.StreamStarted(observability.TransportSSE)
	defer done()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := w.WriteEvent(ev); err != nil {
				slog.Info("chat stream client gone", "error", err)
				metrics.RecordClientDisconnect(observability.TransportSSE)
				return
			}
			metrics.RecordStreamEvent(string(ev.Type))
		case <-ticker.C:
			if err := w.WriteKeepAlive(); err != nil {
				metrics.RecordClientDisconnect(observability.TransportSSE)
				return
			}
		case <-ctx.Done():
			metrics.RecordClientDisconnect(observability.TransportSSE)
			return
		}
	}
}

// callerOf maps the authenticated user, if any, to a protocol caller.
func callerOf(c *gin.Context) chatkit.Caller {
	if user := middleware.CurrentUser(c); user != nil {
		return chatkit.Caller{UserID: user.ID, Authenticated: true}
	}
	return chatkit.Caller{}
}

// chatErrorStatus picks the status and client message for a Process error.
func chatErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chatkit.ErrEmptyPayload):
		return http.StatusBadRequest, "Empty payload"
	case errors.Is(err, chatkit.ErrAttachmentsUnsupported):
		return http.StatusBadRequest, chatkit.ErrAttachmentsUnsupported.Error()
	case errors.Is(err, chatkit.ErrInvalidRequest), errors.Is(err, chatkit.ErrUnknownRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, chatkit.ErrThreadNotFound), errors.Is(err, chatkit.ErrItemNotFound):
		return http.StatusNotFound, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// requestType reads the envelope type for metrics labels. Anything that
// is not a known type is labelled "unknown".
func requestType(payload []byte) string {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return "unknown"
	}
	switch chatkit.RequestType(env.Type) {
	case chatkit.RequestThreadsCreate, chatkit.RequestThreadsAddUserMessage,
		chatkit.RequestThreadsRetryAfterItem, chatkit.RequestThreadsGetByID,
		chatkit.RequestThreadsList, chatkit.RequestItemsList, chatkit.RequestThreadsUpdate,
		chatkit.RequestThreadsDelete, chatkit.RequestItemsFeedback:
		return env.Type
	default:
		return "unknown"
	}
}
