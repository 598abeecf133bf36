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
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/spendoapp/spendo/services/api/observability"
	"github.com/spendoapp/spendo/services/chatkit"
)

// WSError is the frame sent when a request fails.
type WSError struct {
	Type   string `json:"type"`
	Status int    `json:"status"`
	Error  string `json:"error"`
}

// WSDone closes the frames of one request so clients know the answer is
// complete.
type WSDone struct {
	Type string `json:"type"`
}

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

func sendJSON(ws *websocket.Conn, v any) error {
	_ = ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// HandleChatKitWebSocket serves the chat protocol over a websocket.
//
// # Description
//
// Each text message is one protocol request. Streamed events are sent as
// individual JSON frames followed by {"type":"done"}; JSON results are
// sent as a single frame followed by the same marker. Failures are sent
// as {"type":"error","status":...,"error":...} and the connection stays
// open. Requests on one connection are handled one at a time.
func HandleChatKitWebSocket(chat ChatProcessor, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()
		ws.SetReadLimit(maxChatPayload)

		caller := callerOf(c)
		slog.Info("Websocket client connected", "authenticated", caller.Authenticated)

		done := metrics.StreamStarted(observability.TransportWebSocket)
		defer done()

		for {
			_, payload, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					metrics.RecordClientDisconnect(observability.TransportWebSocket)
				}
				slog.Info("Websocket client disconnected", "error", err.Error())
				return
			}
			if !serveWSRequest(c.Request.Context(), ws, chat, metrics, payload, caller) {
				return
			}
		}
	}
}

// serveWSRequest answers one request. It returns false once the socket
// can no longer be written.
func serveWSRequest(parent context.Context, ws *websocket.Conn, chat ChatProcessor, metrics *observability.Metrics, payload []byte, caller chatkit.Caller) bool {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	reqType := requestType(payload)
	result, err := chat.Process(ctx, payload, caller)
	if err != nil {
		metrics.RecordChatRequest(reqType, observability.OutcomeError)
		status, msg := chatErrorStatus(err)
		if status == http.StatusInternalServerError {
			slog.Error("chat request failed", "type", reqType, "error", err)
		}
		return sendJSON(ws, WSError{Type: "error", Status: status, Error: msg}) == nil
	}

	if !result.Streaming() {
		metrics.RecordChatRequest(reqType, observability.OutcomeJSON)
		if err := sendJSON(ws, json.RawMessage(result.JSON())); err != nil {
			return false
		}
		return sendJSON(ws, WSDone{Type: "done"}) == nil
	}

	metrics.RecordChatRequest(reqType, observability.OutcomeStream)
	for ev := range result.Events() {
		if err := sendJSON(ws, ev); err != nil {
			metrics.RecordClientDisconnect(observability.TransportWebSocket)
			return false
		}
		metrics.RecordStreamEvent(string(ev.Type))
	}
	return sendJSON(ws, WSDone{Type: "done"}) == nil
}
