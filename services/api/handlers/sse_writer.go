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
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/spendoapp/spendo/services/chatkit"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SSEWriter writes chat stream events as Server-Sent Events.
//
// # Description
//
// Each event is written as a single "data: <json>\n\n" frame, the form
// the chat widget parses, and flushed immediately. Keep-alives are SSE
// comments and are ignored by clients.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use by multiple goroutines.
//
// # Assumptions
//
//   - SetSSEHeaders was called before the first write
type SSEWriter interface {
	// WriteEvent writes one event and flushes.
	WriteEvent(event chatkit.Event) error

	// WriteKeepAlive writes an SSE comment to keep proxies from timing
	// out an idle connection.
	WriteKeepAlive() error
}

// =============================================================================
// Implementation
// =============================================================================

type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// NewSSEWriter wraps w, which must implement http.Flusher.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

func (w *sseWriter) WriteEvent(event chatkit.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprintf(w.writer, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprint(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// SetSSEHeaders sets the response headers of an event stream. Must be
// called before anything is written.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
