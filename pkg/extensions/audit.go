// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"log/slog"
	"time"
)

// Event types.
const (
	EventLogin       = "auth.login"
	EventLoginFailed = "auth.login_failed"
	EventLogout      = "auth.logout"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AuditEvent is one security-relevant action.
//
// Example:
//
//	event := extensions.AuditEvent{
//	    EventType: extensions.EventLogin,
//	    UserID:    user.ID,
//	    Username:  user.Username,
//	    Outcome:   extensions.OutcomeSuccess,
//	    ClientIP:  c.ClientIP(),
//	}
type AuditEvent struct {
	// EventType is "category.action", e.g. "auth.login".
	EventType string

	// Timestamp is when the event occurred. Zero means now.
	Timestamp time.Time

	// UserID is the acting user, 0 when unknown.
	UserID int64

	// Username is the name the caller presented. It is recorded for
	// failed logins where no user id exists.
	Username string

	Outcome  string
	ClientIP string

	// Metadata holds event-specific detail. Never put credentials here.
	Metadata map[string]any
}

// AuditLogger records audit events.
//
// # Description
//
// Log must not block the request for long. Implementations that ship
// events elsewhere should buffer and flush in the background.
//
// # Outputs
//
// Returns an error when the event could not be recorded. Callers log the
// error and continue; an audit failure never fails the request.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent) error
}

// NopAuditLogger discards all events.
type NopAuditLogger struct{}

func (NopAuditLogger) Log(context.Context, AuditEvent) error { return nil }

// SlogAuditLogger writes each event as one structured log record.
type SlogAuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewSlogAuditLogger logs to logger, or slog.Default() when nil. Records
// carry audit=true so they can be filtered out of the general stream.
func NewSlogAuditLogger(logger *slog.Logger) *SlogAuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAuditLogger{logger: logger.With("audit", true), now: time.Now}
}

func (l *SlogAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = l.now()
	}

	attrs := []any{
		"event_type", event.EventType,
		"timestamp", ts.UTC().Format(time.RFC3339),
		"outcome", event.Outcome,
	}
	if event.UserID != 0 {
		attrs = append(attrs, "user_id", event.UserID)
	}
	if event.Username != "" {
		attrs = append(attrs, "username", event.Username)
	}
	if event.ClientIP != "" {
		attrs = append(attrs, "client_ip", event.ClientIP)
	}
	if len(event.Metadata) > 0 {
		attrs = append(attrs, "metadata", event.Metadata)
	}

	level := slog.LevelInfo
	if event.Outcome == OutcomeFailure {
		level = slog.LevelWarn
	}
	l.logger.Log(ctx, level, "audit event", attrs...)
	return nil
}

var (
	_ AuditLogger = NopAuditLogger{}
	_ AuditLogger = (*SlogAuditLogger)(nil)
)
