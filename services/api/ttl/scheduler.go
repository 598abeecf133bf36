// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ttl removes expired login sessions and stale chat sessions in
// the background.
package ttl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// =============================================================================
// Interfaces
// =============================================================================

// SessionStore is the slice of the store the scheduler cleans.
type SessionStore interface {
	DeleteExpiredWebSessions(ctx context.Context, limit int) (int, error)
	DeleteStaleChatKitSessions(ctx context.Context, olderThan time.Duration) (int, error)
}

// Recorder receives deletion counts, e.g. for metrics. kind is
// KindWebSession or KindChatSession.
type Recorder interface {
	RecordTTLDeleted(kind string, n int)
}

const (
	KindWebSession  = "web_session"
	KindChatSession = "chat_session"
)

// =============================================================================
// Configuration
// =============================================================================

// SchedulerConfig holds configuration for the cleanup scheduler.
//
// # Fields
//
//   - Interval: How often to run cleanup cycles. Default: 1 hour.
//   - WebSessionBatchSize: Maximum expired logins deleted per cycle. Default: 500.
//   - ChatSessionMaxAge: Chat sessions untouched for longer are deleted. Default: 24 hours.
type SchedulerConfig struct {
	Interval            time.Duration `yaml:"interval"`
	WebSessionBatchSize int           `yaml:"web_session_batch_size"`
	ChatSessionMaxAge   time.Duration `yaml:"chat_session_max_age"`
}

// DefaultSchedulerConfig returns the production defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:            1 * time.Hour,
		WebSessionBatchSize: 500,
		ChatSessionMaxAge:   24 * time.Hour,
	}
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	d := DefaultSchedulerConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.WebSessionBatchSize <= 0 {
		c.WebSessionBatchSize = d.WebSessionBatchSize
	}
	if c.ChatSessionMaxAge <= 0 {
		c.ChatSessionMaxAge = d.ChatSessionMaxAge
	}
	return c
}

// CleanupResult summarizes one cleanup cycle.
type CleanupResult struct {
	StartTime           time.Time
	EndTime             time.Time
	WebSessionsDeleted  int
	ChatSessionsDeleted int
}

// DurationMs returns the cycle duration in milliseconds.
func (r CleanupResult) DurationMs() int64 {
	return r.EndTime.Sub(r.StartTime).Milliseconds()
}

// =============================================================================
// Scheduler
// =============================================================================

// Scheduler runs cleanup cycles on a ticker.
//
// # Description
//
// The first cycle runs as soon as Start is called, then every Interval.
// A failed cycle is logged and retried on the next tick.
//
// # Thread Safety
//
// All public methods are thread-safe.
type Scheduler struct {
	store    SessionStore
	recorder Recorder
	config   SchedulerConfig
	done     chan struct{}
	stopped  chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewScheduler creates a stopped scheduler.
//
// # Inputs
//
//   - store: Store to clean.
//   - recorder: Receives deletion counts. May be nil.
//   - config: Zero fields take their defaults.
func NewScheduler(store SessionStore, recorder Recorder, config SchedulerConfig) *Scheduler {
	return &Scheduler{
		store:    store,
		recorder: recorder,
		config:   config.withDefaults(),
	}
}

// Start launches the background loop. It stops when ctx is cancelled or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})

	slog.Info("session cleanup scheduler starting",
		"interval", s.config.Interval.String(),
		"web_session_batch_size", s.config.WebSessionBatchSize,
		"chat_session_max_age", s.config.ChatSessionMaxAge.String(),
	)

	go s.runLoop(ctx, s.done, s.stopped)
	return nil
}

// Stop asks the loop to exit and waits for the current cycle to finish.
// Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	slog.Info("session cleanup scheduler stopping")
	close(s.done)
	s.running = false
	stopped := s.stopped
	s.mu.Unlock()

	<-stopped
}

// RunNow runs one cycle synchronously.
func (s *Scheduler) RunNow(ctx context.Context) (CleanupResult, error) {
	return s.runCleanupCycle(ctx)
}

func (s *Scheduler) runLoop(ctx context.Context, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.executeCleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("session cleanup scheduler stopped (context cancelled)")
			s.markStopped(done)
			return
		case <-done:
			slog.Info("session cleanup scheduler stopped (stop requested)")
			return
		case <-ticker.C:
			s.executeCleanup(ctx)
		}
	}
}

// markStopped clears running after a context cancellation so Start can be
// called again.
func (s *Scheduler) markStopped(done <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-done:
	default:
		if s.done == done {
			s.running = false
		}
	}
}

func (s *Scheduler) executeCleanup(ctx context.Context) {
	result, err := s.runCleanupCycle(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("session cleanup cycle failed", "error", err)
		}
		return
	}

	if result.WebSessionsDeleted > 0 || result.ChatSessionsDeleted > 0 {
		slog.Info("session cleanup cycle completed",
			"web_sessions_deleted", result.WebSessionsDeleted,
			"chat_sessions_deleted", result.ChatSessionsDeleted,
			"duration_ms", result.DurationMs(),
		)
	} else {
		slog.Debug("session cleanup cycle completed (nothing expired)")
	}
}

func (s *Scheduler) runCleanupCycle(ctx context.Context) (CleanupResult, error) {
	result := CleanupResult{StartTime: time.Now()}

	web, err := s.store.DeleteExpiredWebSessions(ctx, s.config.WebSessionBatchSize)
	if err != nil {
		return result, fmt.Errorf("web session cleanup failed: %w", err)
	}
	result.WebSessionsDeleted = web
	s.record(KindWebSession, web)

	chat, err := s.store.DeleteStaleChatKitSessions(ctx, s.config.ChatSessionMaxAge)
	if err != nil {
		return result, fmt.Errorf("chat session cleanup failed: %w", err)
	}
	result.ChatSessionsDeleted = chat
	s.record(KindChatSession, chat)

	result.EndTime = time.Now()
	return result, nil
}

func (s *Scheduler) record(kind string, n int) {
	if s.recorder != nil && n > 0 {
		s.recorder.RecordTTLDeleted(kind, n)
	}
}
