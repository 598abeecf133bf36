// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ttl

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/spendoapp/spendo/services/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// Test doubles
// =============================================================================

type fakeStore struct {
	mu        sync.Mutex
	web       int
	chat      int
	webErr    error
	calls     int
	limits    []int
	maxAges   []time.Duration
	cycleDone chan struct{}
}

func (f *fakeStore) DeleteExpiredWebSessions(_ context.Context, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.limits = append(f.limits, limit)
	if f.webErr != nil {
		return 0, f.webErr
	}
	return f.web, nil
}

func (f *fakeStore) DeleteStaleChatKitSessions(_ context.Context, olderThan time.Duration) (int, error) {
	f.mu.Lock()
	f.maxAges = append(f.maxAges, olderThan)
	n := f.chat
	done := f.cycleDone
	f.mu.Unlock()
	if done != nil {
		select {
		case done <- struct{}{}:
		default:
		}
	}
	return n, nil
}

func (f *fakeStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *fakeRecorder) RecordTTLDeleted(kind string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[kind] += n
}

// =============================================================================
// Tests
// =============================================================================

func TestDefaultSchedulerConfig(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	assert.Equal(t, time.Hour, cfg.Interval)
	assert.Equal(t, 500, cfg.WebSessionBatchSize)
	assert.Equal(t, 24*time.Hour, cfg.ChatSessionMaxAge)
}

func TestRunNow(t *testing.T) {
	fs := &fakeStore{web: 3, chat: 2}
	rec := &fakeRecorder{}
	s := NewScheduler(fs, rec, SchedulerConfig{WebSessionBatchSize: 10, ChatSessionMaxAge: time.Minute})

	result, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.WebSessionsDeleted)
	assert.Equal(t, 2, result.ChatSessionsDeleted)
	assert.False(t, result.EndTime.Before(result.StartTime))

	assert.Equal(t, []int{10}, fs.limits)
	assert.Equal(t, []time.Duration{time.Minute}, fs.maxAges)
	assert.Equal(t, map[string]int{KindWebSession: 3, KindChatSession: 2}, rec.counts)
}

func TestRunNow_NothingExpired(t *testing.T) {
	rec := &fakeRecorder{}
	s := NewScheduler(&fakeStore{}, rec, SchedulerConfig{})

	_, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rec.counts)
}

func TestRunNow_Error(t *testing.T) {
	fs := &fakeStore{webErr: errors.New("disk full")}
	s := NewScheduler(fs, nil, SchedulerConfig{})

	_, err := s.RunNow(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, fs.maxAges)
}

func TestScheduler_StartRunsImmediately(t *testing.T) {
	fs := &fakeStore{cycleDone: make(chan struct{}, 1)}
	s := NewScheduler(fs, nil, SchedulerConfig{Interval: time.Hour})

	require.NoError(t, s.Start(context.Background()))
	select {
	case <-fs.cycleDone:
	case <-time.After(5 * time.Second):
		t.Fatal("first cleanup cycle did not run")
	}
	s.Stop()
	assert.Equal(t, 1, fs.callCount())
}

func TestScheduler_StartTwice(t *testing.T) {
	s := NewScheduler(&fakeStore{}, nil, SchedulerConfig{Interval: time.Hour})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.Error(t, s.Start(context.Background()))
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	s := NewScheduler(&fakeStore{}, nil, SchedulerConfig{Interval: time.Hour})

	s.Stop()
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	s.Stop()

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}

func TestScheduler_TicksRepeatedly(t *testing.T) {
	fs := &fakeStore{cycleDone: make(chan struct{}, 1)}
	s := NewScheduler(fs, nil, SchedulerConfig{Interval: 10 * time.Millisecond})

	require.NoError(t, s.Start(context.Background()))
	for i := 0; i < 3; i++ {
		select {
		case <-fs.cycleDone:
		case <-time.After(5 * time.Second):
			t.Fatalf("cycle %d did not run", i)
		}
	}
	s.Stop()
	assert.GreaterOrEqual(t, fs.callCount(), 3)
}

func TestScheduler_ContextCancelStopsLoop(t *testing.T) {
	fs := &fakeStore{cycleDone: make(chan struct{}, 1)}
	s := NewScheduler(fs, nil, SchedulerConfig{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	<-fs.cycleDone
	cancel()

	require.Eventually(t, func() bool {
		return s.Start(context.Background()) == nil
	}, 5*time.Second, 10*time.Millisecond)
	s.Stop()
}

func TestScheduler_WithStore(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(ctx, store.Config{Path: filepath.Join(t.TempDir(), "spendo.db"), PasswordCost: 4})
	require.NoError(t, err)
	defer db.Close()

	u, err := db.CreateUser(ctx, store.NewUser{Username: "ada", Email: "ada@example.com", Password: "password"})
	require.NoError(t, err)
	_, err = db.CreateWebSession(ctx, u.ID, time.Nanosecond)
	require.NoError(t, err)
	live, err := db.CreateWebSession(ctx, u.ID, time.Hour)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	s := NewScheduler(db, nil, SchedulerConfig{})
	result, err := s.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.WebSessionsDeleted)

	_, err = db.LookupWebSession(ctx, live.Token)
	assert.NoError(t, err)
}
