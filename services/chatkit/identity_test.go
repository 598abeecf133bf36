// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chatkit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendoapp/spendo/services/store"
)

type fakeIdentityStore struct {
	mu          sync.Mutex
	owners      map[string]int64
	sessions    []store.ChatKitUserSession
	ownerErr    error
	sessionsErr error
	saved       []int64
}

func newFakeIdentityStore() *fakeIdentityStore {
	return &fakeIdentityStore{owners: make(map[string]int64)}
}

func (f *fakeIdentityStore) GetThreadOwner(_ context.Context, threadID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ownerErr != nil {
		return 0, f.ownerErr
	}
	uid, ok := f.owners[threadID]
	if !ok {
		return 0, store.ErrNotFound
	}
	return uid, nil
}

func (f *fakeIdentityStore) SaveThreadOwner(_ context.Context, threadID string, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners[threadID] = userID
	f.saved = append(f.saved, userID)
	return nil
}

func (f *fakeIdentityStore) DeleteThreadOwner(_ context.Context, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ownerErr != nil {
		return f.ownerErr
	}
	delete(f.owners, threadID)
	return nil
}

func (f *fakeIdentityStore) owner(threadID string) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uid, ok := f.owners[threadID]
	return uid, ok
}

func (f *fakeIdentityStore) ListActiveChatKitSessions(context.Context) ([]store.ChatKitUserSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions, f.sessionsErr
}

func TestIdentityResolver_Resolve(t *testing.T) {
	authed := Caller{UserID: 40, Authenticated: true}

	tests := []struct {
		name      string
		setup     func(f *fakeIdentityStore)
		metadata  map[string]any
		caller    Caller
		want      Identity
		ok        bool
		persisted bool
	}{
		{
			name:   "persisted owner wins",
			setup:  func(f *fakeIdentityStore) { f.owners["thread_x"] = 10 },
			caller: authed,
			want:   Identity{UserID: 10, Source: SourceThreadOwner},
			ok:     true,
		},
		{
			name:      "metadata user id",
			metadata:  map[string]any{MetadataUserIDKey: float64(20)},
			caller:    authed,
			want:      Identity{UserID: 20, Source: SourceThreadMetadata},
			ok:        true,
			persisted: true,
		},
		{
			name: "single active session",
			setup: func(f *fakeIdentityStore) {
				f.sessions = []store.ChatKitUserSession{{UserID: 30}}
			},
			caller:    authed,
			want:      Identity{UserID: 30, Source: SourceActiveSession},
			ok:        true,
			persisted: true,
		},
		{
			name: "several active sessions fall through to caller",
			setup: func(f *fakeIdentityStore) {
				f.sessions = []store.ChatKitUserSession{{UserID: 30}, {UserID: 31}}
			},
			caller:    authed,
			want:      Identity{UserID: 40, Source: SourceRequestUser},
			ok:        true,
			persisted: true,
		},
		{
			name: "several active sessions and anonymous caller",
			setup: func(f *fakeIdentityStore) {
				f.sessions = []store.ChatKitUserSession{{UserID: 30}, {UserID: 31}}
			},
			ok: false,
		},
		{
			name: "owner lookup failure is a miss",
			setup: func(f *fakeIdentityStore) {
				f.ownerErr = errors.New("disk on fire")
			},
			caller:    authed,
			want:      Identity{UserID: 40, Source: SourceRequestUser},
			ok:        true,
			persisted: true,
		},
		{
			name: "session lookup failure is a miss",
			setup: func(f *fakeIdentityStore) {
				f.sessionsErr = errors.New("locked")
			},
			ok: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeIdentityStore()
			if tt.setup != nil {
				tt.setup(f)
			}
			r := NewIdentityResolver(f, nil)
			thread := &ThreadMetadata{ID: "thread_x", Metadata: tt.metadata}

			got, ok := r.Resolve(context.Background(), thread, tt.caller)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
			if tt.persisted {
				assert.Equal(t, []int64{tt.want.UserID}, f.saved)
			} else {
				assert.Empty(t, f.saved)
			}
		})
	}
}

func TestIdentityResolver_SecondTurnUsesPersistedOwner(t *testing.T) {
	f := newFakeIdentityStore()
	f.sessions = []store.ChatKitUserSession{{UserID: 5}}
	r := NewIdentityResolver(f, nil)
	thread := &ThreadMetadata{ID: "thread_y"}

	first, ok := r.Resolve(context.Background(), thread, Caller{})
	assert.True(t, ok)
	assert.Equal(t, SourceActiveSession, first.Source)

	// The session list changing does not move an owned thread.
	f.sessions = []store.ChatKitUserSession{{UserID: 6}}
	second, ok := r.Resolve(context.Background(), thread, Caller{})
	assert.True(t, ok)
	assert.Equal(t, Identity{UserID: 5, Source: SourceThreadOwner}, second)
}

func TestIdentityResolver_NilThread(t *testing.T) {
	r := NewIdentityResolver(newFakeIdentityStore(), nil)

	_, ok := r.Resolve(context.Background(), nil, Caller{})
	assert.False(t, ok)

	got, ok := r.Resolve(context.Background(), nil, Caller{UserID: 3, Authenticated: true})
	assert.True(t, ok)
	assert.Equal(t, Identity{UserID: 3, Source: SourceRequestUser}, got)
}

func TestIdentityResolver_Forget(t *testing.T) {
	f := newFakeIdentityStore()
	f.owners["thread_z"] = 8
	r := NewIdentityResolver(f, nil)

	require.NoError(t, r.Forget(context.Background(), "thread_z"))
	_, ok := f.owner("thread_z")
	assert.False(t, ok)

	_, ok = r.Resolve(context.Background(), &ThreadMetadata{ID: "thread_z"}, Caller{})
	assert.False(t, ok)

	f.ownerErr = errors.New("db down")
	assert.ErrorContains(t, r.Forget(context.Background(), "thread_z"), "db down")
}
