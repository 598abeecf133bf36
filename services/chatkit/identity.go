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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/spendoapp/spendo/services/store"
)

// IdentityStore is the slice of the relational store identity resolution uses.
type IdentityStore interface {
	GetThreadOwner(ctx context.Context, threadID string) (int64, error)
	SaveThreadOwner(ctx context.Context, threadID string, userID int64) error
	DeleteThreadOwner(ctx context.Context, threadID string) error
	ListActiveChatKitSessions(ctx context.Context) ([]store.ChatKitUserSession, error)
}

// IdentitySource records which step resolved a user.
type IdentitySource string

const (
	SourceThreadOwner    IdentitySource = "thread_owner"
	SourceThreadMetadata IdentitySource = "thread_metadata"
	SourceActiveSession  IdentitySource = "active_session"
	SourceRequestUser    IdentitySource = "request_user"
)

// Identity is a resolved chat user.
type Identity struct {
	UserID int64
	Source IdentitySource
}

// IdentityResolver works out which user a thread belongs to.
//
// # Description
//
// The chat widget talks to the backend without the browser's session
// cookie, so the requester is often unknown. Resolution tries, in order:
//
//  1. the persisted thread to user mapping,
//  2. metadata["user_id"] on the thread,
//  3. the single active chat session, if exactly one user is logged in,
//  4. the authenticated request user.
//
// A hit from steps 2 to 4 is written back as the thread mapping so the
// next turn resolves at step 1.
//
// # Thread Safety
//
// Safe for concurrent use.
type IdentityResolver struct {
	store  IdentityStore
	logger *slog.Logger
}

func NewIdentityResolver(s IdentityStore, logger *slog.Logger) *IdentityResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityResolver{store: s, logger: logger}
}

// Resolve returns the thread's user. ok is false for anonymous threads.
// Store failures are logged and treated as a miss for that step.
func (r *IdentityResolver) Resolve(ctx context.Context, thread *ThreadMetadata, caller Caller) (Identity, bool) {
	if thread == nil {
		if caller.Authenticated {
			return Identity{UserID: caller.UserID, Source: SourceRequestUser}, true
		}
		return Identity{}, false
	}

	owner, err := r.store.GetThreadOwner(ctx, thread.ID)
	switch {
	case err == nil:
		return Identity{UserID: owner, Source: SourceThreadOwner}, true
	case !errors.Is(err, store.ErrNotFound):
		r.logger.Warn("thread owner lookup failed", "thread_id", thread.ID, "error", err)
	}

	id, ok := r.fallback(ctx, thread, caller)
	if !ok {
		r.logger.Debug("chat thread is anonymous", "thread_id", thread.ID)
		return Identity{}, false
	}
	if err := r.store.SaveThreadOwner(ctx, thread.ID, id.UserID); err != nil {
		r.logger.Warn("persist thread owner failed", "thread_id", thread.ID, "user_id", id.UserID, "error", err)
	}
	r.logger.Debug("chat thread owner resolved", "thread_id", thread.ID, "user_id", id.UserID, "source", id.Source)
	return id, true
}

// Forget drops the persisted owner of a deleted thread.
func (r *IdentityResolver) Forget(ctx context.Context, threadID string) error {
	if err := r.store.DeleteThreadOwner(ctx, threadID); err != nil {
		return fmt.Errorf("forget thread owner: %w", err)
	}
	return nil
}

func (r *IdentityResolver) fallback(ctx context.Context, thread *ThreadMetadata, caller Caller) (Identity, bool) {
	if uid, ok := metadataUserID(thread.Metadata); ok {
		return Identity{UserID: uid, Source: SourceThreadMetadata}, true
	}

	sessions, err := r.store.ListActiveChatKitSessions(ctx)
	if err != nil {
		r.logger.Warn("active chat session lookup failed", "error", err)
	} else if len(sessions) == 1 {
		return Identity{UserID: sessions[0].UserID, Source: SourceActiveSession}, true
	}

	if caller.Authenticated {
		return Identity{UserID: caller.UserID, Source: SourceRequestUser}, true
	}
	return Identity{}, false
}

// metadataUserID reads metadata["user_id"], which may arrive as any JSON
// number shape or a numeric string.
func metadataUserID(meta map[string]any) (int64, bool) {
	raw, ok := meta[MetadataUserIDKey]
	if !ok || raw == nil {
		return 0, false
	}
	switch v := raw.(type) {
	case int64:
		return v, v > 0
	case int:
		return int64(v), v > 0
	case float64:
		if v <= 0 || v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil && n > 0
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil && n > 0
	default:
		return 0, false
	}
}
