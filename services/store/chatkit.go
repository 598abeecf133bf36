// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// Chat user sessions
// =============================================================================

// TouchChatKitUserSession marks userID as logged in for chat identity,
// creating the row or bumping updated_at.
func (s *Store) TouchChatKitUserSession(ctx context.Context, userID int64) error {
	now := s.timestamp()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chatkit_user_sessions (user_id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET updated_at = excluded.updated_at`,
		userID, now, now)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		return fmt.Errorf("touch chat session: %w", err)
	}
	return nil
}

// DeleteChatKitUserSession clears the chat session for userID. Missing rows are ignored.
func (s *Store) DeleteChatKitUserSession(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chatkit_user_sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete chat session: %w", err)
	}
	return nil
}

// ListActiveChatKitSessions returns every chat session, most recently
// touched first.
func (s *Store) ListActiveChatKitSessions(ctx context.Context) ([]ChatKitUserSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, created_at, updated_at FROM chatkit_user_sessions ORDER BY updated_at DESC, user_id`)
	if err != nil {
		return nil, fmt.Errorf("list chat sessions: %w", err)
	}
	defer rows.Close()

	var out []ChatKitUserSession
	for rows.Next() {
		var (
			sess             ChatKitUserSession
			created, updated string
		)
		if err := rows.Scan(&sess.UserID, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan chat session: %w", err)
		}
		sess.CreatedAt = parseTime(created)
		sess.UpdatedAt = parseTime(updated)
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteStaleChatKitSessions removes sessions not touched within olderThan.
func (s *Store) DeleteStaleChatKitSessions(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := formatTime(s.now().Add(-olderThan))
	res, err := s.db.ExecContext(ctx, `DELETE FROM chatkit_user_sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale chat sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// =============================================================================
// Thread ownership
// =============================================================================

// GetThreadOwner returns the user id mapped to threadID, or ErrNotFound.
func (s *Store) GetThreadOwner(ctx context.Context, threadID string) (int64, error) {
	var userID int64
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM chatkit_threads WHERE thread_id = ?`, threadID).
		Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get thread owner: %w", err)
	}
	return userID, nil
}

// SaveThreadOwner maps threadID to userID, replacing any previous owner.
func (s *Store) SaveThreadOwner(ctx context.Context, threadID string, userID int64) error {
	now := s.timestamp()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chatkit_threads (thread_id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET user_id = excluded.user_id, updated_at = excluded.updated_at`,
		threadID, userID, now, now)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		return fmt.Errorf("save thread owner: %w", err)
	}
	return nil
}

// DeleteThreadOwner drops the mapping for threadID.
func (s *Store) DeleteThreadOwner(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chatkit_threads WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("delete thread owner: %w", err)
	}
	return nil
}
