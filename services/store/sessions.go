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

	"github.com/google/uuid"
)

// CreateWebSession issues a new login token for userID valid for ttl.
func (s *Store) CreateWebSession(ctx context.Context, userID int64, ttl time.Duration) (*WebSession, error) {
	if ttl <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	now := s.now()
	sess := &WebSession{
		Token:     uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO web_sessions (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		sess.Token, sess.UserID, formatTime(sess.CreatedAt), formatTime(sess.ExpiresAt))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("insert web session: %w", err)
	}
	return sess, nil
}

// LookupWebSession returns the session for token. Expired sessions are
// reported as ErrNotFound.
func (s *Store) LookupWebSession(ctx context.Context, token string) (*WebSession, error) {
	var (
		sess             WebSession
		created, expires string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT token, user_id, created_at, expires_at FROM web_sessions WHERE token = ?`, token).
		Scan(&sess.Token, &sess.UserID, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup web session: %w", err)
	}
	sess.CreatedAt = parseTime(created)
	sess.ExpiresAt = parseTime(expires)
	if !s.now().Before(sess.ExpiresAt) {
		return nil, ErrNotFound
	}
	return &sess, nil
}

// DeleteWebSession removes a token. Deleting an unknown token is not an error.
func (s *Store) DeleteWebSession(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM web_sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete web session: %w", err)
	}
	return nil
}

// DeleteExpiredWebSessions removes up to limit expired sessions and
// returns how many were deleted. limit <= 0 removes all of them.
func (s *Store) DeleteExpiredWebSessions(ctx context.Context, limit int) (int, error) {
	query := `DELETE FROM web_sessions WHERE expires_at <= ?`
	args := []any{s.timestamp()}
	if limit > 0 {
		query = `DELETE FROM web_sessions WHERE token IN (
			SELECT token FROM web_sessions WHERE expires_at <= ? ORDER BY expires_at LIMIT ?)`
		args = append(args, limit)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired web sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
