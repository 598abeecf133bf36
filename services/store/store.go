// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store provides SQLite persistence for Spendo.
//
// The store owns every relational table: users and their login sessions,
// the finance ledger (incomes, accounts, transactions and their lookup
// tables), and the chat identity tables that map chat threads and active
// chat sessions to users.
//
// # Driver
//
// modernc.org/sqlite is used so the binary stays cgo-free. Foreign keys
// are enabled per connection via the _pragma DSN parameter so ON DELETE
// CASCADE behaves like the schema says.
//
// # Thread Safety
//
// *Store is safe for concurrent use. SQLite allows a single writer; the
// pool is capped at one connection and a busy timeout is configured so
// concurrent requests queue instead of failing with SQLITE_BUSY.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("already exists")

	// ErrInvalidCredentials is returned by Authenticate for any mismatch.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// timeLayout is fixed-width so TEXT timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// =============================================================================
// Store
// =============================================================================

// Config holds the database location.
type Config struct {
	// Path is the SQLite file. Parent directories are created.
	Path string

	// Logger receives store diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// PasswordCost is the bcrypt cost for new passwords. Zero means
	// bcrypt.DefaultCost.
	PasswordCost int
}

// Store is the relational persistence layer.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	cost   int
	now    func() time.Time
}

// Open opens (creating if needed) the database and applies the schema.
//
// # Inputs
//
//   - ctx: Bounds schema migration.
//   - cfg: Path is required.
//
// # Outputs
//
//   - *Store: Ready to use. Caller must Close it.
//   - error: Non-nil if the file cannot be opened or migrated.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PasswordCost == 0 {
		cfg.PasswordCost = bcrypt.DefaultCost
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{
		db:     db,
		path:   cfg.Path,
		logger: cfg.Logger,
		cost:   cfg.PasswordCost,
		now:    func() time.Time { return time.Now().UTC() },
	}

	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates any missing tables and indexes. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Truncate deletes every row from every table and resets AUTOINCREMENT
// counters. Tables are cleared children-first so foreign keys hold.
//
// # Outputs
//
//   - []string: Tables that were cleared, in order.
//   - error: First failure. Earlier deletes are rolled back.
func (s *Store) Truncate(ctx context.Context) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin truncate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cleared := make([]string, 0, len(truncateOrder))
	for _, table := range truncateOrder {
		if _, err := tx.ExecContext(ctx, `DELETE FROM "`+table+`"`); err != nil {
			return nil, fmt.Errorf("truncate %s: %w", table, err)
		}
		cleared = append(cleared, table)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sqlite_sequence`); err != nil {
		// sqlite_sequence only exists once an AUTOINCREMENT row was written.
		if !strings.Contains(err.Error(), "no such table") {
			return nil, fmt.Errorf("reset sequences: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit truncate: %w", err)
	}
	return cleared, nil
}

// =============================================================================
// Helpers
// =============================================================================

func (s *Store) timestamp() string {
	return s.now().Format(timeLayout)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		if t2, err2 := time.Parse(time.RFC3339Nano, v); err2 == nil {
			return t2
		}
		return time.Time{}
	}
	return t
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t := parseTime(v.String)
	return &t
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}

// isUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY constraint.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}

// isForeignKeyViolation reports whether err came from a FOREIGN KEY constraint.
func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
