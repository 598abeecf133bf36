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
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const userColumns = `id, username, email, first_name, last_name, password_hash, occupation,
	is_staff, is_superuser, is_active, date_joined, last_login`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u          User
		occupation sql.NullString
		joined     string
		lastLogin  sql.NullString
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash,
		&occupation, &u.IsStaff, &u.IsSuperuser, &u.IsActive, &joined, &lastLogin)
	if err != nil {
		return nil, err
	}
	u.Occupation = stringPtr(occupation)
	u.DateJoined = parseTime(joined)
	u.LastLogin = parseNullTime(lastLogin)
	return &u, nil
}

// CreateUser hashes the password and inserts the user.
//
// # Outputs
//
//   - *User: The stored user with its assigned ID.
//   - error: ErrConflict if the username or email is already taken.
func (s *Store) CreateUser(ctx context.Context, nu NewUser) (*User, error) {
	nu.Username = strings.TrimSpace(nu.Username)
	nu.Email = strings.TrimSpace(nu.Email)
	if nu.Username == "" {
		return nil, errors.New("username is required")
	}
	if nu.Password == "" {
		return nil, errors.New("password is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(nu.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, email, first_name, last_name, password_hash, occupation,
			is_staff, is_superuser, is_active, date_joined)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		nu.Username, nu.Email, nu.FirstName, nu.LastName, string(hash), nullString(nu.Occupation),
		nu.IsStaff, nu.IsSuperuser, s.timestamp())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user %q: %w", nu.Username, ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}
	s.logger.Debug("user created", "user_id", id, "username", nu.Username)
	return s.GetUserByID(ctx, id)
}

// ListUsers returns all users ordered by id. A non-empty email filters
// to exact (case-insensitive) matches.
func (s *Store) ListUsers(ctx context.Context, email string) ([]User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if email = strings.TrimSpace(email); email != "" {
		query += ` WHERE email = ? COLLATE NOCASE`
		args = append(args, email)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByID returns ErrNotFound for an unknown id.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*User, error) {
	return s.getUser(ctx, `id = ?`, id)
}

// GetUserByUsername returns ErrNotFound for an unknown username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUser(ctx, `username = ?`, username)
}

// Authenticate checks a username/password pair and records the login.
// Unknown users, wrong passwords and inactive users all yield
// ErrInvalidCredentials.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := s.GetUserByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`,
		formatTime(now), u.ID); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	u.LastLogin = &now
	return u, nil
}

// GetOrCreateUser returns the user named nu.Username, creating it when
// missing. The bool reports whether a row was created.
func (s *Store) GetOrCreateUser(ctx context.Context, nu NewUser) (*User, bool, error) {
	u, err := s.GetUserByUsername(ctx, nu.Username)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	u, err = s.CreateUser(ctx, nu)
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}
