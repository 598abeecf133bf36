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

// schema is applied on every Open. Money columns are TEXT holding
// fixed two-decimal strings; timestamps are TEXT in timeLayout.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	occupation    TEXT,
	is_staff      INTEGER NOT NULL DEFAULT 0,
	is_superuser  INTEGER NOT NULL DEFAULT 0,
	is_active     INTEGER NOT NULL DEFAULT 1,
	date_joined   TEXT NOT NULL,
	last_login    TEXT
);

CREATE TABLE IF NOT EXISTS income_types (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	income_type TEXT NOT NULL UNIQUE,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS incomes (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	name           TEXT NOT NULL DEFAULT '',
	amount         TEXT NOT NULL DEFAULT '0.00',
	income_type_id INTEGER NOT NULL REFERENCES income_types(id) ON DELETE CASCADE,
	user_id        INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	income_date    TEXT NOT NULL,
	created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_incomes_user ON incomes(user_id);

CREATE TABLE IF NOT EXISTS transaction_types (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	type       TEXT NOT NULL UNIQUE,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS institutions (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	type TEXT NOT NULL UNIQUE CHECK (type IN ('cash', 'saving', 'investing_retirement'))
);

CREATE TABLE IF NOT EXISTS accounts (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	name           TEXT NOT NULL DEFAULT 'Account',
	balance        TEXT NOT NULL DEFAULT '0.00',
	institution_id INTEGER NOT NULL REFERENCES institutions(id) ON DELETE CASCADE,
	user_id        INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id);

CREATE TABLE IF NOT EXISTS transactions (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	name                TEXT NOT NULL,
	payment             TEXT NOT NULL DEFAULT '0.00',
	transaction_date    TEXT,
	recurring           INTEGER NOT NULL DEFAULT 0,
	note                TEXT,
	user_id             INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	account_id          INTEGER REFERENCES accounts(id) ON DELETE CASCADE,
	transaction_type_id INTEGER NOT NULL REFERENCES transaction_types(id) ON DELETE CASCADE,
	created_at          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id);

CREATE TABLE IF NOT EXISTS chatkit_threads (
	thread_id  TEXT PRIMARY KEY,
	user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chatkit_threads_user ON chatkit_threads(user_id);

CREATE TABLE IF NOT EXISTS chatkit_user_sessions (
	user_id    INTEGER PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS web_sessions (
	token      TEXT PRIMARY KEY,
	user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at TEXT NOT NULL,
	expires_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_web_sessions_expires ON web_sessions(expires_at);
`

// truncateOrder lists tables children-first.
var truncateOrder = []string{
	"web_sessions",
	"chatkit_user_sessions",
	"chatkit_threads",
	"transactions",
	"incomes",
	"accounts",
	"institutions",
	"transaction_types",
	"income_types",
	"users",
}
