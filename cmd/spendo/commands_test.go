// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendoapp/spendo/cmd/spendo/config"
	"github.com/spendoapp/spendo/pkg/extensions"
	"github.com/spendoapp/spendo/pkg/logging"
	"github.com/spendoapp/spendo/services/chatkit"
	"github.com/spendoapp/spendo/services/store"
)

// testEnv points the CLI at a fresh working directory and database.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	dbPath := filepath.Join(dir, "spendo.db")
	t.Setenv("SPENDO_DB_PATH", dbPath)
	t.Setenv("SPENDO_LOG_LEVEL", "error")
	t.Setenv("OPENAI_API_KEY", "")
	return dbPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDBMigrate(t *testing.T) {
	dbPath := testEnv(t)

	out, err := execute(t, "db", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Database is up to date")
	assert.FileExists(t, dbPath)
}

func TestDBTruncate_RequiresConfirmation(t *testing.T) {
	testEnv(t)

	_, err := execute(t, "db", "truncate")
	assert.ErrorContains(t, err, "--yes")
}

func TestSeedThenTruncate(t *testing.T) {
	dbPath := testEnv(t)

	out, err := execute(t, "seed", "--users", "2", "--incomes", "1", "--accounts", "1", "--user_transactions", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "users_created=2")

	out, err = execute(t, "db", "truncate", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "All tables truncated.")

	s, err := store.Open(context.Background(), store.Config{Path: dbPath})
	require.NoError(t, err)
	defer s.Close()
	users, err := s.ListUsers(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestConfigInit(t *testing.T) {
	testEnv(t)

	out, err := execute(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, config.DefaultPath)
	assert.FileExists(t, config.DefaultPath)

	_, err = execute(t, "config", "init")
	assert.Error(t, err)
}

func TestRoot_InvalidConfigFile(t *testing.T) {
	testEnv(t)
	require.NoError(t, os.WriteFile("bad.yaml", []byte("chatkit:\n  store: redis\n"), 0644))

	_, err := execute(t, "--config", "bad.yaml", "db", "migrate")
	assert.ErrorContains(t, err, "chatkit.store")
}

func newTestApp(t *testing.T) *app {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "spendo.db")
	cfg.ChatKit.BadgerPath = filepath.Join(t.TempDir(), "chatkit")
	return &app{cfg: cfg, logger: logging.New(logging.Config{Quiet: true})}
}

func TestBuildChat_DisabledWithoutKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	a := newTestApp(t)
	a.cfg.OpenAI.SecretPath = filepath.Join(t.TempDir(), "missing")

	chat, closeChat, err := a.buildChat(nil, a.logger.Slog())
	require.NoError(t, err)
	defer closeChat()
	assert.Nil(t, chat)

	sessions, err := a.buildSessions()
	require.NoError(t, err)
	assert.Nil(t, sessions)
}

func TestBuildSessions_NeedsWorkflowID(t *testing.T) {
	a := newTestApp(t)
	a.cfg.OpenAI.APIKey = "sk-test"

	sessions, err := a.buildSessions()
	require.NoError(t, err)
	assert.Nil(t, sessions)

	a.cfg.ChatKit.WorkflowID = "wf_123"
	sessions, err = a.buildSessions()
	require.NoError(t, err)
	assert.NotNil(t, sessions)
}

func TestOpenThreadStore(t *testing.T) {
	a := newTestApp(t)

	threads, closeFn, err := a.openThreadStore(a.logger.Slog())
	require.NoError(t, err)
	closeFn()
	assert.IsType(t, &chatkit.MemoryStore{}, threads)

	a.cfg.ChatKit.Store = config.ThreadStoreBadger
	threads, closeFn, err = a.openThreadStore(a.logger.Slog())
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &chatkit.BadgerStore{}, threads)
}

func TestBuildChat_WithKey(t *testing.T) {
	a := newTestApp(t)
	a.cfg.OpenAI.APIKey = "sk-test"
	s, err := a.openStore(context.Background())
	require.NoError(t, err)
	defer s.Close()

	chat, closeChat, err := a.buildChat(s, a.logger.Slog())
	require.NoError(t, err)
	defer closeChat()
	assert.NotNil(t, chat)
}

func TestHooks_AuditToggle(t *testing.T) {
	a := newTestApp(t)

	a.cfg.Logging.Audit = false
	assert.IsType(t, extensions.NopAuditLogger{}, a.hooks().Audit())

	a.cfg.Logging.Audit = true
	assert.IsType(t, &extensions.SlogAuditLogger{}, a.hooks().Audit())
}
