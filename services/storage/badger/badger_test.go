// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readKey(t *testing.T, db *DB, key string) (string, error) {
	t.Helper()
	var out string
	err := db.WithReadTxn(context.Background(), func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = string(val)
			return nil
		})
	})
	return out, err
}

func TestOpen_InMemory(t *testing.T) {
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	assert.True(t, db.InMemory())
	assert.Empty(t, db.Path())

	err = db.WithTxn(context.Background(), func(txn *badger.Txn) error {
		return txn.Set([]byte("thread:1"), []byte("hello"))
	})
	require.NoError(t, err)

	got, err := readKey(t, db, "thread:1")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.SyncWrites = false
	cfg.GCInterval = time.Hour

	db, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, db.WithTxn(context.Background(), func(txn *badger.Txn) error {
		return txn.Set([]byte("k"), []byte("v"))
	}))
	require.NoError(t, db.Close())
	require.NoError(t, db.Close(), "second close is a no-op")

	db2, err := Open(cfg)
	require.NoError(t, err)
	defer db2.Close()

	got, err := readKey(t, db2, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
	assert.Equal(t, dir, db2.Path())
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestWithTxn_RollsBackOnError(t *testing.T) {
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("boom")
	err = db.WithTxn(context.Background(), func(txn *badger.Txn) error {
		if err := txn.Set([]byte("k"), []byte("v")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = readKey(t, db, "k")
	assert.ErrorIs(t, err, badger.ErrKeyNotFound)
}

func TestWithTxn_CancelledContext(t *testing.T) {
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = db.WithTxn(ctx, func(*badger.Txn) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	err = db.WithReadTxn(ctx, func(*badger.Txn) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
