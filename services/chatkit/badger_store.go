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

	"github.com/dgraph-io/badger/v4"

	badgerdb "github.com/spendoapp/spendo/services/storage/badger"
)

// Key layout:
//
//	thread:<thread_id>            -> ThreadMetadata JSON
//	item:<thread_id>:<item_id>    -> ThreadItem JSON
const (
	threadKeyPrefix = "thread:"
	itemKeyPrefix   = "item:"
)

func threadKey(id string) []byte { return []byte(threadKeyPrefix + id) }

func itemsPrefix(threadID string) []byte { return []byte(itemKeyPrefix + threadID + ":") }

func itemKey(threadID, itemID string) []byte {
	return []byte(itemKeyPrefix + threadID + ":" + itemID)
}

// BadgerStore persists threads in BadgerDB so conversations survive
// restarts. It has the same semantics as MemoryStore.
//
// # Thread Safety
//
// Safe for concurrent use.
type BadgerStore struct {
	db *badgerdb.DB
}

var _ ThreadStore = (*BadgerStore)(nil)

// NewBadgerStore wraps an open database. The caller keeps ownership of db.
func NewBadgerStore(db *badgerdb.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (b *BadgerStore) GenerateThreadID() string {
	return newID("thread")
}

func (b *BadgerStore) GenerateItemID(itemType ItemType) string {
	return newID(itemPrefix(itemType))
}

func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, raw)
}

// scanPrefix decodes every value under prefix.
func scanPrefix[T any](txn *badger.Txn, prefix []byte) ([]T, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var out []T
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var v T
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		}); err != nil {
			return nil, fmt.Errorf("decode %s: %w", it.Item().Key(), err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (b *BadgerStore) LoadThread(ctx context.Context, threadID string) (*ThreadMetadata, error) {
	var t ThreadMetadata
	err := b.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, threadKey(threadID), &t)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s: %w", threadID, ErrThreadNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load thread: %w", err)
	}
	return &t, nil
}

func (b *BadgerStore) LoadThreads(ctx context.Context, limit int, after string, order Order) (Page[ThreadMetadata], error) {
	var all []ThreadMetadata
	err := b.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		all, err = scanPrefix[ThreadMetadata](txn, []byte(threadKeyPrefix))
		return err
	})
	if err != nil {
		return Page[ThreadMetadata]{}, fmt.Errorf("load threads: %w", err)
	}
	return paginate(all, idOfThread, createdOfThread, after, limit, order), nil
}

func (b *BadgerStore) SaveThread(ctx context.Context, thread *ThreadMetadata, caller Caller) error {
	recordOwner(thread, caller)
	return b.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, threadKey(thread.ID), thread)
	})
}

func (b *BadgerStore) DeleteThread(ctx context.Context, threadID string) error {
	return b.db.WithTxn(ctx, func(txn *badger.Txn) error {
		prefix := itemsPrefix(threadID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		var keys [][]byte
		it := txn.NewIterator(opts)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return txn.Delete(threadKey(threadID))
	})
}

func (b *BadgerStore) LoadThreadItems(ctx context.Context, threadID, after string, limit int, order Order) (Page[ThreadItem], error) {
	var items []ThreadItem
	err := b.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		items, err = scanPrefix[ThreadItem](txn, itemsPrefix(threadID))
		return err
	})
	if err != nil {
		return Page[ThreadItem]{}, fmt.Errorf("load items: %w", err)
	}
	return paginate(items, idOfItem, createdOfItem, after, limit, order), nil
}

func (b *BadgerStore) AddThreadItem(ctx context.Context, threadID string, item ThreadItem) error {
	return b.SaveItem(ctx, threadID, item)
}

func (b *BadgerStore) SaveItem(ctx context.Context, threadID string, item ThreadItem) error {
	return b.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, itemKey(threadID, item.ID), item)
	})
}

func (b *BadgerStore) LoadItem(ctx context.Context, threadID, itemID string) (*ThreadItem, error) {
	var it ThreadItem
	err := b.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, itemKey(threadID, itemID), &it)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s: %w", itemID, ErrItemNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load item: %w", err)
	}
	return &it, nil
}

func (b *BadgerStore) DeleteThreadItem(ctx context.Context, threadID, itemID string) error {
	return b.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Delete(itemKey(threadID, itemID))
	})
}
