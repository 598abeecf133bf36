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
	"fmt"
	"maps"
	"sync"
)

// MemoryStore keeps threads and items in process memory. Everything is
// lost on restart.
//
// # Thread Safety
//
// Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]ThreadMetadata
	items   map[string][]ThreadItem
}

var _ ThreadStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads: make(map[string]ThreadMetadata),
		items:   make(map[string][]ThreadItem),
	}
}

func (m *MemoryStore) GenerateThreadID() string {
	return newID("thread")
}

func (m *MemoryStore) GenerateItemID(itemType ItemType) string {
	return newID(itemPrefix(itemType))
}

func (m *MemoryStore) LoadThread(_ context.Context, threadID string) (*ThreadMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", threadID, ErrThreadNotFound)
	}
	t.Metadata = maps.Clone(t.Metadata)
	return &t, nil
}

func (m *MemoryStore) LoadThreads(_ context.Context, limit int, after string, order Order) (Page[ThreadMetadata], error) {
	m.mu.RLock()
	all := make([]ThreadMetadata, 0, len(m.threads))
	for _, t := range m.threads {
		t.Metadata = maps.Clone(t.Metadata)
		all = append(all, t)
	}
	m.mu.RUnlock()

	return paginate(all, idOfThread, createdOfThread, after, limit, order), nil
}

func (m *MemoryStore) SaveThread(_ context.Context, thread *ThreadMetadata, caller Caller) error {
	recordOwner(thread, caller)

	stored := *thread
	stored.Metadata = maps.Clone(thread.Metadata)

	m.mu.Lock()
	m.threads[thread.ID] = stored
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) DeleteThread(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.threads, threadID)
	delete(m.items, threadID)
	return nil
}

func (m *MemoryStore) LoadThreadItems(_ context.Context, threadID, after string, limit int, order Order) (Page[ThreadItem], error) {
	m.mu.RLock()
	items := append([]ThreadItem(nil), m.items[threadID]...)
	m.mu.RUnlock()

	return paginate(items, idOfItem, createdOfItem, after, limit, order), nil
}

func (m *MemoryStore) AddThreadItem(_ context.Context, threadID string, item ThreadItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[threadID] = append(m.items[threadID], item)
	return nil
}

func (m *MemoryStore) SaveItem(_ context.Context, threadID string, item ThreadItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.items[threadID]
	for i := range items {
		if items[i].ID == item.ID {
			items[i] = item
			return nil
		}
	}
	m.items[threadID] = append(items, item)
	return nil
}

func (m *MemoryStore) LoadItem(_ context.Context, threadID, itemID string) (*ThreadItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, it := range m.items[threadID] {
		if it.ID == itemID {
			out := it
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", itemID, ErrItemNotFound)
}

func (m *MemoryStore) DeleteThreadItem(_ context.Context, threadID, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.items[threadID]
	for i := range items {
		if items[i].ID == itemID {
			m.items[threadID] = append(items[:i:i], items[i+1:]...)
			return nil
		}
	}
	return nil
}
