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
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrThreadNotFound is returned for unknown thread ids.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrItemNotFound is returned for unknown item ids.
	ErrItemNotFound = errors.New("item not found")
)

// MetadataUserIDKey is the thread metadata key holding the owner's user id.
const MetadataUserIDKey = "user_id"

// Caller identifies who sent a protocol request.
type Caller struct {
	UserID        int64
	Authenticated bool
}

// ThreadStore persists threads and their items.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type ThreadStore interface {
	GenerateThreadID() string
	GenerateItemID(itemType ItemType) string

	// LoadThread returns ErrThreadNotFound for unknown ids.
	LoadThread(ctx context.Context, threadID string) (*ThreadMetadata, error)
	LoadThreads(ctx context.Context, limit int, after string, order Order) (Page[ThreadMetadata], error)

	// SaveThread inserts or replaces thread. An authenticated caller is
	// recorded under metadata["user_id"] unless the key is already set.
	SaveThread(ctx context.Context, thread *ThreadMetadata, caller Caller) error

	// DeleteThread removes the thread and its items.
	DeleteThread(ctx context.Context, threadID string) error

	LoadThreadItems(ctx context.Context, threadID, after string, limit int, order Order) (Page[ThreadItem], error)
	AddThreadItem(ctx context.Context, threadID string, item ThreadItem) error

	// SaveItem replaces an existing item, or appends it when absent.
	SaveItem(ctx context.Context, threadID string, item ThreadItem) error
	LoadItem(ctx context.Context, threadID, itemID string) (*ThreadItem, error)
	DeleteThreadItem(ctx context.Context, threadID, itemID string) error
}

// =============================================================================
// IDs
// =============================================================================

// newID returns "<prefix>_<8 hex chars>".
func newID(prefix string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "_" + hex[:8]
}

// itemPrefix maps item types to id prefixes.
func itemPrefix(t ItemType) string {
	switch t {
	case ItemUserMessage, ItemAssistantMessage:
		return "msg"
	default:
		return "item"
	}
}

// =============================================================================
// Shared helpers
// =============================================================================

// recordOwner stamps the caller into thread metadata when absent.
func recordOwner(thread *ThreadMetadata, caller Caller) {
	if thread.Metadata == nil {
		thread.Metadata = map[string]any{}
	}
	if !caller.Authenticated {
		return
	}
	if _, ok := thread.Metadata[MetadataUserIDKey]; !ok {
		thread.Metadata[MetadataUserIDKey] = caller.UserID
	}
}

// normalizeOrder defaults to descending.
func normalizeOrder(o Order) Order {
	if o == OrderAsc {
		return OrderAsc
	}
	return OrderDesc
}

// paginate sorts items by creation time (ties by id), skips through the
// item with id after, then applies limit. An unknown after yields an
// empty page. limit <= 0 means unlimited.
func paginate[T any](items []T, id func(T) string, created func(T) time.Time, after string, limit int, order Order) Page[T] {
	sorted := make([]T, len(items))
	copy(sorted, items)
	desc := normalizeOrder(order) == OrderDesc
	sort.SliceStable(sorted, func(i, j int) bool {
		ci, cj := created(sorted[i]), created(sorted[j])
		if !ci.Equal(cj) {
			if desc {
				return ci.After(cj)
			}
			return ci.Before(cj)
		}
		if desc {
			return id(sorted[i]) > id(sorted[j])
		}
		return id(sorted[i]) < id(sorted[j])
	})

	if after != "" {
		idx := -1
		for i, it := range sorted {
			if id(it) == after {
				idx = i
				break
			}
		}
		if idx < 0 {
			sorted = sorted[:0]
		} else {
			sorted = sorted[idx+1:]
		}
	}

	page := Page[T]{Data: sorted}
	if limit > 0 && len(sorted) > limit {
		page.Data = sorted[:limit]
		page.HasMore = true
		last := id(page.Data[len(page.Data)-1])
		page.After = &last
	}
	if page.Data == nil {
		page.Data = []T{}
	}
	return page
}

func idOfThread(t ThreadMetadata) string        { return t.ID }
func createdOfThread(t ThreadMetadata) time.Time { return t.CreatedAt }
func idOfItem(it ThreadItem) string             { return it.ID }
func createdOfItem(it ThreadItem) time.Time     { return it.CreatedAt }
