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
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	badgerdb "github.com/spendoapp/spendo/services/storage/badger"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// storeFactories runs the same contract against every ThreadStore.
func storeFactories(t *testing.T) map[string]func() ThreadStore {
	return map[string]func() ThreadStore{
		"memory": func() ThreadStore { return NewMemoryStore() },
		"badger": func() ThreadStore {
			db, err := badgerdb.Open(badgerdb.InMemoryConfig())
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })
			return NewBadgerStore(db)
		},
	}
}

func seedItems(t *testing.T, s ThreadStore, threadID string, n int) []ThreadItem {
	t.Helper()
	items := make([]ThreadItem, n)
	for i := range items {
		items[i] = ThreadItem{
			ID:        fmt.Sprintf("msg_%02d", i),
			ThreadID:  threadID,
			Type:      ItemUserMessage,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
			Content:   []ContentPart{{Type: PartInputText, Text: fmt.Sprintf("message %d", i)}},
		}
		require.NoError(t, s.AddThreadItem(context.Background(), threadID, items[i]))
	}
	return items
}

func ids(items []ThreadItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestGeneratedIDs(t *testing.T) {
	s := NewMemoryStore()
	pattern := regexp.MustCompile(`^thread_[0-9a-f]{8}$`)
	assert.Regexp(t, pattern, s.GenerateThreadID())
	assert.Regexp(t, `^msg_[0-9a-f]{8}$`, s.GenerateItemID(ItemAssistantMessage))
	assert.NotEqual(t, s.GenerateThreadID(), s.GenerateThreadID())
}

func TestThreadStore_Contract(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory()

			_, err := s.LoadThread(ctx, "thread_missing")
			assert.ErrorIs(t, err, ErrThreadNotFound)

			thread := &ThreadMetadata{ID: "thread_a", CreatedAt: base, Status: ActiveStatus}
			require.NoError(t, s.SaveThread(ctx, thread, Caller{UserID: 7, Authenticated: true}))

			loaded, err := s.LoadThread(ctx, "thread_a")
			require.NoError(t, err)
			uid, ok := metadataUserID(loaded.Metadata)
			require.True(t, ok)
			assert.Equal(t, int64(7), uid)

			// An existing owner is never overwritten.
			require.NoError(t, s.SaveThread(ctx, loaded, Caller{UserID: 9, Authenticated: true}))
			loaded, err = s.LoadThread(ctx, "thread_a")
			require.NoError(t, err)
			uid, _ = metadataUserID(loaded.Metadata)
			assert.Equal(t, int64(7), uid)

			items := seedItems(t, s, "thread_a", 3)

			got, err := s.LoadItem(ctx, "thread_a", items[1].ID)
			require.NoError(t, err)
			assert.Equal(t, "message 1", got.Text())
			_, err = s.LoadItem(ctx, "thread_a", "msg_nope")
			assert.ErrorIs(t, err, ErrItemNotFound)

			edited := items[1]
			edited.Content = []ContentPart{{Type: PartInputText, Text: "edited"}}
			require.NoError(t, s.SaveItem(ctx, "thread_a", edited))
			got, err = s.LoadItem(ctx, "thread_a", items[1].ID)
			require.NoError(t, err)
			assert.Equal(t, "edited", got.Text())

			require.NoError(t, s.DeleteThreadItem(ctx, "thread_a", items[0].ID))
			page, err := s.LoadThreadItems(ctx, "thread_a", "", 0, OrderAsc)
			require.NoError(t, err)
			assert.Equal(t, []string{"msg_01", "msg_02"}, ids(page.Data))

			require.NoError(t, s.DeleteThread(ctx, "thread_a"))
			_, err = s.LoadThread(ctx, "thread_a")
			assert.ErrorIs(t, err, ErrThreadNotFound)
			page, err = s.LoadThreadItems(ctx, "thread_a", "", 0, OrderAsc)
			require.NoError(t, err)
			assert.Empty(t, page.Data)
			assert.NotNil(t, page.Data)
		})
	}
}

func TestThreadStore_AnonymousSaveLeavesOwnerUnset(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory()
			require.NoError(t, s.SaveThread(ctx, &ThreadMetadata{ID: "thread_b", CreatedAt: base}, Caller{}))
			loaded, err := s.LoadThread(ctx, "thread_b")
			require.NoError(t, err)
			_, ok := metadataUserID(loaded.Metadata)
			assert.False(t, ok)
		})
	}
}

func TestLoadThreadItems_Pagination(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory()
			seedItems(t, s, "thread_p", 5)

			tests := []struct {
				name    string
				after   string
				limit   int
				order   Order
				want    []string
				hasMore bool
			}{
				{"desc default", "", 0, "", []string{"msg_04", "msg_03", "msg_02", "msg_01", "msg_00"}, false},
				{"asc limited", "", 2, OrderAsc, []string{"msg_00", "msg_01"}, true},
				{"asc after", "msg_01", 2, OrderAsc, []string{"msg_02", "msg_03"}, true},
				{"asc last page", "msg_03", 2, OrderAsc, []string{"msg_04"}, false},
				{"desc after", "msg_03", 10, OrderDesc, []string{"msg_02", "msg_01", "msg_00"}, false},
				{"desc limited", "", 3, OrderDesc, []string{"msg_04", "msg_03", "msg_02"}, true},
				{"unknown after", "msg_99", 10, OrderAsc, []string{}, false},
				{"exact fit", "", 5, OrderAsc, []string{"msg_00", "msg_01", "msg_02", "msg_03", "msg_04"}, false},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					page, err := s.LoadThreadItems(ctx, "thread_p", tt.after, tt.limit, tt.order)
					require.NoError(t, err)
					assert.Equal(t, tt.want, ids(page.Data))
					assert.Equal(t, tt.hasMore, page.HasMore)
					if tt.hasMore {
						require.NotNil(t, page.After)
						assert.Equal(t, tt.want[len(tt.want)-1], *page.After)
					} else {
						assert.Nil(t, page.After)
					}
				})
			}
		})
	}
}

func TestLoadThreads_Pagination(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory()
			for i := 0; i < 3; i++ {
				require.NoError(t, s.SaveThread(ctx, &ThreadMetadata{
					ID:        fmt.Sprintf("thread_%d", i),
					CreatedAt: base.Add(time.Duration(i) * time.Minute),
				}, Caller{}))
			}

			page, err := s.LoadThreads(ctx, 2, "", OrderDesc)
			require.NoError(t, err)
			require.Len(t, page.Data, 2)
			assert.Equal(t, "thread_2", page.Data[0].ID)
			assert.True(t, page.HasMore)
			require.NotNil(t, page.After)
			assert.Equal(t, "thread_1", *page.After)

			next, err := s.LoadThreads(ctx, 2, *page.After, OrderDesc)
			require.NoError(t, err)
			require.Len(t, next.Data, 1)
			assert.Equal(t, "thread_0", next.Data[0].ID)
			assert.False(t, next.HasMore)
		})
	}
}

func TestPaginate_TiesBrokenByID(t *testing.T) {
	items := []ThreadItem{
		{ID: "msg_b", CreatedAt: base},
		{ID: "msg_a", CreatedAt: base},
		{ID: "msg_c", CreatedAt: base},
	}
	asc := paginate(items, idOfItem, createdOfItem, "", 0, OrderAsc)
	assert.Equal(t, []string{"msg_a", "msg_b", "msg_c"}, ids(asc.Data))
	desc := paginate(items, idOfItem, createdOfItem, "", 0, OrderDesc)
	assert.Equal(t, []string{"msg_c", "msg_b", "msg_a"}, ids(desc.Data))
}

func TestMetadataUserID(t *testing.T) {
	tests := []struct {
		in   any
		want int64
		ok   bool
	}{
		{int64(3), 3, true},
		{4, 4, true},
		{float64(5), 5, true},
		{5.5, 0, false},
		{"6", 6, true},
		{"abc", 0, false},
		{nil, 0, false},
		{0, 0, false},
		{true, 0, false},
	}
	for _, tt := range tests {
		got, ok := metadataUserID(map[string]any{MetadataUserIDKey: tt.in})
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got)
		}
	}
	_, ok := metadataUserID(nil)
	assert.False(t, ok)
}
