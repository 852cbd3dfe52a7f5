package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheStoreTitleDetails(t *testing.T) {
	ctx := context.Background()
	details := &TitleDetails{
		ID:        550,
		MediaKind: MediaKindMovie,
		Title:     "Fight Club",
		Overview:  "An insomniac office worker...",
	}

	t.Run("round trip", func(t *testing.T) {
		queries := newFakeCacheQueries()
		cache := NewCacheStore(queries, testLogger(), time.Hour, time.Hour)

		_, ok := cache.GetTitleDetails(ctx, 550, MediaKindMovie)
		assert.False(t, ok)

		cache.PutTitleDetails(ctx, 550, MediaKindMovie, details)

		got, ok := cache.GetTitleDetails(ctx, 550, MediaKindMovie)
		require.True(t, ok)
		assert.Equal(t, details, got)
	})

	t.Run("media kinds do not collide", func(t *testing.T) {
		queries := newFakeCacheQueries()
		cache := NewCacheStore(queries, testLogger(), time.Hour, time.Hour)

		cache.PutTitleDetails(ctx, 550, MediaKindMovie, details)

		_, ok := cache.GetTitleDetails(ctx, 550, MediaKindTV)
		assert.False(t, ok)
	})

	t.Run("entry expiring exactly now is a miss", func(t *testing.T) {
		queries := newFakeCacheQueries()
		cache := NewCacheStore(queries, testLogger(), time.Hour, time.Hour)

		frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		cache.now = func() time.Time { return frozen }

		cache.PutTitleDetails(ctx, 550, MediaKindMovie, details)

		// Freshness requires the expiry to be strictly in the future.
		cache.now = func() time.Time { return frozen.Add(time.Hour) }
		_, ok := cache.GetTitleDetails(ctx, 550, MediaKindMovie)
		assert.False(t, ok)

		cache.now = func() time.Time { return frozen.Add(time.Hour - time.Second) }
		_, ok = cache.GetTitleDetails(ctx, 550, MediaKindMovie)
		assert.True(t, ok)
	})

	t.Run("read error degrades to miss", func(t *testing.T) {
		queries := &MockQueries{
			GetCacheEntryFunc: func(ctx context.Context, arg GetCacheEntryParams) (GetCacheEntryRow, error) {
				return GetCacheEntryRow{}, errors.New("connection refused")
			},
		}
		cache := NewCacheStore(queries, testLogger(), time.Hour, time.Hour)

		_, ok := cache.GetTitleDetails(ctx, 550, MediaKindMovie)
		assert.False(t, ok)
	})

	t.Run("write error is swallowed", func(t *testing.T) {
		queries := &MockQueries{
			UpsertCacheEntryFunc: func(ctx context.Context, arg UpsertCacheEntryParams) error {
				return errors.New("connection refused")
			},
		}
		cache := NewCacheStore(queries, testLogger(), time.Hour, time.Hour)

		assert.NotPanics(t, func() {
			cache.PutTitleDetails(ctx, 550, MediaKindMovie, details)
		})
	})

	t.Run("undecodable payload is a miss", func(t *testing.T) {
		queries := &MockQueries{
			GetCacheEntryFunc: func(ctx context.Context, arg GetCacheEntryParams) (GetCacheEntryRow, error) {
				return GetCacheEntryRow{
					Payload:   []byte("{not json"),
					ExpiresAt: pgtype.Timestamptz{Time: time.Now().Add(time.Hour), Valid: true},
				}, nil
			},
		}
		cache := NewCacheStore(queries, testLogger(), time.Hour, time.Hour)

		_, ok := cache.GetTitleDetails(ctx, 550, MediaKindMovie)
		assert.False(t, ok)
	})
}

func TestCacheStoreInsights(t *testing.T) {
	ctx := context.Background()
	insights := []Insight{
		{ID: "a", Kind: InsightKindDialogue, Text: "First rule."},
		{ID: "b", Kind: InsightKindMetaphor, Text: "Soap."},
	}

	t.Run("round trip", func(t *testing.T) {
		queries := newFakeCacheQueries()
		cache := NewCacheStore(queries, testLogger(), time.Hour, time.Hour)

		cache.PutInsights(ctx, 550, MediaKindMovie, insights)

		got, ok := cache.GetInsights(ctx, 550, MediaKindMovie)
		require.True(t, ok)
		assert.Equal(t, insights, got)
	})

	t.Run("flavors are independent", func(t *testing.T) {
		queries := newFakeCacheQueries()
		cache := NewCacheStore(queries, testLogger(), time.Hour, time.Hour)

		cache.PutInsights(ctx, 550, MediaKindMovie, insights)

		_, ok := cache.GetTitleDetails(ctx, 550, MediaKindMovie)
		assert.False(t, ok)
	})

	t.Run("each flavor gets its own TTL", func(t *testing.T) {
		queries := newFakeCacheQueries()
		cache := NewCacheStore(queries, testLogger(), time.Hour, 10*time.Minute)

		frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		cache.now = func() time.Time { return frozen }

		cache.PutTitleDetails(ctx, 550, MediaKindMovie, &TitleDetails{ID: 550})
		cache.PutInsights(ctx, 550, MediaKindMovie, insights)

		cache.now = func() time.Time { return frozen.Add(30 * time.Minute) }

		_, ok := cache.GetTitleDetails(ctx, 550, MediaKindMovie)
		assert.True(t, ok)
		_, ok = cache.GetInsights(ctx, 550, MediaKindMovie)
		assert.False(t, ok)
	})
}

func TestCacheStorePayloadShape(t *testing.T) {
	// The stored payload is plain JSON of the concrete type, so schema
	// changes age out with the TTL instead of breaking reads.
	queries := newFakeCacheQueries()
	cache := NewCacheStore(queries, testLogger(), time.Hour, time.Hour)

	cache.PutTitleDetails(context.Background(), 550, MediaKindMovie, &TitleDetails{ID: 550, Title: "Fight Club"})

	entry, ok := queries.entries[cacheKey(CacheFlavorMetadata, 550, MediaKindMovie)]
	require.True(t, ok)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(entry.Payload, &decoded))
	assert.Equal(t, "Fight Club", decoded["title"])
}
