package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// CacheStore is the persisted cache in front of the external providers. A
// miss is not an error: read failures degrade to misses and write failures
// are logged and swallowed, so a broken cache never fails the caller's
// request. The stored blob is decoded into its concrete type here at the
// boundary; nothing downstream sees raw payload bytes.
type CacheStore struct {
	queries     Querier
	logger      *slog.Logger
	metadataTTL time.Duration
	insightTTL  time.Duration
	now         func() time.Time
}

func NewCacheStore(queries Querier, logger *slog.Logger, metadataTTL, insightTTL time.Duration) *CacheStore {
	return &CacheStore{
		queries:     queries,
		logger:      logger,
		metadataTTL: metadataTTL,
		insightTTL:  insightTTL,
		now:         time.Now,
	}
}

// get returns the raw payload if an entry exists and its expiry is strictly
// in the future.
func (c *CacheStore) get(ctx context.Context, flavor string, subjectID int64, mediaKind string) ([]byte, bool) {
	row, err := c.queries.GetCacheEntry(ctx, GetCacheEntryParams{
		Flavor:    flavor,
		SubjectID: subjectID,
		MediaKind: mediaKind,
	})
	if err != nil {
		// Includes "no rows": either way it is a miss.
		cacheMisses.WithLabelValues(flavor).Inc()
		return nil, false
	}

	if !row.ExpiresAt.Valid || !row.ExpiresAt.Time.After(c.now()) {
		cacheMisses.WithLabelValues(flavor).Inc()
		return nil, false
	}

	cacheHits.WithLabelValues(flavor).Inc()
	return row.Payload, true
}

func (c *CacheStore) put(ctx context.Context, flavor string, subjectID int64, mediaKind string, payload []byte, ttl time.Duration) {
	err := c.queries.UpsertCacheEntry(ctx, UpsertCacheEntryParams{
		Flavor:    flavor,
		SubjectID: subjectID,
		MediaKind: mediaKind,
		Payload:   payload,
		ExpiresAt: c.now().Add(ttl),
	})
	if err != nil {
		c.logger.WarnContext(ctx, "cache write failed",
			slog.String("flavor", flavor),
			slog.Int64("subject_id", subjectID),
			slog.String("error", err.Error()))
	}
}

// GetTitleDetails returns the cached metadata payload for a title, if fresh.
func (c *CacheStore) GetTitleDetails(ctx context.Context, subjectID int64, mediaKind string) (*TitleDetails, bool) {
	payload, ok := c.get(ctx, CacheFlavorMetadata, subjectID, mediaKind)
	if !ok {
		return nil, false
	}

	var details TitleDetails
	if err := json.Unmarshal(payload, &details); err != nil {
		c.logger.WarnContext(ctx, "discarding undecodable metadata cache entry",
			slog.Int64("subject_id", subjectID),
			slog.String("error", err.Error()))
		return nil, false
	}
	return &details, true
}

func (c *CacheStore) PutTitleDetails(ctx context.Context, subjectID int64, mediaKind string, details *TitleDetails) {
	payload, err := json.Marshal(details)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to encode metadata for cache", slog.String("error", err.Error()))
		return
	}
	c.put(ctx, CacheFlavorMetadata, subjectID, mediaKind, payload, c.metadataTTL)
}

// GetInsights returns the cached insight set for a title, if fresh.
func (c *CacheStore) GetInsights(ctx context.Context, subjectID int64, mediaKind string) ([]Insight, bool) {
	payload, ok := c.get(ctx, CacheFlavorInsights, subjectID, mediaKind)
	if !ok {
		return nil, false
	}

	var insights []Insight
	if err := json.Unmarshal(payload, &insights); err != nil {
		c.logger.WarnContext(ctx, "discarding undecodable insight cache entry",
			slog.Int64("subject_id", subjectID),
			slog.String("error", err.Error()))
		return nil, false
	}
	return insights, true
}

func (c *CacheStore) PutInsights(ctx context.Context, subjectID int64, mediaKind string, insights []Insight) {
	payload, err := json.Marshal(insights)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to encode insights for cache", slog.String("error", err.Error()))
		return
	}
	c.put(ctx, CacheFlavorInsights, subjectID, mediaKind, payload, c.insightTTL)
}
