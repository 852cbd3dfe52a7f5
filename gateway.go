package main

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const recentWorkWindow = 2 * 365 * 24 * time.Hour

// farFuture stands in for missing release dates so announced-but-undated
// credits sort ahead of everything released.
var farFuture = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

type metadataProvider interface {
	SearchTitles(ctx context.Context, query, mediaKind string) ([]TitleSummary, error)
	GetTitleDetails(ctx context.Context, subjectID int64, mediaKind string) (*TitleDetails, error)
	GetPersonCredits(ctx context.Context, personID int64) ([]PersonCredit, error)
}

type insightProvider interface {
	GenerateInsights(ctx context.Context, mediaKind, title, synopsis string) ([]Insight, error)
}

// Gateway is the cache-first front for the two external providers.
type Gateway struct {
	metadata metadataProvider
	llm      insightProvider
	cache    *CacheStore
	quota    *QuotaStore
	logger   *slog.Logger
	now      func() time.Time
}

func NewGateway(metadata metadataProvider, llm insightProvider, cache *CacheStore, quota *QuotaStore, logger *slog.Logger) *Gateway {
	return &Gateway{
		metadata: metadata,
		llm:      llm,
		cache:    cache,
		quota:    quota,
		logger:   logger,
		now:      time.Now,
	}
}

// SearchTitles proxies a title search. Interactive and parameterized, so it
// is never cached.
func (g *Gateway) SearchTitles(ctx context.Context, query, mediaKind string) ([]TitleSummary, error) {
	start := time.Now()
	results, err := g.metadata.SearchTitles(ctx, query, mediaKind)
	providerCallDuration.WithLabelValues("metadata", "search").Observe(time.Since(start).Seconds())
	return results, err
}

// FetchTitleDetails returns a title's detail record, from cache when fresh.
func (g *Gateway) FetchTitleDetails(ctx context.Context, subjectID int64, mediaKind string) (*TitleDetails, error) {
	if details, ok := g.cache.GetTitleDetails(ctx, subjectID, mediaKind); ok {
		return details, nil
	}

	start := time.Now()
	details, err := g.metadata.GetTitleDetails(ctx, subjectID, mediaKind)
	providerCallDuration.WithLabelValues("metadata", "details").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	g.cache.PutTitleDetails(ctx, subjectID, mediaKind, details)
	return details, nil
}

// FetchActorRecentWork returns up to three of an actor's most recent titles:
// anything released within the trailing two years, plus undated/upcoming
// credits, newest first. This is best-effort enrichment; every failure
// degrades to an empty list.
func (g *Gateway) FetchActorRecentWork(ctx context.Context, actorID int64) []PersonCredit {
	credits, err := g.metadata.GetPersonCredits(ctx, actorID)
	if err != nil {
		g.logger.DebugContext(ctx, "actor credits lookup failed",
			slog.Int64("actor_id", actorID),
			slog.String("error", err.Error()))
		return []PersonCredit{}
	}

	cutoff := g.now().Add(-recentWorkWindow)

	recent := lo.Filter(credits, func(credit PersonCredit, _ int) bool {
		return creditReleaseTime(credit).After(cutoff)
	})

	sort.SliceStable(recent, func(i, j int) bool {
		return creditReleaseTime(recent[i]).After(creditReleaseTime(recent[j]))
	})

	if len(recent) > 3 {
		recent = recent[:3]
	}
	if recent == nil {
		recent = []PersonCredit{}
	}
	return recent
}

// creditReleaseTime parses a credit's release date, mapping undated entries
// to the far-future sentinel so they count as upcoming.
func creditReleaseTime(credit PersonCredit) time.Time {
	if credit.ReleaseDate == "" {
		return farFuture
	}
	t, err := time.Parse("2006-01-02", credit.ReleaseDate)
	if err != nil {
		return farFuture
	}
	return t
}

// GenerateInsights returns the insight set for a title, generating it on a
// cache miss. Quota gates generation only: a cached read is free and never
// consults the counter. memberID of zero means no authenticated user, in
// which case generation proceeds unmetered.
func (g *Gateway) GenerateInsights(ctx context.Context, subjectID int64, mediaKind, title, synopsis string, memberID int64) ([]Insight, error) {
	if insights, ok := g.cache.GetInsights(ctx, subjectID, mediaKind); ok {
		return insights, nil
	}

	if memberID != 0 && !g.quota.Check(ctx, memberID) {
		return nil, RateLimitError{MemberID: memberID, Limit: g.quota.Limit()}
	}

	start := time.Now()
	insights, err := g.llm.GenerateInsights(ctx, mediaKind, title, synopsis)
	providerCallDuration.WithLabelValues("llm", "insights").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	// A response that parsed to nothing is not worth pinning under the
	// insight TTL, and the member should not pay for it. Leave the cache
	// empty so a later request can try again.
	if len(insights) == 0 {
		return []Insight{}, nil
	}

	for i := range insights {
		insights[i].ID = uuid.New().String()
	}

	g.cache.PutInsights(ctx, subjectID, mediaKind, insights)

	if memberID != 0 {
		g.quota.Increment(ctx, memberID)
	}

	return insights, nil
}
