package main

import (
	"context"
	"log/slog"
	"time"
)

const quotaWindow = 24 * time.Hour

// QuotaStore enforces the per-member rolling 24h insight generation limit.
// The window is measured from the stored window_start, not a calendar
// boundary, and resets lazily on the next check after it elapses.
//
// Storage errors fail open: a broken quota table must not take insight
// generation down with it.
type QuotaStore struct {
	queries    Querier
	logger     *slog.Logger
	dailyLimit int32
	now        func() time.Time
}

func NewQuotaStore(queries Querier, logger *slog.Logger, dailyLimit int32) *QuotaStore {
	return &QuotaStore{
		queries:    queries,
		logger:     logger,
		dailyLimit: dailyLimit,
		now:        time.Now,
	}
}

// Check reports whether the member may trigger a generation right now.
func (s *QuotaStore) Check(ctx context.Context, memberID int64) bool {
	row, err := s.queries.GetQuota(ctx, memberID)
	if err != nil {
		// First-ever check creates the counter; any other failure is
		// treated the same way and allowed.
		if createErr := s.queries.CreateQuota(ctx, CreateQuotaParams{
			MemberID:    memberID,
			WindowStart: s.now(),
			DailyLimit:  s.dailyLimit,
		}); createErr != nil {
			s.logger.WarnContext(ctx, "quota check failing open",
				slog.String("member", maskUserID(memberID)),
				slog.String("error", createErr.Error()))
		}
		return true
	}

	if row.WindowStart.Valid && s.now().Sub(row.WindowStart.Time) >= quotaWindow {
		if err := s.queries.ResetQuota(ctx, ResetQuotaParams{
			MemberID:    memberID,
			WindowStart: s.now(),
		}); err != nil {
			s.logger.WarnContext(ctx, "quota reset failed, failing open",
				slog.String("member", maskUserID(memberID)),
				slog.String("error", err.Error()))
		}
		return true
	}

	if row.CountToday >= row.DailyLimit {
		quotaDenials.Inc()
		return false
	}

	return true
}

// Increment charges one generation against the member's window. Call it only
// after the provider call succeeded, so a failed generation never consumes
// quota.
func (s *QuotaStore) Increment(ctx context.Context, memberID int64) {
	if err := s.queries.IncrementQuota(ctx, memberID); err != nil {
		s.logger.WarnContext(ctx, "quota increment failed",
			slog.String("member", maskUserID(memberID)),
			slog.String("error", err.Error()))
	}
}

// Limit returns the configured daily limit for error reporting.
func (s *QuotaStore) Limit() int32 {
	return s.dailyLimit
}
