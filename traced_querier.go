package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// TracedQueriesWrapper implements the ExtendedQuerier interface and adds
// tracing functionality
type TracedQueriesWrapper struct {
	wrapped   ExtendedQuerier
	telemetry *TelemetryConfig
}

// NewTracedQueriesWrapper creates a new TracedQueriesWrapper that decorates an
// existing ExtendedQuerier
func NewTracedQueriesWrapper(wrapped ExtendedQuerier, telemetry *TelemetryConfig) ExtendedQuerier {
	return &TracedQueriesWrapper{
		wrapped:   wrapped,
		telemetry: telemetry,
	}
}

// WithTx creates a new TracedQueriesWrapper with a transaction
func (t *TracedQueriesWrapper) WithTx(tx pgx.Tx) ExtendedQuerier {
	return &TracedQueriesWrapper{
		wrapped:   t.wrapped.WithTx(tx),
		telemetry: t.telemetry,
	}
}

// track opens a span for a named query and returns the finish callback that
// records the error or the success attributes plus duration metrics.
func (t *TracedQueriesWrapper) track(ctx context.Context, name string) (context.Context, func(err error, attrs ...attribute.KeyValue)) {
	ctx, span := t.telemetry.Tracer.Start(ctx, name+"(query)")
	start := time.Now()

	return ctx, func(err error, attrs ...attribute.KeyValue) {
		defer span.End()
		duration := time.Since(start).Seconds()

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}

		span.SetAttributes(append(attrs, attribute.Float64("request.duration", duration))...)
		span.SetStatus(codes.Ok, "")

		if t.telemetry.Metrics.DBQueryDuration != nil {
			t.telemetry.Metrics.DBQueryDuration.Record(ctx, duration,
				metric.WithAttributes(
					attribute.String("query", name),
				),
			)
		}
	}
}

func (t *TracedQueriesWrapper) CreateMember(ctx context.Context, arg CreateMemberParams) (CreateMemberRow, error) {
	ctx, finish := t.track(ctx, "CreateMember")
	row, err := t.wrapped.CreateMember(ctx, arg)
	if err != nil {
		finish(err)
		return row, fmt.Errorf("query error: %w", err)
	}
	finish(nil, attribute.Int64("member.id", row.ID))
	return row, nil
}

func (t *TracedQueriesWrapper) GetMember(ctx context.Context, id int64) (GetMemberRow, error) {
	ctx, finish := t.track(ctx, "GetMember")
	row, err := t.wrapped.GetMember(ctx, id)
	if err != nil {
		finish(err)
		return row, fmt.Errorf("query error: %w", err)
	}
	finish(nil, attribute.Int64("member.id", id))
	return row, nil
}

func (t *TracedQueriesWrapper) GetMemberByEmail(ctx context.Context, email string) (GetMemberByEmailRow, error) {
	ctx, finish := t.track(ctx, "GetMemberByEmail")
	row, err := t.wrapped.GetMemberByEmail(ctx, email)
	if err != nil {
		finish(err)
		return row, fmt.Errorf("query error: %w", err)
	}
	finish(nil, attribute.String("member.email_hash", hashEmail(email)))
	return row, nil
}

func (t *TracedQueriesWrapper) CreateSession(ctx context.Context, arg CreateSessionParams) error {
	ctx, finish := t.track(ctx, "CreateSession")
	err := t.wrapped.CreateSession(ctx, arg)
	if err != nil {
		finish(err)
		return fmt.Errorf("query error: %w", err)
	}
	finish(nil, attribute.Int64("member.id", arg.MemberID))
	return nil
}

func (t *TracedQueriesWrapper) GetSessionMember(ctx context.Context, id uuid.UUID) (GetSessionMemberRow, error) {
	ctx, finish := t.track(ctx, "GetSessionMember")
	row, err := t.wrapped.GetSessionMember(ctx, id)
	if err != nil {
		finish(err)
		return row, fmt.Errorf("query error: %w", err)
	}
	finish(nil, attribute.Int64("member.id", row.MemberID))
	return row, nil
}

func (t *TracedQueriesWrapper) TouchSession(ctx context.Context, id uuid.UUID) error {
	ctx, finish := t.track(ctx, "TouchSession")
	err := t.wrapped.TouchSession(ctx, id)
	if err != nil {
		finish(err)
		return fmt.Errorf("query error: %w", err)
	}
	finish(nil)
	return nil
}

func (t *TracedQueriesWrapper) RevokeSession(ctx context.Context, id uuid.UUID) error {
	ctx, finish := t.track(ctx, "RevokeSession")
	err := t.wrapped.RevokeSession(ctx, id)
	if err != nil {
		finish(err)
		return fmt.Errorf("query error: %w", err)
	}
	finish(nil)
	return nil
}

func (t *TracedQueriesWrapper) CountActiveSessions(ctx context.Context, activeSince time.Time) (int64, error) {
	ctx, finish := t.track(ctx, "CountActiveSessions")
	count, err := t.wrapped.CountActiveSessions(ctx, activeSince)
	if err != nil {
		finish(err)
		return count, fmt.Errorf("query error: %w", err)
	}
	finish(nil, attribute.Int64("presence.count", count))
	return count, nil
}

func (t *TracedQueriesWrapper) CreateTopic(ctx context.Context, arg CreateTopicParams) (CreateTopicRow, error) {
	ctx, finish := t.track(ctx, "CreateTopic")
	row, err := t.wrapped.CreateTopic(ctx, arg)
	if err != nil {
		finish(err)
		return row, fmt.Errorf("query error: %w", err)
	}
	finish(nil,
		attribute.Int64("topic.id", row.ID),
		attribute.Int64("topic.subject_id", arg.SubjectID),
		attribute.String("topic.media_kind", arg.MediaKind),
	)
	return row, nil
}

func (t *TracedQueriesWrapper) GetTopic(ctx context.Context, id int64) (GetTopicRow, error) {
	ctx, finish := t.track(ctx, "GetTopic")
	row, err := t.wrapped.GetTopic(ctx, id)
	if err != nil {
		finish(err)
		return row, fmt.Errorf("query error: %w", err)
	}
	finish(nil, attribute.Int64("topic.id", id))
	return row, nil
}

func (t *TracedQueriesWrapper) ListTopics(ctx context.Context, arg ListTopicsParams) ([]ListTopicsRow, error) {
	ctx, finish := t.track(ctx, "ListTopics")
	rows, err := t.wrapped.ListTopics(ctx, arg)
	if err != nil {
		finish(err)
		return rows, fmt.Errorf("query error: %w", err)
	}
	finish(nil,
		attribute.Int64("topic.subject_id", arg.SubjectID),
		attribute.Int("result.count", len(rows)),
	)
	return rows, nil
}

func (t *TracedQueriesWrapper) TouchTopic(ctx context.Context, id int64) error {
	ctx, finish := t.track(ctx, "TouchTopic")
	err := t.wrapped.TouchTopic(ctx, id)
	if err != nil {
		finish(err)
		return fmt.Errorf("query error: %w", err)
	}
	finish(nil, attribute.Int64("topic.id", id))
	return nil
}

func (t *TracedQueriesWrapper) CreatePost(ctx context.Context, arg CreatePostParams) (CreatePostRow, error) {
	ctx, finish := t.track(ctx, "CreatePost")
	row, err := t.wrapped.CreatePost(ctx, arg)
	if err != nil {
		finish(err)
		return row, fmt.Errorf("query error: %w", err)
	}
	finish(nil,
		attribute.Int64("post.id", row.ID),
		attribute.Int64("topic.id", arg.TopicID),
		attribute.Int("post.depth", int(arg.Depth)),
	)
	return row, nil
}

func (t *TracedQueriesWrapper) GetPost(ctx context.Context, id int64) (GetPostRow, error) {
	ctx, finish := t.track(ctx, "GetPost")
	row, err := t.wrapped.GetPost(ctx, id)
	if err != nil {
		finish(err)
		return row, fmt.Errorf("query error: %w", err)
	}
	finish(nil, attribute.Int64("post.id", id))
	return row, nil
}

func (t *TracedQueriesWrapper) ListPosts(ctx context.Context, topicID int64) ([]ListPostsRow, error) {
	ctx, finish := t.track(ctx, "ListPosts")
	rows, err := t.wrapped.ListPosts(ctx, topicID)
	if err != nil {
		finish(err)
		return rows, fmt.Errorf("query error: %w", err)
	}
	finish(nil,
		attribute.Int64("topic.id", topicID),
		attribute.Int("result.count", len(rows)),
	)
	return rows, nil
}

func (t *TracedQueriesWrapper) UpdatePostBody(ctx context.Context, arg UpdatePostBodyParams) (int64, error) {
	ctx, finish := t.track(ctx, "UpdatePostBody")
	n, err := t.wrapped.UpdatePostBody(ctx, arg)
	if err != nil {
		finish(err)
		return n, fmt.Errorf("query error: %w", err)
	}
	finish(nil, attribute.Int64("post.id", arg.ID))
	return n, nil
}

func (t *TracedQueriesWrapper) TombstonePost(ctx context.Context, arg TombstonePostParams) (int64, error) {
	ctx, finish := t.track(ctx, "TombstonePost")
	n, err := t.wrapped.TombstonePost(ctx, arg)
	if err != nil {
		finish(err)
		return n, fmt.Errorf("query error: %w", err)
	}
	finish(nil, attribute.Int64("post.id", arg.ID))
	return n, nil
}

func (t *TracedQueriesWrapper) DeleteVote(ctx context.Context, arg DeleteVoteParams) (int64, error) {
	ctx, finish := t.track(ctx, "DeleteVote")
	n, err := t.wrapped.DeleteVote(ctx, arg)
	if err != nil {
		finish(err)
		return n, fmt.Errorf("query error: %w", err)
	}
	finish(nil, attribute.Int64("post.id", arg.PostID))
	return n, nil
}

func (t *TracedQueriesWrapper) InsertVote(ctx context.Context, arg InsertVoteParams) (int64, error) {
	ctx, finish := t.track(ctx, "InsertVote")
	n, err := t.wrapped.InsertVote(ctx, arg)
	if err != nil {
		finish(err)
		return n, fmt.Errorf("query error: %w", err)
	}
	finish(nil, attribute.Int64("post.id", arg.PostID))
	return n, nil
}

func (t *TracedQueriesWrapper) GetVoteTotal(ctx context.Context, postID int64) (int64, error) {
	ctx, finish := t.track(ctx, "GetVoteTotal")
	total, err := t.wrapped.GetVoteTotal(ctx, postID)
	if err != nil {
		finish(err)
		return total, fmt.Errorf("query error: %w", err)
	}
	finish(nil, attribute.Int64("post.id", postID))
	return total, nil
}

func (t *TracedQueriesWrapper) ListMemberVotes(ctx context.Context, arg ListMemberVotesParams) ([]int64, error) {
	ctx, finish := t.track(ctx, "ListMemberVotes")
	ids, err := t.wrapped.ListMemberVotes(ctx, arg)
	if err != nil {
		finish(err)
		return ids, fmt.Errorf("query error: %w", err)
	}
	finish(nil, attribute.Int("result.count", len(ids)))
	return ids, nil
}

func (t *TracedQueriesWrapper) GetCacheEntry(ctx context.Context, arg GetCacheEntryParams) (GetCacheEntryRow, error) {
	ctx, finish := t.track(ctx, "GetCacheEntry")
	row, err := t.wrapped.GetCacheEntry(ctx, arg)
	if err != nil {
		finish(err)
		return row, fmt.Errorf("query error: %w", err)
	}
	finish(nil,
		attribute.String("cache.flavor", arg.Flavor),
		attribute.Int64("cache.subject_id", arg.SubjectID),
	)
	return row, nil
}

func (t *TracedQueriesWrapper) UpsertCacheEntry(ctx context.Context, arg UpsertCacheEntryParams) error {
	ctx, finish := t.track(ctx, "UpsertCacheEntry")
	err := t.wrapped.UpsertCacheEntry(ctx, arg)
	if err != nil {
		finish(err)
		return fmt.Errorf("query error: %w", err)
	}
	finish(nil,
		attribute.String("cache.flavor", arg.Flavor),
		attribute.Int64("cache.subject_id", arg.SubjectID),
	)
	return nil
}

func (t *TracedQueriesWrapper) GetQuota(ctx context.Context, memberID int64) (GetQuotaRow, error) {
	ctx, finish := t.track(ctx, "GetQuota")
	row, err := t.wrapped.GetQuota(ctx, memberID)
	if err != nil {
		finish(err)
		return row, fmt.Errorf("query error: %w", err)
	}
	finish(nil, attribute.String("member.hash", maskUserID(memberID)))
	return row, nil
}

func (t *TracedQueriesWrapper) CreateQuota(ctx context.Context, arg CreateQuotaParams) error {
	ctx, finish := t.track(ctx, "CreateQuota")
	err := t.wrapped.CreateQuota(ctx, arg)
	if err != nil {
		finish(err)
		return fmt.Errorf("query error: %w", err)
	}
	finish(nil, attribute.String("member.hash", maskUserID(arg.MemberID)))
	return nil
}

func (t *TracedQueriesWrapper) ResetQuota(ctx context.Context, arg ResetQuotaParams) error {
	ctx, finish := t.track(ctx, "ResetQuota")
	err := t.wrapped.ResetQuota(ctx, arg)
	if err != nil {
		finish(err)
		return fmt.Errorf("query error: %w", err)
	}
	finish(nil, attribute.String("member.hash", maskUserID(arg.MemberID)))
	return nil
}

func (t *TracedQueriesWrapper) IncrementQuota(ctx context.Context, memberID int64) error {
	ctx, finish := t.track(ctx, "IncrementQuota")
	err := t.wrapped.IncrementQuota(ctx, memberID)
	if err != nil {
		finish(err)
		return fmt.Errorf("query error: %w", err)
	}
	finish(nil, attribute.String("member.hash", maskUserID(memberID)))
	return nil
}
