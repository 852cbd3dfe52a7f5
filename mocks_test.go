package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(queries Querier) *CineService {
	return &CineService{
		logger:         testLogger(),
		queries:        queries,
		presenceWindow: 5 * time.Minute,
		version:        "test",
		gitSha:         "test",
	}
}

// withSession attaches a syntactically valid session cookie. Whether it
// resolves to a member is up to the mock's GetSessionMember.
func withSession(r *http.Request) *http.Request {
	r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: uuid.New().String()})
	return r
}

type MockQueries struct {
	CreateMemberFunc        func(ctx context.Context, arg CreateMemberParams) (CreateMemberRow, error)
	GetMemberFunc           func(ctx context.Context, id int64) (GetMemberRow, error)
	GetMemberByEmailFunc    func(ctx context.Context, email string) (GetMemberByEmailRow, error)
	CreateSessionFunc       func(ctx context.Context, arg CreateSessionParams) error
	GetSessionMemberFunc    func(ctx context.Context, id uuid.UUID) (GetSessionMemberRow, error)
	TouchSessionFunc        func(ctx context.Context, id uuid.UUID) error
	RevokeSessionFunc       func(ctx context.Context, id uuid.UUID) error
	CountActiveSessionsFunc func(ctx context.Context, activeSince time.Time) (int64, error)
	CreateTopicFunc         func(ctx context.Context, arg CreateTopicParams) (CreateTopicRow, error)
	GetTopicFunc            func(ctx context.Context, id int64) (GetTopicRow, error)
	ListTopicsFunc          func(ctx context.Context, arg ListTopicsParams) ([]ListTopicsRow, error)
	TouchTopicFunc          func(ctx context.Context, id int64) error
	CreatePostFunc          func(ctx context.Context, arg CreatePostParams) (CreatePostRow, error)
	GetPostFunc             func(ctx context.Context, id int64) (GetPostRow, error)
	ListPostsFunc           func(ctx context.Context, topicID int64) ([]ListPostsRow, error)
	UpdatePostBodyFunc      func(ctx context.Context, arg UpdatePostBodyParams) (int64, error)
	TombstonePostFunc       func(ctx context.Context, arg TombstonePostParams) (int64, error)
	DeleteVoteFunc          func(ctx context.Context, arg DeleteVoteParams) (int64, error)
	InsertVoteFunc          func(ctx context.Context, arg InsertVoteParams) (int64, error)
	GetVoteTotalFunc        func(ctx context.Context, postID int64) (int64, error)
	ListMemberVotesFunc     func(ctx context.Context, arg ListMemberVotesParams) ([]int64, error)
	GetCacheEntryFunc       func(ctx context.Context, arg GetCacheEntryParams) (GetCacheEntryRow, error)
	UpsertCacheEntryFunc    func(ctx context.Context, arg UpsertCacheEntryParams) error
	GetQuotaFunc            func(ctx context.Context, memberID int64) (GetQuotaRow, error)
	CreateQuotaFunc         func(ctx context.Context, arg CreateQuotaParams) error
	ResetQuotaFunc          func(ctx context.Context, arg ResetQuotaParams) error
	IncrementQuotaFunc      func(ctx context.Context, memberID int64) error
}

var _ ExtendedQuerier = (*MockQueries)(nil)

func (m *MockQueries) WithTx(tx pgx.Tx) ExtendedQuerier {
	return m
}

func (m *MockQueries) CreateMember(ctx context.Context, arg CreateMemberParams) (CreateMemberRow, error) {
	if m.CreateMemberFunc != nil {
		return m.CreateMemberFunc(ctx, arg)
	}
	return CreateMemberRow{ID: 1, DateJoined: pgtype.Timestamptz{Time: time.Now(), Valid: true}}, nil
}

func (m *MockQueries) GetMember(ctx context.Context, id int64) (GetMemberRow, error) {
	if m.GetMemberFunc != nil {
		return m.GetMemberFunc(ctx, id)
	}
	return GetMemberRow{
		ID:          id,
		Email:       "mock@example.com",
		DisplayName: "Mock Member",
		DateJoined:  pgtype.Timestamptz{Time: time.Now(), Valid: true},
	}, nil
}

func (m *MockQueries) GetMemberByEmail(ctx context.Context, email string) (GetMemberByEmailRow, error) {
	if m.GetMemberByEmailFunc != nil {
		return m.GetMemberByEmailFunc(ctx, email)
	}
	return GetMemberByEmailRow{ID: 1, Email: email, DisplayName: "Mock Member"}, nil
}

func (m *MockQueries) CreateSession(ctx context.Context, arg CreateSessionParams) error {
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx, arg)
	}
	return nil
}

func (m *MockQueries) GetSessionMember(ctx context.Context, id uuid.UUID) (GetSessionMemberRow, error) {
	if m.GetSessionMemberFunc != nil {
		return m.GetSessionMemberFunc(ctx, id)
	}
	return GetSessionMemberRow{
		ID:          id,
		MemberID:    1,
		Email:       "mock@example.com",
		DisplayName: "Mock Member",
	}, nil
}

func (m *MockQueries) TouchSession(ctx context.Context, id uuid.UUID) error {
	if m.TouchSessionFunc != nil {
		return m.TouchSessionFunc(ctx, id)
	}
	return nil
}

func (m *MockQueries) RevokeSession(ctx context.Context, id uuid.UUID) error {
	if m.RevokeSessionFunc != nil {
		return m.RevokeSessionFunc(ctx, id)
	}
	return nil
}

func (m *MockQueries) CountActiveSessions(ctx context.Context, activeSince time.Time) (int64, error) {
	if m.CountActiveSessionsFunc != nil {
		return m.CountActiveSessionsFunc(ctx, activeSince)
	}
	return 0, nil
}

func (m *MockQueries) CreateTopic(ctx context.Context, arg CreateTopicParams) (CreateTopicRow, error) {
	if m.CreateTopicFunc != nil {
		return m.CreateTopicFunc(ctx, arg)
	}
	return CreateTopicRow{
		ID:             1,
		CreatedAt:      pgtype.Timestamptz{Time: time.Now(), Valid: true},
		LastActivityAt: pgtype.Timestamptz{Time: time.Now(), Valid: true},
	}, nil
}

func (m *MockQueries) GetTopic(ctx context.Context, id int64) (GetTopicRow, error) {
	if m.GetTopicFunc != nil {
		return m.GetTopicFunc(ctx, id)
	}
	return GetTopicRow{
		ID:        id,
		SubjectID: 550,
		MediaKind: MediaKindMovie,
		Title:     "Mock Topic",
		Prompt:    "What did everyone think?",
		MemberID:  1,
	}, nil
}

func (m *MockQueries) ListTopics(ctx context.Context, arg ListTopicsParams) ([]ListTopicsRow, error) {
	if m.ListTopicsFunc != nil {
		return m.ListTopicsFunc(ctx, arg)
	}
	return []ListTopicsRow{}, nil
}

func (m *MockQueries) TouchTopic(ctx context.Context, id int64) error {
	if m.TouchTopicFunc != nil {
		return m.TouchTopicFunc(ctx, id)
	}
	return nil
}

func (m *MockQueries) CreatePost(ctx context.Context, arg CreatePostParams) (CreatePostRow, error) {
	if m.CreatePostFunc != nil {
		return m.CreatePostFunc(ctx, arg)
	}
	return CreatePostRow{ID: 1, CreatedAt: pgtype.Timestamptz{Time: time.Now(), Valid: true}}, nil
}

func (m *MockQueries) GetPost(ctx context.Context, id int64) (GetPostRow, error) {
	if m.GetPostFunc != nil {
		return m.GetPostFunc(ctx, id)
	}
	return GetPostRow{
		ID:         id,
		TopicID:    1,
		MemberID:   1,
		Depth:      0,
		Status:     PostStatusActive,
		AuthorName: "Mock Member",
	}, nil
}

func (m *MockQueries) ListPosts(ctx context.Context, topicID int64) ([]ListPostsRow, error) {
	if m.ListPostsFunc != nil {
		return m.ListPostsFunc(ctx, topicID)
	}
	return []ListPostsRow{}, nil
}

func (m *MockQueries) UpdatePostBody(ctx context.Context, arg UpdatePostBodyParams) (int64, error) {
	if m.UpdatePostBodyFunc != nil {
		return m.UpdatePostBodyFunc(ctx, arg)
	}
	return 1, nil
}

func (m *MockQueries) TombstonePost(ctx context.Context, arg TombstonePostParams) (int64, error) {
	if m.TombstonePostFunc != nil {
		return m.TombstonePostFunc(ctx, arg)
	}
	return 1, nil
}

func (m *MockQueries) DeleteVote(ctx context.Context, arg DeleteVoteParams) (int64, error) {
	if m.DeleteVoteFunc != nil {
		return m.DeleteVoteFunc(ctx, arg)
	}
	return 0, nil
}

func (m *MockQueries) InsertVote(ctx context.Context, arg InsertVoteParams) (int64, error) {
	if m.InsertVoteFunc != nil {
		return m.InsertVoteFunc(ctx, arg)
	}
	return 1, nil
}

func (m *MockQueries) GetVoteTotal(ctx context.Context, postID int64) (int64, error) {
	if m.GetVoteTotalFunc != nil {
		return m.GetVoteTotalFunc(ctx, postID)
	}
	return 0, nil
}

func (m *MockQueries) ListMemberVotes(ctx context.Context, arg ListMemberVotesParams) ([]int64, error) {
	if m.ListMemberVotesFunc != nil {
		return m.ListMemberVotesFunc(ctx, arg)
	}
	return []int64{}, nil
}

func (m *MockQueries) GetCacheEntry(ctx context.Context, arg GetCacheEntryParams) (GetCacheEntryRow, error) {
	if m.GetCacheEntryFunc != nil {
		return m.GetCacheEntryFunc(ctx, arg)
	}
	return GetCacheEntryRow{}, pgx.ErrNoRows
}

func (m *MockQueries) UpsertCacheEntry(ctx context.Context, arg UpsertCacheEntryParams) error {
	if m.UpsertCacheEntryFunc != nil {
		return m.UpsertCacheEntryFunc(ctx, arg)
	}
	return nil
}

func (m *MockQueries) GetQuota(ctx context.Context, memberID int64) (GetQuotaRow, error) {
	if m.GetQuotaFunc != nil {
		return m.GetQuotaFunc(ctx, memberID)
	}
	return GetQuotaRow{}, pgx.ErrNoRows
}

func (m *MockQueries) CreateQuota(ctx context.Context, arg CreateQuotaParams) error {
	if m.CreateQuotaFunc != nil {
		return m.CreateQuotaFunc(ctx, arg)
	}
	return nil
}

func (m *MockQueries) ResetQuota(ctx context.Context, arg ResetQuotaParams) error {
	if m.ResetQuotaFunc != nil {
		return m.ResetQuotaFunc(ctx, arg)
	}
	return nil
}

func (m *MockQueries) IncrementQuota(ctx context.Context, memberID int64) error {
	if m.IncrementQuotaFunc != nil {
		return m.IncrementQuotaFunc(ctx, memberID)
	}
	return nil
}

// fakeCacheQueries is a stateful in-memory cache table for tests that need
// reads to observe earlier writes.
type fakeCacheQueries struct {
	MockQueries
	entries map[string]UpsertCacheEntryParams
}

func newFakeCacheQueries() *fakeCacheQueries {
	return &fakeCacheQueries{entries: make(map[string]UpsertCacheEntryParams)}
}

func cacheKey(flavor string, subjectID int64, mediaKind string) string {
	return fmt.Sprintf("%s/%s/%d", flavor, mediaKind, subjectID)
}

func (f *fakeCacheQueries) GetCacheEntry(ctx context.Context, arg GetCacheEntryParams) (GetCacheEntryRow, error) {
	entry, ok := f.entries[cacheKey(arg.Flavor, arg.SubjectID, arg.MediaKind)]
	if !ok {
		return GetCacheEntryRow{}, pgx.ErrNoRows
	}
	return GetCacheEntryRow{
		Payload:   entry.Payload,
		ExpiresAt: pgtype.Timestamptz{Time: entry.ExpiresAt, Valid: true},
	}, nil
}

func (f *fakeCacheQueries) UpsertCacheEntry(ctx context.Context, arg UpsertCacheEntryParams) error {
	f.entries[cacheKey(arg.Flavor, arg.SubjectID, arg.MediaKind)] = arg
	return nil
}
