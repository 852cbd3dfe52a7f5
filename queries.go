package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// Media kinds accepted by the metadata provider.
const (
	MediaKindMovie = "movie"
	MediaKindTV    = "tv"
)

// Cache flavors. Metadata and insights share one table, discriminated by
// flavor, with independent TTLs.
const (
	CacheFlavorMetadata = "metadata"
	CacheFlavorInsights = "insights"
)

// Post status values.
const (
	PostStatusActive  = "active"
	PostStatusDeleted = "deleted"
)

type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// Querier is the interface the service talks to. The traced wrapper in
// traced_querier.go decorates it; mocks_test.go fakes it.
type Querier interface {
	CreateMember(ctx context.Context, arg CreateMemberParams) (CreateMemberRow, error)
	GetMember(ctx context.Context, id int64) (GetMemberRow, error)
	GetMemberByEmail(ctx context.Context, email string) (GetMemberByEmailRow, error)

	CreateSession(ctx context.Context, arg CreateSessionParams) error
	GetSessionMember(ctx context.Context, id uuid.UUID) (GetSessionMemberRow, error)
	TouchSession(ctx context.Context, id uuid.UUID) error
	RevokeSession(ctx context.Context, id uuid.UUID) error
	CountActiveSessions(ctx context.Context, activeSince time.Time) (int64, error)

	CreateTopic(ctx context.Context, arg CreateTopicParams) (CreateTopicRow, error)
	GetTopic(ctx context.Context, id int64) (GetTopicRow, error)
	ListTopics(ctx context.Context, arg ListTopicsParams) ([]ListTopicsRow, error)
	TouchTopic(ctx context.Context, id int64) error

	CreatePost(ctx context.Context, arg CreatePostParams) (CreatePostRow, error)
	GetPost(ctx context.Context, id int64) (GetPostRow, error)
	ListPosts(ctx context.Context, topicID int64) ([]ListPostsRow, error)
	UpdatePostBody(ctx context.Context, arg UpdatePostBodyParams) (int64, error)
	TombstonePost(ctx context.Context, arg TombstonePostParams) (int64, error)

	DeleteVote(ctx context.Context, arg DeleteVoteParams) (int64, error)
	InsertVote(ctx context.Context, arg InsertVoteParams) (int64, error)
	GetVoteTotal(ctx context.Context, postID int64) (int64, error)
	ListMemberVotes(ctx context.Context, arg ListMemberVotesParams) ([]int64, error)

	GetCacheEntry(ctx context.Context, arg GetCacheEntryParams) (GetCacheEntryRow, error)
	UpsertCacheEntry(ctx context.Context, arg UpsertCacheEntryParams) error

	GetQuota(ctx context.Context, memberID int64) (GetQuotaRow, error)
	CreateQuota(ctx context.Context, arg CreateQuotaParams) error
	ResetQuota(ctx context.Context, arg ResetQuotaParams) error
	IncrementQuota(ctx context.Context, memberID int64) error
}

var _ Querier = (*Queries)(nil)

const createMember = `-- name: CreateMember :one
INSERT INTO members (email, display_name, password_hash)
VALUES ($1, $2, $3)
RETURNING id, date_joined
`

type CreateMemberParams struct {
	Email        string
	DisplayName  string
	PasswordHash string
}

type CreateMemberRow struct {
	ID         int64
	DateJoined pgtype.Timestamptz
}

func (q *Queries) CreateMember(ctx context.Context, arg CreateMemberParams) (CreateMemberRow, error) {
	row := q.db.QueryRow(ctx, createMember, arg.Email, arg.DisplayName, arg.PasswordHash)
	var i CreateMemberRow
	err := row.Scan(&i.ID, &i.DateJoined)
	return i, err
}

const getMember = `-- name: GetMember :one
SELECT id, email, display_name, is_admin, date_joined
FROM members
WHERE id = $1
`

type GetMemberRow struct {
	ID          int64
	Email       string
	DisplayName string
	IsAdmin     bool
	DateJoined  pgtype.Timestamptz
}

func (q *Queries) GetMember(ctx context.Context, id int64) (GetMemberRow, error) {
	row := q.db.QueryRow(ctx, getMember, id)
	var i GetMemberRow
	err := row.Scan(&i.ID, &i.Email, &i.DisplayName, &i.IsAdmin, &i.DateJoined)
	return i, err
}

const getMemberByEmail = `-- name: GetMemberByEmail :one
SELECT id, email, display_name, password_hash, is_admin
FROM members
WHERE email = $1
`

type GetMemberByEmailRow struct {
	ID           int64
	Email        string
	DisplayName  string
	PasswordHash string
	IsAdmin      bool
}

func (q *Queries) GetMemberByEmail(ctx context.Context, email string) (GetMemberByEmailRow, error) {
	row := q.db.QueryRow(ctx, getMemberByEmail, email)
	var i GetMemberByEmailRow
	err := row.Scan(&i.ID, &i.Email, &i.DisplayName, &i.PasswordHash, &i.IsAdmin)
	return i, err
}

const createSession = `-- name: CreateSession :exec
INSERT INTO sessions (id, member_id)
VALUES ($1, $2)
`

type CreateSessionParams struct {
	ID       uuid.UUID
	MemberID int64
}

func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) error {
	_, err := q.db.Exec(ctx, createSession, arg.ID, arg.MemberID)
	return err
}

const getSessionMember = `-- name: GetSessionMember :one
SELECT s.id, s.member_id, s.revoked_at, m.email, m.display_name, m.is_admin
FROM sessions s
JOIN members m ON m.id = s.member_id
WHERE s.id = $1
`

type GetSessionMemberRow struct {
	ID          uuid.UUID
	MemberID    int64
	RevokedAt   pgtype.Timestamptz
	Email       string
	DisplayName string
	IsAdmin     bool
}

func (q *Queries) GetSessionMember(ctx context.Context, id uuid.UUID) (GetSessionMemberRow, error) {
	row := q.db.QueryRow(ctx, getSessionMember, id)
	var i GetSessionMemberRow
	err := row.Scan(&i.ID, &i.MemberID, &i.RevokedAt, &i.Email, &i.DisplayName, &i.IsAdmin)
	return i, err
}

const touchSession = `-- name: TouchSession :exec
UPDATE sessions SET last_active_at = NOW()
WHERE id = $1 AND revoked_at IS NULL
`

func (q *Queries) TouchSession(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, touchSession, id)
	return err
}

const revokeSession = `-- name: RevokeSession :exec
UPDATE sessions SET revoked_at = NOW()
WHERE id = $1 AND revoked_at IS NULL
`

func (q *Queries) RevokeSession(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, revokeSession, id)
	return err
}

const countActiveSessions = `-- name: CountActiveSessions :one
SELECT COUNT(DISTINCT member_id)
FROM sessions
WHERE revoked_at IS NULL AND last_active_at > $1
`

func (q *Queries) CountActiveSessions(ctx context.Context, activeSince time.Time) (int64, error) {
	row := q.db.QueryRow(ctx, countActiveSessions, activeSince)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const createTopic = `-- name: CreateTopic :one
INSERT INTO topics (subject_id, media_kind, title, prompt, member_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at, last_activity_at
`

type CreateTopicParams struct {
	SubjectID int64
	MediaKind string
	Title     string
	Prompt    string
	MemberID  int64
}

type CreateTopicRow struct {
	ID             int64
	CreatedAt      pgtype.Timestamptz
	LastActivityAt pgtype.Timestamptz
}

func (q *Queries) CreateTopic(ctx context.Context, arg CreateTopicParams) (CreateTopicRow, error) {
	row := q.db.QueryRow(ctx, createTopic,
		arg.SubjectID,
		arg.MediaKind,
		arg.Title,
		arg.Prompt,
		arg.MemberID,
	)
	var i CreateTopicRow
	err := row.Scan(&i.ID, &i.CreatedAt, &i.LastActivityAt)
	return i, err
}

const getTopic = `-- name: GetTopic :one
SELECT id, subject_id, media_kind, title, prompt, member_id, created_at, last_activity_at
FROM topics
WHERE id = $1
`

type GetTopicRow struct {
	ID             int64
	SubjectID      int64
	MediaKind      string
	Title          string
	Prompt         string
	MemberID       int64
	CreatedAt      pgtype.Timestamptz
	LastActivityAt pgtype.Timestamptz
}

func (q *Queries) GetTopic(ctx context.Context, id int64) (GetTopicRow, error) {
	row := q.db.QueryRow(ctx, getTopic, id)
	var i GetTopicRow
	err := row.Scan(
		&i.ID,
		&i.SubjectID,
		&i.MediaKind,
		&i.Title,
		&i.Prompt,
		&i.MemberID,
		&i.CreatedAt,
		&i.LastActivityAt,
	)
	return i, err
}

const listTopics = `-- name: ListTopics :many
SELECT t.id, t.subject_id, t.media_kind, t.title, t.prompt, t.member_id,
       m.display_name, t.created_at, t.last_activity_at,
       (SELECT COUNT(*) FROM posts p WHERE p.topic_id = t.id) AS post_count
FROM topics t
JOIN members m ON m.id = t.member_id
WHERE t.subject_id = $1 AND t.media_kind = $2
ORDER BY t.last_activity_at DESC
`

type ListTopicsParams struct {
	SubjectID int64
	MediaKind string
}

type ListTopicsRow struct {
	ID             int64
	SubjectID      int64
	MediaKind      string
	Title          string
	Prompt         string
	MemberID       int64
	DisplayName    string
	CreatedAt      pgtype.Timestamptz
	LastActivityAt pgtype.Timestamptz
	PostCount      int64
}

func (q *Queries) ListTopics(ctx context.Context, arg ListTopicsParams) ([]ListTopicsRow, error) {
	rows, err := q.db.Query(ctx, listTopics, arg.SubjectID, arg.MediaKind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListTopicsRow
	for rows.Next() {
		var i ListTopicsRow
		if err := rows.Scan(
			&i.ID,
			&i.SubjectID,
			&i.MediaKind,
			&i.Title,
			&i.Prompt,
			&i.MemberID,
			&i.DisplayName,
			&i.CreatedAt,
			&i.LastActivityAt,
			&i.PostCount,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const touchTopic = `-- name: TouchTopic :exec
UPDATE topics SET last_activity_at = NOW()
WHERE id = $1
`

func (q *Queries) TouchTopic(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, touchTopic, id)
	return err
}

const createPost = `-- name: CreatePost :one
INSERT INTO posts (topic_id, parent_post_id, member_id, body, depth)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at
`

type CreatePostParams struct {
	TopicID      int64
	ParentPostID pgtype.Int8
	MemberID     int64
	Body         string
	Depth        int32
}

type CreatePostRow struct {
	ID        int64
	CreatedAt pgtype.Timestamptz
}

func (q *Queries) CreatePost(ctx context.Context, arg CreatePostParams) (CreatePostRow, error) {
	row := q.db.QueryRow(ctx, createPost,
		arg.TopicID,
		arg.ParentPostID,
		arg.MemberID,
		arg.Body,
		arg.Depth,
	)
	var i CreatePostRow
	err := row.Scan(&i.ID, &i.CreatedAt)
	return i, err
}

const getPost = `-- name: GetPost :one
SELECT p.id, p.topic_id, p.parent_post_id, p.member_id, p.depth, p.status,
       m.display_name AS author_name
FROM posts p
JOIN members m ON m.id = p.member_id
WHERE p.id = $1
`

type GetPostRow struct {
	ID           int64
	TopicID      int64
	ParentPostID pgtype.Int8
	MemberID     int64
	Depth        int32
	Status       string
	AuthorName   string
}

func (q *Queries) GetPost(ctx context.Context, id int64) (GetPostRow, error) {
	row := q.db.QueryRow(ctx, getPost, id)
	var i GetPostRow
	err := row.Scan(
		&i.ID,
		&i.TopicID,
		&i.ParentPostID,
		&i.MemberID,
		&i.Depth,
		&i.Status,
		&i.AuthorName,
	)
	return i, err
}

const listPosts = `-- name: ListPosts :many
SELECT p.id, p.topic_id, p.parent_post_id, p.member_id, p.body, p.depth,
       p.status, p.created_at, p.edited_at,
       m.display_name AS author_name,
       COALESCE(SUM(v.value), 0)::bigint AS votes
FROM posts p
JOIN members m ON m.id = p.member_id
LEFT JOIN votes v ON v.post_id = p.id
WHERE p.topic_id = $1
GROUP BY p.id, m.display_name
ORDER BY p.created_at ASC
`

type ListPostsRow struct {
	ID           int64
	TopicID      int64
	ParentPostID pgtype.Int8
	MemberID     int64
	Body         string
	Depth        int32
	Status       string
	CreatedAt    pgtype.Timestamptz
	EditedAt     pgtype.Timestamptz
	AuthorName   string
	Votes        int64
}

func (q *Queries) ListPosts(ctx context.Context, topicID int64) ([]ListPostsRow, error) {
	rows, err := q.db.Query(ctx, listPosts, topicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListPostsRow
	for rows.Next() {
		var i ListPostsRow
		if err := rows.Scan(
			&i.ID,
			&i.TopicID,
			&i.ParentPostID,
			&i.MemberID,
			&i.Body,
			&i.Depth,
			&i.Status,
			&i.CreatedAt,
			&i.EditedAt,
			&i.AuthorName,
			&i.Votes,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updatePostBody = `-- name: UpdatePostBody :execrows
UPDATE posts SET body = $3, edited_at = NOW()
WHERE id = $1 AND member_id = $2 AND status = 'active'
`

type UpdatePostBodyParams struct {
	ID       int64
	MemberID int64
	Body     string
}

func (q *Queries) UpdatePostBody(ctx context.Context, arg UpdatePostBodyParams) (int64, error) {
	result, err := q.db.Exec(ctx, updatePostBody, arg.ID, arg.MemberID, arg.Body)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const tombstonePost = `-- name: TombstonePost :execrows
UPDATE posts SET status = 'deleted'
WHERE id = $1 AND member_id = $2 AND status = 'active'
`

type TombstonePostParams struct {
	ID       int64
	MemberID int64
}

func (q *Queries) TombstonePost(ctx context.Context, arg TombstonePostParams) (int64, error) {
	result, err := q.db.Exec(ctx, tombstonePost, arg.ID, arg.MemberID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const deleteVote = `-- name: DeleteVote :execrows
DELETE FROM votes
WHERE post_id = $1 AND member_id = $2
`

type DeleteVoteParams struct {
	PostID   int64
	MemberID int64
}

func (q *Queries) DeleteVote(ctx context.Context, arg DeleteVoteParams) (int64, error) {
	result, err := q.db.Exec(ctx, deleteVote, arg.PostID, arg.MemberID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const insertVote = `-- name: InsertVote :execrows
INSERT INTO votes (post_id, member_id, value)
VALUES ($1, $2, $3)
ON CONFLICT (post_id, member_id) DO NOTHING
`

type InsertVoteParams struct {
	PostID   int64
	MemberID int64
	Value    int32
}

func (q *Queries) InsertVote(ctx context.Context, arg InsertVoteParams) (int64, error) {
	result, err := q.db.Exec(ctx, insertVote, arg.PostID, arg.MemberID, arg.Value)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const getVoteTotal = `-- name: GetVoteTotal :one
SELECT COALESCE(SUM(value), 0)::bigint
FROM votes
WHERE post_id = $1
`

func (q *Queries) GetVoteTotal(ctx context.Context, postID int64) (int64, error) {
	row := q.db.QueryRow(ctx, getVoteTotal, postID)
	var total int64
	err := row.Scan(&total)
	return total, err
}

const listMemberVotes = `-- name: ListMemberVotes :many
SELECT post_id
FROM votes
WHERE member_id = $1 AND post_id = ANY($2::bigint[])
`

type ListMemberVotesParams struct {
	MemberID int64
	PostIds  []int64
}

func (q *Queries) ListMemberVotes(ctx context.Context, arg ListMemberVotesParams) ([]int64, error) {
	rows, err := q.db.Query(ctx, listMemberVotes, arg.MemberID, arg.PostIds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []int64
	for rows.Next() {
		var postID int64
		if err := rows.Scan(&postID); err != nil {
			return nil, err
		}
		items = append(items, postID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getCacheEntry = `-- name: GetCacheEntry :one
SELECT payload, expires_at
FROM api_cache
WHERE flavor = $1 AND subject_id = $2 AND media_kind = $3
`

type GetCacheEntryParams struct {
	Flavor    string
	SubjectID int64
	MediaKind string
}

type GetCacheEntryRow struct {
	Payload   []byte
	ExpiresAt pgtype.Timestamptz
}

func (q *Queries) GetCacheEntry(ctx context.Context, arg GetCacheEntryParams) (GetCacheEntryRow, error) {
	row := q.db.QueryRow(ctx, getCacheEntry, arg.Flavor, arg.SubjectID, arg.MediaKind)
	var i GetCacheEntryRow
	err := row.Scan(&i.Payload, &i.ExpiresAt)
	return i, err
}

const upsertCacheEntry = `-- name: UpsertCacheEntry :exec
INSERT INTO api_cache (flavor, subject_id, media_kind, payload, expires_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (flavor, subject_id, media_kind) DO UPDATE SET
    payload = EXCLUDED.payload,
    created_at = NOW(),
    expires_at = EXCLUDED.expires_at
`

type UpsertCacheEntryParams struct {
	Flavor    string
	SubjectID int64
	MediaKind string
	Payload   []byte
	ExpiresAt time.Time
}

func (q *Queries) UpsertCacheEntry(ctx context.Context, arg UpsertCacheEntryParams) error {
	_, err := q.db.Exec(ctx, upsertCacheEntry,
		arg.Flavor,
		arg.SubjectID,
		arg.MediaKind,
		arg.Payload,
		arg.ExpiresAt,
	)
	return err
}

const getQuota = `-- name: GetQuota :one
SELECT count_today, window_start, daily_limit
FROM insight_quota
WHERE member_id = $1
`

type GetQuotaRow struct {
	CountToday  int32
	WindowStart pgtype.Timestamptz
	DailyLimit  int32
}

func (q *Queries) GetQuota(ctx context.Context, memberID int64) (GetQuotaRow, error) {
	row := q.db.QueryRow(ctx, getQuota, memberID)
	var i GetQuotaRow
	err := row.Scan(&i.CountToday, &i.WindowStart, &i.DailyLimit)
	return i, err
}

const createQuota = `-- name: CreateQuota :exec
INSERT INTO insight_quota (member_id, count_today, window_start, daily_limit)
VALUES ($1, 0, $2, $3)
ON CONFLICT (member_id) DO NOTHING
`

type CreateQuotaParams struct {
	MemberID    int64
	WindowStart time.Time
	DailyLimit  int32
}

func (q *Queries) CreateQuota(ctx context.Context, arg CreateQuotaParams) error {
	_, err := q.db.Exec(ctx, createQuota, arg.MemberID, arg.WindowStart, arg.DailyLimit)
	return err
}

const resetQuota = `-- name: ResetQuota :exec
UPDATE insight_quota SET count_today = 0, window_start = $2
WHERE member_id = $1
`

type ResetQuotaParams struct {
	MemberID    int64
	WindowStart time.Time
}

func (q *Queries) ResetQuota(ctx context.Context, arg ResetQuotaParams) error {
	_, err := q.db.Exec(ctx, resetQuota, arg.MemberID, arg.WindowStart)
	return err
}

const incrementQuota = `-- name: IncrementQuota :exec
UPDATE insight_quota SET count_today = count_today + 1
WHERE member_id = $1
`

func (q *Queries) IncrementQuota(ctx context.Context, memberID int64) error {
	_, err := q.db.Exec(ctx, incrementQuota, memberID)
	return err
}
