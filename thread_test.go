package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTopic(t *testing.T) {
	t.Run("creates a topic for the signed-in member", func(t *testing.T) {
		var created CreateTopicParams
		queries := &MockQueries{
			CreateTopicFunc: func(ctx context.Context, arg CreateTopicParams) (CreateTopicRow, error) {
				created = arg
				return CreateTopicRow{
					ID:             9,
					CreatedAt:      pgtype.Timestamptz{Time: time.Now(), Valid: true},
					LastActivityAt: pgtype.Timestamptz{Time: time.Now(), Valid: true},
				}, nil
			},
		}
		svc := newTestService(queries)

		body := `{"subject_id":550,"media_kind":"movie","title":"Fight Club","prompt":"What did everyone make of the ending?"}`
		req := withSession(httptest.NewRequest(http.MethodPost, "/api/topics", strings.NewReader(body)))
		rec := httptest.NewRecorder()

		svc.CreateTopic(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, int64(550), created.SubjectID)
		assert.Equal(t, MediaKindMovie, created.MediaKind)
		assert.Equal(t, int64(1), created.MemberID)

		var resp topicResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, int64(9), resp.ID)
		assert.Equal(t, int64(0), resp.PostCount)
	})

	t.Run("strips markup from title and prompt", func(t *testing.T) {
		var created CreateTopicParams
		queries := &MockQueries{
			CreateTopicFunc: func(ctx context.Context, arg CreateTopicParams) (CreateTopicRow, error) {
				created = arg
				return CreateTopicRow{ID: 9}, nil
			},
		}
		svc := newTestService(queries)

		body := `{"subject_id":550,"media_kind":"movie","title":"<b>Fight Club</b>","prompt":"<script>alert(1)</script>A fair question about the ending?"}`
		req := withSession(httptest.NewRequest(http.MethodPost, "/api/topics", strings.NewReader(body)))
		rec := httptest.NewRecorder()

		svc.CreateTopic(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "Fight Club", created.Title)
		assert.NotContains(t, created.Prompt, "<script>")
	})

	t.Run("short prompt is rejected", func(t *testing.T) {
		svc := newTestService(&MockQueries{})

		body := `{"subject_id":550,"media_kind":"movie","title":"Fight Club","prompt":"Hi"}`
		req := withSession(httptest.NewRequest(http.MethodPost, "/api/topics", strings.NewReader(body)))
		rec := httptest.NewRecorder()

		svc.CreateTopic(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "prompt")
	})

	t.Run("storage failure is an opaque 500", func(t *testing.T) {
		queries := &MockQueries{
			CreateTopicFunc: func(ctx context.Context, arg CreateTopicParams) (CreateTopicRow, error) {
				return CreateTopicRow{}, errors.New("connection reset by peer")
			},
		}
		svc := newTestService(queries)

		body := `{"subject_id":550,"media_kind":"movie","title":"Fight Club","prompt":"What did everyone make of the ending?"}`
		req := withSession(httptest.NewRequest(http.MethodPost, "/api/topics", strings.NewReader(body)))
		rec := httptest.NewRecorder()

		svc.CreateTopic(rec, req)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), http.StatusText(http.StatusInternalServerError))
		assert.NotContains(t, rec.Body.String(), "connection reset")
	})

	t.Run("anonymous caller is unauthorized", func(t *testing.T) {
		svc := newTestService(&MockQueries{})

		body := `{"subject_id":550,"media_kind":"movie","title":"Fight Club","prompt":"What did everyone make of the ending?"}`
		req := httptest.NewRequest(http.MethodPost, "/api/topics", strings.NewReader(body))
		rec := httptest.NewRecorder()

		svc.CreateTopic(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestListTopics(t *testing.T) {
	t.Run("returns topics for a title", func(t *testing.T) {
		queries := &MockQueries{
			ListTopicsFunc: func(ctx context.Context, arg ListTopicsParams) ([]ListTopicsRow, error) {
				assert.Equal(t, int64(550), arg.SubjectID)
				assert.Equal(t, MediaKindMovie, arg.MediaKind)
				return []ListTopicsRow{
					{ID: 1, SubjectID: 550, MediaKind: MediaKindMovie, Title: "Ending", DisplayName: "alice", PostCount: 4},
				}, nil
			},
		}
		svc := newTestService(queries)

		req := httptest.NewRequest(http.MethodGet, "/api/topics?subject_id=550&media_kind=movie", nil)
		rec := httptest.NewRecorder()

		svc.ListTopics(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"author_name":"alice"`)
		assert.Contains(t, rec.Body.String(), `"post_count":4`)
	})

	t.Run("rejects a bad media kind", func(t *testing.T) {
		svc := newTestService(&MockQueries{})

		req := httptest.NewRequest(http.MethodGet, "/api/topics?subject_id=550&media_kind=podcast", nil)
		rec := httptest.NewRecorder()

		svc.ListTopics(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects a missing subject id", func(t *testing.T) {
		svc := newTestService(&MockQueries{})

		req := httptest.NewRequest(http.MethodGet, "/api/topics?media_kind=movie", nil)
		rec := httptest.NewRecorder()

		svc.ListTopics(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListPosts(t *testing.T) {
	t.Run("tombstoned posts keep their slot with a placeholder body", func(t *testing.T) {
		queries := &MockQueries{
			ListPostsFunc: func(ctx context.Context, topicID int64) ([]ListPostsRow, error) {
				return []ListPostsRow{
					{ID: 1, TopicID: 5, MemberID: 2, Body: "Still here", Status: PostStatusActive, AuthorName: "alice", Votes: 3},
					{ID: 2, TopicID: 5, MemberID: 3, Body: "Secret original text", Status: PostStatusDeleted, AuthorName: "bob",
						ParentPostID: pgtype.Int8{Int64: 1, Valid: true}, Depth: 1},
				}, nil
			},
		}
		svc := newTestService(queries)

		req := httptest.NewRequest(http.MethodGet, "/api/topics/5/posts", nil)
		req.SetPathValue("id", "5")
		rec := httptest.NewRecorder()

		svc.ListPosts(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "Still here")
		assert.Contains(t, body, deletedBodyPlaceholder)
		assert.NotContains(t, body, "Secret original text")
		assert.Contains(t, body, `"votes":3`)
	})

	t.Run("missing topic is a 404", func(t *testing.T) {
		queries := &MockQueries{
			GetTopicFunc: func(ctx context.Context, id int64) (GetTopicRow, error) {
				return GetTopicRow{}, pgx.ErrNoRows
			},
		}
		svc := newTestService(queries)

		req := httptest.NewRequest(http.MethodGet, "/api/topics/99/posts", nil)
		req.SetPathValue("id", "99")
		rec := httptest.NewRecorder()

		svc.ListPosts(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestEditPost(t *testing.T) {
	postRow := GetPostRow{
		ID:         3,
		TopicID:    5,
		MemberID:   1,
		Status:     PostStatusActive,
		AuthorName: "Mock Member",
	}

	t.Run("author edits their own post", func(t *testing.T) {
		var updated UpdatePostBodyParams
		queries := &MockQueries{
			GetPostFunc: func(ctx context.Context, id int64) (GetPostRow, error) {
				return postRow, nil
			},
			UpdatePostBodyFunc: func(ctx context.Context, arg UpdatePostBodyParams) (int64, error) {
				updated = arg
				return 1, nil
			},
		}
		svc := newTestService(queries)

		req := withSession(httptest.NewRequest(http.MethodPatch, "/api/posts/3", strings.NewReader(`{"body":"Edited text"}`)))
		req.SetPathValue("id", "3")
		rec := httptest.NewRecorder()

		svc.EditPost(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(3), updated.ID)
		assert.Equal(t, "Edited text", updated.Body)
	})

	t.Run("non-author is forbidden", func(t *testing.T) {
		other := postRow
		other.MemberID = 99
		queries := &MockQueries{
			GetPostFunc: func(ctx context.Context, id int64) (GetPostRow, error) {
				return other, nil
			},
		}
		svc := newTestService(queries)

		req := withSession(httptest.NewRequest(http.MethodPatch, "/api/posts/3", strings.NewReader(`{"body":"Hijacked"}`)))
		req.SetPathValue("id", "3")
		rec := httptest.NewRecorder()

		svc.EditPost(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("tombstoned post is a 404", func(t *testing.T) {
		gone := postRow
		gone.Status = PostStatusDeleted
		queries := &MockQueries{
			GetPostFunc: func(ctx context.Context, id int64) (GetPostRow, error) {
				return gone, nil
			},
		}
		svc := newTestService(queries)

		req := withSession(httptest.NewRequest(http.MethodPatch, "/api/posts/3", strings.NewReader(`{"body":"Necro edit"}`)))
		req.SetPathValue("id", "3")
		rec := httptest.NewRecorder()

		svc.EditPost(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestDeletePost(t *testing.T) {
	postRow := GetPostRow{
		ID:         3,
		TopicID:    5,
		MemberID:   1,
		Status:     PostStatusActive,
		AuthorName: "Mock Member",
	}

	t.Run("author deletes their own post", func(t *testing.T) {
		var tombstoned TombstonePostParams
		queries := &MockQueries{
			GetPostFunc: func(ctx context.Context, id int64) (GetPostRow, error) {
				return postRow, nil
			},
			TombstonePostFunc: func(ctx context.Context, arg TombstonePostParams) (int64, error) {
				tombstoned = arg
				return 1, nil
			},
		}
		svc := newTestService(queries)

		req := withSession(httptest.NewRequest(http.MethodDelete, "/api/posts/3", nil))
		req.SetPathValue("id", "3")
		rec := httptest.NewRecorder()

		svc.DeletePost(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(3), tombstoned.ID)
	})

	t.Run("admin deletes someone else's post", func(t *testing.T) {
		other := postRow
		other.MemberID = 99
		var tombstoned TombstonePostParams
		queries := &MockQueries{
			GetSessionMemberFunc: func(ctx context.Context, id uuid.UUID) (GetSessionMemberRow, error) {
				return GetSessionMemberRow{ID: id, MemberID: 1, DisplayName: "Admin", IsAdmin: true}, nil
			},
			GetPostFunc: func(ctx context.Context, id int64) (GetPostRow, error) {
				return other, nil
			},
			TombstonePostFunc: func(ctx context.Context, arg TombstonePostParams) (int64, error) {
				tombstoned = arg
				return 1, nil
			},
		}
		svc := newTestService(queries)

		req := withSession(httptest.NewRequest(http.MethodDelete, "/api/posts/3", nil))
		req.SetPathValue("id", "3")
		rec := httptest.NewRecorder()

		svc.DeletePost(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		// The tombstone is scoped to the post's author so the guarded
		// update still matches.
		assert.Equal(t, int64(99), tombstoned.MemberID)
	})

	t.Run("non-author non-admin is forbidden", func(t *testing.T) {
		other := postRow
		other.MemberID = 99
		queries := &MockQueries{
			GetPostFunc: func(ctx context.Context, id int64) (GetPostRow, error) {
				return other, nil
			},
		}
		svc := newTestService(queries)

		req := withSession(httptest.NewRequest(http.MethodDelete, "/api/posts/3", nil))
		req.SetPathValue("id", "3")
		rec := httptest.NewRecorder()

		svc.DeletePost(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
