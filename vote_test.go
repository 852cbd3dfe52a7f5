package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupVotes(t *testing.T) {
	t.Run("returns the member's voted posts", func(t *testing.T) {
		queries := &MockQueries{
			ListMemberVotesFunc: func(ctx context.Context, arg ListMemberVotesParams) ([]int64, error) {
				assert.Equal(t, int64(1), arg.MemberID)
				assert.Equal(t, []int64{10, 11, 12}, arg.PostIds)
				return []int64{11}, nil
			},
		}
		svc := newTestService(queries)

		req := withSession(httptest.NewRequest(http.MethodPost, "/api/votes/lookup",
			strings.NewReader(`{"post_ids":[10,11,12]}`)))
		rec := httptest.NewRecorder()

		svc.LookupVotes(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"voted_post_ids":[11]}`, rec.Body.String())
	})

	t.Run("empty id list short-circuits", func(t *testing.T) {
		called := false
		queries := &MockQueries{
			ListMemberVotesFunc: func(ctx context.Context, arg ListMemberVotesParams) ([]int64, error) {
				called = true
				return nil, nil
			},
		}
		svc := newTestService(queries)

		req := withSession(httptest.NewRequest(http.MethodPost, "/api/votes/lookup",
			strings.NewReader(`{"post_ids":[]}`)))
		rec := httptest.NewRecorder()

		svc.LookupVotes(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"voted_post_ids":[]}`, rec.Body.String())
		assert.False(t, called)
	})

	t.Run("no matches is an empty list not null", func(t *testing.T) {
		queries := &MockQueries{
			ListMemberVotesFunc: func(ctx context.Context, arg ListMemberVotesParams) ([]int64, error) {
				return nil, nil
			},
		}
		svc := newTestService(queries)

		req := withSession(httptest.NewRequest(http.MethodPost, "/api/votes/lookup",
			strings.NewReader(`{"post_ids":[10]}`)))
		rec := httptest.NewRecorder()

		svc.LookupVotes(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"voted_post_ids":[]}`, rec.Body.String())
	})

	t.Run("anonymous caller is unauthorized", func(t *testing.T) {
		svc := newTestService(&MockQueries{})

		req := httptest.NewRequest(http.MethodPost, "/api/votes/lookup",
			strings.NewReader(`{"post_ids":[10]}`))
		rec := httptest.NewRecorder()

		svc.LookupVotes(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
