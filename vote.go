package main

import (
	"net/http"
)

// voteValue is what a single toggle contributes to a post's total. Totals
// are summed from stored values, so a future downvote only needs a -1 row.
const voteValue = 1

type voteResponse struct {
	PostID int64 `json:"post_id"`
	Votes  int64 `json:"votes"`
	Voted  bool  `json:"voted"`
}

// ToggleVote flips the caller's vote on a post and returns the new total.
// Toggling twice always lands back where it started. The delete-then-insert
// runs in one transaction so concurrent toggles from the same member settle
// as either a clean add or a clean remove.
func (s *CineService) ToggleVote(w http.ResponseWriter, r *http.Request) {
	member, ok := s.requireMember(w, r)
	if !ok {
		return
	}

	postID, err := parsePathID(r, "id")
	if err != nil {
		s.renderError(w, r, err, http.StatusBadRequest)
		return
	}

	if _, ok := s.loadActivePost(w, r, postID); !ok {
		return
	}

	tx, err := s.dbconn.Begin(r.Context())
	if err != nil {
		s.renderJSONError(w, r, StorageError{Op: "toggle vote", Err: err})
		return
	}
	defer tx.Rollback(r.Context())

	qtx := s.queries.(ExtendedQuerier).WithTx(tx)

	removed, err := qtx.DeleteVote(r.Context(), DeleteVoteParams{
		PostID:   postID,
		MemberID: member.MemberID,
	})
	if err != nil {
		s.renderJSONError(w, r, StorageError{Op: "toggle vote", Err: err})
		return
	}

	voted := false
	if removed == 0 {
		// No vote to remove, so this toggle adds one. The insert is
		// conflict-tolerant; losing a race to another request still means
		// the vote exists.
		if _, err := qtx.InsertVote(r.Context(), InsertVoteParams{
			PostID:   postID,
			MemberID: member.MemberID,
			Value:    voteValue,
		}); err != nil {
			s.renderJSONError(w, r, StorageError{Op: "toggle vote", Err: err})
			return
		}
		voted = true
	}

	total, err := qtx.GetVoteTotal(r.Context(), postID)
	if err != nil {
		s.renderJSONError(w, r, StorageError{Op: "toggle vote", Err: err})
		return
	}

	if err := tx.Commit(r.Context()); err != nil {
		s.renderJSONError(w, r, StorageError{Op: "toggle vote", Err: err})
		return
	}

	s.writeJSON(w, http.StatusOK, voteResponse{
		PostID: postID,
		Votes:  total,
		Voted:  voted,
	})
}

type voteLookupRequest struct {
	PostIDs []int64 `json:"post_ids"`
}

// LookupVotes reports which of the given posts the caller has voted on,
// letting a thread page mark the caller's own votes in one round trip.
func (s *CineService) LookupVotes(w http.ResponseWriter, r *http.Request) {
	member, ok := s.requireMember(w, r)
	if !ok {
		return
	}

	var req voteLookupRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	if len(req.PostIDs) == 0 {
		s.writeJSON(w, http.StatusOK, map[string][]int64{"voted_post_ids": {}})
		return
	}

	voted, err := s.queries.ListMemberVotes(r.Context(), ListMemberVotesParams{
		MemberID: member.MemberID,
		PostIds:  req.PostIDs,
	})
	if err != nil {
		s.renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	if voted == nil {
		voted = []int64{}
	}

	s.writeJSON(w, http.StatusOK, map[string][]int64{"voted_post_ids": voted})
}
