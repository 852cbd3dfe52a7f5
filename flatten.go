package main

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
)

// Reply placement. Threads render as a top-level post with one level of
// replies beneath it, so a stored post is always at depth 0 or depth 1.
// Replying to a depth-1 post reattaches the new post to that post's
// depth-0 ancestor and produces a notice naming the thread owner, keeping
// the conversation readable without unbounded nesting. The cap is enforced
// here, on the write path, so stored depths never exceed 1.

type placement struct {
	ParentPostID pgtype.Int8
	Depth        int32
	Notice       string
}

// placeReply computes where a reply lands given its requested parent.
// parent is nil for a new top-level post. ancestor is the depth-0 post the
// parent hangs off and is only consulted when the parent itself sits at
// depth 1. Applying placeReply to an already-flattened target moves nothing
// further, so repeated nesting attempts all land at depth 1.
func placeReply(parent, ancestor *GetPostRow, topicID int64) (placement, error) {
	if parent == nil {
		return placement{Depth: 0}, nil
	}

	if parent.TopicID != topicID {
		return placement{}, NotFoundError{Resource: "post", ID: parent.ID}
	}

	if parent.Depth == 0 {
		return placement{
			ParentPostID: pgtype.Int8{Int64: parent.ID, Valid: true},
			Depth:        1,
		}, nil
	}

	if ancestor == nil || !parent.ParentPostID.Valid {
		return placement{}, NotFoundError{Resource: "post", ID: parent.ParentPostID.Int64}
	}
	if ancestor.TopicID != topicID {
		return placement{}, NotFoundError{Resource: "post", ID: ancestor.ID}
	}

	// Reattach under the depth-0 ancestor as a sibling of the nominal
	// parent. The notice tells the author where their reply ended up.
	return placement{
		ParentPostID: pgtype.Int8{Int64: ancestor.ID, Valid: true},
		Depth:        1,
		Notice:       fmt.Sprintf("Your reply was attached to %s's thread.", ancestor.AuthorName),
	}, nil
}
