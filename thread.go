package main

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
)

const deletedBodyPlaceholder = "[deleted]"

type createTopicRequest struct {
	SubjectID int64  `json:"subject_id"`
	MediaKind string `json:"media_kind"`
	Title     string `json:"title"`
	Prompt    string `json:"prompt"`
}

type topicResponse struct {
	ID             int64     `json:"id"`
	SubjectID      int64     `json:"subject_id"`
	MediaKind      string    `json:"media_kind"`
	Title          string    `json:"title"`
	Prompt         string    `json:"prompt"`
	AuthorName     string    `json:"author_name,omitempty"`
	PostCount      int64     `json:"post_count"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type createPostRequest struct {
	ParentPostID *int64 `json:"parent_post_id"`
	Body         string `json:"body"`
}

type postResponse struct {
	ID           int64      `json:"id"`
	TopicID      int64      `json:"topic_id"`
	ParentPostID *int64     `json:"parent_post_id"`
	AuthorID     int64      `json:"author_id"`
	AuthorName   string     `json:"author_name"`
	Body         string     `json:"body"`
	Depth        int32      `json:"depth"`
	Votes        int64      `json:"votes"`
	Deleted      bool       `json:"deleted,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	EditedAt     *time.Time `json:"edited_at,omitempty"`
	Notice       string     `json:"notice,omitempty"`
}

// CreateTopic opens a discussion topic on a title.
func (s *CineService) CreateTopic(w http.ResponseWriter, r *http.Request) {
	member, ok := s.requireMember(w, r)
	if !ok {
		return
	}

	var req createTopicRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	title := parseHTMLStrict(SanitizeInput(req.Title))
	prompt := parseHTMLStrict(SanitizeInput(req.Prompt))

	if err := ValidateTopicForm(title, prompt, req.MediaKind); err != nil {
		s.renderJSONError(w, r, err)
		return
	}

	topic, err := s.queries.CreateTopic(r.Context(), CreateTopicParams{
		SubjectID: req.SubjectID,
		MediaKind: req.MediaKind,
		Title:     title,
		Prompt:    prompt,
		MemberID:  member.MemberID,
	})
	if err != nil {
		s.renderJSONError(w, r, StorageError{Op: "create topic", Err: err})
		return
	}

	s.logger.InfoContext(r.Context(), "topic created",
		slog.Int64("topic_id", topic.ID),
		slog.Int64("subject_id", req.SubjectID),
		slog.String("member", maskUserID(member.MemberID)))

	s.writeJSON(w, http.StatusCreated, topicResponse{
		ID:             topic.ID,
		SubjectID:      req.SubjectID,
		MediaKind:      req.MediaKind,
		Title:          title,
		Prompt:         prompt,
		AuthorName:     member.DisplayName,
		PostCount:      0,
		CreatedAt:      topic.CreatedAt.Time,
		LastActivityAt: topic.LastActivityAt.Time,
	})
}

// ListTopics returns a title's topics, most recently active first.
func (s *CineService) ListTopics(w http.ResponseWriter, r *http.Request) {
	subjectID, err := parseQueryID(r, "subject_id")
	if err != nil {
		s.renderError(w, r, err, http.StatusBadRequest)
		return
	}

	mediaKind := r.URL.Query().Get("media_kind")
	v := NewValidator()
	if !v.ValidateMediaKind("media_kind", mediaKind) {
		s.renderJSONError(w, r, v.Errors())
		return
	}

	topics, err := s.queries.ListTopics(r.Context(), ListTopicsParams{
		SubjectID: subjectID,
		MediaKind: mediaKind,
	})
	if err != nil {
		s.renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	resp := make([]topicResponse, len(topics))
	for i, topic := range topics {
		resp[i] = topicResponse{
			ID:             topic.ID,
			SubjectID:      topic.SubjectID,
			MediaKind:      topic.MediaKind,
			Title:          topic.Title,
			Prompt:         topic.Prompt,
			AuthorName:     topic.DisplayName,
			PostCount:      topic.PostCount,
			CreatedAt:      topic.CreatedAt.Time,
			LastActivityAt: topic.LastActivityAt.Time,
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"topics": resp})
}

// CreatePost adds a reply to a topic. Reply depth is resolved by the
// placement rules in flatten.go before anything is stored, and both the
// insert and the topic activity bump happen in one transaction.
func (s *CineService) CreatePost(w http.ResponseWriter, r *http.Request) {
	member, ok := s.requireMember(w, r)
	if !ok {
		return
	}

	topicID, err := parsePathID(r, "id")
	if err != nil {
		s.renderError(w, r, err, http.StatusBadRequest)
		return
	}

	var req createPostRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	body := SanitizeInput(req.Body)
	if err := ValidatePostForm(body); err != nil {
		s.renderJSONError(w, r, err)
		return
	}

	if _, err := s.queries.GetTopic(r.Context(), topicID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.renderJSONError(w, r, NotFoundError{Resource: "topic", ID: topicID})
			return
		}
		s.renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	var parent, ancestor *GetPostRow
	if req.ParentPostID != nil {
		row, err := s.queries.GetPost(r.Context(), *req.ParentPostID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				s.renderJSONError(w, r, NotFoundError{Resource: "post", ID: *req.ParentPostID})
				return
			}
			s.renderError(w, r, err, http.StatusInternalServerError)
			return
		}
		parent = &row

		if row.Depth > 0 && row.ParentPostID.Valid {
			ancestorRow, err := s.queries.GetPost(r.Context(), row.ParentPostID.Int64)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					s.renderJSONError(w, r, NotFoundError{Resource: "post", ID: row.ParentPostID.Int64})
					return
				}
				s.renderError(w, r, err, http.StatusInternalServerError)
				return
			}
			ancestor = &ancestorRow
		}
	}

	place, err := placeReply(parent, ancestor, topicID)
	if err != nil {
		s.renderJSONError(w, r, err)
		return
	}

	tx, err := s.dbconn.Begin(r.Context())
	if err != nil {
		s.renderJSONError(w, r, StorageError{Op: "create post", Err: err})
		return
	}
	defer tx.Rollback(r.Context())

	qtx := s.queries.(ExtendedQuerier).WithTx(tx)

	post, err := qtx.CreatePost(r.Context(), CreatePostParams{
		TopicID:      topicID,
		ParentPostID: place.ParentPostID,
		MemberID:     member.MemberID,
		Body:         body,
		Depth:        place.Depth,
	})
	if err != nil {
		s.renderJSONError(w, r, StorageError{Op: "create post", Err: err})
		return
	}

	if err := qtx.TouchTopic(r.Context(), topicID); err != nil {
		s.renderJSONError(w, r, StorageError{Op: "create post", Err: err})
		return
	}

	if err := tx.Commit(r.Context()); err != nil {
		s.renderJSONError(w, r, StorageError{Op: "create post", Err: err})
		return
	}

	resp := postResponse{
		ID:         post.ID,
		TopicID:    topicID,
		AuthorID:   member.MemberID,
		AuthorName: member.DisplayName,
		Body:       renderPostBody(body),
		Depth:      place.Depth,
		CreatedAt:  post.CreatedAt.Time,
		Notice:     place.Notice,
	}
	if place.ParentPostID.Valid {
		resp.ParentPostID = &place.ParentPostID.Int64
	}

	s.writeJSON(w, http.StatusCreated, resp)
}

// ListPosts returns a topic's posts in creation order with vote totals.
// Tombstoned posts keep their place in the thread but show a placeholder
// body.
func (s *CineService) ListPosts(w http.ResponseWriter, r *http.Request) {
	topicID, err := parsePathID(r, "id")
	if err != nil {
		s.renderError(w, r, err, http.StatusBadRequest)
		return
	}

	if _, err := s.queries.GetTopic(r.Context(), topicID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.renderJSONError(w, r, NotFoundError{Resource: "topic", ID: topicID})
			return
		}
		s.renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	posts, err := s.queries.ListPosts(r.Context(), topicID)
	if err != nil {
		s.renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	resp := make([]postResponse, len(posts))
	for i, post := range posts {
		resp[i] = postResponseFrom(post)
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"posts": resp})
}

func postResponseFrom(post ListPostsRow) postResponse {
	resp := postResponse{
		ID:         post.ID,
		TopicID:    post.TopicID,
		AuthorID:   post.MemberID,
		AuthorName: post.AuthorName,
		Depth:      post.Depth,
		Votes:      post.Votes,
		CreatedAt:  post.CreatedAt.Time,
	}

	if post.ParentPostID.Valid {
		resp.ParentPostID = &post.ParentPostID.Int64
	}
	if post.EditedAt.Valid {
		t := post.EditedAt.Time
		resp.EditedAt = &t
	}

	if post.Status == PostStatusDeleted {
		resp.Deleted = true
		resp.Body = deletedBodyPlaceholder
	} else {
		resp.Body = renderPostBody(post.Body)
	}

	return resp
}

type editPostRequest struct {
	Body string `json:"body"`
}

// EditPost replaces a post's body. Only the author may edit, and editing
// never moves the post within the thread.
func (s *CineService) EditPost(w http.ResponseWriter, r *http.Request) {
	member, ok := s.requireMember(w, r)
	if !ok {
		return
	}

	postID, err := parsePathID(r, "id")
	if err != nil {
		s.renderError(w, r, err, http.StatusBadRequest)
		return
	}

	var req editPostRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	body := SanitizeInput(req.Body)
	if err := ValidatePostForm(body); err != nil {
		s.renderJSONError(w, r, err)
		return
	}

	post, ok := s.loadActivePost(w, r, postID)
	if !ok {
		return
	}

	if post.MemberID != member.MemberID {
		s.renderError(w, r, errors.New("not the author"), http.StatusForbidden)
		return
	}

	rows, err := s.queries.UpdatePostBody(r.Context(), UpdatePostBodyParams{
		ID:       postID,
		MemberID: member.MemberID,
		Body:     body,
	})
	if err != nil {
		s.renderJSONError(w, r, StorageError{Op: "edit post", Err: err})
		return
	}
	if rows == 0 {
		s.renderJSONError(w, r, NotFoundError{Resource: "post", ID: postID})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"body": renderPostBody(body)})
}

// DeletePost tombstones a post. The row stays so replies keep their thread
// shape; readers see a placeholder body instead. Authors can delete their
// own posts, admins anyone's.
func (s *CineService) DeletePost(w http.ResponseWriter, r *http.Request) {
	member, ok := s.requireMember(w, r)
	if !ok {
		return
	}

	postID, err := parsePathID(r, "id")
	if err != nil {
		s.renderError(w, r, err, http.StatusBadRequest)
		return
	}

	post, ok := s.loadActivePost(w, r, postID)
	if !ok {
		return
	}

	if post.MemberID != member.MemberID && !member.IsAdmin {
		s.renderError(w, r, errors.New("not the author"), http.StatusForbidden)
		return
	}

	rows, err := s.queries.TombstonePost(r.Context(), TombstonePostParams{
		ID:       postID,
		MemberID: post.MemberID,
	})
	if err != nil {
		s.renderJSONError(w, r, StorageError{Op: "tombstone post", Err: err})
		return
	}
	if rows == 0 {
		s.renderJSONError(w, r, NotFoundError{Resource: "post", ID: postID})
		return
	}

	s.logger.InfoContext(r.Context(), "post tombstoned",
		slog.Int64("post_id", postID),
		slog.String("member", maskUserID(member.MemberID)))

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// loadActivePost fetches a post and 404s tombstoned or missing ones.
func (s *CineService) loadActivePost(w http.ResponseWriter, r *http.Request, postID int64) (GetPostRow, bool) {
	post, err := s.queries.GetPost(r.Context(), postID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.renderJSONError(w, r, NotFoundError{Resource: "post", ID: postID})
			return GetPostRow{}, false
		}
		s.renderError(w, r, err, http.StatusInternalServerError)
		return GetPostRow{}, false
	}

	if post.Status == PostStatusDeleted {
		s.renderJSONError(w, r, NotFoundError{Resource: "post", ID: postID})
		return GetPostRow{}, false
	}

	return post, true
}
