package main

import (
	"fmt"
	"net/http"
	"strconv"
)

type castResponse struct {
	CastMember
	RecentWork []PersonCredit `json:"recent_work"`
}

type titleDetailsResponse struct {
	TitleDetails
	Cast []castResponse `json:"cast"`
}

// SearchTitles proxies a free-text title search to the metadata provider.
func (s *CineService) SearchTitles(w http.ResponseWriter, r *http.Request) {
	query := SanitizeInput(r.URL.Query().Get("q"))
	if query == "" {
		s.renderError(w, r, fmt.Errorf("q is required"), http.StatusBadRequest)
		return
	}

	mediaKind := r.URL.Query().Get("media_kind")
	v := NewValidator()
	if !v.ValidateMediaKind("media_kind", mediaKind) {
		s.renderJSONError(w, r, v.Errors())
		return
	}

	results, err := s.gateway.SearchTitles(r.Context(), query, mediaKind)
	if err != nil {
		s.renderJSONError(w, r, err)
		return
	}
	if results == nil {
		results = []TitleSummary{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// GetTitleDetails returns detail-with-credits for one title, cached, with
// each credited actor's recent work folded in. Actor enrichment is
// best-effort; a provider hiccup there never fails the page.
func (s *CineService) GetTitleDetails(w http.ResponseWriter, r *http.Request) {
	mediaKind, subjectID, ok := s.titleParams(w, r)
	if !ok {
		return
	}

	details, err := s.gateway.FetchTitleDetails(r.Context(), subjectID, mediaKind)
	if err != nil {
		s.renderJSONError(w, r, err)
		return
	}

	resp := titleDetailsResponse{TitleDetails: *details}
	resp.Cast = make([]castResponse, len(details.Cast))
	for i, member := range details.Cast {
		resp.Cast[i] = castResponse{
			CastMember: member,
			RecentWork: s.gateway.FetchActorRecentWork(r.Context(), member.ID),
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// GetInsights returns the generated insight set for a title. Generation is
// quota-gated per member; cached reads are free.
func (s *CineService) GetInsights(w http.ResponseWriter, r *http.Request) {
	mediaKind, subjectID, ok := s.titleParams(w, r)
	if !ok {
		return
	}

	member, ok := s.requireMember(w, r)
	if !ok {
		return
	}

	details, err := s.gateway.FetchTitleDetails(r.Context(), subjectID, mediaKind)
	if err != nil {
		s.renderJSONError(w, r, err)
		return
	}

	insights, err := s.gateway.GenerateInsights(r.Context(), subjectID, mediaKind,
		details.Title, details.Overview, member.MemberID)
	if err != nil {
		s.renderJSONError(w, r, err)
		return
	}
	if insights == nil {
		insights = []Insight{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"insights": insights})
}

// Healthz reports liveness plus database reachability.
func (s *CineService) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.dbconn.Ping(r.Context()); err != nil {
		s.renderError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

// titleParams pulls the {kind}/{id} pair off a title-scoped route.
func (s *CineService) titleParams(w http.ResponseWriter, r *http.Request) (string, int64, bool) {
	mediaKind := r.PathValue("kind")
	v := NewValidator()
	if !v.ValidateMediaKind("kind", mediaKind) {
		s.renderJSONError(w, r, v.Errors())
		return "", 0, false
	}

	subjectID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || subjectID <= 0 {
		s.renderError(w, r, fmt.Errorf("invalid title id"), http.StatusBadRequest)
		return "", 0, false
	}

	return mediaKind, subjectID, true
}
