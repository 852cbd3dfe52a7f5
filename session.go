package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cinedis/cinedis/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

const sessionCookieName = "cinedis_session"

var errNoSession = errors.New("no valid session")

type registerRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type memberResponse struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// Register creates a member account and signs it in.
func (s *CineService) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	req.Email = SanitizeInput(req.Email)
	req.DisplayName = SanitizeInput(req.DisplayName)

	if err := ValidateRegisterForm(req.Email, req.DisplayName, req.Password); err != nil {
		s.renderJSONError(w, r, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	member, err := s.queries.CreateMember(r.Context(), CreateMemberParams{
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			s.renderError(w, r, fmt.Errorf("email already registered"), http.StatusBadRequest)
			return
		}
		s.renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	s.logger.InfoContext(r.Context(), "member registered",
		slog.String("email", maskEmail(req.Email)),
		slog.Int64("member_id", member.ID))

	if err := s.issueSession(w, r, member.ID); err != nil {
		s.renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusCreated, memberResponse{
		ID:          member.ID,
		Email:       req.Email,
		DisplayName: req.DisplayName,
	})
}

// Login verifies credentials and issues a fresh session cookie.
func (s *CineService) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	member, err := s.queries.GetMemberByEmail(r.Context(), SanitizeInput(req.Email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.renderError(w, r, fmt.Errorf("invalid credentials"), http.StatusUnauthorized)
			return
		}
		s.renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(member.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.DebugContext(r.Context(), "password mismatch",
			slog.String("email", hashEmail(member.Email)))
		s.renderError(w, r, fmt.Errorf("invalid credentials"), http.StatusUnauthorized)
		return
	}

	if err := s.issueSession(w, r, member.ID); err != nil {
		s.renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, memberResponse{
		ID:          member.ID,
		Email:       member.Email,
		DisplayName: member.DisplayName,
	})
}

// Logout revokes the current session and expires the cookie.
func (s *CineService) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil {
		if sessionID, parseErr := uuid.Parse(cookie.Value); parseErr == nil {
			if revokeErr := s.queries.RevokeSession(r.Context(), sessionID); revokeErr != nil {
				s.logger.ErrorContext(r.Context(), "failed to revoke session",
					slog.String("error", revokeErr.Error()))
			}
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// Presence reports how many distinct members were active inside the
// presence window.
func (s *CineService) Presence(w http.ResponseWriter, r *http.Request) {
	count, err := s.queries.CountActiveSessions(r.Context(), time.Now().Add(-s.presenceWindow))
	if err != nil {
		s.renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]int64{"active_members": count})
}

func (s *CineService) issueSession(w http.ResponseWriter, r *http.Request, memberID int64) error {
	sessionID := uuid.New()

	if err := s.queries.CreateSession(r.Context(), CreateSessionParams{
		ID:       sessionID,
		MemberID: memberID,
	}); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID.String(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

// currentMember resolves the session cookie to a member, bumping the
// session's activity timestamp on the way.  Returns errNoSession when the
// cookie is absent, unparseable, unknown or revoked.
func (s *CineService) currentMember(r *http.Request) (GetSessionMemberRow, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return GetSessionMemberRow{}, errNoSession
	}

	sessionID, err := uuid.Parse(cookie.Value)
	if err != nil {
		return GetSessionMemberRow{}, errNoSession
	}

	session, err := s.queries.GetSessionMember(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GetSessionMemberRow{}, errNoSession
		}
		return GetSessionMemberRow{}, err
	}

	if session.RevokedAt.Valid {
		return GetSessionMemberRow{}, errNoSession
	}

	if err := s.queries.TouchSession(r.Context(), sessionID); err != nil {
		s.logger.DebugContext(r.Context(), "failed to touch session",
			slog.String("error", err.Error()))
	}

	return session, nil
}

// sessionAuthProvider adapts session resolution to the middleware layer so
// the auth middleware can run it once per request.
type sessionAuthProvider struct {
	svc *CineService
}

func (p *sessionAuthProvider) Authenticate(r *http.Request) (*middleware.ContextUser, error) {
	member, err := p.svc.currentMember(r)
	if err != nil {
		if errors.Is(err, errNoSession) {
			return nil, middleware.ErrNotAuthenticated
		}
		return nil, err
	}

	return &middleware.ContextUser{
		ID:          member.MemberID,
		Email:       member.Email,
		DisplayName: member.DisplayName,
		IsAdmin:     member.IsAdmin,
	}, nil
}

// requireMember is currentMember plus the 401 response on failure. The bool
// reports whether the caller may proceed. When the auth middleware already
// resolved the session, its answer is reused instead of hitting the
// database again.
func (s *CineService) requireMember(w http.ResponseWriter, r *http.Request) (GetSessionMemberRow, bool) {
	if user, ok := middleware.GetUser(r.Context()); ok {
		return GetSessionMemberRow{
			MemberID:    user.ID,
			Email:       user.Email,
			DisplayName: user.DisplayName,
			IsAdmin:     user.IsAdmin,
		}, true
	}

	member, err := s.currentMember(r)
	if err != nil {
		if errors.Is(err, errNoSession) {
			s.renderError(w, r, fmt.Errorf("authentication required"), http.StatusUnauthorized)
		} else {
			s.renderError(w, r, err, http.StatusInternalServerError)
		}
		return GetSessionMemberRow{}, false
	}
	return member, true
}
