package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	csrfTokenLength = 32
	csrfCookieName  = "cinedis_csrf"
	csrfHeaderName  = "X-CSRF-Token"
	cleanupInterval = 1 * time.Hour
	tokenExpiryTime = 12 * time.Hour
)

// Issued tokens are tracked server-side so a forged cookie+header pair
// that merely matches itself is still rejected. timeNow is swapped in
// tests to exercise expiry.
var (
	tokenStore   = make(map[string]time.Time)
	tokenStoreMu sync.RWMutex
	timeNow      = time.Now
	csrfLogger   *slog.Logger
)

func initCSRFLogger(logger *slog.Logger) {
	csrfLogger = logger
}

func csrfDebug(msg string, args ...any) {
	if csrfLogger != nil {
		csrfLogger.Debug(msg, args...)
	}
}

func generateCSRFToken() string {
	b := make([]byte, csrfTokenLength)
	if _, err := rand.Read(b); err != nil {
		if csrfLogger != nil {
			csrfLogger.Error("Failed to generate CSRF token", "error", err)
		}
		return ""
	}
	return base64.StdEncoding.EncodeToString(b)
}

func setCSRFToken(w http.ResponseWriter, r *http.Request) (string, error) {
	token := generateCSRFToken()
	if token == "" {
		return "", errors.New("failed to generate CSRF token")
	}

	isSecure := r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(tokenExpiryTime.Seconds()),
	})

	tokenStoreMu.Lock()
	tokenStore[token] = timeNow().Add(tokenExpiryTime)
	tokenStoreMu.Unlock()

	return token, nil
}

// validateCSRFToken checks the double-submit pair: the cookie and the
// X-CSRF-Token header must match and the token must be one we issued.
func validateCSRFToken(r *http.Request) error {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil {
		csrfDebug("CSRF cookie not found", "error", err)
		return errors.New("CSRF cookie not found")
	}

	token := r.Header.Get(csrfHeaderName)
	if token == "" {
		csrfDebug("CSRF token not found in header")
		return errors.New("CSRF token not found")
	}
	if cookie.Value != token {
		csrfDebug("CSRF token mismatch")
		return errors.New("CSRF token mismatch")
	}

	tokenStoreMu.RLock()
	expiry, exists := tokenStore[token]
	tokenStoreMu.RUnlock()

	if !exists {
		csrfDebug("CSRF token not found in store")
		return errors.New("CSRF token not found in store")
	}
	if timeNow().After(expiry) {
		csrfDebug("CSRF token expired")
		return errors.New("CSRF token expired")
	}
	return nil
}

// CSRFMiddleware issues a token on safe methods and validates it on
// mutating ones. The token rides both a cookie and a response header so
// the JS client can echo it back.
func CSRFMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			token, err := setCSRFToken(w, r)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			w.Header().Set(csrfHeaderName, token)
		} else if err := validateCSRFToken(r); err != nil {
			http.Error(w, "CSRF validation failed", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	}
}

func cleanupExpiredTokens() {
	tokenStoreMu.Lock()
	defer tokenStoreMu.Unlock()
	now := timeNow()
	for token, expiry := range tokenStore {
		if now.After(expiry) {
			delete(tokenStore, token)
		}
	}
}

func startCleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cleanupExpiredTokens()
		case <-ctx.Done():
			return
		}
	}
}

func init() {
	go startCleanupRoutine(context.Background())
}
