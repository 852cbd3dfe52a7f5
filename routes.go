package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cinedis/cinedis/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all HTTP routes with their appropriate middleware
// chains.
func SetupRoutes(csvc *CineService) http.Handler {
	authProvider := &sessionAuthProvider{svc: csvc}

	observability := middleware.NewObservabilityMiddleware(&middleware.ObservabilityConfig{
		ServiceName:     "cinedis",
		Logger:          csvc.logger,
		Tracer:          csvc.telemetry.Tracer,
		Meter:           csvc.telemetry.Meter,
		RequestCounter:  csvc.telemetry.Metrics.RequestCounter,
		RequestDuration: csvc.telemetry.Metrics.RequestDuration,
		ErrorCounter:    csvc.telemetry.Metrics.ErrorCounter,
		SampleRate:      1.0,
	})

	// Per-endpoint write limits; reads stay unlimited.
	rateLimits := NewEndpointRateLimiter(csvc.logger)
	rateLimits.AddEndpoint("/api/register", 0.5, 2)
	rateLimits.AddEndpoint("/api/login", 1, 5)
	rateLimits.AddEndpoint("/api/topics", 0.5, 2)
	rateLimits.AddEndpoint("/api/topics/*/posts", 2, 5)
	rateLimits.AddEndpoint("/api/posts/*", 1, 3)
	rateLimits.AddEndpoint("/api/posts/*/vote", 5, 10)

	baseChain := middleware.NewChain(
		middleware.RequestContextMiddleware(),
		middleware.LoggingMiddleware(csvc.logger),
		middleware.SecurityHeadersMiddleware(middleware.DefaultSecurityConfig()),
		middleware.RequestSizeLimitMiddleware(1<<20),
		observability,
		rateLimits.Middleware,
		csrfChainMiddleware,
	)

	// Session resolved for everything; enforcement only where needed.
	sessionChain := baseChain.Append(middleware.AuthMiddleware(authProvider, csvc.telemetry.Tracer))
	authChain := sessionChain.Append(middleware.RequireAuthMiddleware())

	mux := http.NewServeMux()

	// Accounts and presence
	mux.Handle("POST /api/register", baseChain.ThenFunc(csvc.Register))
	mux.Handle("POST /api/login", baseChain.ThenFunc(csvc.Login))
	mux.Handle("POST /api/logout", baseChain.ThenFunc(csvc.Logout))
	mux.Handle("GET /api/presence", baseChain.ThenFunc(csvc.Presence))

	// Discovery
	mux.Handle("GET /api/search", sessionChain.ThenFunc(csvc.SearchTitles))
	mux.Handle("GET /api/titles/{kind}/{id}", sessionChain.ThenFunc(csvc.GetTitleDetails))
	mux.Handle("GET /api/titles/{kind}/{id}/insights", authChain.ThenFunc(csvc.GetInsights))

	// Discussions
	mux.Handle("GET /api/topics", sessionChain.ThenFunc(csvc.ListTopics))
	mux.Handle("POST /api/topics", authChain.ThenFunc(csvc.CreateTopic))
	mux.Handle("GET /api/topics/{id}/posts", sessionChain.ThenFunc(csvc.ListPosts))
	mux.Handle("POST /api/topics/{id}/posts", authChain.ThenFunc(csvc.CreatePost))
	mux.Handle("PATCH /api/posts/{id}", authChain.ThenFunc(csvc.EditPost))
	mux.Handle("DELETE /api/posts/{id}", authChain.ThenFunc(csvc.DeletePost))
	mux.Handle("POST /api/posts/{id}/vote", authChain.ThenFunc(csvc.ToggleVote))
	mux.Handle("POST /api/votes/lookup", authChain.ThenFunc(csvc.LookupVotes))

	// Operational endpoints skip the API middleware stack
	healthChain := middleware.NewChain(
		middleware.RequestContextMiddleware(),
		middleware.LoggingMiddleware(csvc.logger),
	)
	mux.Handle("GET /healthz", healthChain.ThenFunc(csvc.Healthz))
	mux.Handle("GET /metrics", promhttp.Handler())

	// Global panic recovery as the outermost middleware, then the
	// Prometheus HTTP histogram.
	globalChain := middleware.NewChain(
		RecoveryMiddleware(csvc.logger),
	)

	return globalChain.Then(HistogramHttpHandler(mux))
}

// csrfChainMiddleware adapts the double-submit CSRF handler to the
// middleware chain signature.
func csrfChainMiddleware(next http.Handler) http.Handler {
	return CSRFMiddleware(next.ServeHTTP)
}

// RecoveryMiddleware recovers from panics and logs them with an error ID
// the client can quote back.
func RecoveryMiddleware(logger *slog.Logger) middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &recoveryResponseWriter{ResponseWriter: w}

			defer func() {
				if err := recover(); err != nil {
					errorID := generateErrorID()

					logger.ErrorContext(r.Context(), "panic recovered - internal server error",
						slog.Any("panic_error", err),
						slog.String("error_id", errorID),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("remote_addr", r.RemoteAddr),
						slog.String("user_agent", r.UserAgent()),
					)

					if !wrapped.headersSent {
						w.Header().Set("X-Content-Type-Options", "nosniff")
						w.Header().Set("Content-Type", "application/json")
						w.WriteHeader(http.StatusInternalServerError)
						_ = json.NewEncoder(w).Encode(map[string]string{
							"error":    http.StatusText(http.StatusInternalServerError),
							"error_id": errorID,
						})
					} else {
						logger.WarnContext(r.Context(), "cannot send error response - headers already sent",
							slog.String("error_id", errorID))
					}
				}
			}()

			next.ServeHTTP(wrapped, r)
		})
	}
}

// recoveryResponseWriter wraps http.ResponseWriter to track if headers have been sent
type recoveryResponseWriter struct {
	http.ResponseWriter
	headersSent bool
}

func (w *recoveryResponseWriter) WriteHeader(statusCode int) {
	if !w.headersSent {
		w.headersSent = true
		w.ResponseWriter.WriteHeader(statusCode)
	}
}

func (w *recoveryResponseWriter) Write(data []byte) (int, error) {
	if !w.headersSent {
		w.headersSent = true
	}
	return w.ResponseWriter.Write(data)
}

func generateErrorID() string {
	// Simple timestamp-based error ID
	return fmt.Sprintf("ERR-%d", time.Now().UnixNano())
}
