package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AuthProvider resolves a request to a signed-in member. Implementations
// return ErrNotAuthenticated when the request simply carries no valid
// session; any other error is treated as an internal failure.
type AuthProvider interface {
	Authenticate(r *http.Request) (*ContextUser, error)
}

// ErrNotAuthenticated signals an absent or invalid session, as opposed to a
// lookup failure.
var ErrNotAuthenticated = errors.New("not authenticated")

// authMiddleware resolves the caller's session and stashes the member in
// the request context. An anonymous request passes through with no user;
// endpoints that need one gate on requireAuthMiddleware.
func authMiddleware(provider AuthProvider, tracer trace.Tracer) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			// Start span for auth
			if tracer != nil {
				var span trace.Span
				ctx, span = tracer.Start(ctx, "auth.middleware",
					trace.WithAttributes(
						attribute.String("auth.provider", "session"),
					),
				)
				defer span.End()
				r = r.WithContext(ctx)
			}

			user, err := provider.Authenticate(r)
			if err != nil {
				if !errors.Is(err, ErrNotAuthenticated) {
					logger := getLogger(ctx)
					logger.ErrorContext(ctx, "session lookup failed",
						slog.String("error", err.Error()),
						slog.String("remote_addr", r.RemoteAddr),
					)

					if span := trace.SpanFromContext(ctx); span.IsRecording() {
						span.RecordError(err)
						span.SetStatus(codes.Error, "session lookup failed")
					}

					http.Error(w, "Internal error", http.StatusInternalServerError)
					return
				}

				// Anonymous caller
				next.ServeHTTP(w, r)
				return
			}

			// Add member to context
			rc := getOrCreateRequestContext(ctx)
			rc.User = user

			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(
					attribute.Int64("user.id", user.ID),
					attribute.Bool("user.is_admin", user.IsAdmin),
				)
			}

			logger := getLogger(ctx)
			logger.DebugContext(ctx, "member authenticated",
				slog.Int64("user_id", user.ID),
				slog.Bool("is_admin", user.IsAdmin),
			)

			next.ServeHTTP(w, r)
		})
	}
}

// requireAuthMiddleware ensures the caller is signed in
func requireAuthMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isAuthenticated(r) {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireAdminMiddleware ensures the caller is an admin
func requireAdminMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isAdmin(r) {
				logger := getLogger(r.Context())
				user, _ := getUser(r.Context())
				if user != nil {
					logger.WarnContext(r.Context(), "non-admin member attempted admin action",
						slog.Int64("user_id", user.ID),
						slog.String("path", r.URL.Path),
					)
				}
				http.Error(w, "Admin access required", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
