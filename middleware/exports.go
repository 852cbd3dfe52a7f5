// Package middleware provides a composable HTTP middleware chain with
// request context propagation, session authentication, security headers
// and OpenTelemetry-backed observability.
package middleware

import (
	"go.opentelemetry.io/otel/trace"
)

// NewChain creates an immutable middleware chain.
var NewChain = newChain

// Context accessors for handlers.
var (
	GetUser      = getUser
	GetRequestID = getRequestID
	GetTraceID   = getTraceID
	GetLogger    = getLogger
)

// Conditional middleware combinators and their condition helpers.
var (
	When            = when
	Unless          = unless
	IsAuthenticated = isAuthenticated
	IsAdmin         = isAdmin
	HasMethod       = hasMethod
	HasPathPrefix   = hasPathPrefix
)

// Middleware constructors.
var (
	RequestContextMiddleware   = requestContextMiddleware
	SecurityHeadersMiddleware  = securityHeadersMiddleware
	RequestSizeLimitMiddleware = requestSizeLimitMiddleware
	LoggingMiddleware          = loggingMiddleware
	DefaultSecurityConfig      = defaultSecurityConfig
)

// NewObservabilityMiddleware traces requests and records request metrics.
func NewObservabilityMiddleware(config *ObservabilityConfig) Middleware {
	return newObservabilityMiddleware(config)
}

// AuthMiddleware resolves the caller's session via the provider and stores
// the member in the request context.
func AuthMiddleware(provider AuthProvider, tracer trace.Tracer) Middleware {
	return authMiddleware(provider, tracer)
}

// RequireAuthMiddleware rejects anonymous callers with 401.
func RequireAuthMiddleware() Middleware {
	return requireAuthMiddleware()
}

// RequireAdminMiddleware rejects non-admin callers with 403.
func RequireAdminMiddleware() Middleware {
	return requireAdminMiddleware()
}
