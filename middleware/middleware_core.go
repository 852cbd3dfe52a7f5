package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Middleware wraps an http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Chain is an immutable ordered list of middlewares. Append and Extend
// return new chains, so a base chain can be shared and specialized per
// route group.
type Chain struct {
	middlewares []Middleware
}

func newChain(middlewares ...Middleware) *Chain {
	c := &Chain{middlewares: make([]Middleware, len(middlewares))}
	copy(c.middlewares, middlewares)
	return c
}

// Then wraps h in the chain's middlewares, outermost first.
func (c *Chain) Then(h http.Handler) http.Handler {
	if h == nil {
		h = http.DefaultServeMux
	}
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		h = c.middlewares[i](h)
	}
	return h
}

// ThenFunc is Then for handler functions.
func (c *Chain) ThenFunc(fn http.HandlerFunc) http.Handler {
	if fn == nil {
		return c.Then(nil)
	}
	return c.Then(fn)
}

// Append returns a new chain with the given middlewares added at the end.
func (c *Chain) Append(middlewares ...Middleware) *Chain {
	combined := make([]Middleware, 0, len(c.middlewares)+len(middlewares))
	combined = append(combined, c.middlewares...)
	combined = append(combined, middlewares...)
	return &Chain{middlewares: combined}
}

// Extend returns a new chain with another chain's middlewares appended.
func (c *Chain) Extend(chain *Chain) *Chain {
	return c.Append(chain.middlewares...)
}

type contextKey string

const contextKeyRequestID contextKey = "cinedis.request_id"

// RequestContext carries per-request data: the resolved member, request
// and trace ids, and the start time used for duration metrics.
type RequestContext struct {
	User      *ContextUser
	RequestID string
	TraceID   string
	StartTime time.Time
}

// ContextUser is the authenticated member as seen by handlers.
type ContextUser struct {
	ID          int64
	Email       string
	DisplayName string
	IsAdmin     bool
}

func newRequestContext() *RequestContext {
	return &RequestContext{
		RequestID: uuid.New().String(),
		StartTime: time.Now(),
	}
}

func withRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, rc)
}

func getRequestContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(contextKeyRequestID).(*RequestContext)
	return rc, ok
}

func getOrCreateRequestContext(ctx context.Context) *RequestContext {
	if rc, ok := getRequestContext(ctx); ok {
		return rc
	}
	return newRequestContext()
}

func getUser(ctx context.Context) (*ContextUser, bool) {
	rc, ok := getRequestContext(ctx)
	if !ok || rc.User == nil {
		return nil, false
	}
	return rc.User, true
}

func getRequestID(ctx context.Context) string {
	if rc, ok := getRequestContext(ctx); ok {
		return rc.RequestID
	}
	return ""
}

func getTraceID(ctx context.Context) string {
	if rc, ok := getRequestContext(ctx); ok {
		return rc.TraceID
	}
	return ""
}

// when applies m only to requests matching the condition.
func when(condition func(*http.Request) bool, m Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		wrapped := m(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if condition(r) {
				wrapped.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// unless applies m only to requests NOT matching the condition.
func unless(condition func(*http.Request) bool, m Middleware) Middleware {
	return when(func(r *http.Request) bool { return !condition(r) }, m)
}

func isAuthenticated(r *http.Request) bool {
	_, ok := getUser(r.Context())
	return ok
}

func isAdmin(r *http.Request) bool {
	user, ok := getUser(r.Context())
	return ok && user.IsAdmin
}

func hasMethod(methods ...string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		set[m] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.Method]
		return ok
	}
}

func hasPathPrefix(prefix string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		path := r.URL.Path
		return len(path) >= len(prefix) && path[:len(prefix)] == prefix
	}
}

// middlewareResponseWriter records the status code and bytes written so
// logging and metrics middleware can report them after the handler runs.
// The first WriteHeader wins; an unset status reads as 200.
type middlewareResponseWriter struct {
	http.ResponseWriter
	mu          sync.Mutex
	status      int
	written     int64
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter) *middlewareResponseWriter {
	return &middlewareResponseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *middlewareResponseWriter) WriteHeader(status int) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.wroteHeader {
		return
	}
	rw.status = status
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *middlewareResponseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.mu.Lock()
	rw.written += int64(n)
	rw.mu.Unlock()
	return n, err
}

func (rw *middlewareResponseWriter) Status() int {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.status
}

func (rw *middlewareResponseWriter) BytesWritten() int64 {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.written
}

func (rw *middlewareResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// requestContextMiddleware seeds a fresh RequestContext. It must run
// before any middleware that logs or authenticates.
func requestContextMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := withRequestContext(r.Context(), newRequestContext())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
