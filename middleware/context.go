package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/upb/vision-gateway/session"
)

// Context key type to avoid collisions
type contextKey string

// ScopeKey is the context key for the request scope
const ScopeKey contextKey = "session_scope"

// GetRequestIDFromContext retrieves the request ID set by chi's RequestID
// middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, chimw.RequestIDKey, requestID)
}

// GetScopeFromContext retrieves the request scope from context
func GetScopeFromContext(ctx context.Context) *session.Scope {
	if val := ctx.Value(ScopeKey); val != nil {
		if scope, ok := val.(*session.Scope); ok {
			return scope
		}
	}
	return nil
}

// WithScope adds a request scope to the context
func WithScope(ctx context.Context, scope *session.Scope) context.Context {
	return context.WithValue(ctx, ScopeKey, scope)
}
