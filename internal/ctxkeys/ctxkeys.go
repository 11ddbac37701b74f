// Package ctxkeys defines the typed context keys shared between HTTP
// middleware and handlers.
package ctxkeys

import "context"

// contextKey is a private type so keys from other packages can never collide.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	apiKeyKey    contextKey = "api_key"
	userIDKey    contextKey = "user_id"
)

// WithRequestID attaches the per-request trace ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request ID set by the RequestID middleware.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithAPIKey attaches the caller's validated API key.
func WithAPIKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, apiKeyKey, key)
}

// APIKey returns the API key set by the auth middleware.
func APIKey(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(apiKeyKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithUserID attaches the numeric user ID resolved from the API key, used as
// the rate-limit and metrics key.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the user ID set by the auth middleware.
func UserID(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(userIDKey).(int64)
	if !ok {
		return 0, false
	}
	return v, true
}
