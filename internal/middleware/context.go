package middleware

import "context"

// contextKey defines a custom type for context keys to avoid collisions.
type contextKey string

const userContextKey = contextKey("user")

// UserName returns the authenticated user's name from the request
// context, or the empty string when none is set.
func UserName(ctx context.Context) string {
	if name, ok := ctx.Value(userContextKey).(string); ok {
		return name
	}
	return ""
}

// WithUserName adds the authenticated user's name to the request context.
func WithUserName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, userContextKey, name)
}
