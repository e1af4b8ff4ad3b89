package api

import "context"

// userIDContextKey is the context key for the authenticated user ID.
type userIDContextKey struct{}

// WithUserID returns a new context with the verified caller identity attached.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey{}, userID)
}

// UserIDFromContext extracts the verified caller identity.
// The second return is false when no identity is present, which means
// the handler ran without RequireAuth in front of it.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDContextKey{}).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
