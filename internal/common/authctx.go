package common

import "context"

type ctxKey string

const userIDKey ctxKey = "store/user-id"

// WithUserID stores the authenticated customer's identifier on the context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID returns the authenticated customer's identifier, if one was set by
// the auth middleware.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}
