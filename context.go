package bridge

import "context"

type contextKey int

const ctxKeySessionID contextKey = iota

// WithContextSessionID returns a context carrying the calling session's ID.
// Client.Query sets it so permission callbacks can tell sessions apart.
func WithContextSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeySessionID, id)
}

// ContextSessionID returns the session ID from context, or empty string.
func ContextSessionID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeySessionID).(string); ok {
		return v
	}
	return ""
}
