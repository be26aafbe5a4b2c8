package catalog

import "context"

type invocationIDKey struct{}

// WithInvocationID makes Invoke use id instead of generating one, so callers can
// correlate their own records with EventInvoked.
func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationIDKey{}, id)
}

// InvocationID returns the id set by WithInvocationID.
func InvocationID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(invocationIDKey{}).(string)
	return id, ok && id != ""
}
