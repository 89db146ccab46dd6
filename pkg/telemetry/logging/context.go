package logging

import "context"

type requestIDKey struct{}

// WithRequestID returns ctx carrying id. The HTTP request ID middleware sets
// it and the gate copies it into log entries and audit records.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// GetRequestID returns the request ID in ctx, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
