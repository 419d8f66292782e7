package services

import "context"

type requestIDKey struct{}

// WithRequestID tags ctx so timeline events and async jobs can be correlated
// with the HTTP request that started them.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
