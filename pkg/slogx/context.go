package slogx

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// WithContext stores logger on ctx. Engine code retrieves it with
// FromContext so log lines carry the request id set by HTTPMiddleware.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext never returns nil; it falls back to slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}
