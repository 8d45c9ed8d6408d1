package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// ContextWithLogger stores a logger in the context.
func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext extracts a logger from the context.
// Returns zap.NewNop() if no logger is found.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// With returns a context whose logger carries the extra fields.
// Without a logger in ctx, base is used as the parent.
func With(ctx context.Context, base *zap.Logger, fields ...zap.Field) context.Context {
	l, ok := ctx.Value(ctxKey{}).(*zap.Logger)
	if !ok {
		l = base
	}
	return ContextWithLogger(ctx, l.With(fields...))
}
