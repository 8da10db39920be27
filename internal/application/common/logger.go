package common

import (
	"context"

	"github.com/rs/zerolog"
)

// Context keys for request-scoped values
type contextKey int

const (
	loggerKey contextKey = iota
	requestIDKey
)

// WithLogger adds a request-scoped logger to the context
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext extracts the logger from context, or returns a disabled
// logger if not found. The pointer return lets callers chain event methods
// directly on the result.
func LoggerFromContext(ctx context.Context) *zerolog.Logger {
	if logger, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return &logger
	}
	nop := zerolog.Nop()
	return &nop
}

// WithRequestID stamps the request correlation id into the context
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the request id, empty when unset
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
