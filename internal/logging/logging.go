// Package logging threads the request scoped slog logger through contexts so
// services log with the request and tenant attributes the transport attached.
package logging

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// WithLogger returns a context carrying logger. A nil logger leaves ctx as is.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger attached to ctx, or nil.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return nil
	}
	logger, _ := ctx.Value(loggerKey{}).(*slog.Logger)
	return logger
}

// Scoped prefers the context logger, then fallback, then slog.Default.
func Scoped(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger := FromContext(ctx); logger != nil {
		return logger
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}

// WithTenant narrows the context logger to one tenant and, when known, the
// acting user. Contexts without a logger are returned unchanged.
func WithTenant(ctx context.Context, tenantID, userID string) context.Context {
	logger := FromContext(ctx)
	if logger == nil {
		return ctx
	}
	attrs := []any{"tenant_id", tenantID}
	if userID != "" {
		attrs = append(attrs, "user_id", userID)
	}
	return WithLogger(ctx, logger.With(attrs...))
}
