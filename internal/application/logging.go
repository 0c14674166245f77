package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/civiltime"
	"github.com/example/appointment-scheduler/internal/logging"
	"github.com/example/appointment-scheduler/internal/recurrence"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.Scoped(ctx, base)
	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel and typed errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}
	var tErr *appointment.InvalidTransitionError
	if errors.As(err, &tErr) {
		return "invalid_transition"
	}
	var oErr *recurrence.OverflowError
	if errors.As(err, &oErr) {
		return "overflow"
	}
	var fErr *civiltime.FormatError
	if errors.As(err, &fErr) {
		return "format"
	}
	var sErr *StorageError
	if errors.As(err, &sErr) {
		return "storage"
	}

	return "unexpected"
}
