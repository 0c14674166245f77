package application

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/civiltime"
	"github.com/example/appointment-scheduler/internal/recurrence"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := defaultLogger(custom); got != custom {
		t.Fatalf("expected custom logger to be returned")
	}

	if got := defaultLogger(nil); got != slog.Default() {
		t.Fatalf("expected default logger when none provided")
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrUnauthorized, "unauthorized"},
		{fmt.Errorf("load: %w", ErrNotFound), "not_found"},
		{ErrAlreadyExists, "already_exists"},
		{&ValidationError{FieldErrors: map[string]string{"start": "required"}}, "validation"},
		{&appointment.InvalidTransitionError{From: appointment.StatusCancelled, To: appointment.StatusConfirmed}, "invalid_transition"},
		{&recurrence.OverflowError{Limit: 366}, "overflow"},
		{&civiltime.FormatError{Value: "bad"}, "format"},
		{&StorageError{Op: "create appointment", Err: errors.New("disk full")}, "storage"},
		{errors.New("boom"), "unexpected"},
	}

	for _, tc := range cases {
		if got := ErrorKind(tc.err); got != tc.want {
			t.Fatalf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
