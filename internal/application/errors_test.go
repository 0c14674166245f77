package application

import (
	"errors"
	"fmt"
	"testing"

	"github.com/example/appointment-scheduler/internal/persistence"
)

func TestValidationErrorCollectsBookingFields(t *testing.T) {
	t.Parallel()

	var nilErr *ValidationError
	if nilErr.Error() != "" || nilErr.HasErrors() {
		t.Fatalf("nil validation error must be empty")
	}

	vErr := &ValidationError{}
	if vErr.HasErrors() {
		t.Fatalf("expected no errors before anything is recorded")
	}
	vErr.add("client_id", "client is required")
	vErr.merge(&ValidationError{FieldErrors: map[string]string{
		"pattern.count": "has an invalid value",
		"client_id":     "client is required",
	}})
	vErr.merge(nil)

	if !vErr.HasErrors() || len(vErr.FieldErrors) != 2 {
		t.Fatalf("expected two field errors, got %v", vErr.FieldErrors)
	}
	if vErr.FieldErrors["pattern.count"] != "has an invalid value" {
		t.Fatalf("expected merged pattern error, got %v", vErr.FieldErrors)
	}
	if vErr.Error() != "validation failed" {
		t.Fatalf("unexpected message %q", vErr.Error())
	}
}

func TestMapStoreError(t *testing.T) {
	t.Parallel()

	if err := mapStoreError("get appointment", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := mapStoreError("get appointment", fmt.Errorf("lookup: %w", persistence.ErrNotFound)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mapStoreError("create appointment", persistence.ErrDuplicate); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	err := mapStoreError("create appointment", persistence.ErrSlotTaken)
	var sErr *StorageError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected StorageError, got %T", err)
	}
	if sErr.Op != "create appointment" || !errors.Is(err, persistence.ErrSlotTaken) {
		t.Fatalf("expected wrapped slot error, got %v", err)
	}
}
