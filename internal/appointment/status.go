package appointment

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the administrative state of an appointment.
type Status string

const (
	StatusPending             Status = "pending"
	StatusConfirmed           Status = "confirmed"
	StatusCancelled           Status = "cancelled"
	StatusCancelledByCustomer Status = "cancelled_by_customer"
	StatusCancelledByAdmin    Status = "cancelled_by_admin"
)

// ErrUnknownStatus indicates a status value outside the lifecycle.
var ErrUnknownStatus = errors.New("appointment: unknown status")

// InvalidTransitionError reports a lifecycle move that is not allowed.
type InvalidTransitionError struct {
	From Status
	To   Status
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("appointment: cannot move from %s to %s", e.From, e.To)
}

// ParseStatus converts a wire value into a Status.
func ParseStatus(value string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(value)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, value)
	}
	return s, nil
}

// Valid reports whether s is one of the lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCancelledByCustomer, StatusCancelledByAdmin:
		return true
	}
	return false
}

// IsCancelled reports whether s is one of the terminal cancellation states.
func (s Status) IsCancelled() bool {
	switch s {
	case StatusCancelled, StatusCancelledByCustomer, StatusCancelledByAdmin:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to target is allowed.
//
//	pending   -> confirmed | cancelled*
//	confirmed -> cancelled*
//	cancelled* is terminal
func (s Status) CanTransition(target Status) bool {
	switch {
	case s.IsCancelled():
		return false
	case target == StatusConfirmed:
		return s == StatusPending
	case target.IsCancelled():
		return s == StatusPending || s == StatusConfirmed
	default:
		return false
	}
}

// Transition returns target when the move is allowed, otherwise an
// *InvalidTransitionError and the unchanged status.
func (s Status) Transition(target Status) (Status, error) {
	if !s.CanTransition(target) {
		return s, &InvalidTransitionError{From: s, To: target}
	}
	return target, nil
}
