// Package availability classifies candidate appointment slots against working
// time and existing bookings. Everything here is pure and safe to call
// repeatedly.
package availability

import (
	"fmt"
	"time"
)

// Status is the outcome of classifying one candidate.
type Status string

const (
	StatusAvailable Status = "available"
	StatusNoWork    Status = "no_work"
	StatusConflict  Status = "conflict"
	StatusError     Status = "error"
)

// Candidate is a slot being considered for booking.
type Candidate struct {
	// ID is set when re-checking an existing appointment so it does not conflict with itself.
	ID         string
	EmployeeID string
	Start      time.Time
	End        time.Time
}

// Booking is an existing appointment as seen by the checker.
type Booking struct {
	ID         string
	EmployeeID string
	Start      time.Time
	End        time.Time
	Cancelled  bool
}

// Result is the classification of a candidate.
type Result struct {
	Status        Status
	Reason        string
	ConflictsWith []string
}

// Check classifies the candidate. Malformed input wins over working time,
// which wins over conflicts. A no_work result still lists the bookings it
// overlaps in ConflictsWith.
func Check(c Candidate, cfg Config, booked []Booking) Result {
	if !c.End.After(c.Start) {
		return Result{Status: StatusError, Reason: "appointment duration must be positive"}
	}
	if c.EmployeeID == "" {
		return Result{Status: StatusError, Reason: "employee is required"}
	}

	ids := DetectConflicts(booked, c)
	if reason, ok := checkWorkingTime(c, cfg); !ok {
		return Result{Status: StatusNoWork, Reason: reason, ConflictsWith: ids}
	}

	if len(ids) > 0 {
		return Result{
			Status:        StatusConflict,
			Reason:        fmt.Sprintf("overlaps %d existing appointment(s)", len(ids)),
			ConflictsWith: ids,
		}
	}

	return Result{Status: StatusAvailable}
}

func checkWorkingTime(c Candidate, cfg Config) (string, bool) {
	if cfg.Business == nil && cfg.Employee == nil {
		return "", true
	}

	day := c.Start.Weekday()
	start, end, sameDay := secondsOfDay(c.Start, c.End)
	if !sameDay {
		return "appointment crosses midnight", false
	}

	if hours := cfg.Business; hours != nil {
		if !hours.isOpenOn(day) {
			return fmt.Sprintf("business is closed on %s", day), false
		}
		open := Window{Start: hours.Open, End: hours.Close}
		if !open.contains(start, end) {
			return fmt.Sprintf("outside business hours %s", open), false
		}
		for _, br := range hours.Breaks {
			if br.overlaps(start, end) {
				return fmt.Sprintf("overlaps break %s", br), false
			}
		}
	}

	if cfg.Employee != nil {
		windows := cfg.Employee[day]
		if len(windows) == 0 {
			return fmt.Sprintf("employee does not work on %s", day), false
		}
		for _, w := range windows {
			if w.contains(start, end) {
				return "", true
			}
		}
		return "outside employee working hours", false
	}

	return "", true
}

// secondsOfDay returns start/end as seconds since midnight of the start date.
// An end at exactly midnight of the following day counts as 24:00.
func secondsOfDay(start, end time.Time) (int, int, bool) {
	startSec := start.Hour()*3600 + start.Minute()*60 + start.Second()
	endSec := end.Hour()*3600 + end.Minute()*60 + end.Second()
	if end.Nanosecond() > 0 {
		endSec++
	}

	sy, sm, sd := start.Date()
	ey, em, ed := end.Date()
	if sy == ey && sm == em && sd == ed {
		return startSec, endSec, true
	}

	next := time.Date(sy, sm, sd+1, 0, 0, 0, 0, start.Location())
	if end.Equal(next) {
		return startSec, 24 * 3600, true
	}
	return startSec, endSec, false
}
