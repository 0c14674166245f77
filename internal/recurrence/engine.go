package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// DefaultMaxOccurrences bounds a single expansion when no cap is configured.
const DefaultMaxOccurrences = 366

// Occurrence is one candidate time range produced by an expansion.
type Occurrence struct {
	Start time.Time
	End   time.Time
}

// Duration returns the length of the occurrence.
func (o Occurrence) Duration() time.Duration {
	return o.End.Sub(o.Start)
}

// ErrInvalidType indicates the pattern type is not supported.
var ErrInvalidType = errors.New("recurrence: invalid pattern type")

// ErrInvalidInterval indicates the week interval is below one.
var ErrInvalidInterval = errors.New("recurrence: interval must be at least one week")

// ErrNoWeekdays indicates a weekly pattern without any weekday.
var ErrNoWeekdays = errors.New("recurrence: weekly pattern requires at least one weekday")

// ErrInvalidWeekday indicates a weekday outside 0..6.
var ErrInvalidWeekday = errors.New("recurrence: weekday must be between 0 (Sunday) and 6 (Saturday)")

// ErrInvalidEnd indicates the end condition is missing or inconsistent with the end type.
var ErrInvalidEnd = errors.New("recurrence: end condition is missing or inconsistent")

// ErrEndBeforeStart indicates a date bound that precedes the base occurrence.
var ErrEndBeforeStart = errors.New("recurrence: end date precedes the first occurrence")

// ErrInvalidDuration indicates the base appointment duration is not positive.
var ErrInvalidDuration = errors.New("recurrence: appointment duration must be positive")

// OverflowError reports a pattern that would generate more occurrences than allowed.
type OverflowError struct {
	Limit     int
	Requested int
}

// Error implements the error interface.
func (e *OverflowError) Error() string {
	if e == nil {
		return ""
	}
	if e.Requested > 0 {
		return fmt.Sprintf("recurrence: pattern requests %d occurrences, limit is %d", e.Requested, e.Limit)
	}
	return fmt.Sprintf("recurrence: pattern exceeds the limit of %d occurrences", e.Limit)
}

// Engine expands patterns into concrete occurrences.
type Engine struct {
	maxOccurrences int
}

// NewEngine constructs an Engine that refuses to generate more than
// maxOccurrences occurrences. Non-positive values use DefaultMaxOccurrences.
func NewEngine(maxOccurrences int) *Engine {
	if maxOccurrences <= 0 {
		maxOccurrences = DefaultMaxOccurrences
	}
	return &Engine{maxOccurrences: maxOccurrences}
}

// MaxOccurrences returns the configured safety cap.
func (e *Engine) MaxOccurrences() int {
	if e == nil || e.maxOccurrences <= 0 {
		return DefaultMaxOccurrences
	}
	return e.maxOccurrences
}

// Expand produces occurrences for the pattern in ascending order.
//
// The engine enforces the following semantics:
//   - Every occurrence keeps the wall-clock time of day and the duration of the base range,
//     both cut to whole seconds.
//   - Weeks are counted from the Sunday-started week containing baseStart.
//   - Nothing before baseStart is emitted; baseStart itself is emitted when its weekday is selected.
//   - A date bound is inclusive of the whole end date.
//   - Exceeding the cap returns *OverflowError instead of a truncated result.
func (e *Engine) Expand(baseStart, baseEnd time.Time, pattern Pattern) ([]Occurrence, error) {
	baseStart = baseStart.Truncate(time.Second)
	baseEnd = baseEnd.Truncate(time.Second)
	if !baseEnd.After(baseStart) {
		return nil, ErrInvalidDuration
	}
	if err := pattern.Validate(); err != nil {
		return nil, err
	}

	if !pattern.IsRecurring() {
		return []Occurrence{{Start: baseStart, End: baseEnd}}, nil
	}

	limit := e.MaxOccurrences()
	if pattern.EndType == EndByCount && pattern.Count > limit {
		return nil, &OverflowError{Limit: limit, Requested: pattern.Count}
	}
	if pattern.EndType == EndByDate && endsBefore(pattern.EndDate, baseStart) {
		return nil, ErrEndBeforeStart
	}

	duration := baseEnd.Sub(baseStart)

	rule, err := rrule.NewRRule(pattern.options(baseStart))
	if err != nil {
		return nil, fmt.Errorf("recurrence: build rule: %w", err)
	}

	occurrences := make([]Occurrence, 0)
	next := rule.Iterator()
	for {
		start, ok := next()
		if !ok {
			break
		}
		if start.Before(baseStart) {
			continue
		}
		if len(occurrences) == limit {
			return nil, &OverflowError{Limit: limit}
		}
		start = start.In(baseStart.Location())
		occurrences = append(occurrences, Occurrence{
			Start: start,
			End:   start.Add(duration),
		})
	}

	return occurrences, nil
}

func endsBefore(endDate, baseStart time.Time) bool {
	ey, em, ed := endDate.Date()
	by, bm, bd := baseStart.Date()
	end := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	base := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return end.Before(base)
}
