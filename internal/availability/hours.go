package availability

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidClock indicates a malformed HH:MM value.
var ErrInvalidClock = errors.New("availability: clock must be HH:MM between 00:00 and 24:00")

// Clock is a time of day with minute precision. 24:00 is allowed as an end bound.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(value string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	c := Clock{Hour: hour, Minute: minute}
	if !c.valid() {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	return c, nil
}

// MustClock parses value and panics on error. Intended for fixtures.
func MustClock(value string) Clock {
	c, err := ParseClock(value)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) valid() bool {
	if c.Hour == 24 {
		return c.Minute == 0
	}
	return c.Hour >= 0 && c.Hour < 24 && c.Minute >= 0 && c.Minute < 60
}

// Seconds returns the number of seconds since midnight.
func (c Clock) Seconds() int {
	return c.Hour*3600 + c.Minute*60
}

// String renders HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Window is a half-open time-of-day range [Start, End).
type Window struct {
	Start Clock
	End   Clock
}

// Valid reports whether the window is well formed and non-empty.
func (w Window) Valid() bool {
	return w.Start.valid() && w.End.valid() && w.Start.Seconds() < w.End.Seconds()
}

// contains and overlaps take seconds since midnight.
func (w Window) contains(start, end int) bool {
	return start >= w.Start.Seconds() && end <= w.End.Seconds()
}

func (w Window) overlaps(start, end int) bool {
	return start < w.End.Seconds() && w.Start.Seconds() < end
}

// String renders HH:MM-HH:MM.
func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// Hours describes the business operating hours of a tenant.
type Hours struct {
	Days   []time.Weekday
	Open   Clock
	Close  Clock
	Breaks []Window
}

func (h Hours) isOpenOn(day time.Weekday) bool {
	for _, d := range h.Days {
		if d == day {
			return true
		}
	}
	return false
}

// WeeklySchedule maps a weekday to the windows an employee works on that day.
// A weekday without windows is a day off.
type WeeklySchedule map[time.Weekday][]Window

// Config is everything the checker needs to know about working time.
// A nil Business means the tenant imposes no opening hours; a nil Employee
// means the employee is available whenever the business is.
type Config struct {
	Business *Hours
	Employee WeeklySchedule
}
