package civiltime

import (
	"fmt"
	"strings"
	"time"
)

// WireLayout is the offset-free civil timestamp layout used on the wire and in storage.
const WireLayout = "2006-01-02T15:04:05"

// DateLayout is the layout for date-only fields.
const DateLayout = "2006-01-02"

var acceptedLayouts = []string{
	WireLayout,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// FormatError reports a value that is not a civil timestamp or date.
type FormatError struct {
	Value  string
	Layout string
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("civiltime: %q does not match %s", e.Value, e.Layout)
}

// ToWire renders the wall-clock fields of t without any offset or zone
// conversion. Sub-second precision is dropped.
func ToWire(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(WireLayout)
}

// FromWire parses a civil timestamp as wall-clock time in loc. The value is
// never shifted: "2024-03-04T09:00:00" is 09:00 in loc regardless of the
// server's zone. A nil loc is treated as UTC.
func FromWire(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, &FormatError{Value: value, Layout: WireLayout}
	}
	for _, layout := range acceptedLayouts {
		if ts, err := time.ParseInLocation(layout, trimmed, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, &FormatError{Value: value, Layout: WireLayout}
}

// ToWireDate renders the calendar date of t.
func ToWireDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// FromWireDate parses a date-only value as midnight in loc.
func FromWireDate(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	ts, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), loc)
	if err != nil {
		return time.Time{}, &FormatError{Value: value, Layout: DateLayout}
	}
	return ts, nil
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDate reports whether a and b fall on the same calendar date in their own locations.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// ZoneResolver maps a tenant to the location its civil times are expressed in.
type ZoneResolver interface {
	Location(tenantID string) *time.Location
}

// ZoneFunc adapts a function to ZoneResolver.
type ZoneFunc func(tenantID string) *time.Location

// Location implements ZoneResolver.
func (f ZoneFunc) Location(tenantID string) *time.Location {
	if f == nil {
		return time.UTC
	}
	if loc := f(tenantID); loc != nil {
		return loc
	}
	return time.UTC
}

// FixedZone resolves every tenant to loc.
func FixedZone(loc *time.Location) ZoneResolver {
	return ZoneFunc(func(string) *time.Location { return loc })
}
