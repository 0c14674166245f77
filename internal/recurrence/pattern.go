package recurrence

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"
)

// Type selects how a pattern repeats.
type Type string

const (
	// TypeNone produces the base occurrence only.
	TypeNone Type = "none"
	// TypeWeekly repeats on selected weekdays every IntervalWeeks weeks.
	TypeWeekly Type = "weekly"
)

// EndType selects how a weekly pattern terminates.
type EndType string

const (
	// EndByDate stops after the last occurrence on or before EndDate.
	EndByDate EndType = "date"
	// EndByCount stops after Count occurrences.
	EndByCount EndType = "count"
)

// Pattern describes a requested repetition of an appointment.
type Pattern struct {
	Type          Type
	IntervalWeeks int
	// Weekdays uses time.Weekday indices, Sunday=0 through Saturday=6.
	Weekdays []time.Weekday
	EndType  EndType
	// EndDate is a calendar date; only its year, month and day are used.
	EndDate time.Time
	Count   int
}

// IsRecurring reports whether the pattern can produce more than one occurrence.
func (p Pattern) IsRecurring() bool {
	return p.Type == TypeWeekly
}

// Validate reports the first structural problem with the pattern.
func (p Pattern) Validate() error {
	switch p.Type {
	case TypeNone, "":
		return nil
	case TypeWeekly:
	default:
		return ErrInvalidType
	}

	if p.IntervalWeeks < 1 {
		return ErrInvalidInterval
	}
	for _, day := range p.Weekdays {
		if day < time.Sunday || day > time.Saturday {
			return ErrInvalidWeekday
		}
	}
	if len(NormalizeWeekdays(p.Weekdays)) == 0 {
		return ErrNoWeekdays
	}

	switch p.EndType {
	case EndByCount:
		if p.Count < 1 {
			return ErrInvalidEnd
		}
	case EndByDate:
		if p.EndDate.IsZero() {
			return ErrInvalidEnd
		}
	default:
		return ErrInvalidEnd
	}
	return nil
}

// NormalizeWeekdays drops out-of-range and duplicate weekdays and sorts the rest.
func NormalizeWeekdays(days []time.Weekday) []time.Weekday {
	seen := make(map[time.Weekday]struct{}, len(days))
	result := make([]time.Weekday, 0, len(days))
	for _, day := range days {
		if day < time.Sunday || day > time.Saturday {
			continue
		}
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		result = append(result, day)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i] < result[j]
	})

	return result
}

// RRule renders a weekly pattern as an RFC 5545 RRULE value. Non-recurring
// patterns render as an empty string.
func (p Pattern) RRule() string {
	if !p.IsRecurring() || p.Validate() != nil {
		return ""
	}
	opt := p.options(time.Time{})
	return opt.RRuleString()
}

func (p Pattern) options(dtstart time.Time) rrule.ROption {
	days := NormalizeWeekdays(p.Weekdays)
	byday := make([]rrule.Weekday, 0, len(days))
	for _, day := range days {
		byday = append(byday, toRRuleWeekday(day))
	}

	opt := rrule.ROption{
		Freq:      rrule.WEEKLY,
		Interval:  p.IntervalWeeks,
		Wkst:      rrule.SU,
		Byweekday: byday,
		Dtstart:   dtstart,
	}

	switch p.EndType {
	case EndByCount:
		opt.Count = p.Count
	case EndByDate:
		loc := time.UTC
		if !dtstart.IsZero() {
			loc = dtstart.Location()
		}
		y, m, d := p.EndDate.Date()
		// The end date is inclusive: anything starting on that calendar day is kept.
		opt.Until = time.Date(y, m, d, 23, 59, 59, 0, loc)
	}
	return opt
}

func toRRuleWeekday(day time.Weekday) rrule.Weekday {
	switch day {
	case time.Sunday:
		return rrule.SU
	case time.Monday:
		return rrule.MO
	case time.Tuesday:
		return rrule.TU
	case time.Wednesday:
		return rrule.WE
	case time.Thursday:
		return rrule.TH
	case time.Friday:
		return rrule.FR
	default:
		return rrule.SA
	}
}
