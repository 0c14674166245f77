package recurrence

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func tokyo(t testing.TB) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("failed to load location: %v", err)
	}
	return loc
}

func TestEngine_Expand(t *testing.T) {
	t.Parallel()

	loc := tokyo(t)
	// 2024-03-04 is a Monday.
	baseStart := time.Date(2024, time.March, 4, 9, 0, 0, 0, loc)
	baseEnd := baseStart.Add(time.Hour)
	engine := NewEngine(0)

	t.Run("non recurring pattern yields the base occurrence", func(t *testing.T) {
		t.Parallel()

		got, err := engine.Expand(baseStart, baseEnd, Pattern{Type: TypeNone})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 || !got[0].Start.Equal(baseStart) || !got[0].End.Equal(baseEnd) {
			t.Fatalf("expected base occurrence only, got %v", got)
		}
	})

	t.Run("monday wednesday friday for six occurrences", func(t *testing.T) {
		t.Parallel()

		pattern := Pattern{
			Type:          TypeWeekly,
			IntervalWeeks: 1,
			Weekdays:      []time.Weekday{time.Monday, time.Wednesday, time.Friday},
			EndType:       EndByCount,
			Count:         6,
		}
		got, err := engine.Expand(baseStart, baseEnd, pattern)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		wantDays := []int{4, 6, 8, 11, 13, 15}
		if len(got) != len(wantDays) {
			t.Fatalf("expected %d occurrences, got %d", len(wantDays), len(got))
		}
		for i, occ := range got {
			if occ.Start.Day() != wantDays[i] {
				t.Fatalf("occurrence %d: expected day %d, got %v", i, wantDays[i], occ.Start)
			}
			if occ.Start.Hour() != 9 || occ.Duration() != time.Hour {
				t.Fatalf("occurrence %d lost time of day or duration: %v-%v", i, occ.Start, occ.End)
			}
		}
	})

	t.Run("count patterns are ascending and on selected weekdays", func(t *testing.T) {
		t.Parallel()

		cases := []Pattern{
			{Type: TypeWeekly, IntervalWeeks: 1, Weekdays: []time.Weekday{time.Tuesday}, EndType: EndByCount, Count: 10},
			{Type: TypeWeekly, IntervalWeeks: 2, Weekdays: []time.Weekday{time.Sunday, time.Saturday}, EndType: EndByCount, Count: 7},
			{Type: TypeWeekly, IntervalWeeks: 3, Weekdays: []time.Weekday{time.Monday, time.Thursday, time.Monday}, EndType: EndByCount, Count: 9},
		}
		for _, pattern := range cases {
			got, err := engine.Expand(baseStart, baseEnd, pattern)
			if err != nil {
				t.Fatalf("unexpected error for %+v: %v", pattern, err)
			}
			if len(got) != pattern.Count {
				t.Fatalf("expected %d occurrences, got %d", pattern.Count, len(got))
			}
			allowed := make(map[time.Weekday]bool)
			for _, day := range pattern.Weekdays {
				allowed[day] = true
			}
			for i, occ := range got {
				if !allowed[occ.Start.Weekday()] {
					t.Fatalf("occurrence on unselected weekday %v", occ.Start)
				}
				if occ.Start.Before(baseStart) {
					t.Fatalf("occurrence before base start: %v", occ.Start)
				}
				if i > 0 && !occ.Start.After(got[i-1].Start) {
					t.Fatalf("occurrences not strictly ascending at %d", i)
				}
			}
		}
	})

	t.Run("interval skips whole weeks from the base week", func(t *testing.T) {
		t.Parallel()

		pattern := Pattern{
			Type:          TypeWeekly,
			IntervalWeeks: 2,
			Weekdays:      []time.Weekday{time.Monday},
			EndType:       EndByCount,
			Count:         3,
		}
		got, err := engine.Expand(baseStart, baseEnd, pattern)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []time.Time{baseStart, baseStart.AddDate(0, 0, 14), baseStart.AddDate(0, 0, 28)}
		for i := range want {
			if !got[i].Start.Equal(want[i]) {
				t.Fatalf("occurrence %d: expected %v, got %v", i, want[i], got[i].Start)
			}
		}
	})

	t.Run("weekdays earlier in the base week are excluded", func(t *testing.T) {
		t.Parallel()

		// Base on Wednesday; Monday of the same week is before the base start.
		wednesday := time.Date(2024, time.March, 6, 9, 0, 0, 0, loc)
		pattern := Pattern{
			Type:          TypeWeekly,
			IntervalWeeks: 1,
			Weekdays:      []time.Weekday{time.Monday, time.Wednesday},
			EndType:       EndByCount,
			Count:         2,
		}
		got, err := engine.Expand(wednesday, wednesday.Add(time.Hour), pattern)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got[0].Start.Equal(wednesday) || got[1].Start.Day() != 11 {
			t.Fatalf("unexpected occurrences %v", got)
		}
	})

	t.Run("date bound includes the end date", func(t *testing.T) {
		t.Parallel()

		endDate := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
		pattern := Pattern{
			Type:          TypeWeekly,
			IntervalWeeks: 1,
			Weekdays:      []time.Weekday{time.Monday, time.Wednesday, time.Friday},
			EndType:       EndByDate,
			EndDate:       endDate,
		}
		got, err := engine.Expand(baseStart, baseEnd, pattern)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 6 {
			t.Fatalf("expected 6 occurrences, got %d", len(got))
		}
		last := got[len(got)-1].Start
		if last.Day() != 15 {
			t.Fatalf("expected final occurrence on the end date, got %v", last)
		}
		for _, occ := range got {
			if occ.Start.After(time.Date(2024, time.March, 15, 23, 59, 59, 0, loc)) {
				t.Fatalf("occurrence beyond end date: %v", occ.Start)
			}
		}
	})

	t.Run("wall clock survives daylight saving changes", func(t *testing.T) {
		t.Parallel()

		ny, err := time.LoadLocation("America/New_York")
		if err != nil {
			t.Fatalf("load location: %v", err)
		}
		// DST starts on 2024-03-10 in New York.
		start := time.Date(2024, time.March, 4, 9, 0, 0, 0, ny)
		pattern := Pattern{Type: TypeWeekly, IntervalWeeks: 1, Weekdays: []time.Weekday{time.Monday}, EndType: EndByCount, Count: 3}
		got, err := engine.Expand(start, start.Add(45*time.Minute), pattern)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, occ := range got {
			if occ.Start.Hour() != 9 || occ.Start.Minute() != 0 {
				t.Fatalf("expected 09:00 local, got %v", occ.Start)
			}
		}
	})
}

func TestEngine_ExpandRejectsInvalidPatterns(t *testing.T) {
	t.Parallel()

	loc := tokyo(t)
	baseStart := time.Date(2024, time.March, 4, 9, 0, 0, 0, loc)
	engine := NewEngine(0)

	cases := []struct {
		name    string
		end     time.Time
		pattern Pattern
		want    error
	}{
		{"empty weekdays", baseStart.Add(time.Hour), Pattern{Type: TypeWeekly, IntervalWeeks: 1, EndType: EndByCount, Count: 3}, ErrNoWeekdays},
		{"zero interval", baseStart.Add(time.Hour), Pattern{Type: TypeWeekly, Weekdays: []time.Weekday{time.Monday}, EndType: EndByCount, Count: 3}, ErrInvalidInterval},
		{"weekday out of range", baseStart.Add(time.Hour), Pattern{Type: TypeWeekly, IntervalWeeks: 1, Weekdays: []time.Weekday{7}, EndType: EndByCount, Count: 3}, ErrInvalidWeekday},
		{"missing count", baseStart.Add(time.Hour), Pattern{Type: TypeWeekly, IntervalWeeks: 1, Weekdays: []time.Weekday{time.Monday}, EndType: EndByCount}, ErrInvalidEnd},
		{"missing end date", baseStart.Add(time.Hour), Pattern{Type: TypeWeekly, IntervalWeeks: 1, Weekdays: []time.Weekday{time.Monday}, EndType: EndByDate}, ErrInvalidEnd},
		{"unknown type", baseStart.Add(time.Hour), Pattern{Type: "monthly"}, ErrInvalidType},
		{"non positive duration", baseStart, Pattern{Type: TypeNone}, ErrInvalidDuration},
		{"end date before start", baseStart.Add(time.Hour), Pattern{Type: TypeWeekly, IntervalWeeks: 1, Weekdays: []time.Weekday{time.Monday}, EndType: EndByDate, EndDate: baseStart.AddDate(0, 0, -1)}, ErrEndBeforeStart},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := engine.Expand(baseStart, tc.end, tc.pattern)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestEngine_ExpandOverflow(t *testing.T) {
	t.Parallel()

	loc := tokyo(t)
	baseStart := time.Date(2024, time.March, 4, 9, 0, 0, 0, loc)
	engine := NewEngine(10)

	t.Run("count above the cap", func(t *testing.T) {
		t.Parallel()
		pattern := Pattern{Type: TypeWeekly, IntervalWeeks: 1, Weekdays: []time.Weekday{time.Monday}, EndType: EndByCount, Count: 11}
		_, err := engine.Expand(baseStart, baseStart.Add(time.Hour), pattern)
		var oErr *OverflowError
		if !errors.As(err, &oErr) || oErr.Limit != 10 {
			t.Fatalf("expected OverflowError with limit 10, got %v", err)
		}
	})

	t.Run("date bound producing too many occurrences", func(t *testing.T) {
		t.Parallel()
		pattern := Pattern{
			Type:          TypeWeekly,
			IntervalWeeks: 1,
			Weekdays:      []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
			EndType:       EndByDate,
			EndDate:       baseStart.AddDate(1, 0, 0),
		}
		_, err := engine.Expand(baseStart, baseStart.Add(time.Hour), pattern)
		var oErr *OverflowError
		if !errors.As(err, &oErr) {
			t.Fatalf("expected OverflowError, got %v", err)
		}
	})

	t.Run("exactly at the cap is allowed", func(t *testing.T) {
		t.Parallel()
		pattern := Pattern{Type: TypeWeekly, IntervalWeeks: 1, Weekdays: []time.Weekday{time.Monday}, EndType: EndByCount, Count: 10}
		got, err := engine.Expand(baseStart, baseStart.Add(time.Hour), pattern)
		if err != nil || len(got) != 10 {
			t.Fatalf("expected 10 occurrences, got %d (%v)", len(got), err)
		}
	})
}

func TestEngine_ExpandIsDeterministic(t *testing.T) {
	t.Parallel()

	loc := tokyo(t)
	baseStart := time.Date(2024, time.March, 4, 9, 0, 0, 0, loc)
	pattern := Pattern{Type: TypeWeekly, IntervalWeeks: 1, Weekdays: []time.Weekday{time.Friday, time.Monday}, EndType: EndByCount, Count: 8}
	engine := NewEngine(0)

	first, err := engine.Expand(baseStart, baseStart.Add(time.Hour), pattern)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := engine.Expand(baseStart, baseStart.Add(time.Hour), pattern)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range first {
		if !first[i].Start.Equal(second[i].Start) || !first[i].End.Equal(second[i].End) {
			t.Fatalf("expansion differs at %d", i)
		}
	}
}

func TestEngine_ExpandDropsSubSecondParts(t *testing.T) {
	t.Parallel()

	loc := tokyo(t)
	baseStart := time.Date(2024, time.March, 4, 9, 0, 0, 250, loc)
	baseEnd := time.Date(2024, time.March, 4, 9, 59, 59, 500, loc)
	engine := NewEngine(0)

	patterns := map[string]Pattern{
		"single": {Type: TypeNone},
		"weekly": {Type: TypeWeekly, IntervalWeeks: 1, Weekdays: []time.Weekday{time.Monday}, EndType: EndByCount, Count: 3},
	}
	for name, pattern := range patterns {
		got, err := engine.Expand(baseStart, baseEnd, pattern)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		for i, occ := range got {
			if occ.Start.Nanosecond() != 0 || occ.End.Nanosecond() != 0 {
				t.Fatalf("%s: occurrence %d keeps sub-second parts: %v - %v", name, i, occ.Start, occ.End)
			}
			if occ.Duration() != 59*time.Minute+59*time.Second {
				t.Fatalf("%s: occurrence %d has duration %v", name, i, occ.Duration())
			}
		}
	}
}

func TestPattern_RRule(t *testing.T) {
	t.Parallel()

	pattern := Pattern{Type: TypeWeekly, IntervalWeeks: 2, Weekdays: []time.Weekday{time.Monday}, EndType: EndByCount, Count: 6}
	rule := pattern.RRule()
	for _, part := range []string{"FREQ=WEEKLY", "COUNT=6", "INTERVAL=2"} {
		if !strings.Contains(rule, part) {
			t.Fatalf("expected %q in %q", part, rule)
		}
	}

	if got := (Pattern{Type: TypeNone}).RRule(); got != "" {
		t.Fatalf("expected empty rule for non recurring pattern, got %q", got)
	}
}

func TestNormalizeWeekdays(t *testing.T) {
	t.Parallel()

	got := NormalizeWeekdays([]time.Weekday{time.Friday, time.Monday, time.Friday, 9, time.Sunday})
	want := []time.Weekday{time.Sunday, time.Monday, time.Friday}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
