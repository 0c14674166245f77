package recurrence

import (
	"testing"
	"time"
)

func BenchmarkEngineExpand(b *testing.B) {
	engine := NewEngine(0)
	baseStart := time.Date(2024, 5, 6, 9, 0, 0, 0, tokyo(b))
	baseEnd := baseStart.Add(90 * time.Minute)

	pattern := Pattern{
		Type:          TypeWeekly,
		IntervalWeeks: 1,
		Weekdays: []time.Weekday{
			time.Monday,
			time.Tuesday,
			time.Wednesday,
			time.Thursday,
			time.Friday,
		},
		EndType: EndByDate,
		EndDate: baseStart.AddDate(0, 3, 0),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		occurrences, err := engine.Expand(baseStart, baseEnd, pattern)
		if err != nil {
			b.Fatalf("unexpected error: %v", err)
		}
		if len(occurrences) == 0 {
			b.Fatal("expected occurrences to be generated")
		}
	}
}
