package testfixtures

import (
	"testing"
	"time"
)

func TestClockDefaultsToReferenceTime(t *testing.T) {
	t.Parallel()

	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected ReferenceTime, got %v", clock.Now())
	}
	if clock.Now().Location() != Zone() {
		t.Fatalf("expected clock in fixture zone, got %v", clock.Now().Location())
	}
}

func TestReferenceTimeIsMonday(t *testing.T) {
	t.Parallel()

	if got := ReferenceTime().Weekday(); got != time.Monday {
		t.Fatalf("expected Monday, got %v", got)
	}
}

func TestClockAdvanceIsSeenThroughNowFunc(t *testing.T) {
	t.Parallel()

	clock := NewClock(At(4, 9, 0))
	now := clock.NowFunc()

	if got := clock.Advance(90 * time.Minute); !got.Equal(At(4, 10, 30)) {
		t.Fatalf("advance returned %v", got)
	}
	if got := now(); !got.Equal(At(4, 10, 30)) {
		t.Fatalf("NowFunc did not follow the clock: %v", got)
	}
}

func TestClockNextDay(t *testing.T) {
	t.Parallel()

	clock := NewClock(At(4, 18, 0))
	if got := clock.NextDay(18, 0); !got.Equal(At(5, 18, 0)) {
		t.Fatalf("expected next evening, got %v", got)
	}

	end := NewClock(time.Date(2024, time.March, 31, 23, 0, 0, 0, Zone()))
	if got := end.NextDay(7, 30); !got.Equal(time.Date(2024, time.April, 1, 7, 30, 0, 0, Zone())) {
		t.Fatalf("expected month rollover, got %v", got)
	}
}
