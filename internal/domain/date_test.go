package domain

import (
	"testing"
	"time"
)

func TestDay(t *testing.T) {
	in := time.Date(2026, 3, 14, 23, 59, 59, 0, time.UTC)
	got := Day(in)
	want := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Day(%v) = %v, want %v", in, got, want)
	}
}

func TestDaysBetween(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		to   time.Time
		want int
	}{
		{"same day", start, 0},
		{"same day later hour", start.Add(23 * time.Hour), 0},
		{"next day", start.AddDate(0, 0, 1), 1},
		{"fifteen days", start.AddDate(0, 0, 15), 15},
		{"across month end", time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC), 31},
		{"before start", start.AddDate(0, 0, -2), -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysBetween(start, tt.to); got != tt.want {
				t.Errorf("DaysBetween() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseFormatDate(t *testing.T) {
	d, err := ParseDate("2026-10-16")
	if err != nil {
		t.Fatalf("ParseDate() error: %v", err)
	}
	if got := FormatDate(d); got != "2026-10-16" {
		t.Errorf("FormatDate() = %s, want 2026-10-16", got)
	}
	if _, err := ParseDate("16/10/2026"); err == nil {
		t.Error("expected error for non ISO date")
	}
}

func TestProbationRecordDaysInJail(t *testing.T) {
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	rec := &ProbationRecord{
		LinkID:    "l1",
		StartDate: start,
		// A recent relapse must not move the jail clock.
		LastSeen: start.AddDate(0, 0, 14),
	}

	if got := rec.DaysInJail(start.AddDate(0, 0, 15)); got != 15 {
		t.Errorf("DaysInJail() = %d, want 15", got)
	}
}
