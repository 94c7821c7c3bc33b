package domain

import (
	"errors"
	"testing"
	"time"
)

func TestPercentDelta(t *testing.T) {
	tests := []struct {
		cur, prev int
		want      string
	}{
		{0, 0, "+0%"},
		{5, 0, "+0%"},
		{5, 4, "+25%"},
		{9, 10, "-10%"},
		{4, 4, "+0%"},
		{0, 3, "-100%"},
		{2, 3, "-33%"},
		{30, 10, "+200%"},
	}
	for _, tt := range tests {
		if got := PercentDelta(tt.cur, tt.prev); got != tt.want {
			t.Errorf("PercentDelta(%d, %d) = %q, want %q", tt.cur, tt.prev, got, tt.want)
		}
	}
}

func TestPointDelta(t *testing.T) {
	tests := []struct {
		cur, prev float64
		want      string
	}{
		{0, 0, "+0.0%"},
		{75, 50, "+25.0%"},
		{33.3, 50, "-16.7%"},
		{50, 50.04, "+0.0%"},
	}
	for _, tt := range tests {
		if got := PointDelta(tt.cur, tt.prev); got != tt.want {
			t.Errorf("PointDelta(%v, %v) = %q, want %q", tt.cur, tt.prev, got, tt.want)
		}
	}
}

func TestPeriodWindows(t *testing.T) {
	ref := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	cur, prev := PeriodWeekly.Windows(ref)
	if !cur.Start.Equal(ref.AddDate(0, 0, -7)) || !cur.End.Equal(ref) {
		t.Errorf("current = %v..%v", cur.Start, cur.End)
	}
	if !prev.End.Equal(cur.Start) || !prev.Start.Equal(ref.AddDate(0, 0, -14)) {
		t.Errorf("previous = %v..%v", prev.Start, prev.End)
	}

	if cur.Contains(cur.Start) {
		t.Error("window start is exclusive")
	}
	if !cur.Contains(cur.End) {
		t.Error("window end is inclusive")
	}

	if PeriodMonthly.Length() != 30*24*time.Hour || PeriodMonthly.ChartDays() != 30 {
		t.Error("monthly period should span 30 days")
	}
	if PeriodDaily.ChartDays() != 7 {
		t.Error("daily chart should show 7 days")
	}
}

func TestParsePeriod(t *testing.T) {
	if p, err := ParsePeriod(""); err != nil || p != PeriodDaily {
		t.Errorf("ParsePeriod(\"\") = %v, %v", p, err)
	}
	if _, err := ParsePeriod("yearly"); !errors.Is(err, ErrValidation) {
		t.Errorf("ParsePeriod(yearly) error = %v", err)
	}
}
