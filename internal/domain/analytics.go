package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Period is the closed set of dashboard windows
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// ParsePeriod validates s, defaulting empty input to daily
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodDaily, nil
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return p, nil
	default:
		return "", NewValidationError("period", fmt.Sprintf("unknown period %q", s))
	}
}

// Length is the window size for the period
func (p Period) Length() time.Duration {
	switch p {
	case PeriodWeekly:
		return 7 * 24 * time.Hour
	case PeriodMonthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// ChartDays is how many daily buckets the chart carries
func (p Period) ChartDays() int {
	if p == PeriodMonthly {
		return 30
	}
	return 7
}

// Window is the half-open interval (Start, End]
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls in (Start, End]
func (w Window) Contains(t time.Time) bool {
	return t.After(w.Start) && !t.After(w.End)
}

// Windows returns the current window ending at ref and the one before it
func (p Period) Windows(ref time.Time) (current, previous Window) {
	size := p.Length()
	current = Window{Start: ref.Add(-size), End: ref}
	previous = Window{Start: current.Start.Add(-size), End: current.Start}
	return current, previous
}

// ChartBucket counts messages for one UTC day
type ChartBucket struct {
	Date     string `json:"date"`
	Label    string `json:"label"`
	Received int    `json:"received"`
	Sent     int    `json:"sent"`
}

// Counts are the raw per-window figures
type Counts struct {
	LeadsContacted   int     `json:"leads_contacted"`
	UniqueLeads      int     `json:"unique_leads"`
	ReturningLeads   int     `json:"returning_leads"`
	MessagesSent     int     `json:"messages_sent"`
	MessagesReceived int     `json:"messages_received"`
	ResponseRate     float64 `json:"response_rate"`
	Bookings         int     `json:"bookings"`
}

// Deltas compare the current window against the previous one
type Deltas struct {
	LeadsChange    string `json:"leads_change"`
	UniqueChange   string `json:"unique_change"`
	MessagesChange string `json:"messages_change"`
	ResponseChange string `json:"response_change"`
	BookingsChange string `json:"bookings_change"`
}

// AnalyticsSnapshot is a derived rollup; it is never stored authoritatively
type AnalyticsSnapshot struct {
	TenantID    string    `json:"tenant_id"`
	Period      Period    `json:"period"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Counts
	Deltas
	Previous  Counts        `json:"previous"`
	ChartData []ChartBucket `json:"chart_data"`
}

// PercentDelta formats round((cur-prev)/prev*100) as +N% or -N%.
// A previous value of zero yields +0%.
func PercentDelta(cur, prev int) string {
	if prev == 0 {
		return "+0%"
	}
	pct := math.Round(float64(cur-prev) / float64(prev) * 100)
	return signed(strconv.FormatFloat(pct, 'f', 0, 64), pct) + "%"
}

// PointDelta formats the difference of two percentages with one decimal
func PointDelta(cur, prev float64) string {
	d := RoundTo(cur-prev, 1)
	return signed(strconv.FormatFloat(d, 'f', 1, 64), d) + "%"
}

func signed(s string, v float64) string {
	if v >= 0 {
		// -0 formats as "-0"
		return "+" + strings.TrimPrefix(s, "-")
	}
	return s
}

// RoundTo rounds v to the given number of decimals
func RoundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// ActivityItem summarizes one recent conversation
type ActivityItem struct {
	LeadID           string     `json:"lead_id"`
	ExternalUsername string     `json:"username"`
	DisplayName      string     `json:"name"`
	Status           LeadStatus `json:"status"`
	LastInteraction  time.Time  `json:"last_interaction"`
	MessageCount     int        `json:"message_count"`
	Messages         []*Message `json:"messages"`
}
