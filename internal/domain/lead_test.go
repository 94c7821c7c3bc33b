package domain

import (
	"errors"
	"testing"
	"time"
)

func TestLeadStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status   LeadStatus
		expected bool
	}{
		{StatusNew, false},
		{StatusEngaged, false},
		{StatusQualified, false},
		{StatusMeetingBooked, false},
		{StatusConverted, true},
		{StatusLost, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.expected {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestLeadStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		name     string
		from     LeadStatus
		to       LeadStatus
		expected bool
	}{
		{"new to engaged", StatusNew, StatusEngaged, true},
		{"new skips to meeting_booked", StatusNew, StatusMeetingBooked, true},
		{"engaged to qualified", StatusEngaged, StatusQualified, true},
		{"qualified to converted", StatusQualified, StatusConverted, true},
		{"meeting_booked to converted", StatusMeetingBooked, StatusConverted, true},
		{"new to lost", StatusNew, StatusLost, true},
		{"meeting_booked to lost", StatusMeetingBooked, StatusLost, true},

		{"self transition", StatusEngaged, StatusEngaged, false},
		{"backward", StatusQualified, StatusEngaged, false},
		{"out of converted", StatusConverted, StatusLost, false},
		{"converted to new", StatusConverted, StatusNew, false},
		{"out of lost", StatusLost, StatusEngaged, false},
		{"lost to lost", StatusLost, StatusLost, false},
		{"unknown target", StatusNew, LeadStatus("freebie"), false},
		{"unknown source", LeadStatus("freebie"), StatusEngaged, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.expected {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.expected)
			}
		})
	}
}

func TestParseLeadStatus(t *testing.T) {
	if s, err := ParseLeadStatus(" Meeting_Booked "); err != nil || s != StatusMeetingBooked {
		t.Errorf("ParseLeadStatus() = %v, %v", s, err)
	}
	if _, err := ParseLeadStatus("hot"); !errors.Is(err, ErrValidation) {
		t.Errorf("ParseLeadStatus(hot) error = %v, want ErrValidation", err)
	}
}

func TestLeadStatusCategory(t *testing.T) {
	tests := []struct {
		status LeadStatus
		want   Category
	}{
		{StatusNew, CategoryUnqualified},
		{StatusEngaged, CategoryUnqualified},
		{StatusQualified, CategoryQualified},
		{StatusMeetingBooked, CategoryQualified},
		{StatusConverted, CategoryQualified},
		{StatusLost, CategoryLost},
	}
	for _, tt := range tests {
		if got := tt.status.Category(); got != tt.want {
			t.Errorf("%s.Category() = %s, want %s", tt.status, got, tt.want)
		}
	}

	if got := StatusesIn(CategoryQualified); len(got) != 3 {
		t.Errorf("StatusesIn(qualified) = %v, want 3 statuses", got)
	}
}

func TestLeadTransition(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("records transition and booking time", func(t *testing.T) {
		l := &Lead{LeadID: "l1", TenantID: "acme", Status: StatusEngaged}
		tr, err := l.Transition(StatusMeetingBooked, ActorAgent, "calendar link clicked", at)
		if err != nil {
			t.Fatalf("Transition() error = %v", err)
		}
		if tr.From != StatusEngaged || tr.To != StatusMeetingBooked {
			t.Errorf("transition = %s -> %s", tr.From, tr.To)
		}
		if l.Status != StatusMeetingBooked {
			t.Errorf("Status = %s, want meeting_booked", l.Status)
		}
		if l.MeetingBookedAt == nil || !l.MeetingBookedAt.Equal(at) {
			t.Errorf("MeetingBookedAt = %v, want %v", l.MeetingBookedAt, at)
		}
	})

	t.Run("illegal move leaves lead unchanged", func(t *testing.T) {
		l := &Lead{Status: StatusConverted}
		_, err := l.Transition(StatusLost, ActorOperator, "", at)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("error = %v, want ErrInvalidTransition", err)
		}
		if l.Status != StatusConverted || l.StatusChangedAt != nil {
			t.Errorf("lead mutated on failed transition: %+v", l)
		}
	})

	t.Run("blocked lead rejects agent but not operator", func(t *testing.T) {
		l := &Lead{Status: StatusNew, AgentBlocked: true}
		if _, err := l.Transition(StatusEngaged, ActorAgent, "", at); !errors.Is(err, ErrAgentBlocked) {
			t.Fatalf("agent error = %v, want ErrAgentBlocked", err)
		}
		if _, err := l.Transition(StatusEngaged, ActorOperator, "", at); err != nil {
			t.Fatalf("operator error = %v", err)
		}
	})
}

func TestLeadNeedsFollowup(t *testing.T) {
	now := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	threshold := 24 * time.Hour

	tests := []struct {
		name string
		lead Lead
		want bool
	}{
		{"idle engaged", Lead{Status: StatusEngaged, LastInteractionAt: now.Add(-25 * time.Hour)}, true},
		{"exactly threshold", Lead{Status: StatusEngaged, LastInteractionAt: now.Add(-24 * time.Hour)}, false},
		{"recent", Lead{Status: StatusNew, LastInteractionAt: now.Add(-time.Hour)}, false},
		{"lost", Lead{Status: StatusLost, LastInteractionAt: now.Add(-48 * time.Hour)}, false},
		{"converted", Lead{Status: StatusConverted, LastInteractionAt: now.Add(-48 * time.Hour)}, false},
		{"meeting booked", Lead{Status: StatusMeetingBooked, LastInteractionAt: now.Add(-48 * time.Hour)}, false},
		{"blocked", Lead{Status: StatusQualified, AgentBlocked: true, LastInteractionAt: now.Add(-48 * time.Hour)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.lead.NeedsFollowup(now, threshold); got != tt.want {
				t.Errorf("NeedsFollowup() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLeadBookingIntent(t *testing.T) {
	booked := &Lead{Status: StatusMeetingBooked}
	intent := &Lead{Status: StatusEngaged, BookingIntent: true}
	none := &Lead{Status: StatusQualified}

	if !booked.ShowsBookingIntent() || booked.BookingLabel() != "confirmed" {
		t.Errorf("booked lead: intent=%v label=%s", booked.ShowsBookingIntent(), booked.BookingLabel())
	}
	if !intent.ShowsBookingIntent() || intent.BookingLabel() != "intent" {
		t.Errorf("intent lead: intent=%v label=%s", intent.ShowsBookingIntent(), intent.BookingLabel())
	}
	if none.ShowsBookingIntent() {
		t.Error("qualified lead without flag should not show intent")
	}
}

func TestLeadFilterMatches(t *testing.T) {
	l := &Lead{Status: StatusQualified, ExternalUsername: "jane_doe", DisplayName: "Jane Doe"}

	tests := []struct {
		name   string
		filter LeadFilter
		want   bool
	}{
		{"empty", LeadFilter{}, true},
		{"status hit", LeadFilter{Statuses: []LeadStatus{StatusQualified}}, true},
		{"status miss", LeadFilter{Statuses: []LeadStatus{StatusNew}}, false},
		{"category", LeadFilter{Statuses: StatusesIn(CategoryQualified)}, true},
		{"search display name", LeadFilter{Search: "jane"}, true},
		{"search username", LeadFilter{Search: "DOE"}, true},
		{"search miss", LeadFilter{Search: "bob"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(l); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLeadClone(t *testing.T) {
	ts := time.Now()
	l := &Lead{LeadID: "l1", LastFollowupAt: &ts}
	c := l.Clone()
	*c.LastFollowupAt = ts.Add(time.Hour)
	if !l.LastFollowupAt.Equal(ts) {
		t.Error("Clone() shares time pointers with the original")
	}
}
