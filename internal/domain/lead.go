package domain

import (
	"fmt"
	"strings"
	"time"
)

// LeadStatus is the closed set of lifecycle states
type LeadStatus string

const (
	StatusNew           LeadStatus = "new"
	StatusEngaged       LeadStatus = "engaged"
	StatusQualified     LeadStatus = "qualified"
	StatusMeetingBooked LeadStatus = "meeting_booked"
	StatusConverted     LeadStatus = "converted"
	StatusLost          LeadStatus = "lost"
)

// funnelRank orders the forward chain; lost sits outside it
var funnelRank = map[LeadStatus]int{
	StatusNew:           0,
	StatusEngaged:       1,
	StatusQualified:     2,
	StatusMeetingBooked: 3,
	StatusConverted:     4,
}

// AllStatuses lists every status in funnel order
var AllStatuses = []LeadStatus{
	StatusNew, StatusEngaged, StatusQualified, StatusMeetingBooked, StatusConverted, StatusLost,
}

// ParseLeadStatus validates s against the closed enumeration
func ParseLeadStatus(s string) (LeadStatus, error) {
	st := LeadStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", NewValidationError("status", fmt.Sprintf("unknown status %q", s))
	}
	return st, nil
}

// IsValid returns true if s is a known status
func (s LeadStatus) IsValid() bool {
	if s == StatusLost {
		return true
	}
	_, ok := funnelRank[s]
	return ok
}

// IsTerminal returns true for converted and lost
func (s LeadStatus) IsTerminal() bool {
	return s == StatusConverted || s == StatusLost
}

// CanTransitionTo allows strictly forward moves along the funnel, skipping
// permitted, and any non-terminal status to lost
func (s LeadStatus) CanTransitionTo(target LeadStatus) bool {
	if !s.IsValid() || !target.IsValid() || s.IsTerminal() {
		return false
	}
	if target == StatusLost {
		return true
	}
	return funnelRank[target] > funnelRank[s]
}

// Category is the coarse lead grouping shown on dashboards
type Category string

const (
	CategoryQualified   Category = "qualified"
	CategoryUnqualified Category = "unqualified"
	CategoryLost        Category = "lost"
)

// Category maps a status onto its dashboard grouping
func (s LeadStatus) Category() Category {
	switch s {
	case StatusQualified, StatusMeetingBooked, StatusConverted:
		return CategoryQualified
	case StatusLost:
		return CategoryLost
	default:
		return CategoryUnqualified
	}
}

// StatusesIn returns the statuses belonging to category c
func StatusesIn(c Category) []LeadStatus {
	var out []LeadStatus
	for _, s := range AllStatuses {
		if s.Category() == c {
			out = append(out, s)
		}
	}
	return out
}

// LeadSource is where the conversation started
type LeadSource string

const (
	SourceDM    LeadSource = "dm"
	SourceStory LeadSource = "story"
	SourceAd    LeadSource = "ad"
)

// ParseLeadSource validates s, defaulting empty input to dm
func ParseLeadSource(s string) (LeadSource, error) {
	switch src := LeadSource(strings.ToLower(strings.TrimSpace(s))); src {
	case "":
		return SourceDM, nil
	case SourceDM, SourceStory, SourceAd:
		return src, nil
	default:
		return "", NewValidationError("source", fmt.Sprintf("unknown source %q", s))
	}
}

// Actor distinguishes automated agent requests from human operators
type Actor string

const (
	ActorAgent    Actor = "agent"
	ActorOperator Actor = "operator"
)

// Lead is a prospective customer conversation thread within one tenant
type Lead struct {
	LeadID            string     `json:"lead_id"`
	TenantID          string     `json:"tenant_id"`
	ExternalUsername  string     `json:"external_username"`
	DisplayName       string     `json:"display_name,omitempty"`
	Status            LeadStatus `json:"status"`
	Source            LeadSource `json:"source"`
	FollowupCount     int        `json:"followup_count"`
	LastFollowupAt    *time.Time `json:"last_followup_at,omitempty"`
	LastInteractionAt time.Time  `json:"last_interaction_at"`
	MessageCount      int        `json:"message_count"`
	AgentBlocked      bool       `json:"agent_blocked"`
	BookingIntent     bool       `json:"booking_intent"`
	StatusChangedAt   *time.Time `json:"status_changed_at,omitempty"`
	MeetingBookedAt   *time.Time `json:"meeting_booked_at,omitempty"`
	MeetingTitle      string     `json:"meeting_title,omitempty"`
	MeetingStartsAt   *time.Time `json:"meeting_starts_at,omitempty"`
	Version           int64      `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NeedsFollowup reports whether the lead has been idle past threshold and is
// still eligible for automated re-engagement
func (l *Lead) NeedsFollowup(now time.Time, threshold time.Duration) bool {
	if l.AgentBlocked || l.Status.IsTerminal() || l.Status == StatusMeetingBooked {
		return false
	}
	return now.Sub(l.LastInteractionAt) > threshold
}

// ShowsBookingIntent is true for booked leads or when the latest message carried an intent flag
func (l *Lead) ShowsBookingIntent() bool {
	return l.Status == StatusMeetingBooked || l.BookingIntent
}

// BookingLabel is confirmed for booked leads and intent otherwise
func (l *Lead) BookingLabel() string {
	if l.Status == StatusMeetingBooked {
		return "confirmed"
	}
	return "intent"
}

// Transition validates and applies a status change, returning the audit row
func (l *Lead) Transition(to LeadStatus, actor Actor, reason string, at time.Time) (*StatusTransition, error) {
	if l.AgentBlocked && actor == ActorAgent {
		return nil, ErrAgentBlocked
	}
	if !l.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.Status, to)
	}

	tr := &StatusTransition{
		LeadID:    l.LeadID,
		TenantID:  l.TenantID,
		From:      l.Status,
		To:        to,
		Actor:     actor,
		Reason:    reason,
		Timestamp: at,
	}

	l.Status = to
	l.StatusChangedAt = &at
	if to == StatusMeetingBooked {
		l.MeetingBookedAt = &at
	}
	l.UpdatedAt = at
	return tr, nil
}

// Calendar triggers that confirm a booking
const (
	BookingCreated   = "BOOKING_CREATED"
	BookingConfirmed = "BOOKING_CONFIRMED"
)

// IsBookingConfirmation reports whether a calendar trigger confirms a meeting
func IsBookingConfirmation(trigger string) bool {
	switch strings.ToUpper(strings.TrimSpace(trigger)) {
	case BookingCreated, BookingConfirmed:
		return true
	}
	return false
}

// ScheduleMeeting records the calendar details of a booking. Empty values
// leave what is already stored.
func (l *Lead) ScheduleMeeting(title string, startsAt *time.Time) {
	if title = strings.TrimSpace(title); title != "" {
		l.MeetingTitle = title
	}
	if startsAt != nil {
		at := startsAt.UTC()
		l.MeetingStartsAt = &at
	}
}

// Clone returns a deep copy so stores never hand out shared pointers
func (l *Lead) Clone() *Lead {
	c := *l
	c.LastFollowupAt = cloneTime(l.LastFollowupAt)
	c.StatusChangedAt = cloneTime(l.StatusChangedAt)
	c.MeetingBookedAt = cloneTime(l.MeetingBookedAt)
	c.MeetingStartsAt = cloneTime(l.MeetingStartsAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// StatusTransition records an accepted status change
type StatusTransition struct {
	ID        string     `json:"id"`
	LeadID    string     `json:"lead_id"`
	TenantID  string     `json:"tenant_id"`
	From      LeadStatus `json:"from"`
	To        LeadStatus `json:"to"`
	Actor     Actor      `json:"actor"`
	Reason    string     `json:"reason,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// LeadFilter narrows a lead listing
type LeadFilter struct {
	// Statuses is empty for all
	Statuses []LeadStatus
	Search   string
	Limit    int
	Offset   int
}

// Matches applies the status and search parts of the filter
func (f *LeadFilter) Matches(l *Lead) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if l.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(l.DisplayName), q) &&
			!strings.Contains(strings.ToLower(l.ExternalUsername), q) {
			return false
		}
	}
	return true
}
