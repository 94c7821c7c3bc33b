package dto

import (
	"strings"
	"time"

	"github.com/prohmpiriya/leadflow/internal/domain"
)

const (
	DefaultLeadLimit = 50
	MaxLeadLimit     = 100

	DefaultConversationLimit = 200
	MaxConversationLimit     = 1000
)

// ListLeadsQuery represents query parameters for listing leads
type ListLeadsQuery struct {
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
	Status string `form:"status"`
	Search string `form:"search" binding:"omitempty,max=255"`
}

// SetDefaults sets default values for query parameters
func (q *ListLeadsQuery) SetDefaults() {
	if q.Limit == 0 {
		q.Limit = DefaultLeadLimit
	}
}

// Filter resolves the status parameter. Category names win over the
// status of the same name, so qualified selects the whole category.
func (q *ListLeadsQuery) Filter() (domain.LeadFilter, error) {
	f := domain.LeadFilter{Search: strings.TrimSpace(q.Search), Limit: q.Limit, Offset: q.Offset}
	status := strings.ToLower(strings.TrimSpace(q.Status))
	switch status {
	case "", "all":
	case string(domain.CategoryQualified), string(domain.CategoryUnqualified):
		f.Statuses = domain.StatusesIn(domain.Category(status))
	default:
		st, err := domain.ParseLeadStatus(status)
		if err != nil {
			return f, err
		}
		f.Statuses = []domain.LeadStatus{st}
	}
	return f, nil
}

// LimitQuery is a bare limit parameter
type LimitQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

// ConversationQuery pages a conversation log
type ConversationQuery struct {
	Offset int `form:"offset" binding:"omitempty,min=0"`
	Limit  int `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// SetDefaults sets default values for query parameters
func (q *ConversationQuery) SetDefaults() {
	if q.Limit == 0 {
		q.Limit = DefaultConversationLimit
	}
}

// TransitionRequest asks for a status change
type TransitionRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason" binding:"omitempty,max=500"`
}

// BlockRequest toggles agent automation for a lead
type BlockRequest struct {
	Blocked *bool `json:"blocked" binding:"required"`
}

// LeadResponse represents lead data in response
type LeadResponse struct {
	LeadID          string `json:"lead_id"`
	Username        string `json:"username"`
	Name            string `json:"name"`
	Status          string `json:"status"`
	Category        string `json:"category"`
	Source          string `json:"source"`
	MessageCount    int    `json:"message_count"`
	FollowupCount   int    `json:"followup_count"`
	LastFollowupAt  string `json:"last_followup_at,omitempty"`
	LastInteraction string `json:"last_interaction"`
	AgentBlocked    bool   `json:"agent_blocked"`
	BookingIntent   bool   `json:"booking_intent"`
	BookingLabel    string `json:"booking_label,omitempty"`
	MeetingBookedAt string `json:"meeting_booked_at,omitempty"`
	MeetingTitle    string `json:"meeting_title,omitempty"`
	MeetingStartsAt string `json:"meeting_starts_at,omitempty"`
	LastMessage     string `json:"last_message,omitempty"`
	StatusChangedAt string `json:"status_changed_at,omitempty"`
	CreatedAt       string `json:"created_at"`
}

// LastMessagePreviewLen caps the last_message preview in runes
const LastMessagePreviewLen = 100

// Preview trims message content to the list preview length
func Preview(content string) string {
	r := []rune(content)
	if len(r) <= LastMessagePreviewLen {
		return content
	}
	return string(r[:LastMessagePreviewLen])
}

// NewLeadResponse converts a domain lead
func NewLeadResponse(l *domain.Lead) LeadResponse {
	name := l.DisplayName
	if name == "" {
		name = "Unknown"
	}
	return LeadResponse{
		LeadID:          l.LeadID,
		Username:        l.ExternalUsername,
		Name:            name,
		Status:          string(l.Status),
		Category:        string(l.Status.Category()),
		Source:          string(l.Source),
		MessageCount:    l.MessageCount,
		FollowupCount:   l.FollowupCount,
		LastFollowupAt:  formatOptional(l.LastFollowupAt),
		LastInteraction: l.LastInteractionAt.Format(time.RFC3339),
		AgentBlocked:    l.AgentBlocked,
		BookingIntent:   l.ShowsBookingIntent(),
		MeetingBookedAt: formatOptional(l.MeetingBookedAt),
		MeetingTitle:    l.MeetingTitle,
		MeetingStartsAt: formatOptional(l.MeetingStartsAt),
		StatusChangedAt: formatOptional(l.StatusChangedAt),
		CreatedAt:       l.CreatedAt.Format(time.RFC3339),
	}
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

// LeadListResponse is a window over a lead listing
type LeadListResponse struct {
	Leads  []LeadResponse `json:"leads"`
	Total  int            `json:"total"`
	Offset int            `json:"offset"`
	Limit  int            `json:"limit"`
}

// NewLeadListResponse converts a page of leads
func NewLeadListResponse(leads []*domain.Lead, total, offset, limit int) *LeadListResponse {
	out := make([]LeadResponse, 0, len(leads))
	for _, l := range leads {
		out = append(out, NewLeadResponse(l))
	}
	return &LeadListResponse{Leads: out, Total: total, Offset: offset, Limit: limit}
}

// MessageResponse represents a conversation entry
type MessageResponse struct {
	MessageID     string `json:"message_id"`
	Role          string `json:"role"`
	Content       string `json:"content"`
	Timestamp     string `json:"timestamp"`
	IsFollowup    bool   `json:"is_followup"`
	BookingIntent bool   `json:"booking_intent,omitempty"`
}

// NewMessageResponses converts messages in order
func NewMessageResponses(msgs []*domain.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageResponse{
			MessageID:     m.MessageID,
			Role:          string(m.Role),
			Content:       m.Content,
			Timestamp:     m.Timestamp.Format(time.RFC3339Nano),
			IsFollowup:    m.IsFollowup,
			BookingIntent: m.BookingIntent,
		})
	}
	return out
}

// ConversationResponse is a page of one lead's log
type ConversationResponse struct {
	Lead     LeadResponse      `json:"lead"`
	Messages []MessageResponse `json:"messages"`
	Total    int               `json:"total"`
	Offset   int               `json:"offset"`
	Limit    int               `json:"limit"`
}

// IngestMessageRequest is a message reported by the agent or channel collaborator
type IngestMessageRequest struct {
	TenantID         string     `json:"tenant_id" binding:"required"`
	ExternalUsername string     `json:"external_username" binding:"required,max=255"`
	DisplayName      string     `json:"display_name" binding:"omitempty,max=255"`
	Source           string     `json:"source"`
	Role             string     `json:"role" binding:"required"`
	Content          string     `json:"content" binding:"required"`
	Timestamp        *time.Time `json:"timestamp"`
	IsFollowup       bool       `json:"is_followup"`
	BookingIntent    bool       `json:"booking_intent"`
}

// IngestMessageResponse reports where the message landed
type IngestMessageResponse struct {
	LeadID      string       `json:"lead_id"`
	MessageID   string       `json:"message_id"`
	LeadCreated bool         `json:"lead_created"`
	Lead        LeadResponse `json:"lead"`
}

// FollowupRequest records an agent follow-up message
type FollowupRequest struct {
	Content string `json:"content" binding:"required"`
}

// BookingConfirmationRequest is a calendar booking reported for a lead
type BookingConfirmationRequest struct {
	TriggerEvent     string     `json:"trigger_event" binding:"required"`
	TenantID         string     `json:"tenant_id" binding:"required"`
	ExternalUsername string     `json:"external_username" binding:"required,max=255"`
	Title            string     `json:"title" binding:"omitempty,max=255"`
	StartTime        *time.Time `json:"start_time"`
}

// BookingConfirmationResponse reports what a booking notification changed
type BookingConfirmationResponse struct {
	Processed bool          `json:"processed"`
	Message   string        `json:"message"`
	Lead      *LeadResponse `json:"lead,omitempty"`
}
