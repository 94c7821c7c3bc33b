package domain

import (
	"fmt"
	"strings"
	"time"
)

// MessageRole is who wrote a message
type MessageRole string

const (
	RoleCustomer MessageRole = "customer"
	RoleAgent    MessageRole = "agent"
)

// ParseMessageRole validates s against the closed enumeration
func ParseMessageRole(s string) (MessageRole, error) {
	switch r := MessageRole(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleCustomer, RoleAgent:
		return r, nil
	default:
		return "", NewValidationError("role", fmt.Sprintf("unknown message role %q", s))
	}
}

// Message is an immutable entry in a lead's conversation log
type Message struct {
	MessageID     string      `json:"message_id"`
	LeadID        string      `json:"lead_id"`
	TenantID      string      `json:"tenant_id"`
	Role          MessageRole `json:"role"`
	Content       string      `json:"content"`
	Timestamp     time.Time   `json:"timestamp"`
	IsFollowup    bool        `json:"is_followup"`
	BookingIntent bool        `json:"booking_intent,omitempty"`
	// Seq breaks timestamp ties in insertion order
	Seq int64 `json:"-"`
}

// Before orders messages by timestamp then insertion sequence
func (m *Message) Before(o *Message) bool {
	if !m.Timestamp.Equal(o.Timestamp) {
		return m.Timestamp.Before(o.Timestamp)
	}
	return m.Seq < o.Seq
}
