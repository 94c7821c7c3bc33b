package domain

import "time"

// Lead event types
const (
	EventLeadCreated       = "lead.created"
	EventLeadStatusChanged = "lead.status_changed"
	EventLeadFollowupDue   = "lead.followup_due"
	EventChannelConnected  = "tenant.channel_connected"
)

// LeadEvent is published when a lead changes in a way collaborators care about
type LeadEvent struct {
	EventType     string     `json:"event_type"`
	TenantID      string     `json:"tenant_id"`
	LeadID        string     `json:"lead_id,omitempty"`
	Username      string     `json:"username,omitempty"`
	Source        LeadSource `json:"source,omitempty"`
	FromStatus    LeadStatus `json:"from_status,omitempty"`
	ToStatus      LeadStatus `json:"to_status,omitempty"`
	FollowupCount int        `json:"followup_count,omitempty"`
	// Prompt is the follow-up prompt the agent should use
	Prompt    string    `json:"prompt,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Key partitions events by lead so per-lead ordering holds
func (e *LeadEvent) Key() string {
	if e.LeadID == "" {
		return e.TenantID
	}
	return e.TenantID + ":" + e.LeadID
}
