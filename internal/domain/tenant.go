package domain

import (
	"regexp"
	"time"
)

// TenantStatus is the closed set of tenant states
type TenantStatus string

const (
	TenantActive   TenantStatus = "active"
	TenantInactive TenantStatus = "inactive"
)

// IsValid reports whether s is a known tenant status
func (s TenantStatus) IsValid() bool {
	return s == TenantActive || s == TenantInactive
}

var tenantIDPattern = regexp.MustCompile(`^[a-z0-9_-]{2,64}$`)

// ValidTenantID reports whether id is an acceptable tenant identifier
func ValidTenantID(id string) bool {
	return tenantIDPattern.MatchString(id)
}

// AgentPrompts are the per-source instructions handed to the agent
type AgentPrompts struct {
	DM       string `json:"dm,omitempty"`
	Story    string `json:"story,omitempty"`
	Followup string `json:"followup,omitempty"`
}

// ChannelConnection is the tenant's link to the messaging platform
type ChannelConnection struct {
	Connected         bool       `json:"connected"`
	ExternalAccountID string     `json:"external_account_id,omitempty"`
	Username          string     `json:"username,omitempty"`
	AccessToken       string     `json:"-"`
	ConnectedAt       *time.Time `json:"connected_at,omitempty"`
}

// ChannelAccount is what a successful handshake reports back
type ChannelAccount struct {
	ExternalAccountID string
	Username          string
	AccessToken       string
}

// Tenant is a client business account and the unit of data isolation
type Tenant struct {
	TenantID          string            `json:"tenant_id"`
	BusinessName      string            `json:"business_name"`
	Industry          string            `json:"industry,omitempty"`
	LoginEmail        string            `json:"login_email,omitempty"`
	LoginPasswordHash string            `json:"-"`
	AgentPrompts      AgentPrompts      `json:"agent_prompts"`
	Channel           ChannelConnection `json:"channel_connection"`
	Status            TenantStatus      `json:"status"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	DeletedAt         *time.Time        `json:"deleted_at,omitempty"`
}

// IsActive reports whether the tenant may log in and be scheduled
func (t *Tenant) IsActive() bool {
	return t.Status == TenantActive && t.DeletedAt == nil
}

// PromptFor picks the agent prompt for a lead source. Story sources use the
// story prompt when one is configured, everything else uses the DM prompt.
func (t *Tenant) PromptFor(source LeadSource) string {
	if source == SourceStory && t.AgentPrompts.Story != "" {
		return t.AgentPrompts.Story
	}
	return t.AgentPrompts.DM
}

// TenantPatch is a partial update; nil and empty fields are left unchanged
type TenantPatch struct {
	BusinessName      *string
	Industry          *string
	LoginEmail        *string
	LoginPasswordHash *string
	DMPrompt          *string
	StoryPrompt       *string
	FollowupPrompt    *string
	Status            *TenantStatus
	// Manual channel setup; never flips Connected
	ExternalAccountID *string
	AccessToken       *string
}

func applyString(dst *string, v *string) bool {
	if v == nil || *v == "" || *v == *dst {
		return false
	}
	*dst = *v
	return true
}

// Apply merges the patch into t and reports whether anything changed
func (p *TenantPatch) Apply(t *Tenant) bool {
	changed := false
	changed = applyString(&t.BusinessName, p.BusinessName) || changed
	changed = applyString(&t.Industry, p.Industry) || changed
	changed = applyString(&t.LoginEmail, p.LoginEmail) || changed
	changed = applyString(&t.LoginPasswordHash, p.LoginPasswordHash) || changed
	changed = applyString(&t.AgentPrompts.DM, p.DMPrompt) || changed
	changed = applyString(&t.AgentPrompts.Story, p.StoryPrompt) || changed
	changed = applyString(&t.AgentPrompts.Followup, p.FollowupPrompt) || changed
	changed = applyString(&t.Channel.ExternalAccountID, p.ExternalAccountID) || changed
	changed = applyString(&t.Channel.AccessToken, p.AccessToken) || changed
	if p.Status != nil && *p.Status != "" && *p.Status != t.Status {
		t.Status = *p.Status
		changed = true
	}
	return changed
}
