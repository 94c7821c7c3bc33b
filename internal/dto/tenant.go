package dto

import (
	"strings"
	"time"

	"github.com/prohmpiriya/leadflow/internal/domain"
)

// AgentPromptsRequest carries per-source agent instructions
type AgentPromptsRequest struct {
	DM       string `json:"dm"`
	Story    string `json:"story"`
	Followup string `json:"followup"`
}

// CreateTenantRequest represents request to create a new client business
type CreateTenantRequest struct {
	TenantID      string              `json:"tenant_id" binding:"required"`
	BusinessName  string              `json:"business_name" binding:"required,max=255"`
	Industry      string              `json:"industry" binding:"omitempty,max=100"`
	LoginEmail    string              `json:"login_email" binding:"omitempty,email"`
	LoginPassword string              `json:"login_password" binding:"omitempty,min=8,max=72"`
	AgentPrompts  AgentPromptsRequest `json:"agent_prompts"`
	Status        string              `json:"status" binding:"omitempty,oneof=active inactive"`
}

// Normalize trims input and lower-cases the login email
func (r *CreateTenantRequest) Normalize() {
	r.TenantID = strings.TrimSpace(r.TenantID)
	r.BusinessName = strings.TrimSpace(r.BusinessName)
	r.LoginEmail = strings.ToLower(strings.TrimSpace(r.LoginEmail))
}

// UpdateTenantRequest is a partial update; omitted and empty fields are ignored.
// A non-empty LoginEmail is checked by the service
type UpdateTenantRequest struct {
	BusinessName      *string `json:"business_name" binding:"omitempty,max=255"`
	Industry          *string `json:"industry" binding:"omitempty,max=100"`
	LoginEmail        *string `json:"login_email"`
	LoginPassword     *string `json:"login_password"`
	DMPrompt          *string `json:"dm_prompt"`
	StoryPrompt       *string `json:"story_prompt"`
	FollowupPrompt    *string `json:"followup_prompt"`
	Status            *string `json:"status" binding:"omitempty,oneof=active inactive"`
	ExternalAccountID *string `json:"external_account_id"`
	AccessToken       *string `json:"access_token"`
}

// ToPatch converts the request into a domain patch. passwordHash replaces
// LoginPassword when a new password was supplied.
func (r *UpdateTenantRequest) ToPatch(passwordHash string) *domain.TenantPatch {
	p := &domain.TenantPatch{
		BusinessName:      trimmed(r.BusinessName),
		Industry:          r.Industry,
		DMPrompt:          r.DMPrompt,
		StoryPrompt:       r.StoryPrompt,
		FollowupPrompt:    r.FollowupPrompt,
		ExternalAccountID: r.ExternalAccountID,
		AccessToken:       r.AccessToken,
	}
	if r.LoginEmail != nil {
		email := strings.ToLower(strings.TrimSpace(*r.LoginEmail))
		p.LoginEmail = &email
	}
	if passwordHash != "" {
		p.LoginPasswordHash = &passwordHash
	}
	if r.Status != nil && *r.Status != "" {
		st := domain.TenantStatus(*r.Status)
		p.Status = &st
	}
	return p
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// ChannelResponse is the public view of a channel connection
type ChannelResponse struct {
	Connected         bool   `json:"connected"`
	ExternalAccountID string `json:"external_account_id,omitempty"`
	Username          string `json:"username,omitempty"`
	HasAccessToken    bool   `json:"has_access_token"`
	ConnectedAt       string `json:"connected_at,omitempty"`
}

// TenantResponse represents tenant data in response
type TenantResponse struct {
	TenantID     string              `json:"tenant_id"`
	BusinessName string              `json:"business_name"`
	Industry     string              `json:"industry,omitempty"`
	LoginEmail   string              `json:"login_email,omitempty"`
	AgentPrompts domain.AgentPrompts `json:"agent_prompts"`
	Channel      ChannelResponse     `json:"channel_connection"`
	Status       string              `json:"status"`
	CreatedAt    string              `json:"created_at"`
	UpdatedAt    string              `json:"updated_at"`
}

// NewTenantResponse converts a domain tenant, never exposing credentials
func NewTenantResponse(t *domain.Tenant) *TenantResponse {
	return &TenantResponse{
		TenantID:     t.TenantID,
		BusinessName: t.BusinessName,
		Industry:     t.Industry,
		LoginEmail:   t.LoginEmail,
		AgentPrompts: t.AgentPrompts,
		Channel:      NewChannelResponse(&t.Channel),
		Status:       string(t.Status),
		CreatedAt:    t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    t.UpdatedAt.Format(time.RFC3339),
	}
}

// NewChannelResponse converts a channel connection
func NewChannelResponse(c *domain.ChannelConnection) ChannelResponse {
	resp := ChannelResponse{
		Connected:         c.Connected,
		ExternalAccountID: c.ExternalAccountID,
		Username:          c.Username,
		HasAccessToken:    c.AccessToken != "",
	}
	if c.ConnectedAt != nil {
		resp.ConnectedAt = c.ConnectedAt.Format(time.RFC3339)
	}
	return resp
}

// ListTenantsQuery represents query parameters for listing tenants
type ListTenantsQuery struct {
	Page   int    `form:"page" binding:"omitempty,min=1"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Status string `form:"status" binding:"omitempty,oneof=active inactive"`
	Search string `form:"search" binding:"omitempty,max=255"`
}

// SetDefaults sets default values for query parameters
func (q *ListTenantsQuery) SetDefaults() {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = 20
	}
}

// ListTenantsResponse represents paginated list of tenants
type ListTenantsResponse struct {
	Tenants    []TenantResponse `json:"tenants"`
	TotalCount int              `json:"total_count"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	TotalPages int              `json:"total_pages"`
}
