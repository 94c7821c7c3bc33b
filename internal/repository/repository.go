package repository

import (
	"context"
	"errors"
	"time"

	"github.com/prohmpiriya/leadflow/internal/domain"
)

// ErrLeadExists is returned when a lead with the same external username exists
var ErrLeadExists = errors.New("lead already exists")

// TenantListFilter narrows an admin tenant listing
type TenantListFilter struct {
	Page   int
	Limit  int
	Status domain.TenantStatus // empty for all
	Search string
}

// TenantRepository defines the interface for tenant data access.
// Lookups return nil, nil when nothing matches.
type TenantRepository interface {
	// Create fails with domain.ErrDuplicateTenant when the id or login email is taken
	Create(ctx context.Context, tenant *domain.Tenant) error
	// GetByID ignores soft-deleted tenants
	GetByID(ctx context.Context, tenantID string) (*domain.Tenant, error)
	GetByLoginEmail(ctx context.Context, email string) (*domain.Tenant, error)
	List(ctx context.Context, filter TenantListFilter) ([]*domain.Tenant, int, error)
	// ListActiveIDs returns every active, non-deleted tenant id
	ListActiveIDs(ctx context.Context) ([]string, error)
	Update(ctx context.Context, tenant *domain.Tenant) error
	SoftDelete(ctx context.Context, tenantID string, at time.Time) error
	// ExistsByID includes soft-deleted tenants so ids are never reused
	ExistsByID(ctx context.Context, tenantID string) (bool, error)
}

// LeadRepository defines the interface for lead data access
type LeadRepository interface {
	// Create returns ErrLeadExists when (tenant, external_username) is taken
	Create(ctx context.Context, lead *domain.Lead) error
	GetByID(ctx context.Context, tenantID, leadID string) (*domain.Lead, error)
	GetByUsername(ctx context.Context, tenantID, username string) (*domain.Lead, error)
	// List orders by last_interaction_at desc then lead_id
	List(ctx context.Context, tenantID string, filter domain.LeadFilter) ([]*domain.Lead, int, error)
	// ListAll returns every lead in the tenant, unordered
	ListAll(ctx context.Context, tenantID string) ([]*domain.Lead, error)
	// Update writes the lead when its version still matches, bumping it.
	// A stale version yields domain.ErrVersionConflict.
	Update(ctx context.Context, lead *domain.Lead) error
	// SaveTransition updates the lead and records the transition atomically
	SaveTransition(ctx context.Context, lead *domain.Lead, tr *domain.StatusTransition) error
	// ListTransitionsInto returns transitions into status within (from, to]
	ListTransitionsInto(ctx context.Context, tenantID string, status domain.LeadStatus, from, to time.Time) ([]*domain.StatusTransition, error)
}

// MessageRepository defines the interface for the conversation log
type MessageRepository interface {
	// Append stores msg and atomically bumps the owning lead's counters,
	// returning the updated lead. domain.ErrLeadNotFound when the lead is
	// absent from msg.TenantID.
	Append(ctx context.Context, msg *domain.Message) (*domain.Lead, error)
	// List returns messages in conversation order with the total count
	List(ctx context.Context, tenantID, leadID string, offset, limit int) ([]*domain.Message, int, error)
	// Latest returns up to n most recent messages, oldest first
	Latest(ctx context.Context, tenantID, leadID string, n int) ([]*domain.Message, error)
	// ListBetween returns tenant messages with timestamp in (from, to]
	ListBetween(ctx context.Context, tenantID string, from, to time.Time) ([]*domain.Message, error)
	// FirstMessageAt returns each lead's earliest message time
	FirstMessageAt(ctx context.Context, tenantID string, leadIDs []string) (map[string]time.Time, error)
}

// SessionRepository stores issued sessions until logout or expiry
type SessionRepository interface {
	Save(ctx context.Context, session *domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Delete(ctx context.Context, sessionID string) error
}

// OAuthState is the pending channel handshake for a tenant
type OAuthState struct {
	TenantID      string    `json:"tenant_id"`
	RedirectAfter string    `json:"redirect_after,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// OAuthStateRepository holds one-shot handshake state
type OAuthStateRepository interface {
	Save(ctx context.Context, state string, data *OAuthState, ttl time.Duration) error
	// Consume returns and deletes the state, nil when unknown or expired
	Consume(ctx context.Context, state string) (*OAuthState, error)
}
