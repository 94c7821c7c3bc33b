package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of session roles
type Role string

const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

// ParseRole validates s against the closed enumeration
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleClient, RoleAdmin:
		return r, nil
	default:
		return "", NewValidationError("role", fmt.Sprintf("unknown role %q", s))
	}
}

// Session is a server-side record of an issued token
type Session struct {
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	TenantID  string    `json:"tenant_id,omitempty"`
	Email     string    `json:"email"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Principal is the verified caller of a request
type Principal struct {
	SessionID string
	Role      Role
	TenantID  string
	Email     string
}

// IsAdmin reports whether the principal bypasses tenant scoping
func (p *Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Credential is what a caller presents: a bearer token or the admin API key
type Credential struct {
	Token    string
	AdminKey string
}
