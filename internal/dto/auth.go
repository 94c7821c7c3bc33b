package dto

// LoginRequest represents a client or admin login
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse is returned on successful login
type LoginResponse struct {
	Success      bool   `json:"success"`
	Token        string `json:"token"`
	Role         string `json:"role"`
	ClientID     string `json:"client_id,omitempty"`
	BusinessName string `json:"business_name,omitempty"`
	ExpiresAt    string `json:"expires_at"`
}

// VerifyResponse reports whether a token is still valid
type VerifyResponse struct {
	Valid        bool   `json:"valid"`
	Role         string `json:"role,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	BusinessName string `json:"business_name,omitempty"`
	Email        string `json:"email,omitempty"`
}
