package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prohmpiriya/leadflow/internal/domain"
	"github.com/prohmpiriya/leadflow/internal/dto"
	"github.com/prohmpiriya/leadflow/internal/repository"
	"github.com/prohmpiriya/leadflow/pkg/config"
	"github.com/prohmpiriya/leadflow/pkg/logger"
	"github.com/prohmpiriya/leadflow/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Claims are the JWT claims of a session token. The session id travels as jti.
type Claims struct {
	Role     domain.Role `json:"role"`
	TenantID string      `json:"tenant_id,omitempty"`
	Email    string      `json:"email"`
	jwt.RegisteredClaims
}

// AuthConfig configures token issuing and the admin identity
type AuthConfig struct {
	JWT   config.JWTConfig
	Admin config.AdminConfig
	// BcryptCost defaults to bcrypt.DefaultCost
	BcryptCost int
}

// AuthService defines the interface for session and access control
type AuthService interface {
	// Login issues a token for role. Every failure is ErrInvalidCredentials.
	Login(ctx context.Context, role domain.Role, req *dto.LoginRequest) (*dto.LoginResponse, error)
	// Verify checks a token without side effects
	Verify(ctx context.Context, token string) (*domain.Principal, error)
	// Describe reports token validity with the tenant's business name
	Describe(ctx context.Context, token string) *dto.VerifyResponse
	// Authorize is the single access check used by every protected route.
	// requiredRole may be empty; tenantID re-scopes the principal when set.
	Authorize(ctx context.Context, cred domain.Credential, requiredRole domain.Role, tenantID string) (*domain.Principal, error)
	// Logout revokes the session; errors are swallowed
	Logout(ctx context.Context, token string)
}

type authService struct {
	cfg         AuthConfig
	tenantRepo  repository.TenantRepository
	sessionRepo repository.SessionRepository
	adminHash   []byte
	dummyHash   []byte
	now         func() time.Time
}

// NewAuthService creates a new AuthService. The admin password is hashed once
// so admin logins cost the same as client logins.
func NewAuthService(cfg AuthConfig, tenantRepo repository.TenantRepository, sessionRepo repository.SessionRepository) (AuthService, error) {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.JWT.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	cfg.Admin.Email = strings.ToLower(strings.TrimSpace(cfg.Admin.Email))

	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash dummy password: %w", err)
	}
	var adminHash []byte
	if cfg.Admin.Password != "" {
		adminHash, err = bcrypt.GenerateFromPassword([]byte(cfg.Admin.Password), cfg.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
	}

	return &authService{
		cfg:         cfg,
		tenantRepo:  tenantRepo,
		sessionRepo: sessionRepo,
		adminHash:   adminHash,
		dummyHash:   dummy,
		now:         time.Now,
	}, nil
}

// Login authenticates and issues a session token
func (s *authService) Login(ctx context.Context, role domain.Role, req *dto.LoginRequest) (*dto.LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	metrics := telemetry.GetMetrics()

	var tenant *domain.Tenant
	var ok bool
	switch role {
	case domain.RoleAdmin:
		ok = s.checkAdmin(email, req.Password)
	case domain.RoleClient:
		var err error
		tenant, ok, err = s.checkClient(ctx, email, req.Password)
		if err != nil {
			return nil, err
		}
	default:
		return nil, domain.NewValidationError("role", fmt.Sprintf("unknown role %q", role))
	}

	if !ok {
		metrics.Logins.Inc(ctx, telemetry.RoleAttr(string(role)), attribute.String("outcome", "rejected"))
		logger.WithContext(ctx).Info("Login rejected", zap.String("role", string(role)))
		return nil, domain.ErrInvalidCredentials
	}

	now := s.now()
	session := &domain.Session{
		SessionID: uuid.New().String(),
		Role:      role,
		Email:     email,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.JWT.TokenTTL),
	}
	if tenant != nil {
		session.TenantID = tenant.TenantID
	}

	token, err := s.sign(session)
	if err != nil {
		return nil, err
	}
	if err := s.sessionRepo.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	metrics.Logins.Inc(ctx, telemetry.RoleAttr(string(role)), attribute.String("outcome", "accepted"))
	logger.WithContext(ctx).Info("Login accepted",
		zap.String("role", string(role)),
		zap.String("tenant_id", session.TenantID),
	)

	resp := &dto.LoginResponse{
		Success:   true,
		Token:     token,
		Role:      string(role),
		ExpiresAt: session.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if tenant != nil {
		resp.ClientID = tenant.TenantID
		resp.BusinessName = tenant.BusinessName
	}
	return resp, nil
}

func (s *authService) checkAdmin(email, password string) bool {
	hash := s.adminHash
	if hash == nil {
		hash = s.dummyHash
	}
	// compare before the email check so timing does not reveal the admin address
	match := bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
	return match && s.adminHash != nil && email != "" &&
		subtle.ConstantTimeCompare([]byte(email), []byte(s.cfg.Admin.Email)) == 1
}

func (s *authService) checkClient(ctx context.Context, email, password string) (*domain.Tenant, bool, error) {
	var tenant *domain.Tenant
	if email != "" {
		var err error
		tenant, err = s.tenantRepo.GetByLoginEmail(ctx, email)
		if err != nil {
			return nil, false, err
		}
	}

	hash := s.dummyHash
	if tenant != nil && tenant.LoginPasswordHash != "" {
		hash = []byte(tenant.LoginPasswordHash)
	}
	match := bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil

	if tenant == nil || tenant.LoginPasswordHash == "" || !tenant.IsActive() || !match {
		return nil, false, nil
	}
	return tenant, true, nil
}

func (s *authService) sign(session *domain.Session) (string, error) {
	claims := &Claims{
		Role:     session.Role,
		TenantID: session.TenantID,
		Email:    session.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.SessionID,
			Issuer:    s.cfg.JWT.Issuer,
			Subject:   session.Email,
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWT.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *authService) parse(token string, opts ...jwt.ParserOption) (*Claims, error) {
	claims := &Claims{}
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWT.Secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	return claims, nil
}

// Verify validates the signature and expiry, then confirms the session still exists
func (s *authService) Verify(ctx context.Context, token string) (*domain.Principal, error) {
	if token == "" {
		return nil, domain.ErrUnauthorized
	}
	claims, err := s.parse(token)
	if err != nil || claims.ID == "" {
		return nil, domain.ErrUnauthorized
	}
	if _, err := domain.ParseRole(string(claims.Role)); err != nil {
		return nil, domain.ErrUnauthorized
	}
	if claims.Role == domain.RoleClient && claims.TenantID == "" {
		return nil, domain.ErrUnauthorized
	}

	session, err := s.sessionRepo.Get(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, domain.ErrUnauthorized
	}

	return &domain.Principal{
		SessionID: claims.ID,
		Role:      claims.Role,
		TenantID:  claims.TenantID,
		Email:     claims.Email,
	}, nil
}

// Describe backs the verify endpoint
func (s *authService) Describe(ctx context.Context, token string) *dto.VerifyResponse {
	p, err := s.Verify(ctx, token)
	if err != nil {
		return &dto.VerifyResponse{Valid: false}
	}
	resp := &dto.VerifyResponse{Valid: true, Role: string(p.Role), Email: p.Email}
	if p.TenantID != "" {
		tenant, err := s.tenantRepo.GetByID(ctx, p.TenantID)
		if err != nil || tenant == nil || !tenant.IsActive() {
			return &dto.VerifyResponse{Valid: false}
		}
		resp.ClientID = tenant.TenantID
		resp.BusinessName = tenant.BusinessName
	}
	return resp
}

// Authorize verifies the credential, checks the role and scopes the tenant
func (s *authService) Authorize(ctx context.Context, cred domain.Credential, requiredRole domain.Role, tenantID string) (*domain.Principal, error) {
	var p *domain.Principal
	if cred.AdminKey != "" {
		if s.cfg.Admin.APIKey == "" ||
			subtle.ConstantTimeCompare([]byte(cred.AdminKey), []byte(s.cfg.Admin.APIKey)) != 1 {
			return nil, domain.ErrUnauthorized
		}
		p = &domain.Principal{Role: domain.RoleAdmin, Email: s.cfg.Admin.Email}
	} else {
		var err error
		p, err = s.Verify(ctx, cred.Token)
		if err != nil {
			return nil, err
		}
	}

	switch requiredRole {
	case domain.RoleAdmin:
		if !p.IsAdmin() {
			return nil, domain.ErrForbidden
		}
	case domain.RoleClient:
		// admins may act on a client surface only when a tenant is named
		if p.IsAdmin() && tenantID == "" {
			return nil, domain.ErrForbidden
		}
	}

	if p.IsAdmin() {
		if tenantID != "" {
			tenant, err := s.tenantRepo.GetByID(ctx, tenantID)
			if err != nil {
				return nil, err
			}
			if tenant == nil {
				return nil, domain.ErrTenantNotFound
			}
			p.TenantID = tenantID
		}
		return p, nil
	}

	if tenantID != "" && tenantID != p.TenantID {
		return nil, domain.ErrTenantMismatch
	}
	tenant, err := s.tenantRepo.GetByID(ctx, p.TenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil || !tenant.IsActive() {
		return nil, domain.ErrUnauthorized
	}
	return p, nil
}

// Logout deletes the session named by the token, even an expired one
func (s *authService) Logout(ctx context.Context, token string) {
	if token == "" {
		return
	}
	claims, err := s.parse(token, jwt.WithoutClaimsValidation())
	if err != nil || claims.ID == "" {
		return
	}
	if err := s.sessionRepo.Delete(ctx, claims.ID); err != nil {
		logger.WithContext(ctx).Warn("Failed to delete session", zap.Error(err))
	}
}
