package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prohmpiriya/leadflow/internal/domain"
	"github.com/prohmpiriya/leadflow/internal/dto"
	"github.com/prohmpiriya/leadflow/internal/repository"
	"github.com/prohmpiriya/leadflow/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// TenantService defines the interface for tenant management operations
type TenantService interface {
	// Create registers a new client business
	Create(ctx context.Context, req *dto.CreateTenantRequest) (*dto.TenantResponse, error)
	// GetByID retrieves a tenant by ID
	GetByID(ctx context.Context, tenantID string) (*dto.TenantResponse, error)
	// List retrieves tenants with pagination and filters
	List(ctx context.Context, query *dto.ListTenantsQuery) (*dto.ListTenantsResponse, error)
	// Update merges the non-empty fields of req
	Update(ctx context.Context, tenantID string, req *dto.UpdateTenantRequest) (*dto.TenantResponse, error)
	// SetChannelConnection is the only path that connects or clears the channel
	SetChannelConnection(ctx context.Context, tenantID string, connected bool, account *domain.ChannelAccount) (*domain.Tenant, error)
	// Delete soft deletes a tenant
	Delete(ctx context.Context, tenantID string) error
	// Tenant returns the domain record for internal callers
	Tenant(ctx context.Context, tenantID string) (*domain.Tenant, error)
}

// fieldValidator checks patch values that binding tags cannot, since an
// empty pointer value means "leave unchanged"
var fieldValidator = validator.New()

// tenantService implements TenantService
type tenantService struct {
	tenantRepo repository.TenantRepository
	bcryptCost int
	now        func() time.Time
}

// NewTenantService creates a new TenantService
func NewTenantService(tenantRepo repository.TenantRepository) TenantService {
	return &tenantService{
		tenantRepo: tenantRepo,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
}

// Create creates a new tenant
func (s *tenantService) Create(ctx context.Context, req *dto.CreateTenantRequest) (*dto.TenantResponse, error) {
	req.Normalize()
	if !domain.ValidTenantID(req.TenantID) {
		return nil, domain.NewValidationError("tenant_id", "must match ^[a-z0-9_-]{2,64}$")
	}
	if req.BusinessName == "" {
		return nil, domain.NewValidationError("business_name", "is required")
	}
	status := domain.TenantActive
	if req.Status != "" {
		status = domain.TenantStatus(req.Status)
		if !status.IsValid() {
			return nil, domain.NewValidationError("status", "must be active or inactive")
		}
	}

	// Soft-deleted ids stay reserved
	exists, err := s.tenantRepo.ExistsByID(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrDuplicateTenant
	}

	var hash string
	if req.LoginPassword != "" {
		hash, err = s.hashPassword(req.LoginPassword)
		if err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	tenant := &domain.Tenant{
		TenantID:          req.TenantID,
		BusinessName:      req.BusinessName,
		Industry:          req.Industry,
		LoginEmail:        req.LoginEmail,
		LoginPasswordHash: hash,
		AgentPrompts: domain.AgentPrompts{
			DM:       req.AgentPrompts.DM,
			Story:    req.AgentPrompts.Story,
			Followup: req.AgentPrompts.Followup,
		},
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.tenantRepo.Create(ctx, tenant); err != nil {
		return nil, fmt.Errorf("create tenant %s: %w", tenant.TenantID, err)
	}

	logger.WithContext(ctx).Info("Tenant created", zap.String("tenant_id", tenant.TenantID))
	return dto.NewTenantResponse(tenant), nil
}

// GetByID retrieves a tenant by ID
func (s *tenantService) GetByID(ctx context.Context, tenantID string) (*dto.TenantResponse, error) {
	tenant, err := s.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return dto.NewTenantResponse(tenant), nil
}

// Tenant retrieves the domain tenant
func (s *tenantService) Tenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	tenant, err := s.tenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, domain.ErrTenantNotFound
	}
	return tenant, nil
}

// List retrieves tenants with pagination and filters
func (s *tenantService) List(ctx context.Context, query *dto.ListTenantsQuery) (*dto.ListTenantsResponse, error) {
	query.SetDefaults()

	tenants, totalCount, err := s.tenantRepo.List(ctx, repository.TenantListFilter{
		Page:   query.Page,
		Limit:  query.Limit,
		Status: domain.TenantStatus(query.Status),
		Search: query.Search,
	})
	if err != nil {
		return nil, err
	}

	tenantResponses := make([]dto.TenantResponse, 0, len(tenants))
	for _, tenant := range tenants {
		tenantResponses = append(tenantResponses, *dto.NewTenantResponse(tenant))
	}

	totalPages := int(math.Ceil(float64(totalCount) / float64(query.Limit)))

	return &dto.ListTenantsResponse{
		Tenants:    tenantResponses,
		TotalCount: totalCount,
		Page:       query.Page,
		Limit:      query.Limit,
		TotalPages: totalPages,
	}, nil
}

// Update updates a tenant
func (s *tenantService) Update(ctx context.Context, tenantID string, req *dto.UpdateTenantRequest) (*dto.TenantResponse, error) {
	tenant, err := s.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var hash string
	if req.LoginPassword != nil && *req.LoginPassword != "" {
		if n := len(*req.LoginPassword); n < 8 || n > 72 {
			return nil, domain.NewValidationError("login_password", "must be 8 to 72 characters")
		}
		hash, err = s.hashPassword(*req.LoginPassword)
		if err != nil {
			return nil, err
		}
	}

	patch := req.ToPatch(hash)
	if patch.Status != nil && !patch.Status.IsValid() {
		return nil, domain.NewValidationError("status", "must be active or inactive")
	}
	if patch.LoginEmail != nil && *patch.LoginEmail != "" {
		if err := fieldValidator.Var(*patch.LoginEmail, "email,max=255"); err != nil {
			return nil, domain.NewValidationError("login_email", "must be a valid email")
		}
	}
	if !patch.Apply(tenant) {
		return dto.NewTenantResponse(tenant), nil
	}
	tenant.UpdatedAt = s.now().UTC()

	if err := s.tenantRepo.Update(ctx, tenant); err != nil {
		return nil, fmt.Errorf("update tenant %s: %w", tenantID, err)
	}
	return dto.NewTenantResponse(tenant), nil
}

// SetChannelConnection records a completed handshake or clears a disconnected channel
func (s *tenantService) SetChannelConnection(ctx context.Context, tenantID string, connected bool, account *domain.ChannelAccount) (*domain.Tenant, error) {
	tenant, err := s.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if connected {
		if account == nil || account.ExternalAccountID == "" || account.AccessToken == "" {
			return nil, domain.NewValidationError("channel_connection", "account id and access token are required to connect")
		}
		tenant.Channel = domain.ChannelConnection{
			Connected:         true,
			ExternalAccountID: account.ExternalAccountID,
			Username:          account.Username,
			AccessToken:       account.AccessToken,
			ConnectedAt:       &now,
		}
	} else {
		tenant.Channel = domain.ChannelConnection{}
	}
	tenant.UpdatedAt = now

	if err := s.tenantRepo.Update(ctx, tenant); err != nil {
		return nil, fmt.Errorf("update channel for %s: %w", tenantID, err)
	}

	logger.WithContext(ctx).Info("Channel connection changed",
		zap.String("tenant_id", tenantID),
		zap.Bool("connected", connected),
	)
	return tenant, nil
}

// Delete soft deletes a tenant
func (s *tenantService) Delete(ctx context.Context, tenantID string) error {
	if _, err := s.Tenant(ctx, tenantID); err != nil {
		return err
	}
	return s.tenantRepo.SoftDelete(ctx, tenantID, s.now().UTC())
}

func (s *tenantService) hashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}
