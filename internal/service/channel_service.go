package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/leadflow/internal/client"
	"github.com/prohmpiriya/leadflow/internal/domain"
	"github.com/prohmpiriya/leadflow/internal/dto"
	"github.com/prohmpiriya/leadflow/internal/event"
	"github.com/prohmpiriya/leadflow/internal/repository"
	"github.com/prohmpiriya/leadflow/pkg/logger"
	"go.uber.org/zap"
)

const defaultStateTTL = 10 * time.Minute

// ChannelService drives the messaging channel handshake
type ChannelService interface {
	// Connect starts a handshake for tenantID and returns the consent URL
	Connect(ctx context.Context, tenantID, redirectAfter string) (*dto.ConnectResponse, error)
	// Callback completes a handshake. The state is single use.
	Callback(ctx context.Context, query *dto.CallbackQuery) (*dto.ChannelStatusResponse, error)
	// Disconnect revokes the provider token then clears the connection
	Disconnect(ctx context.Context, tenantID string) (*dto.ChannelStatusResponse, error)
	// Status reports the current connection
	Status(ctx context.Context, tenantID string) (*dto.ChannelStatusResponse, error)
}

type channelService struct {
	tenants   TenantService
	states    repository.OAuthStateRepository
	provider  client.ChannelClient
	publisher event.Publisher
	stateTTL  time.Duration
	now       func() time.Time
}

// NewChannelService creates a new ChannelService
func NewChannelService(
	tenants TenantService,
	states repository.OAuthStateRepository,
	provider client.ChannelClient,
	publisher event.Publisher,
	stateTTL time.Duration,
) ChannelService {
	if stateTTL <= 0 {
		stateTTL = defaultStateTTL
	}
	return &channelService{
		tenants:   tenants,
		states:    states,
		provider:  provider,
		publisher: publisher,
		stateTTL:  stateTTL,
		now:       time.Now,
	}
}

func (s *channelService) Connect(ctx context.Context, tenantID, redirectAfter string) (*dto.ConnectResponse, error) {
	if _, err := s.tenants.Tenant(ctx, tenantID); err != nil {
		return nil, err
	}

	state := strings.ReplaceAll(uuid.NewString(), "-", "")
	authorizeURL, err := s.provider.AuthorizeURL(state)
	if err != nil {
		return nil, err
	}

	if err := s.states.Save(ctx, state, &repository.OAuthState{
		TenantID:      tenantID,
		RedirectAfter: redirectAfter,
		CreatedAt:     s.now().UTC(),
	}, s.stateTTL); err != nil {
		return nil, fmt.Errorf("save oauth state: %w", err)
	}

	logger.WithContext(ctx).Info("Channel handshake started", zap.String("tenant_id", tenantID))
	return &dto.ConnectResponse{AuthorizeURL: authorizeURL, State: state}, nil
}

func (s *channelService) Callback(ctx context.Context, query *dto.CallbackQuery) (*dto.ChannelStatusResponse, error) {
	st, err := s.states.Consume(ctx, query.State)
	if err != nil {
		return nil, fmt.Errorf("consume oauth state: %w", err)
	}
	if st == nil {
		return nil, domain.NewValidationError("state", "is invalid or expired")
	}

	if query.Error != "" {
		logger.WithContext(ctx).Warn("Channel handshake denied",
			zap.String("tenant_id", st.TenantID),
			zap.String("error", query.Error),
			zap.String("description", query.ErrorDescription),
		)
		return nil, domain.NewValidationError("code", "authorization was denied")
	}
	if query.Code == "" {
		return nil, domain.NewValidationError("code", "is required")
	}

	account, err := s.provider.ExchangeCode(ctx, query.Code)
	if err != nil {
		return nil, err
	}

	tenant, err := s.tenants.SetChannelConnection(ctx, st.TenantID, true, account)
	if err != nil {
		return nil, err
	}

	if err := s.publisher.Publish(ctx, &domain.LeadEvent{
		EventType: domain.EventChannelConnected,
		TenantID:  tenant.TenantID,
		Username:  account.Username,
		Timestamp: s.now().UTC(),
	}); err != nil {
		logger.WithContext(ctx).Warn("Failed to publish channel event", zap.Error(err))
	}

	return &dto.ChannelStatusResponse{
		TenantID:      tenant.TenantID,
		Channel:       dto.NewChannelResponse(&tenant.Channel),
		RedirectAfter: st.RedirectAfter,
	}, nil
}

func (s *channelService) Disconnect(ctx context.Context, tenantID string) (*dto.ChannelStatusResponse, error) {
	tenant, err := s.tenants.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if tenant.Channel.AccessToken != "" {
		// a failed revoke leaves the stored connection as it was
		if err := s.provider.Revoke(ctx, tenant.Channel.AccessToken); err != nil {
			logger.WithContext(ctx).Warn("Channel revoke failed",
				zap.String("tenant_id", tenantID),
				zap.Error(err),
			)
			return nil, err
		}
	}

	tenant, err = s.tenants.SetChannelConnection(ctx, tenantID, false, nil)
	if err != nil {
		return nil, err
	}
	return &dto.ChannelStatusResponse{
		TenantID: tenant.TenantID,
		Channel:  dto.NewChannelResponse(&tenant.Channel),
	}, nil
}

func (s *channelService) Status(ctx context.Context, tenantID string) (*dto.ChannelStatusResponse, error) {
	tenant, err := s.tenants.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &dto.ChannelStatusResponse{
		TenantID: tenant.TenantID,
		Channel:  dto.NewChannelResponse(&tenant.Channel),
	}, nil
}
