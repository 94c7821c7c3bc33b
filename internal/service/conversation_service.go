package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/leadflow/internal/domain"
	"github.com/prohmpiriya/leadflow/internal/dto"
	"github.com/prohmpiriya/leadflow/internal/event"
	"github.com/prohmpiriya/leadflow/internal/repository"
	"github.com/prohmpiriya/leadflow/pkg/logger"
	"github.com/prohmpiriya/leadflow/pkg/telemetry"
	"go.uber.org/zap"
)

// ConversationService defines the message log operations
type ConversationService interface {
	// Append is the only write path into a lead's log
	Append(ctx context.Context, tenantID, leadID string, msg *domain.Message) (*domain.Lead, error)
	// List returns the ordered log bounded by offset and limit
	List(ctx context.Context, tenantID, leadID string, query *dto.ConversationQuery) (*dto.ConversationResponse, error)
	// Ingest resolves or creates the lead by username and appends the message
	Ingest(ctx context.Context, req *dto.IngestMessageRequest) (*dto.IngestMessageResponse, error)
}

type conversationService struct {
	tenantRepo  repository.TenantRepository
	leadRepo    repository.LeadRepository
	messageRepo repository.MessageRepository
	publisher   event.Publisher
	locks       *LeadLocks
	now         func() time.Time
}

// NewConversationService creates a new ConversationService
func NewConversationService(
	tenantRepo repository.TenantRepository,
	leadRepo repository.LeadRepository,
	messageRepo repository.MessageRepository,
	publisher event.Publisher,
	locks *LeadLocks,
) ConversationService {
	return &conversationService{
		tenantRepo:  tenantRepo,
		leadRepo:    leadRepo,
		messageRepo: messageRepo,
		publisher:   publisher,
		locks:       locks,
		now:         time.Now,
	}
}

// Append validates msg and stores it under the lead lock
func (s *conversationService) Append(ctx context.Context, tenantID, leadID string, msg *domain.Message) (*domain.Lead, error) {
	if _, err := domain.ParseMessageRole(string(msg.Role)); err != nil {
		return nil, err
	}
	if strings.TrimSpace(msg.Content) == "" {
		return nil, domain.NewValidationError("content", "is required")
	}

	msg.TenantID = tenantID
	msg.LeadID = leadID
	if msg.MessageID == "" {
		msg.MessageID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	msg.Timestamp = msg.Timestamp.UTC()

	unlock := s.locks.Lock(leadID)
	lead, err := s.messageRepo.Append(ctx, msg)
	unlock()
	if err != nil {
		if errors.Is(err, domain.ErrLeadNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("append message: %w", err)
	}

	telemetry.GetMetrics().MessagesAppended.Inc(ctx, telemetry.TenantAttr(tenantID))
	return lead, nil
}

// List returns one page of the conversation
func (s *conversationService) List(ctx context.Context, tenantID, leadID string, query *dto.ConversationQuery) (*dto.ConversationResponse, error) {
	query.SetDefaults()

	lead, err := s.leadRepo.GetByID(ctx, tenantID, leadID)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, domain.ErrLeadNotFound
	}

	msgs, total, err := s.messageRepo.List(ctx, tenantID, leadID, query.Offset, query.Limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	return &dto.ConversationResponse{
		Lead:     dto.NewLeadResponse(lead),
		Messages: dto.NewMessageResponses(msgs),
		Total:    total,
		Offset:   query.Offset,
		Limit:    query.Limit,
	}, nil
}

// Ingest is the collaborator entry point for new messages
func (s *conversationService) Ingest(ctx context.Context, req *dto.IngestMessageRequest) (*dto.IngestMessageResponse, error) {
	tenantID := strings.TrimSpace(req.TenantID)
	username := strings.TrimPrefix(strings.TrimSpace(req.ExternalUsername), "@")
	if username == "" {
		return nil, domain.NewValidationError("external_username", "is required")
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, domain.NewValidationError("content", "is required")
	}
	role, err := domain.ParseMessageRole(req.Role)
	if err != nil {
		return nil, err
	}
	source, err := domain.ParseLeadSource(req.Source)
	if err != nil {
		return nil, err
	}

	tenant, err := s.tenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil || !tenant.IsActive() {
		return nil, domain.ErrTenantNotFound
	}

	ts := s.now().UTC()
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		ts = req.Timestamp.UTC()
	}

	lead, created, err := s.resolveLead(ctx, tenantID, username, strings.TrimSpace(req.DisplayName), source, role, ts)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		Role:          role,
		Content:       req.Content,
		Timestamp:     ts,
		IsFollowup:    req.IsFollowup,
		BookingIntent: req.BookingIntent,
	}
	lead, err = s.Append(ctx, tenantID, lead.LeadID, msg)
	if err != nil {
		return nil, err
	}

	return &dto.IngestMessageResponse{
		LeadID:      lead.LeadID,
		MessageID:   msg.MessageID,
		LeadCreated: created,
		Lead:        dto.NewLeadResponse(lead),
	}, nil
}

// resolveLead finds the lead for username, creating it on the first customer message
func (s *conversationService) resolveLead(ctx context.Context, tenantID, username, displayName string, source domain.LeadSource, role domain.MessageRole, ts time.Time) (*domain.Lead, bool, error) {
	unlock := s.locks.Lock(tenantID + "|" + strings.ToLower(username))
	defer unlock()

	lead, err := s.leadRepo.GetByUsername(ctx, tenantID, username)
	if err != nil {
		return nil, false, err
	}
	if lead != nil {
		return lead, false, nil
	}
	if role != domain.RoleCustomer {
		return nil, false, domain.ErrLeadNotFound
	}

	now := s.now().UTC()
	lead = &domain.Lead{
		LeadID:            uuid.New().String(),
		TenantID:          tenantID,
		ExternalUsername:  username,
		DisplayName:       displayName,
		Status:            domain.StatusNew,
		Source:            source,
		LastInteractionAt: ts,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.leadRepo.Create(ctx, lead); err != nil {
		if !errors.Is(err, repository.ErrLeadExists) {
			return nil, false, fmt.Errorf("create lead: %w", err)
		}
		// another instance created it first
		lead, err = s.leadRepo.GetByUsername(ctx, tenantID, username)
		if err != nil {
			return nil, false, err
		}
		if lead == nil {
			return nil, false, domain.ErrLeadNotFound
		}
		return lead, false, nil
	}

	telemetry.GetMetrics().LeadsCreated.Inc(ctx, telemetry.TenantAttr(tenantID))
	logger.WithContext(ctx).Info("Lead created",
		zap.String("tenant_id", tenantID),
		zap.String("lead_id", lead.LeadID),
		zap.String("source", string(source)),
	)
	if err := s.publisher.Publish(ctx, &domain.LeadEvent{
		EventType: domain.EventLeadCreated,
		TenantID:  tenantID,
		LeadID:    lead.LeadID,
		Username:  username,
		Source:    source,
		ToStatus:  domain.StatusNew,
		Timestamp: now,
	}); err != nil {
		logger.WithContext(ctx).Warn("Failed to publish lead event",
			zap.String("event_type", domain.EventLeadCreated),
			zap.Error(err),
		)
	}
	return lead, true, nil
}
