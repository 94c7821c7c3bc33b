package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/leadflow/internal/domain"
	"github.com/prohmpiriya/leadflow/internal/dto"
	"github.com/prohmpiriya/leadflow/internal/event"
	"github.com/prohmpiriya/leadflow/internal/repository"
	"github.com/prohmpiriya/leadflow/pkg/config"
	"github.com/prohmpiriya/leadflow/pkg/logger"
	"github.com/prohmpiriya/leadflow/pkg/telemetry"
	"go.uber.org/zap"
)

const maxCASAttempts = 3

// LeadService defines the lead lifecycle operations
type LeadService interface {
	// List returns a filtered window of the tenant's leads
	List(ctx context.Context, tenantID string, query *dto.ListLeadsQuery) (*dto.LeadListResponse, error)
	// Get returns one lead, ErrLeadNotFound when absent from the tenant
	Get(ctx context.Context, tenantID, leadID string) (*domain.Lead, error)
	// Transition validates and records a status change
	Transition(ctx context.Context, tenantID, leadID string, to domain.LeadStatus, actor domain.Actor, reason string) (*dto.LeadResponse, error)
	// Followups lists leads idle past the threshold, least recently followed up first
	Followups(ctx context.Context, tenantID string, limit int) (*dto.LeadListResponse, error)
	// FollowupCandidates are flagged leads still under the follow-up cap
	FollowupCandidates(ctx context.Context, tenantID string) ([]*domain.Lead, error)
	// Bookings lists confirmed bookings first, then intent-only leads
	Bookings(ctx context.Context, tenantID string, limit int) (*dto.LeadListResponse, error)
	// SetAgentBlocked toggles automation for a lead
	SetAgentBlocked(ctx context.Context, tenantID, leadID string, blocked bool) (*dto.LeadResponse, error)
	// RecordFollowup appends an agent follow-up and bumps the follow-up counters
	RecordFollowup(ctx context.Context, tenantID, leadID, content string) (*dto.LeadResponse, error)
	// ConfirmBooking moves the lead named by a calendar booking to meeting_booked
	ConfirmBooking(ctx context.Context, req *dto.BookingConfirmationRequest) (*dto.BookingConfirmationResponse, error)
}

type leadService struct {
	leadRepo    repository.LeadRepository
	messageRepo repository.MessageRepository
	publisher   event.Publisher
	locks       *LeadLocks
	cfg         config.LeadsConfig
	now         func() time.Time
}

// NewLeadService creates a new LeadService
func NewLeadService(
	leadRepo repository.LeadRepository,
	messageRepo repository.MessageRepository,
	publisher event.Publisher,
	locks *LeadLocks,
	cfg config.LeadsConfig,
) LeadService {
	return &leadService{
		leadRepo:    leadRepo,
		messageRepo: messageRepo,
		publisher:   publisher,
		locks:       locks,
		cfg:         cfg,
		now:         time.Now,
	}
}

// List returns leads ordered by last interaction
func (s *leadService) List(ctx context.Context, tenantID string, query *dto.ListLeadsQuery) (*dto.LeadListResponse, error) {
	query.SetDefaults()
	filter, err := query.Filter()
	if err != nil {
		return nil, err
	}
	leads, total, err := s.leadRepo.List(ctx, tenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	return dto.NewLeadListResponse(leads, total, filter.Offset, filter.Limit), nil
}

// Get retrieves a lead within a tenant
func (s *leadService) Get(ctx context.Context, tenantID, leadID string) (*domain.Lead, error) {
	lead, err := s.leadRepo.GetByID(ctx, tenantID, leadID)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, domain.ErrLeadNotFound
	}
	return lead, nil
}

// mutate applies fn under the lead lock and writes with a version check,
// reloading when another writer got there first
func (s *leadService) mutate(ctx context.Context, tenantID, leadID string, fn func(l *domain.Lead) (*domain.StatusTransition, error)) (*domain.Lead, *domain.StatusTransition, error) {
	unlock := s.locks.Lock(leadID)
	defer unlock()

	for attempt := 1; ; attempt++ {
		lead, err := s.Get(ctx, tenantID, leadID)
		if err != nil {
			return nil, nil, err
		}
		tr, err := fn(lead)
		if err != nil {
			return nil, nil, err
		}
		if tr != nil {
			err = s.leadRepo.SaveTransition(ctx, lead, tr)
		} else {
			err = s.leadRepo.Update(ctx, lead)
		}
		if err == nil {
			return lead, tr, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) || attempt == maxCASAttempts {
			return nil, nil, err
		}
	}
}

// Transition moves a lead along the funnel
func (s *leadService) Transition(ctx context.Context, tenantID, leadID string, to domain.LeadStatus, actor domain.Actor, reason string) (*dto.LeadResponse, error) {
	if !to.IsValid() {
		return nil, domain.NewValidationError("status", fmt.Sprintf("unknown status %q", to))
	}
	if actor != domain.ActorAgent && actor != domain.ActorOperator {
		return nil, domain.NewValidationError("actor", fmt.Sprintf("unknown actor %q", actor))
	}

	lead, tr, err := s.mutate(ctx, tenantID, leadID, func(l *domain.Lead) (*domain.StatusTransition, error) {
		tr, err := l.Transition(to, actor, strings.TrimSpace(reason), s.now().UTC())
		if err != nil {
			return nil, err
		}
		tr.ID = uuid.New().String()
		return tr, nil
	})
	if err != nil {
		return nil, err
	}

	s.transitioned(ctx, lead, tr)

	resp := dto.NewLeadResponse(lead)
	return &resp, nil
}

// transitioned logs, counts and publishes a stored status change
func (s *leadService) transitioned(ctx context.Context, lead *domain.Lead, tr *domain.StatusTransition) {
	telemetry.GetMetrics().LeadTransitions.Inc(ctx, telemetry.TenantAttr(lead.TenantID), telemetry.StatusAttr(string(tr.To)))
	logger.WithContext(ctx).Info("Lead status changed",
		zap.String("tenant_id", lead.TenantID),
		zap.String("lead_id", lead.LeadID),
		zap.String("from", string(tr.From)),
		zap.String("to", string(tr.To)),
		zap.String("actor", string(tr.Actor)),
	)
	s.publish(ctx, &domain.LeadEvent{
		EventType:  domain.EventLeadStatusChanged,
		TenantID:   lead.TenantID,
		LeadID:     lead.LeadID,
		Username:   lead.ExternalUsername,
		FromStatus: tr.From,
		ToStatus:   tr.To,
		Timestamp:  tr.Timestamp,
	})
}

// ConfirmBooking applies a calendar booking. Already booked leads only get
// their meeting details refreshed.
func (s *leadService) ConfirmBooking(ctx context.Context, req *dto.BookingConfirmationRequest) (*dto.BookingConfirmationResponse, error) {
	if !domain.IsBookingConfirmation(req.TriggerEvent) {
		return &dto.BookingConfirmationResponse{Message: fmt.Sprintf("event %s ignored", req.TriggerEvent)}, nil
	}

	username := strings.TrimPrefix(strings.TrimSpace(req.ExternalUsername), "@")
	if username == "" {
		return nil, domain.NewValidationError("external_username", "is required")
	}
	found, err := s.leadRepo.GetByUsername(ctx, req.TenantID, username)
	if err != nil {
		return nil, fmt.Errorf("find lead: %w", err)
	}
	if found == nil {
		return nil, domain.ErrLeadNotFound
	}

	reason := "booking confirmed"
	if title := strings.TrimSpace(req.Title); title != "" {
		reason += ": " + title
	}

	lead, tr, err := s.mutate(ctx, req.TenantID, found.LeadID, func(l *domain.Lead) (*domain.StatusTransition, error) {
		now := s.now().UTC()
		l.ScheduleMeeting(req.Title, req.StartTime)
		if l.Status == domain.StatusMeetingBooked {
			l.UpdatedAt = now
			return nil, nil
		}
		tr, err := l.Transition(domain.StatusMeetingBooked, domain.ActorAgent, reason, now)
		if err != nil {
			return nil, err
		}
		tr.ID = uuid.New().String()
		return tr, nil
	})
	if err != nil {
		return nil, err
	}

	msg := "meeting details updated"
	if tr != nil {
		s.transitioned(ctx, lead, tr)
		msg = "booking recorded"
	}
	resp := dto.NewLeadResponse(lead)
	resp.BookingLabel = lead.BookingLabel()
	return &dto.BookingConfirmationResponse{Processed: true, Message: msg, Lead: &resp}, nil
}

// attachPreviews fills last_message from each lead's newest message
func (s *leadService) attachPreviews(ctx context.Context, tenantID string, resp *dto.LeadListResponse) {
	for i := range resp.Leads {
		latest, err := s.messageRepo.Latest(ctx, tenantID, resp.Leads[i].LeadID, 1)
		if err != nil {
			logger.WithContext(ctx).Warn("Failed to load last message",
				zap.String("tenant_id", tenantID),
				zap.String("lead_id", resp.Leads[i].LeadID),
				zap.Error(err),
			)
			continue
		}
		if len(latest) > 0 {
			resp.Leads[i].LastMessage = dto.Preview(latest[0].Content)
		}
	}
}

func (s *leadService) flagged(ctx context.Context, tenantID string) ([]*domain.Lead, error) {
	leads, err := s.leadRepo.ListAll(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	now := s.now()
	out := leads[:0]
	for _, l := range leads {
		if l.NeedsFollowup(now, s.cfg.FollowupThreshold) {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastFollowupAt, out[j].LastFollowupAt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return out[i].LeadID < out[j].LeadID
	})
	return out, nil
}

// Followups lists leads due for re-engagement
func (s *leadService) Followups(ctx context.Context, tenantID string, limit int) (*dto.LeadListResponse, error) {
	leads, err := s.flagged(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit, dto.DefaultLeadLimit, dto.MaxLeadLimit)
	total := len(leads)
	if len(leads) > limit {
		leads = leads[:limit]
	}
	resp := dto.NewLeadListResponse(leads, total, 0, limit)
	s.attachPreviews(ctx, tenantID, resp)
	return resp, nil
}

// FollowupCandidates filters flagged leads by the per-lead cap
func (s *leadService) FollowupCandidates(ctx context.Context, tenantID string) ([]*domain.Lead, error) {
	leads, err := s.flagged(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := leads[:0]
	for _, l := range leads {
		if s.cfg.MaxFollowupsPerLead <= 0 || l.FollowupCount < s.cfg.MaxFollowupsPerLead {
			out = append(out, l)
		}
	}
	return out, nil
}

// Bookings lists leads with booking intent
func (s *leadService) Bookings(ctx context.Context, tenantID string, limit int) (*dto.LeadListResponse, error) {
	leads, err := s.leadRepo.ListAll(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}

	var confirmed, intent []*domain.Lead
	for _, l := range leads {
		switch {
		case l.Status == domain.StatusMeetingBooked:
			confirmed = append(confirmed, l)
		case l.ShowsBookingIntent():
			intent = append(intent, l)
		}
	}
	repository.SortByRecentInteraction(confirmed)
	repository.SortByRecentInteraction(intent)
	ordered := append(confirmed, intent...)

	limit = clampLimit(limit, dto.DefaultLeadLimit, dto.MaxLeadLimit)
	total := len(ordered)
	if len(ordered) > limit {
		ordered = ordered[:limit]
	}
	resp := dto.NewLeadListResponse(ordered, total, 0, limit)
	for i, l := range ordered {
		resp.Leads[i].BookingLabel = l.BookingLabel()
	}
	s.attachPreviews(ctx, tenantID, resp)
	return resp, nil
}

// SetAgentBlocked flips the automation flag without touching status
func (s *leadService) SetAgentBlocked(ctx context.Context, tenantID, leadID string, blocked bool) (*dto.LeadResponse, error) {
	lead, _, err := s.mutate(ctx, tenantID, leadID, func(l *domain.Lead) (*domain.StatusTransition, error) {
		l.AgentBlocked = blocked
		l.UpdatedAt = s.now().UTC()
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	logger.WithContext(ctx).Info("Lead agent flag changed",
		zap.String("tenant_id", tenantID),
		zap.String("lead_id", leadID),
		zap.Bool("blocked", blocked),
	)
	resp := dto.NewLeadResponse(lead)
	return &resp, nil
}

// RecordFollowup stores the follow-up message then bumps the counters
func (s *leadService) RecordFollowup(ctx context.Context, tenantID, leadID, content string) (*dto.LeadResponse, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domain.NewValidationError("content", "is required")
	}

	unlock := s.locks.Lock(leadID)
	defer unlock()

	lead, err := s.Get(ctx, tenantID, leadID)
	if err != nil {
		return nil, err
	}
	if lead.AgentBlocked {
		return nil, domain.ErrAgentBlocked
	}

	now := s.now().UTC()
	msg := &domain.Message{
		MessageID:  uuid.New().String(),
		LeadID:     leadID,
		TenantID:   tenantID,
		Role:       domain.RoleAgent,
		Content:    content,
		Timestamp:  now,
		IsFollowup: true,
	}
	// counters move with the message in the same repository write
	lead, err = s.messageRepo.Append(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("append follow-up: %w", err)
	}
	telemetry.GetMetrics().MessagesAppended.Inc(ctx, telemetry.TenantAttr(tenantID))

	resp := dto.NewLeadResponse(lead)
	return &resp, nil
}

func (s *leadService) publish(ctx context.Context, evt *domain.LeadEvent) {
	if err := s.publisher.Publish(ctx, evt); err != nil {
		logger.WithContext(ctx).Warn("Failed to publish lead event",
			zap.String("event_type", evt.EventType),
			zap.Error(err),
		)
	}
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
