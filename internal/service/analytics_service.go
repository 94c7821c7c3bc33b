package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prohmpiriya/leadflow/internal/domain"
	"github.com/prohmpiriya/leadflow/internal/dto"
	"github.com/prohmpiriya/leadflow/internal/repository"
	"github.com/prohmpiriya/leadflow/pkg/logger"
	"github.com/prohmpiriya/leadflow/pkg/redis"
	"github.com/prohmpiriya/leadflow/pkg/telemetry"
	"go.uber.org/zap"
)

const (
	analyticsCachePrefix = "analytics:"
	day                  = 24 * time.Hour
)

// AnalyticsService defines the dashboard rollups
type AnalyticsService interface {
	// Aggregate computes the snapshot for the window ending at ref. It has no side effects.
	Aggregate(ctx context.Context, tenantID string, period domain.Period, ref time.Time) (*domain.AnalyticsSnapshot, error)
	// Dashboard aggregates at the current time through the short-lived cache
	Dashboard(ctx context.Context, tenantID string, period domain.Period) (*domain.AnalyticsSnapshot, error)
	// Activity lists recent conversations with their trailing messages
	Activity(ctx context.Context, tenantID string, query *dto.ActivityQuery) (*dto.ActivityResponse, error)
}

type analyticsService struct {
	leadRepo    repository.LeadRepository
	messageRepo repository.MessageRepository
	cache       redis.KVStore
	cacheTTL    time.Duration
	now         func() time.Time
}

// NewAnalyticsService creates a new AnalyticsService. A nil cache or zero ttl disables caching.
func NewAnalyticsService(
	leadRepo repository.LeadRepository,
	messageRepo repository.MessageRepository,
	cache redis.KVStore,
	cacheTTL time.Duration,
) AnalyticsService {
	return &analyticsService{
		leadRepo:    leadRepo,
		messageRepo: messageRepo,
		cache:       cache,
		cacheTTL:    cacheTTL,
		now:         time.Now,
	}
}

// Aggregate derives counts from the stored messages and transitions
func (s *analyticsService) Aggregate(ctx context.Context, tenantID string, period domain.Period, ref time.Time) (*domain.AnalyticsSnapshot, error) {
	start := time.Now()
	defer telemetry.GetMetrics().AggregateDuration.Since(ctx, start, telemetry.PeriodAttr(string(period)))

	ref = ref.UTC()
	cur, prev := period.Windows(ref)
	chartStart := dayStart(ref).Add(-time.Duration(period.ChartDays()-1) * day)

	from := prev.Start
	if chartFrom := chartStart.Add(-time.Nanosecond); chartFrom.Before(from) {
		from = chartFrom
	}
	msgs, err := s.messageRepo.ListBetween(ctx, tenantID, from, ref)
	if err != nil {
		return nil, fmt.Errorf("list window messages: %w", err)
	}

	var curMsgs, prevMsgs []*domain.Message
	leadIDs := make(map[string]struct{})
	for _, m := range msgs {
		switch {
		case cur.Contains(m.Timestamp):
			curMsgs = append(curMsgs, m)
			leadIDs[m.LeadID] = struct{}{}
		case prev.Contains(m.Timestamp):
			prevMsgs = append(prevMsgs, m)
			leadIDs[m.LeadID] = struct{}{}
		}
	}

	ids := make([]string, 0, len(leadIDs))
	for id := range leadIDs {
		ids = append(ids, id)
	}
	first, err := s.messageRepo.FirstMessageAt(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("first message times: %w", err)
	}

	curCounts := countWindow(curMsgs, cur, first)
	prevCounts := countWindow(prevMsgs, prev, first)

	if curCounts.Bookings, err = s.bookings(ctx, tenantID, cur); err != nil {
		return nil, err
	}
	if prevCounts.Bookings, err = s.bookings(ctx, tenantID, prev); err != nil {
		return nil, err
	}

	return &domain.AnalyticsSnapshot{
		TenantID:    tenantID,
		Period:      period,
		WindowStart: cur.Start,
		WindowEnd:   cur.End,
		Counts:      curCounts,
		Deltas: domain.Deltas{
			LeadsChange:    domain.PercentDelta(curCounts.LeadsContacted, prevCounts.LeadsContacted),
			UniqueChange:   domain.PercentDelta(curCounts.UniqueLeads, prevCounts.UniqueLeads),
			MessagesChange: domain.PercentDelta(curCounts.MessagesSent, prevCounts.MessagesSent),
			ResponseChange: domain.PointDelta(curCounts.ResponseRate, prevCounts.ResponseRate),
			BookingsChange: domain.PercentDelta(curCounts.Bookings, prevCounts.Bookings),
		},
		Previous:  prevCounts,
		ChartData: chart(msgs, chartStart, ref, period.ChartDays()),
	}, nil
}

func (s *analyticsService) bookings(ctx context.Context, tenantID string, w domain.Window) (int, error) {
	trs, err := s.leadRepo.ListTransitionsInto(ctx, tenantID, domain.StatusMeetingBooked, w.Start, w.End)
	if err != nil {
		return 0, fmt.Errorf("list booking transitions: %w", err)
	}
	return len(trs), nil
}

// countWindow expects msgs in conversation order
func countWindow(msgs []*domain.Message, w domain.Window, first map[string]time.Time) domain.Counts {
	var c domain.Counts
	type thread struct {
		inbound  bool
		answered bool
	}
	threads := make(map[string]*thread)

	for _, m := range msgs {
		t, ok := threads[m.LeadID]
		if !ok {
			t = &thread{}
			threads[m.LeadID] = t
		}
		switch m.Role {
		case domain.RoleCustomer:
			c.MessagesReceived++
			t.inbound = true
		case domain.RoleAgent:
			c.MessagesSent++
			if t.inbound {
				t.answered = true
			}
		}
	}

	var inbound, answered int
	for leadID, t := range threads {
		c.LeadsContacted++
		if at, ok := first[leadID]; ok && w.Contains(at) {
			c.UniqueLeads++
		}
		if t.inbound {
			inbound++
			if t.answered {
				answered++
			}
		}
	}
	c.ReturningLeads = c.LeadsContacted - c.UniqueLeads
	if inbound > 0 {
		c.ResponseRate = domain.RoundTo(float64(answered)/float64(inbound)*100, 1)
	}
	return c
}

// chart buckets messages by UTC day, oldest bucket first
func chart(msgs []*domain.Message, start, ref time.Time, days int) []domain.ChartBucket {
	layout := "Jan 02"
	if days > 7 {
		layout = "02"
	}
	buckets := make([]domain.ChartBucket, days)
	for i := range buckets {
		d := start.Add(time.Duration(i) * day)
		buckets[i] = domain.ChartBucket{Date: d.Format("2006-01-02"), Label: d.Format(layout)}
	}
	for _, m := range msgs {
		ts := m.Timestamp.UTC()
		if ts.Before(start) || ts.After(ref) {
			continue
		}
		i := int(ts.Sub(start) / day)
		if i < 0 || i >= days {
			continue
		}
		if m.Role == domain.RoleCustomer {
			buckets[i].Received++
		} else {
			buckets[i].Sent++
		}
	}
	return buckets
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Dashboard serves the current snapshot, cached per minute
func (s *analyticsService) Dashboard(ctx context.Context, tenantID string, period domain.Period) (*domain.AnalyticsSnapshot, error) {
	ref := s.now().UTC()
	if s.cache == nil || s.cacheTTL <= 0 {
		return s.Aggregate(ctx, tenantID, period, ref)
	}

	key := fmt.Sprintf("%s%s:%s:%d", analyticsCachePrefix, tenantID, period, ref.Truncate(time.Minute).Unix())
	if raw, err := s.cache.Get(ctx, key); err == nil {
		var snap domain.AnalyticsSnapshot
		if err := json.Unmarshal([]byte(raw), &snap); err == nil {
			return &snap, nil
		}
	} else if !errors.Is(err, redis.ErrCacheMiss) {
		logger.WithContext(ctx).Warn("Analytics cache read failed", zap.Error(err))
	}

	snap, err := s.Aggregate(ctx, tenantID, period, ref)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(snap); err == nil {
		if err := s.cache.Set(ctx, key, string(raw), s.cacheTTL); err != nil {
			logger.WithContext(ctx).Warn("Analytics cache write failed", zap.Error(err))
		}
	}
	return snap, nil
}

// Activity returns the most recently active leads
func (s *analyticsService) Activity(ctx context.Context, tenantID string, query *dto.ActivityQuery) (*dto.ActivityResponse, error) {
	query.SetDefaults()
	leads, total, err := s.leadRepo.List(ctx, tenantID, domain.LeadFilter{Limit: query.Limit})
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}

	items := make([]*domain.ActivityItem, 0, len(leads))
	for _, l := range leads {
		msgs, err := s.messageRepo.Latest(ctx, tenantID, l.LeadID, dto.ActivityMessages)
		if err != nil {
			return nil, fmt.Errorf("latest messages: %w", err)
		}
		items = append(items, &domain.ActivityItem{
			LeadID:           l.LeadID,
			ExternalUsername: l.ExternalUsername,
			DisplayName:      l.DisplayName,
			Status:           l.Status,
			LastInteraction:  l.LastInteractionAt,
			MessageCount:     l.MessageCount,
			Messages:         msgs,
		})
	}
	return &dto.ActivityResponse{Conversations: items, Total: total}, nil
}
