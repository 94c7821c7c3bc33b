package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prohmpiriya/leadflow/internal/domain"
	"github.com/prohmpiriya/leadflow/internal/event"
	"github.com/prohmpiriya/leadflow/internal/repository"
	"github.com/prohmpiriya/leadflow/pkg/config"
	"github.com/prohmpiriya/leadflow/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store     *repository.MemoryStore
	tenants   *repository.MemoryTenantRepository
	leads     *repository.MemoryLeadRepository
	messages  *repository.MemoryMessageRepository
	mr        *miniredis.Miniredis
	kv        *redis.Client
	publisher *event.MemoryPublisher
	locks     *LeadLocks
	clock     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	mr := miniredis.RunT(t)
	f := &fixture{
		store:     store,
		tenants:   repository.NewMemoryTenantRepository(store),
		leads:     repository.NewMemoryLeadRepository(store),
		messages:  repository.NewMemoryMessageRepository(store),
		mr:        mr,
		kv:        redis.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()})),
		publisher: event.NewMemoryPublisher(),
		locks:     NewLeadLocks(),
		clock:     t0,
	}
	t.Cleanup(func() { _ = f.kv.Close() })
	return f
}

func (f *fixture) now() time.Time { return f.clock }

// advance moves the service clock and ages redis TTLs by the same amount
func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
	if d > 0 {
		f.mr.FastForward(d)
	}
}

func (f *fixture) seedTenant(t *testing.T, id string) *domain.Tenant {
	t.Helper()
	tenant := &domain.Tenant{
		TenantID:     id,
		BusinessName: "Biz " + id,
		LoginEmail:   id + "@example.com",
		Status:       domain.TenantActive,
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}
	require.NoError(t, f.tenants.Create(context.Background(), tenant))
	return tenant
}

func (f *fixture) seedLead(t *testing.T, tenantID, leadID string, status domain.LeadStatus, last time.Time) *domain.Lead {
	t.Helper()
	lead := &domain.Lead{
		LeadID:            leadID,
		TenantID:          tenantID,
		ExternalUsername:  "user_" + leadID,
		Status:            status,
		Source:            domain.SourceDM,
		LastInteractionAt: last,
		CreatedAt:         last,
		UpdatedAt:         last,
	}
	require.NoError(t, f.leads.Create(context.Background(), lead))
	return lead
}

func (f *fixture) addMessage(t *testing.T, tenantID, leadID string, role domain.MessageRole, at time.Time) {
	t.Helper()
	_, err := f.messages.Append(context.Background(), &domain.Message{
		MessageID: leadID + at.Format(time.RFC3339Nano) + string(role),
		LeadID:    leadID,
		TenantID:  tenantID,
		Role:      role,
		Content:   "hello",
		Timestamp: at,
	})
	require.NoError(t, err)
}

func (f *fixture) leadService() *leadService {
	svc := NewLeadService(f.leads, f.messages, f.publisher, f.locks, config.LeadsConfig{
		FollowupThreshold:   24 * time.Hour,
		MaxFollowupsPerLead: 2,
	}).(*leadService)
	svc.now = f.now
	return svc
}

func (f *fixture) conversationService() *conversationService {
	svc := NewConversationService(f.tenants, f.leads, f.messages, f.publisher, f.locks).(*conversationService)
	svc.now = f.now
	return svc
}

func (f *fixture) analyticsService(ttl time.Duration) *analyticsService {
	svc := NewAnalyticsService(f.leads, f.messages, f.kv, ttl).(*analyticsService)
	svc.now = f.now
	return svc
}
