package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prohmpiriya/leadflow/internal/domain"
	"github.com/prohmpiriya/leadflow/internal/event"
	"github.com/prohmpiriya/leadflow/internal/repository"
	"github.com/prohmpiriya/leadflow/internal/service"
	"github.com/prohmpiriya/leadflow/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFollowupWorkerConfig(t *testing.T) {
	cfg := DefaultFollowupWorkerConfig()

	if cfg.ScanInterval != 15*time.Minute {
		t.Errorf("ScanInterval = %v, want %v", cfg.ScanInterval, 15*time.Minute)
	}
}

func TestNewFollowupWorker_WithDefaultConfig(t *testing.T) {
	w := NewFollowupWorker(nil, nil, nil, nil)

	if w.config.ScanInterval != 15*time.Minute {
		t.Errorf("Default ScanInterval = %v, want %v", w.config.ScanInterval, 15*time.Minute)
	}
	if w.GetStats().IsRunning {
		t.Error("Worker should not be running initially")
	}

	w = NewFollowupWorker(nil, nil, nil, &FollowupWorkerConfig{})
	if w.config.ScanInterval != 15*time.Minute {
		t.Errorf("zero ScanInterval = %v, want default", w.config.ScanInterval)
	}
}

type scanFixture struct {
	tenants   *repository.MemoryTenantRepository
	leads     *repository.MemoryLeadRepository
	publisher *event.MemoryPublisher
	worker    *FollowupWorker
	lead      service.LeadService
}

func newScanFixture(t *testing.T) *scanFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	f := &scanFixture{
		tenants:   repository.NewMemoryTenantRepository(store),
		leads:     repository.NewMemoryLeadRepository(store),
		publisher: event.NewMemoryPublisher(),
	}
	f.lead = service.NewLeadService(f.leads, repository.NewMemoryMessageRepository(store), f.publisher, service.NewLeadLocks(), config.LeadsConfig{
		FollowupThreshold:   24 * time.Hour,
		MaxFollowupsPerLead: 2,
	})
	f.worker = NewFollowupWorker(f.tenants, f.lead, f.publisher, nil)
	return f
}

func (f *scanFixture) tenant(t *testing.T, id string, status domain.TenantStatus, prompts domain.AgentPrompts) {
	t.Helper()
	require.NoError(t, f.tenants.Create(context.Background(), &domain.Tenant{
		TenantID: id, BusinessName: id, Status: status, AgentPrompts: prompts,
	}))
}

func (f *scanFixture) staleLead(t *testing.T, tenantID, leadID string, source domain.LeadSource, followups int) {
	t.Helper()
	last := time.Now().Add(-48 * time.Hour)
	require.NoError(t, f.leads.Create(context.Background(), &domain.Lead{
		LeadID: leadID, TenantID: tenantID, ExternalUsername: leadID, Status: domain.StatusEngaged,
		Source: source, FollowupCount: followups, LastInteractionAt: last, CreatedAt: last,
	}))
}

func TestFollowupWorker_Scan(t *testing.T) {
	ctx := context.Background()
	f := newScanFixture(t)
	f.tenant(t, "acme", domain.TenantActive, domain.AgentPrompts{DM: "dm prompt", Story: "story prompt"})
	f.tenant(t, "globex", domain.TenantActive, domain.AgentPrompts{DM: "dm", Followup: "nudge gently"})
	f.tenant(t, "sleepy", domain.TenantInactive, domain.AgentPrompts{})

	f.staleLead(t, "acme", "a-story", domain.SourceStory, 0)
	f.staleLead(t, "acme", "a-capped", domain.SourceDM, 2)
	f.staleLead(t, "globex", "g-dm", domain.SourceDM, 1)
	f.staleLead(t, "sleepy", "s-dm", domain.SourceDM, 0)

	n, err := f.worker.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	events := f.publisher.Events(domain.EventLeadFollowupDue)
	require.Len(t, events, 2)
	prompts := map[string]string{}
	for _, e := range events {
		prompts[e.LeadID] = e.Prompt
	}
	assert.Equal(t, map[string]string{"a-story": "story prompt", "g-dm": "nudge gently"}, prompts)

	stats := f.worker.GetStats()
	assert.Equal(t, int64(1), stats.TotalScans)
	assert.Equal(t, int64(2), stats.TotalPublished)
	assert.Equal(t, 2, stats.LastDueCount)
}

func TestFollowupWorker_ScanDoesNotRepeatUntilLeadChanges(t *testing.T) {
	ctx := context.Background()
	f := newScanFixture(t)
	f.tenant(t, "acme", domain.TenantActive, domain.AgentPrompts{DM: "dm"})
	f.staleLead(t, "acme", "l1", domain.SourceDM, 0)

	n, err := f.worker.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.worker.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "same lead state is announced once")

	lead, err := f.leads.GetByID(ctx, "acme", "l1")
	require.NoError(t, err)
	lead.FollowupCount = 1
	require.NoError(t, f.leads.Update(ctx, lead))

	n, err = f.worker.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFollowupWorker_StartStop(t *testing.T) {
	f := newScanFixture(t)
	f.tenant(t, "acme", domain.TenantActive, domain.AgentPrompts{DM: "dm"})
	f.staleLead(t, "acme", "l1", domain.SourceDM, 0)

	w := NewFollowupWorker(f.tenants, f.lead, f.publisher, &FollowupWorkerConfig{ScanInterval: 10 * time.Millisecond})
	w.Start(context.Background())
	assert.True(t, w.GetStats().IsRunning)

	require.Eventually(t, func() bool {
		return len(f.publisher.Events(domain.EventLeadFollowupDue)) == 1
	}, time.Second, 5*time.Millisecond)

	w.Stop()
	assert.False(t, w.GetStats().IsRunning)
}

func TestFollowupWorker_ConcurrentStop(t *testing.T) {
	f := newScanFixture(t)
	w := NewFollowupWorker(f.tenants, f.lead, f.publisher, &FollowupWorkerConfig{ScanInterval: time.Hour})
	w.Start(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Stop()
		}()
	}
	wg.Wait()
	assert.False(t, w.GetStats().IsRunning)

	// restartable after stop
	w.Start(context.Background())
	assert.True(t, w.GetStats().IsRunning)
	w.Stop()
	w.Stop()
	assert.False(t, w.GetStats().IsRunning)
}
