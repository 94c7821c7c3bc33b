package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prohmpiriya/leadflow/internal/domain"
	"github.com/prohmpiriya/leadflow/internal/event"
	"github.com/prohmpiriya/leadflow/internal/repository"
	"github.com/prohmpiriya/leadflow/internal/service"
	"github.com/prohmpiriya/leadflow/pkg/logger"
	"github.com/prohmpiriya/leadflow/pkg/telemetry"
	"go.uber.org/zap"
)

// FollowupWorkerConfig holds configuration for the follow-up worker
type FollowupWorkerConfig struct {
	// ScanInterval is how often to scan for idle leads
	ScanInterval time.Duration
	// ScanTimeout bounds one full scan over every tenant
	ScanTimeout time.Duration
}

// DefaultFollowupWorkerConfig returns default configuration
func DefaultFollowupWorkerConfig() *FollowupWorkerConfig {
	return &FollowupWorkerConfig{
		ScanInterval: 15 * time.Minute,
		ScanTimeout:  2 * time.Minute,
	}
}

// FollowupWorkerStats holds statistics for the follow-up worker
type FollowupWorkerStats struct {
	IsRunning       bool      `json:"is_running"`
	TotalPublished  int64     `json:"total_published"`
	TotalScans      int64     `json:"total_scans"`
	LastScanTime    time.Time `json:"last_scan_time"`
	LastDueCount    int       `json:"last_due_count"`
	LastScanFailure string    `json:"last_scan_failure,omitempty"`
}

// FollowupWorker announces leads that are due for re-engagement. It never
// sends messages; the agent collaborator answers with RecordFollowup.
type FollowupWorker struct {
	tenantRepo  repository.TenantRepository
	leadService service.LeadService
	publisher   event.Publisher
	config      *FollowupWorkerConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	// announced remembers the lead state each event was sent for
	announced map[string]string

	totalPublished  int64
	totalScans      int64
	lastScanTime    time.Time
	lastDueCount    int
	lastScanFailure string

	now func() time.Time
}

// NewFollowupWorker creates a new follow-up worker
func NewFollowupWorker(
	tenantRepo repository.TenantRepository,
	leadService service.LeadService,
	publisher event.Publisher,
	config *FollowupWorkerConfig,
) *FollowupWorker {
	if config == nil {
		config = DefaultFollowupWorkerConfig()
	}
	if config.ScanInterval <= 0 {
		config.ScanInterval = DefaultFollowupWorkerConfig().ScanInterval
	}
	return &FollowupWorker{
		tenantRepo:  tenantRepo,
		leadService: leadService,
		publisher:   publisher,
		config:      config,
		announced:   make(map[string]string),
		now:         time.Now,
	}
}

// Start runs the scan loop until ctx is cancelled or Stop is called
func (w *FollowupWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	stopCh, doneCh := make(chan struct{}), make(chan struct{})
	w.stopCh, w.doneCh = stopCh, doneCh
	w.mu.Unlock()

	logger.Info("Follow-up worker started", zap.Duration("scan_interval", w.config.ScanInterval))

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(w.config.ScanInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				w.markStopped(stopCh)
				return
			case <-stopCh:
				return
			case <-ticker.C:
				w.scanWithTimeout(ctx)
			}
		}
	}()
}

// Stop signals the loop to exit and waits for the current scan
func (w *FollowupWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.running = false
	w.mu.Unlock()

	close(stopCh)
	<-doneCh
	logger.Info("Follow-up worker stopped")
}

// markStopped clears running unless a newer Start owns the worker
func (w *FollowupWorker) markStopped(stopCh chan struct{}) {
	w.mu.Lock()
	if w.stopCh == stopCh {
		w.running = false
	}
	w.mu.Unlock()
}

func (w *FollowupWorker) scanWithTimeout(ctx context.Context) {
	if w.config.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.ScanTimeout)
		defer cancel()
	}
	if _, err := w.Scan(ctx); err != nil {
		logger.Error("Follow-up scan failed", zap.Error(err))
	}
}

// Scan publishes one lead.followup_due event per candidate lead across every
// active tenant and returns how many were published
func (w *FollowupWorker) Scan(ctx context.Context) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "worker.followup.scan")
	defer span.End()

	ids, err := w.tenantRepo.ListActiveIDs(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		w.recordScan(0, err)
		return 0, fmt.Errorf("list active tenants: %w", err)
	}

	published := 0
	seen := make(map[string]bool)
	var firstErr error
	for _, tenantID := range ids {
		n, err := w.scanTenant(ctx, tenantID, seen)
		published += n
		if err != nil {
			logger.Warn("Follow-up scan of tenant failed",
				zap.String("tenant_id", tenantID),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	w.mu.Lock()
	for leadID := range w.announced {
		if !seen[leadID] {
			delete(w.announced, leadID)
		}
	}
	w.mu.Unlock()

	w.recordScan(published, firstErr)
	return published, firstErr
}

func (w *FollowupWorker) scanTenant(ctx context.Context, tenantID string, seen map[string]bool) (int, error) {
	tenant, err := w.tenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	if tenant == nil || !tenant.IsActive() {
		return 0, nil
	}

	leads, err := w.leadService.FollowupCandidates(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, lead := range leads {
		seen[lead.LeadID] = true
		fp := fingerprint(lead)

		w.mu.Lock()
		already := w.announced[lead.LeadID] == fp
		w.mu.Unlock()
		if already {
			continue
		}

		prompt := tenant.AgentPrompts.Followup
		if prompt == "" {
			prompt = tenant.PromptFor(lead.Source)
		}
		evt := &domain.LeadEvent{
			EventType:     domain.EventLeadFollowupDue,
			TenantID:      tenantID,
			LeadID:        lead.LeadID,
			Username:      lead.ExternalUsername,
			Source:        lead.Source,
			ToStatus:      lead.Status,
			FollowupCount: lead.FollowupCount,
			Prompt:        prompt,
			Timestamp:     w.now().UTC(),
		}
		if err := w.publisher.Publish(ctx, evt); err != nil {
			return published, fmt.Errorf("publish follow-up for %s: %w", lead.LeadID, err)
		}

		w.mu.Lock()
		w.announced[lead.LeadID] = fp
		w.mu.Unlock()
		published++
		telemetry.GetMetrics().FollowupsDue.Inc(ctx, telemetry.TenantAttr(tenantID))
	}
	return published, nil
}

// fingerprint changes whenever a follow-up or new message lands on the lead
func fingerprint(l *domain.Lead) string {
	return fmt.Sprintf("%d:%d", l.FollowupCount, l.LastInteractionAt.UnixNano())
}

func (w *FollowupWorker) recordScan(due int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.totalScans++
	w.totalPublished += int64(due)
	w.lastScanTime = w.now()
	w.lastDueCount = due
	w.lastScanFailure = ""
	if err != nil {
		w.lastScanFailure = err.Error()
	}
}

// GetStats returns worker statistics
func (w *FollowupWorker) GetStats() FollowupWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return FollowupWorkerStats{
		IsRunning:       w.running,
		TotalPublished:  w.totalPublished,
		TotalScans:      w.totalScans,
		LastScanTime:    w.lastScanTime,
		LastDueCount:    w.lastDueCount,
		LastScanFailure: w.lastScanFailure,
	}
}
