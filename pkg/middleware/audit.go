package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prohmpiriya/leadflow/pkg/logger"
	"go.uber.org/zap"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionCreate     AuditAction = "create"
	AuditActionUpdate     AuditAction = "update"
	AuditActionDelete     AuditAction = "delete"
	AuditActionLogin      AuditAction = "login"
	AuditActionLogout     AuditAction = "logout"
	AuditActionTransition AuditAction = "transition"
	AuditActionBlock      AuditAction = "block"
	AuditActionConnect    AuditAction = "connect"
	AuditActionDisconnect AuditAction = "disconnect"
)

const (
	contextKeyAuditResourceID = "audit_resource_id"
	contextKeyAuditMetadata   = "audit_metadata"
	contextKeyAuditSkip       = "audit_skip"
)

// AuditEntry is one recorded mutation
type AuditEntry struct {
	ID           string
	TenantID     string
	ActorEmail   string
	ActorRole    string
	Action       AuditAction
	ResourceType string
	ResourceID   string
	Status       int
	IPAddress    string
	UserAgent    string
	RequestID    string
	Metadata     map[string]interface{}
	CreatedAt    time.Time
}

// AuditSink persists batches of entries
type AuditSink interface {
	WriteAudit(ctx context.Context, entries []*AuditEntry) error
}

// AuditConfig holds configuration for the audit logger
type AuditConfig struct {
	BufferSize    int
	FlushInterval time.Duration
	BatchSize     int
	// SkipMethods are not audited, reads by default
	SkipMethods []string
}

// DefaultAuditConfig returns default configuration
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
		BatchSize:     100,
		SkipMethods:   []string{http.MethodGet, http.MethodHead, http.MethodOptions},
	}
}

// AuditLogger buffers entries and flushes them to a sink in the background
type AuditLogger struct {
	cfg       AuditConfig
	sink      AuditSink
	buffer    chan *AuditEntry
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewAuditLogger starts the background flusher
func NewAuditLogger(sink AuditSink, cfg AuditConfig) *AuditLogger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	al := &AuditLogger{
		cfg:    cfg,
		sink:   sink,
		buffer: make(chan *AuditEntry, cfg.BufferSize),
	}
	al.wg.Add(1)
	go al.worker()
	return al
}

// Log enqueues an entry; when the buffer is full the entry is dropped
func (al *AuditLogger) Log(entry *AuditEntry) {
	select {
	case al.buffer <- entry:
	default:
		logger.Warn("audit buffer full, dropping entry",
			zap.String("action", string(entry.Action)),
			zap.String("resource_id", entry.ResourceID),
		)
	}
}

// Close drains the buffer and stops the worker
func (al *AuditLogger) Close() error {
	al.closeOnce.Do(func() {
		close(al.buffer)
		al.wg.Wait()
	})
	return nil
}

func (al *AuditLogger) worker() {
	defer al.wg.Done()

	ticker := time.NewTicker(al.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]*AuditEntry, 0, al.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		al.flush(batch)
		batch = make([]*AuditEntry, 0, al.cfg.BatchSize)
	}

	for {
		select {
		case entry, ok := <-al.buffer:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= al.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (al *AuditLogger) flush(entries []*AuditEntry) {
	if al.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := al.sink.WriteAudit(ctx, entries); err != nil {
		logger.Error("failed to write audit entries", zap.Int("count", len(entries)), zap.Error(err))
	}
}

// AuditMiddleware records mutating requests once the handler has run.
// resourceType names what the route group operates on.
func AuditMiddleware(al *AuditLogger, resourceType string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(al.cfg.SkipMethods))
	for _, m := range al.cfg.SkipMethods {
		skip[m] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.Method]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		if v, exists := c.Get(contextKeyAuditSkip); exists && v.(bool) {
			return
		}

		entry := &AuditEntry{
			ID:           uuid.New().String(),
			Action:       actionFor(c.Request.Method, c.FullPath()),
			ResourceType: resourceType,
			Status:       c.Writer.Status(),
			IPAddress:    c.ClientIP(),
			UserAgent:    c.GetHeader("User-Agent"),
			RequestID:    c.GetHeader("X-Request-ID"),
			CreatedAt:    start,
		}
		if email, ok := GetEmail(c); ok {
			entry.ActorEmail = email
		}
		if role, ok := GetRole(c); ok {
			entry.ActorRole = role
		}
		if tid := c.Param("tenant_id"); tid != "" {
			entry.TenantID = tid
		} else if tid, ok := GetTenantID(c); ok {
			entry.TenantID = tid
		}
		entry.ResourceID = entry.TenantID
		if lid := c.Param("lead_id"); lid != "" {
			entry.ResourceID = lid
		}
		if rid, exists := c.Get(contextKeyAuditResourceID); exists {
			if s, ok := rid.(string); ok && s != "" {
				entry.ResourceID = s
			}
		}
		if meta, exists := c.Get(contextKeyAuditMetadata); exists {
			entry.Metadata, _ = meta.(map[string]interface{})
		}

		al.Log(entry)
	}
}

func actionFor(method, route string) AuditAction {
	route = strings.ToLower(route)
	switch {
	case strings.HasSuffix(route, "/login"):
		return AuditActionLogin
	case strings.HasSuffix(route, "/logout"):
		return AuditActionLogout
	case strings.HasSuffix(route, "/status"):
		return AuditActionTransition
	case strings.HasSuffix(route, "/block"):
		return AuditActionBlock
	case strings.Contains(route, "/disconnect"):
		return AuditActionDisconnect
	case strings.Contains(route, "/connect"):
		return AuditActionConnect
	}

	switch method {
	case http.MethodPut, http.MethodPatch:
		return AuditActionUpdate
	case http.MethodDelete:
		return AuditActionDelete
	default:
		return AuditActionCreate
	}
}

// SetAuditResourceID overrides the resource id, for creates where it is only known after the handler ran
func SetAuditResourceID(c *gin.Context, resourceID string) {
	c.Set(contextKeyAuditResourceID, resourceID)
}

// SetAuditMetadata attaches extra fields to the entry
func SetAuditMetadata(c *gin.Context, metadata map[string]interface{}) {
	c.Set(contextKeyAuditMetadata, metadata)
}

// SkipAudit marks the current request to skip audit logging
func SkipAudit(c *gin.Context) {
	c.Set(contextKeyAuditSkip, true)
}
