package repository

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/leadflow/pkg/middleware"
)

// PostgresAuditRepository persists audit batches into audit_logs
type PostgresAuditRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresAuditRepository creates a new PostgresAuditRepository
func NewPostgresAuditRepository(pool *pgxpool.Pool) *PostgresAuditRepository {
	return &PostgresAuditRepository{pool: pool}
}

// WriteAudit inserts a batch in one round trip
func (r *PostgresAuditRepository) WriteAudit(ctx context.Context, entries []*middleware.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		var metadata []byte
		if len(e.Metadata) > 0 {
			metadata, _ = json.Marshal(e.Metadata)
		}
		batch.Queue(`
			INSERT INTO audit_logs (id, tenant_id, actor_email, actor_role, action, resource_type,
			                        resource_id, status, ip_address, user_agent, request_id, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, e.ID, nullStringOrValue(e.TenantID), nullStringOrValue(e.ActorEmail), nullStringOrValue(e.ActorRole),
			string(e.Action), e.ResourceType, nullStringOrValue(e.ResourceID), e.Status,
			nullStringOrValue(e.IPAddress), nullStringOrValue(e.UserAgent), nullStringOrValue(e.RequestID),
			metadata, e.CreatedAt)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}

// MemoryAuditRepository keeps entries in memory, used by the memory driver and tests
type MemoryAuditRepository struct {
	mu      sync.Mutex
	entries []*middleware.AuditEntry
}

// NewMemoryAuditRepository creates an empty in-memory audit sink
func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{}
}

func (r *MemoryAuditRepository) WriteAudit(ctx context.Context, entries []*middleware.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entries...)
	return nil
}

// Entries returns a snapshot of what has been written
func (r *MemoryAuditRepository) Entries() []*middleware.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*middleware.AuditEntry, len(r.entries))
	copy(out, r.entries)
	return out
}
