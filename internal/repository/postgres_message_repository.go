package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/leadflow/internal/domain"
	"github.com/prohmpiriya/leadflow/pkg/database"
)

// PostgresMessageRepository implements MessageRepository using PostgreSQL
type PostgresMessageRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresMessageRepository creates a new PostgresMessageRepository
func NewPostgresMessageRepository(pool *pgxpool.Pool) *PostgresMessageRepository {
	return &PostgresMessageRepository{pool: pool}
}

const messageColumns = `message_id, lead_id, tenant_id, role, content, ts, is_followup, booking_intent, seq`

func scanMessages(rows pgx.Rows) ([]*domain.Message, error) {
	defer rows.Close()
	var out []*domain.Message
	for rows.Next() {
		m := &domain.Message{}
		if err := rows.Scan(&m.MessageID, &m.LeadID, &m.TenantID, &m.Role, &m.Content,
			&m.Timestamp, &m.IsFollowup, &m.BookingIntent, &m.Seq); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Append bumps the lead counters and inserts the message in one transaction.
// The counter update runs first so the row lock serializes concurrent appends.
// Follow-up messages advance followup_count and last_followup_at in the same update.
func (r *PostgresMessageRepository) Append(ctx context.Context, msg *domain.Message) (*domain.Lead, error) {
	var lead *domain.Lead
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		lead, err = scanLead(tx.QueryRow(ctx, `
			UPDATE leads
			SET message_count = message_count + 1,
			    booking_intent = CASE
			        WHEN $3::timestamptz < last_interaction_at THEN booking_intent
			        ELSE $4::boolean
			    END,
			    followup_count = followup_count + CASE WHEN $5::boolean THEN 1 ELSE 0 END,
			    last_followup_at = CASE
			        WHEN $5::boolean THEN GREATEST(COALESCE(last_followup_at, $3), $3)
			        ELSE last_followup_at
			    END,
			    updated_at = GREATEST(updated_at, $3),
			    last_interaction_at = GREATEST(last_interaction_at, $3),
			    version = version + 1
			WHERE tenant_id = $1 AND lead_id = $2
			RETURNING `+leadColumns,
			msg.TenantID, msg.LeadID, msg.Timestamp, msg.BookingIntent, msg.IsFollowup))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrLeadNotFound
			}
			return err
		}

		return tx.QueryRow(ctx, `
			INSERT INTO messages (message_id, lead_id, tenant_id, role, content, ts, is_followup, booking_intent)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING seq
		`, msg.MessageID, msg.LeadID, msg.TenantID, msg.Role, msg.Content, msg.Timestamp,
			msg.IsFollowup, msg.BookingIntent).Scan(&msg.Seq)
	})
	if err != nil {
		return nil, err
	}
	return lead, nil
}

func (r *PostgresMessageRepository) leadExists(ctx context.Context, tenantID, leadID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM leads WHERE tenant_id = $1 AND lead_id = $2)`,
		tenantID, leadID).Scan(&exists)
	return exists, err
}

// List returns a page of the conversation in order
func (r *PostgresMessageRepository) List(ctx context.Context, tenantID, leadID string, offset, limit int) ([]*domain.Message, int, error) {
	exists, err := r.leadExists(ctx, tenantID, leadID)
	if err != nil {
		return nil, 0, err
	}
	if !exists {
		return nil, 0, domain.ErrLeadNotFound
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE tenant_id = $1 AND lead_id = $2`,
		tenantID, leadID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + messageColumns + ` FROM messages WHERE tenant_id = $1 AND lead_id = $2 ORDER BY ts, seq OFFSET $3`
	args := []interface{}{tenantID, leadID, offset}
	if limit > 0 {
		query += ` LIMIT $4`
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	msgs, err := scanMessages(rows)
	return msgs, total, err
}

// Latest returns the last n messages, oldest first
func (r *PostgresMessageRepository) Latest(ctx context.Context, tenantID, leadID string, n int) ([]*domain.Message, error) {
	exists, err := r.leadExists(ctx, tenantID, leadID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrLeadNotFound
	}

	rows, err := r.pool.Query(ctx, `
		SELECT * FROM (
			SELECT `+messageColumns+` FROM messages
			WHERE tenant_id = $1 AND lead_id = $2
			ORDER BY ts DESC, seq DESC
			LIMIT $3
		) recent ORDER BY ts, seq
	`, tenantID, leadID, n)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// ListBetween returns tenant messages with ts in (from, to]
func (r *PostgresMessageRepository) ListBetween(ctx context.Context, tenantID string, from, to time.Time) ([]*domain.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE tenant_id = $1 AND ts > $2 AND ts <= $3
		ORDER BY ts, seq
	`, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// FirstMessageAt returns the earliest message time per lead
func (r *PostgresMessageRepository) FirstMessageAt(ctx context.Context, tenantID string, leadIDs []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(leadIDs))
	if len(leadIDs) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT lead_id, MIN(ts) FROM messages
		WHERE tenant_id = $1 AND lead_id = ANY($2)
		GROUP BY lead_id
	`, tenantID, leadIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var first time.Time
		if err := rows.Scan(&id, &first); err != nil {
			return nil, err
		}
		out[id] = first
	}
	return out, rows.Err()
}
