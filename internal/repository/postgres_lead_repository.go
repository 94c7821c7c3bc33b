package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/leadflow/internal/domain"
	"github.com/prohmpiriya/leadflow/pkg/database"
)

// PostgresLeadRepository implements LeadRepository using PostgreSQL
type PostgresLeadRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresLeadRepository creates a new PostgresLeadRepository
func NewPostgresLeadRepository(pool *pgxpool.Pool) *PostgresLeadRepository {
	return &PostgresLeadRepository{pool: pool}
}

const leadColumns = `
	lead_id, tenant_id, external_username, COALESCE(display_name, ''), status, source,
	followup_count, last_followup_at, last_interaction_at, message_count, agent_blocked,
	booking_intent, status_changed_at, meeting_booked_at, COALESCE(meeting_title, ''),
	meeting_starts_at, version, created_at, updated_at`

func scanLead(row pgx.Row) (*domain.Lead, error) {
	l := &domain.Lead{}
	err := row.Scan(
		&l.LeadID,
		&l.TenantID,
		&l.ExternalUsername,
		&l.DisplayName,
		&l.Status,
		&l.Source,
		&l.FollowupCount,
		&l.LastFollowupAt,
		&l.LastInteractionAt,
		&l.MessageCount,
		&l.AgentBlocked,
		&l.BookingIntent,
		&l.StatusChangedAt,
		&l.MeetingBookedAt,
		&l.MeetingTitle,
		&l.MeetingStartsAt,
		&l.Version,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func collectLeads(rows pgx.Rows) ([]*domain.Lead, error) {
	defer rows.Close()
	var leads []*domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// Create inserts a new lead at version 1
func (r *PostgresLeadRepository) Create(ctx context.Context, lead *domain.Lead) error {
	query := `
		INSERT INTO leads (lead_id, tenant_id, external_username, display_name, status, source,
		                   followup_count, last_followup_at, last_interaction_at, message_count,
		                   agent_blocked, booking_intent, status_changed_at, meeting_booked_at,
		                   meeting_title, meeting_starts_at, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 1, $17, $18)
	`
	_, err := r.pool.Exec(ctx, query,
		lead.LeadID,
		lead.TenantID,
		lead.ExternalUsername,
		nullStringOrValue(lead.DisplayName),
		lead.Status,
		lead.Source,
		lead.FollowupCount,
		lead.LastFollowupAt,
		lead.LastInteractionAt,
		lead.MessageCount,
		lead.AgentBlocked,
		lead.BookingIntent,
		lead.StatusChangedAt,
		lead.MeetingBookedAt,
		nullStringOrValue(lead.MeetingTitle),
		lead.MeetingStartsAt,
		lead.CreatedAt,
		lead.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrLeadExists
		}
		return err
	}
	lead.Version = 1
	return nil
}

// GetByID retrieves a lead within a tenant
func (r *PostgresLeadRepository) GetByID(ctx context.Context, tenantID, leadID string) (*domain.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE tenant_id = $1 AND lead_id = $2`
	l, err := scanLead(r.pool.QueryRow(ctx, query, tenantID, leadID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return l, nil
}

// GetByUsername retrieves a lead by its external identity
func (r *PostgresLeadRepository) GetByUsername(ctx context.Context, tenantID, username string) (*domain.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE tenant_id = $1 AND lower(external_username) = lower($2)`
	l, err := scanLead(r.pool.QueryRow(ctx, query, tenantID, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return l, nil
}

// List retrieves a filtered page of leads
func (r *PostgresLeadRepository) List(ctx context.Context, tenantID string, filter domain.LeadFilter) ([]*domain.Lead, int, error) {
	where := "WHERE tenant_id = $1"
	args := []interface{}{tenantID}
	argIndex := 2

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		where += fmt.Sprintf(" AND status = ANY($%d)", argIndex)
		args = append(args, statuses)
		argIndex++
	}
	if filter.Search != "" {
		where += fmt.Sprintf(" AND (display_name ILIKE $%d OR external_username ILIKE $%d)", argIndex, argIndex)
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		argIndex++
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM leads "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM leads %s ORDER BY last_interaction_at DESC, lead_id`, leadColumns, where)
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
		argIndex++
	}
	query += fmt.Sprintf(" OFFSET $%d", argIndex)
	args = append(args, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	leads, err := collectLeads(rows)
	return leads, total, err
}

// ListAll returns every lead of a tenant
func (r *PostgresLeadRepository) ListAll(ctx context.Context, tenantID string) ([]*domain.Lead, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+leadColumns+` FROM leads WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, err
	}
	return collectLeads(rows)
}

type execQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// updateLead applies a version compare-and-set. Counters owned by the message
// log are left untouched and read back.
func updateLead(ctx context.Context, q execQuerier, lead *domain.Lead) error {
	query := `
		UPDATE leads
		SET display_name = $4, status = $5, followup_count = $6, last_followup_at = $7,
		    agent_blocked = $8, booking_intent = $9, status_changed_at = $10,
		    meeting_booked_at = $11, meeting_title = $12, meeting_starts_at = $13,
		    updated_at = $14, version = version + 1
		WHERE tenant_id = $1 AND lead_id = $2 AND version = $3
		RETURNING version, message_count, last_interaction_at
	`
	err := q.QueryRow(ctx, query,
		lead.TenantID,
		lead.LeadID,
		lead.Version,
		nullStringOrValue(lead.DisplayName),
		lead.Status,
		lead.FollowupCount,
		lead.LastFollowupAt,
		lead.AgentBlocked,
		lead.BookingIntent,
		lead.StatusChangedAt,
		lead.MeetingBookedAt,
		nullStringOrValue(lead.MeetingTitle),
		lead.MeetingStartsAt,
		lead.UpdatedAt,
	).Scan(&lead.Version, &lead.MessageCount, &lead.LastInteractionAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM leads WHERE tenant_id = $1 AND lead_id = $2)`,
		lead.TenantID, lead.LeadID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrLeadNotFound
	}
	return domain.ErrVersionConflict
}

// Update writes the lead if its version matches
func (r *PostgresLeadRepository) Update(ctx context.Context, lead *domain.Lead) error {
	return updateLead(ctx, r.pool, lead)
}

// SaveTransition updates the lead and inserts the transition in one transaction
func (r *PostgresLeadRepository) SaveTransition(ctx context.Context, lead *domain.Lead, tr *domain.StatusTransition) error {
	if tr.ID == "" {
		tr.ID = uuid.New().String()
	}
	version := lead.Version
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := updateLead(ctx, tx, lead); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO status_transitions (id, lead_id, tenant_id, from_status, to_status, actor, reason, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, tr.ID, tr.LeadID, tr.TenantID, tr.From, tr.To, tr.Actor, nullStringOrValue(tr.Reason), tr.Timestamp)
		return err
	})
	if err != nil {
		// rolled back, the caller's copy must not look persisted
		lead.Version = version
	}
	return err
}

// ListTransitionsInto returns transitions into status in (from, to]
func (r *PostgresLeadRepository) ListTransitionsInto(ctx context.Context, tenantID string, status domain.LeadStatus, from, to time.Time) ([]*domain.StatusTransition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, tenant_id, from_status, to_status, actor, COALESCE(reason, ''), created_at
		FROM status_transitions
		WHERE tenant_id = $1 AND to_status = $2 AND created_at > $3 AND created_at <= $4
		ORDER BY created_at
	`, tenantID, status, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.StatusTransition
	for rows.Next() {
		tr := &domain.StatusTransition{}
		if err := rows.Scan(&tr.ID, &tr.LeadID, &tr.TenantID, &tr.From, &tr.To, &tr.Actor, &tr.Reason, &tr.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
