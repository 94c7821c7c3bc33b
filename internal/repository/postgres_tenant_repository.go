package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/leadflow/internal/domain"
	"github.com/prohmpiriya/leadflow/pkg/database"
)

// PostgresTenantRepository implements TenantRepository using PostgreSQL
type PostgresTenantRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTenantRepository creates a new PostgresTenantRepository
func NewPostgresTenantRepository(pool *pgxpool.Pool) *PostgresTenantRepository {
	return &PostgresTenantRepository{pool: pool}
}

const tenantColumns = `
	tenant_id, business_name, COALESCE(industry, ''), COALESCE(login_email, ''),
	COALESCE(login_password_hash, ''), COALESCE(dm_prompt, ''), COALESCE(story_prompt, ''),
	COALESCE(followup_prompt, ''), channel_connected, COALESCE(channel_account_id, ''),
	COALESCE(channel_username, ''), COALESCE(channel_access_token, ''), channel_connected_at,
	status, created_at, updated_at, deleted_at`

func scanTenant(row pgx.Row) (*domain.Tenant, error) {
	t := &domain.Tenant{}
	err := row.Scan(
		&t.TenantID,
		&t.BusinessName,
		&t.Industry,
		&t.LoginEmail,
		&t.LoginPasswordHash,
		&t.AgentPrompts.DM,
		&t.AgentPrompts.Story,
		&t.AgentPrompts.Followup,
		&t.Channel.Connected,
		&t.Channel.ExternalAccountID,
		&t.Channel.Username,
		&t.Channel.AccessToken,
		&t.Channel.ConnectedAt,
		&t.Status,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Create creates a new tenant
func (r *PostgresTenantRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	query := `
		INSERT INTO tenants (tenant_id, business_name, industry, login_email, login_password_hash,
		                     dm_prompt, story_prompt, followup_prompt, channel_connected,
		                     channel_account_id, channel_username, channel_access_token,
		                     channel_connected_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.pool.Exec(ctx, query,
		tenant.TenantID,
		tenant.BusinessName,
		nullStringOrValue(tenant.Industry),
		nullStringOrValue(tenant.LoginEmail),
		nullStringOrValue(tenant.LoginPasswordHash),
		nullStringOrValue(tenant.AgentPrompts.DM),
		nullStringOrValue(tenant.AgentPrompts.Story),
		nullStringOrValue(tenant.AgentPrompts.Followup),
		tenant.Channel.Connected,
		nullStringOrValue(tenant.Channel.ExternalAccountID),
		nullStringOrValue(tenant.Channel.Username),
		nullStringOrValue(tenant.Channel.AccessToken),
		tenant.Channel.ConnectedAt,
		tenant.Status,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	)
	if database.IsUniqueViolation(err) {
		return domain.ErrDuplicateTenant
	}
	return err
}

// GetByID retrieves a tenant by ID
func (r *PostgresTenantRepository) GetByID(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE tenant_id = $1 AND deleted_at IS NULL`
	t, err := scanTenant(r.pool.QueryRow(ctx, query, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// GetByLoginEmail retrieves the active-row tenant for a login email
func (r *PostgresTenantRepository) GetByLoginEmail(ctx context.Context, email string) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE login_email = $1 AND deleted_at IS NULL`
	t, err := scanTenant(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// List retrieves tenants with pagination and filters
func (r *PostgresTenantRepository) List(ctx context.Context, filter TenantListFilter) ([]*domain.Tenant, int, error) {
	where := "WHERE deleted_at IS NULL"
	args := []interface{}{}
	argIndex := 1

	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, filter.Status)
		argIndex++
	}
	if filter.Search != "" {
		where += fmt.Sprintf(" AND (business_name ILIKE $%d OR tenant_id ILIKE $%d OR login_email ILIKE $%d)", argIndex, argIndex, argIndex)
		args = append(args, "%"+filter.Search+"%")
		argIndex++
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM tenants "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, limit := normalizePage(filter.Page, filter.Limit)
	query := fmt.Sprintf(`SELECT %s FROM tenants %s ORDER BY created_at DESC, tenant_id LIMIT $%d OFFSET $%d`,
		tenantColumns, where, argIndex, argIndex+1)
	args = append(args, limit, (page-1)*limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tenants []*domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, 0, err
		}
		tenants = append(tenants, t)
	}
	return tenants, total, rows.Err()
}

// ListActiveIDs returns every active tenant id
func (r *PostgresTenantRepository) ListActiveIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT tenant_id FROM tenants WHERE status = 'active' AND deleted_at IS NULL ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Update writes every mutable column
func (r *PostgresTenantRepository) Update(ctx context.Context, tenant *domain.Tenant) error {
	query := `
		UPDATE tenants
		SET business_name = $2, industry = $3, login_email = $4, login_password_hash = $5,
		    dm_prompt = $6, story_prompt = $7, followup_prompt = $8, channel_connected = $9,
		    channel_account_id = $10, channel_username = $11, channel_access_token = $12,
		    channel_connected_at = $13, status = $14, updated_at = $15
		WHERE tenant_id = $1 AND deleted_at IS NULL
	`
	result, err := r.pool.Exec(ctx, query,
		tenant.TenantID,
		tenant.BusinessName,
		nullStringOrValue(tenant.Industry),
		nullStringOrValue(tenant.LoginEmail),
		nullStringOrValue(tenant.LoginPasswordHash),
		nullStringOrValue(tenant.AgentPrompts.DM),
		nullStringOrValue(tenant.AgentPrompts.Story),
		nullStringOrValue(tenant.AgentPrompts.Followup),
		tenant.Channel.Connected,
		nullStringOrValue(tenant.Channel.ExternalAccountID),
		nullStringOrValue(tenant.Channel.Username),
		nullStringOrValue(tenant.Channel.AccessToken),
		tenant.Channel.ConnectedAt,
		tenant.Status,
		tenant.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domain.ErrDuplicateTenant
		}
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrTenantNotFound
	}
	return nil
}

// SoftDelete marks the tenant deleted and inactive
func (r *PostgresTenantRepository) SoftDelete(ctx context.Context, tenantID string, at time.Time) error {
	query := `UPDATE tenants SET deleted_at = $2, status = 'inactive', updated_at = $2 WHERE tenant_id = $1 AND deleted_at IS NULL`
	result, err := r.pool.Exec(ctx, query, tenantID, at)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrTenantNotFound
	}
	return nil
}

// ExistsByID checks all rows, deleted included
func (r *PostgresTenantRepository) ExistsByID(ctx context.Context, tenantID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tenants WHERE tenant_id = $1)`, tenantID).Scan(&exists)
	return exists, err
}

// nullStringOrValue returns nil for empty strings
func nullStringOrValue(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
