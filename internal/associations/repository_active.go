package associations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
)

const activeTenantSelect = `
	SELECT at.id, at.tenant_id, at.user_id, at.is_tenant_active, COALESCE(t.name, ''), at.created_at, at.updated_at
	FROM active_tenants at
	LEFT JOIN tenants t ON t.id = at.tenant_id`

func scanActiveTenant(row pgx.Row) (ActiveTenant, error) {
	var at ActiveTenant
	err := row.Scan(&at.ID, &at.TenantID, &at.UserID, &at.IsTenantActive, &at.TenantName, &at.CreatedAt, &at.UpdatedAt)
	return at, err
}

func (r *repository) GetActiveTenant(ctx context.Context, id int64) (ActiveTenant, error) {
	at, err := scanActiveTenant(r.db.QueryRow(ctx, activeTenantSelect+` WHERE at.id = $1`, id))
	return at, notFound(err)
}

func (r *repository) FindActiveTenant(ctx context.Context, tenantID, userID int64) (ActiveTenant, bool, error) {
	at, err := scanActiveTenant(r.db.QueryRow(ctx, activeTenantSelect+` WHERE at.tenant_id = $1 AND at.user_id = $2`, tenantID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ActiveTenant{}, false, nil
	}
	if err != nil {
		return ActiveTenant{}, false, err
	}
	return at, true, nil
}

func (r *repository) CurrentActiveTenant(ctx context.Context, userID int64) (ActiveTenant, bool, error) {
	at, err := scanActiveTenant(r.db.QueryRow(ctx, activeTenantSelect+` WHERE at.user_id = $1 AND at.is_tenant_active ORDER BY at.updated_at DESC LIMIT 1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ActiveTenant{}, false, nil
	}
	if err != nil {
		return ActiveTenant{}, false, err
	}
	return at, true, nil
}

var activeTenantSort = map[string]string{
	"id":             "at.id",
	"tenantId":       "at.tenant_id",
	"userId":         "at.user_id",
	"isTenantActive": "at.is_tenant_active",
	"tenantName":     "t.name",
}

func (r *repository) ListActiveTenants(ctx context.Context, filter ActiveTenantFilter) ([]ActiveTenant, int, error) {
	page := filter.Normalize()
	var where db.Where
	idPredicate(&where, "at.user_id", filter.UserID)
	idPredicate(&where, "at.tenant_id", filter.TenantID)
	if filter.TenantName != "" {
		if filter.Exact {
			where.Add(`t.name = ` + where.Arg(filter.TenantName))
		} else {
			where.Add(`t.name ILIKE ` + where.Arg(db.Like(filter.TenantName)))
		}
	}
	total, err := r.count(ctx, `SELECT COUNT(*) FROM active_tenants at LEFT JOIN tenants t ON t.id = at.tenant_id`+where.SQL(filter.Or), where.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("associations: count active tenants: %w", err)
	}
	query := activeTenantSelect + where.SQL(filter.Or) +
		` ORDER BY ` + db.OrderBy(page.SortBy, page.Ascending, activeTenantSort, "at.id", "at.id") +
		` LIMIT ` + where.Arg(page.PageSize) + ` OFFSET ` + where.Arg(page.Offset())
	rows, err := r.db.Query(ctx, query, where.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("associations: list active tenants: %w", err)
	}
	defer rows.Close()
	var out []ActiveTenant
	for rows.Next() {
		at, err := scanActiveTenant(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, at)
	}
	return out, total, rows.Err()
}

func (r *repository) CreateActiveTenant(ctx context.Context, at *ActiveTenant) error {
	now := time.Now().UTC()
	if err := r.db.QueryRow(ctx, `
		INSERT INTO active_tenants (tenant_id, user_id, is_tenant_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4) RETURNING id`, at.TenantID, at.UserID, at.IsTenantActive, now).Scan(&at.ID); err != nil {
		return err
	}
	at.CreatedAt, at.UpdatedAt = now, now
	return nil
}

func (r *repository) UpdateActiveTenant(ctx context.Context, at *ActiveTenant) (bool, error) {
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx, `
		UPDATE active_tenants SET tenant_id = $1, user_id = $2, is_tenant_active = $3, updated_at = $4
		WHERE id = $5 RETURNING created_at`, at.TenantID, at.UserID, at.IsTenantActive, now, at.ID).Scan(&at.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	at.UpdatedAt = now
	return true, nil
}

func (r *repository) DeleteActiveTenant(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM active_tenants WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repository) DeleteActiveTenants(ctx context.Context, tenantID, userID *int64) (int64, error) {
	var where db.Where
	idPredicate(&where, "tenant_id", tenantID)
	idPredicate(&where, "user_id", userID)
	if len(where.Args()) == 0 {
		return 0, errors.New("associations: refusing unfiltered active tenant delete")
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM active_tenants`+where.SQL(false), where.Args()...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *repository) DeactivateUser(ctx context.Context, userID int64, exceptTenantID int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE active_tenants SET is_tenant_active = FALSE, updated_at = $3
		WHERE user_id = $1 AND tenant_id <> $2 AND is_tenant_active`, userID, exceptTenantID, time.Now().UTC())
	return err
}

func (r *repository) EnsureActiveTenant(ctx context.Context, tenantID, userID int64) (bool, error) {
	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx, `
		INSERT INTO active_tenants (tenant_id, user_id, is_tenant_active, created_at, updated_at)
		VALUES ($1, $2, FALSE, $3, $3)
		ON CONFLICT ON CONSTRAINT `+ConstraintActiveTenant+` DO NOTHING`, tenantID, userID, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repository) HasRole(ctx context.Context, userID int64, roleNames []string, tenantID *int64) (bool, error) {
	return r.exists(ctx, `
		SELECT 1
		FROM tenant_role_users tru
		JOIN tenant_roles tr ON tr.id = tru.tenant_role_id
		JOIN roles ro ON ro.id = tr.role_id
		WHERE tru.user_id = $1 AND ro.name = ANY($2) AND ($3::BIGINT IS NULL OR tr.tenant_id = $3)`,
		userID, roleNames, tenantID)
}

func (r *repository) HasAnyPermission(ctx context.Context, userID int64, permissionIDs []int64, tenantID *int64) (bool, error) {
	return r.exists(ctx, `
		SELECT 1
		FROM tenant_role_users tru
		JOIN tenant_roles tr ON tr.id = tru.tenant_role_id
		JOIN tenant_role_permissions trp ON trp.tenant_role_id = tr.id
		WHERE tru.user_id = $1 AND trp.permission_id = ANY($2) AND ($3::BIGINT IS NULL OR tr.tenant_id = $3)`,
		userID, permissionIDs, tenantID)
}

func (r *repository) HasRolePermission(ctx context.Context, userID, permissionID, roleID, tenantID int64) (bool, error) {
	return r.exists(ctx, `
		SELECT 1
		FROM tenant_role_users tru
		JOIN tenant_roles tr ON tr.id = tru.tenant_role_id
		JOIN tenant_role_permissions trp ON trp.tenant_role_id = tr.id
		WHERE tru.user_id = $1 AND trp.permission_id = $2 AND tr.role_id = $3 AND tr.tenant_id = $4`,
		userID, permissionID, roleID, tenantID)
}
