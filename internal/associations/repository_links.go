package associations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
)

const tenantRolePermissionColumns = `id, tenant_role_id, permission_id, created_at`

func scanTenantRolePermission(row pgx.Row) (TenantRolePermission, error) {
	var trp TenantRolePermission
	err := row.Scan(&trp.ID, &trp.TenantRoleID, &trp.PermissionID, &trp.CreatedAt)
	return trp, err
}

func (r *repository) GetTenantRolePermission(ctx context.Context, id int64) (TenantRolePermission, error) {
	trp, err := scanTenantRolePermission(r.db.QueryRow(ctx, `SELECT `+tenantRolePermissionColumns+` FROM tenant_role_permissions WHERE id = $1`, id))
	return trp, notFound(err)
}

func (r *repository) FindTenantRolePermission(ctx context.Context, tenantRoleID, permissionID int64) (TenantRolePermission, bool, error) {
	trp, err := scanTenantRolePermission(r.db.QueryRow(ctx,
		`SELECT `+tenantRolePermissionColumns+` FROM tenant_role_permissions WHERE tenant_role_id = $1 AND permission_id = $2`,
		tenantRoleID, permissionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return TenantRolePermission{}, false, nil
	}
	if err != nil {
		return TenantRolePermission{}, false, err
	}
	return trp, true, nil
}

var tenantRolePermissionSort = map[string]string{"id": "id", "tenantRoleId": "tenant_role_id", "permissionId": "permission_id"}

func (r *repository) ListTenantRolePermissions(ctx context.Context, filter TenantRolePermissionFilter) ([]TenantRolePermission, int, error) {
	page := filter.Normalize()
	var where db.Where
	idPredicate(&where, "tenant_role_id", filter.TenantRoleID)
	idPredicate(&where, "permission_id", filter.PermissionID)
	total, err := r.count(ctx, `SELECT COUNT(*) FROM tenant_role_permissions`+where.SQL(filter.Or), where.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("associations: count tenant role permissions: %w", err)
	}
	query := `SELECT ` + tenantRolePermissionColumns + ` FROM tenant_role_permissions` + where.SQL(filter.Or) +
		` ORDER BY ` + db.OrderBy(page.SortBy, page.Ascending, tenantRolePermissionSort, "id", "id") +
		` LIMIT ` + where.Arg(page.PageSize) + ` OFFSET ` + where.Arg(page.Offset())
	rows, err := r.db.Query(ctx, query, where.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("associations: list tenant role permissions: %w", err)
	}
	defer rows.Close()
	var out []TenantRolePermission
	for rows.Next() {
		trp, err := scanTenantRolePermission(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, trp)
	}
	return out, total, rows.Err()
}

func (r *repository) CreateTenantRolePermission(ctx context.Context, trp *TenantRolePermission) error {
	now := time.Now().UTC()
	if err := r.db.QueryRow(ctx, `INSERT INTO tenant_role_permissions (tenant_role_id, permission_id, created_at) VALUES ($1, $2, $3) RETURNING id`,
		trp.TenantRoleID, trp.PermissionID, now).Scan(&trp.ID); err != nil {
		return err
	}
	trp.CreatedAt = now
	return nil
}

func (r *repository) DeleteTenantRolePermission(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM tenant_role_permissions WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repository) PermissionIDs(ctx context.Context, tenantRoleID int64) ([]int64, error) {
	return r.ids(ctx, `SELECT permission_id FROM tenant_role_permissions WHERE tenant_role_id = $1 ORDER BY permission_id`, tenantRoleID)
}

const tenantRoleUserColumns = `id, tenant_role_id, user_id, created_at`

func scanTenantRoleUser(row pgx.Row) (TenantRoleUser, error) {
	var tru TenantRoleUser
	err := row.Scan(&tru.ID, &tru.TenantRoleID, &tru.UserID, &tru.CreatedAt)
	return tru, err
}

func (r *repository) GetTenantRoleUser(ctx context.Context, id int64) (TenantRoleUser, error) {
	tru, err := scanTenantRoleUser(r.db.QueryRow(ctx, `SELECT `+tenantRoleUserColumns+` FROM tenant_role_users WHERE id = $1`, id))
	return tru, notFound(err)
}

func (r *repository) FindTenantRoleUser(ctx context.Context, tenantRoleID, userID int64) (TenantRoleUser, bool, error) {
	tru, err := scanTenantRoleUser(r.db.QueryRow(ctx,
		`SELECT `+tenantRoleUserColumns+` FROM tenant_role_users WHERE tenant_role_id = $1 AND user_id = $2`, tenantRoleID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return TenantRoleUser{}, false, nil
	}
	if err != nil {
		return TenantRoleUser{}, false, err
	}
	return tru, true, nil
}

var tenantRoleUserSort = map[string]string{"id": "id", "tenantRoleId": "tenant_role_id", "userId": "user_id"}

func (r *repository) ListTenantRoleUsers(ctx context.Context, filter TenantRoleUserFilter) ([]TenantRoleUser, int, error) {
	page := filter.Normalize()
	var where db.Where
	idPredicate(&where, "tenant_role_id", filter.TenantRoleID)
	idPredicate(&where, "user_id", filter.UserID)
	total, err := r.count(ctx, `SELECT COUNT(*) FROM tenant_role_users`+where.SQL(filter.Or), where.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("associations: count tenant role users: %w", err)
	}
	query := `SELECT ` + tenantRoleUserColumns + ` FROM tenant_role_users` + where.SQL(filter.Or) +
		` ORDER BY ` + db.OrderBy(page.SortBy, page.Ascending, tenantRoleUserSort, "id", "id") +
		` LIMIT ` + where.Arg(page.PageSize) + ` OFFSET ` + where.Arg(page.Offset())
	rows, err := r.db.Query(ctx, query, where.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("associations: list tenant role users: %w", err)
	}
	defer rows.Close()
	var out []TenantRoleUser
	for rows.Next() {
		tru, err := scanTenantRoleUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, tru)
	}
	return out, total, rows.Err()
}

func (r *repository) CreateTenantRoleUser(ctx context.Context, tru *TenantRoleUser) error {
	now := time.Now().UTC()
	if err := r.db.QueryRow(ctx, `INSERT INTO tenant_role_users (tenant_role_id, user_id, created_at) VALUES ($1, $2, $3) RETURNING id`,
		tru.TenantRoleID, tru.UserID, now).Scan(&tru.ID); err != nil {
		return err
	}
	tru.CreatedAt = now
	return nil
}

func (r *repository) DeleteTenantRoleUser(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM tenant_role_users WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repository) CountUserMemberships(ctx context.Context, tenantID, userID int64) (int, error) {
	return r.count(ctx, `
		SELECT COUNT(*)
		FROM tenant_role_users tru
		JOIN tenant_roles tr ON tr.id = tru.tenant_role_id
		WHERE tr.tenant_id = $1 AND tru.user_id = $2`, tenantID, userID)
}
