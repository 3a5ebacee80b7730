package associations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Repository is the persistence port for every association table.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	LockUser(ctx context.Context, userID int64) error

	TenantExists(ctx context.Context, id int64) (bool, error)
	RoleExists(ctx context.Context, id int64) (bool, error)
	PermissionExists(ctx context.Context, id int64) (bool, error)

	GetTenantRole(ctx context.Context, id int64) (TenantRole, error)
	FindTenantRole(ctx context.Context, tenantID, roleID int64) (TenantRole, bool, error)
	ListTenantRoles(ctx context.Context, filter TenantRoleFilter) ([]TenantRole, int, error)
	TenantRoleIDs(ctx context.Context, tenantID int64) ([]int64, error)
	CountTenantRoles(ctx context.Context) (int, error)
	CreateTenantRole(ctx context.Context, tr *TenantRole) error
	UpdateTenantRole(ctx context.Context, tr *TenantRole) (bool, error)
	DeleteTenantRole(ctx context.Context, id int64) (bool, error)
	CountTenantRolePermissions(ctx context.Context, tenantRoleID int64) (int, error)
	CountTenantRoleUsers(ctx context.Context, tenantRoleID int64) (int, error)
	RoleIDsForUserTenant(ctx context.Context, userID, tenantID int64) ([]int64, error)

	GetTenantRolePermission(ctx context.Context, id int64) (TenantRolePermission, error)
	FindTenantRolePermission(ctx context.Context, tenantRoleID, permissionID int64) (TenantRolePermission, bool, error)
	ListTenantRolePermissions(ctx context.Context, filter TenantRolePermissionFilter) ([]TenantRolePermission, int, error)
	CreateTenantRolePermission(ctx context.Context, trp *TenantRolePermission) error
	DeleteTenantRolePermission(ctx context.Context, id int64) (bool, error)
	PermissionIDs(ctx context.Context, tenantRoleID int64) ([]int64, error)

	GetTenantRoleUser(ctx context.Context, id int64) (TenantRoleUser, error)
	FindTenantRoleUser(ctx context.Context, tenantRoleID, userID int64) (TenantRoleUser, bool, error)
	ListTenantRoleUsers(ctx context.Context, filter TenantRoleUserFilter) ([]TenantRoleUser, int, error)
	CreateTenantRoleUser(ctx context.Context, tru *TenantRoleUser) error
	DeleteTenantRoleUser(ctx context.Context, id int64) (bool, error)
	CountUserMemberships(ctx context.Context, tenantID, userID int64) (int, error)

	GetActiveTenant(ctx context.Context, id int64) (ActiveTenant, error)
	FindActiveTenant(ctx context.Context, tenantID, userID int64) (ActiveTenant, bool, error)
	CurrentActiveTenant(ctx context.Context, userID int64) (ActiveTenant, bool, error)
	ListActiveTenants(ctx context.Context, filter ActiveTenantFilter) ([]ActiveTenant, int, error)
	CreateActiveTenant(ctx context.Context, at *ActiveTenant) error
	UpdateActiveTenant(ctx context.Context, at *ActiveTenant) (bool, error)
	DeleteActiveTenant(ctx context.Context, id int64) (bool, error)
	DeleteActiveTenants(ctx context.Context, tenantID, userID *int64) (int64, error)
	DeactivateUser(ctx context.Context, userID int64, exceptTenantID int64) error
	// EnsureActiveTenant inserts an inactive row unless one exists already.
	EnsureActiveTenant(ctx context.Context, tenantID, userID int64) (bool, error)

	HasRole(ctx context.Context, userID int64, roleNames []string, tenantID *int64) (bool, error)
	HasAnyPermission(ctx context.Context, userID int64, permissionIDs []int64, tenantID *int64) (bool, error)
	HasRolePermission(ctx context.Context, userID, permissionID, roleID, tenantID int64) (bool, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a Postgres backed association repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if _, inTx := r.db.(pgx.Tx); inTx {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) LockUser(ctx context.Context, userID int64) error {
	return db.AdvisoryXactLock(ctx, r.db, shared.ActiveTenantLockKey(userID))
}

func (r *repository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(`+query+`)`, args...).Scan(&ok)
	return ok, err
}

func (r *repository) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, query, args...).Scan(&n)
	return n, err
}

func (r *repository) ids(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *repository) TenantExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, `SELECT 1 FROM tenants WHERE id = $1`, id)
}

func (r *repository) RoleExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, `SELECT 1 FROM roles WHERE id = $1`, id)
}

func (r *repository) PermissionExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, `SELECT 1 FROM permissions WHERE id = $1`, id)
}

func idPredicate(where *db.Where, column string, id *int64) {
	if id != nil {
		where.Add(column + ` = ` + where.Arg(*id))
	}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	return err
}

const tenantRoleColumns = `id, tenant_id, role_id, created_at, updated_at`

func scanTenantRole(row pgx.Row) (TenantRole, error) {
	var tr TenantRole
	err := row.Scan(&tr.ID, &tr.TenantID, &tr.RoleID, &tr.CreatedAt, &tr.UpdatedAt)
	return tr, err
}

func (r *repository) GetTenantRole(ctx context.Context, id int64) (TenantRole, error) {
	tr, err := scanTenantRole(r.db.QueryRow(ctx, `SELECT `+tenantRoleColumns+` FROM tenant_roles WHERE id = $1`, id))
	return tr, notFound(err)
}

func (r *repository) FindTenantRole(ctx context.Context, tenantID, roleID int64) (TenantRole, bool, error) {
	tr, err := scanTenantRole(r.db.QueryRow(ctx, `SELECT `+tenantRoleColumns+` FROM tenant_roles WHERE tenant_id = $1 AND role_id = $2`, tenantID, roleID))
	if errors.Is(err, pgx.ErrNoRows) {
		return TenantRole{}, false, nil
	}
	if err != nil {
		return TenantRole{}, false, err
	}
	return tr, true, nil
}

var tenantRoleSort = map[string]string{"id": "id", "tenantId": "tenant_id", "roleId": "role_id"}

func (r *repository) ListTenantRoles(ctx context.Context, filter TenantRoleFilter) ([]TenantRole, int, error) {
	page := filter.Normalize()
	var where db.Where
	idPredicate(&where, "tenant_id", filter.TenantID)
	idPredicate(&where, "role_id", filter.RoleID)
	total, err := r.count(ctx, `SELECT COUNT(*) FROM tenant_roles`+where.SQL(filter.Or), where.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("associations: count tenant roles: %w", err)
	}
	query := `SELECT ` + tenantRoleColumns + ` FROM tenant_roles` + where.SQL(filter.Or) +
		` ORDER BY ` + db.OrderBy(page.SortBy, page.Ascending, tenantRoleSort, "id", "id") +
		` LIMIT ` + where.Arg(page.PageSize) + ` OFFSET ` + where.Arg(page.Offset())
	rows, err := r.db.Query(ctx, query, where.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("associations: list tenant roles: %w", err)
	}
	defer rows.Close()
	var out []TenantRole
	for rows.Next() {
		tr, err := scanTenantRole(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, tr)
	}
	return out, total, rows.Err()
}

func (r *repository) TenantRoleIDs(ctx context.Context, tenantID int64) ([]int64, error) {
	return r.ids(ctx, `SELECT id FROM tenant_roles WHERE tenant_id = $1 ORDER BY id`, tenantID)
}

func (r *repository) CountTenantRoles(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM tenant_roles`)
}

func (r *repository) CreateTenantRole(ctx context.Context, tr *TenantRole) error {
	now := time.Now().UTC()
	if err := r.db.QueryRow(ctx, `INSERT INTO tenant_roles (tenant_id, role_id, created_at, updated_at) VALUES ($1, $2, $3, $3) RETURNING id`,
		tr.TenantID, tr.RoleID, now).Scan(&tr.ID); err != nil {
		return err
	}
	tr.CreatedAt, tr.UpdatedAt = now, now
	return nil
}

func (r *repository) UpdateTenantRole(ctx context.Context, tr *TenantRole) (bool, error) {
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx, `UPDATE tenant_roles SET tenant_id = $1, role_id = $2, updated_at = $3 WHERE id = $4 RETURNING created_at`,
		tr.TenantID, tr.RoleID, now, tr.ID).Scan(&tr.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	tr.UpdatedAt = now
	return true, nil
}

func (r *repository) DeleteTenantRole(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM tenant_roles WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repository) CountTenantRolePermissions(ctx context.Context, tenantRoleID int64) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM tenant_role_permissions WHERE tenant_role_id = $1`, tenantRoleID)
}

func (r *repository) CountTenantRoleUsers(ctx context.Context, tenantRoleID int64) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM tenant_role_users WHERE tenant_role_id = $1`, tenantRoleID)
}

func (r *repository) RoleIDsForUserTenant(ctx context.Context, userID, tenantID int64) ([]int64, error) {
	return r.ids(ctx, `
		SELECT DISTINCT tr.role_id
		FROM tenant_role_users tru
		JOIN tenant_roles tr ON tr.id = tru.tenant_role_id
		WHERE tru.user_id = $1 AND tr.tenant_id = $2
		ORDER BY tr.role_id`, userID, tenantID)
}
