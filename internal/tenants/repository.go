package tenants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Repository is the persistence port of the tenant hierarchy.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	LockRoot(ctx context.Context) error
	Get(ctx context.Context, id int64) (Tenant, error)
	Exists(ctx context.Context, id int64) (bool, error)
	FindRootID(ctx context.Context) (int64, bool, error)
	NameTaken(ctx context.Context, name string, excludeID int64) (bool, error)
	List(ctx context.Context, filters ListFilters) ([]Tenant, int, error)
	Create(ctx context.Context, t *Tenant) error
	Update(ctx context.Context, t *Tenant) (bool, error)
	ChildIDs(ctx context.Context, ids []int64) ([]int64, error)
	DeleteTenants(ctx context.Context, ids []int64) (int64, error)
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

// NewRepository constructs a Postgres backed tenant repository.
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

func (r *repository) LockRoot(ctx context.Context) error {
	return db.AdvisoryXactLock(ctx, r.db, shared.TenantRootLockKey)
}

const tenantColumns = `id, name, tenant_key, tenant_type, parent_id, client_id, tenant_start, tenant_end, created_at, updated_at`

func scanTenant(row pgx.Row) (Tenant, error) {
	var (
		t                Tenant
		typ              string
		parentID, client pgtype.Int8
		start, end       pgtype.Date
	)
	if err := row.Scan(&t.ID, &t.Name, &t.TenantKey, &typ, &parentID, &client, &start, &end, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Tenant{}, err
	}
	t.TenantType = Type(typ)
	if parentID.Valid {
		v := parentID.Int64
		t.ParentID = &v
	}
	if client.Valid {
		v := client.Int64
		t.ClientID = &v
	}
	if start.Valid {
		v := start.Time
		t.TenantStart = &v
	}
	if end.Valid {
		v := end.Time
		t.TenantEnd = &v
	}
	return t, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Tenant, error) {
	t, err := scanTenant(r.db.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, shared.ErrNotFound
		}
		return Tenant{}, fmt.Errorf("tenants: get: %w", err)
	}
	return t, nil
}

func (r *repository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tenants WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *repository) FindRootID(ctx context.Context) (int64, bool, error) {
	var id int64
	err := r.db.QueryRow(ctx, `SELECT id FROM tenants WHERE tenant_type = 'ROOT' LIMIT 1`).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return id, true, nil
}

func (r *repository) NameTaken(ctx context.Context, name string, excludeID int64) (bool, error) {
	var taken bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tenants WHERE name = $1 AND id <> $2)`, name, excludeID).Scan(&taken)
	return taken, err
}

var sortColumns = map[string]string{
	"id":          "id",
	"name":        "name",
	"tenantKey":   "tenant_key",
	"tenantType":  "tenant_type",
	"tenantStart": "tenant_start",
	"tenantEnd":   "tenant_end",
}

// List uses a dynamic query because filters and sort fields are optional.
func (r *repository) List(ctx context.Context, filters ListFilters) ([]Tenant, int, error) {
	page := filters.Normalize()
	var where db.Where
	if filters.Search != "" {
		if filters.Exact {
			where.Add(`name = ` + where.Arg(filters.Search))
		} else {
			where.Add(`name ILIKE ` + where.Arg(db.Like(filters.Search)))
		}
	}
	if filters.Type != "" {
		where.Add(`tenant_type = ` + where.Arg(string(filters.Type)))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM tenants`+where.SQL(false), where.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("tenants: count: %w", err)
	}

	query := `SELECT ` + tenantColumns + ` FROM tenants` + where.SQL(false) +
		` ORDER BY ` + db.OrderBy(page.SortBy, page.Ascending, sortColumns, "name", "id")
	query += ` LIMIT ` + where.Arg(page.PageSize) + ` OFFSET ` + where.Arg(page.Offset())

	rows, err := r.db.Query(ctx, query, where.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("tenants: list: %w", err)
	}
	defer rows.Close()

	var out []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func dateArg(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: *t, Valid: true}
}

func (r *repository) Create(ctx context.Context, t *Tenant) error {
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx, `
		INSERT INTO tenants (name, tenant_key, tenant_type, parent_id, client_id, tenant_start, tenant_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING id`,
		t.Name, t.TenantKey, string(t.TenantType), t.ParentID, t.ClientID, dateArg(t.TenantStart), dateArg(t.TenantEnd), now,
	).Scan(&t.ID)
	if err != nil {
		return err
	}
	t.CreatedAt, t.UpdatedAt = now, now
	return nil
}

func (r *repository) Update(ctx context.Context, t *Tenant) (bool, error) {
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx, `
		UPDATE tenants SET name = $1, tenant_key = $2, tenant_type = $3, parent_id = $4, client_id = $5,
			tenant_start = $6, tenant_end = $7, updated_at = $8
		WHERE id = $9
		RETURNING created_at`,
		t.Name, t.TenantKey, string(t.TenantType), t.ParentID, t.ClientID, dateArg(t.TenantStart), dateArg(t.TenantEnd), now, t.ID,
	).Scan(&t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	t.UpdatedAt = now
	return true, nil
}

func (r *repository) ChildIDs(ctx context.Context, ids []int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM tenants
		WHERE (parent_id = ANY($1) OR client_id = ANY($1)) AND NOT (id = ANY($1))
		ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("tenants: children: %w", err)
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

// DeleteTenants removes the given tenants together with the association rows
// that reference them. Callers pass one hierarchy level at a time, deepest first.
func (r *repository) DeleteTenants(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	cleanup := []string{
		`DELETE FROM tenant_role_permissions WHERE tenant_role_id IN (SELECT id FROM tenant_roles WHERE tenant_id = ANY($1))`,
		`DELETE FROM tenant_role_users WHERE tenant_role_id IN (SELECT id FROM tenant_roles WHERE tenant_id = ANY($1))`,
		`DELETE FROM tenant_roles WHERE tenant_id = ANY($1)`,
		`DELETE FROM active_tenants WHERE tenant_id = ANY($1)`,
	}
	for _, stmt := range cleanup {
		if _, err := r.db.Exec(ctx, stmt, ids); err != nil {
			return 0, fmt.Errorf("tenants: purge associations: %w", err)
		}
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM tenants WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("tenants: delete: %w", err)
	}
	return tag.RowsAffected(), nil
}
