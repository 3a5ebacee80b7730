package catalog

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

// Repository is the persistence port of the permission catalog.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	GetNamed(ctx context.Context, kind Kind, id int64) (Named, error)
	FindNamed(ctx context.Context, kind Kind, name string) (Named, bool, error)
	NamedExists(ctx context.Context, kind Kind, id int64) (bool, error)
	ListNamed(ctx context.Context, kind Kind, filters ListFilters) ([]Named, int, error)
	CreateNamed(ctx context.Context, kind Kind, n *Named) error
	UpdateNamed(ctx context.Context, kind Kind, n *Named) (bool, error)
	DeleteNamed(ctx context.Context, kind Kind, id int64) (bool, error)

	GetPermission(ctx context.Context, id int64) (Permission, error)
	GetPermissionByName(ctx context.Context, name string) (Permission, error)
	PermissionExists(ctx context.Context, id int64) (bool, error)
	ListPermissions(ctx context.Context, filters ListFilters) ([]Permission, int, error)
	CreatePermission(ctx context.Context, p *Permission) error
	UpdatePermission(ctx context.Context, p *Permission) (bool, error)
	DeletePermission(ctx context.Context, id int64) (bool, error)
	// PermissionIDsFor matches resource and action names case-insensitively.
	PermissionIDsFor(ctx context.Context, resource, action string) ([]int64, error)
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

// NewRepository constructs a Postgres backed catalog repository.
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

func (r *repository) GetNamed(ctx context.Context, kind Kind, id int64) (Named, error) {
	var n Named
	err := r.db.QueryRow(ctx, `SELECT id, name, created_at, updated_at FROM `+kind.table()+` WHERE id = $1`, id).
		Scan(&n.ID, &n.Name, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Named{}, shared.ErrNotFound
	}
	return n, err
}

func (r *repository) FindNamed(ctx context.Context, kind Kind, name string) (Named, bool, error) {
	var n Named
	err := r.db.QueryRow(ctx, `SELECT id, name, created_at, updated_at FROM `+kind.table()+` WHERE name = $1`, name).
		Scan(&n.ID, &n.Name, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Named{}, false, nil
	}
	if err != nil {
		return Named{}, false, err
	}
	return n, true, nil
}

func (r *repository) NamedExists(ctx context.Context, kind Kind, id int64) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM `+kind.table()+` WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

var namedSortColumns = map[string]string{"id": "id", "name": "name"}

func nameFilter(filters ListFilters) db.Where {
	var where db.Where
	if filters.Search != "" {
		if filters.Exact {
			where.Add(`name = ` + where.Arg(filters.Search))
		} else {
			where.Add(`name ILIKE ` + where.Arg(db.Like(filters.Search)))
		}
	}
	return where
}

func (r *repository) ListNamed(ctx context.Context, kind Kind, filters ListFilters) ([]Named, int, error) {
	page := filters.Normalize()
	where := nameFilter(filters)
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM `+kind.table()+where.SQL(false), where.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("catalog: count %s: %w", kind.table(), err)
	}
	query := `SELECT id, name, created_at, updated_at FROM ` + kind.table() + where.SQL(false) +
		` ORDER BY ` + db.OrderBy(page.SortBy, page.Ascending, namedSortColumns, "name", "id") +
		` LIMIT ` + where.Arg(page.PageSize) + ` OFFSET ` + where.Arg(page.Offset())
	rows, err := r.db.Query(ctx, query, where.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list %s: %w", kind.table(), err)
	}
	defer rows.Close()
	var out []Named
	for rows.Next() {
		var n Named
		if err := rows.Scan(&n.ID, &n.Name, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, n)
	}
	return out, total, rows.Err()
}

func (r *repository) CreateNamed(ctx context.Context, kind Kind, n *Named) error {
	now := time.Now().UTC()
	if err := r.db.QueryRow(ctx, `INSERT INTO `+kind.table()+` (name, created_at, updated_at) VALUES ($1, $2, $2) RETURNING id`, n.Name, now).Scan(&n.ID); err != nil {
		return err
	}
	n.CreatedAt, n.UpdatedAt = now, now
	return nil
}

func (r *repository) UpdateNamed(ctx context.Context, kind Kind, n *Named) (bool, error) {
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx, `UPDATE `+kind.table()+` SET name = $1, updated_at = $2 WHERE id = $3 RETURNING created_at`, n.Name, now, n.ID).Scan(&n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	n.UpdatedAt = now
	return true, nil
}

func (r *repository) DeleteNamed(ctx context.Context, kind Kind, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM `+kind.table()+` WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

const permissionColumns = `id, name, action_id, resource_id, created_at, updated_at`

func scanPermission(row pgx.Row) (Permission, error) {
	var p Permission
	err := row.Scan(&p.ID, &p.Name, &p.ActionID, &p.ResourceID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *repository) GetPermission(ctx context.Context, id int64) (Permission, error) {
	p, err := scanPermission(r.db.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Permission{}, shared.ErrNotFound
	}
	return p, err
}

func (r *repository) GetPermissionByName(ctx context.Context, name string) (Permission, error) {
	p, err := scanPermission(r.db.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return Permission{}, shared.ErrNotFound
	}
	return p, err
}

func (r *repository) PermissionExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM permissions WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

func (r *repository) ListPermissions(ctx context.Context, filters ListFilters) ([]Permission, int, error) {
	page := filters.Normalize()
	where := nameFilter(filters)
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM permissions`+where.SQL(false), where.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("catalog: count permissions: %w", err)
	}
	query := `SELECT ` + permissionColumns + ` FROM permissions` + where.SQL(false) +
		` ORDER BY ` + db.OrderBy(page.SortBy, page.Ascending, namedSortColumns, "name", "id") +
		` LIMIT ` + where.Arg(page.PageSize) + ` OFFSET ` + where.Arg(page.Offset())
	rows, err := r.db.Query(ctx, query, where.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list permissions: %w", err)
	}
	defer rows.Close()
	var out []Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *repository) CreatePermission(ctx context.Context, p *Permission) error {
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx, `
		INSERT INTO permissions (name, action_id, resource_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4) RETURNING id`, p.Name, p.ActionID, p.ResourceID, now).Scan(&p.ID)
	if err != nil {
		return err
	}
	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}

func (r *repository) UpdatePermission(ctx context.Context, p *Permission) (bool, error) {
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx, `
		UPDATE permissions SET name = $1, action_id = $2, resource_id = $3, updated_at = $4
		WHERE id = $5 RETURNING created_at`, p.Name, p.ActionID, p.ResourceID, now, p.ID).Scan(&p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	p.UpdatedAt = now
	return true, nil
}

func (r *repository) DeletePermission(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repository) PermissionIDsFor(ctx context.Context, resource, action string) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.id
		FROM permissions p
		JOIN resources r ON r.id = p.resource_id
		JOIN actions a ON a.id = p.action_id
		WHERE LOWER(r.name) = LOWER($1) AND LOWER(a.name) = LOWER($2)
		ORDER BY p.id`, resource, action)
	if err != nil {
		return nil, fmt.Errorf("catalog: permission lookup: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
