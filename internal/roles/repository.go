package roles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, name, description, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

// Get returns the role with id.
func (r *Repository) Get(ctx context.Context, id int64) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	return role, err
}

// GetByName returns the role named name.
func (r *Repository) GetByName(ctx context.Context, name string) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	return role, err
}

// Exists reports whether a role with id is stored.
func (r *Repository) Exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM roles WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

var sortColumns = map[string]string{"id": "id", "name": "name", "description": "description"}

// List returns roles matching filters and the total match count.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Role, int, error) {
	page := filters.Normalize()
	var where db.Where
	if filters.Search != "" {
		if filters.Exact {
			where.Add(`name = ` + where.Arg(filters.Search))
		} else {
			where.Add(`name ILIKE ` + where.Arg(db.Like(filters.Search)))
		}
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM roles`+where.SQL(false), where.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("roles: count: %w", err)
	}
	query := `SELECT ` + roleColumns + ` FROM roles` + where.SQL(false) +
		` ORDER BY ` + db.OrderBy(page.SortBy, page.Ascending, sortColumns, "name", "id") +
		` LIMIT ` + where.Arg(page.PageSize) + ` OFFSET ` + where.Arg(page.Offset())
	rows, err := r.pool.Query(ctx, query, where.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("roles: list: %w", err)
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, 0, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return roles, total, nil
}

// Create inserts a new role.
func (r *Repository) Create(ctx context.Context, role *Role) error {
	now := time.Now().UTC()
	err := r.pool.QueryRow(ctx, `INSERT INTO roles (name, description, created_at, updated_at) VALUES ($1, $2, $3, $3) RETURNING id`,
		role.Name, role.Description, now).Scan(&role.ID)
	if err != nil {
		return err
	}
	role.CreatedAt, role.UpdatedAt = now, now
	return nil
}

// Update replaces name and description; false means no such role.
func (r *Repository) Update(ctx context.Context, role *Role) (bool, error) {
	now := time.Now().UTC()
	err := r.pool.QueryRow(ctx, `UPDATE roles SET name = $1, description = $2, updated_at = $3 WHERE id = $4 RETURNING created_at`,
		role.Name, role.Description, now, role.ID).Scan(&role.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	role.UpdatedAt = now
	return true, nil
}

// Delete removes the role; false means no such role.
func (r *Repository) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
