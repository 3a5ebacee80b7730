package memstore

import (
	"cmp"
	"context"
	"strings"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
	"github.com/odyssey-erp/odyssey-iam/internal/roles"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

type roleRepo struct {
	s *Store
}

var roleSort = map[string]compareFunc[roles.Role]{
	"id":          func(a, b roles.Role) int { return cmp.Compare(a.ID, b.ID) },
	"name":        func(a, b roles.Role) int { return strings.Compare(a.Name, b.Name) },
	"description": func(a, b roles.Role) int { return strings.Compare(a.Description, b.Description) },
}

func (r *roleRepo) Get(_ context.Context, id int64) (roles.Role, error) {
	var (
		role roles.Role
		ok   bool
	)
	r.s.read(func(d *tables) { role, ok = d.roles[id] })
	if !ok {
		return roles.Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (r *roleRepo) GetByName(_ context.Context, name string) (roles.Role, error) {
	var (
		role  roles.Role
		found bool
	)
	r.s.read(func(d *tables) {
		for _, row := range d.roles {
			if row.Name == name {
				role, found = row, true
				return
			}
		}
	})
	if !found {
		return roles.Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (r *roleRepo) Exists(_ context.Context, id int64) (bool, error) {
	var ok bool
	r.s.read(func(d *tables) { _, ok = d.roles[id] })
	return ok, nil
}

func (r *roleRepo) List(_ context.Context, filters roles.ListFilters) ([]roles.Role, int, error) {
	var rows []roles.Role
	r.s.read(func(d *tables) {
		for _, role := range d.roles {
			if filters.Search == "" || nameMatches(role.Name, filters.Search, filters.Exact) {
				rows = append(rows, role)
			}
		}
	})
	sortRows(rows, filters.PageRequest, roleSort, "name", "id")
	return paginate(rows, filters.PageRequest), len(rows), nil
}

func roleTaken(d *tables, role *roles.Role) bool {
	for _, row := range d.roles {
		if row.ID != role.ID && row.Name == role.Name {
			return true
		}
	}
	return false
}

func (r *roleRepo) Create(_ context.Context, role *roles.Role) error {
	return r.s.write(func(d *tables) error {
		role.ID = 0
		if roleTaken(d, role) {
			return db.NewUniqueViolation(roles.ConstraintName)
		}
		now := r.s.now()
		role.ID = r.s.next("roles")
		role.CreatedAt, role.UpdatedAt = now, now
		d.roles[role.ID] = *role
		return nil
	})
}

func (r *roleRepo) Update(_ context.Context, role *roles.Role) (bool, error) {
	var found bool
	err := r.s.write(func(d *tables) error {
		current, ok := d.roles[role.ID]
		if !ok {
			return nil
		}
		found = true
		if roleTaken(d, role) {
			return db.NewUniqueViolation(roles.ConstraintName)
		}
		role.CreatedAt, role.UpdatedAt = current.CreatedAt, r.s.now()
		d.roles[role.ID] = *role
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func (r *roleRepo) Delete(_ context.Context, id int64) (bool, error) {
	var found bool
	err := r.s.write(func(d *tables) error {
		if _, ok := d.roles[id]; !ok {
			return nil
		}
		for _, tr := range d.tenantRoles {
			if tr.RoleID == id {
				return db.NewForeignKeyViolation("tenant_roles_role_id_fkey")
			}
		}
		delete(d.roles, id)
		found = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}
