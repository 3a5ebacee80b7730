package memstore

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/odyssey-erp/odyssey-iam/internal/catalog"
	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

type catalogRepo struct {
	s    *Store
	inTx bool
}

var namedSort = map[string]compareFunc[catalog.Named]{
	"id":   func(a, b catalog.Named) int { return cmp.Compare(a.ID, b.ID) },
	"name": func(a, b catalog.Named) int { return strings.Compare(a.Name, b.Name) },
}

var permissionSort = map[string]compareFunc[catalog.Permission]{
	"id":   func(a, b catalog.Permission) int { return cmp.Compare(a.ID, b.ID) },
	"name": func(a, b catalog.Permission) int { return strings.Compare(a.Name, b.Name) },
}

func (d *tables) named(kind catalog.Kind) map[int64]catalog.Named {
	if kind == catalog.KindResource {
		return d.resources
	}
	return d.actions
}

func nameConstraint(kind catalog.Kind) string {
	if kind == catalog.KindResource {
		return "resources_name_key"
	}
	return "actions_name_key"
}

func clonePermission(p catalog.Permission) catalog.Permission {
	p.ActionID = cloneID(p.ActionID)
	p.ResourceID = cloneID(p.ResourceID)
	return p
}

func (r *catalogRepo) WithTx(ctx context.Context, fn func(context.Context, catalog.Repository) error) error {
	return r.s.tx(ctx, r.inTx, func() error {
		return fn(ctx, &catalogRepo{s: r.s, inTx: true})
	})
}

func (r *catalogRepo) GetNamed(_ context.Context, kind catalog.Kind, id int64) (catalog.Named, error) {
	var (
		n  catalog.Named
		ok bool
	)
	r.s.read(func(d *tables) { n, ok = d.named(kind)[id] })
	if !ok {
		return catalog.Named{}, shared.ErrNotFound
	}
	return n, nil
}

func (r *catalogRepo) FindNamed(_ context.Context, kind catalog.Kind, name string) (catalog.Named, bool, error) {
	var (
		n     catalog.Named
		found bool
	)
	r.s.read(func(d *tables) {
		for _, row := range d.named(kind) {
			if row.Name == name {
				n, found = row, true
				return
			}
		}
	})
	return n, found, nil
}

func (r *catalogRepo) NamedExists(_ context.Context, kind catalog.Kind, id int64) (bool, error) {
	var ok bool
	r.s.read(func(d *tables) { _, ok = d.named(kind)[id] })
	return ok, nil
}

func (r *catalogRepo) ListNamed(_ context.Context, kind catalog.Kind, filters catalog.ListFilters) ([]catalog.Named, int, error) {
	var rows []catalog.Named
	r.s.read(func(d *tables) {
		for _, n := range d.named(kind) {
			if filters.Search == "" || nameMatches(n.Name, filters.Search, filters.Exact) {
				rows = append(rows, n)
			}
		}
	})
	sortRows(rows, filters.PageRequest, namedSort, "name", "id")
	return paginate(rows, filters.PageRequest), len(rows), nil
}

func namedTaken(rows map[int64]catalog.Named, n *catalog.Named) bool {
	for _, row := range rows {
		if row.ID != n.ID && row.Name == n.Name {
			return true
		}
	}
	return false
}

func (r *catalogRepo) CreateNamed(_ context.Context, kind catalog.Kind, n *catalog.Named) error {
	return r.s.write(func(d *tables) error {
		n.ID = 0
		if namedTaken(d.named(kind), n) {
			return db.NewUniqueViolation(nameConstraint(kind))
		}
		now := r.s.now()
		n.ID = r.s.next(string(kind))
		n.CreatedAt, n.UpdatedAt = now, now
		d.named(kind)[n.ID] = *n
		return nil
	})
}

func (r *catalogRepo) UpdateNamed(_ context.Context, kind catalog.Kind, n *catalog.Named) (bool, error) {
	var found bool
	err := r.s.write(func(d *tables) error {
		current, ok := d.named(kind)[n.ID]
		if !ok {
			return nil
		}
		found = true
		if namedTaken(d.named(kind), n) {
			return db.NewUniqueViolation(nameConstraint(kind))
		}
		n.CreatedAt, n.UpdatedAt = current.CreatedAt, r.s.now()
		d.named(kind)[n.ID] = *n
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func (r *catalogRepo) DeleteNamed(_ context.Context, kind catalog.Kind, id int64) (bool, error) {
	var found bool
	err := r.s.write(func(d *tables) error {
		if _, ok := d.named(kind)[id]; !ok {
			return nil
		}
		for _, p := range d.permissions {
			ref := p.ActionID
			if kind == catalog.KindResource {
				ref = p.ResourceID
			}
			if ref != nil && *ref == id {
				return db.NewForeignKeyViolation("permissions_" + string(kind) + "_id_fkey")
			}
		}
		delete(d.named(kind), id)
		found = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func (r *catalogRepo) GetPermission(_ context.Context, id int64) (catalog.Permission, error) {
	var (
		p  catalog.Permission
		ok bool
	)
	r.s.read(func(d *tables) { p, ok = d.permissions[id] })
	if !ok {
		return catalog.Permission{}, shared.ErrNotFound
	}
	return clonePermission(p), nil
}

func (r *catalogRepo) GetPermissionByName(_ context.Context, name string) (catalog.Permission, error) {
	var (
		p     catalog.Permission
		found bool
	)
	r.s.read(func(d *tables) {
		for _, row := range d.permissions {
			if row.Name == name {
				p, found = row, true
				return
			}
		}
	})
	if !found {
		return catalog.Permission{}, shared.ErrNotFound
	}
	return clonePermission(p), nil
}

func (r *catalogRepo) PermissionExists(_ context.Context, id int64) (bool, error) {
	var ok bool
	r.s.read(func(d *tables) { _, ok = d.permissions[id] })
	return ok, nil
}

func (r *catalogRepo) ListPermissions(_ context.Context, filters catalog.ListFilters) ([]catalog.Permission, int, error) {
	var rows []catalog.Permission
	r.s.read(func(d *tables) {
		for _, p := range d.permissions {
			if filters.Search == "" || nameMatches(p.Name, filters.Search, filters.Exact) {
				rows = append(rows, clonePermission(p))
			}
		}
	})
	sortRows(rows, filters.PageRequest, permissionSort, "name", "id")
	return paginate(rows, filters.PageRequest), len(rows), nil
}

func checkPermission(d *tables, p *catalog.Permission) error {
	for _, row := range d.permissions {
		if row.ID != p.ID && row.Name == p.Name {
			return db.NewUniqueViolation(catalog.ConstraintPermissionName)
		}
	}
	if p.ActionID != nil {
		if _, ok := d.actions[*p.ActionID]; !ok {
			return db.NewForeignKeyViolation("permissions_action_id_fkey")
		}
	}
	if p.ResourceID != nil {
		if _, ok := d.resources[*p.ResourceID]; !ok {
			return db.NewForeignKeyViolation("permissions_resource_id_fkey")
		}
	}
	return nil
}

func (r *catalogRepo) CreatePermission(_ context.Context, p *catalog.Permission) error {
	return r.s.write(func(d *tables) error {
		p.ID = 0
		if err := checkPermission(d, p); err != nil {
			return err
		}
		now := r.s.now()
		p.ID = r.s.next("permissions")
		p.CreatedAt, p.UpdatedAt = now, now
		d.permissions[p.ID] = clonePermission(*p)
		return nil
	})
}

func (r *catalogRepo) UpdatePermission(_ context.Context, p *catalog.Permission) (bool, error) {
	var found bool
	err := r.s.write(func(d *tables) error {
		current, ok := d.permissions[p.ID]
		if !ok {
			return nil
		}
		found = true
		if err := checkPermission(d, p); err != nil {
			return err
		}
		p.CreatedAt, p.UpdatedAt = current.CreatedAt, r.s.now()
		d.permissions[p.ID] = clonePermission(*p)
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func (r *catalogRepo) DeletePermission(_ context.Context, id int64) (bool, error) {
	var found bool
	err := r.s.write(func(d *tables) error {
		if _, ok := d.permissions[id]; !ok {
			return nil
		}
		for _, trp := range d.trps {
			if trp.PermissionID == id {
				return db.NewForeignKeyViolation("tenant_role_permissions_permission_id_fkey")
			}
		}
		delete(d.permissions, id)
		found = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func (r *catalogRepo) PermissionIDsFor(_ context.Context, resource, action string) ([]int64, error) {
	var out []int64
	r.s.read(func(d *tables) {
		for _, p := range d.permissions {
			if p.ActionID == nil || p.ResourceID == nil {
				continue
			}
			res, okRes := d.resources[*p.ResourceID]
			act, okAct := d.actions[*p.ActionID]
			if okRes && okAct && strings.EqualFold(res.Name, resource) && strings.EqualFold(act.Name, action) {
				out = append(out, p.ID)
			}
		}
	})
	slices.Sort(out)
	return out, nil
}
