package memstore

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
	"github.com/odyssey-erp/odyssey-iam/internal/tenants"
)

type tenantRepo struct {
	s    *Store
	inTx bool
}

var tenantSort = map[string]compareFunc[tenants.Tenant]{
	"id":          func(a, b tenants.Tenant) int { return cmp.Compare(a.ID, b.ID) },
	"name":        func(a, b tenants.Tenant) int { return strings.Compare(a.Name, b.Name) },
	"tenantKey":   func(a, b tenants.Tenant) int { return strings.Compare(a.TenantKey, b.TenantKey) },
	"tenantType":  func(a, b tenants.Tenant) int { return strings.Compare(string(a.TenantType), string(b.TenantType)) },
	"tenantStart": func(a, b tenants.Tenant) int { return compareTimePtr(a.TenantStart, b.TenantStart) },
	"tenantEnd":   func(a, b tenants.Tenant) int { return compareTimePtr(a.TenantEnd, b.TenantEnd) },
}

func cloneTenant(t tenants.Tenant) tenants.Tenant {
	t.ParentID = cloneID(t.ParentID)
	t.ClientID = cloneID(t.ClientID)
	t.TenantStart = cloneTime(t.TenantStart)
	t.TenantEnd = cloneTime(t.TenantEnd)
	return t
}

func (r *tenantRepo) WithTx(ctx context.Context, fn func(context.Context, tenants.Repository) error) error {
	return r.s.tx(ctx, r.inTx, func() error {
		return fn(ctx, &tenantRepo{s: r.s, inTx: true})
	})
}

// LockRoot is a no-op: transactions are already serialized.
func (r *tenantRepo) LockRoot(ctx context.Context) error {
	return ctx.Err()
}

func (r *tenantRepo) Get(_ context.Context, id int64) (tenants.Tenant, error) {
	var (
		t  tenants.Tenant
		ok bool
	)
	r.s.read(func(d *tables) { t, ok = d.tenants[id] })
	if !ok {
		return tenants.Tenant{}, shared.ErrNotFound
	}
	return cloneTenant(t), nil
}

func (r *tenantRepo) Exists(_ context.Context, id int64) (bool, error) {
	var ok bool
	r.s.read(func(d *tables) { _, ok = d.tenants[id] })
	return ok, nil
}

func (r *tenantRepo) FindRootID(context.Context) (int64, bool, error) {
	var (
		id    int64
		found bool
	)
	r.s.read(func(d *tables) {
		for _, t := range d.tenants {
			if t.TenantType == tenants.TypeRoot {
				id, found = t.ID, true
				return
			}
		}
	})
	return id, found, nil
}

func (r *tenantRepo) NameTaken(_ context.Context, name string, excludeID int64) (bool, error) {
	var taken bool
	r.s.read(func(d *tables) {
		for _, t := range d.tenants {
			if t.Name == name && t.ID != excludeID {
				taken = true
				return
			}
		}
	})
	return taken, nil
}

func (r *tenantRepo) List(_ context.Context, filters tenants.ListFilters) ([]tenants.Tenant, int, error) {
	var preds []func(tenants.Tenant) bool
	if filters.Search != "" {
		preds = append(preds, func(t tenants.Tenant) bool { return nameMatches(t.Name, filters.Search, filters.Exact) })
	}
	if filters.Type != "" {
		preds = append(preds, func(t tenants.Tenant) bool { return t.TenantType == filters.Type })
	}
	var rows []tenants.Tenant
	r.s.read(func(d *tables) {
		for _, t := range d.tenants {
			if matches(t, false, preds) {
				rows = append(rows, cloneTenant(t))
			}
		}
	})
	sortRows(rows, filters.PageRequest, tenantSort, "name", "id")
	return paginate(rows, filters.PageRequest), len(rows), nil
}

func checkTenant(d *tables, t *tenants.Tenant) error {
	for _, other := range d.tenants {
		if other.ID == t.ID {
			continue
		}
		if other.Name == t.Name {
			return db.NewUniqueViolation(tenants.ConstraintName)
		}
		if t.TenantType == tenants.TypeRoot && other.TenantType == tenants.TypeRoot {
			return db.NewUniqueViolation(tenants.ConstraintSingleRoot)
		}
	}
	if t.ParentID != nil {
		if _, ok := d.tenants[*t.ParentID]; !ok {
			return db.NewForeignKeyViolation("tenants_parent_id_fkey")
		}
	}
	if t.ClientID != nil {
		if _, ok := d.tenants[*t.ClientID]; !ok {
			return db.NewForeignKeyViolation("tenants_client_id_fkey")
		}
	}
	return nil
}

func (r *tenantRepo) Create(_ context.Context, t *tenants.Tenant) error {
	return r.s.write(func(d *tables) error {
		t.ID = 0
		if err := checkTenant(d, t); err != nil {
			return err
		}
		now := r.s.now()
		t.ID = r.s.next("tenants")
		t.CreatedAt, t.UpdatedAt = now, now
		d.tenants[t.ID] = cloneTenant(*t)
		return nil
	})
}

func (r *tenantRepo) Update(_ context.Context, t *tenants.Tenant) (bool, error) {
	var found bool
	err := r.s.write(func(d *tables) error {
		current, ok := d.tenants[t.ID]
		if !ok {
			return nil
		}
		found = true
		if err := checkTenant(d, t); err != nil {
			return err
		}
		t.CreatedAt, t.UpdatedAt = current.CreatedAt, r.s.now()
		d.tenants[t.ID] = cloneTenant(*t)
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func (r *tenantRepo) ChildIDs(_ context.Context, ids []int64) ([]int64, error) {
	var out []int64
	r.s.read(func(d *tables) {
		for _, t := range d.tenants {
			if slices.Contains(ids, t.ID) {
				continue
			}
			if (t.ParentID != nil && slices.Contains(ids, *t.ParentID)) || (t.ClientID != nil && slices.Contains(ids, *t.ClientID)) {
				out = append(out, t.ID)
			}
		}
	})
	return sortedIDs(out), nil
}

func (r *tenantRepo) DeleteTenants(_ context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var removed int64
	err := r.s.write(func(d *tables) error {
		for _, t := range d.tenants {
			if slices.Contains(ids, t.ID) {
				continue
			}
			if t.ParentID != nil && slices.Contains(ids, *t.ParentID) {
				return db.NewForeignKeyViolation("tenants_parent_id_fkey")
			}
			if t.ClientID != nil && slices.Contains(ids, *t.ClientID) {
				return db.NewForeignKeyViolation("tenants_client_id_fkey")
			}
		}
		for id, tr := range d.tenantRoles {
			if !slices.Contains(ids, tr.TenantID) {
				continue
			}
			for linkID, trp := range d.trps {
				if trp.TenantRoleID == id {
					delete(d.trps, linkID)
				}
			}
			for linkID, tru := range d.trus {
				if tru.TenantRoleID == id {
					delete(d.trus, linkID)
				}
			}
			delete(d.tenantRoles, id)
		}
		for id, at := range d.actives {
			if slices.Contains(ids, at.TenantID) {
				delete(d.actives, id)
			}
		}
		for _, id := range ids {
			if _, ok := d.tenants[id]; ok {
				delete(d.tenants, id)
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
