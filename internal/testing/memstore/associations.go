package memstore

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/odyssey-erp/odyssey-iam/internal/associations"
	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

type associationRepo struct {
	s    *Store
	inTx bool
}

func (r *associationRepo) WithTx(ctx context.Context, fn func(context.Context, associations.Repository) error) error {
	return r.s.tx(ctx, r.inTx, func() error {
		return fn(ctx, &associationRepo{s: r.s, inTx: true})
	})
}

// LockUser is a no-op: transactions are already serialized.
func (r *associationRepo) LockUser(ctx context.Context, _ int64) error {
	return ctx.Err()
}

func (r *associationRepo) TenantExists(_ context.Context, id int64) (bool, error) {
	var ok bool
	r.s.read(func(d *tables) { _, ok = d.tenants[id] })
	return ok, nil
}

func (r *associationRepo) RoleExists(_ context.Context, id int64) (bool, error) {
	var ok bool
	r.s.read(func(d *tables) { _, ok = d.roles[id] })
	return ok, nil
}

func (r *associationRepo) PermissionExists(_ context.Context, id int64) (bool, error) {
	var ok bool
	r.s.read(func(d *tables) { _, ok = d.permissions[id] })
	return ok, nil
}

type idFilter[T any] struct {
	want *int64
	got  func(T) int64
}

// idPredicates turns the non-nil filter ids into predicates over a row.
func idPredicates[T any](filters ...idFilter[T]) []func(T) bool {
	var preds []func(T) bool
	for _, f := range filters {
		if f.want == nil {
			continue
		}
		want, got := *f.want, f.got
		preds = append(preds, func(row T) bool { return got(row) == want })
	}
	return preds
}

// Tenant roles.

var tenantRoleSort = map[string]compareFunc[associations.TenantRole]{
	"id":       func(a, b associations.TenantRole) int { return cmp.Compare(a.ID, b.ID) },
	"tenantId": func(a, b associations.TenantRole) int { return cmp.Compare(a.TenantID, b.TenantID) },
	"roleId":   func(a, b associations.TenantRole) int { return cmp.Compare(a.RoleID, b.RoleID) },
}

func (r *associationRepo) GetTenantRole(_ context.Context, id int64) (associations.TenantRole, error) {
	var (
		tr associations.TenantRole
		ok bool
	)
	r.s.read(func(d *tables) { tr, ok = d.tenantRoles[id] })
	if !ok {
		return associations.TenantRole{}, shared.ErrNotFound
	}
	return tr, nil
}

func (r *associationRepo) FindTenantRole(_ context.Context, tenantID, roleID int64) (associations.TenantRole, bool, error) {
	var (
		tr    associations.TenantRole
		found bool
	)
	r.s.read(func(d *tables) {
		for _, row := range d.tenantRoles {
			if row.TenantID == tenantID && row.RoleID == roleID {
				tr, found = row, true
				return
			}
		}
	})
	return tr, found, nil
}

func (r *associationRepo) ListTenantRoles(_ context.Context, filter associations.TenantRoleFilter) ([]associations.TenantRole, int, error) {
	preds := idPredicates(
		idFilter[associations.TenantRole]{filter.TenantID, func(tr associations.TenantRole) int64 { return tr.TenantID }},
		idFilter[associations.TenantRole]{filter.RoleID, func(tr associations.TenantRole) int64 { return tr.RoleID }},
	)
	var rows []associations.TenantRole
	r.s.read(func(d *tables) {
		for _, tr := range d.tenantRoles {
			if matches(tr, filter.Or, preds) {
				rows = append(rows, tr)
			}
		}
	})
	sortRows(rows, filter.PageRequest, tenantRoleSort, "id", "id")
	return paginate(rows, filter.PageRequest), len(rows), nil
}

func (r *associationRepo) TenantRoleIDs(_ context.Context, tenantID int64) ([]int64, error) {
	var out []int64
	r.s.read(func(d *tables) {
		for _, tr := range d.tenantRoles {
			if tr.TenantID == tenantID {
				out = append(out, tr.ID)
			}
		}
	})
	return sortedIDs(out), nil
}

func (r *associationRepo) CountTenantRoles(context.Context) (int, error) {
	var n int
	r.s.read(func(d *tables) { n = len(d.tenantRoles) })
	return n, nil
}

func checkTenantRole(d *tables, tr *associations.TenantRole) error {
	if _, ok := d.tenants[tr.TenantID]; !ok {
		return db.NewForeignKeyViolation("tenant_roles_tenant_id_fkey")
	}
	if _, ok := d.roles[tr.RoleID]; !ok {
		return db.NewForeignKeyViolation("tenant_roles_role_id_fkey")
	}
	for _, row := range d.tenantRoles {
		if row.ID != tr.ID && row.TenantID == tr.TenantID && row.RoleID == tr.RoleID {
			return db.NewUniqueViolation(associations.ConstraintTenantRole)
		}
	}
	return nil
}

func (r *associationRepo) CreateTenantRole(_ context.Context, tr *associations.TenantRole) error {
	return r.s.write(func(d *tables) error {
		tr.ID = 0
		if err := checkTenantRole(d, tr); err != nil {
			return err
		}
		now := r.s.now()
		tr.ID = r.s.next("tenant_roles")
		tr.CreatedAt, tr.UpdatedAt = now, now
		d.tenantRoles[tr.ID] = *tr
		return nil
	})
}

func (r *associationRepo) UpdateTenantRole(_ context.Context, tr *associations.TenantRole) (bool, error) {
	var found bool
	err := r.s.write(func(d *tables) error {
		current, ok := d.tenantRoles[tr.ID]
		if !ok {
			return nil
		}
		found = true
		if err := checkTenantRole(d, tr); err != nil {
			return err
		}
		tr.CreatedAt, tr.UpdatedAt = current.CreatedAt, r.s.now()
		d.tenantRoles[tr.ID] = *tr
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func (r *associationRepo) DeleteTenantRole(_ context.Context, id int64) (bool, error) {
	var found bool
	err := r.s.write(func(d *tables) error {
		if _, ok := d.tenantRoles[id]; !ok {
			return nil
		}
		for _, trp := range d.trps {
			if trp.TenantRoleID == id {
				return db.NewForeignKeyViolation("tenant_role_permissions_tenant_role_id_fkey")
			}
		}
		for _, tru := range d.trus {
			if tru.TenantRoleID == id {
				return db.NewForeignKeyViolation("tenant_role_users_tenant_role_id_fkey")
			}
		}
		delete(d.tenantRoles, id)
		found = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func (r *associationRepo) CountTenantRolePermissions(_ context.Context, tenantRoleID int64) (int, error) {
	var n int
	r.s.read(func(d *tables) {
		for _, trp := range d.trps {
			if trp.TenantRoleID == tenantRoleID {
				n++
			}
		}
	})
	return n, nil
}

func (r *associationRepo) CountTenantRoleUsers(_ context.Context, tenantRoleID int64) (int, error) {
	var n int
	r.s.read(func(d *tables) {
		for _, tru := range d.trus {
			if tru.TenantRoleID == tenantRoleID {
				n++
			}
		}
	})
	return n, nil
}

func (r *associationRepo) RoleIDsForUserTenant(_ context.Context, userID, tenantID int64) ([]int64, error) {
	seen := map[int64]bool{}
	var out []int64
	r.s.read(func(d *tables) {
		for _, tru := range d.trus {
			if tru.UserID != userID {
				continue
			}
			tr, ok := d.tenantRoles[tru.TenantRoleID]
			if ok && tr.TenantID == tenantID && !seen[tr.RoleID] {
				seen[tr.RoleID] = true
				out = append(out, tr.RoleID)
			}
		}
	})
	return sortedIDs(out), nil
}

// Tenant role permissions.

var tenantRolePermissionSort = map[string]compareFunc[associations.TenantRolePermission]{
	"id":           func(a, b associations.TenantRolePermission) int { return cmp.Compare(a.ID, b.ID) },
	"tenantRoleId": func(a, b associations.TenantRolePermission) int { return cmp.Compare(a.TenantRoleID, b.TenantRoleID) },
	"permissionId": func(a, b associations.TenantRolePermission) int { return cmp.Compare(a.PermissionID, b.PermissionID) },
}

func (r *associationRepo) GetTenantRolePermission(_ context.Context, id int64) (associations.TenantRolePermission, error) {
	var (
		trp associations.TenantRolePermission
		ok  bool
	)
	r.s.read(func(d *tables) { trp, ok = d.trps[id] })
	if !ok {
		return associations.TenantRolePermission{}, shared.ErrNotFound
	}
	return trp, nil
}

func (r *associationRepo) FindTenantRolePermission(_ context.Context, tenantRoleID, permissionID int64) (associations.TenantRolePermission, bool, error) {
	var (
		trp   associations.TenantRolePermission
		found bool
	)
	r.s.read(func(d *tables) {
		for _, row := range d.trps {
			if row.TenantRoleID == tenantRoleID && row.PermissionID == permissionID {
				trp, found = row, true
				return
			}
		}
	})
	return trp, found, nil
}

func (r *associationRepo) ListTenantRolePermissions(_ context.Context, filter associations.TenantRolePermissionFilter) ([]associations.TenantRolePermission, int, error) {
	preds := idPredicates(
		idFilter[associations.TenantRolePermission]{filter.TenantRoleID, func(trp associations.TenantRolePermission) int64 { return trp.TenantRoleID }},
		idFilter[associations.TenantRolePermission]{filter.PermissionID, func(trp associations.TenantRolePermission) int64 { return trp.PermissionID }},
	)
	var rows []associations.TenantRolePermission
	r.s.read(func(d *tables) {
		for _, trp := range d.trps {
			if matches(trp, filter.Or, preds) {
				rows = append(rows, trp)
			}
		}
	})
	sortRows(rows, filter.PageRequest, tenantRolePermissionSort, "id", "id")
	return paginate(rows, filter.PageRequest), len(rows), nil
}

func (r *associationRepo) CreateTenantRolePermission(_ context.Context, trp *associations.TenantRolePermission) error {
	return r.s.write(func(d *tables) error {
		if _, ok := d.tenantRoles[trp.TenantRoleID]; !ok {
			return db.NewForeignKeyViolation("tenant_role_permissions_tenant_role_id_fkey")
		}
		if _, ok := d.permissions[trp.PermissionID]; !ok {
			return db.NewForeignKeyViolation("tenant_role_permissions_permission_id_fkey")
		}
		for _, row := range d.trps {
			if row.TenantRoleID == trp.TenantRoleID && row.PermissionID == trp.PermissionID {
				return db.NewUniqueViolation(associations.ConstraintTenantRolePermission)
			}
		}
		trp.ID = r.s.next("tenant_role_permissions")
		trp.CreatedAt = r.s.now()
		d.trps[trp.ID] = *trp
		return nil
	})
}

func (r *associationRepo) DeleteTenantRolePermission(_ context.Context, id int64) (bool, error) {
	var found bool
	_ = r.s.write(func(d *tables) error {
		_, found = d.trps[id]
		delete(d.trps, id)
		return nil
	})
	return found, nil
}

func (r *associationRepo) PermissionIDs(_ context.Context, tenantRoleID int64) ([]int64, error) {
	var out []int64
	r.s.read(func(d *tables) {
		for _, trp := range d.trps {
			if trp.TenantRoleID == tenantRoleID {
				out = append(out, trp.PermissionID)
			}
		}
	})
	return sortedIDs(out), nil
}

// Tenant role users.

var tenantRoleUserSort = map[string]compareFunc[associations.TenantRoleUser]{
	"id":           func(a, b associations.TenantRoleUser) int { return cmp.Compare(a.ID, b.ID) },
	"tenantRoleId": func(a, b associations.TenantRoleUser) int { return cmp.Compare(a.TenantRoleID, b.TenantRoleID) },
	"userId":       func(a, b associations.TenantRoleUser) int { return cmp.Compare(a.UserID, b.UserID) },
}

func (r *associationRepo) GetTenantRoleUser(_ context.Context, id int64) (associations.TenantRoleUser, error) {
	var (
		tru associations.TenantRoleUser
		ok  bool
	)
	r.s.read(func(d *tables) { tru, ok = d.trus[id] })
	if !ok {
		return associations.TenantRoleUser{}, shared.ErrNotFound
	}
	return tru, nil
}

func (r *associationRepo) FindTenantRoleUser(_ context.Context, tenantRoleID, userID int64) (associations.TenantRoleUser, bool, error) {
	var (
		tru   associations.TenantRoleUser
		found bool
	)
	r.s.read(func(d *tables) {
		for _, row := range d.trus {
			if row.TenantRoleID == tenantRoleID && row.UserID == userID {
				tru, found = row, true
				return
			}
		}
	})
	return tru, found, nil
}

func (r *associationRepo) ListTenantRoleUsers(_ context.Context, filter associations.TenantRoleUserFilter) ([]associations.TenantRoleUser, int, error) {
	preds := idPredicates(
		idFilter[associations.TenantRoleUser]{filter.TenantRoleID, func(tru associations.TenantRoleUser) int64 { return tru.TenantRoleID }},
		idFilter[associations.TenantRoleUser]{filter.UserID, func(tru associations.TenantRoleUser) int64 { return tru.UserID }},
	)
	var rows []associations.TenantRoleUser
	r.s.read(func(d *tables) {
		for _, tru := range d.trus {
			if matches(tru, filter.Or, preds) {
				rows = append(rows, tru)
			}
		}
	})
	sortRows(rows, filter.PageRequest, tenantRoleUserSort, "id", "id")
	return paginate(rows, filter.PageRequest), len(rows), nil
}

func (r *associationRepo) CreateTenantRoleUser(_ context.Context, tru *associations.TenantRoleUser) error {
	return r.s.write(func(d *tables) error {
		if _, ok := d.tenantRoles[tru.TenantRoleID]; !ok {
			return db.NewForeignKeyViolation("tenant_role_users_tenant_role_id_fkey")
		}
		for _, row := range d.trus {
			if row.TenantRoleID == tru.TenantRoleID && row.UserID == tru.UserID {
				return db.NewUniqueViolation(associations.ConstraintTenantRoleUser)
			}
		}
		tru.ID = r.s.next("tenant_role_users")
		tru.CreatedAt = r.s.now()
		d.trus[tru.ID] = *tru
		return nil
	})
}

func (r *associationRepo) DeleteTenantRoleUser(_ context.Context, id int64) (bool, error) {
	var found bool
	_ = r.s.write(func(d *tables) error {
		_, found = d.trus[id]
		delete(d.trus, id)
		return nil
	})
	return found, nil
}

func (r *associationRepo) CountUserMemberships(_ context.Context, tenantID, userID int64) (int, error) {
	var n int
	r.s.read(func(d *tables) {
		for _, tru := range d.trus {
			if tru.UserID != userID {
				continue
			}
			if tr, ok := d.tenantRoles[tru.TenantRoleID]; ok && tr.TenantID == tenantID {
				n++
			}
		}
	})
	return n, nil
}

// Active tenants.

var activeTenantSort = map[string]compareFunc[associations.ActiveTenant]{
	"id":             func(a, b associations.ActiveTenant) int { return cmp.Compare(a.ID, b.ID) },
	"tenantId":       func(a, b associations.ActiveTenant) int { return cmp.Compare(a.TenantID, b.TenantID) },
	"userId":         func(a, b associations.ActiveTenant) int { return cmp.Compare(a.UserID, b.UserID) },
	"isTenantActive": func(a, b associations.ActiveTenant) int { return compareBool(a.IsTenantActive, b.IsTenantActive) },
	"tenantName":     func(a, b associations.ActiveTenant) int { return strings.Compare(a.TenantName, b.TenantName) },
}

// joined fills TenantName the way the LEFT JOIN on tenants does.
func joined(d *tables, at associations.ActiveTenant) associations.ActiveTenant {
	at.TenantName = ""
	if t, ok := d.tenants[at.TenantID]; ok {
		at.TenantName = t.Name
	}
	return at
}

func (r *associationRepo) GetActiveTenant(_ context.Context, id int64) (associations.ActiveTenant, error) {
	var (
		at associations.ActiveTenant
		ok bool
	)
	r.s.read(func(d *tables) {
		if at, ok = d.actives[id]; ok {
			at = joined(d, at)
		}
	})
	if !ok {
		return associations.ActiveTenant{}, shared.ErrNotFound
	}
	return at, nil
}

func (r *associationRepo) FindActiveTenant(_ context.Context, tenantID, userID int64) (associations.ActiveTenant, bool, error) {
	var (
		at    associations.ActiveTenant
		found bool
	)
	r.s.read(func(d *tables) {
		for _, row := range d.actives {
			if row.TenantID == tenantID && row.UserID == userID {
				at, found = joined(d, row), true
				return
			}
		}
	})
	return at, found, nil
}

func (r *associationRepo) CurrentActiveTenant(_ context.Context, userID int64) (associations.ActiveTenant, bool, error) {
	var (
		at    associations.ActiveTenant
		found bool
	)
	r.s.read(func(d *tables) {
		for _, row := range d.actives {
			if row.UserID != userID || !row.IsTenantActive {
				continue
			}
			if !found || row.UpdatedAt.After(at.UpdatedAt) {
				at, found = joined(d, row), true
			}
		}
	})
	return at, found, nil
}

func (r *associationRepo) ListActiveTenants(_ context.Context, filter associations.ActiveTenantFilter) ([]associations.ActiveTenant, int, error) {
	preds := idPredicates(
		idFilter[associations.ActiveTenant]{filter.UserID, func(at associations.ActiveTenant) int64 { return at.UserID }},
		idFilter[associations.ActiveTenant]{filter.TenantID, func(at associations.ActiveTenant) int64 { return at.TenantID }},
	)
	if filter.TenantName != "" {
		preds = append(preds, func(at associations.ActiveTenant) bool {
			return at.TenantName != "" && nameMatches(at.TenantName, filter.TenantName, filter.Exact)
		})
	}
	var rows []associations.ActiveTenant
	r.s.read(func(d *tables) {
		for _, row := range d.actives {
			at := joined(d, row)
			if matches(at, filter.Or, preds) {
				rows = append(rows, at)
			}
		}
	})
	sortRows(rows, filter.PageRequest, activeTenantSort, "id", "id")
	return paginate(rows, filter.PageRequest), len(rows), nil
}

func checkActiveTenant(d *tables, at *associations.ActiveTenant) error {
	if _, ok := d.tenants[at.TenantID]; !ok {
		return db.NewForeignKeyViolation("active_tenants_tenant_id_fkey")
	}
	for _, row := range d.actives {
		if row.ID == at.ID {
			continue
		}
		if row.TenantID == at.TenantID && row.UserID == at.UserID {
			return db.NewUniqueViolation(associations.ConstraintActiveTenant)
		}
		if at.IsTenantActive && row.IsTenantActive && row.UserID == at.UserID {
			return db.NewUniqueViolation(associations.ConstraintSingleActive)
		}
	}
	return nil
}

func (r *associationRepo) CreateActiveTenant(_ context.Context, at *associations.ActiveTenant) error {
	return r.s.write(func(d *tables) error {
		at.ID = 0
		if err := checkActiveTenant(d, at); err != nil {
			return err
		}
		now := r.s.now()
		at.ID = r.s.next("active_tenants")
		at.CreatedAt, at.UpdatedAt = now, now
		stored := *at
		stored.TenantName = ""
		d.actives[at.ID] = stored
		return nil
	})
}

func (r *associationRepo) UpdateActiveTenant(_ context.Context, at *associations.ActiveTenant) (bool, error) {
	var found bool
	err := r.s.write(func(d *tables) error {
		current, ok := d.actives[at.ID]
		if !ok {
			return nil
		}
		found = true
		if err := checkActiveTenant(d, at); err != nil {
			return err
		}
		at.CreatedAt, at.UpdatedAt = current.CreatedAt, r.s.now()
		stored := *at
		stored.TenantName = ""
		d.actives[at.ID] = stored
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func (r *associationRepo) DeleteActiveTenant(_ context.Context, id int64) (bool, error) {
	var found bool
	_ = r.s.write(func(d *tables) error {
		_, found = d.actives[id]
		delete(d.actives, id)
		return nil
	})
	return found, nil
}

func (r *associationRepo) DeleteActiveTenants(_ context.Context, tenantID, userID *int64) (int64, error) {
	if tenantID == nil && userID == nil {
		return 0, errors.New("associations: refusing unfiltered active tenant delete")
	}
	preds := idPredicates(
		idFilter[associations.ActiveTenant]{tenantID, func(at associations.ActiveTenant) int64 { return at.TenantID }},
		idFilter[associations.ActiveTenant]{userID, func(at associations.ActiveTenant) int64 { return at.UserID }},
	)
	var removed int64
	_ = r.s.write(func(d *tables) error {
		for id, at := range d.actives {
			if matches(at, false, preds) {
				delete(d.actives, id)
				removed++
			}
		}
		return nil
	})
	return removed, nil
}

func (r *associationRepo) DeactivateUser(_ context.Context, userID int64, exceptTenantID int64) error {
	return r.s.write(func(d *tables) error {
		now := r.s.now()
		for id, at := range d.actives {
			if at.UserID == userID && at.TenantID != exceptTenantID && at.IsTenantActive {
				at.IsTenantActive = false
				at.UpdatedAt = now
				d.actives[id] = at
			}
		}
		return nil
	})
}

func (r *associationRepo) EnsureActiveTenant(_ context.Context, tenantID, userID int64) (bool, error) {
	var inserted bool
	err := r.s.write(func(d *tables) error {
		for _, row := range d.actives {
			if row.TenantID == tenantID && row.UserID == userID {
				return nil
			}
		}
		if _, ok := d.tenants[tenantID]; !ok {
			return db.NewForeignKeyViolation("active_tenants_tenant_id_fkey")
		}
		now := r.s.now()
		id := r.s.next("active_tenants")
		d.actives[id] = associations.ActiveTenant{ID: id, TenantID: tenantID, UserID: userID, CreatedAt: now, UpdatedAt: now}
		inserted = true
		return nil
	})
	return inserted, err
}

// Grants.

// userTenantRoles yields the tenant roles userID belongs to, restricted to
// tenantID unless it is nil.
func userTenantRoles(d *tables, userID int64, tenantID *int64) []associations.TenantRole {
	var out []associations.TenantRole
	for _, tru := range d.trus {
		if tru.UserID != userID {
			continue
		}
		tr, ok := d.tenantRoles[tru.TenantRoleID]
		if !ok || (tenantID != nil && tr.TenantID != *tenantID) {
			continue
		}
		out = append(out, tr)
	}
	return out
}

func (r *associationRepo) HasRole(_ context.Context, userID int64, roleNames []string, tenantID *int64) (bool, error) {
	var ok bool
	r.s.read(func(d *tables) {
		for _, tr := range userTenantRoles(d, userID, tenantID) {
			if role, found := d.roles[tr.RoleID]; found && slices.Contains(roleNames, role.Name) {
				ok = true
				return
			}
		}
	})
	return ok, nil
}

func (r *associationRepo) HasAnyPermission(_ context.Context, userID int64, permissionIDs []int64, tenantID *int64) (bool, error) {
	var ok bool
	r.s.read(func(d *tables) {
		for _, tr := range userTenantRoles(d, userID, tenantID) {
			for _, trp := range d.trps {
				if trp.TenantRoleID == tr.ID && slices.Contains(permissionIDs, trp.PermissionID) {
					ok = true
					return
				}
			}
		}
	})
	return ok, nil
}

func (r *associationRepo) HasRolePermission(_ context.Context, userID, permissionID, roleID, tenantID int64) (bool, error) {
	var ok bool
	r.s.read(func(d *tables) {
		for _, tr := range userTenantRoles(d, userID, &tenantID) {
			if tr.RoleID != roleID {
				continue
			}
			for _, trp := range d.trps {
				if trp.TenantRoleID == tr.ID && trp.PermissionID == permissionID {
					ok = true
					return
				}
			}
		}
	})
	return ok, nil
}
