package associations

import (
	"context"
	"errors"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// AssignPermission grants permissionID to the role bound to tenantID.
func (s *Service) AssignPermission(ctx context.Context, tenantID, roleID, permissionID int64) (TenantRolePermission, error) {
	var trp TenantRolePermission
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		tr, err := requireTenantRole(ctx, tx, tenantID, roleID)
		if err != nil {
			return err
		}
		trp, err = linkPermission(ctx, tx, tr, permissionID)
		return err
	})
	if err != nil {
		return TenantRolePermission{}, err
	}
	s.record(ctx, "tenant_role_permission.create", "tenant_role_permission", trp.ID, map[string]any{"tenant_role_id": trp.TenantRoleID, "permission_id": permissionID})
	return trp, nil
}

// CreateTenantRolePermission links a permission to a tenant role by id.
func (s *Service) CreateTenantRolePermission(ctx context.Context, in TenantRolePermissionInput) (TenantRolePermission, error) {
	var trp TenantRolePermission
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if in.TenantRoleID <= 0 {
			return shared.CodeTenantRoleFieldMandatory.New("tenantRoleId")
		}
		tr, err := tx.GetTenantRole(ctx, in.TenantRoleID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return shared.CodeTenantRoleNotFound.New(in.TenantRoleID)
			}
			return err
		}
		trp, err = linkPermission(ctx, tx, tr, in.PermissionID)
		return err
	})
	if err != nil {
		return TenantRolePermission{}, err
	}
	s.record(ctx, "tenant_role_permission.create", "tenant_role_permission", trp.ID, map[string]any{"tenant_role_id": trp.TenantRoleID, "permission_id": trp.PermissionID})
	return trp, nil
}

func linkPermission(ctx context.Context, tx Repository, tr TenantRole, permissionID int64) (TenantRolePermission, error) {
	if permissionID <= 0 {
		return TenantRolePermission{}, shared.CodeTenantRoleFieldMandatory.New("permissionId")
	}
	if ok, err := tx.PermissionExists(ctx, permissionID); err != nil {
		return TenantRolePermission{}, err
	} else if !ok {
		return TenantRolePermission{}, shared.CodePermissionNotFound.New(permissionID)
	}
	if _, found, err := tx.FindTenantRolePermission(ctx, tr.ID, permissionID); err != nil {
		return TenantRolePermission{}, err
	} else if found {
		return TenantRolePermission{}, shared.CodeTenantRolePermissionExists.New(tr.TenantID, tr.RoleID)
	}
	trp := TenantRolePermission{TenantRoleID: tr.ID, PermissionID: permissionID}
	if err := tx.CreateTenantRolePermission(ctx, &trp); err != nil {
		if c, dup := db.UniqueViolation(err); dup && c == ConstraintTenantRolePermission {
			return TenantRolePermission{}, shared.CodeTenantRolePermissionExists.Wrap(err, tr.TenantID, tr.RoleID)
		}
		return TenantRolePermission{}, err
	}
	return trp, nil
}

// UnassignPermission revokes permissionID from the role bound to tenantID.
func (s *Service) UnassignPermission(ctx context.Context, tenantID, roleID, permissionID int64) error {
	var removed int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		tr, err := requireTenantRole(ctx, tx, tenantID, roleID)
		if err != nil {
			return err
		}
		trp, found, err := tx.FindTenantRolePermission(ctx, tr.ID, permissionID)
		if err != nil {
			return err
		}
		if !found {
			return shared.CodeTenantRolePermissionUnlinked.New(permissionID)
		}
		removed = trp.ID
		_, err = tx.DeleteTenantRolePermission(ctx, trp.ID)
		return err
	})
	if err != nil {
		return err
	}
	s.record(ctx, "tenant_role_permission.delete", "tenant_role_permission", removed, map[string]any{"permission_id": permissionID})
	return nil
}

// DeleteTenantRolePermission removes the link with id.
func (s *Service) DeleteTenantRolePermission(ctx context.Context, id int64) error {
	ok, err := s.repo.DeleteTenantRolePermission(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return shared.CodeTenantRolePermissionNotFound.New(id)
	}
	s.record(ctx, "tenant_role_permission.delete", "tenant_role_permission", id, nil)
	return nil
}

// GetTenantRolePermission returns the link or TR16.
func (s *Service) GetTenantRolePermission(ctx context.Context, id int64) (TenantRolePermission, error) {
	trp, err := s.repo.GetTenantRolePermission(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return TenantRolePermission{}, shared.CodeTenantRolePermissionNotFound.New(id)
	}
	return trp, err
}

// ListTenantRolePermissions returns one page of permission links.
func (s *Service) ListTenantRolePermissions(ctx context.Context, filter TenantRolePermissionFilter) (shared.Page[TenantRolePermission], error) {
	filter.PageRequest = filter.Normalize()
	rows, total, err := s.repo.ListTenantRolePermissions(ctx, filter)
	if err != nil {
		return shared.Page[TenantRolePermission]{}, err
	}
	return shared.NewPage(rows, filter.PageRequest, total), nil
}

// ListPermissionIDs returns the permissions granted to the role in tenantID.
func (s *Service) ListPermissionIDs(ctx context.Context, tenantID, roleID int64) ([]int64, error) {
	tr, err := requireTenantRole(ctx, s.repo, tenantID, roleID)
	if err != nil {
		return nil, err
	}
	ids, err := s.repo.PermissionIDs(ctx, tr.ID)
	if ids == nil && err == nil {
		ids = []int64{}
	}
	return ids, err
}

// AssignUser places userID in the role bound to tenantID.
func (s *Service) AssignUser(ctx context.Context, tenantID, roleID, userID int64) (TenantRoleUser, error) {
	var tru TenantRoleUser
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		tr, err := requireTenantRole(ctx, tx, tenantID, roleID)
		if err != nil {
			return err
		}
		tru, err = linkUser(ctx, tx, tr, userID)
		return err
	})
	if err != nil {
		return TenantRoleUser{}, err
	}
	s.record(ctx, "tenant_role_user.create", "tenant_role_user", tru.ID, map[string]any{"tenant_role_id": tru.TenantRoleID, "user_id": userID})
	return tru, nil
}

// CreateTenantRoleUser links a user to a tenant role by id.
func (s *Service) CreateTenantRoleUser(ctx context.Context, in TenantRoleUserInput) (TenantRoleUser, error) {
	var tru TenantRoleUser
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if in.TenantRoleID <= 0 {
			return shared.CodeTenantRoleFieldMandatory.New("tenantRoleId")
		}
		tr, err := tx.GetTenantRole(ctx, in.TenantRoleID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return shared.CodeTenantRoleNotFound.New(in.TenantRoleID)
			}
			return err
		}
		tru, err = linkUser(ctx, tx, tr, in.UserID)
		return err
	})
	if err != nil {
		return TenantRoleUser{}, err
	}
	s.record(ctx, "tenant_role_user.create", "tenant_role_user", tru.ID, map[string]any{"tenant_role_id": tru.TenantRoleID, "user_id": tru.UserID})
	return tru, nil
}

// linkUser inserts the membership and makes sure the user has an
// active tenant row for the tenant, leaving an existing row untouched.
func linkUser(ctx context.Context, tx Repository, tr TenantRole, userID int64) (TenantRoleUser, error) {
	if userID <= 0 {
		return TenantRoleUser{}, shared.CodeTenantRoleFieldMandatory.New("userId")
	}
	if _, found, err := tx.FindTenantRoleUser(ctx, tr.ID, userID); err != nil {
		return TenantRoleUser{}, err
	} else if found {
		return TenantRoleUser{}, shared.CodeTenantRoleUserExists.New(tr.TenantID, tr.RoleID)
	}
	tru := TenantRoleUser{TenantRoleID: tr.ID, UserID: userID}
	if err := tx.CreateTenantRoleUser(ctx, &tru); err != nil {
		if c, dup := db.UniqueViolation(err); dup && c == ConstraintTenantRoleUser {
			return TenantRoleUser{}, shared.CodeTenantRoleUserExists.Wrap(err, tr.TenantID, tr.RoleID)
		}
		return TenantRoleUser{}, err
	}
	if _, err := tx.EnsureActiveTenant(ctx, tr.TenantID, userID); err != nil {
		return TenantRoleUser{}, err
	}
	return tru, nil
}

// UnassignUser removes userID from the given roles of tenantID, or from every
// role of the tenant when roleIDs is empty.
func (s *Service) UnassignUser(ctx context.Context, tenantID int64, roleIDs []int64, userID int64) error {
	var removed int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		var tenantRoleIDs []int64
		if len(roleIDs) == 0 {
			ids, err := tx.TenantRoleIDs(ctx, tenantID)
			if err != nil {
				return err
			}
			tenantRoleIDs = ids
		} else {
			for _, roleID := range roleIDs {
				tr, found, err := tx.FindTenantRole(ctx, tenantID, roleID)
				if err != nil {
					return err
				}
				if found {
					tenantRoleIDs = append(tenantRoleIDs, tr.ID)
				}
			}
		}
		for _, trID := range tenantRoleIDs {
			tru, found, err := tx.FindTenantRoleUser(ctx, trID, userID)
			if err != nil {
				return err
			}
			if !found {
				continue
			}
			if _, err := tx.DeleteTenantRoleUser(ctx, tru.ID); err != nil {
				return err
			}
			removed++
		}
		if removed == 0 {
			return shared.CodeTenantRoleUserAssociationsEmpty.New(tenantID, roleIDs, userID)
		}
		return dropMembershipIfLast(ctx, tx, tenantID, userID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, "tenant_role_user.delete", "tenant", tenantID, map[string]any{"user_id": userID, "removed": removed})
	return nil
}

// DeleteTenantRoleUser removes the membership with id.
func (s *Service) DeleteTenantRoleUser(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		tru, err := tx.GetTenantRoleUser(ctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return shared.CodeTenantRoleUserNotFound.New(id)
			}
			return err
		}
		tr, err := tx.GetTenantRole(ctx, tru.TenantRoleID)
		if err != nil {
			return err
		}
		if _, err := tx.DeleteTenantRoleUser(ctx, id); err != nil {
			return err
		}
		return dropMembershipIfLast(ctx, tx, tr.TenantID, tru.UserID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, "tenant_role_user.delete", "tenant_role_user", id, nil)
	return nil
}

func dropMembershipIfLast(ctx context.Context, tx Repository, tenantID, userID int64) error {
	left, err := tx.CountUserMemberships(ctx, tenantID, userID)
	if err != nil || left > 0 {
		return err
	}
	_, err = tx.DeleteActiveTenants(ctx, &tenantID, &userID)
	return err
}

// GetTenantRoleUser returns the membership or TR17.
func (s *Service) GetTenantRoleUser(ctx context.Context, id int64) (TenantRoleUser, error) {
	tru, err := s.repo.GetTenantRoleUser(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return TenantRoleUser{}, shared.CodeTenantRoleUserNotFound.New(id)
	}
	return tru, err
}

// ListTenantRoleUsers returns one page of memberships.
func (s *Service) ListTenantRoleUsers(ctx context.Context, filter TenantRoleUserFilter) (shared.Page[TenantRoleUser], error) {
	filter.PageRequest = filter.Normalize()
	rows, total, err := s.repo.ListTenantRoleUsers(ctx, filter)
	if err != nil {
		return shared.Page[TenantRoleUser]{}, err
	}
	return shared.NewPage(rows, filter.PageRequest, total), nil
}

// ExistsTenantRoleUser reports whether userID belongs to the tenant role.
func (s *Service) ExistsTenantRoleUser(ctx context.Context, tenantRoleID, userID int64) (bool, error) {
	_, found, err := s.repo.FindTenantRoleUser(ctx, tenantRoleID, userID)
	return found, err
}

// IsMember reports whether userID holds any role within tenantID.
func (s *Service) IsMember(ctx context.Context, tenantID, userID int64) (bool, error) {
	n, err := s.repo.CountUserMemberships(ctx, tenantID, userID)
	return n > 0, err
}
