package associations

import "context"

// HasRole reports whether userID holds any of roleNames. A nil tenantID
// matches every tenant.
func (s *Service) HasRole(ctx context.Context, userID int64, roleNames []string, tenantID *int64) (bool, error) {
	if len(roleNames) == 0 {
		return false, nil
	}
	return s.repo.HasRole(ctx, userID, roleNames, tenantID)
}

// HasAnyPermission reports whether userID holds one of permissionIDs through
// any role. A nil tenantID matches every tenant.
func (s *Service) HasAnyPermission(ctx context.Context, userID int64, permissionIDs []int64, tenantID *int64) (bool, error) {
	if len(permissionIDs) == 0 {
		return false, nil
	}
	return s.repo.HasAnyPermission(ctx, userID, permissionIDs, tenantID)
}

// HasRolePermission reports whether the permission reaches userID through
// exactly roleID within tenantID.
func (s *Service) HasRolePermission(ctx context.Context, userID, permissionID, roleID, tenantID int64) (bool, error) {
	return s.repo.HasRolePermission(ctx, userID, permissionID, roleID, tenantID)
}
