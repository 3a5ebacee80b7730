package rbac

import "context"

// Store answers membership questions about the association tables.
type Store interface {
	HasRole(ctx context.Context, userID int64, roleNames []string, tenantID *int64) (bool, error)
	HasAnyPermission(ctx context.Context, userID int64, permissionIDs []int64, tenantID *int64) (bool, error)
	HasRolePermission(ctx context.Context, userID, permissionID, roleID, tenantID int64) (bool, error)
	GetRoleIDsForUserTenant(ctx context.Context, userID, tenantID int64) ([]int64, error)
}

// PermissionResolver maps a (resource, action) pair to a permission id.
type PermissionResolver interface {
	GetIDByResourceAndAction(ctx context.Context, resource, action string) (int64, bool, error)
}

// DecisionRecorder counts grant decisions.
type DecisionRecorder interface {
	ObserveGrantDecision(check, outcome string)
}

// Check names used for decision metrics.
const (
	checkRole       = "has_grant"
	checkAdmin      = "is_administrator"
	checkLinked     = "has_linked_grant"
	checkPermission = "has_permission"
	checkAuthorize  = "authorize"
)
