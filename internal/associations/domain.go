package associations

import (
	"time"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// TenantRole binds a role to a tenant.
type TenantRole struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenantId"`
	RoleID    int64     `json:"roleId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TenantRolePermission grants a permission to a tenant role.
type TenantRolePermission struct {
	ID           int64     `json:"id"`
	TenantRoleID int64     `json:"tenantRoleId"`
	PermissionID int64     `json:"permissionId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// TenantRoleUser places a user in a tenant role.
type TenantRoleUser struct {
	ID           int64     `json:"id"`
	TenantRoleID int64     `json:"tenantRoleId"`
	UserID       int64     `json:"userId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ActiveTenant records a user's membership of a tenant and whether it is the
// user's current working tenant.
type ActiveTenant struct {
	ID             int64     `json:"id"`
	TenantID       int64     `json:"tenantId"`
	UserID         int64     `json:"userId"`
	IsTenantActive bool      `json:"isTenantActive"`
	TenantName     string    `json:"tenantName,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// TenantRoleInput identifies a (tenant, role) pair.
type TenantRoleInput struct {
	TenantID int64 `json:"tenantId"`
	RoleID   int64 `json:"roleId"`
}

// TenantRolePermissionInput links a tenant role to a permission.
type TenantRolePermissionInput struct {
	TenantRoleID int64 `json:"tenantRoleId"`
	PermissionID int64 `json:"permissionId"`
}

// TenantRoleUserInput links a tenant role to a user.
type TenantRoleUserInput struct {
	TenantRoleID int64 `json:"tenantRoleId"`
	UserID       int64 `json:"userId"`
}

// ActiveTenantInput carries the mutable active tenant fields.
type ActiveTenantInput struct {
	TenantID       int64 `json:"tenantId"`
	UserID         int64 `json:"userId"`
	IsTenantActive bool  `json:"isTenantActive"`
}

// TenantRoleFilter narrows tenant role listings. Nil ids are ignored.
type TenantRoleFilter struct {
	shared.PageRequest
	TenantID *int64
	RoleID   *int64
	Or       bool
}

// TenantRolePermissionFilter narrows tenant role permission listings.
type TenantRolePermissionFilter struct {
	shared.PageRequest
	TenantRoleID *int64
	PermissionID *int64
	Or           bool
}

// TenantRoleUserFilter narrows tenant role user listings.
type TenantRoleUserFilter struct {
	shared.PageRequest
	TenantRoleID *int64
	UserID       *int64
	Or           bool
}

// ActiveTenantFilter narrows active tenant listings. TenantName matches by
// substring unless Exact is set.
type ActiveTenantFilter struct {
	shared.PageRequest
	UserID     *int64
	TenantID   *int64
	TenantName string
	Exact      bool
	Or         bool
}

// Unique constraint names declared by the schema.
const (
	ConstraintTenantRole           = "tenant_roles_tenant_role_key"
	ConstraintTenantRolePermission = "tenant_role_permissions_key"
	ConstraintTenantRoleUser       = "tenant_role_users_key"
	ConstraintActiveTenant         = "active_tenants_tenant_user_key"
	ConstraintSingleActive         = "active_tenants_single_active"
)
