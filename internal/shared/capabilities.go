package shared

// Canonical catalog resources guarded by the engine's own endpoints.
const (
	ResourceUser                 = "User"
	ResourceRoles                = "Roles"
	ResourcePermission           = "Permission"
	ResourceResource             = "Resource"
	ResourceAction               = "Action"
	ResourceTenant               = "Tenant"
	ResourceTenantRole           = "Tenant Role"
	ResourceTenantRolePermission = "Tenant Role Permission"
	ResourceTenantRoleUser       = "Tenant Role User"
	ResourceThirdPartyPassword   = "Third Party Password"
	ResourceThirdPartyEmail      = "Third Party Email"
)

// Canonical catalog actions. ActionAll satisfies any other action.
const (
	ActionCreate = "Create"
	ActionRead   = "Read"
	ActionUpdate = "Update"
	ActionDelete = "Delete"
	ActionAll    = "All"
)

// SystemAdministratorRole bypasses permission checks.
const SystemAdministratorRole = "SYSTEM_ADMINISTRATOR"

// CanonicalResources lists the built-in resources in catalog order.
func CanonicalResources() []string {
	return []string{
		ResourceUser, ResourceRoles, ResourcePermission, ResourceResource, ResourceAction,
		ResourceTenant, ResourceTenantRole, ResourceTenantRolePermission, ResourceTenantRoleUser,
		ResourceThirdPartyPassword, ResourceThirdPartyEmail,
	}
}

// CanonicalActions lists the built-in actions in catalog order.
func CanonicalActions() []string {
	return []string{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionAll}
}
