package shared

import "fmt"

// ErrorCode is a message template with a stable code.
type ErrorCode struct {
	Code     string
	Key      string
	Template string
	Kind     error
}

// New renders the template with args.
func (c ErrorCode) New(args ...any) *Error {
	return c.Wrap(nil, args...)
}

// Wrap renders the template and keeps cause in the chain.
func (c ErrorCode) Wrap(cause error, args ...any) *Error {
	msg := c.Template
	if len(args) > 0 {
		msg = fmt.Sprintf(c.Template, args...)
	}
	return &Error{Kind: c.Kind, Code: c.Code, Key: c.Key, Message: msg, Cause: cause}
}

// Tenant rules.
var (
	CodeTenantFieldNotInformed  = ErrorCode{"T1", "TENANT_FIELD_NOT_INFORMED", "Tenant %s was not informed.", ErrValidation}
	CodeTenantParentNotInformed = ErrorCode{"T2", "TENANT_PARENT_NOT_INFORMED", "Parent information not informed.", ErrValidation}
	CodeTenantClientNotInformed = ErrorCode{"T3", "TENANT_CLIENT_NOT_INFORMED", "Client information not informed.", ErrValidation}
	CodeTenantParentNotFound    = ErrorCode{"T4", "TENANT_PARENT_NOT_FOUND", "Parent registry not found.", ErrValidation}
	CodeTenantClientNotFound    = ErrorCode{"T5", "TENANT_CLIENT_NOT_FOUND", "Client registry not found.", ErrValidation}
	CodeTenantParentTypeInvalid = ErrorCode{"T6", "TENANT_PARENT_TYPE_IS_INVALID", "Parent type is invalid.", ErrValidation}
	CodeTenantEndDateInvalid    = ErrorCode{"T7", "TENANT_END_DATE_IS_INVALID", "End date is invalid.", ErrValidation}
	CodeTenantRootAlreadyExists = ErrorCode{"T8", "TENANT_ROOT_ALREADY_INSERTED", "There must be only one Root Tenant.", ErrValidation}
	CodeTenantRootWithParent    = ErrorCode{"T9", "TENANT_ROOT_WITH_PARENT", "Tenant root cannot have parent associated.", ErrValidation}
	CodeTenantRootWithClient    = ErrorCode{"T10", "TENANT_ROOT_WITH_CLIENT", "Tenant root cannot have client associated.", ErrValidation}
	CodeTenantTypeNotFound      = ErrorCode{"T11", "TENANT_TYPE_NOT_FOUND", "No tenant type found: %s", ErrValidation}
	CodeTenantParentCycle       = ErrorCode{"T12", "TENANT_PARENT_CYCLE", "Tenant %d cannot be placed under its own subtree.", ErrValidation}
)

// Generic rules.
var (
	CodeResourceNotFound = ErrorCode{"G1", "RESOURCE_NOT_FOUND", "Resource not found.", ErrNotFound}
	CodeDuplicatedField  = ErrorCode{"G2", "DUPLICATED_FIELD", "There is more than one resource with the same value for the field: %s", ErrUniqueness}
	CodeRecordReferenced = ErrorCode{"G3", "RECORD_REFERENCED", "%s is still referenced by other records.", ErrAssociationInUse}
)

// Association rules.
var (
	CodeTenantRoleNotFound              = ErrorCode{"TR1", "TENANT_ROLE_NO_TENANT_ROLE_FOUND", "No Tenant Role found for id %d.", ErrNotFound}
	CodeTenantRoleFieldMandatory        = ErrorCode{"TR2", "TENANT_ROLE_FIELD_MANDATORY", "Tenant Role %s is mandatory.", ErrValidation}
	CodeTenantRoleAssociationNotFound   = ErrorCode{"TR3", "TENANT_ROLE_NO_ASSOCIATION_FOUND", "There is no association between tenant %d and role %d.", ErrAssociationNotFound}
	CodeTenantRoleUserExists            = ErrorCode{"TR4", "TENANT_ROLE_USER_IS_ALREADY_ASSOCIATED", "User is already associated with tenant %d and role %d.", ErrUniqueness}
	CodeTenantRolePermissionExists      = ErrorCode{"TR6", "TENANT_ROLE_PERMISSION_EXISTENT_FOR_TENANT_ROLE", "Permission is already associated with tenant %d and role %d.", ErrUniqueness}
	CodeTenantRolePermissionUnlinked    = ErrorCode{"TR7", "TENANT_ROLE_NO_ASSOCIATION_FOUND_FOR_PERMISSION", "No association found for permission %d.", ErrAssociationNotFound}
	CodePermissionNotFound              = ErrorCode{"TR11", "TENANT_ROLE_NO_PERMISSION_FOUND", "No permission found for %v.", ErrNotFound}
	CodeRoleNotFound                    = ErrorCode{"TR12", "TENANT_ROLE_NO_ROLE_FOUND", "No role found for %v.", ErrNotFound}
	CodeTenantRoleHasPermissions        = ErrorCode{"TR13", "TENANT_ROLE_PERMISSIONS_ASSOCIATED", "There are permissions associated with tenant role %d.", ErrAssociationInUse}
	CodeTenantRoleHasUsers              = ErrorCode{"TR14", "TENANT_ROLE_USERS_ASSOCIATED", "There are users associated with tenant role %d.", ErrAssociationInUse}
	CodeTenantRoleUserAssociationsEmpty = ErrorCode{"TR15", "TENANT_ROLE_NO_USER_ASSOCIATION_FOUND", "No user associations found for the given parameters: tenant %d role %v and user %d.", ErrAssociationNotFound}
	CodeTenantRolePermissionNotFound    = ErrorCode{"TR16", "TENANT_ROLE_NO_TENANT_ROLE_PERMISSION_FOUND", "No Tenant Role Permission found for id %d.", ErrNotFound}
	CodeTenantRoleUserNotFound          = ErrorCode{"TR17", "TENANT_ROLE_NO_TENANT_ROLE_USER_FOUND", "No Tenant Role User found for id %d.", ErrNotFound}
	CodeTenantNotFound                  = ErrorCode{"TR18", "TENANT_ROLE_NO_TENANT_FOUND", "No tenant found for %d.", ErrNotFound}
)

// Active tenant rules.
var (
	CodeActiveTenantDeleteParams = ErrorCode{"AC1", "ACTIVE_TENANT_DELETE_WITHOUT_TENANT_AND_USER", "Insufficient params to perform delete. Is necessary at least tenant or user id", ErrBadRequest}
	CodeActiveTenantParams       = ErrorCode{"AC3", "ACTIVE_TENANT_ERROR_MISSING_CORE_PARAMETERS", "Insufficient params to perform operation. Is necessary at least tenant or user id", ErrValidation}
	CodeActiveTenantNotMember    = ErrorCode{"AC4", "ACTIVE_TENANT_USER_NOT_ASSOCIATED", "User %d is not associated with tenant %d.", ErrAssociationNotFound}
)

// Cross-cutting rules.
var (
	CodeMandatoryParams     = ErrorCode{"P1", "PERMISSION_PARAMETERS_NOT_INFORMED", "Mandatory parameters not informed: %s.", ErrBadRequest}
	CodeAmbiguousLookup     = ErrorCode{"P2", "PERMISSION_LOOKUP_NOT_INFORMED", "Mandatory parameters not informed: %s.", ErrAmbiguousURL}
	CodePermissionAmbiguous = ErrorCode{"P3", "PERMISSION_LOOKUP_AMBIGUOUS", "More than one permission found for %s and %s.", ErrNotFound}
	CodeAuthorizationError  = ErrorCode{"SYS3", "AUTHORIZATION_ERROR", "Error checking authorization", ErrAuthorization}
	CodeNoCurrentUser       = ErrorCode{"SYS4", "NO_CURRENT_USER_AVAILABLE", "No current user available", ErrNoCurrentUser}
	CodeInvalidToken        = ErrorCode{"AUTH1", "INVALID_TOKEN", "Bearer token is invalid.", ErrNoCurrentUser}
)
