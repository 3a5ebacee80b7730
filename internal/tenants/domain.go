package tenants

import (
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Type classifies a tenant's position in the hierarchy.
type Type string

const (
	TypeRoot   Type = "ROOT"
	TypeClient Type = "CLIENT"
	TypeSub    Type = "SUB"
)

// ParseType resolves a tenant type name, case-insensitively.
func ParseType(raw string) (Type, error) {
	switch Type(strings.ToUpper(strings.TrimSpace(raw))) {
	case TypeRoot:
		return TypeRoot, nil
	case TypeClient:
		return TypeClient, nil
	case TypeSub:
		return TypeSub, nil
	}
	return "", shared.CodeTenantTypeNotFound.New(raw)
}

// Tenant is a node in the organizational tree.
type Tenant struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	TenantKey   string     `json:"tenantKey"`
	TenantType  Type       `json:"tenantType"`
	ParentID    *int64     `json:"parentId,omitempty"`
	ClientID    *int64     `json:"clientId,omitempty"`
	TenantStart *time.Time `json:"tenantStart,omitempty"`
	TenantEnd   *time.Time `json:"tenantEnd,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// ListFilters narrows tenant listings.
type ListFilters struct {
	shared.PageRequest
	Search string
	Exact  bool
	Type   Type
}

// Unique constraint names declared by the schema.
const (
	ConstraintName       = "tenants_name_key"
	ConstraintSingleRoot = "tenants_single_root"
)
