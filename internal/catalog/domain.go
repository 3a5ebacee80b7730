package catalog

import (
	"time"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Kind selects one of the flat name tables.
type Kind string

const (
	KindAction   Kind = "action"
	KindResource Kind = "resource"
)

func (k Kind) table() string {
	if k == KindResource {
		return "resources"
	}
	return "actions"
}

// Constraint names the schema attaches to catalog tables.
func (k Kind) constraint() string { return k.table() + "_name_key" }

// Named is a catalog row identified by a unique name.
type Named struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Action is a verb such as Create or Read.
type Action = Named

// Resource is the object kind an action applies to.
type Resource = Named

// Permission pairs an action with a resource under a canonical name.
type Permission struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	ActionID   *int64    `json:"actionId,omitempty"`
	ResourceID *int64    `json:"resourceId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// PermissionInput carries the mutable permission fields.
type PermissionInput struct {
	Name       string `json:"name" validate:"required"`
	ActionID   *int64 `json:"actionId,omitempty"`
	ResourceID *int64 `json:"resourceId,omitempty"`
}

// NamedInput carries the mutable fields of an action or resource.
type NamedInput struct {
	Name string `json:"name" validate:"required"`
}

// ListFilters narrows catalog listings by name.
type ListFilters struct {
	shared.PageRequest
	Search string
	Exact  bool
}

// ConstraintPermissionName is the unique constraint on permission names.
const ConstraintPermissionName = "permissions_name_key"
