package roles

import (
	"time"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Role is a named bundle of permissions assignable to tenants.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Input carries the mutable role fields.
type Input struct {
	Name        string `json:"name" validate:"required,max=128"`
	Description string `json:"description" validate:"max=512"`
}

// ListFilters narrows role listings.
type ListFilters struct {
	shared.PageRequest
	Search string
	Exact  bool
}

// ConstraintName is the unique constraint on role names.
const ConstraintName = "roles_name_key"
