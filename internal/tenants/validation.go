package tenants

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Input carries the mutable fields of a tenant.
type Input struct {
	Name        string     `json:"name"`
	TenantKey   string     `json:"tenantKey"`
	TenantType  string     `json:"tenantType"`
	ParentID    *int64     `json:"parentId,omitempty"`
	ClientID    *int64     `json:"clientId,omitempty"`
	TenantStart *time.Time `json:"tenantStart,omitempty"`
	TenantEnd   *time.Time `json:"tenantEnd,omitempty"`
}

// validate checks in and returns the tenant to persist. id is zero on create.
// Checks run in a fixed order so callers always see the first broken rule.
func validate(ctx context.Context, repo Repository, id int64, in Input) (Tenant, error) {
	t := Tenant{
		ID:          id,
		Name:        shared.NormalizeName(in.Name),
		TenantKey:   strings.TrimSpace(in.TenantKey),
		ParentID:    in.ParentID,
		ClientID:    in.ClientID,
		TenantStart: in.TenantStart,
		TenantEnd:   in.TenantEnd,
	}
	switch {
	case t.Name == "":
		return Tenant{}, shared.CodeTenantFieldNotInformed.New("name")
	case t.TenantKey == "":
		return Tenant{}, shared.CodeTenantFieldNotInformed.New("tenantKey")
	case strings.TrimSpace(in.TenantType) == "":
		return Tenant{}, shared.CodeTenantFieldNotInformed.New("tenantType")
	}
	typ, err := ParseType(in.TenantType)
	if err != nil {
		return Tenant{}, err
	}
	t.TenantType = typ

	if t.TenantStart != nil && t.TenantEnd != nil && !dateOf(*t.TenantEnd).After(dateOf(*t.TenantStart)) {
		return Tenant{}, shared.CodeTenantEndDateInvalid.New()
	}

	switch typ {
	case TypeRoot:
		err = validateRoot(ctx, repo, t)
	case TypeClient:
		err = validateClient(ctx, repo, t)
	case TypeSub:
		err = validateSub(ctx, repo, t)
	}
	if err != nil {
		return Tenant{}, err
	}

	if id != 0 {
		if _, err := repo.Get(ctx, id); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return Tenant{}, shared.CodeResourceNotFound.New()
			}
			return Tenant{}, err
		}
		if err := checkCycle(ctx, repo, t); err != nil {
			return Tenant{}, err
		}
	}

	taken, err := repo.NameTaken(ctx, t.Name, id)
	if err != nil {
		return Tenant{}, err
	}
	if taken {
		return Tenant{}, shared.CodeDuplicatedField.New("Name")
	}
	return t, nil
}

func validateRoot(ctx context.Context, repo Repository, t Tenant) error {
	if t.ParentID != nil {
		return shared.CodeTenantRootWithParent.New()
	}
	if t.ClientID != nil {
		return shared.CodeTenantRootWithClient.New()
	}
	rootID, found, err := repo.FindRootID(ctx)
	if err != nil {
		return err
	}
	if found && (t.ID == 0 || rootID != t.ID) {
		return shared.CodeTenantRootAlreadyExists.New()
	}
	return nil
}

func validateClient(ctx context.Context, repo Repository, t Tenant) error {
	if t.ParentID == nil {
		return shared.CodeTenantParentNotInformed.New()
	}
	parent, err := repo.Get(ctx, *t.ParentID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.CodeTenantParentNotFound.New()
		}
		return err
	}
	if parent.TenantType == TypeSub {
		return shared.CodeTenantParentTypeInvalid.New()
	}
	return nil
}

func validateSub(ctx context.Context, repo Repository, t Tenant) error {
	if t.ParentID == nil {
		return shared.CodeTenantParentNotInformed.New()
	}
	if t.ClientID == nil {
		return shared.CodeTenantClientNotInformed.New()
	}
	if ok, err := repo.Exists(ctx, *t.ParentID); err != nil {
		return err
	} else if !ok {
		return shared.CodeTenantParentNotFound.New()
	}
	if ok, err := repo.Exists(ctx, *t.ClientID); err != nil {
		return err
	} else if !ok {
		return shared.CodeTenantClientNotFound.New()
	}
	return nil
}

// checkCycle rejects a parent or client that lies in the tenant's own subtree.
func checkCycle(ctx context.Context, repo Repository, t Tenant) error {
	if t.ParentID == nil && t.ClientID == nil {
		return nil
	}
	levels, err := descendantLevels(ctx, repo, t.ID)
	if err != nil {
		return err
	}
	for _, level := range levels {
		for _, id := range level {
			if (t.ParentID != nil && *t.ParentID == id) || (t.ClientID != nil && *t.ClientID == id) {
				return shared.CodeTenantParentCycle.New(t.ID)
			}
		}
	}
	return nil
}

// descendantLevels walks parent and client edges starting at id and groups
// the reached tenants by their longest distance from id. Level zero holds id
// itself, so deleting levels from last to first never orphans a reference.
func descendantLevels(ctx context.Context, repo Repository, id int64) ([][]int64, error) {
	depth := map[int64]int{id: 0}
	frontier := []int64{id}
	for level := 1; len(frontier) > 0; level++ {
		if level > len(depth)+1 {
			// Corrupt data with a cycle; stop at the deepest distinct level seen.
			break
		}
		children, err := repo.ChildIDs(ctx, frontier)
		if err != nil {
			return nil, err
		}
		next := make([]int64, 0, len(children))
		for _, c := range children {
			if c == id {
				continue
			}
			if d, seen := depth[c]; seen && d >= level {
				continue
			}
			depth[c] = level
			next = append(next, c)
		}
		frontier = next
	}

	maxDepth := 0
	for _, d := range depth {
		if d > maxDepth {
			maxDepth = d
		}
	}
	levels := make([][]int64, maxDepth+1)
	for tenantID, d := range depth {
		levels[d] = append(levels[d], tenantID)
	}
	for _, level := range levels {
		sort.Slice(level, func(i, j int) bool { return level[i] < level[j] })
	}
	return levels, nil
}

// dateOf truncates t to its calendar day, matching the DATE columns.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
