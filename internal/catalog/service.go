package catalog

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Service manages actions, resources and permissions.
type Service struct {
	repo   Repository
	table  *Table
	logger *slog.Logger
	group  singleflight.Group
}

// NewService constructs a catalog Service. A nil table means the canonical one.
func NewService(repo Repository, table *Table, logger *slog.Logger) *Service {
	if table == nil {
		table = NewTable()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, table: table, logger: logger}
}

// Table exposes the system catalog the service seeds from.
func (s *Service) Table() *Table { return s.table }

// GetIDByResourceAndAction resolves the permission bound to a resource and
// action name. ok is false when nothing matches.
func (s *Service) GetIDByResourceAndAction(ctx context.Context, resource, action string) (int64, bool, error) {
	resource, action = strings.TrimSpace(resource), strings.TrimSpace(action)
	switch {
	case resource == "":
		return 0, false, shared.CodeAmbiguousLookup.New("resource")
	case action == "":
		return 0, false, shared.CodeAmbiguousLookup.New("action")
	}
	key := strings.ToLower(resource) + "\x00" + strings.ToLower(action)
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.repo.PermissionIDsFor(ctx, resource, action)
	})
	if err != nil {
		return 0, false, err
	}
	ids := v.([]int64)
	switch len(ids) {
	case 0:
		return 0, false, nil
	case 1:
		return ids[0], true, nil
	}
	return 0, false, shared.CodePermissionAmbiguous.New(resource, action)
}

// GetPermissionByID returns the permission or ok=false.
func (s *Service) GetPermissionByID(ctx context.Context, id int64) (Permission, bool, error) {
	p, err := s.repo.GetPermission(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return Permission{}, false, nil
	}
	if err != nil {
		return Permission{}, false, err
	}
	return p, true, nil
}

// GetPermissionByName returns the permission or ok=false.
func (s *Service) GetPermissionByName(ctx context.Context, name string) (Permission, bool, error) {
	p, err := s.repo.GetPermissionByName(ctx, shared.NormalizeName(name))
	if errors.Is(err, shared.ErrNotFound) {
		return Permission{}, false, nil
	}
	if err != nil {
		return Permission{}, false, err
	}
	return p, true, nil
}

// PermissionExists reports whether id names a stored permission.
func (s *Service) PermissionExists(ctx context.Context, id int64) (bool, error) {
	return s.repo.PermissionExists(ctx, id)
}

// ListPermissions returns one page of permissions.
func (s *Service) ListPermissions(ctx context.Context, filters ListFilters) (shared.Page[Permission], error) {
	filters.PageRequest = filters.Normalize()
	rows, total, err := s.repo.ListPermissions(ctx, filters)
	if err != nil {
		return shared.Page[Permission]{}, err
	}
	return shared.NewPage(rows, filters.PageRequest, total), nil
}

// CreatePermission stores a permission with a unique name.
func (s *Service) CreatePermission(ctx context.Context, in PermissionInput) (Permission, error) {
	p := Permission{Name: shared.NormalizeName(in.Name), ActionID: in.ActionID, ResourceID: in.ResourceID}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := checkPermission(ctx, tx, p); err != nil {
			return err
		}
		return translateName(tx.CreatePermission(ctx, &p), ConstraintPermissionName)
	})
	if err != nil {
		return Permission{}, err
	}
	return p, nil
}

// UpdatePermission replaces the permission identified by id.
func (s *Service) UpdatePermission(ctx context.Context, id int64, in PermissionInput) (Permission, error) {
	p := Permission{ID: id, Name: shared.NormalizeName(in.Name), ActionID: in.ActionID, ResourceID: in.ResourceID}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := checkPermission(ctx, tx, p); err != nil {
			return err
		}
		ok, err := tx.UpdatePermission(ctx, &p)
		if err != nil {
			return translateName(err, ConstraintPermissionName)
		}
		if !ok {
			return shared.CodeResourceNotFound.New()
		}
		return nil
	})
	if err != nil {
		return Permission{}, err
	}
	return p, nil
}

// DeletePermission removes a permission no tenant role still references.
func (s *Service) DeletePermission(ctx context.Context, id int64) error {
	ok, err := s.repo.DeletePermission(ctx, id)
	if err != nil {
		if _, fk := db.ForeignKeyViolation(err); fk {
			return shared.CodeRecordReferenced.Wrap(err, "Permission")
		}
		return err
	}
	if !ok {
		return shared.CodeResourceNotFound.New()
	}
	return nil
}

func checkPermission(ctx context.Context, tx Repository, p Permission) error {
	if p.Name == "" {
		return shared.CodeMandatoryParams.New("name")
	}
	if p.ActionID != nil {
		if ok, err := tx.NamedExists(ctx, KindAction, *p.ActionID); err != nil {
			return err
		} else if !ok {
			return shared.CodeResourceNotFound.New()
		}
	}
	if p.ResourceID != nil {
		if ok, err := tx.NamedExists(ctx, KindResource, *p.ResourceID); err != nil {
			return err
		} else if !ok {
			return shared.CodeResourceNotFound.New()
		}
	}
	return nil
}

// GetNamed returns an action or resource.
func (s *Service) GetNamed(ctx context.Context, kind Kind, id int64) (Named, error) {
	n, err := s.repo.GetNamed(ctx, kind, id)
	if errors.Is(err, shared.ErrNotFound) {
		return Named{}, shared.CodeResourceNotFound.New()
	}
	return n, err
}

// ListNamed returns one page of actions or resources.
func (s *Service) ListNamed(ctx context.Context, kind Kind, filters ListFilters) (shared.Page[Named], error) {
	filters.PageRequest = filters.Normalize()
	rows, total, err := s.repo.ListNamed(ctx, kind, filters)
	if err != nil {
		return shared.Page[Named]{}, err
	}
	return shared.NewPage(rows, filters.PageRequest, total), nil
}

// CreateNamed stores an action or resource with a unique name.
func (s *Service) CreateNamed(ctx context.Context, kind Kind, in NamedInput) (Named, error) {
	n := Named{Name: shared.NormalizeName(in.Name)}
	if n.Name == "" {
		return Named{}, shared.CodeMandatoryParams.New("name")
	}
	if err := s.repo.CreateNamed(ctx, kind, &n); err != nil {
		return Named{}, translateName(err, kind.constraint())
	}
	return n, nil
}

// UpdateNamed renames an action or resource.
func (s *Service) UpdateNamed(ctx context.Context, kind Kind, id int64, in NamedInput) (Named, error) {
	n := Named{ID: id, Name: shared.NormalizeName(in.Name)}
	if n.Name == "" {
		return Named{}, shared.CodeMandatoryParams.New("name")
	}
	ok, err := s.repo.UpdateNamed(ctx, kind, &n)
	if err != nil {
		return Named{}, translateName(err, kind.constraint())
	}
	if !ok {
		return Named{}, shared.CodeResourceNotFound.New()
	}
	return n, nil
}

// DeleteNamed removes an action or resource no permission references.
func (s *Service) DeleteNamed(ctx context.Context, kind Kind, id int64) error {
	ok, err := s.repo.DeleteNamed(ctx, kind, id)
	if err != nil {
		if _, fk := db.ForeignKeyViolation(err); fk {
			label := "Action"
			if kind == KindResource {
				label = "Resource"
			}
			return shared.CodeRecordReferenced.Wrap(err, label)
		}
		return err
	}
	if !ok {
		return shared.CodeResourceNotFound.New()
	}
	return nil
}

// SeedReport counts the rows Seed inserted.
type SeedReport struct {
	Actions     int `json:"actions"`
	Resources   int `json:"resources"`
	Permissions int `json:"permissions"`
}

// Seed makes the store contain every pair of the system table. Existing rows
// are left untouched so repeated runs insert nothing.
func (s *Service) Seed(ctx context.Context) (SeedReport, error) {
	var report SeedReport
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		report = SeedReport{}
		actions := map[string]int64{}
		resources := map[string]int64{}
		for _, e := range s.table.Entries() {
			actionID, created, err := ensureNamed(ctx, tx, KindAction, e.Action, actions)
			if err != nil {
				return err
			}
			if created {
				report.Actions++
			}
			resourceID, created, err := ensureNamed(ctx, tx, KindResource, e.Resource, resources)
			if err != nil {
				return err
			}
			if created {
				report.Resources++
			}
			name := e.PermissionName()
			if _, err := tx.GetPermissionByName(ctx, name); err == nil {
				continue
			} else if !errors.Is(err, shared.ErrNotFound) {
				return err
			}
			p := Permission{Name: name, ActionID: &actionID, ResourceID: &resourceID}
			if err := tx.CreatePermission(ctx, &p); err != nil {
				return err
			}
			report.Permissions++
		}
		return nil
	})
	if err != nil {
		return SeedReport{}, err
	}
	s.logger.Info("catalog seeded",
		slog.Int("actions", report.Actions),
		slog.Int("resources", report.Resources),
		slog.Int("permissions", report.Permissions))
	return report, nil
}

func ensureNamed(ctx context.Context, tx Repository, kind Kind, name string, cache map[string]int64) (int64, bool, error) {
	if id, ok := cache[name]; ok {
		return id, false, nil
	}
	n, found, err := tx.FindNamed(ctx, kind, name)
	if err != nil {
		return 0, false, err
	}
	created := false
	if !found {
		n = Named{Name: name}
		if err := tx.CreateNamed(ctx, kind, &n); err != nil {
			return 0, false, err
		}
		created = true
	}
	cache[name] = n.ID
	return n.ID, created, nil
}

func translateName(err error, constraint string) error {
	if err == nil {
		return nil
	}
	if c, ok := db.UniqueViolation(err); ok && c == constraint {
		return shared.CodeDuplicatedField.Wrap(err, "name")
	}
	return err
}
