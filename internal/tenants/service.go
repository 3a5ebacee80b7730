package tenants

import (
	"context"
	"errors"
	"log/slog"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Service implements the tenant hierarchy store.
type Service struct {
	repo   Repository
	audit  shared.Auditor
	logger *slog.Logger
}

// NewService constructs a tenant Service. audit may be nil.
func NewService(repo Repository, audit shared.Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// Create validates and inserts a tenant.
func (s *Service) Create(ctx context.Context, in Input) (Tenant, error) {
	var created Tenant
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := lockForType(ctx, tx, in.TenantType); err != nil {
			return err
		}
		t, err := validate(ctx, tx, 0, in)
		if err != nil {
			return err
		}
		if err := tx.Create(ctx, &t); err != nil {
			return translate(err)
		}
		created = t
		return nil
	})
	if err != nil {
		return Tenant{}, err
	}
	s.record(ctx, "tenant.create", created.ID, map[string]any{"name": created.Name, "type": created.TenantType})
	return created, nil
}

// Update validates and replaces the tenant identified by id.
func (s *Service) Update(ctx context.Context, id int64, in Input) (Tenant, error) {
	var updated Tenant
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := lockForType(ctx, tx, in.TenantType); err != nil {
			return err
		}
		t, err := validate(ctx, tx, id, in)
		if err != nil {
			return err
		}
		ok, err := tx.Update(ctx, &t)
		if err != nil {
			return translate(err)
		}
		if !ok {
			return shared.CodeResourceNotFound.New()
		}
		updated = t
		return nil
	})
	if err != nil {
		return Tenant{}, err
	}
	s.record(ctx, "tenant.update", updated.ID, map[string]any{"name": updated.Name, "type": updated.TenantType})
	return updated, nil
}

// Get returns the tenant or a G1 not found error.
func (s *Service) Get(ctx context.Context, id int64) (Tenant, error) {
	t, err := s.repo.Get(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return Tenant{}, shared.CodeResourceNotFound.New()
	}
	return t, err
}

// Exists reports whether a tenant with id is stored.
func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	return s.repo.Exists(ctx, id)
}

// List returns one page of tenants.
func (s *Service) List(ctx context.Context, filters ListFilters) (shared.Page[Tenant], error) {
	filters.PageRequest = filters.Normalize()
	filters.Search = shared.NormalizeName(filters.Search)
	rows, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return shared.Page[Tenant]{}, err
	}
	return shared.NewPage(rows, filters.PageRequest, total), nil
}

// Delete removes the tenant and every tenant below it through parent or
// client edges, deepest level first. It reports whether anything was removed.
func (s *Service) Delete(ctx context.Context, id int64) (bool, error) {
	var removed int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		exists, err := tx.Exists(ctx, id)
		if err != nil || !exists {
			return err
		}
		levels, err := descendantLevels(ctx, tx, id)
		if err != nil {
			return err
		}
		for i := len(levels) - 1; i >= 0; i-- {
			n, err := tx.DeleteTenants(ctx, levels[i])
			if err != nil {
				return err
			}
			removed += n
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if removed > 0 {
		s.record(ctx, "tenant.delete", id, map[string]any{"removed": removed})
		s.logger.Info("tenant subtree deleted", slog.Int64("tenant_id", id), slog.Int64("removed", removed))
	}
	return removed > 0, nil
}

func lockForType(ctx context.Context, tx Repository, rawType string) error {
	if typ, err := ParseType(rawType); err == nil && typ == TypeRoot {
		return tx.LockRoot(ctx)
	}
	return nil
}

// translate maps constraint violations raised by the store to the coded
// errors the pre-checks would have produced.
func translate(err error) error {
	constraint, ok := db.UniqueViolation(err)
	if !ok {
		return err
	}
	switch constraint {
	case ConstraintSingleRoot:
		return shared.CodeTenantRootAlreadyExists.Wrap(err)
	case ConstraintName:
		return shared.CodeDuplicatedField.Wrap(err, "Name")
	}
	return err
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "tenant", EntityID: shared.AuditID(id), Meta: meta}); err != nil {
		s.logger.Warn("audit tenant mutation", slog.String("action", action), slog.Any("error", err))
	}
}
