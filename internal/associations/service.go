package associations

import (
	"context"
	"errors"
	"log/slog"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Service enforces the association rules between tenants, roles,
// permissions and users.
type Service struct {
	repo   Repository
	audit  shared.Auditor
	logger *slog.Logger
}

// NewService constructs an association Service. audit may be nil.
func NewService(repo Repository, audit shared.Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// CreateTenantRole binds a role to a tenant.
func (s *Service) CreateTenantRole(ctx context.Context, in TenantRoleInput) (TenantRole, error) {
	tr := TenantRole{TenantID: in.TenantID, RoleID: in.RoleID}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := checkTenantRole(ctx, tx, tr); err != nil {
			return err
		}
		return translate(tx.CreateTenantRole(ctx, &tr))
	})
	if err != nil {
		return TenantRole{}, err
	}
	s.record(ctx, "tenant_role.create", "tenant_role", tr.ID, map[string]any{"tenant_id": tr.TenantID, "role_id": tr.RoleID})
	return tr, nil
}

// UpdateTenantRole rebinds an existing tenant role.
func (s *Service) UpdateTenantRole(ctx context.Context, id int64, in TenantRoleInput) (TenantRole, error) {
	tr := TenantRole{ID: id, TenantID: in.TenantID, RoleID: in.RoleID}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if _, err := tx.GetTenantRole(ctx, id); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return shared.CodeTenantRoleNotFound.New(id)
			}
			return err
		}
		if err := checkTenantRole(ctx, tx, tr); err != nil {
			return err
		}
		ok, err := tx.UpdateTenantRole(ctx, &tr)
		if err != nil {
			return translate(err)
		}
		if !ok {
			return shared.CodeTenantRoleNotFound.New(id)
		}
		return nil
	})
	if err != nil {
		return TenantRole{}, err
	}
	s.record(ctx, "tenant_role.update", "tenant_role", tr.ID, map[string]any{"tenant_id": tr.TenantID, "role_id": tr.RoleID})
	return tr, nil
}

func checkTenantRole(ctx context.Context, tx Repository, tr TenantRole) error {
	if tr.TenantID <= 0 {
		return shared.CodeTenantRoleFieldMandatory.New("tenantId")
	}
	if tr.RoleID <= 0 {
		return shared.CodeTenantRoleFieldMandatory.New("roleId")
	}
	if ok, err := tx.TenantExists(ctx, tr.TenantID); err != nil {
		return err
	} else if !ok {
		return shared.CodeTenantNotFound.New(tr.TenantID)
	}
	if ok, err := tx.RoleExists(ctx, tr.RoleID); err != nil {
		return err
	} else if !ok {
		return shared.CodeRoleNotFound.New(tr.RoleID)
	}
	existing, found, err := tx.FindTenantRole(ctx, tr.TenantID, tr.RoleID)
	if err != nil {
		return err
	}
	if found && existing.ID != tr.ID {
		return shared.CodeDuplicatedField.New("roleId and tenantId")
	}
	return nil
}

// GetTenantRole returns the tenant role or TR1.
func (s *Service) GetTenantRole(ctx context.Context, id int64) (TenantRole, error) {
	tr, err := s.repo.GetTenantRole(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return TenantRole{}, shared.CodeTenantRoleNotFound.New(id)
	}
	return tr, err
}

// ListTenantRoles returns one page of tenant roles.
func (s *Service) ListTenantRoles(ctx context.Context, filter TenantRoleFilter) (shared.Page[TenantRole], error) {
	filter.PageRequest = filter.Normalize()
	rows, total, err := s.repo.ListTenantRoles(ctx, filter)
	if err != nil {
		return shared.Page[TenantRole]{}, err
	}
	return shared.NewPage(rows, filter.PageRequest, total), nil
}

// ExistsTenantRole reports whether role is bound to tenant.
func (s *Service) ExistsTenantRole(ctx context.Context, tenantID, roleID int64) (bool, error) {
	_, found, err := s.repo.FindTenantRole(ctx, tenantID, roleID)
	return found, err
}

// CountTenantRoles returns the number of tenant roles stored.
func (s *Service) CountTenantRoles(ctx context.Context) (int, error) {
	return s.repo.CountTenantRoles(ctx)
}

// DeleteTenantRole removes a tenant role with no users or permissions.
func (s *Service) DeleteTenantRole(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if _, err := tx.GetTenantRole(ctx, id); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return shared.CodeTenantRoleNotFound.New(id)
			}
			return err
		}
		users, err := tx.CountTenantRoleUsers(ctx, id)
		if err != nil {
			return err
		}
		if users > 0 {
			return shared.CodeTenantRoleHasUsers.New(id)
		}
		perms, err := tx.CountTenantRolePermissions(ctx, id)
		if err != nil {
			return err
		}
		if perms > 0 {
			return shared.CodeTenantRoleHasPermissions.New(id)
		}
		if _, err := tx.DeleteTenantRole(ctx, id); err != nil {
			if _, fk := db.ForeignKeyViolation(err); fk {
				return shared.CodeRecordReferenced.Wrap(err, "Tenant Role")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, "tenant_role.delete", "tenant_role", id, nil)
	return nil
}

// GetRoleIDsForUserTenant lists the roles a user holds within a tenant.
func (s *Service) GetRoleIDsForUserTenant(ctx context.Context, userID, tenantID int64) ([]int64, error) {
	ids, err := s.repo.RoleIDsForUserTenant(ctx, userID, tenantID)
	if ids == nil && err == nil {
		ids = []int64{}
	}
	return ids, err
}

// requireTenantRole resolves the tenant role bound to (tenant, role) or fails
// with TR3.
func requireTenantRole(ctx context.Context, tx Repository, tenantID, roleID int64) (TenantRole, error) {
	tr, found, err := tx.FindTenantRole(ctx, tenantID, roleID)
	if err != nil {
		return TenantRole{}, err
	}
	if !found {
		return TenantRole{}, shared.CodeTenantRoleAssociationNotFound.New(tenantID, roleID)
	}
	return tr, nil
}

// translate maps unique violations to the coded errors the pre-checks raise.
func translate(err error) error {
	if err == nil {
		return nil
	}
	constraint, ok := db.UniqueViolation(err)
	if !ok {
		return err
	}
	switch constraint {
	case ConstraintTenantRole:
		return shared.CodeDuplicatedField.Wrap(err, "roleId and tenantId")
	case ConstraintActiveTenant:
		return shared.CodeDuplicatedField.Wrap(err, "userId and tenantId")
	}
	return err
}

func (s *Service) record(ctx context.Context, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: entity, EntityID: shared.AuditID(id), Meta: meta}); err != nil {
		s.logger.Warn("audit association mutation", slog.String("action", action), slog.Any("error", err))
	}
}
