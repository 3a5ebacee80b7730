package rbac

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Service resolves whether a principal holds a role or a capability.
type Service struct {
	store       Store
	permissions PermissionResolver
	metrics     DecisionRecorder
	logger      *slog.Logger
}

// NewService constructs the grant engine. metrics may be nil.
func NewService(store Store, permissions PermissionResolver, metrics DecisionRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, permissions: permissions, metrics: metrics, logger: logger}
}

// HasGrant reports whether p holds roleName. A nil tenantID matches a role
// held in any tenant. The system administrator role ignores tenantID.
func (s *Service) HasGrant(ctx context.Context, p shared.Principal, tenantID *int64, roleName string) (bool, error) {
	return s.HasAnyGrant(ctx, p, tenantID, roleName)
}

// HasAnyGrant reports whether p holds at least one of roleNames.
func (s *Service) HasAnyGrant(ctx context.Context, p shared.Principal, tenantID *int64, roleNames ...string) (bool, error) {
	return s.decide(checkRole, func() (bool, error) {
		return s.hasRole(ctx, p, tenantID, roleNames)
	})
}

// IsAdministrator reports whether p holds the system administrator role in
// any tenant.
func (s *Service) IsAdministrator(ctx context.Context, p shared.Principal) (bool, error) {
	return s.decide(checkAdmin, func() (bool, error) {
		return s.hasRole(ctx, p, nil, []string{shared.SystemAdministratorRole})
	})
}

// HasLinkedGrant reports whether permissionID reaches p through roleID bound
// to tenantID.
func (s *Service) HasLinkedGrant(ctx context.Context, p shared.Principal, permissionID, roleID, tenantID int64) (bool, error) {
	return s.decide(checkLinked, func() (bool, error) {
		if err := requirePrincipal(p); err != nil {
			return false, err
		}
		ok, err := s.store.HasRolePermission(ctx, p.UserID, permissionID, roleID, tenantID)
		if err != nil {
			return false, shared.CodeAuthorizationError.Wrap(err)
		}
		return ok, nil
	})
}

// HasPermission reports whether p holds the permission for (resource,
// action) or the resource's All permission.
func (s *Service) HasPermission(ctx context.Context, p shared.Principal, resource, action string, tenantID *int64) (bool, error) {
	return s.decide(checkPermission, func() (bool, error) {
		return s.hasPermission(ctx, p, resource, action, tenantID)
	})
}

// Authorize is the delegation check: administrators pass without resolving
// the permission, everyone else needs HasPermission.
func (s *Service) Authorize(ctx context.Context, p shared.Principal, resource, action string, tenantID *int64) (bool, error) {
	return s.decide(checkAuthorize, func() (bool, error) {
		admin, err := s.hasRole(ctx, p, nil, []string{shared.SystemAdministratorRole})
		if err != nil || admin {
			return admin, err
		}
		return s.hasPermission(ctx, p, resource, action, tenantID)
	})
}

// RoleIDs lists the roles p holds within tenantID.
func (s *Service) RoleIDs(ctx context.Context, p shared.Principal, tenantID int64) ([]int64, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	ids, err := s.store.GetRoleIDsForUserTenant(ctx, p.UserID, tenantID)
	if err != nil {
		return nil, shared.CodeAuthorizationError.Wrap(err)
	}
	return ids, nil
}

func (s *Service) hasRole(ctx context.Context, p shared.Principal, tenantID *int64, roleNames []string) (bool, error) {
	if err := requirePrincipal(p); err != nil {
		return false, err
	}
	names := make([]string, 0, len(roleNames))
	for _, n := range roleNames {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return false, nil
	}
	if tenantID != nil {
		// The administrator role is held system wide, whatever tenant binds it.
		scoped := names[:0:0]
		for _, n := range names {
			if !strings.EqualFold(n, shared.SystemAdministratorRole) {
				scoped = append(scoped, n)
			}
		}
		if len(scoped) < len(names) {
			ok, err := s.store.HasRole(ctx, p.UserID, []string{shared.SystemAdministratorRole}, nil)
			if err != nil {
				return false, shared.CodeAuthorizationError.Wrap(err)
			}
			if ok || len(scoped) == 0 {
				return ok, nil
			}
		}
		names = scoped
	}
	ok, err := s.store.HasRole(ctx, p.UserID, names, tenantID)
	if err != nil {
		return false, shared.CodeAuthorizationError.Wrap(err)
	}
	return ok, nil
}

func (s *Service) hasPermission(ctx context.Context, p shared.Principal, resource, action string, tenantID *int64) (bool, error) {
	if err := requirePrincipal(p); err != nil {
		return false, err
	}
	resource, action = strings.TrimSpace(resource), strings.TrimSpace(action)
	if resource == "" || action == "" {
		return false, shared.CodeMandatoryParams.New("resource, action")
	}
	var ids []int64
	id, found, err := s.permissions.GetIDByResourceAndAction(ctx, resource, action)
	if err != nil {
		return false, shared.CodeAuthorizationError.Wrap(err)
	}
	if found {
		ids = append(ids, id)
	}
	if !strings.EqualFold(action, shared.ActionAll) {
		allID, found, err := s.permissions.GetIDByResourceAndAction(ctx, resource, shared.ActionAll)
		if err != nil {
			return false, shared.CodeAuthorizationError.Wrap(err)
		}
		if found {
			ids = append(ids, allID)
		}
	}
	if len(ids) == 0 {
		return false, nil
	}
	ok, err := s.store.HasAnyPermission(ctx, p.UserID, ids, tenantID)
	if err != nil {
		return false, shared.CodeAuthorizationError.Wrap(err)
	}
	return ok, nil
}

func requirePrincipal(p shared.Principal) error {
	if p.UserID <= 0 {
		return shared.CodeNoCurrentUser.New()
	}
	return nil
}

func (s *Service) decide(check string, fn func() (bool, error)) (bool, error) {
	ok, err := fn()
	if s.metrics != nil {
		outcome := "denied"
		switch {
		case errors.Is(err, shared.ErrNoCurrentUser):
			outcome = "unauthenticated"
		case err != nil:
			outcome = "error"
		case ok:
			outcome = "granted"
		}
		s.metrics.ObserveGrantDecision(check, outcome)
	}
	if err != nil && errors.Is(err, shared.ErrAuthorization) {
		s.logger.Error("grant check failed", slog.String("check", check), slog.Any("error", err))
	}
	return ok, err
}
