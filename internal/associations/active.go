package associations

import (
	"context"
	"errors"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// CreateActiveTenant stores an active tenant row. Marking it active clears
// the flag on the user's other rows.
func (s *Service) CreateActiveTenant(ctx context.Context, in ActiveTenantInput) (ActiveTenant, error) {
	at := ActiveTenant{TenantID: in.TenantID, UserID: in.UserID, IsTenantActive: in.IsTenantActive}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := checkActiveTenant(ctx, tx, at); err != nil {
			return err
		}
		if at.IsTenantActive {
			if err := tx.DeactivateUser(ctx, at.UserID, at.TenantID); err != nil {
				return err
			}
		}
		return translate(tx.CreateActiveTenant(ctx, &at))
	})
	if err != nil {
		return ActiveTenant{}, err
	}
	return at, nil
}

// UpdateActiveTenant replaces the row with id.
func (s *Service) UpdateActiveTenant(ctx context.Context, id int64, in ActiveTenantInput) (ActiveTenant, error) {
	at := ActiveTenant{ID: id, TenantID: in.TenantID, UserID: in.UserID, IsTenantActive: in.IsTenantActive}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if _, err := tx.GetActiveTenant(ctx, id); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return shared.CodeResourceNotFound.New()
			}
			return err
		}
		if err := checkActiveTenant(ctx, tx, at); err != nil {
			return err
		}
		if at.IsTenantActive {
			if err := tx.DeactivateUser(ctx, at.UserID, at.TenantID); err != nil {
				return err
			}
		}
		ok, err := tx.UpdateActiveTenant(ctx, &at)
		if err != nil {
			return translate(err)
		}
		if !ok {
			return shared.CodeResourceNotFound.New()
		}
		return nil
	})
	if err != nil {
		return ActiveTenant{}, err
	}
	return at, nil
}

func checkActiveTenant(ctx context.Context, tx Repository, at ActiveTenant) error {
	if at.TenantID <= 0 || at.UserID <= 0 {
		return shared.CodeActiveTenantParams.New()
	}
	if err := tx.LockUser(ctx, at.UserID); err != nil {
		return err
	}
	if ok, err := tx.TenantExists(ctx, at.TenantID); err != nil {
		return err
	} else if !ok {
		return shared.CodeTenantNotFound.New(at.TenantID)
	}
	existing, found, err := tx.FindActiveTenant(ctx, at.TenantID, at.UserID)
	if err != nil {
		return err
	}
	if found && existing.ID != at.ID {
		return shared.CodeDuplicatedField.New("userId and tenantId")
	}
	return nil
}

// GetActiveTenant returns the row or G1.
func (s *Service) GetActiveTenant(ctx context.Context, id int64) (ActiveTenant, error) {
	at, err := s.repo.GetActiveTenant(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return ActiveTenant{}, shared.CodeResourceNotFound.New()
	}
	return at, err
}

// ListActiveTenants returns one page of active tenant rows.
func (s *Service) ListActiveTenants(ctx context.Context, filter ActiveTenantFilter) (shared.Page[ActiveTenant], error) {
	filter.PageRequest = filter.Normalize()
	filter.TenantName = shared.NormalizeName(filter.TenantName)
	rows, total, err := s.repo.ListActiveTenants(ctx, filter)
	if err != nil {
		return shared.Page[ActiveTenant]{}, err
	}
	return shared.NewPage(rows, filter.PageRequest, total), nil
}

// ExistsActiveTenant reports whether a row exists for (user, tenant).
func (s *Service) ExistsActiveTenant(ctx context.Context, userID, tenantID int64) (bool, error) {
	_, found, err := s.repo.FindActiveTenant(ctx, tenantID, userID)
	return found, err
}

// DeleteActiveTenant removes the row with id.
func (s *Service) DeleteActiveTenant(ctx context.Context, id int64) error {
	ok, err := s.repo.DeleteActiveTenant(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return shared.CodeResourceNotFound.New()
	}
	return nil
}

// DeleteActiveTenants removes every row matching the supplied ids. At least
// one id is required; matching nothing is not an error.
func (s *Service) DeleteActiveTenants(ctx context.Context, tenantID, userID *int64) (int64, error) {
	if tenantID == nil && userID == nil {
		return 0, shared.CodeActiveTenantDeleteParams.New()
	}
	return s.repo.DeleteActiveTenants(ctx, tenantID, userID)
}

// Activate makes tenantID the user's single active tenant. The user must
// hold a role within the tenant.
func (s *Service) Activate(ctx context.Context, userID, tenantID int64) (ActiveTenant, error) {
	if userID <= 0 || tenantID <= 0 {
		return ActiveTenant{}, shared.CodeActiveTenantParams.New()
	}
	var at ActiveTenant
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		n, err := tx.CountUserMemberships(ctx, tenantID, userID)
		if err != nil {
			return err
		}
		if n == 0 {
			return shared.CodeActiveTenantNotMember.New(userID, tenantID)
		}
		if err := tx.DeactivateUser(ctx, userID, tenantID); err != nil {
			return err
		}
		existing, found, err := tx.FindActiveTenant(ctx, tenantID, userID)
		if err != nil {
			return err
		}
		if found {
			existing.IsTenantActive = true
			if _, err := tx.UpdateActiveTenant(ctx, &existing); err != nil {
				return err
			}
			at = existing
			return nil
		}
		at = ActiveTenant{TenantID: tenantID, UserID: userID, IsTenantActive: true}
		return translate(tx.CreateActiveTenant(ctx, &at))
	})
	if err != nil {
		return ActiveTenant{}, err
	}
	s.record(ctx, "active_tenant.activate", "active_tenant", at.ID, map[string]any{"tenant_id": tenantID, "user_id": userID})
	return at, nil
}

// Deactivate clears the active flag on every row of the user.
func (s *Service) Deactivate(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return shared.CodeActiveTenantParams.New()
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		return tx.DeactivateUser(ctx, userID, 0)
	})
}

// CurrentActiveTenant returns the user's active row, if any.
func (s *Service) CurrentActiveTenant(ctx context.Context, userID int64) (ActiveTenant, bool, error) {
	return s.repo.CurrentActiveTenant(ctx, userID)
}

// EnsureInactive creates an inactive row for (user, tenant) unless one
// exists. It reports whether a row was created.
func (s *Service) EnsureInactive(ctx context.Context, userID, tenantID int64) (bool, error) {
	if userID <= 0 || tenantID <= 0 {
		return false, shared.CodeActiveTenantParams.New()
	}
	return s.repo.EnsureActiveTenant(ctx, tenantID, userID)
}
