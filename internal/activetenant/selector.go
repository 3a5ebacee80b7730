package activetenant

import (
	"context"
	"log/slog"

	"github.com/odyssey-erp/odyssey-iam/internal/associations"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Selector manages the tenant a user is currently working within.
type Selector struct {
	assoc  *associations.Service
	logger *slog.Logger
}

// NewSelector builds a Selector over the association store.
func NewSelector(assoc *associations.Service, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{assoc: assoc, logger: logger}
}

// SetActive makes tenantID the single active tenant of the user and mirrors
// the choice into sess when one is supplied.
func (s *Selector) SetActive(ctx context.Context, sess *shared.Session, userID, tenantID int64) (associations.ActiveTenant, error) {
	at, err := s.assoc.Activate(ctx, userID, tenantID)
	if err != nil {
		return associations.ActiveTenant{}, err
	}
	if sess != nil {
		sess.SetActiveTenant(tenantID)
	}
	s.logger.Info("active tenant selected", slog.Int64("user_id", userID), slog.Int64("tenant_id", tenantID))
	return at, nil
}

// Current returns the user's active tenant. found is false when the user has
// not selected one.
func (s *Selector) Current(ctx context.Context, userID int64) (associations.ActiveTenant, bool, error) {
	if userID <= 0 {
		return associations.ActiveTenant{}, false, shared.CodeActiveTenantParams.New()
	}
	return s.assoc.CurrentActiveTenant(ctx, userID)
}

// Clear deactivates every tenant of the user and drops the session mirror.
func (s *Selector) Clear(ctx context.Context, sess *shared.Session, userID int64) error {
	if err := s.assoc.Deactivate(ctx, userID); err != nil {
		return err
	}
	if sess != nil {
		sess.ClearActiveTenant()
	}
	return nil
}

// List returns the user's tenant selections.
func (s *Selector) List(ctx context.Context, filter associations.ActiveTenantFilter) (shared.Page[associations.ActiveTenant], error) {
	return s.assoc.ListActiveTenants(ctx, filter)
}

// EnsureInactive records (user, tenant) as an inactive selection unless a row
// already exists.
func (s *Selector) EnsureInactive(ctx context.Context, userID, tenantID int64) (bool, error) {
	return s.assoc.EnsureInactive(ctx, userID, tenantID)
}
