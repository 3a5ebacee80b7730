package rbac

import (
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Scope resolves the tenant a request acts on. A nil tenant leaves the
// check unscoped.
type Scope func(r *http.Request) (*int64, error)

// Middleware wires delegation checks for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireCapability ensures the current principal may perform action on
// resource, scoped to the tenantId query parameter when present. Use it on
// routes whose handler reads its tenant from that same parameter.
func (m Middleware) RequireCapability(resource, action string) func(http.Handler) http.Handler {
	return m.require(TenantFromQuery, resource, action)
}

// RequireScopedCapability checks the capability in the tenant the request
// targets, as resolved by scope. A tenantId query naming any other tenant is
// refused.
func (m Middleware) RequireScopedCapability(scope Scope, resource, action string) func(http.Handler) http.Handler {
	return m.require(func(r *http.Request) (*int64, error) {
		target, err := scope(r)
		if err != nil || target == nil {
			return nil, err
		}
		claimed, err := TenantFromQuery(r)
		if err != nil {
			return nil, err
		}
		if claimed != nil && *claimed != *target {
			return nil, shared.ErrForbidden
		}
		return target, nil
	}, resource, action)
}

func (m Middleware) require(scope Scope, resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := shared.CurrentPrincipal(r.Context())
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			if m.Service == nil {
				m.logError("rbac require capability", shared.CodeAuthorizationError.New())
				httpx.RespondError(w, shared.CodeAuthorizationError.New())
				return
			}
			tenantID, err := scope(r)
			if err != nil {
				if httpx.StatusFor(err) >= http.StatusInternalServerError {
					m.logError("rbac scope", err)
					err = shared.CodeAuthorizationError.Wrap(err)
				}
				httpx.RespondError(w, err)
				return
			}
			granted, err := m.Service.Authorize(r.Context(), principal, resource, action, tenantID)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			if !granted {
				m.denied(principal, resource, action, tenantID)
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TenantFromQuery reads the optional tenantId scope of a request.
func TenantFromQuery(r *http.Request) (*int64, error) {
	return httpx.QueryID(r, "tenantId")
}

// TenantFromBody reads the tenantId field of a JSON request body.
func TenantFromBody(r *http.Request) (*int64, error) {
	return httpx.BodyID(r, "tenantId")
}

func (m Middleware) denied(p shared.Principal, resource, action string, tenantID *int64) {
	if m.Logger == nil {
		return
	}
	attrs := []any{
		slog.Int64("user_id", p.UserID),
		slog.String("resource", resource),
		slog.String("action", action),
	}
	if tenantID != nil {
		attrs = append(attrs, slog.Int64("tenant_id", *tenantID))
	}
	m.Logger.Info("rbac denied", attrs...)
}

func (m Middleware) logError(msg string, err error) {
	if m.Logger != nil {
		m.Logger.Error(msg, slog.Any("error", err))
	}
}
