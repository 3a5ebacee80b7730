package associations

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-iam/internal/rbac"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Handler exposes the association endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: httpx.NewValidator(), rbac: rbac}
}

// pathRef reads the {id} route parameter, leaving malformed ids to the
// handler.
func pathRef(r *http.Request) (*int64, error) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		return nil, nil
	}
	return &id, nil
}

// owner resolves a row to its tenant. Rows that do not exist leave the
// check unscoped so the handler can answer 404.
func owner(lookup func(ctx context.Context, id int64) (int64, error), ref rbac.Scope) rbac.Scope {
	return func(r *http.Request) (*int64, error) {
		id, err := ref(r)
		if err != nil || id == nil {
			return nil, err
		}
		tenantID, err := lookup(r.Context(), *id)
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &tenantID, nil
	}
}

func (h *Handler) tenantRoleTenant(ctx context.Context, id int64) (int64, error) {
	tr, err := h.service.GetTenantRole(ctx, id)
	return tr.TenantID, err
}

func (h *Handler) tenantRolePermissionTenant(ctx context.Context, id int64) (int64, error) {
	trp, err := h.service.GetTenantRolePermission(ctx, id)
	if err != nil {
		return 0, err
	}
	return h.tenantRoleTenant(ctx, trp.TenantRoleID)
}

func (h *Handler) tenantRoleUserTenant(ctx context.Context, id int64) (int64, error) {
	tru, err := h.service.GetTenantRoleUser(ctx, id)
	if err != nil {
		return 0, err
	}
	return h.tenantRoleTenant(ctx, tru.TenantRoleID)
}

func (h *Handler) activeTenantTenant(ctx context.Context, id int64) (int64, error) {
	at, err := h.service.GetActiveTenant(ctx, id)
	return at.TenantID, err
}

func tenantRoleRef(r *http.Request) (*int64, error) {
	return httpx.BodyID(r, "tenantRoleId")
}

// MountTenantRoles registers /tenant-roles routes.
func (h *Handler) MountTenantRoles(r chi.Router) {
	read := h.rbac.RequireCapability(shared.ResourceTenantRole, shared.ActionRead)
	row := owner(h.tenantRoleTenant, pathRef)
	r.With(read).Get("/", h.listTenantRoles)
	r.With(read).Get("/count", h.countTenantRoles)
	r.With(read).Get("/exists", h.existsTenantRole)
	r.With(read).Get("/role-ids", h.roleIDsForUserTenant)
	r.With(h.rbac.RequireScopedCapability(row, shared.ResourceTenantRole, shared.ActionRead)).Get("/{id}", h.getTenantRole)
	r.With(h.rbac.RequireScopedCapability(rbac.TenantFromBody, shared.ResourceTenantRole, shared.ActionCreate)).Post("/", h.createTenantRole)
	r.With(
		h.rbac.RequireScopedCapability(row, shared.ResourceTenantRole, shared.ActionUpdate),
		h.rbac.RequireScopedCapability(rbac.TenantFromBody, shared.ResourceTenantRole, shared.ActionUpdate),
	).Put("/{id}", h.updateTenantRole)
	r.With(h.rbac.RequireScopedCapability(row, shared.ResourceTenantRole, shared.ActionDelete)).Delete("/{id}", h.deleteTenantRole)

	r.With(h.rbac.RequireCapability(shared.ResourceTenantRolePermission, shared.ActionRead)).Get("/permissions", h.listPermissionIDs)
	r.With(h.rbac.RequireScopedCapability(rbac.TenantFromBody, shared.ResourceTenantRolePermission, shared.ActionCreate)).Post("/permissions", h.assignPermission)
	r.With(h.rbac.RequireCapability(shared.ResourceTenantRolePermission, shared.ActionDelete)).Delete("/permissions", h.unassignPermission)
	r.With(h.rbac.RequireScopedCapability(rbac.TenantFromBody, shared.ResourceTenantRoleUser, shared.ActionCreate)).Post("/users", h.assignUser)
	r.With(h.rbac.RequireCapability(shared.ResourceTenantRoleUser, shared.ActionDelete)).Delete("/users", h.unassignUser)
}

// MountTenantRolePermissions registers /tenant-role-permissions routes.
func (h *Handler) MountTenantRolePermissions(r chi.Router) {
	row := owner(h.tenantRolePermissionTenant, pathRef)
	r.With(h.rbac.RequireCapability(shared.ResourceTenantRolePermission, shared.ActionRead)).Get("/", h.listTenantRolePermissions)
	r.With(h.rbac.RequireScopedCapability(row, shared.ResourceTenantRolePermission, shared.ActionRead)).Get("/{id}", h.getTenantRolePermission)
	r.With(h.rbac.RequireScopedCapability(owner(h.tenantRoleTenant, tenantRoleRef), shared.ResourceTenantRolePermission, shared.ActionCreate)).Post("/", h.createTenantRolePermission)
	r.With(h.rbac.RequireScopedCapability(row, shared.ResourceTenantRolePermission, shared.ActionDelete)).Delete("/{id}", h.deleteTenantRolePermission)
}

// MountTenantRoleUsers registers /tenant-role-users routes.
func (h *Handler) MountTenantRoleUsers(r chi.Router) {
	read := h.rbac.RequireCapability(shared.ResourceTenantRoleUser, shared.ActionRead)
	row := owner(h.tenantRoleUserTenant, pathRef)
	r.With(read).Get("/", h.listTenantRoleUsers)
	r.With(read).Get("/exists", h.existsTenantRoleUser)
	r.With(h.rbac.RequireScopedCapability(row, shared.ResourceTenantRoleUser, shared.ActionRead)).Get("/{id}", h.getTenantRoleUser)
	r.With(h.rbac.RequireScopedCapability(owner(h.tenantRoleTenant, tenantRoleRef), shared.ResourceTenantRoleUser, shared.ActionCreate)).Post("/", h.createTenantRoleUser)
	r.With(h.rbac.RequireScopedCapability(row, shared.ResourceTenantRoleUser, shared.ActionDelete)).Delete("/{id}", h.deleteTenantRoleUser)
}

// MountActiveTenants registers /active-tenants routes.
func (h *Handler) MountActiveTenants(r chi.Router) {
	read := h.rbac.RequireCapability(shared.ResourceUser, shared.ActionRead)
	row := owner(h.activeTenantTenant, pathRef)
	r.With(read).Get("/", h.listActiveTenants)
	r.With(read).Get("/exists", h.existsActiveTenant)
	r.With(h.rbac.RequireScopedCapability(row, shared.ResourceUser, shared.ActionRead)).Get("/{id}", h.getActiveTenant)
	r.With(h.rbac.RequireScopedCapability(rbac.TenantFromBody, shared.ResourceUser, shared.ActionCreate)).Post("/", h.createActiveTenant)
	r.With(
		h.rbac.RequireScopedCapability(row, shared.ResourceUser, shared.ActionUpdate),
		h.rbac.RequireScopedCapability(rbac.TenantFromBody, shared.ResourceUser, shared.ActionUpdate),
	).Put("/{id}", h.updateActiveTenant)
	r.With(h.rbac.RequireScopedCapability(row, shared.ResourceUser, shared.ActionDelete)).Delete("/{id}", h.deleteActiveTenant)
	r.With(h.rbac.RequireCapability(shared.ResourceUser, shared.ActionDelete)).Delete("/", h.deleteActiveTenants)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error("association request", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

// queryIDs reads the named optional id parameters, failing on the first
// malformed one.
func queryIDs(r *http.Request, names ...string) (map[string]*int64, error) {
	out := make(map[string]*int64, len(names))
	for _, name := range names {
		id, err := httpx.QueryID(r, name)
		if err != nil {
			return nil, err
		}
		out[name] = id
	}
	return out, nil
}

// requireIDs is queryIDs with every parameter mandatory.
func requireIDs(r *http.Request, names ...string) (map[string]int64, error) {
	opt, err := queryIDs(r, names...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(names))
	var missing []string
	for _, name := range names {
		if opt[name] == nil {
			missing = append(missing, name)
			continue
		}
		out[name] = *opt[name]
	}
	if len(missing) > 0 {
		return nil, shared.CodeMandatoryParams.New(strings.Join(missing, ", "))
	}
	return out, nil
}

func logicalOr(r *http.Request) bool {
	return !httpx.QueryBool(r, "isLogicalConjunction", true)
}

func (h *Handler) listTenantRoles(w http.ResponseWriter, r *http.Request) {
	ids, err := queryIDs(r, "tenantId", "roleId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.ListTenantRoles(r.Context(), TenantRoleFilter{
		PageRequest: httpx.PageRequest(r),
		TenantID:    ids["tenantId"],
		RoleID:      ids["roleId"],
		Or:          logicalOr(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) countTenantRoles(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.CountTenantRoles(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *Handler) existsTenantRole(w http.ResponseWriter, r *http.Request) {
	ids, err := requireIDs(r, "tenantId", "roleId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ok, err := h.service.ExistsTenantRole(r.Context(), ids["tenantId"], ids["roleId"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"exists": ok})
}

func (h *Handler) roleIDsForUserTenant(w http.ResponseWriter, r *http.Request) {
	ids, err := requireIDs(r, "userId", "tenantId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	roleIDs, err := h.service.GetRoleIDsForUserTenant(r.Context(), ids["userId"], ids["tenantId"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string][]int64{"roleIds": roleIDs})
}

func (h *Handler) getTenantRole(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tr, err := h.service.GetTenantRole(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tr)
}

func (h *Handler) createTenantRole(w http.ResponseWriter, r *http.Request) {
	var in TenantRoleInput
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	tr, err := h.service.CreateTenantRole(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tr)
}

func (h *Handler) updateTenantRole(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in TenantRoleInput
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	tr, err := h.service.UpdateTenantRole(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tr)
}

func (h *Handler) deleteTenantRole(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteTenantRole(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignPermissionRequest struct {
	TenantID     int64 `json:"tenantId" validate:"required,gt=0"`
	RoleID       int64 `json:"roleId" validate:"required,gt=0"`
	PermissionID int64 `json:"permissionId" validate:"required,gt=0"`
}

func (h *Handler) listPermissionIDs(w http.ResponseWriter, r *http.Request) {
	ids, err := requireIDs(r, "tenantId", "roleId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	perms, err := h.service.ListPermissionIDs(r.Context(), ids["tenantId"], ids["roleId"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string][]int64{"permissionIds": perms})
}

func (h *Handler) assignPermission(w http.ResponseWriter, r *http.Request) {
	var req assignPermissionRequest
	if err := httpx.Bind(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	trp, err := h.service.AssignPermission(r.Context(), req.TenantID, req.RoleID, req.PermissionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, trp)
}

func (h *Handler) unassignPermission(w http.ResponseWriter, r *http.Request) {
	ids, err := requireIDs(r, "tenantId", "roleId", "permissionId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.UnassignPermission(r.Context(), ids["tenantId"], ids["roleId"], ids["permissionId"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignUserRequest struct {
	TenantID int64 `json:"tenantId" validate:"required,gt=0"`
	RoleID   int64 `json:"roleId" validate:"required,gt=0"`
	UserID   int64 `json:"userId" validate:"required,gt=0"`
}

func (h *Handler) assignUser(w http.ResponseWriter, r *http.Request) {
	var req assignUserRequest
	if err := httpx.Bind(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	tru, err := h.service.AssignUser(r.Context(), req.TenantID, req.RoleID, req.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tru)
}

func (h *Handler) unassignUser(w http.ResponseWriter, r *http.Request) {
	ids, err := requireIDs(r, "tenantId", "userId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	roleIDs, err := httpx.QueryIDs(r, "roleIds")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.UnassignUser(r.Context(), ids["tenantId"], roleIDs, ids["userId"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listTenantRolePermissions(w http.ResponseWriter, r *http.Request) {
	ids, err := queryIDs(r, "tenantRoleId", "permissionId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.ListTenantRolePermissions(r.Context(), TenantRolePermissionFilter{
		PageRequest:  httpx.PageRequest(r),
		TenantRoleID: ids["tenantRoleId"],
		PermissionID: ids["permissionId"],
		Or:           logicalOr(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) getTenantRolePermission(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	trp, err := h.service.GetTenantRolePermission(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, trp)
}

func (h *Handler) createTenantRolePermission(w http.ResponseWriter, r *http.Request) {
	var in TenantRolePermissionInput
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	trp, err := h.service.CreateTenantRolePermission(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, trp)
}

func (h *Handler) deleteTenantRolePermission(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteTenantRolePermission(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listTenantRoleUsers(w http.ResponseWriter, r *http.Request) {
	ids, err := queryIDs(r, "tenantRoleId", "userId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.ListTenantRoleUsers(r.Context(), TenantRoleUserFilter{
		PageRequest:  httpx.PageRequest(r),
		TenantRoleID: ids["tenantRoleId"],
		UserID:       ids["userId"],
		Or:           logicalOr(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) existsTenantRoleUser(w http.ResponseWriter, r *http.Request) {
	ids, err := requireIDs(r, "tenantRoleId", "userId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ok, err := h.service.ExistsTenantRoleUser(r.Context(), ids["tenantRoleId"], ids["userId"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"exists": ok})
}

func (h *Handler) getTenantRoleUser(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tru, err := h.service.GetTenantRoleUser(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tru)
}

func (h *Handler) createTenantRoleUser(w http.ResponseWriter, r *http.Request) {
	var in TenantRoleUserInput
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	tru, err := h.service.CreateTenantRoleUser(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tru)
}

func (h *Handler) deleteTenantRoleUser(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteTenantRoleUser(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listActiveTenants(w http.ResponseWriter, r *http.Request) {
	ids, err := queryIDs(r, "userId", "tenantId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.ListActiveTenants(r.Context(), ActiveTenantFilter{
		PageRequest: httpx.PageRequest(r),
		UserID:      ids["userId"],
		TenantID:    ids["tenantId"],
		TenantName:  strings.TrimSpace(r.URL.Query().Get("tenantName")),
		Exact:       httpx.QueryBool(r, "isExact", false),
		Or:          logicalOr(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) existsActiveTenant(w http.ResponseWriter, r *http.Request) {
	ids, err := requireIDs(r, "userId", "tenantId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ok, err := h.service.ExistsActiveTenant(r.Context(), ids["userId"], ids["tenantId"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"exists": ok})
}

func (h *Handler) getActiveTenant(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	at, err := h.service.GetActiveTenant(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, at)
}

func (h *Handler) createActiveTenant(w http.ResponseWriter, r *http.Request) {
	var in ActiveTenantInput
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	at, err := h.service.CreateActiveTenant(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, at)
}

func (h *Handler) updateActiveTenant(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in ActiveTenantInput
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	at, err := h.service.UpdateActiveTenant(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, at)
}

func (h *Handler) deleteActiveTenant(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteActiveTenant(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteActiveTenants(w http.ResponseWriter, r *http.Request) {
	ids, err := queryIDs(r, "tenantId", "userId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	removed, err := h.service.DeleteActiveTenants(r.Context(), ids["tenantId"], ids["userId"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"removed": removed})
}
