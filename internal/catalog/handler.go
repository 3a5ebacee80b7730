package catalog

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-iam/internal/rbac"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Handler exposes the action, resource and permission endpoints.
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

// MountActions registers /actions routes.
func (h *Handler) MountActions(r chi.Router) { h.mountNamed(r, KindAction, shared.ResourceAction) }

// MountResources registers /resources routes.
func (h *Handler) MountResources(r chi.Router) {
	h.mountNamed(r, KindResource, shared.ResourceResource)
}

func (h *Handler) mountNamed(r chi.Router, kind Kind, capability string) {
	r.With(h.rbac.RequireCapability(capability, shared.ActionRead)).Get("/", h.listNamed(kind))
	r.With(h.rbac.RequireCapability(capability, shared.ActionRead)).Get("/{id}", h.getNamed(kind))
	r.With(h.rbac.RequireCapability(capability, shared.ActionCreate)).Post("/", h.createNamed(kind))
	r.With(h.rbac.RequireCapability(capability, shared.ActionUpdate)).Put("/{id}", h.updateNamed(kind))
	r.With(h.rbac.RequireCapability(capability, shared.ActionDelete)).Delete("/{id}", h.deleteNamed(kind))
}

// MountPermissions registers /permissions routes.
func (h *Handler) MountPermissions(r chi.Router) {
	read := h.rbac.RequireCapability(shared.ResourcePermission, shared.ActionRead)
	r.With(read).Get("/", h.listPermissions)
	r.With(read).Get("/lookup", h.lookupPermission)
	r.With(read).Get("/by-name", h.permissionByName)
	r.With(read).Get("/system", h.systemTable)
	r.With(read).Get("/{id}", h.getPermission)
	r.With(read).Get("/{id}/exists", h.permissionExists)
	r.With(h.rbac.RequireCapability(shared.ResourcePermission, shared.ActionCreate)).Post("/", h.createPermission)
	r.With(h.rbac.RequireCapability(shared.ResourcePermission, shared.ActionUpdate)).Put("/{id}", h.updatePermission)
	r.With(h.rbac.RequireCapability(shared.ResourcePermission, shared.ActionDelete)).Delete("/{id}", h.deletePermission)
}

func listFilters(r *http.Request) ListFilters {
	return ListFilters{
		PageRequest: httpx.PageRequest(r),
		Search:      strings.TrimSpace(r.URL.Query().Get("name")),
		Exact:       httpx.QueryBool(r, "isExact", false),
	}
}

func (h *Handler) listNamed(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := h.service.ListNamed(r.Context(), kind, listFilters(r))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, page)
	}
}

func (h *Handler) getNamed(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		n, err := h.service.GetNamed(r.Context(), kind, id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, n)
	}
}

func (h *Handler) createNamed(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in NamedInput
		if err := httpx.Bind(r, h.validate, &in); err != nil {
			httpx.RespondError(w, err)
			return
		}
		n, err := h.service.CreateNamed(r.Context(), kind, in)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, n)
	}
}

func (h *Handler) updateNamed(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		var in NamedInput
		if err := httpx.Bind(r, h.validate, &in); err != nil {
			httpx.RespondError(w, err)
			return
		}
		n, err := h.service.UpdateNamed(r.Context(), kind, id, in)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, n)
	}
}

func (h *Handler) deleteNamed(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if err := h.service.DeleteNamed(r.Context(), kind, id); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListPermissions(r.Context(), listFilters(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) lookupPermission(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, ok, err := h.service.GetIDByResourceAndAction(r.Context(), q.Get("resource"), q.Get("action"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !ok {
		httpx.JSON(w, http.StatusOK, map[string]any{"id": nil})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id})
}

func (h *Handler) permissionByName(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		httpx.RespondError(w, shared.CodeMandatoryParams.New("name"))
		return
	}
	p, ok, err := h.service.GetPermissionByName(r.Context(), name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !ok {
		httpx.RespondError(w, shared.CodePermissionNotFound.New(name))
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) systemTable(w http.ResponseWriter, r *http.Request) {
	type row struct {
		Entry
		Permission string `json:"permission"`
	}
	entries := h.service.Table().Entries()
	out := make([]row, 0, len(entries))
	for _, e := range entries {
		out = append(out, row{Entry: e, Permission: e.PermissionName()})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getPermission(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, ok, err := h.service.GetPermissionByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !ok {
		httpx.RespondError(w, shared.CodePermissionNotFound.New(id))
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) permissionExists(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ok, err := h.service.PermissionExists(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"exists": ok})
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var in PermissionInput
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.CreatePermission(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) updatePermission(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in PermissionInput
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.UpdatePermission(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeletePermission(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error("catalog request", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
