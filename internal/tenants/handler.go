package tenants

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

// Handler exposes tenant endpoints.
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

// MountRoutes registers tenant routes.
func (h *Handler) MountRoutes(r chi.Router) {
	self := func(r *http.Request) (*int64, error) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			return nil, nil
		}
		return &id, nil
	}
	parent := func(r *http.Request) (*int64, error) {
		return httpx.BodyID(r, "parentId")
	}
	r.With(h.rbac.RequireCapability(shared.ResourceTenant, shared.ActionRead)).Get("/", h.list)
	r.With(h.rbac.RequireScopedCapability(self, shared.ResourceTenant, shared.ActionRead)).Get("/{id}", h.get)
	r.With(h.rbac.RequireScopedCapability(self, shared.ResourceTenant, shared.ActionRead)).Get("/{id}/exists", h.exists)
	r.With(h.rbac.RequireScopedCapability(parent, shared.ResourceTenant, shared.ActionCreate)).Post("/", h.create)
	r.With(h.rbac.RequireScopedCapability(self, shared.ResourceTenant, shared.ActionUpdate)).Put("/{id}", h.update)
	r.With(h.rbac.RequireScopedCapability(self, shared.ResourceTenant, shared.ActionDelete)).Delete("/{id}", h.delete)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := ListFilters{
		PageRequest: httpx.PageRequest(r),
		Search:      strings.TrimSpace(q.Get("name")),
		Exact:       httpx.QueryBool(r, "isExact", false),
	}
	if raw := strings.TrimSpace(q.Get("type")); raw != "" {
		typ, err := ParseType(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filters.Type = typ
	}
	page, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) exists(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ok, err := h.service.Exists(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"exists": ok})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	t, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in Input
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	t, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	removed, err := h.service.Delete(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !removed {
		httpx.RespondError(w, shared.CodeResourceNotFound.New())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error("tenant request", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
