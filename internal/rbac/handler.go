package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Handler answers grant questions about the current principal.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers /authz routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/grant", h.grant)
	r.Get("/admin", h.admin)
	r.Get("/permission", h.permission)
	r.Get("/linked", h.linked)
	r.Get("/roles", h.roles)
}

type decision struct {
	Granted bool `json:"granted"`
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	p, err := shared.CurrentPrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var names []string
	for _, n := range strings.Split(r.URL.Query().Get("roleName"), ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		httpx.RespondError(w, shared.CodeMandatoryParams.New("roleName"))
		return
	}
	tenantID, err := TenantFromQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ok, err := h.service.HasAnyGrant(r.Context(), p, tenantID, names...)
	h.respond(w, ok, err)
}

func (h *Handler) admin(w http.ResponseWriter, r *http.Request) {
	p, err := shared.CurrentPrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ok, err := h.service.IsAdministrator(r.Context(), p)
	h.respond(w, ok, err)
}

func (h *Handler) permission(w http.ResponseWriter, r *http.Request) {
	p, err := shared.CurrentPrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tenantID, err := TenantFromQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	ok, err := h.service.HasPermission(r.Context(), p, q.Get("resource"), q.Get("action"), tenantID)
	h.respond(w, ok, err)
}

func (h *Handler) linked(w http.ResponseWriter, r *http.Request) {
	p, err := shared.CurrentPrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ids := make(map[string]int64, 3)
	for _, name := range []string{"permissionId", "roleId", "tenantId"} {
		id, err := httpx.QueryID(r, name)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if id == nil {
			httpx.RespondError(w, shared.CodeMandatoryParams.New(name))
			return
		}
		ids[name] = *id
	}
	ok, err := h.service.HasLinkedGrant(r.Context(), p, ids["permissionId"], ids["roleId"], ids["tenantId"])
	h.respond(w, ok, err)
}

func (h *Handler) roles(w http.ResponseWriter, r *http.Request) {
	p, err := shared.CurrentPrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tenantID, err := TenantFromQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if tenantID == nil {
		httpx.RespondError(w, shared.CodeMandatoryParams.New("tenantId"))
		return
	}
	ids, err := h.service.RoleIDs(r.Context(), p, *tenantID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	httpx.JSON(w, http.StatusOK, map[string][]int64{"roleIds": ids})
}

func (h *Handler) respond(w http.ResponseWriter, ok bool, err error) {
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, decision{Granted: ok})
}
