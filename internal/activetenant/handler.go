package activetenant

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-iam/internal/associations"
	"github.com/odyssey-erp/odyssey-iam/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Handler serves /me/active-tenant for the current principal.
type Handler struct {
	logger   *slog.Logger
	selector *Selector
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, selector *Selector) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, selector: selector, validate: httpx.NewValidator()}
}

// MountRoutes registers the selector routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.current)
	r.Get("/all", h.list)
	r.Put("/", h.set)
	r.Delete("/", h.clear)
}

type selectRequest struct {
	TenantID int64 `json:"tenantId" validate:"required,gt=0"`
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error("active tenant request", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	p, err := shared.CurrentPrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	at, found, err := h.selector.Current(r.Context(), p.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !found {
		httpx.RespondError(w, shared.CodeResourceNotFound.New())
		return
	}
	httpx.JSON(w, http.StatusOK, at)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, err := shared.CurrentPrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	userID := p.UserID
	page, err := h.selector.List(r.Context(), associations.ActiveTenantFilter{
		PageRequest: httpx.PageRequest(r),
		UserID:      &userID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) set(w http.ResponseWriter, r *http.Request) {
	p, err := shared.CurrentPrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req selectRequest
	if err := httpx.Bind(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	at, err := h.selector.SetActive(r.Context(), shared.SessionFromContext(r.Context()), p.UserID, req.TenantID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, at)
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	p, err := shared.CurrentPrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.selector.Clear(r.Context(), shared.SessionFromContext(r.Context()), p.UserID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
