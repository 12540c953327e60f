package leads

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	mdshared "github.com/crm-ims/crm-ims/internal/masterdata/shared"
	"github.com/crm-ims/crm-ims/internal/platform/httpx"
	"github.com/crm-ims/crm-ims/internal/rbac"
	"github.com/crm-ims/crm-ims/internal/shared"
)

// Handler exposes lead endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers lead routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.MasterDataView))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.LeadsEdit))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Patch("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page := mdshared.FiltersFromRequest(r)
	filter := ListFilter{
		Page:   page.Page,
		Limit:  page.Limit,
		Search: page.Search,
		Status: Status(r.URL.Query().Get("status")),
	}
	if raw := r.URL.Query().Get("assigned_to"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.RespondError(w, r, shared.Validation("invalid %s", "assigned_to"))
			return
		}
		filter.AssignedTo = id
	}
	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": shared.NewPagination(filter.Page, filter.Limit, total),
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	l, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, l)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form LeadForm
	if err := httpx.DecodeAndValidate(r, &form); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	l, err := h.service.Create(r.Context(), form)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "lead created",
		slog.Int64("lead_id", l.ID),
		slog.Int64("assigned_to", l.AssignedTo))
	httpx.JSON(w, http.StatusCreated, l)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	var upd Update
	if err := httpx.DecodeAndValidate(r, &upd); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	l, err := h.service.Update(r.Context(), id, upd)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, l)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "lead deleted", slog.Int64("lead_id", id))
	httpx.NoContent(w)
}
