package inventory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/crm-ims/crm-ims/internal/platform/httpx"
	"github.com/crm-ims/crm-ims/internal/rbac"
	"github.com/crm-ims/crm-ims/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.InventoryView))
		r.Get("/", h.handleList)
		r.Get("/low-stock", h.handleLowStock)
		r.Get("/movements", h.handleMovements)
		r.Get("/warehouse/{warehouseID}", h.handleByWarehouse)
		r.Get("/product/{productID}", h.handleByProduct)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.InventoryAdjust))
		r.Post("/adjust", h.handleAdjust)
	})
}

type listResponse struct {
	Data       []RecordView      `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	warehouseID, err := httpx.QueryInt64(r, "warehouse_id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	productID, err := httpx.QueryInt64(r, "product_id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	h.list(w, r, ListFilter{WarehouseID: warehouseID, ProductID: productID})
}

func (h *Handler) handleByWarehouse(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "warehouseID")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	h.list(w, r, ListFilter{WarehouseID: id})
}

func (h *Handler) handleByProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "productID")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	h.list(w, r, ListFilter{ProductID: id})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, filter ListFilter) {
	page := shared.ParsePageRequest(r)
	filter.Limit = page.PerPage
	filter.Offset = page.Offset()
	views, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: views, Pagination: shared.NewPagination(page.Page, page.PerPage, total)})
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.LowStock(r.Context())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.QueryInt64(r, "product_id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	warehouseID, err := httpx.QueryInt64(r, "warehouse_id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	if productID == 0 || warehouseID == 0 {
		httpx.RespondError(w, r, shared.Validation("invalid %s", "product_id/warehouse_id"))
		return
	}
	mvs, err := h.service.Movements(r.Context(), Key{ProductID: productID, WarehouseID: warehouseID}, shared.ParsePageRequest(r).PerPage)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": mvs})
}

type adjustRequest struct {
	ProductID        int64            `json:"product_id" validate:"required,gt=0"`
	WarehouseID      int64            `json:"warehouse_id" validate:"required,gt=0"`
	Type             AdjustmentType   `json:"adjustment_type" validate:"required,oneof=add subtract set"`
	Quantity         decimal.Decimal  `json:"quantity"`
	ReservedQuantity *decimal.Decimal `json:"reserved_quantity"`
	Note             string           `json:"notes" validate:"max=500"`
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	rec, err := h.service.Adjust(r.Context(), AdjustmentInput{
		ProductID:   req.ProductID,
		WarehouseID: req.WarehouseID,
		Type:        req.Type,
		Quantity:    req.Quantity,
		Reserved:    req.ReservedQuantity,
		Note:        req.Note,
		ActorID:     shared.ActorID(r.Context()),
	})
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec.View())
}
