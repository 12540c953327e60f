package sales

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/crm-ims/crm-ims/internal/platform/httpx"
	"github.com/crm-ims/crm-ims/internal/rbac"
	"github.com/crm-ims/crm-ims/internal/shared"
)

// IdempotencyHeader carries the client supplied de-duplication key.
const IdempotencyHeader = "Idempotency-Key"

// Handler manages sales order HTTP endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler creates a new sales handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers sales order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.SalesOrderView))
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.SalesOrderCreate))
		r.Post("/", h.handleCreate)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.SalesOrderTransition))
		r.Put("/{id}/status", h.handleTransition)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.SalesOrderDelete))
		r.Delete("/{id}", h.handleDelete)
	})
}

type createItemRequest struct {
	ProductID   int64           `json:"product_id" validate:"required,gt=0"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	WarehouseID int64           `json:"warehouse_id" validate:"gte=0"`
}

type createRequest struct {
	CustomerID      int64               `json:"customer_id" validate:"required,gt=0"`
	Items           []createItemRequest `json:"items" validate:"required,min=1,dive"`
	ShippingAddress string              `json:"shipping_address" validate:"max=1000"`
	Notes           string              `json:"notes" validate:"max=2000"`
	Discount        decimal.Decimal     `json:"discount"`
	WarehouseID     int64               `json:"warehouse_id" validate:"gte=0"`
}

type transitionRequest struct {
	Status      string `json:"status" validate:"required"`
	WarehouseID int64  `json:"warehouse_id" validate:"gte=0"`
}

type listResponse struct {
	Data       []Order           `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	customerID, err := httpx.QueryInt64(r, "customer_id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	page := shared.ParsePageRequest(r)
	filter := ListFilter{
		Status:     Status(strings.TrimSpace(r.URL.Query().Get("status"))),
		CustomerID: customerID,
		Limit:      page.PerPage,
		Offset:     page.Offset(),
	}
	orders, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: orders, Pagination: shared.NewPagination(page.Page, page.PerPage, total)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	in := CreateInput{
		CustomerID:      req.CustomerID,
		WarehouseID:     req.WarehouseID,
		Discount:        req.Discount,
		ShippingAddress: strings.TrimSpace(req.ShippingAddress),
		Notes:           strings.TrimSpace(req.Notes),
		IdempotencyKey:  strings.TrimSpace(r.Header.Get(IdempotencyHeader)),
		ActorID:         shared.ActorID(r.Context()),
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, ItemInput{
			ProductID:   item.ProductID,
			WarehouseID: item.WarehouseID,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Discount:    item.Discount,
		})
	}
	order, err := h.service.CreateSalesOrder(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	var req transitionRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	order, err := h.service.TransitionStatus(r.Context(), TransitionInput{
		OrderID:     id,
		Status:      strings.ToLower(strings.TrimSpace(req.Status)),
		WarehouseID: req.WarehouseID,
		ActorID:     shared.ActorID(r.Context()),
	})
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	if err := h.service.Delete(r.Context(), id, shared.ActorID(r.Context())); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.NoContent(w)
}
