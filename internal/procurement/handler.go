package procurement

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/crm-ims/crm-ims/internal/platform/httpx"
	"github.com/crm-ims/crm-ims/internal/rbac"
	"github.com/crm-ims/crm-ims/internal/shared"
)

const dateLayout = "2006-01-02"

// Handler manages purchasing endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers purchasing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PurchaseOrderView))
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PurchaseOrderCreate))
		r.Post("/", h.handleCreate)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PurchaseOrderEdit))
		r.Put("/{id}", h.handleUpdate)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PurchaseOrderReceive))
		r.Post("/{id}/receive", h.handleReceive)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PurchaseOrderDelete))
		r.Delete("/{id}", h.handleDelete)
	})
}

type itemRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type createRequest struct {
	SupplierID   int64         `json:"supplier_id" validate:"required,gt=0"`
	ExpectedDate string        `json:"expected_date"`
	Notes        string        `json:"notes" validate:"max=2000"`
	Items        []itemRequest `json:"items" validate:"required,min=1,dive"`
}

type updateRequest struct {
	SupplierID   *int64        `json:"supplier_id" validate:"omitempty,gt=0"`
	ExpectedDate *string       `json:"expected_date"`
	Status       *string       `json:"status"`
	Notes        *string       `json:"notes" validate:"omitempty,max=2000"`
	Items        []itemRequest `json:"items" validate:"omitempty,dive"`
	WarehouseID  int64         `json:"warehouse_id" validate:"gte=0"`
}

type receivedItem struct {
	ItemID           int64           `json:"item_id" validate:"required,gt=0"`
	ReceivedQuantity decimal.Decimal `json:"received_quantity"`
}

type receiveRequest struct {
	WarehouseID int64          `json:"warehouse_id" validate:"gte=0"`
	Items       []receivedItem `json:"items" validate:"omitempty,dive"`
}

type listResponse struct {
	Data       []PurchaseOrder   `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	supplierID, err := httpx.QueryInt64(r, "supplier_id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	page := shared.ParsePageRequest(r)
	orders, total, err := h.service.List(r.Context(), ListFilter{
		Status:     Status(strings.TrimSpace(r.URL.Query().Get("status"))),
		SupplierID: supplierID,
		Limit:      page.PerPage,
		Offset:     page.Offset(),
	})
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
	po, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	expected, err := parseDate(req.ExpectedDate)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	po, err := h.service.CreatePurchaseOrder(r.Context(), CreateInput{
		SupplierID:   req.SupplierID,
		ExpectedDate: expected,
		Notes:        strings.TrimSpace(req.Notes),
		Items:        toItemInputs(req.Items),
		ActorID:      shared.ActorID(r.Context()),
	})
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	var req updateRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	in := UpdateInput{
		SupplierID:  req.SupplierID,
		Status:      req.Status,
		Notes:       req.Notes,
		WarehouseID: req.WarehouseID,
		ActorID:     shared.ActorID(r.Context()),
	}
	if req.ExpectedDate != nil {
		in.ExpectedDate, err = parseDate(*req.ExpectedDate)
		if err != nil {
			httpx.RespondError(w, r, err)
			return
		}
	}
	if req.Items != nil {
		in.Items = toItemInputs(req.Items)
	}
	po, err := h.service.UpdatePurchaseOrder(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	var req receiveRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeAndValidate(r, &req); err != nil {
			httpx.RespondError(w, r, err)
			return
		}
	}
	if req.WarehouseID == 0 {
		req.WarehouseID, err = httpx.QueryInt64(r, "warehouse_id")
		if err != nil {
			httpx.RespondError(w, r, err)
			return
		}
	}
	in := ReceiveInput{OrderID: id, WarehouseID: req.WarehouseID, ActorID: shared.ActorID(r.Context())}
	if len(req.Items) > 0 {
		in.Received = make(map[int64]decimal.Decimal, len(req.Items))
		for _, item := range req.Items {
			in.Received[item.ItemID] = item.ReceivedQuantity
		}
	}
	po, err := h.service.ReceivePurchaseOrder(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
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

func toItemInputs(items []itemRequest) []ItemInput {
	out := make([]ItemInput, 0, len(items))
	for _, item := range items {
		out = append(out, ItemInput{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: item.UnitPrice})
	}
	return out
}

func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, shared.Validation("invalid %s", "expected_date")
	}
	return &t, nil
}
