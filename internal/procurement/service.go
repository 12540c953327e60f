package procurement

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crm-ims/crm-ims/internal/inventory"
	"github.com/crm-ims/crm-ims/internal/pricing"
	"github.com/crm-ims/crm-ims/internal/shared"
)

const (
	refModule = "purchasing"

	msgOrderNotFound     = "purchase order %d not found"
	msgSupplierNotFound  = "supplier %d not found"
	msgWarehouseNotFound = "warehouse %d not found"
	msgProductNotFound   = "product %d not found"
	msgAlreadyReceived   = "purchase order already received"
	msgReceivedImmutable = "received purchase order cannot be changed"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (PurchaseOrder, error)
	List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	Inventory() inventory.TxStore
	SupplierExists(ctx context.Context, id int64) (bool, error)
	WarehouseExists(ctx context.Context, id int64) (bool, error)
	ProductNames(ctx context.Context, ids []int64) (map[int64]string, error)
	OrderNumberExists(ctx context.Context, number string) (bool, error)
	InsertOrder(ctx context.Context, po *PurchaseOrder) error
	LockOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdateHeader(ctx context.Context, po PurchaseOrder) error
	ReplaceItems(ctx context.Context, orderID int64, items []Item) ([]Item, error)
	SetReceivedQuantity(ctx context.Context, itemID int64, qty decimal.Decimal) error
	DeleteOrder(ctx context.Context, id int64) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups optional collaborators.
// DefaultWarehouseID receives stock when an update marks an order received without naming a warehouse.
type ServiceConfig struct {
	Calculator         *pricing.Calculator
	Numbers            *shared.NumberGenerator
	Audit              AuditPort
	Inventory          inventory.ChangeHandler
	Logger             *slog.Logger
	DefaultWarehouseID int64
}

// Service orchestrates purchasing flows.
type Service struct {
	repo             RepositoryPort
	calc             *pricing.Calculator
	numbers          *shared.NumberGenerator
	audit            AuditPort
	inventory        inventory.ChangeHandler
	logger           *slog.Logger
	defaultWarehouse int64
}

// NewService constructs purchasing service.
func NewService(repo RepositoryPort, cfg ServiceConfig) *Service {
	svc := &Service{
		repo:             repo,
		calc:             cfg.Calculator,
		numbers:          cfg.Numbers,
		audit:            cfg.Audit,
		inventory:        cfg.Inventory,
		logger:           cfg.Logger,
		defaultWarehouse: cfg.DefaultWarehouseID,
	}
	if svc.calc == nil {
		svc.calc = pricing.Default()
	}
	if svc.numbers == nil {
		svc.numbers = shared.NewNumberGenerator("PO")
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// Get returns an order with items.
func (s *Service) Get(ctx context.Context, id int64) (PurchaseOrder, error) {
	if id <= 0 {
		return PurchaseOrder{}, shared.Validation("invalid %s", "id")
	}
	po, err := s.repo.Get(ctx, id)
	if err != nil {
		return PurchaseOrder{}, shared.WrapInternal("get purchase order", err)
	}
	return po, nil
}

// List returns orders newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	if filter.Status != "" {
		status, err := ParseStatus(string(filter.Status))
		if err != nil {
			return nil, 0, err
		}
		filter.Status = status
	}
	out, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, shared.Internal("list purchase orders", err)
	}
	return out, total, nil
}

// CreatePurchaseOrder stores a pending order with computed totals.
func (s *Service) CreatePurchaseOrder(ctx context.Context, in CreateInput) (PurchaseOrder, error) {
	if in.SupplierID <= 0 {
		return PurchaseOrder{}, shared.Validation("invalid %s", "supplier_id")
	}
	items, err := s.buildItems(in.Items)
	if err != nil {
		return PurchaseOrder{}, err
	}
	now := time.Now().UTC()
	po := PurchaseOrder{
		SupplierID:   in.SupplierID,
		OrderDate:    now,
		ExpectedDate: in.ExpectedDate,
		Status:       StatusPending,
		Notes:        in.Notes,
		CreatedBy:    in.ActorID,
		CreatedAt:    now,
		UpdatedAt:    now,
		Items:        items,
	}
	s.applyTotals(&po)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := requireSupplier(ctx, tx, po.SupplierID); err != nil {
			return err
		}
		if err := nameProducts(ctx, tx, po.Items); err != nil {
			return err
		}
		number, err := s.numbers.Allocate(ctx, tx.OrderNumberExists)
		if err != nil {
			return err
		}
		po.PONumber = number
		return tx.InsertOrder(ctx, &po)
	})
	if err != nil {
		return PurchaseOrder{}, shared.WrapInternal("create purchase order", err)
	}
	s.logger.InfoContext(ctx, "purchase order created",
		slog.Int64("purchase_order_id", po.ID),
		slog.String("po_number", po.PONumber),
		slog.String("total", po.Total.String()))
	s.recordAudit(ctx, in.ActorID, "purchase_order:create", po.ID, map[string]any{"po_number": po.PONumber})
	return po, nil
}

// ReceivePurchaseOrder applies every line to WarehouseID, or the default receiving
// warehouse when unset, and marks the order received.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, in ReceiveInput) (PurchaseOrder, error) {
	if in.OrderID <= 0 {
		return PurchaseOrder{}, shared.Validation("invalid %s", "id")
	}
	if in.WarehouseID == 0 {
		in.WarehouseID = s.defaultWarehouse
	}
	if in.WarehouseID <= 0 {
		return PurchaseOrder{}, shared.Validation("no receiving warehouse specified")
	}
	for itemID, qty := range in.Received {
		if itemID <= 0 {
			return PurchaseOrder{}, shared.Validation("invalid %s", "item_id")
		}
		if qty.IsNegative() {
			return PurchaseOrder{}, shared.Validation("quantity must not be negative")
		}
		if !pricing.FitsQuantity(qty) {
			return PurchaseOrder{}, shared.Validation("quantity allows at most %d decimal places", pricing.QuantityPlaces)
		}
	}
	var (
		po      PurchaseOrder
		touched []inventory.Record
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.LockOrder(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if po.Status == StatusReceived {
			return shared.Conflict(msgAlreadyReceived)
		}
		if err := recordReceived(po.Items, in.Received); err != nil {
			return err
		}
		touched, err = s.receive(ctx, tx, &po, in.WarehouseID, in.ActorID)
		if err != nil {
			return err
		}
		return tx.UpdateHeader(ctx, po)
	})
	if err != nil {
		return PurchaseOrder{}, shared.WrapInternal("receive purchase order", err)
	}
	s.afterReceive(ctx, po, in.WarehouseID, in.ActorID, touched)
	return po, nil
}

// UpdatePurchaseOrder changes header fields and optionally replaces items.
// Moving the status to received applies the same receiving side effect as ReceivePurchaseOrder.
func (s *Service) UpdatePurchaseOrder(ctx context.Context, id int64, in UpdateInput) (PurchaseOrder, error) {
	if id <= 0 {
		return PurchaseOrder{}, shared.Validation("invalid %s", "id")
	}
	var target Status
	if in.Status != nil {
		status, err := ParseStatus(*in.Status)
		if err != nil {
			return PurchaseOrder{}, err
		}
		target = status
	}
	if in.SupplierID != nil && *in.SupplierID <= 0 {
		return PurchaseOrder{}, shared.Validation("invalid %s", "supplier_id")
	}
	var replacement []Item
	if in.Items != nil {
		items, err := s.buildItems(in.Items)
		if err != nil {
			return PurchaseOrder{}, err
		}
		replacement = items
	}

	var (
		po        PurchaseOrder
		touched   []inventory.Record
		warehouse int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if po.Status == StatusReceived {
			changesStatus := target != "" && target != StatusReceived
			if changesStatus || in.Items != nil || in.SupplierID != nil {
				return shared.Conflict(msgReceivedImmutable)
			}
		}
		if in.SupplierID != nil && *in.SupplierID != po.SupplierID {
			if err := requireSupplier(ctx, tx, *in.SupplierID); err != nil {
				return err
			}
			po.SupplierID = *in.SupplierID
		}
		if in.ExpectedDate != nil {
			po.ExpectedDate = in.ExpectedDate
		}
		if in.Notes != nil {
			po.Notes = *in.Notes
		}
		if replacement != nil {
			if err := nameProducts(ctx, tx, replacement); err != nil {
				return err
			}
			po.Items, err = tx.ReplaceItems(ctx, po.ID, replacement)
			if err != nil {
				return err
			}
			s.applyTotals(&po)
		}
		switch {
		case target == StatusReceived && po.Status != StatusReceived:
			warehouse = in.WarehouseID
			if warehouse == 0 {
				warehouse = s.defaultWarehouse
			}
			if warehouse <= 0 {
				return shared.Validation("no receiving warehouse specified")
			}
			touched, err = s.receive(ctx, tx, &po, warehouse, in.ActorID)
			if err != nil {
				return err
			}
		case target != "":
			po.Status = target
		}
		return tx.UpdateHeader(ctx, po)
	})
	if err != nil {
		return PurchaseOrder{}, shared.WrapInternal("update purchase order", err)
	}
	if touched != nil {
		s.afterReceive(ctx, po, warehouse, in.ActorID, touched)
	} else {
		s.recordAudit(ctx, in.ActorID, "purchase_order:update", po.ID, map[string]any{"status": string(po.Status)})
	}
	return po, nil
}

// Delete removes an order that has not been received.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	if id <= 0 {
		return shared.Validation("invalid %s", "id")
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if po.Status == StatusReceived {
			return shared.Conflict("received purchase order cannot be deleted")
		}
		return tx.DeleteOrder(ctx, id)
	})
	if err != nil {
		return shared.WrapInternal("delete purchase order", err)
	}
	s.logger.InfoContext(ctx, "purchase order deleted", slog.Int64("purchase_order_id", id))
	s.recordAudit(ctx, actorID, "purchase_order:delete", id, nil)
	return nil
}

// receive adds each line's receivable amount to the warehouse, creating records as needed.
func (s *Service) receive(ctx context.Context, tx TxRepository, po *PurchaseOrder, warehouseID, actorID int64) ([]inventory.Record, error) {
	ok, err := tx.WarehouseExists(ctx, warehouseID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.NotFound(msgWarehouseNotFound, warehouseID)
	}
	lines := make([]inventory.Line, 0, len(po.Items))
	for i := range po.Items {
		item := &po.Items[i]
		applied := item.receivable()
		if err := tx.SetReceivedQuantity(ctx, item.ID, applied); err != nil {
			return nil, err
		}
		item.ReceivedQuantity = applied
		lines = append(lines, inventory.Line{ProductID: item.ProductID, WarehouseID: warehouseID, Quantity: applied})
	}
	records, err := inventory.Receive(ctx, tx.Inventory(), lines, inventory.Ref{
		Module:  refModule,
		ID:      po.ID,
		ActorID: actorID,
		Note:    po.PONumber,
	})
	if err != nil {
		return nil, err
	}
	po.Status = StatusReceived
	return records, nil
}

func (s *Service) afterReceive(ctx context.Context, po PurchaseOrder, warehouseID, actorID int64, touched []inventory.Record) {
	if s.inventory != nil && len(touched) > 0 {
		s.inventory.InventoryChanged(ctx, inventory.ChangedEvent{Kind: inventory.MovementReceive, Keys: inventory.KeysOf(touched)})
	}
	s.logger.InfoContext(ctx, "purchase order received",
		slog.Int64("purchase_order_id", po.ID),
		slog.Int64("warehouse_id", warehouseID),
		slog.Int("items", len(po.Items)))
	s.recordAudit(ctx, actorID, "purchase_order:receive", po.ID, map[string]any{"warehouse_id": warehouseID})
}

func (s *Service) buildItems(inputs []ItemInput) ([]Item, error) {
	if len(inputs) == 0 {
		return nil, shared.Validation("order must contain at least one item")
	}
	items := make([]Item, 0, len(inputs))
	for _, in := range inputs {
		if in.ProductID <= 0 {
			return nil, shared.Validation("invalid %s", "product_id")
		}
		if !in.Quantity.IsPositive() {
			return nil, shared.Validation("quantity must be greater than zero")
		}
		if !pricing.FitsQuantity(in.Quantity) {
			return nil, shared.Validation("quantity allows at most %d decimal places", pricing.QuantityPlaces)
		}
		if in.UnitPrice.IsNegative() {
			return nil, shared.Validation("price must not be negative")
		}
		if !pricing.FitsMoney(in.UnitPrice) {
			return nil, shared.Validation("price allows at most %d decimal places", pricing.MoneyPlaces)
		}
		line := pricing.Line{Quantity: in.Quantity, UnitPrice: in.UnitPrice}
		items = append(items, Item{
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			UnitPrice: in.UnitPrice,
			Total:     line.Total(),
		})
	}
	return items, nil
}

func (s *Service) applyTotals(po *PurchaseOrder) {
	lines := make([]pricing.Line, 0, len(po.Items))
	for _, item := range po.Items {
		lines = append(lines, pricing.Line{Quantity: item.Quantity, UnitPrice: item.UnitPrice})
	}
	totals := s.calc.PurchaseOrder(lines)
	po.Subtotal, po.Tax, po.Total = totals.Subtotal, totals.Tax, totals.Total
}

func requireSupplier(ctx context.Context, tx TxRepository, id int64) error {
	ok, err := tx.SupplierExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return shared.NotFound(msgSupplierNotFound, id)
	}
	return nil
}

func nameProducts(ctx context.Context, tx TxRepository, items []Item) error {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	names, err := tx.ProductNames(ctx, ids)
	if err != nil {
		return err
	}
	for i := range items {
		name, ok := names[items[i].ProductID]
		if !ok {
			return shared.NotFound(msgProductNotFound, items[i].ProductID)
		}
		items[i].ProductName = name
	}
	return nil
}

// recordReceived stores delivered amounts keyed by item id before stock is applied.
func recordReceived(items []Item, received map[int64]decimal.Decimal) error {
	if len(received) == 0 {
		return nil
	}
	for id := range received {
		found := false
		for i := range items {
			if items[i].ID == id {
				items[i].ReceivedQuantity = received[id]
				found = true
				break
			}
		}
		if !found {
			return shared.Validation("invalid %s", "item_id")
		}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "purchase_order",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.WarnContext(ctx, "audit purchase order", slog.String("action", action), slog.Any("error", err))
	}
}
