package sales

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/crm-ims/crm-ims/internal/inventory"
	"github.com/crm-ims/crm-ims/internal/observability"
	"github.com/crm-ims/crm-ims/internal/pricing"
	"github.com/crm-ims/crm-ims/internal/shared"
)

const (
	refModule        = "sales"
	idempotencyScope = "sales.order.create"

	msgOrderNotFound    = "sales order %d not found"
	msgCustomerNotFound = "customer %d not found"
	msgProductNotFound  = "product %d not found"
)

// RepositoryPort abstracts persistence used by the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, int, error)
}

// TxRepository exposes the operations available inside one transaction.
type TxRepository interface {
	Inventory() inventory.TxStore
	CustomerExists(ctx context.Context, id int64) (bool, error)
	ProductNames(ctx context.Context, ids []int64) (map[int64]string, error)
	OrderNumberExists(ctx context.Context, number string) (bool, error)
	InsertOrder(ctx context.Context, order *Order) error
	InsertItems(ctx context.Context, order *Order) error
	LockOrder(ctx context.Context, id int64) (Order, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	DeleteOrder(ctx context.Context, id int64) error
}

// IdempotencyPort de-duplicates create requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Calculator  *pricing.Calculator
	Numbers     *shared.NumberGenerator
	Idempotency IdempotencyPort
	Audit       AuditPort
	Inventory   inventory.ChangeHandler
	Events      EventPublisher
	Metrics     *observability.Metrics
	Logger      *slog.Logger
}

// Service orchestrates sales order workflows.
type Service struct {
	repo      RepositoryPort
	calc      *pricing.Calculator
	numbers   *shared.NumberGenerator
	idem      IdempotencyPort
	audit     AuditPort
	inventory inventory.ChangeHandler
	events    EventPublisher
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewService constructs the sales service.
func NewService(repo RepositoryPort, cfg ServiceConfig) *Service {
	svc := &Service{
		repo:      repo,
		calc:      cfg.Calculator,
		numbers:   cfg.Numbers,
		idem:      cfg.Idempotency,
		audit:     cfg.Audit,
		inventory: cfg.Inventory,
		events:    cfg.Events,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
	if svc.calc == nil {
		svc.calc = pricing.Default()
	}
	if svc.numbers == nil {
		svc.numbers = shared.NewNumberGenerator("SO")
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// Get returns an order with its items.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	if id <= 0 {
		return Order{}, shared.Validation("invalid %s", "id")
	}
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return Order{}, shared.WrapInternal("get sales order", err)
	}
	return order, nil
}

// List returns orders newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	if filter.Status != "" {
		if _, err := ParseStatus(string(filter.Status)); err != nil {
			return nil, 0, err
		}
	}
	orders, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, shared.Internal("list sales orders", err)
	}
	return orders, total, nil
}

// CreateSalesOrder stores a pending order and reserves stock for every line against it.
// Any failure rolls the whole request back.
func (s *Service) CreateSalesOrder(ctx context.Context, in CreateInput) (Order, error) {
	lines, err := s.resolveLines(in)
	if err != nil {
		return Order{}, err
	}
	order := buildOrder(in, lines, s.calc)
	if order.Discount.GreaterThan(order.Subtotal.Add(order.Tax)) {
		return Order{}, shared.Validation("discount exceeds order amount")
	}
	if in.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, in.IdempotencyKey, idempotencyScope); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Order{}, err
			}
			return Order{}, shared.Internal("check idempotency key", err)
		}
	}

	var reserved []inventory.Record
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.CustomerExists(ctx, in.CustomerID)
		if err != nil {
			return err
		}
		if !ok {
			return shared.NotFound(msgCustomerNotFound, in.CustomerID)
		}
		names, err := tx.ProductNames(ctx, productIDs(lines))
		if err != nil {
			return err
		}
		for i := range order.Items {
			name, ok := names[order.Items[i].ProductID]
			if !ok {
				return shared.NotFound(msgProductNotFound, order.Items[i].ProductID)
			}
			order.Items[i].ProductName = name
		}
		number, err := s.numbers.Allocate(ctx, tx.OrderNumberExists)
		if err != nil {
			return err
		}
		order.OrderNumber = number
		if err := tx.InsertOrder(ctx, &order); err != nil {
			return err
		}
		reserved, err = inventory.Reserve(ctx, tx.Inventory(), lines, inventory.Ref{
			Module:  refModule,
			ID:      order.ID,
			ActorID: in.ActorID,
			Note:    order.OrderNumber,
		})
		if err != nil {
			return err
		}
		return tx.InsertItems(ctx, &order)
	})
	if err != nil {
		s.metrics.ObserveReservation(reservationResult(err))
		if in.IdempotencyKey != "" && s.idem != nil {
			if delErr := s.idem.Delete(context.WithoutCancel(ctx), in.IdempotencyKey); delErr != nil {
				s.logger.WarnContext(ctx, "release idempotency key", slog.Any("error", delErr))
			}
		}
		if shared.KindOf(err) == shared.KindInternal {
			s.logger.ErrorContext(ctx, "create sales order failed", slog.Int64("customer_id", in.CustomerID), slog.Any("error", err))
		}
		return Order{}, shared.WrapInternal("create sales order", err)
	}
	s.metrics.ObserveReservation("success")
	s.notifyInventory(ctx, inventory.MovementReserve, reserved)
	s.logger.InfoContext(ctx, "sales order created",
		slog.Int64("order_id", order.ID),
		slog.String("order_number", order.OrderNumber),
		slog.Int("items", len(order.Items)),
		slog.String("total", order.Total.String()))
	s.recordAudit(ctx, in.ActorID, "sales_order:create", order.ID, map[string]any{
		"order_number": order.OrderNumber,
		"total":        order.Total.String(),
	})
	return order, nil
}

// TransitionStatus moves an order to a new status and applies its inventory side effect
// in the same transaction as the status write.
func (s *Service) TransitionStatus(ctx context.Context, in TransitionInput) (Order, error) {
	if in.OrderID <= 0 {
		return Order{}, shared.Validation("invalid %s", "id")
	}
	target, err := ParseStatus(in.Status)
	if err != nil {
		return Order{}, err
	}

	var (
		order   Order
		from    Status
		kind    inventory.MovementKind
		touched []inventory.Record
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.LockOrder(ctx, in.OrderID)
		if err != nil {
			return err
		}
		from = order.Status
		if from == target {
			return nil
		}
		if !from.CanMoveTo(target) {
			return shared.Conflict("sales order in status %s cannot move to %s", string(from), string(target))
		}
		switch {
		case target == StatusCancelled && from.HoldsReservation():
			kind = inventory.MovementRelease
		case target.Deducted() && !from.Deducted():
			kind = inventory.MovementShip
		}
		if kind != "" {
			if err := checkWarehouse(order.Items, in.WarehouseID); err != nil {
				return err
			}
			ref := inventory.Ref{Module: refModule, ID: order.ID, ActorID: in.ActorID, Note: order.OrderNumber}
			if kind == inventory.MovementRelease {
				touched, err = inventory.Release(ctx, tx.Inventory(), itemLines(order.Items), ref)
			} else {
				touched, err = inventory.Ship(ctx, tx.Inventory(), itemLines(order.Items), ref)
			}
			if err != nil {
				return err
			}
		}
		if err := tx.UpdateStatus(ctx, order.ID, target); err != nil {
			return err
		}
		order.Status = target
		return nil
	})
	if err != nil {
		return Order{}, shared.WrapInternal("transition sales order", err)
	}
	if from == target {
		return order, nil
	}

	s.metrics.ObserveTransition(string(target))
	if kind != "" {
		s.notifyInventory(ctx, kind, touched)
	}
	s.logger.InfoContext(ctx, "sales order status changed",
		slog.Int64("order_id", order.ID),
		slog.String("from", string(from)),
		slog.String("to", string(target)),
		slog.String("inventory", string(kind)))
	s.recordAudit(ctx, in.ActorID, "sales_order:status", order.ID, map[string]any{
		"from": string(from),
		"to":   string(target),
	})
	s.publish(ctx, OrderEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		From:        from,
		To:          target,
		ActorID:     in.ActorID,
		At:          time.Now().UTC(),
	})
	return order, nil
}

// Delete removes a pending or cancelled order. Pending orders release their reservations first.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	if id <= 0 {
		return shared.Validation("invalid %s", "id")
	}
	var released []inventory.Record
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		switch order.Status {
		case StatusPending:
			released, err = inventory.Release(ctx, tx.Inventory(), itemLines(order.Items), inventory.Ref{
				Module:  refModule,
				ID:      order.ID,
				ActorID: actorID,
				Note:    "order deleted",
			})
			if err != nil {
				return err
			}
		case StatusCancelled:
		default:
			return shared.Conflict("only pending or cancelled orders can be deleted")
		}
		return tx.DeleteOrder(ctx, id)
	})
	if err != nil {
		return shared.WrapInternal("delete sales order", err)
	}
	if len(released) > 0 {
		s.notifyInventory(ctx, inventory.MovementRelease, released)
	}
	s.logger.InfoContext(ctx, "sales order deleted", slog.Int64("order_id", id))
	s.recordAudit(ctx, actorID, "sales_order:delete", id, nil)
	return nil
}

func (s *Service) resolveLines(in CreateInput) ([]inventory.Line, error) {
	if in.CustomerID <= 0 {
		return nil, shared.Validation("invalid %s", "customer_id")
	}
	if len(in.Items) == 0 {
		return nil, shared.Validation("order must contain at least one item")
	}
	if in.Discount.IsNegative() || !pricing.FitsMoney(in.Discount) {
		return nil, shared.Validation("invalid %s", "discount")
	}
	lines := make([]inventory.Line, 0, len(in.Items))
	for _, item := range in.Items {
		if item.ProductID <= 0 {
			return nil, shared.Validation("invalid %s", "product_id")
		}
		if !item.Quantity.IsPositive() {
			return nil, shared.Validation("quantity must be greater than zero")
		}
		if !pricing.FitsQuantity(item.Quantity) {
			return nil, shared.Validation("quantity allows at most %d decimal places", pricing.QuantityPlaces)
		}
		if item.UnitPrice.IsNegative() {
			return nil, shared.Validation("price must not be negative")
		}
		if !pricing.FitsMoney(item.UnitPrice) {
			return nil, shared.Validation("price allows at most %d decimal places", pricing.MoneyPlaces)
		}
		if item.Discount.IsNegative() || !pricing.FitsMoney(item.Discount) {
			return nil, shared.Validation("invalid %s", "discount")
		}
		if item.Discount.GreaterThan(item.UnitPrice.Mul(item.Quantity)) {
			return nil, shared.Validation("discount exceeds line amount for product %d", item.ProductID)
		}
		warehouseID := item.WarehouseID
		if warehouseID == 0 {
			warehouseID = in.WarehouseID
		}
		if warehouseID <= 0 {
			return nil, shared.Validation("no warehouse specified for product %d", item.ProductID)
		}
		lines = append(lines, inventory.Line{ProductID: item.ProductID, WarehouseID: warehouseID, Quantity: item.Quantity})
	}
	return lines, nil
}

func buildOrder(in CreateInput, lines []inventory.Line, calc *pricing.Calculator) Order {
	priced := make([]pricing.Line, 0, len(in.Items))
	items := make([]Item, 0, len(in.Items))
	for i, item := range in.Items {
		line := pricing.Line{Quantity: item.Quantity, UnitPrice: item.UnitPrice, Discount: item.Discount}
		priced = append(priced, line)
		items = append(items, Item{
			ProductID:   item.ProductID,
			WarehouseID: lines[i].WarehouseID,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Discount:    item.Discount,
			Total:       line.Total(),
		})
	}
	totals := calc.SalesOrder(priced, in.Discount)
	now := time.Now().UTC()
	return Order{
		CustomerID:      in.CustomerID,
		OrderDate:       now,
		Status:          StatusPending,
		Subtotal:        totals.Subtotal,
		Tax:             totals.Tax,
		Discount:        totals.Discount,
		Total:           totals.Total,
		ShippingAddress: in.ShippingAddress,
		Notes:           in.Notes,
		CreatedBy:       in.ActorID,
		CreatedAt:       now,
		UpdatedAt:       now,
		Items:           items,
	}
}

// checkWarehouse rejects an explicit warehouse that differs from where an item was reserved.
func checkWarehouse(items []Item, warehouseID int64) error {
	if warehouseID == 0 {
		return nil
	}
	for _, item := range items {
		if item.WarehouseID != warehouseID {
			return shared.Validation("warehouse %d does not match warehouse %d reserved for product %d",
				warehouseID, item.WarehouseID, item.ProductID)
		}
	}
	return nil
}

func itemLines(items []Item) []inventory.Line {
	lines := make([]inventory.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, inventory.Line{ProductID: item.ProductID, WarehouseID: item.WarehouseID, Quantity: item.Quantity})
	}
	return lines
}

func productIDs(lines []inventory.Line) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	return ids
}

func reservationResult(err error) string {
	switch shared.KindOf(err) {
	case shared.KindInsufficientStock:
		return "insufficient_stock"
	case shared.KindNotFound, shared.KindValidation:
		return "rejected"
	case shared.KindConflict:
		return "conflict"
	}
	return "error"
}

func (s *Service) notifyInventory(ctx context.Context, kind inventory.MovementKind, records []inventory.Record) {
	if s.inventory == nil || len(records) == 0 {
		return
	}
	s.inventory.InventoryChanged(ctx, inventory.ChangedEvent{Kind: kind, Keys: inventory.KeysOf(records)})
}

func (s *Service) publish(ctx context.Context, evt OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, evt); err != nil {
		s.logger.WarnContext(ctx, "publish order event", slog.Int64("order_id", evt.OrderID), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, orderID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "sales_order",
		EntityID: strconv.FormatInt(orderID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.WarnContext(ctx, "audit sales order", slog.String("action", action), slog.Any("error", err))
	}
}
