package sales

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/crm-ims/crm-ims/internal/shared"
)

// ============================================================================
// STATUS
// ============================================================================

// Status enumerates sales order lifecycle states.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled}

// ParseStatus validates a status string.
func ParseStatus(raw string) (Status, error) {
	for _, s := range Statuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", shared.Validation("invalid order status %q", raw)
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Deducted reports whether stock for the order has left the warehouse.
func (s Status) Deducted() bool {
	return s == StatusShipped || s == StatusDelivered
}

// HoldsReservation reports whether the order still has stock reserved.
func (s Status) HoldsReservation() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusProcessing
}

// CanMoveTo reports whether a transition from s to next is allowed.
// Once deducted an order may only be delivered or cancelled.
func (s Status) CanMoveTo(next Status) bool {
	switch {
	case s == next:
		return true
	case s.Terminal():
		return false
	case s.Deducted():
		return next == StatusDelivered || next == StatusCancelled
	}
	return true
}

// ============================================================================
// ORDER
// ============================================================================

// Order is a sales order header with its items.
type Order struct {
	ID              int64           `json:"id"`
	OrderNumber     string          `json:"order_number"`
	CustomerID      int64           `json:"customer_id"`
	CustomerName    string          `json:"customer_name,omitempty"`
	OrderDate       time.Time       `json:"order_date"`
	Status          Status          `json:"status"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	Discount        decimal.Decimal `json:"discount"`
	Total           decimal.Decimal `json:"total"`
	ShippingAddress string          `json:"shipping_address,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedBy       int64           `json:"created_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Items           []Item          `json:"items"`
}

// Item is one order line. WarehouseID is the warehouse its stock was reserved from.
type Item struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	WarehouseID int64           `json:"warehouse_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`
}

// ============================================================================
// INPUTS
// ============================================================================

// CreateInput describes a new sales order.
type CreateInput struct {
	CustomerID      int64
	WarehouseID     int64
	Discount        decimal.Decimal
	ShippingAddress string
	Notes           string
	Items           []ItemInput
	IdempotencyKey  string
	ActorID         int64
}

// ItemInput is a requested line. WarehouseID overrides the order default when set.
type ItemInput struct {
	ProductID   int64
	WarehouseID int64
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Discount    decimal.Decimal
}

// TransitionInput moves an order to a new status.
type TransitionInput struct {
	OrderID     int64
	Status      string
	WarehouseID int64
	ActorID     int64
}

// ListFilter narrows order listings.
type ListFilter struct {
	Status     Status
	CustomerID int64
	Limit      int
	Offset     int
}
