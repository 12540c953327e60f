package procurement

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crm-ims/crm-ims/internal/shared"
)

// Status enumerates purchase order lifecycle states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusOrdered   Status = "ordered"
	StatusReceived  Status = "received"
	StatusCancelled Status = "cancelled"
)

// ParseStatus validates a status string, ignoring case.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusPending, StatusOrdered, StatusReceived, StatusCancelled:
		return s, nil
	}
	return "", shared.Validation("invalid purchase order status %q", raw)
}

// PurchaseOrder is a purchase order header with its items.
type PurchaseOrder struct {
	ID           int64           `json:"id"`
	PONumber     string          `json:"po_number"`
	SupplierID   int64           `json:"supplier_id"`
	SupplierName string          `json:"supplier_name,omitempty"`
	OrderDate    time.Time       `json:"order_date"`
	ExpectedDate *time.Time      `json:"expected_date,omitempty"`
	Status       Status          `json:"status"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Tax          decimal.Decimal `json:"tax"`
	Total        decimal.Decimal `json:"total"`
	Notes        string          `json:"notes,omitempty"`
	CreatedBy    int64           `json:"created_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Items        []Item          `json:"items"`
}

// Item is one purchase order line.
type Item struct {
	ID               int64           `json:"id"`
	PurchaseOrderID  int64           `json:"purchase_order_id"`
	ProductID        int64           `json:"product_id"`
	ProductName      string          `json:"product_name,omitempty"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	Total            decimal.Decimal `json:"total"`
	ReceivedQuantity decimal.Decimal `json:"received_quantity"`
}

// receivable returns the amount applied to inventory on receipt.
func (i Item) receivable() decimal.Decimal {
	if i.ReceivedQuantity.IsPositive() {
		return i.ReceivedQuantity
	}
	return i.Quantity
}

// ItemInput is a requested purchase line.
type ItemInput struct {
	ProductID int64
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// CreateInput describes a new purchase order.
type CreateInput struct {
	SupplierID   int64
	ExpectedDate *time.Time
	Notes        string
	Items        []ItemInput
	ActorID      int64
}

// UpdateInput lists the mutable fields; nil means unchanged. A non-nil Items replaces all lines.
// WarehouseID selects where stock lands when Status moves to received.
type UpdateInput struct {
	SupplierID   *int64
	ExpectedDate *time.Time
	Status       *string
	Notes        *string
	Items        []ItemInput
	WarehouseID  int64
	ActorID      int64
}

// ReceiveInput marks an order received into WarehouseID.
// Received optionally records the delivered amount per item id before stock is applied.
type ReceiveInput struct {
	OrderID     int64
	WarehouseID int64
	Received    map[int64]decimal.Decimal
	ActorID     int64
}

// ListFilter narrows purchase order listings.
type ListFilter struct {
	Status     Status
	SupplierID int64
	Limit      int
	Offset     int
}
