package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MovementKind enumerates quantity ledger movements.
type MovementKind string

const (
	// MovementReserve holds stock for a sales order.
	MovementReserve MovementKind = "RESERVE"
	// MovementRelease returns held stock to available.
	MovementRelease MovementKind = "RELEASE"
	// MovementShip removes reserved stock from on-hand.
	MovementShip MovementKind = "SHIP"
	// MovementReceive adds purchased stock.
	MovementReceive MovementKind = "RECEIVE"
	// MovementAdjust records manual corrections.
	MovementAdjust MovementKind = "ADJUST"
)

// Key identifies an inventory record.
type Key struct {
	ProductID   int64 `json:"product_id"`
	WarehouseID int64 `json:"warehouse_id"`
}

func (k Key) less(o Key) bool {
	if k.ProductID != o.ProductID {
		return k.ProductID < o.ProductID
	}
	return k.WarehouseID < o.WarehouseID
}

// Record holds on-hand and reserved quantity for a product in a warehouse.
type Record struct {
	ID               int64           `json:"id"`
	ProductID        int64           `json:"product_id"`
	WarehouseID      int64           `json:"warehouse_id"`
	ProductSKU       string          `json:"product_sku,omitempty"`
	ProductName      string          `json:"product_name,omitempty"`
	WarehouseCode    string          `json:"warehouse_code,omitempty"`
	Quantity         decimal.Decimal `json:"quantity"`
	ReservedQuantity decimal.Decimal `json:"reserved_quantity"`
	ReorderLevel     decimal.Decimal `json:"reorder_level"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Key returns the record key.
func (r Record) Key() Key {
	return Key{ProductID: r.ProductID, WarehouseID: r.WarehouseID}
}

// Available is on-hand minus reserved, never below zero.
func (r Record) Available() decimal.Decimal {
	avail := r.Quantity.Sub(r.ReservedQuantity)
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

// RecordView is the API representation with available quantity.
type RecordView struct {
	Record
	Available decimal.Decimal `json:"available_quantity"`
}

// View converts the record for responses.
func (r Record) View() RecordView {
	return RecordView{Record: r, Available: r.Available()}
}

// Line is a quantity requested against one inventory record.
type Line struct {
	ProductID   int64
	WarehouseID int64
	Quantity    decimal.Decimal
}

// Ref ties ledger movements to the document that caused them.
type Ref struct {
	Module  string
	ID      int64
	ActorID int64
	Note    string
}

// Movement is one journal row in inventory_movements.
type Movement struct {
	ID            int64           `json:"id"`
	ProductID     int64           `json:"product_id"`
	WarehouseID   int64           `json:"warehouse_id"`
	Kind          MovementKind    `json:"kind"`
	QuantityDelta decimal.Decimal `json:"quantity_delta"`
	ReservedDelta decimal.Decimal `json:"reserved_delta"`
	RefModule     string          `json:"ref_module,omitempty"`
	RefID         int64           `json:"ref_id,omitempty"`
	ActorID       int64           `json:"actor_id,omitempty"`
	Note          string          `json:"note,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// AdjustmentType selects how an adjustment quantity is applied.
type AdjustmentType string

const (
	AdjustAdd      AdjustmentType = "add"
	AdjustSubtract AdjustmentType = "subtract"
	AdjustSet      AdjustmentType = "set"
)

// Valid reports whether t is a known adjustment type.
func (t AdjustmentType) Valid() bool {
	switch t {
	case AdjustAdd, AdjustSubtract, AdjustSet:
		return true
	}
	return false
}

// AdjustmentInput describes a manual stock correction.
type AdjustmentInput struct {
	ProductID   int64
	WarehouseID int64
	Type        AdjustmentType
	Quantity    decimal.Decimal
	// Reserved overrides the reserved quantity when set.
	Reserved *decimal.Decimal
	Note     string
	ActorID  int64
}

// ListFilter narrows inventory listings.
type ListFilter struct {
	WarehouseID int64
	ProductID   int64
	Limit       int
	Offset      int
}

// LowStockItem is a record at or below its product reorder level.
type LowStockItem struct {
	ProductID     int64           `json:"product_id"`
	ProductSKU    string          `json:"product_sku"`
	ProductName   string          `json:"product_name"`
	WarehouseID   int64           `json:"warehouse_id"`
	WarehouseCode string          `json:"warehouse_code"`
	Quantity      decimal.Decimal `json:"quantity"`
	Reserved      decimal.Decimal `json:"reserved_quantity"`
	ReorderLevel  decimal.Decimal `json:"reorder_level"`
}

// ErrRecordNotFound is returned by stores when no row exists for a key.
var ErrRecordNotFound = errors.New("inventory: record not found")
