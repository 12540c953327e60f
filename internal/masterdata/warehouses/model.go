package warehouses

import (
	"time"
)

// Warehouse represents a stock location.
type Warehouse struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WarehouseForm is the create payload.
type WarehouseForm struct {
	Code     string `json:"code" validate:"required,max=32"`
	Name     string `json:"name" validate:"required,max=200"`
	Address  string `json:"address" validate:"max=500"`
	IsActive *bool  `json:"is_active"`
}

// Update lists the mutable fields of a warehouse.
type Update struct {
	Code     *string `json:"code" validate:"omitempty,min=1,max=32"`
	Name     *string `json:"name" validate:"omitempty,min=1,max=200"`
	Address  *string `json:"address" validate:"omitempty,max=500"`
	IsActive *bool   `json:"is_active"`
}

// Apply copies the set fields onto w.
func (u Update) Apply(w *Warehouse) {
	if u.Code != nil {
		w.Code = *u.Code
	}
	if u.Name != nil {
		w.Name = *u.Name
	}
	if u.Address != nil {
		w.Address = *u.Address
	}
	if u.IsActive != nil {
		w.IsActive = *u.IsActive
	}
}
