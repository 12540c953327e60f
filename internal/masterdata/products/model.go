package products

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a sellable item.
type Product struct {
	ID              int64           `json:"id"`
	SKU             string          `json:"sku"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Unit            string          `json:"unit"`
	Price           decimal.Decimal `json:"price"`
	Cost            decimal.Decimal `json:"cost"`
	ReorderLevel    decimal.Decimal `json:"reorder_level"`
	ReorderQuantity decimal.Decimal `json:"reorder_quantity"`
	IsActive        bool            `json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Update lists the mutable fields of a product; nil fields are left unchanged.
type Update struct {
	SKU             *string          `json:"sku" validate:"omitempty,min=1,max=64"`
	Name            *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Description     *string          `json:"description" validate:"omitempty,max=2000"`
	Unit            *string          `json:"unit" validate:"omitempty,max=20"`
	Price           *decimal.Decimal `json:"price"`
	Cost            *decimal.Decimal `json:"cost"`
	ReorderLevel    *decimal.Decimal `json:"reorder_level"`
	ReorderQuantity *decimal.Decimal `json:"reorder_quantity"`
	IsActive        *bool            `json:"is_active"`
}

// Apply copies the set fields onto p.
func (u Update) Apply(p *Product) {
	if u.SKU != nil {
		p.SKU = *u.SKU
	}
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.Unit != nil {
		p.Unit = *u.Unit
	}
	if u.Price != nil {
		p.Price = *u.Price
	}
	if u.Cost != nil {
		p.Cost = *u.Cost
	}
	if u.ReorderLevel != nil {
		p.ReorderLevel = *u.ReorderLevel
	}
	if u.ReorderQuantity != nil {
		p.ReorderQuantity = *u.ReorderQuantity
	}
	if u.IsActive != nil {
		p.IsActive = *u.IsActive
	}
}
