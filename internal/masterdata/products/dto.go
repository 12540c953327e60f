package products

import "github.com/shopspring/decimal"

// ProductForm is the create payload.
type ProductForm struct {
	SKU             string          `json:"sku" validate:"required,max=64"`
	Name            string          `json:"name" validate:"required,max=200"`
	Description     string          `json:"description" validate:"max=2000"`
	Unit            string          `json:"unit" validate:"max=20"`
	Price           decimal.Decimal `json:"price"`
	Cost            decimal.Decimal `json:"cost"`
	ReorderLevel    decimal.Decimal `json:"reorder_level"`
	ReorderQuantity decimal.Decimal `json:"reorder_quantity"`
	IsActive        *bool           `json:"is_active"`
}

func (f ProductForm) product() Product {
	p := Product{
		SKU:             f.SKU,
		Name:            f.Name,
		Description:     f.Description,
		Unit:            f.Unit,
		Price:           f.Price,
		Cost:            f.Cost,
		ReorderLevel:    f.ReorderLevel,
		ReorderQuantity: f.ReorderQuantity,
		IsActive:        true,
	}
	if f.IsActive != nil {
		p.IsActive = *f.IsActive
	}
	return p
}
