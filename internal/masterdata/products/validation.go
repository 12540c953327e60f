package products

import (
	"strings"

	"github.com/crm-ims/crm-ims/internal/pricing"
	"github.com/crm-ims/crm-ims/internal/shared"
)

func (s *Service) validate(p *Product) error {
	p.SKU = strings.TrimSpace(p.SKU)
	p.Name = strings.TrimSpace(p.Name)
	if p.SKU == "" {
		return shared.Validation("field %s failed %s validation", "sku", "required")
	}
	if p.Name == "" {
		return shared.Validation("field %s failed %s validation", "name", "required")
	}
	if p.Unit == "" {
		p.Unit = "pcs"
	}
	if p.Price.IsNegative() || p.Cost.IsNegative() {
		return shared.Validation("price must not be negative")
	}
	if p.ReorderLevel.IsNegative() || p.ReorderQuantity.IsNegative() {
		return shared.Validation("quantity must not be negative")
	}
	if !pricing.FitsMoney(p.Price) || !pricing.FitsMoney(p.Cost) {
		return shared.Validation("price allows at most %d decimal places", pricing.MoneyPlaces)
	}
	if !pricing.FitsQuantity(p.ReorderLevel) || !pricing.FitsQuantity(p.ReorderQuantity) {
		return shared.Validation("quantity allows at most %d decimal places", pricing.QuantityPlaces)
	}
	return nil
}
