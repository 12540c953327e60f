// Package pricing derives order line and header totals with exact decimal arithmetic.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

const (
	// MoneyPlaces is the number of fractional digits kept for currency amounts.
	MoneyPlaces = 2
	// QuantityPlaces is the number of fractional digits kept for stock quantities.
	QuantityPlaces = 4
)

var (
	// DefaultSalesTaxRate applies to sales orders.
	DefaultSalesTaxRate = decimal.RequireFromString("0.10")
	// DefaultPurchaseTaxRate applies to purchase orders.
	DefaultPurchaseTaxRate = decimal.RequireFromString("0.12")
)

// ErrInvalidRate is returned for tax rates outside [0, 1).
var ErrInvalidRate = errors.New("pricing: tax rate must be within [0, 1)")

// Line is a priced line item.
type Line struct {
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	Discount  decimal.Decimal
}

// Gross returns unit price times quantity, unrounded.
func (l Line) Gross() decimal.Decimal {
	return l.UnitPrice.Mul(l.Quantity)
}

// Total returns unit price times quantity minus the line discount, rounded to currency.
func (l Line) Total() decimal.Decimal {
	return Round(l.Gross().Sub(l.Discount))
}

// Totals holds order header amounts.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// Calculator computes order totals using configured tax rates.
type Calculator struct {
	salesRate    decimal.Decimal
	purchaseRate decimal.Decimal
}

// NewCalculator builds a Calculator, validating both rates.
func NewCalculator(salesRate, purchaseRate decimal.Decimal) (*Calculator, error) {
	for _, rate := range []decimal.Decimal{salesRate, purchaseRate} {
		if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return nil, ErrInvalidRate
		}
	}
	return &Calculator{salesRate: salesRate, purchaseRate: purchaseRate}, nil
}

// Default returns a calculator with the standard 10% sales / 12% purchase rates.
func Default() *Calculator {
	return &Calculator{salesRate: DefaultSalesTaxRate, purchaseRate: DefaultPurchaseTaxRate}
}

// SalesRate exposes the configured sales tax rate.
func (c *Calculator) SalesRate() decimal.Decimal { return c.salesRate }

// PurchaseRate exposes the configured purchase tax rate.
func (c *Calculator) PurchaseRate() decimal.Decimal { return c.purchaseRate }

// SalesOrder computes subtotal = Σ(unit_price×quantity), tax = subtotal×rate and
// total = subtotal + tax − orderDiscount. Line discounts affect line totals only.
func (c *Calculator) SalesOrder(lines []Line, orderDiscount decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.Gross())
	}
	subtotal = Round(subtotal)
	tax := Round(subtotal.Mul(c.salesRate))
	discount := Round(orderDiscount)
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Discount: discount,
		Total:    subtotal.Add(tax).Sub(discount),
	}
}

// PurchaseOrder computes subtotal = Σ(unit_price×quantity), tax = subtotal×rate and
// total = subtotal + tax.
func (c *Calculator) PurchaseOrder(lines []Line) Totals {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.Gross())
	}
	subtotal = Round(subtotal)
	tax := Round(subtotal.Mul(c.purchaseRate))
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Discount: decimal.Zero,
		Total:    subtotal.Add(tax),
	}
}

// FitsMoney reports whether d can be stored as a currency amount without rounding.
func FitsMoney(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyPlaces))
}

// FitsQuantity reports whether d can be stored as a quantity without rounding.
func FitsQuantity(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(QuantityPlaces))
}

// Round rounds a currency amount half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}
