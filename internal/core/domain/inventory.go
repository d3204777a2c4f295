package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/units"
)

// Scale is the number of fractional digits persisted for quantities and money.
const Scale int32 = 10

// Round normalises a value to the persisted scale.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Product is the ledger entry for one stocked good. Quantity is expressed in
// BaseUnit and TotalInvested is the cumulative cost of the units on hand.
type Product struct {
	ID            int64
	Name          string
	Quantity      decimal.Decimal
	BaseUnit      units.Unit
	TotalInvested decimal.Decimal
	DisplayUnit   units.Unit
	MinStock      decimal.Decimal
	Supplier      string
	Notes         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AverageCost is TotalInvested / Quantity, or zero for an empty product.
func (p Product) AverageCost() decimal.Decimal {
	if !p.Quantity.IsPositive() {
		return decimal.Zero
	}
	return Round(p.TotalInvested.Div(p.Quantity))
}

// BelowMinStock reports whether the product needs reordering.
func (p Product) BelowMinStock() bool {
	return p.Quantity.LessThan(p.MinStock)
}

// QuantityIn returns the stock expressed in u.
func (p Product) QuantityIn(u units.Unit) (decimal.Decimal, error) {
	return units.Convert(p.Quantity, p.BaseUnit, u)
}

// NameKey is the case-insensitive identity of a product or recipe name.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
