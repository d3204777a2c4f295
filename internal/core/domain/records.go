package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/units"
)

type PurchaseType string

const (
	PurchaseTypeBulk    PurchaseType = "bulk"
	PurchaseTypePackage PurchaseType = "package"
	PurchaseTypeUnit    PurchaseType = "unit"
)

func (t PurchaseType) Valid() bool {
	switch t {
	case PurchaseTypeBulk, PurchaseTypePackage, PurchaseTypeUnit:
		return true
	}
	return false
}

// Purchase is the immutable record of stock bought from a supplier.
type Purchase struct {
	ID              string
	ProductID       int64
	Quantity        decimal.Decimal
	Unit            units.Unit
	UnitPrice       decimal.Decimal
	Type            PurchaseType
	Supplier        string
	Notes           string
	PackageWeight   decimal.NullDecimal
	UnitsPerPackage int64
	BaseQuantity    decimal.Decimal
	TotalCost       decimal.Decimal
	UnitCostBase    decimal.Decimal
	PurchasedAt     time.Time
}

// Production is the immutable record of a production run.
type Production struct {
	ID               string
	ProductID        int64
	QuantityProduced decimal.Decimal
	UnitProduced     units.Unit
	BaseQuantity     decimal.Decimal
	CostPerUnit      decimal.Decimal
	TotalCost        decimal.Decimal
	Lines            []ProductionLine
	ProducedAt       time.Time
}

// ProductionLine captures one ingredient consumed by a production run.
type ProductionLine struct {
	ProductID    int64
	Quantity     decimal.Decimal
	Unit         units.Unit
	BaseQuantity decimal.Decimal
	Cost         decimal.Decimal
}

// Sale is the immutable record of recipe units sold.
type Sale struct {
	ID           string
	RecipeID     int64
	QuantitySold int64
	SalePrice    decimal.Decimal
	ClientName   string
	ClientNotes  string
	Revenue      decimal.Decimal
	CostOfGoods  decimal.Decimal
	SoldAt       time.Time
}

// Autoconsumption is the immutable record of stock used internally or lost.
type Autoconsumption struct {
	ID           string
	ProductID    int64
	Quantity     decimal.Decimal
	Unit         units.Unit
	BaseQuantity decimal.Decimal
	AverageCost  decimal.Decimal
	Cost         decimal.Decimal
	Reason       string
	ConsumedAt   time.Time
}
