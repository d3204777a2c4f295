package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/units"
)

type Recipe struct {
	ID             int64
	Name           string
	Category       string
	SalePrice      decimal.Decimal
	TotalLaborCost decimal.Decimal
	Ingredients    []RecipeIngredient
	Workers        []Worker
	CreatedAt      time.Time
}

// RecipeIngredient is the amount of Unit needed for one unit of recipe output.
type RecipeIngredient struct {
	RecipeID  int64
	ProductID int64
	Quantity  decimal.Decimal
	Unit      units.Unit
}

type Worker struct {
	ID       int64
	RecipeID int64
	Name     string
	Payment  decimal.Decimal
}

// LaborCost sums the payments of every assigned worker.
func (r Recipe) LaborCost() decimal.Decimal {
	total := decimal.Zero
	for _, w := range r.Workers {
		total = total.Add(w.Payment)
	}
	return total
}
