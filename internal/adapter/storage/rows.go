package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/units"
)

const productColumns = `id, name, quantity, base_unit, total_invested, display_unit,
	min_stock, supplier, notes, created_at, updated_at`

type productRow struct {
	ID            int64           `db:"id"`
	Name          string          `db:"name"`
	NameKey       string          `db:"name_key"`
	Quantity      decimal.Decimal `db:"quantity"`
	BaseUnit      string          `db:"base_unit"`
	TotalInvested decimal.Decimal `db:"total_invested"`
	DisplayUnit   string          `db:"display_unit"`
	MinStock      decimal.Decimal `db:"min_stock"`
	Supplier      string          `db:"supplier"`
	Notes         string          `db:"notes"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

func newProductRow(p *domain.Product) productRow {
	return productRow{
		ID:            p.ID,
		Name:          p.Name,
		NameKey:       domain.NameKey(p.Name),
		Quantity:      domain.Round(p.Quantity),
		BaseUnit:      string(p.BaseUnit),
		TotalInvested: domain.Round(p.TotalInvested),
		DisplayUnit:   string(p.DisplayUnit),
		MinStock:      domain.Round(p.MinStock),
		Supplier:      p.Supplier,
		Notes:         p.Notes,
		CreatedAt:     p.CreatedAt.UTC(),
		UpdatedAt:     p.UpdatedAt.UTC(),
	}
}

func (r productRow) toDomain() *domain.Product {
	return &domain.Product{
		ID:            r.ID,
		Name:          r.Name,
		Quantity:      r.Quantity,
		BaseUnit:      units.Unit(r.BaseUnit),
		TotalInvested: r.TotalInvested,
		DisplayUnit:   units.Unit(r.DisplayUnit),
		MinStock:      r.MinStock,
		Supplier:      r.Supplier,
		Notes:         r.Notes,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

const recipeColumns = `id, name, category, sale_price, total_labor_cost, created_at`

type recipeRow struct {
	ID             int64           `db:"id"`
	Name           string          `db:"name"`
	NameKey        string          `db:"name_key"`
	Category       string          `db:"category"`
	SalePrice      decimal.Decimal `db:"sale_price"`
	TotalLaborCost decimal.Decimal `db:"total_labor_cost"`
	CreatedAt      time.Time       `db:"created_at"`
}

func (r recipeRow) toDomain() domain.Recipe {
	return domain.Recipe{
		ID:             r.ID,
		Name:           r.Name,
		Category:       r.Category,
		SalePrice:      r.SalePrice,
		TotalLaborCost: r.TotalLaborCost,
		CreatedAt:      r.CreatedAt,
	}
}

type ingredientRow struct {
	RecipeID  int64           `db:"recipe_id"`
	ProductID int64           `db:"product_id"`
	Quantity  decimal.Decimal `db:"quantity"`
	Unit      string          `db:"unit"`
}

type workerRow struct {
	ID       int64           `db:"id"`
	RecipeID int64           `db:"recipe_id"`
	Name     string          `db:"name"`
	Payment  decimal.Decimal `db:"payment"`
}

const purchaseColumns = `id, product_id, quantity, unit, unit_price, purchase_type, supplier, notes,
	package_weight, units_per_package, base_quantity, total_cost, unit_cost_base, purchased_at`

type purchaseRow struct {
	ID              string              `db:"id"`
	ProductID       int64               `db:"product_id"`
	Quantity        decimal.Decimal     `db:"quantity"`
	Unit            string              `db:"unit"`
	UnitPrice       decimal.Decimal     `db:"unit_price"`
	PurchaseType    string              `db:"purchase_type"`
	Supplier        string              `db:"supplier"`
	Notes           string              `db:"notes"`
	PackageWeight   decimal.NullDecimal `db:"package_weight"`
	UnitsPerPackage int64               `db:"units_per_package"`
	BaseQuantity    decimal.Decimal     `db:"base_quantity"`
	TotalCost       decimal.Decimal     `db:"total_cost"`
	UnitCostBase    decimal.Decimal     `db:"unit_cost_base"`
	PurchasedAt     time.Time           `db:"purchased_at"`
}

func newPurchaseRow(p *domain.Purchase) purchaseRow {
	return purchaseRow{
		ID:              p.ID,
		ProductID:       p.ProductID,
		Quantity:        domain.Round(p.Quantity),
		Unit:            string(p.Unit),
		UnitPrice:       domain.Round(p.UnitPrice),
		PurchaseType:    string(p.Type),
		Supplier:        p.Supplier,
		Notes:           p.Notes,
		PackageWeight:   p.PackageWeight,
		UnitsPerPackage: p.UnitsPerPackage,
		BaseQuantity:    domain.Round(p.BaseQuantity),
		TotalCost:       domain.Round(p.TotalCost),
		UnitCostBase:    domain.Round(p.UnitCostBase),
		PurchasedAt:     p.PurchasedAt.UTC(),
	}
}

func (r purchaseRow) toDomain() domain.Purchase {
	return domain.Purchase{
		ID:              r.ID,
		ProductID:       r.ProductID,
		Quantity:        r.Quantity,
		Unit:            units.Unit(r.Unit),
		UnitPrice:       r.UnitPrice,
		Type:            domain.PurchaseType(r.PurchaseType),
		Supplier:        r.Supplier,
		Notes:           r.Notes,
		PackageWeight:   r.PackageWeight,
		UnitsPerPackage: r.UnitsPerPackage,
		BaseQuantity:    r.BaseQuantity,
		TotalCost:       r.TotalCost,
		UnitCostBase:    r.UnitCostBase,
		PurchasedAt:     r.PurchasedAt,
	}
}

const productionColumns = `id, product_id, quantity_produced, unit_produced, base_quantity,
	cost_per_unit, total_cost, produced_at`

type productionRow struct {
	ID               string          `db:"id"`
	ProductID        int64           `db:"product_id"`
	QuantityProduced decimal.Decimal `db:"quantity_produced"`
	UnitProduced     string          `db:"unit_produced"`
	BaseQuantity     decimal.Decimal `db:"base_quantity"`
	CostPerUnit      decimal.Decimal `db:"cost_per_unit"`
	TotalCost        decimal.Decimal `db:"total_cost"`
	ProducedAt       time.Time       `db:"produced_at"`
}

type productionLineRow struct {
	ProductionID string          `db:"production_id"`
	LineNo       int             `db:"line_no"`
	ProductID    int64           `db:"product_id"`
	Quantity     decimal.Decimal `db:"quantity"`
	Unit         string          `db:"unit"`
	BaseQuantity decimal.Decimal `db:"base_quantity"`
	Cost         decimal.Decimal `db:"cost"`
}

const saleColumns = `id, recipe_id, quantity_sold, sale_price, client_name, client_notes,
	revenue, cost_of_goods, sold_at`

type saleRow struct {
	ID           string          `db:"id"`
	RecipeID     int64           `db:"recipe_id"`
	QuantitySold int64           `db:"quantity_sold"`
	SalePrice    decimal.Decimal `db:"sale_price"`
	ClientName   string          `db:"client_name"`
	ClientNotes  string          `db:"client_notes"`
	Revenue      decimal.Decimal `db:"revenue"`
	CostOfGoods  decimal.Decimal `db:"cost_of_goods"`
	SoldAt       time.Time       `db:"sold_at"`
}

const autoconsumptionColumns = `id, product_id, quantity, unit, base_quantity, average_cost,
	cost, reason, consumed_at`

type autoconsumptionRow struct {
	ID           string          `db:"id"`
	ProductID    int64           `db:"product_id"`
	Quantity     decimal.Decimal `db:"quantity"`
	Unit         string          `db:"unit"`
	BaseQuantity decimal.Decimal `db:"base_quantity"`
	AverageCost  decimal.Decimal `db:"average_cost"`
	Cost         decimal.Decimal `db:"cost"`
	Reason       string          `db:"reason"`
	ConsumedAt   time.Time       `db:"consumed_at"`
}
