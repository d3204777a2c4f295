package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/rl1809/stock-ledger/internal/core/units"
)

type CreateProductRequest struct {
	Name        string          `json:"name"`
	BaseUnit    units.Unit      `json:"base_unit"`
	DisplayUnit units.Unit      `json:"display_unit"`
	MinStock    decimal.Decimal `json:"min_stock"`
	Supplier    string          `json:"supplier"`
	Notes       string          `json:"notes"`
}

type UpdateProductRequest struct {
	MinStock    *decimal.Decimal `json:"min_stock"`
	DisplayUnit units.Unit       `json:"display_unit"`
}

type PurchaseRequest struct {
	ProductName     string              `json:"product_name"`
	Quantity        decimal.Decimal     `json:"quantity"`
	Unit            units.Unit          `json:"unit"`
	UnitPrice       decimal.Decimal     `json:"unit_price"`
	Type            domain.PurchaseType `json:"purchase_type"`
	Supplier        string              `json:"supplier"`
	Notes           string              `json:"notes"`
	PackageWeight   *decimal.Decimal    `json:"package_weight"`
	UnitsPerPackage *int64              `json:"units_per_package"`
	MinStock        *decimal.Decimal    `json:"min_stock"`
	DisplayUnit     units.Unit          `json:"display_unit"`
}

type IngredientRequest struct {
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Unit      units.Unit      `json:"unit"`
}

type ProductionRequest struct {
	ElaboratedName   string              `json:"elaborated_name"`
	Ingredients      []IngredientRequest `json:"ingredients"`
	QuantityProduced decimal.Decimal     `json:"quantity_produced"`
	UnitProduced     units.Unit          `json:"unit_produced"`
}

type SaleRequest struct {
	RecipeID     int64           `json:"recipe_id"`
	QuantitySold int64           `json:"quantity_sold"`
	SalePrice    decimal.Decimal `json:"sale_price"`
	ClientName   string          `json:"client_name"`
	ClientNotes  string          `json:"client_notes"`
}

type AutoconsumptionRequest struct {
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Unit      units.Unit      `json:"unit"`
	Reason    string          `json:"reason"`
}

type RecipeRequest struct {
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	SalePrice decimal.Decimal `json:"sale_price"`
}

type WorkerRequest struct {
	Name    string          `json:"name"`
	Payment decimal.Decimal `json:"payment"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

type ProductResponse struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Quantity      decimal.Decimal `json:"quantity"`
	BaseUnit      units.Unit      `json:"base_unit"`
	DisplayUnit   units.Unit      `json:"display_unit"`
	Display       decimal.Decimal `json:"display_quantity"`
	TotalInvested decimal.Decimal `json:"total_invested"`
	AverageCost   decimal.Decimal `json:"average_cost"`
	MinStock      decimal.Decimal `json:"min_stock"`
	BelowMinStock bool            `json:"below_min_stock"`
	Supplier      string          `json:"supplier"`
	Notes         string          `json:"notes"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func newProductResponse(p domain.Product) ProductResponse {
	display, err := p.QuantityIn(p.DisplayUnit)
	if err != nil {
		display = p.Quantity
	}
	return ProductResponse{
		ID:            p.ID,
		Name:          p.Name,
		Quantity:      p.Quantity,
		BaseUnit:      p.BaseUnit,
		DisplayUnit:   p.DisplayUnit,
		Display:       display,
		TotalInvested: p.TotalInvested,
		AverageCost:   p.AverageCost(),
		MinStock:      p.MinStock,
		BelowMinStock: p.BelowMinStock(),
		Supplier:      p.Supplier,
		Notes:         p.Notes,
		UpdatedAt:     p.UpdatedAt,
	}
}

type PurchaseResponse struct {
	ID           string              `json:"id"`
	ProductID    int64               `json:"product_id"`
	Quantity     decimal.Decimal     `json:"quantity"`
	Unit         units.Unit          `json:"unit"`
	UnitPrice    decimal.Decimal     `json:"unit_price"`
	Type         domain.PurchaseType `json:"purchase_type"`
	Supplier     string              `json:"supplier"`
	BaseQuantity decimal.Decimal     `json:"base_quantity"`
	TotalCost    decimal.Decimal     `json:"total_cost"`
	UnitCostBase decimal.Decimal     `json:"unit_cost_base"`
	PurchasedAt  time.Time           `json:"purchased_at"`
}

func newPurchaseResponse(p domain.Purchase) PurchaseResponse {
	return PurchaseResponse{
		ID:           p.ID,
		ProductID:    p.ProductID,
		Quantity:     p.Quantity,
		Unit:         p.Unit,
		UnitPrice:    p.UnitPrice,
		Type:         p.Type,
		Supplier:     p.Supplier,
		BaseQuantity: p.BaseQuantity,
		TotalCost:    p.TotalCost,
		UnitCostBase: p.UnitCostBase,
		PurchasedAt:  p.PurchasedAt,
	}
}

type AutoconsumptionResponse struct {
	ID           string          `json:"id"`
	ProductID    int64           `json:"product_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         units.Unit      `json:"unit"`
	BaseQuantity decimal.Decimal `json:"base_quantity"`
	AverageCost  decimal.Decimal `json:"average_cost"`
	Cost         decimal.Decimal `json:"cost"`
	Reason       string          `json:"reason"`
	ConsumedAt   time.Time       `json:"consumed_at"`
}

type SaleResponse struct {
	ID           string          `json:"id"`
	RecipeID     int64           `json:"recipe_id"`
	QuantitySold int64           `json:"quantity_sold"`
	SalePrice    decimal.Decimal `json:"sale_price"`
	ClientName   string          `json:"client_name"`
	Revenue      decimal.Decimal `json:"revenue"`
	CostOfGoods  decimal.Decimal `json:"cost_of_goods"`
	SoldAt       time.Time       `json:"sold_at"`
}

type ProductionResponse struct {
	ID               string          `json:"id"`
	ProductID        int64           `json:"product_id"`
	QuantityProduced decimal.Decimal `json:"quantity_produced"`
	UnitProduced     units.Unit      `json:"unit_produced"`
	CostPerUnit      decimal.Decimal `json:"cost_per_unit"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	Ingredients      int             `json:"ingredients"`
	ProducedAt       time.Time       `json:"produced_at"`
}

type RecipeCostResponse struct {
	RecipeID       int64            `json:"recipe_id"`
	IngredientCost decimal.Decimal  `json:"ingredient_cost"`
	LaborCost      decimal.Decimal  `json:"labor_cost"`
	ProfitPerUnit  *decimal.Decimal `json:"profit_per_unit,omitempty"`
	Preview        bool             `json:"preview"`
}

type RecipeAnalysisResponse struct {
	RecipeID       int64           `json:"recipe_id"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	IngredientCost decimal.Decimal `json:"ingredient_cost"`
	LaborCost      decimal.Decimal `json:"labor_cost"`
	SalePrice      decimal.Decimal `json:"sale_price"`
	ProfitPerUnit  decimal.Decimal `json:"profit_per_unit"`
}

func newRecipeAnalysisResponse(s service.RecipeCostSummary) RecipeAnalysisResponse {
	return RecipeAnalysisResponse(s)
}

type RecipeSalesResponse struct {
	RecipeID  int64           `json:"recipe_id"`
	Name      string          `json:"name"`
	UnitsSold int64           `json:"units_sold"`
	Revenue   decimal.Decimal `json:"revenue"`
}

type ClientSpendResponse struct {
	Name      string          `json:"name"`
	Purchases int             `json:"purchases"`
	Spent     decimal.Decimal `json:"spent"`
}

type DailyRevenueResponse struct {
	Day     string          `json:"day"`
	Revenue decimal.Decimal `json:"revenue"`
}

type RecipeProfitResponse struct {
	RecipeID       int64           `json:"recipe_id"`
	Name           string          `json:"name"`
	UnitsSold      int64           `json:"units_sold"`
	Revenue        decimal.Decimal `json:"revenue"`
	IngredientCost decimal.Decimal `json:"ingredient_cost"`
	LaborCost      decimal.Decimal `json:"labor_cost"`
	Profit         decimal.Decimal `json:"profit"`
}

type TotalsResponse struct {
	Revenue       decimal.Decimal `json:"revenue"`
	CostOfGoods   decimal.Decimal `json:"cost_of_goods"`
	LaborCost     decimal.Decimal `json:"labor_cost"`
	Profit        decimal.Decimal `json:"profit"`
	TotalInvested decimal.Decimal `json:"total_invested"`
}
