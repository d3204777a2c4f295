package service

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

// Reports answers read-only questions over committed data.
type Reports struct {
	store port.Reader
	options
}

func NewReports(store port.Reader, opts ...Option) *Reports {
	return &Reports{store: store, options: newOptions(opts)}
}

func (r *Reports) since(days int) (time.Time, error) {
	if days <= 0 {
		return time.Time{}, domain.Invalid("days", "must be positive")
	}
	return r.now().AddDate(0, 0, -days), nil
}

// LowStock lists products whose stock is under their reorder threshold.
func (r *Reports) LowStock(ctx context.Context) ([]domain.Product, error) {
	products, err := r.store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.Product
	for _, p := range products {
		if p.BelowMinStock() {
			out = append(out, p)
		}
	}
	return out, nil
}

// PurchaseHistory returns purchases of the last days, newest first. A zero
// productID covers every product.
func (r *Reports) PurchaseHistory(ctx context.Context, days int, productID int64) ([]domain.Purchase, error) {
	since, err := r.since(days)
	if err != nil {
		return nil, err
	}
	return r.store.ListPurchases(ctx, since, productID)
}

func (r *Reports) AutoconsumptionHistory(ctx context.Context, days int) ([]domain.Autoconsumption, error) {
	since, err := r.since(days)
	if err != nil {
		return nil, err
	}
	return r.store.ListAutoconsumption(ctx, since)
}

// AutoconsumptionCost sums the cost captured by autoconsumption in the last days.
func (r *Reports) AutoconsumptionCost(ctx context.Context, days int) (decimal.Decimal, error) {
	records, err := r.AutoconsumptionHistory(ctx, days)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, a := range records {
		total = total.Add(a.Cost)
	}
	return total, nil
}

func (r *Reports) SalesHistory(ctx context.Context, days int) ([]domain.Sale, error) {
	since, err := r.since(days)
	if err != nil {
		return nil, err
	}
	return r.store.ListSales(ctx, since)
}

func (r *Reports) ProductionHistory(ctx context.Context, days int) ([]domain.Production, error) {
	since, err := r.since(days)
	if err != nil {
		return nil, err
	}
	return r.store.ListProductions(ctx, since)
}

// DefaultTopClients is the size of the TopClients ranking when no limit is given.
const DefaultTopClients = 10

// allTime is the lower bound used by reports that cover every committed sale.
var allTime = time.Unix(0, 0).UTC()

// RecipeSales aggregates the units sold and revenue of one recipe.
type RecipeSales struct {
	RecipeID  int64
	Name      string
	UnitsSold int64
	Revenue   decimal.Decimal
}

// ClientSpend aggregates the sales of one named client.
type ClientSpend struct {
	Name      string
	Purchases int
	Spent     decimal.Decimal
}

// DailyRevenue is the revenue of one UTC calendar day.
type DailyRevenue struct {
	Day     time.Time
	Revenue decimal.Decimal
}

// RecipeProfit splits the revenue of a recipe into ingredient cost, labor
// and profit. IngredientCost is the cost of goods captured by each sale.
type RecipeProfit struct {
	RecipeID       int64
	Name           string
	UnitsSold      int64
	Revenue        decimal.Decimal
	IngredientCost decimal.Decimal
	LaborCost      decimal.Decimal
	Profit         decimal.Decimal
}

// Totals summarises every committed sale and the current valuation of stock.
type Totals struct {
	Revenue       decimal.Decimal
	CostOfGoods   decimal.Decimal
	LaborCost     decimal.Decimal
	Profit        decimal.Decimal
	TotalInvested decimal.Decimal
}

func (r *Reports) recipesByID(ctx context.Context) (map[int64]domain.Recipe, error) {
	recipes, err := r.store.ListRecipes(ctx, "")
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]domain.Recipe, len(recipes))
	for _, rec := range recipes {
		byID[rec.ID] = rec
	}
	return byID, nil
}

// SalesByRecipe lists the recipes that were sold, highest revenue first.
func (r *Reports) SalesByRecipe(ctx context.Context) ([]RecipeSales, error) {
	sales, err := r.store.ListSales(ctx, allTime)
	if err != nil {
		return nil, err
	}
	recipes, err := r.recipesByID(ctx)
	if err != nil {
		return nil, err
	}

	byRecipe := make(map[int64]*RecipeSales)
	for _, s := range sales {
		agg, ok := byRecipe[s.RecipeID]
		if !ok {
			agg = &RecipeSales{RecipeID: s.RecipeID, Name: recipes[s.RecipeID].Name, Revenue: decimal.Zero}
			byRecipe[s.RecipeID] = agg
		}
		agg.UnitsSold += s.QuantitySold
		agg.Revenue = agg.Revenue.Add(s.Revenue)
	}

	out := make([]RecipeSales, 0, len(byRecipe))
	for _, agg := range byRecipe {
		out = append(out, *agg)
	}
	slices.SortFunc(out, func(a, b RecipeSales) int {
		if c := b.Revenue.Cmp(a.Revenue); c != 0 {
			return c
		}
		return cmp.Compare(a.RecipeID, b.RecipeID)
	})
	return out, nil
}

// TopClients ranks named clients by total spend. Sales without a client name
// are ignored. A non-positive limit means DefaultTopClients.
func (r *Reports) TopClients(ctx context.Context, limit int) ([]ClientSpend, error) {
	if limit <= 0 {
		limit = DefaultTopClients
	}
	sales, err := r.store.ListSales(ctx, allTime)
	if err != nil {
		return nil, err
	}

	byClient := make(map[string]*ClientSpend)
	for _, s := range sales {
		name := strings.TrimSpace(s.ClientName)
		if name == "" {
			continue
		}
		agg, ok := byClient[name]
		if !ok {
			agg = &ClientSpend{Name: name, Spent: decimal.Zero}
			byClient[name] = agg
		}
		agg.Purchases++
		agg.Spent = agg.Spent.Add(s.Revenue)
	}

	out := make([]ClientSpend, 0, len(byClient))
	for _, agg := range byClient {
		out = append(out, *agg)
	}
	slices.SortFunc(out, func(a, b ClientSpend) int {
		if c := b.Spent.Cmp(a.Spent); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DailySales returns the revenue of each day with sales in the last days,
// oldest first.
func (r *Reports) DailySales(ctx context.Context, days int) ([]DailyRevenue, error) {
	sales, err := r.SalesHistory(ctx, days)
	if err != nil {
		return nil, err
	}

	byDay := make(map[time.Time]decimal.Decimal)
	for _, s := range sales {
		at := s.SoldAt.UTC()
		day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
		byDay[day] = byDay[day].Add(s.Revenue)
	}

	out := make([]DailyRevenue, 0, len(byDay))
	for day, revenue := range byDay {
		out = append(out, DailyRevenue{Day: day, Revenue: revenue})
	}
	slices.SortFunc(out, func(a, b DailyRevenue) int { return a.Day.Compare(b.Day) })
	return out, nil
}

// ProfitByRecipe reports every recipe, sold or not, highest revenue first.
// Labor is charged at the recipe's current labor cost per unit sold.
func (r *Reports) ProfitByRecipe(ctx context.Context) ([]RecipeProfit, error) {
	recipes, err := r.store.ListRecipes(ctx, "")
	if err != nil {
		return nil, err
	}
	sales, err := r.store.ListSales(ctx, allTime)
	if err != nil {
		return nil, err
	}

	byRecipe := make(map[int64]*RecipeProfit, len(recipes))
	labor := make(map[int64]decimal.Decimal, len(recipes))
	out := make([]RecipeProfit, len(recipes))
	for i, rec := range recipes {
		labor[rec.ID] = rec.TotalLaborCost
		out[i] = RecipeProfit{
			RecipeID:       rec.ID,
			Name:           rec.Name,
			Revenue:        decimal.Zero,
			IngredientCost: decimal.Zero,
			LaborCost:      decimal.Zero,
		}
		byRecipe[rec.ID] = &out[i]
	}

	for _, s := range sales {
		agg, ok := byRecipe[s.RecipeID]
		if !ok {
			continue
		}
		agg.UnitsSold += s.QuantitySold
		agg.Revenue = agg.Revenue.Add(s.Revenue)
		agg.IngredientCost = agg.IngredientCost.Add(s.CostOfGoods)
		agg.LaborCost = agg.LaborCost.Add(labor[s.RecipeID].Mul(decimal.NewFromInt(s.QuantitySold)))
	}
	for i := range out {
		out[i].Profit = out[i].Revenue.Sub(out[i].IngredientCost).Sub(out[i].LaborCost)
	}

	slices.SortStableFunc(out, func(a, b RecipeProfit) int {
		if c := b.Revenue.Cmp(a.Revenue); c != 0 {
			return c
		}
		return cmp.Compare(a.RecipeID, b.RecipeID)
	})
	return out, nil
}

// TotalInvested sums the valuation of every product in stock.
func (r *Reports) TotalInvested(ctx context.Context) (decimal.Decimal, error) {
	products, err := r.store.ListProducts(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, p := range products {
		total = total.Add(p.TotalInvested)
	}
	return total, nil
}

// Totals adds up every recipe of ProfitByRecipe and the stock valuation.
func (r *Reports) Totals(ctx context.Context) (Totals, error) {
	rows, err := r.ProfitByRecipe(ctx)
	if err != nil {
		return Totals{}, err
	}
	t := Totals{
		Revenue:     decimal.Zero,
		CostOfGoods: decimal.Zero,
		LaborCost:   decimal.Zero,
	}
	for _, row := range rows {
		t.Revenue = t.Revenue.Add(row.Revenue)
		t.CostOfGoods = t.CostOfGoods.Add(row.IngredientCost)
		t.LaborCost = t.LaborCost.Add(row.LaborCost)
	}
	t.Profit = t.Revenue.Sub(t.CostOfGoods).Sub(t.LaborCost)

	if t.TotalInvested, err = r.TotalInvested(ctx); err != nil {
		return Totals{}, err
	}
	return t, nil
}
