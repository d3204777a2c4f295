package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/units"
	"github.com/rl1809/stock-ledger/internal/port"
)

// RecipeCostCalculator prices recipes from live ledger averages. It never
// mutates state.
type RecipeCostCalculator struct {
	store port.Reader
	options
}

func NewRecipeCostCalculator(store port.Reader, opts ...Option) *RecipeCostCalculator {
	return &RecipeCostCalculator{store: store, options: newOptions(opts)}
}

type RecipeCostSummary struct {
	RecipeID       int64
	Name           string
	Category       string
	IngredientCost decimal.Decimal
	LaborCost      decimal.Decimal
	SalePrice      decimal.Decimal
	ProfitPerUnit  decimal.Decimal
}

func (c *RecipeCostCalculator) recipe(ctx context.Context, id int64) (*domain.Recipe, error) {
	r, err := c.store.GetRecipe(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, domain.NotFound("recipe", id)
	}
	return r, nil
}

func (c *RecipeCostCalculator) ingredientCost(ctx context.Context, r *domain.Recipe) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, ing := range r.Ingredients {
		p, err := c.store.GetProduct(ctx, ing.ProductID)
		if err != nil {
			return decimal.Zero, err
		}
		if p == nil {
			return decimal.Zero, domain.NotFound("product", ing.ProductID)
		}
		base, err := units.Convert(ing.Quantity, ing.Unit, p.BaseUnit)
		if err != nil {
			return decimal.Zero, fmt.Errorf("recipe %q ingredient %q: %w", r.Name, p.Name, err)
		}
		total = total.Add(base.Mul(p.AverageCost()))
	}
	return domain.Round(total), nil
}

// CalculateRecipeCost is the ingredient cost of one unit of the recipe.
func (c *RecipeCostCalculator) CalculateRecipeCost(ctx context.Context, recipeID int64) (decimal.Decimal, error) {
	r, err := c.recipe(ctx, recipeID)
	if err != nil {
		return decimal.Zero, err
	}
	return c.ingredientCost(ctx, r)
}

func (c *RecipeCostCalculator) CalculateProfitPerUnit(ctx context.Context, recipeID int64, salePrice decimal.Decimal) (decimal.Decimal, error) {
	if err := domain.CheckAmount("sale_price", salePrice); err != nil {
		return decimal.Zero, err
	}
	cost, err := c.CalculateRecipeCost(ctx, recipeID)
	if err != nil {
		return decimal.Zero, err
	}
	return salePrice.Sub(cost), nil
}

func (c *RecipeCostCalculator) CalculateLaborCost(ctx context.Context, recipeID int64) (decimal.Decimal, error) {
	r, err := c.recipe(ctx, recipeID)
	if err != nil {
		return decimal.Zero, err
	}
	return r.LaborCost(), nil
}

// PreviewRecipeCost may answer from the cost cache. Cache failures fall back
// to a live calculation.
func (c *RecipeCostCalculator) PreviewRecipeCost(ctx context.Context, recipeID int64) (cost decimal.Decimal, err error) {
	started := c.now()
	defer func() { c.track(opRecipeCostPreview, started, err) }()

	if c.costs != nil {
		cached, ok, err := c.costs.GetRecipeCost(ctx, recipeID)
		if err != nil {
			c.log.Warn("read cached recipe cost", zap.Int64("recipe_id", recipeID), zap.Error(err))
		} else if ok {
			return cached, nil
		}
	}

	cost, err = c.CalculateRecipeCost(ctx, recipeID)
	if err != nil {
		return decimal.Zero, err
	}
	if c.costs != nil {
		if err := c.costs.SetRecipeCost(ctx, recipeID, cost); err != nil {
			c.log.Warn("cache recipe cost", zap.Int64("recipe_id", recipeID), zap.Error(err))
		}
	}
	return cost, nil
}

// Analysis prices every recipe, optionally limited to one category.
func (c *RecipeCostCalculator) Analysis(ctx context.Context, category string) ([]RecipeCostSummary, error) {
	recipes, err := c.store.ListRecipes(ctx, category)
	if err != nil {
		return nil, err
	}

	out := make([]RecipeCostSummary, 0, len(recipes))
	for i := range recipes {
		r := &recipes[i]
		cost, err := c.ingredientCost(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, RecipeCostSummary{
			RecipeID:       r.ID,
			Name:           r.Name,
			Category:       r.Category,
			IngredientCost: cost,
			LaborCost:      r.LaborCost(),
			SalePrice:      r.SalePrice,
			ProfitPerUnit:  r.SalePrice.Sub(cost),
		})
	}
	return out, nil
}
