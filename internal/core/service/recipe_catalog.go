package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/units"
	"github.com/rl1809/stock-ledger/internal/port"
)

// RecipeCatalog defines recipes. Recipes are not edited or removed here.
type RecipeCatalog struct {
	store port.Store
	options
}

func NewRecipeCatalog(store port.Store, opts ...Option) *RecipeCatalog {
	return &RecipeCatalog{store: store, options: newOptions(opts)}
}

func (c *RecipeCatalog) Create(ctx context.Context, name, category string, salePrice decimal.Decimal) (id int64, err error) {
	started := c.now()
	defer func() { c.track(opDefineRecipe, started, err) }()

	name = strings.TrimSpace(name)
	if name == "" {
		return 0, domain.Invalid("name", "must not be empty")
	}
	if salePrice.IsNegative() {
		return 0, domain.Invalid("sale_price", "must not be negative")
	}
	if err := domain.CheckAmount("sale_price", salePrice); err != nil {
		return 0, err
	}

	err = c.store.WithTx(ctx, func(tx port.Tx) error {
		existing, err := tx.GetRecipeByName(ctx, name)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: recipe %q", domain.ErrDuplicateName, name)
		}
		id, err = tx.InsertRecipe(ctx, &domain.Recipe{
			Name:           name,
			Category:       strings.TrimSpace(category),
			SalePrice:      domain.Round(salePrice),
			TotalLaborCost: decimal.Zero,
			CreatedAt:      c.now(),
		})
		return err
	})
	if err != nil {
		return 0, err
	}

	c.log.Info("recipe created", zap.Int64("recipe_id", id), zap.String("name", name))
	return id, nil
}

// AddIngredient sets the amount of a product needed per unit of recipe
// output, replacing any earlier amount for the same product.
func (c *RecipeCatalog) AddIngredient(ctx context.Context, recipeID, productID int64, quantity decimal.Decimal, unit units.Unit) (err error) {
	started := c.now()
	defer func() { c.track(opDefineRecipe, started, err) }()

	if !quantity.IsPositive() {
		return domain.Invalid("quantity", "must be positive")
	}
	if err := domain.CheckAmount("quantity", quantity); err != nil {
		return err
	}
	if _, err := units.MagnitudeOf(unit); err != nil {
		return fmt.Errorf("ingredient unit: %w", err)
	}

	err = c.store.WithTx(ctx, func(tx port.Tx) error {
		r, err := tx.GetRecipe(ctx, recipeID)
		if err != nil {
			return err
		}
		if r == nil {
			return domain.NotFound("recipe", recipeID)
		}
		p, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if p == nil {
			return domain.NotFound("product", productID)
		}
		if !units.Compatible(unit, p.BaseUnit) {
			return fmt.Errorf("%w: ingredient %q stocked in %s, got %s", domain.ErrUnitMismatch, p.Name, p.BaseUnit, unit)
		}
		return tx.UpsertRecipeIngredient(ctx, domain.RecipeIngredient{
			RecipeID:  recipeID,
			ProductID: productID,
			Quantity:  quantity,
			Unit:      unit,
		})
	})
	if err != nil {
		return err
	}

	c.invalidateCost(ctx, recipeID)
	return nil
}

// AddWorker assigns a worker and keeps the recipe's total labor cost in sync.
func (c *RecipeCatalog) AddWorker(ctx context.Context, recipeID int64, name string, payment decimal.Decimal) (id int64, err error) {
	started := c.now()
	defer func() { c.track(opDefineRecipe, started, err) }()

	name = strings.TrimSpace(name)
	if name == "" {
		return 0, domain.Invalid("worker_name", "must not be empty")
	}
	if payment.IsNegative() {
		return 0, domain.Invalid("payment", "must not be negative")
	}
	if err := domain.CheckAmount("payment", payment); err != nil {
		return 0, err
	}

	err = c.store.WithTx(ctx, func(tx port.Tx) error {
		r, err := tx.GetRecipe(ctx, recipeID)
		if err != nil {
			return err
		}
		if r == nil {
			return domain.NotFound("recipe", recipeID)
		}
		id, err = tx.InsertWorker(ctx, &domain.Worker{RecipeID: recipeID, Name: name, Payment: payment})
		if err != nil {
			return err
		}
		_, err = tx.RefreshRecipeLaborCost(ctx, recipeID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (c *RecipeCatalog) Get(ctx context.Context, id int64) (*domain.Recipe, error) {
	r, err := c.store.GetRecipe(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, domain.NotFound("recipe", id)
	}
	return r, nil
}

func (c *RecipeCatalog) List(ctx context.Context, category string) ([]domain.Recipe, error) {
	return c.store.ListRecipes(ctx, category)
}

func (c *RecipeCatalog) invalidateCost(ctx context.Context, recipeID int64) {
	if c.costs == nil {
		return
	}
	if err := c.costs.InvalidateRecipeCost(ctx, recipeID); err != nil {
		c.log.Warn("invalidate recipe cost", zap.Int64("recipe_id", recipeID), zap.Error(err))
	}
}
