package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/units"
	"github.com/rl1809/stock-ledger/internal/port"
)

type SaleInput struct {
	RequestID    string
	RecipeID     int64
	QuantitySold int64
	SalePrice    decimal.Decimal
	ClientName   string
	ClientNotes  string
}

func (in SaleInput) validate() error {
	if in.RecipeID <= 0 {
		return domain.Invalid("recipe_id", "must be positive")
	}
	if in.QuantitySold <= 0 {
		return domain.Invalid("quantity_sold", "must be a positive integer")
	}
	if err := domain.CheckAmount("quantity_sold", decimal.NewFromInt(in.QuantitySold)); err != nil {
		return err
	}
	if !in.SalePrice.IsPositive() {
		return domain.Invalid("sale_price", "must be positive")
	}
	return domain.CheckAmount("sale_price", in.SalePrice)
}

type SalesService struct {
	store  port.Store
	ledger *Ledger
	options
}

func NewSalesService(store port.Store, ledger *Ledger, opts ...Option) *SalesService {
	return &SalesService{store: store, ledger: ledger, options: newOptions(opts)}
}

// RegisterSale consumes the recipe's ingredients for QuantitySold units and
// records the sale. A shortfall on any ingredient leaves every stock untouched.
func (s *SalesService) RegisterSale(ctx context.Context, in SaleInput) (saleID string, err error) {
	started := s.now()
	defer func() { s.track(opSale, started, err) }()

	if err = in.validate(); err != nil {
		return "", err
	}
	release, err := s.claim(ctx, opSale, in.RequestID)
	if err != nil {
		return "", err
	}
	defer func() { release(err) }()

	var record domain.Sale
	err = s.store.WithTx(ctx, func(tx port.Tx) error {
		recipe, err := tx.GetRecipe(ctx, in.RecipeID)
		if err != nil {
			return err
		}
		if recipe == nil {
			return domain.NotFound("recipe", in.RecipeID)
		}
		if len(recipe.Ingredients) == 0 {
			return domain.Invalid("recipe", fmt.Sprintf("%q has no ingredients", recipe.Name))
		}

		ids := make([]int64, 0, len(recipe.Ingredients))
		for _, ing := range recipe.Ingredients {
			ids = append(ids, ing.ProductID)
		}
		locked, err := tx.LockProducts(ctx, ids...)
		if err != nil {
			return err
		}

		sold := decimal.NewFromInt(in.QuantitySold)
		required := make(map[int64]decimal.Decimal, len(recipe.Ingredients))
		for _, ing := range recipe.Ingredients {
			p := locked[ing.ProductID]
			base, err := units.Convert(ing.Quantity.Mul(sold), ing.Unit, p.BaseUnit)
			if err != nil {
				return fmt.Errorf("ingredient %q: %w", p.Name, err)
			}
			required[p.ID] = required[p.ID].Add(domain.Round(base))
		}

		consumed := make([]int64, 0, len(required))
		for id := range required {
			consumed = append(consumed, id)
		}
		slices.Sort(consumed)

		costOfGoods := decimal.Zero
		for _, id := range consumed {
			removed, err := s.ledger.ApplyDecrease(ctx, tx, id, required[id])
			if err != nil {
				return err
			}
			costOfGoods = costOfGoods.Add(removed)
		}

		record = domain.Sale{
			ID:           uuid.NewString(),
			RecipeID:     recipe.ID,
			QuantitySold: in.QuantitySold,
			SalePrice:    in.SalePrice,
			ClientName:   in.ClientName,
			ClientNotes:  in.ClientNotes,
			Revenue:      domain.Round(in.SalePrice.Mul(sold)),
			CostOfGoods:  costOfGoods,
			SoldAt:       s.now(),
		}
		return tx.InsertSale(ctx, &record)
	})
	if err != nil {
		return "", err
	}

	s.log.Info("sale registered",
		zap.String("sale_id", record.ID),
		zap.Int64("recipe_id", record.RecipeID),
		zap.Int64("quantity", record.QuantitySold),
		zap.Stringer("cost_of_goods", record.CostOfGoods),
	)
	return record.ID, nil
}
