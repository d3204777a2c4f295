package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/units"
	"github.com/rl1809/stock-ledger/internal/port"
)

// InternalSupplier is recorded on products first created by a production run.
const InternalSupplier = "internal production"

// IngredientUse is the total amount of one ingredient consumed by a run.
type IngredientUse struct {
	ProductID int64
	Quantity  decimal.Decimal
	Unit      units.Unit
}

type ProductionInput struct {
	RequestID        string
	ElaboratedName   string
	Ingredients      []IngredientUse
	QuantityProduced decimal.Decimal
	UnitProduced     units.Unit
}

func (in *ProductionInput) validate() error {
	in.ElaboratedName = strings.TrimSpace(in.ElaboratedName)
	if in.ElaboratedName == "" {
		return domain.Invalid("elaborated_name", "must not be empty")
	}
	if !in.QuantityProduced.IsPositive() {
		return domain.Invalid("quantity_produced", "must be positive")
	}
	if err := domain.CheckAmount("quantity_produced", in.QuantityProduced); err != nil {
		return err
	}
	if _, err := units.MagnitudeOf(in.UnitProduced); err != nil {
		return fmt.Errorf("produced unit: %w", err)
	}
	if len(in.Ingredients) == 0 {
		return domain.Invalid("ingredients", "must not be empty")
	}
	for i, ing := range in.Ingredients {
		if ing.ProductID <= 0 {
			return domain.Invalid(fmt.Sprintf("ingredients[%d].product_id", i), "must be positive")
		}
		if !ing.Quantity.IsPositive() {
			return domain.Invalid(fmt.Sprintf("ingredients[%d].quantity", i), "must be positive")
		}
		if err := domain.CheckAmount(fmt.Sprintf("ingredients[%d].quantity", i), ing.Quantity); err != nil {
			return err
		}
		if _, err := units.MagnitudeOf(ing.Unit); err != nil {
			return fmt.Errorf("ingredient %d unit: %w", ing.ProductID, err)
		}
	}
	return nil
}

type ProductionService struct {
	store  port.Store
	ledger *Ledger
	options
}

func NewProductionService(store port.Store, ledger *Ledger, opts ...Option) *ProductionService {
	return &ProductionService{store: store, ledger: ledger, options: newOptions(opts)}
}

// RegisterProduction turns ingredients into an elaborated product valued at
// the current average cost of what it consumed. Either every ingredient is
// consumed and the product credited, or nothing changes.
func (s *ProductionService) RegisterProduction(ctx context.Context, in ProductionInput) (productID int64, err error) {
	started := s.now()
	defer func() { s.track(opProduction, started, err) }()

	if err = in.validate(); err != nil {
		return 0, err
	}
	release, err := s.claim(ctx, opProduction, in.RequestID)
	if err != nil {
		return 0, err
	}
	defer func() { release(err) }()

	var record domain.Production
	err = s.store.WithTx(ctx, func(tx port.Tx) error {
		elaborated, err := tx.GetProductByName(ctx, in.ElaboratedName)
		if err != nil {
			return err
		}

		ids := make([]int64, 0, len(in.Ingredients)+1)
		for _, ing := range in.Ingredients {
			if elaborated != nil && ing.ProductID == elaborated.ID {
				return domain.Invalid("ingredients", fmt.Sprintf("%q cannot consume itself", elaborated.Name))
			}
			ids = append(ids, ing.ProductID)
		}
		if elaborated != nil {
			ids = append(ids, elaborated.ID)
		}
		locked, err := tx.LockProducts(ctx, ids...)
		if err != nil {
			return err
		}

		required := make(map[int64]decimal.Decimal, len(in.Ingredients))
		linesOf := make(map[int64][]int, len(in.Ingredients))
		lines := make([]domain.ProductionLine, 0, len(in.Ingredients))
		for _, ing := range in.Ingredients {
			p := locked[ing.ProductID]
			base, err := units.Convert(ing.Quantity, ing.Unit, p.BaseUnit)
			if err != nil {
				return fmt.Errorf("ingredient %q: %w", p.Name, err)
			}
			base = domain.Round(base)

			required[p.ID] = required[p.ID].Add(base)
			linesOf[p.ID] = append(linesOf[p.ID], len(lines))
			lines = append(lines, domain.ProductionLine{
				ProductID:    p.ID,
				Quantity:     ing.Quantity,
				Unit:         ing.Unit,
				BaseQuantity: base,
			})
		}

		consumed := make([]int64, 0, len(required))
		for id := range required {
			consumed = append(consumed, id)
		}
		slices.Sort(consumed)

		// Check every ingredient before touching any of them.
		var shortfalls []error
		for _, id := range consumed {
			p := locked[id]
			if required[id].GreaterThan(p.Quantity) {
				shortfalls = append(shortfalls, &domain.InsufficientStockError{
					ProductID: id,
					Name:      p.Name,
					Unit:      p.BaseUnit,
					Available: p.Quantity,
					Required:  required[id],
				})
			}
		}
		switch len(shortfalls) {
		case 0:
		case 1:
			return shortfalls[0]
		default:
			return errors.Join(shortfalls...)
		}

		producedBase := in.QuantityProduced
		if elaborated != nil {
			productID = elaborated.ID
			producedBase, err = units.Convert(in.QuantityProduced, in.UnitProduced, elaborated.BaseUnit)
			if err != nil {
				return fmt.Errorf("produced quantity of %q: %w", elaborated.Name, err)
			}
		} else {
			productID, err = s.ledger.createProduct(ctx, tx, NewProduct{
				Name:        in.ElaboratedName,
				BaseUnit:    in.UnitProduced,
				DisplayUnit: in.UnitProduced,
				MinStock:    decimal.Zero,
				Supplier:    InternalSupplier,
			})
			if err != nil {
				return err
			}
		}
		producedBase = domain.Round(producedBase)

		// The elaborated product is credited with exactly what left the ingredients.
		totalCost := decimal.Zero
		for _, id := range consumed {
			removed, err := s.ledger.ApplyDecrease(ctx, tx, id, required[id])
			if err != nil {
				return err
			}
			totalCost = totalCost.Add(removed)
			allocateLineCost(lines, linesOf[id], required[id], removed)
		}
		if _, err := s.ledger.ApplyIncrease(ctx, tx, productID, producedBase, totalCost); err != nil {
			return err
		}
		costPerUnit := domain.Round(totalCost.Div(in.QuantityProduced))

		record = domain.Production{
			ID:               uuid.NewString(),
			ProductID:        productID,
			QuantityProduced: in.QuantityProduced,
			UnitProduced:     in.UnitProduced,
			BaseQuantity:     producedBase,
			CostPerUnit:      costPerUnit,
			TotalCost:        totalCost,
			Lines:            lines,
			ProducedAt:       s.now(),
		}
		return tx.InsertProduction(ctx, &record)
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("production registered",
		zap.String("production_id", record.ID),
		zap.Int64("product_id", productID),
		zap.Int("ingredients", len(record.Lines)),
		zap.Stringer("cost_per_unit", record.CostPerUnit),
	)
	return productID, nil
}

// allocateLineCost splits the cost removed from one product across the lines
// that consumed it, in proportion to their base quantity. The last line takes
// the remainder so the lines add up to removed.
func allocateLineCost(lines []domain.ProductionLine, idx []int, required, removed decimal.Decimal) {
	left := removed
	for n, i := range idx {
		if n == len(idx)-1 {
			lines[i].Cost = left
			return
		}
		share := decimal.Zero
		if required.IsPositive() {
			share = domain.Round(removed.Mul(lines[i].BaseQuantity).DivRound(required, 2*domain.Scale))
		}
		lines[i].Cost = share
		left = left.Sub(share)
	}
}
