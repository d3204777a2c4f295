package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/units"
	"github.com/rl1809/stock-ledger/internal/port"
)

type AutoconsumptionInput struct {
	RequestID string
	ProductID int64
	Quantity  decimal.Decimal
	Unit      units.Unit
	Reason    string
}

func (in AutoconsumptionInput) validate() error {
	if in.ProductID <= 0 {
		return domain.Invalid("product_id", "must be positive")
	}
	if !in.Quantity.IsPositive() {
		return domain.Invalid("quantity", "must be positive")
	}
	if err := domain.CheckAmount("quantity", in.Quantity); err != nil {
		return err
	}
	if _, err := units.MagnitudeOf(in.Unit); err != nil {
		return fmt.Errorf("consumed unit: %w", err)
	}
	return nil
}

type AutoconsumptionService struct {
	store  port.Store
	ledger *Ledger
	options
}

func NewAutoconsumptionService(store port.Store, ledger *Ledger, opts ...Option) *AutoconsumptionService {
	return &AutoconsumptionService{store: store, ledger: ledger, options: newOptions(opts)}
}

// RegisterAutoconsumption removes stock used internally and records its cost
// at the average in effect before the removal.
func (s *AutoconsumptionService) RegisterAutoconsumption(ctx context.Context, in AutoconsumptionInput) (recordID string, err error) {
	started := s.now()
	defer func() { s.track(opAutoconsumption, started, err) }()

	if err = in.validate(); err != nil {
		return "", err
	}
	release, err := s.claim(ctx, opAutoconsumption, in.RequestID)
	if err != nil {
		return "", err
	}
	defer func() { release(err) }()

	var record domain.Autoconsumption
	err = s.store.WithTx(ctx, func(tx port.Tx) error {
		locked, err := tx.LockProducts(ctx, in.ProductID)
		if err != nil {
			return err
		}
		p := locked[in.ProductID]

		base, err := units.Convert(in.Quantity, in.Unit, p.BaseUnit)
		if err != nil {
			return fmt.Errorf("consume %q: %w", p.Name, err)
		}
		base = domain.Round(base)
		averageCost := p.AverageCost()

		if _, err := s.ledger.ApplyDecrease(ctx, tx, p.ID, base); err != nil {
			return err
		}

		record = domain.Autoconsumption{
			ID:           uuid.NewString(),
			ProductID:    p.ID,
			Quantity:     in.Quantity,
			Unit:         in.Unit,
			BaseQuantity: base,
			AverageCost:  averageCost,
			Cost:         domain.Round(base.Mul(averageCost)),
			Reason:       in.Reason,
			ConsumedAt:   s.now(),
		}
		return tx.InsertAutoconsumption(ctx, &record)
	})
	if err != nil {
		return "", err
	}

	s.log.Info("autoconsumption registered",
		zap.String("record_id", record.ID),
		zap.Int64("product_id", record.ProductID),
		zap.Stringer("base_quantity", record.BaseQuantity),
		zap.Stringer("cost", record.Cost),
	)
	return record.ID, nil
}
