package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/units"
	"github.com/rl1809/stock-ledger/internal/port"
)

type PurchaseInput struct {
	RequestID   string
	ProductName string
	Quantity    decimal.Decimal
	Unit        units.Unit
	UnitPrice   decimal.Decimal
	Type        domain.PurchaseType
	Supplier    string
	Notes       string

	// Package purchases need at least one of these. Weight wins when both are set.
	PackageWeight   *decimal.Decimal
	UnitsPerPackage *int64

	// Required only when ProductName does not exist yet.
	MinStock    *decimal.Decimal
	DisplayUnit units.Unit
}

func (in *PurchaseInput) validate() error {
	in.ProductName = strings.TrimSpace(in.ProductName)
	if in.ProductName == "" {
		return domain.Invalid("product_name", "must not be empty")
	}
	if !in.Quantity.IsPositive() {
		return domain.Invalid("quantity", "must be positive")
	}
	if err := domain.CheckAmount("quantity", in.Quantity); err != nil {
		return err
	}
	if !in.UnitPrice.IsPositive() {
		return domain.Invalid("unit_price", "must be positive")
	}
	if err := domain.CheckAmount("unit_price", in.UnitPrice); err != nil {
		return err
	}
	if !in.Type.Valid() {
		return domain.Invalid("purchase_type", fmt.Sprintf("must be bulk, package or unit, got %q", in.Type))
	}
	if _, err := units.MagnitudeOf(in.Unit); err != nil {
		return fmt.Errorf("purchase unit: %w", err)
	}
	if in.Type == domain.PurchaseTypePackage {
		if in.PackageWeight == nil && in.UnitsPerPackage == nil {
			return domain.Invalid("package", "package weight or units per package is required")
		}
		if in.PackageWeight != nil {
			if !in.PackageWeight.IsPositive() {
				return domain.Invalid("package_weight", "must be positive")
			}
			if err := domain.CheckAmount("package_weight", *in.PackageWeight); err != nil {
				return err
			}
		}
		if in.UnitsPerPackage != nil {
			if *in.UnitsPerPackage <= 0 {
				return domain.Invalid("units_per_package", "must be positive")
			}
			if err := domain.CheckAmount("units_per_package", decimal.NewFromInt(*in.UnitsPerPackage)); err != nil {
				return err
			}
		}
	}
	if in.MinStock != nil {
		if in.MinStock.IsNegative() {
			return domain.Invalid("min_stock", "must not be negative")
		}
		if err := domain.CheckAmount("min_stock", *in.MinStock); err != nil {
			return err
		}
	}
	if in.DisplayUnit != "" {
		if _, err := units.MagnitudeOf(in.DisplayUnit); err != nil {
			return fmt.Errorf("display unit: %w", err)
		}
	}
	return nil
}

// purchasedAmount is the quantity bought, expressed in the purchase unit.
func (in *PurchaseInput) purchasedAmount() decimal.Decimal {
	if in.Type != domain.PurchaseTypePackage {
		return in.Quantity
	}
	if in.PackageWeight != nil {
		return in.Quantity.Mul(*in.PackageWeight)
	}
	return in.Quantity.Mul(decimal.NewFromInt(*in.UnitsPerPackage))
}

type PurchaseService struct {
	store  port.Store
	ledger *Ledger
	options
}

func NewPurchaseService(store port.Store, ledger *Ledger, opts ...Option) *PurchaseService {
	return &PurchaseService{store: store, ledger: ledger, options: newOptions(opts)}
}

// RegisterPurchase credits bought stock to the named product, creating it on
// first purchase, and returns the product id.
func (s *PurchaseService) RegisterPurchase(ctx context.Context, in PurchaseInput) (productID int64, err error) {
	started := s.now()
	defer func() { s.track(opPurchase, started, err) }()

	if err = in.validate(); err != nil {
		return 0, err
	}
	release, err := s.claim(ctx, opPurchase, in.RequestID)
	if err != nil {
		return 0, err
	}
	defer func() { release(err) }()

	var record domain.Purchase
	err = s.store.WithTx(ctx, func(tx port.Tx) error {
		product, err := tx.GetProductByName(ctx, in.ProductName)
		if err != nil {
			return err
		}

		var baseUnit units.Unit
		if product != nil {
			baseUnit = product.BaseUnit
		} else {
			if in.MinStock == nil {
				return domain.Invalid("min_stock", "required for a new product")
			}
			if in.DisplayUnit == "" {
				return domain.Invalid("display_unit", "required for a new product")
			}
			baseUnit = in.DisplayUnit
		}

		baseQuantity, err := units.Convert(in.purchasedAmount(), in.Unit, baseUnit)
		if err != nil {
			return fmt.Errorf("convert purchase of %q: %w", in.ProductName, err)
		}
		baseQuantity = domain.Round(baseQuantity)
		totalCost := domain.Round(in.Quantity.Mul(in.UnitPrice))
		unitCostBase := decimal.Zero
		if baseQuantity.IsPositive() {
			unitCostBase = domain.Round(totalCost.Div(baseQuantity))
		}

		if product != nil {
			productID = product.ID
		} else {
			productID, err = s.ledger.createProduct(ctx, tx, NewProduct{
				Name:        in.ProductName,
				BaseUnit:    baseUnit,
				DisplayUnit: in.DisplayUnit,
				MinStock:    *in.MinStock,
				Supplier:    in.Supplier,
			})
			if err != nil {
				return err
			}
		}

		if _, err := s.ledger.ApplyIncrease(ctx, tx, productID, baseQuantity, totalCost); err != nil {
			return err
		}

		record = domain.Purchase{
			ID:           uuid.NewString(),
			ProductID:    productID,
			Quantity:     in.Quantity,
			Unit:         in.Unit,
			UnitPrice:    in.UnitPrice,
			Type:         in.Type,
			Supplier:     in.Supplier,
			Notes:        in.Notes,
			BaseQuantity: baseQuantity,
			TotalCost:    totalCost,
			UnitCostBase: unitCostBase,
			PurchasedAt:  s.now(),
		}
		if in.Type == domain.PurchaseTypePackage {
			if in.PackageWeight != nil {
				record.PackageWeight = decimal.NewNullDecimal(*in.PackageWeight)
			}
			if in.UnitsPerPackage != nil {
				record.UnitsPerPackage = *in.UnitsPerPackage
			}
		}
		return tx.InsertPurchase(ctx, &record)
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("purchase registered",
		zap.String("purchase_id", record.ID),
		zap.Int64("product_id", productID),
		zap.Stringer("base_quantity", record.BaseQuantity),
		zap.Stringer("total_cost", record.TotalCost),
	)
	return productID, nil
}
