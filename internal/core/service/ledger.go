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

// Ledger owns product quantities and valuations. Stock and totalInvested only
// change through ApplyIncrease and ApplyDecrease, each under the product's row
// lock inside the caller's transaction.
type Ledger struct {
	store port.Store
	options
}

func NewLedger(store port.Store, opts ...Option) *Ledger {
	return &Ledger{store: store, options: newOptions(opts)}
}

type NewProduct struct {
	Name        string
	BaseUnit    units.Unit
	DisplayUnit units.Unit // defaults to BaseUnit
	MinStock    decimal.Decimal
	Supplier    string
	Notes       string
}

func (in *NewProduct) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return domain.Invalid("name", "must not be empty")
	}
	if _, err := units.MagnitudeOf(in.BaseUnit); err != nil {
		return fmt.Errorf("base unit: %w", err)
	}
	if in.DisplayUnit == "" {
		in.DisplayUnit = in.BaseUnit
	}
	if _, err := units.MagnitudeOf(in.DisplayUnit); err != nil {
		return fmt.Errorf("display unit: %w", err)
	}
	if !units.Compatible(in.BaseUnit, in.DisplayUnit) {
		return domain.Invalid("display_unit",
			fmt.Sprintf("%s does not share the magnitude of base unit %s", in.DisplayUnit, in.BaseUnit))
	}
	if in.MinStock.IsNegative() {
		return domain.Invalid("min_stock", "must not be negative")
	}
	return domain.CheckAmount("min_stock", in.MinStock)
}

// CreateProduct registers an empty product in its own transaction.
func (l *Ledger) CreateProduct(ctx context.Context, in NewProduct) (id int64, err error) {
	started := l.now()
	defer func() { l.track(opCreateProduct, started, err) }()

	if err := in.validate(); err != nil {
		return 0, err
	}
	err = l.store.WithTx(ctx, func(tx port.Tx) error {
		var err error
		id, err = l.createProduct(ctx, tx, in)
		return err
	})
	if err != nil {
		return 0, err
	}

	l.log.Info("product created", zap.Int64("product_id", id), zap.String("name", in.Name))
	return id, nil
}

func (l *Ledger) createProduct(ctx context.Context, tx port.Tx, in NewProduct) (int64, error) {
	if err := in.validate(); err != nil {
		return 0, err
	}
	existing, err := tx.GetProductByName(ctx, in.Name)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, fmt.Errorf("%w: product %q", domain.ErrDuplicateName, in.Name)
	}

	now := l.now()
	id, err := tx.InsertProduct(ctx, &domain.Product{
		Name:          in.Name,
		Quantity:      decimal.Zero,
		BaseUnit:      in.BaseUnit,
		TotalInvested: decimal.Zero,
		DisplayUnit:   in.DisplayUnit,
		MinStock:      domain.Round(in.MinStock),
		Supplier:      in.Supplier,
		Notes:         in.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return 0, fmt.Errorf("create product %q: %w", in.Name, err)
	}
	return id, nil
}

func (l *Ledger) lockOne(ctx context.Context, tx port.Tx, productID int64) (*domain.Product, error) {
	locked, err := tx.LockProducts(ctx, productID)
	if err != nil {
		return nil, err
	}
	return locked[productID], nil
}

// ApplyIncrease adds quantity (in the product's base unit) and its cost.
func (l *Ledger) ApplyIncrease(ctx context.Context, tx port.Tx, productID int64, quantity, cost decimal.Decimal) (*domain.Product, error) {
	if quantity.IsNegative() {
		return nil, domain.Invalid("quantity", "increase must not be negative")
	}
	if cost.IsNegative() {
		return nil, domain.Invalid("cost", "increase must not be negative")
	}

	p, err := l.lockOne(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	newQuantity := domain.Round(p.Quantity.Add(quantity))
	newTotal := domain.Round(p.TotalInvested.Add(cost))
	if err := domain.CheckStored("quantity", newQuantity); err != nil {
		return nil, err
	}
	if err := domain.CheckStored("total_invested", newTotal); err != nil {
		return nil, err
	}
	p.Quantity = newQuantity
	p.TotalInvested = newTotal
	p.UpdatedAt = l.now()

	if err := tx.UpdateProduct(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ApplyDecrease removes quantity (in the product's base unit) at the current
// average cost and returns the valuation removed. Nothing changes when the
// stock is insufficient.
func (l *Ledger) ApplyDecrease(ctx context.Context, tx port.Tx, productID int64, quantity decimal.Decimal) (decimal.Decimal, error) {
	if quantity.IsNegative() {
		return decimal.Zero, domain.Invalid("quantity", "decrease must not be negative")
	}
	quantity = domain.Round(quantity)

	p, err := l.lockOne(ctx, tx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	if quantity.GreaterThan(p.Quantity) {
		return decimal.Zero, &domain.InsufficientStockError{
			ProductID: p.ID,
			Name:      p.Name,
			Unit:      p.BaseUnit,
			Available: p.Quantity,
			Required:  quantity,
		}
	}

	removed := domain.Round(quantity.Mul(p.AverageCost()))
	p.Quantity = p.Quantity.Sub(quantity)
	switch {
	case p.Quantity.IsZero():
		// An emptied product carries no residual valuation.
		removed = p.TotalInvested
		p.TotalInvested = decimal.Zero
	case removed.GreaterThan(p.TotalInvested):
		removed = p.TotalInvested
		p.TotalInvested = decimal.Zero
	default:
		p.TotalInvested = p.TotalInvested.Sub(removed)
	}
	p.UpdatedAt = l.now()

	if err := tx.UpdateProduct(ctx, p); err != nil {
		return decimal.Zero, err
	}
	return removed, nil
}

func (l *Ledger) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := l.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.NotFound("product", id)
	}
	return p, nil
}

func (l *Ledger) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return l.store.ListProducts(ctx)
}

// AverageCost reads the committed weighted-average cost of a product.
func (l *Ledger) AverageCost(ctx context.Context, id int64) (decimal.Decimal, error) {
	p, err := l.GetProduct(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return p.AverageCost(), nil
}

func (l *Ledger) UpdateMinStock(ctx context.Context, id int64, minStock decimal.Decimal) (err error) {
	started := l.now()
	defer func() { l.track(opUpdateProduct, started, err) }()

	if minStock.IsNegative() {
		return domain.Invalid("min_stock", "must not be negative")
	}
	if err := domain.CheckAmount("min_stock", minStock); err != nil {
		return err
	}
	return l.store.WithTx(ctx, func(tx port.Tx) error {
		p, err := l.lockOne(ctx, tx, id)
		if err != nil {
			return err
		}
		p.MinStock = domain.Round(minStock)
		p.UpdatedAt = l.now()
		return tx.UpdateProduct(ctx, p)
	})
}

func (l *Ledger) UpdateDisplayUnit(ctx context.Context, id int64, unit units.Unit) (err error) {
	started := l.now()
	defer func() { l.track(opUpdateProduct, started, err) }()

	if _, err := units.MagnitudeOf(unit); err != nil {
		return fmt.Errorf("display unit: %w", err)
	}
	return l.store.WithTx(ctx, func(tx port.Tx) error {
		p, err := l.lockOne(ctx, tx, id)
		if err != nil {
			return err
		}
		if !units.Compatible(p.BaseUnit, unit) {
			return fmt.Errorf("%w: display unit %s for base unit %s", domain.ErrUnitMismatch, unit, p.BaseUnit)
		}
		p.DisplayUnit = unit
		p.UpdatedAt = l.now()
		return tx.UpdateProduct(ctx, p)
	})
}

// DeleteProduct removes an empty product that no recipe or history record references.
func (l *Ledger) DeleteProduct(ctx context.Context, id int64) (err error) {
	started := l.now()
	defer func() { l.track(opDeleteProduct, started, err) }()

	err = l.store.WithTx(ctx, func(tx port.Tx) error {
		p, err := l.lockOne(ctx, tx, id)
		if err != nil {
			return err
		}
		if !p.Quantity.IsZero() {
			return fmt.Errorf("%w: %q has %s %s in stock",
				domain.ErrReferencedOrNonZeroStock, p.Name, p.Quantity, p.BaseUnit)
		}
		refs, err := tx.ProductReferences(ctx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("%w: %q is referenced by %d records",
				domain.ErrReferencedOrNonZeroStock, p.Name, refs)
		}
		return tx.DeleteProduct(ctx, id)
	})
	if err != nil {
		return err
	}

	l.log.Info("product deleted", zap.Int64("product_id", id))
	return nil
}
