package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/units"
)

// Mock CacheRepository
type mockCacheRepo struct {
	mu             sync.Mutex
	idempotencySet map[string]bool
	costs          map[int64]decimal.Decimal
	costReads      int
	failCosts      bool
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{
		idempotencySet: make(map[string]bool),
		costs:          make(map[int64]decimal.Decimal),
	}
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func (m *mockCacheRepo) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idempotencySet, key)
	return nil
}

func (m *mockCacheRepo) GetRecipeCost(ctx context.Context, recipeID int64) (decimal.Decimal, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.costReads++
	if m.failCosts {
		return decimal.Zero, false, errors.New("cache down")
	}
	c, ok := m.costs[recipeID]
	return c, ok, nil
}

func (m *mockCacheRepo) SetRecipeCost(ctx context.Context, recipeID int64, cost decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCosts {
		return errors.New("cache down")
	}
	m.costs[recipeID] = cost
	return nil
}

func (m *mockCacheRepo) InvalidateRecipeCost(ctx context.Context, recipeID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.costs, recipeID)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store           *storage.MemoryStore
	ledger          *Ledger
	purchases       *PurchaseService
	production      *ProductionService
	sales           *SalesService
	autoconsumption *AutoconsumptionService
	catalog         *RecipeCatalog
	costs           *RecipeCostCalculator
	reports         *Reports
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := storage.NewMemoryStore(5 * time.Second)
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	ledger := NewLedger(store, opts...)
	return &fixture{
		store:           store,
		ledger:          ledger,
		purchases:       NewPurchaseService(store, ledger, opts...),
		production:      NewProductionService(store, ledger, opts...),
		sales:           NewSalesService(store, ledger, opts...),
		autoconsumption: NewAutoconsumptionService(store, ledger, opts...),
		catalog:         NewRecipeCatalog(store, opts...),
		costs:           NewRecipeCostCalculator(store, opts...),
		reports:         NewReports(store, opts...),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr[T any](v T) *T {
	return &v
}

// buy registers a bulk purchase, creating the product in unit when it is new.
func (f *fixture) buy(t *testing.T, name, quantity string, unit units.Unit, unitPrice string) int64 {
	t.Helper()
	id, err := f.purchases.RegisterPurchase(context.Background(), PurchaseInput{
		ProductName: name,
		Quantity:    dec(quantity),
		Unit:        unit,
		UnitPrice:   dec(unitPrice),
		Type:        domain.PurchaseTypeBulk,
		MinStock:    ptr(decimal.Zero),
		DisplayUnit: unit,
	})
	if err != nil {
		t.Fatalf("purchase %s: %v", name, err)
	}
	return id
}

func (f *fixture) product(t *testing.T, id int64) *domain.Product {
	t.Helper()
	p, err := f.ledger.GetProduct(context.Background(), id)
	if err != nil {
		t.Fatalf("get product %d: %v", id, err)
	}
	return p
}

// recipe defines a recipe with the given ingredients.
func (f *fixture) recipe(t *testing.T, name string, ingredients ...domain.RecipeIngredient) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := f.catalog.Create(ctx, name, "bakery", dec("2"))
	if err != nil {
		t.Fatalf("create recipe %s: %v", name, err)
	}
	for _, ing := range ingredients {
		if err := f.catalog.AddIngredient(ctx, id, ing.ProductID, ing.Quantity, ing.Unit); err != nil {
			t.Fatalf("add ingredient %d to %s: %v", ing.ProductID, name, err)
		}
	}
	return id
}

func ingredient(productID int64, quantity string, unit units.Unit) domain.RecipeIngredient {
	return domain.RecipeIngredient{ProductID: productID, Quantity: dec(quantity), Unit: unit}
}

func assertDecimal(t *testing.T, label string, want, got decimal.Decimal) {
	t.Helper()
	if !got.Equal(want) {
		t.Errorf("expected %s %s, got %s", label, want, got)
	}
}
