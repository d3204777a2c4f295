package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// Reader exposes the read side of the store. Getters return (nil, nil) when
// the row does not exist.
type Reader interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)

	// GetProductByName matches names case-insensitively
	GetProductByName(ctx context.Context, name string) (*domain.Product, error)

	ListProducts(ctx context.Context) ([]domain.Product, error)

	// GetRecipe loads the recipe together with its ingredients and workers
	GetRecipe(ctx context.Context, id int64) (*domain.Recipe, error)

	GetRecipeByName(ctx context.Context, name string) (*domain.Recipe, error)

	// ListRecipes returns every recipe, or only those of category when it is not empty
	ListRecipes(ctx context.Context, category string) ([]domain.Recipe, error)

	// ListPurchases returns purchases made at or after since, newest first.
	// A zero productID matches every product.
	ListPurchases(ctx context.Context, since time.Time, productID int64) ([]domain.Purchase, error)

	ListProductions(ctx context.Context, since time.Time) ([]domain.Production, error)

	ListSales(ctx context.Context, since time.Time) ([]domain.Sale, error)

	ListAutoconsumption(ctx context.Context, since time.Time) ([]domain.Autoconsumption, error)
}

// Tx is a unit of work. Writes become visible to other readers only after the
// enclosing WithTx callback returns nil.
type Tx interface {
	Reader

	// LockProducts takes exclusive row locks in ascending id order and returns
	// the locked rows. A missing id fails with domain.ErrNotFound.
	LockProducts(ctx context.Context, ids ...int64) (map[int64]*domain.Product, error)

	// InsertProduct stores a new product and returns its id. The new row is
	// locked for the rest of the transaction.
	InsertProduct(ctx context.Context, p *domain.Product) (int64, error)

	// UpdateProduct overwrites every mutable column of a locked product
	UpdateProduct(ctx context.Context, p *domain.Product) error

	DeleteProduct(ctx context.Context, id int64) error

	// ProductReferences counts history and recipe rows pointing at a product
	ProductReferences(ctx context.Context, id int64) (int, error)

	InsertPurchase(ctx context.Context, p *domain.Purchase) error
	InsertProduction(ctx context.Context, p *domain.Production) error
	InsertSale(ctx context.Context, s *domain.Sale) error
	InsertAutoconsumption(ctx context.Context, a *domain.Autoconsumption) error

	InsertRecipe(ctx context.Context, r *domain.Recipe) (int64, error)

	// UpsertRecipeIngredient replaces the quantity and unit when the pair exists
	UpsertRecipeIngredient(ctx context.Context, ing domain.RecipeIngredient) error

	InsertWorker(ctx context.Context, w *domain.Worker) (int64, error)

	// RefreshRecipeLaborCost recomputes total_labor_cost from the assigned workers
	RefreshRecipeLaborCost(ctx context.Context, recipeID int64) (decimal.Decimal, error)
}

// Store is the transactional backing store.
type Store interface {
	Reader

	// WithTx runs fn in a transaction. It commits when fn returns nil and rolls
	// back otherwise; storage failures surface as *domain.PersistenceError.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Ping(ctx context.Context) error
	Close() error
}
