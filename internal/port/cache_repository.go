package port

import (
	"context"

	"github.com/shopspring/decimal"
)

type IdempotencyRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency frees a key so a failed request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error
}

type CostCache interface {
	// GetRecipeCost returns the cached cost preview and whether it was present
	GetRecipeCost(ctx context.Context, recipeID int64) (decimal.Decimal, bool, error)

	SetRecipeCost(ctx context.Context, recipeID int64, cost decimal.Decimal) error

	InvalidateRecipeCost(ctx context.Context, recipeID int64) error
}

type CacheRepository interface {
	IdempotencyRepository
	CostCache
}
