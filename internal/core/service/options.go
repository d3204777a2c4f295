package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

const (
	opCreateProduct     = "create_product"
	opUpdateProduct     = "update_product"
	opDeleteProduct     = "delete_product"
	opPurchase          = "purchase"
	opProduction        = "production"
	opSale              = "sale"
	opAutoconsumption   = "autoconsumption"
	opDefineRecipe      = "define_recipe"
	opRecipeCostPreview = "recipe_cost_preview"
)

type options struct {
	log         *zap.Logger
	metrics     port.Metrics
	idempotency port.IdempotencyRepository
	costs       port.CostCache
	now         func() time.Time
}

type Option func(*options)

func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

func WithMetrics(m port.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithIdempotency enables request de-duplication for requests carrying a RequestID.
func WithIdempotency(repo port.IdempotencyRepository) Option {
	return func(o *options) { o.idempotency = repo }
}

// WithCostCache lets the cost calculator serve cached previews.
func WithCostCache(cache port.CostCache) Option {
	return func(o *options) { o.costs = cache }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func newOptions(opts []Option) options {
	o := options{
		log:     zap.NewNop(),
		metrics: nopMetrics{},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type nopMetrics struct{}

func (nopMetrics) ObserveOperation(string, time.Time, error) {}
func (nopMetrics) StockShortfall(string) {}

// track reports the outcome of one operation to metrics and the log.
func (o options) track(op string, started time.Time, err error) {
	o.metrics.ObserveOperation(op, started, err)
	if errors.Is(err, domain.ErrInsufficientStock) {
		o.metrics.StockShortfall(op)
	}
	switch {
	case err == nil:
	case domain.IsRetryable(err):
		o.log.Error("operation failed", zap.String("operation", op), zap.Error(err))
	default:
		o.log.Warn("operation rejected", zap.String("operation", op),
			zap.String("reason", domain.Classify(err)), zap.Error(err))
	}
}

// claim marks a request as in flight. The returned func releases the claim
// when the operation fails so the caller may retry with the same id.
func (o options) claim(ctx context.Context, op, requestID string) (func(error), error) {
	if o.idempotency == nil || requestID == "" {
		return func(error) {}, nil
	}

	key := fmt.Sprintf("%s:%s", op, requestID)
	ok, err := o.idempotency.SetIdempotency(ctx, key)
	if err != nil {
		return nil, domain.Persistence("idempotency check", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateRequest, requestID)
	}

	return func(opErr error) {
		if opErr == nil {
			return
		}
		if err := o.idempotency.ReleaseIdempotency(context.WithoutCancel(ctx), key); err != nil {
			o.log.Warn("release idempotency key", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
