package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	idempotencyKeyPrefix = "ledger:idempotency:"
	recipeCostKeyPrefix  = "ledger:recipe-cost:"
	idempotencyKeyTTL    = 24 * time.Hour
	recipeCostTTL        = 30 * time.Second
)

type costEntry struct {
	Cost       string `msgpack:"cost"`
	ComputedAt int64  `msgpack:"computed_at"`
}

type RedisAdapter struct {
	client         *redis.Client
	idempotencyTTL time.Duration
	costTTL        time.Duration
}

// NewRedisAdapter wraps client. Zero TTLs fall back to the package defaults.
func NewRedisAdapter(client *redis.Client, idempotencyTTL, costTTL time.Duration) *RedisAdapter {
	if idempotencyTTL <= 0 {
		idempotencyTTL = idempotencyKeyTTL
	}
	if costTTL <= 0 {
		costTTL = recipeCostTTL
	}
	return &RedisAdapter{client: client, idempotencyTTL: idempotencyTTL, costTTL: costTTL}
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, r.idempotencyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}

func recipeCostKey(recipeID int64) string {
	return recipeCostKeyPrefix + strconv.FormatInt(recipeID, 10)
}

func (r *RedisAdapter) GetRecipeCost(ctx context.Context, recipeID int64) (decimal.Decimal, bool, error) {
	raw, err := r.client.Get(ctx, recipeCostKey(recipeID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}

	var entry costEntry
	if err := msgpack.Unmarshal(raw, &entry); err != nil {
		return decimal.Zero, false, fmt.Errorf("decode recipe cost: %w", err)
	}
	cost, err := decimal.NewFromString(entry.Cost)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("decode recipe cost: %w", err)
	}
	return cost, true, nil
}

func (r *RedisAdapter) SetRecipeCost(ctx context.Context, recipeID int64, cost decimal.Decimal) error {
	raw, err := msgpack.Marshal(costEntry{Cost: cost.String(), ComputedAt: time.Now().Unix()})
	if err != nil {
		return fmt.Errorf("encode recipe cost: %w", err)
	}
	return r.client.Set(ctx, recipeCostKey(recipeID), raw, r.costTTL).Err()
}

func (r *RedisAdapter) InvalidateRecipeCost(ctx context.Context, recipeID int64) error {
	return r.client.Del(ctx, recipeCostKey(recipeID)).Err()
}
