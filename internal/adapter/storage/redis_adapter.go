package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/tillworks/till/internal/core/domain"
)

const (
	productKeyPrefix  = "product:sku:"
	idempotencyKeyTTL = 24 * time.Hour
)

// RedisAdapter caches scanned products by SKU and holds checkout
// idempotency keys.
type RedisAdapter struct {
	client     *redis.Client
	productTTL time.Duration
}

func NewRedisAdapter(client *redis.Client, productTTL time.Duration) *RedisAdapter {
	return &RedisAdapter{client: client, productTTL: productTTL}
}

func (r *RedisAdapter) GetProductBySKU(ctx context.Context, sku string) (domain.Product, bool, error) {
	raw, err := r.client.Get(ctx, productKeyPrefix+sku).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Product{}, false, nil
	}
	if err != nil {
		return domain.Product{}, false, errors.Wrap(err, "cache get")
	}

	var product domain.Product
	if err := json.Unmarshal(raw, &product); err != nil {
		return domain.Product{}, false, errors.Wrap(err, "decode cached product")
	}
	return product, true, nil
}

func (r *RedisAdapter) SetProduct(ctx context.Context, product domain.Product) error {
	raw, err := json.Marshal(product)
	if err != nil {
		return errors.Wrap(err, "encode product")
	}
	return r.client.Set(ctx, productKeyPrefix+product.SKU, raw, r.productTTL).Err()
}

func (r *RedisAdapter) InvalidateProduct(ctx context.Context, sku string) error {
	return r.client.Del(ctx, productKeyPrefix+sku).Err()
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}
