package port

import (
	"context"

	"github.com/tillworks/till/internal/core/domain"
)

type CacheRepository interface {
	// GetProductBySKU returns a cached product, or false on a miss.
	GetProductBySKU(ctx context.Context, sku string) (domain.Product, bool, error)

	// SetProduct caches a product under its SKU.
	SetProduct(ctx context.Context, product domain.Product) error

	// InvalidateProduct drops the cached entry for a SKU.
	InvalidateProduct(ctx context.Context, sku string) error

	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)
}
