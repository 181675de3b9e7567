package port

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/tillworks/till/internal/core/domain"
)

// ErrNotFound is returned by repositories when the targeted record
// does not exist.
var ErrNotFound = errors.New("record not found")

// ProductFields carries the mutable attributes for admin create/update
// calls. Stock mutation during checkout goes through DecrementStock,
// never through UpdateProduct.
type ProductFields struct {
	Name          string
	Price         decimal.Decimal
	SKU           string
	Category      string
	StockQuantity int
	ImageURL      string
}

// StockRepository is the slice of the catalog the checkout sequencer
// needs: guarded decrements and their compensating increments.
type StockRepository interface {
	// DecrementStock subtracts quantity, guarded so stock never goes
	// below zero. Returns false when the remaining stock is insufficient.
	DecrementStock(ctx context.Context, id string, quantity int) (bool, error)

	// IncrementStock restores stock (compensation after a failed checkout).
	IncrementStock(ctx context.Context, id string, quantity int) error
}

type CatalogRepository interface {
	StockRepository
	// ListProducts returns the full catalog sorted by name.
	ListProducts(ctx context.Context) ([]domain.Product, error)

	// GetProduct returns the product for id, or false when absent.
	GetProduct(ctx context.Context, id string) (domain.Product, bool, error)

	// GetProductBySKU resolves a scanned SKU to a product, or
	// domain.Product{}, false when no product carries that code.
	GetProductBySKU(ctx context.Context, sku string) (domain.Product, bool, error)

	CreateProduct(ctx context.Context, fields ProductFields) (domain.Product, error)
	UpdateProduct(ctx context.Context, id string, fields ProductFields) (domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	// UpdateProductStock sets the absolute stock level (admin use only).
	UpdateProductStock(ctx context.Context, id string, quantity int) error
}
