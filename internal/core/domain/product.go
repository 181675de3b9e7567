package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyName     = errors.New("product name is empty")
	ErrEmptySKU      = errors.New("product sku is empty")
	ErrInvalidPrice  = errors.New("product price must be positive")
	ErrNegativeStock = errors.New("stock quantity cannot be negative")
)

type Product struct {
	ID            string
	Name          string
	Price         decimal.Decimal
	SKU           string
	Category      string
	StockQuantity int
	ImageURL      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewProduct validates backend rows at the decode boundary so the rest
// of the engine never sees a product with a non-positive price or
// negative stock.
func NewProduct(id, name string, price decimal.Decimal, sku, category string, stock int, imageURL string, createdAt, updatedAt time.Time) (Product, error) {
	if strings.TrimSpace(name) == "" {
		return Product{}, ErrEmptyName
	}
	if strings.TrimSpace(sku) == "" {
		return Product{}, ErrEmptySKU
	}
	if !price.IsPositive() {
		return Product{}, ErrInvalidPrice
	}
	if stock < 0 {
		return Product{}, ErrNegativeStock
	}

	return Product{
		ID:            id,
		Name:          name,
		Price:         price,
		SKU:           sku,
		Category:      category,
		StockQuantity: stock,
		ImageURL:      imageURL,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}, nil
}

func (p Product) InStock() bool {
	return p.StockQuantity > 0
}
