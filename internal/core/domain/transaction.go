package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is an immutable record of a completed sale. It is created
// exactly once by the checkout sequencer and never mutated afterward.
type Transaction struct {
	ID            string
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
	CustomerEmail string
	CreatedBy     string
	CreatedAt     time.Time
	Items         []TransactionItem
}

// TransactionItem freezes one cart line at sale time. PriceAtTime is
// the unit price when the sale happened, decoupled from the product's
// current catalog price.
type TransactionItem struct {
	ID            string
	TransactionID string
	ProductID     string
	Quantity      int
	PriceAtTime   decimal.Decimal
	CreatedAt     time.Time
	Product       *Product
}

func (i TransactionItem) LineTotal() decimal.Decimal {
	return i.PriceAtTime.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
