package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tillworks/till/internal/core/domain"
)

// NewTransaction carries the totals for the initial transaction write.
// The backend assigns the identifier.
type NewTransaction struct {
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
	CustomerEmail string
	CreatedBy     string
}

// NewTransactionItem is one frozen cart line for the batched item write.
type NewTransactionItem struct {
	TransactionID string
	ProductID     string
	Quantity      int
	PriceAtTime   decimal.Decimal
}

// TransactionFilter bounds history queries. Zero values mean unbounded.
type TransactionFilter struct {
	From time.Time
	To   time.Time
}

type TransactionRepository interface {
	CreateTransaction(ctx context.Context, tx NewTransaction) (domain.Transaction, error)

	// CreateTransactionItems persists all line snapshots in one batched write.
	CreateTransactionItems(ctx context.Context, items []NewTransactionItem) error

	// DeleteTransaction removes an orphaned transaction during checkout
	// compensation. It is never called for committed sales.
	DeleteTransaction(ctx context.Context, id string) error

	// ListTransactions returns transactions in the range, newest first,
	// with nested items and product snapshots.
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error)
}
