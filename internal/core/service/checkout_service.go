package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tillworks/till/internal/core/cart"
	"github.com/tillworks/till/internal/core/domain"
	"github.com/tillworks/till/internal/port"
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrDuplicateCheckout = errors.New("duplicate checkout request")
	ErrStockConflict     = errors.New("stock depleted by a concurrent sale")
)

// InsufficientPaymentError reports how much the tendered cash falls
// short of the sale total.
type InsufficientPaymentError struct {
	Shortfall decimal.Decimal
}

func (e *InsufficientPaymentError) Error() string {
	return fmt.Sprintf("insufficient payment: short by %s", e.Shortfall.StringFixed(2))
}

// CheckoutFailedError wraps a backend write failure with the state the
// sequence had reached when it failed.
type CheckoutFailedError struct {
	State CheckoutState
	Err   error
}

func (e *CheckoutFailedError) Error() string {
	return fmt.Sprintf("checkout failed in state %s: %v", e.State, e.Err)
}

func (e *CheckoutFailedError) Unwrap() error { return e.Err }

// CheckoutState tracks progress of the write sequence. Each state is
// entered only after the previous step's write has been acknowledged.
type CheckoutState string

const (
	CheckoutPending       CheckoutState = "pending"
	CheckoutItemsWritten  CheckoutState = "items_written"
	CheckoutStockAdjusted CheckoutState = "stock_adjusted"
	CheckoutCommitted     CheckoutState = "committed"
)

// CheckoutRequest carries the per-sale inputs. CashTendered is nil for
// the card/email flow and set for the cash-drawer flow.
type CheckoutRequest struct {
	RequestID     string
	CustomerEmail string
	CreatedBy     string
	CashTendered  *decimal.Decimal
}

type CheckoutResult struct {
	Transaction domain.Transaction
	Change      decimal.Decimal
}

// CheckoutService converts a cart ledger into a persisted transaction:
// one transaction create, one batched item create, then one guarded
// stock decrement per line. Failures roll back prior writes through a
// compensation log instead of leaving orphaned records behind.
type CheckoutService struct {
	stock        port.StockRepository
	transactions port.TransactionRepository
	cache        port.CacheRepository
	log          *logrus.Logger
}

func NewCheckoutService(stock port.StockRepository, transactions port.TransactionRepository, cache port.CacheRepository, log *logrus.Logger) *CheckoutService {
	return &CheckoutService{
		stock:        stock,
		transactions: transactions,
		cache:        cache,
		log:          log,
	}
}

func (s *CheckoutService) Checkout(ctx context.Context, ledger *cart.Ledger, req CheckoutRequest) (CheckoutResult, error) {
	if ledger.IsEmpty() {
		return CheckoutResult{}, ErrEmptyCart
	}

	total := ledger.Total()
	if req.CashTendered != nil && req.CashTendered.LessThan(total) {
		return CheckoutResult{}, &InsufficientPaymentError{Shortfall: total.Sub(*req.CashTendered)}
	}

	if req.RequestID != "" {
		key := fmt.Sprintf("checkout:%s", req.RequestID)
		ok, err := s.cache.SetIdempotency(ctx, key)
		if err != nil {
			return CheckoutResult{}, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return CheckoutResult{}, ErrDuplicateCheckout
		}
	}

	lines := ledger.Lines()
	state := CheckoutPending

	// Writes that succeeded so far, undone in reverse on failure.
	var compensations []func(context.Context)

	fail := func(err error) (CheckoutResult, error) {
		for i := len(compensations) - 1; i >= 0; i-- {
			compensations[i](ctx)
		}
		return CheckoutResult{}, &CheckoutFailedError{State: state, Err: err}
	}

	tx, err := s.transactions.CreateTransaction(ctx, port.NewTransaction{
		Subtotal:      ledger.Subtotal(),
		Tax:           ledger.Tax(),
		Total:         total,
		CustomerEmail: req.CustomerEmail,
		CreatedBy:     req.CreatedBy,
	})
	if err != nil {
		return fail(fmt.Errorf("create transaction: %w", err))
	}
	compensations = append(compensations, func(ctx context.Context) {
		if err := s.transactions.DeleteTransaction(ctx, tx.ID); err != nil {
			s.log.WithError(err).WithField("transaction_id", tx.ID).
				Error("compensation failed: orphaned transaction left behind")
		}
	})

	items := make([]port.NewTransactionItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, port.NewTransactionItem{
			TransactionID: tx.ID,
			ProductID:     line.Product.ID,
			Quantity:      line.Quantity,
			PriceAtTime:   line.Product.Price,
		})
	}
	if err := s.transactions.CreateTransactionItems(ctx, items); err != nil {
		return fail(fmt.Errorf("create transaction items: %w", err))
	}
	state = CheckoutItemsWritten

	for _, line := range lines {
		ok, err := s.stock.DecrementStock(ctx, line.Product.ID, line.Quantity)
		if err != nil {
			return fail(fmt.Errorf("decrement stock for %s: %w", line.Product.ID, err))
		}
		if !ok {
			return fail(fmt.Errorf("product %s: %w", line.Product.ID, ErrStockConflict))
		}

		line := line
		compensations = append(compensations, func(ctx context.Context) {
			if err := s.stock.IncrementStock(ctx, line.Product.ID, line.Quantity); err != nil {
				s.log.WithError(err).WithField("product_id", line.Product.ID).
					Error("compensation failed: stock not restored")
			}
		})
	}
	state = CheckoutStockAdjusted

	// Scanned-product cache entries are stale after the decrements.
	for _, line := range lines {
		if err := s.cache.InvalidateProduct(ctx, line.Product.SKU); err != nil {
			s.log.WithError(err).WithField("sku", line.Product.SKU).
				Warn("failed to invalidate product cache")
		}
	}

	ledger.Clear()
	state = CheckoutCommitted

	change := decimal.Zero
	if req.CashTendered != nil {
		change = req.CashTendered.Sub(total)
	}

	s.log.WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"lines":          len(lines),
		"total":          total.StringFixed(2),
		"state":          state,
	}).Info("checkout committed")

	tx.Items = itemsToDomain(items)
	return CheckoutResult{Transaction: tx, Change: change}, nil
}

func itemsToDomain(items []port.NewTransactionItem) []domain.TransactionItem {
	out := make([]domain.TransactionItem, 0, len(items))
	for _, it := range items {
		out = append(out, domain.TransactionItem{
			TransactionID: it.TransactionID,
			ProductID:     it.ProductID,
			Quantity:      it.Quantity,
			PriceAtTime:   it.PriceAtTime,
		})
	}
	return out
}
