package cart

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tillworks/till/internal/core/domain"
)

var (
	ErrOutOfStock      = errors.New("product is out of stock")
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
)

// StockExceededError reports the stock ceiling that blocked a cart
// mutation. Available is the snapshot stock of the product line.
type StockExceededError struct {
	ProductID string
	Available int
}

func (e *StockExceededError) Error() string {
	return fmt.Sprintf("quantity exceeds stock: only %d available for product %s", e.Available, e.ProductID)
}

// Ledger holds the working set of cart lines for one active sale.
// Lines keep insertion order for display; one line per product,
// quantities aggregate. A ledger belongs to a single session and is
// not safe for concurrent use.
type Ledger struct {
	taxRate decimal.Decimal
	lines   []domain.CartLine
}

func NewLedger(taxRate decimal.Decimal) *Ledger {
	return &Ledger{taxRate: taxRate}
}

// Add appends quantity of product to the ledger, aggregating with an
// existing line for the same product. Stock ceiling checks run against
// the snapshot captured here, not against live backend stock.
func (l *Ledger) Add(product domain.Product, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if product.StockQuantity <= 0 {
		return ErrOutOfStock
	}

	for i, line := range l.lines {
		if line.Product.ID != product.ID {
			continue
		}
		newQty := line.Quantity + quantity
		if newQty > product.StockQuantity {
			return &StockExceededError{ProductID: product.ID, Available: product.StockQuantity}
		}
		l.lines[i].Quantity = newQty
		return nil
	}

	if quantity > product.StockQuantity {
		return &StockExceededError{ProductID: product.ID, Available: product.StockQuantity}
	}

	l.lines = append(l.lines, domain.CartLine{Product: product, Quantity: quantity})
	return nil
}

// SetQuantity replaces a line's quantity outright. A quantity below 1
// removes the line; an unknown product is a no-op.
func (l *Ledger) SetQuantity(productID string, quantity int) error {
	if quantity < 1 {
		l.Remove(productID)
		return nil
	}

	for i, line := range l.lines {
		if line.Product.ID != productID {
			continue
		}
		if quantity > line.Product.StockQuantity {
			return &StockExceededError{ProductID: productID, Available: line.Product.StockQuantity}
		}
		l.lines[i].Quantity = quantity
		return nil
	}

	return nil
}

// Remove deletes the line for productID if present. Always succeeds.
func (l *Ledger) Remove(productID string) {
	for i, line := range l.lines {
		if line.Product.ID == productID {
			l.lines = append(l.lines[:i], l.lines[i+1:]...)
			return
		}
	}
}

// Clear empties the ledger unconditionally.
func (l *Ledger) Clear() {
	l.lines = nil
}

// Lines returns a copy of the cart lines in insertion order.
func (l *Ledger) Lines() []domain.CartLine {
	out := make([]domain.CartLine, len(l.lines))
	copy(out, l.lines)
	return out
}

func (l *Ledger) Len() int {
	return len(l.lines)
}

func (l *Ledger) IsEmpty() bool {
	return len(l.lines) == 0
}

// Subtotal is recomputed on every read rather than cached.
func (l *Ledger) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, line := range l.lines {
		sum = sum.Add(line.LineTotal())
	}
	return sum
}

func (l *Ledger) Tax() decimal.Decimal {
	return l.Subtotal().Mul(l.taxRate)
}

func (l *Ledger) Total() decimal.Decimal {
	return l.Subtotal().Add(l.Tax())
}

func (l *Ledger) TaxRate() decimal.Decimal {
	return l.taxRate
}
