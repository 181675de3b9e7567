package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tillworks/till/internal/core/cart"
	"github.com/tillworks/till/internal/core/domain"
	"github.com/tillworks/till/internal/port"
)

// Mock StockRepository
type mockStockRepo struct {
	mu         sync.Mutex
	stock      map[string]int
	decrements []string
	increments []string
	failFor    string // product id that errors on decrement
}

func newMockStockRepo(stock map[string]int) *mockStockRepo {
	return &mockStockRepo{stock: stock}
}

func (m *mockStockRepo) DecrementStock(ctx context.Context, id string, quantity int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == m.failFor {
		return false, errors.New("backend write failed")
	}
	if m.stock[id] < quantity {
		return false, nil
	}
	m.stock[id] -= quantity
	m.decrements = append(m.decrements, id)
	return true, nil
}

func (m *mockStockRepo) IncrementStock(ctx context.Context, id string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[id] += quantity
	m.increments = append(m.increments, id)
	return nil
}

// Mock TransactionRepository
type mockTxRepo struct {
	created      []port.NewTransaction
	itemBatches  [][]port.NewTransactionItem
	deleted      []string
	failCreate   bool
	failItems    bool
	nextID       string
	transactions []domain.Transaction
}

func (m *mockTxRepo) CreateTransaction(ctx context.Context, tx port.NewTransaction) (domain.Transaction, error) {
	if m.failCreate {
		return domain.Transaction{}, errors.New("transaction insert failed")
	}
	m.created = append(m.created, tx)
	id := m.nextID
	if id == "" {
		id = "tx-1"
	}
	return domain.Transaction{
		ID:            id,
		Subtotal:      tx.Subtotal,
		Tax:           tx.Tax,
		Total:         tx.Total,
		CustomerEmail: tx.CustomerEmail,
		CreatedBy:     tx.CreatedBy,
	}, nil
}

func (m *mockTxRepo) CreateTransactionItems(ctx context.Context, items []port.NewTransactionItem) error {
	if m.failItems {
		return errors.New("item insert failed")
	}
	m.itemBatches = append(m.itemBatches, items)
	return nil
}

func (m *mockTxRepo) DeleteTransaction(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockTxRepo) ListTransactions(ctx context.Context, filter port.TransactionFilter) ([]domain.Transaction, error) {
	return m.transactions, nil
}

// Mock CacheRepository
type mockCacheRepo struct {
	mu             sync.Mutex
	products       map[string]domain.Product
	idempotencySet map[string]bool
	invalidated    []string
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{
		products:       make(map[string]domain.Product),
		idempotencySet: make(map[string]bool),
	}
}

func (m *mockCacheRepo) GetProductBySKU(ctx context.Context, sku string) (domain.Product, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[sku]
	return p, ok, nil
}

func (m *mockCacheRepo) SetProduct(ctx context.Context, product domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[product.SKU] = product
	return nil
}

func (m *mockCacheRepo) InvalidateProduct(ctx context.Context, sku string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.products, sku)
	m.invalidated = append(m.invalidated, sku)
	return nil
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func checkoutProduct(id, price string, stock int) domain.Product {
	return domain.Product{
		ID:            id,
		Name:          "Product " + id,
		Price:         decimal.RequireFromString(price),
		SKU:           "SKU-" + id,
		StockQuantity: stock,
	}
}

func ledgerWith(t *testing.T, products ...domain.Product) *cart.Ledger {
	t.Helper()
	l := cart.NewLedger(decimal.RequireFromString("0.08"))
	for _, p := range products {
		if err := l.Add(p, 2); err != nil {
			t.Fatalf("setup add failed: %v", err)
		}
	}
	return l
}

func TestCheckout_EmptyCart(t *testing.T) {
	stock := newMockStockRepo(map[string]int{})
	txs := &mockTxRepo{}
	svc := NewCheckoutService(stock, txs, newMockCacheRepo(), quietLogger())

	l := cart.NewLedger(decimal.RequireFromString("0.08"))
	_, err := svc.Checkout(context.Background(), l, CheckoutRequest{CreatedBy: "user-1"})
	if !errors.Is(err, ErrEmptyCart) {
		t.Errorf("expected ErrEmptyCart, got: %v", err)
	}
	if len(txs.created) != 0 {
		t.Errorf("no writes expected for an empty cart")
	}
}

func TestCheckout_InsufficientPayment(t *testing.T) {
	stock := newMockStockRepo(map[string]int{"a": 10})
	txs := &mockTxRepo{}
	svc := NewCheckoutService(stock, txs, newMockCacheRepo(), quietLogger())

	l := ledgerWith(t, checkoutProduct("a", "10.00", 10))
	// total = 20.00 * 1.08 = 21.60
	cash := decimal.RequireFromString("20.00")
	_, err := svc.Checkout(context.Background(), l, CheckoutRequest{CreatedBy: "user-1", CashTendered: &cash})

	var short *InsufficientPaymentError
	if !errors.As(err, &short) {
		t.Fatalf("expected InsufficientPaymentError, got: %v", err)
	}
	if want := decimal.RequireFromString("1.60"); !short.Shortfall.Equal(want) {
		t.Errorf("expected shortfall %s, got %s", want, short.Shortfall)
	}
	if len(txs.created) != 0 || len(stock.decrements) != 0 {
		t.Errorf("no backend writes may be issued before payment validates")
	}
	if l.IsEmpty() {
		t.Errorf("ledger must stay populated after a failed checkout")
	}
}

func TestCheckout_Success(t *testing.T) {
	stock := newMockStockRepo(map[string]int{"a": 10, "b": 10})
	txs := &mockTxRepo{}
	cache := newMockCacheRepo()
	svc := NewCheckoutService(stock, txs, cache, quietLogger())

	l := ledgerWith(t,
		checkoutProduct("a", "10.00", 10),
		checkoutProduct("b", "5.00", 10),
	)
	cash := decimal.RequireFromString("50.00")
	result, err := svc.Checkout(context.Background(), l, CheckoutRequest{
		RequestID:    "req-1",
		CreatedBy:    "user-1",
		CashTendered: &cash,
	})
	if err != nil {
		t.Fatalf("expected success, got: %v", err)
	}

	// Exactly one transaction create, one batched item write, one
	// decrement per line.
	if len(txs.created) != 1 {
		t.Errorf("expected 1 transaction create, got %d", len(txs.created))
	}
	if len(txs.itemBatches) != 1 {
		t.Fatalf("expected 1 batched item write, got %d", len(txs.itemBatches))
	}
	if len(txs.itemBatches[0]) != 2 {
		t.Errorf("expected 2 items in the batch, got %d", len(txs.itemBatches[0]))
	}
	if len(stock.decrements) != 2 {
		t.Errorf("expected 2 stock decrements, got %d", len(stock.decrements))
	}

	// subtotal 30.00, tax 2.40, total 32.40
	if want := decimal.RequireFromString("32.40"); !result.Transaction.Total.Equal(want) {
		t.Errorf("expected total %s, got %s", want, result.Transaction.Total)
	}
	if want := decimal.RequireFromString("17.60"); !result.Change.Equal(want) {
		t.Errorf("expected change %s, got %s", want, result.Change)
	}

	if !l.IsEmpty() {
		t.Errorf("ledger must be cleared after a committed checkout")
	}
	if stock.stock["a"] != 8 || stock.stock["b"] != 8 {
		t.Errorf("expected stock decremented to 8/8, got %d/%d", stock.stock["a"], stock.stock["b"])
	}
	if len(cache.invalidated) != 2 {
		t.Errorf("expected both SKUs invalidated, got %v", cache.invalidated)
	}
}

func TestCheckout_PriceAtTimeFrozen(t *testing.T) {
	stock := newMockStockRepo(map[string]int{"a": 10})
	txs := &mockTxRepo{}
	svc := NewCheckoutService(stock, txs, newMockCacheRepo(), quietLogger())

	l := ledgerWith(t, checkoutProduct("a", "9.99", 10))
	if _, err := svc.Checkout(context.Background(), l, CheckoutRequest{CreatedBy: "user-1"}); err != nil {
		t.Fatal(err)
	}

	item := txs.itemBatches[0][0]
	if want := decimal.RequireFromString("9.99"); !item.PriceAtTime.Equal(want) {
		t.Errorf("expected price_at_time %s, got %s", want, item.PriceAtTime)
	}
	if item.Quantity != 2 {
		t.Errorf("expected quantity 2, got %d", item.Quantity)
	}
}

func TestCheckout_ItemWriteFailureDeletesOrphan(t *testing.T) {
	stock := newMockStockRepo(map[string]int{"a": 10})
	txs := &mockTxRepo{failItems: true}
	svc := NewCheckoutService(stock, txs, newMockCacheRepo(), quietLogger())

	l := ledgerWith(t, checkoutProduct("a", "10.00", 10))
	_, err := svc.Checkout(context.Background(), l, CheckoutRequest{CreatedBy: "user-1"})

	var failed *CheckoutFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected CheckoutFailedError, got: %v", err)
	}
	if failed.State != CheckoutPending {
		t.Errorf("expected failure in state %s, got %s", CheckoutPending, failed.State)
	}

	if len(txs.deleted) != 1 || txs.deleted[0] != "tx-1" {
		t.Errorf("expected the orphaned transaction deleted, got %v", txs.deleted)
	}
	if len(stock.decrements) != 0 {
		t.Errorf("no decrements may run after an item write failure")
	}
	if l.IsEmpty() {
		t.Errorf("ledger must survive a failed checkout")
	}
}

func TestCheckout_PartialDecrementRollsBack(t *testing.T) {
	stock := newMockStockRepo(map[string]int{"a": 10, "b": 10})
	stock.failFor = "b"
	txs := &mockTxRepo{}
	svc := NewCheckoutService(stock, txs, newMockCacheRepo(), quietLogger())

	l := ledgerWith(t,
		checkoutProduct("a", "10.00", 10),
		checkoutProduct("b", "5.00", 10),
	)
	_, err := svc.Checkout(context.Background(), l, CheckoutRequest{CreatedBy: "user-1"})

	var failed *CheckoutFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected CheckoutFailedError, got: %v", err)
	}
	if failed.State != CheckoutItemsWritten {
		t.Errorf("expected failure in state %s, got %s", CheckoutItemsWritten, failed.State)
	}

	if stock.stock["a"] != 10 {
		t.Errorf("expected product a stock restored to 10, got %d", stock.stock["a"])
	}
	if len(txs.deleted) != 1 {
		t.Errorf("expected the transaction deleted during compensation, got %v", txs.deleted)
	}
	if l.IsEmpty() {
		t.Errorf("ledger must survive a failed checkout")
	}
}

func TestCheckout_StockConflict(t *testing.T) {
	// Live stock drifted below the cart snapshot.
	stock := newMockStockRepo(map[string]int{"a": 1})
	txs := &mockTxRepo{}
	svc := NewCheckoutService(stock, txs, newMockCacheRepo(), quietLogger())

	l := ledgerWith(t, checkoutProduct("a", "10.00", 10))
	_, err := svc.Checkout(context.Background(), l, CheckoutRequest{CreatedBy: "user-1"})

	if !errors.Is(err, ErrStockConflict) {
		t.Fatalf("expected ErrStockConflict, got: %v", err)
	}
	if len(txs.deleted) != 1 {
		t.Errorf("expected compensation to delete the transaction")
	}
	if stock.stock["a"] != 1 {
		t.Errorf("stock must be untouched after a conflict, got %d", stock.stock["a"])
	}
}

func TestCheckout_DuplicateRequest(t *testing.T) {
	stock := newMockStockRepo(map[string]int{"a": 10})
	txs := &mockTxRepo{}
	cache := newMockCacheRepo()
	svc := NewCheckoutService(stock, txs, cache, quietLogger())

	l := ledgerWith(t, checkoutProduct("a", "10.00", 10))
	if _, err := svc.Checkout(context.Background(), l, CheckoutRequest{RequestID: "req-1", CreatedBy: "user-1"}); err != nil {
		t.Fatalf("first checkout failed: %v", err)
	}

	l2 := ledgerWith(t, checkoutProduct("a", "10.00", 8))
	_, err := svc.Checkout(context.Background(), l2, CheckoutRequest{RequestID: "req-1", CreatedBy: "user-1"})
	if !errors.Is(err, ErrDuplicateCheckout) {
		t.Errorf("expected ErrDuplicateCheckout, got: %v", err)
	}
	if len(txs.created) != 1 {
		t.Errorf("duplicate request must not create a second transaction")
	}
}
