package storage

import (
	"context"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/tillworks/till/internal/port"
)

func getMySQLDB(t *testing.T) *sqlx.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/till?parseTime=true"
	}

	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	return db
}

func insertTestProduct(t *testing.T, db *sqlx.DB, id, sku string, price string, stock int) {
	t.Helper()
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, sku, category, stock_quantity, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'Test', ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE price = VALUES(price), stock_quantity = VALUES(stock_quantity)`,
		id, "Test "+id, price, sku, stock,
	)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	t.Cleanup(func() {
		db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	})
}

func TestGetProductBySKU(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	insertTestProduct(t, db, "test-prod-sku", "TEST-SKU-1", "4.25", 10)

	product, found, err := adapter.GetProductBySKU(ctx, "TEST-SKU-1")
	if err != nil {
		t.Fatalf("GetProductBySKU failed: %v", err)
	}
	if !found {
		t.Fatal("expected product to be found")
	}
	if product.ID != "test-prod-sku" {
		t.Errorf("expected id test-prod-sku, got %s", product.ID)
	}
	if !product.Price.Equal(decimal.RequireFromString("4.25")) {
		t.Errorf("expected price 4.25, got %s", product.Price)
	}
}

func TestGetProduct_NotFound(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	_, found, err := adapter.GetProduct(ctx, "nonexistent-product")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected not found for nonexistent product")
	}
}

func TestDecrementStock_Guarded(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	insertTestProduct(t, db, "test-prod-dec", "TEST-SKU-DEC", "1.00", 3)

	ok, err := adapter.DecrementStock(ctx, "test-prod-dec", 2)
	if err != nil {
		t.Fatalf("DecrementStock failed: %v", err)
	}
	if !ok {
		t.Fatal("expected decrement to succeed")
	}

	var stock int
	db.QueryRowContext(ctx, `SELECT stock_quantity FROM products WHERE id = 'test-prod-dec'`).Scan(&stock)
	if stock != 1 {
		t.Errorf("expected stock 1, got %d", stock)
	}

	// Only 1 left; asking for 2 must refuse without touching the row.
	ok, err = adapter.DecrementStock(ctx, "test-prod-dec", 2)
	if err != nil {
		t.Fatalf("DecrementStock failed: %v", err)
	}
	if ok {
		t.Error("expected decrement to refuse when stock is insufficient")
	}

	db.QueryRowContext(ctx, `SELECT stock_quantity FROM products WHERE id = 'test-prod-dec'`).Scan(&stock)
	if stock != 1 {
		t.Errorf("expected stock unchanged at 1, got %d", stock)
	}
}

func TestIncrementStock_Compensation(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	insertTestProduct(t, db, "test-prod-inc", "TEST-SKU-INC", "1.00", 5)

	if err := adapter.IncrementStock(ctx, "test-prod-inc", 3); err != nil {
		t.Fatalf("IncrementStock failed: %v", err)
	}

	var stock int
	db.QueryRowContext(ctx, `SELECT stock_quantity FROM products WHERE id = 'test-prod-inc'`).Scan(&stock)
	if stock != 8 {
		t.Errorf("expected stock 8, got %d", stock)
	}
}

func TestTransactionRoundTrip(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	insertTestProduct(t, db, "test-prod-tx", "TEST-SKU-TX", "10.00", 10)

	created, err := adapter.CreateTransaction(ctx, port.NewTransaction{
		Subtotal:  decimal.RequireFromString("30.00"),
		Tax:       decimal.RequireFromString("2.40"),
		Total:     decimal.RequireFromString("32.40"),
		CreatedBy: "test-operator",
	})
	if err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}
	t.Cleanup(func() {
		db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, created.ID)
	})

	err = adapter.CreateTransactionItems(ctx, []port.NewTransactionItem{
		{
			TransactionID: created.ID,
			ProductID:     "test-prod-tx",
			Quantity:      3,
			PriceAtTime:   decimal.RequireFromString("10.00"),
		},
	})
	if err != nil {
		t.Fatalf("CreateTransactionItems failed: %v", err)
	}

	transactions, err := adapter.ListTransactions(ctx, port.TransactionFilter{
		From: time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}

	var found bool
	for _, tx := range transactions {
		if tx.ID != created.ID {
			continue
		}
		found = true
		if !tx.Total.Equal(decimal.RequireFromString("32.40")) {
			t.Errorf("expected total 32.40, got %s", tx.Total)
		}
		if len(tx.Items) != 1 {
			t.Fatalf("expected 1 item, got %d", len(tx.Items))
		}
		item := tx.Items[0]
		if !item.PriceAtTime.Equal(decimal.RequireFromString("10.00")) {
			t.Errorf("expected price_at_time 10.00, got %s", item.PriceAtTime)
		}
		if item.Product == nil || item.Product.SKU != "TEST-SKU-TX" {
			t.Errorf("expected joined product TEST-SKU-TX, got %+v", item.Product)
		}
	}
	if !found {
		t.Error("created transaction not returned by ListTransactions")
	}
}

func TestDeleteTransaction_CascadesItems(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	insertTestProduct(t, db, "test-prod-del", "TEST-SKU-DEL", "2.00", 10)

	created, err := adapter.CreateTransaction(ctx, port.NewTransaction{
		Subtotal:  decimal.RequireFromString("2.00"),
		Tax:       decimal.RequireFromString("0.16"),
		Total:     decimal.RequireFromString("2.16"),
		CreatedBy: "test-operator",
	})
	if err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}

	err = adapter.CreateTransactionItems(ctx, []port.NewTransactionItem{
		{
			TransactionID: created.ID,
			ProductID:     "test-prod-del",
			Quantity:      1,
			PriceAtTime:   decimal.RequireFromString("2.00"),
		},
	})
	if err != nil {
		t.Fatalf("CreateTransactionItems failed: %v", err)
	}

	if err := adapter.DeleteTransaction(ctx, created.ID); err != nil {
		t.Fatalf("DeleteTransaction failed: %v", err)
	}

	var count int
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transaction_items WHERE transaction_id = ?`, created.ID).Scan(&count)
	if count != 0 {
		t.Errorf("expected items removed by cascade, got %d rows", count)
	}
}

func TestDeleteTransaction_NotFound(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	err := adapter.DeleteTransaction(ctx, "nonexistent-tx")
	if !errors.Is(err, port.ErrNotFound) {
		t.Errorf("expected port.ErrNotFound, got: %v", err)
	}
}
