package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/tillworks/till/internal/core/domain"
	"github.com/tillworks/till/internal/port"
)

// MySQLAdapter implements the catalog and transaction repositories
// against MySQL. Stock decrements use a conditional UPDATE so the
// stored quantity can never go below zero, even under concurrent
// checkouts.
type MySQLAdapter struct {
	db *sqlx.DB
}

func NewMySQLAdapter(db *sqlx.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

type productRow struct {
	ID            string          `db:"id"`
	Name          string          `db:"name"`
	Price         decimal.Decimal `db:"price"`
	SKU           string          `db:"sku"`
	Category      string          `db:"category"`
	StockQuantity int             `db:"stock_quantity"`
	ImageURL      sql.NullString  `db:"image_url"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

func (r productRow) toDomain() (domain.Product, error) {
	p, err := domain.NewProduct(r.ID, r.Name, r.Price, r.SKU, r.Category, r.StockQuantity, r.ImageURL.String, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return domain.Product{}, errors.Wrapf(err, "invalid product row %s", r.ID)
	}
	return p, nil
}

const productColumns = `id, name, price, sku, category, stock_quantity, image_url, created_at, updated_at`

func (m *MySQLAdapter) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var rows []productRow
	err := m.db.SelectContext(ctx, &rows, `
		SELECT `+productColumns+` FROM products ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}

	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		p, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, id string) (domain.Product, bool, error) {
	return m.getProductWhere(ctx, "id = ?", id)
}

func (m *MySQLAdapter) GetProductBySKU(ctx context.Context, sku string) (domain.Product, bool, error) {
	return m.getProductWhere(ctx, "sku = ?", sku)
}

func (m *MySQLAdapter) getProductWhere(ctx context.Context, where string, arg string) (domain.Product, bool, error) {
	var row productRow
	err := m.db.GetContext(ctx, &row, `
		SELECT `+productColumns+` FROM products WHERE `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, false, nil
	}
	if err != nil {
		return domain.Product{}, false, errors.Wrap(err, "get product")
	}

	p, err := row.toDomain()
	if err != nil {
		return domain.Product{}, false, err
	}
	return p, true, nil
}

func (m *MySQLAdapter) CreateProduct(ctx context.Context, fields port.ProductFields) (domain.Product, error) {
	id := uuid.NewString()
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, sku, category, stock_quantity, image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NOW(), NOW())`,
		id, fields.Name, fields.Price, fields.SKU, fields.Category,
		fields.StockQuantity, nullable(fields.ImageURL),
	)
	if err != nil {
		return domain.Product{}, errors.Wrap(err, "insert product")
	}

	p, ok, err := m.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if !ok {
		return domain.Product{}, errors.New("inserted product not found")
	}
	return p, nil
}

func (m *MySQLAdapter) UpdateProduct(ctx context.Context, id string, fields port.ProductFields) (domain.Product, error) {
	result, err := m.db.ExecContext(ctx, `
		UPDATE products
		SET name = ?, price = ?, sku = ?, category = ?, stock_quantity = ?, image_url = ?, updated_at = NOW()
		WHERE id = ?`,
		fields.Name, fields.Price, fields.SKU, fields.Category,
		fields.StockQuantity, nullable(fields.ImageURL), id,
	)
	if err != nil {
		return domain.Product{}, errors.Wrap(err, "update product")
	}
	if err := requireRow(result, id); err != nil {
		return domain.Product{}, err
	}

	p, ok, err := m.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if !ok {
		return domain.Product{}, port.ErrNotFound
	}
	return p, nil
}

func (m *MySQLAdapter) DeleteProduct(ctx context.Context, id string) error {
	result, err := m.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "delete product")
	}
	return requireRow(result, id)
}

func (m *MySQLAdapter) UpdateProductStock(ctx context.Context, id string, quantity int) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE products SET stock_quantity = ?, updated_at = NOW() WHERE id = ?`,
		quantity, id,
	)
	if err != nil {
		return errors.Wrap(err, "update product stock")
	}
	return requireRow(result, id)
}

func (m *MySQLAdapter) DecrementStock(ctx context.Context, id string, quantity int) (bool, error) {
	result, err := m.db.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - ?, updated_at = NOW()
		WHERE id = ? AND stock_quantity >= ?`,
		quantity, id, quantity,
	)
	if err != nil {
		return false, errors.Wrap(err, "decrement stock")
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (m *MySQLAdapter) IncrementStock(ctx context.Context, id string, quantity int) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + ?, updated_at = NOW()
		WHERE id = ?`,
		quantity, id,
	)
	if err != nil {
		return errors.Wrap(err, "increment stock")
	}
	return requireRow(result, id)
}

type transactionRow struct {
	ID            string          `db:"id"`
	Subtotal      decimal.Decimal `db:"subtotal"`
	Tax           decimal.Decimal `db:"tax"`
	Total         decimal.Decimal `db:"total"`
	CustomerEmail sql.NullString  `db:"customer_email"`
	CreatedBy     string          `db:"created_by"`
	CreatedAt     time.Time       `db:"created_at"`
}

func (r transactionRow) toDomain() domain.Transaction {
	return domain.Transaction{
		ID:            r.ID,
		Subtotal:      r.Subtotal,
		Tax:           r.Tax,
		Total:         r.Total,
		CustomerEmail: r.CustomerEmail.String,
		CreatedBy:     r.CreatedBy,
		CreatedAt:     r.CreatedAt,
	}
}

func (m *MySQLAdapter) CreateTransaction(ctx context.Context, tx port.NewTransaction) (domain.Transaction, error) {
	id := uuid.NewString()
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO transactions (id, subtotal, tax, total, customer_email, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, NOW())`,
		id, tx.Subtotal, tx.Tax, tx.Total, nullable(tx.CustomerEmail), tx.CreatedBy,
	)
	if err != nil {
		return domain.Transaction{}, errors.Wrap(err, "insert transaction")
	}

	var row transactionRow
	if err := m.db.GetContext(ctx, &row, `
		SELECT id, subtotal, tax, total, customer_email, created_by, created_at
		FROM transactions WHERE id = ?`, id); err != nil {
		return domain.Transaction{}, errors.Wrap(err, "read back transaction")
	}
	return row.toDomain(), nil
}

type itemInsert struct {
	ID            string          `db:"id"`
	TransactionID string          `db:"transaction_id"`
	ProductID     string          `db:"product_id"`
	Quantity      int             `db:"quantity"`
	PriceAtTime   decimal.Decimal `db:"price_at_time"`
}

func (m *MySQLAdapter) CreateTransactionItems(ctx context.Context, items []port.NewTransactionItem) error {
	if len(items) == 0 {
		return nil
	}

	inserts := make([]itemInsert, 0, len(items))
	for _, it := range items {
		inserts = append(inserts, itemInsert{
			ID:            uuid.NewString(),
			TransactionID: it.TransactionID,
			ProductID:     it.ProductID,
			Quantity:      it.Quantity,
			PriceAtTime:   it.PriceAtTime,
		})
	}

	// Single batched insert covering every line.
	_, err := m.db.NamedExecContext(ctx, `
		INSERT INTO transaction_items (id, transaction_id, product_id, quantity, price_at_time, created_at)
		VALUES (:id, :transaction_id, :product_id, :quantity, :price_at_time, NOW())`,
		inserts,
	)
	if err != nil {
		return errors.Wrap(err, "insert transaction items")
	}
	return nil
}

func (m *MySQLAdapter) DeleteTransaction(ctx context.Context, id string) error {
	// transaction_items rows go with it via the FK cascade.
	result, err := m.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "delete transaction")
	}
	return requireRow(result, id)
}

type itemRow struct {
	ID            string          `db:"id"`
	TransactionID string          `db:"transaction_id"`
	ProductID     string          `db:"product_id"`
	Quantity      int             `db:"quantity"`
	PriceAtTime   decimal.Decimal `db:"price_at_time"`
	CreatedAt     time.Time       `db:"created_at"`

	ProductName     sql.NullString      `db:"product_name"`
	ProductPrice    decimal.NullDecimal `db:"product_price"`
	ProductSKU      sql.NullString      `db:"product_sku"`
	ProductCategory sql.NullString      `db:"product_category"`
	ProductStock    sql.NullInt64       `db:"product_stock"`
}

func (m *MySQLAdapter) ListTransactions(ctx context.Context, filter port.TransactionFilter) ([]domain.Transaction, error) {
	query := `
		SELECT id, subtotal, tax, total, customer_email, created_by, created_at
		FROM transactions`
	var args []interface{}
	var conds []string
	if !filter.From.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, filter.To)
	}
	for i, cond := range conds {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY created_at DESC"

	var txRows []transactionRow
	if err := m.db.SelectContext(ctx, &txRows, query, args...); err != nil {
		return nil, errors.Wrap(err, "list transactions")
	}
	if len(txRows) == 0 {
		return []domain.Transaction{}, nil
	}

	ids := make([]string, 0, len(txRows))
	for _, row := range txRows {
		ids = append(ids, row.ID)
	}

	itemQuery, itemArgs, err := sqlx.In(`
		SELECT i.id, i.transaction_id, i.product_id, i.quantity, i.price_at_time, i.created_at,
		       p.name AS product_name, p.price AS product_price, p.sku AS product_sku,
		       p.category AS product_category, p.stock_quantity AS product_stock
		FROM transaction_items i
		LEFT JOIN products p ON p.id = i.product_id
		WHERE i.transaction_id IN (?)
		ORDER BY i.created_at`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "build item query")
	}

	var itemRows []itemRow
	if err := m.db.SelectContext(ctx, &itemRows, m.db.Rebind(itemQuery), itemArgs...); err != nil {
		return nil, errors.Wrap(err, "list transaction items")
	}

	itemsByTx := make(map[string][]domain.TransactionItem, len(txRows))
	for _, row := range itemRows {
		item := domain.TransactionItem{
			ID:            row.ID,
			TransactionID: row.TransactionID,
			ProductID:     row.ProductID,
			Quantity:      row.Quantity,
			PriceAtTime:   row.PriceAtTime,
			CreatedAt:     row.CreatedAt,
		}
		if row.ProductName.Valid {
			item.Product = &domain.Product{
				ID:            row.ProductID,
				Name:          row.ProductName.String,
				Price:         row.ProductPrice.Decimal,
				SKU:           row.ProductSKU.String,
				Category:      row.ProductCategory.String,
				StockQuantity: int(row.ProductStock.Int64),
			}
		}
		itemsByTx[row.TransactionID] = append(itemsByTx[row.TransactionID], item)
	}

	transactions := make([]domain.Transaction, 0, len(txRows))
	for _, row := range txRows {
		tx := row.toDomain()
		tx.Items = itemsByTx[row.ID]
		transactions = append(transactions, tx)
	}
	return transactions, nil
}

func requireRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if rows == 0 {
		return errors.Wrapf(port.ErrNotFound, "id %s", id)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
