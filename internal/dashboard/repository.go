package dashboard

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository runs the reporting queries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Summary computes the headline figures.
func (r *Repository) Summary(ctx context.Context, returnsSince time.Time) (Summary, error) {
	var s Summary
	err := r.pool.QueryRow(ctx, `SELECT
    COUNT(*),
    COALESCE(SUM(stock), 0)::bigint,
    COALESCE(SUM(stock * buy_price), 0),
    COALESCE(SUM(stock * price), 0),
    COUNT(*) FILTER (WHERE stock <= buffer_stock),
    (SELECT COUNT(*) FROM vendors WHERE is_active),
    (SELECT COUNT(*) FROM customers WHERE is_active),
    (SELECT COUNT(*) FROM returns WHERE created_at >= $1)
FROM products
WHERE deleted_at IS NULL`, returnsSince).Scan(
		&s.Products, &s.Units, &s.StockValue, &s.RetailValue, &s.LowStock, &s.Vendors, &s.Customers, &s.Returns30d)
	return s, err
}

// LowStock lists live products at or below buffer stock, most urgent first.
func (r *Repository) LowStock(ctx context.Context, limit int) ([]LowStockItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.sku, p.name, COALESCE(v.name, ''), p.stock, p.buffer_stock
FROM products p
LEFT JOIN vendors v ON v.id = p.vendor_id
WHERE p.deleted_at IS NULL AND p.stock <= p.buffer_stock
ORDER BY p.stock - p.buffer_stock, p.name
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LowStockItem
	for rows.Next() {
		var i LowStockItem
		if err := rows.Scan(&i.ProductID, &i.SKU, &i.Name, &i.VendorName, &i.Stock, &i.BufferStock); err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// Activity sums ledger movement per day in [from, to]. Days without rows are zero.
func (r *Repository) Activity(ctx context.Context, from, to time.Time) ([]ActivityPoint, error) {
	rows, err := r.pool.Query(ctx, `SELECT d::date,
    COALESCE(SUM(t.stock_change) FILTER (WHERE t.action = 'INCREASED'), 0)::bigint,
    COALESCE(SUM(-t.stock_change) FILTER (WHERE t.action = 'DECREASED'), 0)::bigint,
    COALESCE(SUM(t.stock_change) FILTER (WHERE t.action = 'RETURNED'), 0)::bigint
FROM generate_series($1::date, $2::date, interval '1 day') AS d
LEFT JOIN stock_transactions t ON t.created_at >= d AND t.created_at < d + interval '1 day'
GROUP BY d
ORDER BY d`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ActivityPoint
	for rows.Next() {
		var p ActivityPoint
		if err := rows.Scan(&p.Day, &p.In, &p.Out, &p.Returned); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TopProducts ranks live products by stock value.
func (r *Repository) TopProducts(ctx context.Context, limit int) ([]TopProduct, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, sku, name, stock, stock * buy_price AS value
FROM products
WHERE deleted_at IS NULL AND stock > 0
ORDER BY value DESC, name
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TopProduct
	for rows.Next() {
		var p TopProduct
		if err := rows.Scan(&p.ProductID, &p.SKU, &p.Name, &p.Stock, &p.Value); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Categories breaks live stock down by category.
func (r *Repository) Categories(ctx context.Context) ([]CategorySlice, error) {
	rows, err := r.pool.Query(ctx, `SELECT COALESCE(c.name, 'Uncategorised'), COUNT(p.id),
    COALESCE(SUM(p.stock), 0)::bigint, COALESCE(SUM(p.stock * p.buy_price), 0)
FROM products p
LEFT JOIN categories c ON c.id = p.category_id
WHERE p.deleted_at IS NULL
GROUP BY c.name
ORDER BY 4 DESC, 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CategorySlice
	for rows.Next() {
		var c CategorySlice
		if err := rows.Scan(&c.Name, &c.Products, &c.Units, &c.Value); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Valuation lists every live product with its prices.
func (r *Repository) Valuation(ctx context.Context) ([]ValuationRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.sku, p.name, COALESCE(c.name, ''), COALESCE(v.name, ''),
    p.stock, p.buffer_stock, p.buy_price, p.price
FROM products p
LEFT JOIN categories c ON c.id = p.category_id
LEFT JOIN vendors v ON v.id = p.vendor_id
WHERE p.deleted_at IS NULL
ORDER BY c.name NULLS LAST, p.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ValuationRow
	for rows.Next() {
		var v ValuationRow
		if err := rows.Scan(&v.ProductID, &v.SKU, &v.Name, &v.CategoryName, &v.VendorName, &v.Stock, &v.BufferStock,
			&v.BuyPrice, &v.Price); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
