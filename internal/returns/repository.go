package returns

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/stockbook/stockbook/internal/platform/db"
)

// Repository persists returns.
type Repository struct {
	tx *db.TxManager
}

// NewRepository constructs Repository.
func NewRepository(tx *db.TxManager) *Repository {
	return &Repository{tx: tx}
}

// CustomerActive reports whether the customer exists and is active.
func (r *Repository) CustomerActive(ctx context.Context, id int64) (bool, error) {
	var active bool
	err := r.tx.Querier(ctx).QueryRow(ctx, `SELECT is_active FROM customers WHERE id = $1`, id).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrCustomerNotFound
	}
	return active, err
}

// Insert stores a return row.
func (r *Repository) Insert(ctx context.Context, ret Return) (int64, error) {
	var variant *int64
	if ret.VariantID != 0 {
		variant = &ret.VariantID
	}
	var actor *int64
	if ret.CreatedBy != 0 {
		actor = &ret.CreatedBy
	}
	var id int64
	err := r.tx.Querier(ctx).QueryRow(ctx, `INSERT INTO returns
    (customer_id, product_id, variant_id, quantity, reason, transaction_id, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		ret.CustomerID, ret.ProductID, variant, ret.Quantity, ret.Reason, ret.TransactionID, actor).Scan(&id)
	return id, err
}

// List returns a filtered page of returns, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter, limit, offset int) ([]Return, int, error) {
	where := []string{"1=1"}
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if filter.CustomerID != 0 {
		add("r.customer_id = ?", filter.CustomerID)
	}
	if !filter.From.IsZero() {
		add("r.created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		add("r.created_at < ?", filter.To)
	}
	cond := " WHERE " + strings.Join(where, " AND ")

	q := r.tx.Querier(ctx)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM returns r`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := q.Query(ctx, `SELECT r.id, r.customer_id, c.name, r.product_id, COALESCE(r.variant_id, 0), p.sku, p.name,
    COALESCE(v.name, ''), r.quantity, r.reason, r.transaction_id, COALESCE(r.created_by, 0), r.created_at
FROM returns r
JOIN customers c ON c.id = r.customer_id
JOIN products p ON p.id = r.product_id
LEFT JOIN product_variants v ON v.id = r.variant_id`+cond+`
ORDER BY r.created_at DESC, r.id DESC
LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Return
	for rows.Next() {
		var ret Return
		if err := rows.Scan(&ret.ID, &ret.CustomerID, &ret.CustomerName, &ret.ProductID, &ret.VariantID, &ret.ProductSKU,
			&ret.ProductName, &ret.VariantName, &ret.Quantity, &ret.Reason, &ret.TransactionID, &ret.CreatedBy, &ret.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, ret)
	}
	return out, total, rows.Err()
}
