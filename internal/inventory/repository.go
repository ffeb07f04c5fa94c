package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/stockbook/stockbook/internal/platform/db"
)

// Repository persists ledger rows and item stock in PostgreSQL.
type Repository struct {
	tx *db.TxManager
}

// NewRepository constructs Repository.
func NewRepository(tx *db.TxManager) *Repository {
	return &Repository{tx: tx}
}

// TxRepository exposes the locked operations a mutation needs.
type TxRepository interface {
	LockProduct(ctx context.Context, productID int64) (StockItem, error)
	LockVariant(ctx context.Context, ref ItemRef) (StockItem, error)
	LockLiveVariants(ctx context.Context, productID int64) ([]StockItem, error)
	CountTransactions(ctx context.Context, ref ItemRef) (int, error)
	InsertTransaction(ctx context.Context, tx Transaction) (Transaction, error)
	SetStock(ctx context.Context, ref ItemRef, stock int64) error
	MarkDeleted(ctx context.Context, ref ItemRef, at time.Time) error
}

type txRepo struct {
	q db.Querier
}

// WithTx runs fn in the transaction carried by ctx, opening one when absent.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.tx.WithTx(ctx, func(ctx context.Context) error {
		return fn(ctx, &txRepo{q: r.tx.Querier(ctx)})
	})
}

func (t *txRepo) LockProduct(ctx context.Context, productID int64) (StockItem, error) {
	item := StockItem{Ref: ItemRef{ProductID: productID}}
	err := t.q.QueryRow(ctx, `SELECT stock, has_variants, deleted_at IS NOT NULL
FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&item.Stock, &item.HasVariants, &item.Deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockItem{}, ErrItemNotFound
	}
	return item, err
}

func (t *txRepo) LockVariant(ctx context.Context, ref ItemRef) (StockItem, error) {
	item := StockItem{Ref: ref}
	var productID int64
	err := t.q.QueryRow(ctx, `SELECT product_id, stock, deleted_at IS NOT NULL
FROM product_variants WHERE id = $1 FOR UPDATE`, ref.VariantID).Scan(&productID, &item.Stock, &item.Deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockItem{}, ErrItemNotFound
	}
	if err != nil {
		return StockItem{}, err
	}
	if productID != ref.ProductID {
		return StockItem{}, ErrVariantMismatch
	}
	return item, nil
}

func (t *txRepo) LockLiveVariants(ctx context.Context, productID int64) ([]StockItem, error) {
	rows, err := t.q.Query(ctx, `SELECT id, stock FROM product_variants
WHERE product_id = $1 AND deleted_at IS NULL ORDER BY id FOR UPDATE`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []StockItem
	for rows.Next() {
		item := StockItem{Ref: ItemRef{ProductID: productID}}
		if err := rows.Scan(&item.Ref.VariantID, &item.Stock); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (t *txRepo) CountTransactions(ctx context.Context, ref ItemRef) (int, error) {
	var n int
	err := t.q.QueryRow(ctx, `SELECT COUNT(*) FROM stock_transactions
WHERE product_id = $1 AND variant_id IS NOT DISTINCT FROM $2`, ref.ProductID, nullableID(ref.VariantID)).Scan(&n)
	return n, err
}

func (t *txRepo) InsertTransaction(ctx context.Context, tx Transaction) (Transaction, error) {
	err := t.q.QueryRow(ctx, `INSERT INTO stock_transactions
    (product_id, variant_id, action, stock_before, stock_change, stock_after, note, ref_type, ref_id, actor_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id, created_at`,
		tx.ProductID, nullableID(tx.VariantID), string(tx.Action), tx.StockBefore, tx.StockChange, tx.StockAfter,
		tx.Note, tx.RefType, tx.RefID, nullableID(tx.ActorID),
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return Transaction{}, fmt.Errorf("inventory: insert transaction: %w", err)
	}
	return tx, nil
}

func (t *txRepo) SetStock(ctx context.Context, ref ItemRef, stock int64) error {
	var err error
	if ref.IsVariant() {
		_, err = t.q.Exec(ctx, `UPDATE product_variants SET stock = $2 WHERE id = $1`, ref.VariantID, stock)
	} else {
		_, err = t.q.Exec(ctx, `UPDATE products SET stock = $2, updated_at = NOW() WHERE id = $1`, ref.ProductID, stock)
	}
	return err
}

func (t *txRepo) MarkDeleted(ctx context.Context, ref ItemRef, at time.Time) error {
	var err error
	if ref.IsVariant() {
		_, err = t.q.Exec(ctx, `UPDATE product_variants SET deleted_at = $2 WHERE id = $1`, ref.VariantID, at)
	} else {
		_, err = t.q.Exec(ctx, `UPDATE products SET deleted_at = $2, updated_at = $2 WHERE id = $1`, ref.ProductID, at)
	}
	return err
}

const transactionColumns = `t.id, t.product_id, COALESCE(t.variant_id, 0), t.action, t.stock_before, t.stock_change,
    t.stock_after, t.note, t.ref_type, t.ref_id, COALESCE(t.actor_id, 0), t.created_at,
    p.sku, p.name, COALESCE(v.name, '')`

const transactionFrom = `FROM stock_transactions t
JOIN products p ON p.id = t.product_id
LEFT JOIN product_variants v ON v.id = t.variant_id`

// History returns the rows of a product, or of one variant, oldest first.
func (r *Repository) History(ctx context.Context, ref ItemRef) ([]Transaction, error) {
	query := `SELECT ` + transactionColumns + ` ` + transactionFrom + ` WHERE t.product_id = $1`
	args := []any{ref.ProductID}
	if ref.IsVariant() {
		query += ` AND t.variant_id = $2`
		args = append(args, ref.VariantID)
	}
	query += ` ORDER BY t.id`
	return r.queryTransactions(ctx, query, args...)
}

// List returns a filtered page of ledger rows, newest first, and the total count.
func (r *Repository) List(ctx context.Context, filter LedgerFilter, limit, offset int) ([]Transaction, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.ProductID != 0 {
		add("t.product_id = $%d", filter.ProductID)
	}
	if filter.Action != "" {
		add("t.action = $%d", string(filter.Action))
	}
	if !filter.From.IsZero() {
		add("t.created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("t.created_at < $%d", filter.To)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.tx.Querier(ctx).QueryRow(ctx, `SELECT COUNT(*) `+transactionFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + transactionColumns + ` ` + transactionFrom + where +
		fmt.Sprintf(` ORDER BY t.id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	items, err := r.queryTransactions(ctx, query, append(args, limit, offset)...)
	return items, total, err
}

// CurrentStock loads the stored stock of a product and all its variants.
func (r *Repository) CurrentStock(ctx context.Context, productID int64) (ProductStock, error) {
	q := r.tx.Querier(ctx)
	ps := ProductStock{ProductID: productID}
	err := q.QueryRow(ctx, `SELECT stock, has_variants, deleted_at IS NOT NULL FROM products WHERE id = $1`, productID).
		Scan(&ps.Stock, &ps.HasVariants, &ps.Deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProductStock{}, ErrItemNotFound
	}
	if err != nil {
		return ProductStock{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, stock, deleted_at IS NOT NULL FROM product_variants WHERE product_id = $1 ORDER BY id`, productID)
	if err != nil {
		return ProductStock{}, err
	}
	defer rows.Close()
	for rows.Next() {
		item := StockItem{Ref: ItemRef{ProductID: productID}}
		if err := rows.Scan(&item.Ref.VariantID, &item.Stock, &item.Deleted); err != nil {
			return ProductStock{}, err
		}
		ps.Variants = append(ps.Variants, item)
	}
	return ps, rows.Err()
}

// ProductIDs lists every product id, deleted ones included.
func (r *Repository) ProductIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.tx.Querier(ctx).Query(ctx, `SELECT id FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r *Repository) queryTransactions(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	rows, err := r.tx.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var (
			t      Transaction
			action string
		)
		if err := rows.Scan(&t.ID, &t.ProductID, &t.VariantID, &action, &t.StockBefore, &t.StockChange,
			&t.StockAfter, &t.Note, &t.RefType, &t.RefID, &t.ActorID, &t.CreatedAt,
			&t.ProductSKU, &t.ProductName, &t.VariantName); err != nil {
			return nil, err
		}
		t.Action = Action(action)
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
