package customers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/stockbook/stockbook/internal/platform/db"
	"github.com/stockbook/stockbook/internal/shared"
)

// Repository persists customers.
type Repository struct {
	tx *db.TxManager
}

// NewRepository constructs Repository.
func NewRepository(tx *db.TxManager) *Repository {
	return &Repository{tx: tx}
}

const selectCustomer = `SELECT c.id, c.code, c.name, c.phone, c.email, c.address, c.is_active, c.created_at, c.updated_at,
    (SELECT COUNT(*) FROM returns r WHERE r.customer_id = c.id)
FROM customers c`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Phone, &c.Email, &c.Address, &c.IsActive, &c.CreatedAt, &c.UpdatedAt, &c.ReturnCount)
	return c, err
}

// List returns customers ordered by name.
func (r *Repository) List(ctx context.Context, search string, limit, offset int) ([]Customer, int, error) {
	pattern := "%" + search + "%"
	const cond = ` WHERE ($1 = '%%' OR c.name ILIKE $1 OR c.code ILIKE $1 OR c.email ILIKE $1)`
	q := r.tx.Querier(ctx)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM customers c`+cond, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, selectCustomer+cond+` ORDER BY c.name, c.id LIMIT $2 OFFSET $3`, pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// Options lists active customers by name.
func (r *Repository) Options(ctx context.Context) ([]shared.Option, error) {
	rows, err := r.tx.Querier(ctx).Query(ctx, `SELECT id, code || ' - ' || name FROM customers WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []shared.Option
	for rows.Next() {
		var o shared.Option
		if err := rows.Scan(&o.ID, &o.Label); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Get loads one customer.
func (r *Repository) Get(ctx context.Context, id int64) (Customer, error) {
	c, err := scanCustomer(r.tx.Querier(ctx).QueryRow(ctx, selectCustomer+` WHERE c.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	return c, err
}

// Create inserts a customer.
func (r *Repository) Create(ctx context.Context, in Input) (int64, error) {
	var id int64
	err := r.tx.Querier(ctx).QueryRow(ctx, `INSERT INTO customers (code, name, phone, email, address, is_active)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`, in.Code, in.Name, in.Phone, in.Email, in.Address, in.IsActive).Scan(&id)
	return id, translate(err)
}

// Update overwrites a customer.
func (r *Repository) Update(ctx context.Context, id int64, in Input) error {
	tag, err := r.tx.Querier(ctx).Exec(ctx, `UPDATE customers
SET code = $1, name = $2, phone = $3, email = $4, address = $5, is_active = $6, updated_at = NOW()
WHERE id = $7`, in.Code, in.Name, in.Phone, in.Email, in.Address, in.IsActive, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a customer without returns.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.tx.Querier(ctx).Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case shared.IsUniqueViolation(err):
		return ErrDuplicateCode
	case shared.IsForeignKeyViolation(err):
		return ErrCustomerInUse
	}
	return err
}
