package vendors

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/stockbook/stockbook/internal/platform/db"
	"github.com/stockbook/stockbook/internal/shared"
)

// Repository persists vendors.
type Repository struct {
	tx *db.TxManager
}

// NewRepository constructs Repository.
func NewRepository(tx *db.TxManager) *Repository {
	return &Repository{tx: tx}
}

const columns = `v.id, v.code, v.name, v.phone, v.email, v.address, v.is_active, v.created_at, v.updated_at,
    (SELECT COUNT(*) FROM products p WHERE p.vendor_id = v.id AND p.deleted_at IS NULL)`

func scanVendor(row pgx.Row) (Vendor, error) {
	var v Vendor
	err := row.Scan(&v.ID, &v.Code, &v.Name, &v.Phone, &v.Email, &v.Address, &v.IsActive, &v.CreatedAt, &v.UpdatedAt, &v.ProductCount)
	return v, err
}

// List returns a filtered page of vendors and the total count.
func (r *Repository) List(ctx context.Context, filter ListFilter, limit, offset int) ([]Vendor, int, error) {
	where := []string{"1=1"}
	args := []any{}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := strconv.Itoa(len(args))
		where = append(where, "(v.name ILIKE $"+n+" OR v.code ILIKE $"+n+" OR v.email ILIKE $"+n+")")
	}
	if filter.ActiveOnly {
		where = append(where, "v.is_active")
	}
	cond := strings.Join(where, " AND ")

	q := r.tx.Querier(ctx)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM vendors v WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := q.Query(ctx, `SELECT `+columns+` FROM vendors v WHERE `+cond+
		` ORDER BY `+sortOrder(filter.SortBy, filter.SortDir)+
		` LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

// Options lists active vendors by name.
func (r *Repository) Options(ctx context.Context) ([]shared.Option, error) {
	rows, err := r.tx.Querier(ctx).Query(ctx, `SELECT id, name FROM vendors WHERE is_active ORDER BY name`)
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

// Get loads one vendor.
func (r *Repository) Get(ctx context.Context, id int64) (Vendor, error) {
	v, err := scanVendor(r.tx.Querier(ctx).QueryRow(ctx, `SELECT `+columns+` FROM vendors v WHERE v.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Vendor{}, ErrNotFound
	}
	return v, err
}

// Create inserts a vendor.
func (r *Repository) Create(ctx context.Context, in Input) (int64, error) {
	var id int64
	err := r.tx.Querier(ctx).QueryRow(ctx, `INSERT INTO vendors (code, name, phone, email, address, is_active)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`, in.Code, in.Name, in.Phone, in.Email, in.Address, in.IsActive).Scan(&id)
	return id, translate(err)
}

// Update overwrites a vendor.
func (r *Repository) Update(ctx context.Context, id int64, in Input) error {
	tag, err := r.tx.Querier(ctx).Exec(ctx, `UPDATE vendors
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

// Delete removes a vendor no product references.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.tx.Querier(ctx).Exec(ctx, `DELETE FROM vendors WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of active vendors.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.tx.Querier(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM vendors WHERE is_active`).Scan(&n)
	return n, err
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case shared.IsUniqueViolation(err):
		return ErrDuplicateCode
	case shared.IsForeignKeyViolation(err):
		return ErrVendorInUse
	default:
		return err
	}
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if strings.EqualFold(sortDir, "desc") {
		dir = "DESC"
	}
	switch sortBy {
	case "code":
		return "v.code " + dir
	case "created_at":
		return "v.created_at " + dir + ", v.id"
	default:
		return "v.name " + dir + ", v.id"
	}
}
