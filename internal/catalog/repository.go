package catalog

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/platform/db"
	"github.com/stockbook/stockbook/internal/shared"
)

// Repository persists catalog data in PostgreSQL.
type Repository struct {
	tx *db.TxManager
}

// NewRepository constructs Repository.
func NewRepository(tx *db.TxManager) *Repository {
	return &Repository{tx: tx}
}

const productColumns = `p.id, p.sku, p.name, p.description, p.category_id, COALESCE(c.name, ''), p.vendor_id,
    COALESCE(v.name, ''), p.price, p.buy_price, p.stock, p.buffer_stock, p.image_url, p.has_variants,
    p.created_at, p.updated_at, p.deleted_at`

const productFrom = `FROM products p
LEFT JOIN categories c ON c.id = p.category_id
LEFT JOIN vendors v ON v.id = p.vendor_id`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.CategoryID, &p.CategoryName, &p.VendorID,
		&p.VendorName, &p.Price, &p.BuyPrice, &p.Stock, &p.BufferStock, &p.ImageURL, &p.HasVariants,
		&p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	return p, err
}

// InsertProduct stores a product with zero stock; the ledger sets the quantity.
func (r *Repository) InsertProduct(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := r.tx.Querier(ctx).QueryRow(ctx, `INSERT INTO products
    (sku, name, description, category_id, vendor_id, price, buy_price, stock, buffer_stock, image_url, has_variants)
VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10)
RETURNING id`,
		p.SKU, p.Name, p.Description, p.CategoryID, p.VendorID, p.Price, p.BuyPrice, p.BufferStock, p.ImageURL, p.HasVariants,
	).Scan(&id)
	return id, translate(err)
}

// InsertVariant stores a variant with zero stock.
func (r *Repository) InsertVariant(ctx context.Context, v Variant) (int64, error) {
	var id int64
	err := r.tx.Querier(ctx).QueryRow(ctx, `INSERT INTO product_variants (product_id, sku, name, price, stock)
VALUES ($1, $2, $3, $4, 0) RETURNING id`, v.ProductID, v.SKU, v.Name, v.Price).Scan(&id)
	return id, translate(err)
}

// UpdateProduct writes metadata columns. Stock columns are never touched.
func (r *Repository) UpdateProduct(ctx context.Context, id int64, in UpdateInput) error {
	tag, err := r.tx.Querier(ctx).Exec(ctx, `UPDATE products SET sku = $2, name = $3, description = $4, category_id = $5,
    vendor_id = $6, price = $7, buy_price = $8, buffer_stock = $9, image_url = $10, updated_at = NOW()
WHERE id = $1 AND deleted_at IS NULL`,
		id, in.SKU, in.Name, in.Description, in.CategoryID, in.VendorID, in.Price, in.BuyPrice, in.BufferStock, in.ImageURL)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LockForVariants locks a product row before its variant set changes.
func (r *Repository) LockForVariants(ctx context.Context, id int64) (stock int64, hasVariants, deleted bool, err error) {
	err = r.tx.Querier(ctx).QueryRow(ctx, `SELECT stock, has_variants, deleted_at IS NOT NULL FROM products WHERE id = $1 FOR UPDATE`, id).
		Scan(&stock, &hasVariants, &deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		err = ErrNotFound
	}
	return stock, hasVariants, deleted, err
}

// MarkHasVariants switches a product to per-variant stock.
func (r *Repository) MarkHasVariants(ctx context.Context, id int64) error {
	_, err := r.tx.Querier(ctx).Exec(ctx, `UPDATE products SET has_variants = TRUE, updated_at = NOW() WHERE id = $1`, id)
	return err
}

// GetProduct loads a product, deleted or not, with its variants.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	q := r.tx.Querier(ctx)
	p, err := scanProduct(q.QueryRow(ctx, `SELECT `+productColumns+` `+productFrom+` WHERE p.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, product_id, sku, name, price, stock, deleted_at
FROM product_variants WHERE product_id = $1 ORDER BY id`, id)
	if err != nil {
		return Product{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.SKU, &v.Name, &v.Price, &v.Stock, &v.DeletedAt); err != nil {
			return Product{}, err
		}
		p.Variants = append(p.Variants, v)
	}
	return p, rows.Err()
}

// ListProducts returns a filtered page of products and the total count.
func (r *Repository) ListProducts(ctx context.Context, filter ListFilter, limit, offset int) ([]Product, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if !filter.IncludeDeleted {
		where += ` AND p.deleted_at IS NULL`
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (p.name ILIKE $` + n + ` OR p.sku ILIKE $` + n + `)`
	}
	if filter.CategoryID != 0 {
		args = append(args, filter.CategoryID)
		where += ` AND p.category_id = $` + strconv.Itoa(len(args))
	}
	if filter.VendorID != 0 {
		args = append(args, filter.VendorID)
		where += ` AND p.vendor_id = $` + strconv.Itoa(len(args))
	}
	if filter.LowStockOnly {
		where += ` AND p.stock <= p.buffer_stock`
	}

	q := r.tx.Querier(ctx)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) `+productFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + productColumns + ` ` + productFrom + where +
		` ORDER BY ` + sortOrder(filter.SortBy, filter.SortDir) +
		` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	rows, err := q.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// LowStock lists live products at or below their buffer stock, emptiest first.
func (r *Repository) LowStock(ctx context.Context, limit int) ([]Product, error) {
	rows, err := r.tx.Querier(ctx).Query(ctx, `SELECT `+productColumns+` `+productFrom+`
WHERE p.deleted_at IS NULL AND p.stock <= p.buffer_stock
ORDER BY p.stock - p.buffer_stock, p.name LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// ItemChoices lists live stock-holding items: products without variants and
// the live variants of the others.
func (r *Repository) ItemChoices(ctx context.Context) ([]inventory.ItemChoice, error) {
	rows, err := r.tx.Querier(ctx).Query(ctx, `SELECT p.id, COALESCE(v.id, 0), p.sku, p.name, COALESCE(v.name, ''),
    COALESCE(v.stock, p.stock)
FROM products p
LEFT JOIN product_variants v ON v.product_id = p.id AND v.deleted_at IS NULL
WHERE p.deleted_at IS NULL AND (NOT p.has_variants OR v.id IS NOT NULL)
ORDER BY p.name, v.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []inventory.ItemChoice
	for rows.Next() {
		var (
			c                      inventory.ItemChoice
			sku, name, variantName string
		)
		if err := rows.Scan(&c.Ref.ProductID, &c.Ref.VariantID, &sku, &name, &variantName, &c.Stock); err != nil {
			return nil, err
		}
		c.Label = sku + " - " + name
		if variantName != "" {
			c.Label += " / " + variantName
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListCategories returns categories with their live product count.
func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.tx.Querier(ctx).Query(ctx, `SELECT c.id, c.name, COUNT(p.id)
FROM categories c LEFT JOIN products p ON p.category_id = c.id AND p.deleted_at IS NULL
GROUP BY c.id, c.name ORDER BY c.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.ProductCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertCategory stores a category.
func (r *Repository) InsertCategory(ctx context.Context, name string) (Category, error) {
	c := Category{Name: name}
	err := r.tx.Querier(ctx).QueryRow(ctx, `INSERT INTO categories (name) VALUES ($1) RETURNING id`, name).Scan(&c.ID)
	if shared.IsUniqueViolation(err) {
		return Category{}, ErrCategoryExists
	}
	return c, err
}

// DeleteCategory removes a category no product refers to, deleted products included.
func (r *Repository) DeleteCategory(ctx context.Context, id int64) error {
	tag, err := r.tx.Querier(ctx).Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if shared.IsForeignKeyViolation(err) {
		return ErrCategoryInUse
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case shared.IsUniqueViolation(err):
		return ErrDuplicateSKU
	case shared.IsForeignKeyViolation(err):
		return ErrInvalidReference
	}
	return err
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if strings.EqualFold(sortDir, "desc") {
		dir = "DESC"
	}
	switch sortBy {
	case "sku":
		return "p.sku " + dir
	case "name":
		return "p.name " + dir
	case "price":
		return "p.price " + dir + ", p.id"
	case "stock":
		return "p.stock " + dir + ", p.id"
	case "created_at":
		return "p.created_at " + dir + ", p.id"
	default:
		return "p.created_at DESC, p.id DESC"
	}
}
