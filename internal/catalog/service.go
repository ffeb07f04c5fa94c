package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/platform/db"
	"github.com/stockbook/stockbook/internal/revalidate"
	"github.com/stockbook/stockbook/internal/shared"
)

// RepositoryPort abstracts catalog persistence.
type RepositoryPort interface {
	InsertProduct(ctx context.Context, p Product) (int64, error)
	InsertVariant(ctx context.Context, v Variant) (int64, error)
	UpdateProduct(ctx context.Context, id int64, in UpdateInput) error
	LockForVariants(ctx context.Context, id int64) (stock int64, hasVariants, deleted bool, err error)
	MarkHasVariants(ctx context.Context, id int64) error
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context, filter ListFilter, limit, offset int) ([]Product, int, error)
	LowStock(ctx context.Context, limit int) ([]Product, error)
	ItemChoices(ctx context.Context) ([]inventory.ItemChoice, error)
	ListCategories(ctx context.Context) ([]Category, error)
	InsertCategory(ctx context.Context, name string) (Category, error)
	DeleteCategory(ctx context.Context, id int64) error
}

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Ledger is the part of the stock ledger the catalog drives.
type Ledger interface {
	Open(ctx context.Context, input inventory.OpenInput) (inventory.Transaction, error)
	Retire(ctx context.Context, input inventory.RetireInput) ([]inventory.Transaction, error)
}

// Cache serves tagged reads and invalidates them.
type Cache interface {
	Fetch(ctx context.Context, key string, tags []string, dest any, loader revalidate.Loader) error
	Revalidate(ctx context.Context, tags ...string) error
}

// Uploader stores product images and returns their public URL.
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Config holds catalog settings.
type Config struct {
	DefaultBufferStock int64
}

// Service manages products, variants and categories.
type Service struct {
	repo     RepositoryPort
	tx       TxRunner
	ledger   Ledger
	cache    Cache
	uploader Uploader
	audit    AuditPort
	cfg      Config
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, tx TxRunner, ledger Ledger, cache Cache, uploader Uploader, audit AuditPort, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tx: tx, ledger: ledger, cache: cache, uploader: uploader, audit: audit, cfg: cfg, logger: logger}
}

// Create inserts a product (and its variants) and opens their ledgers in one transaction.
func (s *Service) Create(ctx context.Context, in CreateInput) (int64, error) {
	in.SKU = strings.TrimSpace(in.SKU)
	in.Name = strings.TrimSpace(in.Name)
	if errs := shared.FieldErrors(in); errs != nil {
		return 0, shared.Invalid(firstError(errs))
	}
	if in.Price.IsNegative() || in.BuyPrice.IsNegative() {
		return 0, ErrNegativePrice
	}
	for _, v := range in.Variants {
		if v.Price.IsNegative() {
			return 0, ErrNegativePrice
		}
	}
	buffer := s.cfg.DefaultBufferStock
	if in.BufferStock != nil {
		buffer = *in.BufferStock
	}
	product := Product{
		SKU:         in.SKU,
		Name:        in.Name,
		Description: strings.TrimSpace(in.Description),
		CategoryID:  in.CategoryID,
		VendorID:    in.VendorID,
		Price:       in.Price,
		BuyPrice:    in.BuyPrice,
		BufferStock: buffer,
		ImageURL:    in.ImageURL,
		HasVariants: len(in.Variants) > 0,
	}

	var id int64
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		id, err = s.repo.InsertProduct(ctx, product)
		if err != nil {
			return err
		}
		if !product.HasVariants {
			_, err = s.ledger.Open(ctx, inventory.OpenInput{
				Ref: inventory.ItemRef{ProductID: id}, Qty: in.InitialStock, Note: "initial stock", ActorID: in.ActorID,
			})
			return err
		}
		for _, v := range in.Variants {
			if _, err := s.addVariant(ctx, id, v, in.ActorID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("catalog: create product %q: %w", in.SKU, err)
	}
	s.changed(ctx, id, "product:create", in.ActorID, revalidate.TagCategories)
	return id, nil
}

// Update edits product metadata.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) error {
	in.SKU = strings.TrimSpace(in.SKU)
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if errs := shared.FieldErrors(in); errs != nil {
		return shared.Invalid(firstError(errs))
	}
	if in.Price.IsNegative() || in.BuyPrice.IsNegative() {
		return ErrNegativePrice
	}
	if err := s.repo.UpdateProduct(ctx, id, in); err != nil {
		return fmt.Errorf("catalog: update product %d: %w", id, err)
	}
	s.changed(ctx, id, "product:update", in.ActorID, revalidate.TagCategories)
	return nil
}

// Delete retires the product through the ledger. Its history stays readable.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	_, err := s.ledger.Retire(ctx, inventory.RetireInput{
		Ref: inventory.ItemRef{ProductID: id}, Note: "product deleted", ActorID: actorID,
	})
	if err != nil {
		return fmt.Errorf("catalog: delete product %d: %w", id, err)
	}
	s.changed(ctx, id, "product:delete", actorID, revalidate.TagCategories)
	return nil
}

// AddVariant attaches a variant. The first variant switches the product to
// per-variant stock, which requires the product's own stock to be zero.
func (s *Service) AddVariant(ctx context.Context, productID int64, in VariantInput, actorID int64) (int64, error) {
	in.SKU = strings.TrimSpace(in.SKU)
	in.Name = strings.TrimSpace(in.Name)
	if errs := shared.FieldErrors(in); errs != nil {
		return 0, shared.Invalid(firstError(errs))
	}
	if in.Price.IsNegative() {
		return 0, ErrNegativePrice
	}
	var id int64
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		stock, hasVariants, deleted, err := s.repo.LockForVariants(ctx, productID)
		if err != nil {
			return err
		}
		if deleted {
			return ErrProductDeleted
		}
		if !hasVariants {
			if stock != 0 {
				return ErrStockOnProduct
			}
			if err := s.repo.MarkHasVariants(ctx, productID); err != nil {
				return err
			}
		}
		id, err = s.addVariant(ctx, productID, in, actorID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("catalog: add variant to product %d: %w", productID, err)
	}
	s.changed(ctx, productID, "variant:create", actorID)
	return id, nil
}

// DeleteVariant retires one variant.
func (s *Service) DeleteVariant(ctx context.Context, productID, variantID, actorID int64) error {
	_, err := s.ledger.Retire(ctx, inventory.RetireInput{
		Ref: inventory.ItemRef{ProductID: productID, VariantID: variantID}, Note: "variant deleted", ActorID: actorID,
	})
	if err != nil {
		return fmt.Errorf("catalog: delete variant %d: %w", variantID, err)
	}
	s.changed(ctx, productID, "variant:delete", actorID)
	return nil
}

func (s *Service) addVariant(ctx context.Context, productID int64, in VariantInput, actorID int64) (int64, error) {
	id, err := s.repo.InsertVariant(ctx, Variant{ProductID: productID, SKU: in.SKU, Name: in.Name, Price: in.Price})
	if err != nil {
		return 0, err
	}
	_, err = s.ledger.Open(ctx, inventory.OpenInput{
		Ref:     inventory.ItemRef{ProductID: productID, VariantID: id},
		Qty:     in.InitialStock,
		Note:    "initial stock",
		ActorID: actorID,
	})
	return id, err
}

// Get returns a product, deleted ones included.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	var p Product
	// The row carries joined vendor and category names.
	tags := []string{revalidate.ProductTag(id), revalidate.TagVendors, revalidate.TagCategories}
	err := s.cache.Fetch(ctx, revalidate.Key("product", revalidate.IntPart(id)), tags, &p,
		func(ctx context.Context) (any, error) {
			return s.repo.GetProduct(ctx, id)
		})
	return p, err
}

// List returns a page of products.
func (s *Service) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	page := shared.NewPagination(filter.Page, filter.PerPage, 0)
	filter.Search = strings.TrimSpace(filter.Search)
	key := revalidate.Key("products", filter.Search, strconv.FormatInt(filter.CategoryID, 10), strconv.FormatInt(filter.VendorID, 10),
		strconv.FormatBool(filter.LowStockOnly), strconv.FormatBool(filter.IncludeDeleted), filter.SortBy, filter.SortDir,
		strconv.Itoa(page.Page), strconv.Itoa(page.PerPage))
	var result ListResult
	err := s.cache.Fetch(ctx, key, []string{revalidate.TagProducts, revalidate.TagCategories, revalidate.TagVendors}, &result,
		func(ctx context.Context) (any, error) {
			items, total, err := s.repo.ListProducts(ctx, filter, page.PerPage, page.Offset())
			if err != nil {
				return nil, err
			}
			return ListResult{Items: items, Pagination: shared.NewPagination(page.Page, page.PerPage, total)}, nil
		})
	if err != nil {
		return ListResult{}, fmt.Errorf("catalog: list products: %w", err)
	}
	return result, nil
}

// LowStock lists products at or below buffer stock.
func (s *Service) LowStock(ctx context.Context, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = 10
	}
	var items []Product
	err := s.cache.Fetch(ctx, revalidate.Key("products", "low", strconv.Itoa(limit)), []string{revalidate.TagProducts}, &items,
		func(ctx context.Context) (any, error) {
			return s.repo.LowStock(ctx, limit)
		})
	return items, err
}

// StockOptions describes a product for the stock movement forms.
func (s *Service) StockOptions(ctx context.Context, productID int64) (inventory.ItemOptions, error) {
	p, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return inventory.ItemOptions{}, err
	}
	opts := inventory.ItemOptions{
		ProductID:   p.ID,
		SKU:         p.SKU,
		Name:        p.Name,
		Stock:       p.Stock,
		HasVariants: p.HasVariants,
		Deleted:     p.Deleted(),
	}
	for _, v := range p.LiveVariants() {
		opts.Variants = append(opts.Variants, inventory.VariantOption{ID: v.ID, SKU: v.SKU, Name: v.Name, Stock: v.Stock})
	}
	return opts, nil
}

// ItemChoices lists items stock can be booked against.
func (s *Service) ItemChoices(ctx context.Context) ([]inventory.ItemChoice, error) {
	var out []inventory.ItemChoice
	err := s.cache.Fetch(ctx, "products:choices", []string{revalidate.TagProducts}, &out,
		func(ctx context.Context) (any, error) { return s.repo.ItemChoices(ctx) })
	return out, err
}

// UploadImage sends an image to the media service.
func (s *Service) UploadImage(ctx context.Context, filename string, r io.Reader) (string, error) {
	if s.uploader == nil {
		return "", shared.Invalid("image uploads are not configured")
	}
	return s.uploader.Upload(ctx, filename, r)
}

// ListCategories returns all categories.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	var out []Category
	err := s.cache.Fetch(ctx, "categories", []string{revalidate.TagCategories, revalidate.TagProducts}, &out,
		func(ctx context.Context) (any, error) {
			return s.repo.ListCategories(ctx)
		})
	return out, err
}

// CreateCategory adds a category.
func (s *Service) CreateCategory(ctx context.Context, name string) (Category, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 80 {
		return Category{}, shared.Invalid("category name must be 1 to 80 characters")
	}
	c, err := s.repo.InsertCategory(ctx, name)
	if err != nil {
		return Category{}, fmt.Errorf("catalog: create category: %w", err)
	}
	s.revalidate(ctx, revalidate.TagCategories)
	return c, nil
}

// DeleteCategory removes an unused category.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return fmt.Errorf("catalog: delete category %d: %w", id, err)
	}
	s.revalidate(ctx, revalidate.TagCategories)
	return nil
}

func (s *Service) changed(ctx context.Context, productID int64, action string, actorID int64, extra ...string) {
	tags := append([]string{revalidate.TagProducts, revalidate.ProductTag(productID), revalidate.TagDashboard}, extra...)
	s.revalidate(ctx, tags...)
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			ActorID: actorID, Action: action, Entity: "product", EntityID: strconv.FormatInt(productID, 10),
		})
		if err != nil {
			s.logger.Warn("catalog: audit", slog.Any("error", err))
		}
	}
}

func (s *Service) revalidate(ctx context.Context, tags ...string) {
	if err := s.cache.Revalidate(ctx, tags...); err != nil {
		s.logger.Warn("catalog: revalidate", slog.Any("tags", tags), slog.Any("error", err))
	}
}

func firstError(errs map[string]string) string {
	for _, field := range []string{"sku", "name", "initialstock", "bufferstock", "imageurl", "description"} {
		if msg, ok := errs[field]; ok {
			return field + ": " + strings.ToLower(msg)
		}
	}
	for field, msg := range errs {
		return field + ": " + strings.ToLower(msg)
	}
	return "invalid input"
}

var _ TxRunner = (*db.TxManager)(nil)
