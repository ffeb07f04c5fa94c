package catalog

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockbook/stockbook/internal/shared"
)

// Product is a catalog entry. Stock is owned by the ledger and read-only here.
type Product struct {
	ID           int64           `json:"id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	CategoryID   *int64          `json:"category_id,omitempty"`
	CategoryName string          `json:"category_name,omitempty"`
	VendorID     *int64          `json:"vendor_id,omitempty"`
	VendorName   string          `json:"vendor_name,omitempty"`
	Price        decimal.Decimal `json:"price"`
	BuyPrice     decimal.Decimal `json:"buy_price"`
	Stock        int64           `json:"stock"`
	BufferStock  int64           `json:"buffer_stock"`
	ImageURL     string          `json:"image_url,omitempty"`
	HasVariants  bool            `json:"has_variants"`
	Variants     []Variant       `json:"variants,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DeletedAt    *time.Time      `json:"deleted_at,omitempty"`
}

// Deleted reports whether the product was retired.
func (p Product) Deleted() bool { return p.DeletedAt != nil }

// LowStock reports whether stock is at or below the buffer threshold.
func (p Product) LowStock() bool { return p.DeletedAt == nil && p.Stock <= p.BufferStock }

// StockValue is stock valued at buy price.
func (p Product) StockValue() decimal.Decimal {
	return p.BuyPrice.Mul(decimal.NewFromInt(p.Stock))
}

// LiveVariants returns variants that have not been deleted.
func (p Product) LiveVariants() []Variant {
	out := make([]Variant, 0, len(p.Variants))
	for _, v := range p.Variants {
		if v.DeletedAt == nil {
			out = append(out, v)
		}
	}
	return out
}

// Variant is a sellable option of a product with its own stock.
type Variant struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int64           `json:"stock"`
	DeletedAt *time.Time      `json:"deleted_at,omitempty"`
}

// Category groups products.
type Category struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	ProductCount int    `json:"product_count"`
}

// VariantInput describes a variant to create.
type VariantInput struct {
	SKU          string          `validate:"required,max=64"`
	Name         string          `validate:"required,max=120"`
	Price        decimal.Decimal `validate:"-"`
	InitialStock int64           `validate:"gte=0"`
}

// CreateInput describes a new product.
type CreateInput struct {
	SKU          string          `validate:"required,max=64"`
	Name         string          `validate:"required,max=200"`
	Description  string          `validate:"max=2000"`
	CategoryID   *int64          `validate:"-"`
	VendorID     *int64          `validate:"-"`
	Price        decimal.Decimal `validate:"-"`
	BuyPrice     decimal.Decimal `validate:"-"`
	InitialStock int64           `validate:"gte=0"`
	BufferStock  *int64          `validate:"omitnil,gte=0"`
	ImageURL     string          `validate:"omitempty,uri"`
	Variants     []VariantInput  `validate:"dive"`
	ActorID      int64           `validate:"-"`
}

// UpdateInput edits product metadata. Stock is not editable.
type UpdateInput struct {
	SKU         string          `validate:"required,max=64"`
	Name        string          `validate:"required,max=200"`
	Description string          `validate:"max=2000"`
	CategoryID  *int64          `validate:"-"`
	VendorID    *int64          `validate:"-"`
	Price       decimal.Decimal `validate:"-"`
	BuyPrice    decimal.Decimal `validate:"-"`
	BufferStock int64           `validate:"gte=0"`
	ImageURL    string          `validate:"omitempty,uri"`
	ActorID     int64           `validate:"-"`
}

// ListFilter narrows product listings.
type ListFilter struct {
	Search         string
	CategoryID     int64
	VendorID       int64
	LowStockOnly   bool
	IncludeDeleted bool
	SortBy         string
	SortDir        string
	Page           int
	PerPage        int
}

// ListResult is a page of products.
type ListResult struct {
	Items      []Product         `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

var (
	ErrNotFound         = shared.Missing("product not found")
	ErrVariantNotFound  = shared.Missing("variant not found")
	ErrDuplicateSKU     = shared.Conflicting("SKU is already used by another product")
	ErrNegativePrice    = shared.Invalid("prices cannot be negative")
	ErrStockOnProduct   = shared.Conflicting("product still holds stock of its own: decrease it to zero before adding variants")
	ErrProductDeleted   = shared.Conflicting("product has been deleted")
	ErrCategoryNotFound = shared.Missing("category not found")
	ErrCategoryExists   = shared.Conflicting("category already exists")
	ErrCategoryInUse    = shared.Conflicting("category is used by products")
	ErrInvalidReference = shared.Invalid("unknown category or vendor")
)
