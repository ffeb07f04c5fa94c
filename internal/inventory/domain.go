package inventory

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stockbook/stockbook/internal/shared"
)

// Action tags a ledger row with the kind of stock movement.
type Action string

const (
	ActionCreated   Action = "CREATED"
	ActionIncreased Action = "INCREASED"
	ActionDecreased Action = "DECREASED"
	ActionReturned  Action = "RETURNED"
	ActionDeleted   Action = "DELETED"
)

// Actions lists every action in display order.
var Actions = []Action{ActionCreated, ActionIncreased, ActionDecreased, ActionReturned, ActionDeleted}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// ItemRef addresses a stock-holding item: a product, or one of its variants.
type ItemRef struct {
	ProductID int64 `json:"product_id"`
	VariantID int64 `json:"variant_id,omitempty"`
}

// IsVariant reports whether the ref targets a variant.
func (r ItemRef) IsVariant() bool { return r.VariantID != 0 }

func (r ItemRef) String() string {
	if r.IsVariant() {
		return fmt.Sprintf("product %d variant %d", r.ProductID, r.VariantID)
	}
	return fmt.Sprintf("product %d", r.ProductID)
}

// Key encodes the ref for form values as "product" or "product:variant".
func (r ItemRef) Key() string {
	if r.IsVariant() {
		return strconv.FormatInt(r.ProductID, 10) + ":" + strconv.FormatInt(r.VariantID, 10)
	}
	return strconv.FormatInt(r.ProductID, 10)
}

// ParseItemRef decodes a value produced by ItemRef.Key.
func ParseItemRef(raw string) (ItemRef, error) {
	product, variant, hasVariant := strings.Cut(strings.TrimSpace(raw), ":")
	var ref ItemRef
	var err error
	if ref.ProductID, err = strconv.ParseInt(product, 10, 64); err != nil || ref.ProductID <= 0 {
		return ItemRef{}, ErrItemNotFound
	}
	if hasVariant {
		if ref.VariantID, err = strconv.ParseInt(variant, 10, 64); err != nil || ref.VariantID <= 0 {
			return ItemRef{}, ErrItemNotFound
		}
	}
	return ref, nil
}

// ItemChoice is a selectable stock item.
type ItemChoice struct {
	Ref   ItemRef `json:"ref"`
	Label string  `json:"label"`
	Stock int64   `json:"stock"`
}

// StockItem is the locked state of a product or variant row.
type StockItem struct {
	Ref         ItemRef
	Stock       int64
	HasVariants bool
	Deleted     bool
}

// Transaction is one immutable ledger row.
type Transaction struct {
	ID          int64     `json:"id"`
	ProductID   int64     `json:"product_id"`
	VariantID   int64     `json:"variant_id,omitempty"`
	Action      Action    `json:"action"`
	StockBefore int64     `json:"stock_before"`
	StockChange int64     `json:"stock_change"`
	StockAfter  int64     `json:"stock_after"`
	Note        string    `json:"note,omitempty"`
	RefType     string    `json:"ref_type,omitempty"`
	RefID       string    `json:"ref_id,omitempty"`
	ActorID     int64     `json:"actor_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`

	ProductSKU  string `json:"product_sku,omitempty"`
	ProductName string `json:"product_name,omitempty"`
	VariantName string `json:"variant_name,omitempty"`
}

// Ref returns the item the row belongs to.
func (t Transaction) Ref() ItemRef {
	return ItemRef{ProductID: t.ProductID, VariantID: t.VariantID}
}

// MutationInput describes a quantity change submitted by a user or another module.
type MutationInput struct {
	Ref            ItemRef
	Qty            int64
	Note           string
	RefType        string
	RefID          string
	ActorID        int64
	IdempotencyKey string
}

// OpenInput starts the ledger of a freshly created item.
type OpenInput struct {
	Ref     ItemRef
	Qty     int64
	Note    string
	ActorID int64
}

// RetireInput soft-deletes an item and zeroes its stock.
type RetireInput struct {
	Ref     ItemRef
	Note    string
	ActorID int64
}

// LedgerFilter narrows ledger listings.
type LedgerFilter struct {
	ProductID int64
	Action    Action
	From      time.Time
	To        time.Time
	Page      int
	PerPage   int
}

// LedgerPage is one page of a ledger listing.
type LedgerPage struct {
	Items      []Transaction
	Pagination shared.Pagination
}

// ProductStock is the stored stock of a product and its variants.
type ProductStock struct {
	ProductID   int64
	Stock       int64
	HasVariants bool
	Deleted     bool
	Variants    []StockItem
}

// Discrepancy is one ledger inconsistency found by verification.
type Discrepancy struct {
	Ref           ItemRef `json:"ref"`
	TransactionID int64   `json:"transaction_id,omitempty"`
	Kind          string  `json:"kind"`
	Detail        string  `json:"detail"`
}

// Report is the verification result for one product.
type Report struct {
	ProductID     int64         `json:"product_id"`
	Transactions  int           `json:"transactions"`
	Discrepancies []Discrepancy `json:"discrepancies"`
}

// OK reports whether the ledger is consistent.
func (r Report) OK() bool { return len(r.Discrepancies) == 0 }

// AuditResult aggregates verification over every product.
type AuditResult struct {
	Checked int      `json:"checked"`
	Failing []Report `json:"failing"`
}

var (
	ErrInvalidQuantity   = shared.Invalid("quantity must be greater than zero")
	ErrInsufficientStock = shared.Invalid("insufficient stock for this decrease")
	ErrItemDeleted       = shared.Conflicting("item has been deleted")
	ErrVariantRequired   = shared.Invalid("choose a variant: this product tracks stock per variant")
	ErrVariantMismatch   = shared.Invalid("variant does not belong to product")
	ErrItemNotFound      = shared.Missing("product or variant not found")
	ErrLedgerExists      = shared.Conflicting("ledger already opened for this item")
)
