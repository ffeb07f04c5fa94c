package returns

import (
	"time"

	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/shared"
)

// Return is goods a customer sent back, linked to the ledger row that booked them.
type Return struct {
	ID            int64     `json:"id"`
	CustomerID    int64     `json:"customer_id"`
	CustomerName  string    `json:"customer_name"`
	ProductID     int64     `json:"product_id"`
	VariantID     int64     `json:"variant_id,omitempty"`
	ProductSKU    string    `json:"product_sku"`
	ProductName   string    `json:"product_name"`
	VariantName   string    `json:"variant_name,omitempty"`
	Quantity      int64     `json:"quantity"`
	Reason        string    `json:"reason"`
	TransactionID int64     `json:"transaction_id"`
	CreatedBy     int64     `json:"created_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Ref returns the returned item.
func (r Return) Ref() inventory.ItemRef {
	return inventory.ItemRef{ProductID: r.ProductID, VariantID: r.VariantID}
}

// CreateInput records a customer return.
type CreateInput struct {
	CustomerID     int64             `validate:"gt=0"`
	Item           inventory.ItemRef `validate:"-"`
	Quantity       int64             `validate:"gt=0"`
	Reason         string            `validate:"required,max=500"`
	ActorID        int64             `validate:"-"`
	IdempotencyKey string            `validate:"omitempty,uuid4"`
}

// ListFilter narrows the returns listing.
type ListFilter struct {
	CustomerID int64
	From       time.Time
	To         time.Time
	Page       int
	PerPage    int
}

// ListResult is a page of returns.
type ListResult struct {
	Items      []Return          `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

var (
	ErrCustomerNotFound = shared.Missing("customer not found")
	ErrCustomerInactive = shared.Invalid("customer is inactive")
	ErrInvalidRange     = shared.Invalid("the end date must not be before the start date")
)
