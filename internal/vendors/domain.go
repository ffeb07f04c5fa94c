package vendors

import (
	"time"

	"github.com/stockbook/stockbook/internal/shared"
)

// Vendor supplies products.
type Vendor struct {
	ID           int64     `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email"`
	Address      string    `json:"address"`
	IsActive     bool      `json:"is_active"`
	ProductCount int       `json:"product_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Input is the editable part of a vendor.
type Input struct {
	Code     string `validate:"required,max=32"`
	Name     string `validate:"required,max=200"`
	Phone    string `validate:"max=40"`
	Email    string `validate:"omitempty,email,max=200"`
	Address  string `validate:"max=500"`
	IsActive bool
	ActorID  int64 `validate:"-"`
}

// ListFilter narrows vendor listings.
type ListFilter struct {
	Search     string
	ActiveOnly bool
	SortBy     string
	SortDir    string
	Page       int
	PerPage    int
}

// ListResult is a page of vendors.
type ListResult struct {
	Items      []Vendor          `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

var (
	ErrNotFound      = shared.Missing("vendor not found")
	ErrDuplicateCode = shared.Conflicting("vendor code is already in use")
	ErrVendorInUse   = shared.Conflicting("vendor is referenced by products: deactivate it instead")
)
