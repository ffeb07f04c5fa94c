package customers

import (
	"time"

	"github.com/stockbook/stockbook/internal/shared"
)

// Customer buys products and may return them.
type Customer struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	Email       string    `json:"email"`
	Address     string    `json:"address"`
	IsActive    bool      `json:"is_active"`
	ReturnCount int       `json:"return_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Input carries customer fields from forms.
type Input struct {
	Code     string `validate:"required,max=32"`
	Name     string `validate:"required,max=200"`
	Phone    string `validate:"max=40"`
	Email    string `validate:"omitempty,email,max=200"`
	Address  string `validate:"max=500"`
	IsActive bool
	ActorID  int64 `validate:"-"`
}

// ListFilter narrows customer listings.
type ListFilter struct {
	Search  string
	Page    int
	PerPage int
}

// ListResult is a page of customers.
type ListResult struct {
	Items      []Customer        `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

var (
	ErrNotFound      = shared.Missing("customer not found")
	ErrDuplicateCode = shared.Conflicting("customer code is already in use")
	ErrCustomerInUse = shared.Conflicting("customer has recorded returns and cannot be deleted")
)
