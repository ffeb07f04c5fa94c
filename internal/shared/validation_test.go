package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldErrors(t *testing.T) {
	type form struct {
		Email string `validate:"required,email"`
		Qty   int64  `validate:"gt=0"`
		Note  string `validate:"max=5"`
	}
	errs := FieldErrors(form{Email: "nope", Qty: 0, Note: "too long"})
	assert.Equal(t, "Enter a valid e-mail address", errs["email"])
	assert.Equal(t, "Must be greater than 0", errs["qty"])
	assert.Equal(t, "Must be at most 5 characters", errs["note"])

	assert.Nil(t, FieldErrors(form{Email: "a@b.co", Qty: 1}))
}

func TestFieldErrorsNested(t *testing.T) {
	type line struct {
		SKU string `validate:"required"`
	}
	type form struct {
		Name  string `validate:"required"`
		Lines []line `validate:"dive"`
	}
	errs := FieldErrors(form{Name: "x", Lines: []line{{SKU: "a"}, {}}})
	assert.Equal(t, map[string]string{"lines[1].sku": "This field is required"}, errs)
}
