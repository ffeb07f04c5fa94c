package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserSafeMessage(t *testing.T) {
	errLow := Invalid("insufficient stock")
	wrapped := fmt.Errorf("decrease product 4: %w", errLow)

	assert.Equal(t, "Insufficient stock", UserSafeMessage(wrapped))
	assert.True(t, errors.Is(wrapped, ErrValidation))
	assert.True(t, errors.Is(wrapped, errLow))
	assert.Equal(t, "This form was already submitted.", UserSafeMessage(ErrIdempotencyConflict))
	assert.Equal(t, "Something went wrong. Please try again.", UserSafeMessage(errors.New("pq: boom")))
	assert.Empty(t, UserSafeMessage(nil))
}

func TestPagination(t *testing.T) {
	p := NewPagination(3, 10, 41)
	assert.Equal(t, 5, p.TotalPages)
	assert.Equal(t, 20, p.Offset())
	assert.True(t, p.HasPrev())
	assert.True(t, p.HasNext())

	last := NewPagination(5, 10, 41)
	assert.False(t, last.HasNext())

	empty := NewPagination(0, 0, 0)
	assert.Equal(t, 1, empty.Page)
	assert.Equal(t, DefaultPerPage, empty.PerPage)
	assert.Equal(t, 0, empty.Offset())
}
