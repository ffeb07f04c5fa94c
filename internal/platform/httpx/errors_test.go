package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stockbook/stockbook/internal/shared"
)

func TestRespondErrorMapsClasses(t *testing.T) {
	cases := []struct {
		err    error
		status int
		detail string
	}{
		{fmt.Errorf("load: %w", shared.Missing("product not found")), http.StatusNotFound, "Product not found"},
		{shared.Invalid("quantity must be positive"), http.StatusUnprocessableEntity, "Quantity must be positive"},
		{shared.ErrIdempotencyConflict, http.StatusConflict, "This form was already submitted."},
		{errors.New("dial tcp: refused"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code)
		require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, tc.status, body.Status)
		require.Equal(t, tc.detail, body.Detail)
	}
}
