package inventory

import (
	"encoding/csv"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/stockbook/stockbook/internal/rbac"
)

func newTestHandler(f *fixture) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc, nil, nil, nil, rbac.Middleware{})
	r := chi.NewRouter()
	r.Get("/inventory/transactions.csv", h.exportTransactions)
	r.Get("/api/products/{id}/ledger", h.ledgerJSON)
	return r
}

func TestExportTransactionsWritesEveryPage(t *testing.T) {
	f := newFixture()
	total := 2*exportPageSize + 50
	for i := 1; i <= total; i++ {
		f.repo.rows = append(f.repo.rows, Transaction{
			ID: int64(i), ProductID: 1, Action: ActionIncreased,
			StockBefore: int64(i - 1), StockChange: 1, StockAfter: int64(i), CreatedAt: time.Now(),
		})
	}

	rec := httptest.NewRecorder()
	newTestHandler(f).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inventory/transactions.csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, total+1)
	require.Equal(t, ledgerCSVHeader, records[0])
	require.Equal(t, "2050", records[1][0])
	require.Equal(t, "1", records[total][0])
}

func TestExportTransactionsRejectsBadFilter(t *testing.T) {
	f := newFixture()
	rec := httptest.NewRecorder()
	newTestHandler(f).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inventory/transactions.csv?from=yesterday", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLedgerJSONRejectsMalformedVariant(t *testing.T) {
	f := newFixture()
	f.product(t, 1, 3)
	h := newTestHandler(f)

	for _, raw := range []string{"abc", "0", "-4"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products/1/ledger?variant_id="+raw, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, raw)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products/1/ledger", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
