package dashboard

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockbook/stockbook/internal/revalidate"
)

type stubRepo struct {
	summaryCalls atomic.Int32
	activityFrom time.Time
	activityTo   time.Time
	failTop      bool
	rows         []ValuationRow
}

func (s *stubRepo) Summary(context.Context, time.Time) (Summary, error) {
	s.summaryCalls.Add(1)
	return Summary{Products: 3, Units: 40, StockValue: decimal.NewFromInt(400)}, nil
}

func (s *stubRepo) LowStock(context.Context, int) ([]LowStockItem, error) {
	return []LowStockItem{{ProductID: 1, SKU: "A", Stock: 1, BufferStock: 5}}, nil
}

func (s *stubRepo) Activity(_ context.Context, from, to time.Time) ([]ActivityPoint, error) {
	s.activityFrom, s.activityTo = from, to
	return []ActivityPoint{{Day: from, In: 5, Out: 2, Returned: 1}, {Day: to, Out: 4}}, nil
}

func (s *stubRepo) TopProducts(context.Context, int) ([]TopProduct, error) {
	if s.failTop {
		return nil, errors.New("boom")
	}
	return []TopProduct{{ProductID: 2, SKU: "B", Value: decimal.NewFromInt(300)}}, nil
}

func (s *stubRepo) Categories(context.Context) ([]CategorySlice, error) {
	return []CategorySlice{{Name: "Uncategorised", Products: 3, Units: 40}}, nil
}

func (s *stubRepo) Valuation(context.Context) ([]ValuationRow, error) { return s.rows, nil }

func newTestService(t *testing.T, repo RepositoryPort) (*Service, *revalidate.Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := revalidate.New(client, time.Minute, nil)
	svc := NewService(repo, cache, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC) }
	return svc, cache
}

func TestSnapshotLoadsAllSectionsAndCaches(t *testing.T) {
	repo := &stubRepo{}
	svc, cache := newTestService(t, repo)
	ctx := context.Background()

	snap, err := svc.Snapshot(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Summary.Products)
	assert.Len(t, snap.LowStock, 1)
	assert.Len(t, snap.TopProducts, 1)
	assert.Len(t, snap.Categories, 1)
	require.Len(t, snap.Activity, 2)
	assert.EqualValues(t, 4, snap.Activity[0].Net())
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), repo.activityFrom)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), repo.activityTo)

	_, err = svc.Snapshot(ctx, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 1, repo.summaryCalls.Load())

	require.NoError(t, cache.Revalidate(ctx, revalidate.TagTransactions))
	_, err = svc.Snapshot(ctx, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 2, repo.summaryCalls.Load())
}

func TestSnapshotFailsWhenAnySectionFails(t *testing.T) {
	svc, _ := newTestService(t, &stubRepo{failTop: true})
	_, err := svc.Snapshot(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestValuationTotalsAndCSV(t *testing.T) {
	repo := &stubRepo{rows: []ValuationRow{
		{SKU: "A", Name: "Apple", Stock: 3, BuyPrice: decimal.RequireFromString("1.25"), Price: decimal.NewFromInt(2)},
		{SKU: "B", Name: "Bean", Stock: 10, BuyPrice: decimal.RequireFromString("0.40"), Price: decimal.NewFromInt(1)},
	}}
	svc, _ := newTestService(t, repo)
	v, err := svc.Valuation(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 13, v.Units)
	assert.Equal(t, "7.75", v.Total.StringFixed(2))

	var buf bytes.Buffer
	require.NoError(t, WriteValuationCSV(&buf, v))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "Stock value", records[0][8])
	assert.Equal(t, "3.75", records[1][8])
	assert.Equal(t, []string{"", "Total", "", "", "13", "", "", "", "7.75"}, records[3])
}

func TestCharts(t *testing.T) {
	activity, net, err := Charts([]ActivityPoint{
		{Day: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), In: 3},
		{Day: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), Out: 5},
	})
	require.NoError(t, err)
	assert.Contains(t, string(activity), "Jan 2")
	assert.Contains(t, string(activity), "Increased")
	assert.Contains(t, string(net), "<path")

	a, n, err := Charts(nil)
	require.NoError(t, err)
	assert.Empty(t, a)
	assert.Empty(t, n)
}
