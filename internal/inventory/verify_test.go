package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(r Report) []string {
	var out []string
	for _, d := range r.Discrepancies {
		out = append(out, d.Kind)
	}
	return out
}

func TestReplayDetectsBrokenLedgers(t *testing.T) {
	cases := []struct {
		name  string
		stock ProductStock
		rows  []Transaction
		want  []string
	}{
		{
			name:  "clean",
			stock: ProductStock{ProductID: 1, Stock: 3},
			rows: []Transaction{
				{ID: 1, ProductID: 1, Action: ActionCreated, StockBefore: 0, StockChange: 5, StockAfter: 5},
				{ID: 2, ProductID: 1, Action: ActionDecreased, StockBefore: 5, StockChange: -2, StockAfter: 3},
			},
		},
		{
			name:  "lost update leaves a gap",
			stock: ProductStock{ProductID: 1, Stock: 6},
			rows: []Transaction{
				{ID: 1, ProductID: 1, Action: ActionCreated, StockBefore: 0, StockChange: 5, StockAfter: 5},
				{ID: 2, ProductID: 1, Action: ActionIncreased, StockBefore: 5, StockChange: 1, StockAfter: 6},
				{ID: 3, ProductID: 1, Action: ActionIncreased, StockBefore: 5, StockChange: 1, StockAfter: 6},
			},
			want: []string{KindBrokenChain},
		},
		{
			name:  "bad arithmetic and sign",
			stock: ProductStock{ProductID: 1, Stock: 4},
			rows: []Transaction{
				{ID: 1, ProductID: 1, Action: ActionCreated, StockBefore: 0, StockChange: 5, StockAfter: 5},
				{ID: 2, ProductID: 1, Action: ActionDecreased, StockBefore: 5, StockChange: 1, StockAfter: 4},
			},
			want: []string{KindArithmetic, KindSign},
		},
		{
			name:  "row after delete",
			stock: ProductStock{ProductID: 1, Stock: 2, Deleted: true},
			rows: []Transaction{
				{ID: 1, ProductID: 1, Action: ActionCreated, StockBefore: 0, StockChange: 2, StockAfter: 2},
				{ID: 2, ProductID: 1, Action: ActionDeleted, StockBefore: 2, StockChange: -2, StockAfter: 0},
				{ID: 3, ProductID: 1, Action: ActionIncreased, StockBefore: 0, StockChange: 2, StockAfter: 2},
			},
			want: []string{KindAfterDeleted, KindMissingDelete},
		},
		{
			name: "variant aggregate drift",
			stock: ProductStock{ProductID: 1, Stock: 9, HasVariants: true, Variants: []StockItem{
				{Ref: ItemRef{ProductID: 1, VariantID: 7}, Stock: 4},
				{Ref: ItemRef{ProductID: 1, VariantID: 8}, Stock: 4},
			}},
			rows: []Transaction{
				{ID: 1, ProductID: 1, VariantID: 7, Action: ActionCreated, StockBefore: 0, StockChange: 4, StockAfter: 4},
				{ID: 2, ProductID: 1, VariantID: 8, Action: ActionCreated, StockBefore: 0, StockChange: 4, StockAfter: 4},
			},
			want: []string{KindAggregate},
		},
		{
			name:  "stored stock differs from ledger",
			stock: ProductStock{ProductID: 1, Stock: 10},
			rows: []Transaction{
				{ID: 1, ProductID: 1, Action: ActionCreated, StockBefore: 0, StockChange: 5, StockAfter: 5},
			},
			want: []string{KindStockMismatch},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := Replay(tc.stock, tc.rows)
			assert.Equal(t, tc.want, kinds(report))
			assert.Equal(t, len(tc.rows), report.Transactions)
		})
	}
}

func TestItemRefKeyRoundTrip(t *testing.T) {
	for _, ref := range []ItemRef{{ProductID: 4}, {ProductID: 4, VariantID: 9}} {
		got, err := ParseItemRef(ref.Key())
		require.NoError(t, err)
		assert.Equal(t, ref, got)
	}
	for _, raw := range []string{"", "x", "0", "3:", "3:y", "-1"} {
		_, err := ParseItemRef(raw)
		assert.ErrorIs(t, err, ErrItemNotFound, raw)
	}
}
