package inventory

import (
	"fmt"
	"sort"
)

// Discrepancy kinds.
const (
	KindArithmetic     = "arithmetic"
	KindBrokenChain    = "broken_chain"
	KindSign           = "sign"
	KindNegative       = "negative"
	KindCreatedNotHead = "created_not_first"
	KindAfterDeleted   = "row_after_delete"
	KindDeleteNotZero  = "delete_not_zero"
	KindStockMismatch  = "stock_mismatch"
	KindAggregate      = "aggregate_mismatch"
	KindMissingDelete  = "missing_delete"
	KindUnknownVariant = "unknown_variant"
)

// Replay walks each item's ledger in id order and compares the result with the
// stored stock. rows may hold the product's own rows and those of its variants.
func Replay(stock ProductStock, rows []Transaction) Report {
	report := Report{ProductID: stock.ProductID, Transactions: len(rows)}
	add := func(ref ItemRef, txID int64, kind, format string, args ...any) {
		report.Discrepancies = append(report.Discrepancies, Discrepancy{
			Ref: ref, TransactionID: txID, Kind: kind, Detail: fmt.Sprintf(format, args...),
		})
	}

	ledgers := make(map[int64][]Transaction)
	for _, row := range rows {
		ledgers[row.VariantID] = append(ledgers[row.VariantID], row)
	}
	type state struct {
		balance     int64
		lastDeleted bool
	}
	states := make(map[int64]state, len(ledgers))
	keys := make([]int64, 0, len(ledgers))
	for k := range ledgers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, variantID := range keys {
		ledger := ledgers[variantID]
		sort.Slice(ledger, func(i, j int) bool { return ledger[i].ID < ledger[j].ID })
		var st state
		deleted := false
		for i, row := range ledger {
			ref := row.Ref()
			if deleted {
				add(ref, row.ID, KindAfterDeleted, "%s row follows DELETED", row.Action)
			}
			if row.StockAfter != row.StockBefore+row.StockChange {
				add(ref, row.ID, KindArithmetic, "%d %+d != %d", row.StockBefore, row.StockChange, row.StockAfter)
			}
			if row.StockBefore != st.balance {
				add(ref, row.ID, KindBrokenChain, "before %d, previous after %d", row.StockBefore, st.balance)
			}
			if row.StockAfter < 0 {
				add(ref, row.ID, KindNegative, "after %d", row.StockAfter)
			}
			switch row.Action {
			case ActionCreated:
				if i != 0 {
					add(ref, row.ID, KindCreatedNotHead, "CREATED at position %d", i+1)
				}
				if row.StockChange < 0 {
					add(ref, row.ID, KindSign, "CREATED with change %d", row.StockChange)
				}
			case ActionIncreased, ActionReturned:
				if row.StockChange <= 0 {
					add(ref, row.ID, KindSign, "%s with change %d", row.Action, row.StockChange)
				}
			case ActionDecreased:
				if row.StockChange >= 0 {
					add(ref, row.ID, KindSign, "DECREASED with change %d", row.StockChange)
				}
			case ActionDeleted:
				if row.StockAfter != 0 {
					add(ref, row.ID, KindDeleteNotZero, "DELETED leaves %d", row.StockAfter)
				}
				deleted = true
			default:
				add(ref, row.ID, KindSign, "unknown action %q", row.Action)
			}
			st.balance = row.StockAfter
		}
		st.lastDeleted = len(ledger) > 0 && ledger[len(ledger)-1].Action == ActionDeleted
		states[variantID] = st
	}

	productRef := ItemRef{ProductID: stock.ProductID}
	own := states[0]
	if stock.HasVariants {
		if own.balance != 0 {
			add(productRef, 0, KindStockMismatch, "product-level ledger ends at %d on a product with variants", own.balance)
		}
		var sum int64
		known := make(map[int64]bool, len(stock.Variants))
		for _, v := range stock.Variants {
			known[v.Ref.VariantID] = true
			sum += v.Stock
			vs := states[v.Ref.VariantID]
			if vs.balance != v.Stock {
				add(v.Ref, 0, KindStockMismatch, "ledger ends at %d, stored stock %d", vs.balance, v.Stock)
			}
			if v.Deleted && !vs.lastDeleted {
				add(v.Ref, 0, KindMissingDelete, "deleted variant without DELETED row")
			}
		}
		for _, variantID := range keys {
			if variantID != 0 && !known[variantID] {
				add(ItemRef{ProductID: stock.ProductID, VariantID: variantID}, 0, KindUnknownVariant, "ledger rows for unknown variant")
			}
		}
		if sum != stock.Stock {
			add(productRef, 0, KindAggregate, "product stock %d, variants sum %d", stock.Stock, sum)
		}
	} else {
		if own.balance != stock.Stock {
			add(productRef, 0, KindStockMismatch, "ledger ends at %d, stored stock %d", own.balance, stock.Stock)
		}
		if stock.Deleted && !own.lastDeleted {
			add(productRef, 0, KindMissingDelete, "deleted product without DELETED row")
		}
		for _, variantID := range keys {
			if variantID != 0 {
				add(ItemRef{ProductID: stock.ProductID, VariantID: variantID}, 0, KindUnknownVariant, "variant rows on a product without variants")
			}
		}
	}
	return report
}
