package inventory

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

var ledgerCSVHeader = []string{"ID", "Date", "SKU", "Product", "Variant", "Action", "Before", "Change", "After", "Note", "Reference"}

// LedgerCSV streams ledger rows as CSV, one page at a time.
type LedgerCSV struct {
	writer *csv.Writer
}

// NewLedgerCSV writes the header row and returns the stream.
func NewLedgerCSV(w io.Writer) (*LedgerCSV, error) {
	out := &LedgerCSV{writer: csv.NewWriter(w)}
	if err := out.writer.Write(ledgerCSVHeader); err != nil {
		return nil, err
	}
	return out, nil
}

// Write appends rows and flushes them to the underlying writer.
func (l *LedgerCSV) Write(rows []Transaction) error {
	for _, row := range rows {
		ref := row.RefType
		if row.RefID != "" {
			ref += ":" + row.RefID
		}
		if err := l.writer.Write([]string{
			strconv.FormatInt(row.ID, 10),
			row.CreatedAt.UTC().Format(time.RFC3339),
			row.ProductSKU,
			row.ProductName,
			row.VariantName,
			string(row.Action),
			strconv.FormatInt(row.StockBefore, 10),
			strconv.FormatInt(row.StockChange, 10),
			strconv.FormatInt(row.StockAfter, 10),
			row.Note,
			ref,
		}); err != nil {
			return err
		}
	}
	l.writer.Flush()
	return l.writer.Error()
}

// WriteLedgerCSV serialises ledger rows to CSV.
func WriteLedgerCSV(w io.Writer, rows []Transaction) error {
	out, err := NewLedgerCSV(w)
	if err != nil {
		return err
	}
	return out.Write(rows)
}
