package dashboard

import (
	"encoding/csv"
	"io"
	"strconv"
)

// WriteValuationCSV writes the product valuation as CSV.
func WriteValuationCSV(w io.Writer, v Valuation) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"SKU", "Name", "Category", "Vendor", "Stock", "Buffer stock", "Buy price", "Price", "Stock value"}); err != nil {
		return err
	}
	for _, r := range v.Rows {
		if err := writer.Write([]string{
			r.SKU,
			r.Name,
			r.CategoryName,
			r.VendorName,
			strconv.FormatInt(r.Stock, 10),
			strconv.FormatInt(r.BufferStock, 10),
			r.BuyPrice.StringFixed(2),
			r.Price.StringFixed(2),
			r.Value().StringFixed(2),
		}); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{"", "Total", "", "", strconv.FormatInt(v.Units, 10), "", "", "", v.Total.StringFixed(2)}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}
