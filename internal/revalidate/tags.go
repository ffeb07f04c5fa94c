package revalidate

import "strconv"

// Tags shared by readers and writers.
const (
	TagProducts     = "products"
	TagTransactions = "transactions"
	TagDashboard    = "dashboard"
	TagVendors      = "vendors"
	TagCustomers    = "customers"
	TagReturns      = "returns"
	TagCategories   = "categories"
)

// ProductTag scopes a cache entry to a single product.
func ProductTag(id int64) string {
	return "product:" + strconv.FormatInt(id, 10)
}

// StockTags are revalidated after any change to a product's stock.
func StockTags(productID int64) []string {
	return []string{TagProducts, ProductTag(productID), TagTransactions, TagDashboard}
}
