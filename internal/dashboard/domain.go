package dashboard

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultWindow is the number of days the activity charts cover.
const DefaultWindow = 14

// Summary holds the headline figures.
type Summary struct {
	Products    int             `json:"products"`
	Units       int64           `json:"units"`
	StockValue  decimal.Decimal `json:"stock_value"`
	RetailValue decimal.Decimal `json:"retail_value"`
	LowStock    int             `json:"low_stock"`
	Vendors     int             `json:"vendors"`
	Customers   int             `json:"customers"`
	Returns30d  int             `json:"returns_30d"`
}

// LowStockItem is a product at or below its buffer stock.
type LowStockItem struct {
	ProductID   int64  `json:"product_id"`
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	VendorName  string `json:"vendor_name"`
	Stock       int64  `json:"stock"`
	BufferStock int64  `json:"buffer_stock"`
}

// Shortfall is how many units are needed to get back above the buffer.
func (i LowStockItem) Shortfall() int64 {
	return i.BufferStock - i.Stock + 1
}

// ActivityPoint aggregates one day of ledger movement.
type ActivityPoint struct {
	Day      time.Time `json:"day"`
	In       int64     `json:"in"`
	Out      int64     `json:"out"`
	Returned int64     `json:"returned"`
}

// Net is the signed movement of the day.
func (p ActivityPoint) Net() int64 { return p.In + p.Returned - p.Out }

// TopProduct ranks products by stock value at buy price.
type TopProduct struct {
	ProductID int64           `json:"product_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Stock     int64           `json:"stock"`
	Value     decimal.Decimal `json:"value"`
}

// CategorySlice is the stock held in one category.
type CategorySlice struct {
	Name     string          `json:"name"`
	Products int             `json:"products"`
	Units    int64           `json:"units"`
	Value    decimal.Decimal `json:"value"`
}

// Snapshot is everything the dashboard page shows.
type Snapshot struct {
	Summary     Summary         `json:"summary"`
	LowStock    []LowStockItem  `json:"low_stock"`
	Activity    []ActivityPoint `json:"activity"`
	TopProducts []TopProduct    `json:"top_products"`
	Categories  []CategorySlice `json:"categories"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// ValuationRow is one product line of the stock valuation report.
type ValuationRow struct {
	ProductID    int64           `json:"product_id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	CategoryName string          `json:"category_name"`
	VendorName   string          `json:"vendor_name"`
	Stock        int64           `json:"stock"`
	BufferStock  int64           `json:"buffer_stock"`
	BuyPrice     decimal.Decimal `json:"buy_price"`
	Price        decimal.Decimal `json:"price"`
}

// Value is stock valued at buy price.
func (r ValuationRow) Value() decimal.Decimal {
	return r.BuyPrice.Mul(decimal.NewFromInt(r.Stock))
}

// Valuation is the stock valuation report.
type Valuation struct {
	Rows        []ValuationRow  `json:"rows"`
	Units       int64           `json:"units"`
	Total       decimal.Decimal `json:"total"`
	GeneratedAt time.Time       `json:"generated_at"`
}
