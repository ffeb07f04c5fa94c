package view

import (
	"fmt"
	"html/template"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var printer = message.NewPrinter(language.English)

// Funcs returns the helpers available to every template.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"formatDate":  FormatDate,
		"formatDay":   FormatDay,
		"formatQty":   FormatQty,
		"formatMoney": FormatMoney,
		"actionClass": ActionClass,
		"signed":      Signed,
		"add":         func(a, b int) int { return a + b },
		"sub":         func(a, b int) int { return a - b },
		"safeHTML":    func(s string) template.HTML { return template.HTML(s) },
		"dict":        Dict,
		"pageURL":     PageURL,
		"withQuery":   WithQuery,
	}
}

// Dict builds a map from alternating keys and values so partials can take
// several arguments.
func Dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("dict: odd number of arguments")
	}
	out := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict: key %v is not a string", pairs[i])
		}
		out[key] = pairs[i+1]
	}
	return out, nil
}

// WithQuery appends an already encoded query string to path.
func WithQuery(path, query string) template.URL {
	if query == "" {
		return template.URL(path)
	}
	return template.URL(path + "?" + query)
}

// PageURL links to page of a listing while keeping its encoded filter query.
func PageURL(path, query string, page int) template.URL {
	if query != "" {
		query += "&"
	}
	return WithQuery(path, query+"page="+strconv.Itoa(page))
}

// FormatDate renders a timestamp for tables.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02 Jan 2006 15:04")
}

// FormatDay renders a date without time.
func FormatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

// FormatQty groups thousands: 12345 -> "12,345".
func FormatQty(v int64) string {
	return printer.Sprint(number.Decimal(v))
}

// Signed renders a stock change with an explicit sign.
func Signed(v int64) string {
	if v > 0 {
		return "+" + FormatQty(v)
	}
	return FormatQty(v)
}

// FormatMoney renders a decimal amount with grouping and two fraction digits.
func FormatMoney(v decimal.Decimal) string {
	return printer.Sprint(number.Decimal(v.Round(2).InexactFloat64(), number.Scale(2)))
}

// ActionClass maps a ledger action to a badge CSS class.
func ActionClass(action any) string {
	switch fmt.Sprint(action) {
	case "CREATED":
		return "badge badge-info"
	case "INCREASED":
		return "badge badge-success"
	case "DECREASED":
		return "badge badge-warning"
	case "RETURNED":
		return "badge badge-primary"
	case "DELETED":
		return "badge badge-danger"
	default:
		return "badge"
	}
}
