package view

import (
	"strings"

	"github.com/stockbook/stockbook/internal/rbac"
)

// NavItem is one sidebar link.
type NavItem struct {
	Label      string
	Href       string
	Icon       string
	Permission string
	Active     bool
}

// NavSection groups sidebar links under a heading.
type NavSection struct {
	Title string
	Items []NavItem
}

var sidebar = []NavSection{
	{Title: "Overview", Items: []NavItem{
		{Label: "Dashboard", Href: "/", Icon: "grid", Permission: rbac.PermDashboardView},
	}},
	{Title: "Inventory", Items: []NavItem{
		{Label: "Products", Href: "/products", Icon: "box", Permission: rbac.PermCatalogView},
		{Label: "Categories", Href: "/categories", Icon: "tag", Permission: rbac.PermCatalogView},
		{Label: "Transactions", Href: "/inventory/transactions", Icon: "list", Permission: rbac.PermStockView},
		{Label: "Returns", Href: "/returns", Icon: "undo", Permission: rbac.PermReturnsView},
	}},
	{Title: "Contacts", Items: []NavItem{
		{Label: "Vendors", Href: "/vendors", Icon: "truck", Permission: rbac.PermVendorsView},
		{Label: "Customers", Href: "/customers", Icon: "users", Permission: rbac.PermCustomersView},
	}},
	{Title: "Maintenance", Items: []NavItem{
		{Label: "Ledger audit", Href: "/inventory/audit", Icon: "check", Permission: rbac.PermLedgerAudit},
	}},
}

// BuildNav returns the sidebar visible to role with the current item marked.
// Sections left empty by permission filtering are dropped.
func BuildNav(role, currentPath string) []NavSection {
	out := make([]NavSection, 0, len(sidebar))
	for _, section := range sidebar {
		var items []NavItem
		for _, item := range section.Items {
			if item.Permission != "" && !rbac.Allowed(role, item.Permission) {
				continue
			}
			item.Active = isActive(item.Href, currentPath)
			items = append(items, item)
		}
		if len(items) > 0 {
			out = append(out, NavSection{Title: section.Title, Items: items})
		}
	}
	return out
}

func isActive(href, current string) bool {
	if href == "/" {
		return current == "/"
	}
	return current == href || strings.HasPrefix(current, href+"/")
}
