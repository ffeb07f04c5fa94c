package rbac

import "strings"

// Roles.
const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// Permissions.
const (
	PermDashboardView = "dashboard.view"
	PermCatalogView   = "catalog.view"
	PermCatalogEdit   = "catalog.edit"
	PermStockView     = "stock.view"
	PermStockPost     = "stock.post"
	PermVendorsView   = "vendors.view"
	PermVendorsEdit   = "vendors.edit"
	PermCustomersView = "customers.view"
	PermCustomersEdit = "customers.edit"
	PermReturnsView   = "returns.view"
	PermReturnsPost   = "returns.post"
	PermReportsExport = "reports.export"
	PermLedgerAudit   = "ledger.audit"
)

var staffPermissions = []string{
	PermDashboardView,
	PermCatalogView,
	PermStockView,
	PermStockPost,
	PermVendorsView,
	PermCustomersView,
	PermReturnsView,
	PermReturnsPost,
	PermReportsExport,
}

var rolePermissions = map[string][]string{
	RoleStaff: staffPermissions,
	RoleAdmin: append(append([]string{}, staffPermissions...),
		PermCatalogEdit,
		PermVendorsEdit,
		PermCustomersEdit,
		PermLedgerAudit,
	),
}

// ValidRole reports whether role is known.
func ValidRole(role string) bool {
	_, ok := rolePermissions[strings.ToLower(role)]
	return ok
}

// Permissions returns the permissions granted to role.
func Permissions(role string) []string {
	return rolePermissions[strings.ToLower(role)]
}

// Allowed reports whether role holds perm.
func Allowed(role, perm string) bool {
	_, ok := grants[strings.ToLower(role)][strings.ToLower(perm)]
	return ok
}

// grants indexes rolePermissions for lookups on every guarded request.
var grants = func() map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(rolePermissions))
	for role, perms := range rolePermissions {
		set := make(map[string]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		out[role] = set
	}
	return out
}()
