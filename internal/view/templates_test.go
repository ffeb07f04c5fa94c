package view

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockbook/stockbook/internal/rbac"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
	assert.True(t, engine.Has("pages/auth/login.html"))
	assert.True(t, engine.Has("pages/products/list.html"))
	assert.True(t, engine.Has("pages/vendors/list.html"))
}

func TestRenderLoginPage(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	err = engine.Render(rec, http.StatusOK, "pages/auth/login.html", TemplateData{
		Title:     "Sign in",
		CSRFToken: "tok",
		Data: map[string]any{
			"Form":   map[string]string{"Email": "a@b.c", "Next": "/"},
			"Errors": map[string]string{"general": "Invalid e-mail or password."},
		},
	})
	require.NoError(t, err)
	body := rec.Body.String()
	assert.Contains(t, body, "<form")
	assert.Contains(t, body, `value="tok"`)
	assert.Contains(t, body, `value="a@b.c"`)
	assert.Contains(t, body, "Invalid e-mail or password.")
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestRenderUnknownPage(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)
	_, err = engine.RenderBytes("pages/nope.html", TemplateData{})
	require.Error(t, err)
}

func TestBuildNavFiltersByRole(t *testing.T) {
	staff := BuildNav(rbac.RoleStaff, "/products/12/edit")
	admin := BuildNav(rbac.RoleAdmin, "/")

	labels := func(sections []NavSection) []string {
		var out []string
		for _, s := range sections {
			for _, item := range s.Items {
				out = append(out, item.Label)
			}
		}
		return out
	}
	assert.NotContains(t, labels(staff), "Ledger audit")
	assert.Contains(t, labels(admin), "Ledger audit")

	var active []string
	for _, s := range staff {
		for _, item := range s.Items {
			if item.Active {
				active = append(active, item.Label)
			}
		}
	}
	assert.Equal(t, []string{"Products"}, active)
	assert.True(t, admin[0].Items[0].Active)
	assert.Empty(t, BuildNav("", "/"))
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "12,345", FormatQty(12345))
	assert.Equal(t, "+7", Signed(7))
	assert.Equal(t, "-1,200", Signed(-1200))
	assert.Equal(t, "1,234.50", FormatMoney(decimal.RequireFromString("1234.5")))
	assert.Equal(t, "", FormatDate(time.Time{}))
	assert.Equal(t, "badge badge-danger", ActionClass("DELETED"))
	assert.True(t, strings.HasPrefix(ActionClass("X"), "badge"))
}

func TestDict(t *testing.T) {
	m, err := Dict("Path", "/products", "Page", 2)
	require.NoError(t, err)
	assert.Equal(t, "/products", m["Path"])
	assert.Equal(t, 2, m["Page"])

	_, err = Dict("odd")
	assert.Error(t, err)
	_, err = Dict(1, 2)
	assert.Error(t, err)
}

func TestPageURL(t *testing.T) {
	assert.Equal(t, "/products?q=tea&sort=name&page=3", string(PageURL("/products", "q=tea&sort=name", 3)))
	assert.Equal(t, "/vendors?page=1", string(PageURL("/vendors", "", 1)))
	assert.Equal(t, "/inventory/transactions.csv", string(WithQuery("/inventory/transactions.csv", "")))
	assert.Equal(t, "/x?a=1&b=2", string(WithQuery("/x", "a=1&b=2")))
}
