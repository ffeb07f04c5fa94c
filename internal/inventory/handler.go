package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stockbook/stockbook/internal/platform/httpx"
	"github.com/stockbook/stockbook/internal/rbac"
	"github.com/stockbook/stockbook/internal/shared"
	"github.com/stockbook/stockbook/internal/view"
)

// VariantOption is a variant selectable on stock forms.
type VariantOption struct {
	ID    int64
	SKU   string
	Name  string
	Stock int64
}

// ItemOptions describes a product for stock forms.
type ItemOptions struct {
	ProductID   int64
	SKU         string
	Name        string
	Stock       int64
	HasVariants bool
	Deleted     bool
	Variants    []VariantOption
}

// ItemLookup loads product details the ledger does not own.
type ItemLookup interface {
	StockOptions(ctx context.Context, productID int64) (ItemOptions, error)
}

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	items     ItemLookup
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, items ItemLookup, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, items: items, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers ledger routes under /inventory.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermStockView))
		r.Get("/transactions", h.listTransactions)
		r.Get("/transactions.csv", h.exportTransactions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermStockPost))
		r.Get("/products/{id}/{direction:increase|decrease}", h.showStockForm)
		r.Post("/products/{id}/{direction:increase|decrease}", h.postStockForm)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermLedgerAudit))
		r.Get("/audit", h.showAudit)
	})
}

// MountAPI registers JSON routes under /api.
func (h *Handler) MountAPI(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.PermStockView)).Get("/products/{id}/ledger", h.ledgerJSON)
}

type transactionsPageData struct {
	ProductID string
	Action    string
	From      string
	To        string
	Actions   []Action
	Page      LedgerPage
	Query     string
	Errors    map[string]string
}

type stockForm struct {
	VariantID int64  `validate:"gte=0"`
	Qty       int64  `validate:"gt=0"`
	Note      string `validate:"max=500"`
	Key       string `validate:"required,uuid4"`
}

type stockFormPageData struct {
	Direction string
	Item      ItemOptions
	Form      stockForm
	Errors    map[string]string
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	filter, data := parseLedgerQuery(r)
	if len(data.Errors) == 0 {
		page, err := h.service.List(r.Context(), filter)
		if err != nil {
			h.logger.Error("list transactions", slog.Any("error", err))
			data.Errors["general"] = shared.UserSafeMessage(err)
		} else {
			data.Page = page
		}
	}
	h.render(w, r, http.StatusOK, "pages/inventory/transactions.html", "Stock transactions", data)
}

// exportPageSize bounds each ledger query of a CSV export.
const exportPageSize = 1000

func (h *Handler) exportTransactions(w http.ResponseWriter, r *http.Request) {
	filter, data := parseLedgerQuery(r)
	if len(data.Errors) > 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid filter", "check the date and product filters")
		return
	}
	// Rows posted while the export runs would shift the id-ordered pages.
	if filter.To.IsZero() {
		filter.To = time.Now()
	}
	filter.Page, filter.PerPage = 1, exportPageSize
	page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("export transactions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="transactions-%s.csv"`, time.Now().Format("20060102")))
	out, err := NewLedgerCSV(w)
	if err != nil {
		h.logger.Error("write transactions csv", slog.Any("error", err))
		return
	}
	for {
		if err := out.Write(page.Items); err != nil {
			h.logger.Error("write transactions csv", slog.Any("error", err))
			return
		}
		if !page.Pagination.HasNext() {
			return
		}
		filter.Page++
		if page, err = h.service.List(r.Context(), filter); err != nil {
			// Headers are gone; the truncated file is all the client gets.
			h.logger.Error("export transactions", slog.Int("page", filter.Page), slog.Any("error", err))
			return
		}
	}
}

func (h *Handler) showStockForm(w http.ResponseWriter, r *http.Request) {
	item, ok := h.loadItem(w, r)
	if !ok {
		return
	}
	form := stockForm{Key: uuid.NewString()}
	h.renderStockForm(w, r, http.StatusOK, item, form, nil)
}

func (h *Handler) postStockForm(w http.ResponseWriter, r *http.Request) {
	item, ok := h.loadItem(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := stockForm{
		Note: strings.TrimSpace(r.PostFormValue("note")),
		Key:  r.PostFormValue("idempotency_key"),
	}
	errs := map[string]string{}
	if raw := r.PostFormValue("variant_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			form.VariantID = id
		} else {
			errs["variantid"] = "Choose a variant"
		}
	}
	if qty, err := strconv.ParseInt(r.PostFormValue("qty"), 10, 64); err == nil {
		form.Qty = qty
	} else {
		errs["qty"] = "Enter a whole number"
	}
	for field, msg := range shared.FieldErrors(form) {
		if _, exists := errs[field]; !exists {
			errs[field] = msg
		}
	}
	if item.HasVariants && form.VariantID == 0 {
		errs["variantid"] = "Choose a variant"
	}
	if len(errs) > 0 {
		h.renderStockForm(w, r, http.StatusUnprocessableEntity, item, form, errs)
		return
	}

	input := MutationInput{
		Ref:            ItemRef{ProductID: item.ProductID, VariantID: form.VariantID},
		Qty:            form.Qty,
		Note:           form.Note,
		RefType:        "manual",
		ActorID:        shared.ActorID(r.Context()),
		IdempotencyKey: form.Key,
	}
	direction := chi.URLParam(r, "direction")
	var (
		row Transaction
		err error
	)
	if direction == "decrease" {
		row, err = h.service.Decrease(r.Context(), input)
	} else {
		row, err = h.service.Increase(r.Context(), input)
	}
	if err != nil {
		h.logger.Warn("stock mutation rejected", slog.String("direction", direction), slog.Int64("product_id", item.ProductID), slog.Any("error", err))
		form.Key = uuid.NewString()
		h.renderStockForm(w, r, httpx.StatusFor(err), item, form, map[string]string{"general": shared.UserSafeMessage(err)})
		return
	}
	httpx.Redirect(w, r, fmt.Sprintf("/products/%d", item.ProductID), "success",
		fmt.Sprintf("Stock %sd by %d. New balance: %d.", direction, form.Qty, row.StockAfter))
}

func (h *Handler) showAudit(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.VerifyAll(r.Context())
	if err != nil {
		h.logger.Error("ledger audit", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, http.StatusOK, "pages/inventory/audit.html", "Ledger audit", result)
}

type ledgerResponse struct {
	ProductID    int64         `json:"product_id"`
	Transactions []Transaction `json:"transactions"`
	Verification Report        `json:"verification"`
}

func (h *Handler) ledgerJSON(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ref := ItemRef{ProductID: id}
	if raw := r.URL.Query().Get("variant_id"); raw != "" {
		ref.VariantID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || ref.VariantID <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid variant", "variant_id must be a positive integer")
			return
		}
	}
	rows, err := h.service.History(r.Context(), ref)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.Verify(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if rows == nil {
		rows = []Transaction{}
	}
	httpx.JSON(w, http.StatusOK, ledgerResponse{ProductID: id, Transactions: rows, Verification: report})
}

func (h *Handler) loadItem(w http.ResponseWriter, r *http.Request) (ItemOptions, bool) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		http.NotFound(w, r)
		return ItemOptions{}, false
	}
	item, err := h.items.StockOptions(r.Context(), id)
	if err != nil {
		h.logger.Warn("load stock item", slog.Int64("product_id", id), slog.Any("error", err))
		http.Error(w, http.StatusText(httpx.StatusFor(err)), httpx.StatusFor(err))
		return ItemOptions{}, false
	}
	if item.Deleted {
		httpx.Redirect(w, r, "/products", "error", "This product has been deleted.")
		return ItemOptions{}, false
	}
	return item, true
}

func (h *Handler) renderStockForm(w http.ResponseWriter, r *http.Request, status int, item ItemOptions, form stockForm, errs map[string]string) {
	direction := chi.URLParam(r, "direction")
	if errs == nil {
		errs = map[string]string{}
	}
	title := "Increase stock"
	if direction == "decrease" {
		title = "Decrease stock"
	}
	h.render(w, r, status, "pages/inventory/stock_form.html", title, stockFormPageData{
		Direction: direction, Item: item, Form: form, Errors: errs,
	})
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any) {
	token := h.csrf.EnsureToken(shared.SessionFromContext(r.Context()))
	if err := h.templates.Render(w, status, page, view.NewPage(r, title, token, data)); err != nil {
		h.logger.Error("render", slog.String("page", page), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func parseLedgerQuery(r *http.Request) (LedgerFilter, transactionsPageData) {
	q := r.URL.Query()
	data := transactionsPageData{
		ProductID: q.Get("product_id"),
		Action:    q.Get("action"),
		From:      q.Get("from"),
		To:        q.Get("to"),
		Actions:   Actions,
		Errors:    map[string]string{},
	}
	var filter LedgerFilter
	filter.Page, filter.PerPage = shared.PageFromQuery(q)
	if data.ProductID != "" {
		if id, err := strconv.ParseInt(data.ProductID, 10, 64); err == nil {
			filter.ProductID = id
		} else {
			data.Errors["product_id"] = "Invalid product"
		}
	}
	if data.Action != "" {
		filter.Action = Action(strings.ToUpper(data.Action))
	}
	if data.From != "" {
		if t, err := time.Parse("2006-01-02", data.From); err == nil {
			filter.From = t
		} else {
			data.Errors["from"] = "Invalid start date"
		}
	}
	if data.To != "" {
		if t, err := time.Parse("2006-01-02", data.To); err == nil {
			filter.To = t.Add(24 * time.Hour)
		} else {
			data.Errors["to"] = "Invalid end date"
		}
	}
	keep := r.URL.Query()
	keep.Del("page")
	data.Query = keep.Encode()
	return filter, data
}
