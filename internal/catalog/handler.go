package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/platform/httpx"
	"github.com/stockbook/stockbook/internal/rbac"
	"github.com/stockbook/stockbook/internal/shared"
	"github.com/stockbook/stockbook/internal/view"
)

// LedgerReader exposes product history for the detail page.
type LedgerReader interface {
	History(ctx context.Context, ref inventory.ItemRef) ([]inventory.Transaction, error)
}

// VendorDirectory lists vendors for the product form.
type VendorDirectory interface {
	Options(ctx context.Context) ([]shared.Option, error)
}

// Handler serves catalog pages.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	ledger    LedgerReader
	vendors   VendorDirectory
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
	maxUpload int64
}

// NewHandler constructs the catalog handler.
func NewHandler(logger *slog.Logger, service *Service, ledger LedgerReader, vendors VendorDirectory, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware, maxUpload int64) *Handler {
	if maxUpload <= 0 {
		maxUpload = 5 << 20
	}
	return &Handler{logger: logger, service: service, ledger: ledger, vendors: vendors, templates: templates, csrf: csrf, rbac: rbac, maxUpload: maxUpload}
}

// MountRoutes registers /products and /categories.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermCatalogEdit))
		r.Get("/products/new", h.newProduct)
		r.Post("/products", h.createProduct)
		r.Get("/products/{id}/edit", h.editProduct)
		r.Post("/products/{id}", h.updateProduct)
		r.Post("/products/{id}/delete", h.deleteProduct)
		r.Get("/products/{id}/variants/new", h.newVariant)
		r.Post("/products/{id}/variants", h.createVariant)
		r.Post("/products/{id}/variants/{variantID}/delete", h.deleteVariant)
		r.Post("/categories", h.createCategory)
		r.Post("/categories/{id}/delete", h.deleteCategory)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermCatalogView))
		r.Get("/products", h.listProducts)
		r.Get("/products/{id}", h.showProduct)
		r.Get("/categories", h.listCategories)
	})
}

type listPageData struct {
	Filter     ListFilter
	Result     ListResult
	Categories []Category
	Vendors    []shared.Option
	Query      string
	CanEdit    bool
}

type productForm struct {
	SKU          string
	Name         string
	Description  string
	CategoryID   string
	VendorID     string
	Price        string
	BuyPrice     string
	InitialStock string
	BufferStock  string
	ImageURL     string
	Variants     []variantForm
}

type variantForm struct {
	SKU          string
	Name         string
	Price        string
	InitialStock string
}

type formPageData struct {
	ProductID  int64
	IsEdit     bool
	Form       productForm
	Errors     map[string]string
	Categories []Category
	Vendors    []shared.Option
}

type showPageData struct {
	Product Product
	History []inventory.Transaction
	CanEdit bool
	CanPost bool
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Search:         q.Get("q"),
		LowStockOnly:   q.Get("low") == "1",
		IncludeDeleted: q.Get("deleted") == "1",
		SortBy:         q.Get("sort"),
		SortDir:        q.Get("dir"),
	}
	filter.Page, filter.PerPage = shared.PageFromQuery(q)
	filter.CategoryID, _ = strconv.ParseInt(q.Get("category_id"), 10, 64)
	filter.VendorID, _ = strconv.ParseInt(q.Get("vendor_id"), 10, 64)

	result, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.serverError(w, "list products", err)
		return
	}
	categories, vendors := h.formOptions(r.Context())
	keep := r.URL.Query()
	keep.Del("page")
	role := ""
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		role = sess.Role()
	}
	h.render(w, r, http.StatusOK, "pages/products/list.html", "Products", listPageData{
		Filter: filter, Result: result, Categories: categories, Vendors: vendors, Query: keep.Encode(),
		CanEdit: rbac.Allowed(role, rbac.PermCatalogEdit),
	})
}

func (h *Handler) showProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	product, err := h.service.Get(r.Context(), id)
	if errors.Is(err, shared.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.serverError(w, "get product", err)
		return
	}
	history, err := h.ledger.History(r.Context(), inventory.ItemRef{ProductID: id})
	if err != nil {
		h.serverError(w, "product history", err)
		return
	}
	// newest first on the detail page
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	role := ""
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		role = sess.Role()
	}
	h.render(w, r, http.StatusOK, "pages/products/show.html", product.Name, showPageData{
		Product: product,
		History: history,
		CanEdit: rbac.Allowed(role, rbac.PermCatalogEdit) && !product.Deleted(),
		CanPost: rbac.Allowed(role, rbac.PermStockPost) && !product.Deleted(),
	})
}

func (h *Handler) newProduct(w http.ResponseWriter, r *http.Request) {
	form := productForm{InitialStock: "0", Price: "0.00", BuyPrice: "0.00", Variants: make([]variantForm, 3)}
	h.renderForm(w, r, http.StatusOK, formPageData{Form: form})
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	form, err := h.parseProductForm(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in, errs := form.toCreateInput()
	h.attachImage(r, &form, errs)
	in.ImageURL = form.ImageURL
	if len(errs) > 0 {
		h.renderForm(w, r, http.StatusUnprocessableEntity, formPageData{Form: form, Errors: errs})
		return
	}
	in.ActorID = shared.ActorID(r.Context())
	id, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.logger.Warn("create product", slog.Any("error", err))
		h.renderForm(w, r, httpx.StatusFor(err), formPageData{Form: form, Errors: map[string]string{"general": shared.UserSafeMessage(err)}})
		return
	}
	httpx.Redirect(w, r, fmt.Sprintf("/products/%d", id), "success", "Product created.")
}

func (h *Handler) editProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if errors.Is(err, shared.ErrNotFound) || (err == nil && p.Deleted()) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.serverError(w, "get product", err)
		return
	}
	form := productForm{
		SKU:         p.SKU,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.StringFixed(2),
		BuyPrice:    p.BuyPrice.StringFixed(2),
		BufferStock: strconv.FormatInt(p.BufferStock, 10),
		ImageURL:    p.ImageURL,
	}
	if p.CategoryID != nil {
		form.CategoryID = strconv.FormatInt(*p.CategoryID, 10)
	}
	if p.VendorID != nil {
		form.VendorID = strconv.FormatInt(*p.VendorID, 10)
	}
	h.renderForm(w, r, http.StatusOK, formPageData{ProductID: id, IsEdit: true, Form: form})
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	form, err := h.parseProductForm(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in, errs := form.toUpdateInput()
	h.attachImage(r, &form, errs)
	in.ImageURL = form.ImageURL
	page := formPageData{ProductID: id, IsEdit: true, Form: form, Errors: errs}
	if len(errs) > 0 {
		h.renderForm(w, r, http.StatusUnprocessableEntity, page)
		return
	}
	in.ActorID = shared.ActorID(r.Context())
	if err := h.service.Update(r.Context(), id, in); err != nil {
		h.logger.Warn("update product", slog.Int64("product_id", id), slog.Any("error", err))
		page.Errors = map[string]string{"general": shared.UserSafeMessage(err)}
		h.renderForm(w, r, httpx.StatusFor(err), page)
		return
	}
	httpx.Redirect(w, r, fmt.Sprintf("/products/%d", id), "success", "Product updated.")
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := h.service.Delete(r.Context(), id, shared.ActorID(r.Context())); err != nil {
		h.logger.Warn("delete product", slog.Int64("product_id", id), slog.Any("error", err))
		httpx.Redirect(w, r, fmt.Sprintf("/products/%d", id), "error", shared.UserSafeMessage(err))
		return
	}
	httpx.Redirect(w, r, "/products", "success", "Product deleted. Its stock history is kept.")
}

type variantPageData struct {
	Product Product
	Form    variantForm
	Errors  map[string]string
}

func (h *Handler) newVariant(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil || p.Deleted() {
		http.NotFound(w, r)
		return
	}
	h.render(w, r, http.StatusOK, "pages/products/variant_form.html", "Add variant", variantPageData{
		Product: p, Form: variantForm{Price: p.Price.StringFixed(2), InitialStock: "0"}, Errors: map[string]string{},
	})
}

func (h *Handler) createVariant(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil || p.Deleted() {
		http.NotFound(w, r)
		return
	}
	form := variantForm{
		SKU:          strings.TrimSpace(r.PostFormValue("sku")),
		Name:         strings.TrimSpace(r.PostFormValue("name")),
		Price:        strings.TrimSpace(r.PostFormValue("price")),
		InitialStock: strings.TrimSpace(r.PostFormValue("initial_stock")),
	}
	errs := map[string]string{}
	in := form.toInput("", errs)
	if len(errs) == 0 {
		if fieldErrs := shared.FieldErrors(in); fieldErrs != nil {
			errs = fieldErrs
		}
	}
	if len(errs) == 0 {
		_, err = h.service.AddVariant(r.Context(), id, in, shared.ActorID(r.Context()))
		if err == nil {
			httpx.Redirect(w, r, fmt.Sprintf("/products/%d", id), "success", "Variant added.")
			return
		}
		h.logger.Warn("add variant", slog.Int64("product_id", id), slog.Any("error", err))
		errs["general"] = shared.UserSafeMessage(err)
	}
	h.render(w, r, http.StatusUnprocessableEntity, "pages/products/variant_form.html", "Add variant", variantPageData{
		Product: p, Form: form, Errors: errs,
	})
}

func (h *Handler) deleteVariant(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	variantID, err := httpx.IDParam(r, "variantID")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	target := fmt.Sprintf("/products/%d", id)
	if err := h.service.DeleteVariant(r.Context(), id, variantID, shared.ActorID(r.Context())); err != nil {
		h.logger.Warn("delete variant", slog.Int64("variant_id", variantID), slog.Any("error", err))
		httpx.Redirect(w, r, target, "error", shared.UserSafeMessage(err))
		return
	}
	httpx.Redirect(w, r, target, "success", "Variant deleted.")
}

type categoriesPageData struct {
	Categories []Category
	Name       string
	Errors     map[string]string
	CanEdit    bool
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	h.renderCategories(w, r, http.StatusOK, "", nil)
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	name := r.PostFormValue("name")
	if _, err := h.service.CreateCategory(r.Context(), name); err != nil {
		h.renderCategories(w, r, httpx.StatusFor(err), name, map[string]string{"name": shared.UserSafeMessage(err)})
		return
	}
	httpx.Redirect(w, r, "/categories", "success", "Category created.")
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := h.service.DeleteCategory(r.Context(), id); err != nil {
		httpx.Redirect(w, r, "/categories", "error", shared.UserSafeMessage(err))
		return
	}
	httpx.Redirect(w, r, "/categories", "success", "Category deleted.")
}

func (h *Handler) renderCategories(w http.ResponseWriter, r *http.Request, status int, name string, errs map[string]string) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.serverError(w, "list categories", err)
		return
	}
	if errs == nil {
		errs = map[string]string{}
	}
	role := ""
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		role = sess.Role()
	}
	h.render(w, r, status, "pages/categories/list.html", "Categories", categoriesPageData{
		Categories: categories, Name: name, Errors: errs, CanEdit: rbac.Allowed(role, rbac.PermCatalogEdit),
	})
}

func (h *Handler) parseProductForm(r *http.Request) (productForm, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(h.maxUpload + 1<<20); err != nil {
			return productForm{}, err
		}
	} else if err := r.ParseForm(); err != nil {
		return productForm{}, err
	}
	form := productForm{
		SKU:          strings.TrimSpace(r.PostFormValue("sku")),
		Name:         strings.TrimSpace(r.PostFormValue("name")),
		Description:  strings.TrimSpace(r.PostFormValue("description")),
		CategoryID:   r.PostFormValue("category_id"),
		VendorID:     r.PostFormValue("vendor_id"),
		Price:        strings.TrimSpace(r.PostFormValue("price")),
		BuyPrice:     strings.TrimSpace(r.PostFormValue("buy_price")),
		InitialStock: strings.TrimSpace(r.PostFormValue("initial_stock")),
		BufferStock:  strings.TrimSpace(r.PostFormValue("buffer_stock")),
		ImageURL:     strings.TrimSpace(r.PostFormValue("image_url")),
	}
	skus := r.PostForm["variant_sku"]
	names := r.PostForm["variant_name"]
	prices := r.PostForm["variant_price"]
	stocks := r.PostForm["variant_stock"]
	for i := range skus {
		v := variantForm{SKU: strings.TrimSpace(skus[i])}
		if i < len(names) {
			v.Name = strings.TrimSpace(names[i])
		}
		if i < len(prices) {
			v.Price = strings.TrimSpace(prices[i])
		}
		if i < len(stocks) {
			v.InitialStock = strings.TrimSpace(stocks[i])
		}
		form.Variants = append(form.Variants, v)
	}
	return form, nil
}

// attachImage uploads the optional image file and stores its URL on the form.
func (h *Handler) attachImage(r *http.Request, form *productForm, errs map[string]string) {
	if r.MultipartForm == nil {
		return
	}
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return
	}
	if err != nil {
		errs["image"] = "Could not read the uploaded file"
		return
	}
	defer file.Close()
	if header.Size > h.maxUpload {
		errs["image"] = fmt.Sprintf("Images are limited to %d MB", h.maxUpload>>20)
		return
	}
	url, err := h.service.UploadImage(r.Context(), header.Filename, file)
	if err != nil {
		h.logger.Warn("image upload", slog.String("filename", header.Filename), slog.Any("error", err))
		errs["image"] = shared.UserSafeMessage(err)
		return
	}
	form.ImageURL = url
}

func (f productForm) common(errs map[string]string) (price, buy decimal.Decimal, category, vendor *int64) {
	price = parseMoney(f.Price, "price", errs)
	buy = parseMoney(f.BuyPrice, "buyprice", errs)
	category = parseOptionalID(f.CategoryID, "categoryid", errs)
	vendor = parseOptionalID(f.VendorID, "vendorid", errs)
	return price, buy, category, vendor
}

func (f productForm) toCreateInput() (CreateInput, map[string]string) {
	errs := map[string]string{}
	price, buy, category, vendor := f.common(errs)
	in := CreateInput{
		SKU: f.SKU, Name: f.Name, Description: f.Description,
		CategoryID: category, VendorID: vendor, Price: price, BuyPrice: buy,
		ImageURL: f.ImageURL,
	}
	in.InitialStock = parseQty(f.InitialStock, "initialstock", errs)
	if f.BufferStock != "" {
		buffer := parseQty(f.BufferStock, "bufferstock", errs)
		in.BufferStock = &buffer
	}
	for i, v := range f.Variants {
		if v.SKU == "" && v.Name == "" {
			continue
		}
		if v.Price == "" {
			v.Price = f.Price
		}
		in.Variants = append(in.Variants, v.toInput(fmt.Sprintf("variants[%d].", i), errs))
	}
	for field, msg := range shared.FieldErrors(in) {
		if _, ok := errs[field]; !ok {
			errs[field] = msg
		}
	}
	return in, errs
}

func (f productForm) toUpdateInput() (UpdateInput, map[string]string) {
	errs := map[string]string{}
	price, buy, category, vendor := f.common(errs)
	in := UpdateInput{
		SKU: f.SKU, Name: f.Name, Description: f.Description,
		CategoryID: category, VendorID: vendor, Price: price, BuyPrice: buy,
		BufferStock: parseQty(f.BufferStock, "bufferstock", errs),
		ImageURL:    f.ImageURL,
	}
	for field, msg := range shared.FieldErrors(in) {
		if _, ok := errs[field]; !ok {
			errs[field] = msg
		}
	}
	return in, errs
}

func (v variantForm) toInput(prefix string, errs map[string]string) VariantInput {
	in := VariantInput{SKU: v.SKU, Name: v.Name}
	in.Price = parseMoney(v.Price, prefix+"price", errs)
	in.InitialStock = parseQty(v.InitialStock, prefix+"initialstock", errs)
	if prefix != "" && (v.SKU == "" || v.Name == "") {
		errs[prefix+"sku"] = "Variants need both a SKU and a name"
	}
	return in
}

func parseMoney(raw, field string, errs map[string]string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		errs[field] = "Enter an amount like 12.50"
		return decimal.Zero
	}
	if d.IsNegative() {
		errs[field] = "Must not be negative"
	}
	return d.Round(2)
}

func parseQty(raw, field string, errs map[string]string) int64 {
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		errs[field] = "Enter a whole number of zero or more"
		return 0
	}
	return n
}

func parseOptionalID(raw, field string, errs map[string]string) *int64 {
	if raw == "" || raw == "0" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		errs[field] = "Invalid selection"
		return nil
	}
	return &id
}

func (h *Handler) formOptions(ctx context.Context) ([]Category, []shared.Option) {
	categories, err := h.service.ListCategories(ctx)
	if err != nil {
		h.logger.Warn("load categories", slog.Any("error", err))
	}
	var vendors []shared.Option
	if h.vendors != nil {
		vendors, err = h.vendors.Options(ctx)
		if err != nil {
			h.logger.Warn("load vendors", slog.Any("error", err))
		}
	}
	return categories, vendors
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, status int, data formPageData) {
	data.Categories, data.Vendors = h.formOptions(r.Context())
	if data.Errors == nil {
		data.Errors = map[string]string{}
	}
	title := "New product"
	if data.IsEdit {
		title = "Edit product"
	}
	h.render(w, r, status, "pages/products/form.html", title, data)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any) {
	token := h.csrf.EnsureToken(shared.SessionFromContext(r.Context()))
	if err := h.templates.Render(w, status, page, view.NewPage(r, title, token, data)); err != nil {
		h.logger.Error("render", slog.String("page", page), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) serverError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
