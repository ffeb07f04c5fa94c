package returns

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

	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/platform/httpx"
	"github.com/stockbook/stockbook/internal/rbac"
	"github.com/stockbook/stockbook/internal/shared"
	"github.com/stockbook/stockbook/internal/view"
)

// CustomerDirectory lists customers for the form.
type CustomerDirectory interface {
	Options(ctx context.Context) ([]shared.Option, error)
}

// ItemDirectory lists items that can take returned stock.
type ItemDirectory interface {
	ItemChoices(ctx context.Context) ([]inventory.ItemChoice, error)
}

// Handler serves the returns pages.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	customers CustomerDirectory
	items     ItemDirectory
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler constructs the returns handler.
func NewHandler(logger *slog.Logger, service *Service, customers CustomerDirectory, items ItemDirectory, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, customers: customers, items: items, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers routes under /returns.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.PermReturnsView)).Get("/", h.list)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermReturnsPost))
		r.Get("/new", h.form)
		r.Post("/", h.create)
	})
}

type listPageData struct {
	CustomerID string
	From       string
	To         string
	Customers  []shared.Option
	Result     ListResult
	Query      string
	Errors     map[string]string
	CanPost    bool
}

type returnForm struct {
	CustomerID string
	Item       string
	Quantity   string
	Reason     string
	Key        string
}

type formPageData struct {
	Form      returnForm
	Customers []shared.Option
	Items     []inventory.ItemChoice
	Errors    map[string]string
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := listPageData{CustomerID: q.Get("customer_id"), From: q.Get("from"), To: q.Get("to"), Errors: map[string]string{}}
	var filter ListFilter
	filter.Page, filter.PerPage = shared.PageFromQuery(q)
	if data.CustomerID != "" {
		id, err := strconv.ParseInt(data.CustomerID, 10, 64)
		if err != nil {
			data.Errors["customer_id"] = "Invalid customer"
		}
		filter.CustomerID = id
	}
	if data.From != "" {
		t, err := time.Parse("2006-01-02", data.From)
		if err != nil {
			data.Errors["from"] = "Invalid start date"
		}
		filter.From = t
	}
	if data.To != "" {
		t, err := time.Parse("2006-01-02", data.To)
		if err != nil {
			data.Errors["to"] = "Invalid end date"
		} else {
			filter.To = t.Add(24 * time.Hour)
		}
	}
	if len(data.Errors) == 0 {
		result, err := h.service.List(r.Context(), filter)
		if err != nil {
			h.logger.Warn("list returns", slog.Any("error", err))
			data.Errors["general"] = shared.UserSafeMessage(err)
		}
		data.Result = result
	}
	data.Customers, _ = h.customers.Options(r.Context())
	keep := r.URL.Query()
	keep.Del("page")
	data.Query = keep.Encode()
	role := ""
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		role = sess.Role()
	}
	data.CanPost = rbac.Allowed(role, rbac.PermReturnsPost)
	h.render(w, r, http.StatusOK, "pages/returns/list.html", "Returns", data)
}

func (h *Handler) form(w http.ResponseWriter, r *http.Request) {
	form := returnForm{Key: uuid.NewString(), Item: r.URL.Query().Get("item"), Quantity: "1"}
	h.renderForm(w, r, http.StatusOK, form, nil)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := returnForm{
		CustomerID: r.PostFormValue("customer_id"),
		Item:       r.PostFormValue("item"),
		Quantity:   strings.TrimSpace(r.PostFormValue("quantity")),
		Reason:     strings.TrimSpace(r.PostFormValue("reason")),
		Key:        r.PostFormValue("idempotency_key"),
	}
	errs := map[string]string{}
	in := CreateInput{Reason: form.Reason, ActorID: shared.ActorID(r.Context()), IdempotencyKey: form.Key}
	in.CustomerID, _ = strconv.ParseInt(form.CustomerID, 10, 64)
	item, err := inventory.ParseItemRef(form.Item)
	if err != nil {
		errs["item"] = "Choose a product"
	}
	in.Item = item
	if qty, err := strconv.ParseInt(form.Quantity, 10, 64); err == nil {
		in.Quantity = qty
	} else {
		errs["quantity"] = "Enter a whole number"
	}
	for field, msg := range shared.FieldErrors(in) {
		if _, ok := errs[field]; !ok {
			errs[field] = msg
		}
	}
	if _, ok := errs["customerid"]; ok {
		errs["customerid"] = "Choose a customer"
	}
	if len(errs) > 0 {
		h.renderForm(w, r, http.StatusUnprocessableEntity, form, errs)
		return
	}
	ret, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.logger.Warn("return rejected", slog.Any("error", err))
		form.Key = uuid.NewString()
		h.renderForm(w, r, httpx.StatusFor(err), form, map[string]string{"general": shared.UserSafeMessage(err)})
		return
	}
	httpx.Redirect(w, r, "/returns", "success", fmt.Sprintf("Return of %d unit(s) recorded.", ret.Quantity))
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, status int, form returnForm, errs map[string]string) {
	if errs == nil {
		errs = map[string]string{}
	}
	data := formPageData{Form: form, Errors: errs}
	var err error
	if data.Customers, err = h.customers.Options(r.Context()); err != nil {
		h.logger.Warn("load customers", slog.Any("error", err))
	}
	if data.Items, err = h.items.ItemChoices(r.Context()); err != nil {
		h.logger.Warn("load items", slog.Any("error", err))
	}
	h.render(w, r, status, "pages/returns/form.html", "Record return", data)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any) {
	token := h.csrf.EnsureToken(shared.SessionFromContext(r.Context()))
	if err := h.templates.Render(w, status, page, view.NewPage(r, title, token, data)); err != nil {
		h.logger.Error("render", slog.String("page", page), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
