package customers

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stockbook/stockbook/internal/platform/httpx"
	"github.com/stockbook/stockbook/internal/rbac"
	"github.com/stockbook/stockbook/internal/shared"
	"github.com/stockbook/stockbook/internal/view"
)

// Handler serves customer pages.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler constructs the customer handler.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers routes under /customers.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermCustomersEdit))
		r.Get("/new", h.showForm)
		r.Post("/", h.save)
		r.Get("/{id}/edit", h.showForm)
		r.Post("/{id}/edit", h.save)
		r.Post("/{id}/delete", h.delete)
	})
	r.With(h.rbac.RequireAny(rbac.PermCustomersView)).Get("/", h.list)
}

type formPageData struct {
	ID     int64
	Form   Input
	Errors map[string]string
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Search: q.Get("q")}
	filter.Page, filter.PerPage = shared.PageFromQuery(q)
	result, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list customers failed", slog.Any("error", err))
		http.Error(w, "Failed to load customers", http.StatusInternalServerError)
		return
	}
	role := ""
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		role = sess.Role()
	}
	h.render(w, r, http.StatusOK, "pages/customers/list.html", "Customers", map[string]any{
		"Filter":  filter,
		"Result":  result,
		"Query":   url.Values{"q": {filter.Search}}.Encode(),
		"CanEdit": rbac.Allowed(role, rbac.PermCustomersEdit),
	})
}

// showForm renders the blank form on /new and the filled one on /{id}/edit.
func (h *Handler) showForm(w http.ResponseWriter, r *http.Request) {
	data := formPageData{Form: Input{IsActive: true}, Errors: map[string]string{}}
	if chi.URLParam(r, "id") != "" {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			http.NotFound(w, r)
			return
		}
		c, err := h.service.Get(r.Context(), id)
		if err != nil {
			http.Error(w, http.StatusText(httpx.StatusFor(err)), httpx.StatusFor(err))
			return
		}
		data.ID = id
		data.Form = Input{Code: c.Code, Name: c.Name, Phone: c.Phone, Email: c.Email, Address: c.Address, IsActive: c.IsActive}
	}
	h.renderForm(w, r, http.StatusOK, data)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}
	data := formPageData{Form: Input{
		Code:     strings.TrimSpace(r.PostFormValue("code")),
		Name:     strings.TrimSpace(r.PostFormValue("name")),
		Phone:    strings.TrimSpace(r.PostFormValue("phone")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Address:  strings.TrimSpace(r.PostFormValue("address")),
		IsActive: r.PostFormValue("is_active") == "on",
		ActorID:  shared.ActorID(r.Context()),
	}}
	if chi.URLParam(r, "id") != "" {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			http.NotFound(w, r)
			return
		}
		data.ID = id
	}
	if errs := shared.FieldErrors(clean(data.Form)); errs != nil {
		data.Errors = errs
		h.renderForm(w, r, http.StatusUnprocessableEntity, data)
		return
	}
	var err error
	if data.ID == 0 {
		_, err = h.service.Create(r.Context(), data.Form)
	} else {
		err = h.service.Update(r.Context(), data.ID, data.Form)
	}
	if err != nil {
		h.logger.Warn("save customer", slog.Int64("id", data.ID), slog.Any("error", err))
		data.Errors = map[string]string{"general": shared.UserSafeMessage(err)}
		h.renderForm(w, r, httpx.StatusFor(err), data)
		return
	}
	httpx.Redirect(w, r, "/customers", "success", "Customer saved.")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := h.service.Delete(r.Context(), id, shared.ActorID(r.Context())); err != nil {
		httpx.Redirect(w, r, "/customers", "error", shared.UserSafeMessage(err))
		return
	}
	httpx.Redirect(w, r, "/customers", "success", "Customer deleted.")
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, status int, data formPageData) {
	if data.Errors == nil {
		data.Errors = map[string]string{}
	}
	title := "New customer"
	if data.ID != 0 {
		title = "Edit customer"
	}
	h.render(w, r, status, "pages/customers/form.html", title, data)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any) {
	token := h.csrf.EnsureToken(shared.SessionFromContext(r.Context()))
	if err := h.templates.Render(w, status, page, view.NewPage(r, title, token, data)); err != nil {
		h.logger.Error("render", slog.String("page", page), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
