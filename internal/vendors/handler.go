package vendors

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stockbook/stockbook/internal/platform/httpx"
	"github.com/stockbook/stockbook/internal/rbac"
	"github.com/stockbook/stockbook/internal/shared"
	"github.com/stockbook/stockbook/internal/view"
)

// Handler serves vendor pages.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler constructs the vendor handler.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers routes under /vendors.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermVendorsEdit))
		r.Get("/new", h.form)
		r.Post("/", h.create)
		r.Get("/{id}/edit", h.editForm)
		r.Post("/{id}/edit", h.update)
		r.Post("/{id}/delete", h.delete)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermVendorsView))
		r.Get("/", h.list)
	})
}

type listPageData struct {
	Filter  ListFilter
	Result  ListResult
	Query   string
	CanEdit bool
}

type formPageData struct {
	ID     int64
	Form   Input
	Errors map[string]string
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Search:     q.Get("q"),
		ActiveOnly: q.Get("active") == "1",
		SortBy:     q.Get("sort"),
		SortDir:    q.Get("dir"),
	}
	filter.Page, filter.PerPage = shared.PageFromQuery(q)
	result, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list vendors failed", slog.Any("error", err))
		http.Error(w, "Failed to load vendors", http.StatusInternalServerError)
		return
	}
	keep := r.URL.Query()
	keep.Del("page")
	role := ""
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		role = sess.Role()
	}
	h.render(w, r, http.StatusOK, "pages/vendors/list.html", "Vendors", listPageData{
		Filter: filter, Result: result, Query: keep.Encode(), CanEdit: rbac.Allowed(role, rbac.PermVendorsEdit),
	})
}

func (h *Handler) form(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "pages/vendors/form.html", "New vendor", formPageData{
		Form: Input{IsActive: true}, Errors: map[string]string{},
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	in, ok := h.parse(w, r)
	if !ok {
		return
	}
	if errs := shared.FieldErrors(normalize(in)); errs != nil {
		h.render(w, r, http.StatusUnprocessableEntity, "pages/vendors/form.html", "New vendor", formPageData{Form: in, Errors: errs})
		return
	}
	if _, err := h.service.Create(r.Context(), in); err != nil {
		h.logger.Warn("create vendor", slog.Any("error", err))
		h.render(w, r, httpx.StatusFor(err), "pages/vendors/form.html", "New vendor", formPageData{
			Form: in, Errors: map[string]string{"general": shared.UserSafeMessage(err)},
		})
		return
	}
	httpx.Redirect(w, r, "/vendors", "success", fmt.Sprintf("Vendor %s created.", in.Name))
}

func (h *Handler) editForm(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	v, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.logger.Warn("get vendor", slog.Int64("id", id), slog.Any("error", err))
		http.Error(w, http.StatusText(httpx.StatusFor(err)), httpx.StatusFor(err))
		return
	}
	h.render(w, r, http.StatusOK, "pages/vendors/form.html", "Edit vendor", formPageData{
		ID:     id,
		Form:   Input{Code: v.Code, Name: v.Name, Phone: v.Phone, Email: v.Email, Address: v.Address, IsActive: v.IsActive},
		Errors: map[string]string{},
	})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	in, ok := h.parse(w, r)
	if !ok {
		return
	}
	if errs := shared.FieldErrors(normalize(in)); errs != nil {
		h.render(w, r, http.StatusUnprocessableEntity, "pages/vendors/form.html", "Edit vendor", formPageData{ID: id, Form: in, Errors: errs})
		return
	}
	if err := h.service.Update(r.Context(), id, in); err != nil {
		h.logger.Warn("update vendor", slog.Int64("id", id), slog.Any("error", err))
		h.render(w, r, httpx.StatusFor(err), "pages/vendors/form.html", "Edit vendor", formPageData{
			ID: id, Form: in, Errors: map[string]string{"general": shared.UserSafeMessage(err)},
		})
		return
	}
	httpx.Redirect(w, r, "/vendors", "success", "Vendor updated.")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := h.service.Delete(r.Context(), id, shared.ActorID(r.Context())); err != nil {
		h.logger.Warn("delete vendor", slog.Int64("id", id), slog.Any("error", err))
		httpx.Redirect(w, r, "/vendors", "error", shared.UserSafeMessage(err))
		return
	}
	httpx.Redirect(w, r, "/vendors", "success", "Vendor deleted.")
}

func (h *Handler) parse(w http.ResponseWriter, r *http.Request) (Input, bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return Input{}, false
	}
	return Input{
		Code:     strings.TrimSpace(r.PostFormValue("code")),
		Name:     strings.TrimSpace(r.PostFormValue("name")),
		Phone:    strings.TrimSpace(r.PostFormValue("phone")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Address:  strings.TrimSpace(r.PostFormValue("address")),
		IsActive: r.PostFormValue("is_active") == "on",
		ActorID:  shared.ActorID(r.Context()),
	}, true
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any) {
	token := h.csrf.EnsureToken(shared.SessionFromContext(r.Context()))
	if err := h.templates.Render(w, status, page, view.NewPage(r, title, token, data)); err != nil {
		h.logger.Error("render", slog.String("page", page), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
