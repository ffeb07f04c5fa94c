package dashboard

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stockbook/stockbook/internal/dashboard/chart"
	"github.com/stockbook/stockbook/internal/platform/httpx"
	"github.com/stockbook/stockbook/internal/rbac"
	"github.com/stockbook/stockbook/internal/shared"
	"github.com/stockbook/stockbook/internal/view"
	"github.com/stockbook/stockbook/report"
)

// PDFRenderer converts HTML to PDF.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html []byte, opts report.Options) ([]byte, error)
}

// Handler serves the dashboard and report exports.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	pdf       PDFRenderer
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler constructs the dashboard handler.
func NewHandler(logger *slog.Logger, service *Service, pdf PDFRenderer, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, pdf: pdf, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers the dashboard at / and exports under /reports.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.PermDashboardView)).Get("/", h.show)
	r.Route("/reports", func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermReportsExport))
		r.Get("/valuation", h.valuationHTML)
		r.Get("/valuation.csv", h.valuationCSV)
		r.Get("/valuation.pdf", h.valuationPDF)
	})
}

// MountAPI registers JSON routes under /api.
func (h *Handler) MountAPI(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.PermDashboardView)).Get("/dashboard", h.snapshotJSON)
}

type pageData struct {
	Days         int
	Windows      []int
	Snapshot     Snapshot
	ActivitySVG  template.HTML
	NetSVG       template.HTML
	CanExport    bool
	ChartsFailed bool
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	days := windowParam(r)
	snap, err := h.service.Snapshot(r.Context(), days)
	if err != nil {
		h.logger.Error("dashboard snapshot", slog.Any("error", err))
		http.Error(w, "Failed to load dashboard", http.StatusInternalServerError)
		return
	}
	data := pageData{Days: days, Windows: []int{7, 14, 30, 90}, Snapshot: snap}
	if data.ActivitySVG, data.NetSVG, err = Charts(snap.Activity); err != nil {
		h.logger.Warn("dashboard charts", slog.Any("error", err))
		data.ChartsFailed = true
	}
	role := ""
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		role = sess.Role()
	}
	data.CanExport = rbac.Allowed(role, rbac.PermReportsExport)
	h.render(w, r, "pages/dashboard/index.html", "Dashboard", data)
}

// Charts renders the in/out bar chart and the net movement line chart.
func Charts(points []ActivityPoint) (activity, net template.HTML, err error) {
	if len(points) == 0 {
		return "", "", nil
	}
	labels := make([]string, len(points))
	in := make([]float64, len(points))
	out := make([]float64, len(points))
	returned := make([]float64, len(points))
	netValues := make([]float64, len(points))
	for i, p := range points {
		labels[i] = p.Day.Format("Jan 2")
		in[i] = float64(p.In)
		out[i] = float64(p.Out)
		returned[i] = float64(p.Returned)
		netValues[i] = float64(p.Net())
	}
	activity, err = chart.Bars(0, 0, labels, []chart.Series{
		{Name: "Increased", Color: "#16a34a", Values: in},
		{Name: "Decreased", Color: "#dc2626", Values: out},
		{Name: "Returned", Color: "#f59e0b", Values: returned},
	}, chart.Style{Title: "Stock movement", Description: "Units moved per day"})
	if err != nil {
		return "", "", err
	}
	net, err = chart.Line(0, 0, labels, chart.Series{Name: "Net units", Values: netValues},
		chart.Style{Title: "Net movement", Description: "Net change in units per day"})
	return activity, net, err
}

func (h *Handler) snapshotJSON(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context(), windowParam(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) valuationHTML(w http.ResponseWriter, r *http.Request) {
	body, ok := h.valuationDocument(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(body)
}

func (h *Handler) valuationCSV(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.Valuation(r.Context())
	if err != nil {
		h.logger.Error("valuation", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="stock-valuation-%s.csv"`, time.Now().Format("20060102")))
	if err := WriteValuationCSV(w, v); err != nil {
		h.logger.Error("write valuation csv", slog.Any("error", err))
	}
}

func (h *Handler) valuationPDF(w http.ResponseWriter, r *http.Request) {
	body, ok := h.valuationDocument(w, r)
	if !ok {
		return
	}
	var pdf []byte
	err := report.ErrDisabled
	if h.pdf != nil {
		pdf, err = h.pdf.RenderHTML(r.Context(), body, report.Options{WaitDelay: 200 * time.Millisecond})
	}
	if errors.Is(err, report.ErrDisabled) {
		httpx.Redirect(w, r, "/reports/valuation", "error", "PDF export is not configured. Use your browser's print dialog instead.")
		return
	}
	if err != nil {
		h.logger.Error("render valuation pdf", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="stock-valuation-%s.pdf"`, time.Now().Format("20060102")))
	_, _ = w.Write(pdf)
}

func (h *Handler) valuationDocument(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	v, err := h.service.Valuation(r.Context())
	if err != nil {
		h.logger.Error("valuation", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, false
	}
	body, err := h.templates.RenderBytes("pages/reports/valuation.html", view.TemplateData{Title: "Stock valuation", Data: v})
	if err != nil {
		h.logger.Error("render valuation", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, false
	}
	return body, true
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, page, title string, data any) {
	token := h.csrf.EnsureToken(shared.SessionFromContext(r.Context()))
	if err := h.templates.Render(w, http.StatusOK, page, view.NewPage(r, title, token, data)); err != nil {
		h.logger.Error("render", slog.String("page", page), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func windowParam(r *http.Request) int {
	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil || days <= 0 || days > 90 {
		return DefaultWindow
	}
	return days
}
