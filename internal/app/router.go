package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stockbook/stockbook/internal/auth"
	"github.com/stockbook/stockbook/internal/catalog"
	"github.com/stockbook/stockbook/internal/customers"
	"github.com/stockbook/stockbook/internal/dashboard"
	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/observability"
	"github.com/stockbook/stockbook/internal/platform/httpx"
	"github.com/stockbook/stockbook/internal/rbac"
	"github.com/stockbook/stockbook/internal/returns"
	"github.com/stockbook/stockbook/internal/shared"
	"github.com/stockbook/stockbook/internal/vendors"
	"github.com/stockbook/stockbook/jobs"
	"github.com/stockbook/stockbook/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	RBACMiddleware rbac.Middleware
	Metrics        *observability.Metrics

	// Pool and Redis back /healthz; either may be nil.
	Pool  *pgxpool.Pool
	Redis *redis.Client

	AuthHandler      *auth.Handler
	DashboardHandler *dashboard.Handler
	CatalogHandler   *catalog.Handler
	InventoryHandler *inventory.Handler
	VendorHandler    *vendors.Handler
	CustomerHandler  *customers.Handler
	ReturnHandler    *returns.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with Stockbook defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", healthHandler(params.Pool, params.Redis, logger))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	if params.AuthHandler != nil {
		params.AuthHandler.MountRoutes(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(RequireLogin)

		if params.DashboardHandler != nil {
			params.DashboardHandler.MountRoutes(r)
		}
		if params.CatalogHandler != nil {
			params.CatalogHandler.MountRoutes(r)
		}
		if params.InventoryHandler != nil {
			r.Route("/inventory", params.InventoryHandler.MountRoutes)
		}
		if params.VendorHandler != nil {
			r.Route("/vendors", params.VendorHandler.MountRoutes)
		}
		if params.CustomerHandler != nil {
			r.Route("/customers", params.CustomerHandler.MountRoutes)
		}
		if params.ReturnHandler != nil {
			r.Route("/returns", params.ReturnHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.With(params.RBACMiddleware.RequireAll(rbac.PermLedgerAudit)).Route("/jobs", params.JobHandler.MountRoutes)
		}
		r.Route("/api", func(r chi.Router) {
			if params.InventoryHandler != nil {
				params.InventoryHandler.MountAPI(r)
			}
			if params.DashboardHandler != nil {
				params.DashboardHandler.MountAPI(r)
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not found", "no route for "+r.URL.Path)
	})

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}

func healthHandler(pool *pgxpool.Pool, rdb *redis.Client, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		if pool != nil {
			if err := pool.Ping(r.Context()); err != nil {
				logger.Warn("health: postgres", slog.Any("error", err))
				status["postgres"] = "down"
				code = http.StatusServiceUnavailable
			} else {
				status["postgres"] = "up"
			}
		}
		if rdb != nil {
			if err := rdb.Ping(r.Context()).Err(); err != nil {
				logger.Warn("health: redis", slog.Any("error", err))
				status["redis"] = "down"
				code = http.StatusServiceUnavailable
			} else {
				status["redis"] = "up"
			}
		}
		if code != http.StatusOK {
			status["status"] = "degraded"
		}
		httpx.JSON(w, code, status)
	}
}
