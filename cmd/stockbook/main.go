package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stockbook/stockbook/cmd/stockbook/cli"
	"github.com/stockbook/stockbook/internal/app"
	"github.com/stockbook/stockbook/internal/auth"
	"github.com/stockbook/stockbook/internal/catalog"
	"github.com/stockbook/stockbook/internal/customers"
	"github.com/stockbook/stockbook/internal/dashboard"
	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/media"
	"github.com/stockbook/stockbook/internal/observability"
	"github.com/stockbook/stockbook/internal/platform/cache"
	"github.com/stockbook/stockbook/internal/platform/db"
	"github.com/stockbook/stockbook/internal/rbac"
	"github.com/stockbook/stockbook/internal/returns"
	"github.com/stockbook/stockbook/internal/revalidate"
	"github.com/stockbook/stockbook/internal/shared"
	"github.com/stockbook/stockbook/internal/vendors"
	"github.com/stockbook/stockbook/internal/view"
	"github.com/stockbook/stockbook/jobs"
	"github.com/stockbook/stockbook/report"
)

const usage = `usage: stockbook [command]

commands:
  serve               run the web server (default)
  migrate             apply database migrations and exit
  audit               verify every product ledger and exit non-zero on discrepancies
  jobs trigger NAME   enqueue a background job
  jobs stats          print worker queue counters
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "serve":
		err = serve(ctx, stop, cfg, logger)
	case "migrate":
		err = migrate(ctx, cfg, logger)
	case "audit":
		err = audit(ctx, cfg, logger)
	case "jobs":
		err = jobsCommand(ctx, cfg, args[1:])
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error(command, slog.Any("error", err))
		os.Exit(1)
	}
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	return db.Migrate(ctx, pool, logger)
}

func audit(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	ledger := inventory.NewService(inventory.NewRepository(db.NewTxManager(pool)), inventory.Deps{Logger: logger})
	result, err := ledger.VerifyAll(ctx)
	if err != nil {
		return err
	}
	for _, report := range result.Failing {
		for _, d := range report.Discrepancies {
			fmt.Printf("product %d %s: %s\n", report.ProductID, d.Kind, d.Detail)
		}
	}
	fmt.Printf("checked %d product(s), %d failing\n", result.Checked, len(result.Failing))
	if len(result.Failing) > 0 {
		return errors.New("ledger discrepancies found")
	}
	return nil
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) error {
	helper := cli.NewJobsCLI(cfg.RedisAddr, cfg.IdempotencyRetention)
	defer func() { _ = helper.Close() }()

	if len(args) == 0 {
		return errors.New(usage)
	}
	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return fmt.Errorf("jobs trigger: name required, one of %v", cli.TriggerNames())
		}
		info, err := helper.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := helper.InspectQueues(ctx)
		if err != nil {
			return err
		}
		for _, s := range stats {
			fmt.Printf("%-8s pending=%d active=%d scheduled=%d retry=%d failed=%d\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Failed)
		}
	default:
		return fmt.Errorf("jobs: unknown subcommand %q", args[0])
	}
	return nil
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	templates, err := view.NewEngine()
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	sessionManager := shared.NewSessionManager(redisClient, "stockbook_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	rbacMiddleware := rbac.Middleware{Logger: logger}
	metrics := observability.NewMetrics()

	// Ledger writes trigger a low-stock scan; the worker collapses bursts.
	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() { _ = jobClient.Close() }()
	listener := revalidate.New(redisClient, cfg.CacheTTL, logger)
	err = listener.Listen(ctx, func(tags []string) {
		if !slices.Contains(tags, revalidate.TagTransactions) {
			return
		}
		if err := jobClient.EnqueueLowStockScan(ctx); err != nil {
			logger.Warn("enqueue low stock scan", slog.Any("error", err))
		}
	})
	if err != nil {
		logger.Warn("subscribe revalidation", slog.Any("error", err))
	}

	router := app.NewRouter(buildRouterParams(pool, redisClient, cfg, logger, templates, sessionManager, csrfManager, rbacMiddleware, metrics))

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return nil
}

func buildRouterParams(
	pool *pgxpool.Pool,
	redisClient *redis.Client,
	cfg *app.Config,
	logger *slog.Logger,
	templates *view.Engine,
	sessionManager *shared.SessionManager,
	csrfManager *shared.CSRFManager,
	rbacMiddleware rbac.Middleware,
	metrics *observability.Metrics,
) app.RouterParams {
	txManager := db.NewTxManager(pool)
	auditLogger := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)
	cacheLayer := revalidate.New(redisClient, cfg.CacheTTL, logger)

	authService := auth.NewService(auth.NewRepository(pool), auditLogger, logger)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager, cfg.LoginAttemptsPerMinute)

	inventoryService := inventory.NewService(inventory.NewRepository(txManager), inventory.Deps{
		Audit:       auditLogger,
		Idempotency: idempotency,
		Cache:       cacheLayer,
		Metrics:     metrics,
		Logger:      logger,
	})

	uploader := media.NewUploader(media.Config{
		URL:      cfg.MediaUploadURL,
		APIKey:   cfg.MediaAPIKey,
		MaxBytes: cfg.MediaMaxBytes,
	})
	catalogService := catalog.NewService(catalog.NewRepository(txManager), txManager, inventoryService, cacheLayer, uploader, auditLogger,
		catalog.Config{DefaultBufferStock: cfg.BufferStockDefault}, logger)

	vendorService := vendors.NewService(vendors.NewRepository(txManager), cacheLayer, auditLogger, logger)
	customerService := customers.NewService(customers.NewRepository(txManager), cacheLayer, auditLogger, logger)
	returnService := returns.NewService(returns.NewRepository(txManager), txManager, inventoryService, idempotency, cacheLayer, auditLogger, logger)
	dashboardService := dashboard.NewService(dashboard.NewRepository(pool), cacheLayer, logger)

	var pdf dashboard.PDFRenderer
	if cfg.GotenbergURL != "" {
		pdf = report.NewClient(cfg.GotenbergURL, 30*time.Second)
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})

	return app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		RBACMiddleware:   rbacMiddleware,
		Metrics:          metrics,
		Pool:             pool,
		Redis:            redisClient,
		AuthHandler:      authHandler,
		DashboardHandler: dashboard.NewHandler(logger, dashboardService, pdf, templates, csrfManager, rbacMiddleware),
		CatalogHandler: catalog.NewHandler(logger, catalogService, inventoryService, vendorService, templates, csrfManager, rbacMiddleware,
			uploader.MaxBytes()),
		InventoryHandler: inventory.NewHandler(logger, inventoryService, catalogService, templates, csrfManager, rbacMiddleware),
		VendorHandler:    vendors.NewHandler(logger, vendorService, templates, csrfManager, rbacMiddleware),
		CustomerHandler:  customers.NewHandler(logger, customerService, templates, csrfManager, rbacMiddleware),
		ReturnHandler:    returns.NewHandler(logger, returnService, customerService, catalogService, templates, csrfManager, rbacMiddleware),
		JobHandler:       jobs.NewHandler(inspector, logger),
	}
}
