package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/stockbook/stockbook/internal/revalidate"
)

// RepositoryPort is the set of reporting queries.
type RepositoryPort interface {
	Summary(ctx context.Context, returnsSince time.Time) (Summary, error)
	LowStock(ctx context.Context, limit int) ([]LowStockItem, error)
	Activity(ctx context.Context, from, to time.Time) ([]ActivityPoint, error)
	TopProducts(ctx context.Context, limit int) ([]TopProduct, error)
	Categories(ctx context.Context) ([]CategorySlice, error)
	Valuation(ctx context.Context) ([]ValuationRow, error)
}

// Cache serves tagged reads.
type Cache interface {
	Fetch(ctx context.Context, key string, tags []string, dest any, loader revalidate.Loader) error
}

// Service assembles dashboard data.
type Service struct {
	repo   RepositoryPort
	cache  Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, cache Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger, now: time.Now}
}

var snapshotTags = []string{revalidate.TagDashboard, revalidate.TagProducts, revalidate.TagTransactions}

// Snapshot loads every dashboard section concurrently. The result is cached
// until a dashboard, product or transaction tag is revalidated.
func (s *Service) Snapshot(ctx context.Context, days int) (Snapshot, error) {
	if days <= 0 || days > 90 {
		days = DefaultWindow
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	key := revalidate.Key("dashboard", "snapshot", strconv.Itoa(days), today.Format("20060102"))
	var snap Snapshot
	err := s.cache.Fetch(ctx, key, snapshotTags, &snap, func(ctx context.Context) (any, error) {
		return s.load(ctx, today, days)
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("dashboard: snapshot: %w", err)
	}
	return snap, nil
}

func (s *Service) load(ctx context.Context, today time.Time, days int) (Snapshot, error) {
	snap := Snapshot{GeneratedAt: s.now().UTC()}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.Summary, err = s.repo.Summary(ctx, today.AddDate(0, 0, -30))
		return err
	})
	g.Go(func() error {
		var err error
		snap.LowStock, err = s.repo.LowStock(ctx, 10)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Activity, err = s.repo.Activity(ctx, today.AddDate(0, 0, -(days-1)), today)
		return err
	})
	g.Go(func() error {
		var err error
		snap.TopProducts, err = s.repo.TopProducts(ctx, 5)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Categories, err = s.repo.Categories(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// LowStock returns uncached low-stock items for alerts.
func (s *Service) LowStock(ctx context.Context, limit int) ([]LowStockItem, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.LowStock(ctx, limit)
}

// Valuation builds the stock valuation report.
func (s *Service) Valuation(ctx context.Context) (Valuation, error) {
	var out Valuation
	err := s.cache.Fetch(ctx, "dashboard:valuation", snapshotTags, &out, func(ctx context.Context) (any, error) {
		rows, err := s.repo.Valuation(ctx)
		if err != nil {
			return nil, err
		}
		v := Valuation{Rows: rows, Total: decimal.Zero, GeneratedAt: s.now().UTC()}
		for _, r := range rows {
			v.Units += r.Stock
			v.Total = v.Total.Add(r.Value())
		}
		return v, nil
	})
	if err != nil {
		return Valuation{}, fmt.Errorf("dashboard: valuation: %w", err)
	}
	return out, nil
}

// Warmup precomputes the default snapshot so the first page view is fast.
func (s *Service) Warmup(ctx context.Context) error {
	start := time.Now()
	if _, err := s.Snapshot(ctx, DefaultWindow); err != nil {
		return err
	}
	s.logger.Info("dashboard warmed", slog.Duration("took", time.Since(start)))
	return nil
}
