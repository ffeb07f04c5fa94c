package perf

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/stockbook/stockbook/internal/app"
	"github.com/stockbook/stockbook/internal/observability"
	"github.com/stockbook/stockbook/internal/shared"
)

func newPerfRouter(t *testing.T) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return app.NewRouter(app.RouterParams{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:         &app.Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second, RateLimitPerMinute: 100000},
		SessionManager: shared.NewSessionManager(rdb, "stockbook_session", time.Hour, false),
		CSRFManager:    shared.NewCSRFManager("perf-secret"),
		Metrics:        observability.NewMetrics(),
		Redis:          rdb,
	})
}

func TestRouterLatencyTargets(t *testing.T) {
	router := newPerfRouter(t)

	scenarios := []struct {
		name      string
		path      string
		threshold time.Duration
	}{
		{name: "healthz", path: "/healthz", threshold: 50 * time.Millisecond},
		{name: "static", path: "/static/css/app.css", threshold: 50 * time.Millisecond},
		{name: "not found", path: "/no-such-page", threshold: 50 * time.Millisecond},
	}

	for _, scenario := range scenarios {
		samples := make([]time.Duration, 0, 100)
		for i := 0; i < 100; i++ {
			req := httptest.NewRequest(http.MethodGet, scenario.path, nil)
			rec := httptest.NewRecorder()
			start := time.Now()
			router.ServeHTTP(rec, req)
			samples = append(samples, time.Since(start))
			require.Less(t, rec.Code, http.StatusInternalServerError, scenario.name)
		}
		if p95 := percentile95(samples); p95 > scenario.threshold {
			t.Fatalf("%s latency regression: p95=%s threshold=%s", scenario.name, p95, scenario.threshold)
		}
	}
}

func BenchmarkHealthz(b *testing.B) {
	mr := miniredis.RunT(b)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	router := app.NewRouter(app.RouterParams{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:         &app.Config{AppRequestTimeout: 5 * time.Second, RateLimitPerMinute: 1 << 30},
		SessionManager: shared.NewSessionManager(rdb, "stockbook_session", time.Hour, false),
		CSRFManager:    shared.NewCSRFManager("perf-secret"),
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	return sorted[index]
}

func TestPercentile95(t *testing.T) {
	samples := make([]time.Duration, 0, 20)
	for i := 20; i >= 1; i-- {
		samples = append(samples, time.Duration(i)*time.Millisecond)
	}
	require.Equal(t, 19*time.Millisecond, percentile95(samples))
	require.Zero(t, percentile95(nil))
}
