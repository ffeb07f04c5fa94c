package jobs

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/stockbook/stockbook/internal/dashboard"
	jobmetrics "github.com/stockbook/stockbook/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const lowStockMemoKey = "jobs:low_stock:last_alert"

// LowStockSource lists items at or below buffer stock.
type LowStockSource interface {
	LowStock(ctx context.Context, limit int) ([]dashboard.LowStockItem, error)
}

// EmailEnqueuer queues outbound mail.
type EmailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) error
}

// LowStockScanJob publishes the low-stock gauge and mails an alert when the
// set of low items changes.
type LowStockScanJob struct {
	Source     LowStockSource
	Mail       EmailEnqueuer
	Recipients []string
	// Memo remembers the last alerted set so unchanged scans stay quiet.
	Memo    redis.Cmdable
	MemoTTL time.Duration
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskLowStockScan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Source == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.metrics().Track(TaskLowStockScan)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	items, err := j.Source.LowStock(ctx, payload.Limit)
	if err != nil {
		return fmt.Errorf("low stock scan: %w", err)
	}
	j.metrics().SetLowStock(len(items))
	logger := j.logger().With(slog.Int("items", len(items)))
	if len(items) == 0 {
		logger.Info("no low stock items")
		return j.forget(ctx)
	}
	if len(j.Recipients) == 0 || j.Mail == nil {
		logger.Info("low stock found, alerting disabled")
		return nil
	}

	fingerprint := lowStockFingerprint(items)
	if j.alreadyAlerted(ctx, fingerprint) {
		logger.Info("low stock unchanged since last alert")
		return nil
	}
	msg, err := LowStockEmail(items)
	if err != nil {
		return err
	}
	msg.To = j.Recipients
	if err := j.Mail.EnqueueSendEmail(ctx, msg); err != nil {
		return fmt.Errorf("low stock scan: enqueue alert: %w", err)
	}
	j.remember(ctx, fingerprint)
	logger.Info("low stock alert queued", slog.Int("recipients", len(j.Recipients)))
	return nil
}

func (j *LowStockScanJob) alreadyAlerted(ctx context.Context, fingerprint string) bool {
	if j.Memo == nil {
		return false
	}
	last, err := j.Memo.Get(ctx, lowStockMemoKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		j.logger().Warn("read low stock memo", slog.Any("error", err))
	}
	return last == fingerprint
}

func (j *LowStockScanJob) remember(ctx context.Context, fingerprint string) {
	if j.Memo == nil {
		return
	}
	ttl := j.MemoTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if err := j.Memo.Set(ctx, lowStockMemoKey, fingerprint, ttl).Err(); err != nil {
		j.logger().Warn("write low stock memo", slog.Any("error", err))
	}
}

func (j *LowStockScanJob) forget(ctx context.Context) error {
	if j.Memo == nil {
		return nil
	}
	return j.Memo.Del(ctx, lowStockMemoKey).Err()
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLowStockScan))
	}
	return slog.Default().With(slog.String("job", TaskLowStockScan))
}

func (j *LowStockScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

// lowStockFingerprint changes whenever an item joins or leaves the list or its stock moves.
func lowStockFingerprint(items []dashboard.LowStockItem) string {
	h := sha256.New()
	for _, it := range items {
		fmt.Fprintf(h, "%d:%d;", it.ProductID, it.Stock)
	}
	return hex.EncodeToString(h.Sum(nil))
}

var lowStockHTML = template.Must(template.New("low_stock").Parse(`<p>{{len .}} item(s) are at or below their buffer stock.</p>
<table border="1" cellpadding="4" cellspacing="0">
<thead><tr><th>SKU</th><th>Name</th><th>Vendor</th><th>Stock</th><th>Buffer</th><th>Reorder at least</th></tr></thead>
<tbody>{{range .}}<tr><td>{{.SKU}}</td><td>{{.Name}}</td><td>{{.VendorName}}</td><td>{{.Stock}}</td><td>{{.BufferStock}}</td><td>{{.Shortfall}}</td></tr>{{end}}</tbody>
</table>`))

// LowStockEmail renders the alert body. Recipients are left for the caller.
func LowStockEmail(items []dashboard.LowStockItem) (SendEmailPayload, error) {
	var text strings.Builder
	fmt.Fprintf(&text, "%d item(s) are at or below their buffer stock:\n\n", len(items))
	for _, it := range items {
		fmt.Fprintf(&text, "- %s %s: %d on hand, buffer %d, reorder at least %d\n", it.SKU, it.Name, it.Stock, it.BufferStock, it.Shortfall())
	}
	var html bytes.Buffer
	if err := lowStockHTML.Execute(&html, items); err != nil {
		return SendEmailPayload{}, err
	}
	return SendEmailPayload{
		Subject: fmt.Sprintf("Low stock: %d item(s) need restocking", len(items)),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
