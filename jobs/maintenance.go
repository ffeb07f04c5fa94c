package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockbook/stockbook/internal/inventory"
	jobmetrics "github.com/stockbook/stockbook/internal/jobs"
	"github.com/stockbook/stockbook/internal/notify"
)

// LedgerAuditor replays every product ledger.
type LedgerAuditor interface {
	VerifyAll(ctx context.Context) (inventory.AuditResult, error)
}

// LedgerAuditJob checks that stored stock matches the ledger.
type LedgerAuditJob struct {
	Auditor LedgerAuditor
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskLedgerAudit. Discrepancies are logged and counted, not failed,
// so the task is not retried against data that will not change.
func (j *LedgerAuditJob) Handle(ctx context.Context, _ *asynq.Task) (resultErr error) {
	if j == nil || j.Auditor == nil {
		return errors.New("ledger audit: handler not configured")
	}
	metrics := metricsOr(j.Metrics)
	tracker := metrics.Track(TaskLedgerAudit)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	logger := jobLogger(j.Logger, TaskLedgerAudit)

	start := time.Now()
	result, err := j.Auditor.VerifyAll(ctx)
	if err != nil {
		return fmt.Errorf("ledger audit: %w", err)
	}
	found := 0
	for _, report := range result.Failing {
		for _, d := range report.Discrepancies {
			found++
			logger.Error("ledger discrepancy",
				slog.Int64("product_id", d.Ref.ProductID),
				slog.Int64("variant_id", d.Ref.VariantID),
				slog.Int64("transaction_id", d.TransactionID),
				slog.String("kind", d.Kind),
				slog.String("detail", d.Detail))
		}
	}
	metrics.AddDiscrepancies(found)
	logger.Info("ledger audit completed",
		slog.Int("checked", result.Checked),
		slog.Int("failing", len(result.Failing)),
		slog.Int("discrepancies", found),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Warmer precomputes cached reads.
type Warmer interface {
	Warmup(ctx context.Context) error
}

// DashboardWarmupJob fills the dashboard cache ahead of the first visit.
type DashboardWarmupJob struct {
	Dashboard Warmer
	Timeout   time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle processes TaskDashboardWarmup.
func (j *DashboardWarmupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Dashboard == nil {
		return errors.New("dashboard warmup: handler not configured")
	}
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	tracker := metricsOr(j.Metrics).Track(TaskDashboardWarmup)
	err := j.Dashboard.Warmup(ctx)
	if err != nil {
		jobLogger(j.Logger, TaskDashboardWarmup).Error("warm dashboard", slog.Any("error", err))
	}
	return tracker.End(err)
}

// KeyStore prunes stale idempotency keys.
type KeyStore interface {
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

// IdempotencyCleanupJob deletes submission keys past their retention.
type IdempotencyCleanupJob struct {
	Store   KeyStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskIdempotencyCleanup.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Retention <= 0 {
		payload.Retention = defaultIdempotencyRetention
	}
	tracker := metricsOr(j.Metrics).Track(TaskIdempotencyCleanup)
	removed, err := j.Store.Cleanup(ctx, payload.Retention)
	if err == nil {
		jobLogger(j.Logger, TaskIdempotencyCleanup).Info("idempotency keys pruned",
			slog.Int64("removed", removed), slog.Duration("retention", payload.Retention))
	}
	return tracker.End(err)
}

// MailSender delivers one message.
type MailSender interface {
	Send(ctx context.Context, msg notify.Message) error
}

// MailJob delivers queued e-mail.
type MailJob struct {
	Mailer  MailSender
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskTypeSendEmail. Disabled SMTP drops the message.
func (j *MailJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Mailer == nil {
		return errors.New("mail: handler not configured")
	}
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	logger := jobLogger(j.Logger, TaskTypeSendEmail).With(slog.String("subject", payload.Subject))
	tracker := metricsOr(j.Metrics).Track(TaskTypeSendEmail)
	err := j.Mailer.Send(ctx, notify.Message{To: payload.To, Subject: payload.Subject, Text: payload.Text, HTML: payload.HTML})
	if errors.Is(err, notify.ErrDisabled) {
		logger.Warn("smtp disabled, dropping message")
		return tracker.End(nil)
	}
	if err != nil {
		logger.Error("send mail", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("mail sent", slog.Int("recipients", len(payload.To)))
	return tracker.End(nil)
}

func metricsOr(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

func jobLogger(l *slog.Logger, job string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With(slog.String("job", job))
}
