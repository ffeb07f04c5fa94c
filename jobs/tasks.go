package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueMail carries outbound e-mail so a slow SMTP server does not hold up scans.
	QueueMail = "mail"

	TaskTypeSendEmail      = "mail:send"
	TaskLowStockScan       = "inventory:low_stock_scan"
	TaskLedgerAudit        = "inventory:ledger_audit"
	TaskDashboardWarmup    = "dashboard:warmup"
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

const defaultIdempotencyRetention = 7 * 24 * time.Hour

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	HTML    string   `json:"html,omitempty"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.Queue(QueueMail), asynq.MaxRetry(5)), nil
}

// LowStockScanPayload tunes one scan.
type LowStockScanPayload struct {
	Limit int `json:"limit"`
}

// NewLowStockScanTask constructs the low-stock scan task.
func NewLowStockScanTask(limit int) (*asynq.Task, error) {
	data, err := json.Marshal(LowStockScanPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, data, asynq.Queue(QueueDefault)), nil
}

// NewLedgerAuditTask constructs the ledger audit task.
func NewLedgerAuditTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerAudit, nil, asynq.Queue(QueueDefault), asynq.Timeout(30*time.Minute))
}

// NewDashboardWarmupTask constructs the dashboard warm-up task.
func NewDashboardWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskDashboardWarmup, nil, asynq.Queue(QueueDefault))
}

// IdempotencyCleanupPayload sets how long submission keys are kept.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs the key cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.Queue(QueueDefault)), nil
}
