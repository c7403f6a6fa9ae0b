package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskQuotationSent announces a quotation handed to the customer.
	TaskQuotationSent = "quotations:sent"
	// TaskQuotationExpirySweep persists EXPIRED for overdue SENT quotations.
	TaskQuotationExpirySweep = "quotations:expiry_sweep"
	// TaskIdempotencyCleanup purges old idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// QuotationSentPayload carries the data needed to notify a customer.
type QuotationSentPayload struct {
	QuotationID string    `json:"quotation_id"`
	DocNumber   string    `json:"doc_number"`
	DealerID    int64     `json:"dealer_id"`
	CustomerID  int64     `json:"customer_id"`
	FinalPrice  string    `json:"final_price"`
	ValidUntil  time.Time `json:"valid_until"`
}

// NewQuotationSentTask constructs an Asynq task.
func NewQuotationSentTask(payload QuotationSentPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQuotationSent, data), nil
}

// ExpirySweepPayload bounds a single sweep run.
type ExpirySweepPayload struct {
	BatchSize int `json:"batch_size"`
}

// NewExpirySweepTask constructs the cron task for the expiry sweep.
func NewExpirySweepTask(batchSize int) (*asynq.Task, error) {
	data, err := json.Marshal(ExpirySweepPayload{BatchSize: batchSize})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQuotationExpirySweep, data), nil
}

// IdempotencyCleanupPayload configures the retention of idempotency keys.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs the cron task for key cleanup.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention.Hours())})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
