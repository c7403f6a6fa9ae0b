package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/dealerquote/internal/jobs"
)

const defaultExpiryBatch = 200

// QuotationExpirer persists EXPIRED for overdue quotations.
type QuotationExpirer interface {
	ExpireOverdue(ctx context.Context, limit int) (int, error)
}

// ExpirySweepJob moves overdue SENT quotations to EXPIRED in batches.
type ExpirySweepJob struct {
	Expirer   QuotationExpirer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	BatchSize int
	clock     func() time.Time
}

// NewExpirySweepJob initialises the expiry sweep handler.
func NewExpirySweepJob(expirer QuotationExpirer, logger *slog.Logger, metrics *jobmetrics.Metrics, batchSize int) *ExpirySweepJob {
	return &ExpirySweepJob{
		Expirer:   expirer,
		Logger:    logger,
		Metrics:   metrics,
		BatchSize: batchSize,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle drains overdue quotations one batch at a time until a batch comes
// back short.
func (j *ExpirySweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Expirer == nil {
		return errors.New("expiry sweep: handler not configured")
	}
	var payload ExpirySweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	batch := payload.BatchSize
	if batch <= 0 {
		batch = j.BatchSize
	}
	if batch <= 0 {
		batch = defaultExpiryBatch
	}

	start := j.now()
	tracker := j.metrics().Track(TaskQuotationExpirySweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("batch_size", batch))

	total := 0
	for {
		expired, err := j.Expirer.ExpireOverdue(ctx, batch)
		total += expired
		j.metrics().AddExpired(expired)
		if err != nil {
			resultErr = err
			logger.Error("expiry sweep failed", slog.Int("expired", total), slog.Any("error", err))
			return resultErr
		}
		if expired < batch {
			break
		}
	}

	logger.Info("completed expiry sweep",
		slog.Int("expired", total),
		slog.Duration("duration", j.now().Sub(start)),
	)
	return resultErr
}

func (j *ExpirySweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskQuotationExpirySweep))
	}
	return slog.Default().With(slog.String("job", TaskQuotationExpirySweep))
}

func (j *ExpirySweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ExpirySweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
