package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	jobmetrics "github.com/odyssey-erp/dealerquote/internal/jobs"
	"github.com/odyssey-erp/dealerquote/internal/sales/customers"
	"github.com/odyssey-erp/dealerquote/internal/sales/quotations"
)

const notificationChannel = "email"

// QuotationSentEnqueuer is the subset of Client used by QuotationNotifier.
type QuotationSentEnqueuer interface {
	EnqueueQuotationSent(ctx context.Context, payload QuotationSentPayload) (*asynq.TaskInfo, error)
}

// QuotationNotifier hands sent quotations to the worker.
type QuotationNotifier struct {
	enqueuer QuotationSentEnqueuer
}

// NewQuotationNotifier constructs a notifier backed by the job queue.
func NewQuotationNotifier(enqueuer QuotationSentEnqueuer) *QuotationNotifier {
	return &QuotationNotifier{enqueuer: enqueuer}
}

// QuotationSent enqueues the notification task. A task already queued for the
// same quotation is not an error.
func (n *QuotationNotifier) QuotationSent(ctx context.Context, q *quotations.Quotation) error {
	if n == nil || n.enqueuer == nil || q == nil {
		return nil
	}
	payload := QuotationSentPayload{
		QuotationID: q.ID.String(),
		DocNumber:   q.DocNumber,
		DealerID:    q.DealerID,
		CustomerID:  q.CustomerID,
		FinalPrice:  q.FinalPrice.String(),
	}
	if q.ValidUntil != nil {
		payload.ValidUntil = *q.ValidUntil
	}
	if _, err := n.enqueuer.EnqueueQuotationSent(ctx, payload); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("enqueue quotation sent: %w", err)
	}
	return nil
}

// CustomerLookup resolves the recipient of a notification.
type CustomerLookup interface {
	Get(ctx context.Context, id int64) (*customers.Customer, error)
}

// QuotationSentJob renders the customer notification for a sent quotation.
type QuotationSentJob struct {
	Customers CustomerLookup
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Currency  string
	Locale    string
	Scale     int32
}

// NewQuotationSentJob initialises the notification handler.
func NewQuotationSentJob(lookup CustomerLookup, logger *slog.Logger, metrics *jobmetrics.Metrics, currency, locale string, scale int32) *QuotationSentJob {
	return &QuotationSentJob{
		Customers: lookup,
		Logger:    logger,
		Metrics:   metrics,
		Currency:  currency,
		Locale:    locale,
		Scale:     scale,
	}
}

// Handle processes TaskQuotationSent tasks.
func (j *QuotationSentJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Customers == nil {
		return errors.New("quotation sent: handler not configured")
	}
	var payload QuotationSentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskQuotationSent)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.String("quotation_id", payload.QuotationID),
		slog.String("doc_number", payload.DocNumber),
	)

	customer, err := j.Customers.Get(ctx, payload.CustomerID)
	if err != nil {
		if errors.Is(err, customers.ErrNotFound) {
			logger.Warn("quotation recipient missing", slog.Int64("customer_id", payload.CustomerID))
			j.metrics().ObserveNotification(notificationChannel, err)
			resultErr = fmt.Errorf("customer %d: %w", payload.CustomerID, asynq.SkipRetry)
			return resultErr
		}
		resultErr = err
		return resultErr
	}
	if customer.Email == nil || strings.TrimSpace(*customer.Email) == "" {
		logger.Info("quotation recipient has no email", slog.Int64("customer_id", customer.ID))
		j.metrics().ObserveNotification(notificationChannel, errors.New("no recipient"))
		return nil
	}

	body, err := j.Render(payload, customer)
	if err != nil {
		j.metrics().ObserveNotification(notificationChannel, err)
		return fmt.Errorf("render quotation notification: %w", asynq.SkipRetry)
	}

	logger.Info("quotation notification dispatched",
		slog.String("to", *customer.Email),
		slog.String("body", body),
	)
	j.metrics().ObserveNotification(notificationChannel, nil)
	return resultErr
}

// Render formats the notification text in the configured locale.
func (j *QuotationSentJob) Render(payload QuotationSentPayload, customer *customers.Customer) (string, error) {
	price, err := decimal.NewFromString(payload.FinalPrice)
	if err != nil {
		return "", fmt.Errorf("final price %q: %w", payload.FinalPrice, err)
	}
	printer := message.NewPrinter(language.Make(j.locale()))
	amount, _ := price.Round(j.Scale).Float64()
	text := printer.Sprintf("Dear %s, quotation %s is ready. Final price: %s %v.",
		customer.Name, payload.DocNumber, j.currency(), number.Decimal(amount, number.Scale(int(j.Scale))))
	if !payload.ValidUntil.IsZero() {
		text += printer.Sprintf(" Valid until %s.", payload.ValidUntil.Format("2006-01-02 15:04 MST"))
	}
	return text, nil
}

func (j *QuotationSentJob) locale() string {
	if j.Locale == "" {
		return "id-ID"
	}
	return j.Locale
}

func (j *QuotationSentJob) currency() string {
	if j.Currency == "" {
		return "IDR"
	}
	return j.Currency
}

func (j *QuotationSentJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskQuotationSent))
	}
	return slog.Default().With(slog.String("job", TaskQuotationSent))
}

func (j *QuotationSentJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
