package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/dealerquote/internal/jobs"
	"github.com/odyssey-erp/dealerquote/internal/sales/customers"
	"github.com/odyssey-erp/dealerquote/internal/sales/quotations"
)

// ============================================================================
// EXPIRY SWEEP
// ============================================================================

type stubExpirer struct {
	mu      sync.Mutex
	pending int
	calls   []int
	err     error
}

func (s *stubExpirer) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, limit)
	if s.err != nil {
		return 0, s.err
	}
	n := s.pending
	if n > limit {
		n = limit
	}
	s.pending -= n
	return n, nil
}

func newTestMetrics() *jobmetrics.Metrics {
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

func TestExpirySweepDrainsInBatches(t *testing.T) {
	expirer := &stubExpirer{pending: 5}
	job := NewExpirySweepJob(expirer, nil, newTestMetrics(), 100)

	task, err := NewExpirySweepTask(2)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	assert.Equal(t, []int{2, 2, 2}, expirer.calls)
	assert.Zero(t, expirer.pending)
}

func TestExpirySweepDefaultsBatch(t *testing.T) {
	expirer := &stubExpirer{}
	job := NewExpirySweepJob(expirer, nil, newTestMetrics(), 0)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskQuotationExpirySweep, nil)))

	assert.Equal(t, []int{defaultExpiryBatch}, expirer.calls)
}

func TestExpirySweepPropagatesFailure(t *testing.T) {
	boom := errors.New("db down")
	job := NewExpirySweepJob(&stubExpirer{err: boom}, nil, newTestMetrics(), 10)

	err := job.Handle(context.Background(), asynq.NewTask(TaskQuotationExpirySweep, nil))

	assert.ErrorIs(t, err, boom)
}

func TestExpirySweepBadPayloadSkipsRetry(t *testing.T) {
	job := NewExpirySweepJob(&stubExpirer{}, nil, newTestMetrics(), 10)

	err := job.Handle(context.Background(), asynq.NewTask(TaskQuotationExpirySweep, []byte("{")))

	assert.ErrorIs(t, err, asynq.SkipRetry)
}

// ============================================================================
// NOTIFICATIONS
// ============================================================================

type stubEnqueuer struct {
	payloads []QuotationSentPayload
	err      error
}

func (s *stubEnqueuer) EnqueueQuotationSent(ctx context.Context, payload QuotationSentPayload) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.payloads = append(s.payloads, payload)
	return &asynq.TaskInfo{ID: payload.QuotationID}, nil
}

func sentQuotation() *quotations.Quotation {
	validUntil := time.Date(2026, 3, 24, 9, 0, 0, 0, time.UTC)
	return &quotations.Quotation{
		ID:         uuid.MustParse("5b0c7f3e-3d59-4a4f-8a55-6f3b7f1b2a10"),
		DocNumber:  "QUO-10-202603-00001",
		DealerID:   10,
		CustomerID: 7,
		FinalPrice: decimal.RequireFromString("425000000"),
		Status:     quotations.QuotationStatusSent,
		ValidUntil: &validUntil,
	}
}

func TestQuotationNotifierEnqueues(t *testing.T) {
	enqueuer := &stubEnqueuer{}
	notifier := NewQuotationNotifier(enqueuer)

	require.NoError(t, notifier.QuotationSent(context.Background(), sentQuotation()))

	require.Len(t, enqueuer.payloads, 1)
	payload := enqueuer.payloads[0]
	assert.Equal(t, "5b0c7f3e-3d59-4a4f-8a55-6f3b7f1b2a10", payload.QuotationID)
	assert.Equal(t, "425000000", payload.FinalPrice)
	assert.Equal(t, int64(7), payload.CustomerID)
	assert.False(t, payload.ValidUntil.IsZero())
}

func TestQuotationNotifierIgnoresDuplicates(t *testing.T) {
	notifier := NewQuotationNotifier(&stubEnqueuer{err: asynq.ErrTaskIDConflict})
	assert.NoError(t, notifier.QuotationSent(context.Background(), sentQuotation()))

	notifier = NewQuotationNotifier(&stubEnqueuer{err: errors.New("redis down")})
	assert.Error(t, notifier.QuotationSent(context.Background(), sentQuotation()))
}

type stubCustomers map[int64]*customers.Customer

func (s stubCustomers) Get(ctx context.Context, id int64) (*customers.Customer, error) {
	c, ok := s[id]
	if !ok {
		return nil, customers.ErrNotFound
	}
	return c, nil
}

func strPtr(s string) *string { return &s }

func sentTask(t *testing.T) *asynq.Task {
	t.Helper()
	q := sentQuotation()
	task, err := NewQuotationSentTask(QuotationSentPayload{
		QuotationID: q.ID.String(),
		DocNumber:   q.DocNumber,
		DealerID:    q.DealerID,
		CustomerID:  q.CustomerID,
		FinalPrice:  q.FinalPrice.String(),
		ValidUntil:  *q.ValidUntil,
	})
	require.NoError(t, err)
	return task
}

func TestQuotationSentJobRender(t *testing.T) {
	job := NewQuotationSentJob(stubCustomers{}, nil, newTestMetrics(), "IDR", "id-ID", 0)
	var payload QuotationSentPayload
	require.NoError(t, json.Unmarshal(sentTask(t).Payload(), &payload))

	text, err := job.Render(payload, &customers.Customer{Name: "Budi Santoso"})

	require.NoError(t, err)
	assert.Contains(t, text, "Budi Santoso")
	assert.Contains(t, text, "QUO-10-202603-00001")
	assert.Contains(t, text, "IDR 425.000.000")
	assert.Contains(t, text, "2026-03-24")
}

func TestQuotationSentJobHandle(t *testing.T) {
	lookup := stubCustomers{
		7: {ID: 7, Name: "Budi Santoso", Email: strPtr("budi@example.com"), IsActive: true},
	}
	job := NewQuotationSentJob(lookup, nil, newTestMetrics(), "IDR", "en-US", 2)

	assert.NoError(t, job.Handle(context.Background(), sentTask(t)))
	assert.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskQuotationSent, []byte("nope"))), asynq.SkipRetry)
}

func TestQuotationSentJobMissingCustomerSkipsRetry(t *testing.T) {
	job := NewQuotationSentJob(stubCustomers{}, nil, newTestMetrics(), "", "", 2)

	err := job.Handle(context.Background(), sentTask(t))

	assert.ErrorIs(t, err, asynq.SkipRetry)
}

// ============================================================================
// IDEMPOTENCY CLEANUP
// ============================================================================

type stubPurger struct {
	retention time.Duration
	err       error
}

func (s *stubPurger) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.retention = olderThan
	if s.err != nil {
		return 0, s.err
	}
	return 3, nil
}

func TestIdempotencyCleanupJob(t *testing.T) {
	purger := &stubPurger{}
	job := NewIdempotencyCleanupJob(purger, nil, newTestMetrics())

	task, err := NewIdempotencyCleanupTask(24 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 24*time.Hour, purger.retention)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	assert.Equal(t, defaultIdempotencyRetention, purger.retention)

	purger.err = errors.New("db down")
	assert.Error(t, job.Handle(context.Background(), task))
}

// ============================================================================
// WORKER AND HTTP
// ============================================================================

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	assert.Error(t, err)
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), `"queue":"default"`))
}

func TestClientEnqueueUsesDefaultQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	task, err := NewExpirySweepTask(25)
	require.NoError(t, err)
	info, err := client.Enqueue(context.Background(), task, asynq.MaxRetry(3), asynq.TaskID("sweep-manual"))
	require.NoError(t, err)

	assert.Equal(t, QueueDefault, info.Queue)
	assert.Equal(t, 3, info.MaxRetry)
	assert.Equal(t, "sweep-manual", info.ID)
	pending, err := mr.List("asynq:{" + QueueDefault + "}:pending")
	require.NoError(t, err)
	assert.Equal(t, []string{"sweep-manual"}, pending)
}
