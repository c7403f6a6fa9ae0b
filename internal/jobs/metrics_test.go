package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	assert.NoError(t, m.Track("quotations:expiry_sweep").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("quotations:expiry_sweep").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("quotations:expiry_sweep", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("quotations:expiry_sweep", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("quotations:expiry_sweep")))
}

func TestAddExpiredAndNotifications(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.AddExpired(3)
	m.AddExpired(0)
	m.ObserveNotification("email", nil)
	m.ObserveNotification("email", errors.New("smtp down"))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.expired))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("email", "delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("email", "failed")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.AddExpired(2)
	m.ObserveNotification("email", nil)
	assert.NoError(t, m.Track("noop").End(nil))
}
