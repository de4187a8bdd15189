package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCollector(t *testing.T) {
	m := NewMetricsCollector(prometheus.NewRegistry())

	m.RecordTransition("pending", "confirmed", "webhook")
	m.RecordTransition("pending", "confirmed", "webhook")
	m.RecordWebhook("cashfree", "duplicate")
	m.RecordNotification("order_confirmation", "sent")
	m.ObserveExternalCall("cashfree", "create_order", time.Now(), errors.New("timeout"))
	m.RecordOrderCreated()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.orderTransitions.WithLabelValues("pending", "confirmed", "webhook")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookOutcomes.WithLabelValues("cashfree", "duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ordersCreated))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var m *MetricsCollector
	assert.NotPanics(t, func() {
		m.RecordTransition("pending", "confirmed", "admin")
		m.RecordWebhook("cashfree", "accepted")
		m.RecordHTTPRequest("GET", "/health", 200, time.Millisecond)
		m.RecordIssue("partial_write")
	})
}
