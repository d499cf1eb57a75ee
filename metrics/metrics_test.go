package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestWebhookMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWebhookMetrics(reg, "test")

	m.Record("invoice.paid", OutcomeProcessed, time.Now())
	m.Record("invoice.paid", OutcomeProcessed, time.Now())
	m.Record("", OutcomeInvalidSignature, time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("invoice.paid", OutcomeProcessed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("unknown", OutcomeInvalidSignature)))
	assert.Equal(t, 2, testutil.CollectAndCount(m.EventDuration))
}

func TestWebhookMetrics_NilIsNoop(t *testing.T) {
	var m *WebhookMetrics
	assert.NotPanics(t, func() {
		m.Record("invoice.paid", OutcomeProcessed, time.Now())
	})
}
