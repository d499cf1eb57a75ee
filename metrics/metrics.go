package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes recorded for webhook deliveries.
const (
	OutcomeProcessed        = "processed"
	OutcomeDuplicate        = "duplicate"
	OutcomeInFlight         = "in_flight"
	OutcomeFailed           = "failed"
	OutcomeInvalidSignature = "invalid_signature"
)

// WebhookMetrics holds the Prometheus collectors of the webhook endpoint
type WebhookMetrics struct {
	EventsTotal   *prometheus.CounterVec
	EventDuration *prometheus.HistogramVec
}

// NewWebhookMetrics registers the webhook collectors on reg with the given name prefix
func NewWebhookMetrics(reg prometheus.Registerer, prefix string) *WebhookMetrics {
	factory := promauto.With(reg)

	return &WebhookMetrics{
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_webhook_events_total",
				Help: "Total number of Stripe webhook deliveries by event type and outcome",
			},
			[]string{"type", "outcome"},
		),
		EventDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_webhook_duration_seconds",
				Help:    "Duration of Stripe webhook handling in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type"},
		),
	}
}

// Record counts one delivery and observes its duration. A nil receiver is a no-op.
func (m *WebhookMetrics) Record(eventType, outcome string, start time.Time) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.EventsTotal.WithLabelValues(eventType, outcome).Inc()
	m.EventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
}
