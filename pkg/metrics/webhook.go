package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records processing outcomes for incoming processor webhooks.
type WebhookMetrics struct {
	duration  *prometheus.HistogramVec
	processed *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	failed    *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_duration_seconds",
		Help:    "Duration of webhook event handling in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_processed",
		Help: "Webhook events applied to billing state.",
	}, []string{"event_type"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_dropped",
		Help: "Webhook events dropped as duplicates or uncorrelatable.",
	}, []string{"event_type", "reason"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_failed",
		Help: "Webhook events that errored and will be redelivered.",
	}, []string{"event_type"})
	reg.MustRegister(duration, processed, dropped, failed)
	return &WebhookMetrics{
		duration:  duration,
		processed: processed,
		dropped:   dropped,
		failed:    failed,
	}
}

// ObserveDuration records handling duration for the event type.
func (w *WebhookMetrics) ObserveDuration(eventType string, duration time.Duration) {
	if w == nil || w.duration == nil {
		return
	}
	w.duration.WithLabelValues(normalizeLabel(eventType)).Observe(duration.Seconds())
}

// IncProcessed increments the processed counter for the event type.
func (w *WebhookMetrics) IncProcessed(eventType string) {
	if w == nil || w.processed == nil {
		return
	}
	w.processed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncDropped increments the dropped counter with the drop reason.
func (w *WebhookMetrics) IncDropped(eventType, reason string) {
	if w == nil || w.dropped == nil {
		return
	}
	w.dropped.WithLabelValues(normalizeLabel(eventType), normalizeLabel(reason)).Inc()
}

// IncFailed increments the failure counter for the event type.
func (w *WebhookMetrics) IncFailed(eventType string) {
	if w == nil || w.failed == nil {
		return
	}
	w.failed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
