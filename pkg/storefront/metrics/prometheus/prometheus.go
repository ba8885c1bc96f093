// Package prommetrics implements storefront.Metrics using Prometheus.
package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mihaimyh/storefront/pkg/storefront"
)

// Metrics implements storefront.Metrics using Prometheus.
type Metrics struct {
	identityChangesTotal *prometheus.CounterVec
	syncTotal            *prometheus.CounterVec
	syncDuration         prometheus.Histogram
	checkoutTotal        *prometheus.CounterVec
	deliveryTotal        *prometheus.CounterVec
	deliveryBytes        prometheus.Histogram
	webhookCallsTotal    *prometheus.CounterVec
	webhookCallDuration  *prometheus.HistogramVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		identityChangesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "identity_changes_total",
			Help:      "Total number of identity transitions.",
		}, []string{"state"}),

		syncTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitlement",
			Name:      "sync_total",
			Help:      "Total number of subscription reconciliations by outcome.",
		}, []string{"outcome"}),

		syncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "entitlement",
			Name:      "sync_duration_seconds",
			Help:      "Duration of subscription record fetches in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		checkoutTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "attempts_total",
			Help:      "Total number of checkout attempts by outcome.",
		}, []string{"outcome"}),

		deliveryTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "attempts_total",
			Help:      "Total number of download attempts by outcome.",
		}, []string{"outcome"}),

		deliveryBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "artifact_bytes",
			Help:      "Size of saved artifacts in bytes.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}),

		webhookCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "calls_total",
			Help:      "Total number of backend webhook calls.",
		}, []string{"endpoint", "status"}),

		webhookCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "call_duration_seconds",
			Help:      "Duration of backend webhook calls in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

func (m *Metrics) RecordIdentityChange(state string) {
	m.identityChangesTotal.WithLabelValues(state).Inc()
}

func (m *Metrics) RecordSync(outcome string) {
	m.syncTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordSyncDuration(duration time.Duration) {
	m.syncDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordCheckout(outcome string) {
	m.checkoutTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordDelivery(outcome string) {
	m.deliveryTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordDeliveryBytes(n int64) {
	m.deliveryBytes.Observe(float64(n))
}

func (m *Metrics) RecordWebhookCall(endpoint, status string, duration time.Duration) {
	m.webhookCallsTotal.WithLabelValues(endpoint, status).Inc()
	m.webhookCallDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// DefaultMetrics returns a Metrics implementation using the default Prometheus registerer.
func DefaultMetrics(namespace string) storefront.Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
