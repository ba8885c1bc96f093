package storefront

import "time"

// Metrics defines the interface for tracking session, sync and workflow activity.
// All methods are optional - components fall back to NoopMetrics when nil.
type Metrics interface {
	// RecordIdentityChange records an identity transition.
	// state: "signed_in" or "signed_out"
	RecordIdentityChange(state string)

	// RecordSync records the outcome of a reconciliation.
	// outcome: "active", "inactive", "absent", "error" or "stale"
	RecordSync(outcome string)

	// RecordSyncDuration records how long a subscription record fetch took.
	RecordSyncDuration(duration time.Duration)

	// RecordCheckout records the outcome of a checkout attempt.
	// outcome: "url", "session", "unauthenticated", "config_error", "backend_error", "malformed", "redirect_error"
	RecordCheckout(outcome string)

	// RecordDelivery records the outcome of a download attempt.
	RecordDelivery(outcome string)

	// RecordDeliveryBytes records the size of a saved artifact.
	RecordDeliveryBytes(n int64)

	// RecordWebhookCall records a call to a backend webhook.
	// endpoint: "checkout" or "delivery"; status: HTTP status code as string or "error"
	RecordWebhookCall(endpoint, status string, duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordIdentityChange(_ string)                  {}
func (n *NoopMetrics) RecordSync(_ string)                            {}
func (n *NoopMetrics) RecordSyncDuration(_ time.Duration)             {}
func (n *NoopMetrics) RecordCheckout(_ string)                        {}
func (n *NoopMetrics) RecordDelivery(_ string)                        {}
func (n *NoopMetrics) RecordDeliveryBytes(_ int64)                    {}
func (n *NoopMetrics) RecordWebhookCall(_, _ string, _ time.Duration) {}

// MetricsOrNoop returns m, or a NoopMetrics when m is nil.
func MetricsOrNoop(m Metrics) Metrics {
	if m == nil {
		return &NoopMetrics{}
	}
	return m
}
