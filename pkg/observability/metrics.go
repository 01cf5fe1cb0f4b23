package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Payment gateway call metrics
	gatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_gateway_requests_total",
			Help: "Total number of payment gateway requests",
		},
		[]string{"endpoint", "status"},
	)

	gatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billing_gateway_request_duration_seconds",
			Help:    "Duration of payment gateway requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Webhook event metrics
	webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_webhook_events_total",
			Help: "Total number of gateway webhook events received",
		},
		[]string{"type", "outcome"},
	)

	// Subscription lifecycle metrics
	subscriptionsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "billing_subscriptions_created_total",
			Help: "Total number of subscriptions created",
		},
	)

	subscriptionsCancelledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "billing_subscriptions_cancelled_total",
			Help: "Total number of subscription cancellations requested",
		},
	)
)

// RecordGatewayRequest records a gateway call with its outcome and duration
func RecordGatewayRequest(endpoint, status string, seconds float64) {
	gatewayRequestsTotal.WithLabelValues(endpoint, status).Inc()
	gatewayRequestDuration.WithLabelValues(endpoint).Observe(seconds)
}

// RecordWebhookEvent records a received webhook event and its outcome
// (processed, duplicate, ignored, failed)
func RecordWebhookEvent(eventType, outcome string) {
	webhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// RecordSubscriptionCreated increments the subscription creation counter
func RecordSubscriptionCreated() {
	subscriptionsCreatedTotal.Inc()
}

// RecordSubscriptionCancelled increments the cancellation counter
func RecordSubscriptionCancelled() {
	subscriptionsCancelledTotal.Inc()
}
