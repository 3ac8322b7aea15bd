// Package observability wires tracing and metrics for the delivery service.
// This file defines the Prometheus collectors for the delivery pipeline
// itself; HTTP-level collectors live in the middleware package.
package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// PostsSent counts emails actually dispatched (one per delivery record).
	PostsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "delivery_posts_sent_total",
		Help: "Total number of posts emailed to purchases.",
	})

	// SendFailures counts single-send failures by kind: "not_eligible",
	// "opted_out", or "dispatch".
	SendFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_send_failures_total",
			Help: "Total number of failed post sends.",
		},
		[]string{"kind"},
	)

	// GuardSuppressed counts duplicate sends the delivery guard absorbed
	// inside the idempotency window.
	GuardSuppressed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "delivery_guard_suppressed_total",
		Help: "Total number of duplicate sends suppressed by the delivery guard.",
	})

	// Batches counts missed-post batches by terminal outcome
	// ("completed" or "failed").
	Batches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_batches_total",
			Help: "Total number of missed-post batches by outcome.",
		},
		[]string{"outcome"},
	)

	// PublishFailures counts realtime notifications that could not be
	// published. The batch outcome is unaffected; this is visibility only.
	PublishFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "delivery_realtime_publish_failures_total",
		Help: "Total number of failed realtime event publishes.",
	})

	// JobsConsumed counts send-missed jobs taken off the queue by result
	// ("ok" or "error").
	JobsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_jobs_consumed_total",
			Help: "Total number of send-missed jobs consumed by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(PostsSent, SendFailures, GuardSuppressed, Batches, PublishFailures, JobsConsumed)
}
