// Package metrics holds the Prometheus collectors of the service. Collectors
// are package-level so the handler and the HTTP server record into the same
// series without passing a registry around.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// DeliveriesTotal counts terminal invocation outcomes.
	DeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_email_deliveries_total",
		Help: "Invocations by terminal outcome",
	}, []string{"outcome"})

	// StageDuration observes how long each pipeline stage took.
	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_email_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"stage"})

	// HTTPRequestsTotal counts HTTP requests by route and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_email_http_requests_total",
		Help: "HTTP requests processed",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration observes HTTP request latency.
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_email_http_request_duration_seconds",
		Help:    "Latency of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Register registers the collectors on reg, or on the default registry when
// reg is nil. Registering twice is not an error.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		DeliveriesTotal,
		StageDuration,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	return nil
}

// ObserveStage records the time elapsed since start for stage.
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// RecordOutcome counts one terminal outcome.
func RecordOutcome(outcome string) {
	DeliveriesTotal.WithLabelValues(outcome).Inc()
}
