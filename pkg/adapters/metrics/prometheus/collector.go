// Package prometheus implements the metrics collector on Prometheus.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements ports.MetricsCollector using Prometheus
type Collector struct {
	requestsReceived   *prometheus.CounterVec
	requestsCompleted  *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	responseParts      *prometheus.HistogramVec
	dispatches         *prometheus.CounterVec
	replies            *prometheus.CounterVec
	downstreamDuration *prometheus.HistogramVec
	inFlight           prometheus.Gauge
	workersIdle        prometheus.Gauge
	workersBusy        prometheus.Gauge
	queueDepth         prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector
func NewCollector() *Collector {
	return &Collector{
		requestsReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "routerd_requests_received_total",
				Help: "Total number of client requests received",
			},
			[]string{"graph"},
		),
		requestsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "routerd_requests_completed_total",
				Help: "Total number of client requests completed",
			},
			[]string{"graph"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "routerd_request_duration_seconds",
				Help:    "End-to-end request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"graph"},
		),
		responseParts: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "routerd_response_parts",
				Help:    "Number of parts in the aggregated response",
				Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
			},
			[]string{"graph"},
		),
		dispatches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "routerd_downstream_dispatches_total",
				Help: "Total number of downstream requests issued",
			},
			[]string{"service"},
		),
		replies: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "routerd_downstream_replies_total",
				Help: "Total number of downstream replies recorded",
			},
			[]string{"service", "outcome"},
		),
		downstreamDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "routerd_downstream_duration_seconds",
				Help:    "Downstream call duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"service"},
		),
		inFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "routerd_requests_in_flight",
				Help: "Number of client requests currently being composed",
			},
		),
		workersIdle: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "routerd_dispatch_workers_idle",
				Help: "Number of idle dispatch workers",
			},
		),
		workersBusy: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "routerd_dispatch_workers_busy",
				Help: "Number of busy dispatch workers",
			},
		),
		queueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "routerd_dispatch_queue_depth",
				Help: "Number of queued downstream calls not yet picked up",
			},
		),
	}
}

// RecordRequestReceived records an accepted client request
func (c *Collector) RecordRequestReceived(graph string) {
	c.requestsReceived.WithLabelValues(graph).Inc()
	c.inFlight.Inc()
}

// RecordRequestCompleted records a finished client request
func (c *Collector) RecordRequestCompleted(graph string, duration time.Duration, parts, failed int) {
	c.requestsCompleted.WithLabelValues(graph).Inc()
	c.requestDuration.WithLabelValues(graph).Observe(duration.Seconds())
	c.responseParts.WithLabelValues(graph).Observe(float64(parts))
	c.inFlight.Dec()
}

// RecordDispatch records one issued downstream request
func (c *Collector) RecordDispatch(service string) {
	c.dispatches.WithLabelValues(service).Inc()
}

// RecordReply records one downstream reply
func (c *Collector) RecordReply(service, outcome string, duration time.Duration) {
	c.replies.WithLabelValues(service, outcome).Inc()
	c.downstreamDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordWorkerPoolStatus records dispatch pool gauges
func (c *Collector) RecordWorkerPoolStatus(idle, busy, queued int) {
	c.workersIdle.Set(float64(idle))
	c.workersBusy.Set(float64(busy))
	c.queueDepth.Set(float64(queued))
}
