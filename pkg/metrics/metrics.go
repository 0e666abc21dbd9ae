package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics of a signing surface
type Metrics struct {
	// Session lifecycle
	RequestsSubmitted  *prometheus.CounterVec
	RequestsSuperseded prometheus.Counter
	RequestsAccepted   *prometheus.CounterVec
	RequestsRejected   *prometheus.CounterVec
	StaleCompletions   prometheus.Counter
	SignerLatency      prometheus.Histogram
	SessionState       *prometheus.GaugeVec

	// HTTP surface
	HTTPRequests     *prometheus.CounterVec
	RateLimited      prometheus.Counter
	ConnectedClients prometheus.Gauge
}

// NewMetrics registers metrics with the default registerer
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(nil)
}

// NewMetricsWithRegistry initializes and registers metrics with a custom registry
func NewMetricsWithRegistry(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		RequestsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signing_requests_submitted_total",
			Help: "The total number of signing requests submitted",
		}, []string{"kind"}),
		RequestsSuperseded: factory.NewCounter(prometheus.CounterOpts{
			Name: "signing_requests_superseded_total",
			Help: "The total number of pending requests superseded by a newer one",
		}),
		RequestsAccepted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signing_requests_accepted_total",
			Help: "The total number of signatures accepted after verification",
		}, []string{"kind"}),
		RequestsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signing_requests_rejected_total",
			Help: "The total number of rejected signing requests",
		}, []string{"reason"}),
		StaleCompletions: factory.NewCounter(prometheus.CounterOpts{
			Name: "signing_stale_completions_total",
			Help: "The total number of signer completions dropped because their request was superseded",
		}),
		SignerLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "signing_signer_latency_seconds",
			Help:    "Time from handing a request to the signer until it answers",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		SessionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signing_session_state",
			Help: "1 for the state the session is currently in",
		}, []string{"state"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signing_http_requests_total",
			Help: "The total number of HTTP requests by endpoint and status code",
		}, []string{"endpoint", "code"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "signing_http_rate_limited_total",
			Help: "The total number of submissions refused by the rate limiter",
		}),
		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "signing_ws_connected_clients",
			Help: "The current number of connected status stream clients",
		}),
	}
}
