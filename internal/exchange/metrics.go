package exchange

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this package.
	MetricsSubsystem = "exchange"
)

// Metrics contains metrics exposed by this package. Every metric except
// PendingRequests carries a "kind" label.
type Metrics struct {
	Requests             metrics.Counter
	Responses            metrics.Counter
	Timeouts             metrics.Counter
	ValidationFailures   metrics.Counter
	PeerLost             metrics.Counter
	UnsolicitedResponses metrics.Counter
	ItemsReceived        metrics.Counter
	ResponseTime         metrics.Histogram
	PendingRequests      metrics.Gauge
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	kindLabels := append(append([]string{}, labels...), "kind")
	return &Metrics{
		Requests: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "requests",
			Help:      "Number of requests sent to peers.",
		}, kindLabels).With(labelsAndValues...),
		Responses: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "responses",
			Help:      "Number of responses that passed validation.",
		}, kindLabels).With(labelsAndValues...),
		Timeouts: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "timeouts",
			Help:      "Number of requests that got no response in time.",
		}, kindLabels).With(labelsAndValues...),
		ValidationFailures: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "validation_failures",
			Help:      "Number of responses rejected as invalid.",
		}, kindLabels).With(labelsAndValues...),
		PeerLost: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "peer_lost",
			Help:      "Number of requests failed because the peer disconnected.",
		}, kindLabels).With(labelsAndValues...),
		UnsolicitedResponses: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "unsolicited_responses",
			Help:      "Number of responses that matched no pending request.",
		}, kindLabels).With(labelsAndValues...),
		ItemsReceived: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "items_received",
			Help:      "Number of validated items received.",
		}, kindLabels).With(labelsAndValues...),
		ResponseTime: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "response_time",
			Help:      "Round trip time of successful requests in seconds.",
			Buckets:   stdprometheus.ExponentialBuckets(0.005, 2, 14),
		}, kindLabels).With(labelsAndValues...),
		PendingRequests: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "pending_requests",
			Help:      "Number of requests waiting for a response.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Requests:             discard.NewCounter(),
		Responses:            discard.NewCounter(),
		Timeouts:             discard.NewCounter(),
		ValidationFailures:   discard.NewCounter(),
		PeerLost:             discard.NewCounter(),
		UnsolicitedResponses: discard.NewCounter(),
		ItemsReceived:        discard.NewCounter(),
		ResponseTime:         discard.NewHistogram(),
		PendingRequests:      discard.NewGauge(),
	}
}
