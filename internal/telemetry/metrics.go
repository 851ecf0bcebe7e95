package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "storefront"

// Metrics holds the ingress pipeline collectors.
type Metrics struct {
	outcomes      *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	webhookEvents *prometheus.CounterVec
	gatherer      prometheus.Gatherer
}

// NewMetrics registers the pipeline collectors on reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the default registry.
func NewMetrics(reg *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "outcomes_total",
			Help:      "Terminal pipeline decisions by outcome and error kind.",
		}, []string{"outcome", "kind"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Latency of each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"stage"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Payment webhook deliveries by result.",
		}, []string{"result"}),
		gatherer: reg,
	}

	for _, c := range []prometheus.Collector{m.outcomes, m.stageDuration, m.webhookEvents} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// CountOutcome records a terminal decision. kind is empty for successful
// dispatches and stage-built responses and is recorded as "none".
func (m *Metrics) CountOutcome(outcome, kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "none"
	}
	m.outcomes.WithLabelValues(outcome, kind).Inc()
}

// CountWebhook records a webhook delivery result (accepted, duplicate, rejected).
func (m *Metrics) CountWebhook(result string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(result).Inc()
}

// Handler serves the Prometheus exposition for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
