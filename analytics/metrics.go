package analytics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricQueryDuration = "climatedash_analytics_query_duration_seconds"
	MetricQueryErrors   = "climatedash_analytics_query_errors_total"
)

const (
	QueryAggregate     = "aggregate"
	QuerySessionDetail = "session_detail"
)

// Metrics contains Prometheus metrics for analytics queries.
type Metrics struct {
	queryDuration *prometheus.HistogramVec
	queryErrors   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricQueryDuration,
				Help:    "Histogram of analytics query latency in seconds by query",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"query"},
		),
		queryErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricQueryErrors,
				Help: "Total number of failed analytics queries by query",
			},
			[]string{"query"},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveQuery(query string, seconds float64) {
	m.queryDuration.WithLabelValues(query).Observe(seconds)
}

func (m *Metrics) IncQueryErrors(query string) {
	m.queryErrors.WithLabelValues(query).Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.queryDuration,
		m.queryErrors,
	}
}
