package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricSessionsStarted   = "climatedash_sessions_started_total"
	MetricSessionsEnded     = "climatedash_sessions_ended_total"
	MetricTrackingEvents    = "climatedash_tracking_events_total"
	MetricTrackingRejection = "climatedash_tracking_rejections_total"
)

const (
	reasonValidation = "validation"
	reasonNotFound   = "not_found"
	reasonStorage    = "storage"
)

// Metrics holds the Prometheus collectors for the ingestion path.
// The collectors are not registered until Register is called.
type Metrics struct {
	sessionsStarted *prometheus.CounterVec
	sessionsEnded   prometheus.Counter
	events          *prometheus.CounterVec
	rejections      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		sessionsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSessionsStarted,
				Help: "Total number of visitor sessions started by device class",
			},
			[]string{"device_type"},
		),
		sessionsEnded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricSessionsEnded,
				Help: "Total number of visitor sessions ended",
			},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricTrackingEvents,
				Help: "Total number of tracking events recorded by kind",
			},
			[]string{"kind"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricTrackingRejection,
				Help: "Total number of tracking calls rejected by reason",
			},
			[]string{"reason"},
		),
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) IncSessionsStarted(deviceType string) {
	m.sessionsStarted.WithLabelValues(deviceType).Inc()
}

func (m *Metrics) IncSessionsEnded() {
	m.sessionsEnded.Inc()
}

func (m *Metrics) IncEvents(kind string) {
	m.events.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncRejections(reason string) {
	m.rejections.WithLabelValues(reason).Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.sessionsStarted,
		m.sessionsEnded,
		m.events,
		m.rejections,
	}
}
