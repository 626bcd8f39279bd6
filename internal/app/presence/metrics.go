package presence

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "realchat"

// Metrics exposes presence counters and registry gauges to Prometheus.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	transitions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	failures    *prometheus.CounterVec
}

// NewMetrics registers the presence metrics on reg. The gauges read the
// registry at scrape time.
func NewMetrics(reg prometheus.Registerer, registry *Registry) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "presence",
			Name:      "transitions_total",
			Help:      "Online/offline edges, by direction.",
		}, []string{"edge"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "presence",
			Name:      "admission_rejections_total",
			Help:      "Join requests rejected before touching the registry, by reason.",
		}, []string{"reason"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "presence",
			Name:      "side_effect_failures_total",
			Help:      "Suppressed persistence or broadcast failures on transition edges.",
		}, []string{"step"}),
	}

	reg.MustRegister(
		m.transitions,
		m.rejections,
		m.failures,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "presence",
			Name:      "online_users",
			Help:      "Users with at least one logical session.",
		}, func() float64 {
			users, _ := registry.Totals()
			return float64(users)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "presence",
			Name:      "sessions",
			Help:      "Open logical sessions across all users.",
		}, func() float64 {
			_, sessions := registry.Totals()
			return float64(sessions)
		}),
	)

	return m
}

func (m *Metrics) transition(edge string) {
	if m != nil {
		m.transitions.WithLabelValues(edge).Inc()
	}
}

func (m *Metrics) rejected(reason string) {
	if m != nil {
		m.rejections.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) failed(step string) {
	if m != nil {
		m.failures.WithLabelValues(step).Inc()
	}
}
