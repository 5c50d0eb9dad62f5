package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/ingestion"
)

const namespace = "telemetry_registry"

//Metrics holds the prometheus collectors of the service
type Metrics struct {
	registry *prometheus.Registry

	reportsAccepted *prometheus.CounterVec
	reportsRejected *prometheus.CounterVec
	probes          *prometheus.CounterVec
}

//New creates the collectors and registers them in a registry of their own
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		reportsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "reports_accepted_total",
			Help:      "Total number of stored reports",
		}, []string{"variant"}),

		reportsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "reports_rejected_total",
			Help:      "Total number of rejected reports",
		}, []string{"variant", "reason"}), // reason: an apperrors type

		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "probing",
			Name:      "group_probes_total",
			Help:      "Total number of group probes by the linking strategy that matched",
		}, []string{"group", "strategy"}), // strategy: none when nothing matched
	}

	m.registry.MustRegister(
		m.reportsAccepted,
		m.reportsRejected,
		m.probes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Accepted(variant ingestion.Variant) {
	m.reportsAccepted.WithLabelValues(string(variant)).Inc()
}

func (m *Metrics) Rejected(variant ingestion.Variant, reason string) {
	m.reportsRejected.WithLabelValues(string(variant), reason).Inc()
}

func (m *Metrics) Probed(group, strategy string) {
	m.probes.WithLabelValues(group, strategy).Inc()
}

//Registry exposes the underlying registry, mostly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

//Handler serves the collected metrics in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
