package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics exposes the fabric's Prometheus surface on a
// dedicated (non-default) registry, grounded on
// IAmSoThirsty-Project-AI/octoreflex's internal/observability/metrics.go
// naming convention (orchestrator_<subsystem>_<name>_<unit>) and
// dedicated-registry idiom — the teacher itself has no exported metrics
// surface, only the in-memory AlertChecker kept above.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	RegistrySize        prometheus.Gauge
	QueueDepth          prometheus.Gauge
	TasksCompletedTotal prometheus.Counter
	TasksFailedTotal    prometheus.Counter
	BudgetSpend         *prometheus.GaugeVec
	CacheHitRatio       prometheus.Gauge
}

// NewPrometheusMetrics creates and registers the fabric's Prometheus
// metrics on a fresh registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()

	m := &PrometheusMetrics{
		registry: reg,

		RegistrySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "orchestrator",
			Subsystem: "registry",
			Name:      "agents_live",
			Help:      "Current number of live agents in the Agent Registry.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "orchestrator",
			Subsystem: "dispatch",
			Name:      "queue_depth",
			Help:      "Current number of non-terminal tasks across all tracked dispatches.",
		}),
		TasksCompletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "dispatch",
			Name:      "tasks_completed_total",
			Help:      "Total tasks completed successfully.",
		}),
		TasksFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "dispatch",
			Name:      "tasks_failed_total",
			Help:      "Total tasks that reached a terminal Failed state.",
		}),
		BudgetSpend: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "orchestrator",
			Subsystem: "project",
			Name:      "budget_spent_ratio",
			Help:      "Per-project spent/total budget utilization ratio.",
		}, []string{"project_id"}),
		CacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "orchestrator",
			Subsystem: "costguard",
			Name:      "cache_hit_ratio",
			Help:      "Cost Guard cache hit ratio over the observed cost log window.",
		}),
	}

	reg.MustRegister(
		m.RegistrySize,
		m.QueueDepth,
		m.TasksCompletedTotal,
		m.TasksFailedTotal,
		m.BudgetSpend,
		m.CacheHitRatio,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler returns the promhttp handler serving this registry's
// exposition format, to be mounted at GET /metrics by the Facade.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError})
}
