package httpapi

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the engine's Prometheus collectors, registered once per
// process by noc-api and shared across its HTTP handlers.
type Metrics struct {
	DiscoveryJobsStarted   prometheus.Counter
	DiscoveryJobsCompleted prometheus.Counter
	DiscoveryJobsFailed    prometheus.Counter

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	CommandOutcomes *prometheus.CounterVec

	WorkerTasksInFlight prometheus.Gauge
}

// NewMetrics registers every collector against reg and returns the handle.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DiscoveryJobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "noc_discovery_jobs_started_total",
			Help: "Discovery jobs dispatched via the async worker path.",
		}),
		DiscoveryJobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "noc_discovery_jobs_completed_total",
			Help: "Discovery jobs that reached a completed terminal state.",
		}),
		DiscoveryJobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "noc_discovery_jobs_failed_total",
			Help: "Discovery jobs that reached a failed or cancelled terminal state.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "noc_cache_hits_total",
			Help: "JSON-blob cache reads served from a still-valid entry.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "noc_cache_misses_total",
			Help: "JSON-blob cache reads that required a fresh device command.",
		}),
		CommandOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "noc_command_outcomes_total",
			Help: "SSH command outcomes by error kind (kind=\"\" for success).",
		}, []string{"kind"}),
		WorkerTasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "noc_worker_tasks_in_flight",
			Help: "Discovery child tasks currently being processed by this worker.",
		}),
	}
	reg.MustRegister(
		m.DiscoveryJobsStarted, m.DiscoveryJobsCompleted, m.DiscoveryJobsFailed,
		m.CacheHits, m.CacheMisses, m.CommandOutcomes, m.WorkerTasksInFlight,
	)
	return m
}
