package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster metrics
	ClustersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "minicluster_clusters_active",
			Help: "Number of live cluster handles in this process",
		},
	)

	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "minicluster_nodes_total",
			Help: "Number of nodes by role and lifecycle state",
		},
		[]string{"role", "state"},
	)

	// Lifecycle metrics
	NodeStartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minicluster_node_starts_total",
			Help: "Total node processes started by role",
		},
		[]string{"role"},
	)

	NodeStopsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minicluster_node_stops_total",
			Help: "Total node processes stopped by role",
		},
		[]string{"role"},
	)

	NodeRestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minicluster_node_restarts_total",
			Help: "Total node restarts by role",
		},
		[]string{"role"},
	)

	ForcedKillsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "minicluster_forced_kills_total",
			Help: "Total graceful stops that escalated to SIGKILL",
		},
	)

	ReapedProcessesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "minicluster_reaped_processes_total",
			Help: "Total orphaned processes removed by the reaper",
		},
	)

	// Timing metrics
	ReadinessWaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minicluster_readiness_wait_seconds",
			Help:    "Time spent waiting for a port to open or close",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"direction"},
	)

	BuildDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "minicluster_build_duration_seconds",
			Help:    "Time taken to build a full cluster in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ClustersActive)
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(NodeStartsTotal)
	prometheus.MustRegister(NodeStopsTotal)
	prometheus.MustRegister(NodeRestartsTotal)
	prometheus.MustRegister(ForcedKillsTotal)
	prometheus.MustRegister(ReapedProcessesTotal)
	prometheus.MustRegister(ReadinessWaitSeconds)
	prometheus.MustRegister(BuildDurationSeconds)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
