/*
Package metrics exposes Prometheus instrumentation for cluster lifecycle
operations.

A test orchestrator that injects failures needs a quantitative view of
what it actually did: how many nodes were started and killed, how often a
graceful stop escalated to SIGKILL, how long readiness waits took. All
metrics are package-level collectors registered once at init, matching
the usual var-block style, and served by Handler() wherever the embedding
process mounts it.

# Metrics

	minicluster_clusters_active              gauge
	minicluster_nodes_total                  gauge   {role, state}
	minicluster_node_starts_total            counter {role}
	minicluster_node_stops_total             counter {role}
	minicluster_node_restarts_total          counter {role}
	minicluster_forced_kills_total           counter
	minicluster_reaped_processes_total       counter
	minicluster_readiness_wait_seconds       histogram {direction}
	minicluster_build_duration_seconds       histogram

The readiness histogram is labeled by direction ("open" for startup
waits, "closed" for death confirmation) since the two have very different
distributions: startup is dominated by process boot time, death by signal
delivery latency.

# Usage Examples

## Record a Lifecycle Operation

	metrics.NodeStartsTotal.WithLabelValues("master").Inc()
	metrics.NodesTotal.WithLabelValues("master", "running").Inc()

## Time a Readiness Wait

	timer := metrics.NewTimer()
	err := prober.WaitForState(ctx, addr, true, deadline)
	timer.ObserveDurationVec(metrics.ReadinessWaitSeconds, "open")

## Serve the Endpoint

	mux.Handle("/metrics", metrics.Handler())

# See Also

  - pkg/cluster - Increments lifecycle counters and gauges
  - pkg/api - Mounts Handler() on the status server
*/
package metrics
