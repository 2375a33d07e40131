/*
Package api exposes a cluster's state over HTTP for humans and scrapers.

The endpoints are read-only by construction: the server holds only the
Snapshotter view of a cluster, so nothing reachable over HTTP can signal,
restart, or stop a node. Disruption stays in the hands of the test code
that owns the cluster handle.

# Endpoints

  - /statusz - full cluster snapshot as JSON: every node's role, address,
    lifecycle state, PID, restart count, and resource usage
  - /health - supervisor liveness, with uptime
  - /metrics - Prometheus metrics for the whole supervisor

All endpoints accept GET only.

# Usage Example

	server := api.NewStatusServer(c)
	go func() {
		if err := server.Start("127.0.0.1:8090"); err != nil {
			log.Error(err, "Status server stopped")
		}
	}()

# See Also

  - pkg/cluster - Provides the Snapshotter implementation
  - pkg/metrics - The registry behind /metrics
*/
package api
