package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cuemby/minicluster/pkg/metrics"
	"github.com/cuemby/minicluster/pkg/types"
)

// Snapshotter is the read-only cluster view the status server exposes.
// cluster.Cluster satisfies it; tests substitute fakes.
type Snapshotter interface {
	ID() string
	ScratchDir() string
	Snapshot() []types.NodeStatus
}

// StatusServer provides HTTP debug endpoints for a running cluster
type StatusServer struct {
	cluster Snapshotter
	mux     *http.ServeMux
	started time.Time
}

// NewStatusServer creates a status HTTP server over the given cluster view
func NewStatusServer(cluster Snapshotter) *StatusServer {
	mux := http.NewServeMux()
	ss := &StatusServer{
		cluster: cluster,
		mux:     mux,
		started: time.Now(),
	}

	// Register endpoints
	mux.HandleFunc("/statusz", ss.statuszHandler)
	mux.HandleFunc("/health", ss.healthHandler)
	mux.Handle("/metrics", metrics.Handler())

	return ss
}

// Start starts the status HTTP server
func (ss *StatusServer) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      ss.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	UptimeSeconds float64   `json:"uptime_seconds"`
}

// StatuszResponse represents the cluster status response
type StatuszResponse struct {
	ClusterID  string             `json:"cluster_id"`
	Timestamp  time.Time          `json:"timestamp"`
	ScratchDir string             `json:"scratch_dir,omitempty"`
	NodeCount  int                `json:"node_count"`
	ByState    map[string]int     `json:"by_state"`
	Nodes      []types.NodeStatus `json:"nodes"`
}

// healthHandler implements the /health endpoint
// This is a simple liveness check - returns 200 if the supervisor is alive
func (ss *StatusServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:        "healthy",
		Timestamp:     time.Now(),
		UptimeSeconds: time.Since(ss.started).Seconds(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// statuszHandler implements the /statusz endpoint: one JSON document
// describing every node the supervisor currently tracks
func (ss *StatusServer) statuszHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if ss.cluster == nil {
		http.Error(w, "No cluster attached", http.StatusServiceUnavailable)
		return
	}

	nodes := ss.cluster.Snapshot()
	byState := make(map[string]int)
	for _, n := range nodes {
		byState[string(n.State)]++
	}

	response := StatuszResponse{
		ClusterID:  ss.cluster.ID(),
		Timestamp:  time.Now(),
		ScratchDir: ss.cluster.ScratchDir(),
		NodeCount:  len(nodes),
		ByState:    byState,
		Nodes:      nodes,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// GetHandler returns the HTTP handler for embedding in other servers
func (ss *StatusServer) GetHandler() http.Handler {
	return ss.mux
}
