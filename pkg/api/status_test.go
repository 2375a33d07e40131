package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/minicluster/pkg/types"
)

// fakeCluster implements Snapshotter with canned data
type fakeCluster struct {
	id      string
	scratch string
	nodes   []types.NodeStatus
}

func (f *fakeCluster) ID() string { return f.id }

func (f *fakeCluster) ScratchDir() string { return f.scratch }

func (f *fakeCluster) Snapshot() []types.NodeStatus { return f.nodes }

func newFakeCluster() *fakeCluster {
	return &fakeCluster{
		id:      "mc-test1234",
		scratch: "/tmp/minicluster-mc-test1234",
		nodes: []types.NodeStatus{
			{
				Role:      types.NodeRoleMaster,
				Address:   "127.0.0.1:7051",
				State:     types.StateRunning,
				PID:       4242,
				StartedAt: time.Now(),
			},
			{
				Role:     types.NodeRoleWorker,
				Address:  "127.0.0.1:7151",
				State:    types.StateStopped,
				Restarts: 1,
			},
		},
	}
}

// TestStatuszHandler tests the /statusz endpoint
func TestStatuszHandler(t *testing.T) {
	ss := NewStatusServer(newFakeCluster())

	tests := []struct {
		name           string
		method         string
		expectedStatus int
	}{
		{
			name:           "GET request succeeds",
			method:         http.MethodGet,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "POST request fails",
			method:         http.MethodPost,
			expectedStatus: http.StatusMethodNotAllowed,
		},
		{
			name:           "DELETE request fails",
			method:         http.MethodDelete,
			expectedStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/statusz", nil)
			w := httptest.NewRecorder()

			ss.statuszHandler(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

// TestStatuszJSONFormat tests the statusz JSON response format
func TestStatuszJSONFormat(t *testing.T) {
	ss := NewStatusServer(newFakeCluster())

	req := httptest.NewRequest(http.MethodGet, "/statusz", nil)
	w := httptest.NewRecorder()

	ss.statuszHandler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response StatuszResponse
	err := json.NewDecoder(w.Body).Decode(&response)
	assert.NoError(t, err)

	assert.Equal(t, "mc-test1234", response.ClusterID)
	assert.Equal(t, 2, response.NodeCount)
	assert.Len(t, response.Nodes, 2)
	assert.Equal(t, 1, response.ByState["running"])
	assert.Equal(t, 1, response.ByState["stopped"])
	assert.False(t, response.Timestamp.IsZero())

	assert.Equal(t, types.NodeRoleMaster, response.Nodes[0].Role)
	assert.Equal(t, "127.0.0.1:7051", response.Nodes[0].Address)
	assert.Equal(t, 4242, response.Nodes[0].PID)
	assert.Equal(t, 1, response.Nodes[1].Restarts)
}

// TestStatuszNoCluster tests /statusz with no cluster attached
func TestStatuszNoCluster(t *testing.T) {
	ss := NewStatusServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/statusz", nil)
	w := httptest.NewRecorder()

	ss.statuszHandler(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// TestHealthHandler tests the /health endpoint
func TestHealthHandler(t *testing.T) {
	ss := NewStatusServer(newFakeCluster())

	tests := []struct {
		name           string
		method         string
		expectedStatus int
	}{
		{
			name:           "GET request succeeds",
			method:         http.MethodGet,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "POST request fails",
			method:         http.MethodPost,
			expectedStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/health", nil)
			w := httptest.NewRecorder()

			ss.healthHandler(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedStatus == http.StatusOK {
				var response HealthResponse
				err := json.NewDecoder(w.Body).Decode(&response)
				assert.NoError(t, err)
				assert.Equal(t, "healthy", response.Status)
				assert.NotZero(t, response.Timestamp)
			}
		})
	}
}

// TestNewStatusServer tests route registration
func TestNewStatusServer(t *testing.T) {
	ss := NewStatusServer(newFakeCluster())

	assert.NotNil(t, ss)
	assert.NotNil(t, ss.mux)

	tests := []struct {
		path           string
		expectedStatus int
	}{
		{path: "/statusz", expectedStatus: http.StatusOK},
		{path: "/health", expectedStatus: http.StatusOK},
		{path: "/metrics", expectedStatus: http.StatusOK},
		{path: "/nonexistent", expectedStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()

			ss.mux.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code, "Path: %s", tt.path)
		})
	}
}

// TestGetHandler tests the GetHandler method
func TestGetHandler(t *testing.T) {
	ss := NewStatusServer(newFakeCluster())

	handler := ss.GetHandler()
	assert.NotNil(t, handler)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
