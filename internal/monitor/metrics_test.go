package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apiv1 "github.com/fyrsmithlabs/tracelens/pkg/api/v1"
)

const sampleMetrics = `# HELP tracelens_analysis_requests_total Analysis requests by outcome.
# TYPE tracelens_analysis_requests_total counter
tracelens_analysis_requests_total{outcome="completed"} 40
tracelens_analysis_requests_total{outcome="rejected"} 3
tracelens_analysis_requests_total{outcome="system_error"} 1
# HELP tracelens_analysis_rejections_total Rejected traces by reason.
# TYPE tracelens_analysis_rejections_total counter
tracelens_analysis_rejections_total{reason="EmptyTrace"} 2
tracelens_analysis_rejections_total{reason="InvalidTrace"} 1
# HELP tracelens_analysis_stage_fallbacks_total Stages that failed and returned their fallback value.
# TYPE tracelens_analysis_stage_fallbacks_total counter
tracelens_analysis_stage_fallbacks_total{stage="search"} 4
tracelens_analysis_stage_fallbacks_total{stage="advise"} 2
# HELP tracelens_analysis_duration_seconds Time from validation to a finished record, excluding persistence.
# TYPE tracelens_analysis_duration_seconds histogram
tracelens_analysis_duration_seconds_bucket{le="1"} 30
tracelens_analysis_duration_seconds_bucket{le="+Inf"} 41
tracelens_analysis_duration_seconds_sum 20.5
tracelens_analysis_duration_seconds_count 41
# HELP tracelens_persistence_writes_total Total number of analysis record writes
# TYPE tracelens_persistence_writes_total counter
tracelens_persistence_writes_total{result="success",target="local"} 41
tracelens_persistence_writes_total{result="success",target="remote"} 38
tracelens_persistence_writes_total{result="skipped",target="remote"} 3
# HELP tracelens_index_rebuilds_total Total number of index rebuilds
# TYPE tracelens_index_rebuilds_total counter
tracelens_index_rebuilds_total{result="success"} 2
# HELP go_goroutines Number of goroutines that currently exist.
# TYPE go_goroutines gauge
go_goroutines 17
# HELP process_resident_memory_bytes Resident memory size in bytes.
# TYPE process_resident_memory_bytes gauge
process_resident_memory_bytes 2.5165824e+07
`

// newTracelensServer fakes the health and metrics endpoints.
func newTracelensServer(t *testing.T, metricsStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(apiv1.HealthResponse{
			Status:       apiv1.StatusHealthy,
			Version:      "1.2.3",
			IndexEntries: 12,
			Dependencies: apiv1.HealthDependencies{RemoteStore: true},
		})
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if metricsStatus != http.StatusOK {
			w.WriteHeader(metricsStatus)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(sampleMetrics))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestNewMetricsClient(t *testing.T) {
	client := NewMetricsClient("http://localhost:8001/")
	assert.Equal(t, "http://localhost:8001", client.baseURL)
	assert.NotNil(t, client.client)
}

func TestMetricsClient_Health(t *testing.T) {
	server := newTracelensServer(t, http.StatusOK)
	client := NewMetricsClient(server.URL)

	health, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, apiv1.StatusHealthy, health.Status)
	assert.Equal(t, 12, health.IndexEntries)
	assert.True(t, health.Dependencies.RemoteStore)
}

func TestMetricsClient_Health_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewMetricsClient(server.URL).Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestMetricsClient_Snapshot(t *testing.T) {
	server := newTracelensServer(t, http.StatusOK)
	client := NewMetricsClient(server.URL)

	snap, err := client.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, apiv1.StatusHealthy, snap.Status)
	assert.Equal(t, "1.2.3", snap.Version)
	assert.True(t, snap.HasMetrics)
	assert.NoError(t, snap.MetricsErr)

	assert.Equal(t, 40.0, snap.Analyses["completed"])
	assert.Equal(t, 3.0, snap.Analyses["rejected"])
	assert.Equal(t, 3.0, total(snap.Rejections))
	assert.Equal(t, map[string]float64{"search": 4, "advise": 2}, snap.Fallbacks)
	assert.Equal(t, 41.0, snap.LocalWrites["success"])
	assert.Equal(t, 38.0, snap.RemoteWrites["success"])
	assert.Equal(t, 3.0, snap.RemoteWrites["skipped"])
	assert.Equal(t, 2.0, snap.Rebuilds["success"])
	assert.InDelta(t, 20.5, snap.DurationSum, 1e-9)
	assert.Equal(t, 41.0, snap.DurationCount)
	assert.Equal(t, 17, snap.Goroutines)
	assert.Equal(t, uint64(25165824), snap.MemoryBytes)
}

func TestMetricsClient_Snapshot_MetricsUnavailable(t *testing.T) {
	server := newTracelensServer(t, http.StatusNotFound)
	client := NewMetricsClient(server.URL)

	snap, err := client.Snapshot(context.Background())
	require.NoError(t, err, "health alone is enough for a snapshot")
	assert.False(t, snap.HasMetrics)
	assert.Error(t, snap.MetricsErr)
	assert.Equal(t, 12, snap.IndexEntries)
}

func TestMetricsClient_Snapshot_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewMetricsClient(url).Snapshot(context.Background())
	assert.Error(t, err)
}
