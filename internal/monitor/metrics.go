package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"

	apiv1 "github.com/fyrsmithlabs/tracelens/pkg/api/v1"
)

// Metric families scraped from the server's /metrics endpoint.
const (
	metricAnalyses       = "tracelens_analysis_requests_total"
	metricRejections     = "tracelens_analysis_rejections_total"
	metricFallbacks      = "tracelens_analysis_stage_fallbacks_total"
	metricDuration       = "tracelens_analysis_duration_seconds"
	metricWrites         = "tracelens_persistence_writes_total"
	metricIndexRebuilds  = "tracelens_index_rebuilds_total"
	metricGoroutines     = "go_goroutines"
	metricResidentMemory = "process_resident_memory_bytes"
)

// MetricsClient reads health and Prometheus metrics from a tracelens server.
type MetricsClient struct {
	baseURL string
	client  *http.Client
}

// NewMetricsClient creates a client for the server at baseURL.
func NewMetricsClient(baseURL string) *MetricsClient {
	return &MetricsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Health fetches GET /health.
func (c *MetricsClient) Health(ctx context.Context) (apiv1.HealthResponse, error) {
	var health apiv1.HealthResponse

	resp, err := c.get(ctx, "/health")
	if err != nil {
		return health, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return health, fmt.Errorf("decoding health: %w", err)
	}
	return health, nil
}

// Families fetches GET /metrics and parses the text exposition format.
func (c *MetricsClient) Families(ctx context.Context) (map[string]*dto.MetricFamily, error) {
	resp, err := c.get(ctx, "/metrics")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	parser := expfmt.NewTextParser(model.UTF8Validation)
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing metrics: %w", err)
	}
	return families, nil
}

// Snapshot fetches health and metrics and folds them into one snapshot.
// Metrics are optional: a server without /metrics still yields health.
func (c *MetricsClient) Snapshot(ctx context.Context) (MetricsSnapshot, error) {
	health, err := c.Health(ctx)
	if err != nil {
		return MetricsSnapshot{}, err
	}

	snap := MetricsSnapshot{
		Status:       health.Status,
		Version:      health.Version,
		IndexEntries: health.IndexEntries,
		RemoteStore:  health.Dependencies.RemoteStore,
	}

	families, err := c.Families(ctx)
	if err != nil {
		snap.MetricsErr = err
		return snap, nil
	}
	snap.applyFamilies(families)
	return snap, nil
}

func (c *MetricsClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

func (s *MetricsSnapshot) applyFamilies(families map[string]*dto.MetricFamily) {
	s.Analyses = sumByLabel(families[metricAnalyses], "outcome")
	s.Rejections = sumByLabel(families[metricRejections], "reason")
	s.Fallbacks = sumByLabel(families[metricFallbacks], "stage")
	s.Rebuilds = sumByLabel(families[metricIndexRebuilds], "result")

	// Local and remote writes share one family; keep them apart.
	s.LocalWrites = map[string]float64{}
	s.RemoteWrites = map[string]float64{}
	if fam := families[metricWrites]; fam != nil {
		for _, m := range fam.GetMetric() {
			result := labelValue(m, "result")
			switch labelValue(m, "target") {
			case "local":
				s.LocalWrites[result] += value(m)
			case "remote":
				s.RemoteWrites[result] += value(m)
			}
		}
	}

	if fam := families[metricDuration]; fam != nil && len(fam.GetMetric()) > 0 {
		h := fam.GetMetric()[0].GetHistogram()
		s.DurationSum = h.GetSampleSum()
		s.DurationCount = float64(h.GetSampleCount())
	}

	s.Goroutines = int(gaugeValue(families[metricGoroutines]))
	s.MemoryBytes = uint64(gaugeValue(families[metricResidentMemory]))
	s.HasMetrics = true
}

// sumByLabel totals a counter family, keyed by one label.
func sumByLabel(fam *dto.MetricFamily, label string) map[string]float64 {
	out := map[string]float64{}
	if fam == nil {
		return out
	}
	for _, m := range fam.GetMetric() {
		out[labelValue(m, label)] += value(m)
	}
	return out
}

func gaugeValue(fam *dto.MetricFamily) float64 {
	if fam == nil || len(fam.GetMetric()) == 0 {
		return 0
	}
	return value(fam.GetMetric()[0])
}

func value(m *dto.Metric) float64 {
	switch {
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	case m.GetUntyped() != nil:
		return m.GetUntyped().GetValue()
	}
	return 0
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func total(values map[string]float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum
}
