package monitor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apiv1 "github.com/fyrsmithlabs/tracelens/pkg/api/v1"
)

func staticFetch(snap MetricsSnapshot, err error) func(context.Context) (MetricsSnapshot, error) {
	return func(context.Context) (MetricsSnapshot, error) {
		return snap, err
	}
}

func sampleSnapshot(durationCount, durationSum float64, fallbacks map[string]float64) MetricsSnapshot {
	return MetricsSnapshot{
		Status:        apiv1.StatusHealthy,
		Version:       "1.2.3",
		IndexEntries:  12,
		RemoteStore:   true,
		HasMetrics:    true,
		Analyses:      map[string]float64{"completed": durationCount, "rejected": 2},
		Rejections:    map[string]float64{"EmptyTrace": 2},
		Fallbacks:     fallbacks,
		LocalWrites:   map[string]float64{"success": durationCount},
		RemoteWrites:  map[string]float64{"success": durationCount},
		Rebuilds:      map[string]float64{},
		DurationSum:   durationSum,
		DurationCount: durationCount,
		Goroutines:    42,
		MemoryBytes:   24 * 1024 * 1024,
	}
}

func TestNewModel(t *testing.T) {
	model := NewModel("http://localhost:8001", 5*time.Second)
	assert.Equal(t, "http://localhost:8001", model.serverURL)
	assert.Equal(t, 5*time.Second, model.interval)
	assert.NotNil(t, model.fetch)
	assert.False(t, model.quitting)
}

func TestModel_Init(t *testing.T) {
	model := NewModel("http://localhost:8001", 5*time.Second)
	assert.NotNil(t, model.Init())
}

func TestModel_Update_QuitKey(t *testing.T) {
	model := NewModel("http://localhost:8001", 5*time.Second)

	updated, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})

	m := updated.(Model)
	assert.True(t, m.quitting)
	assert.NotNil(t, cmd)
	assert.Empty(t, m.View())
}

func TestModel_Update_RefreshKey(t *testing.T) {
	snap := sampleSnapshot(1, 0.5, nil)
	model := newModel("http://test", time.Second, staticFetch(snap, nil))

	updated, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})

	m := updated.(Model)
	assert.False(t, m.quitting)
	require.NotNil(t, cmd)
	msg := cmd()
	got, ok := msg.(metricsMsg)
	require.True(t, ok, "refresh should fetch a snapshot, got %T", msg)
	assert.Equal(t, "1.2.3", got.Version)
}

func TestModel_Update_FetchError(t *testing.T) {
	model := newModel("http://test", time.Second, staticFetch(MetricsSnapshot{}, errors.New("connection refused")))

	msg := fetchMetrics(model.fetch)()
	updated, cmd := model.Update(msg)

	m := updated.(Model)
	require.Error(t, m.err)
	assert.Contains(t, m.err.Error(), "connection refused")
	assert.Nil(t, cmd)
}

func TestModel_Update_TickMsg(t *testing.T) {
	model := NewModel("http://localhost:8001", 5*time.Second)

	updated, cmd := model.Update(tickMsg(time.Now()))

	assert.False(t, updated.(Model).quitting)
	assert.NotNil(t, cmd)
}

func TestModel_Update_MetricsMsgClearsError(t *testing.T) {
	model := NewModel("http://localhost:8001", 5*time.Second)
	model.err = fmt.Errorf("earlier failure")

	updated, cmd := model.Update(metricsMsg(sampleSnapshot(10, 5, nil)))

	m := updated.(Model)
	assert.NoError(t, m.err)
	assert.False(t, m.lastUpdate.IsZero())
	assert.Equal(t, 12, m.metrics.IndexEntries)
	assert.Nil(t, cmd)
}

func TestModel_Advance(t *testing.T) {
	model := NewModel("http://localhost:8001", 5*time.Second)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	// First poll has nothing to diff against.
	model.metrics = model.advance(sampleSnapshot(10, 5, map[string]float64{"search": 1}), start)
	model.lastUpdate = start
	assert.Zero(t, model.metrics.AnalysisRate)
	assert.Empty(t, model.metrics.RateHistory)

	// 30 analyses in 30 seconds taking 6 seconds in total.
	next := start.Add(30 * time.Second)
	model.metrics = model.advance(sampleSnapshot(40, 11, map[string]float64{"search": 3}), next)
	model.lastUpdate = next

	assert.InDelta(t, 60.0, model.metrics.AnalysisRate, 1e-9)
	assert.InDelta(t, 0.2, model.metrics.AvgLatency, 1e-9)
	assert.Equal(t, []float64{60}, model.metrics.RateHistory)
	assert.Equal(t, []float64{2}, model.metrics.FallbackHistory)
	require.Len(t, model.metrics.LatencyHistory, 1)
	assert.InDelta(t, 200.0, model.metrics.LatencyHistory[0], 1e-9)
}

func TestModel_Advance_ServerRestart(t *testing.T) {
	model := NewModel("http://localhost:8001", 5*time.Second)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	model.metrics = model.advance(sampleSnapshot(100, 50, nil), start)
	model.lastUpdate = start

	model.metrics = model.advance(sampleSnapshot(3, 1, nil), start.Add(10*time.Second))

	assert.Zero(t, model.metrics.AnalysisRate)
	assert.Empty(t, model.metrics.RateHistory)
}

func TestAppendToHistory(t *testing.T) {
	var history []float64
	for i := 0; i < historySize+5; i++ {
		history = appendToHistory(history, float64(i))
	}
	require.Len(t, history, historySize)
	assert.Equal(t, 5.0, history[0])
	assert.Equal(t, float64(historySize+4), history[len(history)-1])
}

func TestGetStatusBadge(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{apiv1.StatusHealthy, "HEALTHY"},
		{apiv1.StatusDegraded, "DEGRADED"},
		{"down", "DOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Contains(t, getStatusBadge(tt.status), tt.want)
		})
	}
}

func TestFormatBreakdown(t *testing.T) {
	assert.Empty(t, formatBreakdown(nil))
	assert.Equal(t, "  (advise 2, search 4)", formatBreakdown(map[string]float64{"search": 4, "advise": 2}))
}

func TestModel_View_WithMetrics(t *testing.T) {
	model := NewModel("http://localhost:8001", 5*time.Second)
	model.metrics = sampleSnapshot(40, 8, map[string]float64{"search": 4})
	model.metrics.AnalysisRate = 45.7
	model.metrics.AvgLatency = 0.0123
	model.lastUpdate = time.Date(2024, 1, 1, 12, 34, 56, 0, time.UTC)

	view := model.View()

	assert.Contains(t, view, "tracelens Monitor")
	assert.Contains(t, view, "HEALTHY")
	assert.Contains(t, view, "1.2.3")
	assert.Contains(t, view, "12:34:56")
	assert.Contains(t, view, "Analyses")
	assert.Contains(t, view, "45.7/min")
	assert.Contains(t, view, "12.3ms")
	assert.Contains(t, view, "Stage Fallbacks")
	assert.Contains(t, view, "search 4")
	assert.Contains(t, view, "Persistence")
	assert.Contains(t, view, "24.0 MB")
	assert.Contains(t, view, "[q]")
	assert.Contains(t, view, "[r]")
}

func TestModel_View_WithoutMetrics(t *testing.T) {
	model := NewModel("http://localhost:8001", 5*time.Second)
	model.metrics = MetricsSnapshot{
		Status:       apiv1.StatusDegraded,
		IndexEntries: 3,
		MetricsErr:   errors.New("/metrics returned status 404"),
	}

	view := model.View()

	assert.Contains(t, view, "DEGRADED")
	assert.Contains(t, view, "unavailable")
	assert.Contains(t, view, "metrics unavailable")
	assert.NotContains(t, view, "Stage Fallbacks")
}

func TestModel_View_WithError(t *testing.T) {
	model := NewModel("http://localhost:8001", 5*time.Second)
	model.err = fmt.Errorf("connection refused")

	view := model.View()

	assert.Contains(t, view, "Cannot reach tracelens server")
	assert.Contains(t, view, "connection refused")
	assert.Contains(t, view, "http://localhost:8001")
	assert.Contains(t, view, "[q]")
}
