package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	apiv1 "github.com/fyrsmithlabs/tracelens/pkg/api/v1"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
)

// Model is the bubbletea dashboard model.
type Model struct {
	serverURL  string
	interval   time.Duration
	fetch      func(ctx context.Context) (MetricsSnapshot, error)
	lastUpdate time.Time
	metrics    MetricsSnapshot
	err        error
	quitting   bool

	fallbackProgress progress.Model
	memoryProgress   progress.Model
}

// MetricsSnapshot holds one poll of the server.
type MetricsSnapshot struct {
	Status       string
	Version      string
	IndexEntries int
	RemoteStore  bool

	// HasMetrics is false when /metrics could not be read.
	HasMetrics bool
	MetricsErr error

	Analyses      map[string]float64 // by outcome
	Rejections    map[string]float64 // by reason
	Fallbacks     map[string]float64 // by stage
	Rebuilds      map[string]float64 // by result
	LocalWrites   map[string]float64 // by result
	RemoteWrites  map[string]float64 // by result
	DurationSum   float64
	DurationCount float64
	Goroutines    int
	MemoryBytes   uint64

	// Derived between polls.
	AnalysisRate    float64 // per minute
	AvgLatency      float64 // seconds, over the last interval
	RateHistory     []float64
	LatencyHistory  []float64
	FallbackHistory []float64
	MemoryMax       uint64
}

// Lipgloss styles (k9s-inspired color scheme)
var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

// NewModel creates a dashboard polling the server at serverURL.
func NewModel(serverURL string, interval time.Duration) Model {
	client := NewMetricsClient(serverURL)
	return newModel(serverURL, interval, client.Snapshot)
}

func newModel(serverURL string, interval time.Duration, fetch func(context.Context) (MetricsSnapshot, error)) Model {
	return Model{
		serverURL: serverURL,
		interval:  interval,
		fetch:     fetch,
		fallbackProgress: progress.New(
			progress.WithGradient("#00ff00", "#ff0000"),
			progress.WithWidth(40),
		),
		memoryProgress: progress.New(
			progress.WithGradient("#00ff00", "#ffff00"),
			progress.WithWidth(40),
		),
		metrics: MetricsSnapshot{
			RateHistory:     make([]float64, 0, historySize),
			LatencyHistory:  make([]float64, 0, historySize),
			FallbackHistory: make([]float64, 0, historySize),
			MemoryMax:       512 * 1024 * 1024,
		},
	}
}

// getStatusBadge renders the server status reported by /health.
func getStatusBadge(status string) string {
	switch status {
	case apiv1.StatusHealthy:
		return healthyStyle.Render("✓ HEALTHY")
	case apiv1.StatusDegraded:
		return warningStyle.Render("⚠ DEGRADED")
	}
	return errorStyle.Render("✗ " + strings.ToUpper(status))
}

// getFallbackBadge grades the share of analyses that hit a stage fallback.
func getFallbackBadge(ratio float64) string {
	if ratio < 0.05 {
		return healthyStyle.Render("[✓]")
	} else if ratio < 0.25 {
		return warningStyle.Render("[⚠]")
	}
	return errorStyle.Render("[✗]")
}

func getRemoteBadge(up bool) string {
	if up {
		return healthyStyle.Render("[✓] available")
	}
	return warningStyle.Render("[⚠] unavailable")
}

// appendToHistory appends a value to history, maintaining max size
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

// createSparkline creates a sparkline chart from historical data
func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}
	spark.Draw()

	return sparklineStyle.Render(spark.View())
}

// Message types
type tickMsg time.Time
type metricsMsg MetricsSnapshot
type errMsg error

// Init starts the first fetch and the refresh ticker.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.interval),
		fetchMetrics(m.fetch),
	)
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchMetrics(fetch func(context.Context) (MetricsSnapshot, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		snap, err := fetch(ctx)
		if err != nil {
			return errMsg(err)
		}
		return metricsMsg(snap)
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetchMetrics(m.fetch)
		}

	case tickMsg:
		return m, tea.Batch(
			tick(m.interval),
			fetchMetrics(m.fetch),
		)

	case metricsMsg:
		now := time.Now()
		m.metrics = m.advance(MetricsSnapshot(msg), now)
		m.lastUpdate = now
		m.err = nil
		return m, nil

	case errMsg:
		m.err = error(msg)
		return m, nil
	}

	return m, nil
}

// advance derives rates from the previous poll and carries history forward.
func (m Model) advance(next MetricsSnapshot, now time.Time) MetricsSnapshot {
	prev := m.metrics
	next.RateHistory = prev.RateHistory
	next.LatencyHistory = prev.LatencyHistory
	next.FallbackHistory = prev.FallbackHistory
	next.MemoryMax = prev.MemoryMax
	if next.MemoryBytes > next.MemoryMax {
		next.MemoryMax = next.MemoryBytes
	}

	if !next.HasMetrics {
		return next
	}

	// Rates need two polls with metrics; counters that went backwards mean
	// the server restarted, so that interval is skipped.
	if prev.HasMetrics && !m.lastUpdate.IsZero() {
		elapsed := now.Sub(m.lastUpdate).Minutes()
		done := next.DurationCount - prev.DurationCount
		if elapsed > 0 && done >= 0 {
			next.AnalysisRate = done / elapsed
			if done > 0 {
				next.AvgLatency = (next.DurationSum - prev.DurationSum) / done
			}
			next.RateHistory = appendToHistory(next.RateHistory, next.AnalysisRate)
			next.LatencyHistory = appendToHistory(next.LatencyHistory, next.AvgLatency*1000)
			next.FallbackHistory = appendToHistory(next.FallbackHistory, total(next.Fallbacks)-total(prev.Fallbacks))
		}
	}
	return next
}

// View renders the dashboard
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.renderError()
	}
	return m.renderDashboard()
}

func (m Model) renderError() string {
	header := headerStyle.Render("tracelens Monitor")

	var content string
	content += "\n"
	content += errorStyle.Render("⚠ Cannot reach tracelens server") + "\n"
	content += "\n"
	content += dimStyle.Render("URL: ") + valueStyle.Render(m.serverURL) + "\n"
	content += dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n"
	content += "\n"
	content += dimStyle.Render("Start the server with: tracelens serve") + "\n"
	content += "\n"
	content += footerStyle.Render("[q] quit  [r] retry") + "\n"

	return containerStyle.Render(header + "\n" + content)
}

func (m Model) renderDashboard() string {
	var content string
	s := m.metrics

	lastUpdateStr := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdateStr = m.lastUpdate.Format("3:04:05 PM")
	}

	content += headerStyle.Render(" tracelens Monitor ") + "\n"
	headerLine := fmt.Sprintf("%s   %s   %s",
		getStatusBadge(s.Status),
		dimStyle.Render("Version:"),
		valueStyle.Render(orDash(s.Version)))
	content += headerLine + "   " + dimStyle.Render(lastUpdateStr) + "\n"

	content += "\n" + sectionStyle.Render("┃ Dependencies") + "\n"
	content += labelStyle.Render("  Remote store: ") + getRemoteBadge(s.RemoteStore) + "\n"
	content += labelStyle.Render("  Index entries: ") + valueStyle.Render(fmt.Sprintf("%d", s.IndexEntries)) + "\n"

	if !s.HasMetrics {
		content += "\n" + warningStyle.Render("  metrics unavailable")
		if s.MetricsErr != nil {
			content += dimStyle.Render(": " + s.MetricsErr.Error())
		}
		content += "\n"
		return containerStyle.Render(content + m.renderFooter())
	}

	completed := total(s.Analyses) - s.Analyses["rejected"]
	fallbacks := total(s.Fallbacks)
	fallbackRatio := 0.0
	if completed > 0 {
		fallbackRatio = fallbacks / completed
		if fallbackRatio > 1 {
			fallbackRatio = 1
		}
	}

	content += "\n" + sectionStyle.Render("┃ Analyses") + "\n"
	content += labelStyle.Render("  Rate: ") +
		valueStyle.Render(FormatRate(s.AnalysisRate)) +
		"   " + createSparkline(s.RateHistory) + "\n"
	content += labelStyle.Render("  Latency (avg): ") +
		valueStyle.Render(FormatLatency(s.AvgLatency)) +
		"   " + createSparkline(s.LatencyHistory) + "\n"
	content += labelStyle.Render("  Completed: ") + valueStyle.Render(fmt.Sprintf("%.0f", completed)) +
		dimStyle.Render(fmt.Sprintf("  (system errors %.0f)", s.Analyses["system_error"])) + "\n"
	content += labelStyle.Render("  Rejected: ") + valueStyle.Render(fmt.Sprintf("%.0f", total(s.Rejections))) +
		dimStyle.Render(formatBreakdown(s.Rejections)) + "\n"

	content += "\n" + sectionStyle.Render("┃ Stage Fallbacks") + "\n"
	content += labelStyle.Render("  Total: ") + valueStyle.Render(fmt.Sprintf("%.0f", fallbacks)) +
		" " + getFallbackBadge(fallbackRatio) +
		"   " + createSparkline(s.FallbackHistory) + "\n"
	content += labelStyle.Render("  Share: ") +
		m.fallbackProgress.ViewAs(fallbackRatio) +
		" " + dimStyle.Render(FormatPercentage(fallbackRatio)) + "\n"
	if len(s.Fallbacks) > 0 {
		content += labelStyle.Render("  By stage:") + dimStyle.Render(formatBreakdown(s.Fallbacks)) + "\n"
	}

	content += "\n" + sectionStyle.Render("┃ Persistence") + "\n"
	content += labelStyle.Render("  Local: ") + valueStyle.Render(fmt.Sprintf("%.0f ok", s.LocalWrites["success"])) +
		dimStyle.Render(fmt.Sprintf("  %.0f failed", s.LocalWrites["error"])) + "\n"
	content += labelStyle.Render("  Remote: ") + valueStyle.Render(fmt.Sprintf("%.0f ok", s.RemoteWrites["success"])) +
		dimStyle.Render(fmt.Sprintf("  %.0f failed  %.0f skipped", s.RemoteWrites["error"], s.RemoteWrites["skipped"])) + "\n"
	content += labelStyle.Render("  Index rebuilds: ") + valueStyle.Render(fmt.Sprintf("%.0f", s.Rebuilds["success"])) +
		dimStyle.Render(fmt.Sprintf("  %.0f failed", s.Rebuilds["error"])) + "\n"

	content += "\n" + sectionStyle.Render("┃ System") + "\n"
	memoryPercent := 0.0
	if s.MemoryMax > 0 {
		memoryPercent = float64(s.MemoryBytes) / float64(s.MemoryMax)
	}
	content += labelStyle.Render("  Memory: ") +
		m.memoryProgress.ViewAs(memoryPercent) +
		" " + dimStyle.Render(FormatMemory(s.MemoryBytes)) + "\n"
	content += labelStyle.Render("  Goroutines: ") +
		valueStyle.Render(fmt.Sprintf("%d", s.Goroutines)) + "\n"

	return containerStyle.Render(content + m.renderFooter())
}

func (m Model) renderFooter() string {
	return "\n" + footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval))
}

// formatBreakdown renders "  (a 1, b 2)" with keys sorted.
func formatBreakdown(values map[string]float64) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %.0f", k, values[k]))
	}
	return "  (" + strings.Join(parts, ", ") + ")"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
