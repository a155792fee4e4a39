package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/tracelens/internal/monitor"
)

var monitorInterval time.Duration

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8001", "tracelens server URL")
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 5*time.Second, "refresh interval")
}

// monitorCmd shows a live terminal dashboard for a running server.
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live dashboard for a running tracelens server",
	Long: `Poll a running server's /health and /metrics endpoints and render a
terminal dashboard: analysis rate and latency, stage fallbacks, persistence
writes and remote store state.

Keys: q quits, r refreshes immediately.

Examples:
  tracelens monitor
  tracelens monitor --server http://localhost:8080 --interval 2s`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	if monitorInterval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", monitorInterval)
	}

	model := monitor.NewModel(serverURL, monitorInterval)
	program := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithContext(cmd.Context()),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("running dashboard: %w", err)
	}
	return nil
}
