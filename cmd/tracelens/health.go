package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	apiv1 "github.com/fyrsmithlabs/tracelens/pkg/api/v1"
)

func init() {
	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8001", "tracelens server URL")
}

// healthCmd checks a running server.
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check tracelens server health",
	Long: `Check the health status of a running tracelens server.

A degraded status means the remote store is unreachable or not configured;
analyses are still served and recorded to the local log.

Examples:
  tracelens health
  tracelens health --server http://localhost:8080`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func runHealth(cmd *cobra.Command, _ []string) error {
	url := fmt.Sprintf("%s/health", serverURL)

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var health apiv1.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Server Status: %s\n", health.Status)
	fmt.Fprintf(out, "Remote Store:  %s\n", availability(health.Dependencies.RemoteStore))
	fmt.Fprintf(out, "Index Entries: %d\n", health.IndexEntries)
	if health.Version != "" {
		fmt.Fprintf(out, "Version:       %s\n", health.Version)
	}
	return nil
}

func availability(up bool) string {
	if up {
		return "available"
	}
	return "unavailable"
}
