// Tracelens analyzes Python stack traces: it parses frames, classifies the
// terminal error, finds similar historical traces and suggests a fix.
//
// Configuration is loaded from an optional YAML file and TRACELENS_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the HTTP API
//	tracelens serve
//
//	# Analyze a trace without a server
//	python broken.py 2>&1 | tracelens analyze -
//
//	# Rebuild the similarity index from past analyses
//	tracelens index replay
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	// configPath is the YAML config file; empty uses the default location.
	configPath string
	// serverURL is the base URL used by client commands.
	serverURL string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tracelens",
	Short: "Stack trace analysis and fix suggestions",
	Long: `tracelens parses Python stack traces, classifies the error, retrieves
similar traces seen before and suggests a fix.

Run "tracelens serve" for the HTTP API or "tracelens analyze" for one-off
analysis from a file or stdin.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/tracelens/config.yaml)")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "tracelens by Fyrsmith Labs\n")
		fmt.Fprintf(out, "Version:    %s\n", version)
		fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
		fmt.Fprintf(out, "Build Date: %s\n", buildDate)
	},
}
