package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/tracelens/internal/troubleshoot"
	apiv1 "github.com/fyrsmithlabs/tracelens/pkg/api/v1"
)

var analyzeNoLog bool

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().BoolVar(&analyzeNoLog, "no-log", false, "do not record the analysis")
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Analyze a stack trace from a file or stdin",
	Long: `Analyze a stack trace locally and print the result as JSON.

Examples:
  # Analyze a saved trace
  tracelens analyze crash.txt

  # Analyze from stdin
  python app.py 2>&1 | tracelens analyze -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	content, err := readInput(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newBaseApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	a.noLog = analyzeNoLog
	if err := a.initPipeline(ctx); err != nil {
		return err
	}

	start := time.Now()
	rec, err := a.service.Analyze(ctx, string(content))
	if err != nil {
		var verr *troubleshoot.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("trace rejected (%s): %s", verr.Reason, verr.Message)
		}
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(apiv1.NewAnalyzeResponse(rec, time.Since(start)))
}

// readInput reads the named file, or stdin when no file or "-" is given.
func readInput(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		content, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
		return content, nil
	}
	content, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", args[0], err)
	}
	return content, nil
}
