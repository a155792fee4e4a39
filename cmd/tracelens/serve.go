package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httpserver "github.com/fyrsmithlabs/tracelens/internal/http"
	"github.com/fyrsmithlabs/tracelens/internal/vectorstore"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the tracelens HTTP API.

Endpoints:
  POST /api/v1/analyze        analyze a trace
  POST /api/v1/scrub          redact secrets from text
  POST /api/v1/index/rebuild  rebuild the similarity index
  GET  /health                service and remote store health
  GET  /metrics               Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// runServe starts the server and blocks until SIGINT or SIGTERM.
//
// Shutdown order: stop accepting requests, drain pending writes, then close
// the sink, the encoder and telemetry.
func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a, err := newBaseApp(ctx)
	if err != nil {
		return err
	}
	logger := a.logger

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down gracefully", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("starting tracelens",
		zap.String("version", version),
		zap.Int("port", a.cfg.Server.Port),
		zap.String("index_backend", a.cfg.Index.Backend),
		zap.String("advisor", a.cfg.Advisor.Provider),
	)

	if err := a.initPipeline(ctx); err != nil {
		a.Close(context.Background())
		return err
	}

	srv, err := httpserver.NewServer(httpserver.Deps{
		Analyzer: a.service,
		Remote:   a.sink,
		Index:    a.index,
		Scrubber: a.scrubber,
	}, logger, &httpserver.Config{
		Host:              a.cfg.Server.Host,
		Port:              a.cfg.Server.Port,
		Version:           version,
		BodyLimit:         a.cfg.Server.BodyLimit,
		CORSOrigins:       a.cfg.Server.CORSOrigins,
		RequestsPerMinute: a.cfg.Server.RequestsPerMinute,
		HealthTimeout:     a.cfg.Server.HealthTimeout.Duration(),
	})
	if err != nil {
		a.Close(context.Background())
		return fmt.Errorf("creating http server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if a.cfg.Index.Watch && a.cfg.Index.CorpusPath != "" {
		watcher := vectorstore.NewCorpusWatcher(a.cfg.Index.CorpusPath, a.cfg.Index.WatchDelay.Duration(), a.index, logger)
		g.Go(func() error {
			if err := watcher.Run(gctx); err != nil {
				logger.Warn("corpus watcher stopped", zap.Error(err))
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
		a.Close(shutdownCtx)
		return nil
	})

	err = g.Wait()
	logger.Info("server shutdown complete")
	return err
}
