package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tracelens/internal/config"
	"github.com/fyrsmithlabs/tracelens/internal/embeddings"
	"github.com/fyrsmithlabs/tracelens/internal/logging"
	"github.com/fyrsmithlabs/tracelens/internal/persistence"
	"github.com/fyrsmithlabs/tracelens/internal/remediation"
	"github.com/fyrsmithlabs/tracelens/internal/secrets"
	"github.com/fyrsmithlabs/tracelens/internal/telemetry"
	"github.com/fyrsmithlabs/tracelens/internal/traceparse"
	"github.com/fyrsmithlabs/tracelens/internal/troubleshoot"
	"github.com/fyrsmithlabs/tracelens/internal/vectorstore"
)

// app holds the wired components shared by the commands. Fields are filled
// in dependency order; Close releases whatever was created.
type app struct {
	cfg       *config.Config
	root      *logging.Logger
	logger    *zap.Logger
	telemetry *telemetry.Telemetry
	scrubber  secrets.Scrubber
	encoder   *embeddings.Encoder
	index     *vectorstore.Holder
	advisor   remediation.Advisor
	sink      *persistence.Sink
	service   *troubleshoot.Service

	// noLog skips the sink so analyses are not recorded.
	noLog bool
}

// newBaseApp loads config and creates the logger, telemetry and scrubber.
func newBaseApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logCfg, err := logging.FromSettings(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("logging config: %w", err)
	}
	lg, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a := &app{cfg: cfg, root: lg, logger: lg.Underlying()}

	a.telemetry, err = telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version), a.logger)
	if err != nil {
		return nil, err
	}
	if cfg.Logging.OTEL {
		if err := a.exportLogs(logCfg); err != nil {
			return nil, err
		}
	}

	if a.scrubber, err = newScrubber(cfg.Secrets); err != nil {
		return nil, fmt.Errorf("creating scrubber: %w", err)
	}
	return a, nil
}

// exportLogs rebuilds the logger so records also flow to the telemetry
// collector through the otelzap bridge.
func (a *app) exportLogs(logCfg *logging.Config) error {
	provider := a.telemetry.LoggerProvider()
	if provider == nil {
		a.logger.Warn("log export requested but telemetry is disabled")
		return nil
	}
	logCfg.Output.OTEL = true
	lg, err := logging.NewLogger(logCfg, provider)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.root, a.logger = lg, lg.Underlying()
	return nil
}

func newScrubber(cfg config.SecretsConfig) (secrets.Scrubber, error) {
	if cfg.Disabled {
		return secrets.NoopScrubber{}, nil
	}
	allow, err := secrets.LoadAllowList(cfg.AllowListPath)
	if err != nil {
		return nil, err
	}
	if cfg.Engine == "gitleaks" {
		return secrets.NewGitleaks("", allow)
	}
	rules := secrets.DefaultConfig()
	rules.AllowList = append(rules.AllowList, allow...)
	return secrets.New(rules)
}

// initEncoder creates the configured embedding provider.
func (a *app) initEncoder() error {
	e := a.cfg.Embeddings
	provider, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider: e.Provider,
		Model:    e.Model,
		BaseURL:  e.BaseURL,
		APIKey:   e.APIKey.Value(),
		CacheDir: e.CacheDir,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("creating embedding provider: %w", err)
	}
	a.encoder = embeddings.NewEncoder(provider, e.Model, embeddings.NewMetrics(a.logger))
	a.logger.Info("embedding provider initialized",
		zap.String("provider", e.Provider),
		zap.String("model", e.Model),
		zap.Int("dimension", a.encoder.Dimension()),
	)
	return nil
}

// initIndex opens the saved index, building it from the configured corpus
// when none exists or the saved one cannot be used. If neither works, for
// instance because the embedding backend is down, the holder starts empty:
// searches return no hits until a rebuild succeeds.
func (a *app) initIndex(ctx context.Context) {
	src := corpusSource{path: a.cfg.Index.CorpusPath, logPath: a.cfg.Persistence.LogPath}
	build := func(ctx context.Context) (vectorstore.Index, error) {
		if a.encoder == nil {
			if err := a.initEncoder(); err != nil {
				return nil, err
			}
		}
		return buildIndex(ctx, a.cfg.Index, a.encoder, src, a.logger)
	}

	idx, err := a.loadIndex(ctx, build)
	if err != nil {
		a.logger.Warn("similarity index unavailable, searches return no hits until a rebuild succeeds", zap.Error(err))
		idx = nil
	}
	a.index = vectorstore.NewHolder(idx, build, a.logger)
}

func (a *app) loadIndex(ctx context.Context, build vectorstore.BuildFunc) (vectorstore.Index, error) {
	if a.encoder == nil {
		if err := a.initEncoder(); err != nil {
			return nil, err
		}
	}

	idx, err := openIndex(a.cfg.Index, a.encoder, a.logger)
	switch {
	case err == nil:
		a.logger.Info("similarity index loaded", zap.String("backend", a.cfg.Index.Backend), zap.Int("entries", idx.Len()))
		return idx, nil
	case errors.Is(err, vectorstore.ErrIndexNotFound), errors.Is(err, vectorstore.ErrCorruptIndex):
		if errors.Is(err, vectorstore.ErrCorruptIndex) {
			a.logger.Warn("saved index unusable, rebuilding", zap.Error(err))
		}
		return build(ctx)
	default:
		return nil, fmt.Errorf("opening index: %w", err)
	}
}

// initPipeline wires the index, advisor, sink and analysis service.
func (a *app) initPipeline(ctx context.Context) error {
	a.initIndex(ctx)

	ac := a.cfg.Advisor
	advisor, err := remediation.NewAdvisor(remediation.Config{
		Provider:   ac.Provider,
		Model:      ac.Model,
		BaseURL:    ac.BaseURL,
		APIKey:     ac.APIKey.Value(),
		RateLimit:  ac.RateLimit,
		MaxRetries: ac.MaxRetries,
	}, a.scrubber, a.logger)
	if err != nil {
		return fmt.Errorf("creating advisor: %w", err)
	}
	a.advisor = advisor

	var sink troubleshoot.Sink
	if !a.noLog {
		if err := a.initSink(ctx); err != nil {
			return err
		}
		sink = a.sink
	}

	an := a.cfg.Analysis
	a.service, err = troubleshoot.NewService(troubleshoot.Deps{
		Parser:     traceparse.NewParser(),
		Classifier: traceparse.NewClassifier(),
		Index:      a.index,
		Advisor:    a.advisor,
		Sink:       sink,
	}, troubleshoot.Config{
		MaxTraceSize:   an.MaxTraceSize,
		TopK:           an.TopK,
		StageTimeout:   an.StageTimeout.Duration(),
		AdviceTimeout:  an.AdviceTimeout.Duration(),
		PersistTimeout: an.PersistTimeout.Duration(),
	}, a.logger)
	if err != nil {
		return fmt.Errorf("creating analysis service: %w", err)
	}
	return nil
}

func (a *app) initSink(ctx context.Context) error {
	p := a.cfg.Persistence
	log, err := persistence.OpenJSONLLog(p.LogPath)
	if err != nil {
		return err
	}

	var remote persistence.RemoteStore
	if p.DatabaseURL.IsSet() {
		store, err := persistence.NewPostgresStore(p.DatabaseURL.Value(), p.Table, a.logger)
		if err != nil {
			log.Close()
			return err
		}
		a.logger.Info("remote store configured", logging.Secret("database_url", p.DatabaseURL), zap.String("table", p.Table))
		remote = store
	}

	a.sink = persistence.NewSink(log, remote, a.scrubber, persistence.SinkConfig{
		MaxAttempts: p.MaxAttempts,
		Backoff:     p.Backoff.Duration(),
	}, a.logger)
	a.sink.Init(ctx)
	return nil
}

// Close drains pending writes and releases resources in reverse order.
func (a *app) Close(ctx context.Context) {
	if a.service != nil {
		if err := a.service.Close(ctx); err != nil {
			a.logger.Warn("pending analyses not persisted", zap.Error(err))
		}
	}
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.logger.Warn("closing sink", zap.Error(err))
		}
	}
	if a.encoder != nil {
		if err := a.encoder.Close(); err != nil {
			a.logger.Warn("closing embedding provider", zap.Error(err))
		}
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown", zap.Error(err))
	}
	_ = a.root.Sync() // Best-effort sync on shutdown
}
