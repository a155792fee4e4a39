package persistence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tracelens/internal/logging"
	"github.com/fyrsmithlabs/tracelens/internal/secrets"
	apiv1 "github.com/fyrsmithlabs/tracelens/pkg/api/v1"
)

// Defaults for remote writes.
const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 500 * time.Millisecond
)

// SinkConfig configures a Sink.
type SinkConfig struct {
	// MaxAttempts bounds remote insert attempts per record.
	MaxAttempts int
	// Backoff is the base of the linear backoff between attempts.
	Backoff time.Duration
}

// Sink persists analysis records locally and, when healthy, remotely.
//
// Lifecycle: Init connects the remote store, Probe checks it, Record writes,
// Close releases both destinations. Init is optional; a Sink that has never
// reached the remote store probes it lazily on the next Record.
type Sink struct {
	log      *JSONLLog
	remote   RemoteStore
	health   *HealthMonitor
	scrubber secrets.Scrubber
	attempts int
	backoff  BackoffFunc
	logger   *zap.Logger

	mu        sync.Mutex
	connected bool
}

// NewSink creates a Sink. remote and scrubber may be nil; without a remote
// store the sink stays Degraded and writes locally only.
func NewSink(log *JSONLLog, remote RemoteStore, scrubber secrets.Scrubber, cfg SinkConfig, logger *zap.Logger) *Sink {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if scrubber == nil {
		scrubber = secrets.NoopScrubber{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	initial := Degraded
	if remote != nil {
		initial = Available
	}
	return &Sink{
		log:      log,
		remote:   remote,
		health:   NewHealthMonitor(initial),
		scrubber: scrubber,
		attempts: cfg.MaxAttempts,
		backoff:  LinearBackoff(cfg.Backoff),
		logger:   logger,
	}
}

// Health returns the monitor shared with health-check consumers.
func (s *Sink) Health() *HealthMonitor {
	return s.health
}

// HasRemote reports whether a remote store is configured.
func (s *Sink) HasRemote() bool {
	return s.remote != nil
}

// Init probes the remote store once so startup logs show its state.
func (s *Sink) Init(ctx context.Context) {
	logger := s.logger
	if s.log != nil {
		logger = logger.With(zap.String("log_path", s.log.Path()))
	}
	if s.remote == nil {
		logger.Info("no remote store configured, logging locally only")
		return
	}
	if s.Probe(ctx) {
		logger.Info("remote store available")
	} else {
		logger.Warn("remote store not available, using local log only")
	}
}

// ctxLogger returns the sink logger carrying ctx's request and trace IDs.
func (s *Sink) ctxLogger(ctx context.Context) *zap.Logger {
	return s.logger.With(logging.ContextFields(ctx)...)
}

// Probe pings the remote store and updates the health state. It returns
// true if the store is reachable.
func (s *Sink) Probe(ctx context.Context) bool {
	if s.remote == nil {
		return false
	}

	err := s.remote.Ping(ctx)

	s.mu.Lock()
	s.connected = err == nil
	s.mu.Unlock()

	if err != nil {
		probesTotal.WithLabelValues("error").Inc()
		if s.health.MarkDegraded() {
			s.ctxLogger(ctx).Warn("remote store degraded", zap.Error(err))
		}
		return false
	}
	probesTotal.WithLabelValues("success").Inc()
	if s.health.MarkAvailable() {
		s.ctxLogger(ctx).Info("remote store available again")
	}
	return true
}

// Record persists rec. Failures are logged and reflected in the health
// state but never returned.
func (s *Sink) Record(ctx context.Context, rec *apiv1.AnalysisRecord) {
	entry := NewEntry(rec)
	if scrubbed := s.scrubber.Scrub(entry.Trace); scrubbed.HasFindings() {
		entry.Trace = scrubbed.Scrubbed
		s.ctxLogger(ctx).Debug("redacted secrets from trace",
			zap.String("id", entry.ID),
			zap.Int("findings", scrubbed.TotalFindings),
		)
	}

	s.writeLocal(ctx, entry)
	s.writeRemote(ctx, entry)
}

func (s *Sink) writeLocal(ctx context.Context, entry Entry) {
	if s.log == nil {
		return
	}
	if err := s.log.Append(entry); err != nil {
		writesTotal.WithLabelValues("local", "error").Inc()
		s.ctxLogger(ctx).Error("local log write failed", zap.String("id", entry.ID), zap.Error(err))
		return
	}
	writesTotal.WithLabelValues("local", "success").Inc()
}

func (s *Sink) writeRemote(ctx context.Context, entry Entry) {
	if s.remote == nil {
		return
	}

	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	if !connected && !s.Probe(ctx) {
		writesTotal.WithLabelValues("remote", "skipped").Inc()
		return
	}
	if s.health.State() != Available {
		writesTotal.WithLabelValues("remote", "skipped").Inc()
		return
	}

	err := Retry(ctx, s.attempts, s.backoff, func(ctx context.Context) error {
		return s.remote.Insert(ctx, entry)
	})
	if err != nil {
		writesTotal.WithLabelValues("remote", "error").Inc()
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		s.health.MarkDegraded()
		s.ctxLogger(ctx).Error("remote write failed, degrading to local log",
			zap.String("id", entry.ID),
			zap.Int("attempts", s.attempts),
			zap.Error(err),
		)
		return
	}
	writesTotal.WithLabelValues("remote", "success").Inc()
}

// Close closes the local log and the remote store.
func (s *Sink) Close() error {
	var firstErr error
	if s.log != nil {
		if err := s.log.Close(); err != nil {
			firstErr = err
		}
	}
	if s.remote != nil {
		if err := s.remote.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
