package troubleshoot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/tracelens/internal/logging"
	"github.com/fyrsmithlabs/tracelens/internal/remediation"
	"github.com/fyrsmithlabs/tracelens/internal/traceparse"
	apiv1 "github.com/fyrsmithlabs/tracelens/pkg/api/v1"
)

// Stage names reported in AnalysisRecord.PartialFailures.
const (
	StageParse    = "parse"
	StageClassify = "classify"
	StageSearch   = "search"
	StageAdvise   = "advise"
)

const (
	defaultMaxTraceSize   = 50000
	defaultTopK           = 3
	defaultAdviceTimeout  = 60 * time.Second
	defaultPersistTimeout = 30 * time.Second
)

// Parser extracts call-site frames from a trace.
type Parser interface {
	Parse(text string) []apiv1.Frame
}

// Classifier identifies the terminal error of a trace.
type Classifier interface {
	Classify(text string) apiv1.ErrorIdentity
}

// Index finds historical traces similar to a query.
type Index interface {
	Search(ctx context.Context, query string, k int) ([]apiv1.SimilarityHit, error)
}

// Sink persists finished records. Record must not return errors to the
// caller; failures are the sink's own concern.
type Sink interface {
	Record(ctx context.Context, rec *apiv1.AnalysisRecord)
}

// Deps are the collaborators of a Service. Sink may be nil.
type Deps struct {
	Parser     Parser
	Classifier Classifier
	Index      Index
	Advisor    remediation.Advisor
	Sink       Sink
	// IsValid decides whether input is a trace at all. Defaults to
	// traceparse.IsValidTrace.
	IsValid func(string) bool
}

// Config tunes a Service.
type Config struct {
	// MaxTraceSize is the largest accepted trace, in characters.
	MaxTraceSize int
	// TopK is the number of similar traces requested.
	TopK int
	// StageTimeout bounds each of parse, classify and search. Zero means
	// unbounded.
	StageTimeout   time.Duration
	AdviceTimeout  time.Duration
	PersistTimeout time.Duration
}

// Service runs the analysis pipeline.
type Service struct {
	parser     Parser
	classifier Classifier
	index      Index
	advisor    remediation.Advisor
	sink       Sink
	isValid    func(string) bool
	cfg        Config
	logger     *zap.Logger
	tracer     trace.Tracer

	now   func() time.Time
	newID func() string

	persisting sync.WaitGroup
}

// NewService validates deps and applies config defaults.
func NewService(deps Deps, cfg Config, logger *zap.Logger) (*Service, error) {
	if deps.Parser == nil {
		return nil, errors.New("parser is required")
	}
	if deps.Classifier == nil {
		return nil, errors.New("classifier is required")
	}
	if deps.Index == nil {
		return nil, errors.New("index is required")
	}
	if deps.Advisor == nil {
		return nil, errors.New("advisor is required")
	}
	if deps.IsValid == nil {
		deps.IsValid = traceparse.IsValidTrace
	}
	if cfg.MaxTraceSize <= 0 {
		cfg.MaxTraceSize = defaultMaxTraceSize
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.AdviceTimeout <= 0 {
		cfg.AdviceTimeout = defaultAdviceTimeout
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = defaultPersistTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		parser:     deps.Parser,
		classifier: deps.Classifier,
		index:      deps.Index,
		advisor:    deps.Advisor,
		sink:       deps.Sink,
		isValid:    deps.IsValid,
		cfg:        cfg,
		logger:     logger,
		tracer:     otel.Tracer("tracelens.troubleshoot"),
		now:        time.Now,
		newID:      uuid.NewString,
	}, nil
}

// Analyze runs the pipeline on trace. The only error it returns is a
// *ValidationError; every other failure is absorbed into the record, either
// as a stage fallback or, for an unexpected fault, as a SystemError identity.
//
// Caller cancellation is not propagated to the stages.
func (s *Service) Analyze(ctx context.Context, rawTrace string) (*apiv1.AnalysisRecord, error) {
	ctx, span := s.tracer.Start(ctx, "Service.Analyze")
	defer span.End()
	start := time.Now()

	s.transition(span, StateReceived)
	if verr := validate(rawTrace, s.cfg.MaxTraceSize, s.isValid); verr != nil {
		analysesTotal.WithLabelValues("rejected").Inc()
		rejectionsTotal.WithLabelValues(string(verr.Reason)).Inc()
		span.SetAttributes(attribute.String("rejection", string(verr.Reason)))
		s.log(ctx).Debug("trace rejected", zap.String("reason", string(verr.Reason)))
		s.transition(span, StateEarlyReject)
		return nil, verr
	}
	s.transition(span, StateValidated)

	rec := s.run(context.WithoutCancel(ctx), span, rawTrace)

	outcome := "completed"
	if rec.Error.Kind == apiv1.SystemErrorKind {
		outcome = "system_error"
		span.SetStatus(codes.Error, "analysis fault")
	}
	analysesTotal.WithLabelValues(outcome).Inc()
	analysisDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.String("error_kind", rec.Error.Kind),
		attribute.Int("frames", len(rec.Frames)),
		attribute.Int("hits", len(rec.Hits)),
	)

	s.persist(ctx, rec)
	s.transition(span, StatePersisted)
	s.transition(span, StateCompleted)
	return rec, nil
}

// run dispatches the stages and aggregates their results. A panic outside
// the stage wrappers yields a SystemError record.
func (s *Service) run(ctx context.Context, span trace.Span, rawTrace string) (rec *apiv1.AnalysisRecord) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			span.RecordError(err)
			s.log(ctx).Error("analysis failed", zap.Error(err), zap.Stack("stack"))
			rec = s.systemError(rawTrace)
		}
	}()

	s.transition(span, StateDispatched)
	var (
		frames   outcome[[]apiv1.Frame]
		identity outcome[apiv1.ErrorIdentity]
		hits     outcome[[]apiv1.SimilarityHit]
	)
	g := new(errgroup.Group)
	settle(ctx, g, s.cfg.StageTimeout, func(context.Context) ([]apiv1.Frame, error) {
		return s.parser.Parse(rawTrace), nil
	}, []apiv1.Frame{}, &frames)
	settle(ctx, g, s.cfg.StageTimeout, func(context.Context) (apiv1.ErrorIdentity, error) {
		return s.classifier.Classify(rawTrace), nil
	}, apiv1.ErrorIdentity{Kind: apiv1.UnknownErrorKind}, &identity)
	settle(ctx, g, s.cfg.StageTimeout, func(ctx context.Context) ([]apiv1.SimilarityHit, error) {
		return s.index.Search(ctx, rawTrace, s.cfg.TopK)
	}, []apiv1.SimilarityHit{}, &hits)
	_ = g.Wait()

	var failed []string
	s.noteStage(ctx, span, StageParse, frames.err, &failed)
	s.noteStage(ctx, span, StageClassify, identity.err, &failed)
	s.noteStage(ctx, span, StageSearch, hits.err, &failed)
	s.log(ctx).Log(logging.TraceLevel, "stages settled",
		zap.Int("frames", len(frames.value)),
		zap.String("error_kind", identity.value.Kind),
		zap.Int("hits", len(hits.value)),
	)

	rec = &apiv1.AnalysisRecord{
		ID:        s.newID(),
		Timestamp: s.now().UTC(),
		RawTrace:  rawTrace,
		Frames:    nonNil(frames.value),
		Error:     identity.value,
		Hits:      nonNil(hits.value),
	}
	s.transition(span, StateAggregated)

	req := remediation.NewRequest(rec.Error, rec.Hits)
	advice := runStage(ctx, s.cfg.AdviceTimeout, func(ctx context.Context) (apiv1.FixAdvice, error) {
		return s.advisor.Advise(ctx, req)
	}, fallbackAdvice(rec.Error))
	s.noteStage(ctx, span, StageAdvise, advice.err, &failed)
	rec.Advice = advice.value
	if rec.Advice.References == nil {
		rec.Advice.References = []apiv1.Reference{}
	}

	rec.PartialFailures = failed
	return rec
}

func (s *Service) noteStage(ctx context.Context, span trace.Span, stage string, err error, failed *[]string) {
	if err == nil {
		return
	}
	*failed = append(*failed, stage)
	stageFallbacks.WithLabelValues(stage).Inc()
	span.AddEvent("stage fallback", trace.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("error", err.Error()),
	))
	s.log(ctx).Warn("stage failed, using fallback", zap.String("stage", stage), zap.Error(err))
}

func (s *Service) systemError(rawTrace string) *apiv1.AnalysisRecord {
	return &apiv1.AnalysisRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		RawTrace:  rawTrace,
		Frames:    []apiv1.Frame{},
		Error: apiv1.ErrorIdentity{
			Kind:    apiv1.SystemErrorKind,
			Message: "internal error while analysing the trace",
		},
		Hits: []apiv1.SimilarityHit{},
		Advice: apiv1.FixAdvice{
			Summary:    "Analysis could not be completed. Try again later.",
			References: []apiv1.Reference{},
		},
	}
}

// log returns the service logger carrying ctx's request and trace IDs.
func (s *Service) log(ctx context.Context) *zap.Logger {
	return s.logger.With(logging.ContextFields(ctx)...)
}

// persist hands rec to the sink without waiting for it.
func (s *Service) persist(ctx context.Context, rec *apiv1.AnalysisRecord) {
	if s.sink == nil {
		return
	}
	snapshot := *rec
	ctx = context.WithoutCancel(ctx)

	s.persisting.Add(1)
	go func() {
		defer s.persisting.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log(ctx).Error("persisting analysis panicked", zap.String("id", snapshot.ID), zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(ctx, s.cfg.PersistTimeout)
		defer cancel()
		s.sink.Record(ctx, &snapshot)
		s.log(ctx).Debug("analysis persisted", zap.String("id", snapshot.ID))
	}()
}

// Close waits for in-flight persistence to finish or for ctx to end.
func (s *Service) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.persisting.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for pending writes: %w", ctx.Err())
	}
}

func fallbackAdvice(id apiv1.ErrorIdentity) apiv1.FixAdvice {
	return apiv1.FixAdvice{
		Summary:    fmt.Sprintf("No fix suggestion could be generated for %s right now.", id.Kind),
		References: []apiv1.Reference{},
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
