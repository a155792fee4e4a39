package remediation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/tracelens/internal/secrets"
	apiv1 "github.com/fyrsmithlabs/tracelens/pkg/api/v1"
)

const instrumentationName = "github.com/fyrsmithlabs/tracelens/internal/remediation"

const (
	defaultRateLimit   = 2.0
	defaultBurst       = 2
	defaultMaxRetries  = 2
	defaultBaseBackoff = 500 * time.Millisecond
	defaultMaxTokens   = 1024
	maxSnippetChars    = 1500
	maxRelatedSnippets = 3
)

// LLMConfig tunes an LLMAdvisor.
type LLMConfig struct {
	// Name labels metrics and logs, e.g. "openai".
	Name       string
	RateLimit  float64
	Burst      int
	MaxRetries int
	// BaseBackoff is doubled after each failed attempt.
	BaseBackoff time.Duration
}

// LLMAdvisor asks a language model for a JSON fix suggestion.
type LLMAdvisor struct {
	model       llms.Model
	name        string
	limiter     *rate.Limiter
	maxRetries  int
	baseBackoff time.Duration
	scrubber    secrets.Scrubber
	logger      *zap.Logger

	tracer   trace.Tracer
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// NewLLMAdvisor wraps model. scrubber may be nil, in which case prompts are
// sent unmodified.
func NewLLMAdvisor(model llms.Model, cfg LLMConfig, scrubber secrets.Scrubber, logger *zap.Logger) *LLMAdvisor {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	if cfg.Name == "" {
		cfg.Name = "llm"
	}
	if scrubber == nil {
		scrubber = secrets.NoopScrubber{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &LLMAdvisor{
		model:       model,
		name:        cfg.Name,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		maxRetries:  cfg.MaxRetries,
		baseBackoff: cfg.BaseBackoff,
		scrubber:    scrubber,
		logger:      logger,
		tracer:      otel.Tracer(instrumentationName),
	}
	a.initMetrics(otel.Meter(instrumentationName))
	return a
}

func (a *LLMAdvisor) initMetrics(meter metric.Meter) {
	var err error

	a.requests, err = meter.Int64Counter(
		"tracelens.advisor.requests_total",
		metric.WithDescription("Total advisor requests by provider and result"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		a.logger.Warn("failed to create advisor request counter", zap.Error(err))
	}

	a.duration, err = meter.Float64Histogram(
		"tracelens.advisor.duration_seconds",
		metric.WithDescription("Duration of advisor requests including retries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		a.logger.Warn("failed to create advisor duration histogram", zap.Error(err))
	}
}

// Advise prompts the model and parses its reply.
func (a *LLMAdvisor) Advise(ctx context.Context, req Request) (apiv1.FixAdvice, error) {
	ctx, span := a.tracer.Start(ctx, "LLMAdvisor.Advise")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider", a.name),
		attribute.String("error_kind", req.ErrorKind),
		attribute.Int("related", len(req.RelatedSnippets)),
	)

	start := time.Now()
	advice, err := a.advise(ctx, req)

	result := "success"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	attrs := metric.WithAttributes(attribute.String("provider", a.name), attribute.String("result", result))
	if a.requests != nil {
		a.requests.Add(ctx, 1, attrs)
	}
	if a.duration != nil {
		a.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
	return advice, err
}

func (a *LLMAdvisor) advise(ctx context.Context, req Request) (apiv1.FixAdvice, error) {
	prompt := a.buildPrompt(req)

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := a.baseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return apiv1.FixAdvice{}, ctx.Err()
			}
		}

		if err := a.limiter.Wait(ctx); err != nil {
			return apiv1.FixAdvice{}, fmt.Errorf("rate limiter: %w", err)
		}

		reply, err := llms.GenerateFromSinglePrompt(ctx, a.model, prompt,
			llms.WithTemperature(0.2),
			llms.WithMaxTokens(defaultMaxTokens),
		)
		if err == nil {
			return parseAdvice(reply), nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return apiv1.FixAdvice{}, err
		}

		lastErr = err
		a.logger.Debug("advisor attempt failed",
			zap.String("provider", a.name),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return apiv1.FixAdvice{}, fmt.Errorf("%w: %d attempts: %v", ErrAdvisorUnavailable, a.maxRetries+1, lastErr)
}

const promptTemplate = `You are an expert Python debugger. Suggest a fix for the error below.

Error type: %s
Error message: %s
%s
Respond with a single JSON object and nothing else, using this schema:
{"summary": "<one or two sentences explaining the cause and the fix>",
 "codeExample": "<corrected code as plain text, no Markdown fences>",
 "references": [{"snippet": "<optional quote>", "source": "<where it comes from>", "url": "<optional link>"}]}
`

func (a *LLMAdvisor) buildPrompt(req Request) string {
	var related strings.Builder
	n := len(req.RelatedSnippets)
	if n > maxRelatedSnippets {
		n = maxRelatedSnippets
	}
	if n > 0 {
		related.WriteString("\nSimilar errors seen before:\n")
	}
	for i := 0; i < n; i++ {
		s := req.RelatedSnippets[i]
		snippet := a.scrubber.Scrub(truncate(s.Snippet, maxSnippetChars)).Scrubbed
		fmt.Fprintf(&related, "--- %d (source: %s)\n%s\n", i+1, s.SourceTag, snippet)
	}

	message := a.scrubber.Scrub(req.ErrorMessage).Scrubbed
	return fmt.Sprintf(promptTemplate, req.ErrorKind, message, related.String())
}

type adviceReply struct {
	Summary     string            `json:"summary"`
	CodeExample string            `json:"codeExample"`
	References  []apiv1.Reference `json:"references"`
}

// parseAdvice decodes the model's reply. A reply that is not JSON is kept
// as the summary.
func parseAdvice(reply string) apiv1.FixAdvice {
	content := StripCodeFences(reply)

	var r adviceReply
	if err := json.Unmarshal([]byte(content), &r); err != nil {
		if start, end := strings.IndexByte(content, '{'), strings.LastIndexByte(content, '}'); start >= 0 && end > start {
			err = json.Unmarshal([]byte(content[start:end+1]), &r)
		}
		if err != nil {
			return apiv1.FixAdvice{Summary: content, References: []apiv1.Reference{}}
		}
	}

	refs := make([]apiv1.Reference, 0, len(r.References))
	for _, ref := range r.References {
		if ref.Snippet == "" && ref.SourceTag == "" && ref.URL == "" {
			continue
		}
		refs = append(refs, ref)
	}
	return apiv1.FixAdvice{
		Summary:     strings.TrimSpace(r.Summary),
		CodeExample: StripCodeFences(r.CodeExample),
		References:  refs,
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// newModel creates the langchaingo model for cfg.Provider.
func newModel(cfg Config) (llms.Model, error) {
	switch cfg.Provider {
	case "openai":
		token := cfg.APIKey
		if token == "" {
			// langchaingo requires a token even for servers without auth.
			token = "placeholder"
		}
		opts := []openai.Option{openai.WithToken(token)}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("creating openai client: %w", err)
		}
		return llm, nil
	case "ollama":
		if cfg.Model == "" {
			return nil, fmt.Errorf("%w: ollama requires a model", ErrInvalidConfig)
		}
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("creating ollama client: %w", err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("%w: unknown model provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
