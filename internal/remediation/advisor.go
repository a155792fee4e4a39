package remediation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tracelens/internal/secrets"
	apiv1 "github.com/fyrsmithlabs/tracelens/pkg/api/v1"
)

var (
	// ErrAdvisorUnavailable is returned when the advisor backend cannot
	// produce a suggestion.
	ErrAdvisorUnavailable = errors.New("advisor unavailable")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// RelatedSnippet is a similar historical trace passed to the advisor.
type RelatedSnippet struct {
	Snippet   string `json:"snippet"`
	SourceTag string `json:"source"`
}

// Request is the input to an Advisor.
type Request struct {
	ErrorKind       string           `json:"errorType"`
	ErrorMessage    string           `json:"message"`
	RelatedSnippets []RelatedSnippet `json:"relatedSnippets"`
}

// NewRequest builds a Request from a classified error and its similarity
// hits.
func NewRequest(identity apiv1.ErrorIdentity, hits []apiv1.SimilarityHit) Request {
	related := make([]RelatedSnippet, len(hits))
	for i, h := range hits {
		related[i] = RelatedSnippet{Snippet: h.Snippet, SourceTag: h.SourceTag}
	}
	return Request{
		ErrorKind:       identity.Kind,
		ErrorMessage:    identity.Message,
		RelatedSnippets: related,
	}
}

// Advisor suggests a fix for an error.
type Advisor interface {
	Advise(ctx context.Context, req Request) (apiv1.FixAdvice, error)
}

// Config selects and configures an Advisor.
type Config struct {
	// Provider is one of "catalog", "openai" or "ollama".
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
	// RateLimit is the sustained request rate in requests per second.
	RateLimit  float64
	MaxRetries int
}

// NewAdvisor creates the configured advisor. scrubber may be nil.
func NewAdvisor(cfg Config, scrubber secrets.Scrubber, logger *zap.Logger) (Advisor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case "catalog", "":
		return NewCatalogAdvisor(), nil
	case "openai", "ollama":
		model, err := newModel(cfg)
		if err != nil {
			return nil, err
		}
		return NewLLMAdvisor(model, LLMConfig{
			Name:       cfg.Provider,
			RateLimit:  cfg.RateLimit,
			MaxRetries: cfg.MaxRetries,
		}, scrubber, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown advisor provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// StripCodeFences removes a surrounding Markdown code fence, including an
// optional language tag on the opening fence. Text without a fence is only
// trimmed.
func StripCodeFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		if isFenceTag(strings.TrimSpace(t[:i])) {
			t = t[i+1:]
		}
	}
	t = strings.TrimRight(t, " \t\r\n")
	t = strings.TrimSuffix(t, "```")
	t = strings.TrimRight(t, " \t\r\n")
	return strings.TrimLeft(t, "\r\n")
}

func isFenceTag(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == '-', r == '+', r == '#', r == '.':
		default:
			return false
		}
	}
	return true
}
