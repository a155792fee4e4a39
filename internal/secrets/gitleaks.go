package secrets

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// GitleaksScrubber redacts secrets found by the gitleaks default rule set.
type GitleaksScrubber struct {
	mask  string
	allow []*regexp.Regexp

	mu       sync.Mutex
	detector *detect.Detector
}

// NewGitleaks loads the gitleaks default config. An empty mask uses
// "[REDACTED]". Secrets matching any allow pattern are left in place.
func NewGitleaks(mask string, allow []string) (*GitleaksScrubber, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks config: %w", err)
	}
	if mask == "" {
		mask = "[REDACTED]"
	}
	g := &GitleaksScrubber{mask: mask, detector: detector}
	for _, pattern := range allow {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid allow pattern %q: %w", pattern, err)
		}
		g.allow = append(g.allow, re)
	}
	return g, nil
}

func (g *GitleaksScrubber) allowed(secret string) bool {
	for _, re := range g.allow {
		if re.MatchString(secret) {
			return true
		}
	}
	return false
}

// Scrub redacts every occurrence of each detected secret.
func (g *GitleaksScrubber) Scrub(content string) *Result {
	start := time.Now()
	result := &Result{
		Scrubbed: content,
		ByRule:   make(map[string]int),
	}
	if content == "" {
		result.Duration = time.Since(start)
		return result
	}

	g.mu.Lock()
	found := g.detector.DetectString(content)
	g.mu.Unlock()

	var spans []span
	for _, f := range found {
		if f.Secret == "" || g.allowed(f.Secret) {
			continue
		}
		result.Findings = append(result.Findings, Finding{
			RuleID:      f.RuleID,
			Description: f.Description,
			Severity:    "high",
			Line:        f.StartLine,
		})
		result.ByRule[f.RuleID]++
		spans = append(spans, occurrences(content, f.Secret)...)
	}

	result.TotalFindings = len(result.Findings)
	if len(spans) > 0 {
		result.Scrubbed = redact(content, mergeSpans(spans), g.mask)
	}
	result.Duration = time.Since(start)
	return result
}

// IsEnabled returns true.
func (g *GitleaksScrubber) IsEnabled() bool {
	return true
}

func occurrences(content, secret string) []span {
	var spans []span
	for offset := 0; ; {
		i := strings.Index(content[offset:], secret)
		if i < 0 {
			return spans
		}
		start := offset + i
		spans = append(spans, span{start, start + len(secret)})
		offset = start + len(secret)
	}
}

var _ Scrubber = (*GitleaksScrubber)(nil)
