package traceparse

import (
	"regexp"
	"strings"

	apiv1 "github.com/fyrsmithlabs/tracelens/pkg/api/v1"
)

var errorLine = regexp.MustCompile(`^([A-Za-z0-9_]*Error): (.*)$`)

// Classifier extracts the terminal error identity of a trace.
type Classifier struct{}

// NewClassifier creates an error classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify inspects the last non-blank line of text. A line of the form
// "<Name>Error: <message>" yields that kind and message; any other line
// yields UnknownError carrying the line itself.
func (c *Classifier) Classify(text string) apiv1.ErrorIdentity {
	lines := splitLines(text)
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if m := errorLine.FindStringSubmatch(line); m != nil {
			return apiv1.ErrorIdentity{Kind: m[1], Message: m[2]}
		}
		return apiv1.ErrorIdentity{Kind: apiv1.UnknownErrorKind, Message: line}
	}
	return apiv1.ErrorIdentity{Kind: apiv1.UnknownErrorKind}
}

// IsValidTrace is a cheap pre-filter: text must carry the traceback marker
// and at least one "File" and one "line" token.
func IsValidTrace(text string) bool {
	return strings.Contains(text, TracebackMarker) &&
		strings.Contains(text, "File") &&
		strings.Contains(text, "line")
}
