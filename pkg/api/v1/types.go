// Package v1 defines the request, response and record types shared by the
// tracelens analysis pipeline and its transports.
package v1

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// UnknownErrorKind is the error kind reported when no terminal error line
// can be recognised.
const UnknownErrorKind = "UnknownError"

// SystemErrorKind is the error kind reported when analysis hit an
// unexpected internal fault.
const SystemErrorKind = "SystemError"

// Frame is one call-site entry of a parsed trace.
type Frame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
	Code     string `json:"code"`
}

// ErrorIdentity is the classified kind and message of a trace's terminal error.
type ErrorIdentity struct {
	Kind    string `json:"errorType"`
	Message string `json:"message"`
}

// Unknown reports whether the identity is the fallback kind.
func (e ErrorIdentity) Unknown() bool {
	return e.Kind == UnknownErrorKind
}

// SimilarityHit is a read-only projection of an indexed historical trace.
type SimilarityHit struct {
	Snippet   string  `json:"snippet"`
	SourceTag string  `json:"source"`
	URL       string  `json:"url"`
	Distance  float32 `json:"distance"`
}

// Reference points at supporting material for a fix suggestion.
type Reference struct {
	Snippet   string `json:"snippet,omitempty"`
	SourceTag string `json:"source,omitempty"`
	URL       string `json:"url,omitempty"`
}

// UnmarshalJSON accepts either a structured reference object or a plain
// string. Plain strings that look like links become URL, anything else
// becomes Snippet.
func (r *Reference) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
			*r = Reference{URL: s}
		} else {
			*r = Reference{Snippet: s}
		}
		return nil
	}

	type plain Reference
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Reference(p)
	return nil
}

// FixAdvice is a structured remediation suggestion.
type FixAdvice struct {
	Summary     string      `json:"summary"`
	CodeExample string      `json:"codeExample"`
	References  []Reference `json:"references"`
}

// AnalysisRecord is the unit returned to callers and persisted by the sink.
type AnalysisRecord struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	RawTrace  string          `json:"trace"`
	Frames    []Frame         `json:"parsedTrace"`
	Error     ErrorIdentity   `json:"error"`
	Hits      []SimilarityHit `json:"relatedErrors"`
	Advice    FixAdvice       `json:"fixSuggestion"`

	// PartialFailures lists the stages that fell back to a default value.
	PartialFailures []string `json:"partialFailures,omitempty"`
}

// AnalyzeRequest is the body accepted by the analyze endpoint.
type AnalyzeRequest struct {
	Trace string `json:"trace"`
}

// AnalyzeResponse is the body returned by the analyze endpoint.
type AnalyzeResponse struct {
	ParsedTrace       []Frame         `json:"parsedTrace"`
	Error             ErrorIdentity   `json:"error"`
	RelatedErrors     []SimilarityHit `json:"relatedErrors"`
	FixSuggestion     FixAdvice       `json:"fixSuggestion"`
	AnalysisTimestamp time.Time       `json:"analysisTimestamp"`
	ProcessingTime    float64         `json:"processingTime"`
	PartialFailures   []string        `json:"partialFailures,omitempty"`
}

// NewAnalyzeResponse projects a record onto the response shape.
func NewAnalyzeResponse(rec *AnalysisRecord, elapsed time.Duration) AnalyzeResponse {
	return AnalyzeResponse{
		ParsedTrace:       rec.Frames,
		Error:             rec.Error,
		RelatedErrors:     rec.Hits,
		FixSuggestion:     rec.Advice,
		AnalysisTimestamp: rec.Timestamp,
		ProcessingTime:    elapsed.Seconds(),
		PartialFailures:   rec.PartialFailures,
	}
}

// Health status values.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// HealthDependencies reports the reachability of optional collaborators.
type HealthDependencies struct {
	RemoteStore bool `json:"remoteStore"`
}

// HealthResponse is the body returned by the health endpoint.
type HealthResponse struct {
	Status       string             `json:"status"`
	Timestamp    time.Time          `json:"timestamp"`
	Version      string             `json:"version,omitempty"`
	IndexEntries int                `json:"indexEntries"`
	Dependencies HealthDependencies `json:"dependencies"`
}

// ErrorResponse is returned for rejected requests.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}
