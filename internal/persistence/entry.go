package persistence

import (
	"time"

	apiv1 "github.com/fyrsmithlabs/tracelens/pkg/api/v1"
)

// Entry is one persisted analysis. It marshals to the log line format
// {"id", "timestamp", "trace", "result"}.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Trace     string    `json:"trace"`
	Result    Result    `json:"result"`
}

// Result is the analysis outcome stored alongside the trace.
type Result struct {
	ParsedTrace     []apiv1.Frame         `json:"parsedTrace"`
	Error           apiv1.ErrorIdentity   `json:"error"`
	RelatedErrors   []apiv1.SimilarityHit `json:"relatedErrors"`
	FixSuggestion   apiv1.FixAdvice       `json:"fixSuggestion"`
	PartialFailures []string              `json:"partialFailures,omitempty"`
}

// NewEntry projects a record onto an Entry. The timestamp is normalised to
// UTC.
func NewEntry(rec *apiv1.AnalysisRecord) Entry {
	return Entry{
		ID:        rec.ID,
		Timestamp: rec.Timestamp.UTC(),
		Trace:     rec.RawTrace,
		Result: Result{
			ParsedTrace:     rec.Frames,
			Error:           rec.Error,
			RelatedErrors:   rec.Hits,
			FixSuggestion:   rec.Advice,
			PartialFailures: rec.PartialFailures,
		},
	}
}
