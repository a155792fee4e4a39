package vectorstore

import (
	"context"
	"errors"

	apiv1 "github.com/fyrsmithlabs/tracelens/pkg/api/v1"
)

// Sentinel errors for index operations.
var (
	// ErrEmptyCorpus is returned by Build when there is nothing to index.
	ErrEmptyCorpus = errors.New("empty corpus")

	// ErrCorruptIndex is returned when a saved index pair is incomplete or
	// inconsistent.
	ErrCorruptIndex = errors.New("corrupt index")

	// ErrIndexNotFound is returned when no saved index exists at all.
	ErrIndexNotFound = errors.New("index not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// DefaultSourceTag is applied to corpus items that carry no source.
const DefaultSourceTag = "user_past_error"

// Encoder maps text to a fixed-length vector. Blank text must map to the zero
// vector.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the vector length, or 0 if it is only known after
	// the first call.
	Dimension() int
}

// Index is a nearest-neighbour index over historical traces.
//
// Search returns at most k hits ordered by ascending distance. A blank
// query, an empty index, or k <= 0 yields an empty slice and no error.
type Index interface {
	Search(ctx context.Context, query string, k int) ([]apiv1.SimilarityHit, error)
	// Len returns the number of indexed entries.
	Len() int
	Dimension() int
}

// CorpusItem is one historical trace to index.
type CorpusItem struct {
	Text      string `json:"trace"`
	SourceTag string `json:"source"`
	URL       string `json:"url"`
}

// entry is an indexed corpus item. Entries are immutable after Build.
type entry struct {
	vector    []float32
	text      string
	sourceTag string
	url       string
}

func (e entry) hit(distance float32) apiv1.SimilarityHit {
	return apiv1.SimilarityHit{
		Snippet:   e.text,
		SourceTag: e.sourceTag,
		URL:       e.url,
		Distance:  distance,
	}
}
