package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Encoder maps text to a fixed-length vector. Blank text maps to the zero
// vector without calling the provider.
//
// Stored traces and incoming traces are compared symmetrically, so both go
// through EmbedDocuments.
type Encoder struct {
	provider Provider
	model    string
	metrics  *Metrics
}

// NewEncoder wraps a provider. metrics may be nil.
func NewEncoder(p Provider, model string, metrics *Metrics) *Encoder {
	return &Encoder{provider: p, model: model, metrics: metrics}
}

// Dimension returns the vector length produced by Encode.
func (e *Encoder) Dimension() int {
	return e.provider.Dimension()
}

// Encode embeds a single text.
func (e *Encoder) Encode(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EncodeBatch embeds texts in one provider call. Blank entries get zero
// vectors and are not sent to the provider.
func (e *Encoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	pending := make([]string, 0, len(texts))
	index := make([]int, 0, len(texts))

	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			out[i] = make([]float32, e.Dimension())
			continue
		}
		pending = append(pending, t)
		index = append(index, i)
	}
	if len(pending) == 0 {
		return out, nil
	}

	start := time.Now()
	vecs, err := e.provider.EmbedDocuments(ctx, pending)
	if e.metrics != nil {
		e.metrics.RecordGeneration(ctx, e.model, "encode", time.Since(start), len(pending), err)
	}
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(pending) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vecs), len(pending))
	}

	for j, v := range vecs {
		out[index[j]] = v
	}
	return out, nil
}

// Close releases the underlying provider.
func (e *Encoder) Close() error {
	return e.provider.Close()
}
