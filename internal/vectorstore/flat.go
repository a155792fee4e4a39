package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	apiv1 "github.com/fyrsmithlabs/tracelens/pkg/api/v1"
)

var tracer = otel.Tracer("tracelens.vectorstore")

// FlatIndex is an exhaustive L2 index held in memory.
type FlatIndex struct {
	encoder   Encoder
	dimension int
	entries   []entry
}

// Build embeds every non-blank corpus item and returns a FlatIndex.
//
// Items with blank text, items the encoder fails on, and items whose vector
// length disagrees with the index dimension are skipped. ErrEmptyCorpus is
// returned if nothing could be indexed.
func Build(ctx context.Context, encoder Encoder, corpus []CorpusItem, logger *zap.Logger) (*FlatIndex, error) {
	ctx, span := tracer.Start(ctx, "FlatIndex.Build")
	defer span.End()
	span.SetAttributes(attribute.Int("corpus_size", len(corpus)))

	if encoder == nil {
		return nil, fmt.Errorf("%w: encoder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	start := time.Now()
	entries, skipped, err := embedCorpus(ctx, encoder, corpus, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	idx := &FlatIndex{
		encoder:   encoder,
		dimension: len(entries[0].vector),
		entries:   entries,
	}

	buildDuration.WithLabelValues("flat").Observe(time.Since(start).Seconds())
	indexEntries.WithLabelValues("flat").Set(float64(len(entries)))
	span.SetAttributes(
		attribute.Int("entries", len(entries)),
		attribute.Int("skipped", skipped),
	)

	logger.Info("built flat index",
		zap.Int("entries", len(entries)),
		zap.Int("skipped", skipped),
		zap.Int("dimension", idx.dimension),
	)
	return idx, nil
}

// embedCorpus encodes the corpus, skipping malformed items. The returned
// entries all share one dimension and are never empty.
func embedCorpus(ctx context.Context, encoder Encoder, corpus []CorpusItem, logger *zap.Logger) ([]entry, int, error) {
	if len(corpus) == 0 {
		return nil, 0, ErrEmptyCorpus
	}

	dim := encoder.Dimension()
	entries := make([]entry, 0, len(corpus))
	skipped := 0
	blank := 0

	for i, item := range corpus {
		if strings.TrimSpace(item.Text) == "" {
			blank++
			skipped++
			continue
		}
		vec, err := encoder.Encode(ctx, item.Text)
		if err != nil {
			logger.Debug("skipping corpus item", zap.Int("item", i), zap.Error(err))
			skipped++
			continue
		}
		if dim == 0 {
			dim = len(vec)
		}
		if len(vec) == 0 || len(vec) != dim {
			logger.Debug("skipping corpus item with wrong dimension",
				zap.Int("item", i),
				zap.Int("got", len(vec)),
				zap.Int("want", dim),
			)
			skipped++
			continue
		}
		sourceTag := item.SourceTag
		if sourceTag == "" {
			sourceTag = DefaultSourceTag
		}
		entries = append(entries, entry{
			vector:    vec,
			text:      item.Text,
			sourceTag: sourceTag,
			url:       item.URL,
		})
	}

	if skipped > 0 {
		logger.Warn("skipped corpus items", zap.Int("skipped", skipped), zap.Int("total", len(corpus)))
	}
	if blank == len(corpus) {
		return nil, skipped, ErrEmptyCorpus
	}
	if len(entries) == 0 {
		return nil, skipped, fmt.Errorf("%w: none of %d items could be encoded", ErrEmptyCorpus, len(corpus))
	}
	return entries, skipped, nil
}

// Search returns the k nearest entries to query by L2 distance.
func (f *FlatIndex) Search(ctx context.Context, query string, k int) ([]apiv1.SimilarityHit, error) {
	ctx, span := tracer.Start(ctx, "FlatIndex.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if strings.TrimSpace(query) == "" || k <= 0 || len(f.entries) == 0 {
		return []apiv1.SimilarityHit{}, nil
	}

	q, err := f.encoder.Encode(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("encoding query: %w", err)
	}
	if len(q) != f.dimension {
		err := fmt.Errorf("query dimension %d does not match index dimension %d", len(q), f.dimension)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	type scored struct {
		pos  int
		dist float32
	}
	all := make([]scored, len(f.entries))
	for i, e := range f.entries {
		all[i] = scored{pos: i, dist: l2(q, e.vector)}
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].dist < all[b].dist })

	if k > len(all) {
		k = len(all)
	}
	hits := make([]apiv1.SimilarityHit, k)
	for i := 0; i < k; i++ {
		hits[i] = f.entries[all[i].pos].hit(all[i].dist)
	}

	span.SetAttributes(attribute.Int("results_count", len(hits)))
	return hits, nil
}

// Len returns the number of entries.
func (f *FlatIndex) Len() int { return len(f.entries) }

// Dimension returns the vector length.
func (f *FlatIndex) Dimension() int { return f.dimension }

func l2(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}
