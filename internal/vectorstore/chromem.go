package vectorstore

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	apiv1 "github.com/fyrsmithlabs/tracelens/pkg/api/v1"
)

const (
	metaSourceTag = "source"
	metaURL       = "url"
)

// ChromemConfig holds configuration for the chromem-go backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty keeps the
	// collection in memory only.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection defaults to "traces".
	Collection string
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "traces"
	}
}

// ChromemIndex implements Index on a chromem-go collection.
//
// chromem-go normalises vectors and ranks by cosine similarity. For unit
// vectors the L2 distance is sqrt(2 - 2*cos), so hits are reported with that
// distance and keep the same order FlatIndex would produce.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	encoder    Encoder
	config     ChromemConfig
	logger     *zap.Logger
	dimension  int
}

func openChromemDB(config ChromemConfig) (*chromem.DB, error) {
	if config.Path == "" {
		return chromem.NewDB(), nil
	}
	path, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}
	db, err := chromem.NewPersistentDB(path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}
	return db, nil
}

// BuildChromem replaces the configured collection with the embedded corpus.
// Skipping rules match Build.
func BuildChromem(ctx context.Context, config ChromemConfig, encoder Encoder, corpus []CorpusItem, logger *zap.Logger) (*ChromemIndex, error) {
	ctx, span := tracer.Start(ctx, "ChromemIndex.Build")
	defer span.End()
	span.SetAttributes(attribute.Int("corpus_size", len(corpus)))

	if encoder == nil {
		return nil, fmt.Errorf("%w: encoder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	start := time.Now()
	entries, skipped, err := embedCorpus(ctx, encoder, corpus, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	db, err := openChromemDB(config)
	if err != nil {
		return nil, err
	}
	if err := db.DeleteCollection(config.Collection); err != nil {
		return nil, fmt.Errorf("dropping collection %s: %w", config.Collection, err)
	}
	collection, err := db.CreateCollection(config.Collection, nil, embeddingFunc(encoder))
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", config.Collection, err)
	}

	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		docs[i] = chromem.Document{
			ID:        strconv.Itoa(i),
			Content:   e.text,
			Embedding: e.vector,
			Metadata: map[string]string{
				metaSourceTag: e.sourceTag,
				metaURL:       e.url,
			},
		}
	}
	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("adding documents: %w", err)
	}

	buildDuration.WithLabelValues("chromem").Observe(time.Since(start).Seconds())
	indexEntries.WithLabelValues("chromem").Set(float64(len(docs)))
	logger.Info("built chromem index",
		zap.String("collection", config.Collection),
		zap.Int("entries", len(docs)),
		zap.Int("skipped", skipped),
	)

	return &ChromemIndex{
		db:         db,
		collection: collection,
		encoder:    encoder,
		config:     config,
		logger:     logger,
		dimension:  len(entries[0].vector),
	}, nil
}

// OpenChromem opens a previously built persistent collection. It returns
// ErrIndexNotFound if the collection does not exist.
func OpenChromem(config ChromemConfig, encoder Encoder, logger *zap.Logger) (*ChromemIndex, error) {
	if encoder == nil {
		return nil, fmt.Errorf("%w: encoder is required", ErrInvalidConfig)
	}
	if config.Path == "" {
		return nil, fmt.Errorf("%w: path is required to open a chromem index", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	db, err := openChromemDB(config)
	if err != nil {
		return nil, err
	}
	collection := db.GetCollection(config.Collection, embeddingFunc(encoder))
	if collection == nil {
		return nil, fmt.Errorf("%w: collection %s", ErrIndexNotFound, config.Collection)
	}

	indexEntries.WithLabelValues("chromem").Set(float64(collection.Count()))
	logger.Info("opened chromem index",
		zap.String("collection", config.Collection),
		zap.Int("entries", collection.Count()),
	)
	return &ChromemIndex{
		db:         db,
		collection: collection,
		encoder:    encoder,
		config:     config,
		logger:     logger,
		dimension:  encoder.Dimension(),
	}, nil
}

func embeddingFunc(encoder Encoder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return encoder.Encode(ctx, text)
	}
}

// Search returns the k nearest documents to query.
func (c *ChromemIndex) Search(ctx context.Context, query string, k int) ([]apiv1.SimilarityHit, error) {
	ctx, span := tracer.Start(ctx, "ChromemIndex.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	count := c.collection.Count()
	if strings.TrimSpace(query) == "" || k <= 0 || count == 0 {
		return []apiv1.SimilarityHit{}, nil
	}
	// chromem requires nResults <= document count
	if k > count {
		k = count
	}

	q, err := c.encoder.Encode(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("encoding query: %w", err)
	}

	results, err := c.collection.QueryEmbedding(ctx, q, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", c.config.Collection, err)
	}

	hits := make([]apiv1.SimilarityHit, len(results))
	for i, r := range results {
		hits[i] = apiv1.SimilarityHit{
			Snippet:   r.Content,
			SourceTag: r.Metadata[metaSourceTag],
			URL:       r.Metadata[metaURL],
			Distance:  cosineToL2(r.Similarity),
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(hits)))
	c.logger.Debug("searched chromem collection",
		zap.String("collection", c.config.Collection),
		zap.Int("k", k),
		zap.Int("results", len(hits)),
	)
	return hits, nil
}

// Len returns the number of documents in the collection.
func (c *ChromemIndex) Len() int { return c.collection.Count() }

// Dimension returns the vector length.
func (c *ChromemIndex) Dimension() int { return c.dimension }

func cosineToL2(sim float32) float32 {
	d := 2 - 2*float64(sim)
	if d < 0 {
		d = 0
	}
	return float32(math.Sqrt(d))
}

// expandPath expands ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
