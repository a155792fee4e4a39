package vectorstore

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"

	apiv1 "github.com/fyrsmithlabs/tracelens/pkg/api/v1"
)

// BuildFunc produces a fresh index, typically by reloading the corpus.
type BuildFunc func(ctx context.Context) (Index, error)

// ErrNoBuilder is returned by Rebuild when the Holder has no BuildFunc.
var ErrNoBuilder = errors.New("no index builder configured")

// Holder is the shared index handle. Searches run concurrently under a read
// lock; Rebuild holds the write lock for its whole duration.
type Holder struct {
	mu     sync.RWMutex
	index  Index
	build  BuildFunc
	logger *zap.Logger
}

// NewHolder wraps idx, which may be nil until the first successful Rebuild.
// build may be nil if the index is never rebuilt.
func NewHolder(idx Index, build BuildFunc, logger *zap.Logger) *Holder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Holder{index: idx, build: build, logger: logger}
}

// Search delegates to the current index. A Holder with no index returns no
// hits.
func (h *Holder) Search(ctx context.Context, query string, k int) ([]apiv1.SimilarityHit, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.index == nil {
		return []apiv1.SimilarityHit{}, nil
	}
	return h.index.Search(ctx, query, k)
}

// Len returns the entry count of the current index.
func (h *Holder) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.index == nil {
		return 0
	}
	return h.index.Len()
}

// Dimension returns the dimension of the current index.
func (h *Holder) Dimension() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.index == nil {
		return 0
	}
	return h.index.Dimension()
}

// Rebuild runs the BuildFunc with searches blocked and installs the result.
// On failure the current index is kept.
func (h *Holder) Rebuild(ctx context.Context) error {
	if h.build == nil {
		return ErrNoBuilder
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	idx, err := h.build(ctx)
	if err != nil {
		rebuildsTotal.WithLabelValues("error").Inc()
		h.logger.Error("index rebuild failed, keeping current index", zap.Error(err))
		return err
	}

	old := h.index
	h.index = idx
	rebuildsTotal.WithLabelValues("success").Inc()
	h.logger.Info("index rebuilt", zap.Int("entries", idx.Len()))

	if c, ok := old.(io.Closer); ok && old != idx {
		if err := c.Close(); err != nil {
			h.logger.Warn("closing previous index", zap.Error(err))
		}
	}
	return nil
}
