package vectorstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apiv1 "github.com/fyrsmithlabs/tracelens/pkg/api/v1"
)

type staticIndex struct {
	hits   []apiv1.SimilarityHit
	closed bool
}

func (s *staticIndex) Search(_ context.Context, _ string, k int) ([]apiv1.SimilarityHit, error) {
	if k > len(s.hits) {
		k = len(s.hits)
	}
	return s.hits[:k], nil
}
func (s *staticIndex) Len() int       { return len(s.hits) }
func (s *staticIndex) Dimension() int { return 2 }
func (s *staticIndex) Close() error {
	s.closed = true
	return nil
}

func TestHolder_EmptyHolder(t *testing.T) {
	h := NewHolder(nil, nil, nil)

	hits, err := h.Search(context.Background(), "query", 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, 0, h.Len())
	assert.Equal(t, 0, h.Dimension())
	assert.ErrorIs(t, h.Rebuild(context.Background()), ErrNoBuilder)
}

func TestHolder_RebuildFillsEmptyHolder(t *testing.T) {
	built := &staticIndex{hits: []apiv1.SimilarityHit{{Snippet: "b"}, {Snippet: "c"}}}
	h := NewHolder(nil, func(context.Context) (Index, error) { return built, nil }, nil)

	require.NoError(t, h.Rebuild(context.Background()))
	assert.Equal(t, 2, h.Len())
}

func TestHolder_Rebuild(t *testing.T) {
	first := &staticIndex{hits: []apiv1.SimilarityHit{{Snippet: "a"}}}
	second := &staticIndex{hits: []apiv1.SimilarityHit{{Snippet: "b"}}}
	h := NewHolder(first, func(context.Context) (Index, error) { return second, nil }, nil)

	require.NoError(t, h.Rebuild(context.Background()))

	hits, err := h.Search(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Equal(t, "b", hits[0].Snippet)
	assert.True(t, first.closed)
}

func TestHolder_RebuildFailureKeepsIndex(t *testing.T) {
	first := &staticIndex{hits: []apiv1.SimilarityHit{{Snippet: "a"}}}
	boom := errors.New("boom")
	h := NewHolder(first, func(context.Context) (Index, error) { return nil, boom }, nil)

	assert.ErrorIs(t, h.Rebuild(context.Background()), boom)
	assert.Equal(t, 1, h.Len())
	assert.False(t, first.closed)
}

func TestHolder_RebuildExcludesSearches(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	next := &staticIndex{hits: []apiv1.SimilarityHit{{Snippet: "new"}}}

	h := NewHolder(&staticIndex{hits: []apiv1.SimilarityHit{{Snippet: "old"}}},
		func(context.Context) (Index, error) {
			close(started)
			<-release
			return next, nil
		}, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, h.Rebuild(context.Background()))
	}()
	<-started

	results := make(chan string, 1)
	go func() {
		hits, _ := h.Search(context.Background(), "q", 1)
		results <- hits[0].Snippet
	}()

	close(release)
	wg.Wait()
	// A search issued during a rebuild waits for it and sees the new index.
	assert.Equal(t, "new", <-results)
}

func TestHolder_WithFlatIndex(t *testing.T) {
	corpus, enc := testCorpus()
	h := NewHolder(nil, func(ctx context.Context) (Index, error) {
		return Build(ctx, enc, corpus, nil)
	}, nil)

	require.NoError(t, h.Rebuild(context.Background()))
	assert.Equal(t, 3, h.Len())

	hits, err := h.Search(context.Background(), "query", 1)
	require.NoError(t, err)
	assert.Equal(t, "near", hits[0].Snippet)
}
