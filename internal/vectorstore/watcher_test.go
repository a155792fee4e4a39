package vectorstore

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRebuilder struct {
	n atomic.Int32
}

func (c *countingRebuilder) Rebuild(context.Context) error {
	c.n.Add(1)
	return nil
}

func TestCorpusWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))

	rb := &countingRebuilder{}
	w := NewCorpusWatcher(path, 200*time.Millisecond, rb, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("{\"trace\":\"x\"}\n"), 0o644))
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))

	assert.Eventually(t, func() bool { return rb.n.Load() == 1 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), rb.n.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestCorpusWatcher_MissingDirectory(t *testing.T) {
	w := NewCorpusWatcher(filepath.Join(t.TempDir(), "nope", "corpus.jsonl"), 0, &countingRebuilder{}, nil)
	assert.Error(t, w.Run(context.Background()))
}
