package vectorstore

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Rebuilder is satisfied by Holder.
type Rebuilder interface {
	Rebuild(ctx context.Context) error
}

// CorpusWatcher rebuilds the index when the corpus file changes. Bursts of
// events within Delay collapse into one rebuild.
type CorpusWatcher struct {
	path      string
	delay     time.Duration
	rebuilder Rebuilder
	logger    *zap.Logger
}

// NewCorpusWatcher creates a watcher for path. A zero delay defaults to two
// seconds.
func NewCorpusWatcher(path string, delay time.Duration, rebuilder Rebuilder, logger *zap.Logger) *CorpusWatcher {
	if delay <= 0 {
		delay = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CorpusWatcher{
		path:      filepath.Clean(path),
		delay:     delay,
		rebuilder: rebuilder,
		logger:    logger,
	}
}

// Run watches until ctx is cancelled. The parent directory is watched so
// that editors replacing the file by rename are still observed.
func (w *CorpusWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Info("watching corpus", zap.String("path", w.path), zap.Duration("delay", w.delay))

	timer := time.NewTimer(w.delay)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(w.delay)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("corpus watcher error", zap.Error(err))
		case <-timer.C:
			if err := w.rebuilder.Rebuild(ctx); err != nil {
				w.logger.Warn("rebuild after corpus change failed", zap.Error(err))
				continue
			}
			w.logger.Info("index rebuilt after corpus change", zap.String("path", w.path))
		}
	}
}
