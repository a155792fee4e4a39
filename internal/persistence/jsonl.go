package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONLLog is an append-only file with one JSON object per line.
type JSONLLog struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// OpenJSONLLog opens path for appending, creating it and its directory if
// needed.
func OpenJSONLLog(path string) (*JSONLLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log %s: %w", path, err)
	}
	return &JSONLLog{path: path, file: f}, nil
}

// Path returns the log file path.
func (l *JSONLLog) Path() string { return l.path }

// Append writes v as a single line and syncs it to disk.
func (l *JSONLLog) Append(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding log line: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return os.ErrClosed
	}
	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("writing log line: %w", err)
	}
	return l.file.Sync()
}

// Close closes the file. Further appends fail with os.ErrClosed.
func (l *JSONLLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
