package persistence

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/tracelens/internal/logging"
	"github.com/fyrsmithlabs/tracelens/internal/secrets"
	apiv1 "github.com/fyrsmithlabs/tracelens/pkg/api/v1"
)

// fakeRemote is a scripted RemoteStore.
type fakeRemote struct {
	mu        sync.Mutex
	insertErr error
	pingErr   error
	inserts   int
	pings     int
	entries   []Entry
	closed    bool
}

func (f *fakeRemote) Insert(_ context.Context, e Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	if f.insertErr != nil {
		return f.insertErr
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeRemote) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return f.pingErr
}

func (f *fakeRemote) Close() error {
	f.closed = true
	return nil
}

func (f *fakeRemote) set(insertErr, pingErr error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertErr = insertErr
	f.pingErr = pingErr
}

func testRecord(id string) *apiv1.AnalysisRecord {
	return &apiv1.AnalysisRecord{
		ID:        id,
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600)),
		RawTrace:  "Traceback (most recent call last):\nZeroDivisionError: division by zero",
		Frames:    []apiv1.Frame{{File: "calc.py", Line: 5, Function: "divide", Code: "return a / b"}},
		Error:     apiv1.ErrorIdentity{Kind: "ZeroDivisionError", Message: "division by zero"},
		Hits:      []apiv1.SimilarityHit{},
		Advice:    apiv1.FixAdvice{Summary: "guard the divisor"},
	}
}

func newTestSink(t *testing.T, remote RemoteStore) (*Sink, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logs", "trace_log.jsonl")
	log, err := OpenJSONLLog(path)
	require.NoError(t, err)

	sink := NewSink(log, remote, nil, SinkConfig{MaxAttempts: 3, Backoff: time.Millisecond}, nil)
	t.Cleanup(func() { _ = sink.Close() })
	return sink, path
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		lines = append(lines, m)
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestSink_LocalOnly(t *testing.T) {
	sink, path := newTestSink(t, nil)

	assert.False(t, sink.HasRemote())
	assert.Equal(t, Degraded, sink.Health().State())
	assert.False(t, sink.Probe(context.Background()))

	sink.Record(context.Background(), testRecord("a"))
	sink.Record(context.Background(), testRecord("b"))

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.Equal(t, "a", lines[0]["id"])
	assert.Equal(t, "2024-05-01T10:00:00Z", lines[0]["timestamp"])
	assert.Contains(t, lines[0]["trace"], "ZeroDivisionError")
	result := lines[0]["result"].(map[string]any)
	assert.Equal(t, "ZeroDivisionError", result["error"].(map[string]any)["errorType"])
	assert.Contains(t, result, "parsedTrace")
	assert.Contains(t, result, "relatedErrors")
	assert.Contains(t, result, "fixSuggestion")
}

func TestSink_RemoteWrite(t *testing.T) {
	r := &fakeRemote{}
	sink, path := newTestSink(t, r)

	sink.Record(context.Background(), testRecord("a"))

	assert.Equal(t, 1, r.pings, "first use probes the remote store")
	require.Len(t, r.entries, 1)
	assert.Equal(t, "a", r.entries[0].ID)
	assert.Equal(t, time.UTC, r.entries[0].Timestamp.Location())
	assert.Len(t, readLines(t, path), 1)
	assert.Equal(t, apiv1.StatusHealthy, sink.Health().Status())

	sink.Record(context.Background(), testRecord("b"))
	assert.Equal(t, 1, r.pings, "a connected sink does not probe again")
	assert.Len(t, r.entries, 2)
}

func TestSink_ThreeFailedWritesDegradeAndProbeRestores(t *testing.T) {
	r := &fakeRemote{}
	sink, path := newTestSink(t, r)
	sink.Init(context.Background())
	require.Equal(t, apiv1.StatusHealthy, sink.Health().Status())

	r.set(errors.New("connection reset"), errors.New("connection refused"))
	sink.Record(context.Background(), testRecord("a"))

	assert.Equal(t, 3, r.inserts)
	assert.Equal(t, Degraded, sink.Health().State())
	assert.Equal(t, apiv1.StatusDegraded, sink.Health().Status())
	assert.Len(t, readLines(t, path), 1, "local log is written regardless")

	// While the store stays down, records are only probed for, not retried.
	sink.Record(context.Background(), testRecord("b"))
	assert.Equal(t, 3, r.inserts)
	assert.Len(t, readLines(t, path), 2)

	r.set(nil, nil)
	assert.True(t, sink.Probe(context.Background()))
	assert.Equal(t, apiv1.StatusHealthy, sink.Health().Status())

	sink.Record(context.Background(), testRecord("c"))
	require.Len(t, r.entries, 1)
	assert.Equal(t, "c", r.entries[0].ID)
}

func TestSink_LazyProbeAfterDegrade(t *testing.T) {
	r := &fakeRemote{}
	sink, _ := newTestSink(t, r)

	r.set(errors.New("down"), nil)
	sink.Record(context.Background(), testRecord("a"))
	require.Equal(t, Degraded, sink.Health().State())

	r.set(nil, nil)
	sink.Record(context.Background(), testRecord("b"))
	assert.Equal(t, Available, sink.Health().State())
	require.Len(t, r.entries, 1)
	assert.Equal(t, "b", r.entries[0].ID)
}

func TestSink_RecoversAfterTransientFailure(t *testing.T) {
	r := &flakyRemote{failures: 2}
	sink, _ := newTestSink(t, r)

	sink.Record(context.Background(), testRecord("a"))
	assert.Equal(t, Available, sink.Health().State())
	assert.Equal(t, 3, r.calls)
}

type flakyRemote struct {
	failures int
	calls    int
}

func (f *flakyRemote) Insert(context.Context, Entry) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("transient")
	}
	return nil
}
func (f *flakyRemote) Ping(context.Context) error { return nil }
func (f *flakyRemote) Close() error               { return nil }

func TestSink_ScrubsSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace_log.jsonl")
	log, err := OpenJSONLLog(path)
	require.NoError(t, err)
	r := &fakeRemote{}
	sink := NewSink(log, r, secrets.MustNew(nil), SinkConfig{Backoff: time.Millisecond}, nil)
	defer sink.Close()

	rec := testRecord("a")
	rec.RawTrace = "psycopg2.OperationalError: postgres://admin:hunter22@db:5432/app refused"
	sink.Record(context.Background(), rec)

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.NotContains(t, lines[0]["trace"], "hunter22")
	require.Len(t, r.entries, 1)
	assert.NotContains(t, r.entries[0].Trace, "hunter22")
	assert.Contains(t, rec.RawTrace, "hunter22", "caller's record is not modified")
}

func TestSink_Close(t *testing.T) {
	r := &fakeRemote{}
	sink, _ := newTestSink(t, r)

	require.NoError(t, sink.Close())
	assert.True(t, r.closed)

	// Writes after close are logged, not returned.
	sink.Record(context.Background(), testRecord("late"))
}

func TestSink_LogsCarryRequestID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace_log.jsonl")
	log, err := OpenJSONLLog(path)
	require.NoError(t, err)
	r := &fakeRemote{}
	r.set(errors.New("insert refused"), nil)
	tl := logging.NewTestLogger()
	sink := NewSink(log, r, nil, SinkConfig{MaxAttempts: 2, Backoff: time.Millisecond}, tl.Underlying())
	defer sink.Close()

	sink.Init(context.Background())
	tl.AssertField(t, "remote store available", "log_path", path)

	ctx := logging.WithRequestID(context.Background(), "req-9")
	sink.Record(ctx, testRecord("a"))

	tl.AssertLogged(t, zapcore.ErrorLevel, "remote write failed")
	tl.AssertField(t, "remote write failed", "request.id", "req-9")
	tl.AssertField(t, "remote write failed", "id", "a")
}
