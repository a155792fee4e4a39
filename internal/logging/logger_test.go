package logging

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/tracelens/internal/config"
)

func newBufferLogger(t *testing.T, cfg RedactionConfig) (*zap.Logger, *bytes.Buffer) {
	t.Helper()
	enc, err := NewRedactingEncoder(newEncoder("json"), cfg)
	require.NoError(t, err)
	buf := &bytes.Buffer{}
	core := zapcore.NewCore(enc, zapcore.AddSync(buf), zapcore.DebugLevel)
	return zap.New(core), buf
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, logger.Underlying())
	assert.NoError(t, logger.Sync())
}

type recordingExporter struct {
	mu     sync.Mutex
	bodies []string
}

func (e *recordingExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.bodies = append(e.bodies, r.Body().AsString())
	}
	return nil
}

func (e *recordingExporter) Shutdown(context.Context) error   { return nil }
func (e *recordingExporter) ForceFlush(context.Context) error { return nil }

func TestNewLogger_OTELOutput(t *testing.T) {
	exp := &recordingExporter{}
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exp)))
	defer provider.Shutdown(context.Background())

	cfg := NewDefaultConfig()
	cfg.Output.Stdout = false
	cfg.Output.OTEL = true

	logger, err := NewLogger(cfg, provider)
	require.NoError(t, err)
	logger.Underlying().Info("trace analysed", zap.String("error_type", "KeyError"))

	exp.mu.Lock()
	defer exp.mu.Unlock()
	assert.Equal(t, []string{"trace analysed"}, exp.bodies)
}

func TestNewLogger_OTELWithoutProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Stdout = false
	cfg.Output.OTEL = true

	_, err := NewLogger(cfg, nil)
	assert.Error(t, err)
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := NewLogger(cfg, nil)
	assert.Error(t, err)
}

func TestFromSettings(t *testing.T) {
	cfg, err := FromSettings("trace", "console")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)

	_, err = FromSettings("loud", "json")
	assert.Error(t, err)
}

func TestRedactingEncoder(t *testing.T) {
	logger, buf := newBufferLogger(t, NewDefaultConfig().Redaction)

	logger.Info("connecting",
		zap.String("database_url", "postgres://u:p@db/x"),
		zap.String("note", "Bearer abc.def.ghi"),
		zap.String("error_type", "KeyError"),
	)

	out := buf.String()
	assert.NotContains(t, out, "postgres://u:p@db/x")
	assert.NotContains(t, out, "abc.def.ghi")
	assert.Contains(t, out, `"database_url":"[REDACTED]"`)
	assert.Contains(t, out, `"note":"[REDACTED:pattern]"`)
	assert.Contains(t, out, `"error_type":"KeyError"`)
}

func TestRedactingEncoder_WithFields(t *testing.T) {
	logger, buf := newBufferLogger(t, NewDefaultConfig().Redaction)

	logger.With(zap.String("token", "s3cr3t")).Info("child")
	assert.NotContains(t, buf.String(), "s3cr3t")
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	logger, buf := newBufferLogger(t, RedactionConfig{Enabled: false})

	logger.Info("raw", zap.String("token", "visible"))
	assert.Contains(t, buf.String(), "visible")
}

func TestSecretField(t *testing.T) {
	f := Secret("api_key", config.Secret("abcdef"))
	assert.Equal(t, "[REDACTED:6]", f.String)
}

func TestContextFields(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req_42")
	assert.Equal(t, "req_42", RequestIDFromContext(ctx))

	fields := ContextFields(ctx)
	require.Len(t, fields, 1)
	assert.Equal(t, "request.id", fields[0].Key)

	bad := WithRequestID(context.Background(), "has spaces")
	assert.Empty(t, RequestIDFromContext(bad))
}

func TestTestLogger(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithRequestID(context.Background(), "r1")

	logger := tl.Underlying().With(ContextFields(ctx)...)
	logger.Warn("stage fell back", zap.String("stage", "search"))
	logger.Log(TraceLevel, "frame parsed")

	tl.AssertLogged(t, zapcore.WarnLevel, "fell back")
	tl.AssertLogged(t, TraceLevel, "frame parsed")
	tl.AssertField(t, "stage fell back", "stage", "search")
	tl.AssertField(t, "stage fell back", "request.id", "r1")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "fell back")

	tl.Reset()
	assert.Empty(t, tl.All())
}

func TestSampledCore_ErrorsNeverDropped(t *testing.T) {
	buf := &bytes.Buffer{}
	base := zapcore.NewCore(newEncoder("json"), zapcore.AddSync(buf), zapcore.DebugLevel)
	cfg := NewDefaultConfig().Sampling
	cfg.Initial = 1
	cfg.Thereafter = 0

	logger := zap.New(newSampledCore(base, cfg))
	for i := 0; i < 5; i++ {
		logger.Info("repeat")
		logger.Error("failure")
	}

	out := buf.String()
	assert.Equal(t, 1, bytes.Count([]byte(out), []byte(`"msg":"repeat"`)))
	assert.Equal(t, 5, bytes.Count([]byte(out), []byte(`"msg":"failure"`)))
}

func TestLevelFromString(t *testing.T) {
	tests := map[string]zapcore.Level{
		"trace": TraceLevel,
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"error": zapcore.ErrorLevel,
	}
	for in, want := range tests {
		got, err := LevelFromString(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
