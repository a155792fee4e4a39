package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/tracelens/internal/vectorstore"
)

const divisionTrace = `Traceback (most recent call last):
  File "calc.py", line 5, in divide
    return a / b
ZeroDivisionError: division by zero`

// pipelineEnv points config at temp paths and an embedding backend that
// refuses connections.
func pipelineEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("TRACELENS_INDEX_PATH", filepath.Join(dir, "index", "traces"))
	t.Setenv("TRACELENS_PERSISTENCE_LOG_PATH", filepath.Join(dir, "logs", "trace_log.jsonl"))
	t.Setenv("TRACELENS_EMBEDDINGS_PROVIDER", "tei")
	t.Setenv("TRACELENS_EMBEDDINGS_BASE_URL", "http://127.0.0.1:1")

	old := configPath
	configPath = ""
	t.Cleanup(func() { configPath = old })
}

func TestInitPipeline_EmbeddingsDown(t *testing.T) {
	tests := []struct {
		name     string
		provider string
	}{
		{"backend unreachable", ""},
		{"provider cannot be created", "word2vec"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pipelineEnv(t)
			ctx := context.Background()

			a, err := newBaseApp(ctx)
			require.NoError(t, err)
			if tt.provider != "" {
				a.cfg.Embeddings.Provider = tt.provider
			}

			require.NoError(t, a.initPipeline(ctx))
			defer a.Close(ctx)

			assert.Zero(t, a.index.Len())

			rec, err := a.service.Analyze(ctx, divisionTrace)
			require.NoError(t, err)
			require.Len(t, rec.Frames, 1)
			assert.Equal(t, "calc.py", rec.Frames[0].File)
			assert.Equal(t, "ZeroDivisionError", rec.Error.Kind)
			assert.Equal(t, "division by zero", rec.Error.Message)
			assert.Empty(t, rec.Hits)
			assert.NotEmpty(t, rec.Advice.Summary)

			// Rebuilding while the backend is still down keeps the empty index.
			assert.Error(t, a.index.Rebuild(ctx))
			assert.Zero(t, a.index.Len())
		})
	}
}

// teiServer answers /embed with hashEncoder vectors of the given dimension.
func teiServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	enc := hashEncoder{dim: dim}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Inputs json.RawMessage `json:"inputs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var texts []string
		if err := json.Unmarshal(req.Inputs, &texts); err != nil {
			var one string
			if err := json.Unmarshal(req.Inputs, &one); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			texts = []string{one}
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i], _ = enc.Encode(r.Context(), text)
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInitIndex_RecoversOnRebuild(t *testing.T) {
	pipelineEnv(t)
	ctx := context.Background()

	a, err := newBaseApp(ctx)
	require.NoError(t, err)
	a.cfg.Embeddings.Provider = "word2vec"

	a.initIndex(ctx)
	require.Nil(t, a.encoder)
	assert.Zero(t, a.index.Len())

	// The backend comes up later; the next rebuild creates the encoder and
	// fills the index.
	srv := teiServer(t, 384)
	a.cfg.Embeddings.Provider = "tei"
	a.cfg.Embeddings.BaseURL = srv.URL

	require.NoError(t, a.index.Rebuild(ctx))
	require.NotNil(t, a.encoder)
	assert.Equal(t, len(vectorstore.SeedCorpus()), a.index.Len())

	hits, err := a.index.Search(ctx, "ZeroDivisionError: division by zero", 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}
