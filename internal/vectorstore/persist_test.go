package vectorstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildAndSave(t *testing.T) (string, *FlatIndex, *fakeEncoder) {
	t.Helper()
	corpus, enc := testCorpus()
	idx, err := Build(context.Background(), enc, corpus, nil)
	require.NoError(t, err)

	base := filepath.Join(t.TempDir(), "nested", "traces")
	require.NoError(t, idx.Save(base))
	return base, idx, enc
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	base, built, enc := buildAndSave(t)

	loaded, err := Load(base, enc)
	require.NoError(t, err)
	assert.Equal(t, built.Len(), loaded.Len())
	assert.Equal(t, built.Dimension(), loaded.Dimension())

	for _, q := range []string{"query", "far", "zero"} {
		want, err := built.Search(context.Background(), q, 3)
		require.NoError(t, err)
		got, err := loaded.Search(context.Background(), q, 3)
		require.NoError(t, err)

		require.Len(t, got, len(want))
		for i := range want {
			assert.Equal(t, want[i].Snippet, got[i].Snippet)
			assert.Equal(t, want[i].SourceTag, got[i].SourceTag)
			assert.Equal(t, want[i].URL, got[i].URL)
			assert.InDelta(t, want[i].Distance, got[i].Distance, 1e-6)
		}
	}
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	base, _, _ := buildAndSave(t)

	entries, err := os.ReadDir(filepath.Dir(base))
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"traces.index", "traces.meta.json"}, names)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none"), newFakeEncoder(2))
	assert.ErrorIs(t, err, ErrIndexNotFound)
}

func TestLoad_Corrupt(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, vecPath, metaPath string)
	}{
		{
			name: "vectors only",
			mutate: func(t *testing.T, _, metaPath string) {
				require.NoError(t, os.Remove(metaPath))
			},
		},
		{
			name: "metadata only",
			mutate: func(t *testing.T, vecPath, _ string) {
				require.NoError(t, os.Remove(vecPath))
			},
		},
		{
			name: "count mismatch",
			mutate: func(t *testing.T, _, metaPath string) {
				require.NoError(t, os.WriteFile(metaPath,
					[]byte(`{"version":1,"dimension":2,"entries":[{"trace":"zero"}]}`), 0o644))
			},
		},
		{
			name: "dimension mismatch",
			mutate: func(t *testing.T, _, metaPath string) {
				require.NoError(t, os.WriteFile(metaPath,
					[]byte(`{"version":1,"dimension":3,"entries":[{},{},{}]}`), 0o644))
			},
		},
		{
			name: "bad metadata json",
			mutate: func(t *testing.T, _, metaPath string) {
				require.NoError(t, os.WriteFile(metaPath, []byte(`{`), 0o644))
			},
		},
		{
			name: "bad magic",
			mutate: func(t *testing.T, vecPath, _ string) {
				data, err := os.ReadFile(vecPath)
				require.NoError(t, err)
				copy(data, "XXXX")
				require.NoError(t, os.WriteFile(vecPath, data, 0o644))
			},
		},
		{
			name: "truncated vectors",
			mutate: func(t *testing.T, vecPath, _ string) {
				data, err := os.ReadFile(vecPath)
				require.NoError(t, err)
				require.NoError(t, os.WriteFile(vecPath, data[:len(data)-4], 0o644))
			},
		},
		{
			name: "trailing bytes",
			mutate: func(t *testing.T, vecPath, _ string) {
				data, err := os.ReadFile(vecPath)
				require.NoError(t, err)
				require.NoError(t, os.WriteFile(vecPath, append(data, 0), 0o644))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, _, enc := buildAndSave(t)
			vecPath, metaPath := IndexPaths(base)
			tt.mutate(t, vecPath, metaPath)

			_, err := Load(base, enc)
			assert.ErrorIs(t, err, ErrCorruptIndex)
		})
	}
}

func TestLoad_EncoderDimensionMismatch(t *testing.T) {
	base, _, _ := buildAndSave(t)

	_, err := Load(base, newFakeEncoder(4))
	assert.ErrorIs(t, err, ErrCorruptIndex)
}
