package vectorstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCorpus_JSONArray(t *testing.T) {
	path := writeFile(t, "corpus.json", `[
		{"trace": "a", "source": "python_docs", "url": "https://docs.python.org"},
		{"text": "b", "sourceTag": "tagged"},
		{"trace": "c", "sourceType": "typed"},
		{"trace": "d"}
	]`)

	items, err := LoadCorpus(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []CorpusItem{
		{Text: "a", SourceTag: "python_docs", URL: "https://docs.python.org"},
		{Text: "b", SourceTag: "tagged"},
		{Text: "c", SourceTag: "typed"},
		{Text: "d", SourceTag: DefaultSourceTag},
	}, items)
}

func TestLoadCorpus_JSONL(t *testing.T) {
	path := writeFile(t, "corpus.jsonl",
		`{"trace": "a", "source": "s"}`+"\n"+
			"\n"+
			`not json`+"\n"+
			`{"trace": "b"}`+"\n")

	items, err := LoadCorpus(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []CorpusItem{
		{Text: "a", SourceTag: "s"},
		{Text: "b", SourceTag: DefaultSourceTag},
	}, items)
}

func TestLoadCorpus_Errors(t *testing.T) {
	_, err := LoadCorpus(filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.Error(t, err)

	_, err = LoadCorpus(writeFile(t, "bad.json", `[{"trace": `), nil)
	assert.Error(t, err)
}

func TestReplayLog(t *testing.T) {
	path := writeFile(t, "trace_log.jsonl",
		`{"id":"1","timestamp":"2024-01-01T00:00:00Z","trace":"first","result":{}}`+"\n"+
			`{"id":"2","timestamp":"2024-01-01T00:00:01Z","trace":"second","result":{}}`+"\n"+
			`{"id":"3","timestamp":"2024-01-01T00:00:02Z","trace":"first","result":{}}`+"\n"+
			`{"id":"4","timestamp":"2024-01-01T00:00:03Z","trace":"  ","result":{}}`+"\n"+
			`garbage`+"\n")

	items, err := ReplayLog(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []CorpusItem{
		{Text: "first", SourceTag: DefaultSourceTag},
		{Text: "second", SourceTag: DefaultSourceTag},
	}, items)
}

func TestSeedCorpus(t *testing.T) {
	items := SeedCorpus()
	require.Len(t, items, 3)
	for _, item := range items {
		assert.Contains(t, item.Text, "Traceback (most recent call last):")
		assert.NotEmpty(t, item.SourceTag)
	}
}
