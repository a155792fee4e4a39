package vectorstore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
)

// maxLineSize bounds a single JSONL line. Traces are capped well below this
// by the analysis size limit.
const maxLineSize = 4 * 1024 * 1024

// rawCorpusItem accepts the key spellings seen in corpus files.
type rawCorpusItem struct {
	Trace      string `json:"trace"`
	Text       string `json:"text"`
	Source     string `json:"source"`
	SourceTag  string `json:"sourceTag"`
	SourceType string `json:"sourceType"`
	URL        string `json:"url"`
}

func (r rawCorpusItem) item() CorpusItem {
	text := r.Trace
	if text == "" {
		text = r.Text
	}
	tag := firstNonEmpty(r.Source, r.SourceTag, r.SourceType)
	if tag == "" {
		tag = DefaultSourceTag
	}
	return CorpusItem{Text: text, SourceTag: tag, URL: r.URL}
}

// LoadCorpus reads corpus items from a JSON array or a JSONL file. Malformed
// JSONL lines are skipped and counted.
func LoadCorpus(path string, logger *zap.Logger) ([]CorpusItem, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading corpus: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var raw []rawCorpusItem
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("decoding corpus %s: %w", path, err)
		}
		items := make([]CorpusItem, len(raw))
		for i, r := range raw {
			items[i] = r.item()
		}
		return items, nil
	}

	var items []CorpusItem
	skipped := 0
	err = scanJSONL(bytes.NewReader(data), func(line []byte) {
		var r rawCorpusItem
		if err := json.Unmarshal(line, &r); err != nil {
			skipped++
			return
		}
		items = append(items, r.item())
	})
	if err != nil {
		return nil, fmt.Errorf("scanning corpus %s: %w", path, err)
	}
	if skipped > 0 {
		logger.Warn("skipped malformed corpus lines", zap.String("path", path), zap.Int("skipped", skipped))
	}
	return items, nil
}

// logLine is the subset of a persisted analysis log line needed for replay.
type logLine struct {
	Trace string `json:"trace"`
}

// ReplayLog rebuilds a corpus from the persisted analysis log. Each distinct
// trace becomes one item tagged DefaultSourceTag; the first occurrence wins.
func ReplayLog(path string, logger *zap.Logger) ([]CorpusItem, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening analysis log: %w", err)
	}
	defer f.Close()

	seen := make(map[string]struct{})
	var items []CorpusItem
	skipped := 0
	err = scanJSONL(f, func(line []byte) {
		var l logLine
		if err := json.Unmarshal(line, &l); err != nil {
			skipped++
			return
		}
		if strings.TrimSpace(l.Trace) == "" {
			return
		}
		if _, dup := seen[l.Trace]; dup {
			return
		}
		seen[l.Trace] = struct{}{}
		items = append(items, CorpusItem{Text: l.Trace, SourceTag: DefaultSourceTag})
	})
	if err != nil {
		return nil, fmt.Errorf("scanning analysis log: %w", err)
	}

	logger.Info("replayed analysis log",
		zap.String("path", path),
		zap.Int("traces", len(items)),
		zap.Int("skipped", skipped),
	)
	return items, nil
}

func scanJSONL(r io.Reader, fn func([]byte)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		fn(line)
	}
	return scanner.Err()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// SeedCorpus returns a small built-in corpus of common Python errors, used
// when no corpus file is configured.
func SeedCorpus() []CorpusItem {
	return []CorpusItem{
		{
			Text: "Traceback (most recent call last):\n" +
				"  File \"main.py\", line 10, in <module>\n" +
				"    result = divide(5, 0)\n" +
				"  File \"main.py\", line 6, in divide\n" +
				"    return a / b\n" +
				"ZeroDivisionError: division by zero",
			SourceTag: "python_docs",
			URL:       "https://docs.python.org/3/library/exceptions.html#ZeroDivisionError",
		},
		{
			Text: "Traceback (most recent call last):\n" +
				"  File \"main.py\", line 12, in <module>\n" +
				"    item = my_list[10]\n" +
				"IndexError: list index out of range",
			SourceTag: DefaultSourceTag,
		},
		{
			Text: "Traceback (most recent call last):\n" +
				"  File \"main.py\", line 8, in <module>\n" +
				"    value = d['missing']\n" +
				"KeyError: 'missing'",
			SourceTag: "python_docs",
			URL:       "https://docs.python.org/3/library/exceptions.html#KeyError",
		},
	}
}
