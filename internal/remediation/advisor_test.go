package remediation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apiv1 "github.com/fyrsmithlabs/tracelens/pkg/api/v1"
)

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", "  x = 1  ", "x = 1"},
		{"bare fence", "```\nx = 1\n```", "x = 1"},
		{"language tag", "```python\nif b == 0:\n    return None\n```", "if b == 0:\n    return None"},
		{"json tag", "```json\n{\"a\": 1}\n```\n", "{\"a\": 1}"},
		{"single line", "```print(1)```", "print(1)"},
		{"code on opening line", "```print(1)\nprint(2)\n```", "print(1)\nprint(2)"},
		{"keeps inner indentation", "```\n    indented\n```", "    indented"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFences(tt.in))
		})
	}
}

func TestNewRequest(t *testing.T) {
	req := NewRequest(
		apiv1.ErrorIdentity{Kind: "KeyError", Message: "'missing'"},
		[]apiv1.SimilarityHit{{Snippet: "trace", SourceTag: "docs", URL: "https://x", Distance: 0.5}},
	)
	assert.Equal(t, "KeyError", req.ErrorKind)
	assert.Equal(t, "'missing'", req.ErrorMessage)
	assert.Equal(t, []RelatedSnippet{{Snippet: "trace", SourceTag: "docs"}}, req.RelatedSnippets)
}

func TestNewAdvisor(t *testing.T) {
	a, err := NewAdvisor(Config{Provider: "catalog"}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &CatalogAdvisor{}, a)

	_, err = NewAdvisor(Config{Provider: "oracle"}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewAdvisor(Config{Provider: "ollama"}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestCatalogAdvisor(t *testing.T) {
	a := NewCatalogAdvisor()

	tests := []struct {
		kind        string
		summary     string
		code        string
		referenceTo string
	}{
		{
			kind:        "ZeroDivisionError",
			summary:     "You're trying to divide a number by zero.",
			code:        "def divide(a, b):\n    if b == 0:\n        return 'Cannot divide by zero'\n    return a / b",
			referenceTo: "https://docs.python.org/3/library/exceptions.html#ZeroDivisionError",
		},
		{
			kind:        "KeyError",
			summary:     "You're trying to access a key that doesn't exist in a dictionary.",
			code:        "value = my_dict.get('key', 'default')",
			referenceTo: "https://docs.python.org/3/library/exceptions.html#KeyError",
		},
		{
			kind:        "IndexError",
			summary:     "You're trying to access an index that is out of range.",
			code:        "if i < len(my_list):\n    print(my_list[i])",
			referenceTo: "https://docs.python.org/3/library/exceptions.html#IndexError",
		},
		{
			kind:        "RecursionError",
			summary:     "No fix suggestion found for RecursionError.",
			code:        "# Add input validation or debug this section.",
			referenceTo: "https://docs.python.org/3/library/exceptions.html",
		},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			advice, err := a.Advise(context.Background(), Request{ErrorKind: tt.kind})
			require.NoError(t, err)
			assert.Equal(t, tt.summary, advice.Summary)
			assert.Equal(t, tt.code, advice.CodeExample)
			require.Len(t, advice.References, 1)
			assert.Equal(t, tt.referenceTo, advice.References[0].URL)
		})
	}
}

func TestCatalogAdvisor_ReturnsCopies(t *testing.T) {
	a := NewCatalogAdvisor()

	first, err := a.Advise(context.Background(), Request{ErrorKind: "KeyError"})
	require.NoError(t, err)
	first.References[0].URL = "mutated"

	second, err := a.Advise(context.Background(), Request{ErrorKind: "KeyError"})
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", second.References[0].URL)
}
