package vectorstore

import (
	"context"
	"errors"
	"strings"
)

// fakeEncoder returns fixed vectors per text. Unknown non-blank text maps to
// a vector derived from its length.
type fakeEncoder struct {
	dim   int
	vecs  map[string][]float32
	fail  map[string]bool
	calls int
}

var errEncode = errors.New("encode failed")

func newFakeEncoder(dim int) *fakeEncoder {
	return &fakeEncoder{dim: dim, vecs: map[string][]float32{}, fail: map[string]bool{}}
}

func (f *fakeEncoder) with(text string, vec ...float32) *fakeEncoder {
	f.vecs[text] = vec
	return f
}

func (f *fakeEncoder) Encode(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.fail[text] {
		return nil, errEncode
	}
	if strings.TrimSpace(text) == "" {
		return make([]float32, f.dim), nil
	}
	if v, ok := f.vecs[text]; ok {
		return v, nil
	}
	v := make([]float32, f.dim)
	v[0] = float32(len(text))
	return v, nil
}

func (f *fakeEncoder) Dimension() int { return f.dim }
