// Package embeddingstest provides deterministic embedders for tests.
package embeddingstest

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"
)

// HashEmbedder maps text to a bag-of-words vector: each lowercased word is
// hashed into one of Dims buckets. Texts sharing words get a positive cosine
// similarity, texts sharing none get zero.
type HashEmbedder struct {
	Dims int
	// Err, when set, is returned by every Embed call.
	Err error

	calls atomic.Int64
	mu    sync.Mutex
	texts []string
}

// New returns a HashEmbedder with 512 buckets.
func New() *HashEmbedder { return &HashEmbedder{Dims: 512} }

func (h *HashEmbedder) Name() string    { return "hash" }
func (h *HashEmbedder) Dimensions() int { return h.Dims }

func (h *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	h.calls.Add(1)
	h.mu.Lock()
	h.texts = append(h.texts, texts...)
	h.mu.Unlock()
	if h.Err != nil {
		return nil, h.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.Vector(t)
	}
	return out, nil
}

// Calls returns how many times Embed was invoked.
func (h *HashEmbedder) Calls() int { return int(h.calls.Load()) }

// Texts returns every text passed to Embed so far.
func (h *HashEmbedder) Texts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.texts...)
}

// Vector embeds a single text. Text without any words gets a constant
// vector so that it is still a valid, normalizable embedding.
func (h *HashEmbedder) Vector(text string) []float32 {
	vec := make([]float32, h.Dims)
	words := Words(text)
	if len(words) == 0 {
		vec[0] = 1
		return vec
	}
	for _, w := range words {
		f := fnv.New32a()
		f.Write([]byte(w))
		vec[f.Sum32()%uint32(h.Dims)]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// Words lowercases text and splits it on anything that is not a letter or
// digit.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
