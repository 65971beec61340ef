package keyword

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestReplaceAndScores(t *testing.T) {
	idx := newIndex(t)
	require.NoError(t, idx.Replace("refunds.txt", []Chunk{
		{ID: "refunds.txt#0", Text: "The refund window is 30 days."},
		{ID: "refunds.txt#1", Text: "Contact support for anything else."},
	}))
	require.NoError(t, idx.Replace("shipping.txt", []Chunk{
		{ID: "shipping.txt#0", Text: "Refunds for shipping fees are not offered."},
	}))
	assert.Equal(t, 3, idx.Count())

	scores, err := idx.Scores("refund window", []string{"refunds.txt#0", "refunds.txt#1", "shipping.txt#0"})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, scores["refunds.txt#0"], 1e-9)
	assert.NotContains(t, scores, "refunds.txt#1")
	assert.Greater(t, scores["shipping.txt#0"], 0.0)
	assert.Less(t, scores["shipping.txt#0"], 1.0)
}

func TestScoresRestrictedToIDs(t *testing.T) {
	idx := newIndex(t)
	require.NoError(t, idx.Replace("a.txt", []Chunk{{ID: "a.txt#0", Text: "refund policy"}}))
	require.NoError(t, idx.Replace("b.txt", []Chunk{{ID: "b.txt#0", Text: "refund policy"}}))

	scores, err := idx.Scores("refund", []string{"b.txt#0"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"b.txt#0": 1}, scores)
}

func TestReplaceDropsOldChunks(t *testing.T) {
	idx := newIndex(t)
	require.NoError(t, idx.Replace("doc.md", []Chunk{
		{ID: "doc.md#0", Text: "alpha"},
		{ID: "doc.md#1", Text: "beta"},
	}))
	require.NoError(t, idx.Replace("doc.md", []Chunk{{ID: "doc.md#0", Text: "gamma"}}))
	assert.Equal(t, 1, idx.Count())

	hits, err := idx.Search("beta", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = idx.Search("gamma", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc.md", hits[0].Source)
}

func TestDeleteSource(t *testing.T) {
	idx := newIndex(t)
	require.NoError(t, idx.Replace("my_file.txt", []Chunk{{ID: "my_file.txt#0", Text: "alpha"}}))
	require.NoError(t, idx.Replace("other.txt", []Chunk{{ID: "other.txt#0", Text: "alpha"}}))

	require.NoError(t, idx.DeleteSource("my_file.txt"))
	require.NoError(t, idx.DeleteSource("never-indexed.txt"))

	hits, err := idx.Search("alpha", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "other.txt", hits[0].Source)
}

func TestScoresEmptyInputs(t *testing.T) {
	idx := newIndex(t)
	scores, err := idx.Scores("", []string{"x"})
	require.NoError(t, err)
	assert.Empty(t, scores)

	scores, err = idx.Scores("x", nil)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestSources(t *testing.T) {
	idx := newIndex(t)
	assert.Empty(t, idx.Sources())

	require.NoError(t, idx.Replace("a.txt", []Chunk{{ID: "a.txt#0", Text: "alpha"}, {ID: "a.txt#1", Text: "beta"}}))
	require.NoError(t, idx.Replace("b.txt", []Chunk{{ID: "b.txt#0", Text: "gamma"}}))
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, idx.Sources())

	require.NoError(t, idx.DeleteSource("a.txt"))
	assert.Equal(t, []string{"b.txt"}, idx.Sources())
}
