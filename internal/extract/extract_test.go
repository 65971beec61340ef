package extract

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/chaxai/internal/apperr"
)

func TestTextPlain(t *testing.T) {
	got, err := Text("refunds.txt", []byte("\xef\xbb\xbfThe refund window is 30 days."))
	require.NoError(t, err)
	assert.Equal(t, "The refund window is 30 days.", got)
}

func TestTextMarkdownDropsMarkup(t *testing.T) {
	src := "# Policy\n\nThe *refund* window is **30 days**.\n\n```\nreturn_days = 30\n```\n\n<div>ignored</div>\n"
	got, err := Text("policy.md", []byte(src))
	require.NoError(t, err)

	assert.Contains(t, got, "Policy")
	assert.Contains(t, got, "The refund window is 30 days.")
	assert.Contains(t, got, "return_days = 30")
	assert.NotContains(t, got, "#")
	assert.NotContains(t, got, "*")
	assert.NotContains(t, got, "```")
	assert.NotContains(t, got, "ignored")
}

func TestTextUnsupported(t *testing.T) {
	_, err := Text("slides.pptx", []byte("x"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnsupportedFormat, apperr.KindOf(err))
	assert.Equal(t, 400, apperr.HTTPStatus(err))
}

func TestTextMalformedPDF(t *testing.T) {
	_, err := Text("broken.pdf", []byte("definitely not a pdf"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("a.PDF"))
	assert.True(t, Supported("notes.markdown"))
	assert.False(t, Supported("image.png"))
	assert.False(t, Supported("README"))
}

func TestChunksEmptyDocument(t *testing.T) {
	chunks, err := Chunks("empty.txt", []byte("  \n\n "), NewSplitter(100, 10))
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunksIndexed(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta. ", 40)
	chunks, err := Chunks("greek.txt", []byte(text), NewSplitter(120, 20))
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, "greek.txt", c.Source)
		assert.Equal(t, i, c.Index)
		assert.NotEmpty(t, c.Text)
	}
}

func TestSplitShortText(t *testing.T) {
	sp := NewSplitter(1000, 100)
	assert.Equal(t, []string{"short text"}, sp.Split("  short text \n"))
	assert.Nil(t, sp.Split("   "))
}

func TestSplitRespectsSize(t *testing.T) {
	var paras []string
	for i := 0; i < 30; i++ {
		paras = append(paras, strings.Repeat("word ", 15+i%7))
	}
	text := strings.Join(paras, "\n\n")

	sp := NewSplitter(200, 40)
	chunks := sp.Split(text)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 200)
	}
}

func TestSplitOverlap(t *testing.T) {
	words := make([]string, 100)
	for i := range words {
		words[i] = "w" + strings.Repeat("x", i%3) + string(rune('a'+i%26))
	}
	sp := NewSplitter(60, 15)
	chunks := sp.Split(strings.Join(words, " "))
	require.Greater(t, len(chunks), 2)

	for i := 1; i < len(chunks); i++ {
		prev := strings.Fields(chunks[i-1])
		next := strings.Fields(chunks[i])
		assert.Greater(t, sharedWords(prev, next), 0, "chunk %d should start with the tail of chunk %d", i, i-1)
	}
}

// sharedWords returns the length of the longest suffix of prev that is also
// a prefix of next.
func sharedWords(prev, next []string) int {
	for k := min(len(prev), len(next)); k > 0; k-- {
		match := true
		for j := 0; j < k; j++ {
			if prev[len(prev)-k+j] != next[j] {
				match = false
				break
			}
		}
		if match {
			return k
		}
	}
	return 0
}

func TestSplitLongWordFallsBackToRunes(t *testing.T) {
	sp := NewSplitter(10, 0)
	chunks := sp.Split(strings.Repeat("é", 25))
	require.Len(t, chunks, 3)
	assert.Equal(t, 10, utf8.RuneCountInString(chunks[0]))
	assert.Equal(t, 5, utf8.RuneCountInString(chunks[2]))
}

func TestNewSplitterClampsOverlap(t *testing.T) {
	sp := NewSplitter(100, 500)
	assert.Less(t, sp.Overlap, sp.Size)
	assert.Equal(t, 1000, NewSplitter(0, 0).Size)
}
