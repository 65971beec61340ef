// Package extract turns document bytes into plain text and splits that text
// into overlapping chunks for embedding.
package extract

import (
	"path/filepath"
	"strings"

	"github.com/ziadkadry99/chaxai/internal/apperr"
)

// Extractor converts raw file content to plain text.
type Extractor interface {
	Extract(data []byte) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(data []byte) (string, error)

func (f ExtractorFunc) Extract(data []byte) (string, error) { return f(data) }

var extractors = map[string]Extractor{
	".pdf":      ExtractorFunc(extractPDF),
	".md":       ExtractorFunc(extractMarkdown),
	".markdown": ExtractorFunc(extractMarkdown),
	".txt":      ExtractorFunc(extractText),
	".text":     ExtractorFunc(extractText),
}

// SupportedExtensions lists the file extensions that can be ingested.
func SupportedExtensions() []string {
	return []string{".pdf", ".md", ".markdown", ".txt", ".text"}
}

// Supported reports whether name has an ingestible extension.
func Supported(name string) bool {
	_, ok := extractors[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Text extracts plain text from data, choosing the extractor by the
// extension of name.
func Text(name string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	ex, ok := extractors[ext]
	if !ok {
		return "", apperr.Newf(apperr.KindUnsupportedFormat,
			"unsupported file type %q: supported types are %s", ext, strings.Join(SupportedExtensions(), ", "))
	}
	text, err := ex.Extract(data)
	if err != nil {
		return "", apperr.E(apperr.KindInvalidInput, "could not extract text from "+name, err)
	}
	return text, nil
}

// Chunk is a contiguous slice of a document's text.
type Chunk struct {
	Source string
	Index  int
	Text   string
}

// Chunks extracts name's text and splits it with sp. A document without any
// extractable text yields no chunks.
func Chunks(name string, data []byte, sp Splitter) ([]Chunk, error) {
	text, err := Text(name, data)
	if err != nil {
		return nil, err
	}
	pieces := sp.Split(text)
	chunks := make([]Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = Chunk{Source: name, Index: i, Text: p}
	}
	return chunks, nil
}
