// Package keyword keeps an in-memory full-text index of chunk text. It
// supplies the lexical half of hybrid retrieval.
package keyword

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Chunk is the text of one indexed chunk.
type Chunk struct {
	ID   string
	Text string
}

// Hit is a keyword match.
type Hit struct {
	ID     string
	Source string
	Score  float64
}

// Index wraps a memory-only bleve index keyed by chunk ID.
type Index struct {
	idx bleve.Index
}

// New creates an empty index.
func New() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("create keyword index: %w", err)
	}
	return &Index{idx: idx}, nil
}

func buildMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = "en"
	im.DefaultField = "content"

	doc := bleve.NewDocumentMapping()

	content := bleve.NewTextFieldMapping()
	content.Store = false
	content.Index = true
	doc.AddFieldMappingsAt("content", content)

	source := bleve.NewTextFieldMapping()
	source.Store = true
	source.Index = true
	source.Analyzer = "keyword"
	doc.AddFieldMappingsAt("source", source)

	im.DefaultMapping = doc
	return im
}

// Replace makes chunks the only indexed text of source, in one batch.
func (i *Index) Replace(source string, chunks []Chunk) error {
	old, err := i.idsOf(source)
	if err != nil {
		return err
	}
	b := i.idx.NewBatch()
	for _, id := range old {
		b.Delete(id)
	}
	for _, c := range chunks {
		if err := b.Index(c.ID, map[string]interface{}{"source": source, "content": c.Text}); err != nil {
			return fmt.Errorf("index chunk %s: %w", c.ID, err)
		}
	}
	if err := i.idx.Batch(b); err != nil {
		return fmt.Errorf("keyword batch for %s: %w", source, err)
	}
	return nil
}

// DeleteSource removes every chunk of source.
func (i *Index) DeleteSource(source string) error {
	return i.Replace(source, nil)
}

func (i *Index) idsOf(source string) ([]string, error) {
	n, err := i.idx.DocCount()
	if err != nil {
		return nil, fmt.Errorf("keyword doc count: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	q := bleve.NewTermQuery(source)
	q.SetField("source")
	req := bleve.NewSearchRequestOptions(q, int(n), 0, false)
	res, err := i.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword lookup %s: %w", source, err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}

// Scores returns the keyword relevance of text to each of ids, scaled so the
// best match is 1. IDs without a match are absent from the map.
func (i *Index) Scores(text string, ids []string) (map[string]float64, error) {
	if len(ids) == 0 || text == "" {
		return map[string]float64{}, nil
	}
	match := bleve.NewMatchQuery(text)
	match.SetField("content")
	q := bleve.NewConjunctionQuery(match, bleve.NewDocIDQuery(ids))

	res, err := i.idx.Search(bleve.NewSearchRequestOptions(q, len(ids), 0, false))
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return normalize(res.Hits.Len(), func(j int) (string, float64) {
		return res.Hits[j].ID, res.Hits[j].Score
	}), nil
}

// Search returns the best keyword matches for text across all chunks.
func (i *Index) Search(text string, limit int) ([]Hit, error) {
	if text == "" || limit <= 0 {
		return nil, nil
	}
	var q query.Query = bleve.NewMatchQuery(text)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"source"}
	res, err := i.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		src, _ := h.Fields["source"].(string)
		hits = append(hits, Hit{ID: h.ID, Source: src, Score: h.Score})
	}
	return hits, nil
}

// Sources returns the distinct sources that have indexed chunks.
func (i *Index) Sources() []string {
	n, err := i.idx.DocCount()
	if err != nil || n == 0 {
		return nil
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(n), 0, false)
	req.Fields = []string{"source"}
	res, err := i.idx.Search(req)
	if err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, h := range res.Hits {
		if src, _ := h.Fields["source"].(string); src != "" && !seen[src] {
			seen[src] = true
			out = append(out, src)
		}
	}
	return out
}

// Count returns the number of indexed chunks.
func (i *Index) Count() int {
	n, err := i.idx.DocCount()
	if err != nil {
		return 0
	}
	return int(n)
}

// Close releases the index.
func (i *Index) Close() error {
	return i.idx.Close()
}

func normalize(n int, at func(int) (string, float64)) map[string]float64 {
	out := make(map[string]float64, n)
	var best float64
	for j := 0; j < n; j++ {
		if _, s := at(j); s > best {
			best = s
		}
	}
	if best <= 0 {
		return out
	}
	for j := 0; j < n; j++ {
		id, s := at(j)
		out[id] = s / best
	}
	return out
}
