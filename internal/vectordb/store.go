package vectordb

import (
	"context"
	"strconv"
	"time"
)

// Entry is one indexed chunk of a document.
type Entry struct {
	ID        string
	Source    string
	Index     int
	Text      string
	Embedding []float32
	// Seq orders entries by commit; it breaks similarity ties.
	Seq uint64
}

// EntryID is the stable identifier of chunk index of source.
func EntryID(source string, index int) string {
	return source + "#" + strconv.Itoa(index)
}

// SourceInfo describes a document whose chunks are committed to the index.
type SourceInfo struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	Chunks      int       `json:"chunks"`
	ContentHash string    `json:"content_hash,omitempty"`
	IndexedAt   time.Time `json:"indexed_at"`
}

// SearchResult pairs an entry with its cosine similarity to the query.
type SearchResult struct {
	Entry      Entry
	Similarity float32
}

// VectorStore holds chunk embeddings grouped by source document. Readers see
// the last committed state; every mutation is all-or-nothing.
type VectorStore interface {
	// Add inserts entries. Entries of a source already present are added to
	// it; an ID that already exists is overwritten.
	Add(ctx context.Context, entries []Entry) error

	// Replace swaps every entry of info.Name for entries in one step.
	Replace(ctx context.Context, info SourceInfo, entries []Entry) error

	// DeleteBySource removes every entry of name. Unknown names are a no-op.
	DeleteBySource(ctx context.Context, name string) error

	// Search returns up to k entries most similar to vector, best first.
	// Equal similarities keep commit order.
	Search(ctx context.Context, vector []float32, k int) ([]SearchResult, error)

	// BySource returns the entries of name in chunk order.
	BySource(ctx context.Context, name string) ([]Entry, error)

	// All returns every entry, grouped by source in name order.
	All(ctx context.Context) ([]Entry, error)

	// Sources lists committed documents sorted by name.
	Sources() []SourceInfo

	// Source returns the committed info for name.
	Source(name string) (SourceInfo, bool)

	// Rebuild compacts the index into a fresh collection holding exactly the
	// entries the manifest references.
	Rebuild(ctx context.Context) error

	// Persist writes a new on-disk generation and makes it current.
	Persist(ctx context.Context) error

	// Load restores the current on-disk generation, if any.
	Load(ctx context.Context) error

	// Count returns the number of entries.
	Count() int

	// Generation changes whenever the committed content changes.
	Generation() uint64
}
