package vectordb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ziadkadry99/chaxai/internal/embeddings/embeddingstest"
)

var embedder = embeddingstest.New()

// chunkEntries embeds texts as consecutive chunks of source.
func chunkEntries(source string, texts ...string) []Entry {
	entries := make([]Entry, len(texts))
	for i, text := range texts {
		entries[i] = Entry{
			ID:        EntryID(source, i),
			Source:    source,
			Index:     i,
			Text:      text,
			Embedding: embedder.Vector(text),
		}
	}
	return entries
}

func replace(t *testing.T, s VectorStore, source string, texts ...string) {
	t.Helper()
	info := SourceInfo{Name: source, Size: int64(len(strings.Join(texts, ""))), IndexedAt: time.Now().UTC()}
	if err := s.Replace(context.Background(), info, chunkEntries(source, texts...)); err != nil {
		t.Fatalf("Replace(%s): %v", source, err)
	}
}

func newStore(t *testing.T, opts ...Option) *ChromemStore {
	t.Helper()
	s, err := NewChromemStore(embedder, opts...)
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	return s
}

func search(t *testing.T, s VectorStore, query string, k int) []SearchResult {
	t.Helper()
	res, err := s.Search(context.Background(), embedder.Vector(query), k)
	if err != nil {
		t.Fatalf("Search(%q): %v", query, err)
	}
	return res
}

func TestChromemStore_AddAndSearch(t *testing.T) {
	s := newStore(t)
	replace(t, s, "refunds.txt", "The refund window is 30 days.")
	replace(t, s, "shipping.txt", "Orders ship within two business days.")

	res := search(t, s, "What is the refund window?", 1)
	if len(res) != 1 {
		t.Fatalf("expected 1 result, got %d", len(res))
	}
	if res[0].Entry.Source != "refunds.txt" {
		t.Errorf("expected refunds.txt, got %s", res[0].Entry.Source)
	}
	if res[0].Entry.Text != "The refund window is 30 days." {
		t.Errorf("unexpected text %q", res[0].Entry.Text)
	}
	if res[0].Similarity <= 0 {
		t.Errorf("expected positive similarity, got %f", res[0].Similarity)
	}
}

func TestChromemStore_SearchEmpty(t *testing.T) {
	s := newStore(t)
	res := search(t, s, "anything", 4)
	if res == nil || len(res) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", res)
	}
}

func TestChromemStore_SearchKLargerThanIndex(t *testing.T) {
	s := newStore(t)
	replace(t, s, "a.txt", "alpha", "beta")
	if got := len(search(t, s, "alpha", 10)); got != 2 {
		t.Errorf("expected 2 results, got %d", got)
	}
	if got := len(search(t, s, "alpha", 0)); got != 0 {
		t.Errorf("expected 0 results for k=0, got %d", got)
	}
}

func TestChromemStore_TiesKeepInsertionOrder(t *testing.T) {
	s := newStore(t)
	vec := []float32{1, 0, 0, 0}
	for _, src := range []string{"c.txt", "a.txt", "b.txt"} {
		err := s.Add(context.Background(), []Entry{{ID: EntryID(src, 0), Source: src, Text: src, Embedding: vec}})
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	res, err := s.Search(context.Background(), vec, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	var order []string
	for _, r := range res {
		order = append(order, r.Entry.Source)
	}
	if strings.Join(order, ",") != "c.txt,a.txt,b.txt" {
		t.Errorf("expected insertion order for ties, got %v", order)
	}
}

func TestChromemStore_ReplaceSwapsChunks(t *testing.T) {
	s := newStore(t)
	replace(t, s, "policy.md", "old refund text", "old shipping text", "old warranty text")
	replace(t, s, "policy.md", "new refund text")

	entries, err := s.BySource(context.Background(), "policy.md")
	if err != nil {
		t.Fatalf("BySource: %v", err)
	}
	if len(entries) != 1 || entries[0].Text != "new refund text" {
		t.Fatalf("expected only the new chunk, got %+v", entries)
	}
	if s.Count() != 1 {
		t.Errorf("expected 1 entry, got %d", s.Count())
	}
	info, ok := s.Source("policy.md")
	if !ok || info.Chunks != 1 {
		t.Errorf("expected source info with 1 chunk, got %+v (%v)", info, ok)
	}
}

func TestChromemStore_ReplaceRejectsDimensionMismatch(t *testing.T) {
	s := newStore(t)
	replace(t, s, "a.txt", "alpha")
	gen := s.Generation()

	bad := []Entry{{ID: EntryID("b.txt", 0), Source: "b.txt", Text: "x", Embedding: []float32{1, 2, 3}}}
	err := s.Replace(context.Background(), SourceInfo{Name: "b.txt"}, bad)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, ok := s.Source("b.txt"); ok {
		t.Error("failed replace must not register the source")
	}
	if s.Generation() != gen {
		t.Error("failed replace must not bump the generation")
	}
}

func TestChromemStore_DeleteBySource(t *testing.T) {
	s := newStore(t)
	replace(t, s, "refunds.txt", "The refund window is 30 days.", "Refunds go to the original card.")
	replace(t, s, "shipping.txt", "Orders ship within two business days.")

	if err := s.DeleteBySource(context.Background(), "refunds.txt"); err != nil {
		t.Fatalf("DeleteBySource: %v", err)
	}
	for _, r := range search(t, s, "refund window", 10) {
		if r.Entry.Source == "refunds.txt" {
			t.Fatalf("deleted source returned by search: %+v", r)
		}
	}
	if s.Count() != 1 {
		t.Errorf("expected 1 entry left, got %d", s.Count())
	}

	// Unknown names are a no-op.
	gen := s.Generation()
	if err := s.DeleteBySource(context.Background(), "missing.txt"); err != nil {
		t.Errorf("expected no error for unknown source, got %v", err)
	}
	if s.Generation() != gen {
		t.Error("no-op delete must not bump the generation")
	}
}

func TestChromemStore_RebuildKeepsContent(t *testing.T) {
	s := newStore(t)
	replace(t, s, "a.txt", "alpha one", "alpha two")
	replace(t, s, "b.txt", "beta")
	if err := s.DeleteBySource(context.Background(), "a.txt"); err != nil {
		t.Fatal(err)
	}
	if err := s.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	all, err := s.All(context.Background())
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 || all[0].Source != "b.txt" {
		t.Fatalf("unexpected entries after rebuild: %+v", all)
	}
	if res := search(t, s, "beta", 1); len(res) != 1 || res[0].Entry.Source != "b.txt" {
		t.Errorf("search after rebuild returned %+v", res)
	}
}

func TestChromemStore_PersistAndLoad(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, WithDir(dir))
	replace(t, s, "refunds.txt", "The refund window is 30 days.")
	replace(t, s, "shipping.txt", "Orders ship within two business days.")
	if err := s.Persist(context.Background()); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	s2 := newStore(t, WithDir(dir))
	if err := s2.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s2.Count() != 2 {
		t.Fatalf("expected 2 entries after load, got %d", s2.Count())
	}
	if s2.Generation() != s.Generation() {
		t.Errorf("generation not restored: %d vs %d", s2.Generation(), s.Generation())
	}
	srcs := s2.Sources()
	if len(srcs) != 2 || srcs[0].Name != "refunds.txt" || srcs[0].Chunks != 1 {
		t.Errorf("unexpected sources after load: %+v", srcs)
	}
	if res := search(t, s2, "refund window", 1); len(res) != 1 || res[0].Entry.Source != "refunds.txt" {
		t.Errorf("unexpected search after load: %+v", res)
	}

	// Sequence numbers continue after a reload.
	replace(t, s2, "warranty.txt", "Warranty lasts one year.")
	entries, _ := s2.BySource(context.Background(), "warranty.txt")
	if entries[0].Seq <= 2 {
		t.Errorf("expected seq to continue past loaded entries, got %d", entries[0].Seq)
	}
}

func TestChromemStore_LoadWithoutCurrentIsEmpty(t *testing.T) {
	s := newStore(t, WithDir(t.TempDir()))
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Count() != 0 {
		t.Errorf("expected empty store")
	}
}

func TestChromemStore_PersistPrunesOldGenerations(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, WithDir(dir))
	for i := 0; i < 4; i++ {
		replace(t, s, "a.txt", strings.Repeat("word ", i+1))
		if err := s.Persist(context.Background()); err != nil {
			t.Fatalf("Persist %d: %v", i, err)
		}
	}

	current, err := os.ReadFile(filepath.Join(dir, currentFile))
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(current)) != "gen-000004" {
		t.Errorf("expected CURRENT to name gen-000004, got %q", current)
	}
	gens, _ := filepath.Glob(filepath.Join(dir, "gen-*"))
	if len(gens) != keepGenerations {
		t.Errorf("expected %d generations on disk, got %v", keepGenerations, gens)
	}
}

func TestChromemStore_CrashBeforeSwapKeepsPreviousGeneration(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, WithDir(dir))
	replace(t, s, "a.txt", "alpha")
	if err := s.Persist(context.Background()); err != nil {
		t.Fatal(err)
	}

	// A half-written next generation that never became current.
	partial := filepath.Join(dir, generationName(2))
	if err := os.MkdirAll(partial, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(partial, vectorsFile), []byte("truncated"), 0o644); err != nil {
		t.Fatal(err)
	}

	s2 := newStore(t, WithDir(dir))
	if err := s2.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s2.Count() != 1 {
		t.Errorf("expected previous generation to load, got %d entries", s2.Count())
	}

	// The next persist overwrites the partial directory.
	replace(t, s2, "b.txt", "beta")
	if err := s2.Persist(context.Background()); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	s3 := newStore(t, WithDir(dir))
	if err := s3.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s3.Count() != 2 {
		t.Errorf("expected 2 entries, got %d", s3.Count())
	}
}

func TestChromemStore_EncryptedPersist(t *testing.T) {
	dir := t.TempDir()
	key := strings.Repeat("k", 32)
	s := newStore(t, WithDir(dir), WithEncryptionKey(key))
	replace(t, s, "secret.txt", "The vault code is 1234.")
	if err := s.Persist(context.Background()); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	if err := newStore(t, WithDir(dir), WithEncryptionKey(strings.Repeat("x", 32))).Load(context.Background()); err == nil {
		t.Error("expected load with the wrong key to fail")
	}
	s2 := newStore(t, WithDir(dir), WithEncryptionKey(key))
	if err := s2.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s2.Count() != 1 {
		t.Errorf("expected 1 entry, got %d", s2.Count())
	}

	if _, err := NewChromemStore(embedder, WithEncryptionKey("short")); err == nil {
		t.Error("expected short key to be rejected")
	}
}

func TestChromemStore_ConcurrentReadersDuringReplace(t *testing.T) {
	s := newStore(t)
	replace(t, s, "doc.txt", "alpha beta gamma", "delta epsilon")

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				res, err := s.Search(context.Background(), embedder.Vector("alpha"), 4)
				if err != nil {
					t.Errorf("Search: %v", err)
					return
				}
				// Either the two-chunk or the three-chunk version, never a mix.
				if len(res) != 2 && len(res) != 3 {
					t.Errorf("observed partial state: %d results", len(res))
					return
				}
			}
		}()
	}
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			replace(t, s, "doc.txt", "alpha one", "alpha two", "alpha three")
		} else {
			replace(t, s, "doc.txt", "alpha beta gamma", "delta epsilon")
		}
	}
	close(stop)
	wg.Wait()
}
