package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/ziadkadry99/chaxai/internal/atomicfile"
	"github.com/ziadkadry99/chaxai/internal/embeddings"
	"github.com/ziadkadry99/chaxai/internal/logging"
)

const (
	collectionName  = "documents"
	currentFile     = "CURRENT"
	vectorsFile     = "vectors.gob.gz"
	manifestFile    = "manifest.json"
	manifestVersion = 1
	keepGenerations = 2
)

var _ VectorStore = (*ChromemStore)(nil)

// ErrDimensionMismatch is returned when an entry's embedding length differs
// from the vectors already in the index.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

type sourceRecord struct {
	Info SourceInfo `json:"info"`
	IDs  []string   `json:"ids"`
}

// manifest is the metadata sidecar persisted next to the chromem export.
type manifest struct {
	Version    int                      `json:"version"`
	Generation uint64                   `json:"generation"`
	NextSeq    uint64                   `json:"next_seq"`
	Dimensions int                      `json:"dimensions"`
	Sources    map[string]*sourceRecord `json:"sources"`
}

// ChromemStore implements VectorStore using chromem-go. The manifest of
// sources and chunk IDs is kept beside the collection and guarded by the
// same lock, so the two never disagree.
type ChromemStore struct {
	mu      sync.RWMutex
	db      *chromem.DB
	col     *chromem.Collection
	sources map[string]*sourceRecord
	nextSeq uint64
	gen     uint64
	dims    int

	embedFunc chromem.EmbeddingFunc
	dir       string
	key       string

	persistMu sync.Mutex
	diskGen   uint64
}

// Option configures a ChromemStore.
type Option func(*ChromemStore)

// WithDir sets the persistence directory. Without it Persist and Load are
// no-ops.
func WithDir(dir string) Option {
	return func(s *ChromemStore) { s.dir = dir }
}

// WithEncryptionKey encrypts persisted vectors. The key must be 32 bytes.
func WithEncryptionKey(key string) Option {
	return func(s *ChromemStore) { s.key = key }
}

// NewChromemStore creates an empty in-memory ChromemStore. The embedder is
// only consulted by chromem for entries lacking a vector, which callers
// never add; it may be nil.
func NewChromemStore(embedder embeddings.Embedder, opts ...Option) (*ChromemStore, error) {
	s := &ChromemStore{sources: make(map[string]*sourceRecord), nextSeq: 1}
	for _, o := range opts {
		o(s)
	}
	if s.key != "" && len(s.key) != 32 {
		return nil, fmt.Errorf("index encryption key must be 32 bytes, got %d", len(s.key))
	}
	if embedder != nil {
		s.embedFunc = embeddings.ToChromemFunc(embedder)
	} else {
		s.embedFunc = func(context.Context, string) ([]float32, error) {
			return nil, errors.New("vectordb: entry has no embedding")
		}
	}

	db, col, err := s.newCollection()
	if err != nil {
		return nil, err
	}
	s.db, s.col = db, col
	return s, nil
}

func (s *ChromemStore) newCollection() (*chromem.DB, *chromem.Collection, error) {
	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection(collectionName, nil, s.embedFunc)
	if err != nil {
		return nil, nil, fmt.Errorf("create collection: %w", err)
	}
	return db, col, nil
}

// checkEntries validates entries against dims, the dimension of the vectors
// they will sit beside; zero accepts any consistent dimension.
func checkEntries(entries []Entry, dims int) error {
	for _, e := range entries {
		if e.Source == "" || e.ID == "" {
			return fmt.Errorf("vectordb: entry without id or source")
		}
		if len(e.Embedding) == 0 {
			return fmt.Errorf("vectordb: entry %s has no embedding", e.ID)
		}
		if dims == 0 {
			dims = len(e.Embedding)
		}
		if len(e.Embedding) != dims {
			return fmt.Errorf("%w: entry %s has %d, index has %d", ErrDimensionMismatch, e.ID, len(e.Embedding), dims)
		}
	}
	return nil
}

// toDocs assigns sequence numbers and converts entries for chromem. Caller
// holds the write lock.
func (s *ChromemStore) toDocs(entries []Entry) []chromem.Document {
	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		seq := s.nextSeq
		s.nextSeq++
		// chromem normalizes in place; keep the caller's slice intact.
		vec := append([]float32(nil), e.Embedding...)
		docs[i] = chromem.Document{
			ID:        e.ID,
			Content:   e.Text,
			Embedding: vec,
			Metadata: map[string]string{
				"source":      e.Source,
				"chunk_index": strconv.Itoa(e.Index),
				"seq":         strconv.FormatUint(seq, 10),
			},
		}
	}
	return docs
}

func (s *ChromemStore) Add(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkEntries(entries, s.dims); err != nil {
		return err
	}
	docs := s.toDocs(entries)
	if err := s.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		s.dropIDs(ctx, idsOf(entries))
		return fmt.Errorf("chromem add: %w", err)
	}

	for _, e := range entries {
		rec, ok := s.sources[e.Source]
		if !ok {
			rec = &sourceRecord{Info: SourceInfo{Name: e.Source}}
			s.sources[e.Source] = rec
		}
		if !contains(rec.IDs, e.ID) {
			rec.IDs = append(rec.IDs, e.ID)
		}
		rec.Info.Chunks = len(rec.IDs)
	}
	if s.dims == 0 {
		s.dims = len(entries[0].Embedding)
	}
	s.gen++
	return nil
}

func (s *ChromemStore) Replace(ctx context.Context, info SourceInfo, entries []Entry) error {
	if info.Name == "" {
		return fmt.Errorf("vectordb: replace without a source name")
	}
	for _, e := range entries {
		if e.Source != info.Name {
			return fmt.Errorf("vectordb: entry %s belongs to %q, not %q", e.ID, e.Source, info.Name)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.sources[info.Name]
	dims := s.dims
	if old != nil && s.count() == len(old.IDs) {
		// Nothing else is indexed, so the new entries may change dimension.
		dims = 0
	}
	if err := checkEntries(entries, dims); err != nil {
		return err
	}

	var backup []chromem.Document
	if old != nil && len(old.IDs) > 0 {
		for _, id := range old.IDs {
			doc, err := s.col.GetByID(ctx, id)
			if err != nil {
				return fmt.Errorf("chromem get %s: %w", id, err)
			}
			backup = append(backup, doc)
		}
		if err := s.col.Delete(ctx, nil, nil, old.IDs...); err != nil {
			return fmt.Errorf("chromem delete: %w", err)
		}
	}

	if len(entries) > 0 {
		if err := s.col.AddDocuments(ctx, s.toDocs(entries), runtime.NumCPU()); err != nil {
			s.dropIDs(ctx, idsOf(entries))
			if len(backup) > 0 {
				if rerr := s.col.AddDocuments(context.WithoutCancel(ctx), backup, 1); rerr != nil {
					logging.L().Errorw("restoring replaced entries failed", "source", info.Name, "error", rerr)
				}
			}
			return fmt.Errorf("chromem add: %w", err)
		}
	}

	info.Chunks = len(entries)
	s.sources[info.Name] = &sourceRecord{Info: info, IDs: idsOf(entries)}
	if len(entries) > 0 {
		s.dims = len(entries[0].Embedding)
	} else if s.count() == 0 {
		s.dims = 0
	}
	s.gen++
	return nil
}

func (s *ChromemStore) DeleteBySource(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sources[name]
	if !ok {
		return nil
	}
	if len(rec.IDs) > 0 {
		if err := s.col.Delete(ctx, nil, nil, rec.IDs...); err != nil {
			return fmt.Errorf("chromem delete: %w", err)
		}
	}
	delete(s.sources, name)
	if len(s.sources) == 0 {
		s.dims = 0
	}
	s.gen++
	return nil
}

// dropIDs removes whatever part of a failed insert chromem kept.
func (s *ChromemStore) dropIDs(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := s.col.Delete(context.WithoutCancel(ctx), nil, nil, ids...); err != nil {
		logging.L().Errorw("cleaning up failed insert", "error", err)
	}
}

func (s *ChromemStore) Search(ctx context.Context, vector []float32, k int) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := s.col.Count()
	if k <= 0 || count == 0 || isZero(vector) {
		return []SearchResult{}, nil
	}
	if len(vector) != s.dims {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(vector), s.dims)
	}

	// Over-fetch so that entries tied at the cut-off can be ordered by seq.
	n := min(count, max(4*k, k+16))
	results, err := s.col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{
			Entry:      entryFrom(r.ID, r.Content, r.Metadata, r.Embedding),
			Similarity: r.Similarity,
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Entry.Seq < out[j].Entry.Seq
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (s *ChromemStore) BySource(ctx context.Context, name string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bySource(ctx, name)
}

func (s *ChromemStore) bySource(ctx context.Context, name string) ([]Entry, error) {
	rec, ok := s.sources[name]
	if !ok {
		return nil, nil
	}
	entries := make([]Entry, 0, len(rec.IDs))
	for _, id := range rec.IDs {
		doc, err := s.col.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("chromem get %s: %w", id, err)
		}
		entries = append(entries, entryFrom(doc.ID, doc.Content, doc.Metadata, doc.Embedding))
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Index < entries[j].Index })
	return entries, nil
}

func (s *ChromemStore) All(ctx context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []Entry
	for _, name := range s.sortedNames() {
		entries, err := s.bySource(ctx, name)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	return all, nil
}

func (s *ChromemStore) Sources() []SourceInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SourceInfo, 0, len(s.sources))
	for _, name := range s.sortedNames() {
		out = append(out, s.sources[name].Info)
	}
	return out
}

func (s *ChromemStore) Source(name string) (SourceInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sources[name]
	if !ok {
		return SourceInfo{}, false
	}
	return rec.Info, true
}

func (s *ChromemStore) sortedNames() []string {
	names := make([]string, 0, len(s.sources))
	for name := range s.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *ChromemStore) Rebuild(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var docs []chromem.Document
	for _, name := range s.sortedNames() {
		for _, id := range s.sources[name].IDs {
			doc, err := s.col.GetByID(ctx, id)
			if err != nil {
				return fmt.Errorf("rebuild: get %s: %w", id, err)
			}
			docs = append(docs, doc)
		}
	}

	db, col, err := s.newCollection()
	if err != nil {
		return err
	}
	if len(docs) > 0 {
		if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return fmt.Errorf("rebuild: add: %w", err)
		}
	}
	dropped := s.col.Count() - col.Count()
	s.db, s.col = db, col
	if dropped != 0 {
		logging.L().Infow("index rebuilt", "entries", col.Count(), "dropped", dropped)
	}
	return nil
}

func (s *ChromemStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count()
}

func (s *ChromemStore) count() int { return s.col.Count() }

func (s *ChromemStore) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Persist exports the collection and manifest into a fresh generation
// directory, then points CURRENT at it. Until the CURRENT rename lands, Load
// keeps reading the previous generation.
func (s *ChromemStore) Persist(ctx context.Context) error {
	if s.dir == "" {
		return nil
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	if s.diskGen == 0 {
		if name, err := readCurrent(s.dir); err == nil {
			s.diskGen, _ = parseGeneration(name)
		}
	}
	next := s.diskGen + 1
	name := generationName(next)
	genDir := filepath.Join(s.dir, name)
	if err := os.RemoveAll(genDir); err != nil {
		return fmt.Errorf("clear %s: %w", name, err)
	}
	if err := os.MkdirAll(genDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}

	s.mu.RLock()
	err := s.export(genDir)
	s.mu.RUnlock()
	if err != nil {
		os.RemoveAll(genDir)
		return err
	}

	if err := atomicfile.Write(filepath.Join(s.dir, currentFile), []byte(name+"\n"), 0o644); err != nil {
		os.RemoveAll(genDir)
		return fmt.Errorf("swap %s: %w", currentFile, err)
	}
	s.diskGen = next
	s.prune(next)
	return nil
}

// export writes the snapshot. Caller holds at least the read lock.
func (s *ChromemStore) export(genDir string) error {
	if err := s.db.ExportToFile(filepath.Join(genDir, vectorsFile), true, s.key); err != nil {
		return fmt.Errorf("export vectors: %w", err)
	}
	m := manifest{
		Version:    manifestVersion,
		Generation: s.gen,
		NextSeq:    s.nextSeq,
		Dimensions: s.dims,
		Sources:    s.sources,
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := atomicfile.Write(filepath.Join(genDir, manifestFile), data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// prune removes all but the newest keepGenerations generation directories.
func (s *ChromemStore) prune(current uint64) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		n, ok := parseGeneration(e.Name())
		if !ok || !e.IsDir() || n+keepGenerations > current && n <= current {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			logging.L().Warnw("pruning index generation", "dir", e.Name(), "error", err)
		}
	}
}

// Load replaces the in-memory state with the generation CURRENT points to.
// A directory without CURRENT loads as an empty index.
func (s *ChromemStore) Load(_ context.Context) error {
	if s.dir == "" {
		return nil
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	name, err := readCurrent(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", currentFile, err)
	}
	diskGen, ok := parseGeneration(name)
	if !ok {
		return fmt.Errorf("%s names invalid generation %q", currentFile, name)
	}
	genDir := filepath.Join(s.dir, name)

	raw, err := os.ReadFile(filepath.Join(genDir, manifestFile))
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}
	if m.Version != manifestVersion {
		return fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	if m.Sources == nil {
		m.Sources = make(map[string]*sourceRecord)
	}

	db := chromem.NewDB()
	if err := db.ImportFromFile(filepath.Join(genDir, vectorsFile), s.key); err != nil {
		return fmt.Errorf("import vectors: %w", err)
	}
	col := db.GetCollection(collectionName, s.embedFunc)
	if col == nil {
		if col, err = db.CreateCollection(collectionName, nil, s.embedFunc); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}

	want := 0
	for _, rec := range m.Sources {
		want += len(rec.IDs)
	}
	if col.Count() != want {
		return fmt.Errorf("%s is inconsistent: manifest lists %d entries, vectors hold %d", name, want, col.Count())
	}

	s.mu.Lock()
	s.db, s.col = db, col
	s.sources = m.Sources
	s.nextSeq = max(m.NextSeq, 1)
	s.gen = m.Generation
	s.dims = m.Dimensions
	s.mu.Unlock()
	s.diskGen = diskGen

	logging.L().Infow("index loaded", "generation", name, "documents", len(m.Sources), "entries", want)
	return nil
}

func readCurrent(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, currentFile))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func generationName(n uint64) string { return fmt.Sprintf("gen-%06d", n) }

func parseGeneration(name string) (uint64, bool) {
	rest, ok := strings.CutPrefix(name, "gen-")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(rest, 10, 64)
	return n, err == nil
}

func entryFrom(id, content string, md map[string]string, emb []float32) Entry {
	idx, _ := strconv.Atoi(md["chunk_index"])
	seq, _ := strconv.ParseUint(md["seq"], 10, 64)
	return Entry{
		ID:        id,
		Source:    md["source"],
		Index:     idx,
		Text:      content,
		Embedding: emb,
		Seq:       seq,
	}
}

func idsOf(entries []Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func isZero(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return sum == 0 || math.IsNaN(sum)
}
