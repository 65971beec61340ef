// Package library coordinates the document lifecycle. It is the only writer
// of the vector index: uploads, ingests, removals and reindexes all commit
// through a Coordinator, one at a time.
package library

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/ziadkadry99/chaxai/internal/apperr"
	"github.com/ziadkadry99/chaxai/internal/audit"
	"github.com/ziadkadry99/chaxai/internal/docstore"
	"github.com/ziadkadry99/chaxai/internal/embeddings"
	"github.com/ziadkadry99/chaxai/internal/extract"
	"github.com/ziadkadry99/chaxai/internal/keyword"
	"github.com/ziadkadry99/chaxai/internal/logging"
	"github.com/ziadkadry99/chaxai/internal/trace"
	"github.com/ziadkadry99/chaxai/internal/vectordb"
)

// AuditLog records lifecycle events.
type AuditLog interface {
	Log(ctx context.Context, entry audit.Entry) error
}

// Options tune a Coordinator. Zero values pick defaults.
type Options struct {
	MaxUploadBytes int64
	ChunkSize      int
	ChunkOverlap   int
	// EmbedTimeout bounds the embedding of one document, retries included.
	EmbedTimeout time.Duration
	// Concurrency is the number of documents prepared in parallel.
	Concurrency int
}

func (o *Options) defaults() {
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = 10 << 20
	}
	if o.EmbedTimeout <= 0 {
		o.EmbedTimeout = 2 * time.Minute
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
}

// Option configures optional collaborators.
type Option func(*Coordinator)

// WithKeywordIndex keeps kw in step with the vector index.
func WithKeywordIndex(kw *keyword.Index) Option {
	return func(c *Coordinator) { c.keywords = kw }
}

// WithAudit records every lifecycle operation in log.
func WithAudit(log AuditLog) Option {
	return func(c *Coordinator) { c.audit = log }
}

// WithProgress reports batch progress to fn.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Coordinator) { c.onProgress = fn }
}

// Coordinator owns every mutation of the vector index.
type Coordinator struct {
	docs       docstore.Store
	index      vectordb.VectorStore
	embedder   embeddings.Embedder
	keywords   *keyword.Index
	audit      AuditLog
	onProgress ProgressFunc
	splitter   extract.Splitter
	opts       Options
	pool       *ants.Pool

	// mu serializes commits; preparation runs outside it.
	mu sync.Mutex
}

// New creates a Coordinator. Call Close to release its worker pool.
func New(docs docstore.Store, index vectordb.VectorStore, embedder embeddings.Embedder, opts Options, options ...Option) (*Coordinator, error) {
	opts.defaults()
	pool, err := ants.NewPool(opts.Concurrency,
		ants.WithExpiryDuration(30*time.Second),
		ants.WithPanicHandler(func(p any) {
			logging.L().Errorw("ingest worker panic recovered", "panic", p)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create ingest pool: %w", err)
	}
	c := &Coordinator{
		docs:     docs,
		index:    index,
		embedder: embedder,
		splitter: extract.NewSplitter(opts.ChunkSize, opts.ChunkOverlap),
		opts:     opts,
		pool:     pool,
	}
	for _, o := range options {
		o(c)
	}
	return c, nil
}

// Close releases the worker pool.
func (c *Coordinator) Close() {
	c.pool.Release()
}

// Load restores the persisted index and rebuilds the keyword index from it.
func (c *Coordinator) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.index.Load(ctx); err != nil {
		return fmt.Errorf("load index: %w", err)
	}
	if err := c.loadKeywords(ctx); err != nil {
		return err
	}
	logging.L().Infow("index loaded", "documents", len(c.index.Sources()), "chunks", c.index.Count())
	return nil
}

// loadKeywords makes the keyword index mirror the vector index.
func (c *Coordinator) loadKeywords(ctx context.Context) error {
	if c.keywords == nil {
		return nil
	}
	live := make(map[string]bool)
	for _, info := range c.index.Sources() {
		live[info.Name] = true
		entries, err := c.index.BySource(ctx, info.Name)
		if err != nil {
			return fmt.Errorf("read %s: %w", info.Name, err)
		}
		if err := c.keywords.Replace(info.Name, keywordChunks(entries)); err != nil {
			return fmt.Errorf("keyword index %s: %w", info.Name, err)
		}
	}
	for _, name := range c.keywords.Sources() {
		if !live[name] {
			if err := c.keywords.DeleteSource(name); err != nil {
				return fmt.Errorf("keyword index %s: %w", name, err)
			}
		}
	}
	return nil
}

// List returns the committed documents sorted by name.
func (c *Coordinator) List() []Document {
	return c.index.Sources()
}

// Get returns the committed document called name.
func (c *Coordinator) Get(name string) (Document, bool) {
	return c.index.Source(name)
}

// pending is a document that has been extracted and embedded but not yet
// committed.
type pending struct {
	info      vectordb.SourceInfo
	entries   []vectordb.Entry
	data      []byte
	unchanged bool
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// prepare extracts, chunks and embeds data without touching shared state.
// Unless force is set, content identical to what is already committed is
// not embedded again.
func (c *Coordinator) prepare(ctx context.Context, name string, data []byte, force bool) (*pending, error) {
	hash := contentHash(data)
	if cur, ok := c.index.Source(name); ok && !force && cur.ContentHash == hash {
		return &pending{info: cur, data: data, unchanged: true}, nil
	}

	chunks, err := extract.Chunks(name, data, c.splitter)
	if err != nil {
		return nil, err
	}

	entries := make([]vectordb.Entry, len(chunks))
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, ch := range chunks {
			texts[i] = ch.Text
		}
		vecs, err := c.embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		for i, ch := range chunks {
			entries[i] = vectordb.Entry{
				ID:        vectordb.EntryID(name, ch.Index),
				Source:    name,
				Index:     ch.Index,
				Text:      ch.Text,
				Embedding: vecs[i],
			}
		}
	}

	return &pending{
		info: vectordb.SourceInfo{
			Name:        name,
			Size:        int64(len(data)),
			Chunks:      len(entries),
			ContentHash: hash,
			IndexedAt:   time.Now().UTC(),
		},
		entries: entries,
		data:    data,
	}, nil
}

func (c *Coordinator) embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.EmbedTimeout)
	defer cancel()

	vecs, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, apperr.E(apperr.KindProviderUnavailable, "embedding provider unavailable", err)
	}
	if len(vecs) != len(texts) {
		return nil, apperr.Newf(apperr.KindProviderUnavailable,
			"embedding provider returned %d vectors for %d chunks", len(vecs), len(texts))
	}
	return vecs, nil
}

// errStale reports that the index changed between prepare and commit.
var errStale = errors.New("library: document changed during ingest")

// commit makes p visible: the index is swapped and persisted, then the file
// is written to the document store. Any failure restores the previous state
// of the document.
func (c *Coordinator) commit(ctx context.Context, p *pending) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commitLocked(ctx, p)
}

func (c *Coordinator) commitLocked(ctx context.Context, p *pending) error {
	name := p.info.Name
	if p.unchanged {
		if cur, ok := c.index.Source(name); !ok || cur.ContentHash != p.info.ContentHash {
			return errStale
		}
		if _, err := c.docs.Stat(ctx, name); err == nil {
			return nil
		}
		if _, err := c.docs.Put(ctx, name, p.data); err != nil {
			return apperr.E(apperr.KindInternal, "store document", err)
		}
		return nil
	}

	snap, err := c.snapshot(ctx, name)
	if err != nil {
		return err
	}
	if err := c.index.Replace(ctx, p.info, p.entries); err != nil {
		return apperr.E(apperr.KindInternal, "update index", err)
	}
	if err := c.index.Persist(ctx); err != nil {
		c.restore(ctx, snap)
		return apperr.E(apperr.KindInternal, "persist index", err)
	}
	if _, err := c.docs.Put(ctx, name, p.data); err != nil {
		c.restore(ctx, snap)
		if perr := c.index.Persist(context.WithoutCancel(ctx)); perr != nil {
			logging.L().Errorw("persisting restored index failed", "document", name, "error", perr)
		}
		return apperr.E(apperr.KindInternal, "store document", err)
	}
	c.syncKeywords(name, p.entries)
	return nil
}

// snapshot captures the committed state of one document.
type snapshot struct {
	name    string
	info    vectordb.SourceInfo
	entries []vectordb.Entry
	present bool
}

func (c *Coordinator) snapshot(ctx context.Context, name string) (snapshot, error) {
	info, ok := c.index.Source(name)
	if !ok {
		return snapshot{name: name}, nil
	}
	entries, err := c.index.BySource(ctx, name)
	if err != nil {
		return snapshot{}, apperr.E(apperr.KindInternal, "read index", err)
	}
	return snapshot{name: name, info: info, entries: entries, present: true}, nil
}

func (c *Coordinator) restore(ctx context.Context, s snapshot) {
	ctx = context.WithoutCancel(ctx)
	var err error
	if s.present {
		err = c.index.Replace(ctx, s.info, s.entries)
	} else {
		err = c.index.DeleteBySource(ctx, s.name)
	}
	if err != nil {
		logging.L().Errorw("restoring index entries failed", "document", s.name, "error", err)
	}
}

func (c *Coordinator) syncKeywords(name string, entries []vectordb.Entry) {
	if c.keywords == nil {
		return
	}
	var err error
	if entries == nil {
		err = c.keywords.DeleteSource(name)
	} else {
		err = c.keywords.Replace(name, keywordChunks(entries))
	}
	if err != nil {
		logging.L().Warnw("keyword index out of step", "document", name, "error", err)
	}
}

func keywordChunks(entries []vectordb.Entry) []keyword.Chunk {
	out := make([]keyword.Chunk, len(entries))
	for i, e := range entries {
		out[i] = keyword.Chunk{ID: e.ID, Text: e.Text}
	}
	return out
}

// Upload stores data under the sanitized form of name and indexes it,
// replacing any previous document of that name.
func (c *Coordinator) Upload(ctx context.Context, name string, data []byte) (*Document, error) {
	res, doc := c.ingestOne(ctx, audit.ActionUpload, name, data, true)
	if res.Err != nil {
		return nil, res.Err
	}
	return doc, nil
}

// ingestOne runs one document through prepare and commit and records the
// outcome. limit applies the upload size limit.
func (c *Coordinator) ingestOne(ctx context.Context, action audit.Action, name string, data []byte, limit bool) (FileResult, *Document) {
	clean, err := docstore.SanitizeName(name)
	if err != nil {
		return failed(name, err), nil
	}
	res := FileResult{Name: clean}

	if limit && int64(len(data)) > c.opts.MaxUploadBytes {
		err = apperr.Newf(apperr.KindPayloadTooLarge, "%s exceeds the upload limit of %d bytes", clean, c.opts.MaxUploadBytes)
		c.record(ctx, action, clean, err, "")
		return failed(clean, err), nil
	}

	p, err := c.prepare(ctx, clean, data, false)
	if err == nil {
		err = c.commit(ctx, p)
	}
	if errors.Is(err, errStale) {
		if p, err = c.prepare(ctx, clean, data, true); err == nil {
			err = c.commit(ctx, p)
		}
	}
	if err != nil {
		c.record(ctx, action, clean, err, "")
		logging.L().Warnw("document not indexed", "document", clean, "action", action, "trace_id", trace.ID(ctx), "error", err)
		return failed(clean, err), nil
	}

	res.Chunks = p.info.Chunks
	res.Status = StatusIndexed
	summary := fmt.Sprintf("indexed %d chunks", p.info.Chunks)
	if p.unchanged {
		res.Status = StatusUnchanged
		summary = "content unchanged"
	}
	c.record(ctx, action, clean, nil, summary)
	logging.L().Infow("document committed", "document", clean, "action", action, "status", res.Status, "chunks", res.Chunks, "trace_id", trace.ID(ctx))

	doc := p.info
	return res, &doc
}

func failed(name string, err error) FileResult {
	return FileResult{Name: name, Status: StatusFailed, Error: apperr.Detail(err), Err: err}
}

func (c *Coordinator) record(ctx context.Context, action audit.Action, document string, err error, summary string) {
	if c.audit == nil {
		return
	}
	entry := audit.Entry{
		Actor:    actorFrom(ctx),
		Action:   action,
		Document: document,
		TraceID:  trace.ID(ctx),
		Outcome:  audit.OutcomeOK,
		Summary:  summary,
	}
	if err != nil {
		entry.Outcome = audit.OutcomeFailed
		entry.Summary = apperr.Detail(err)
		entry.Detail = err.Error()
	}
	if lerr := c.audit.Log(context.WithoutCancel(ctx), entry); lerr != nil {
		logging.L().Warnw("audit log failed", "action", action, "document", document, "error", lerr)
	}
}

// UploadBatch uploads each file independently; one failure does not affect
// the others. Results are in input order.
func (c *Coordinator) UploadBatch(ctx context.Context, files []File) []FileResult {
	return c.runBatch(ctx, len(files), func(i int) (string, FileResult) {
		res, _ := c.ingestOne(ctx, audit.ActionUpload, files[i].Name, files[i].Data, true)
		return files[i].Name, res
	})
}

// Ingest indexes local files, copying each into the document store under
// its sanitized base name. Results are in input order.
func (c *Coordinator) Ingest(ctx context.Context, paths []string) []FileResult {
	return c.runBatch(ctx, len(paths), func(i int) (string, FileResult) {
		path := paths[i]
		name := filepath.Base(path)
		if !extract.Supported(name) {
			err := apperr.Newf(apperr.KindUnsupportedFormat, "unsupported file type %q", filepath.Ext(name))
			c.record(ctx, audit.ActionIngest, name, err, "")
			return path, failed(name, err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			err = apperr.E(apperr.KindInvalidInput, "cannot read "+name, err)
			c.record(ctx, audit.ActionIngest, name, err, "")
			return path, failed(name, err)
		}
		res, _ := c.ingestOne(ctx, audit.ActionIngest, name, data, false)
		return path, res
	})
}

// runBatch runs n jobs on the worker pool and collects their results in
// order.
func (c *Coordinator) runBatch(ctx context.Context, n int, job func(i int) (string, FileResult)) []FileResult {
	results := make([]FileResult, n)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)
	for i := 0; i < n; i++ {
		results[i] = failed("", apperr.Newf(apperr.KindInternal, "not processed"))
		wg.Add(1)
		err := c.pool.Submit(func() {
			defer wg.Done()
			label, res := job(i)
			results[i] = res

			mu.Lock()
			done++
			d := done
			mu.Unlock()
			if c.onProgress != nil {
				c.onProgress(d, n, label)
			}
		})
		if err != nil {
			wg.Done()
			results[i] = failed("", apperr.E(apperr.KindInternal, "schedule", err))
		}
	}
	wg.Wait()
	return results
}

// Remove deletes name from the document store and the index. The index is
// compacted and persisted before Remove returns, so no later search can
// return the document's chunks.
//
// name must be a stored name exactly; names that only match after
// sanitizing are not found.
func (c *Coordinator) Remove(ctx context.Context, name string) error {
	clean, err := docstore.SanitizeName(name)
	if err != nil || clean != name {
		return apperr.Newf(apperr.KindNotFound, "document %q not found", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, indexed := c.index.Source(clean)
	_, statErr := c.docs.Stat(ctx, clean)
	stored := statErr == nil
	if !indexed && !stored {
		return apperr.Newf(apperr.KindNotFound, "document %q not found", clean)
	}

	if err := c.removeLocked(ctx, clean, indexed, stored); err != nil {
		c.record(ctx, audit.ActionRemove, clean, err, "")
		return err
	}
	c.record(ctx, audit.ActionRemove, clean, nil, "removed")
	logging.L().Infow("document removed", "document", clean, "trace_id", trace.ID(ctx))
	return nil
}

func (c *Coordinator) removeLocked(ctx context.Context, name string, indexed, stored bool) error {
	if indexed {
		snap, err := c.snapshot(ctx, name)
		if err != nil {
			return err
		}
		if err := c.index.DeleteBySource(ctx, name); err != nil {
			return apperr.E(apperr.KindInternal, "delete from index", err)
		}
		if err := c.index.Rebuild(ctx); err != nil {
			c.restore(ctx, snap)
			return apperr.E(apperr.KindInternal, "rebuild index", err)
		}
		if err := c.index.Persist(ctx); err != nil {
			c.restore(ctx, snap)
			return apperr.E(apperr.KindInternal, "persist index", err)
		}
		c.syncKeywords(name, nil)
	}
	if stored {
		if err := c.docs.Delete(ctx, name); err != nil && !apperr.Is(err, apperr.KindNotFound) {
			return apperr.E(apperr.KindInternal, "delete document file", err)
		}
	}
	return nil
}

// Reindex rebuilds the index from every file in the document store.
// Documents that fail to prepare keep their previous entries; index entries
// without a backing file are dropped.
func (c *Coordinator) Reindex(ctx context.Context) (*ReindexReport, error) {
	start := time.Now()
	stored, err := c.docs.List(ctx)
	if err != nil {
		return nil, apperr.E(apperr.KindInternal, "list documents", err)
	}

	prepared := make([]*pending, len(stored))
	results := c.runBatch(ctx, len(stored), func(i int) (string, FileResult) {
		name := stored[i].Name
		data, err := c.docs.Get(ctx, name)
		if err != nil {
			return name, failed(name, err)
		}
		p, err := c.prepare(ctx, name, data, true)
		if err != nil {
			return name, failed(name, err)
		}
		prepared[i] = p
		return name, FileResult{Name: name, Status: StatusIndexed, Chunks: p.info.Chunks}
	})

	report := &ReindexReport{Removed: []string{}, Failed: []FileResult{}}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Uploads and removals may have committed while documents were being
	// prepared. The store as it is now decides what survives, and a prepared
	// document only lands if the store still holds the bytes it was built from.
	current, err := c.docs.List(ctx)
	if err != nil {
		return nil, apperr.E(apperr.KindInternal, "list documents", err)
	}
	keep := make(map[string]bool, len(current))
	for _, d := range current {
		keep[d.Name] = true
	}

	for i, p := range prepared {
		if p == nil {
			if keep[results[i].Name] {
				report.Failed = append(report.Failed, results[i])
			}
			continue
		}
		name := p.info.Name
		if !keep[name] || !c.storedMatches(ctx, name, p.info.ContentHash) {
			logging.L().Debugw("skipping document changed during reindex", "document", name)
			continue
		}
		if err := c.index.Replace(ctx, p.info, p.entries); err != nil {
			report.Failed = append(report.Failed, failed(name, apperr.E(apperr.KindInternal, "update index", err)))
			continue
		}
		c.syncKeywords(name, p.entries)
		report.Documents++
		report.Chunks += p.info.Chunks
	}
	for _, info := range c.index.Sources() {
		if keep[info.Name] {
			continue
		}
		if err := c.index.DeleteBySource(ctx, info.Name); err != nil {
			c.reloadLocked(ctx)
			return nil, apperr.E(apperr.KindInternal, "delete from index", err)
		}
		c.syncKeywords(info.Name, nil)
		report.Removed = append(report.Removed, info.Name)
	}
	if err := c.index.Rebuild(ctx); err != nil {
		c.reloadLocked(ctx)
		return nil, apperr.E(apperr.KindInternal, "rebuild index", err)
	}
	if err := c.index.Persist(ctx); err != nil {
		c.reloadLocked(ctx)
		return nil, apperr.E(apperr.KindInternal, "persist index", err)
	}

	report.DurationMS = since(start)
	summary := fmt.Sprintf("%d documents, %d chunks, %d failed", report.Documents, report.Chunks, len(report.Failed))
	c.record(ctx, audit.ActionReindex, "", nil, summary)
	logging.L().Infow("reindex complete", "documents", report.Documents, "chunks", report.Chunks,
		"failed", len(report.Failed), "removed", len(report.Removed), "duration_ms", report.DurationMS)
	return report, nil
}

// storedMatches reports whether the document store holds content with the
// given hash under name.
func (c *Coordinator) storedMatches(ctx context.Context, name, hash string) bool {
	data, err := c.docs.Get(ctx, name)
	return err == nil && contentHash(data) == hash
}

// reloadLocked discards in-memory index changes by loading the last
// persisted generation and rebuilding the keyword index from it.
func (c *Coordinator) reloadLocked(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if err := c.index.Load(ctx); err != nil {
		logging.L().Errorw("reloading index failed", "error", err)
		return
	}
	if err := c.loadKeywords(ctx); err != nil {
		logging.L().Errorw("reloading keyword index failed", "error", err)
	}
}
