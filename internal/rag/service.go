// Package rag answers questions from the indexed documents: it retrieves the
// most relevant chunks and has a completion provider answer from them.
package rag

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ziadkadry99/chaxai/internal/analytics"
	"github.com/ziadkadry99/chaxai/internal/apperr"
	"github.com/ziadkadry99/chaxai/internal/embeddings"
	"github.com/ziadkadry99/chaxai/internal/keyword"
	"github.com/ziadkadry99/chaxai/internal/llm"
	"github.com/ziadkadry99/chaxai/internal/logging"
	"github.com/ziadkadry99/chaxai/internal/retry"
	"github.com/ziadkadry99/chaxai/internal/trace"
	"github.com/ziadkadry99/chaxai/internal/vectordb"
)

// Index is the read side of the vector index.
type Index interface {
	Search(ctx context.Context, vector []float32, k int) ([]vectordb.SearchResult, error)
	Count() int
	Generation() uint64
}

// Options tune retrieval and generation. Zero values pick defaults.
type Options struct {
	TopK     int
	MinScore float64
	// HybridWeight is the share of the keyword score in the combined score.
	HybridWeight float64
	Model        string
	MaxTokens    int
	Temperature  float64
	// EmbedTimeout and CompletionTimeout bound each provider interaction,
	// retries included.
	EmbedTimeout      time.Duration
	CompletionTimeout time.Duration
	// Rerank has the completion provider reorder the candidates before
	// the top TopK are kept.
	Rerank bool
}

func (o *Options) defaults() {
	if o.TopK <= 0 {
		o.TopK = 4
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 1024
	}
	if o.EmbedTimeout <= 0 {
		o.EmbedTimeout = time.Minute
	}
	if o.CompletionTimeout <= 0 {
		o.CompletionTimeout = 2 * time.Minute
	}
	o.HybridWeight = math.Max(0, math.Min(1, o.HybridWeight))
}

// Option configures optional collaborators.
type Option func(*Service)

// WithKeywordIndex enables hybrid scoring against kw.
func WithKeywordIndex(kw *keyword.Index) Option {
	return func(s *Service) { s.keywords = kw }
}

// WithCache caches answers in c.
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithRecorder records each answered question.
func WithRecorder(r analytics.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// Service answers questions.
type Service struct {
	index    Index
	embedder embeddings.Embedder
	provider llm.Provider
	keywords *keyword.Index
	cache    Cache
	recorder analytics.Recorder
	opts     Options
}

// New creates a Service.
func New(index Index, embedder embeddings.Embedder, provider llm.Provider, opts Options, options ...Option) *Service {
	opts.defaults()
	s := &Service{
		index:    index,
		embedder: embedder,
		provider: provider,
		recorder: analytics.Nop{},
		opts:     opts,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Model returns the completion model in use.
func (s *Service) Model() string {
	if s.opts.Model != "" {
		return s.opts.Model
	}
	return s.provider.Name()
}

func normalizeQuestion(q string) (string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return "", apperr.Newf(apperr.KindEmptyQuestion, "question must not be empty")
	}
	return q, nil
}

// Search returns up to limit chunks relevant to query without generating
// an answer.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	q, err := normalizeQuestion(query)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.opts.TopK
	}
	return s.retrieve(ctx, q, limit)
}

// retrieve embeds q and ranks candidates by
// (1-w)*similarity + w*keyword, keeping commit order on ties. With Rerank
// set the provider then reorders the candidates.
func (s *Service) retrieve(ctx context.Context, q string, k int) ([]Hit, error) {
	if s.index.Count() == 0 {
		return []Hit{}, nil
	}

	ectx, cancel := context.WithTimeout(ctx, s.opts.EmbedTimeout)
	vecs, err := s.embedder.Embed(ectx, []string{q})
	cancel()
	if err != nil {
		return nil, providerError("embedding provider unavailable", err)
	}
	if len(vecs) != 1 {
		return nil, apperr.Newf(apperr.KindProviderUnavailable, "embedding provider returned %d vectors for 1 question", len(vecs))
	}

	w := s.opts.HybridWeight
	if s.keywords == nil {
		w = 0
	}
	fetch := k
	if w > 0 {
		fetch = 2 * k
	}
	results, err := s.index.Search(ctx, vecs[0], fetch)
	if err != nil {
		return nil, apperr.E(apperr.KindInternal, "search index", err)
	}

	var kw map[string]float64
	if w > 0 && len(results) > 0 {
		ids := make([]string, len(results))
		for i, r := range results {
			ids[i] = r.Entry.ID
		}
		if kw, err = s.keywords.Scores(q, ids); err != nil {
			logging.L().Warnw("keyword scoring failed, using similarity only", "error", err)
			kw, w = nil, 0
		}
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		sim := float64(r.Similarity)
		h := Hit{
			Source:     r.Entry.Source,
			Chunk:      r.Entry.Index,
			Text:       r.Entry.Text,
			Similarity: sim,
			Keyword:    kw[r.Entry.ID],
		}
		h.Score = (1-w)*sim + w*h.Keyword
		if h.Score <= 0 || h.Score < s.opts.MinScore {
			continue
		}
		hits = append(hits, h)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if s.opts.Rerank && len(hits) > 1 {
		hits = s.rerank(ctx, q, hits)
	}
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// providerError maps a provider failure. An upstream 5xx answer is reported
// as a bad gateway, anything else as unavailable.
func providerError(msg string, err error) error {
	e := apperr.E(apperr.KindProviderUnavailable, msg, err)
	if code, ok := retry.StatusCode(err); ok && code >= 500 {
		return e.WithStatus(502)
	}
	return e
}

// Answer retrieves context for question and asks the completion provider.
// A blank question fails before any provider call; an empty index or an
// unmatched question is answered without calling the completion provider.
func (s *Service) Answer(ctx context.Context, question string) (*Answer, error) {
	return s.answer(ctx, question, nil)
}

// Stream is Answer delivering the text incrementally to onDelta. Providers
// that cannot stream have their full answer sent in groups of words.
func (s *Service) Stream(ctx context.Context, question string, onDelta func(string) error) (*Answer, error) {
	return s.answer(ctx, question, onDelta)
}

func (s *Service) answer(ctx context.Context, question string, onDelta func(string) error) (*Answer, error) {
	start := time.Now()
	ctx, traceID := trace.Ensure(ctx)

	q, err := normalizeQuestion(question)
	if err != nil {
		return nil, err
	}

	if s.index.Count() == 0 {
		ans := s.fixed(NoDocumentsAnswer, traceID)
		return ans, s.finish(ctx, q, ans, start, onDelta, true)
	}

	key := CacheKey(s.index.Generation(), q)
	if s.cache != nil {
		if ans, ok := s.cache.Get(ctx, key); ok {
			ans.TraceID = traceID
			ans.Cached = true
			return ans, s.finish(ctx, q, ans, start, onDelta, true)
		}
	}

	hits, err := s.retrieve(ctx, q, s.opts.TopK)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		ans := s.fixed(NoMatchAnswer, traceID)
		return ans, s.finish(ctx, q, ans, start, onDelta, true)
	}

	req := llm.CompletionRequest{
		Model:       s.opts.Model,
		Messages:    buildMessages(q, hits),
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	}
	resp, streamed, err := s.complete(ctx, req, onDelta)
	if err != nil {
		logging.L().Errorw("completion failed", "trace_id", traceID, "provider", s.provider.Name(), "error", err)
		return nil, err
	}

	ans := s.build(hits, resp, traceID)
	if s.cache != nil {
		s.cache.Set(ctx, key, ans)
	}
	return ans, s.finish(ctx, q, ans, start, onDelta, !streamed)
}

func (s *Service) complete(ctx context.Context, req llm.CompletionRequest, onDelta func(string) error) (*llm.CompletionResponse, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.CompletionTimeout)
	defer cancel()

	var deltaErr error
	if st, ok := s.provider.(llm.Streamer); ok && onDelta != nil {
		resp, err := st.Stream(ctx, req, func(d string) error {
			deltaErr = onDelta(d)
			return deltaErr
		})
		if err != nil {
			if deltaErr != nil {
				return nil, true, deltaErr
			}
			return nil, true, providerError("completion provider unavailable", err)
		}
		return resp, true, nil
	}

	resp, err := s.provider.Complete(ctx, req)
	if err != nil {
		return nil, false, providerError("completion provider unavailable", err)
	}
	return resp, false, nil
}

func (s *Service) fixed(text, traceID string) *Answer {
	return &Answer{
		Answer:        text,
		Sources:       []string{},
		SourceDetails: []SourceDetail{},
		TraceID:       traceID,
	}
}

func (s *Service) build(hits []Hit, resp *llm.CompletionResponse, traceID string) *Answer {
	ans := &Answer{
		Answer:        resp.Content,
		Sources:       []string{},
		SourceDetails: make([]SourceDetail, len(hits)),
		Model:         resp.Model,
		TraceID:       traceID,
	}
	if ans.Model == "" {
		ans.Model = s.Model()
	}

	seen := make(map[string]bool, len(hits))
	var total float64
	for i, h := range hits {
		if !seen[h.Source] {
			seen[h.Source] = true
			ans.Sources = append(ans.Sources, h.Source)
		}
		ans.SourceDetails[i] = SourceDetail{
			Source:  h.Source,
			Chunk:   h.Chunk,
			Score:   math.Round(h.Score*10000) / 10000,
			Preview: preview(h.Text),
		}
		total += h.Score
	}
	ans.Confidence = math.Round(math.Min(100, math.Max(0, total/float64(len(hits))*100))*10) / 10
	return ans
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLen {
		return text
	}
	return string([]rune(text)[:previewLen]) + "..."
}

// finish sends unstreamed text to onDelta and records the query.
func (s *Service) finish(ctx context.Context, q string, ans *Answer, start time.Time, onDelta func(string) error, emit bool) error {
	if onDelta != nil && emit {
		if err := emitWords(ans.Answer, 3, onDelta); err != nil {
			return err
		}
	}
	elapsed := time.Since(start)
	err := s.recorder.RecordQuery(context.WithoutCancel(ctx), analytics.Query{
		Question:       q,
		Answer:         ans.Answer,
		SourcesCount:   len(ans.Sources),
		Confidence:     ans.Confidence,
		Model:          ans.Model,
		ProcessingTime: elapsed,
		Cached:         ans.Cached,
		TraceID:        ans.TraceID,
	})
	if err != nil {
		logging.L().Warnw("recording query failed", "trace_id", ans.TraceID, "error", err)
	}
	logging.L().Infow("question answered",
		"trace_id", ans.TraceID,
		"sources", len(ans.Sources),
		"confidence", ans.Confidence,
		"cached", ans.Cached,
		"duration_ms", elapsed.Milliseconds(),
	)
	return nil
}

// emitWords sends text to onDelta n words at a time, preserving spacing.
func emitWords(text string, n int, onDelta func(string) error) error {
	words := strings.SplitAfter(text, " ")
	for i := 0; i < len(words); i += n {
		group := strings.Join(words[i:min(i+n, len(words))], "")
		if group == "" {
			continue
		}
		if err := onDelta(group); err != nil {
			return err
		}
	}
	return nil
}
