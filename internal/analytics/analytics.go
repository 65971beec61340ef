// Package analytics stores per-request API usage and per-question query
// records, and summarises them over a window of days.
package analytics

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/ziadkadry99/chaxai/internal/db"
)

const (
	maxQuestionLen = 500
	maxPreviewLen  = 200
)

// Usage is one HTTP request.
type Usage struct {
	Timestamp  time.Time
	Endpoint   string
	Method     string
	StatusCode int
	Duration   time.Duration
	Client     string
	TraceID    string
}

// Query is one answered question.
type Query struct {
	Timestamp      time.Time
	Question       string
	Answer         string
	SourcesCount   int
	Confidence     float64
	Model          string
	ProcessingTime time.Duration
	Cached         bool
	TraceID        string
}

// Recorder receives analytics events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	RecordUsage(ctx context.Context, u Usage) error
	RecordQuery(ctx context.Context, q Query) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) RecordUsage(context.Context, Usage) error { return nil }
func (Nop) RecordQuery(context.Context, Query) error { return nil }

// Store persists analytics in the shared SQLite database.
type Store struct {
	db  *db.DB
	now func() time.Time
}

var _ Recorder = (*Store)(nil)

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database, now: time.Now}
}

func (s *Store) stamp(t time.Time) string {
	if t.IsZero() {
		t = s.now()
	}
	return db.FormatTime(t)
}

// RecordUsage inserts an api_usage row.
func (s *Store) RecordUsage(ctx context.Context, u Usage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_usage (timestamp, endpoint, method, status_code, duration_ms, client, trace_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.stamp(u.Timestamp), u.Endpoint, u.Method, u.StatusCode, millis(u.Duration), u.Client, u.TraceID,
	)
	if err != nil {
		return fmt.Errorf("inserting api usage: %w", err)
	}
	return nil
}

// RecordQuery inserts a query_log row. Long questions and answers are
// truncated.
func (s *Store) RecordQuery(ctx context.Context, q Query) error {
	cached := 0
	if q.Cached {
		cached = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_log (timestamp, question, answer_preview, sources_count, confidence, model, processing_ms, cached, trace_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.stamp(q.Timestamp), truncate(q.Question, maxQuestionLen), truncate(q.Answer, maxPreviewLen),
		q.SourcesCount, q.Confidence, q.Model, millis(q.ProcessingTime), cached, q.TraceID,
	)
	if err != nil {
		return fmt.Errorf("inserting query log: %w", err)
	}
	return nil
}

// DeleteBefore drops usage and query rows older than before.
func (s *Store) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	cutoff := db.FormatTime(before)
	var total int64
	for _, table := range []string{"api_usage", "query_log"} {
		res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE timestamp < ?", cutoff)
		if err != nil {
			return total, fmt.Errorf("pruning %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
