package library

import (
	"context"
	"time"

	"github.com/ziadkadry99/chaxai/internal/vectordb"
)

// Document is a committed document as reported by List.
type Document = vectordb.SourceInfo

// Status is the per-file outcome of a batch operation.
type Status string

const (
	StatusIndexed   Status = "indexed"
	StatusUnchanged Status = "unchanged"
	StatusFailed    Status = "failed"
)

// File is one named upload.
type File struct {
	Name string
	Data []byte
}

// FileResult reports what happened to one file of a batch.
type FileResult struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Chunks int    `json:"chunks"`
	Error  string `json:"error,omitempty"`

	// Err is the underlying failure, kept for status mapping.
	Err error `json:"-"`
}

// ReindexReport summarises a full rebuild from the document store.
type ReindexReport struct {
	Documents  int          `json:"documents"`
	Chunks     int          `json:"chunks"`
	Removed    []string     `json:"removed"`
	Failed     []FileResult `json:"failed"`
	DurationMS int64        `json:"duration_ms"`
}

// ProgressFunc is called after each file of a batch completes.
type ProgressFunc func(done, total int, name string)

type actorKey struct{}

// WithActor returns a copy of ctx naming who performs lifecycle operations.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFrom(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return "system"
}

func since(start time.Time) int64 { return time.Since(start).Milliseconds() }
