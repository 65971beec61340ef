package embeddings

import (
	"context"

	"github.com/ziadkadry99/chaxai/internal/retry"
)

// RetryingEmbedder retries transient failures of the wrapped Embedder.
type RetryingEmbedder struct {
	Embedder
	cfg retry.Config
}

// WithRetry wraps e so that each Embed call is retried per cfg.
func WithRetry(e Embedder, cfg retry.Config) *RetryingEmbedder {
	return &RetryingEmbedder{Embedder: e, cfg: cfg}
}

func (r *RetryingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := retry.Do(ctx, r.cfg, func(ctx context.Context) error {
		var err error
		out, err = r.Embedder.Embed(ctx, texts)
		return err
	})
	return out, err
}
