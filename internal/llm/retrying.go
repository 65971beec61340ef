package llm

import (
	"context"

	"github.com/ziadkadry99/chaxai/internal/retry"
)

// RetryingProvider retries transient failures of the wrapped provider.
type RetryingProvider struct {
	provider Provider
	cfg      retry.Config
}

// WithRetry wraps p so that each completion is retried per cfg.
func WithRetry(p Provider, cfg retry.Config) *RetryingProvider {
	return &RetryingProvider{provider: p, cfg: cfg}
}

func (r *RetryingProvider) Name() string {
	return r.provider.Name()
}

func (r *RetryingProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var resp *CompletionResponse
	err := retry.Do(ctx, r.cfg, func(ctx context.Context) error {
		var err error
		resp, err = r.provider.Complete(ctx, req)
		return err
	})
	return resp, err
}

// Stream retries only while nothing has been delivered to onDelta; once text
// has reached the caller a failure is returned as is.
func (r *RetryingProvider) Stream(ctx context.Context, req CompletionRequest, onDelta func(string) error) (*CompletionResponse, error) {
	s, ok := r.provider.(Streamer)
	if !ok {
		resp, err := r.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		return resp, onDelta(resp.Content)
	}

	var (
		resp    *CompletionResponse
		started bool
	)
	cfg := r.cfg
	cfg.AttemptTimeout = 0 // streams are bounded by ctx only
	inner := cfg.Retryable
	if inner == nil {
		inner = retry.IsTransient
	}
	cfg.Retryable = func(err error) bool { return !started && inner(err) }

	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		var err error
		resp, err = s.Stream(ctx, req, func(delta string) error {
			started = true
			return onDelta(delta)
		})
		return err
	})
	return resp, err
}
