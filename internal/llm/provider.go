package llm

import "context"

// Provider defines the interface for LLM providers.
type Provider interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Name returns the name of this provider.
	Name() string
}

// Streamer is implemented by providers that can deliver a completion
// incrementally. onDelta is called with each piece of text in order; an
// error from it aborts the stream. The returned response carries the full
// text.
type Streamer interface {
	Stream(ctx context.Context, req CompletionRequest, onDelta func(string) error) (*CompletionResponse, error)
}
