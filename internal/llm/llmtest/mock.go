// Package llmtest provides a recording llm.Provider for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/ziadkadry99/chaxai/internal/llm"
)

// MockProvider is a test provider that records calls and returns canned responses.
type MockProvider struct {
	mu       sync.Mutex
	Calls    []llm.CompletionRequest
	Response *llm.CompletionResponse
	Err      error
	ProvName string
	// Reply, when set, computes the response text from the request.
	Reply func(req llm.CompletionRequest) string
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		ProvName: name,
		Response: &llm.CompletionResponse{
			Content:      "mock response",
			InputTokens:  10,
			OutputTokens: 20,
			Model:        "mock-model",
			FinishReason: "stop",
		},
	}
}

func (m *MockProvider) Name() string {
	return m.ProvName
}

func (m *MockProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, req)
	if m.Err != nil {
		return nil, m.Err
	}
	resp := *m.Response
	if m.Reply != nil {
		resp.Content = m.Reply(req)
	}
	return &resp, nil
}

func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastPrompt returns the content of the last user message sent.
func (m *MockProvider) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return ""
	}
	msgs := m.Calls[len(m.Calls)-1].Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

// StreamingProvider is a MockProvider that also implements llm.Streamer,
// emitting the response word by word.
type StreamingProvider struct {
	*MockProvider
}

func (s StreamingProvider) Stream(ctx context.Context, req llm.CompletionRequest, onDelta func(string) error) (*llm.CompletionResponse, error) {
	resp, err := s.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	words := strings.SplitAfter(resp.Content, " ")
	for _, w := range words {
		if w == "" {
			continue
		}
		if err := onDelta(w); err != nil {
			return nil, err
		}
	}
	return resp, nil
}
