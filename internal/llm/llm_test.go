package llm_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ziadkadry99/chaxai/internal/config"
	"github.com/ziadkadry99/chaxai/internal/llm"
	"github.com/ziadkadry99/chaxai/internal/llm/llmtest"
	"github.com/ziadkadry99/chaxai/internal/retry"
)

func userRequest(content string) llm.CompletionRequest {
	return llm.CompletionRequest{
		Model:    "test-model",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: content}},
	}
}

func TestMockProviderRecordsCalls(t *testing.T) {
	mock := llmtest.NewMockProvider("test")

	resp, err := mock.Complete(context.Background(), userRequest("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "mock response" {
		t.Errorf("expected 'mock response', got %q", resp.Content)
	}
	if mock.CallCount() != 1 {
		t.Errorf("expected 1 call, got %d", mock.CallCount())
	}
	if mock.LastPrompt() != "hello" {
		t.Errorf("expected last prompt 'hello', got %q", mock.LastPrompt())
	}
}

func TestFactoryReturnsErrorForMissingAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GROK_API_KEY", "")

	for _, p := range []config.ProviderType{config.ProviderClaude, config.ProviderOpenAI, config.ProviderGrok} {
		cfg := config.DefaultConfig()
		cfg.Provider = p
		if _, err := llm.NewProvider(cfg); err == nil {
			t.Errorf("expected error for provider %q with missing API key", p)
		}
	}
}

func TestFactoryReturnsErrorForUnknownProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Provider = "unknown"
	if _, err := llm.NewProvider(cfg); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestFactoryNames(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("GROK_API_KEY", "test-key")

	tests := []struct {
		provider config.ProviderType
		want     string
	}{
		{config.ProviderOpenAI, "openai"},
		{config.ProviderClaude, "claude"},
		{config.ProviderGrok, "grok"},
		{config.ProviderOllama, "ollama"},
	}
	for _, tt := range tests {
		cfg := config.DefaultConfig()
		cfg.Provider = tt.provider
		cfg.ProviderRPM = 30
		p, err := llm.NewProvider(cfg)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.provider, err)
		}
		if p.Name() != tt.want {
			t.Errorf("expected name %q, got %q", tt.want, p.Name())
		}
		if _, ok := p.(llm.Streamer); !ok {
			t.Errorf("%s: wrapped provider should stream", tt.provider)
		}
	}
}

func TestRateLimiterPassesThrough(t *testing.T) {
	mock := llmtest.NewMockProvider("test")
	rl := llm.NewRateLimitedProvider(mock, 60)

	resp, err := rl.Complete(context.Background(), userRequest("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "mock response" {
		t.Errorf("expected 'mock response', got %q", resp.Content)
	}
	if rl.Name() != "test" {
		t.Errorf("expected name 'test', got %q", rl.Name())
	}
}

func TestRateLimiterLimitsRequests(t *testing.T) {
	mock := llmtest.NewMockProvider("test")
	// Allow only 2 requests per minute.
	rl := llm.NewRateLimitedProvider(mock, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	// First two should succeed immediately.
	for i := 0; i < 2; i++ {
		if _, err := rl.Complete(ctx, userRequest("hello")); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
	}

	// Third has to wait ~30s, which exceeds the deadline.
	if _, err := rl.Complete(ctx, userRequest("hello")); err == nil {
		t.Error("expected error due to rate limiting + context timeout")
	}
	if mock.CallCount() != 2 {
		t.Errorf("expected 2 calls to reach the provider, got %d", mock.CallCount())
	}
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2}
}

func TestRetryingProviderRetriesTransient(t *testing.T) {
	mock := llmtest.NewMockProvider("test")
	mock.Err = &retry.StatusError{Provider: "test", Code: 503}

	p := llm.WithRetry(mock, fastRetry())
	if _, err := p.Complete(context.Background(), userRequest("hi")); err == nil {
		t.Fatal("expected error")
	}
	if mock.CallCount() != 3 {
		t.Errorf("expected 3 attempts, got %d", mock.CallCount())
	}
}

func TestRetryingProviderSkipsPermanent(t *testing.T) {
	mock := llmtest.NewMockProvider("test")
	mock.Err = &retry.StatusError{Provider: "test", Code: 401}

	p := llm.WithRetry(mock, fastRetry())
	if _, err := p.Complete(context.Background(), userRequest("hi")); err == nil {
		t.Fatal("expected error")
	}
	if mock.CallCount() != 1 {
		t.Errorf("expected 1 attempt, got %d", mock.CallCount())
	}
}

func TestRetryingProviderStreamFallsBackToComplete(t *testing.T) {
	mock := llmtest.NewMockProvider("test")
	p := llm.WithRetry(mock, fastRetry())

	var got strings.Builder
	resp, err := p.Stream(context.Background(), userRequest("hi"), func(s string) error {
		got.WriteString(s)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.String() != "mock response" || resp.Content != "mock response" {
		t.Errorf("unexpected stream output %q / %q", got.String(), resp.Content)
	}
}

func TestOpenAIProviderAgainstCompatibleServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"1","object":"chat.completion","model":"llama-3.1-8b-instant",
			"choices":[{"index":0,"message":{"role":"assistant","content":"The refund window is 30 days."},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":12,"completion_tokens":7,"total_tokens":19}}`)
	}))
	defer srv.Close()

	p := llm.NewGrokProvider("key", "llama-3.1-8b-instant", srv.URL)
	resp, err := p.Complete(context.Background(), userRequest("refunds?"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "The refund window is 30 days." {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 7 {
		t.Errorf("unexpected usage %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestOpenAIProviderUpstreamErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `{"error":{"message":"upstream down","type":"server_error"}}`)
	}))
	defer srv.Close()

	p := llm.NewOpenAIProvider("key", "gpt-4o-mini", srv.URL)
	_, err := p.Complete(context.Background(), userRequest("hi"))
	if err == nil {
		t.Fatal("expected error")
	}
	if code, ok := retry.StatusCode(err); !ok || code != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d (%v)", code, ok)
	}
	if !retry.IsTransient(err) {
		t.Error("expected 502 to be transient")
	}
}

func TestAnthropicProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "key" {
			t.Errorf("missing api key header")
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["system"] != "be brief" {
			t.Errorf("expected system prompt to be lifted, got %v", body["system"])
		}
		fmt.Fprint(w, `{"content":[{"type":"text","text":"Thirty days."}],"model":"claude-3-5-haiku-latest","stop_reason":"end_turn","usage":{"input_tokens":5,"output_tokens":2}}`)
	}))
	defer srv.Close()

	p := llm.NewAnthropicProvider("key", "claude-3-5-haiku-latest", srv.URL+"/")
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{Messages: []llm.Message{
		{Role: llm.RoleSystem, Content: "be brief"},
		{Role: llm.RoleUser, Content: "refund window?"},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Thirty days." {
		t.Errorf("unexpected content %q", resp.Content)
	}
}

func TestAnthropicProviderRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	}))
	defer srv.Close()

	_, err := llm.NewAnthropicProvider("key", "m", srv.URL).Complete(context.Background(), userRequest("hi"))
	if !retry.IsTransient(err) {
		t.Errorf("expected 429 to be transient, got %v", err)
	}
}

func TestOllamaProviderStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"model":"llama3","message":{"role":"assistant","content":"The refund "},"done":false}`)
		fmt.Fprintln(w, `{"model":"llama3","message":{"role":"assistant","content":"window is 30 days."},"done":false}`)
		fmt.Fprintln(w, `{"model":"llama3","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":9,"eval_count":6}`)
	}))
	defer srv.Close()

	p := llm.NewOllamaProvider(srv.URL, "llama3")
	var deltas []string
	resp, err := p.Stream(context.Background(), userRequest("refunds?"), func(s string) error {
		deltas = append(deltas, s)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deltas) != 2 {
		t.Errorf("expected 2 deltas, got %d", len(deltas))
	}
	if resp.Content != "The refund window is 30 days." || resp.FinishReason != "stop" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestRoles(t *testing.T) {
	if llm.RoleSystem != "system" {
		t.Errorf("RoleSystem = %q, want 'system'", llm.RoleSystem)
	}
	if llm.RoleUser != "user" {
		t.Errorf("RoleUser = %q, want 'user'", llm.RoleUser)
	}
	if llm.RoleAssistant != "assistant" {
		t.Errorf("RoleAssistant = %q, want 'assistant'", llm.RoleAssistant)
	}
}
