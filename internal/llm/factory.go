package llm

import (
	"fmt"
	"os"

	"github.com/ziadkadry99/chaxai/internal/config"
	"github.com/ziadkadry99/chaxai/internal/retry"
)

// NewProvider creates the completion provider selected by cfg. The result
// retries transient failures with a per-attempt timeout and, when
// provider_rpm is set, is rate limited.
func NewProvider(cfg *config.Config) (Provider, error) {
	var p Provider
	base := cfg.ResolvedAPIBase()
	switch cfg.Provider {
	case config.ProviderClaude:
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		p = NewAnthropicProvider(apiKey, cfg.Model, base)

	case config.ProviderOpenAI:
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
		p = NewOpenAIProvider(apiKey, cfg.Model, base)

	case config.ProviderGrok:
		apiKey := os.Getenv("GROK_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("GROK_API_KEY environment variable is not set")
		}
		p = NewGrokProvider(apiKey, cfg.Model, base)

	case config.ProviderOllama:
		host := cfg.APIBase
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		if host == "" {
			host = "http://localhost:11434"
		}
		p = NewOllamaProvider(host, cfg.Model)

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Provider)
	}

	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.MaxRetries
	rc.AttemptTimeout = cfg.ProviderTimeout
	p = WithRetry(p, rc)
	if cfg.ProviderRPM > 0 {
		p = NewRateLimitedProvider(p, cfg.ProviderRPM)
	}
	return p, nil
}
