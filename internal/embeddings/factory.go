package embeddings

import (
	"fmt"
	"os"

	"github.com/ziadkadry99/chaxai/internal/config"
	"github.com/ziadkadry99/chaxai/internal/retry"
)

// New builds the embedder selected by cfg, wrapped with the configured retry
// policy and per-call timeout.
func New(cfg *config.Config) (Embedder, error) {
	var e Embedder
	switch cfg.EmbeddingProvider {
	case config.ProviderOpenAI:
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
		e = NewOpenAIEmbedder(apiKey, OpenAIModel(cfg.EmbeddingModel), cfg.EmbeddingAPIBase, cfg.EmbeddingDimensions)

	case config.ProviderOllama:
		base := cfg.EmbeddingAPIBase
		if base == "" {
			base = os.Getenv("OLLAMA_HOST")
		}
		e = NewOllamaEmbedder(cfg.EmbeddingModel, cfg.EmbeddingDimensions, base)

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.EmbeddingProvider)
	}

	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.MaxRetries
	rc.AttemptTimeout = cfg.ProviderTimeout
	return WithRetry(e, rc), nil
}
