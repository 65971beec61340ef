package config

import (
	"path/filepath"
	"time"
)

// ProviderPreset holds the default model and API base for a provider.
type ProviderPreset struct {
	Model          string
	APIBase        string
	EmbeddingModel string
}

var providerPresets = map[ProviderType]ProviderPreset{
	ProviderOpenAI: {Model: "gpt-4o-mini", APIBase: "https://api.openai.com/v1", EmbeddingModel: "text-embedding-3-small"},
	ProviderClaude: {Model: "claude-3-5-haiku-latest", APIBase: "https://api.anthropic.com", EmbeddingModel: "text-embedding-3-small"},
	ProviderGrok:   {Model: "llama-3.1-8b-instant", APIBase: "https://api.groq.com/openai/v1", EmbeddingModel: "text-embedding-3-small"},
	ProviderOllama: {Model: "llama3", APIBase: "http://localhost:11434", EmbeddingModel: "nomic-embed-text"},
}

// GetPreset returns the preset for the given provider, falling back to OpenAI.
func GetPreset(p ProviderType) ProviderPreset {
	if preset, ok := providerPresets[p]; ok {
		return preset
	}
	return providerPresets[ProviderOpenAI]
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider:          ProviderOpenAI,
		Model:             "gpt-4o-mini",
		EmbeddingProvider: ProviderOpenAI,
		EmbeddingModel:    "text-embedding-3-small",
		DataDir:           "data",
		Port:              8000,
		AllowedOrigins:    []string{"*"},
		MaxUploadMB:       10,
		RateLimitRPS:      5,
		RateLimitBurst:    20,
		LogLevel:          "info",
		LogFormat:         "console",
		TopK:              4,
		HybridWeight:      0.3,
		Rerank:            true,
		ChunkSize:         1000,
		ChunkOverlap:      100,
		ProviderTimeout:   30 * time.Second,
		MaxRetries:        3,
		MaxConcurrency:    4,
		CacheTTL:          time.Hour,
		AnalyticsEnabled:  true,
	}
}

// ResolvedDocsDir is the Document Store directory.
func (c *Config) ResolvedDocsDir() string {
	if c.DocsDir != "" {
		return c.DocsDir
	}
	return filepath.Join(c.DataDir, "docs")
}

// ResolvedIndexDir is the Vector Index persistence directory.
func (c *Config) ResolvedIndexDir() string {
	if c.IndexDir != "" {
		return c.IndexDir
	}
	return filepath.Join(c.DataDir, "index")
}

// DBPath is the SQLite database holding analytics and the audit trail.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "chaxai.db")
}

// MaxUploadBytes is the per-file upload limit.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// ResolvedAPIBase returns the configured API base or the provider default.
func (c *Config) ResolvedAPIBase() string {
	if c.APIBase != "" {
		return c.APIBase
	}
	return GetPreset(c.Provider).APIBase
}
