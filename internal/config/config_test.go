package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Provider != ProviderOpenAI {
		t.Errorf("expected default provider %q, got %q", ProviderOpenAI, cfg.Provider)
	}
	if cfg.MaxUploadMB != 10 {
		t.Errorf("expected default max_upload_mb 10, got %d", cfg.MaxUploadMB)
	}
	if cfg.TopK != 4 {
		t.Errorf("expected default top_k 4, got %d", cfg.TopK)
	}
	if cfg.ChunkSize != 1000 || cfg.ChunkOverlap != 100 {
		t.Errorf("expected chunking 1000/100, got %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if !cfg.Rerank {
		t.Error("expected rerank enabled by default")
	}
	if len(cfg.APITokens) != 0 {
		t.Errorf("expected auth disabled by default, got %v", cfg.APITokens)
	}
	if cfg.MaxUploadBytes() != 10<<20 {
		t.Errorf("MaxUploadBytes = %d", cfg.MaxUploadBytes())
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chaxai.yml")

	original := DefaultConfig()
	original.Provider = ProviderGrok
	original.Model = "llama-3.1-70b-versatile"
	original.APITokens = []string{"alpha", "beta"}
	original.DataDir = filepath.Join(dir, "data")
	original.ProviderTimeout = 45 * time.Second

	if err := original.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Provider != original.Provider {
		t.Errorf("provider: got %q, want %q", loaded.Provider, original.Provider)
	}
	if loaded.Model != original.Model {
		t.Errorf("model: got %q, want %q", loaded.Model, original.Model)
	}
	if loaded.DataDir != original.DataDir {
		t.Errorf("data_dir: got %q, want %q", loaded.DataDir, original.DataDir)
	}
	if loaded.ProviderTimeout != original.ProviderTimeout {
		t.Errorf("provider_timeout: got %v, want %v", loaded.ProviderTimeout, original.ProviderTimeout)
	}
	if len(loaded.APITokens) != 2 || loaded.APITokens[0] != "alpha" || loaded.APITokens[1] != "beta" {
		t.Errorf("api_tokens: got %v", loaded.APITokens)
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(filepath.Join(dir, "nonexistent.yml"))
	if err != nil {
		t.Fatalf("Load should not fail for missing file: %v", err)
	}
	if cfg.Provider != ProviderOpenAI {
		t.Errorf("expected default provider, got %q", cfg.Provider)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chaxai.yml")
	if err := DefaultConfig().Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	t.Setenv("CHAXAI_PROVIDER", "claude")
	t.Setenv("CHAXAI_MAX_UPLOAD_MB", "25")
	t.Setenv("CHAXAI_API_TOKENS", "one, two")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Provider != ProviderClaude {
		t.Errorf("env override failed: got %q, want %q", loaded.Provider, ProviderClaude)
	}
	if loaded.MaxUploadMB != 25 {
		t.Errorf("max_upload_mb: got %d, want 25", loaded.MaxUploadMB)
	}
	if len(loaded.APITokens) != 2 || loaded.APITokens[1] != "two" {
		t.Errorf("api_tokens: got %v", loaded.APITokens)
	}
}

func TestLoadDisablesRerank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chaxai.yml")
	if err := os.WriteFile(path, []byte("rerank: false\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Rerank {
		t.Error("rerank: false in the file should disable reranking")
	}
}

func TestLoadYAMLDurationString(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chaxai.yml")
	if err := os.WriteFile(path, []byte("provider_timeout: 5s\ncache_ttl: 10m\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ProviderTimeout != 5*time.Second {
		t.Errorf("provider_timeout = %v", cfg.ProviderTimeout)
	}
	if cfg.CacheTTL != 10*time.Minute {
		t.Errorf("cache_ttl = %v", cfg.CacheTTL)
	}
}

func TestValidateValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig should be valid, got: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"invalid provider", func(c *Config) { c.Provider = "invalid" }},
		{"empty provider", func(c *Config) { c.Provider = "" }},
		{"empty model", func(c *Config) { c.Model = "" }},
		{"claude embeddings", func(c *Config) { c.EmbeddingProvider = ProviderClaude }},
		{"zero top_k", func(c *Config) { c.TopK = 0 }},
		{"overlap >= size", func(c *Config) { c.ChunkOverlap = c.ChunkSize }},
		{"hybrid weight", func(c *Config) { c.HybridWeight = 1.5 }},
		{"no retries", func(c *Config) { c.MaxRetries = 0 }},
		{"negative concurrency", func(c *Config) { c.MaxConcurrency = -1 }},
		{"short encryption key", func(c *Config) { c.IndexEncryptionKey = "short" }},
		{"zero upload", func(c *Config) { c.MaxUploadMB = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestResolvedDirs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/srv/chaxai"
	if got := cfg.ResolvedDocsDir(); got != filepath.Join("/srv/chaxai", "docs") {
		t.Errorf("ResolvedDocsDir = %q", got)
	}
	cfg.IndexDir = "/var/index"
	if got := cfg.ResolvedIndexDir(); got != "/var/index" {
		t.Errorf("ResolvedIndexDir = %q", got)
	}
}

func TestGetPreset(t *testing.T) {
	if p := GetPreset(ProviderGrok); p.APIBase != "https://api.groq.com/openai/v1" {
		t.Errorf("grok base = %q", p.APIBase)
	}
	if p := GetPreset("unknown"); p.Model != "gpt-4o-mini" {
		t.Errorf("expected fallback to openai preset, got %q", p.Model)
	}
}

func TestAPIKeyEnvVar(t *testing.T) {
	tests := []struct {
		provider ProviderType
		want     string
	}{
		{ProviderClaude, "ANTHROPIC_API_KEY"},
		{ProviderOpenAI, "OPENAI_API_KEY"},
		{ProviderGrok, "GROK_API_KEY"},
		{ProviderOllama, ""},
	}
	for _, tt := range tests {
		if got := APIKeyEnvVar(tt.provider); got != tt.want {
			t.Errorf("APIKeyEnvVar(%q) = %q, want %q", tt.provider, got, tt.want)
		}
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		input []string
		want  []string
	}{
		{[]string{"a,b,c"}, []string{"a", "b", "c"}},
		{[]string{" a , b ", "c"}, []string{"a", "b", "c"}},
		{[]string{""}, nil},
		{[]string{"  ,  , "}, nil},
	}
	for _, tt := range tests {
		got := splitList(tt.input)
		if len(got) != len(tt.want) {
			t.Errorf("splitList(%q) len = %d, want %d", tt.input, len(got), len(tt.want))
			continue
		}
		for i, v := range got {
			if v != tt.want[i] {
				t.Errorf("splitList(%q)[%d] = %q, want %q", tt.input, i, v, tt.want[i])
			}
		}
	}
}
