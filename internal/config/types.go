package config

import "time"

// ProviderType identifies an LLM or embedding provider.
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderClaude ProviderType = "claude"
	ProviderGrok   ProviderType = "grok"
	ProviderOllama ProviderType = "ollama"
)

// Config is the top-level chaxai configuration, corresponding to chaxai.yml.
type Config struct {
	Provider            ProviderType `yaml:"provider" koanf:"provider"`
	Model               string       `yaml:"model" koanf:"model"`
	APIBase             string       `yaml:"api_base" koanf:"api_base"`
	EmbeddingProvider   ProviderType `yaml:"embedding_provider" koanf:"embedding_provider"`
	EmbeddingModel      string       `yaml:"embedding_model" koanf:"embedding_model"`
	EmbeddingAPIBase    string       `yaml:"embedding_api_base" koanf:"embedding_api_base"`
	EmbeddingDimensions int          `yaml:"embedding_dimensions" koanf:"embedding_dimensions"`

	DataDir  string `yaml:"data_dir" koanf:"data_dir"`
	DocsDir  string `yaml:"docs_dir" koanf:"docs_dir"`
	IndexDir string `yaml:"index_dir" koanf:"index_dir"`

	Port           int      `yaml:"port" koanf:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" koanf:"allowed_origins"`
	APITokens      []string `yaml:"api_tokens" koanf:"api_tokens"`
	MaxUploadMB    int      `yaml:"max_upload_mb" koanf:"max_upload_mb"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps" koanf:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst" koanf:"rate_limit_burst"`

	LogLevel  string `yaml:"log_level" koanf:"log_level"`
	LogFormat string `yaml:"log_format" koanf:"log_format"`
	LogFile   string `yaml:"log_file" koanf:"log_file"`

	TopK         int     `yaml:"top_k" koanf:"top_k"`
	MinScore     float64 `yaml:"min_score" koanf:"min_score"`
	HybridWeight float64 `yaml:"hybrid_weight" koanf:"hybrid_weight"`
	Rerank       bool    `yaml:"rerank" koanf:"rerank"`
	ChunkSize    int     `yaml:"chunk_size" koanf:"chunk_size"`
	ChunkOverlap int     `yaml:"chunk_overlap" koanf:"chunk_overlap"`

	ProviderTimeout time.Duration `yaml:"provider_timeout" koanf:"provider_timeout"`
	MaxRetries      int           `yaml:"max_retries" koanf:"max_retries"`
	ProviderRPM     int           `yaml:"provider_rpm" koanf:"provider_rpm"`
	MaxConcurrency  int           `yaml:"max_concurrency" koanf:"max_concurrency"`

	CacheEnabled  bool          `yaml:"cache_enabled" koanf:"cache_enabled"`
	CacheTTL      time.Duration `yaml:"cache_ttl" koanf:"cache_ttl"`
	RedisAddr     string        `yaml:"redis_addr" koanf:"redis_addr"`
	RedisPassword string        `yaml:"redis_password" koanf:"redis_password"`
	RedisDB       int           `yaml:"redis_db" koanf:"redis_db"`

	AnalyticsEnabled   bool   `yaml:"analytics_enabled" koanf:"analytics_enabled"`
	IndexEncryptionKey string `yaml:"index_encryption_key" koanf:"index_encryption_key"`
}
