package cmd

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ziadkadry99/chaxai/internal/analytics"
	"github.com/ziadkadry99/chaxai/internal/audit"
	"github.com/ziadkadry99/chaxai/internal/config"
	"github.com/ziadkadry99/chaxai/internal/db"
	"github.com/ziadkadry99/chaxai/internal/docstore"
	"github.com/ziadkadry99/chaxai/internal/embeddings"
	"github.com/ziadkadry99/chaxai/internal/keyword"
	"github.com/ziadkadry99/chaxai/internal/library"
	"github.com/ziadkadry99/chaxai/internal/llm"
	"github.com/ziadkadry99/chaxai/internal/logging"
	"github.com/ziadkadry99/chaxai/internal/rag"
	"github.com/ziadkadry99/chaxai/internal/vectordb"
)

const (
	logMaxSizeMB   = 1
	logMaxBackups  = 3
	cacheMaxItems  = 1000
	redisKeyPrefix = "chaxai:answer:"
)

// loadConfig loads and validates the config, then installs the logger it
// describes.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `chaxai init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Options{
		Level:      level,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxSizeMB:  logMaxSizeMB,
		MaxBackups: logMaxBackups,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring logging: %w", err)
	}
	logging.Set(logger)
	return cfg, nil
}

// providerBudget bounds one provider interaction including its retries.
func providerBudget(cfg *config.Config) time.Duration {
	attempts := cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	return time.Duration(attempts)*cfg.ProviderTimeout + 15*time.Second
}

// appOptions selects the optional parts of an app.
type appOptions struct {
	// answers builds the completion provider and the answering service.
	answers  bool
	progress library.ProgressFunc
}

// app is the wired document library and answering service shared by the
// commands.
type app struct {
	cfg       *config.Config
	db        *db.DB
	library   *library.Coordinator
	answers   *rag.Service
	analytics *analytics.Store
	audit     *audit.Store
	keywords  *keyword.Index
	redis     *goredis.Client
}

// openApp wires the stores, index, providers and services described by cfg
// and restores the persisted index.
func openApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	embedder, err := embeddings.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	docs, err := docstore.NewFSStore(cfg.ResolvedDocsDir())
	if err != nil {
		return nil, fmt.Errorf("opening document store: %w", err)
	}

	indexOpts := []vectordb.Option{vectordb.WithDir(cfg.ResolvedIndexDir())}
	if cfg.IndexEncryptionKey != "" {
		indexOpts = append(indexOpts, vectordb.WithEncryptionKey(cfg.IndexEncryptionKey))
	}
	index, err := vectordb.NewChromemStore(embedder, indexOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating vector index: %w", err)
	}

	keywords, err := keyword.New()
	if err != nil {
		return nil, fmt.Errorf("creating keyword index: %w", err)
	}

	database, err := db.Open(cfg.DBPath())
	if err != nil {
		keywords.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a := &app{cfg: cfg, db: database, audit: audit.NewStore(database), keywords: keywords}
	if cfg.AnalyticsEnabled {
		a.analytics = analytics.NewStore(database)
	}

	libOpts := []library.Option{library.WithKeywordIndex(keywords), library.WithAudit(a.audit)}
	if opts.progress != nil {
		libOpts = append(libOpts, library.WithProgress(opts.progress))
	}
	a.library, err = library.New(docs, index, embedder, library.Options{
		MaxUploadBytes: cfg.MaxUploadBytes(),
		ChunkSize:      cfg.ChunkSize,
		ChunkOverlap:   cfg.ChunkOverlap,
		Concurrency:    cfg.MaxConcurrency,
	}, libOpts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating document library: %w", err)
	}
	if err := a.library.Load(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("loading index from %s: %w", cfg.ResolvedIndexDir(), err)
	}

	if !opts.answers {
		return a, nil
	}

	provider, err := llm.NewProvider(cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}

	ragOpts := []rag.Option{rag.WithKeywordIndex(keywords)}
	if a.analytics != nil {
		ragOpts = append(ragOpts, rag.WithRecorder(a.analytics))
	}
	if cache := a.answerCache(ctx); cache != nil {
		ragOpts = append(ragOpts, rag.WithCache(cache))
	}
	budget := providerBudget(cfg)
	a.answers = rag.New(index, embedder, provider, rag.Options{
		TopK:              cfg.TopK,
		MinScore:          cfg.MinScore,
		HybridWeight:      cfg.HybridWeight,
		Model:             cfg.Model,
		Rerank:            cfg.Rerank,
		EmbedTimeout:      budget,
		CompletionTimeout: budget,
	}, ragOpts...)
	return a, nil
}

// answerCache returns the redis cache when redis_addr is set and reachable,
// the in-memory cache otherwise, or nil when caching is disabled.
func (a *app) answerCache(ctx context.Context) rag.Cache {
	cfg := a.cfg
	if !cfg.CacheEnabled {
		return nil
	}
	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := client.Ping(pctx).Err()
		cancel()
		if err == nil {
			a.redis = client
			logging.L().Infow("answer cache enabled", "backend", "redis", "addr", cfg.RedisAddr, "ttl", cfg.CacheTTL)
			return rag.NewRedisCache(client, cfg.CacheTTL, redisKeyPrefix)
		}
		client.Close()
		logging.L().Warnw("redis unavailable, caching answers in memory", "addr", cfg.RedisAddr, "error", err)
	}
	logging.L().Infow("answer cache enabled", "backend", "memory", "ttl", cfg.CacheTTL)
	return rag.NewMemoryCache(cfg.CacheTTL, cacheMaxItems)
}

// Close releases everything openApp acquired.
func (a *app) Close() {
	if a.library != nil {
		a.library.Close()
	}
	a.keywords.Close()
	if a.redis != nil {
		a.redis.Close()
	}
	if err := a.db.Close(); err != nil {
		logging.L().Warnw("closing database failed", "error", err)
	}
}
