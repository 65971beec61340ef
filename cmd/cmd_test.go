package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/chaxai/internal/config"
	"github.com/ziadkadry99/chaxai/internal/library"
	"github.com/ziadkadry99/chaxai/internal/rag"
)

// offlineConfig needs no API keys and makes no network calls until a
// question is asked.
func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Provider = config.ProviderOllama
	cfg.Model = "llama3"
	cfg.EmbeddingProvider = config.ProviderOllama
	cfg.EmbeddingModel = "nomic-embed-text"
	return cfg
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, Execute())
	assert.Equal(t, "chaxai "+Version+"\n", out.String())
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chaxai.yml")
	require.NoError(t, os.WriteFile(path, []byte("top_k: 0\n"), 0o600))

	old := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = old })

	_, err := loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "top_k")
}

func TestLoadConfigReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chaxai.yml")
	require.NoError(t, os.WriteFile(path, []byte("top_k: 7\nlog_level: warn\n"), 0o600))

	old := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = old })

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.TopK)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestOpenAppLibraryOnly(t *testing.T) {
	cfg := offlineConfig(t)

	a, err := openApp(context.Background(), cfg, appOptions{})
	require.NoError(t, err)
	defer a.Close()

	assert.Empty(t, a.library.List())
	assert.Nil(t, a.answers)
	assert.NotNil(t, a.analytics)
	assert.FileExists(t, cfg.DBPath())
	assert.DirExists(t, cfg.ResolvedDocsDir())
}

func TestOpenAppWithAnswers(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.AnalyticsEnabled = false

	a, err := openApp(context.Background(), cfg, appOptions{answers: true})
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.answers)
	assert.Nil(t, a.analytics)
	assert.Equal(t, "llama3", a.answers.Model())
}

func TestAnswerCache(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		a := &app{cfg: offlineConfig(t)}
		assert.Nil(t, a.answerCache(context.Background()))
	})

	t.Run("memory", func(t *testing.T) {
		cfg := offlineConfig(t)
		cfg.CacheEnabled = true
		a := &app{cfg: cfg}
		assert.IsType(t, &rag.MemoryCache{}, a.answerCache(context.Background()))
	})

	t.Run("unreachable redis falls back to memory", func(t *testing.T) {
		cfg := offlineConfig(t)
		cfg.CacheEnabled = true
		cfg.RedisAddr = "127.0.0.1:1"
		a := &app{cfg: cfg}
		assert.IsType(t, &rag.MemoryCache{}, a.answerCache(context.Background()))
		assert.Nil(t, a.redis)
	})
}

func TestProviderBudget(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxRetries = 3
	cfg.ProviderTimeout = 10 * time.Second
	assert.Equal(t, 45*time.Second, providerBudget(cfg))

	cfg.MaxRetries = 0
	assert.Equal(t, 25*time.Second, providerBudget(cfg))
}

func TestPrintFileResults(t *testing.T) {
	var out bytes.Buffer
	printFileResults(&out, []library.FileResult{
		{Name: "a.md", Status: library.StatusIndexed, Chunks: 3},
		{Name: "b.exe", Status: library.StatusFailed, Error: "unsupported file type \".exe\""},
	})

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "FILE")
	assert.Contains(t, string(lines[1]), "indexed")
	assert.Contains(t, string(lines[2]), "unsupported file type")
}

func TestPrintAnswer(t *testing.T) {
	var out bytes.Buffer
	printAnswer(&out, &rag.Answer{
		Answer:     "Refunds are accepted within 30 days.",
		Confidence: 82.5,
		SourceDetails: []rag.SourceDetail{
			{Source: "refunds.md", Chunk: 0, Score: 0.825, Preview: "Refund window"},
		},
	})

	s := out.String()
	assert.Contains(t, s, "Refunds are accepted within 30 days.")
	assert.Contains(t, s, "confidence 82.5%")
	assert.Contains(t, s, "refunds.md#0")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "héll...", truncate("héllo world", 4))
}
