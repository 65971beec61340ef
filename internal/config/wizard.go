package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// DefaultPath is where RunWizard saves the configuration.
const DefaultPath = "chaxai.yml"

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to path.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to chaxai! Let's configure your document assistant.")
	fmt.Println()

	cfg := DefaultConfig()

	providerPrompt := promptui.Select{
		Label: "Select completion provider",
		Items: []string{"openai", "claude", "grok", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	cfg.Provider = ProviderType(providerStr)
	preset := GetPreset(cfg.Provider)

	modelPrompt := promptui.Prompt{
		Label:   "Completion model",
		Default: preset.Model,
	}
	if cfg.Model, err = modelPrompt.Run(); err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	basePrompt := promptui.Prompt{
		Label:   "API base URL",
		Default: preset.APIBase,
	}
	if cfg.APIBase, err = basePrompt.Run(); err != nil {
		return nil, fmt.Errorf("api base: %w", err)
	}

	cfg.EmbeddingProvider = embeddingProviderFor(cfg.Provider)
	cfg.EmbeddingModel = preset.EmbeddingModel
	if cfg.EmbeddingProvider == ProviderOllama {
		cfg.EmbeddingDimensions = 768
	}

	dataPrompt := promptui.Prompt{
		Label:   "Data directory (documents, index, database)",
		Default: cfg.DataDir,
	}
	if cfg.DataDir, err = dataPrompt.Run(); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	uploadPrompt := promptui.Prompt{
		Label:   "Maximum upload size (MB)",
		Default: strconv.Itoa(cfg.MaxUploadMB),
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return fmt.Errorf("enter a positive number")
			}
			return nil
		},
	}
	uploadStr, err := uploadPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("max upload: %w", err)
	}
	cfg.MaxUploadMB, _ = strconv.Atoi(uploadStr)

	tokensPrompt := promptui.Prompt{
		Label:   "API tokens (comma-separated, blank disables auth)",
		Default: "",
	}
	tokensStr, err := tokensPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("api tokens: %w", err)
	}
	cfg.APITokens = splitList([]string{tokensStr})

	originsPrompt := promptui.Prompt{
		Label:   "Allowed CORS origins (comma-separated)",
		Default: strings.Join(cfg.AllowedOrigins, ","),
	}
	originsStr, err := originsPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("allowed origins: %w", err)
	}
	cfg.AllowedOrigins = splitList([]string{originsStr})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	for _, p := range []ProviderType{cfg.Provider, cfg.EmbeddingProvider} {
		if envVar := APIKeyEnvVar(p); envVar != "" && os.Getenv(envVar) == "" {
			fmt.Printf("\nNote: Set %s in your environment (or .env) before running chaxai server.\n", envVar)
		}
	}

	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}

// embeddingProviderFor returns the default embedding provider for a given
// completion provider. Claude and Grok have no embedding endpoint, so
// OpenAI embeddings are used for every hosted provider.
func embeddingProviderFor(p ProviderType) ProviderType {
	if p == ProviderOllama {
		return ProviderOllama
	}
	return ProviderOpenAI
}
