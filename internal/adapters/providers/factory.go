package providers

import (
	"fmt"
	"os"
	"strings"

	"github.com/manthysbr/partgraph/internal/adapters/llm"
	"github.com/manthysbr/partgraph/internal/core/domain"
	"github.com/manthysbr/partgraph/internal/core/ports"
)

// Build creates the completion and embedding providers from app
// configuration. It hides local/remote provider selection from callers.
func Build(config *domain.AppConfig) (ports.Completer, ports.Embedder, error) {
	if config == nil {
		config = domain.DefaultConfig()
	}
	cfg := config.LLM

	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	switch mode {
	case "local":
		baseURL := strings.TrimSpace(os.Getenv("OLLAMA_HOST"))
		if baseURL == "" {
			baseURL = strings.TrimSpace(cfg.BaseURL)
		}
		p := llm.NewOllamaProvider(normalizeOllamaBaseURL(baseURL), cfg.Model, cfg.EmbeddingModel, cfg.Timeout)
		return p, p, nil
	case "", "remote":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, nil, fmt.Errorf("%w: llm api_key is required when mode=remote", domain.ErrInvalidConfig)
		}
		p := llm.NewOpenAIProvider(llm.OpenAIConfig{
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			APIKey:         strings.TrimSpace(cfg.APIKey),
			Model:          strings.TrimSpace(cfg.Model),
			EmbeddingModel: strings.TrimSpace(cfg.EmbeddingModel),
			Timeout:        cfg.Timeout,
		})
		return p, p, nil
	default:
		return nil, nil, fmt.Errorf("%w: unsupported llm provider mode: %s", domain.ErrInvalidConfig, cfg.Mode)
	}
}

func normalizeOllamaBaseURL(baseURL string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if strings.HasSuffix(trimmed, "/v1") {
		return strings.TrimSuffix(trimmed, "/v1")
	}
	return trimmed
}
