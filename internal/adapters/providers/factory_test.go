package providers

import (
	"testing"

	"github.com/manthysbr/partgraph/internal/adapters/llm"
	"github.com/manthysbr/partgraph/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_Remote(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.LLM.APIKey = "sk-test"

	completer, embedder, err := Build(cfg)
	require.NoError(t, err)
	assert.IsType(t, &llm.OpenAIProvider{}, completer)
	assert.Same(t, completer, embedder)
}

func TestBuild_RemoteRequiresKey(t *testing.T) {
	_, _, err := Build(domain.DefaultConfig())
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestBuild_Local(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://ollama:11434/v1/")
	cfg := domain.DefaultConfig()
	cfg.LLM.Mode = "local"

	completer, _, err := Build(cfg)
	require.NoError(t, err)
	assert.IsType(t, &llm.OllamaProvider{}, completer)
}

func TestBuild_UnknownMode(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.LLM.Mode = "quantum"
	_, _, err := Build(cfg)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestNormalizeOllamaBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:11434", normalizeOllamaBaseURL("http://localhost:11434/v1/"))
	assert.Equal(t, "http://localhost:11434", normalizeOllamaBaseURL(" http://localhost:11434 "))
	assert.Equal(t, "", normalizeOllamaBaseURL(""))
}
