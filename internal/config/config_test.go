package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/manthysbr/partgraph/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so host settings don't leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "OLLAMA_HOST",
		"NEO4J_CURRENT_URI", "NEO4J_CURRENT_USERNAME", "NEO4J_CURRENT_PASSWORD",
		"PARTGRAPH_DB_PATH", "PARTGRAPH_ADDR",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "partgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	want := domain.DefaultConfig()
	want.LLM.APIKey = "sk-env"
	assert.Equal(t, want, cfg)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
llm:
  api_key: sk-file
  model: gpt-4o-mini
  timeout: 30s
graph:
  uri: neo4j://graph:7687
agent:
  mode: parallel
  parser: strict
  turn_timeout: 1m
search:
  threshold: 0.65
`)
	t.Setenv("NEO4J_CURRENT_URI", "neo4j+s://override:7687")
	t.Setenv("NEO4J_CURRENT_PASSWORD", "pw")
	t.Setenv("PARTGRAPH_ADDR", ":9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-file", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "neo4j+s://override:7687", cfg.Graph.URI)
	assert.Equal(t, "pw", cfg.Graph.Password)
	assert.Equal(t, domain.ModeParallel, cfg.Agent.Mode)
	assert.Equal(t, domain.ParserStrict, cfg.Agent.Parser)
	assert.Equal(t, time.Minute, cfg.Agent.TurnTimeout)
	assert.InDelta(t, 0.65, cfg.Search.Threshold, 1e-9)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	// untouched sections keep defaults
	assert.Equal(t, 15, cfg.Agent.MaxIterations)
	assert.Equal(t, 3, cfg.Query.MaxAttempts)
}

func TestLoad_LocalModeUsesOllamaHost(t *testing.T) {
	clearEnv(t)
	t.Setenv("OLLAMA_HOST", "http://ollama:11434")
	path := writeConfig(t, "llm:\n  mode: local\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://ollama:11434", cfg.LLM.BaseURL)
	assert.Empty(t, cfg.LLM.APIKey)
}

func TestLoad_DecryptsSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv(SecretKeyEnv, "config-test-key")
	sk, err := NewSecretKey()
	require.NoError(t, err)
	encKey, err := sk.Encrypt("sk-secret")
	require.NoError(t, err)
	encPass, err := sk.Encrypt("graph-pass")
	require.NoError(t, err)

	path := writeConfig(t, "llm:\n  api_key: \""+encKey+"\"\ngraph:\n  password: \""+encPass+"\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", cfg.LLM.APIKey)
	assert.Equal(t, "graph-pass", cfg.Graph.Password)
}

func TestLoad_RejectsBadYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "llm: [unterminated\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestValidate(t *testing.T) {
	valid := func() *domain.AppConfig {
		cfg := domain.DefaultConfig()
		cfg.LLM.APIKey = "sk"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*domain.AppConfig)
		errMsg string
	}{
		{"valid", func(*domain.AppConfig) {}, ""},
		{"local needs no key", func(c *domain.AppConfig) { c.LLM.Mode = "local"; c.LLM.APIKey = "" }, ""},
		{"remote without key", func(c *domain.AppConfig) { c.LLM.APIKey = "" }, "api key"},
		{"unknown llm mode", func(c *domain.AppConfig) { c.LLM.Mode = "hybrid" }, "unsupported llm mode"},
		{"empty graph uri", func(c *domain.AppConfig) { c.Graph.URI = "" }, "graph uri"},
		{"bad agent mode", func(c *domain.AppConfig) { c.Agent.Mode = "swarm" }, "unsupported agent mode"},
		{"bad parser", func(c *domain.AppConfig) { c.Agent.Parser = "lenient" }, "unsupported parser"},
		{"zero iterations", func(c *domain.AppConfig) { c.Agent.MaxIterations = 0 }, "max_iterations"},
		{"threshold out of range", func(c *domain.AppConfig) { c.Search.Threshold = 1.5 }, "search.threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, domain.ErrInvalidConfig)
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}

	assert.ErrorIs(t, Validate(nil), domain.ErrInvalidConfig)
}
