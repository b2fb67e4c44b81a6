package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/manthysbr/partgraph/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// Load builds the application config: defaults, then the optional YAML file
// at path, then environment overrides, then secret decryption. The result is
// validated before it is returned.
func Load(path string) (*domain.AppConfig, error) {
	cfg := domain.DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Missing file means defaults
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := decryptSecrets(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *domain.AppConfig) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}
	if url := os.Getenv("OPENAI_BASE_URL"); url != "" {
		cfg.LLM.BaseURL = url
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" && strings.EqualFold(cfg.LLM.Mode, "local") {
		cfg.LLM.BaseURL = host
	}
	if uri := os.Getenv("NEO4J_CURRENT_URI"); uri != "" {
		cfg.Graph.URI = uri
	}
	if user := os.Getenv("NEO4J_CURRENT_USERNAME"); user != "" {
		cfg.Graph.Username = user
	}
	if pass := os.Getenv("NEO4J_CURRENT_PASSWORD"); pass != "" {
		cfg.Graph.Password = pass
	}
	if path := os.Getenv("PARTGRAPH_DB_PATH"); path != "" {
		cfg.Memory.DBPath = path
	}
	if addr := os.Getenv("PARTGRAPH_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
}

// decryptSecrets resolves "enc:" values. The key is only loaded when at
// least one secret is encrypted.
func decryptSecrets(cfg *domain.AppConfig) error {
	fields := []*string{&cfg.LLM.APIKey, &cfg.Graph.Password}
	encrypted := false
	for _, f := range fields {
		if IsEncrypted(*f) {
			encrypted = true
			break
		}
	}
	if !encrypted {
		return nil
	}
	sk, err := NewSecretKey()
	if err != nil {
		return fmt.Errorf("load secret key: %w", err)
	}
	if err := sk.DecryptFields(fields...); err != nil {
		return fmt.Errorf("decrypt config secrets: %w", err)
	}
	return nil
}

// Validate reports configuration errors that must stop startup.
func Validate(cfg *domain.AppConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil config", domain.ErrInvalidConfig)
	}
	var errs []error
	switch strings.ToLower(cfg.LLM.Mode) {
	case "", "remote":
		if cfg.LLM.APIKey == "" {
			errs = append(errs, errors.New("llm api key not configured (set OPENAI_API_KEY or llm.api_key)"))
		}
	case "local":
	default:
		errs = append(errs, fmt.Errorf("unsupported llm mode %q", cfg.LLM.Mode))
	}
	if cfg.Graph.URI == "" {
		errs = append(errs, errors.New("graph uri not configured (set NEO4J_CURRENT_URI or graph.uri)"))
	}
	switch cfg.Agent.Mode {
	case domain.ModeSequential, domain.ModeParallel:
	default:
		errs = append(errs, fmt.Errorf("unsupported agent mode %q", cfg.Agent.Mode))
	}
	switch cfg.Agent.Parser {
	case domain.ParserPermissive, domain.ParserStrict:
	default:
		errs = append(errs, fmt.Errorf("unsupported parser policy %q", cfg.Agent.Parser))
	}
	if cfg.Agent.MaxIterations <= 0 {
		errs = append(errs, errors.New("agent.max_iterations must be positive"))
	}
	if cfg.Search.Threshold < -1 || cfg.Search.Threshold > 1 {
		errs = append(errs, fmt.Errorf("search.threshold %v is outside [-1, 1]", cfg.Search.Threshold))
	}
	if err := domain.ValidateSchema(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrInvalidConfig, errors.Join(errs...))
}
