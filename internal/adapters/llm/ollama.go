package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/manthysbr/partgraph/internal/core/ports"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "qwen2.5:latest"
	defaultOllamaEmbed = "nomic-embed-text"
)

// OllamaProvider implements ports.Completer and ports.Embedder for a local
// Ollama instance.
type OllamaProvider struct {
	baseURL        string
	model          string
	embeddingModel string
	client         *http.Client
}

// NewOllamaProvider creates a provider. Empty models use local defaults.
func NewOllamaProvider(baseURL, model, embeddingModel string, timeout time.Duration) *OllamaProvider {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	if embeddingModel == "" {
		embeddingModel = defaultOllamaEmbed
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OllamaProvider{
		baseURL:        baseURL,
		model:          model,
		embeddingModel: embeddingModel,
		client:         &http.Client{Timeout: timeout},
	}
}

type generateOptions struct {
	Temperature float32  `json:"temperature"`
	Stop        []string `json:"stop,omitempty"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	System  string          `json:"system,omitempty"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Complete implements ports.Completer via /api/generate.
func (p *OllamaProvider) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	var genResp generateResponse
	err := p.post(ctx, "/api/generate", generateRequest{
		Model:  model,
		System: req.System,
		Prompt: req.User,
		Stream: false,
		Options: generateOptions{
			Temperature: req.Temperature,
			Stop:        req.Stop,
		},
	}, &genResp)
	if err != nil {
		return "", err
	}
	return genResp.Response, nil
}

// Embed implements ports.Embedder via /api/embeddings.
func (p *OllamaProvider) Embed(ctx context.Context, text string, model string) ([]float32, error) {
	if model == "" {
		model = p.embeddingModel
	}
	var embResp embeddingResponse
	if err := p.post(ctx, "/api/embeddings", embeddingRequest{Model: model, Prompt: text}, &embResp); err != nil {
		return nil, err
	}
	if len(embResp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding for model %s", model)
	}
	return embResp.Embedding, nil
}

func (p *OllamaProvider) post(ctx context.Context, path string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
