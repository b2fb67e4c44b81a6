package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/manthysbr/partgraph/internal/core/domain"
	"github.com/manthysbr/partgraph/internal/core/ports"
	"golang.org/x/sync/semaphore"
)

// LimiterConfig defines global concurrency limits for outbound calls
type LimiterConfig struct {
	MaxConcurrentLLM   int64
	MaxConcurrentGraph int64
}

// RequestLimiter bounds in-flight calls to the completion, embedding and
// graph endpoints. Turns block on Acquire rather than failing fast.
type RequestLimiter struct {
	logger *slog.Logger
	llm    *semaphore.Weighted
	graph  *semaphore.Weighted
}

func NewRequestLimiter(logger *slog.Logger, cfg LimiterConfig) *RequestLimiter {
	// Default to 8 concurrent calls per backend if not set
	llmLimit := cfg.MaxConcurrentLLM
	if llmLimit <= 0 {
		llmLimit = 8
	}
	graphLimit := cfg.MaxConcurrentGraph
	if graphLimit <= 0 {
		graphLimit = 8
	}
	return &RequestLimiter{
		logger: logger,
		llm:    semaphore.NewWeighted(llmLimit),
		graph:  semaphore.NewWeighted(graphLimit),
	}
}

// Completer wraps c so at most MaxConcurrentLLM completions run at once.
func (l *RequestLimiter) Completer(c ports.Completer) ports.Completer {
	return &limitedCompleter{sem: l.llm, next: c, logger: l.logger}
}

// Embedder wraps e; embeddings share the completion budget.
func (l *RequestLimiter) Embedder(e ports.Embedder) ports.Embedder {
	return &limitedEmbedder{sem: l.llm, next: e, logger: l.logger}
}

// GraphStore wraps g so at most MaxConcurrentGraph queries run at once.
func (l *RequestLimiter) GraphStore(g ports.GraphStore) ports.GraphStore {
	return &limitedGraphStore{sem: l.graph, next: g, logger: l.logger}
}

type limitedCompleter struct {
	sem    *semaphore.Weighted
	next   ports.Completer
	logger *slog.Logger
}

func (c *limitedCompleter) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		c.logger.Warn("failed to acquire completion slot", "error", err)
		return "", fmt.Errorf("acquire completion slot: %w", err)
	}
	defer c.sem.Release(1)
	return c.next.Complete(ctx, req)
}

type limitedEmbedder struct {
	sem    *semaphore.Weighted
	next   ports.Embedder
	logger *slog.Logger
}

func (e *limitedEmbedder) Embed(ctx context.Context, text string, model string) ([]float32, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		e.logger.Warn("failed to acquire embedding slot", "error", err)
		return nil, fmt.Errorf("acquire embedding slot: %w", err)
	}
	defer e.sem.Release(1)
	return e.next.Embed(ctx, text, model)
}

type limitedGraphStore struct {
	sem    *semaphore.Weighted
	next   ports.GraphStore
	logger *slog.Logger
}

func (g *limitedGraphStore) Query(ctx context.Context, query string, params map[string]any) ([]domain.GraphRecord, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		g.logger.Warn("failed to acquire graph slot", "error", err)
		return nil, fmt.Errorf("acquire graph slot: %w", err)
	}
	defer g.sem.Release(1)
	return g.next.Query(ctx, query, params)
}
