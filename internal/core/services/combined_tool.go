package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/manthysbr/partgraph/internal/core/domain"
	"golang.org/x/sync/errgroup"
)

// CombinedToolName is the single tool exposed in parallel mode.
const CombinedToolName = "Combined Query Tool"

// NewCombinedQueryTool runs first and second concurrently with the same input
// and concatenates their results, first's before second's. A side that fails
// or panics contributes nothing; the combined call itself never fails.
func NewCombinedQueryTool(logger *slog.Logger, first, second *domain.Tool) *domain.Tool {
	return &domain.Tool{
		Name:        CombinedToolName,
		Description: fmt.Sprintf("Runs %s and %s at the same time and returns both results", first.Name, second.Name),
		Invoke: func(ctx context.Context, input string) ([]domain.Match, error) {
			var a, b []domain.Match
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a = invokeSide(gctx, logger, first, input)
				return nil
			})
			g.Go(func() error {
				b = invokeSide(gctx, logger, second, input)
				return nil
			})
			_ = g.Wait() // sides never return errors

			out := make([]domain.Match, 0, len(a)+len(b))
			out = append(out, a...)
			out = append(out, b...)
			return out, nil
		},
	}
}

// invokeSide calls one tool, turning errors and panics into an empty result.
func invokeSide(ctx context.Context, logger *slog.Logger, tool *domain.Tool, input string) (out []domain.Match) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("combined tool side panicked", "tool", tool.Name, "panic", r)
			toolCallsTotal.WithLabelValues(tool.Name, "panic").Inc()
			out = nil
		}
	}()
	matches, err := tool.Invoke(ctx, input)
	if err != nil {
		logger.Warn("combined tool side failed", "tool", tool.Name, "error", err)
		toolCallsTotal.WithLabelValues(tool.Name, "error").Inc()
		return nil
	}
	toolCallsTotal.WithLabelValues(tool.Name, "success").Inc()
	return matches
}
