package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/manthysbr/partgraph/internal/core/domain"
)

// Tool names the agent prompt refers to.
const (
	QueryToolName            = "Query"
	SimilaritySearchToolName = "Similarity Search"
)

// NewQueryTool exposes the query synthesis pipeline. It never fails; an
// exhausted pipeline returns the no-results sentinel.
func NewQueryTool(qs *QuerySynthesizer) *domain.Tool {
	return &domain.Tool{
		Name:        QueryToolName,
		Description: "Use this tool to find entities in the user prompt that can be used to generate queries",
		Invoke: func(ctx context.Context, input string) ([]domain.Match, error) {
			return qs.Query(ctx, input), nil
		},
	}
}

// NewSimilaritySearchTool exposes the semantic search pipeline at a fixed
// threshold. Per-entity failures are logged and the remaining matches kept.
func NewSimilaritySearchTool(logger *slog.Logger, ss *SemanticSearcher, threshold float64) *domain.Tool {
	return &domain.Tool{
		Name:        SimilaritySearchToolName,
		Description: "Use this tool to perform a similarity search in the database",
		Invoke: func(ctx context.Context, input string) ([]domain.Match, error) {
			matches, err := ss.Search(ctx, input, threshold)
			if err != nil {
				logger.Warn("similarity search incomplete", "matches", len(matches), "error", err)
			}
			return matches, nil
		},
	}
}

// BuildRegistry assembles the tool set for a mode. Sequential mode exposes
// both tools; parallel mode exposes the single combined tool.
func BuildRegistry(logger *slog.Logger, mode string, query, search *domain.Tool) (*domain.ToolRegistry, error) {
	switch mode {
	case "", domain.ModeSequential:
		return domain.NewToolRegistry(query, search)
	case domain.ModeParallel:
		return domain.NewToolRegistry(NewCombinedQueryTool(logger, query, search))
	default:
		return nil, fmt.Errorf("%w: unknown agent mode %q", domain.ErrInvalidConfig, mode)
	}
}
