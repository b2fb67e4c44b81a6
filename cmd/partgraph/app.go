package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/manthysbr/partgraph/internal/adapters/duckdb"
	"github.com/manthysbr/partgraph/internal/adapters/graphdb"
	"github.com/manthysbr/partgraph/internal/adapters/providers"
	"github.com/manthysbr/partgraph/internal/core/domain"
	"github.com/manthysbr/partgraph/internal/core/ports"
	"github.com/manthysbr/partgraph/internal/core/services"
)

// app holds the wired agent and everything that must be closed with it.
type app struct {
	agent    *services.ReActAgent
	sessions *services.SessionStore
	tracer   *services.TraceCollector
	repo     *duckdb.Repository // nil when persistence is off
	graph    *graphdb.Store
	memory   bool // the selected prompt renders chat history
}

// buildApp wires providers, the graph store, both retrieval pipelines and the
// agent. persist opens the DuckDB repository for memory and traces.
func buildApp(ctx context.Context, logger *slog.Logger, cfg *domain.AppConfig, persist bool) (*app, error) {
	a := &app{}

	completer, embedder, err := providers.Build(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build providers from config: %w", err)
	}
	limiter := services.NewRequestLimiter(logger, services.LimiterConfig{
		MaxConcurrentLLM:   cfg.LLM.MaxConcurrent,
		MaxConcurrentGraph: cfg.Graph.MaxConcurrent,
	})
	completer = limiter.Completer(completer)
	embedder = limiter.Embedder(embedder)

	a.graph, err = graphdb.NewStore(ctx, logger, graphdb.Config{
		URI:            cfg.Graph.URI,
		Username:       cfg.Graph.Username,
		Password:       cfg.Graph.Password,
		Database:       cfg.Graph.Database,
		MaxConnections: int(cfg.Graph.MaxConcurrent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect graph store: %w", err)
	}
	graph := limiter.GraphStore(a.graph)

	var turns ports.TurnRepository
	var sink services.TraceSink
	if persist && cfg.Memory.DBPath != "" {
		a.repo, err = duckdb.NewRepository(cfg.Memory.DBPath)
		if err != nil {
			a.close(ctx, logger)
			return nil, fmt.Errorf("failed to init repository: %w", err)
		}
		turns, sink = a.repo, a.repo
	}
	a.tracer = services.NewTraceCollector(logger, sink)
	a.sessions = services.NewSessionStore(logger, turns, cfg.Memory.MaxSessions)

	synth := services.NewQuerySynthesizer(logger, completer, graph, a.tracer, services.QuerySynthesizerConfig{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Retry: services.RetryPolicy{
			MaxAttempts:      cfg.Query.MaxAttempts,
			MaxErrorAttempts: cfg.Query.MaxErrorAttempts,
			MaxEmptyAttempts: cfg.Query.MaxEmptyAttempts,
		},
		Threshold: cfg.Query.Threshold,
	})
	searcher, err := services.NewSemanticSearcher(logger, completer, embedder, graph, a.tracer, services.SemanticSearcherConfig{
		Model:           cfg.LLM.Model,
		EmbeddingModel:  cfg.LLM.EmbeddingModel,
		Temperature:     cfg.LLM.Temperature,
		AllLimit:        cfg.Search.AllLimit,
		SimilarityLimit: cfg.Search.SimilarityLimit,
		MaxAttempts:     cfg.Search.MaxAttempts,
	})
	if err != nil {
		a.close(ctx, logger)
		return nil, err
	}

	registry, err := services.BuildRegistry(logger, cfg.Agent.Mode,
		services.NewQueryTool(synth),
		services.NewSimilaritySearchTool(logger, searcher, cfg.Search.Threshold),
	)
	if err != nil {
		a.close(ctx, logger)
		return nil, err
	}

	tmpl, err := services.SelectTemplate(cfg.Agent.Mode, cfg.Agent.Memory)
	if err != nil {
		a.close(ctx, logger)
		return nil, err
	}
	a.memory = tmpl.UsesMemory()
	assembler, err := services.NewPromptAssembler(tmpl, registry)
	if err != nil {
		a.close(ctx, logger)
		return nil, err
	}
	parser, err := services.NewOutputParser(cfg.Agent.Parser, cfg.Agent.ConfidenceThreshold)
	if err != nil {
		a.close(ctx, logger)
		return nil, err
	}

	a.agent = services.NewReActAgent(logger, completer, assembler, parser, registry, a.tracer, services.ReActAgentConfig{
		Model:         cfg.LLM.Model,
		Temperature:   cfg.LLM.Temperature,
		MaxIterations: cfg.Agent.MaxIterations,
		TurnTimeout:   cfg.Agent.TurnTimeout,
	})

	logger.Info("agent ready",
		"mode", cfg.Agent.Mode,
		"memory", a.memory,
		"template", tmpl.Name(),
		"parser", parser.Name(),
		"tools", registry.Names(),
	)
	return a, nil
}

// traceRepository avoids handing out a typed nil.
func (a *app) traceRepository() ports.TraceRepository {
	if a.repo == nil {
		return nil
	}
	return a.repo
}

// close flushes pending traces before the repository goes away.
func (a *app) close(ctx context.Context, logger *slog.Logger) {
	a.tracer.Close()
	var errs []error
	if a.repo != nil {
		errs = append(errs, a.repo.Close())
	}
	if a.graph != nil {
		errs = append(errs, a.graph.Close(context.WithoutCancel(ctx)))
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn("shutdown cleanup failed", "error", err)
	}
}
