package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/manthysbr/partgraph/internal/core/domain"
	"github.com/manthysbr/partgraph/internal/core/ports"
)

var codeFenceRe = regexp.MustCompile("```[A-Za-z]*")

// stripCodeFences removes markdown code fence markers from model output.
func stripCodeFences(s string) string {
	return strings.TrimSpace(codeFenceRe.ReplaceAllString(strings.TrimSpace(s), ""))
}

// RetryPolicy bounds query execution attempts. Execution errors and empty
// results have separate ceilings, both capped by MaxAttempts.
type RetryPolicy struct {
	MaxAttempts      int
	MaxErrorAttempts int
	MaxEmptyAttempts int
}

// DefaultRetryPolicy retries up to 3 times in total for either cause.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, MaxErrorAttempts: 3, MaxEmptyAttempts: 3}
}

func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.MaxErrorAttempts <= 0 || p.MaxErrorAttempts > p.MaxAttempts {
		p.MaxErrorAttempts = p.MaxAttempts
	}
	if p.MaxEmptyAttempts <= 0 || p.MaxEmptyAttempts > p.MaxAttempts {
		p.MaxEmptyAttempts = p.MaxAttempts
	}
	return p
}

// QuerySynthesizerConfig configures the NL to Cypher pipeline.
type QuerySynthesizerConfig struct {
	Model       string
	Temperature float32
	Retry       RetryPolicy
	// Threshold is passed to every query as $threshold.
	Threshold float64
}

// QuerySynthesizer translates natural language into Cypher in two model
// passes, then executes the result with bounded retry.
type QuerySynthesizer struct {
	logger    *slog.Logger
	llm       ports.Completer
	graph     ports.GraphStore
	tracer    *TraceCollector
	cfg       QuerySynthesizerConfig
	projector Projector
}

// NewQuerySynthesizer creates the pipeline. tracer may be nil.
func NewQuerySynthesizer(logger *slog.Logger, llm ports.Completer, graph ports.GraphStore, tracer *TraceCollector, cfg QuerySynthesizerConfig) *QuerySynthesizer {
	cfg.Retry = cfg.Retry.normalized()
	return &QuerySynthesizer{
		logger:    logger,
		llm:       llm,
		graph:     graph,
		tracer:    tracer,
		cfg:       cfg,
		projector: NewProjector(domain.QueryAttributes),
	}
}

// Query runs the full pipeline and projects the result. When retries are
// exhausted it returns the single sentinel error record.
func (s *QuerySynthesizer) Query(ctx context.Context, input string) []domain.Match {
	art := s.Synthesize(ctx, input)
	if art.Exhausted() {
		return []domain.Match{domain.NoResultsMatch()}
	}
	matches := s.projector.Project(art.Result)
	if matches == nil {
		matches = []domain.Match{}
	}
	return matches
}

// Synthesize runs generate, correct and execute, recording every stage in
// the returned artifact. It never fails; failures are recorded in Err.
func (s *QuerySynthesizer) Synthesize(ctx context.Context, input string) domain.QueryArtifact {
	ctx, spanID := s.tracer.StartSpan(ctx, "query.synthesize", domain.SpanKindPipeline, nil)
	s.tracer.SetSpanInput(spanID, input)

	art := domain.QueryArtifact{NaturalLanguageInput: input}
	art.CandidateQuery = s.generate(ctx, input)
	art.CorrectedQuery = s.correct(ctx, art.CandidateQuery)
	s.execute(ctx, &art)

	if art.Exhausted() {
		s.tracer.EndSpan(spanID, domain.SpanStatusError, art.CorrectedQuery, art.Err)
	} else {
		s.tracer.EndSpan(spanID, domain.SpanStatusOK, fmt.Sprintf("%d records", len(art.Result)), "")
	}
	return art
}

// generate falls back to the raw input when the model is unavailable.
func (s *QuerySynthesizer) generate(ctx context.Context, input string) string {
	start := time.Now()
	out, err := s.llm.Complete(ctx, ports.CompletionRequest{
		System:      CypherGenerationPrompt,
		User:        input,
		Model:       s.cfg.Model,
		Temperature: s.cfg.Temperature,
	})
	recordCompletion("cypher_generate", start, err)
	if err != nil {
		s.logger.Warn("cypher generation failed, using raw input", "error", err)
		return input
	}
	query := stripCodeFences(out)
	if query == "" {
		s.logger.Warn("cypher generation returned nothing, using raw input")
		return input
	}
	s.logger.Info("cypher generated", "query", truncate(query, 200))
	return query
}

// correct falls back to the uncorrected candidate when the model is
// unavailable.
func (s *QuerySynthesizer) correct(ctx context.Context, candidate string) string {
	start := time.Now()
	out, err := s.llm.Complete(ctx, ports.CompletionRequest{
		System:      CypherCorrectionPrompt,
		User:        candidate,
		Model:       s.cfg.Model,
		Temperature: s.cfg.Temperature,
	})
	recordCompletion("cypher_correct", start, err)
	if err != nil {
		s.logger.Warn("cypher correction failed, using candidate", "error", err)
		return candidate
	}
	query := stripCodeFences(out)
	if query == "" {
		return candidate
	}
	s.logger.Info("cypher corrected", "query", truncate(query, 200))
	return query
}

var errEmptyResult = errors.New("query returned no records")

// execute retries the corrected query unmodified. Empty results are retried
// as well as errors since the backend may be flaky.
func (s *QuerySynthesizer) execute(ctx context.Context, art *domain.QueryArtifact) {
	policy := s.cfg.Retry
	params := map[string]any{"threshold": s.cfg.Threshold}

	var errCount, emptyCount int
	var last error
	for art.Attempt < policy.MaxAttempts {
		if err := ctx.Err(); err != nil {
			last = err
			break
		}
		art.Attempt++

		records, err := s.graph.Query(ctx, art.CorrectedQuery, params)
		recordGraphQuery("query", len(records), err)
		switch {
		case err != nil:
			errCount++
			last = err
			s.logger.Warn("graph query failed", "attempt", art.Attempt, "error", err)
		case len(records) == 0:
			emptyCount++
			last = errEmptyResult
			s.logger.Info("graph query empty, retrying", "attempt", art.Attempt)
		default:
			art.Result = records
			art.Err = ""
			return
		}
		if errCount >= policy.MaxErrorAttempts || emptyCount >= policy.MaxEmptyAttempts {
			break
		}
	}

	art.Err = fmt.Errorf("%w after %d attempts: %v", domain.ErrRetriesExhausted, art.Attempt, last).Error()
	s.logger.Warn("graph query gave up", "attempts", art.Attempt, "errors", errCount, "empty", emptyCount)
}
