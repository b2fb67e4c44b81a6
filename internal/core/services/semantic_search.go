package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/manthysbr/partgraph/internal/core/domain"
	"github.com/manthysbr/partgraph/internal/core/ports"
)

// SemanticSearcherConfig configures the entity-driven similarity search.
type SemanticSearcherConfig struct {
	Model           string
	EmbeddingModel  string
	Temperature     float32
	AllLimit        int
	SimilarityLimit int
	// MaxAttempts caps graph query attempts per entity.
	MaxAttempts int
	// Backoff is the pause between failed graph attempts.
	Backoff time.Duration
}

// SemanticSearcher extracts an entity map from the user text and fetches
// matching nodes, either unconditionally or by embedding similarity.
type SemanticSearcher struct {
	logger   *slog.Logger
	llm      ports.Completer
	embedder ports.Embedder
	graph    ports.GraphStore
	tracer   *TraceCollector
	cfg      SemanticSearcherConfig
	prompt   string
}

// NewSemanticSearcher creates the pipeline. tracer may be nil.
func NewSemanticSearcher(logger *slog.Logger, llm ports.Completer, embedder ports.Embedder, graph ports.GraphStore, tracer *TraceCollector, cfg SemanticSearcherConfig) (*SemanticSearcher, error) {
	prompt, err := SemanticSearchPrompt()
	if err != nil {
		return nil, err
	}
	if cfg.AllLimit <= 0 {
		cfg.AllLimit = 5
	}
	if cfg.SimilarityLimit <= 0 {
		cfg.SimilarityLimit = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &SemanticSearcher{
		logger:   logger,
		llm:      llm,
		embedder: embedder,
		graph:    graph,
		tracer:   tracer,
		cfg:      cfg,
		prompt:   prompt,
	}, nil
}

// Search returns matches for every extracted entity. Entities whose lookup
// failed are skipped and their errors joined into the returned error; the
// matches found for the other entities are still returned.
func (s *SemanticSearcher) Search(ctx context.Context, input string, threshold float64) ([]domain.Match, error) {
	ctx, spanID := s.tracer.StartSpan(ctx, "search.similarity", domain.SpanKindPipeline, nil)
	s.tracer.SetSpanInput(spanID, input)

	entities := s.ExtractEntities(ctx, input)
	matches := []domain.Match{}
	var errs []error

	for _, eq := range entities {
		label := domain.LabelFor(eq.Type)
		var (
			records []domain.GraphRecord
			err     error
		)
		if eq.IsAll() {
			records, err = s.queryWithRetry(ctx, "search_all", allQuery(label), map[string]any{
				"limit": s.cfg.AllLimit,
			})
		} else {
			var embedding []float32
			embedding, err = s.embedder.Embed(ctx, eq.Value, s.cfg.EmbeddingModel)
			if err != nil {
				err = fmt.Errorf("embed %q: %w", eq.Value, err)
			} else {
				records, err = s.queryWithRetry(ctx, "search_similarity", similarityQuery(label), map[string]any{
					"embedding": toFloat64s(embedding),
					"threshold": threshold,
					"limit":     s.cfg.SimilarityLimit,
				})
			}
		}
		if err != nil {
			s.logger.Warn("entity lookup failed", "entity_type", eq.Type, "label", label, "error", err)
			errs = append(errs, fmt.Errorf("%s %q: %w", eq.Type, eq.Value, err))
			continue
		}
		matches = append(matches, NewProjector(domain.SearchAttributes).WithType(label).Project(records)...)
	}

	joined := errors.Join(errs...)
	if joined != nil {
		s.tracer.EndSpan(spanID, domain.SpanStatusError, fmt.Sprintf("%d matches", len(matches)), joined.Error())
	} else {
		s.tracer.EndSpan(spanID, domain.SpanStatusOK, fmt.Sprintf("%d matches", len(matches)), "")
	}
	return matches, joined
}

// ExtractEntities asks the model for the entity map. Unavailable models and
// unparseable output both yield an empty map.
func (s *SemanticSearcher) ExtractEntities(ctx context.Context, input string) domain.EntityMap {
	start := time.Now()
	out, err := s.llm.Complete(ctx, ports.CompletionRequest{
		System:      s.prompt,
		User:        input,
		Model:       s.cfg.Model,
		Temperature: s.cfg.Temperature,
	})
	recordCompletion("entity_extract", start, err)
	if err != nil {
		s.logger.Warn("entity extraction failed", "error", err)
		return nil
	}
	entities, err := ParseEntityMap(out)
	if err != nil {
		s.logger.Warn("entity map is not valid JSON", "error", err, "output", truncate(out, 200))
		return nil
	}
	if len(entities) == 0 {
		s.logger.Info("no relevant entities found")
	}
	return entities
}

// ParseEntityMap decodes a JSON object into entity queries, keeping the key
// order of the source text. Non-string values are skipped. A repeated key
// keeps its first position and takes its last value. Anything after the
// object is an error.
func ParseEntityMap(text string) (domain.EntityMap, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(stripCodeFences(text))))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read object start: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}

	var keys []string
	values := make(map[string]*string)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read key: %w", err)
		}
		key, _ := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("read value for %q: %w", key, err)
		}
		if _, seen := values[key]; !seen {
			keys = append(keys, key)
		}
		var value *string
		if err := json.Unmarshal(raw, &value); err != nil {
			value = nil
		}
		values[key] = value
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read object end: %w", err)
	}
	if tok, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err != nil {
			return nil, fmt.Errorf("read past object: %w", err)
		}
		return nil, fmt.Errorf("unexpected %v after JSON object", tok)
	}

	var out domain.EntityMap
	for _, key := range keys {
		if v := values[key]; v != nil {
			out = append(out, domain.EntityQuery{Type: key, Value: *v})
		}
	}
	return out, nil
}

// queryWithRetry retries a failing graph query up to MaxAttempts, stopping
// early when ctx ends.
func (s *SemanticSearcher) queryWithRetry(ctx context.Context, pipeline, query string, params map[string]any) ([]domain.GraphRecord, error) {
	var last error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		records, err := s.graph.Query(ctx, query, params)
		recordGraphQuery(pipeline, len(records), err)
		if err == nil {
			return records, nil
		}
		last = err
		s.logger.Warn("graph query failed", "pipeline", pipeline, "attempt", attempt, "error", err)
		if attempt == s.cfg.MaxAttempts {
			break
		}
		if err := sleepCtx(ctx, s.cfg.Backoff); err != nil {
			return nil, fmt.Errorf("%w: %v", err, last)
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", domain.ErrRetriesExhausted, s.cfg.MaxAttempts, last)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func allQuery(label string) string {
	return fmt.Sprintf(`MATCH (e:%s)
RETURN e
LIMIT $limit`, label)
}

func similarityQuery(label string) string {
	return fmt.Sprintf(`WITH $embedding AS inputEmbedding
MATCH (e:%s)
WHERE size(inputEmbedding) = size(e.embedding)
WITH e,
     reduce(s = 0.0, i IN range(0, size(e.embedding)-1) | s + inputEmbedding[i] * e.embedding[i]) AS dot_product,
     reduce(s = 0.0, i IN range(0, size(e.embedding)-1) | s + inputEmbedding[i] * inputEmbedding[i]) AS input_norm,
     reduce(s = 0.0, i IN range(0, size(e.embedding)-1) | s + e.embedding[i] * e.embedding[i]) AS embedding_norm
WITH e, dot_product / (sqrt(input_norm) * sqrt(embedding_norm)) AS cosine_similarity
WHERE cosine_similarity > $threshold
RETURN e
LIMIT $limit`, label)
}

func toFloat64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
