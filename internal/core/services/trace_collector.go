package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/manthysbr/partgraph/internal/core/domain"
)

const (
	maxTraces      = 500  // ring buffer size
	maxInputOutput = 2000 // truncate input/output at 2KB
)

// TraceSink is the minimal persistence interface needed by TraceCollector.
type TraceSink interface {
	SaveTrace(ctx context.Context, trace *domain.Trace) error
}

// TraceCollector gathers, stores and exposes per-turn traces.
// Thread-safe. Operates as a ring buffer of recent traces. A nil
// *TraceCollector is a valid no-op collector.
type TraceCollector struct {
	mu     sync.RWMutex
	logger *slog.Logger
	sink   TraceSink // optional; if non-nil, completed traces are persisted
	wg     sync.WaitGroup

	traces     map[domain.TraceID]*domain.Trace
	spans      map[domain.SpanID]*domain.Span
	traceOrder []domain.TraceID // for eviction
}

// NewTraceCollector creates a new collector. sink may be nil; when provided,
// traces are persisted on completion.
func NewTraceCollector(logger *slog.Logger, sink TraceSink) *TraceCollector {
	return &TraceCollector{
		logger: logger,
		sink:   sink,
		traces: make(map[domain.TraceID]*domain.Trace, maxTraces),
		spans:  make(map[domain.SpanID]*domain.Span, maxTraces*10),
	}
}

// --- Context propagation ---

type traceCtxKey struct{}
type spanCtxKey struct{}

// ContextWithTrace stores trace and span IDs in context for propagation.
func ContextWithTrace(ctx context.Context, traceID domain.TraceID, spanID domain.SpanID) context.Context {
	ctx = context.WithValue(ctx, traceCtxKey{}, traceID)
	ctx = context.WithValue(ctx, spanCtxKey{}, spanID)
	return ctx
}

// TraceFromContext extracts trace and current span ID from context.
func TraceFromContext(ctx context.Context) (domain.TraceID, domain.SpanID, bool) {
	traceID, ok1 := ctx.Value(traceCtxKey{}).(domain.TraceID)
	spanID, ok2 := ctx.Value(spanCtxKey{}).(domain.SpanID)
	return traceID, spanID, ok1 && ok2
}

// --- Trace lifecycle ---

// StartTrace opens the trace of a turn answering input. Returns the context
// carrying the turn span.
func (tc *TraceCollector) StartTrace(ctx context.Context, input string, session domain.SessionID) (context.Context, domain.TraceID) {
	if tc == nil {
		return ctx, ""
	}
	now := time.Now()
	trace := &domain.Trace{
		ID:         domain.TraceID(uuid.New().String()),
		SessionID:  session,
		Input:      truncate(input, maxInputOutput),
		Status:     domain.SpanStatusRunning,
		RootSpanID: domain.SpanID(uuid.New().String()),
		StartTime:  now,
	}
	root := &domain.Span{
		ID:        trace.RootSpanID,
		TraceID:   trace.ID,
		Kind:      domain.SpanKindTurn,
		Name:      "turn",
		Status:    domain.SpanStatusRunning,
		Input:     trace.Input,
		StartTime: now,
	}

	tc.mu.Lock()
	tc.evictIfNeeded()
	tc.traces[trace.ID] = trace
	tc.spans[root.ID] = root
	tc.traceOrder = append(tc.traceOrder, trace.ID)
	tc.mu.Unlock()

	tc.logger.Debug("trace started", "trace_id", string(trace.ID), "session_id", string(session))
	return ContextWithTrace(ctx, trace.ID, root.ID), trace.ID
}

// EndTrace records how the turn ended and hands a copy to the sink.
func (tc *TraceCollector) EndTrace(traceID domain.TraceID, res domain.TurnResult) {
	if tc == nil || traceID == "" {
		return
	}
	tc.mu.Lock()
	trace, ok := tc.traces[traceID]
	if !ok {
		tc.mu.Unlock()
		return
	}

	now := time.Now()
	trace.Outcome = res.Outcome
	trace.Iterations = res.Iterations
	trace.TurnSeq = res.TurnSeq
	trace.Status = res.Outcome.Status()
	trace.EndTime = &now
	trace.DurationMs = now.Sub(trace.StartTime).Milliseconds()

	if root, ok := tc.spans[trace.RootSpanID]; ok {
		root.Status = trace.Status
		root.Output = truncate(res.Output, maxInputOutput)
		root.EndTime = &now
		root.DurationMs = trace.DurationMs
		if trace.Status == domain.SpanStatusError {
			root.Error = string(res.Outcome)
		}
	}

	var saved *domain.Trace
	if tc.sink != nil {
		cp := tc.snapshotLocked(trace)
		saved = &cp
	}
	tc.mu.Unlock()

	if saved == nil {
		return
	}
	// Close waits for outstanding writes
	tc.wg.Add(1)
	go func() {
		defer tc.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tc.sink.SaveTrace(ctx, saved); err != nil {
			tc.logger.Warn("failed to persist trace", "trace_id", string(traceID), "error", err)
		}
	}()
}

// Close blocks until pending trace writes finish.
func (tc *TraceCollector) Close() {
	if tc == nil {
		return
	}
	tc.wg.Wait()
}

// --- Span lifecycle ---

// StartSpan creates a child span under the current context's span.
func (tc *TraceCollector) StartSpan(ctx context.Context, name string, kind domain.SpanKind, attrs map[string]string) (context.Context, domain.SpanID) {
	if tc == nil {
		return ctx, ""
	}
	traceID, parentSpanID, ok := TraceFromContext(ctx)
	if !ok {
		// No trace in context, return a no-op span
		return ctx, ""
	}

	spanID := domain.SpanID(uuid.New().String())
	span := &domain.Span{
		ID:         spanID,
		ParentID:   parentSpanID,
		TraceID:    traceID,
		Name:       name,
		Kind:       kind,
		Status:     domain.SpanStatusRunning,
		Attributes: attrs,
		StartTime:  time.Now(),
	}

	tc.mu.Lock()
	tc.spans[spanID] = span
	if trace, ok := tc.traces[traceID]; ok {
		trace.Counts.Add(kind)
	}
	tc.mu.Unlock()

	return ContextWithTrace(ctx, traceID, spanID), spanID
}

// EndSpan finalizes a span with output and status.
func (tc *TraceCollector) EndSpan(spanID domain.SpanID, status domain.SpanStatus, output string, errMsg string) {
	if tc == nil || spanID == "" {
		return
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	span, ok := tc.spans[spanID]
	if !ok {
		return
	}

	now := time.Now()
	span.Status = status
	span.Output = truncate(output, maxInputOutput)
	span.EndTime = &now
	span.DurationMs = now.Sub(span.StartTime).Milliseconds()
	if errMsg != "" {
		span.Error = errMsg
	}
}

// SetSpanInput sets the input for a span.
func (tc *TraceCollector) SetSpanInput(spanID domain.SpanID, input string) {
	if tc == nil || spanID == "" {
		return
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if span, ok := tc.spans[spanID]; ok {
		span.Input = truncate(input, maxInputOutput)
	}
}

// SetSpanModel sets the model ID for an LLM span.
func (tc *TraceCollector) SetSpanModel(spanID domain.SpanID, model string) {
	if tc == nil || spanID == "" {
		return
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if span, ok := tc.spans[spanID]; ok {
		span.Model = model
	}
}

// --- Query ---

// ListTraces returns summaries of recent traces (newest first).
func (tc *TraceCollector) ListTraces(limit int) []domain.TraceSummary {
	if tc == nil {
		return nil
	}
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	if limit <= 0 || limit > len(tc.traceOrder) {
		limit = len(tc.traceOrder)
	}

	result := make([]domain.TraceSummary, 0, limit)
	for i := len(tc.traceOrder) - 1; i >= 0 && len(result) < limit; i-- {
		if trace, ok := tc.traces[tc.traceOrder[i]]; ok {
			result = append(result, trace.Summary())
		}
	}
	return result
}

// GetTrace returns a full trace with all spans.
func (tc *TraceCollector) GetTrace(traceID domain.TraceID) (*domain.Trace, error) {
	if tc == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrTraceNotFound, traceID)
	}
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	trace, ok := tc.traces[traceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTraceNotFound, traceID)
	}
	result := tc.snapshotLocked(trace)
	return &result, nil
}

// --- Internal helpers ---

// snapshotLocked copies trace with its spans in start order.
func (tc *TraceCollector) snapshotLocked(trace *domain.Trace) domain.Trace {
	cp := *trace
	cp.Spans = nil
	for _, span := range tc.spans {
		if span.TraceID == trace.ID {
			cp.Spans = append(cp.Spans, *span)
		}
	}
	sort.Slice(cp.Spans, func(i, j int) bool {
		a, b := cp.Spans[i], cp.Spans[j]
		if a.StartTime.Equal(b.StartTime) {
			return a.Kind == domain.SpanKindTurn && b.Kind != domain.SpanKindTurn
		}
		return a.StartTime.Before(b.StartTime)
	})
	return cp
}

func (tc *TraceCollector) evictIfNeeded() {
	for len(tc.traceOrder) >= maxTraces {
		oldID := tc.traceOrder[0]
		tc.traceOrder = tc.traceOrder[1:]

		if oldTrace, ok := tc.traces[oldID]; ok {
			for sid, span := range tc.spans {
				if span.TraceID == oldTrace.ID {
					delete(tc.spans, sid)
				}
			}
			delete(tc.traces, oldID)
		}
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "...[truncated]"
}
