package domain

import "time"

type (
	// TraceID identifies the trace of one agent turn.
	TraceID string
	// SpanID identifies one step inside a turn trace.
	SpanID string
)

// SpanKind says which part of the turn a span covers.
type SpanKind string

const (
	SpanKindTurn     SpanKind = "turn"     // root span, one per RunTurn
	SpanKindLLM      SpanKind = "llm"      // one Thinking completion
	SpanKindTool     SpanKind = "tool"     // one tool dispatch
	SpanKindPipeline SpanKind = "pipeline" // query synthesis or semantic search inside a tool
)

// SpanStatus is running until the span ends, then ok or error.
type SpanStatus string

const (
	SpanStatusRunning SpanStatus = "running"
	SpanStatusOK      SpanStatus = "ok"
	SpanStatusError   SpanStatus = "error"
)

// TurnOutcome is how the agent loop ended.
type TurnOutcome string

const (
	OutcomeAnswer         TurnOutcome = "answer"
	OutcomeIterationLimit TurnOutcome = "iteration_limit"
	OutcomeProviderError  TurnOutcome = "provider_error"
)

// Status maps an outcome onto the root span status. Only an answer is ok.
func (o TurnOutcome) Status() SpanStatus {
	if o == OutcomeAnswer {
		return SpanStatusOK
	}
	return SpanStatusError
}

// TurnResult closes a turn trace.
type TurnResult struct {
	Outcome    TurnOutcome
	Iterations int    // Thinking steps taken
	TurnSeq    int    // 1-based position of the turn in its session, 0 without memory
	Output     string // final answer or fallback text
}

// Span is one step of a turn. LLM and tool spans hang off the turn span;
// pipeline spans hang off the tool span that ran them.
type Span struct {
	ID         SpanID            `json:"id"`
	TraceID    TraceID           `json:"trace_id"`
	ParentID   SpanID            `json:"parent_id,omitempty"`
	Kind       SpanKind          `json:"kind"`
	Name       string            `json:"name"`
	Status     SpanStatus        `json:"status"`
	Model      string            `json:"model,omitempty"`
	Input      string            `json:"input,omitempty"`
	Output     string            `json:"output,omitempty"`
	Error      string            `json:"error,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	StartTime  time.Time         `json:"start_time"`
	EndTime    *time.Time        `json:"end_time,omitempty"`
	DurationMs int64             `json:"duration_ms,omitempty"`
}

// SpanCounts tallies the non-root spans of a turn by kind.
type SpanCounts struct {
	LLM      int `json:"llm"`
	Tool     int `json:"tool"`
	Pipeline int `json:"pipeline"`
}

// Add counts one span of kind k. Turn spans are not counted.
func (c *SpanCounts) Add(k SpanKind) {
	switch k {
	case SpanKindLLM:
		c.LLM++
	case SpanKindTool:
		c.Tool++
	case SpanKindPipeline:
		c.Pipeline++
	}
}

// Trace records one agent turn: the question, how the loop ended and every
// step it took to get there.
type Trace struct {
	ID         TraceID     `json:"id"`
	SessionID  SessionID   `json:"session_id,omitempty"`
	TurnSeq    int         `json:"turn_seq,omitempty"`
	Input      string      `json:"input"`
	Outcome    TurnOutcome `json:"outcome,omitempty"` // empty while running
	Iterations int         `json:"iterations"`
	Status     SpanStatus  `json:"status"`
	RootSpanID SpanID      `json:"root_span_id"`
	StartTime  time.Time   `json:"start_time"`
	EndTime    *time.Time  `json:"end_time,omitempty"`
	DurationMs int64       `json:"duration_ms,omitempty"`
	Counts     SpanCounts  `json:"counts"`
	Spans      []Span      `json:"spans,omitempty"` // detail view only
}

// Summary drops the spans.
func (t *Trace) Summary() TraceSummary {
	return TraceSummary{
		ID:         t.ID,
		SessionID:  t.SessionID,
		TurnSeq:    t.TurnSeq,
		Input:      t.Input,
		Outcome:    t.Outcome,
		Iterations: t.Iterations,
		Status:     t.Status,
		StartTime:  t.StartTime,
		DurationMs: t.DurationMs,
		Counts:     t.Counts,
	}
}

// TraceSummary is the list view of a turn trace.
type TraceSummary struct {
	ID         TraceID     `json:"id"`
	SessionID  SessionID   `json:"session_id,omitempty"`
	TurnSeq    int         `json:"turn_seq,omitempty"`
	Input      string      `json:"input"`
	Outcome    TurnOutcome `json:"outcome,omitempty"`
	Iterations int         `json:"iterations"`
	Status     SpanStatus  `json:"status"`
	StartTime  time.Time   `json:"start_time"`
	DurationMs int64       `json:"duration_ms"`
	Counts     SpanCounts  `json:"counts"`
}
