package ports

import (
	"context"

	"github.com/manthysbr/partgraph/internal/core/domain"
)

// CompletionRequest is one chat completion call: a system instruction and
// one user message.
type CompletionRequest struct {
	System      string
	User        string
	Model       string // empty uses the provider default
	Temperature float32
	Stop        []string
}

// Completer abstracts the completion endpoint (OpenAI, Ollama).
type Completer interface {
	// Complete returns the model text. Provider failures are returned as
	// errors; callers convert them into local fallbacks.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Embedder abstracts the embedding endpoint.
type Embedder interface {
	Embed(ctx context.Context, text string, model string) ([]float32, error)
}

// GraphStore abstracts the Cypher-speaking graph database.
type GraphStore interface {
	// Query runs a read query. It may fail on malformed query text.
	Query(ctx context.Context, query string, params map[string]any) ([]domain.GraphRecord, error)
}

// MemoryStore is the per-session conversation memory.
type MemoryStore interface {
	Append(ctx context.Context, turn domain.Turn) error
	ReadAll(ctx context.Context) ([]domain.Turn, error)
}

// TurnRepository persists session memory records durably (DuckDB).
type TurnRepository interface {
	AppendTurn(ctx context.Context, session domain.SessionID, turn domain.Turn) error
	ListTurns(ctx context.Context, session domain.SessionID) ([]domain.Turn, error)
	ListSessions(ctx context.Context) ([]domain.SessionID, error)
	DeleteSession(ctx context.Context, session domain.SessionID) error
}

// TraceRepository persists completed turn traces.
type TraceRepository interface {
	SaveTrace(ctx context.Context, trace *domain.Trace) error
	ListTraces(ctx context.Context, limit int) ([]domain.TraceSummary, error)
	GetTrace(ctx context.Context, id domain.TraceID) (*domain.Trace, error)
}
