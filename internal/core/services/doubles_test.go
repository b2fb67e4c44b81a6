package services

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/manthysbr/partgraph/internal/core/domain"
	"github.com/manthysbr/partgraph/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

// MockCompleter is a testify mock of ports.Completer.
type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// MockEmbedder is a testify mock of ports.Embedder.
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, text string, model string) ([]float32, error) {
	args := m.Called(ctx, text, model)
	v, _ := args.Get(0).([]float32)
	return v, args.Error(1)
}

// MockGraph is a testify mock of ports.GraphStore.
type MockGraph struct {
	mock.Mock
}

func (m *MockGraph) Query(ctx context.Context, query string, params map[string]any) ([]domain.GraphRecord, error) {
	args := m.Called(ctx, query, params)
	v, _ := args.Get(0).([]domain.GraphRecord)
	return v, args.Error(1)
}

// scriptedCompleter replays canned outputs in order and records requests.
// The last output repeats once the script runs out.
type scriptedCompleter struct {
	mu      sync.Mutex
	outputs []string
	err     error
	calls   []ports.CompletionRequest
}

func (s *scriptedCompleter) Complete(_ context.Context, req ports.CompletionRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if s.err != nil {
		return "", s.err
	}
	i := len(s.calls) - 1
	if i >= len(s.outputs) {
		i = len(s.outputs) - 1
	}
	return s.outputs[i], nil
}

func (s *scriptedCompleter) requests() []ports.CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.CompletionRequest(nil), s.calls...)
}

// recordingMemory logs every append for exact assertions.
type recordingMemory struct {
	mu     sync.Mutex
	writes []domain.Turn
}

func (r *recordingMemory) Append(_ context.Context, turn domain.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, turn)
	return nil
}

func (r *recordingMemory) ReadAll(_ context.Context) ([]domain.Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Turn(nil), r.writes...), nil
}

// memTurnRepo is an in-memory ports.TurnRepository.
type memTurnRepo struct {
	mu    sync.Mutex
	turns map[domain.SessionID][]domain.Turn
	loads int
}

func newMemTurnRepo() *memTurnRepo {
	return &memTurnRepo{turns: make(map[domain.SessionID][]domain.Turn)}
}

func (r *memTurnRepo) AppendTurn(_ context.Context, session domain.SessionID, turn domain.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns[session] = append(r.turns[session], turn)
	return nil
}

func (r *memTurnRepo) ListTurns(_ context.Context, session domain.SessionID) ([]domain.Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads++
	return append([]domain.Turn(nil), r.turns[session]...), nil
}

func (r *memTurnRepo) ListSessions(_ context.Context) ([]domain.SessionID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.SessionID, 0, len(r.turns))
	for id := range r.turns {
		out = append(out, id)
	}
	return out, nil
}

func (r *memTurnRepo) DeleteSession(_ context.Context, session domain.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.turns, session)
	return nil
}

func staticTool(name string, matches []domain.Match, err error) *domain.Tool {
	return &domain.Tool{
		Name:        name,
		Description: name + " tool",
		Invoke: func(context.Context, string) ([]domain.Match, error) {
			return matches, err
		},
	}
}

func intPtr(v int) *int { return &v }
