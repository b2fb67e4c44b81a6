package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/manthysbr/partgraph/internal/core/domain"
	"github.com/manthysbr/partgraph/internal/core/ports"
)

// BufferMemory is an append-only turn buffer. When a repository is set every
// append is written through before it becomes visible.
type BufferMemory struct {
	mu      sync.RWMutex
	turns   []domain.Turn
	session domain.SessionID
	repo    ports.TurnRepository
}

// NewBufferMemory creates an in-process memory seeded with turns.
func NewBufferMemory(turns ...domain.Turn) *BufferMemory {
	return &BufferMemory{turns: append([]domain.Turn(nil), turns...)}
}

// NewPersistentMemory creates a memory that writes through to repo.
func NewPersistentMemory(session domain.SessionID, repo ports.TurnRepository, turns []domain.Turn) *BufferMemory {
	m := NewBufferMemory(turns...)
	m.session = session
	m.repo = repo
	return m
}

// Append implements ports.MemoryStore.
func (m *BufferMemory) Append(ctx context.Context, turn domain.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.repo != nil {
		if err := m.repo.AppendTurn(ctx, m.session, turn); err != nil {
			return fmt.Errorf("persist turn: %w", err)
		}
	}
	m.turns = append(m.turns, turn)
	return nil
}

// ReadAll implements ports.MemoryStore.
func (m *BufferMemory) ReadAll(ctx context.Context) ([]domain.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Turn, len(m.turns))
	copy(out, m.turns)
	return out, nil
}

// Len returns the number of stored turns.
func (m *BufferMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns)
}

// Session is one conversation: its memory plus the lock that keeps turns of
// the same session from interleaving.
type Session struct {
	ID     domain.SessionID
	Memory ports.MemoryStore

	turnMu sync.Mutex
	pins   int // handed-out store handles, guarded by SessionStore.mu
}

// NewSession wraps a memory store as a session.
func NewSession(id domain.SessionID, memory ports.MemoryStore) *Session {
	return &Session{ID: id, Memory: memory}
}

// BeginTurn blocks until no other turn of this session runs and returns the
// release func.
func (s *Session) BeginTurn() func() {
	s.turnMu.Lock()
	return s.turnMu.Unlock
}

// busy reports whether a turn currently holds the session.
func (s *Session) busy() bool {
	if s.turnMu.TryLock() {
		s.turnMu.Unlock()
		return false
	}
	return true
}
