package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/manthysbr/partgraph/internal/core/domain"
	"github.com/manthysbr/partgraph/internal/core/ports"
)

// SessionStore manages conversation sessions with an in-memory LRU cache,
// optionally backed by a turn repository. Hot sessions stay in memory; cold
// ones are loaded on demand.
//
// Without a repository an evicted session cannot be rebuilt, so its id is
// remembered and later lookups fail with domain.ErrSessionNotFound instead of
// silently starting over.
type SessionStore struct {
	mu     sync.RWMutex
	logger *slog.Logger
	repo   ports.TurnRepository // nil keeps sessions in-process only

	cache    map[domain.SessionID]*Session
	order    []domain.SessionID // LRU order, most recent last
	maxCache int
	evicted  map[domain.SessionID]struct{} // only tracked when repo is nil
}

// NewSessionStore creates a store with the given cache capacity.
func NewSessionStore(logger *slog.Logger, repo ports.TurnRepository, maxCache int) *SessionStore {
	if maxCache <= 0 {
		maxCache = 64
	}
	return &SessionStore{
		logger:   logger,
		repo:     repo,
		cache:    make(map[domain.SessionID]*Session, maxCache),
		order:    make([]domain.SessionID, 0, maxCache),
		maxCache: maxCache,
		evicted:  make(map[domain.SessionID]struct{}),
	}
}

// Get returns the session for id, loading its turns from the repository or
// creating an empty one. An empty id creates a new session.
//
// The session stays pinned in the cache until release is called, so every
// caller asking for the same id gets the same *Session and shares its turn
// lock. Call release once the turn has finished.
func (s *SessionStore) Get(ctx context.Context, id domain.SessionID) (*Session, func(), error) {
	if id == "" {
		id = domain.NewSessionID()
	}

	s.mu.Lock()
	if sess, ok := s.cache[id]; ok {
		s.touchLocked(id)
		release := s.pinLocked(sess)
		s.mu.Unlock()
		return sess, release, nil
	}
	if _, gone := s.evicted[id]; gone {
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: %s was evicted", domain.ErrSessionNotFound, id)
	}
	s.mu.Unlock()

	var turns []domain.Turn
	if s.repo != nil {
		loaded, err := s.repo.ListTurns(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("load session %s: %w", id, err)
		}
		turns = loaded
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another caller may have loaded it meanwhile
	if sess, ok := s.cache[id]; ok {
		s.touchLocked(id)
		return sess, s.pinLocked(sess), nil
	}
	if _, gone := s.evicted[id]; gone {
		return nil, nil, fmt.Errorf("%w: %s was evicted", domain.ErrSessionNotFound, id)
	}
	var mem ports.MemoryStore
	if s.repo != nil {
		mem = NewPersistentMemory(id, s.repo, turns)
	} else {
		mem = NewBufferMemory(turns...)
	}
	sess := NewSession(id, mem)
	s.cache[id] = sess
	s.touchLocked(id)
	release := s.pinLocked(sess)
	s.evictLocked()
	s.logger.Debug("session loaded", "session_id", string(id), "turns", len(turns))
	return sess, release, nil
}

// List returns the known session ids: persisted sessions by most recent
// activity, followed by cached sessions the repository has not seen yet.
func (s *SessionStore) List(ctx context.Context) ([]domain.SessionID, error) {
	var ids []domain.SessionID
	if s.repo != nil {
		persisted, err := s.repo.ListSessions(ctx)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		ids = persisted
	}
	seen := make(map[domain.SessionID]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		if _, ok := seen[s.order[i]]; !ok {
			ids = append(ids, s.order[i])
		}
	}
	return ids, nil
}

// History returns the stored turns of a session.
func (s *SessionStore) History(ctx context.Context, id domain.SessionID) ([]domain.Turn, error) {
	s.mu.RLock()
	sess, ok := s.cache[id]
	s.mu.RUnlock()
	if ok {
		return sess.Memory.ReadAll(ctx)
	}
	if s.repo == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	turns, err := s.repo.ListTurns(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if len(turns) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return turns, nil
}

// Delete drops a session from the cache and the repository.
func (s *SessionStore) Delete(ctx context.Context, id domain.SessionID) error {
	if s.repo != nil {
		if err := s.repo.DeleteSession(ctx, id); err != nil {
			return fmt.Errorf("delete session %s: %w", id, err)
		}
	}
	s.mu.Lock()
	delete(s.cache, id)
	delete(s.evicted, id)
	s.removeLRULocked(id)
	s.mu.Unlock()
	return nil
}

// Len returns the number of cached sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// --- LRU helpers (must be called with mu held) ---

func (s *SessionStore) touchLocked(id domain.SessionID) {
	s.removeLRULocked(id)
	s.order = append(s.order, id)
}

func (s *SessionStore) removeLRULocked(id domain.SessionID) {
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// pinLocked marks sess as handed out and returns its idempotent release.
func (s *SessionStore) pinLocked(sess *Session) func() {
	sess.pins++
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			sess.pins--
			s.evictLocked()
		})
	}
}

// evictLocked drops the least recently used idle sessions. Pinned sessions
// and sessions with a turn in flight are kept so a reload cannot split their
// turn lock. The cache may exceed its capacity while they are held.
func (s *SessionStore) evictLocked() {
	for i := 0; len(s.order) > s.maxCache && i < len(s.order); {
		id := s.order[i]
		if sess, ok := s.cache[id]; ok && (sess.pins > 0 || sess.busy()) {
			i++
			continue
		}
		s.order = append(s.order[:i], s.order[i+1:]...)
		delete(s.cache, id)
		if s.repo == nil {
			s.evicted[id] = struct{}{}
		}
		s.logger.Debug("session evicted", "session_id", string(id))
	}
}
