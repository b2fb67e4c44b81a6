package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/manthysbr/partgraph/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferMemory_AppendAndReadAll(t *testing.T) {
	ctx := context.Background()
	mem := NewBufferMemory(domain.Turn{Input: "Hello, my name is John Doe", Output: "Hello, John Doe"})

	require.NoError(t, mem.Append(ctx, domain.Turn{Input: "What is my name?"}))
	turns, err := mem.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "What is my name?", turns[1].Input)

	// ReadAll returns a copy
	turns[0].Output = "changed"
	again, _ := mem.ReadAll(ctx)
	assert.Equal(t, "Hello, John Doe", again[0].Output)
	assert.Equal(t, 2, mem.Len())
}

func TestPersistentMemory_WritesThrough(t *testing.T) {
	ctx := context.Background()
	repo := newMemTurnRepo()
	mem := NewPersistentMemory("s-1", repo, nil)

	require.NoError(t, mem.Append(ctx, domain.Turn{Input: "q", Output: ""}))
	require.NoError(t, mem.Append(ctx, domain.Turn{Input: "q", Output: "a"}))

	stored, err := repo.ListTurns(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Turn{{Input: "q"}, {Input: "q", Output: "a"}}, stored)
}

func TestSessionStore_LoadsFromRepository(t *testing.T) {
	ctx := context.Background()
	repo := newMemTurnRepo()
	require.NoError(t, repo.AppendTurn(ctx, "s-1", domain.Turn{Input: "hi", Output: "hello"}))

	store := NewSessionStore(testLogger(), repo, 4)
	sess, release, err := store.Get(ctx, "s-1")
	require.NoError(t, err)
	defer release()
	turns, err := sess.Memory.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Turn{{Input: "hi", Output: "hello"}}, turns)

	// A second Get is served from the cache
	again, releaseAgain, err := store.Get(ctx, "s-1")
	require.NoError(t, err)
	defer releaseAgain()
	assert.Same(t, sess, again)
	assert.Equal(t, 1, repo.loads)
}

func TestSessionStore_EmptyIDCreatesSession(t *testing.T) {
	store := NewSessionStore(testLogger(), nil, 0)
	sess, release, err := store.Get(context.Background(), "")
	require.NoError(t, err)
	release()
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, 1, store.Len())
}

func TestSessionStore_History(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(testLogger(), nil, 4)

	_, err := store.History(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	sess, release, err := store.Get(ctx, "s-1")
	require.NoError(t, err)
	release()
	require.NoError(t, sess.Memory.Append(ctx, domain.Turn{Input: "q", Output: "a"}))

	turns, err := store.History(ctx, "s-1")
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestSessionStore_HistoryFromRepository(t *testing.T) {
	ctx := context.Background()
	repo := newMemTurnRepo()
	require.NoError(t, repo.AppendTurn(ctx, "cold", domain.Turn{Input: "q", Output: "a"}))
	store := NewSessionStore(testLogger(), repo, 4)

	turns, err := store.History(ctx, "cold")
	require.NoError(t, err)
	assert.Equal(t, []domain.Turn{{Input: "q", Output: "a"}}, turns)
	assert.Equal(t, 0, store.Len())

	_, err = store.History(ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

// get fetches a session and releases it straight away.
func get(t *testing.T, store *SessionStore, id domain.SessionID) *Session {
	t.Helper()
	sess, release, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	release()
	return sess
}

func TestSessionStore_EvictsLeastRecentlyUsed(t *testing.T) {
	repo := newMemTurnRepo()
	store := NewSessionStore(testLogger(), repo, 2)

	a := get(t, store, "a")
	get(t, store, "b")
	get(t, store, "a") // a is now most recent
	get(t, store, "c") // evicts b

	assert.Equal(t, 2, store.Len())
	assert.Same(t, a, get(t, store, "a"))

	// b is rebuilt from the repository
	loads := repo.loads
	get(t, store, "b")
	assert.Equal(t, loads+1, repo.loads)
}

func TestSessionStore_EvictedWithoutRepositoryIsNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(testLogger(), nil, 1)

	x := get(t, store, "x")
	require.NoError(t, x.Memory.Append(ctx, domain.Turn{Input: "q", Output: "a"}))
	get(t, store, "y") // evicts idle x

	_, _, err := store.Get(ctx, "x")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = store.History(ctx, "x")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	// Deleting forgets the id so it can start over
	require.NoError(t, store.Delete(ctx, "x"))
	fresh := get(t, store, "x")
	assert.NotSame(t, x, fresh)
}

func TestSessionStore_HeldSessionSurvivesEviction(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(testLogger(), nil, 1)

	x, releaseX, err := store.Get(ctx, "x")
	require.NoError(t, err)
	require.NoError(t, x.Memory.Append(ctx, domain.Turn{Input: "q", Output: "a"}))

	get(t, store, "y")

	again, releaseAgain, err := store.Get(ctx, "x")
	require.NoError(t, err)
	assert.Same(t, x, again)
	turns, err := again.Memory.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, turns, 1)

	// Both handles share one turn lock
	end := x.BeginTurn()
	assert.True(t, again.busy())
	end()

	releaseX()
	releaseX() // release is idempotent
	releaseAgain()
	assert.Equal(t, 1, store.Len())
}

func TestSessionStore_KeepsBusySessions(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(testLogger(), nil, 1)

	busy := get(t, store, "busy")
	release := busy.BeginTurn()
	defer release()

	for i := 0; i < 3; i++ {
		get(t, store, domain.SessionID(fmt.Sprintf("idle-%d", i)))
	}

	same, releaseSame, err := store.Get(ctx, "busy")
	require.NoError(t, err)
	defer releaseSame()
	assert.Same(t, busy, same)
}

func TestSessionStore_Delete(t *testing.T) {
	ctx := context.Background()
	repo := newMemTurnRepo()
	store := NewSessionStore(testLogger(), repo, 4)

	sess := get(t, store, "s-1")
	require.NoError(t, sess.Memory.Append(ctx, domain.Turn{Input: "q"}))

	require.NoError(t, store.Delete(ctx, "s-1"))
	assert.Equal(t, 0, store.Len())
	_, err := store.History(ctx, "s-1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionStore_List(t *testing.T) {
	ctx := context.Background()
	repo := newMemTurnRepo()
	require.NoError(t, repo.AppendTurn(ctx, "stored", domain.Turn{Input: "q", Output: "a"}))
	store := NewSessionStore(testLogger(), repo, 4)

	get(t, store, "stored")
	get(t, store, "fresh")

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.SessionID{"stored", "fresh"}, ids)

	memOnly := NewSessionStore(testLogger(), nil, 4)
	get(t, memOnly, "one")
	get(t, memOnly, "two")
	ids, err = memOnly.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.SessionID{"two", "one"}, ids)
}
