package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/manthysbr/partgraph/internal/core/domain"
	"github.com/manthysbr/partgraph/internal/core/ports"
	_ "github.com/marcboeker/go-duckdb"
)

// Repository persists session memory and turn traces in DuckDB.
type Repository struct {
	db *sql.DB
	mu sync.Mutex // serializes turn sequence allocation
}

// Ensure Repository implements the persistence ports
var (
	_ ports.TurnRepository  = (*Repository)(nil)
	_ ports.TraceRepository = (*Repository)(nil)
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS memory_turns (
		session_id VARCHAR NOT NULL,
		seq        INTEGER NOT NULL,
		input      VARCHAR NOT NULL,
		output     VARCHAR NOT NULL,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (session_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS turn_traces (
		id           VARCHAR PRIMARY KEY,
		session_id   VARCHAR NOT NULL,
		turn_seq     INTEGER NOT NULL,
		input        VARCHAR NOT NULL,
		outcome      VARCHAR NOT NULL,
		iterations   INTEGER NOT NULL,
		status       VARCHAR NOT NULL,
		root_span_id VARCHAR NOT NULL,
		started_at   TIMESTAMP NOT NULL,
		ended_at     TIMESTAMP,
		duration_ms  BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS turn_spans (
		id          VARCHAR PRIMARY KEY,
		trace_id    VARCHAR NOT NULL,
		parent_id   VARCHAR NOT NULL,
		kind        VARCHAR NOT NULL,
		name        VARCHAR NOT NULL,
		status      VARCHAR NOT NULL,
		model       VARCHAR NOT NULL,
		input       VARCHAR NOT NULL,
		output      VARCHAR NOT NULL,
		error       VARCHAR NOT NULL,
		attributes  VARCHAR NOT NULL,
		started_at  TIMESTAMP NOT NULL,
		ended_at    TIMESTAMP,
		duration_ms BIGINT NOT NULL
	)`,
}

// NewRepository opens (or creates) the database at path and applies the
// schema. An empty path opens an in-memory database.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %q: %w", path, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return &Repository{db: db}, nil
}

// Close releases the database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

// AppendTurn stores a turn after the session's existing turns.
func (r *Repository) AppendTurn(ctx context.Context, session domain.SessionID, turn domain.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO memory_turns (session_id, seq, input, output, created_at)
		SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?
		FROM memory_turns WHERE session_id = ?`,
		string(session), turn.Input, turn.Output, time.Now().UTC(), string(session),
	)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// ListTurns returns a session's turns in write order.
func (r *Repository) ListTurns(ctx context.Context, session domain.SessionID) ([]domain.Turn, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT input, output FROM memory_turns
		WHERE session_id = ?
		ORDER BY seq ASC`, string(session))
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var out []domain.Turn
	for rows.Next() {
		var t domain.Turn
		if err := rows.Scan(&t.Input, &t.Output); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListSessions returns sessions ordered by most recent activity.
func (r *Repository) ListSessions(ctx context.Context) ([]domain.SessionID, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id FROM memory_turns
		GROUP BY session_id
		ORDER BY MAX(created_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := []domain.SessionID{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, domain.SessionID(id))
	}
	return out, rows.Err()
}

// DeleteSession removes all turns of a session.
func (r *Repository) DeleteSession(ctx context.Context, session domain.SessionID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM memory_turns WHERE session_id = ?`, string(session)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
