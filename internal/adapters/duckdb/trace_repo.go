package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/manthysbr/partgraph/internal/core/domain"
)

// SaveTrace stores a finished turn trace. Saving the same trace again
// replaces its row and the rows of the spans it carries.
func (r *Repository) SaveTrace(ctx context.Context, trace *domain.Trace) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO turn_traces (id, session_id, turn_seq, input, outcome, iterations,
		                                    status, root_span_id, started_at, ended_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(trace.ID), string(trace.SessionID), trace.TurnSeq, trace.Input,
		string(trace.Outcome), trace.Iterations, string(trace.Status), string(trace.RootSpanID),
		trace.StartTime, nullTime(trace.EndTime), trace.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("save trace %s: %w", trace.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO turn_spans (id, trace_id, parent_id, kind, name, status, model,
		                                   input, output, error, attributes, started_at, ended_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare span insert: %w", err)
	}
	defer stmt.Close()

	for _, span := range trace.Spans {
		attrs := "{}"
		if len(span.Attributes) > 0 {
			b, err := json.Marshal(span.Attributes)
			if err != nil {
				return fmt.Errorf("encode attributes of span %s: %w", span.ID, err)
			}
			attrs = string(b)
		}
		if _, err := stmt.ExecContext(ctx,
			string(span.ID), string(trace.ID), string(span.ParentID), string(span.Kind), span.Name,
			string(span.Status), span.Model, span.Input, span.Output, span.Error, attrs,
			span.StartTime, nullTime(span.EndTime), span.DurationMs,
		); err != nil {
			return fmt.Errorf("save span %s: %w", span.ID, err)
		}
	}
	return tx.Commit()
}

// ListTraces returns the most recent turn traces, newest first, with their
// llm, tool and pipeline spans counted.
func (r *Repository) ListTraces(ctx context.Context, limit int) ([]domain.TraceSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.session_id, t.turn_seq, t.input, t.outcome, t.iterations,
		       t.status, t.started_at, t.duration_ms,
		       count(s.id) FILTER (WHERE s.kind = ?),
		       count(s.id) FILTER (WHERE s.kind = ?),
		       count(s.id) FILTER (WHERE s.kind = ?)
		FROM turn_traces t
		LEFT JOIN turn_spans s ON s.trace_id = t.id
		GROUP BY t.id, t.session_id, t.turn_seq, t.input, t.outcome, t.iterations,
		         t.status, t.started_at, t.duration_ms
		ORDER BY t.started_at DESC
		LIMIT ?`,
		string(domain.SpanKindLLM), string(domain.SpanKindTool), string(domain.SpanKindPipeline), limit)
	if err != nil {
		return nil, fmt.Errorf("list traces: %w", err)
	}
	defer rows.Close()

	out := []domain.TraceSummary{}
	for rows.Next() {
		var (
			s               domain.TraceSummary
			id, session     string
			outcome, status string
		)
		if err := rows.Scan(&id, &session, &s.TurnSeq, &s.Input, &outcome, &s.Iterations,
			&status, &s.StartTime, &s.DurationMs,
			&s.Counts.LLM, &s.Counts.Tool, &s.Counts.Pipeline); err != nil {
			return nil, fmt.Errorf("scan trace summary: %w", err)
		}
		s.ID = domain.TraceID(id)
		s.SessionID = domain.SessionID(session)
		s.Outcome = domain.TurnOutcome(outcome)
		s.Status = domain.SpanStatus(status)
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetTrace returns one turn trace with its spans in start order.
func (r *Repository) GetTrace(ctx context.Context, id domain.TraceID) (*domain.Trace, error) {
	var (
		t                                    domain.Trace
		session, outcome, status, rootSpanID string
		ended                                sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT session_id, turn_seq, input, outcome, iterations, status,
		       root_span_id, started_at, ended_at, duration_ms
		FROM turn_traces WHERE id = ?`, string(id)).
		Scan(&session, &t.TurnSeq, &t.Input, &outcome, &t.Iterations, &status,
			&rootSpanID, &t.StartTime, &ended, &t.DurationMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTraceNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get trace %s: %w", id, err)
	}
	t.ID = id
	t.SessionID = domain.SessionID(session)
	t.Outcome = domain.TurnOutcome(outcome)
	t.Status = domain.SpanStatus(status)
	t.RootSpanID = domain.SpanID(rootSpanID)
	t.EndTime = timePtr(ended)

	if t.Spans, err = r.spansOf(ctx, id); err != nil {
		return nil, err
	}
	for _, span := range t.Spans {
		t.Counts.Add(span.Kind)
	}
	return &t, nil
}

func (r *Repository) spansOf(ctx context.Context, id domain.TraceID) ([]domain.Span, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, parent_id, kind, name, status, model, input, output, error,
		       attributes, started_at, ended_at, duration_ms
		FROM turn_spans WHERE trace_id = ?
		ORDER BY started_at ASC, kind = ? DESC`, string(id), string(domain.SpanKindTurn))
	if err != nil {
		return nil, fmt.Errorf("load spans of %s: %w", id, err)
	}
	defer rows.Close()

	var out []domain.Span
	for rows.Next() {
		var (
			s                                   domain.Span
			spanID, parent, kind, status, attrs string
			ended                               sql.NullTime
		)
		if err := rows.Scan(&spanID, &parent, &kind, &s.Name, &status, &s.Model, &s.Input, &s.Output, &s.Error,
			&attrs, &s.StartTime, &ended, &s.DurationMs); err != nil {
			return nil, fmt.Errorf("scan span: %w", err)
		}
		s.ID = domain.SpanID(spanID)
		s.TraceID = id
		s.ParentID = domain.SpanID(parent)
		s.Kind = domain.SpanKind(kind)
		s.Status = domain.SpanStatus(status)
		s.EndTime = timePtr(ended)
		if attrs != "" && attrs != "{}" {
			if err := json.Unmarshal([]byte(attrs), &s.Attributes); err != nil {
				return nil, fmt.Errorf("decode attributes of span %s: %w", spanID, err)
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
