// Package kernel exposes the agent over HTTP.
package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/manthysbr/partgraph/internal/core/domain"
	"github.com/manthysbr/partgraph/internal/core/ports"
	"github.com/manthysbr/partgraph/internal/core/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Agent runs one conversational turn.
type Agent interface {
	RunTurn(ctx context.Context, input string, session *services.Session) (string, error)
}

type Server struct {
	logger   *slog.Logger
	agent    Agent
	sessions *services.SessionStore
	tracer   *services.TraceCollector
	traces   ports.TraceRepository // optional fallback for evicted traces
	memory   bool
}

// Options configures optional server collaborators.
type Options struct {
	// Memory routes turns through sessions. When false every request is
	// answered without chat history.
	Memory bool
	Traces ports.TraceRepository
}

func NewServer(logger *slog.Logger, agent Agent, sessions *services.SessionStore, tracer *services.TraceCollector, opts Options) *Server {
	return &Server{
		logger:   logger,
		agent:    agent,
		sessions: sessions,
		tracer:   tracer,
		traces:   opts.Traces,
		memory:   opts.Memory,
	}
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /agent/", s.handleAgent)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{id}/history", s.handleHistory)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /v1/traces", s.handleListTraces)
	mux.HandleFunc("GET /v1/traces/{id}", s.handleGetTrace)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

type agentResponse struct {
	Response string `json:"response"`
	Session  string `json:"session,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleAgent answers one message.
// GET /agent/?message=...&session=...
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	message := r.URL.Query().Get("message")
	if message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}

	var session *services.Session
	if s.memory && s.sessions != nil {
		sess, release, err := s.sessions.Get(r.Context(), domain.SessionID(r.URL.Query().Get("session")))
		if errors.Is(err, domain.ErrSessionNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}
		if err != nil {
			s.logger.Error("failed to load session", "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load session"})
			return
		}
		defer release()
		session = sess
	}

	output, err := s.agent.RunTurn(r.Context(), message, session)
	if err != nil {
		s.logger.Error("agent turn failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	resp := agentResponse{Response: output}
	if session != nil {
		resp.Session = string(session.ID)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListSessions returns the known session ids, most recent first.
// GET /v1/sessions
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ids := []domain.SessionID{}
	if s.sessions != nil {
		listed, err := s.sessions.List(r.Context())
		if err != nil {
			s.logger.Error("failed to list sessions", "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list sessions"})
			return
		}
		ids = append(ids, listed...)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": ids,
		"count":    len(ids),
	})
}

// handleHistory returns the recorded turns of a session.
// GET /v1/sessions/{id}/history
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: domain.ErrSessionNotFound.Error()})
		return
	}
	turns, err := s.sessions.History(r.Context(), domain.SessionID(r.PathValue("id")))
	if errors.Is(err, domain.ErrSessionNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		s.logger.Error("failed to read history", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read history"})
		return
	}
	if turns == nil {
		turns = []domain.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": r.PathValue("id"),
		"turns":   turns,
	})
}

// DELETE /v1/sessions/{id}
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := s.sessions.Delete(r.Context(), domain.SessionID(r.PathValue("id"))); err != nil {
		s.logger.Error("failed to delete session", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to delete session"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListTraces returns recent traces.
// GET /v1/traces?limit=50
func (s *Server) handleListTraces(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = min(n, 500)
		}
	}

	traces := s.tracer.ListTraces(limit)
	if len(traces) == 0 && s.traces != nil {
		persisted, err := s.traces.ListTraces(r.Context(), limit)
		if err != nil {
			s.logger.Warn("failed to list persisted traces", "error", err)
		} else {
			traces = persisted
		}
	}
	if traces == nil {
		traces = []domain.TraceSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"traces": traces,
		"count":  len(traces),
	})
}

// handleGetTrace returns a single trace with all spans.
// GET /v1/traces/{id}
func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	id := domain.TraceID(r.PathValue("id"))
	trace, err := s.tracer.GetTrace(id)
	if err != nil && s.traces != nil {
		trace, err = s.traces.GetTrace(r.Context(), id)
	}
	if errors.Is(err, domain.ErrTraceNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		s.logger.Error("failed to read trace", "trace_id", string(id), "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read trace"})
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
