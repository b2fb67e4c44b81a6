package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/manthysbr/partgraph/internal/core/domain"
	"github.com/manthysbr/partgraph/internal/core/ports"
)

const (
	// StopSequence ends generation before the model invents an observation.
	StopSequence = "\nObservation:"

	// IterationLimitAnswer is returned when a turn runs out of steps.
	IterationLimitAnswer = "Agent stopped due to iteration limit or time limit."

	// ProviderErrorAnswer is returned when the completion endpoint fails or
	// the turn deadline passes.
	ProviderErrorAnswer = "Sorry, I could not complete your request right now. Please try again."

	defaultMaxIterations = 15
)

// ReActAgentConfig configures the executor loop.
type ReActAgentConfig struct {
	Model         string
	Temperature   float32
	MaxIterations int
	// TurnTimeout bounds a whole turn; zero leaves it to the caller's ctx.
	TurnTimeout time.Duration
}

// ReActAgent drives the thought, action, observation loop for one turn at a
// time. It holds no per-turn state and is safe for concurrent use; per-session
// ordering is enforced through Session.
type ReActAgent struct {
	logger    *slog.Logger
	llm       ports.Completer
	assembler *PromptAssembler
	parser    OutputParser
	tools     *domain.ToolRegistry
	tracer    *TraceCollector
	cfg       ReActAgentConfig
}

// NewReActAgent creates an executor. tracer may be nil.
func NewReActAgent(
	logger *slog.Logger,
	llm ports.Completer,
	assembler *PromptAssembler,
	parser OutputParser,
	tools *domain.ToolRegistry,
	tracer *TraceCollector,
	cfg ReActAgentConfig,
) *ReActAgent {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	return &ReActAgent{
		logger:    logger,
		llm:       llm,
		assembler: assembler,
		parser:    parser,
		tools:     tools,
		tracer:    tracer,
		cfg:       cfg,
	}
}

// RunTurn answers one user message. When session is non-nil the turn is
// serialized with other turns of that session and recorded in its memory:
// once with an empty output before the loop, once with the answer after it.
//
// Model and tool failures never surface as errors; they become observations
// or a fallback answer. An error means the agent itself is misconfigured.
func (a *ReActAgent) RunTurn(ctx context.Context, input string, session *Session) (string, error) {
	if a == nil {
		return "", fmt.Errorf("%w: nil agent", domain.ErrInvalidConfig)
	}
	if a.tools.Len() == 0 {
		return "", fmt.Errorf("%w: empty tool registry", domain.ErrInvalidConfig)
	}
	if a.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.TurnTimeout)
		defer cancel()
	}

	var sessionID domain.SessionID
	if session != nil {
		sessionID = session.ID
	}
	ctx, traceID := a.tracer.StartTrace(ctx, input, sessionID)

	var history string
	var seq int
	if session != nil {
		release := session.BeginTurn()
		defer release()
		history, seq = a.openTurn(ctx, session, input)
	}

	a.logger.Info("turn started", "session_id", string(sessionID), "turn_seq", seq, "input", truncate(input, 200))
	output, outcome, iterations := a.loop(ctx, input, history)
	agentTurnsTotal.WithLabelValues(string(outcome)).Inc()

	if session != nil {
		// The answer is recorded even when the turn deadline has passed
		if err := session.Memory.Append(context.WithoutCancel(ctx), domain.Turn{Input: input, Output: output}); err != nil {
			a.logger.Warn("failed to record turn output", "session_id", string(sessionID), "error", err)
		}
	}

	a.tracer.EndTrace(traceID, domain.TurnResult{
		Outcome:    outcome,
		Iterations: iterations,
		TurnSeq:    seq,
		Output:     output,
	})
	a.logger.Info("turn finished", "session_id", string(sessionID), "outcome", string(outcome), "iterations", iterations)
	return output, nil
}

// openTurn writes the placeholder turn and returns the rendered history,
// which already includes the placeholder, and the turn's 1-based position.
func (a *ReActAgent) openTurn(ctx context.Context, session *Session, input string) (string, int) {
	if err := session.Memory.Append(ctx, domain.Turn{Input: input}); err != nil {
		a.logger.Warn("failed to record turn input", "session_id", string(session.ID), "error", err)
	}
	turns, err := session.Memory.ReadAll(ctx)
	if err != nil {
		a.logger.Warn("failed to read session memory", "session_id", string(session.ID), "error", err)
		return "", 0
	}
	return domain.RenderTranscript(turns), len(turns)
}

// loop runs Thinking steps until a Finish, the iteration limit or a provider
// failure. It returns the answer, the outcome and the steps taken.
func (a *ReActAgent) loop(ctx context.Context, input, history string) (string, domain.TurnOutcome, int) {
	var steps []domain.AgentStep

	for i := 0; i < a.cfg.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			a.logger.Warn("turn deadline reached", "iteration", i+1, "error", err)
			agentIterations.Observe(float64(i))
			return ProviderErrorAnswer, domain.OutcomeProviderError, i
		}

		prompt := a.assembler.Render(input, history, steps)
		out, err := a.think(ctx, i+1, prompt)
		if err != nil {
			a.logger.Error("completion failed", "iteration", i+1, "error", err)
			agentIterations.Observe(float64(i + 1))
			return ProviderErrorAnswer, domain.OutcomeProviderError, i + 1
		}

		switch d := a.parser.Parse(out).(type) {
		case domain.Finish:
			a.logger.Info("final answer reached", "iteration", i+1)
			agentIterations.Observe(float64(i + 1))
			return d.Output, domain.OutcomeAnswer, i + 1
		case domain.ContinueWithTool:
			obs := a.dispatch(ctx, d.Tool, d.Input)
			steps = append(steps, domain.AgentStep{
				Thought:     thoughtOf(d.RawLog),
				Action:      d.Tool,
				ActionInput: d.Input,
				Observation: obs,
				Log:         d.RawLog,
			})
		}
	}

	a.logger.Warn("iteration limit reached", "max_iterations", a.cfg.MaxIterations)
	agentIterations.Observe(float64(a.cfg.MaxIterations))
	return IterationLimitAnswer, domain.OutcomeIterationLimit, a.cfg.MaxIterations
}

// think makes one traced completion call.
func (a *ReActAgent) think(ctx context.Context, iteration int, prompt string) (string, error) {
	_, spanID := a.tracer.StartSpan(ctx, fmt.Sprintf("llm.generate (iter %d)", iteration), domain.SpanKindLLM, map[string]string{
		"iteration": fmt.Sprintf("%d", iteration),
	})
	a.tracer.SetSpanInput(spanID, prompt[max(0, len(prompt)-500):])
	a.tracer.SetSpanModel(spanID, a.cfg.Model)

	start := time.Now()
	out, err := a.llm.Complete(ctx, ports.CompletionRequest{
		User:        prompt,
		Model:       a.cfg.Model,
		Temperature: a.cfg.Temperature,
		Stop:        []string{StopSequence},
	})
	recordCompletion("agent", start, err)
	if err != nil {
		a.tracer.EndSpan(spanID, domain.SpanStatusError, "", err.Error())
		return "", err
	}
	a.tracer.EndSpan(spanID, domain.SpanStatusOK, out, "")
	return out, nil
}

// dispatch runs a tool and renders its observation. Unknown tools, tool
// errors and panics all become observation text.
func (a *ReActAgent) dispatch(ctx context.Context, name, input string) string {
	tool, ok := a.tools.Get(name)
	if !ok {
		a.logger.Warn("model requested unknown tool", "tool", name, "error", domain.ErrToolNotFound)
		toolCallsTotal.WithLabelValues("unknown", "invalid").Inc()
		return "invalid tool: " + name
	}

	ctx, spanID := a.tracer.StartSpan(ctx, "tool."+name, domain.SpanKindTool, map[string]string{"tool": name})
	a.tracer.SetSpanInput(spanID, input)
	a.logger.Info("executing tool", "tool", name, "input", truncate(input, 200))

	matches, err := invokeTool(ctx, tool, input)
	if err != nil {
		obs := "Error: " + err.Error()
		toolCallsTotal.WithLabelValues(name, "error").Inc()
		a.tracer.EndSpan(spanID, domain.SpanStatusError, obs, err.Error())
		return obs
	}
	if matches == nil {
		matches = []domain.Match{}
	}
	b, err := json.Marshal(matches)
	if err != nil {
		obs := "Error: encode observation: " + err.Error()
		toolCallsTotal.WithLabelValues(name, "error").Inc()
		a.tracer.EndSpan(spanID, domain.SpanStatusError, obs, err.Error())
		return obs
	}
	obs := string(b)
	toolCallsTotal.WithLabelValues(name, "success").Inc()
	a.tracer.EndSpan(spanID, domain.SpanStatusOK, obs, "")
	return obs
}

var errToolPanic = errors.New("tool panicked")

func invokeTool(ctx context.Context, tool *domain.Tool, input string) (matches []domain.Match, err error) {
	defer func() {
		if r := recover(); r != nil {
			matches = nil
			err = fmt.Errorf("%w: %s: %v", errToolPanic, tool.Name, r)
		}
	}()
	return tool.Invoke(ctx, input)
}

// thoughtOf returns the reasoning text that precedes the Action line.
func thoughtOf(log string) string {
	before, _, _ := strings.Cut(log, "Action:")
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(before), "Thought:"))
}
