package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/manthysbr/partgraph/internal/core/domain"
	"github.com/manthysbr/partgraph/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type agentFixture struct {
	llm      ports.Completer
	parser   OutputParser
	tools    []*domain.Tool
	memory   bool
	maxIters int
	timeout  time.Duration
	tracer   *TraceCollector
}

func (f agentFixture) build(t *testing.T) *ReActAgent {
	t.Helper()
	registry, err := domain.NewToolRegistry(f.tools...)
	require.NoError(t, err)
	tmpl, err := SelectTemplate(domain.ModeSequential, f.memory)
	require.NoError(t, err)
	asm, err := NewPromptAssembler(tmpl, registry)
	require.NoError(t, err)
	parser := f.parser
	if parser == nil {
		parser = NewStrictParser(70)
	}
	return NewReActAgent(testLogger(), f.llm, asm, parser, registry, f.tracer, ReActAgentConfig{
		Model:         "gpt-4o",
		MaxIterations: f.maxIters,
		TurnTimeout:   f.timeout,
	})
}

func countingTool(name string, calls *int32, matches []domain.Match) *domain.Tool {
	return &domain.Tool{
		Name:        name,
		Description: name + " tool",
		Invoke: func(context.Context, string) ([]domain.Match, error) {
			atomic.AddInt32(calls, 1)
			return matches, nil
		},
	}
}

func TestReActAgent_MaxIterations(t *testing.T) {
	// Low confidence forces a Query call on every step
	llm := &scriptedCompleter{outputs: []string{"Thought: unsure\nConfidence: 20"}}
	var calls int32
	agent := agentFixture{
		llm:      llm,
		parser:   NewPermissiveParser(70),
		tools:    []*domain.Tool{countingTool("Query", &calls, numbered(1))},
		maxIters: 4,
	}.build(t)

	out, err := agent.RunTurn(context.Background(), "which part fixes a leak?", nil)
	require.NoError(t, err)
	assert.Equal(t, IterationLimitAnswer, out)
	assert.Len(t, llm.requests(), 4)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestReActAgent_ScratchpadAndStopSequence(t *testing.T) {
	llm := &scriptedCompleter{outputs: []string{
		"Thought: look it up\nAction: Query\nAction Input: PS11752778",
		"I now know.\nConfidence: 92\nFinal Answer: It is the Filter Base.",
	}}
	var calls int32
	agent := agentFixture{
		llm:   llm,
		tools: []*domain.Tool{countingTool("Query", &calls, numbered(1))},
	}.build(t)

	out, err := agent.RunTurn(context.Background(), "what is PS11752778?", nil)
	require.NoError(t, err)
	assert.Equal(t, "It is the Filter Base.", out)

	reqs := llm.requests()
	require.Len(t, reqs, 2)
	for _, r := range reqs {
		assert.Equal(t, []string{"\nObservation:"}, r.Stop)
		assert.Equal(t, "gpt-4o", r.Model)
	}
	assert.NotContains(t, reqs[0].User, "Observation: [")
	assert.Contains(t, reqs[1].User,
		"Thought: look it up\nAction: Query\nAction Input: PS11752778\nObservation: [{\"id\":1}]\nThought: ")
}

func TestReActAgent_FailedObservations(t *testing.T) {
	panicky := &domain.Tool{
		Name:        "Similarity Search",
		Description: "boom",
		Invoke: func(context.Context, string) ([]domain.Match, error) {
			panic("index out of range")
		},
	}
	llm := &scriptedCompleter{outputs: []string{
		"Action: Search\nAction Input: x",
		"Action: Query\nAction Input: y",
		"Action: Similarity Search\nAction Input: z",
		"Final Answer: recovered",
	}}
	agent := agentFixture{
		llm: llm,
		tools: []*domain.Tool{
			staticTool("Query", nil, errors.New("graph unavailable")),
			panicky,
		},
	}.build(t)

	out, err := agent.RunTurn(context.Background(), "help", nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)

	last := llm.requests()[3].User
	assert.Contains(t, last, "Observation: invalid tool: Search\n")
	assert.Contains(t, last, "Observation: Error: graph unavailable\n")
	assert.Contains(t, last, "Observation: Error: tool panicked: Similarity Search: index out of range\n")
}

func TestReActAgent_NilMatchesEncodeAsEmptyList(t *testing.T) {
	llm := &scriptedCompleter{outputs: []string{
		"Action: Query\nAction Input: y",
		"Final Answer: none",
	}}
	agent := agentFixture{llm: llm, tools: []*domain.Tool{staticTool("Query", nil, nil)}}.build(t)

	_, err := agent.RunTurn(context.Background(), "help", nil)
	require.NoError(t, err)
	assert.Contains(t, llm.requests()[1].User, "Observation: []\n")
}

func TestReActAgent_MemoryDoubleWrite(t *testing.T) {
	llm := &scriptedCompleter{outputs: []string{"Hello, John Doe"}}
	mem := &recordingMemory{}
	session := NewSession("s-1", mem)
	agent := agentFixture{
		llm:    llm,
		parser: NewPermissiveParser(70),
		tools:  []*domain.Tool{staticTool("Query", nil, nil)},
		memory: true,
	}.build(t)

	out, err := agent.RunTurn(context.Background(), "Hello, my name is John Doe", session)
	require.NoError(t, err)
	assert.Equal(t, "Hello, John Doe", out)

	assert.Equal(t, []domain.Turn{
		{Input: "Hello, my name is John Doe", Output: ""},
		{Input: "Hello, my name is John Doe", Output: "Hello, John Doe"},
	}, mem.writes)
	// The placeholder is already visible to the first prompt
	assert.Contains(t, llm.requests()[0].User, "Human: Hello, my name is John Doe\nAI: ")
}

func TestReActAgent_ProviderFailure(t *testing.T) {
	llm := &scriptedCompleter{err: errors.New("429 rate limit")}
	mem := &recordingMemory{}
	agent := agentFixture{llm: llm, tools: []*domain.Tool{staticTool("Query", nil, nil)}, memory: true}.build(t)

	out, err := agent.RunTurn(context.Background(), "hi", NewSession("s-2", mem))
	require.NoError(t, err)
	assert.Equal(t, ProviderErrorAnswer, out)
	require.Len(t, mem.writes, 2)
	assert.Equal(t, domain.Turn{Input: "hi", Output: ProviderErrorAnswer}, mem.writes[1])
}

// blockingCompleter waits for the context to end.
type blockingCompleter struct{}

func (blockingCompleter) Complete(ctx context.Context, _ ports.CompletionRequest) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestReActAgent_TurnTimeout(t *testing.T) {
	agent := agentFixture{
		llm:     blockingCompleter{},
		tools:   []*domain.Tool{staticTool("Query", nil, nil)},
		timeout: 20 * time.Millisecond,
	}.build(t)

	out, err := agent.RunTurn(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderErrorAnswer, out)
}

func TestReActAgent_ConfigurationErrors(t *testing.T) {
	var nilAgent *ReActAgent
	_, err := nilAgent.RunTurn(context.Background(), "hi", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	empty, err := domain.NewToolRegistry()
	require.NoError(t, err)
	agent := NewReActAgent(testLogger(), &scriptedCompleter{outputs: []string{"x"}}, nil, NewStrictParser(70), empty, nil, ReActAgentConfig{})
	_, err = agent.RunTurn(context.Background(), "hi", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

// slowCompleter answers after a short pause so concurrent turns overlap.
type slowCompleter struct{}

func (slowCompleter) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	time.Sleep(10 * time.Millisecond)
	return "Final Answer: ok", nil
}

func TestReActAgent_SessionTurnsDoNotInterleave(t *testing.T) {
	mem := &recordingMemory{}
	session := NewSession("s-3", mem)
	agent := agentFixture{llm: slowCompleter{}, tools: []*domain.Tool{staticTool("Query", nil, nil)}, memory: true}.build(t)

	var wg sync.WaitGroup
	for _, in := range []string{"first", "second", "third"} {
		wg.Add(1)
		go func(in string) {
			defer wg.Done()
			_, err := agent.RunTurn(context.Background(), in, session)
			assert.NoError(t, err)
		}(in)
	}
	wg.Wait()

	require.Len(t, mem.writes, 6)
	for i := 0; i < len(mem.writes); i += 2 {
		assert.Equal(t, mem.writes[i].Input, mem.writes[i+1].Input)
		assert.Empty(t, mem.writes[i].Output)
		assert.Equal(t, "ok", mem.writes[i+1].Output)
	}
}

func TestReActAgent_RecordsTrace(t *testing.T) {
	tracer := NewTraceCollector(testLogger(), nil)
	llm := &scriptedCompleter{outputs: []string{
		"Action: Query\nAction Input: y",
		"Final Answer: done",
	}}
	agent := agentFixture{llm: llm, tools: []*domain.Tool{staticTool("Query", numbered(1), nil)}, tracer: tracer}.build(t)

	_, err := agent.RunTurn(context.Background(), "trace me", NewSession("s-4", NewBufferMemory()))
	require.NoError(t, err)

	summaries := tracer.ListTraces(0)
	require.Len(t, summaries, 1)
	assert.Equal(t, domain.SpanStatusOK, summaries[0].Status)
	assert.Equal(t, domain.OutcomeAnswer, summaries[0].Outcome)
	assert.Equal(t, 2, summaries[0].Iterations)
	assert.Equal(t, domain.SpanCounts{LLM: 2, Tool: 1}, summaries[0].Counts)

	trace, err := tracer.GetTrace(summaries[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID("s-4"), trace.SessionID)
	assert.Equal(t, "trace me", trace.Input)
	assert.Equal(t, 1, trace.TurnSeq)
}
