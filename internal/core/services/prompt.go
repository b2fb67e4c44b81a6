package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/manthysbr/partgraph/internal/core/domain"
)

// Template variables.
const (
	varTools       = "{tools}"
	varToolNames   = "{tool_names}"
	varChatHistory = "{chat_history}"
	varInput       = "{input}"
	varScratchpad  = "{agent_scratchpad}"
	varEntityTypes = "{graph_entity_types}"
)

// PromptTemplate is validated agent prompt text. It is immutable and safe
// for concurrent use.
type PromptTemplate struct {
	name   string
	text   string
	memory bool
}

// NewPromptTemplate validates that text carries the variables the executor
// fills in. A template built for memory mode must also carry {chat_history}.
func NewPromptTemplate(name, text string, memory bool) (*PromptTemplate, error) {
	required := []string{varTools, varToolNames, varInput, varScratchpad}
	if memory {
		required = append(required, varChatHistory)
	}
	for _, v := range required {
		if !strings.Contains(text, v) {
			return nil, fmt.Errorf("%w: prompt %q is missing %s", domain.ErrInvalidConfig, name, v)
		}
	}
	return &PromptTemplate{name: name, text: text, memory: memory}, nil
}

// Name returns the template name.
func (t *PromptTemplate) Name() string { return t.name }

// UsesMemory reports whether the template renders chat history.
func (t *PromptTemplate) UsesMemory() bool { return t.memory }

// PromptVars are the values substituted into a template.
type PromptVars struct {
	Tools       string
	ToolNames   string
	ChatHistory string
	Input       string
	Scratchpad  string
	EntityTypes string
}

// Render substitutes all variables in a single pass, so variable-like text
// inside user input or observations is left untouched.
func (t *PromptTemplate) Render(v PromptVars) string {
	r := strings.NewReplacer(
		varTools, v.Tools,
		varToolNames, v.ToolNames,
		varChatHistory, v.ChatHistory,
		varInput, v.Input,
		varScratchpad, v.Scratchpad,
		varEntityTypes, v.EntityTypes,
	)
	return r.Replace(t.text)
}

// FormatScratchpad renders prior steps as the model's own transcript: each
// step's raw log, then its observation, then a fresh Thought prompt.
func FormatScratchpad(steps []domain.AgentStep) string {
	var b strings.Builder
	for _, s := range steps {
		b.WriteString(s.Log)
		b.WriteString("\nObservation: ")
		b.WriteString(s.Observation)
		b.WriteString("\nThought: ")
	}
	return b.String()
}

// PromptAssembler renders the agent prompt for one step.
type PromptAssembler struct {
	template    *PromptTemplate
	tools       string
	toolNames   string
	entityTypes string
}

// NewPromptAssembler precomputes the tool and schema blocks for a registry.
func NewPromptAssembler(template *PromptTemplate, registry *domain.ToolRegistry) (*PromptAssembler, error) {
	if template == nil {
		return nil, fmt.Errorf("%w: nil prompt template", domain.ErrInvalidConfig)
	}
	if registry.Len() == 0 {
		return nil, fmt.Errorf("%w: empty tool registry", domain.ErrInvalidConfig)
	}
	entityTypes, err := formatEntityTypes()
	if err != nil {
		return nil, err
	}
	return &PromptAssembler{
		template:    template,
		tools:       registry.FormatToolsForPrompt(),
		toolNames:   registry.FormatToolNames(),
		entityTypes: entityTypes,
	}, nil
}

// Template returns the underlying template.
func (a *PromptAssembler) Template() *PromptTemplate { return a.template }

// Render builds the prompt for the next step of a turn.
func (a *PromptAssembler) Render(input, history string, steps []domain.AgentStep) string {
	return a.template.Render(PromptVars{
		Tools:       a.tools,
		ToolNames:   a.toolNames,
		ChatHistory: history,
		Input:       input,
		Scratchpad:  FormatScratchpad(steps),
		EntityTypes: a.entityTypes,
	})
}

func formatEntityTypes() (string, error) {
	m := make(map[string]string, len(domain.GraphEntities))
	for _, e := range domain.GraphEntities {
		m[e.Name] = e.Description
	}
	b, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return "", fmt.Errorf("marshal entity types: %w", err)
	}
	return string(b), nil
}
