package domain

import (
	"context"
	"fmt"
	"strings"
)

// ToolFunc is the signature every agent tool implements. Input is the raw
// Action Input text extracted from the model output.
type ToolFunc func(ctx context.Context, input string) ([]Match, error)

// Tool represents an executable capability available to the agent
type Tool struct {
	Name        string
	Description string
	Invoke      ToolFunc
}

// ToolRegistry is an ordered, immutable set of tools. It is built once at
// startup and shared read-only by concurrent turns.
type ToolRegistry struct {
	tools []*Tool
	index map[string]*Tool
}

// NewToolRegistry builds a registry from the given tools, preserving order.
// Empty or duplicate names are configuration errors.
func NewToolRegistry(tools ...*Tool) (*ToolRegistry, error) {
	r := &ToolRegistry{
		tools: make([]*Tool, 0, len(tools)),
		index: make(map[string]*Tool, len(tools)),
	}
	for _, tool := range tools {
		if tool == nil || strings.TrimSpace(tool.Name) == "" {
			return nil, ErrEmptyToolName
		}
		if tool.Invoke == nil {
			return nil, fmt.Errorf("%w: tool %q has no function", ErrInvalidConfig, tool.Name)
		}
		if _, dup := r.index[tool.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, tool.Name)
		}
		r.tools = append(r.tools, tool)
		r.index[tool.Name] = tool
	}
	return r, nil
}

// Get returns a tool by exact, case-sensitive name.
func (r *ToolRegistry) Get(name string) (*Tool, bool) {
	if r == nil {
		return nil, false
	}
	tool, ok := r.index[name]
	return tool, ok
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.tools)
}

// List returns the registered tools in registration order.
func (r *ToolRegistry) List() []*Tool {
	if r == nil {
		return nil
	}
	out := make([]*Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Names returns tool names in registration order.
func (r *ToolRegistry) Names() []string {
	names := make([]string, 0, r.Len())
	for _, tool := range r.List() {
		names = append(names, tool.Name)
	}
	return names
}

// FormatToolsForPrompt renders one "name: description" line per tool.
func (r *ToolRegistry) FormatToolsForPrompt() string {
	lines := make([]string, 0, r.Len())
	for _, tool := range r.List() {
		lines = append(lines, fmt.Sprintf("%s: %s", tool.Name, tool.Description))
	}
	return strings.Join(lines, "\n")
}

// FormatToolNames renders the comma separated tool name list.
func (r *ToolRegistry) FormatToolNames() string {
	return strings.Join(r.Names(), ", ")
}
