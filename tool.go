package conduit

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolHandler executes one tool call. Handlers return a classified
// *ToolError for expected failure modes (validation, network, parse,
// timeout) so callers can map them without string matching.
type ToolHandler func(ctx context.Context, args json.RawMessage) (ToolResult, error)

// ToolResult is the outcome of a successful tool execution.
type ToolResult struct {
	Content string `json:"content"`
}

// ToolDispatcher is the execution surface the orchestrator and the MCP
// handler depend on. ToolRegistry is the canonical implementation; the
// observer package wraps it with instrumentation.
type ToolDispatcher interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error)
}

// ToolRegistry maps tool names to definitions and handlers. Populate it at
// process start; it is immutable afterwards and safe for concurrent reads.
type ToolRegistry struct {
	order []string
	tools map[string]registeredTool
}

type registeredTool struct {
	def     ToolDefinition
	handler ToolHandler
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]registeredTool)}
}

// Register adds a tool. Names must be unique; registering a duplicate name
// panics, since registration happens once at startup and a silent overwrite
// would mask a wiring bug.
func (r *ToolRegistry) Register(def ToolDefinition, handler ToolHandler) {
	if def.Name == "" {
		panic("conduit: tool definition missing name")
	}
	if _, exists := r.tools[def.Name]; exists {
		panic(fmt.Sprintf("conduit: duplicate tool %q", def.Name))
	}
	r.order = append(r.order, def.Name)
	r.tools[def.Name] = registeredTool{def: def, handler: handler}
}

// Definitions returns all tool definitions in registration order.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].def)
	}
	return defs
}

// Lookup returns the definition for name, if registered.
func (r *ToolRegistry) Lookup(name string) (ToolDefinition, bool) {
	t, ok := r.tools[name]
	return t.def, ok
}

// Execute dispatches a tool call by name. An unregistered name returns an
// error wrapping ErrUnknownTool; handler failures pass through unchanged.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	t, ok := r.tools[name]
	if !ok {
		return ToolResult{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	return t.handler(ctx, args)
}

var _ ToolDispatcher = (*ToolRegistry)(nil)
