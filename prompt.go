package conduit

import (
	"fmt"
	"strings"
)

// PromptArgument describes one argument of a prompt template.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// PromptDefinition describes a named prompt template.
type PromptDefinition struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptBuilder renders a prompt's messages from its argument values.
// Concrete builders are deployment-specific and registered by the host.
type PromptBuilder func(args map[string]string) ([]ChatMessage, error)

// PromptRegistry maps prompt names to definitions, builders, and completion
// candidates. Populated at process start; immutable afterwards.
type PromptRegistry struct {
	order   []string
	prompts map[string]registeredPrompt
}

type registeredPrompt struct {
	def         PromptDefinition
	builder     PromptBuilder
	completions map[string][]string
}

// NewPromptRegistry creates an empty registry.
func NewPromptRegistry() *PromptRegistry {
	return &PromptRegistry{prompts: make(map[string]registeredPrompt)}
}

// Register adds a prompt with its builder. The completions map holds
// candidate values per argument name for completion/complete; it may be nil.
// Duplicate names panic, matching ToolRegistry semantics.
func (r *PromptRegistry) Register(def PromptDefinition, builder PromptBuilder, completions map[string][]string) {
	if def.Name == "" {
		panic("conduit: prompt definition missing name")
	}
	if _, exists := r.prompts[def.Name]; exists {
		panic(fmt.Sprintf("conduit: duplicate prompt %q", def.Name))
	}
	r.order = append(r.order, def.Name)
	r.prompts[def.Name] = registeredPrompt{def: def, builder: builder, completions: completions}
}

// Definitions returns all prompt definitions in registration order.
func (r *PromptRegistry) Definitions() []PromptDefinition {
	defs := make([]PromptDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.prompts[name].def)
	}
	return defs
}

// Lookup returns the definition for name, if registered.
func (r *PromptRegistry) Lookup(name string) (PromptDefinition, bool) {
	p, ok := r.prompts[name]
	return p.def, ok
}

// Build renders the named prompt's messages. Required arguments missing
// from args produce a validation-class error; an unknown name reports
// whether it was found so callers can map the two cases differently.
func (r *PromptRegistry) Build(name string, args map[string]string) ([]ChatMessage, error) {
	p, ok := r.prompts[name]
	if !ok {
		return nil, fmt.Errorf("unknown prompt: %s", name)
	}
	for _, a := range p.def.Arguments {
		if a.Required {
			if v, present := args[a.Name]; !present || v == "" {
				return nil, ValidationError("prompt %s: missing required argument %q", name, a.Name)
			}
		}
	}
	return p.builder(args)
}

// Complete returns candidate values for one argument of the named prompt,
// filtered by prefix. Unknown prompts or arguments degrade to an empty list.
func (r *PromptRegistry) Complete(name, arg, prefix string) []string {
	p, ok := r.prompts[name]
	if !ok {
		return nil
	}
	var out []string
	for _, v := range p.completions[arg] {
		if strings.HasPrefix(v, prefix) {
			out = append(out, v)
		}
	}
	return out
}
