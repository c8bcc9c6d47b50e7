package conduit

import "context"

// Provider abstracts one AI completion back end. Implementations live in the
// provider subpackages, one per wire dialect. Exactly one provider variant
// is active per orchestration run; wire formats are never mixed within a
// transcript.
type Provider interface {
	// Chat sends a transcript (and optional tool definitions) and returns
	// the complete response. A response with no tool calls is terminal.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// Name returns the provider name (e.g. "openai", "azure", "anthropic").
	Name() string
}
