package openai

import (
	"encoding/json"

	conduit "github.com/conduitframe/conduit"
)

// ParseResponse converts an OpenAI-format ChatResponse to a neutral
// ChatResponse, extracting content, tool calls, and usage from choices[0].
func ParseResponse(resp ChatResponse) (conduit.ChatResponse, error) {
	var out conduit.ChatResponse

	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		if choice.Message != nil {
			out.Content = choice.Message.Content
			out.ToolCalls = ParseToolCalls(choice.Message.ToolCalls)
		}
	}

	if resp.Usage != nil {
		out.Usage = conduit.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}

	return out, nil
}

// ParseToolCalls converts OpenAI tool call requests to neutral ToolCalls.
// OpenAI returns function.arguments as a JSON string; invalid payloads
// degrade to an empty-argument object rather than failing the turn.
func ParseToolCalls(tcs []ToolCallRequest) []conduit.ToolCall {
	if len(tcs) == 0 {
		return nil
	}

	out := make([]conduit.ToolCall, 0, len(tcs))
	for _, tc := range tcs {
		args := json.RawMessage(tc.Function.Arguments)
		if len(args) == 0 || !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		out = append(out, conduit.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return out
}
