package openai

import (
	"encoding/json"

	conduit "github.com/conduitframe/conduit"
)

// BuildBody converts a neutral transcript and tool definitions into an
// OpenAI-format ChatRequest. System messages stay in the messages array as
// role:"system"; tool results become role:"tool" messages keyed by call id.
func BuildBody(messages []conduit.ChatMessage, tools []conduit.ToolDefinition, model string, params *conduit.GenerationParams) ChatRequest {
	msgs := make([]Message, 0, len(messages))

	for _, m := range messages {
		switch {
		case m.Role == "assistant" && len(m.ToolCalls) > 0:
			var tcs []ToolCallRequest
			for _, tc := range m.ToolCalls {
				tcs = append(tcs, ToolCallRequest{
					ID:   tc.ID,
					Type: "function",
					Function: FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Args),
					},
				})
			}
			msgs = append(msgs, Message{
				Role:      "assistant",
				Content:   m.Content,
				ToolCalls: tcs,
			})

		case m.Role == "tool":
			msgs = append(msgs, Message{
				Role:       "tool",
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})

		default:
			msgs = append(msgs, Message{Role: m.Role, Content: m.Content})
		}
	}

	req := ChatRequest{Model: model, Messages: msgs}

	if len(tools) > 0 {
		req.Tools = BuildToolDefs(tools)
	}
	if params != nil {
		req.Temperature = params.Temperature
		req.TopP = params.TopP
		if params.MaxTokens != nil {
			req.MaxTokens = *params.MaxTokens
		}
	}

	return req
}

// BuildToolDefs converts neutral ToolDefinitions to the OpenAI tool format.
// The name, description, and schema carry over verbatim.
func BuildToolDefs(tools []conduit.ToolDefinition) []Tool {
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{}`)
		}
		out = append(out, Tool{
			Type: "function",
			Function: Function{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
