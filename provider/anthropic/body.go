package anthropic

import (
	"encoding/json"
	"strings"

	conduit "github.com/conduitframe/conduit"
)

// defaultMaxTokens is sent when the caller does not set a limit; the
// messages API rejects requests without one.
const defaultMaxTokens = 4096

// BuildBody converts a provider-neutral conversation into the messages API
// format. System messages are lifted out of the transcript into the
// top-level system field, and consecutive tool results are merged into a
// single user message of tool_result blocks, which is how the API expects
// the results of a parallel tool batch to come back.
func BuildBody(messages []conduit.ChatMessage, tools []conduit.ToolDefinition, model string, params *conduit.GenerationParams) MessagesRequest {
	req := MessagesRequest{
		Model:     model,
		MaxTokens: defaultMaxTokens,
	}
	if params != nil {
		req.Temperature = params.Temperature
		req.TopP = params.TopP
		if params.MaxTokens != nil {
			req.MaxTokens = *params.MaxTokens
		}
	}

	var system []string
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			req.Messages = append(req.Messages, assistantMessage(m))
		case "tool":
			block := ContentBlock{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   m.Content,
			}
			last := len(req.Messages) - 1
			if last >= 0 && req.Messages[last].Role == "user" && isToolResultMessage(req.Messages[last]) {
				req.Messages[last].Content = append(req.Messages[last].Content, block)
			} else {
				req.Messages = append(req.Messages, Message{Role: "user", Content: []ContentBlock{block}})
			}
		default:
			req.Messages = append(req.Messages, Message{
				Role:    "user",
				Content: []ContentBlock{{Type: "text", Text: m.Content}},
			})
		}
	}
	req.System = strings.Join(system, "\n\n")

	for _, t := range tools {
		schema := t.Parameters
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		req.Tools = append(req.Tools, Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return req
}

func assistantMessage(m conduit.ChatMessage) Message {
	msg := Message{Role: "assistant"}
	if m.Content != "" {
		msg.Content = append(msg.Content, ContentBlock{Type: "text", Text: m.Content})
	}
	for _, tc := range m.ToolCalls {
		input := tc.Args
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		msg.Content = append(msg.Content, ContentBlock{
			Type:  "tool_use",
			ID:    tc.ID,
			Name:  tc.Name,
			Input: input,
		})
	}
	if len(msg.Content) == 0 {
		msg.Content = []ContentBlock{{Type: "text", Text: ""}}
	}
	return msg
}

func isToolResultMessage(m Message) bool {
	return len(m.Content) > 0 && m.Content[0].Type == "tool_result"
}
