package anthropic

import (
	"encoding/json"
	"strings"

	conduit "github.com/conduitframe/conduit"
)

// ParseResponse maps a messages API response onto the provider-neutral
// shape. Text blocks concatenate into Content; tool_use blocks become tool
// calls.
func ParseResponse(resp MessagesResponse) (conduit.ChatResponse, error) {
	var out conduit.ChatResponse
	var text []string
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text = append(text, block.Text)
		case "tool_use":
			args := block.Input
			if len(args) == 0 || !json.Valid(args) {
				args = json.RawMessage(`{}`)
			}
			out.ToolCalls = append(out.ToolCalls, conduit.ToolCall{
				ID:   block.ID,
				Name: block.Name,
				Args: args,
			})
		}
	}
	out.Content = strings.Join(text, "")
	out.Usage = conduit.Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	return out, nil
}
