package main

import (
	"context"
	"encoding/json"
	"time"

	conduit "github.com/conduitframe/conduit"
)

// registerBuiltinTools registers the tools the binary ships with. Hosts
// embedding conduit as a library register their own instead.
func registerBuiltinTools(r *conduit.ToolRegistry) {
	r.Register(conduit.ToolDefinition{
		Name:        "echo",
		Description: "Echo the input text back. Useful for connectivity checks.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"text": {"type": "string", "description": "Text to echo back"}
			},
			"required": ["text"]
		}`),
	}, echoTool)

	r.Register(conduit.ToolDefinition{
		Name:        "current_time",
		Description: "Get the current time in RFC 3339 format, optionally in a named timezone.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"timezone": {"type": "string", "description": "IANA timezone name, e.g. Asia/Jakarta. Defaults to UTC."}
			}
		}`),
	}, currentTimeTool)
}

func echoTool(_ context.Context, args json.RawMessage) (conduit.ToolResult, error) {
	var params struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return conduit.ToolResult{}, conduit.ParseError(err)
	}
	if params.Text == "" {
		return conduit.ToolResult{}, conduit.ValidationError("text is required")
	}
	return conduit.ToolResult{Content: params.Text}, nil
}

func currentTimeTool(_ context.Context, args json.RawMessage) (conduit.ToolResult, error) {
	var params struct {
		Timezone string `json:"timezone"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return conduit.ToolResult{}, conduit.ParseError(err)
	}

	loc := time.UTC
	if params.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(params.Timezone)
		if err != nil {
			return conduit.ToolResult{}, conduit.ValidationError("unknown timezone: %s", params.Timezone)
		}
	}
	return conduit.ToolResult{Content: time.Now().In(loc).Format(time.RFC3339)}, nil
}
