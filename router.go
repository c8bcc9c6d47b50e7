package conduit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
)

// RPCHandler processes one raw JSON-RPC message (single or batch) and
// returns the rendered response envelope. The mcp package's Handler
// implements this.
type RPCHandler interface {
	Handle(ctx context.Context, raw json.RawMessage) json.RawMessage
}

// Router is the entry point for inbound payloads. It classifies raw bytes
// as JSON-RPC (MCP) or agent traffic, repairs recoverable shapes, and
// dispatches. Classification is deterministic, so there are no retries, and
// Route always produces exactly one response envelope — it never panics or
// errors out to the transport layer.
type Router struct {
	rpc    RPCHandler
	agent  *AgentRunner
	logger *slog.Logger
}

// NewRouter creates a router over the given MCP handler and agent runner.
// A nil logger discards output.
func NewRouter(rpc RPCHandler, agent *AgentRunner, logger *slog.Logger) *Router {
	if logger == nil {
		logger = nopLogger
	}
	return &Router{rpc: rpc, agent: agent, logger: logger}
}

// Route classifies and dispatches one inbound payload. apiKey is the AI
// provider credential from the request's auth header, used only on the
// agent path.
func (r *Router) Route(ctx context.Context, raw []byte, apiKey string) (out []byte) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("router panic", "panic", p)
			out = marshalAgentError(agentError(nil, "InternalError", "", "internal error"))
		}
	}()

	trimmed := bytes.TrimSpace(raw)

	// Batch arrays are JSON-RPC by definition.
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return r.rpc.Handle(ctx, trimmed)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		r.logger.Warn("unparseable request", "error", err)
		return marshalAgentError(agentError(nil, "ParseError", "INVALID_JSON",
			"the request body is not valid JSON"))
	}

	switch {
	case hasField(probe, "jsonrpc"):
		return r.rpc.Handle(ctx, trimmed)

	case hasField(probe, "mode"), hasField(probe, "input"):
		var req AgentRequest
		if err := json.Unmarshal(trimmed, &req); err != nil {
			return marshalAgentError(agentError(nil, "ParseError", "INVALID_JSON",
				"the agent request envelope could not be decoded: "+err.Error()))
		}
		resp := r.agent.Handle(ctx, req, apiKey)
		return marshalAgentError(resp)

	case hasField(probe, "method"):
		// Recoverable: a JSON-RPC request missing its version marker.
		// Inject it and dispatch as MCP (tolerant upgrade).
		upgraded := make(map[string]json.RawMessage, len(probe)+1)
		for k, v := range probe {
			upgraded[k] = v
		}
		upgraded["jsonrpc"] = json.RawMessage(`"2.0"`)
		data, err := json.Marshal(upgraded)
		if err != nil {
			return marshalAgentError(agentError(nil, "InternalError", "", "internal error"))
		}
		r.logger.Debug("upgraded bare method request to JSON-RPC 2.0")
		return r.rpc.Handle(ctx, data)

	default:
		return marshalAgentError(agentError(nil, "ProtocolValidationError", "UNCLASSIFIABLE_REQUEST",
			`unable to classify request: JSON-RPC requests require a "jsonrpc" (or "method") field, agent requests require an "input" field`))
	}
}

// hasField reports whether the probe object carries the key at all
// (including with a null value).
func hasField(probe map[string]json.RawMessage, key string) bool {
	_, ok := probe[key]
	return ok
}

// marshalAgentError renders an AgentResponse, degrading to a minimal
// hand-built envelope if marshalling ever fails.
func marshalAgentError(resp AgentResponse) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		return []byte(`{"response":null,"error":"internal error","errorType":"InternalError"}`)
	}
	return data
}
