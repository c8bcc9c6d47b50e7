package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	conduit "github.com/conduitframe/conduit"
)

// methodFunc handles one dispatched JSON-RPC method.
type methodFunc func(ctx context.Context, req *request) *response

// Handler validates and dispatches MCP requests against the tool, resource,
// and prompt registries. It is stateless per call: the only "state" is the
// method name driving dispatch, so one Handler safely serves concurrent
// requests.
type Handler struct {
	name    string
	version string

	tools     conduit.ToolDispatcher
	resources *conduit.ResourceReader
	prompts   *conduit.PromptRegistry

	toolCache    *conduit.ToolListCache
	toolCacheKey string

	logger  *slog.Logger
	methods map[string]methodFunc
}

// Option configures a Handler.
type Option func(*Handler)

// WithResources wires a resource reader for the resources/* methods.
func WithResources(r *conduit.ResourceReader) Option {
	return func(h *Handler) { h.resources = r }
}

// WithPrompts wires a prompt registry for the prompts/* and
// completion/complete methods.
func WithPrompts(p *conduit.PromptRegistry) Option {
	return func(h *Handler) { h.prompts = p }
}

// WithToolListCache caches tools/list snapshots in the given shared cache
// under key. Useful when the dispatcher proxies an upstream endpoint whose
// definitions are expensive to enumerate.
func WithToolListCache(c *conduit.ToolListCache, key string) Option {
	return func(h *Handler) {
		h.toolCache = c
		h.toolCacheKey = key
	}
}

// WithLogger sets the structured logger (default: discard).
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// NewHandler creates an MCP handler exposing the given tool dispatcher
// under the supplied server identity.
func NewHandler(name, version string, tools conduit.ToolDispatcher, opts ...Option) *Handler {
	h := &Handler{
		name:    name,
		version: version,
		tools:   tools,
		logger:  slog.New(discardHandler{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.methods = map[string]methodFunc{
		"initialize":                h.handleInitialize,
		"initialized":               h.handleNoop,
		"notifications/initialized": h.handleNoop,
		"notifications/cancelled":   h.handleNoop,
		"ping":                      h.handleNoop,
		"tools/list":                h.handleToolsList,
		"tools/call":                h.handleToolsCall,
		"resources/list":            h.handleResourcesList,
		"resources/read":            h.handleResourcesRead,
		"resources/subscribe":       h.handleSubscribe,
		"resources/unsubscribe":     h.handleSubscribe,
		"prompts/list":              h.handlePromptsList,
		"prompts/get":               h.handlePromptsGet,
		"completion/complete":       h.handleComplete,
	}
	return h
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Handle processes one raw JSON-RPC message (single request or batch
// array) and returns the rendered response envelope. It implements
// conduit.RPCHandler and never panics: unhandled failures degrade to a
// −32603 internal error.
func (h *Handler) Handle(ctx context.Context, raw json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(raw))
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &batch); err != nil || len(batch) == 0 {
			return marshal(*errorResponse(nullID, errCodeParse, "parse error", nil))
		}
		responses := make([]response, 0, len(batch))
		for _, item := range batch {
			responses = append(responses, *h.handleSingle(ctx, item))
		}
		data, err := json.Marshal(responses)
		if err != nil {
			return marshal(*errorResponse(nullID, errCodeInternal, "internal error", nil))
		}
		return data
	}
	return marshal(*h.handleSingle(ctx, raw))
}

// nullID is the echoed id for requests whose id is absent or unparseable.
var nullID = json.RawMessage("null")

// handleSingle parses, validates, and dispatches one request.
func (h *Handler) handleSingle(ctx context.Context, raw json.RawMessage) (resp *response) {
	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(nullID, errCodeParse, "parse error: "+err.Error(), nil)
	}
	id := req.ID
	if len(id) == 0 {
		id = nullID
	}

	// Unhandled panics degrade to −32603 rather than propagating to the
	// transport.
	defer func() {
		if p := recover(); p != nil {
			h.logger.Error("handler panic", "method", req.Method, "panic", p)
			resp = errorResponse(id, errCodeInternal, "internal error", fmt.Sprintf("%v", p))
		}
	}()

	if errResp := validate(&req, id); errResp != nil {
		return errResp
	}

	fn, ok := h.methods[req.Method]
	if !ok {
		return errorResponse(id, errCodeMethodNotFound, "method not found: "+req.Method, nil)
	}

	req.ID = id
	return fn(ctx, &req)
}

// validate enforces the JSON-RPC 2.0 envelope shape: jsonrpc must equal
// "2.0", method must be a non-empty string, and params (if present) must be
// an object, array, or null.
func validate(req *request, id json.RawMessage) *response {
	if req.JSONRPC == nil || *req.JSONRPC != "2.0" {
		return errorResponse(id, errCodeInvalidRequest, `invalid request: "jsonrpc" must be "2.0"`, nil)
	}
	if req.Method == "" {
		return errorResponse(id, errCodeInvalidRequest, `invalid request: "method" must be a non-empty string`, nil)
	}
	if len(req.Params) > 0 {
		switch req.Params[0] {
		case '{', '[', 'n': // object, array, null
		default:
			return errorResponse(id, errCodeInvalidRequest, `invalid request: "params" must be an object, array, or null`, nil)
		}
	}
	return nil
}

// --- method handlers ---

func (h *Handler) handleInitialize(_ context.Context, req *request) *response {
	var params initializeParams
	if len(req.Params) > 0 {
		// Best effort: a malformed initialize payload still gets the
		// default negotiation rather than an error.
		_ = json.Unmarshal(req.Params, &params)
	}
	negotiated := params.ProtocolVersion
	if negotiated == "" {
		negotiated = ProtocolVersion
	}

	caps := serverCapabilities{}
	if h.tools != nil && len(h.tools.Definitions()) > 0 {
		caps.Tools = &capability{}
	}
	if h.resources != nil && len(h.resources.Descriptors()) > 0 {
		caps.Resources = &capability{}
	}
	if h.prompts != nil && len(h.prompts.Definitions()) > 0 {
		caps.Prompts = &capability{}
	}

	return resultResponse(req.ID, initializeResult{
		ProtocolVersion: negotiated,
		Capabilities:    caps,
		ServerInfo:      serverInfo{Name: h.name, Version: h.version},
	})
}

func (h *Handler) handleNoop(_ context.Context, req *request) *response {
	return resultResponse(req.ID, struct{}{})
}

func (h *Handler) handleToolsList(_ context.Context, req *request) *response {
	defs := h.toolDefinitions()
	out := make([]toolDef, len(defs))
	for i, d := range defs {
		schema := d.Parameters
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		out[i] = toolDef{Name: d.Name, Description: d.Description, InputSchema: schema}
	}
	return resultResponse(req.ID, toolsListResult{Tools: out})
}

// toolDefinitions returns the dispatcher's definitions, going through the
// shared cache when one is configured.
func (h *Handler) toolDefinitions() []conduit.ToolDefinition {
	if h.toolCache == nil {
		return h.tools.Definitions()
	}
	if defs, ok := h.toolCache.Get(h.toolCacheKey); ok {
		return defs
	}
	defs := h.tools.Definitions()
	h.toolCache.Put(h.toolCacheKey, defs)
	return defs
}

func (h *Handler) handleToolsCall(ctx context.Context, req *request) *response {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, errCodeInvalidParams, "invalid params: "+err.Error(), nil)
	}
	if params.Name == "" {
		return errorResponse(req.ID, errCodeInvalidParams, `invalid params: "name" is required`, nil)
	}

	result, err := h.tools.Execute(ctx, params.Name, params.Arguments)
	if err != nil {
		return toolCallError(req.ID, params.Name, err)
	}

	return resultResponse(req.ID, toolCallResult{
		Content: []textContent{{Type: "text", Text: result.Content}},
	})
}

// toolCallError maps a tool execution failure to its JSON-RPC error code.
// The tool name acts as the invoked "method", so an unknown name gets
// method-not-found semantics.
func toolCallError(id json.RawMessage, name string, err error) *response {
	if errors.Is(err, conduit.ErrUnknownTool) {
		return errorResponse(id, errCodeMethodNotFound, "unknown tool: "+name, nil)
	}
	switch conduit.KindOf(err) {
	case conduit.ToolErrorValidation:
		return errorResponse(id, errCodeInvalidParams, err.Error(), nil)
	case conduit.ToolErrorParse:
		return errorResponse(id, errCodeParse, err.Error(), nil)
	case conduit.ToolErrorNetwork, conduit.ToolErrorTimeout:
		return errorResponse(id, errCodeServer, err.Error(), nil)
	default:
		return errorResponse(id, errCodeServer, "tool execution failed: "+name,
			map[string]string{"cause": err.Error()})
	}
}

func (h *Handler) handleResourcesList(_ context.Context, req *request) *response {
	var out []resourceDef
	if h.resources != nil {
		descs := h.resources.Descriptors()
		out = make([]resourceDef, len(descs))
		for i, d := range descs {
			out[i] = resourceDef{URI: d.URI, Name: d.Name, Description: d.Description, MimeType: d.MimeType}
		}
	}
	return resultResponse(req.ID, resourcesListResult{Resources: out})
}

func (h *Handler) handleResourcesRead(ctx context.Context, req *request) *response {
	var params resourceReadParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, errCodeInvalidParams, "invalid params: "+err.Error(), nil)
	}
	if params.URI == "" {
		return errorResponse(req.ID, errCodeInvalidParams, `invalid params: "uri" is required`, nil)
	}
	if h.resources == nil {
		return errorResponse(req.ID, errCodeInvalidParams, "resource not found: "+params.URI, nil)
	}

	content, err := h.resources.Read(ctx, params.URI)
	if err != nil {
		if conduit.KindOf(err) == conduit.ToolErrorNetwork {
			return errorResponse(req.ID, errCodeServer, err.Error(), nil)
		}
		return errorResponse(req.ID, errCodeInvalidParams, err.Error(), nil)
	}

	return resultResponse(req.ID, resourceReadResult{
		Contents: []resourceContent{{URI: content.URI, MimeType: content.MimeType, Text: content.Text}},
	})
}

func (h *Handler) handleSubscribe(_ context.Context, req *request) *response {
	return errorResponse(req.ID, errCodeMethodNotFound,
		req.Method+" is not supported: push notifications cannot be delivered over a synchronous request/response transport", nil)
}

func (h *Handler) handlePromptsList(_ context.Context, req *request) *response {
	var out []promptDef
	if h.prompts != nil {
		defs := h.prompts.Definitions()
		out = make([]promptDef, len(defs))
		for i, d := range defs {
			args := make([]promptArg, len(d.Arguments))
			for j, a := range d.Arguments {
				args[j] = promptArg{Name: a.Name, Description: a.Description, Required: a.Required}
			}
			out[i] = promptDef{Name: d.Name, Description: d.Description, Arguments: args}
		}
	}
	return resultResponse(req.ID, promptsListResult{Prompts: out})
}

func (h *Handler) handlePromptsGet(_ context.Context, req *request) *response {
	var params promptGetParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, errCodeInvalidParams, "invalid params: "+err.Error(), nil)
	}
	if params.Name == "" {
		return errorResponse(req.ID, errCodeInvalidParams, `invalid params: "name" is required`, nil)
	}
	if h.prompts == nil {
		return errorResponse(req.ID, errCodeInvalidParams, "unknown prompt: "+params.Name, nil)
	}

	def, ok := h.prompts.Lookup(params.Name)
	if !ok {
		return errorResponse(req.ID, errCodeInvalidParams, "unknown prompt: "+params.Name, nil)
	}
	messages, err := h.prompts.Build(params.Name, params.Arguments)
	if err != nil {
		return errorResponse(req.ID, errCodeInvalidParams, err.Error(), nil)
	}

	out := make([]promptMessage, len(messages))
	for i, m := range messages {
		out[i] = promptMessage{Role: m.Role, Content: textContent{Type: "text", Text: m.Content}}
	}
	return resultResponse(req.ID, promptGetResult{Description: def.Description, Messages: out})
}

// maxCompletionValues caps completion/complete candidate lists.
const maxCompletionValues = 100

func (h *Handler) handleComplete(_ context.Context, req *request) *response {
	var params completeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, errCodeInvalidParams, "invalid params: "+err.Error(), nil)
	}
	if params.Ref.Type != "ref/prompt" {
		return errorResponse(req.ID, errCodeInvalidParams,
			fmt.Sprintf("unsupported completion ref type %q: only ref/prompt is supported", params.Ref.Type), nil)
	}
	var values []string
	if h.prompts != nil {
		values = h.prompts.Complete(params.Ref.Name, params.Argument.Name, params.Argument.Value)
	}
	total := len(values)
	hasMore := false
	if total > maxCompletionValues {
		values = values[:maxCompletionValues]
		hasMore = true
	}
	if values == nil {
		values = []string{}
	}
	return resultResponse(req.ID, completeResult{
		Completion: completionValues{Values: values, Total: total, HasMore: hasMore},
	})
}

// --- response helpers ---

func resultResponse(id json.RawMessage, result any) *response {
	return &response{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id json.RawMessage, code int, message string, data any) *response {
	return &response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message, Data: data}}
}

func marshal(resp response) json.RawMessage {
	data, err := json.Marshal(resp)
	if err != nil {
		return json.RawMessage(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`)
	}
	return data
}
