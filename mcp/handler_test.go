package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	conduit "github.com/conduitframe/conduit"
)

// rpcResponse mirrors the wire shape for decoding in assertions.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	} `json:"error"`
}

func decode(t *testing.T, raw json.RawMessage) rpcResponse {
	t.Helper()
	var resp rpcResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal response %s: %v", raw, err)
	}
	return resp
}

func testHandler(t *testing.T, opts ...Option) *Handler {
	t.Helper()
	tools := conduit.NewToolRegistry()
	tools.Register(conduit.ToolDefinition{
		Name:        "greet",
		Description: "Say hello",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"name":{"type":"string"}}}`),
	}, func(_ context.Context, args json.RawMessage) (conduit.ToolResult, error) {
		var p struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return conduit.ToolResult{}, conduit.ParseError(err)
		}
		if p.Name == "" {
			return conduit.ToolResult{}, conduit.ValidationError("name is required")
		}
		return conduit.ToolResult{Content: "hello " + p.Name}, nil
	})
	tools.Register(conduit.ToolDefinition{Name: "bare"}, func(_ context.Context, _ json.RawMessage) (conduit.ToolResult, error) {
		return conduit.ToolResult{Content: "ok"}, nil
	})
	return NewHandler("test-server", "1.0.0", tools, opts...)
}

func handle(t *testing.T, h *Handler, raw string) rpcResponse {
	t.Helper()
	return decode(t, h.Handle(context.Background(), json.RawMessage(raw)))
}

// ---------------------------------------------------------------------------
// Envelope validation
// ---------------------------------------------------------------------------

func TestHandleParseError(t *testing.T) {
	resp := handle(t, testHandler(t), `{not json`)
	if resp.Error == nil || resp.Error.Code != -32700 {
		t.Fatalf("expected -32700, got %+v", resp.Error)
	}
	if string(resp.ID) != "null" {
		t.Errorf("expected null id, got %s", resp.ID)
	}
}

func TestHandleInvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing jsonrpc", `{"id":1,"method":"ping"}`},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`},
		{"empty method", `{"jsonrpc":"2.0","id":1,"method":""}`},
		{"params not structured", `{"jsonrpc":"2.0","id":1,"method":"ping","params":"string"}`},
		{"params number", `{"jsonrpc":"2.0","id":1,"method":"ping","params":42}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := handle(t, testHandler(t), tt.raw)
			if resp.Error == nil || resp.Error.Code != -32600 {
				t.Fatalf("expected -32600, got %+v", resp.Error)
			}
			if string(resp.ID) != "1" {
				t.Errorf("expected id 1 echoed, got %s", resp.ID)
			}
		})
	}
}

func TestHandleMethodNotFound(t *testing.T) {
	resp := handle(t, testHandler(t), `{"jsonrpc":"2.0","id":7,"method":"tools/destroy"}`)
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("expected -32601, got %+v", resp.Error)
	}
}

func TestHandleRequestWithoutID(t *testing.T) {
	// Requests lacking an id still get a response, with id null.
	resp := handle(t, testHandler(t), `{"jsonrpc":"2.0","method":"ping"}`)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if string(resp.ID) != "null" {
		t.Errorf("expected null id, got %s", resp.ID)
	}
}

func TestHandleStringID(t *testing.T) {
	resp := handle(t, testHandler(t), `{"jsonrpc":"2.0","id":"abc-1","method":"ping"}`)
	if string(resp.ID) != `"abc-1"` {
		t.Errorf("expected string id echoed, got %s", resp.ID)
	}
}

// ---------------------------------------------------------------------------
// Lifecycle methods
// ---------------------------------------------------------------------------

func TestInitialize(t *testing.T) {
	resp := handle(t, testHandler(t),
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","clientInfo":{"name":"client","version":"1.0"}}}`)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}

	var result struct {
		ProtocolVersion string `json:"protocolVersion"`
		Capabilities    struct {
			Tools     *struct{} `json:"tools"`
			Resources *struct{} `json:"resources"`
			Prompts   *struct{} `json:"prompts"`
		} `json:"capabilities"`
		ServerInfo struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatal(err)
	}
	if result.ProtocolVersion != "2025-06-18" {
		t.Errorf("expected client version echoed, got %s", result.ProtocolVersion)
	}
	if result.ServerInfo.Name != "test-server" {
		t.Errorf("unexpected server name %s", result.ServerInfo.Name)
	}
	if result.Capabilities.Tools == nil {
		t.Error("expected tools capability advertised")
	}
	if result.Capabilities.Resources != nil {
		t.Error("expected no resources capability with empty reader")
	}
}

func TestInitializeDefaultVersion(t *testing.T) {
	resp := handle(t, testHandler(t), `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	var result struct {
		ProtocolVersion string `json:"protocolVersion"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatal(err)
	}
	if result.ProtocolVersion != ProtocolVersion {
		t.Errorf("expected %s, got %s", ProtocolVersion, result.ProtocolVersion)
	}
}

func TestInitializeIdempotent(t *testing.T) {
	h := testHandler(t)
	first := handle(t, h, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	second := handle(t, h, `{"jsonrpc":"2.0","id":2,"method":"initialize","params":{}}`)
	if first.Error != nil || second.Error != nil {
		t.Fatal("initialize should succeed every time")
	}
	if string(first.Result) != string(second.Result) {
		t.Error("repeated initialize should return identical results")
	}
}

func TestNotificationsAreNoops(t *testing.T) {
	for _, method := range []string{"initialized", "notifications/initialized", "notifications/cancelled", "ping"} {
		resp := handle(t, testHandler(t), `{"jsonrpc":"2.0","id":1,"method":"`+method+`"}`)
		if resp.Error != nil {
			t.Errorf("%s: unexpected error %+v", method, resp.Error)
		}
		if string(resp.Result) != "{}" {
			t.Errorf("%s: expected empty object result, got %s", method, resp.Result)
		}
	}
}

// ---------------------------------------------------------------------------
// Tools
// ---------------------------------------------------------------------------

func TestToolsList(t *testing.T) {
	resp := handle(t, testHandler(t), `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	var result struct {
		Tools []struct {
			Name        string          `json:"name"`
			InputSchema json.RawMessage `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(result.Tools))
	}
	if result.Tools[0].Name != "greet" {
		t.Errorf("expected registration order preserved, got %s first", result.Tools[0].Name)
	}
	// A tool registered without a schema gets the minimal valid one.
	if string(result.Tools[1].InputSchema) != `{"type":"object"}` {
		t.Errorf("expected default schema, got %s", result.Tools[1].InputSchema)
	}
}

func TestToolsCall(t *testing.T) {
	resp := handle(t, testHandler(t),
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"greet","arguments":{"name":"world"}}}`)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Content) != 1 || result.Content[0].Text != "hello world" {
		t.Errorf("unexpected content %+v", result.Content)
	}
}

func TestToolsCallErrors(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantCode int
	}{
		{"unknown tool", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"nonexistent"}}`, -32601},
		{"missing name", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{}}`, -32602},
		{"validation failure", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"greet","arguments":{}}}`, -32602},
		{"malformed params", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":123}}`, -32602},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := handle(t, testHandler(t), tt.raw)
			if resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Fatalf("expected %d, got %+v", tt.wantCode, resp.Error)
			}
		})
	}
}

func TestToolsCallNetworkError(t *testing.T) {
	tools := conduit.NewToolRegistry()
	tools.Register(conduit.ToolDefinition{Name: "flaky"}, func(_ context.Context, _ json.RawMessage) (conduit.ToolResult, error) {
		return conduit.ToolResult{}, conduit.NetworkError(context.DeadlineExceeded)
	})
	h := NewHandler("t", "1", tools)

	resp := handle(t, h, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"flaky"}}`)
	if resp.Error == nil || resp.Error.Code != -32000 {
		t.Fatalf("expected -32000 for network failure, got %+v", resp.Error)
	}
}

func TestToolsCallUnexpectedErrorCarriesCause(t *testing.T) {
	tools := conduit.NewToolRegistry()
	tools.Register(conduit.ToolDefinition{Name: "broken"}, func(_ context.Context, _ json.RawMessage) (conduit.ToolResult, error) {
		return conduit.ToolResult{}, context.Canceled
	})
	h := NewHandler("t", "1", tools)

	resp := handle(t, h, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"broken"}}`)
	if resp.Error == nil || resp.Error.Code != -32000 {
		t.Fatalf("expected -32000, got %+v", resp.Error)
	}
	if !strings.Contains(string(resp.Error.Data), "context canceled") {
		t.Errorf("expected cause in error data, got %s", resp.Error.Data)
	}
}

func TestToolsListUsesCache(t *testing.T) {
	cache := conduit.NewToolListCache(conduit.DefaultToolListTTL, 8)
	h := testHandler(t, WithToolListCache(cache, "upstream-a"))

	handle(t, h, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	if cache.Len() != 1 {
		t.Fatalf("expected 1 cache entry after first list, got %d", cache.Len())
	}
	if _, ok := cache.Get("upstream-a"); !ok {
		t.Error("expected snapshot cached under the endpoint key")
	}
}

// ---------------------------------------------------------------------------
// Resources
// ---------------------------------------------------------------------------

func TestResourcesListEmpty(t *testing.T) {
	resp := handle(t, testHandler(t), `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var result struct {
		Resources []json.RawMessage `json:"resources"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Resources) != 0 {
		t.Errorf("expected empty list, got %d", len(result.Resources))
	}
}

func TestResourcesRead(t *testing.T) {
	reader := conduit.NewResourceReader()
	reader.AddDescriptor(conduit.ResourceDescriptor{URI: "docs://readme", Name: "Readme", MimeType: "text/markdown"})
	reader.RegisterFetcher("docs", conduit.FetcherFunc(func(_ context.Context, uri string) (conduit.ResourceContent, error) {
		return conduit.ResourceContent{Text: "# hello"}, nil
	}))
	h := testHandler(t, WithResources(reader))

	resp := handle(t, h, `{"jsonrpc":"2.0","id":1,"method":"resources/read","params":{"uri":"docs://readme"}}`)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var result struct {
		Contents []struct {
			URI      string `json:"uri"`
			MimeType string `json:"mimeType"`
			Text     string `json:"text"`
		} `json:"contents"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Contents) != 1 || result.Contents[0].Text != "# hello" {
		t.Fatalf("unexpected contents %+v", result.Contents)
	}
	if result.Contents[0].MimeType != "text/markdown" {
		t.Errorf("expected descriptor mime type fallback, got %s", result.Contents[0].MimeType)
	}
}

func TestResourcesReadErrors(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantCode int
	}{
		{"missing uri", `{"jsonrpc":"2.0","id":1,"method":"resources/read","params":{}}`, -32602},
		{"unknown uri", `{"jsonrpc":"2.0","id":1,"method":"resources/read","params":{"uri":"docs://nope"}}`, -32602},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := handle(t, testHandler(t), tt.raw)
			if resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Fatalf("expected %d, got %+v", tt.wantCode, resp.Error)
			}
		})
	}
}

func TestSubscribeRejected(t *testing.T) {
	for _, method := range []string{"resources/subscribe", "resources/unsubscribe"} {
		resp := handle(t, testHandler(t), `{"jsonrpc":"2.0","id":1,"method":"`+method+`","params":{"uri":"docs://x"}}`)
		if resp.Error == nil || resp.Error.Code != -32601 {
			t.Errorf("%s: expected -32601, got %+v", method, resp.Error)
		}
	}
}

// ---------------------------------------------------------------------------
// Prompts
// ---------------------------------------------------------------------------

func promptHandler(t *testing.T) *Handler {
	t.Helper()
	prompts := conduit.NewPromptRegistry()
	prompts.Register(conduit.PromptDefinition{
		Name:        "summarize",
		Description: "Summarize a document",
		Arguments: []conduit.PromptArgument{
			{Name: "style", Required: true},
		},
	}, func(args map[string]string) ([]conduit.ChatMessage, error) {
		return []conduit.ChatMessage{conduit.UserMessage("summarize in style " + args["style"])}, nil
	}, map[string][]string{
		"style": {"bullet", "brief", "formal"},
	})
	return testHandler(t, WithPrompts(prompts))
}

func TestPromptsListAndGet(t *testing.T) {
	h := promptHandler(t)

	list := handle(t, h, `{"jsonrpc":"2.0","id":1,"method":"prompts/list"}`)
	var listResult struct {
		Prompts []struct {
			Name string `json:"name"`
		} `json:"prompts"`
	}
	if err := json.Unmarshal(list.Result, &listResult); err != nil {
		t.Fatal(err)
	}
	if len(listResult.Prompts) != 1 || listResult.Prompts[0].Name != "summarize" {
		t.Fatalf("unexpected prompts %+v", listResult.Prompts)
	}

	get := handle(t, h, `{"jsonrpc":"2.0","id":2,"method":"prompts/get","params":{"name":"summarize","arguments":{"style":"brief"}}}`)
	if get.Error != nil {
		t.Fatalf("unexpected error: %+v", get.Error)
	}
	var getResult struct {
		Messages []struct {
			Role    string `json:"role"`
			Content struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(get.Result, &getResult); err != nil {
		t.Fatal(err)
	}
	if len(getResult.Messages) != 1 || getResult.Messages[0].Content.Text != "summarize in style brief" {
		t.Fatalf("unexpected messages %+v", getResult.Messages)
	}
}

func TestPromptsGetErrors(t *testing.T) {
	h := promptHandler(t)
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown prompt", `{"jsonrpc":"2.0","id":1,"method":"prompts/get","params":{"name":"nope"}}`},
		{"missing required arg", `{"jsonrpc":"2.0","id":1,"method":"prompts/get","params":{"name":"summarize"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := handle(t, h, tt.raw)
			if resp.Error == nil || resp.Error.Code != -32602 {
				t.Fatalf("expected -32602, got %+v", resp.Error)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Completion
// ---------------------------------------------------------------------------

func TestCompletionComplete(t *testing.T) {
	h := promptHandler(t)
	resp := handle(t, h,
		`{"jsonrpc":"2.0","id":1,"method":"completion/complete","params":{"ref":{"type":"ref/prompt","name":"summarize"},"argument":{"name":"style","value":"b"}}}`)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var result struct {
		Completion struct {
			Values  []string `json:"values"`
			Total   int      `json:"total"`
			HasMore bool     `json:"hasMore"`
		} `json:"completion"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Completion.Values) != 2 {
		t.Fatalf("expected [bullet brief], got %v", result.Completion.Values)
	}
	if result.Completion.Total != 2 || result.Completion.HasMore {
		t.Errorf("unexpected pagination fields %+v", result.Completion)
	}
}

func TestCompletionNoMatches(t *testing.T) {
	h := promptHandler(t)
	resp := handle(t, h,
		`{"jsonrpc":"2.0","id":1,"method":"completion/complete","params":{"ref":{"type":"ref/prompt","name":"summarize"},"argument":{"name":"style","value":"zzz"}}}`)
	var result struct {
		Completion struct {
			Values []string `json:"values"`
		} `json:"completion"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatal(err)
	}
	// Empty candidate lists serialize as [], not null.
	if result.Completion.Values == nil || len(result.Completion.Values) != 0 {
		t.Errorf("expected empty values array, got %v", result.Completion.Values)
	}
	if !strings.Contains(string(resp.Result), `"values":[]`) {
		t.Errorf("expected literal empty array, got %s", resp.Result)
	}
}

func TestCompletionUnsupportedRef(t *testing.T) {
	resp := handle(t, promptHandler(t),
		`{"jsonrpc":"2.0","id":1,"method":"completion/complete","params":{"ref":{"type":"ref/resource","uri":"docs://x"},"argument":{"name":"a","value":""}}}`)
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Fatalf("expected -32602, got %+v", resp.Error)
	}
}

// ---------------------------------------------------------------------------
// Batches
// ---------------------------------------------------------------------------

func TestHandleBatch(t *testing.T) {
	h := testHandler(t)
	raw := `[
		{"jsonrpc":"2.0","id":1,"method":"ping"},
		{"jsonrpc":"2.0","id":2,"method":"tools/list"},
		{"jsonrpc":"2.0","id":3,"method":"no/such"}
	]`
	out := h.Handle(context.Background(), json.RawMessage(raw))

	var responses []rpcResponse
	if err := json.Unmarshal(out, &responses); err != nil {
		t.Fatalf("expected array response, got %s", out)
	}
	if len(responses) != 3 {
		t.Fatalf("expected 3 responses, got %d", len(responses))
	}
	if responses[0].Error != nil || responses[1].Error != nil {
		t.Error("first two batch items should succeed")
	}
	if responses[2].Error == nil || responses[2].Error.Code != -32601 {
		t.Errorf("third item should be method-not-found, got %+v", responses[2].Error)
	}
}

func TestHandleEmptyBatch(t *testing.T) {
	resp := handle(t, testHandler(t), `[]`)
	if resp.Error == nil || resp.Error.Code != -32700 {
		t.Fatalf("expected -32700 for empty batch, got %+v", resp.Error)
	}
}

// ---------------------------------------------------------------------------
// Panic isolation
// ---------------------------------------------------------------------------

func TestHandlerPanicBecomesInternalError(t *testing.T) {
	tools := conduit.NewToolRegistry()
	tools.Register(conduit.ToolDefinition{Name: "bomb"}, func(_ context.Context, _ json.RawMessage) (conduit.ToolResult, error) {
		panic("boom")
	})
	h := NewHandler("t", "1", panickyDispatcher{tools})

	resp := handle(t, h, `{"jsonrpc":"2.0","id":9,"method":"tools/list"}`)
	if resp.Error == nil || resp.Error.Code != -32603 {
		t.Fatalf("expected -32603, got %+v", resp.Error)
	}
	if string(resp.ID) != "9" {
		t.Errorf("expected id echoed through panic recovery, got %s", resp.ID)
	}
}

// panickyDispatcher panics on Definitions to exercise handler recovery.
type panickyDispatcher struct {
	conduit.ToolDispatcher
}

func (panickyDispatcher) Definitions() []conduit.ToolDefinition { panic("definitions exploded") }
