package conduit

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

// recordingRPC captures what the router forwards to the RPC path.
type recordingRPC struct {
	got  json.RawMessage
	resp json.RawMessage
}

func (r *recordingRPC) Handle(_ context.Context, raw json.RawMessage) json.RawMessage {
	r.got = raw
	if r.resp != nil {
		return r.resp
	}
	return json.RawMessage(`{"jsonrpc":"2.0","id":1,"result":{}}`)
}

func testRouter(rpc RPCHandler) *Router {
	p := &scriptedProvider{responses: []ChatResponse{{Content: "agent says hi"}}}
	runner := NewAgentRunner(staticFactory(p), NewToolRegistry())
	return NewRouter(rpc, runner, nil)
}

func TestRouteJSONRPC(t *testing.T) {
	rpc := &recordingRPC{}
	r := testRouter(rpc)

	out := r.Route(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`), "")
	if rpc.got == nil {
		t.Fatal("expected dispatch to the RPC handler")
	}
	if !strings.Contains(string(out), `"jsonrpc"`) {
		t.Errorf("unexpected output %s", out)
	}
}

func TestRouteBatch(t *testing.T) {
	rpc := &recordingRPC{resp: json.RawMessage(`[]`)}
	r := testRouter(rpc)

	r.Route(context.Background(), []byte(` [{"jsonrpc":"2.0","id":1,"method":"ping"}]`), "")
	if rpc.got == nil || rpc.got[0] != '[' {
		t.Fatalf("expected batch forwarded to RPC path, got %s", rpc.got)
	}
}

func TestRouteAgent(t *testing.T) {
	r := testRouter(&recordingRPC{})

	out := r.Route(context.Background(), []byte(`{"input":"hello","options":{}}`), "key")
	var resp AgentResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("unmarshal agent response: %v", err)
	}
	if resp.Response == nil || *resp.Response != "agent says hi" {
		t.Errorf("unexpected agent response %+v", resp)
	}
}

func TestRouteAgentByMode(t *testing.T) {
	r := testRouter(&recordingRPC{})

	out := r.Route(context.Background(), []byte(`{"mode":"chat","input":"hello"}`), "key")
	var resp AgentResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error != nil {
		t.Errorf("unexpected error %s", *resp.Error)
	}
}

func TestRouteMethodOnlyUpgrade(t *testing.T) {
	rpc := &recordingRPC{}
	r := testRouter(rpc)

	r.Route(context.Background(), []byte(`{"id":1,"method":"tools/list"}`), "")
	if rpc.got == nil {
		t.Fatal("expected upgraded dispatch to RPC path")
	}
	var upgraded map[string]json.RawMessage
	if err := json.Unmarshal(rpc.got, &upgraded); err != nil {
		t.Fatal(err)
	}
	if string(upgraded["jsonrpc"]) != `"2.0"` {
		t.Errorf("expected injected version marker, got %s", upgraded["jsonrpc"])
	}
	if string(upgraded["method"]) != `"tools/list"` {
		t.Errorf("original fields must survive the upgrade, got %s", upgraded["method"])
	}
}

func TestRouteInvalidJSON(t *testing.T) {
	r := testRouter(&recordingRPC{})

	out := r.Route(context.Background(), []byte(`{{{`), "")
	var resp AgentResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("error envelope must be valid JSON: %v", err)
	}
	if resp.ErrorType != "ParseError" || resp.ErrorCode != "INVALID_JSON" {
		t.Errorf("got %s/%s", resp.ErrorType, resp.ErrorCode)
	}
}

func TestRouteUnclassifiable(t *testing.T) {
	r := testRouter(&recordingRPC{})

	out := r.Route(context.Background(), []byte(`{"foo":"bar"}`), "")
	var resp AgentResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ErrorType != "ProtocolValidationError" || resp.ErrorCode != "UNCLASSIFIABLE_REQUEST" {
		t.Errorf("got %s/%s", resp.ErrorType, resp.ErrorCode)
	}
}

func TestRouteJSONRPCWinsOverAgentFields(t *testing.T) {
	// A payload carrying both jsonrpc and input is JSON-RPC.
	rpc := &recordingRPC{}
	r := testRouter(rpc)

	r.Route(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"ping","input":"x"}`), "")
	if rpc.got == nil {
		t.Error("expected RPC dispatch when jsonrpc field is present")
	}
}

// panickyRPC exercises the router's outer recovery.
type panickyRPC struct{}

func (panickyRPC) Handle(context.Context, json.RawMessage) json.RawMessage { panic("rpc exploded") }

func TestRoutePanicRecovery(t *testing.T) {
	r := testRouter(panickyRPC{})

	out := r.Route(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`), "")
	var resp AgentResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("panic recovery must yield a valid envelope: %v", err)
	}
	if resp.ErrorType != "InternalError" {
		t.Errorf("got %s", resp.ErrorType)
	}
}
