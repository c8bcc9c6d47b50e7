// Package conduit is a request-routing and tool-execution orchestration
// engine for AI assistants. It sits between an inbound request — either a
// JSON-RPC 2.0 Model Context Protocol (MCP) message or a natural-language
// agent envelope — and one of several AI completion back ends, invoking
// locally registered tools in a bounded loop until the model produces a
// final answer.
//
// # Core pieces
//
// The root package defines the provider-neutral contracts and the engine:
//
//   - [Provider] — one AI completion back end (OpenAI-, Azure-, or
//     Anthropic-compatible wire dialect; see the provider subpackages)
//   - [ToolRegistry] — name→handler dispatch for tool execution
//   - [ResourceReader] — scheme-pluggable resource fetching by URI
//   - [PromptRegistry] — named prompt templates with argument completion
//   - [Orchestrator] — the completion → tool execution → completion loop
//   - [Router] — classifies raw request bytes as MCP or agent traffic
//
// The mcp subpackage implements the JSON-RPC 2.0 protocol handler. The
// provider subpackages implement the three wire dialects over plain
// net/http. The observer subpackage adds OpenTelemetry instrumentation.
//
// # Quick start
//
//	registry := conduit.NewToolRegistry()
//	registry.Register(weatherDef, weatherHandler)
//
//	p, _ := resolve.Provider(resolve.Config{
//		Provider: "openai",
//		APIKey:   key,
//		Model:    "gpt-4o",
//	})
//
//	orc := conduit.NewOrchestrator(p, registry)
//	result, err := orc.Run(ctx, []conduit.ChatMessage{
//		conduit.SystemMessage("You are a helpful assistant."),
//		conduit.UserMessage("What's the weather in Oslo?"),
//	})
//
// Every request is processed statelessly: transcripts, audit trails, and
// results live only for the duration of one call. The only shared mutable
// state is an optional TTL-bounded tool-list cache.
package conduit
