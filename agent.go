package conduit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// AgentOptions tune one agent-envelope request. Nil/zero fields fall back
// to the runner's configured defaults.
type AgentOptions struct {
	AutoExecuteTools   *bool    `json:"autoExecuteTools,omitempty"`
	MaxToolCalls       int      `json:"maxToolCalls,omitempty"`
	IncludeToolResults bool     `json:"includeToolResults,omitempty"`
	Temperature        *float64 `json:"temperature,omitempty"`
	MaxTokens          int      `json:"maxTokens,omitempty"`
	Model              string   `json:"model,omitempty"`
}

// AgentRequest is the natural-language request envelope.
type AgentRequest struct {
	Input   string       `json:"input"`
	Options AgentOptions `json:"options,omitempty"`
	// Mode is an alternative discriminator some clients send; its value is
	// not interpreted beyond classification.
	Mode string `json:"mode,omitempty"`
}

// AgentExecution is the audit section of a successful agent response.
type AgentExecution struct {
	ToolCalls     []ToolCallRecord `json:"toolCalls"`
	ToolsExecuted int              `json:"toolsExecuted"`
}

// AgentMetadata carries per-request accounting.
type AgentMetadata struct {
	TokensUsed int    `json:"tokensUsed"`
	DurationMS int64  `json:"duration"`
	Model      string `json:"model"`
}

// AgentResponse is the agent-envelope response. Exactly one of Response or
// Error is set; failures still produce a well-formed body, never a
// transport-level error.
type AgentResponse struct {
	Response  *string         `json:"response"`
	Execution *AgentExecution `json:"execution,omitempty"`
	Metadata  *AgentMetadata  `json:"metadata,omitempty"`
	Error     *string         `json:"error"`
	ErrorType string          `json:"errorType,omitempty"`
	ErrorCode string          `json:"errorCode,omitempty"`
	Details   string          `json:"details,omitempty"`
}

// ProviderFactory builds a Provider for one request. The model override
// comes from the request options (empty = configured default); the API key
// comes from the caller's auth header.
type ProviderFactory func(model, apiKey string) (Provider, error)

// AgentRunner handles agent-envelope requests: it authenticates, builds a
// provider, runs the orchestration loop, and renders the response envelope.
type AgentRunner struct {
	factory      ProviderFactory
	tools        ToolDispatcher
	systemPrompt string
	defaults     AgentOptions
	tracer       Tracer
	logger       *slog.Logger
}

// AgentRunnerOption configures an AgentRunner.
type AgentRunnerOption func(*AgentRunner)

// WithSystemPrompt prepends a system message to every run.
func WithSystemPrompt(prompt string) AgentRunnerOption {
	return func(r *AgentRunner) { r.systemPrompt = prompt }
}

// WithAgentDefaults sets the fallback options applied when a request omits
// them.
func WithAgentDefaults(opts AgentOptions) AgentRunnerOption {
	return func(r *AgentRunner) { r.defaults = opts }
}

// WithAgentTracer enables span emission around each run.
func WithAgentTracer(t Tracer) AgentRunnerOption {
	return func(r *AgentRunner) { r.tracer = t }
}

// WithAgentLogger sets the structured logger (default: discard).
func WithAgentLogger(l *slog.Logger) AgentRunnerOption {
	return func(r *AgentRunner) { r.logger = l }
}

// NewAgentRunner creates a runner over the given provider factory and tool
// dispatcher.
func NewAgentRunner(factory ProviderFactory, tools ToolDispatcher, opts ...AgentRunnerOption) *AgentRunner {
	r := &AgentRunner{
		factory: factory,
		tools:   tools,
		logger:  nopLogger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle processes one agent request. apiKey is the provider credential the
// caller supplied (auth header); an empty key fails with AuthenticationError.
// Handle never returns an error: every failure is rendered into the
// response envelope.
func (r *AgentRunner) Handle(ctx context.Context, req AgentRequest, apiKey string) AgentResponse {
	start := time.Now()

	if req.Input == "" {
		return agentError(nil, "ValidationError", "MISSING_INPUT",
			"the request is missing the required 'input' field")
	}
	if apiKey == "" {
		return agentError(nil, "AuthenticationError", "MISSING_API_KEY",
			"no AI provider API key was supplied in the request's auth header")
	}

	opts := r.mergeOptions(req.Options)

	provider, err := r.factory(opts.Model, apiKey)
	if err != nil {
		return agentFailure(err)
	}

	var params GenerationParams
	params.Temperature = opts.Temperature
	if opts.MaxTokens > 0 {
		params.MaxTokens = &opts.MaxTokens
	}

	orcOpts := []OrchestratorOption{
		WithGenerationParams(&params),
		WithLogger(r.logger),
	}
	if opts.MaxToolCalls > 0 {
		orcOpts = append(orcOpts, WithMaxIterations(opts.MaxToolCalls))
	}
	if opts.AutoExecuteTools != nil {
		orcOpts = append(orcOpts, WithAutoExecute(*opts.AutoExecuteTools))
	}
	if r.tracer != nil {
		orcOpts = append(orcOpts, WithTracer(r.tracer))
	}

	var messages []ChatMessage
	if r.systemPrompt != "" {
		messages = append(messages, SystemMessage(r.systemPrompt))
	}
	messages = append(messages, UserMessage(req.Input))

	runCtx := ctx
	var span Span
	if r.tracer != nil {
		runCtx, span = r.tracer.Start(ctx, "agent.run",
			StringAttr("provider", provider.Name()),
			IntAttr("input_length", len(req.Input)))
		defer span.End()
	}

	result, err := NewOrchestrator(provider, r.tools, orcOpts...).Run(runCtx, messages)
	if err != nil {
		if span != nil {
			span.Error(err)
		}
		r.logger.Error("agent run failed", "provider", provider.Name(), "error", err)
		return agentFailure(err)
	}

	records := result.ToolCalls
	if !opts.IncludeToolResults {
		records = stripResults(records)
	}

	text := result.Text
	r.logger.Info("agent run completed",
		"provider", provider.Name(),
		"iterations", result.Iterations,
		"tools_executed", len(result.ToolCalls),
		"tokens", result.Usage.Total(),
		"duration", time.Since(start))

	return AgentResponse{
		Response: &text,
		Execution: &AgentExecution{
			ToolCalls:     records,
			ToolsExecuted: len(result.ToolCalls),
		},
		Metadata: &AgentMetadata{
			TokensUsed: result.Usage.Total(),
			DurationMS: time.Since(start).Milliseconds(),
			Model:      opts.Model,
		},
	}
}

// mergeOptions overlays request options onto the runner defaults.
func (r *AgentRunner) mergeOptions(req AgentOptions) AgentOptions {
	merged := r.defaults
	if req.AutoExecuteTools != nil {
		merged.AutoExecuteTools = req.AutoExecuteTools
	}
	if req.MaxToolCalls > 0 {
		merged.MaxToolCalls = req.MaxToolCalls
	}
	if req.IncludeToolResults {
		merged.IncludeToolResults = true
	}
	if req.Temperature != nil {
		merged.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		merged.MaxTokens = req.MaxTokens
	}
	if req.Model != "" {
		merged.Model = req.Model
	}
	return merged
}

// stripResults drops result/error bodies from the audit trail, keeping the
// call names and success flags.
func stripResults(records []ToolCallRecord) []ToolCallRecord {
	out := make([]ToolCallRecord, len(records))
	for i, rec := range records {
		rec.Result = ""
		rec.Error = ""
		rec.Arguments = nil
		out[i] = rec
	}
	return out
}

// agentFailure maps an orchestration error onto the response envelope's
// error taxonomy.
func agentFailure(err error) AgentResponse {
	var httpErr *ErrHTTP
	if errors.As(err, &httpErr) {
		return agentError(err, "UpstreamProviderError", "", httpErr.Body)
	}
	var provErr *ErrProvider
	if errors.As(err, &provErr) {
		return agentError(err, "UpstreamProviderError", "", provErr.Message)
	}
	var authErr *ErrAuth
	if errors.As(err, &authErr) {
		return agentError(err, "AuthenticationError", authErr.Code, authErr.Message)
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return agentError(err, "ToolExecutionError", "", toolErr.Message)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return agentError(err, "InternalError", "CANCELLED", "the request was cancelled before completion")
	}
	return agentError(err, "InternalError", "", "")
}

// agentError renders an error response envelope. When err is nil, details
// doubles as the error message.
func agentError(err error, errorType, errorCode, details string) AgentResponse {
	msg := details
	if err != nil {
		msg = err.Error()
	}
	return AgentResponse{
		Error:     &msg,
		ErrorType: errorType,
		ErrorCode: errorCode,
		Details:   details,
	}
}
