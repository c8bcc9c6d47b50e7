package conduit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultMaxIterations bounds the completion → tool execution cycle when no
// override is configured.
const DefaultMaxIterations = 10

// MaxIterationsMessage is the sentinel text returned when the loop hits its
// iteration cap without the model producing a terminal answer. This is a
// reported condition, not a failure: the audit trail still carries every
// executed call.
const MaxIterationsMessage = "Maximum tool iterations reached without a final answer."

// maxToolResultMessageLen is the maximum rune length for a tool result
// appended to the transcript during the loop. Results beyond this are
// truncated with a marker so the model knows content was trimmed.
const maxToolResultMessageLen = 100_000

// maxParallelDispatch caps concurrent tool call goroutines within one batch
// to avoid overwhelming external services.
const maxParallelDispatch = 10

// nopLogger discards all output. Used when WithLogger is not set.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// RunResult is the outcome of one orchestration run.
type RunResult struct {
	// Text is the model's final answer, or MaxIterationsMessage when the
	// iteration cap was hit.
	Text string
	// ToolCalls is the audit trail of every executed call, in the order
	// the model issued them.
	ToolCalls []ToolCallRecord
	// ProposedCalls holds the unexecuted calls from the first tool-bearing
	// response when auto-execute is disabled (inspection mode).
	ProposedCalls []ToolCall
	// Iterations counts completion calls made.
	Iterations int
	// MaxIterationsReached reports whether the loop hit its cap.
	MaxIterationsReached bool
	Usage                Usage
}

// Orchestrator drives the bounded completion → tool execution loop. One
// Run call owns its transcript and audit trail exclusively; an Orchestrator
// itself is safe to share across requests.
type Orchestrator struct {
	provider      Provider
	tools         ToolDispatcher
	maxIterations int
	autoExecute   bool
	params        *GenerationParams
	tracer        Tracer
	logger        *slog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithMaxIterations sets the loop iteration cap (default 10).
func WithMaxIterations(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

// WithAutoExecute controls whether requested tool calls are executed.
// When disabled, the loop terminates at the first tool-bearing response
// and returns the proposed calls as data (inspection mode).
func WithAutoExecute(enabled bool) OrchestratorOption {
	return func(o *Orchestrator) { o.autoExecute = enabled }
}

// WithGenerationParams attaches sampling parameters to every completion call.
func WithGenerationParams(p *GenerationParams) OrchestratorOption {
	return func(o *Orchestrator) { o.params = p }
}

// WithTracer enables span emission for iterations and tool batches.
func WithTracer(t Tracer) OrchestratorOption {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithLogger sets the structured logger (default: discard).
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator creates an orchestrator over the given provider and tool
// dispatcher. Auto-execute is on by default.
func NewOrchestrator(p Provider, tools ToolDispatcher, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		provider:      p,
		tools:         tools,
		maxIterations: DefaultMaxIterations,
		autoExecute:   true,
		logger:        nopLogger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the loop until the model returns a response with no tool
// calls, the iteration cap is hit, or ctx is cancelled. The messages slice
// is treated as the initial transcript; Run appends to its own copy and
// never mutates shared state.
//
// Provider failures abort the run entirely (no partial answer) and are
// returned as-is. Per-tool-call failures never abort the run: they are
// recorded in the audit trail with Success=false and fed back into the
// transcript as an error-shaped tool result so the model can react.
func (o *Orchestrator) Run(ctx context.Context, messages []ChatMessage) (RunResult, error) {
	var result RunResult

	transcript := make([]ChatMessage, len(messages))
	copy(transcript, messages)

	tools := o.tools.Definitions()

	for i := 0; i < o.maxIterations; i++ {
		iterCtx := ctx
		var iterSpan Span
		if o.tracer != nil {
			iterCtx, iterSpan = o.tracer.Start(ctx, "orchestrate.iteration",
				IntAttr("iteration", i),
				IntAttr("tool_count", len(tools)))
		}
		endIter := func() {
			if iterSpan != nil {
				iterSpan.End()
			}
		}

		req := ChatRequest{Messages: transcript, Tools: tools, GenerationParams: o.params}
		resp, err := o.provider.Chat(iterCtx, req)
		result.Iterations++
		if err != nil {
			if iterSpan != nil {
				iterSpan.Error(err)
			}
			endIter()
			return result, err
		}
		result.Usage.Add(resp.Usage)

		// No tool calls — terminal answer.
		if len(resp.ToolCalls) == 0 {
			endIter()
			result.Text = resp.Content
			return result, nil
		}

		calls := normalizeCalls(resp.ToolCalls)

		// Inspection mode: surface the proposal without executing.
		if !o.autoExecute {
			endIter()
			result.Text = resp.Content
			result.ProposedCalls = calls
			return result, nil
		}

		if iterSpan != nil {
			iterSpan.SetAttr(IntAttr("tool_calls", len(calls)))
		}

		// Append the assistant's proposal before any results.
		transcript = append(transcript, ChatMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: calls,
		})

		// Execute the batch concurrently, then re-serialize results into
		// the original call order before touching the transcript. Providers
		// expect tool results appended in the order the calls were issued.
		outcomes := o.executeBatch(iterCtx, calls)
		for j, tc := range calls {
			out := outcomes[j]
			record := ToolCallRecord{Tool: tc.Name, Arguments: tc.Args, Success: !out.failed}
			msg := out.content
			if out.failed {
				record.Error = out.content
				msg = "error: " + out.content
			} else {
				record.Result = out.content
			}
			result.ToolCalls = append(result.ToolCalls, record)
			if n := len([]rune(msg)); n > maxToolResultMessageLen {
				msg = truncateStr(msg, maxToolResultMessageLen) + "\n\n[output truncated]"
			}
			transcript = append(transcript, ToolResultMessage(tc.ID, msg))
		}
		endIter()

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}
	}

	o.logger.Warn("max iterations reached",
		"provider", o.provider.Name(),
		"iterations", o.maxIterations,
		"tools_executed", len(result.ToolCalls))
	result.Text = MaxIterationsMessage
	result.MaxIterationsReached = true
	return result, nil
}

// normalizeCalls repairs provider tool calls before execution: malformed
// JSON argument payloads degrade to an empty-argument object rather than
// aborting the turn, and missing call ids get synthesized so result
// correlation still works.
func normalizeCalls(calls []ToolCall) []ToolCall {
	out := make([]ToolCall, len(calls))
	for i, tc := range calls {
		if len(tc.Args) == 0 || !json.Valid(tc.Args) {
			tc.Args = json.RawMessage(`{}`)
		}
		if tc.ID == "" {
			tc.ID = NewID()
		}
		out[i] = tc
	}
	return out
}

// callOutcome is the result of a single tool call within a batch.
type callOutcome struct {
	content  string
	failed   bool
	duration time.Duration
}

// executeBatch runs all calls from one completion turn and returns outcomes
// indexed by the original call order. Single calls run inline; larger
// batches use a bounded worker pool. One failing call never aborts its
// siblings.
func (o *Orchestrator) executeBatch(ctx context.Context, calls []ToolCall) []callOutcome {
	if len(calls) == 1 {
		return []callOutcome{o.executeOne(ctx, calls[0])}
	}

	type workItem struct {
		idx int
		tc  ToolCall
	}
	workCh := make(chan workItem, len(calls))
	for i, tc := range calls {
		workCh <- workItem{idx: i, tc: tc}
	}
	close(workCh)

	outcomes := make([]callOutcome, len(calls))
	var mu sync.Mutex

	numWorkers := min(len(calls), maxParallelDispatch)
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for range numWorkers {
		go func() {
			defer wg.Done()
			for w := range workCh {
				var out callOutcome
				if err := ctx.Err(); err != nil {
					out = callOutcome{content: err.Error(), failed: true}
				} else {
					out = o.executeOne(ctx, w.tc)
				}
				mu.Lock()
				outcomes[w.idx] = out
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return outcomes
}

// executeOne dispatches a single call with panic recovery. A panicking tool
// becomes a failed record instead of crashing the request.
func (o *Orchestrator) executeOne(ctx context.Context, tc ToolCall) (out callOutcome) {
	start := time.Now()
	defer func() {
		out.duration = time.Since(start)
		if p := recover(); p != nil {
			out = callOutcome{content: fmt.Sprintf("tool %q panic: %v", tc.Name, p), failed: true, duration: time.Since(start)}
		}
	}()

	result, err := o.tools.Execute(ctx, tc.Name, tc.Args)
	if err != nil {
		o.logger.Warn("tool call failed", "tool", tc.Name, "kind", KindOf(err).String(), "error", err)
		return callOutcome{content: err.Error(), failed: true}
	}
	return callOutcome{content: result.Content}
}

// truncateStr truncates a string to n runes.
func truncateStr(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
