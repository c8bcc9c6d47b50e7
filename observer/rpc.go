package observer

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	conduit "github.com/conduitframe/conduit"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedHandler wraps a conduit.RPCHandler to emit a span per request.
// The span is the parent for all inner operations (LLM calls, tool
// executions) via context propagation.
type ObservedHandler struct {
	inner conduit.RPCHandler
	inst  *Instruments
}

// WrapHandler returns an instrumented RPC handler.
func WrapHandler(inner conduit.RPCHandler, inst *Instruments) *ObservedHandler {
	return &ObservedHandler{inner: inner, inst: inst}
}

func (o *ObservedHandler) Handle(ctx context.Context, raw json.RawMessage) json.RawMessage {
	method, batch := sniffMethod(raw)

	ctx, span := o.inst.Tracer.Start(ctx, "rpc.handle", trace.WithAttributes(
		AttrRPCMethod.String(method),
		AttrRPCBatch.Bool(batch),
	))
	defer span.End()
	start := time.Now()

	resp := o.inner.Handle(ctx, raw)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if bytes.Contains(resp, []byte(`"error"`)) {
		status = "error"
	}
	span.SetAttributes(AttrRPCStatus.String(status))

	o.inst.RPCRequests.Add(ctx, 1, metric.WithAttributes(
		AttrRPCMethod.String(method),
		AttrRPCStatus.String(status),
	))
	o.inst.RPCDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrRPCMethod.String(method),
	))

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("rpc request handled"))
	rec.AddAttributes(
		otellog.String("rpc.method", method),
		otellog.Bool("rpc.batch", batch),
		otellog.String("rpc.status", status),
		otellog.Float64("rpc.duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	return resp
}

// sniffMethod extracts the method name from a single request for span
// naming. Batches are labeled as such rather than enumerated.
func sniffMethod(raw json.RawMessage) (method string, batch bool) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return "batch", true
	}
	var probe struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.Method == "" {
		return "unknown", false
	}
	return probe.Method, false
}

// compile-time check
var _ conduit.RPCHandler = (*ObservedHandler)(nil)
