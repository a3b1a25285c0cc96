package envelope

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// StampTraceContext fills trace_id/span_id from the caller's active span
// context when the producer did not supply them, so signals emitted inside
// an instrumented request inherit its trace lineage.
func (e *SignalEnvelope) StampTraceContext(ctx context.Context) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return
	}
	if e.TraceID == "" {
		e.TraceID = sc.TraceID().String()
	}
	if e.SpanID == "" {
		e.SpanID = sc.SpanID().String()
	}
}
