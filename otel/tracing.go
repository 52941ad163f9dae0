// Package otel provides OpenTelemetry integration for vendwatch events.
package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/vendwatch/bus"
	"github.com/petal-labs/vendwatch/event"
)

// TracingHandler translates vendwatch events into OpenTelemetry spans.
// Every event becomes a short span. Derived events are parented to the span
// of the most recent sale or refill for the same machine, so a trace shows
// which sale caused which warning.
type TracingHandler struct {
	tracer trace.Tracer

	mu      sync.RWMutex
	sources map[string]trace.SpanContext // machineID -> last sale/refill span
}

// NewTracingHandler creates a new TracingHandler that uses the given tracer
// to create spans from events.
func NewTracingHandler(tracer trace.Tracer) *TracingHandler {
	return &TracingHandler{
		tracer:  tracer,
		sources: make(map[string]trace.SpanContext),
	}
}

// Handle records a span for e.
func (h *TracingHandler) Handle(e event.Event) {
	attrs := []attribute.KeyValue{
		attribute.String("vendwatch.kind", string(e.Kind())),
		attribute.String("vendwatch.machine_id", e.MachineID()),
	}

	spanName := string(e.Kind()) + ":" + e.MachineID()

	if !e.Kind().Derived() {
		attrs = append(attrs, attribute.Int("vendwatch.quantity", event.Quantity(e)))
		_, span := h.tracer.Start(context.Background(), spanName, trace.WithAttributes(attrs...))
		span.SetStatus(codes.Ok, "")
		span.End()

		h.mu.Lock()
		h.sources[e.MachineID()] = span.SpanContext()
		h.mu.Unlock()
		return
	}

	parent := context.Background()
	if sc := h.SourceSpanContext(e.MachineID()); sc.IsValid() {
		parent = trace.ContextWithSpanContext(parent, sc)
	}

	attrs = append(attrs, attribute.Bool("vendwatch.derived", true))
	_, span := h.tracer.Start(parent, spanName, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Ok, "")
	span.End()
}

// SourceSpanContext returns the SpanContext of the last sale or refill span
// recorded for machineID. Returns an empty SpanContext if none was recorded.
func (h *TracingHandler) SourceSpanContext(machineID string) trace.SpanContext {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sources[machineID]
}

var _ bus.Subscriber = (*TracingHandler)(nil)
