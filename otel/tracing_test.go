package otel_test

import (
	"testing"

	otelcodes "go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/petal-labs/vendwatch/bus"
	"github.com/petal-labs/vendwatch/event"
	"github.com/petal-labs/vendwatch/machine"
	vwotel "github.com/petal-labs/vendwatch/otel"
	"github.com/petal-labs/vendwatch/tracker"
)

// newTestTracer returns a tracer backed by an in-memory span exporter.
func newTestTracer() (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	return exporter, tp
}

func TestTracingHandler_SourceEventSpan(t *testing.T) {
	exporter, tp := newTestTracer()
	h := vwotel.NewTracingHandler(tp.Tracer("test"))

	h.Handle(event.MustSale(2, "001"))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "sale:001" {
		t.Errorf("span name = %q, want %q", span.Name, "sale:001")
	}
	if span.Status.Code != otelcodes.Ok {
		t.Errorf("span status = %v, want Ok", span.Status.Code)
	}

	found := false
	for _, attr := range span.Attributes {
		if string(attr.Key) == "vendwatch.quantity" && attr.Value.AsInt64() == 2 {
			found = true
		}
	}
	if !found {
		t.Error("expected vendwatch.quantity=2 attribute")
	}

	if !h.SourceSpanContext("001").IsValid() {
		t.Error("expected a recorded source span for machine 001")
	}
	if h.SourceSpanContext("002").IsValid() {
		t.Error("unexpected source span for machine 002")
	}
}

func TestTracingHandler_DerivedSpanParentedToSale(t *testing.T) {
	exporter, tp := newTestTracer()
	h := vwotel.NewTracingHandler(tp.Tracer("test"))

	b := bus.NewMemBus(bus.MemBusConfig{})
	// Subscribed before the tracker so the sale span exists when the
	// warning is derived.
	b.SubscribeAll(h)

	tr, err := tracker.New(tracker.Config{
		Bus:        b,
		Repository: machine.NewMemRepository(machine.New("001", 3)),
	})
	if err != nil {
		t.Fatalf("tracker.New: %v", err)
	}
	tr.Register()

	b.Publish(event.MustSale(1, "001"))

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}

	var sale, warning sdktrace.ReadOnlySpan
	for _, s := range spans.Snapshots() {
		switch s.Name() {
		case "sale:001":
			sale = s
		case "lowStockWarning:001":
			warning = s
		}
	}
	if sale == nil || warning == nil {
		t.Fatalf("missing spans: %v", spans)
	}
	if warning.Parent().SpanID() != sale.SpanContext().SpanID() {
		t.Error("warning span should be a child of the sale span")
	}
	if warning.SpanContext().TraceID() != sale.SpanContext().TraceID() {
		t.Error("warning span should share the sale trace")
	}
}

func TestTracingHandler_DerivedWithoutSourceIsRoot(t *testing.T) {
	exporter, tp := newTestTracer()
	h := vwotel.NewTracingHandler(tp.Tracer("test"))

	h.Handle(event.NewStockLevelOk("009"))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Parent.IsValid() {
		t.Error("derived span without a source should be a root span")
	}
}
