package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/petal-labs/vendwatch/bus"
	"github.com/petal-labs/vendwatch/event"
)

// Metric names recorded by MetricsHandler.
const (
	MetricEvents        = "vendwatch.events"
	MetricUnitsSold     = "vendwatch.units.sold"
	MetricUnitsRefilled = "vendwatch.units.refilled"
	MetricTransitions   = "vendwatch.stock.transitions"
)

// MetricsHandler translates vendwatch events into OpenTelemetry metrics.
// Subscribe it to every kind with bus.MemBus.SubscribeAll.
type MetricsHandler struct {
	events        metric.Int64Counter
	unitsSold     metric.Int64Counter
	unitsRefilled metric.Int64Counter
	transitions   metric.Int64Counter
}

// NewMetricsHandler creates a MetricsHandler that uses the given meter to create
// instruments for recording stock metrics.
func NewMetricsHandler(meter metric.Meter) (*MetricsHandler, error) {
	events, err := meter.Int64Counter(MetricEvents,
		metric.WithDescription("Number of events dispatched on the bus"),
	)
	if err != nil {
		return nil, err
	}

	sold, err := meter.Int64Counter(MetricUnitsSold,
		metric.WithDescription("Units sold across machines"),
		metric.WithUnit("{unit}"),
	)
	if err != nil {
		return nil, err
	}

	refilled, err := meter.Int64Counter(MetricUnitsRefilled,
		metric.WithDescription("Units refilled across machines"),
		metric.WithUnit("{unit}"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter(MetricTransitions,
		metric.WithDescription("Number of stock threshold crossings"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		events:        events,
		unitsSold:     sold,
		unitsRefilled: refilled,
		transitions:   transitions,
	}, nil
}

// Handle records the metrics for e.
func (h *MetricsHandler) Handle(e event.Event) {
	ctx := context.Background()
	machineAttr := attribute.String("machine_id", e.MachineID())
	kindAttr := attribute.String("kind", string(e.Kind()))

	h.events.Add(ctx, 1, metric.WithAttributes(kindAttr, machineAttr))

	switch ev := e.(type) {
	case event.Sale:
		h.unitsSold.Add(ctx, int64(ev.SoldQuantity()), metric.WithAttributes(machineAttr))
	case event.Refill:
		h.unitsRefilled.Add(ctx, int64(ev.RefillQuantity()), metric.WithAttributes(machineAttr))
	default:
		h.transitions.Add(ctx, 1, metric.WithAttributes(kindAttr))
	}
}

var _ bus.Subscriber = (*MetricsHandler)(nil)
