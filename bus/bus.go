// Package bus provides the synchronous publish/subscribe core of vendwatch.
// Producers publish sale and refill events, the stock tracker derives
// threshold events from them, and observers such as loggers, journals and
// telemetry handlers subscribe to whichever kinds they report on.
package bus

import "github.com/petal-labs/vendwatch/event"

// Subscriber receives events for the kinds it is registered under.
type Subscriber interface {
	// Handle processes a single event. It runs on the publisher's call stack
	// and may publish further events.
	Handle(e event.Event)
}

// Publisher can publish events to subscribers. It is the narrow view of the
// bus handed to components that only emit events.
type Publisher interface {
	Publish(e event.Event)
}

// EventBus distributes events to subscribers keyed by event kind.
type EventBus interface {
	Publisher

	// Subscribe appends sub to the subscriber list for kind. Registering the
	// same subscriber twice yields two deliveries per event.
	Subscribe(kind event.Kind, sub Subscriber)

	// Unsubscribe removes every registration of sub under kind. It is a no-op
	// when sub is not registered.
	Unsubscribe(kind event.Kind, sub Subscriber)
}

// HandlerFunc adapts a function to the Subscriber interface. It is used by
// pointer so that Unsubscribe can match it by identity.
type HandlerFunc struct {
	fn func(event.Event)
}

// NewHandlerFunc wraps fn as a Subscriber.
func NewHandlerFunc(fn func(event.Event)) *HandlerFunc {
	return &HandlerFunc{fn: fn}
}

// Handle calls the wrapped function.
func (h *HandlerFunc) Handle(e event.Event) {
	if h.fn != nil {
		h.fn(e)
	}
}

// VisitorSubscriber dispatches each event to the matching method of an
// event.Visitor.
type VisitorSubscriber struct {
	v event.Visitor
}

// NewVisitorSubscriber wraps v as a Subscriber.
func NewVisitorSubscriber(v event.Visitor) *VisitorSubscriber {
	return &VisitorSubscriber{v: v}
}

// Handle visits e.
func (s *VisitorSubscriber) Handle(e event.Event) {
	event.Visit(e, s.v)
}

// Compile-time interface checks.
var (
	_ Subscriber = (*HandlerFunc)(nil)
	_ Subscriber = (*VisitorSubscriber)(nil)
)
