package bus

import (
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/petal-labs/vendwatch/event"
)

// MemBusConfig configures an in-memory event bus.
type MemBusConfig struct {
	// Logger receives debug output for each dispatch (default: slog.Default()).
	Logger *slog.Logger
}

// MemBus is a synchronous in-memory event bus. Publish invokes every handler
// registered for the event's kind on the caller's goroutine, in registration
// order, and returns only after the whole cascade of nested publishes has
// been dispatched.
type MemBus struct {
	mu     sync.RWMutex
	subs   map[event.Kind][]Subscriber
	logger *slog.Logger
	depth  atomic.Int32
}

// NewMemBus creates a new in-memory event bus with the given configuration.
func NewMemBus(config MemBusConfig) *MemBus {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MemBus{
		subs:   make(map[event.Kind][]Subscriber),
		logger: logger,
	}
}

// Publish delivers e to the subscribers registered for e.Kind(). The list is
// snapshotted when dispatch starts, so registrations changed by a handler
// take effect from the next Publish on. Publishing a kind nobody listens to
// is a no-op.
func (b *MemBus) Publish(e event.Event) {
	if e == nil {
		return
	}

	kind := e.Kind()

	b.mu.RLock()
	registered := b.subs[kind]
	snapshot := make([]Subscriber, len(registered))
	copy(snapshot, registered)
	b.mu.RUnlock()

	if len(snapshot) == 0 {
		return
	}

	depth := b.depth.Add(1)
	defer b.depth.Add(-1)

	b.logger.Debug("dispatching event",
		"kind", kind,
		"machine_id", e.MachineID(),
		"subscribers", len(snapshot),
		"depth", depth,
	)

	for _, sub := range snapshot {
		sub.Handle(e)
	}
}

// Subscribe appends sub to the subscriber list for kind.
// Subscribers must be comparable (typically pointers) so that Unsubscribe can
// find them; other values are rejected with an error log.
func (b *MemBus) Subscribe(kind event.Kind, sub Subscriber) {
	if sub == nil {
		return
	}
	if !isComparable(sub) {
		b.logger.Error("subscriber is not comparable and cannot be registered",
			"kind", kind,
			"type", reflect.TypeOf(sub).String(),
		)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[kind] = append(b.subs[kind], sub)
}

// Unsubscribe removes all registrations of sub under kind.
func (b *MemBus) Unsubscribe(kind event.Kind, sub Subscriber) {
	// A non-comparable value was never registered.
	if sub == nil || !isComparable(sub) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	registered, ok := b.subs[kind]
	if !ok {
		return
	}

	// Build a fresh slice so snapshots taken by in-flight dispatches are
	// never written to.
	kept := make([]Subscriber, 0, len(registered))
	for _, s := range registered {
		if s != sub {
			kept = append(kept, s)
		}
	}

	if len(kept) == 0 {
		delete(b.subs, kind)
		return
	}
	b.subs[kind] = kept
}

// SubscribeAll registers sub under every event kind.
func (b *MemBus) SubscribeAll(sub Subscriber) {
	for _, kind := range event.Kinds() {
		b.Subscribe(kind, sub)
	}
}

// UnsubscribeAll removes sub from every event kind.
func (b *MemBus) UnsubscribeAll(sub Subscriber) {
	for _, kind := range event.Kinds() {
		b.Unsubscribe(kind, sub)
	}
}

// SubscriberCount returns the number of registrations under kind.
func (b *MemBus) SubscriberCount(kind event.Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}

// isComparable reports whether sub can be compared with ==. A comparable type
// is not enough: a struct with an interface field panics on == when the field
// holds a slice, map or func.
func isComparable(sub Subscriber) (ok bool) {
	if !reflect.TypeOf(sub).Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_ = sub == sub
	return true
}

// Compile-time interface check.
var _ EventBus = (*MemBus)(nil)
