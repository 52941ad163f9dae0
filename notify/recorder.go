// Package notify contains observer subscribers that report on events without
// touching machine state.
package notify

import (
	"sync"

	"github.com/petal-labs/vendwatch/bus"
	"github.com/petal-labs/vendwatch/event"
)

// Recorder captures the events it receives. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []event.Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Handle records e.
func (r *Recorder) Handle(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns the number of recorded events.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// CountKind returns the number of recorded events of kind k.
func (r *Recorder) CountKind(k event.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind() == k {
			n++
		}
	}
	return n
}

// CountsByKind returns recorded totals for every kind, including zeros.
func (r *Recorder) CountsByKind() map[event.Kind]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[event.Kind]int, len(event.Kinds()))
	for _, k := range event.Kinds() {
		counts[k] = 0
	}
	for _, e := range r.events {
		counts[e.Kind()]++
	}
	return counts
}

// Reset discards recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

var _ bus.Subscriber = (*Recorder)(nil)
