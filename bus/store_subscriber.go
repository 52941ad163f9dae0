package bus

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/petal-labs/vendwatch/event"
)

// StoreSubscriber journals every event it receives to an EventStore.
// Append failures are logged and never interrupt dispatch.
type StoreSubscriber struct {
	store  EventStore
	runID  string
	seq    atomic.Uint64
	now    func() time.Time
	logger *slog.Logger
}

// NewStoreSubscriber creates a StoreSubscriber that writes records for runID.
func NewStoreSubscriber(store EventStore, runID string, logger *slog.Logger) *StoreSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSubscriber{
		store:  store,
		runID:  runID,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// RunID returns the run the subscriber records under.
func (s *StoreSubscriber) RunID() string {
	return s.runID
}

// Handle persists a single event to the store.
func (s *StoreSubscriber) Handle(e event.Event) {
	rec := NewRecord(s.runID, s.seq.Add(1), e, s.now())
	if err := s.store.Append(context.Background(), rec); err != nil {
		s.logger.Error("failed to journal event",
			"run_id", rec.RunID,
			"kind", rec.Kind,
			"machine_id", rec.MachineID,
			"seq", rec.Seq,
			"error", err,
		)
	}
}

var _ Subscriber = (*StoreSubscriber)(nil)
