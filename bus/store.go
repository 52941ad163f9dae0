package bus

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/petal-labs/vendwatch/event"
)

// ErrDuplicateRecord is returned when a record with the same ID was already appended.
var ErrDuplicateRecord = errors.New("bus: duplicate record")

// Record is a journaled event. The journal is an audit trail of what was
// published during a run; it is never used to rebuild machine state.
type Record struct {
	// ID uniquely identifies the record.
	ID uuid.UUID

	// RunID groups records written during one process run.
	RunID string

	// Seq is a monotonic sequence number per run (1-indexed).
	Seq uint64

	// Kind is the event kind.
	Kind event.Kind

	// MachineID is the machine the event concerns.
	MachineID string

	// Quantity is the sold or refilled unit count (0 for derived events).
	Quantity int

	// Time is when the record was written.
	Time time.Time
}

// NewRecord builds a journal record for e.
func NewRecord(runID string, seq uint64, e event.Event, at time.Time) Record {
	return Record{
		ID:        uuid.New(),
		RunID:     runID,
		Seq:       seq,
		Kind:      e.Kind(),
		MachineID: e.MachineID(),
		Quantity:  event.Quantity(e),
		Time:      at,
	}
}

// EventStore persists journal records.
type EventStore interface {
	// Append stores a record.
	Append(ctx context.Context, rec Record) error

	// List returns records for a run, optionally filtered.
	// afterSeq: return records with Seq > afterSeq (0 means all)
	// limit: max records to return (0 means no limit)
	List(ctx context.Context, runID string, afterSeq uint64, limit int) ([]Record, error)

	// LatestSeq returns the highest Seq for a run (0 if no records).
	LatestSeq(ctx context.Context, runID string) (uint64, error)
}

// JournalReader is the reporting side of a journal.
type JournalReader interface {
	// RunIDs returns every run with at least one record, sorted.
	RunIDs(ctx context.Context) ([]string, error)

	// KindCounts returns how many records of each kind a run holds. Kinds
	// with no records are omitted.
	KindCounts(ctx context.Context, runID string) (map[event.Kind]int, error)

	// ListMachine returns a run's records for one machine in seq order
	// (limit 0 means no limit).
	ListMachine(ctx context.Context, runID, machineID string, limit int) ([]Record, error)
}
