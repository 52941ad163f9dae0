package bus

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/petal-labs/vendwatch/event"
)

// timeLayout is fixed width so stored times order correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLiteStoreConfig configures the SQLite event store.
type SQLiteStoreConfig struct {
	// DSN is the database connection string.
	DSN string

	// RetentionAge deletes records older than this duration (0 = no age pruning).
	RetentionAge time.Duration

	// RetentionCount keeps at most this many records per run (0 = no count pruning).
	RetentionCount int

	// PruneInterval is how often to run pruning (default 1 hour).
	PruneInterval time.Duration
}

// SQLiteEventStore persists journal records to a SQLite database.
// It runs in WAL mode and, when retention is configured, prunes old records
// from a background goroutine.
type SQLiteEventStore struct {
	db   *sql.DB
	cfg  SQLiteStoreConfig
	stop chan struct{}
	done chan struct{}
	now  func() time.Time
}

// NewSQLiteEventStore opens (or creates) a SQLite event store.
func NewSQLiteEventStore(cfg SQLiteStoreConfig) (*SQLiteEventStore, error) {
	if cfg.PruneInterval == 0 {
		cfg.PruneInterval = time.Hour
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: set WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: create schema: %w", err)
	}

	s := &SQLiteEventStore{
		db:   db,
		cfg:  cfg,
		stop: make(chan struct{}),
		done: make(chan struct{}),
		now:  time.Now,
	}

	if cfg.RetentionAge > 0 || cfg.RetentionCount > 0 {
		go s.pruneLoop()
	} else {
		close(s.done)
	}

	return s, nil
}

// Append stores a record in the database.
func (s *SQLiteEventStore) Append(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (record_id, run_id, seq, kind, machine_id, quantity, time)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(),
		rec.RunID,
		rec.Seq,
		string(rec.Kind),
		rec.MachineID,
		rec.Quantity,
		rec.Time.UTC().Format(timeLayout),
	)
	if err != nil {
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return fmt.Errorf("sqlitestore: append %s: %w", rec.ID, ErrDuplicateRecord)
		}
		return fmt.Errorf("sqlitestore: append: %w", err)
	}
	return nil
}

// List returns records for a run, optionally filtered by afterSeq and limit.
func (s *SQLiteEventStore) List(ctx context.Context, runID string, afterSeq uint64, limit int) ([]Record, error) {
	query := `SELECT record_id, run_id, seq, kind, machine_id, quantity, time
	           FROM events WHERE run_id = ? AND seq > ? ORDER BY seq ASC`
	args := []any{runID, afterSeq}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// LatestSeq returns the highest Seq for a run (0 if no records).
func (s *SQLiteEventStore) LatestSeq(ctx context.Context, runID string) (uint64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM events WHERE run_id = ?`, runID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: latest seq: %w", err)
	}
	if !seq.Valid || seq.Int64 < 0 {
		return 0, nil
	}
	return uint64(seq.Int64), nil // #nosec G115 -- seq is never negative
}

// RunIDs returns distinct run IDs from the store.
func (s *SQLiteEventStore) RunIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT run_id FROM events ORDER BY run_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: run ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// KindCounts returns per-kind record totals for a run.
func (s *SQLiteEventStore) KindCounts(ctx context.Context, runID string) (map[event.Kind]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, COUNT(*) FROM events WHERE run_id = ? GROUP BY kind`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: kind counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[event.Kind]int)
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan kind count: %w", err)
		}
		counts[event.Kind(kind)] = n
	}
	return counts, rows.Err()
}

// ListMachine returns a run's records for one machine.
func (s *SQLiteEventStore) ListMachine(ctx context.Context, runID, machineID string, limit int) ([]Record, error) {
	query := `SELECT record_id, run_id, seq, kind, machine_id, quantity, time
	           FROM events WHERE run_id = ? AND machine_id = ? ORDER BY seq ASC`
	args := []any{runID, machineID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list machine: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Close stops the background pruner and closes the database connection.
func (s *SQLiteEventStore) Close() error {
	select {
	case <-s.stop:
		// Already closed.
	default:
		close(s.stop)
	}
	<-s.done
	return s.db.Close()
}

// Prune runs a single pruning pass. Exported for testing.
func (s *SQLiteEventStore) Prune(ctx context.Context) error {
	if s.cfg.RetentionAge > 0 {
		cutoff := s.now().UTC().Add(-s.cfg.RetentionAge).Format(timeLayout)
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM events WHERE time < ?`, cutoff,
		); err != nil {
			return fmt.Errorf("sqlitestore: prune by age: %w", err)
		}
	}

	if s.cfg.RetentionCount > 0 {
		runIDs, err := s.RunIDs(ctx)
		if err != nil {
			return fmt.Errorf("sqlitestore: prune: %w", err)
		}

		for _, runID := range runIDs {
			if _, err := s.db.ExecContext(ctx,
				`DELETE FROM events WHERE run_id = ? AND id NOT IN (
					SELECT id FROM events WHERE run_id = ? ORDER BY seq DESC LIMIT ?
				)`, runID, runID, s.cfg.RetentionCount,
			); err != nil {
				return fmt.Errorf("sqlitestore: prune by count for %s: %w", runID, err)
			}
		}
	}

	return nil
}

func (s *SQLiteEventStore) pruneLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			_ = s.Prune(context.Background())
		}
	}
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var (
			r        Record
			recordID string
			kind     string
			timeStr  string
		)
		if err := rows.Scan(
			&recordID,
			&r.RunID,
			&r.Seq,
			&kind,
			&r.MachineID,
			&r.Quantity,
			&timeStr,
		); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan record: %w", err)
		}

		id, err := uuid.Parse(recordID)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: parse record id %q: %w", recordID, err)
		}
		r.ID = id
		r.Kind = event.Kind(kind)

		t, err := time.Parse(timeLayout, timeStr)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: parse time %q: %w", timeStr, err)
		}
		r.Time = t

		records = append(records, r)
	}
	return records, rows.Err()
}

// Compile-time interface checks.
var (
	_ EventStore    = (*SQLiteEventStore)(nil)
	_ JournalReader = (*SQLiteEventStore)(nil)
)
