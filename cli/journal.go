package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/vendwatch/bus"
	"github.com/petal-labs/vendwatch/event"
)

// NewJournalCmd creates the "journal" subcommand.
func NewJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List events recorded in a SQLite journal",
		Long:  "List recorded runs, or the events of one run when --run is given.",
		Args:  cobra.NoArgs,
		RunE:  runJournal,
	}

	cmd.Flags().String("journal", "", "SQLite DSN or file path of the journal (required)")
	cmd.Flags().String("run", "", "Run ID to list events for")
	cmd.Flags().Uint64("after", 0, "Only list events with a sequence number above this")
	cmd.Flags().Int("limit", 0, "Maximum number of events to list (0 = all)")
	cmd.Flags().String("machine", "", "Only list events for this machine")
	cmd.Flags().Bool("counts", false, "Print per-kind event totals for the run instead of the events")
	cmd.Flags().String("format", "text", "Output format: text | json")

	return cmd
}

type journalRecord struct {
	ID        string    `json:"id"`
	Seq       uint64    `json:"seq"`
	Kind      string    `json:"kind"`
	MachineID string    `json:"machine_id"`
	Quantity  int       `json:"quantity"`
	Time      time.Time `json:"time"`
}

func runJournal(cmd *cobra.Command, _ []string) error {
	dsn, _ := cmd.Flags().GetString("journal")
	runID, _ := cmd.Flags().GetString("run")
	after, _ := cmd.Flags().GetUint64("after")
	limit, _ := cmd.Flags().GetInt("limit")
	format, _ := cmd.Flags().GetString("format")
	machineID, _ := cmd.Flags().GetString("machine")
	counts, _ := cmd.Flags().GetBool("counts")
	out := cmd.OutOrStdout()

	if strings.TrimSpace(dsn) == "" {
		return exitError(exitValidation, "--journal is required")
	}
	if format != "text" && format != "json" {
		return exitError(exitValidation, "unknown format %q (use text or json)", format)
	}
	if limit < 0 {
		return exitError(exitValidation, "--limit must not be negative")
	}
	if (machineID != "" || counts) && runID == "" {
		return exitError(exitValidation, "--machine and --counts require --run")
	}
	if machineID != "" && after > 0 {
		return exitError(exitValidation, "--after cannot be combined with --machine")
	}
	if err := checkJournalFile(dsn); err != nil {
		return err
	}

	store, err := bus.NewSQLiteEventStore(bus.SQLiteStoreConfig{DSN: dsn})
	if err != nil {
		return exitError(exitRuntime, "opening journal: %v", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	if runID == "" {
		ids, err := store.RunIDs(ctx)
		if err != nil {
			return exitError(exitRuntime, "listing runs: %v", err)
		}
		return writeRunIDs(out, ids, format)
	}

	if counts {
		totals, err := store.KindCounts(ctx, runID)
		if err != nil {
			return exitError(exitRuntime, "counting events: %v", err)
		}
		return writeKindCounts(out, totals, format)
	}

	var records []bus.Record
	if machineID != "" {
		records, err = store.ListMachine(ctx, runID, machineID, limit)
	} else {
		records, err = store.List(ctx, runID, after, limit)
	}
	if err != nil {
		return exitError(exitRuntime, "listing events: %v", err)
	}
	return writeJournalRecords(out, records, format)
}

// checkJournalFile reports a missing journal for plain file paths. URI and
// in-memory DSNs are handed to the driver as is.
func checkJournalFile(dsn string) error {
	if strings.HasPrefix(dsn, "file:") || strings.HasPrefix(dsn, ":memory:") {
		return nil
	}
	if _, err := os.Stat(dsn); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return exitError(exitFileNotFound, "journal not found: %s", dsn)
		}
		return exitError(exitRuntime, "checking journal: %v", err)
	}
	return nil
}

func writeRunIDs(w io.Writer, ids []string, format string) error {
	if format == "json" {
		if ids == nil {
			ids = []string{}
		}
		return writeJSON(w, map[string]any{"runs": ids})
	}
	if len(ids) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
	return nil
}

func writeKindCounts(w io.Writer, totals map[event.Kind]int, format string) error {
	if format == "json" {
		out := make(map[string]int, len(totals))
		for _, kind := range event.Kinds() {
			out[kind.String()] = totals[kind]
		}
		return writeJSON(w, map[string]any{"counts": out})
	}
	for _, kind := range event.Kinds() {
		fmt.Fprintf(w, "%-16s %d\n", kind, totals[kind])
	}
	return nil
}

func writeJournalRecords(w io.Writer, records []bus.Record, format string) error {
	if format == "json" {
		out := make([]journalRecord, 0, len(records))
		for _, r := range records {
			out = append(out, journalRecord{
				ID:        r.ID.String(),
				Seq:       r.Seq,
				Kind:      r.Kind.String(),
				MachineID: r.MachineID,
				Quantity:  r.Quantity,
				Time:      r.Time,
			})
		}
		return writeJSON(w, map[string]any{"events": out})
	}

	if len(records) == 0 {
		fmt.Fprintln(w, "No events.")
		return nil
	}
	for _, r := range records {
		line := fmt.Sprintf("%4d  %s  %-16s %s", r.Seq, r.Time.Format(time.RFC3339), r.Kind, r.MachineID)
		if r.Quantity > 0 {
			line += fmt.Sprintf("  qty=%d", r.Quantity)
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return exitError(exitRuntime, "marshaling output: %v", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
