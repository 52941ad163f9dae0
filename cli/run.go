package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/petal-labs/vendwatch/bus"
	"github.com/petal-labs/vendwatch/config"
	"github.com/petal-labs/vendwatch/event"
	"github.com/petal-labs/vendwatch/machine"
	"github.com/petal-labs/vendwatch/notify"
	vwotel "github.com/petal-labs/vendwatch/otel"
	"github.com/petal-labs/vendwatch/simulate"
	"github.com/petal-labs/vendwatch/tracker"
)

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate vending machine traffic and track stock levels",
		Args:  cobra.NoArgs,
		RunE:  runRun,
	}

	cmd.Flags().StringP("config", "c", "", "Path to config file (default: ./vendwatch.yaml, then ~/.vendwatch/config.yaml)")
	cmd.Flags().IntP("events", "n", 0, "Number of events to simulate (overrides config)")
	cmd.Flags().Uint64("seed", 0, "Random seed for the traffic generator (0 picks one)")
	cmd.Flags().String("schedule", "", "Cron schedule for event publishing, e.g. \"@every 1s\"")
	cmd.Flags().String("journal", "", "SQLite DSN for the event journal (default: in memory)")
	cmd.Flags().String("otlp-endpoint", "", "OTLP/HTTP traces endpoint URL")
	cmd.Flags().String("format", "text", "Summary format: text | json")

	return cmd
}

// runSummary is printed after a simulation finishes.
type runSummary struct {
	RunID     string           `json:"run_id"`
	Published int              `json:"published"`
	Machines  []machineSummary `json:"machines"`
	Events    map[string]int   `json:"events"`
	Metrics   map[string]int64 `json:"metrics"`
}

type machineSummary struct {
	ID     string `json:"id"`
	Stock  int    `json:"stock"`
	Status string `json:"status"`
}

func runRun(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return exitError(exitValidation, "unknown format %q (use text or json)", format)
	}

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyRunOverrides(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return exitError(exitValidation, "invalid config: %s", strings.Join(validationMessages(err), "; "))
	}

	logger, err := newLogger(cmd, cfg.Log)
	if err != nil {
		return exitError(exitValidation, "log: %v", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	providers, err := vwotel.Setup(ctx, vwotel.Config{OTLPEndpoint: cfg.Telemetry.OTLPEndpoint})
	if err != nil {
		return exitError(exitRuntime, "telemetry: %v", err)
	}
	defer shutdownProviders(providers, logger)

	store, closeStore, err := openJournal(cfg.Journal)
	if err != nil {
		return exitError(exitRuntime, "opening journal: %v", err)
	}
	defer closeStore()

	b := bus.NewMemBus(bus.MemBusConfig{Logger: logger})
	repo := machine.NewMemRepository(cfg.NewMachines()...)

	t, err := tracker.New(tracker.Config{
		Bus:        b,
		Repository: repo,
		Policy:     cfg.Policy(),
		Logger:     logger,
	})
	if err != nil {
		return exitError(exitRuntime, "tracker: %v", err)
	}

	metrics, err := vwotel.NewMetricsHandler(providers.Meter())
	if err != nil {
		return exitError(exitRuntime, "metrics: %v", err)
	}

	// Observers subscribe before the tracker, so each sale or refill is
	// traced, logged and journaled ahead of the events derived from it.
	if providers.TracingEnabled() {
		b.SubscribeAll(vwotel.NewTracingHandler(providers.Tracer()))
	}
	runID := uuid.NewString()
	recorder := notify.NewRecorder()
	b.SubscribeAll(notify.NewReporter(logger))
	b.SubscribeAll(recorder)
	b.SubscribeAll(metrics)
	b.SubscribeAll(bus.NewStoreSubscriber(store, runID, logger))
	t.Register()

	published, err := simulateTraffic(ctx, cfg, b, logger)
	if err != nil {
		return exitError(exitRuntime, "simulation failed: %v", err)
	}
	logger.Info("simulation finished", "run_id", runID, "published", published)

	counters, err := providers.CollectCounters(context.Background())
	if err != nil {
		return exitError(exitRuntime, "%v", err)
	}

	summary := buildRunSummary(runID, published, repo, recorder, counters)
	return writeRunSummary(cmd.OutOrStdout(), summary, format)
}

// applyRunOverrides copies explicitly set flags over config file values.
func applyRunOverrides(cmd *cobra.Command, cfg *config.File) {
	flags := cmd.Flags()
	if flags.Changed("events") {
		n, _ := flags.GetInt("events")
		cfg.Simulation.Events = &n
	}
	if flags.Changed("seed") {
		cfg.Simulation.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Changed("schedule") {
		cfg.Simulation.Schedule, _ = flags.GetString("schedule")
	}
	if flags.Changed("journal") {
		cfg.Journal.DSN, _ = flags.GetString("journal")
	}
	if flags.Changed("otlp-endpoint") {
		cfg.Telemetry.OTLPEndpoint, _ = flags.GetString("otlp-endpoint")
	}
}

// openJournal returns the configured event store and its close function.
func openJournal(jc config.JournalConfig) (bus.EventStore, func(), error) {
	if jc.DSN == "" {
		return bus.NewMemEventStore(), func() {}, nil
	}
	store, err := bus.NewSQLiteEventStore(bus.SQLiteStoreConfig{
		DSN:            jc.DSN,
		RetentionCount: jc.RetentionCount,
	})
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

func simulateTraffic(ctx context.Context, cfg config.File, pub bus.Publisher, logger *slog.Logger) (int, error) {
	seed := cfg.Simulation.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	gen, err := simulate.NewGenerator(cfg.MachineIDs(), seed)
	if err != nil {
		return 0, err
	}
	runner, err := simulate.NewRunner(simulate.RunnerConfig{
		Publisher: pub,
		Generator: gen,
		Logger:    logger,
	})
	if err != nil {
		return 0, err
	}

	logger.Debug("starting simulation",
		"seed", seed,
		"events", cfg.Simulation.EventCount(),
		"schedule", cfg.Simulation.Schedule,
	)
	if cfg.Simulation.Schedule == "" {
		return runner.RunN(ctx, cfg.Simulation.EventCount())
	}
	schedule, err := simulate.ParseSchedule(cfg.Simulation.Schedule)
	if err != nil {
		return 0, err
	}
	return runner.RunSchedule(ctx, schedule, cfg.Simulation.EventCount())
}

func shutdownProviders(p *vwotel.Providers, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		logger.Warn("telemetry shutdown failed", "error", err)
	}
}

func buildRunSummary(runID string, published int, repo *machine.MemRepository, rec *notify.Recorder, counters map[string]int64) runSummary {
	s := runSummary{
		RunID:     runID,
		Published: published,
		Events:    make(map[string]int),
		Metrics:   counters,
	}
	for _, m := range repo.List() {
		s.Machines = append(s.Machines, machineSummary{
			ID:     m.ID,
			Stock:  m.StockLevel,
			Status: string(m.Status()),
		})
	}
	for kind, n := range rec.CountsByKind() {
		s.Events[kind.String()] = n
	}
	return s
}

func writeRunSummary(w io.Writer, s runSummary, format string) error {
	if format == "json" {
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return exitError(exitRuntime, "marshaling summary: %v", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}
	fmt.Fprint(w, formatRunSummary(s))
	return nil
}

// formatRunSummary returns a human-readable summary of a run.
func formatRunSummary(s runSummary) string {
	var sb strings.Builder

	sb.WriteString("=== Machines ===\n")
	for _, m := range s.Machines {
		sb.WriteString(fmt.Sprintf("  %-8s stock=%-4d %s\n", m.ID, m.Stock, m.Status))
	}

	sb.WriteString(fmt.Sprintf("\n=== Events (%d published) ===\n", s.Published))
	for _, kind := range event.Kinds() {
		sb.WriteString(fmt.Sprintf("  %-16s %d\n", kind, s.Events[kind.String()]))
	}

	if len(s.Metrics) > 0 {
		names := make([]string, 0, len(s.Metrics))
		for name := range s.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		sb.WriteString("\n=== Metrics ===\n")
		for _, name := range names {
			sb.WriteString(fmt.Sprintf("  %s: %d\n", name, s.Metrics[name]))
		}
	}

	sb.WriteString("\n=== Run ===\n")
	sb.WriteString(fmt.Sprintf("  Run ID: %s\n", s.RunID))
	return sb.String()
}
