// Package config loads the vendwatch YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/petal-labs/vendwatch/machine"
	"github.com/petal-labs/vendwatch/simulate"
	"github.com/petal-labs/vendwatch/tracker"
)

const (
	projectConfigName = "vendwatch.yaml"
	homeConfigName    = "config.yaml"

	// DefaultEvents is the number of simulated events when none is configured.
	DefaultEvents = 20
)

// ErrNotFound is returned when an explicitly requested config file does not exist.
var ErrNotFound = errors.New("config file not found")

// File is the declarative config shape.
type File struct {
	Machines   []MachineConfig  `yaml:"machines"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Simulation SimulationConfig `yaml:"simulation"`
	Journal    JournalConfig    `yaml:"journal"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Log        LogConfig        `yaml:"log"`
}

// MachineConfig declares one machine and its starting stock.
type MachineConfig struct {
	ID    string `yaml:"id"`
	Stock *int   `yaml:"stock,omitempty"`
}

// ThresholdsConfig maps onto tracker.Policy.
type ThresholdsConfig struct {
	LowStock *int `yaml:"low_stock,omitempty"`
	SoldOut  *int `yaml:"sold_out,omitempty"`
}

// SimulationConfig controls the traffic generator.
type SimulationConfig struct {
	Seed     uint64 `yaml:"seed"`
	Events   *int   `yaml:"events,omitempty"`
	Schedule string `yaml:"schedule,omitempty"`
}

// EventCount returns the configured number of events, or DefaultEvents when
// none is set.
func (s SimulationConfig) EventCount() int {
	if s.Events == nil {
		return DefaultEvents
	}
	return *s.Events
}

// JournalConfig selects the event journal backend. An empty DSN keeps the
// journal in memory.
type JournalConfig struct {
	DSN            string `yaml:"dsn,omitempty"`
	RetentionCount int    `yaml:"retention_count,omitempty"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Default returns the configuration used when no file is found.
func Default() File {
	f := File{}
	f.applyDefaults()
	return f
}

// Discover resolves the config location with first-match semantics:
// the explicit path, ./vendwatch.yaml, then ~/.vendwatch/config.yaml.
func Discover(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("resolve user home: %w", err)
	}
	return DiscoverFrom(explicitPath, cwd, homeDir)
}

// DiscoverFrom is a testable variant of Discover.
func DiscoverFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	explicit := strings.TrimSpace(explicitPath)
	candidates := make([]string, 0, 2)
	if explicit != "" {
		candidates = append(candidates, filepath.Clean(explicit))
	} else {
		candidates = append(candidates, filepath.Join(cwd, projectConfigName))
		if homeDir != "" {
			candidates = append(candidates, filepath.Join(homeDir, ".vendwatch", homeConfigName))
		}
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			if explicit != "" {
				return "", false, fmt.Errorf("%w: %q", ErrNotFound, candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("checking config path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

// Load reads and parses path, then fills unset fields with defaults.
// It does not validate; call Validate on the result.
func Load(path string) (File, error) {
	// #nosec G304 -- path resolved from explicit local config discovery.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return File{}, fmt.Errorf("%w: %q", ErrNotFound, path)
		}
		return File{}, fmt.Errorf("reading config %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes and applies defaults.
func Parse(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parsing config: %w", err)
	}
	f.applyDefaults()
	return f, nil
}

// Resolve discovers and loads the config. With nothing to discover it returns
// Default and an empty path.
func Resolve(explicitPath string) (File, string, error) {
	path, found, err := Discover(explicitPath)
	if err != nil {
		return File{}, "", err
	}
	if !found {
		return Default(), "", nil
	}
	f, err := Load(path)
	if err != nil {
		return File{}, path, err
	}
	return f, path, nil
}

func (f *File) applyDefaults() {
	if len(f.Machines) == 0 {
		for _, id := range []string{"001", "002", "003"} {
			f.Machines = append(f.Machines, MachineConfig{ID: id})
		}
	}
	for i := range f.Machines {
		if f.Machines[i].Stock == nil {
			stock := machine.DefaultStock
			f.Machines[i].Stock = &stock
		}
	}
	if f.Thresholds.LowStock == nil {
		v := tracker.DefaultLowStockThreshold
		f.Thresholds.LowStock = &v
	}
	if f.Thresholds.SoldOut == nil {
		v := tracker.DefaultSoldOutThreshold
		f.Thresholds.SoldOut = &v
	}
	if f.Simulation.Events == nil {
		n := DefaultEvents
		f.Simulation.Events = &n
	}
	if f.Log.Level == "" {
		f.Log.Level = "info"
	}
	if f.Log.Format == "" {
		f.Log.Format = "text"
	}
}

// Validate checks every section and returns all problems joined.
func (f File) Validate() error {
	var errs []error

	seen := make(map[string]bool, len(f.Machines))
	for i, m := range f.Machines {
		id := strings.TrimSpace(m.ID)
		switch {
		case id == "":
			errs = append(errs, fmt.Errorf("machines[%d]: id is required", i))
		case seen[id]:
			errs = append(errs, fmt.Errorf("machines[%d]: duplicate id %q", i, id))
		}
		seen[id] = true
		if m.Stock != nil && *m.Stock < 0 {
			errs = append(errs, fmt.Errorf("machines[%d]: stock must not be negative, got %d", i, *m.Stock))
		}
	}

	if err := f.Policy().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("thresholds: %w", err))
	}

	if n := f.Simulation.EventCount(); n < 0 {
		errs = append(errs, fmt.Errorf("simulation.events must not be negative, got %d", n))
	}
	if f.Simulation.Schedule != "" {
		if _, err := simulate.ParseSchedule(f.Simulation.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("simulation.schedule: %w", err))
		}
	}

	if f.Journal.RetentionCount < 0 {
		errs = append(errs, fmt.Errorf("journal.retention_count must not be negative, got %d", f.Journal.RetentionCount))
	}

	if _, err := ParseLevel(f.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch f.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q (want text or json)", f.Log.Format))
	}

	return errors.Join(errs...)
}

// Policy returns the tracker thresholds described by the file.
func (f File) Policy() tracker.Policy {
	p := tracker.DefaultPolicy()
	if f.Thresholds.LowStock != nil {
		p.LowStockThreshold = *f.Thresholds.LowStock
	}
	if f.Thresholds.SoldOut != nil {
		p.SoldOutThreshold = *f.Thresholds.SoldOut
	}
	return p
}

// NewMachines builds fresh machine records from the declared machines.
func (f File) NewMachines() []*machine.Machine {
	out := make([]*machine.Machine, 0, len(f.Machines))
	for _, m := range f.Machines {
		stock := machine.DefaultStock
		if m.Stock != nil {
			stock = *m.Stock
		}
		out = append(out, machine.New(strings.TrimSpace(m.ID), stock))
	}
	return out
}

// MachineIDs returns the declared machine ids in file order.
func (f File) MachineIDs() []string {
	ids := make([]string, 0, len(f.Machines))
	for _, m := range f.Machines {
		ids = append(ids, strings.TrimSpace(m.ID))
	}
	return ids
}

// ParseLevel maps a level name onto slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown level %q", name)
}
