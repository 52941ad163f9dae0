package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/petal-labs/vendwatch/event"
)

// newTestRoot creates a fresh cobra root command wired to all subcommands.
// Each test gets an isolated command tree to avoid shared state.
func newTestRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "vendwatch",
		SilenceUsage: true,
	}
	root.PersistentFlags().Bool("verbose", false, "")
	root.PersistentFlags().Bool("quiet", false, "")
	root.AddCommand(NewRunCmd())
	root.AddCommand(NewJournalCmd())
	root.AddCommand(NewValidateCmd())
	return root
}

// executeCommand runs a cobra command with the given args and captures stdout/stderr.
func executeCommand(root *cobra.Command, args ...string) (stdout, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	root.SetOut(&outBuf)
	root.SetErr(&errBuf)
	root.SetArgs(args)
	err = root.Execute()
	return outBuf.String(), errBuf.String(), err
}

// writeTestFile creates a temporary file with the given content and returns its path.
func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// isolateHome keeps config discovery away from the developer's home directory.
func isolateHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %T: %v", err, err)
	}
	return exitErr.Code
}

const validConfigYAML = `
machines:
  - id: "001"
    stock: 10
  - id: "004"
    stock: 3
thresholds:
  low_stock: 3
  sold_out: 0
simulation:
  seed: 7
  events: 30
`

const invalidConfigYAML = `
machines:
  - id: "001"
  - id: "001"
thresholds:
  low_stock: 0
  sold_out: 0
log:
  level: loud
`

func decodeSummary(t *testing.T, stdout string) runSummary {
	t.Helper()
	var s runSummary
	if err := json.Unmarshal([]byte(stdout), &s); err != nil {
		t.Fatalf("decoding summary: %v\n%s", err, stdout)
	}
	return s
}

func TestRun_JSONSummary(t *testing.T) {
	isolateHome(t)
	path := writeTestFile(t, "vendwatch.yaml", validConfigYAML)

	stdout, _, err := executeCommand(newTestRoot(), "--quiet", "run", "--config", path, "--format", "json")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}

	s := decodeSummary(t, stdout)
	if s.Published != 30 {
		t.Errorf("Published = %d, want 30", s.Published)
	}
	if s.RunID == "" {
		t.Error("RunID is empty")
	}
	if len(s.Machines) != 2 || s.Machines[0].ID != "001" || s.Machines[1].ID != "004" {
		t.Errorf("Machines = %+v, want 001 and 004", s.Machines)
	}
	if got := s.Events["sale"] + s.Events["refill"]; got != 30 {
		t.Errorf("sale+refill = %d, want 30", got)
	}

	var total int
	for _, n := range s.Events {
		total += n
	}
	if s.Metrics["vendwatch.events"] != int64(total) {
		t.Errorf("vendwatch.events = %d, want %d", s.Metrics["vendwatch.events"], total)
	}
	for _, m := range s.Machines {
		if m.Stock < 0 {
			t.Errorf("machine %s stock = %d, want >= 0", m.ID, m.Stock)
		}
	}
}

func TestRun_SameSeedSameResult(t *testing.T) {
	isolateHome(t)
	path := writeTestFile(t, "vendwatch.yaml", validConfigYAML)

	first, _, err := executeCommand(newTestRoot(), "--quiet", "run", "-c", path, "--format", "json")
	if err != nil {
		t.Fatalf("first run error = %v", err)
	}
	second, _, err := executeCommand(newTestRoot(), "--quiet", "run", "-c", path, "--format", "json")
	if err != nil {
		t.Fatalf("second run error = %v", err)
	}

	a, b := decodeSummary(t, first), decodeSummary(t, second)
	for i := range a.Machines {
		if a.Machines[i] != b.Machines[i] {
			t.Errorf("machine %d differs: %+v vs %+v", i, a.Machines[i], b.Machines[i])
		}
	}
}

func TestRun_FlagsOverrideConfig(t *testing.T) {
	isolateHome(t)
	path := writeTestFile(t, "vendwatch.yaml", validConfigYAML)

	stdout, _, err := executeCommand(newTestRoot(), "--quiet", "run", "-c", path, "-n", "5", "--seed", "3", "--format", "json")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	if s := decodeSummary(t, stdout); s.Published != 5 {
		t.Errorf("Published = %d, want 5", s.Published)
	}
}

func TestRun_ZeroEventsFromConfig(t *testing.T) {
	isolateHome(t)
	path := writeTestFile(t, "vendwatch.yaml", "machines:\n  - id: \"001\"\n    stock: 6\nsimulation:\n  events: 0\n")

	stdout, _, err := executeCommand(newTestRoot(), "--quiet", "run", "--config", path, "--format", "json")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	s := decodeSummary(t, stdout)
	if s.Published != 0 {
		t.Errorf("Published = %d, want 0", s.Published)
	}
	if len(s.Machines) != 1 || s.Machines[0].Stock != 6 {
		t.Errorf("Machines = %+v, want 001@6", s.Machines)
	}
}

func TestRun_DefaultsWithoutConfig(t *testing.T) {
	isolateHome(t)
	t.Chdir(t.TempDir())

	stdout, _, err := executeCommand(newTestRoot(), "--quiet", "run", "--seed", "1", "--format", "json")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	s := decodeSummary(t, stdout)
	if s.Published != 20 || len(s.Machines) != 3 {
		t.Errorf("Published = %d machines = %d, want 20 and 3", s.Published, len(s.Machines))
	}
}

func TestRun_TextSummary(t *testing.T) {
	isolateHome(t)
	path := writeTestFile(t, "vendwatch.yaml", validConfigYAML)

	stdout, _, err := executeCommand(newTestRoot(), "--quiet", "run", "-c", path)
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	for _, want := range []string{"=== Machines ===", "=== Events (30 published) ===", "lowStockWarning", "Run ID:"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
}

func TestRun_VerboseLogsToStderr(t *testing.T) {
	isolateHome(t)
	path := writeTestFile(t, "vendwatch.yaml", validConfigYAML)

	_, stderr, err := executeCommand(newTestRoot(), "--verbose", "run", "-c", path, "-n", "3")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	if !strings.Contains(stderr, "simulation finished") {
		t.Errorf("stderr missing completion log:\n%s", stderr)
	}
	if !strings.Contains(stderr, "level=DEBUG") {
		t.Errorf("stderr missing debug output:\n%s", stderr)
	}
}

func TestRun_MissingConfig(t *testing.T) {
	_, _, err := executeCommand(newTestRoot(), "run", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	if code := exitCode(t, err); code != exitFileNotFound {
		t.Errorf("exit code = %d, want %d", code, exitFileNotFound)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	path := writeTestFile(t, "vendwatch.yaml", invalidConfigYAML)

	_, _, err := executeCommand(newTestRoot(), "run", "--config", path)
	if code := exitCode(t, err); code != exitValidation {
		t.Errorf("exit code = %d, want %d", code, exitValidation)
	}
}

func TestRun_UnknownFormat(t *testing.T) {
	_, _, err := executeCommand(newTestRoot(), "run", "--format", "yaml")
	if code := exitCode(t, err); code != exitValidation {
		t.Errorf("exit code = %d, want %d", code, exitValidation)
	}
}

func TestRunThenJournal(t *testing.T) {
	isolateHome(t)
	cfgPath := writeTestFile(t, "vendwatch.yaml", validConfigYAML)
	journal := filepath.Join(t.TempDir(), "journal.db")

	stdout, _, err := executeCommand(newTestRoot(), "--quiet", "run", "-c", cfgPath, "--journal", journal, "--format", "json")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	s := decodeSummary(t, stdout)

	runsOut, _, err := executeCommand(newTestRoot(), "journal", "--journal", journal)
	if err != nil {
		t.Fatalf("journal error = %v", err)
	}
	if strings.TrimSpace(runsOut) != s.RunID {
		t.Errorf("journal runs = %q, want %q", runsOut, s.RunID)
	}

	eventsOut, _, err := executeCommand(newTestRoot(), "journal", "--journal", journal, "--run", s.RunID, "--format", "json")
	if err != nil {
		t.Fatalf("journal --run error = %v", err)
	}
	var listed struct {
		Events []journalRecord `json:"events"`
	}
	if err := json.Unmarshal([]byte(eventsOut), &listed); err != nil {
		t.Fatalf("decoding journal output: %v", err)
	}

	var total int
	for _, n := range s.Events {
		total += n
	}
	if len(listed.Events) != total {
		t.Fatalf("journal has %d events, want %d", len(listed.Events), total)
	}
	for i, r := range listed.Events {
		if r.Seq != uint64(i+1) {
			t.Errorf("event %d seq = %d, want %d", i, r.Seq, i+1)
		}
	}

	for i, r := range listed.Events {
		if !event.Kind(r.Kind).Derived() {
			continue
		}
		if i == 0 {
			t.Fatalf("journal starts with derived event %s", r.Kind)
		}
		// A derived event follows the sale or refill (or sibling warning)
		// of the same machine that caused it.
		if prev := listed.Events[i-1]; prev.MachineID != r.MachineID {
			t.Errorf("event %d (%s %s) follows %s for machine %s", i, r.Kind, r.MachineID, prev.Kind, prev.MachineID)
		}
	}

	pageOut, _, err := executeCommand(newTestRoot(), "journal", "--journal", journal, "--run", s.RunID, "--after", "2", "--limit", "3")
	if err != nil {
		t.Fatalf("journal page error = %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(pageOut), "\n"); len(lines) != 3 {
		t.Errorf("paged output has %d lines, want 3:\n%s", len(lines), pageOut)
	}
}

func TestJournal_CountsAndMachine(t *testing.T) {
	isolateHome(t)
	cfgPath := writeTestFile(t, "vendwatch.yaml", validConfigYAML)
	journal := filepath.Join(t.TempDir(), "journal.db")

	stdout, _, err := executeCommand(newTestRoot(), "--quiet", "run", "-c", cfgPath, "--journal", journal, "--format", "json")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	s := decodeSummary(t, stdout)

	countsOut, _, err := executeCommand(newTestRoot(), "journal", "--journal", journal, "--run", s.RunID, "--counts", "--format", "json")
	if err != nil {
		t.Fatalf("journal --counts error = %v", err)
	}
	var counted struct {
		Counts map[string]int `json:"counts"`
	}
	if err := json.Unmarshal([]byte(countsOut), &counted); err != nil {
		t.Fatalf("decoding counts: %v", err)
	}
	for kind, n := range s.Events {
		if counted.Counts[kind] != n {
			t.Errorf("journal %s = %d, summary = %d", kind, counted.Counts[kind], n)
		}
	}

	machineOut, _, err := executeCommand(newTestRoot(), "journal", "--journal", journal, "--run", s.RunID, "--machine", "004", "--format", "json")
	if err != nil {
		t.Fatalf("journal --machine error = %v", err)
	}
	var listed struct {
		Events []journalRecord `json:"events"`
	}
	if err := json.Unmarshal([]byte(machineOut), &listed); err != nil {
		t.Fatalf("decoding machine output: %v", err)
	}
	for _, r := range listed.Events {
		if r.MachineID != "004" {
			t.Errorf("record for machine %s in --machine 004 output", r.MachineID)
		}
	}
}

func TestJournal_MachineRequiresRun(t *testing.T) {
	_, _, err := executeCommand(newTestRoot(), "journal", "--journal", "file:x?mode=memory", "--machine", "001")
	if code := exitCode(t, err); code != exitValidation {
		t.Errorf("exit code = %d, want %d", code, exitValidation)
	}
}

func TestJournal_RequiresDSN(t *testing.T) {
	_, _, err := executeCommand(newTestRoot(), "journal")
	if code := exitCode(t, err); code != exitValidation {
		t.Errorf("exit code = %d, want %d", code, exitValidation)
	}
}

func TestJournal_MissingFile(t *testing.T) {
	_, _, err := executeCommand(newTestRoot(), "journal", "--journal", filepath.Join(t.TempDir(), "missing.db"))
	if code := exitCode(t, err); code != exitFileNotFound {
		t.Errorf("exit code = %d, want %d", code, exitFileNotFound)
	}
}

func TestValidate_Valid(t *testing.T) {
	path := writeTestFile(t, "vendwatch.yaml", validConfigYAML)

	stdout, _, err := executeCommand(newTestRoot(), "validate", "--config", path)
	if err != nil {
		t.Fatalf("validate error = %v", err)
	}
	if !strings.Contains(stdout, "valid") {
		t.Errorf("stdout = %q, want it to report valid", stdout)
	}
}

func TestValidate_Invalid(t *testing.T) {
	path := writeTestFile(t, "vendwatch.yaml", invalidConfigYAML)

	stdout, _, err := executeCommand(newTestRoot(), "validate", "--config", path, "--format", "json")
	if code := exitCode(t, err); code != exitValidation {
		t.Errorf("exit code = %d, want %d", code, exitValidation)
	}

	var result validateResult
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	if result.Valid || len(result.Errors) != 3 {
		t.Errorf("result = %+v, want 3 errors (duplicate id, thresholds, log level)", result)
	}
}

func TestValidate_Defaults(t *testing.T) {
	isolateHome(t)
	t.Chdir(t.TempDir())

	stdout, _, err := executeCommand(newTestRoot(), "validate")
	if err != nil {
		t.Fatalf("validate error = %v", err)
	}
	if !strings.Contains(stdout, "built-in defaults: valid") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestValidate_MissingFile(t *testing.T) {
	_, _, err := executeCommand(newTestRoot(), "validate", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	if code := exitCode(t, err); code != exitFileNotFound {
		t.Errorf("exit code = %d, want %d", code, exitFileNotFound)
	}
}
