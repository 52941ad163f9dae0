package simulate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/petal-labs/vendwatch/bus"
)

var scheduleParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// ParseSchedule parses a standard five-field cron expression or a descriptor
// such as "@every 2s". Sub-second intervals round up to one second.
func ParseSchedule(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return nil, errors.New("simulate: schedule expression is required")
	}
	schedule, err := scheduleParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("simulate: invalid schedule %q: %w", clean, err)
	}
	return schedule, nil
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Publisher bus.Publisher
	Generator *Generator
	Now       func() time.Time
	Logger    *slog.Logger
}

// Runner publishes generated events onto a bus.
type Runner struct {
	publisher bus.Publisher
	generator *Generator
	now       func() time.Time
	logger    *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Publisher == nil {
		return nil, errors.New("simulate: publisher is nil")
	}
	if cfg.Generator == nil {
		return nil, errors.New("simulate: generator is nil")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{
		publisher: cfg.Publisher,
		generator: cfg.Generator,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}, nil
}

// RunN publishes n events back to back and returns how many were published.
// It stops early with the context error if ctx is done.
func (r *Runner) RunN(ctx context.Context, n int) (int, error) {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		r.publishOne()
	}
	return n, nil
}

// RunSchedule publishes one event per activation of schedule until ctx is
// done or limit events have been published (limit <= 0 means no limit).
// A done context is a normal stop and returns a nil error.
func (r *Runner) RunSchedule(ctx context.Context, schedule cron.Schedule, limit int) (int, error) {
	if schedule == nil {
		return 0, errors.New("simulate: schedule is nil")
	}

	published := 0
	for limit <= 0 || published < limit {
		now := r.now()
		next := schedule.Next(now)
		if next.IsZero() {
			return published, errors.New("simulate: schedule has no future activations")
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Debug("simulation stopped", "published", published)
			return published, nil
		case <-timer.C:
			r.publishOne()
			published++
		}
	}
	return published, nil
}

func (r *Runner) publishOne() {
	e := r.generator.Next()
	r.logger.Debug("publishing generated event",
		"kind", e.Kind(),
		"machine_id", e.MachineID(),
	)
	r.publisher.Publish(e)
}
