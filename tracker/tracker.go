// Package tracker derives stock threshold events from sales and refills.
//
// The Tracker subscribes to sale and refill events, applies them to the
// machine records in a machine.Repository, and publishes lowStockWarning,
// soldOutWarning and stockLevelOk back onto the same bus. Each derived event
// fires at most once per threshold crossing; the machine flags remember which
// warnings have already been sent until a refill clears them.
//
// The Tracker is the single writer of machine stock and flags. Handlers run
// synchronously on the publisher's goroutine and take no locks, so callers
// must not publish sales or refills from more than one goroutine at a time.
package tracker

import (
	"errors"
	"log/slog"

	"github.com/petal-labs/vendwatch/bus"
	"github.com/petal-labs/vendwatch/event"
	"github.com/petal-labs/vendwatch/machine"
)

// Config configures a Tracker.
type Config struct {
	Bus        bus.EventBus
	Repository machine.Repository

	// Policy defaults to DefaultPolicy() when zero.
	Policy Policy
	Logger *slog.Logger
}

// Tracker applies sale and refill events to machine stock.
type Tracker struct {
	bus    bus.EventBus
	repo   machine.Repository
	policy Policy
	logger *slog.Logger

	sale   *bus.VisitorSubscriber
	refill *bus.VisitorSubscriber
}

// New creates a Tracker. It does not subscribe; call Register.
func New(cfg Config) (*Tracker, error) {
	if cfg.Bus == nil {
		return nil, errors.New("tracker: bus is nil")
	}
	if cfg.Repository == nil {
		return nil, errors.New("tracker: repository is nil")
	}
	if cfg.Policy == (Policy{}) {
		cfg.Policy = DefaultPolicy()
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	t := &Tracker{
		bus:    cfg.Bus,
		repo:   cfg.Repository,
		policy: cfg.Policy,
		logger: cfg.Logger,
	}
	t.sale = bus.NewVisitorSubscriber(event.Funcs{Sale: t.handleSale})
	t.refill = bus.NewVisitorSubscriber(event.Funcs{Refill: t.handleRefill})
	return t, nil
}

// Policy returns the thresholds in use.
func (t *Tracker) Policy() Policy {
	return t.policy
}

// SaleHandler returns the subscriber that processes sale events.
func (t *Tracker) SaleHandler() bus.Subscriber {
	return t.sale
}

// RefillHandler returns the subscriber that processes refill events.
func (t *Tracker) RefillHandler() bus.Subscriber {
	return t.refill
}

// Register subscribes the sale and refill handlers to the bus.
func (t *Tracker) Register() {
	t.bus.Subscribe(event.KindSale, t.sale)
	t.bus.Subscribe(event.KindRefill, t.refill)
}

// Unregister removes the sale and refill handlers from the bus.
func (t *Tracker) Unregister() {
	t.bus.Unsubscribe(event.KindSale, t.sale)
	t.bus.Unsubscribe(event.KindRefill, t.refill)
}

// handleSale commits stock and flags to the repository before each derived
// publish and looks the machine up again afterwards, because handlers of the
// derived event may publish sales or refills for the same machine.
func (t *Tracker) handleSale(e event.Sale) {
	m, ok := t.repo.FindByID(e.MachineID())
	if !ok {
		t.logger.Debug("sale for unknown machine ignored", "machine_id", e.MachineID())
		return
	}

	m.StockLevel -= e.SoldQuantity()
	if m.StockLevel < 0 {
		t.logger.Warn("sale exceeds stock, clamping to zero",
			"machine_id", m.ID,
			"sold", e.SoldQuantity(),
			"shortfall", -m.StockLevel,
		)
		m.StockLevel = 0
	}
	t.repo.UpdateMachine(m)

	// A sold-out machine has already been warned about low stock.
	if t.policy.isLow(m.StockLevel) && !m.IsLowStock && !m.IsSoldOut {
		m.IsLowStock = true
		t.repo.UpdateMachine(m)
		t.bus.Publish(event.NewLowStockWarning(m.ID))

		if m, ok = t.repo.FindByID(e.MachineID()); !ok {
			return
		}
	}

	if t.policy.isSoldOut(m.StockLevel) && !m.IsSoldOut {
		m.IsSoldOut = true
		m.IsLowStock = false
		t.repo.UpdateMachine(m)
		t.bus.Publish(event.NewSoldOutWarning(m.ID))
	}
}

func (t *Tracker) handleRefill(e event.Refill) {
	m, ok := t.repo.FindByID(e.MachineID())
	if !ok {
		t.logger.Debug("refill for unknown machine ignored", "machine_id", e.MachineID())
		return
	}

	m.StockLevel += e.RefillQuantity()

	switch {
	case !t.policy.isLow(m.StockLevel) && (m.IsLowStock || m.IsSoldOut):
		m.IsLowStock = false
		m.IsSoldOut = false
		t.repo.UpdateMachine(m)
		t.bus.Publish(event.NewStockLevelOk(m.ID))
		return
	case m.IsSoldOut && !t.policy.isSoldOut(m.StockLevel):
		// Back above exhaustion but still low: the low-stock warning was sent
		// on the way down, so only the flag moves.
		m.IsSoldOut = false
		m.IsLowStock = true
	}

	t.repo.UpdateMachine(m)
}
