// Package event defines the domain events exchanged on the vendwatch bus.
//
// The set of events is closed: Sale and Refill are produced by traffic
// sources, while LowStockWarning, SoldOutWarning and StockLevelOk are derived
// by the stock tracker from machine state. Events are immutable values; two
// events built from the same inputs compare equal with ==.
package event

import (
	"errors"
	"fmt"
)

// Kind identifies the type of an event.
type Kind string

const (
	// KindSale is emitted when units are sold from a machine.
	KindSale Kind = "sale"

	// KindRefill is emitted when units are loaded into a machine.
	KindRefill Kind = "refill"

	// KindLowStockWarning is derived when a machine drops below the low-stock threshold.
	KindLowStockWarning Kind = "lowStockWarning"

	// KindSoldOutWarning is derived when a machine reaches the exhaustion threshold.
	KindSoldOutWarning Kind = "soldOutWarning"

	// KindStockLevelOk is derived when a flagged machine is refilled back above
	// the low-stock threshold.
	KindStockLevelOk Kind = "stockLevelOk"
)

var kinds = []Kind{
	KindSale,
	KindRefill,
	KindLowStockWarning,
	KindSoldOutWarning,
	KindStockLevelOk,
}

// Kinds returns every event kind in a stable order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// String returns the string representation of the Kind.
func (k Kind) String() string {
	return string(k)
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Derived reports whether events of this kind are synthesized from machine
// state rather than produced by a traffic source.
func (k Kind) Derived() bool {
	switch k {
	case KindLowStockWarning, KindSoldOutWarning, KindStockLevelOk:
		return true
	}
	return false
}

var (
	// ErrInvalidQuantity is returned when a sale or refill quantity is not positive.
	ErrInvalidQuantity = errors.New("quantity must be positive")

	// ErrEmptyMachineID is returned when an event targets no machine.
	ErrEmptyMachineID = errors.New("machine id is required")
)

// Event is implemented by the five vendwatch event types only.
type Event interface {
	// Kind returns the type tag used for subscriber lookup.
	Kind() Kind

	// MachineID returns the identifier of the machine the event concerns.
	MachineID() string

	sealed()
}

// Sale records units sold from a machine.
type Sale struct {
	machineID string
	sold      int
}

// NewSale creates a sale event. The quantity must be positive.
func NewSale(sold int, machineID string) (Sale, error) {
	if err := validate(sold, machineID); err != nil {
		return Sale{}, fmt.Errorf("event: sale: %w", err)
	}
	return Sale{machineID: machineID, sold: sold}, nil
}

// MustSale is like NewSale but panics on invalid input.
func MustSale(sold int, machineID string) Sale {
	e, err := NewSale(sold, machineID)
	if err != nil {
		panic(err)
	}
	return e
}

func (Sale) Kind() Kind { return KindSale }
func (e Sale) MachineID() string { return e.machineID }
func (e Sale) SoldQuantity() int { return e.sold }
func (Sale) sealed() {}

// Refill records units loaded into a machine.
type Refill struct {
	machineID string
	refilled  int
}

// NewRefill creates a refill event. The quantity must be positive.
func NewRefill(refilled int, machineID string) (Refill, error) {
	if err := validate(refilled, machineID); err != nil {
		return Refill{}, fmt.Errorf("event: refill: %w", err)
	}
	return Refill{machineID: machineID, refilled: refilled}, nil
}

// MustRefill is like NewRefill but panics on invalid input.
func MustRefill(refilled int, machineID string) Refill {
	e, err := NewRefill(refilled, machineID)
	if err != nil {
		panic(err)
	}
	return e
}

func (Refill) Kind() Kind { return KindRefill }
func (e Refill) MachineID() string { return e.machineID }
func (e Refill) RefillQuantity() int { return e.refilled }
func (Refill) sealed() {}

// LowStockWarning signals that a machine crossed below the low-stock threshold.
type LowStockWarning struct {
	machineID string
}

// NewLowStockWarning creates a low-stock warning for the machine.
func NewLowStockWarning(machineID string) LowStockWarning {
	return LowStockWarning{machineID: machineID}
}

func (LowStockWarning) Kind() Kind { return KindLowStockWarning }
func (e LowStockWarning) MachineID() string { return e.machineID }
func (LowStockWarning) sealed() {}

// SoldOutWarning signals that a machine has no stock left.
type SoldOutWarning struct {
	machineID string
}

// NewSoldOutWarning creates a sold-out warning for the machine.
func NewSoldOutWarning(machineID string) SoldOutWarning {
	return SoldOutWarning{machineID: machineID}
}

func (SoldOutWarning) Kind() Kind { return KindSoldOutWarning }
func (e SoldOutWarning) MachineID() string { return e.machineID }
func (SoldOutWarning) sealed() {}

// StockLevelOk signals that a previously flagged machine is healthy again.
type StockLevelOk struct {
	machineID string
}

// NewStockLevelOk creates a stock-restored notification for the machine.
func NewStockLevelOk(machineID string) StockLevelOk {
	return StockLevelOk{machineID: machineID}
}

func (StockLevelOk) Kind() Kind { return KindStockLevelOk }
func (e StockLevelOk) MachineID() string { return e.machineID }
func (StockLevelOk) sealed() {}

// Quantity returns the unit count carried by sale and refill events, and 0
// for derived events.
func Quantity(e Event) int {
	switch ev := e.(type) {
	case Sale:
		return ev.sold
	case Refill:
		return ev.refilled
	}
	return 0
}

func validate(qty int, machineID string) error {
	if machineID == "" {
		return ErrEmptyMachineID
	}
	if qty <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidQuantity, qty)
	}
	return nil
}

// Compile-time interface checks.
var (
	_ Event = Sale{}
	_ Event = Refill{}
	_ Event = LowStockWarning{}
	_ Event = SoldOutWarning{}
	_ Event = StockLevelOk{}
)
