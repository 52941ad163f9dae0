// Package machine holds the vending machine entity and the repository the
// stock tracker looks machines up in.
package machine

// DefaultStock is the starting stock level for machines created without one.
const DefaultStock = 10

// Status is a coarse summary of a machine's threshold flags.
type Status string

const (
	StatusOK      Status = "ok"
	StatusLow     Status = "low"
	StatusSoldOut Status = "soldOut"
)

// Machine is the mutable stock record of one vending machine. ID never
// changes after creation. The stock tracker is the only writer of the other
// fields; at most one of IsLowStock and IsSoldOut is true.
type Machine struct {
	ID         string
	StockLevel int
	IsLowStock bool
	IsSoldOut  bool
}

// New creates a machine with the given starting stock and no flags set.
func New(id string, stock int) *Machine {
	return &Machine{ID: id, StockLevel: stock}
}

// Status reports which threshold state the machine is in.
func (m *Machine) Status() Status {
	switch {
	case m.IsSoldOut:
		return StatusSoldOut
	case m.IsLowStock:
		return StatusLow
	default:
		return StatusOK
	}
}
