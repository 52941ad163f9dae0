// Package simulate produces random sale and refill traffic for demos.
package simulate

import (
	"errors"
	"math/rand/v2"

	"github.com/petal-labs/vendwatch/event"
)

// Sale quantities are 1 or 2 units, refills 3 or 5, each equally likely.
var (
	saleQuantities   = [2]int{1, 2}
	refillQuantities = [2]int{3, 5}
)

// ErrNoMachines is returned when a generator has no machines to target.
var ErrNoMachines = errors.New("simulate: no machines to generate events for")

// Generator produces sale and refill events with equal probability against a
// uniformly chosen machine. It is not safe for concurrent use.
type Generator struct {
	machines []string
	rng      *rand.Rand
}

// NewGenerator creates a generator over machineIDs. The same seed always
// yields the same event sequence.
func NewGenerator(machineIDs []string, seed uint64) (*Generator, error) {
	if len(machineIDs) == 0 {
		return nil, ErrNoMachines
	}
	ids := make([]string, len(machineIDs))
	copy(ids, machineIDs)
	return &Generator{
		machines: ids,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Next returns the next random event.
func (g *Generator) Next() event.Event {
	id := g.machines[g.rng.IntN(len(g.machines))]
	if g.rng.IntN(2) == 0 {
		return event.MustSale(saleQuantities[g.rng.IntN(2)], id)
	}
	return event.MustRefill(refillQuantities[g.rng.IntN(2)], id)
}
