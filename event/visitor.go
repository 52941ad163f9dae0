package event

import "fmt"

// Visitor handles each event type with a dedicated method. Adding a new event
// type to the package adds a method here, so every implementation is forced to
// handle it.
type Visitor interface {
	VisitSale(Sale)
	VisitRefill(Refill)
	VisitLowStockWarning(LowStockWarning)
	VisitSoldOutWarning(SoldOutWarning)
	VisitStockLevelOk(StockLevelOk)
}

// Visit dispatches e to the matching Visitor method.
func Visit(e Event, v Visitor) {
	switch ev := e.(type) {
	case Sale:
		v.VisitSale(ev)
	case Refill:
		v.VisitRefill(ev)
	case LowStockWarning:
		v.VisitLowStockWarning(ev)
	case SoldOutWarning:
		v.VisitSoldOutWarning(ev)
	case StockLevelOk:
		v.VisitStockLevelOk(ev)
	default:
		// Unreachable: Event is sealed.
		panic(fmt.Sprintf("event: unknown event type %T", e))
	}
}

// Funcs is a Visitor built from optional callbacks. Nil callbacks are skipped.
type Funcs struct {
	Sale            func(Sale)
	Refill          func(Refill)
	LowStockWarning func(LowStockWarning)
	SoldOutWarning  func(SoldOutWarning)
	StockLevelOk    func(StockLevelOk)
}

func (f Funcs) VisitSale(e Sale) {
	if f.Sale != nil {
		f.Sale(e)
	}
}

func (f Funcs) VisitRefill(e Refill) {
	if f.Refill != nil {
		f.Refill(e)
	}
}

func (f Funcs) VisitLowStockWarning(e LowStockWarning) {
	if f.LowStockWarning != nil {
		f.LowStockWarning(e)
	}
}

func (f Funcs) VisitSoldOutWarning(e SoldOutWarning) {
	if f.SoldOutWarning != nil {
		f.SoldOutWarning(e)
	}
}

func (f Funcs) VisitStockLevelOk(e StockLevelOk) {
	if f.StockLevelOk != nil {
		f.StockLevelOk(e)
	}
}

var _ Visitor = Funcs{}
