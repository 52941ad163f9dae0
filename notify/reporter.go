package notify

import (
	"log/slog"

	"github.com/petal-labs/vendwatch/bus"
	"github.com/petal-labs/vendwatch/event"
)

// Reporter logs one human-readable line per event. Sales and refills are
// logged at info, low-stock and sold-out warnings at warn.
type Reporter struct {
	logger *slog.Logger
}

// NewReporter creates a Reporter. A nil logger uses slog.Default().
func NewReporter(logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{logger: logger}
}

// Handle logs e.
func (r *Reporter) Handle(e event.Event) {
	event.Visit(e, r)
}

func (r *Reporter) VisitSale(e event.Sale) {
	r.logger.Info("machine sale", "machine_id", e.MachineID(), "quantity", e.SoldQuantity())
}

func (r *Reporter) VisitRefill(e event.Refill) {
	r.logger.Info("machine refill", "machine_id", e.MachineID(), "quantity", e.RefillQuantity())
}

func (r *Reporter) VisitLowStockWarning(e event.LowStockWarning) {
	r.logger.Warn("low stock warning", "machine_id", e.MachineID())
}

func (r *Reporter) VisitSoldOutWarning(e event.SoldOutWarning) {
	r.logger.Warn("sold out warning", "machine_id", e.MachineID())
}

func (r *Reporter) VisitStockLevelOk(e event.StockLevelOk) {
	r.logger.Info("stock level ok", "machine_id", e.MachineID())
}

var (
	_ bus.Subscriber = (*Reporter)(nil)
	_ event.Visitor  = (*Reporter)(nil)
)
