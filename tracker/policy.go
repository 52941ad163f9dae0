package tracker

import (
	"errors"
	"fmt"
)

const (
	// DefaultLowStockThreshold flags a machine once stock drops below it.
	DefaultLowStockThreshold = 3

	// DefaultSoldOutThreshold flags a machine once stock reaches it or less.
	DefaultSoldOutThreshold = 0
)

// ErrInvalidPolicy is returned for threshold combinations that cannot order
// the ok -> low -> sold out transitions.
var ErrInvalidPolicy = errors.New("tracker: invalid threshold policy")

// Policy holds the stock thresholds. A machine is low on stock when
// StockLevel < LowStockThreshold and sold out when
// StockLevel <= SoldOutThreshold.
type Policy struct {
	LowStockThreshold int
	SoldOutThreshold  int
}

// DefaultPolicy returns the 3 / 0 thresholds.
func DefaultPolicy() Policy {
	return Policy{
		LowStockThreshold: DefaultLowStockThreshold,
		SoldOutThreshold:  DefaultSoldOutThreshold,
	}
}

// Validate checks that the thresholds are usable.
func (p Policy) Validate() error {
	if p.SoldOutThreshold < 0 {
		return fmt.Errorf("%w: sold-out threshold %d is negative", ErrInvalidPolicy, p.SoldOutThreshold)
	}
	if p.LowStockThreshold <= p.SoldOutThreshold {
		return fmt.Errorf("%w: low-stock threshold %d must exceed sold-out threshold %d",
			ErrInvalidPolicy, p.LowStockThreshold, p.SoldOutThreshold)
	}
	return nil
}

func (p Policy) isLow(stock int) bool {
	return stock < p.LowStockThreshold
}

func (p Policy) isSoldOut(stock int) bool {
	return stock <= p.SoldOutThreshold
}
