package venue

import (
	"errors"
	"fmt"
	"time"
)

// ID names a trading venue. The bot manages exactly two.
type ID string

const (
	Edgex   ID = "edgex"
	Paradex ID = "paradex"
)

var ErrRejected = errors.New("order rejected by venue")

// OrderTimeoutError reports an order that was created on the venue but
// whose outcome was still unknown when the wait expired. OrderID lets
// the caller reconcile through a status query instead of resubmitting.
type OrderTimeoutError struct {
	OrderID string
	Err     error
}

func (e *OrderTimeoutError) Error() string {
	return fmt.Sprintf("order %s outcome unknown: %v", e.OrderID, e.Err)
}

func (e *OrderTimeoutError) Unwrap() error { return e.Err }

// Order is a single-leg order request against one venue.
type Order struct {
	Venue         ID
	Market        string
	IsBuy         bool
	Size          float64
	LimitPrice    float64
	ReduceOnly    bool
	ClientOrderID string
}

// FillResult reports a confirmed execution.
type FillResult struct {
	OrderID string
	Size    float64
	Price   float64
	Fee     float64
	Time    time.Time
}

// OrderStatus is returned by reconciliation queries after an ambiguous
// submission outcome.
type OrderStatus struct {
	OrderID    string
	FilledSize float64
	AvgPrice   float64
	Open       bool
}

// PositionReport is the venue's own view of current exposure, used to
// rebuild the ledger at startup.
type PositionReport struct {
	Venue      ID
	Market     string
	Size       float64
	EntryPrice float64
}
