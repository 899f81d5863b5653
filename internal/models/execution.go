package models

import "time"

// Execution is one normalized trade fill. Records are only created for
// BUY/SELL rows with positive quantity and a resolvable timestamp and
// instrument key.
type Execution struct {
	Time     time.Time
	Side     OrderSide
	Quantity float64
	Price    float64
	Symbol   string
	Exchange Exchange
	Product  ProductType
	ExecID   string // empty when the upstream row carried no id
}

// Key returns the instrument key of the execution.
func (e Execution) Key() InstrumentKey {
	return InstrumentKey{Exchange: e.Exchange, Symbol: e.Symbol}
}

// Lot is one unit of open inventory in a FIFO queue: a quantity bought at
// a unit price. Lot queues are ordered oldest first.
type Lot struct {
	Quantity float64
	Price    float64
}
