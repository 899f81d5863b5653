package models

// PositionSnapshot is the broker-reported view of one net-long instrument:
// the net quantity across all legs and the weighted average of the positive
// legs only. The snapshot is the single source of truth for how much is
// open; costing engines only estimate at what price.
type PositionSnapshot struct {
	Instrument InstrumentKey
	NetQty     float64
	AvgPrice   float64
}

// OpenOrder is one currently-open order from the broker order book,
// normalized to the fields the reconciler inspects.
type OpenOrder struct {
	OrderID    string
	Instrument InstrumentKey
	Side       OrderSide
	Quantity   float64
	Price      float64
	Product    ProductType
	Status     string
}

// SellOrder records the protective order the engine owns for an
// instrument: at most one per instrument.
type SellOrder struct {
	OrderID  string
	Price    float64
	Quantity float64
}
