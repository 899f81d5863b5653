// Package broker provides the consumed broker capability and its
// Zerodha Kite Connect implementation.
package broker

import (
	"context"

	"option-sentinel/internal/models"
)

// Client is the query-and-act surface the engine consumes. The book and
// execution queries return the raw decoded payload: depending on the
// backend it may be a status-wrapped envelope, a nested container, or a
// bare list. Shape detection lives entirely in the feed package; a
// backend that does not support a source returns (nil, nil).
type Client interface {
	PositionBook(ctx context.Context) (any, error)
	OrderBook(ctx context.Context) (any, error)

	// Execution sources, most reliable first. The order book doubles as
	// the last-resort fill source (completed entries).
	TradeBook(ctx context.Context) (any, error)
	OrderHistory(ctx context.Context) (any, error)
	Executions(ctx context.Context) (any, error)

	PlaceOrder(ctx context.Context, params OrderParams) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// Streamer is the real-time price feed the relay consumes.
type Streamer interface {
	Connect(ctx context.Context) error
	Disconnect() error
	SubscribeLTP(instruments []models.InstrumentKey) error
	UnsubscribeLTP(instruments []models.InstrumentKey) error
	OnTick(handler func(models.Tick))
	OnError(handler func(error))
}

// OrderParams describes an order to place.
type OrderParams struct {
	Instrument models.InstrumentKey
	Side       models.OrderSide
	Type       models.OrderType
	Product    models.ProductType
	Quantity   float64
	Price      float64
	Tag        string
}
