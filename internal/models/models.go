// Package models provides domain models for the option sentinel.
package models

import (
	"strings"
	"time"
)

// Exchange represents a stock exchange.
type Exchange string

const (
	NSE Exchange = "NSE"
	BSE Exchange = "BSE"
	NFO Exchange = "NFO" // NSE F&O
	BFO Exchange = "BFO" // BSE F&O
)

// OrderSide represents the side of an order or execution.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// ProductType represents the product type of an order.
type ProductType string

const (
	ProductMIS  ProductType = "MIS"  // Intraday
	ProductNRML ProductType = "NRML" // F&O Normal
)

// InstrumentKey identifies one tradeable instrument. It is the immutable
// key for all per-instrument state.
type InstrumentKey struct {
	Exchange Exchange
	Symbol   string
}

func (k InstrumentKey) String() string {
	return string(k.Exchange) + ":" + k.Symbol
}

// IsOptionSymbol reports whether a trading symbol names a call or put
// option (CE/PE suffix).
func IsOptionSymbol(symbol string) bool {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	return strings.HasSuffix(s, "CE") || strings.HasSuffix(s, "PE")
}

// Tick represents a real-time last-traded-price update.
type Tick struct {
	Instrument InstrumentKey
	LTP        float64
	Timestamp  time.Time
}
