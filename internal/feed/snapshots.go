package feed

import (
	"context"

	"github.com/rs/zerolog"

	"option-sentinel/internal/broker"
	"option-sentinel/internal/models"
	"option-sentinel/pkg/utils"
)

// Scope restricts snapshots to the instrument universe in play:
// derivative exchanges, configured products, CE/PE symbols.
type Scope struct {
	exchanges map[models.Exchange]bool
	products  map[models.ProductType]bool
}

// NewScope builds a scope from configured exchange and product names.
func NewScope(exchanges, products []string) Scope {
	s := Scope{
		exchanges: make(map[models.Exchange]bool, len(exchanges)),
		products:  make(map[models.ProductType]bool, len(products)),
	}
	for _, e := range exchanges {
		s.exchanges[models.Exchange(e)] = true
	}
	for _, p := range products {
		s.products[models.ProductType(p)] = true
	}
	return s
}

// Contains reports whether an instrument/product combination is tracked.
func (s Scope) Contains(exchange models.Exchange, symbol string, product models.ProductType) bool {
	return s.exchanges[exchange] && s.products[product] && models.IsOptionSymbol(symbol)
}

// ContainsInstrument reports whether the instrument itself is in scope,
// irrespective of product.
func (s Scope) ContainsInstrument(key models.InstrumentKey) bool {
	return s.exchanges[key.Exchange] && models.IsOptionSymbol(key.Symbol)
}

// ContainsProduct reports whether the product is in scope.
func (s Scope) ContainsProduct(product models.ProductType) bool {
	return s.products[product]
}

// Reader produces canonical position and open-order snapshots from the
// broker client. Both queries are pure and run once per supervisor cycle.
type Reader struct {
	client broker.Client
	scope  Scope
	log    zerolog.Logger
}

// NewReader creates a snapshot reader restricted to the scope.
func NewReader(client broker.Client, scope Scope, log zerolog.Logger) *Reader {
	return &Reader{
		client: client,
		scope:  scope,
		log:    log.With().Str("component", "snapshot").Logger(),
	}
}

/// Positions returns the net-long option positions: per instrument, the
// net quantity over all legs and the weighted average of the positive
// legs only. Short or flat instruments are omitted.
func (r *Reader) Positions(ctx context.Context) map[models.InstrumentKey]models.PositionSnapshot {
	payload, err := r.client.PositionBook(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("Position book fetch failed")
		return nil
	}

	legs := make(map[models.InstrumentKey][]models.Lot)
	for _, row := range ExtractList(payload) {
		exchange := models.Exchange(stringField(row, "exchange", "exch"))
		symbol := stringField(row, "symbol", "trading_symbol", "tradingsymbol")
		product := models.ProductType(stringField(row, "product", "product_type"))
		if !r.scope.Contains(exchange, symbol, product) {
			continue
		}

		qty := signedField(row, "quantity", "qty")
		if qty == 0 {
			continue
		}

		key := models.InstrumentKey{Exchange: exchange, Symbol: symbol}
		legs[key] = append(legs[key], models.Lot{
			Quantity: qty,
			Price:    floatField(row, "average_price", "avg_price", "price"),
		})
	}

	out := make(map[models.InstrumentKey]models.PositionSnapshot, len(legs))
	for key, lots := range legs {
		var net float64
		var longLots []models.Lot
		for _, l := range lots {
			net += l.Quantity
			if l.Quantity > 0 {
				longLots = append(longLots, l)
			}
		}
		// Shorts are never tracked
		if net <= 0 || len(longLots) == 0 {
			continue
		}
		out[key] = models.PositionSnapshot{
			Instrument: key,
			NetQty:     net,
			AvgPrice:   utils.WeightedAvg(longLots),
		}
	}

	return out
}

// OpenOrders returns the currently-open option orders grouped by
// instrument.
func (r *Reader) OpenOrders(ctx context.Context) map[models.InstrumentKey][]models.OpenOrder {
	payload, err := r.client.OrderBook(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("Order book fetch failed")
		return nil
	}

	out := make(map[models.InstrumentKey][]models.OpenOrder)
	for _, row := range ExtractList(payload) {
		exchange := models.Exchange(stringField(row, "exchange", "exch"))
		symbol := stringField(row, "symbol", "trading_symbol", "tradingsymbol")
		product := models.ProductType(stringField(row, "product", "product_type"))
		if !r.scope.Contains(exchange, symbol, product) {
			continue
		}

		status := stringField(row, "order_status", "status")
		if !isOpenStatus(status) {
			continue
		}

		key := models.InstrumentKey{Exchange: exchange, Symbol: symbol}
		out[key] = append(out[key], models.OpenOrder{
			OrderID:    rawString(row, "orderid", "order_id"),
			Instrument: key,
			Side:       models.OrderSide(stringField(row, "transaction_type", "side", "action")),
			Quantity:   floatField(row, "quantity", "qty"),
			Price:      floatField(row, "price"),
			Product:    product,
			Status:     status,
		})
	}

	return out
}

// signedField is floatField without the non-zero preference: position
// legs may legitimately carry negative quantities.
func signedField(row map[string]any, keys ...string) float64 {
	for _, k := range keys {
		switch v := row[k].(type) {
		case float64:
			return v
		case string:
			if f, ok := parseFloat(v); ok {
				return f
			}
		}
	}
	return 0
}
