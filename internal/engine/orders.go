package engine

import (
	"context"
	"time"

	"option-sentinel/internal/broker"
	"option-sentinel/internal/errors"
	"option-sentinel/internal/logging"
	"option-sentinel/internal/metrics"
	"option-sentinel/internal/models"
	"option-sentinel/pkg/utils"
)

const orderTag = "sentinel"

// cancelOpenSells cancels every open SELL order of one instrument. The
// order book reader already filters to cancellable statuses, so
// anything in the list is safe to cancel.
func (e *Engine) cancelOpenSells(ctx context.Context, key models.InstrumentKey, open []models.OpenOrder) {
	for _, o := range open {
		if o.Side != models.OrderSideSell {
			continue
		}
		if err := e.client.CancelOrder(ctx, o.OrderID); err != nil {
			metrics.IncOrder("failed")
			log := logging.WithOrderID(logging.WithInstrument(e.log, key.String()), o.OrderID)
			log.Warn().Err(err).Msg("cancel failed")
			continue
		}
		metrics.IncOrder("cancelled")
		logging.LogOrderAction(e.log, "cancelled", key.String(), o.OrderID, o.Quantity, o.Price)
		// Let the cancellation propagate before the next action.
		time.Sleep(100 * time.Millisecond)
	}
}

// placeSell places the protective SELL LIMIT at avg plus the configured
// margin, rounded to tick. Returns nil on failure; the next cycle
// retries.
func (e *Engine) placeSell(ctx context.Context, key models.InstrumentKey, qty, avg float64) *models.SellOrder {
	if qty <= 0 {
		return nil
	}
	px := utils.RoundToTick(avg+e.cfg.Engine.SellMargin, e.cfg.Engine.TickSize)
	orderID, err := e.client.PlaceOrder(ctx, broker.OrderParams{
		Instrument: key,
		Side:       models.OrderSideSell,
		Type:       models.OrderTypeLimit,
		Product:    models.ProductType(e.cfg.PlaceProduct()),
		Quantity:   qty,
		Price:      px,
		Tag:        orderTag,
	})
	if err != nil {
		metrics.IncOrder("failed")
		e.log.Error().Err(errors.Wrap(err, "place sell")).
			Str("instrument", key.String()).
			Float64("qty", qty).
			Float64("price", px).
			Msg("failed to place SELL")
		return nil
	}
	metrics.IncOrder("placed")
	logging.LogOrderAction(e.log, "placed", key.String(), orderID, qty, px)
	return &models.SellOrder{OrderID: orderID, Price: px, Quantity: qty}
}
