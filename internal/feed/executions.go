package feed

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"option-sentinel/internal/broker"
	"option-sentinel/internal/models"
)

// completed order statuses treated as fills when lifting executions out
// of the live order book.
var completedStatuses = map[string]bool{
	"COMPLETE":  true,
	"COMPLETED": true,
	"FILLED":    true,
	"TRADED":    true,
	"EXECUTED":  true,
}

// Normalizer merges the execution sources of a broker client into one
// time-ordered, de-duplicated sequence of canonical execution records.
type Normalizer struct {
	client broker.Client
	dedup  *DedupCache
	log    zerolog.Logger
}

// NewNormalizer creates a normalizer over the client's execution sources.
func NewNormalizer(client broker.Client, dedup *DedupCache, log zerolog.Logger) *Normalizer {
	return &Normalizer{
		client: client,
		dedup:  dedup,
		log:    log.With().Str("component", "normalizer").Logger(),
	}
}

// Executions returns the new, well-formed executions inside the lookback
// window, ascending by time. A failed source contributes nothing; a
// malformed record is skipped; an execution id that was already processed
// is dropped.
func (n *Normalizer) Executions(ctx context.Context, lookback time.Duration) []models.Execution {
	cutoff := time.Now().UTC().Add(-lookback)

	rows := n.sourceRows(ctx, "trade_book", n.client.TradeBook)
	rows = append(rows, n.sourceRows(ctx, "order_history", n.client.OrderHistory)...)
	rows = append(rows, n.sourceRows(ctx, "executions", n.client.Executions)...)

	// Last resort: completed entries in the live order book are fills too.
	for _, row := range n.sourceRows(ctx, "order_book", n.client.OrderBook) {
		if completedStatuses[stringField(row, "order_status", "status")] {
			rows = append(rows, row)
		}
	}

	execs := make([]models.Execution, 0, len(rows))
	for _, row := range rows {
		exec, ok := normalizeRow(row)
		if !ok || exec.Time.Before(cutoff) {
			continue
		}
		if !n.dedup.Add(exec.ExecID) {
			continue
		}
		execs = append(execs, exec)
	}

	sort.SliceStable(execs, func(i, j int) bool {
		return execs[i].Time.Before(execs[j].Time)
	})

	return execs
}

func (n *Normalizer) sourceRows(ctx context.Context, name string, fetch func(context.Context) (any, error)) []map[string]any {
	payload, err := fetch(ctx)
	if err != nil {
		n.log.Warn().Err(err).Str("source", name).Msg("Execution source failed")
		return nil
	}
	return ExtractList(payload)
}

// normalizeRow converts one raw row into a canonical execution. Rows
// without a resolvable instrument, timestamp, BUY/SELL side, or positive
// quantity are rejected.
func normalizeRow(row map[string]any) (models.Execution, bool) {
	exchange := stringField(row, "exchange", "exch")
	symbol := stringField(row, "symbol", "trading_symbol", "tradingsymbol")
	if exchange == "" || symbol == "" {
		return models.Execution{}, false
	}

	ts, ok := rowTime(row)
	if !ok {
		return models.Execution{}, false
	}

	side := stringField(row, "transaction_type", "side", "action")
	if side != string(models.OrderSideBuy) && side != string(models.OrderSideSell) {
		return models.Execution{}, false
	}

	qty := floatField(row, "qty", "filled_quantity", "quantity")
	if qty <= 0 {
		return models.Execution{}, false
	}

	price := floatField(row, "average_price", "price", "avg_price")
	if price < 0 {
		return models.Execution{}, false
	}

	return models.Execution{
		Time:     ts,
		Side:     models.OrderSide(side),
		Quantity: qty,
		Price:    price,
		Symbol:   symbol,
		Exchange: models.Exchange(exchange),
		Product:  models.ProductType(stringField(row, "product", "product_type")),
		ExecID:   rawString(row, "exec_id", "trade_id", "exchange_order_id", "orderid", "order_id"),
	}, true
}

// isOpenStatus reports whether an order status counts as live for
// reconciliation and cancellation purposes.
func isOpenStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "open", "pending", "trigger pending", "trigger_pending":
		return true
	}
	return false
}
