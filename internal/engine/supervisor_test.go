package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"option-sentinel/internal/broker"
	"option-sentinel/internal/config"
	"option-sentinel/internal/models"
)

// fakeBroker serves canned payloads in the shapes real backends use and
// records order actions.
type fakeBroker struct {
	positions []map[string]any
	orders    []map[string]any
	trades    []map[string]any

	placed    []broker.OrderParams
	placedIDs []string
	cancelled []string
	nextID    int

	posErr error
}

func (f *fakeBroker) PositionBook(ctx context.Context) (any, error) {
	if f.posErr != nil {
		return nil, f.posErr
	}
	// Bare list shape
	return toAny(f.positions), nil
}

func (f *fakeBroker) OrderBook(ctx context.Context) (any, error) {
	// Envelope shape
	return map[string]any{"status": "success", "data": toAny(f.orders)}, nil
}

func (f *fakeBroker) TradeBook(ctx context.Context) (any, error) {
	// Nested container shape
	return map[string]any{"status": "success", "data": map[string]any{"trades": toAny(f.trades)}}, nil
}

func (f *fakeBroker) OrderHistory(ctx context.Context) (any, error) { return nil, nil }
func (f *fakeBroker) Executions(ctx context.Context) (any, error)  { return nil, nil }

func (f *fakeBroker) PlaceOrder(ctx context.Context, params broker.OrderParams) (string, error) {
	f.nextID++
	id := fmt.Sprintf("ORD%03d", f.nextID)
	f.placed = append(f.placed, params)
	f.placedIDs = append(f.placedIDs, id)
	return id, nil
}

func (f *fakeBroker) CancelOrder(ctx context.Context, orderID string) error {
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func toAny(rows []map[string]any) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}

var _ broker.Client = (*fakeBroker)(nil)

const testSymbol = "NIFTY25SEP24000CE"

func testConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{
			CycleInterval:     3 * time.Second,
			SubscribeInterval: 10 * time.Second,
			SummaryInterval:   60 * time.Second,
			Exchanges:         []string{"NFO", "BFO"},
			Products:          []string{"NRML", "MIS"},
			TickSize:          0.05,
			SellMargin:        2.0,
			PriceEpsilon:      1e-6,
		},
		Costing: config.CostingConfig{
			UseExecutions:      true,
			LookbackDays:       1,
			SyntheticBootstrap: true,
			CoverageRatio:      0.95,
			DeferWindow:        2 * time.Second,
			DedupCapacity:      100,
		},
	}
}

func positionRow(qty, avg float64) map[string]any {
	return map[string]any{
		"exchange": "NFO",
		"symbol":   testSymbol,
		"product":  "NRML",
		"quantity": qty, "average_price": avg,
	}
}

func tradeRow(id, side string, qty, price float64, ts time.Time) map[string]any {
	return map[string]any{
		"exchange": "NFO",
		"symbol":   testSymbol,
		"product":  "NRML",
		"transaction_type": side,
		"qty":              qty,
		"average_price":    price,
		"trade_id":         id,
		"fill_timestamp":   ts.UTC().Format(time.RFC3339),
	}
}

func sellOrderRow(id string, qty, price float64) map[string]any {
	return map[string]any{
		"exchange": "NFO",
		"symbol":   testSymbol,
		"product":  "NRML",
		"transaction_type": "SELL",
		"quantity":         qty,
		"price":            price,
		"orderid":          id,
		"order_status":     "open",
	}
}

func newTestEngine(fake *fakeBroker) *Engine {
	return New(testConfig(), fake, zerolog.Nop())
}

var testInstrument = models.InstrumentKey{Exchange: models.NFO, Symbol: testSymbol}

func TestCyclePlacesProtectiveSell(t *testing.T) {
	fake := &fakeBroker{
		positions: []map[string]any{positionRow(10, 100)},
		trades:    []map[string]any{tradeRow("T1", "BUY", 10, 100, time.Now().Add(-time.Minute))},
	}
	e := newTestEngine(fake)
	e.cycle(context.Background())

	require.Len(t, fake.placed, 1)
	p := fake.placed[0]
	assert.Equal(t, models.OrderSideSell, p.Side)
	assert.Equal(t, models.OrderTypeLimit, p.Type)
	assert.Equal(t, 10.0, p.Quantity)
	// avg 100 + margin 2, tick 0.05
	assert.Equal(t, 102.00, p.Price)
	assert.Equal(t, testInstrument, p.Instrument)

	st, ok := e.tracker.View(testInstrument)
	require.True(t, ok)
	assert.True(t, st.Tracking)
	assert.False(t, st.Armed)
	require.NotNil(t, st.OpenSell)
	assert.Equal(t, "ORD001", st.OpenSell.OrderID)
	assert.Equal(t, 102.00, st.OpenSell.Price)
}

func TestCycleKeepsMatchingOrder(t *testing.T) {
	fake := &fakeBroker{
		positions: []map[string]any{positionRow(10, 100)},
		trades:    []map[string]any{tradeRow("T1", "BUY", 10, 100, time.Now().Add(-time.Minute))},
	}
	e := newTestEngine(fake)
	e.cycle(context.Background())
	require.Len(t, fake.placed, 1)

	// Broker now reports the order we placed at the right price.
	fake.orders = []map[string]any{sellOrderRow("ORD001", 10, 102.00)}
	e.cycle(context.Background())

	assert.Len(t, fake.placed, 1, "matching order must not be replaced")
	assert.Empty(t, fake.cancelled)
	st, ok := e.tracker.View(testInstrument)
	require.True(t, ok)
	assert.False(t, st.ManualOverride)
}

func TestCycleLeavesManualOverrideAlone(t *testing.T) {
	fake := &fakeBroker{
		positions: []map[string]any{positionRow(10, 100)},
		trades:    []map[string]any{tradeRow("T1", "BUY", 10, 100, time.Now().Add(-time.Minute))},
	}
	e := newTestEngine(fake)
	e.cycle(context.Background())
	require.Len(t, fake.placed, 1)

	// Human moved the order to 105.
	fake.orders = []map[string]any{sellOrderRow("ORD001", 10, 105.00)}
	e.cycle(context.Background())
	e.cycle(context.Background())

	assert.Len(t, fake.placed, 1, "overridden order must not be replaced")
	assert.Empty(t, fake.cancelled, "overridden order must not be cancelled")
	st, ok := e.tracker.View(testInstrument)
	require.True(t, ok)
	assert.True(t, st.ManualOverride)
}

func TestCycleRepricesQuantityMismatch(t *testing.T) {
	fake := &fakeBroker{
		positions: []map[string]any{positionRow(10, 100)},
		trades:    []map[string]any{tradeRow("T1", "BUY", 10, 100, time.Now().Add(-time.Minute))},
	}
	e := newTestEngine(fake)
	e.cycle(context.Background())
	require.Len(t, fake.placed, 1)

	// A stale SELL for the wrong quantity: cancel it, place a fresh one.
	fake.orders = []map[string]any{sellOrderRow("STALE1", 5, 102.00)}
	e.cycle(context.Background())

	assert.Equal(t, []string{"STALE1"}, fake.cancelled)
	require.Len(t, fake.placed, 2)
	assert.Equal(t, 10.0, fake.placed[1].Quantity)
	assert.Equal(t, 102.00, fake.placed[1].Price)
}

func TestCycleFlatCancelsAndResets(t *testing.T) {
	fake := &fakeBroker{
		positions: []map[string]any{positionRow(10, 100)},
		trades:    []map[string]any{tradeRow("T1", "BUY", 10, 100, time.Now().Add(-time.Minute))},
	}
	e := newTestEngine(fake)
	e.cycle(context.Background())
	require.Len(t, fake.placed, 1)

	// Position closed; our order is still in the book.
	fake.positions = nil
	fake.orders = []map[string]any{sellOrderRow("ORD001", 10, 102.00)}
	e.cycle(context.Background())

	assert.Equal(t, []string{"ORD001"}, fake.cancelled)
	st, ok := e.tracker.View(testInstrument)
	require.True(t, ok)
	assert.False(t, st.Tracking)
	assert.False(t, st.ManualOverride)
	assert.Nil(t, st.OpenSell)
	assert.False(t, st.HasSession())

	// Stays quiet while flat.
	e.cycle(context.Background())
	assert.Len(t, fake.placed, 1)
	assert.Len(t, fake.cancelled, 1)
}

func TestCycleQuantityIncreaseRearms(t *testing.T) {
	fake := &fakeBroker{
		positions: []map[string]any{positionRow(10, 100)},
		trades:    []map[string]any{tradeRow("T1", "BUY", 10, 100, time.Now().Add(-time.Minute))},
	}
	e := newTestEngine(fake)
	e.cycle(context.Background())
	require.Len(t, fake.placed, 1)

	// Five more bought; the old SELL covers only ten.
	fake.positions = []map[string]any{positionRow(15, 101)}
	fake.trades = append(fake.trades, tradeRow("T2", "BUY", 5, 103, time.Now()))
	fake.orders = []map[string]any{sellOrderRow("ORD001", 10, 102.00)}
	e.cycle(context.Background())

	require.Len(t, fake.placed, 2)
	assert.Equal(t, 15.0, fake.placed[1].Quantity)
}

func TestCycleIgnoresShortPositions(t *testing.T) {
	fake := &fakeBroker{
		positions: []map[string]any{positionRow(-10, 100)},
	}
	e := newTestEngine(fake)
	e.cycle(context.Background())

	assert.Empty(t, fake.placed)
	assert.Equal(t, 0, e.tracker.TrackedCount())
}

func TestCycleIgnoresNonOptionSymbols(t *testing.T) {
	row := positionRow(10, 100)
	row["symbol"] = "NIFTY25SEPFUT"
	fake := &fakeBroker{positions: []map[string]any{row}}
	e := newTestEngine(fake)
	e.cycle(context.Background())

	assert.Empty(t, fake.placed)
	assert.Equal(t, 0, e.tracker.TrackedCount())
}

func TestDedupDoesNotStarveLedger(t *testing.T) {
	fake := &fakeBroker{
		positions: []map[string]any{positionRow(10, 100)},
		trades:    []map[string]any{tradeRow("T1", "BUY", 10, 100, time.Now().Add(-time.Minute))},
	}
	e := newTestEngine(fake)

	// The same trade row is served every cycle; dedup admits it once but
	// the retained log must keep feeding the costing engines.
	for i := 0; i < 3; i++ {
		e.cycle(context.Background())
	}

	assert.Equal(t, 1, e.execLog.Len())
	execs := e.execLog.ForInstrument(testInstrument, e.scope)
	require.Len(t, execs, 1)
	assert.Equal(t, 10.0, execs[0].Quantity)
}

func TestCycleSkipsOnPositionBookFailure(t *testing.T) {
	fake := &fakeBroker{
		positions: []map[string]any{positionRow(10, 100)},
		trades:    []map[string]any{tradeRow("T1", "BUY", 10, 100, time.Now().Add(-time.Minute))},
	}
	e := newTestEngine(fake)
	e.cycle(context.Background())
	require.Len(t, fake.placed, 1)

	// The position book blips. A failed snapshot must not be mistaken
	// for all-flat: the live protective order stays in the book.
	fake.posErr = errors.New("gateway timeout")
	fake.orders = []map[string]any{sellOrderRow("ORD001", 10, 102.00)}
	e.cycle(context.Background())

	assert.Empty(t, fake.cancelled)
	assert.Len(t, fake.placed, 1)
	st, ok := e.tracker.View(testInstrument)
	require.True(t, ok)
	assert.True(t, st.Tracking)

	// Book recovers; nothing was lost in between.
	fake.posErr = nil
	e.cycle(context.Background())
	assert.Empty(t, fake.cancelled)
	assert.Len(t, fake.placed, 1)
}

func TestSeedDoesNotRefireAfterRoundTrip(t *testing.T) {
	now := time.Now()
	fake := &fakeBroker{
		positions: []map[string]any{positionRow(10, 100)},
		trades:    []map[string]any{tradeRow("T1", "BUY", 10, 100, now.Add(-10*time.Minute))},
	}
	e := newTestEngine(fake)
	e.cycle(context.Background())
	require.Len(t, fake.placed, 1)
	assert.Equal(t, 102.00, fake.placed[0].Price)

	// Round trip: sold out, our order cancelled.
	fake.positions = nil
	fake.trades = append(fake.trades, tradeRow("T2", "SELL", 10, 101, now.Add(-5*time.Minute)))
	fake.orders = []map[string]any{sellOrderRow("ORD001", 10, 102.00)}
	e.cycle(context.Background())
	assert.Equal(t, []string{"ORD001"}, fake.cancelled)

	// Re-entry at 200 with only three of ten fills visible yet. A
	// re-fired snapshot seed would be drained by the earlier sell and
	// leave the stale 100-rupee lots as open inventory; the target must
	// come from the fresh fills instead.
	fake.positions = []map[string]any{positionRow(10, 200)}
	fake.trades = append(fake.trades, tradeRow("T3", "BUY", 3, 200, now.Add(time.Minute)))
	fake.orders = nil
	e.cycle(context.Background())

	require.Len(t, fake.placed, 2)
	assert.Equal(t, 10.0, fake.placed[1].Quantity)
	assert.Equal(t, 202.00, fake.placed[1].Price)
}

func TestStateReadsDoNotRaceWithCycles(t *testing.T) {
	fake := &fakeBroker{
		positions: []map[string]any{positionRow(10, 100)},
		trades:    []map[string]any{tradeRow("T1", "BUY", 10, 100, time.Now().Add(-time.Minute))},
	}
	e := newTestEngine(fake)

	// The relay polls tracker views while the supervisor reconciles.
	// Run both hot under the race detector.
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			e.tracker.TrackedKeys()
			e.tracker.Summaries()
			if st, ok := e.tracker.View(testInstrument); ok {
				_ = st.Tracking
			}
		}
	}()

	for i := 0; i < 200; i++ {
		e.cycle(context.Background())
	}
	close(done)
	wg.Wait()

	assert.Equal(t, 1, e.tracker.TrackedCount())
}
