package feed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"option-sentinel/internal/broker"
	"option-sentinel/internal/models"
)

func TestExtractListShapes(t *testing.T) {
	row := map[string]any{"symbol": "X"}

	// Bare list
	rows := ExtractList([]any{row})
	require.Len(t, rows, 1)

	// Status envelope
	rows = ExtractList(map[string]any{"status": "success", "data": []any{row}})
	require.Len(t, rows, 1)

	// Nested container
	rows = ExtractList(map[string]any{
		"status": "success",
		"data":   map[string]any{"trades": []any{row}},
	})
	require.Len(t, rows, 1)

	// Keyed list without envelope
	rows = ExtractList(map[string]any{"orders": []any{row}})
	require.Len(t, rows, 1)

	assert.Empty(t, ExtractList(nil))
	assert.Empty(t, ExtractList("garbage"))
	assert.Empty(t, ExtractList(map[string]any{"status": "error", "message": "boom"}))
}

func TestParseTime(t *testing.T) {
	// Epoch seconds
	ts, ok := ParseTime(float64(1751364000))
	require.True(t, ok)
	assert.Equal(t, int64(1751364000), ts.Unix())

	// Epoch milliseconds
	ts, ok = ParseTime(float64(1751364000123))
	require.True(t, ok)
	assert.Equal(t, int64(1751364000), ts.Unix())

	// Textual, no zone defaults to UTC
	ts, ok = ParseTime("2025-07-01 10:30:00")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 7, 1, 10, 30, 0, 0, time.UTC), ts)

	_, ok = ParseTime("")
	assert.False(t, ok)
	_, ok = ParseTime(float64(0))
	assert.False(t, ok)
}

func TestNormalizeRowRejectsMalformed(t *testing.T) {
	valid := map[string]any{
		"exchange": "NFO",
		"symbol":   "NIFTY25SEP24000CE",
		"product":  "NRML",
		"transaction_type": "BUY",
		"qty":              10.0,
		"average_price":    100.0,
		"trade_id":         "T1",
		"fill_timestamp":   "2025-07-01T10:30:00Z",
	}

	exec, ok := normalizeRow(valid)
	require.True(t, ok)
	assert.Equal(t, models.OrderSideBuy, exec.Side)
	assert.Equal(t, 10.0, exec.Quantity)
	assert.Equal(t, "T1", exec.ExecID)

	for field, bad := range map[string]any{
		"symbol":           "",
		"transaction_type": "MODIFY",
		"qty":              0.0,
		"fill_timestamp":   "not-a-time",
	} {
		row := map[string]any{}
		for k, v := range valid {
			row[k] = v
		}
		row[field] = bad
		_, ok := normalizeRow(row)
		assert.False(t, ok, "row with bad %s must be rejected", field)
	}
}

func TestNormalizeRowNumericOrderID(t *testing.T) {
	row := map[string]any{
		"exchange": "NFO",
		"symbol":   "NIFTY25SEP24000CE",
		"transaction_type": "SELL",
		"quantity":         5.0,
		"price":            101.5,
		"order_id":         float64(240701000123),
		"order_timestamp":  "2025-07-01 10:30:00",
	}
	exec, ok := normalizeRow(row)
	require.True(t, ok)
	assert.Equal(t, "240701000123", exec.ExecID)
}

func TestDedupCacheEvictsOldestFirst(t *testing.T) {
	c := NewDedupCache(3)

	assert.True(t, c.Add("a"))
	assert.True(t, c.Add("b"))
	assert.True(t, c.Add("c"))
	assert.False(t, c.Add("a"))

	// Capacity reached: "a" is evicted to admit "d".
	assert.True(t, c.Add("d"))
	assert.Equal(t, 3, c.Len())
	assert.True(t, c.Add("a"))
	assert.False(t, c.Add("c"))

	c.Reset()
	assert.Equal(t, 0, c.Len())
	assert.True(t, c.Add("c"))
}

func TestDedupCacheEmptyIDAlwaysNew(t *testing.T) {
	c := NewDedupCache(3)
	assert.True(t, c.Add(""))
	assert.True(t, c.Add(""))
	assert.Equal(t, 0, c.Len())
}

func TestExecutionLogAppendPrune(t *testing.T) {
	base := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	mk := func(offset time.Duration) models.Execution {
		return models.Execution{
			Time: base.Add(offset), Side: models.OrderSideBuy, Quantity: 1, Price: 100,
			Symbol: "NIFTY25SEP24000CE", Exchange: models.NFO, Product: models.ProductNRML,
		}
	}

	log := NewExecutionLog()
	log.Append([]models.Execution{mk(2 * time.Hour)})
	log.Append([]models.Execution{mk(0), mk(time.Hour)})
	assert.Equal(t, 3, log.Len())

	scope := NewScope([]string{"NFO"}, []string{"NRML"})
	execs := log.ForInstrument(models.InstrumentKey{Exchange: models.NFO, Symbol: "NIFTY25SEP24000CE"}, scope)
	require.Len(t, execs, 3)
	assert.True(t, execs[0].Time.Before(execs[1].Time))
	assert.True(t, execs[1].Time.Before(execs[2].Time))

	log.Prune(base.Add(90 * time.Minute))
	assert.Equal(t, 1, log.Len())
}

// stubClient serves the same trade row from multiple execution sources
// so the dedup has overlap to absorb.
type stubClient struct {
	row map[string]any
}

func (s *stubClient) PositionBook(ctx context.Context) (any, error) { return []any{}, nil }
func (s *stubClient) OrderBook(ctx context.Context) (any, error)    { return []any{}, nil }
func (s *stubClient) TradeBook(ctx context.Context) (any, error)    { return []any{s.row}, nil }
func (s *stubClient) OrderHistory(ctx context.Context) (any, error) { return []any{s.row}, nil }
func (s *stubClient) Executions(ctx context.Context) (any, error)   { return nil, nil }
func (s *stubClient) PlaceOrder(ctx context.Context, params broker.OrderParams) (string, error) {
	return "", fmt.Errorf("not supported")
}
func (s *stubClient) CancelOrder(ctx context.Context, orderID string) error {
	return fmt.Errorf("not supported")
}

var _ broker.Client = (*stubClient)(nil)

func TestNormalizerDedupsAcrossSources(t *testing.T) {
	client := &stubClient{row: map[string]any{
		"exchange": "NFO",
		"symbol":   "NIFTY25SEP24000CE",
		"product":  "NRML",
		"transaction_type": "BUY",
		"qty":              10.0,
		"average_price":    100.0,
		"trade_id":         "T1",
		"fill_timestamp":   time.Now().UTC().Format(time.RFC3339),
	}}
	n := NewNormalizer(client, NewDedupCache(100), zerolog.Nop())

	execs := n.Executions(context.Background(), 24*time.Hour)
	require.Len(t, execs, 1)
	assert.Equal(t, "T1", execs[0].ExecID)

	// The sources still serve the row; it must not reappear.
	assert.Empty(t, n.Executions(context.Background(), 24*time.Hour))
}
