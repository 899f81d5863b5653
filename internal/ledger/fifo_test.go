package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"option-sentinel/internal/models"
)

var testKey = models.InstrumentKey{Exchange: models.NFO, Symbol: "NIFTY25SEP24000CE"}

func buy(t time.Time, qty, price float64) models.Execution {
	return models.Execution{
		Time: t, Side: models.OrderSideBuy, Quantity: qty, Price: price,
		Symbol: testKey.Symbol, Exchange: testKey.Exchange, Product: models.ProductNRML,
	}
}

func sell(t time.Time, qty, price float64) models.Execution {
	e := buy(t, qty, price)
	e.Side = models.OrderSideSell
	return e
}

func TestReplaySeedOnly(t *testing.T) {
	book := Replay(nil, &models.Lot{Quantity: 10, Price: 100})

	assert.Equal(t, 10.0, book.OpenQty())
	avg, ok := book.AvgPrice()
	require.True(t, ok)
	assert.Equal(t, 100.0, avg)
}

func TestReplayIgnoresEmptySeed(t *testing.T) {
	book := Replay(nil, &models.Lot{Quantity: 0, Price: 100})
	assert.Equal(t, 0.0, book.OpenQty())

	book = Replay(nil, &models.Lot{Quantity: 10, Price: 0})
	assert.Equal(t, 0.0, book.OpenQty())
}

func TestReplayPartialSell(t *testing.T) {
	base := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	book := Replay([]models.Execution{
		buy(base, 10, 100),
		sell(base.Add(time.Minute), 4, 110),
	}, nil)

	assert.Equal(t, 6.0, book.OpenQty())
	avg, ok := book.AvgPrice()
	require.True(t, ok)
	assert.Equal(t, 100.0, avg)
}

func TestReplayConsumesOldestLotFirst(t *testing.T) {
	base := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	book := Replay([]models.Execution{
		buy(base, 5, 100),
		buy(base.Add(time.Minute), 5, 200),
		sell(base.Add(2*time.Minute), 5, 150),
	}, nil)

	assert.Equal(t, 5.0, book.OpenQty())
	avg, ok := book.AvgPrice()
	require.True(t, ok)
	assert.Equal(t, 200.0, avg)
}

func TestReplayOverdrainSilently(t *testing.T) {
	base := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	book := Replay([]models.Execution{
		buy(base, 5, 100),
		sell(base.Add(time.Minute), 8, 110),
	}, nil)

	assert.Equal(t, 0.0, book.OpenQty())
	_, ok := book.AvgPrice()
	assert.False(t, ok)
}

func TestReplaySellAcrossLots(t *testing.T) {
	base := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	book := Replay([]models.Execution{
		buy(base, 4, 100),
		buy(base.Add(time.Minute), 6, 120),
		sell(base.Add(2*time.Minute), 7, 130),
	}, nil)

	assert.Equal(t, 3.0, book.OpenQty())
	avg, ok := book.AvgPrice()
	require.True(t, ok)
	assert.Equal(t, 120.0, avg)
}

func TestSessionAverageWindow(t *testing.T) {
	base := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	start := base.Add(time.Hour)

	execs := []models.Execution{
		buy(base, 10, 90), // before session, excluded
		buy(start.Add(time.Minute), 5, 100),
		buy(start.Add(2*time.Minute), 5, 110),
		sell(start.Add(3*time.Minute), 2, 120),
	}

	qty, avg := SessionAverage(execs, testKey, []models.ProductType{models.ProductNRML}, start)
	assert.Equal(t, 8.0, qty)
	// Oldest session lot partially consumed: 3@100 + 5@110
	assert.InDelta(t, (3*100.0+5*110.0)/8.0, avg, 1e-9)
}

func TestSessionAverageFiltersProductAndInstrument(t *testing.T) {
	start := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)

	other := buy(start.Add(time.Minute), 5, 100)
	other.Symbol = "BANKNIFTY25SEP52000PE"
	mis := buy(start.Add(time.Minute), 5, 100)
	mis.Product = models.ProductMIS

	execs := []models.Execution{other, mis, buy(start.Add(2*time.Minute), 3, 150)}

	qty, avg := SessionAverage(execs, testKey, []models.ProductType{models.ProductNRML}, start)
	assert.Equal(t, 3.0, qty)
	assert.Equal(t, 150.0, avg)
}

func TestSessionAverageEmpty(t *testing.T) {
	start := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	qty, avg := SessionAverage(nil, testKey, []models.ProductType{models.ProductNRML}, start)
	assert.Equal(t, 0.0, qty)
	assert.Equal(t, 0.0, avg)
}
