package ledger

import (
	"time"

	"option-sentinel/internal/models"
)

// SessionAverage replays the executions of one instrument observed since
// the session started and returns the FIFO open quantity and average
// price. The session book is never seeded; it only knows fills the
// process saw itself, so its coverage is compared against the broker's
// net quantity before its average is trusted.
func SessionAverage(execs []models.Execution, key models.InstrumentKey, products []models.ProductType, start time.Time) (qty, avg float64) {
	allowed := make(map[models.ProductType]bool, len(products))
	for _, p := range products {
		allowed[p] = true
	}
	var window []models.Execution
	for _, e := range execs {
		if e.Key() != key || !allowed[e.Product] {
			continue
		}
		if e.Time.Before(start) {
			continue
		}
		window = append(window, e)
	}
	book := Replay(window, nil)
	qty = book.OpenQty()
	avg, _ = book.AvgPrice()
	return qty, avg
}
