// Package ledger implements FIFO cost reconstruction for option
// positions from execution streams.
package ledger

import (
	"option-sentinel/internal/models"
)

// Book holds the open lots of a single instrument after a FIFO replay.
type Book struct {
	lots []models.Lot
}

// Replay rebuilds a lot book by walking executions in time order. BUYs
// push a new lot; SELLs consume the oldest lots first. A sell that
// exceeds the open quantity drains the book and the excess is ignored,
// which covers positions opened before the ledger window.
//
// When seed is non-nil and carries positive quantity and price, it is
// installed as the oldest lot before the replay. This bootstraps a
// position whose opening fills predate the available history.
func Replay(execs []models.Execution, seed *models.Lot) Book {
	var b Book
	if seed != nil && seed.Quantity > 0 && seed.Price > 0 {
		b.lots = append(b.lots, *seed)
	}
	for _, e := range execs {
		switch e.Side {
		case models.OrderSideBuy:
			b.lots = append(b.lots, models.Lot{Quantity: e.Quantity, Price: e.Price})
		case models.OrderSideSell:
			b.consume(e.Quantity)
		}
	}
	return b
}

func (b *Book) consume(qty float64) {
	for qty > 0 && len(b.lots) > 0 {
		head := &b.lots[0]
		if head.Quantity > qty {
			head.Quantity -= qty
			return
		}
		qty -= head.Quantity
		b.lots = b.lots[1:]
	}
}

// OpenQty returns the total open quantity of the book.
func (b Book) OpenQty() float64 {
	var total float64
	for _, lot := range b.lots {
		total += lot.Quantity
	}
	return total
}

// AvgPrice returns the quantity-weighted average price of the open lots.
// The second return is false when the book is empty.
func (b Book) AvgPrice() (float64, bool) {
	var qty, value float64
	for _, lot := range b.lots {
		qty += lot.Quantity
		value += lot.Quantity * lot.Price
	}
	if qty <= 0 {
		return 0, false
	}
	return value / qty, true
}

// Lots returns a copy of the open lots, oldest first.
func (b Book) Lots() []models.Lot {
	out := make([]models.Lot, len(b.lots))
	copy(out, b.lots)
	return out
}
