// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"math"

	"option-sentinel/internal/models"
)

// RoundToTick rounds a price to the nearest exchange tick, then to two
// decimals, half up. Rounding an already tick-aligned price returns the
// same price.
func RoundToTick(price, tick float64) float64 {
	if tick > 0 {
		price = math.Floor(price/tick+0.5) * tick
	}
	return math.Floor(price*100+0.5) / 100
}

// WeightedAvg returns the quantity-weighted average price of a lot queue,
// or 0 when total quantity is not positive.
func WeightedAvg(lots []models.Lot) float64 {
	var num, den float64
	for _, l := range lots {
		num += l.Quantity * l.Price
		den += l.Quantity
	}
	if den <= 0 {
		return 0
	}
	return num / den
}

// FormatIndianCurrency formats an amount with the rupee sign and two
// decimals.
func FormatIndianCurrency(amount float64) string {
	if amount < 0 {
		return fmt.Sprintf("-₹%.2f", -amount)
	}
	return fmt.Sprintf("₹%.2f", amount)
}

// FormatQty renders a float quantity without a trailing fraction when it
// is whole, matching how quantities are sent to the exchange.
func FormatQty(qty float64) string {
	if qty == math.Trunc(qty) {
		return fmt.Sprintf("%d", int64(qty))
	}
	return fmt.Sprintf("%.2f", qty)
}
