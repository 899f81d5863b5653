package utils

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"option-sentinel/internal/models"
)

func TestRoundToTick(t *testing.T) {
	assert.Equal(t, 102.00, RoundToTick(102.0, 0.05))
	assert.Equal(t, 102.00, RoundToTick(101.99, 0.05))
	assert.Equal(t, 102.05, RoundToTick(102.03, 0.05))
	assert.Equal(t, 0.05, RoundToTick(0.049, 0.05))
	// Zero tick only applies the two-decimal rounding
	assert.Equal(t, 101.99, RoundToTick(101.994, 0))
}

// Property: rounding an already rounded price is a no-op.
func TestProperty_RoundToTickIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("Rounded price is a fixed point", prop.ForAll(
		func(price float64) bool {
			rounded := RoundToTick(price, 0.05)
			return RoundToTick(rounded, 0.05) == rounded
		},
		gen.Float64Range(0.05, 100000),
	))

	properties.TestingRun(t)
}

func TestWeightedAvg(t *testing.T) {
	assert.Equal(t, 0.0, WeightedAvg(nil))
	assert.Equal(t, 100.0, WeightedAvg([]models.Lot{{Quantity: 10, Price: 100}}))
	assert.InDelta(t, 110.0, WeightedAvg([]models.Lot{
		{Quantity: 5, Price: 100},
		{Quantity: 5, Price: 120},
	}), 1e-9)
}

func TestFormatQty(t *testing.T) {
	assert.Equal(t, "75", FormatQty(75))
	assert.Equal(t, "0.50", FormatQty(0.5))
}

func TestFormatIndianCurrency(t *testing.T) {
	assert.Equal(t, "₹102.00", FormatIndianCurrency(102))
	assert.Equal(t, "-₹0.05", FormatIndianCurrency(-0.05))
}
