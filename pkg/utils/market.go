package utils

import "time"

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// MarketStatus represents the current market session.
type MarketStatus string

const (
	MarketOpen    MarketStatus = "OPEN"
	MarketPreOpen MarketStatus = "PRE_OPEN"
	MarketClosed  MarketStatus = "CLOSED"
)

// GetMarketStatus returns the current market status for the derivatives
// segment (9:15 - 15:30 IST, weekdays).
func GetMarketStatus() MarketStatus {
	now := time.Now().In(IndiaLocation)

	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return MarketClosed
	}

	minutes := now.Hour()*60 + now.Minute()

	// Pre-open: 9:00 - 9:15
	if minutes >= 540 && minutes < 555 {
		return MarketPreOpen
	}

	// Open: 9:15 - 15:30
	if minutes >= 555 && minutes < 930 {
		return MarketOpen
	}

	return MarketClosed
}

// IsMarketOpen returns true if the derivatives market is currently open.
func IsMarketOpen() bool {
	return GetMarketStatus() == MarketOpen
}
