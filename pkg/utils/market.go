// Package utils provides shared utility functions.
package utils

import (
	"time"
)

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

// MarketStatus describes the NSE trading session state.
type MarketStatus string

const (
	MarketOpen    MarketStatus = "OPEN"
	MarketClosed  MarketStatus = "CLOSED"
	MarketPreOpen MarketStatus = "PRE_OPEN"
)

// GetMarketStatus returns the NSE session status at the given instant.
// Regular session is 09:15-15:30 IST, pre-open 09:00-09:15.
func GetMarketStatus(at time.Time) MarketStatus {
	now := at.In(IndiaLocation)

	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return MarketClosed
	}

	minutes := now.Hour()*60 + now.Minute()
	switch {
	case minutes >= 9*60 && minutes < 9*60+15:
		return MarketPreOpen
	case minutes >= 9*60+15 && minutes < 15*60+30:
		return MarketOpen
	default:
		return MarketClosed
	}
}
