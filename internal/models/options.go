package models

import (
	"fmt"
	"time"
)

// OptionChain represents one expiry's option chain snapshot.
type OptionChain struct {
	Symbol    string
	SpotPrice float64
	Expiry    string // YYYY-MM-DD
	LotSize   int
	Strikes   []OptionStrike
}

// OptionStrike represents a single strike in the option chain.
type OptionStrike struct {
	Strike float64
	Call   *OptionData
	Put    *OptionData
}

// OptionData represents market data for a single contract.
type OptionData struct {
	LTP    float64
	OI     int64
	Volume int64
	IV     float64
	Greeks OptionGreeks
}

// OptionGreeks represents option Greeks.
type OptionGreeks struct {
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
	Rho   float64
}

// Expiry represents a selectable expiry date with its display label.
type Expiry struct {
	Value string `json:"value"` // YYYY-MM-DD
	Label string `json:"label"` // "12 Jun 2025 (4 DTE)"
}

// ExpiryDateLayout is the wire format for expiry dates.
const ExpiryDateLayout = "2006-01-02"

// MakeExpiry builds an Expiry for a date, deriving DTE from now.
func MakeExpiry(date, now time.Time) Expiry {
	dte := DaysToExpiry(date, now)
	return Expiry{
		Value: date.Format(ExpiryDateLayout),
		Label: fmt.Sprintf("%s (%d DTE)", date.Format("02 Jan 2006"), dte),
	}
}

// DaysToExpiry returns whole calendar days between now and the expiry date.
// Same-day expiry is 0 DTE; past dates also report 0.
func DaysToExpiry(expiry, now time.Time) int {
	e := time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 0, 0, 0, 0, time.UTC)
	n := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	d := int(e.Sub(n).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
