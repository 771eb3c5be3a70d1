// Package analysis computes put/call-ratio market sentiment from an option
// chain snapshot. It is a pure function of its input: no state, no I/O.
package analysis

import (
	"fmt"
	"math"

	"vizbot/internal/models"
)

// Thresholds defines the PCR policy constants for sentiment classification.
// Values are configuration, not hard law; see config.AnalysisConfig.
type Thresholds struct {
	BullishPCR float64 // both ratios above -> Bullish
	BearishPCR float64 // both ratios below -> Bearish
	HighBand   float64 // distance from 1.0 for High confidence
	MediumBand float64 // distance from 1.0 for Medium confidence
}

// DefaultThresholds returns the default sentiment thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BullishPCR: 1.10,
		BearishPCR: 0.90,
		HighBand:   0.30,
		MediumBand: 0.20,
	}
}

// Analyze computes the market analysis for one chain snapshot.
//
// The PCR convention follows the usual contrarian reading: heavy put writing
// (both ratios above the bullish threshold) signals support below spot and is
// bullish for price; heavy call writing is bearish.
func Analyze(chain *models.OptionChain, t Thresholds) models.MarketAnalysis {
	var callOI, putOI, callVol, putVol int64
	for _, s := range chain.Strikes {
		if s.Call != nil {
			callOI += s.Call.OI
			callVol += s.Call.Volume
		}
		if s.Put != nil {
			putOI += s.Put.OI
			putVol += s.Put.Volume
		}
	}

	pcrOI := ratio(putOI, callOI)
	pcrVol := ratio(putVol, callVol)

	sentiment := classify(pcrOI, pcrVol, t)
	confidence := grade(pcrOI, pcrVol, sentiment, t)

	return models.MarketAnalysis{
		PCROI:          round4(pcrOI),
		PCRVolume:      round4(pcrVol),
		Sentiment:      sentiment,
		Confidence:     confidence,
		Interpretation: interpretation(sentiment, confidence, pcrOI, pcrVol),
		TradingBias:    tradingBias(sentiment, confidence),
	}
}

func ratio(put, call int64) float64 {
	if call == 0 {
		if put == 0 {
			return 1.0
		}
		// All-put chain: saturate rather than divide by zero.
		return 10.0
	}
	return float64(put) / float64(call)
}

func classify(pcrOI, pcrVol float64, t Thresholds) models.Sentiment {
	switch {
	case pcrOI > t.BullishPCR && pcrVol > t.BullishPCR:
		return models.SentimentBullish
	case pcrOI < t.BearishPCR && pcrVol < t.BearishPCR:
		return models.SentimentBearish
	default:
		return models.SentimentNeutral
	}
}

// grade measures how far both ratios sit from the neutral midpoint. Neutral
// sentiment never grades above Low: a mixed signal is a weak signal.
func grade(pcrOI, pcrVol float64, sentiment models.Sentiment, t Thresholds) models.Confidence {
	if sentiment == models.SentimentNeutral {
		return models.ConfidenceLow
	}

	dist := math.Min(math.Abs(pcrOI-1.0), math.Abs(pcrVol-1.0))
	switch {
	case dist >= t.HighBand:
		return models.ConfidenceHigh
	case dist >= t.MediumBand:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

func interpretation(s models.Sentiment, c models.Confidence, pcrOI, pcrVol float64) string {
	base := fmt.Sprintf("PCR(OI) at %.2f and PCR(Volume) at %.2f. ", pcrOI, pcrVol)
	switch s {
	case models.SentimentBullish:
		return base + "Put writers dominate both open interest and volume, suggesting firm support below spot. " + confidenceNote(c)
	case models.SentimentBearish:
		return base + "Call writers dominate both open interest and volume, suggesting resistance above spot. " + confidenceNote(c)
	default:
		return base + "Open interest and volume disagree or sit inside the neutral band; no directional edge."
	}
}

func confidenceNote(c models.Confidence) string {
	switch c {
	case models.ConfidenceHigh:
		return "Both ratios sit well outside the neutral band."
	case models.ConfidenceMedium:
		return "Ratios are moderately stretched from neutral."
	default:
		return "Ratios are only marginally outside the neutral band."
	}
}

func tradingBias(s models.Sentiment, c models.Confidence) string {
	switch s {
	case models.SentimentBullish:
		if c == models.ConfidenceHigh {
			return "Sell puts below spot; dips are likely to be bought."
		}
		return "Lean bullish; prefer put-side premium selling with tight risk."
	case models.SentimentBearish:
		if c == models.ConfidenceHigh {
			return "Sell calls above spot; rallies are likely to be sold."
		}
		return "Lean bearish; prefer call-side premium selling with tight risk."
	default:
		return "Range-bound bias; favour the side with the richer premium or stay flat."
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
